package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/go-todo-service/internal/errors"
	"github.com/pribylovaa/go-todo-service/internal/http/middleware"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/service"
)

type createTodoRequest struct {
	withRefresh
	Task string `json:"task"`
}

type updateTodoRequest struct {
	withRefresh
	Task      *string `json:"task"`
	Completed *bool   `json:"completed"`
}

type toggleTodoRequest struct {
	withRefresh
	Completed *bool `json:"completed"`
}

type deleteTodoResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type deleteAllResponse struct {
	Deleted int64 `json:"deleted"`
}

// owner — пользователь из контекста; без Authorize маршрут недоступен.
func owner(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrUnauthenticated)
	}

	return p, ok
}

func (h *Handlers) ListTodos(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	todos, err := h.svc.ListTodos(r.Context(), p.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if todos == nil {
		todos = []models.Todo{}
	}

	writeJSON(w, http.StatusOK, todos)
}

func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	var in createTodoRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	todo, err := h.svc.CreateTodo(r.Context(), p.ID, in.Task)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, todo)
}

func (h *Handlers) DeleteAllTodos(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	n, err := h.svc.DeleteAllTodos(r.Context(), p.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteAllResponse{Deleted: n})
}

func (h *Handlers) GetTodo(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	todo, err := h.svc.TodoByID(r.Context(), p.ID, chi.URLParam(r, "id"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// UpdateTodo — PUT: меняет переданные поля task и completed.
func (h *Handlers) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	var in updateTodoRequest
	if err := decodeStrict(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	patch := models.TodoPatch{Task: in.Task, Completed: in.Completed}
	todo, err := h.svc.UpdateTodo(r.Context(), p.ID, chi.URLParam(r, "id"), patch)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// ToggleTodo — PATCH: явный completed или переключение, если тело пустое.
func (h *Handlers) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	var in toggleTodoRequest
	if err := decodeOptional(r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	todo, err := h.svc.ToggleTodo(r.Context(), p.ID, chi.URLParam(r, "id"), in.Completed)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	p, ok := owner(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.DeleteTodo(r.Context(), p.ID, id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteTodoResponse{Message: "todo deleted", ID: id})
}
