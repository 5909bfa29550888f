package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/service"
)

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// Service — операции сервисного слоя, доступные через REST.
type Service interface {
	Register(ctx context.Context, username, email, password string) (*models.Principal, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, principalID uuid.UUID) error
	RefreshAccess(ctx context.Context, refreshToken string) (*models.Principal, *models.TokenPair, error)

	ListTodos(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error)
	TodoByID(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error)
	CreateTodo(ctx context.Context, ownerID uuid.UUID, task string) (*models.Todo, error)
	UpdateTodo(ctx context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error)
	ToggleTodo(ctx context.Context, ownerID uuid.UUID, id string, completed *bool) (*models.Todo, error)
	DeleteTodo(ctx context.Context, ownerID uuid.UUID, id string) error
	DeleteAllTodos(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// Handlers агрегирует зависимости REST-хендлеров.
type Handlers struct {
	svc    Service
	cookie CookieOptions
}

// CookieOptions — атрибуты cookie с refresh-токеном.
type CookieOptions struct {
	Secure bool
	// MaxAge — срок жизни cookie; 0 — сессионная cookie браузера.
	MaxAge time.Duration
}

func New(svc Service, cookie CookieOptions) *Handlers {
	return &Handlers{svc: svc, cookie: cookie}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return malformedBody()
	}

	return nil
}

// decodeOptional — как decodeStrict, но пустое тело не ошибка.
func decodeOptional(r *http.Request, value any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil && !errors.Is(err, io.EOF) {
		return malformedBody()
	}

	return nil
}

func malformedBody() error {
	return &service.ValidationError{Fields: []service.FieldError{
		{Field: "body", Message: "malformed JSON"},
	}}
}
