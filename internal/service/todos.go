package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/metrics"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/pkg/log"
	"github.com/pribylovaa/go-todo-service/internal/storage"
)

// invalidateTimeout — бюджет на удаление ключа кэша после мутации.
// Инвалидация выполняется и тогда, когда контекст запроса уже отменён.
const invalidateTimeout = time.Second

// ListTodos возвращает все задачи владельца.
//
// Сначала читается кэш todos:{owner}. Промах, битая запись или ошибка Redis
// приводят к чтению из хранилища и повторному заполнению кэша;
// ошибки кэша только логируются.
func (s *Service) ListTodos(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	const op = "service.todos.ListTodos"

	lg := log.From(ctx).With("op", op, "owner_id", ownerID.String())

	cached, ok, err := s.todos.Get(ctx, ownerID)
	switch {
	case err != nil:
		metrics.TodoCache.WithLabelValues(metrics.CacheError).Inc()
		lg.Warn("todo_cache_read_failed", "err", err)
	case ok:
		metrics.TodoCache.WithLabelValues(metrics.CacheHit).Inc()
		return cached, nil
	default:
		metrics.TodoCache.WithLabelValues(metrics.CacheMiss).Inc()
	}

	// Поколение читается до хранилища: инвалидация, случившаяся между чтением
	// и записью снимка, сдвигает его, и Put отклоняет устаревший список.
	gen, genErr := s.todos.Generation(ctx, ownerID)
	if genErr != nil {
		lg.Warn("todo_cache_generation_failed", "err", genErr)
	}

	todos, err := s.storage.ListTodos(ctx, ownerID)
	if err != nil {
		lg.Error("list_todos_failed", "err", err)
		return nil, wrapBackend(op, err)
	}

	if genErr != nil {
		return todos, nil
	}

	stored, err := s.todos.Put(ctx, ownerID, gen, todos)
	switch {
	case err != nil:
		lg.Warn("todo_cache_write_failed", "err", err)
	case !stored:
		lg.Debug("todo_cache_populate_skipped", "generation", gen)
	}

	return todos, nil
}

// TodoByID возвращает задачу владельца. Кэш не используется.
func (s *Service) TodoByID(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	const op = "service.todos.TodoByID"

	id, err := normalizeID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t, err := s.storage.TodoByID(ctx, ownerID, id)
	if err != nil {
		return nil, s.mapTodoErr(ctx, op, err)
	}

	return t, nil
}

// CreateTodo создаёт задачу. Пустой (после TrimSpace) task — ErrInvalidArgument.
func (s *Service) CreateTodo(ctx context.Context, ownerID uuid.UUID, task string) (*models.Todo, error) {
	const op = "service.todos.CreateTodo"

	task = strings.TrimSpace(task)
	if task == "" {
		return nil, fmt.Errorf("%s: %w", op, invalidField("task", "must not be empty"))
	}

	t, err := s.storage.CreateTodo(ctx, models.Todo{Task: task, OwnerID: ownerID})
	s.invalidateTodos(ctx, ownerID)
	if err != nil {
		return nil, s.mapTodoErr(ctx, op, err)
	}

	log.From(ctx).Info("todo_created", "op", op, "owner_id", ownerID.String(), "todo_id", t.ID)

	return t, nil
}

// UpdateTodo применяет патч (PUT). Пустой патч возвращает задачу без изменений.
func (s *Service) UpdateTodo(ctx context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error) {
	const op = "service.todos.UpdateTodo"

	id, err := normalizeID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if patch.Task != nil {
		task := strings.TrimSpace(*patch.Task)
		if task == "" {
			return nil, fmt.Errorf("%s: %w", op, invalidField("task", "must not be empty"))
		}
		patch.Task = &task
	}

	t, err := s.storage.UpdateTodo(ctx, ownerID, id, patch)
	s.invalidateTodos(ctx, ownerID)
	if err != nil {
		return nil, s.mapTodoErr(ctx, op, err)
	}

	return t, nil
}

// ToggleTodo (PATCH) выставляет completed явно или, если значение не передано,
// атомарно инвертирует его в хранилище.
func (s *Service) ToggleTodo(ctx context.Context, ownerID uuid.UUID, id string, completed *bool) (*models.Todo, error) {
	const op = "service.todos.ToggleTodo"

	id, err := normalizeID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var t *models.Todo
	if completed != nil {
		t, err = s.storage.UpdateTodo(ctx, ownerID, id, models.TodoPatch{Completed: completed})
	} else {
		t, err = s.storage.ToggleTodo(ctx, ownerID, id)
	}
	s.invalidateTodos(ctx, ownerID)
	if err != nil {
		return nil, s.mapTodoErr(ctx, op, err)
	}

	return t, nil
}

// DeleteTodo удаляет задачу владельца.
func (s *Service) DeleteTodo(ctx context.Context, ownerID uuid.UUID, id string) error {
	const op = "service.todos.DeleteTodo"

	id, err := normalizeID(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.storage.DeleteTodo(ctx, ownerID, id)
	s.invalidateTodos(ctx, ownerID)
	if err != nil {
		return s.mapTodoErr(ctx, op, err)
	}

	log.From(ctx).Info("todo_deleted", "op", op, "owner_id", ownerID.String(), "todo_id", id)

	return nil
}

// DeleteAllTodos удаляет все задачи владельца и возвращает их количество.
func (s *Service) DeleteAllTodos(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const op = "service.todos.DeleteAllTodos"

	n, err := s.storage.DeleteAllTodos(ctx, ownerID)
	s.invalidateTodos(ctx, ownerID)
	if err != nil {
		return 0, s.mapTodoErr(ctx, op, err)
	}

	log.From(ctx).Info("todos_deleted", "op", op, "owner_id", ownerID.String(), "count", n)

	return n, nil
}

// invalidateTodos удаляет снимок списка владельца. Ошибка только логируется.
func (s *Service) invalidateTodos(ctx context.Context, ownerID uuid.UUID) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()

	if err := s.todos.Invalidate(ictx, ownerID); err != nil {
		log.From(ctx).Warn("todo_cache_invalidate_failed",
			"owner_id", ownerID.String(),
			"err", err,
		)
	}
}

// mapTodoErr переводит ошибки хранилища в ошибки сервиса.
func (s *Service) mapTodoErr(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, storage.ErrInvalidID):
		return fmt.Errorf("%s: %w", op, invalidField("id", "malformed todo id"))
	default:
		log.From(ctx).Error("todo_storage_failed", "op", op, "err", err)
		return wrapBackend(op, err)
	}
}

func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalidField("id", "must not be empty")
	}

	return id, nil
}
