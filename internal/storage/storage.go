package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (в том числе чужая задача).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email).
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidID — идентификатор задачи не в формате хранилища.
	ErrInvalidID = errors.New("invalid id")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя. Занятый email — ErrAlreadyExists.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (в нижнем регистре).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TodoStorage выполняет операции над задачами.
// Все методы фильтруют по владельцу: чужая задача неотличима от отсутствующей (ErrNotFound).
type TodoStorage interface {
	// ListTodos возвращает все задачи владельца в порядке создания.
	ListTodos(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error)
	// TodoByID возвращает задачу владельца.
	TodoByID(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error)
	// CreateTodo сохраняет задачу; ID и временные метки проставляет хранилище.
	CreateTodo(ctx context.Context, todo models.Todo) (*models.Todo, error)
	// UpdateTodo применяет непустые поля патча и возвращает итоговое состояние.
	UpdateTodo(ctx context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error)
	// ToggleTodo атомарно инвертирует completed.
	ToggleTodo(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error)
	// DeleteTodo удаляет задачу владельца.
	DeleteTodo(ctx context.Context, ownerID uuid.UUID, id string) error
	// DeleteAllTodos удаляет все задачи владельца и возвращает их количество.
	DeleteAllTodos(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// Storage задаёт контракт работы с основным хранилищем.
type Storage interface {
	UserStorage
	TodoStorage
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
	// Close закрывает соединения.
	Close(ctx context.Context) error
}
