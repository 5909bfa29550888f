package http

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/storage"
)

// memStorage — потокобезопасное in-memory хранилище для сценарных тестов роутера.
// Повторяет контракт storage.Storage: фильтр по владельцу, ErrInvalidID для
// не-UUID идентификаторов, ErrAlreadyExists для занятого email.
type memStorage struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User
	todos map[string]models.Todo
	seq   int
}

var _ storage.Storage = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{
		users: make(map[uuid.UUID]models.User),
		todos: make(map[string]models.Todo),
	}
}

func (m *memStorage) SaveUser(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == user.Email {
			return storage.ErrAlreadyExists
		}
	}
	m.users[user.ID] = *user

	return nil
}

func (m *memStorage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}

	return nil, storage.ErrNotFound
}

func (m *memStorage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &u, nil
}

func (m *memStorage) deleteUser(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memStorage) ListTodos(_ context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Todo, 0)
	for _, t := range m.todos {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

// owned возвращает задачу владельца; вызывается под m.mu.
func (m *memStorage) owned(ownerID uuid.UUID, id string) (models.Todo, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Todo{}, storage.ErrInvalidID
	}

	t, ok := m.todos[id]
	if !ok || t.OwnerID != ownerID {
		return models.Todo{}, storage.ErrNotFound
	}

	return t, nil
}

func (m *memStorage) TodoByID(_ context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.owned(ownerID, id)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func (m *memStorage) CreateTodo(_ context.Context, todo models.Todo) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[todo.OwnerID]; !ok {
		return nil, storage.ErrNotFound
	}

	// Монотонные метки: порядок создания не зависит от разрешения часов.
	m.seq++
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(m.seq) * time.Millisecond)
	todo.ID = uuid.NewString()
	todo.CreatedAt = now
	todo.UpdatedAt = now
	m.todos[todo.ID] = todo

	return &todo, nil
}

func (m *memStorage) UpdateTodo(_ context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	if patch.Task != nil {
		t.Task = *patch.Task
	}
	if patch.Completed != nil {
		t.Completed = *patch.Completed
	}
	m.todos[id] = t

	return &t, nil
}

func (m *memStorage) ToggleTodo(_ context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	t.Completed = !t.Completed
	m.todos[id] = t

	return &t, nil
}

func (m *memStorage) DeleteTodo(_ context.Context, ownerID uuid.UUID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.owned(ownerID, id); err != nil {
		return err
	}
	delete(m.todos, id)

	return nil
}

func (m *memStorage) DeleteAllTodos(_ context.Context, ownerID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.todos {
		if t.OwnerID == ownerID {
			delete(m.todos, id)
			n++
		}
	}

	return n, nil
}

func (m *memStorage) Ping(context.Context) error  { return nil }
func (m *memStorage) Close(context.Context) error { return nil }
