package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/models"
)

// ErrCorrupt — в кэше лежит значение, которое не удалось разобрать.
var ErrCorrupt = errors.New("cache entry corrupt")

const (
	todosKeyPrefix = "todos:"
	genKeySuffix   = ":gen"

	// generationTTL — срок жизни счётчика поколения; продлевается каждой инвалидацией.
	generationTTL = 24 * time.Hour
)

// TodosKey — ключ снимка списка задач владельца.
func TodosKey(ownerID uuid.UUID) string {
	return todosKeyPrefix + ownerID.String()
}

// GenerationKey — ключ счётчика инвалидаций списка владельца.
func GenerationKey(ownerID uuid.UUID) string {
	return TodosKey(ownerID) + genKeySuffix
}

// Todos кэширует полный список задач владельца в JSON.
type Todos struct {
	kv  KV
	ttl time.Duration
}

// NewTodos создаёт кэш списков задач с TTL записи.
func NewTodos(kv KV, ttl time.Duration) *Todos {
	return &Todos{kv: kv, ttl: ttl}
}

// Get возвращает снимок и признак попадания.
// Битая запись возвращается как ErrCorrupt.
func (c *Todos) Get(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, bool, error) {
	const op = "cache.todos.Get"

	b, ok, err := c.kv.Get(ctx, TodosKey(ownerID))
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return nil, false, nil
	}

	var todos []models.Todo
	if err := json.Unmarshal(b, &todos); err != nil {
		return nil, false, fmt.Errorf("%s: %w: %v", op, ErrCorrupt, err)
	}

	if todos == nil {
		todos = []models.Todo{}
	}

	return todos, true, nil
}

// Generation возвращает текущее поколение списка владельца.
// Читается до похода в хранилище и передаётся в Put.
func (c *Todos) Generation(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const op = "cache.todos.Generation"

	b, ok, err := c.kv.Get(ctx, GenerationKey(ownerID))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		return 0, nil
	}

	gen, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", op, ErrCorrupt, err)
	}

	return gen, nil
}

// Put сохраняет снимок списка, если с момента чтения gen не было инвалидаций.
// false без ошибки — снимок устарел и не записан.
func (c *Todos) Put(ctx context.Context, ownerID uuid.UUID, gen int64, todos []models.Todo) (bool, error) {
	const op = "cache.todos.Put"

	if todos == nil {
		todos = []models.Todo{}
	}

	b, err := json.Marshal(todos)
	if err != nil {
		return false, fmt.Errorf("%s: marshal: %w", op, err)
	}

	stored, err := c.kv.SetIfGuard(ctx, TodosKey(ownerID), b, c.ttl, GenerationKey(ownerID), gen)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return stored, nil
}

// Invalidate сдвигает поколение и удаляет снимок владельца.
// Порядок важен: после сдвига запоздавший Put со старым поколением отклоняется.
func (c *Todos) Invalidate(ctx context.Context, ownerID uuid.UUID) error {
	const op = "cache.todos.Invalidate"

	_, incrErr := c.kv.Incr(ctx, GenerationKey(ownerID), generationTTL)

	if err := c.kv.Del(ctx, TodosKey(ownerID)); err != nil {
		return fmt.Errorf("%s: %w", op, errors.Join(incrErr, err))
	}

	if incrErr != nil {
		return fmt.Errorf("%s: %w", op, incrErr)
	}

	return nil
}
