package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/storage"
)

const todoColumns = `id, owner_id, task, completed, created_at, updated_at`

func parseTodoID(id string) (uuid.UUID, error) {
	tid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, storage.ErrInvalidID
	}

	return tid, nil
}

func scanTodo(row pgx.Row) (*models.Todo, error) {
	var (
		t  models.Todo
		id uuid.UUID
	)

	if err := row.Scan(&id, &t.OwnerID, &t.Task, &t.Completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	t.ID = id.String()
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()

	return &t, nil
}

// ListTodos возвращает задачи владельца в порядке создания.
func (s *Storage) ListTodos(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	const op = "storage.postgres.ListTodos"

	query := `SELECT ` + todoColumns + ` FROM todos WHERE owner_id = $1 ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	items := make([]models.Todo, 0)
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		items = append(items, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return items, nil
}

// TodoByID возвращает задачу владельца.
func (s *Storage) TodoByID(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	const op = "storage.postgres.TodoByID"

	tid, err := parseTodoID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `SELECT ` + todoColumns + ` FROM todos WHERE id = $1 AND owner_id = $2`

	t, err := scanTodo(s.db.QueryRow(ctx, query, tid, ownerID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// CreateTodo сохраняет задачу. Несуществующий владелец — storage.ErrNotFound.
func (s *Storage) CreateTodo(ctx context.Context, todo models.Todo) (*models.Todo, error) {
	const op = "storage.postgres.CreateTodo"

	now := time.Now().UTC().Truncate(time.Microsecond)

	query := `
		INSERT INTO todos(id, owner_id, task, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + todoColumns

	t, err := scanTodo(s.db.QueryRow(ctx, query,
		uuid.New(),
		todo.OwnerID,
		todo.Task,
		todo.Completed,
		now,
		now,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// UpdateTodo применяет непустые поля патча (NULL оставляет значение как есть).
func (s *Storage) UpdateTodo(ctx context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error) {
	const op = "storage.postgres.UpdateTodo"

	if patch.Empty() {
		t, err := s.TodoByID(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return t, nil
	}

	tid, err := parseTodoID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		UPDATE todos
		SET task = COALESCE($3, task),
		    completed = COALESCE($4, completed),
		    updated_at = $5
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + todoColumns

	t, err := scanTodo(s.db.QueryRow(ctx, query,
		tid,
		ownerID,
		patch.Task,
		patch.Completed,
		time.Now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// ToggleTodo инвертирует completed одним UPDATE.
func (s *Storage) ToggleTodo(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	const op = "storage.postgres.ToggleTodo"

	tid, err := parseTodoID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	query := `
		UPDATE todos
		SET completed = NOT completed, updated_at = $3
		WHERE id = $1 AND owner_id = $2
		RETURNING ` + todoColumns

	t, err := scanTodo(s.db.QueryRow(ctx, query, tid, ownerID, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// DeleteTodo удаляет задачу владельца.
func (s *Storage) DeleteTodo(ctx context.Context, ownerID uuid.UUID, id string) error {
	const op = "storage.postgres.DeleteTodo"

	tid, err := parseTodoID(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM todos WHERE id = $1 AND owner_id = $2`, tid, ownerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteAllTodos удаляет все задачи владельца.
func (s *Storage) DeleteAllTodos(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const op = "storage.postgres.DeleteAllTodos"

	tag, err := s.db.Exec(ctx, `DELETE FROM todos WHERE owner_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}
