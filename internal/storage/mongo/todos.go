package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type todoDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Task      string             `bson:"task"`
	Completed bool               `bson:"completed"`
	OwnerID   string             `bson:"owner_id"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d *todoDoc) model() (models.Todo, error) {
	owner, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return models.Todo{}, fmt.Errorf("bad owner id %q: %w", d.OwnerID, err)
	}

	return models.Todo{
		ID:        d.ID.Hex(),
		Task:      d.Task,
		Completed: d.Completed,
		OwnerID:   owner,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}, nil
}

// ownedFilter строит фильтр {_id, owner_id}. Некорректный hex — storage.ErrInvalidID.
func ownedFilter(ownerID uuid.UUID, id string) (bson.D, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return nil, storage.ErrInvalidID
	}

	return bson.D{
		{Key: "_id", Value: oid},
		{Key: "owner_id", Value: ownerID.String()},
	}, nil
}

// ListTodos возвращает задачи владельца: created_at ASC, _id ASC.
func (m *Mongo) ListTodos(ctx context.Context, ownerID uuid.UUID) ([]models.Todo, error) {
	const op = "storage.mongo.ListTodos"

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := m.todos.Find(ctx, bson.D{{Key: "owner_id", Value: ownerID.String()}}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", op, err)
	}
	defer cur.Close(ctx)

	items := make([]models.Todo, 0)
	for cur.Next(ctx) {
		var doc todoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: decode: %w", op, err)
		}

		t, err := doc.model()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		items = append(items, t)
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", op, err)
	}

	return items, nil
}

// TodoByID возвращает задачу владельца.
func (m *Mongo) TodoByID(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	const op = "storage.mongo.TodoByID"

	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var doc todoDoc
	if err := m.todos.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	t, err := doc.model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

// CreateTodo вставляет задачу; ObjectID генерирует драйвер.
func (m *Mongo) CreateTodo(ctx context.Context, todo models.Todo) (*models.Todo, error) {
	const op = "storage.mongo.CreateTodo"

	now := toMS(time.Now())
	doc := todoDoc{
		Task:      todo.Task,
		Completed: todo.Completed,
		OwnerID:   todo.OwnerID.String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := m.todos.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: insert: %w", op, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("%s: inserted id type", op)
	}
	doc.ID = oid

	t, err := doc.model()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &t, nil
}

// UpdateTodo применяет непустые поля патча. Пустой патч возвращает текущее состояние.
func (m *Mongo) UpdateTodo(ctx context.Context, ownerID uuid.UUID, id string, patch models.TodoPatch) (*models.Todo, error) {
	const op = "storage.mongo.UpdateTodo"

	if patch.Empty() {
		t, err := m.TodoByID(ctx, ownerID, id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return t, nil
	}

	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	set := bson.D{{Key: "updated_at", Value: toMS(time.Now())}}
	if patch.Task != nil {
		set = append(set, bson.E{Key: "task", Value: *patch.Task})
	}
	if patch.Completed != nil {
		set = append(set, bson.E{Key: "completed", Value: *patch.Completed})
	}

	t, err := m.findOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

// ToggleTodo инвертирует completed одной pipeline-операцией на стороне сервера.
func (m *Mongo) ToggleTodo(ctx context.Context, ownerID uuid.UUID, id string) (*models.Todo, error) {
	const op = "storage.mongo.ToggleTodo"

	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	update := mongodriver.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "completed", Value: bson.D{{Key: "$not", Value: bson.A{"$completed"}}}},
			{Key: "updated_at", Value: toMS(time.Now())},
		}}},
	}

	t, err := m.findOneAndUpdate(ctx, filter, update)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return t, nil
}

func (m *Mongo) findOneAndUpdate(ctx context.Context, filter bson.D, update interface{}) (*models.Todo, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc todoDoc
	if err := m.todos.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	t, err := doc.model()
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// DeleteTodo удаляет задачу владельца.
func (m *Mongo) DeleteTodo(ctx context.Context, ownerID uuid.UUID, id string) error {
	const op = "storage.mongo.DeleteTodo"

	filter, err := ownedFilter(ownerID, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := m.todos.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// DeleteAllTodos удаляет все задачи владельца.
func (m *Mongo) DeleteAllTodos(ctx context.Context, ownerID uuid.UUID) (int64, error) {
	const op = "storage.mongo.DeleteAllTodos"

	res, err := m.todos.DeleteMany(ctx, bson.D{{Key: "owner_id", Value: ownerID.String()}})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return res.DeletedCount, nil
}
