package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/go-todo-service/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	todosCollection = "todos"
	defaultDBName   = "todo_list"
)

// Mongo - адаптер основного хранилища поверх MongoDB.
type Mongo struct {
	client *mongodriver.Client
	db     *mongodriver.Database
	users  *mongodriver.Collection
	todos  *mongodriver.Collection
}

// New подключается к MongoDB, проверяет его, подготавливает коллекции и обеспечивает индексацию.
func New(ctx context.Context, uri string) (*Mongo, error) {
	const op = "storage.mongo.New"

	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("%s: empty uri", op)
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := cli.Database(databaseFromURI(uri))

	m := &Mongo{
		client: cli,
		db:     db,
		users:  db.Collection(usersCollection),
		todos:  db.Collection(todosCollection),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		_ = m.Close(ctx)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return m, nil
}

// Ping проверяет доступность primary.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// Close отключает клиента.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// ensureIndexes создаёт индексы:
// - уникальный email пользователя;
// - список задач владельца: owner_id + created_at(asc).
func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.users.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("email_unique").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure users indexes: %w", err)
	}

	_, err = m.todos.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("owner_created_asc"),
	})
	if err != nil {
		return fmt.Errorf("ensure todos indexes: %w", err)
	}

	return nil
}

// databaseFromURI извлекает имя базы данных из URI-пути mongodb.
// Если оно отсутствует, возвращает значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}

	return defaultDBName
}

// MongoDB DateTime хранит миллисекунды.
func toMS(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Mongo)(nil)
