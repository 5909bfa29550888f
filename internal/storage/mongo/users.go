package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-todo-service/internal/models"
	"github.com/pribylovaa/go-todo-service/internal/storage"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Username     string    `bson:"username"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *userDoc) model() (*models.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("bad user id %q: %w", d.ID, err)
	}

	return &models.User{
		ID:           id,
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}, nil
}

// SaveUser создаёт пользователя. Занятый email — storage.ErrAlreadyExists.
func (m *Mongo) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.mongo.SaveUser"

	doc := userDoc{
		ID:           user.ID.String(),
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    toMS(user.CreatedAt),
		UpdatedAt:    toMS(user.UpdatedAt),
	}

	if _, err := m.users.InsertOne(ctx, doc); err != nil {
		if mongodriver.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email.
func (m *Mongo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.mongo.UserByEmail"

	u, err := m.findUser(ctx, bson.D{{Key: "email", Value: email}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// UserByID находит пользователя по ID.
func (m *Mongo) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.mongo.UserByID"

	u, err := m.findUser(ctx, bson.D{{Key: "_id", Value: id.String()}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

func (m *Mongo) findUser(ctx context.Context, filter bson.D) (*models.User, error) {
	var doc userDoc
	if err := m.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return doc.model()
}
