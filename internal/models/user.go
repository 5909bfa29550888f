// Package models содержит доменные сущности todo-service.
package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись пользователя.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal — аутентифицированный пользователь текущего запроса.
// Строится из User после проверки токена и не хранится отдельно.
type Principal struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// Principal возвращает публичное представление пользователя.
func (u *User) Principal() *Principal {
	return &Principal{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}
