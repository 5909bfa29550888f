package models

import (
	"time"

	"github.com/google/uuid"
)

// Todo — задача пользователя.
// Важно:
//   - ID — строковый идентификатор хранилища (ObjectID hex для MongoDB, UUID для PostgreSQL);
//   - OwnerID — владелец; все чтения/записи фильтруются по паре (ID, OwnerID).
type Todo struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Completed bool      `json:"completed"`
	OwnerID   uuid.UUID `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TodoPatch — частичное обновление задачи; nil-поле не меняется.
type TodoPatch struct {
	Task      *string
	Completed *bool
}

// Empty сообщает, что патч ничего не меняет.
func (p TodoPatch) Empty() bool {
	return p.Task == nil && p.Completed == nil
}
