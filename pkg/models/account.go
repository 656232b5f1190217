package models

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a customer workspace. Every other entity belongs to an account.
type Account struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
