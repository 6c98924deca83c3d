package models

import (
	"time"

	"github.com/google/uuid"
)

type Company struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	Address    *string   `json:"address" db:"address"`
	Phone      *string   `json:"phone" db:"phone"`
	Email      *string   `json:"email" db:"email"`
	LogoObject *string   `json:"logo_object" db:"logo_object"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
