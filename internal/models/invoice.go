package models

import (
	"time"

	"github.com/google/uuid"
)

type Invoice struct {
	ID               uuid.UUID     `json:"id" db:"id"`
	UserID           uuid.UUID     `json:"user_id" db:"user_id"`
	ClientID         *uuid.UUID    `json:"client_id" db:"client_id"`
	InvoiceNumber    string        `json:"invoice_number" db:"invoice_number"`
	CustomerName     string        `json:"customer_name" db:"customer_name"`
	Status           string        `json:"status" db:"status"`
	Subtotal         float64       `json:"subtotal" db:"subtotal"`
	TaxRate          float64       `json:"tax_rate" db:"tax_rate"`
	TaxAmount        float64       `json:"tax_amount" db:"tax_amount"`
	Total            float64       `json:"total" db:"total"`
	PublicToken      uuid.UUID     `json:"public_token" db:"public_token"`
	IssuedDate       time.Time     `json:"issued_date" db:"issued_date"`
	DueDate          time.Time     `json:"due_date" db:"due_date"`
	PaidDate         *time.Time    `json:"paid_date" db:"paid_date"`
	AttachmentObject *string       `json:"attachment_object" db:"attachment_object"`
	Items            []InvoiceItem `json:"items,omitempty" db:"-"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

type InvoiceItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	InvoiceID   uuid.UUID `json:"invoice_id" db:"invoice_id"`
	Description string    `json:"description" db:"description"`
	Quantity    float64   `json:"quantity" db:"quantity"`
	UnitPrice   float64   `json:"unit_price" db:"unit_price"`
	Amount      float64   `json:"amount" db:"amount"`
}
