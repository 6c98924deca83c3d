package models

import (
	"time"

	"github.com/google/uuid"
)

type Quote struct {
	ID                 uuid.UUID   `json:"id" db:"id"`
	UserID             uuid.UUID   `json:"user_id" db:"user_id"`
	ClientID           *uuid.UUID  `json:"client_id" db:"client_id"`
	QuoteNumber        string      `json:"quote_number" db:"quote_number"`
	CustomerName       string      `json:"customer_name" db:"customer_name"`
	Status             string      `json:"status" db:"status"`
	Subtotal           float64     `json:"subtotal" db:"subtotal"`
	TaxRate            float64     `json:"tax_rate" db:"tax_rate"`
	TaxAmount          float64     `json:"tax_amount" db:"tax_amount"`
	Total              float64     `json:"total" db:"total"`
	PublicToken        uuid.UUID   `json:"public_token" db:"public_token"`
	ValidUntil         *time.Time  `json:"valid_until" db:"valid_until"`
	ConvertedInvoiceID *uuid.UUID  `json:"converted_invoice_id" db:"converted_invoice_id"`
	Items              []QuoteItem `json:"items,omitempty" db:"-"`
	CreatedAt          time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at" db:"updated_at"`
}

type QuoteItem struct {
	ID          uuid.UUID `json:"id" db:"id"`
	QuoteID     uuid.UUID `json:"quote_id" db:"quote_id"`
	Description string    `json:"description" db:"description"`
	Quantity    float64   `json:"quantity" db:"quantity"`
	UnitPrice   float64   `json:"unit_price" db:"unit_price"`
	Amount      float64   `json:"amount" db:"amount"`
}
