package repositories

import (
	"context"
	"fmt"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
)

type QuoteRepository interface {
	Create(ctx context.Context, quote *models.Quote) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Quote, error)
	Update(ctx context.Context, quote *models.Quote) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Quote, error)
	GetItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteItem, error)
	UpdateStatus(ctx context.Context, userID, quoteID uuid.UUID, status string) error
	MarkConverted(ctx context.Context, userID, quoteID, invoiceID uuid.UUID) error
	GenerateQuoteNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error)
}

type quoteRepo struct {
	db DB
}

func NewQuoteRepo(db DB) QuoteRepository {
	return &quoteRepo{db: db}
}

func (r *quoteRepo) Create(ctx context.Context, quote *models.Quote) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO quotes (id, user_id, client_id, quote_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, valid_until, converted_invoice_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, query, quote.ID, quote.UserID, quote.ClientID, quote.QuoteNumber, quote.CustomerName, quote.Status, quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.Total, quote.PublicToken, quote.ValidUntil, quote.ConvertedInvoiceID)
	if err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO quote_items (id, quote_id, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range quote.Items {
		item := &quote.Items[i]
		_, err = tx.Exec(ctx, itemQuery, item.ID, item.QuoteID, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *quoteRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Quote, error) {
	quote := &models.Quote{}
	query := `
		SELECT id, user_id, client_id, quote_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, valid_until, converted_invoice_id, created_at, updated_at
		FROM quotes
		WHERE user_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, userID, id).Scan(&quote.ID, &quote.UserID, &quote.ClientID, &quote.QuoteNumber, &quote.CustomerName, &quote.Status, &quote.Subtotal, &quote.TaxRate, &quote.TaxAmount, &quote.Total, &quote.PublicToken, &quote.ValidUntil, &quote.ConvertedInvoiceID, &quote.CreatedAt, &quote.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// Update rewrites the quote header and replaces its line items in one
// transaction.
func (r *quoteRepo) Update(ctx context.Context, quote *models.Quote) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE quotes
		SET client_id = $1, customer_name = $2, status = $3, subtotal = $4, tax_rate = $5, tax_amount = $6, total = $7, valid_until = $8, updated_at = NOW()
		WHERE user_id = $9 AND id = $10
	`
	_, err = tx.Exec(ctx, query, quote.ClientID, quote.CustomerName, quote.Status, quote.Subtotal, quote.TaxRate, quote.TaxAmount, quote.Total, quote.ValidUntil, quote.UserID, quote.ID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quote.ID); err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO quote_items (id, quote_id, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range quote.Items {
		item := &quote.Items[i]
		_, err = tx.Exec(ctx, itemQuery, item.ID, item.QuoteID, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *quoteRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM quotes WHERE user_id = $1 AND id = $2`, userID, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *quoteRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Quote, error) {
	query := `
		SELECT id, user_id, client_id, quote_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, valid_until, converted_invoice_id, created_at, updated_at
		FROM quotes
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		quote := &models.Quote{}
		if err := rows.Scan(&quote.ID, &quote.UserID, &quote.ClientID, &quote.QuoteNumber, &quote.CustomerName, &quote.Status, &quote.Subtotal, &quote.TaxRate, &quote.TaxAmount, &quote.Total, &quote.PublicToken, &quote.ValidUntil, &quote.ConvertedInvoiceID, &quote.CreatedAt, &quote.UpdatedAt); err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}

func (r *quoteRepo) GetItems(ctx context.Context, quoteID uuid.UUID) ([]models.QuoteItem, error) {
	query := `
		SELECT id, quote_id, description, quantity, unit_price, amount
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.QuoteItem
	for rows.Next() {
		item := models.QuoteItem{}
		if err := rows.Scan(&item.ID, &item.QuoteID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *quoteRepo) UpdateStatus(ctx context.Context, userID, quoteID uuid.UUID, status string) error {
	query := `
		UPDATE quotes
		SET status = $1, updated_at = NOW()
		WHERE user_id = $2 AND id = $3
	`
	_, err := r.db.Exec(ctx, query, status, userID, quoteID)
	return err
}

func (r *quoteRepo) MarkConverted(ctx context.Context, userID, quoteID, invoiceID uuid.UUID) error {
	query := `
		UPDATE quotes
		SET status = 'converted', converted_invoice_id = $1, updated_at = NOW()
		WHERE user_id = $2 AND id = $3
	`
	_, err := r.db.Exec(ctx, query, invoiceID, userID, quoteID)
	return err
}

func (r *quoteRepo) GenerateQuoteNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error) {
	yearMonth := issuedDate.Format("2006-01")

	query := `
		WITH upsert AS (
			INSERT INTO quote_sequences (user_id, year_month, last_number)
			VALUES ($1, $2, 1)
			ON CONFLICT (user_id, year_month)
			DO UPDATE SET
				last_number = quote_sequences.last_number + 1,
				updated_at = NOW()
			RETURNING last_number
		)
		SELECT last_number FROM upsert;
	`

	var sequenceNum int
	err := r.db.QueryRow(ctx, query, userID, yearMonth).Scan(&sequenceNum)
	if err != nil {
		return "", fmt.Errorf("failed to generate quote sequence: %w", err)
	}

	return fmt.Sprintf("QUO-%s-%04d", yearMonth, sequenceNum), nil
}
