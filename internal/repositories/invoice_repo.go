package repositories

import (
	"context"
	"fmt"
	"time"

	"buildledger/internal/models"

	"github.com/google/uuid"
)

type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error)
	GetByPublicToken(ctx context.Context, token uuid.UUID) (*models.Invoice, error)
	Update(ctx context.Context, invoice *models.Invoice) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error)
	ListByStatus(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, error)
	GetItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error)
	UpdateStatus(ctx context.Context, userID, invoiceID uuid.UUID, status string, paidDate *time.Time) error
	SetAttachment(ctx context.Context, userID, invoiceID uuid.UUID, objectName string) error
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	GenerateInvoiceNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error)
}

type invoiceRepo struct {
	db DB
}

func NewInvoiceRepo(db DB) InvoiceRepository {
	return &invoiceRepo{db: db}
}

// Create inserts the invoice and its line items in one transaction.
func (r *invoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO invoices (id, user_id, client_id, invoice_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, issued_date, due_date, paid_date, attachment_object, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err = tx.Exec(ctx, query, invoice.ID, invoice.UserID, invoice.ClientID, invoice.InvoiceNumber, invoice.CustomerName, invoice.Status, invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount, invoice.Total, invoice.PublicToken, invoice.IssuedDate, invoice.DueDate, invoice.PaidDate, invoice.AttachmentObject)
	if err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range invoice.Items {
		item := &invoice.Items[i]
		_, err = tx.Exec(ctx, itemQuery, item.ID, item.InvoiceID, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *invoiceRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	query := `
		SELECT id, user_id, client_id, invoice_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, issued_date, due_date, paid_date, attachment_object, created_at, updated_at
		FROM invoices
		WHERE user_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, userID, id).Scan(&invoice.ID, &invoice.UserID, &invoice.ClientID, &invoice.InvoiceNumber, &invoice.CustomerName, &invoice.Status, &invoice.Subtotal, &invoice.TaxRate, &invoice.TaxAmount, &invoice.Total, &invoice.PublicToken, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidDate, &invoice.AttachmentObject, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (r *invoiceRepo) GetByPublicToken(ctx context.Context, token uuid.UUID) (*models.Invoice, error) {
	invoice := &models.Invoice{}
	query := `
		SELECT id, user_id, client_id, invoice_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, issued_date, due_date, paid_date, attachment_object, created_at, updated_at
		FROM invoices
		WHERE public_token = $1
	`
	err := r.db.QueryRow(ctx, query, token).Scan(&invoice.ID, &invoice.UserID, &invoice.ClientID, &invoice.InvoiceNumber, &invoice.CustomerName, &invoice.Status, &invoice.Subtotal, &invoice.TaxRate, &invoice.TaxAmount, &invoice.Total, &invoice.PublicToken, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidDate, &invoice.AttachmentObject, &invoice.CreatedAt, &invoice.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// Update rewrites the invoice header and replaces its line items in one
// transaction.
func (r *invoiceRepo) Update(ctx context.Context, invoice *models.Invoice) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE invoices
		SET client_id = $1, customer_name = $2, status = $3, subtotal = $4, tax_rate = $5, tax_amount = $6, total = $7, issued_date = $8, due_date = $9, paid_date = $10, updated_at = NOW()
		WHERE user_id = $11 AND id = $12
	`
	_, err = tx.Exec(ctx, query, invoice.ClientID, invoice.CustomerName, invoice.Status, invoice.Subtotal, invoice.TaxRate, invoice.TaxAmount, invoice.Total, invoice.IssuedDate, invoice.DueDate, invoice.PaidDate, invoice.UserID, invoice.ID)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoice.ID); err != nil {
		return err
	}

	itemQuery := `
		INSERT INTO invoice_items (id, invoice_id, description, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for i := range invoice.Items {
		item := &invoice.Items[i]
		_, err = tx.Exec(ctx, itemQuery, item.ID, item.InvoiceID, item.Description, item.Quantity, item.UnitPrice, item.Amount)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *invoiceRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM invoices WHERE user_id = $1 AND id = $2`, userID, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *invoiceRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT id, user_id, client_id, invoice_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, issued_date, due_date, paid_date, attachment_object, created_at, updated_at
		FROM invoices
		WHERE user_id = $1
		ORDER BY issued_date DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(&invoice.ID, &invoice.UserID, &invoice.ClientID, &invoice.InvoiceNumber, &invoice.CustomerName, &invoice.Status, &invoice.Subtotal, &invoice.TaxRate, &invoice.TaxAmount, &invoice.Total, &invoice.PublicToken, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidDate, &invoice.AttachmentObject, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepo) ListByStatus(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, error) {
	query := `
		SELECT id, user_id, client_id, invoice_number, customer_name, status, subtotal, tax_rate, tax_amount, total, public_token, issued_date, due_date, paid_date, attachment_object, created_at, updated_at
		FROM invoices
		WHERE user_id = $1 AND status = $2
		ORDER BY issued_date DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []*models.Invoice
	for rows.Next() {
		invoice := &models.Invoice{}
		if err := rows.Scan(&invoice.ID, &invoice.UserID, &invoice.ClientID, &invoice.InvoiceNumber, &invoice.CustomerName, &invoice.Status, &invoice.Subtotal, &invoice.TaxRate, &invoice.TaxAmount, &invoice.Total, &invoice.PublicToken, &invoice.IssuedDate, &invoice.DueDate, &invoice.PaidDate, &invoice.AttachmentObject, &invoice.CreatedAt, &invoice.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, invoice)
	}
	return invoices, rows.Err()
}

func (r *invoiceRepo) GetItems(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, amount
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id ASC
	`
	rows, err := r.db.Query(ctx, query, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		item := models.InvoiceItem{}
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description, &item.Quantity, &item.UnitPrice, &item.Amount); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *invoiceRepo) UpdateStatus(ctx context.Context, userID, invoiceID uuid.UUID, status string, paidDate *time.Time) error {
	query := `
		UPDATE invoices
		SET status = $1, paid_date = $2, updated_at = NOW()
		WHERE user_id = $3 AND id = $4
	`
	_, err := r.db.Exec(ctx, query, status, paidDate, userID, invoiceID)
	return err
}

func (r *invoiceRepo) SetAttachment(ctx context.Context, userID, invoiceID uuid.UUID, objectName string) error {
	query := `
		UPDATE invoices
		SET attachment_object = $1, updated_at = NOW()
		WHERE user_id = $2 AND id = $3
	`
	_, err := r.db.Exec(ctx, query, objectName, userID, invoiceID)
	return err
}

// MarkOverdue flips sent invoices past their due date to overdue. Used by the
// background scheduler, so it runs across all users.
func (r *invoiceRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `
		UPDATE invoices
		SET status = 'overdue', updated_at = NOW()
		WHERE status = 'sent' AND due_date < $1
	`
	tag, err := r.db.Exec(ctx, query, asOf)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// GenerateInvoiceNumber produces the next sequential invoice number for a
// user and month via an upsert on invoice_sequences.
func (r *invoiceRepo) GenerateInvoiceNumber(ctx context.Context, userID uuid.UUID, issuedDate time.Time) (string, error) {
	yearMonth := issuedDate.Format("2006-01")

	query := `
		WITH upsert AS (
			INSERT INTO invoice_sequences (user_id, year_month, last_number)
			VALUES ($1, $2, 1)
			ON CONFLICT (user_id, year_month)
			DO UPDATE SET
				last_number = invoice_sequences.last_number + 1,
				updated_at = NOW()
			RETURNING last_number
		)
		SELECT last_number FROM upsert;
	`

	var sequenceNum int
	err := r.db.QueryRow(ctx, query, userID, yearMonth).Scan(&sequenceNum)
	if err != nil {
		return "", fmt.Errorf("failed to generate invoice sequence: %w", err)
	}

	return fmt.Sprintf("INV-%s-%04d", yearMonth, sequenceNum), nil
}
