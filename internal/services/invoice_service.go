package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"buildledger/internal/caching"
	"buildledger/internal/common"
	"buildledger/internal/models"
	"buildledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LineItemInput is a billable line item as submitted by the client. The
// amount is always computed server-side.
type LineItemInput struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// CreateInvoiceInput carries everything needed to create an invoice.
type CreateInvoiceInput struct {
	ClientID     *uuid.UUID      `json:"client_id"`
	CustomerName string          `json:"customer_name"`
	TaxRate      float64         `json:"tax_rate"`
	IssuedDate   string          `json:"issued_date"`
	DueDate      string          `json:"due_date"`
	Items        []LineItemInput `json:"items"`
}

type InvoiceService interface {
	Create(ctx context.Context, userID uuid.UUID, input *CreateInvoiceInput) (*models.Invoice, error)
	Get(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error)
	GetByPublicToken(ctx context.Context, token uuid.UUID) (*models.Invoice, error)
	Update(ctx context.Context, userID, invoiceID uuid.UUID, input *CreateInvoiceInput) (*models.Invoice, error)
	Delete(ctx context.Context, userID, invoiceID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, error)
	UpdateStatus(ctx context.Context, userID, invoiceID uuid.UUID, status string) error
	AttachObject(ctx context.Context, userID, invoiceID uuid.UUID, objectName string, sizeBytes int64) error
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type invoiceService struct {
	invoiceRepo     repositories.InvoiceRepository
	clientRepo      repositories.ClientRepository
	subscriptionSvc SubscriptionService
	cacheSvc        caching.CacheService
}

func NewInvoiceService(
	invoiceRepo repositories.InvoiceRepository,
	clientRepo repositories.ClientRepository,
	subscriptionSvc SubscriptionService,
	cacheSvc caching.CacheService,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:     invoiceRepo,
		clientRepo:      clientRepo,
		subscriptionSvc: subscriptionSvc,
		cacheSvc:        cacheSvc,
	}
}

// Create validates the input, enforces the plan's invoice limit, computes
// totals and persists the invoice with its items.
func (s *invoiceService) Create(ctx context.Context, userID uuid.UUID, input *CreateInvoiceInput) (*models.Invoice, error) {
	if err := validateInvoiceInput(input); err != nil {
		return nil, err
	}

	if err := s.subscriptionSvc.CheckLimit(ctx, userID, models.UsageFeatureInvoices); err != nil {
		return nil, err
	}

	if input.ClientID != nil {
		if _, err := s.clientRepo.GetByID(ctx, userID, *input.ClientID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, common.ValidationErrorf("client does not exist")
			}
			return nil, fmt.Errorf("failed to verify client: %w", err)
		}
	}

	issuedDate, dueDate, err := parseInvoiceDates(input.IssuedDate, input.DueDate)
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		ID:           uuid.New(),
		UserID:       userID,
		ClientID:     input.ClientID,
		CustomerName: input.CustomerName,
		Status:       "draft",
		TaxRate:      input.TaxRate,
		PublicToken:  uuid.New(),
		IssuedDate:   issuedDate,
		DueDate:      dueDate,
	}
	applyLineItems(invoice, input.Items)

	number, err := s.invoiceRepo.GenerateInvoiceNumber(ctx, userID, issuedDate)
	if err != nil {
		return nil, fmt.Errorf("failed to generate invoice number: %w", err)
	}
	invoice.InvoiceNumber = number

	if err := s.invoiceRepo.Create(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	if err := s.subscriptionSvc.RecordUsage(ctx, userID, models.UsageFeatureInvoices, 1); err != nil {
		log.Printf("WARN: failed to record invoice usage for user %s: %v", userID, err)
	}
	s.invalidateDashboard(ctx, userID)

	return invoice, nil
}

func (s *invoiceService) Get(ctx context.Context, userID, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, userID, invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	items, err := s.invoiceRepo.GetItems(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	invoice.Items = items
	return invoice, nil
}

// GetByPublicToken serves the unauthenticated share link. Lookup is by the
// unguessable token only, never by invoice id.
func (s *invoiceService) GetByPublicToken(ctx context.Context, token uuid.UUID) (*models.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByPublicToken(ctx, token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	items, err := s.invoiceRepo.GetItems(ctx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	invoice.Items = items
	return invoice, nil
}

// Update replaces the invoice fields and line items, recomputing totals.
// Paid invoices are immutable.
func (s *invoiceService) Update(ctx context.Context, userID, invoiceID uuid.UUID, input *CreateInvoiceInput) (*models.Invoice, error) {
	if err := validateInvoiceInput(input); err != nil {
		return nil, err
	}

	invoice, err := s.Get(ctx, userID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == "paid" {
		return nil, common.ValidationErrorf("paid invoices cannot be modified")
	}

	issuedDate, dueDate, err := parseInvoiceDates(input.IssuedDate, input.DueDate)
	if err != nil {
		return nil, err
	}

	invoice.ClientID = input.ClientID
	invoice.CustomerName = input.CustomerName
	invoice.TaxRate = input.TaxRate
	invoice.IssuedDate = issuedDate
	invoice.DueDate = dueDate
	applyLineItems(invoice, input.Items)

	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to update invoice: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return invoice, nil
}

func (s *invoiceService) Delete(ctx context.Context, userID, invoiceID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, invoiceID); err != nil {
		return err
	}
	if err := s.invoiceRepo.Delete(ctx, userID, invoiceID); err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	if err := s.subscriptionSvc.RecordUsage(ctx, userID, models.UsageFeatureInvoices, -1); err != nil {
		log.Printf("WARN: failed to record invoice usage for user %s: %v", userID, err)
	}
	s.invalidateDashboard(ctx, userID)
	return nil
}

func (s *invoiceService) List(ctx context.Context, userID uuid.UUID, status string, limit, offset int) ([]*models.Invoice, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	if status != "" {
		if err := common.ValidateInvoiceStatus(status); err != nil {
			return nil, err
		}
		return s.invoiceRepo.ListByStatus(ctx, userID, status, limit, offset)
	}
	return s.invoiceRepo.List(ctx, userID, limit, offset)
}

// UpdateStatus moves an invoice through its lifecycle. Marking paid stamps
// the paid date.
func (s *invoiceService) UpdateStatus(ctx context.Context, userID, invoiceID uuid.UUID, status string) error {
	if err := common.ValidateInvoiceStatus(status); err != nil {
		return err
	}
	if _, err := s.Get(ctx, userID, invoiceID); err != nil {
		return err
	}

	var paidDate *time.Time
	if status == "paid" {
		now := time.Now().UTC()
		paidDate = &now
	}
	if err := s.invoiceRepo.UpdateStatus(ctx, userID, invoiceID, status, paidDate); err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return nil
}

// AttachObject links an uploaded attachment to the invoice and meters its
// size against the storage limit.
func (s *invoiceService) AttachObject(ctx context.Context, userID, invoiceID uuid.UUID, objectName string, sizeBytes int64) error {
	if _, err := s.Get(ctx, userID, invoiceID); err != nil {
		return err
	}
	if err := s.invoiceRepo.SetAttachment(ctx, userID, invoiceID, objectName); err != nil {
		return fmt.Errorf("failed to set invoice attachment: %w", err)
	}

	sizeMB := (sizeBytes + 1024*1024 - 1) / (1024 * 1024)
	if sizeMB > 0 {
		if err := s.subscriptionSvc.RecordUsage(ctx, userID, models.UsageFeatureStorageMB, sizeMB); err != nil {
			log.Printf("WARN: failed to record storage usage for user %s: %v", userID, err)
		}
	}
	return nil
}

// MarkOverdue flips sent invoices past their due date to overdue. Runs
// from the background scheduler.
func (s *invoiceService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return s.invoiceRepo.MarkOverdue(ctx, asOf)
}

func (s *invoiceService) invalidateDashboard(ctx context.Context, userID uuid.UUID) {
	if err := s.cacheSvc.InvalidateDashboard(ctx, userID); err != nil {
		log.Printf("WARN: failed to invalidate dashboard cache for user %s: %v", userID, err)
	}
}

func validateInvoiceInput(input *CreateInvoiceInput) error {
	if err := common.ValidateRequiredString(input.CustomerName, "customer_name"); err != nil {
		return err
	}
	if len(input.Items) == 0 {
		return common.ValidationErrorf("at least one line item is required")
	}
	for _, item := range input.Items {
		if err := common.ValidateLineItem(item.Description, item.Quantity, item.UnitPrice); err != nil {
			return err
		}
	}
	if input.TaxRate < 0 || input.TaxRate > 100 {
		return common.ValidationErrorf("tax_rate must be between 0 and 100")
	}
	if err := common.ValidateDateFormat(input.IssuedDate, "issued_date"); err != nil {
		return err
	}
	return common.ValidateDateFormat(input.DueDate, "due_date")
}

func parseInvoiceDates(issuedStr, dueStr string) (time.Time, time.Time, error) {
	issued := time.Now().UTC().Truncate(24 * time.Hour)
	if issuedStr != "" {
		parsed, err := time.Parse("2006-01-02", issuedStr)
		if err != nil {
			return time.Time{}, time.Time{}, common.ValidationErrorf("issued_date must be in YYYY-MM-DD format")
		}
		issued = parsed
	}

	due := issued.AddDate(0, 0, 30)
	if dueStr != "" {
		parsed, err := time.Parse("2006-01-02", dueStr)
		if err != nil {
			return time.Time{}, time.Time{}, common.ValidationErrorf("due_date must be in YYYY-MM-DD format")
		}
		due = parsed
	}
	if due.Before(issued) {
		return time.Time{}, time.Time{}, common.ValidationErrorf("due_date cannot be before issued_date")
	}
	return issued, due, nil
}

// applyLineItems computes per-item amounts and the invoice totals.
func applyLineItems(invoice *models.Invoice, items []LineItemInput) {
	invoice.Items = make([]models.InvoiceItem, 0, len(items))
	subtotal := 0.0
	for _, item := range items {
		amount := item.Quantity * item.UnitPrice
		subtotal += amount
		invoice.Items = append(invoice.Items, models.InvoiceItem{
			ID:          uuid.New(),
			InvoiceID:   invoice.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
		})
	}
	invoice.Subtotal = subtotal
	invoice.TaxAmount = subtotal * invoice.TaxRate / 100
	invoice.Total = invoice.Subtotal + invoice.TaxAmount
}
