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

// CreateQuoteInput carries everything needed to create a quote.
type CreateQuoteInput struct {
	ClientID     *uuid.UUID      `json:"client_id"`
	CustomerName string          `json:"customer_name"`
	TaxRate      float64         `json:"tax_rate"`
	ValidUntil   string          `json:"valid_until"`
	Items        []LineItemInput `json:"items"`
}

type QuoteService interface {
	Create(ctx context.Context, userID uuid.UUID, input *CreateQuoteInput) (*models.Quote, error)
	Get(ctx context.Context, userID, quoteID uuid.UUID) (*models.Quote, error)
	Update(ctx context.Context, userID, quoteID uuid.UUID, input *CreateQuoteInput) (*models.Quote, error)
	Delete(ctx context.Context, userID, quoteID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Quote, error)
	UpdateStatus(ctx context.Context, userID, quoteID uuid.UUID, status string) error
	ConvertToInvoice(ctx context.Context, userID, quoteID uuid.UUID) (*models.Invoice, error)
}

type quoteService struct {
	quoteRepo  repositories.QuoteRepository
	clientRepo repositories.ClientRepository
	invoiceSvc InvoiceService
	cacheSvc   caching.CacheService
}

func NewQuoteService(
	quoteRepo repositories.QuoteRepository,
	clientRepo repositories.ClientRepository,
	invoiceSvc InvoiceService,
	cacheSvc caching.CacheService,
) QuoteService {
	return &quoteService{
		quoteRepo:  quoteRepo,
		clientRepo: clientRepo,
		invoiceSvc: invoiceSvc,
		cacheSvc:   cacheSvc,
	}
}

func (s *quoteService) Create(ctx context.Context, userID uuid.UUID, input *CreateQuoteInput) (*models.Quote, error) {
	if err := validateQuoteInput(input); err != nil {
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

	validUntil, err := parseValidUntil(input.ValidUntil)
	if err != nil {
		return nil, err
	}

	quote := &models.Quote{
		ID:           uuid.New(),
		UserID:       userID,
		ClientID:     input.ClientID,
		CustomerName: input.CustomerName,
		Status:       "draft",
		TaxRate:      input.TaxRate,
		PublicToken:  uuid.New(),
		ValidUntil:   validUntil,
	}
	applyQuoteItems(quote, input.Items)

	number, err := s.quoteRepo.GenerateQuoteNumber(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to generate quote number: %w", err)
	}
	quote.QuoteNumber = number

	if err := s.quoteRepo.Create(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to create quote: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return quote, nil
}

func (s *quoteService) Get(ctx context.Context, userID, quoteID uuid.UUID) (*models.Quote, error) {
	quote, err := s.quoteRepo.GetByID(ctx, userID, quoteID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load quote: %w", err)
	}

	items, err := s.quoteRepo.GetItems(ctx, quote.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quote items: %w", err)
	}
	quote.Items = items
	return quote, nil
}

// Update replaces the quote fields and items. Converted quotes are frozen.
func (s *quoteService) Update(ctx context.Context, userID, quoteID uuid.UUID, input *CreateQuoteInput) (*models.Quote, error) {
	if err := validateQuoteInput(input); err != nil {
		return nil, err
	}

	quote, err := s.Get(ctx, userID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status == "converted" {
		return nil, common.ValidationErrorf("converted quotes cannot be modified")
	}

	validUntil, err := parseValidUntil(input.ValidUntil)
	if err != nil {
		return nil, err
	}

	quote.ClientID = input.ClientID
	quote.CustomerName = input.CustomerName
	quote.TaxRate = input.TaxRate
	quote.ValidUntil = validUntil
	applyQuoteItems(quote, input.Items)

	if err := s.quoteRepo.Update(ctx, quote); err != nil {
		return nil, fmt.Errorf("failed to update quote: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return quote, nil
}

func (s *quoteService) Delete(ctx context.Context, userID, quoteID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, quoteID); err != nil {
		return err
	}
	if err := s.quoteRepo.Delete(ctx, userID, quoteID); err != nil {
		return fmt.Errorf("failed to delete quote: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return nil
}

func (s *quoteService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Quote, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	return s.quoteRepo.List(ctx, userID, limit, offset)
}

func (s *quoteService) UpdateStatus(ctx context.Context, userID, quoteID uuid.UUID, status string) error {
	if err := common.ValidateQuoteStatus(status); err != nil {
		return err
	}
	if status == "converted" {
		return common.ValidationErrorf("use the convert endpoint to convert a quote")
	}

	quote, err := s.Get(ctx, userID, quoteID)
	if err != nil {
		return err
	}
	if quote.Status == "converted" {
		return common.ValidationErrorf("converted quotes cannot change status")
	}

	if err := s.quoteRepo.UpdateStatus(ctx, userID, quoteID, status); err != nil {
		return fmt.Errorf("failed to update quote status: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return nil
}

// ConvertToInvoice creates an invoice from an accepted quote and marks the
// quote converted with a link to the new invoice.
func (s *quoteService) ConvertToInvoice(ctx context.Context, userID, quoteID uuid.UUID) (*models.Invoice, error) {
	quote, err := s.Get(ctx, userID, quoteID)
	if err != nil {
		return nil, err
	}
	if quote.Status == "converted" {
		return nil, common.ValidationErrorf("quote is already converted")
	}
	if quote.Status != "accepted" {
		return nil, common.ValidationErrorf("only accepted quotes can be converted")
	}

	input := &CreateInvoiceInput{
		ClientID:     quote.ClientID,
		CustomerName: quote.CustomerName,
		TaxRate:      quote.TaxRate,
		Items:        make([]LineItemInput, 0, len(quote.Items)),
	}
	for _, item := range quote.Items {
		input.Items = append(input.Items, LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	invoice, err := s.invoiceSvc.Create(ctx, userID, input)
	if err != nil {
		return nil, err
	}

	if err := s.quoteRepo.MarkConverted(ctx, userID, quoteID, invoice.ID); err != nil {
		// The invoice exists either way; surface the link failure.
		log.Printf("WARN: invoice %s created but quote %s not marked converted: %v", invoice.ID, quoteID, err)
		return nil, fmt.Errorf("failed to mark quote converted: %w", err)
	}
	s.invalidateDashboard(ctx, userID)
	return invoice, nil
}

func (s *quoteService) invalidateDashboard(ctx context.Context, userID uuid.UUID) {
	if err := s.cacheSvc.InvalidateDashboard(ctx, userID); err != nil {
		log.Printf("WARN: failed to invalidate dashboard cache for user %s: %v", userID, err)
	}
}

func validateQuoteInput(input *CreateQuoteInput) error {
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
	return common.ValidateDateFormat(input.ValidUntil, "valid_until")
}

func parseValidUntil(validUntilStr string) (*time.Time, error) {
	if validUntilStr == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", validUntilStr)
	if err != nil {
		return nil, common.ValidationErrorf("valid_until must be in YYYY-MM-DD format")
	}
	return &parsed, nil
}

func applyQuoteItems(quote *models.Quote, items []LineItemInput) {
	quote.Items = make([]models.QuoteItem, 0, len(items))
	subtotal := 0.0
	for _, item := range items {
		amount := item.Quantity * item.UnitPrice
		subtotal += amount
		quote.Items = append(quote.Items, models.QuoteItem{
			ID:          uuid.New(),
			QuoteID:     quote.ID,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
		})
	}
	quote.Subtotal = subtotal
	quote.TaxAmount = subtotal * quote.TaxRate / 100
	quote.Total = quote.Subtotal + quote.TaxAmount
}
