package services

import (
	"context"
	"errors"
	"fmt"

	"buildledger/internal/common"
	"buildledger/internal/models"
	"buildledger/internal/repositories"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LibraryItemInput is the create/update payload for a reusable billable item.
type LibraryItemInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Unit        *string `json:"unit"`
	UnitPrice   float64 `json:"unit_price"`
	Category    *string `json:"category"`
}

type LibraryService interface {
	Create(ctx context.Context, userID uuid.UUID, input *LibraryItemInput) (*models.LibraryItem, error)
	Get(ctx context.Context, userID, itemID uuid.UUID) (*models.LibraryItem, error)
	Update(ctx context.Context, userID, itemID uuid.UUID, input *LibraryItemInput) (*models.LibraryItem, error)
	Delete(ctx context.Context, userID, itemID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, query string, limit, offset int) ([]*models.LibraryItem, error)
}

type libraryService struct {
	itemRepo repositories.LibraryItemRepository
}

func NewLibraryService(itemRepo repositories.LibraryItemRepository) LibraryService {
	return &libraryService{itemRepo: itemRepo}
}

func (s *libraryService) Create(ctx context.Context, userID uuid.UUID, input *LibraryItemInput) (*models.LibraryItem, error) {
	if err := validateLibraryItemInput(input); err != nil {
		return nil, err
	}

	item := &models.LibraryItem{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        input.Name,
		Description: input.Description,
		Unit:        input.Unit,
		UnitPrice:   input.UnitPrice,
		Category:    input.Category,
	}
	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create library item: %w", err)
	}
	return item, nil
}

func (s *libraryService) Get(ctx context.Context, userID, itemID uuid.UUID) (*models.LibraryItem, error) {
	item, err := s.itemRepo.GetByID(ctx, userID, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load library item: %w", err)
	}
	return item, nil
}

func (s *libraryService) Update(ctx context.Context, userID, itemID uuid.UUID, input *LibraryItemInput) (*models.LibraryItem, error) {
	if err := validateLibraryItemInput(input); err != nil {
		return nil, err
	}

	item, err := s.Get(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}

	item.Name = input.Name
	item.Description = input.Description
	item.Unit = input.Unit
	item.UnitPrice = input.UnitPrice
	item.Category = input.Category

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update library item: %w", err)
	}
	return item, nil
}

func (s *libraryService) Delete(ctx context.Context, userID, itemID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, itemID); err != nil {
		return err
	}
	if err := s.itemRepo.Delete(ctx, userID, itemID); err != nil {
		return fmt.Errorf("failed to delete library item: %w", err)
	}
	return nil
}

func (s *libraryService) List(ctx context.Context, userID uuid.UUID, query string, limit, offset int) ([]*models.LibraryItem, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	if query != "" {
		return s.itemRepo.Search(ctx, userID, query, limit, offset)
	}
	return s.itemRepo.List(ctx, userID, limit, offset)
}

func validateLibraryItemInput(input *LibraryItemInput) error {
	if err := common.ValidateRequiredString(input.Name, "name"); err != nil {
		return err
	}
	if input.UnitPrice < 0 {
		return common.ValidationErrorf("unit_price cannot be negative")
	}
	return nil
}
