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

// CompanyInput is the business profile shown on invoice and quote headers.
type CompanyInput struct {
	Name    string  `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
}

type CompanyService interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.Company, error)
	Upsert(ctx context.Context, userID uuid.UUID, input *CompanyInput) (*models.Company, error)
}

type companyService struct {
	companyRepo repositories.CompanyRepository
	userRepo    repositories.UserRepository
}

func NewCompanyService(companyRepo repositories.CompanyRepository, userRepo repositories.UserRepository) CompanyService {
	return &companyService{companyRepo: companyRepo, userRepo: userRepo}
}

func (s *companyService) Get(ctx context.Context, userID uuid.UUID) (*models.Company, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.CompanyID == nil {
		return nil, common.ErrNotFound
	}

	company, err := s.companyRepo.GetByID(ctx, *user.CompanyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	return company, nil
}

// Upsert creates the user's company profile on first save and updates it
// afterwards.
func (s *companyService) Upsert(ctx context.Context, userID uuid.UUID, input *CompanyInput) (*models.Company, error) {
	if err := common.ValidateRequiredString(input.Name, "name"); err != nil {
		return nil, err
	}
	if input.Email != nil && *input.Email != "" {
		if err := common.ValidateEmail(*input.Email); err != nil {
			return nil, err
		}
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.CompanyID == nil {
		company := &models.Company{
			ID:      uuid.New(),
			Name:    input.Name,
			Address: input.Address,
			Phone:   input.Phone,
			Email:   input.Email,
		}
		if err := s.companyRepo.Create(ctx, company); err != nil {
			return nil, fmt.Errorf("failed to create company: %w", err)
		}
		user.CompanyID = &company.ID
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to link company: %w", err)
		}
		return company, nil
	}

	company, err := s.companyRepo.GetByID(ctx, *user.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	company.Name = input.Name
	company.Address = input.Address
	company.Phone = input.Phone
	company.Email = input.Email
	if err := s.companyRepo.Update(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	return company, nil
}
