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

// ClientInput is the create/update payload for a client record.
type ClientInput struct {
	Name    string  `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	Notes   *string `json:"notes"`
}

type ClientService interface {
	Create(ctx context.Context, userID uuid.UUID, input *ClientInput) (*models.Client, error)
	Get(ctx context.Context, userID, clientID uuid.UUID) (*models.Client, error)
	Update(ctx context.Context, userID, clientID uuid.UUID, input *ClientInput) (*models.Client, error)
	Delete(ctx context.Context, userID, clientID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Client, error)
}

type clientService struct {
	clientRepo repositories.ClientRepository
}

func NewClientService(clientRepo repositories.ClientRepository) ClientService {
	return &clientService{clientRepo: clientRepo}
}

func (s *clientService) Create(ctx context.Context, userID uuid.UUID, input *ClientInput) (*models.Client, error) {
	if err := validateClientInput(input); err != nil {
		return nil, err
	}

	client := &models.Client{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    input.Name,
		Email:   input.Email,
		Phone:   input.Phone,
		Address: input.Address,
		Notes:   input.Notes,
	}
	if err := s.clientRepo.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

func (s *clientService) Get(ctx context.Context, userID, clientID uuid.UUID) (*models.Client, error) {
	client, err := s.clientRepo.GetByID(ctx, userID, clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	return client, nil
}

func (s *clientService) Update(ctx context.Context, userID, clientID uuid.UUID, input *ClientInput) (*models.Client, error) {
	if err := validateClientInput(input); err != nil {
		return nil, err
	}

	client, err := s.Get(ctx, userID, clientID)
	if err != nil {
		return nil, err
	}

	client.Name = input.Name
	client.Email = input.Email
	client.Phone = input.Phone
	client.Address = input.Address
	client.Notes = input.Notes

	if err := s.clientRepo.Update(ctx, client); err != nil {
		return nil, fmt.Errorf("failed to update client: %w", err)
	}
	return client, nil
}

func (s *clientService) Delete(ctx context.Context, userID, clientID uuid.UUID) error {
	if _, err := s.Get(ctx, userID, clientID); err != nil {
		return err
	}
	if err := s.clientRepo.Delete(ctx, userID, clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}

func (s *clientService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Client, error) {
	limit, offset = common.ValidatePaginationParams(limit, offset)
	return s.clientRepo.List(ctx, userID, limit, offset)
}

func validateClientInput(input *ClientInput) error {
	if err := common.ValidateRequiredString(input.Name, "name"); err != nil {
		return err
	}
	if input.Email != nil && *input.Email != "" {
		if err := common.ValidateEmail(*input.Email); err != nil {
			return err
		}
	}
	return nil
}
