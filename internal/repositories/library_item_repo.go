package repositories

import (
	"context"

	"buildledger/internal/models"

	"github.com/google/uuid"
)

type LibraryItemRepository interface {
	Create(ctx context.Context, item *models.LibraryItem) error
	GetByID(ctx context.Context, userID, id uuid.UUID) (*models.LibraryItem, error)
	Update(ctx context.Context, item *models.LibraryItem) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.LibraryItem, error)
	Search(ctx context.Context, userID uuid.UUID, query string, limit, offset int) ([]*models.LibraryItem, error)
}

type libraryItemRepo struct {
	db DB
}

func NewLibraryItemRepo(db DB) LibraryItemRepository {
	return &libraryItemRepo{db: db}
}

func (r *libraryItemRepo) Create(ctx context.Context, item *models.LibraryItem) error {
	query := `
		INSERT INTO library_items (id, user_id, name, description, unit, unit_price, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, item.ID, item.UserID, item.Name, item.Description, item.Unit, item.UnitPrice, item.Category)
	return err
}

func (r *libraryItemRepo) GetByID(ctx context.Context, userID, id uuid.UUID) (*models.LibraryItem, error) {
	item := &models.LibraryItem{}
	query := `
		SELECT id, user_id, name, description, unit, unit_price, category, created_at, updated_at
		FROM library_items
		WHERE user_id = $1 AND id = $2
	`
	err := r.db.QueryRow(ctx, query, userID, id).Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.Unit, &item.UnitPrice, &item.Category, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *libraryItemRepo) Update(ctx context.Context, item *models.LibraryItem) error {
	query := `
		UPDATE library_items
		SET name = $1, description = $2, unit = $3, unit_price = $4, category = $5, updated_at = NOW()
		WHERE user_id = $6 AND id = $7
	`
	_, err := r.db.Exec(ctx, query, item.Name, item.Description, item.Unit, item.UnitPrice, item.Category, item.UserID, item.ID)
	return err
}

func (r *libraryItemRepo) Delete(ctx context.Context, userID, id uuid.UUID) error {
	query := `DELETE FROM library_items WHERE user_id = $1 AND id = $2`
	_, err := r.db.Exec(ctx, query, userID, id)
	return err
}

func (r *libraryItemRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.LibraryItem, error) {
	query := `
		SELECT id, user_id, name, description, unit, unit_price, category, created_at, updated_at
		FROM library_items
		WHERE user_id = $1
		ORDER BY name ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.LibraryItem
	for rows.Next() {
		item := &models.LibraryItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.Unit, &item.UnitPrice, &item.Category, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *libraryItemRepo) Search(ctx context.Context, userID uuid.UUID, search string, limit, offset int) ([]*models.LibraryItem, error) {
	query := `
		SELECT id, user_id, name, description, unit, unit_price, category, created_at, updated_at
		FROM library_items
		WHERE user_id = $1 AND (name ILIKE '%' || $2 || '%' OR category ILIKE '%' || $2 || '%')
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, userID, search, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.LibraryItem
	for rows.Next() {
		item := &models.LibraryItem{}
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.Description, &item.Unit, &item.UnitPrice, &item.Category, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
