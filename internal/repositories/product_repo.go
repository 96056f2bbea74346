package repositories

import (
	"context"
	"errors"

	"catalog/internal/models"
)

var (
	// ErrNotFound is returned when no live row matches the requested ID.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateName is returned when an active product already uses the name.
	ErrDuplicateName = errors.New("product name already taken")
)

// ProductRepository defines the interface for product data access.
// Soft-deleted products are invisible to every method.
type ProductRepository interface {
	Paginate(ctx context.Context, limit, offset int) ([]models.Product, int64, error)
	Count(ctx context.Context) (int64, error)
	FindByID(ctx context.Context, id uint) (*models.Product, error)
	NameTaken(ctx context.Context, name string, excludeID uint) (bool, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	SoftDelete(ctx context.Context, id uint) error
}
