package repositories

import (
	"context"
	"errors"

	"catalog/internal/models"
)

// ErrDuplicateUser is returned when the username or email is already registered.
var ErrDuplicateUser = errors.New("user already exists")

// UserRepository defines the interface for user data access.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
}
