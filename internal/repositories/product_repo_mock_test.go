package repositories

import (
	"context"
	"testing"

	"catalog/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockProductRepository_SoftDeleteHidesProduct(t *testing.T) {
	repo := NewMockProductRepository()
	ctx := context.Background()

	product := &models.Product{Name: "Pen"}
	require.NoError(t, repo.Create(ctx, product))
	assert.ErrorIs(t, repo.Create(ctx, &models.Product{Name: "Pen"}), ErrDuplicateName)

	require.NoError(t, repo.SoftDelete(ctx, product.ID))
	_, err := repo.FindByID(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, product), ErrNotFound)

	products, total, err := repo.Paginate(ctx, 5, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, products)

	assert.NoError(t, repo.Create(ctx, &models.Product{Name: "Pen"}))
}
