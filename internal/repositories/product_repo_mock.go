package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"catalog/internal/models"

	"gorm.io/gorm"
)

// MockProductRepository is an in-memory implementation of ProductRepository.
// Soft-deleted products stay in the map with DeletedAt set.
type MockProductRepository struct {
	products map[uint]models.Product
	nextID   uint
	mu       sync.RWMutex
}

// NewMockProductRepository creates a new instance of MockProductRepository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[uint]models.Product),
	}
}

// Paginate returns live products ordered by ID descending.
func (r *MockProductRepository) Paginate(_ context.Context, limit, offset int) ([]models.Product, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		if !p.DeletedAt.Valid {
			live = append(live, p)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID > live[j].ID })

	total := int64(len(live))
	if offset < 0 || offset >= len(live) {
		return []models.Product{}, total, nil
	}
	end := offset + limit
	if end > len(live) {
		end = len(live)
	}
	return live[offset:end], total, nil
}

// Count returns the number of live products.
func (r *MockProductRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, p := range r.products {
		if !p.DeletedAt.Valid {
			total++
		}
	}
	return total, nil
}

// FindByID returns a live product by its ID.
func (r *MockProductRepository) FindByID(_ context.Context, id uint) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok || product.DeletedAt.Valid {
		return nil, ErrNotFound
	}
	return &product, nil
}

// NameTaken reports whether a live product other than excludeID uses name.
func (r *MockProductRepository) NameTaken(_ context.Context, name string, excludeID uint) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.nameTakenLocked(name, excludeID), nil
}

func (r *MockProductRepository) nameTakenLocked(name string, excludeID uint) bool {
	for id, p := range r.products {
		if id != excludeID && !p.DeletedAt.Valid && p.Name == name {
			return true
		}
	}
	return false
}

// Create adds a new product and assigns its ID.
func (r *MockProductRepository) Create(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nameTakenLocked(product.Name, 0) {
		return ErrDuplicateName
	}
	r.nextID++
	now := time.Now()
	product.ID = r.nextID
	product.CreatedAt = now
	product.UpdatedAt = now
	r.products[product.ID] = *product
	return nil
}

// Update replaces an existing live product.
func (r *MockProductRepository) Update(_ context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[product.ID]
	if !ok || existing.DeletedAt.Valid {
		return ErrNotFound
	}
	if r.nameTakenLocked(product.Name, product.ID) {
		return ErrDuplicateName
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now()
	r.products[product.ID] = *product
	return nil
}

// SoftDelete marks a live product as deleted.
func (r *MockProductRepository) SoftDelete(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok || product.DeletedAt.Valid {
		return ErrNotFound
	}
	product.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	r.products[id] = product
	return nil
}
