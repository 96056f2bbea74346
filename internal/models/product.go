package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a catalog product.
//
// Name uniqueness only applies to rows that are not soft-deleted, so the
// index is partial on deleted_at.
type Product struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	Name        string          `json:"name" gorm:"size:255;not null;uniqueIndex:idx_products_name_active,where:deleted_at IS NULL"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	CategoryID  uint            `json:"category_id" gorm:"not null;index"`
	Category    *Category       `json:"category,omitempty" gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Active      int             `json:"active" gorm:"not null"`
	Image       *string         `json:"image" gorm:"size:255"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `json:"deleted_at" gorm:"index"`
}

// ImagePath returns the stored image path, or "" when the product has none.
func (p *Product) ImagePath() string {
	if p.Image == nil {
		return ""
	}
	return *p.Image
}
