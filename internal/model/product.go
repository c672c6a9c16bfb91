package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product is a purchasable catalog entry.
type Product struct {
	ID          uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Slug        string    `json:"slug" gorm:"size:255;uniqueIndex"`
	IsGiftCard  bool      `json:"is_gift_card" gorm:"not null;default:false;index"`
	IsEGiftCard bool      `json:"is_e_gift_card" gorm:"not null;default:false;index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// InventoryExempt reports whether units of the product are never stock-checked.
// Gift cards are minted on purchase, so both physical and electronic ones are exempt.
func (p *Product) InventoryExempt() bool {
	return p.IsGiftCard || p.IsEGiftCard
}

// Variant is the purchasable unit (SKU) of a product.
type Variant struct {
	ID        uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	ProductID uuid.UUID       `json:"product_id" gorm:"type:char(36);not null;index"`
	SKU       string          `json:"sku" gorm:"size:64;not null;index"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Relations
	Product *Product `json:"-" gorm:"foreignKey:ProductID"`
}

// BeforeCreate sets UUID before creating the record.
func (v *Variant) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
