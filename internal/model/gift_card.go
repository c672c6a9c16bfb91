package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UnactivatableOrderStates are order states in which a card can no longer be applied.
var UnactivatableOrderStates = []OrderState{
	OrderStateComplete,
	OrderStateAwaitingReturn,
	OrderStateReturned,
}

// GiftCard is a redeemable instrument carrying a monetary balance.
//
// CurrentValue is the face balance and AuthorizedAmount the sum of outstanding
// holds. Both only change through the ledger, together with one new
// GiftCardTransaction row.
type GiftCard struct {
	ID               uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	VariantID        uuid.UUID       `json:"variant_id" gorm:"type:char(36);not null;index"`
	LineItemID       *uuid.UUID      `json:"line_item_id,omitempty" gorm:"type:char(36);index"`
	Code             string          `json:"code" gorm:"size:32;not null;uniqueIndex"`
	Email            string          `json:"email" gorm:"size:255;not null"`
	Name             string          `json:"name" gorm:"size:255;not null"`
	SenderEmail      string          `json:"sender_email,omitempty" gorm:"size:255"`
	SenderName       string          `json:"sender_name,omitempty" gorm:"size:255"`
	Note             string          `json:"note,omitempty" gorm:"type:text"`
	CurrentValue     decimal.Decimal `json:"current_value" gorm:"type:decimal(20,2);not null"`
	AuthorizedAmount decimal.Decimal `json:"authorized_amount" gorm:"type:decimal(20,2);not null;default:0"`
	OriginalValue    decimal.Decimal `json:"original_value" gorm:"type:decimal(20,2);not null"`
	Active           bool            `json:"active" gorm:"not null;default:true;index"`
	DeliveryOn       *time.Time      `json:"delivery_on,omitempty" gorm:"index"`
	SentAt           *time.Time      `json:"sent_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relations
	Variant  *Variant  `json:"-" gorm:"foreignKey:VariantID"`
	LineItem *LineItem `json:"-" gorm:"foreignKey:LineItemID"`
}

// TableName pins the persisted table name.
func (GiftCard) TableName() string {
	return "gift_cards"
}

// BeforeCreate sets UUID before creating the record.
func (g *GiftCard) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// AmountRemaining is the value still available for new holds.
func (g *GiftCard) AmountRemaining() decimal.Decimal {
	return g.CurrentValue.Sub(g.AuthorizedAmount)
}

// Exhausted reports whether nothing is left to spend.
func (g *GiftCard) Exhausted() bool {
	return !g.AmountRemaining().IsPositive()
}

// OrderActivatable reports whether the card may be applied to order.
func (g *GiftCard) OrderActivatable(order *Order) bool {
	if order == nil {
		return false
	}
	if !g.CreatedAt.Before(order.CreatedAt) || !g.CurrentValue.IsPositive() {
		return false
	}
	for _, state := range UnactivatableOrderStates {
		if order.State == state {
			return false
		}
	}
	return true
}

// Deliverable reports whether the card is due for e-mail delivery at now.
func (g *GiftCard) Deliverable(now time.Time) bool {
	return g.Active &&
		g.LineItemID != nil &&
		g.SentAt == nil &&
		g.DeliveryOn != nil &&
		!g.DeliveryOn.After(now)
}
