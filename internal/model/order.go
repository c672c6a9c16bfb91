package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderState represents the checkout state of an order.
type OrderState string

const (
	OrderStateCart           OrderState = "cart"
	OrderStateAddress        OrderState = "address"
	OrderStateDelivery       OrderState = "delivery"
	OrderStatePayment        OrderState = "payment"
	OrderStateConfirm        OrderState = "confirm"
	OrderStateComplete       OrderState = "complete"
	OrderStateCanceled       OrderState = "canceled"
	OrderStateAwaitingReturn OrderState = "awaiting_return"
	OrderStateReturned       OrderState = "returned"
)

// Order is the purchase a gift card pays for or originates from.
type Order struct {
	ID           uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	Number       string          `json:"number" gorm:"size:64;not null;uniqueIndex"`
	UserID       *uuid.UUID      `json:"user_id,omitempty" gorm:"type:char(36);index"`
	Email        string          `json:"email" gorm:"size:255"`
	State        OrderState      `json:"state" gorm:"type:varchar(32);not null;default:'cart';index"`
	Total        decimal.Decimal `json:"total" gorm:"type:decimal(20,2);not null;default:0"`
	PaymentTotal decimal.Decimal `json:"payment_total" gorm:"type:decimal(20,2);not null;default:0"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Relations
	User      *User      `json:"-" gorm:"foreignKey:UserID"`
	LineItems []LineItem `json:"line_items,omitempty" gorm:"foreignKey:OrderID"`
}

// BeforeCreate sets UUID before creating the record.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// Completed reports whether checkout finished.
func (o *Order) Completed() bool {
	return o.CompletedAt != nil
}

// OutstandingBalance is what is still owed on the order.
func (o *Order) OutstandingBalance() decimal.Decimal {
	return o.Total.Sub(o.PaymentTotal)
}

// LineItem is one purchased variant on an order.
type LineItem struct {
	ID        uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	OrderID   uuid.UUID       `json:"order_id" gorm:"type:char(36);not null;index"`
	VariantID uuid.UUID       `json:"variant_id" gorm:"type:char(36);not null;index"`
	Quantity  int             `json:"quantity" gorm:"not null;default:1"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(20,2);not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Relations
	Order   *Order   `json:"-" gorm:"foreignKey:OrderID"`
	Variant *Variant `json:"-" gorm:"foreignKey:VariantID"`
}

// BeforeCreate sets UUID before creating the record.
func (li *LineItem) BeforeCreate(tx *gorm.DB) error {
	if li.ID == uuid.Nil {
		li.ID = uuid.New()
	}
	return nil
}

// Amount is the line total.
func (li *LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}
