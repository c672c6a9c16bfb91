package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentState represents the state of an order payment.
type PaymentState string

const (
	PaymentStateCheckout   PaymentState = "checkout"
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateCompleted  PaymentState = "completed"
	PaymentStateFailed     PaymentState = "failed"
	PaymentStateVoid       PaymentState = "void"
	PaymentStateInvalid    PaymentState = "invalid"
)

// InvalidPaymentStates are excluded from applied totals.
var InvalidPaymentStates = []PaymentState{
	PaymentStateFailed,
	PaymentStateVoid,
	PaymentStateInvalid,
}

// PaymentSourceType identifies what funds a payment.
type PaymentSourceType string

const (
	PaymentSourceGiftCard    PaymentSourceType = "gift_card"
	PaymentSourceStoreCredit PaymentSourceType = "store_credit"
)

// Payment is one funding source's contribution to an order.
type Payment struct {
	ID           uuid.UUID         `json:"id" gorm:"type:char(36);primaryKey"`
	OrderID      uuid.UUID         `json:"order_id" gorm:"type:char(36);not null;index"`
	SourceType   PaymentSourceType `json:"source_type" gorm:"type:varchar(32);not null;index"`
	SourceID     uuid.UUID         `json:"source_id" gorm:"type:char(36);not null;index"`
	Amount       decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	State        PaymentState      `json:"state" gorm:"type:varchar(20);not null;default:'checkout';index"`
	ResponseCode string            `json:"response_code,omitempty" gorm:"size:64"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`

	// Relations
	Order Order `json:"-" gorm:"foreignKey:OrderID"`
}

// BeforeCreate sets UUID before creating the record.
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Valid reports whether the payment counts toward applied totals.
func (p *Payment) Valid() bool {
	for _, state := range InvalidPaymentStates {
		if p.State == state {
			return false
		}
	}
	return true
}
