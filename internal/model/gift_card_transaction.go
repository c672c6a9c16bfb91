package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionAction identifies the kind of ledger entry.
type TransactionAction string

const (
	ActionAuthorize TransactionAction = "authorize"
	ActionCapture   TransactionAction = "capture"
	ActionVoid      TransactionAction = "void"
	ActionCredit    TransactionAction = "credit"
	ActionDebit     TransactionAction = "debit"
)

// GiftCardTransaction is one immutable entry in a card's ledger.
// Rows are only ever inserted.
type GiftCardTransaction struct {
	ID                uuid.UUID         `json:"id" gorm:"type:char(36);primaryKey"`
	GiftCardID        uuid.UUID         `json:"gift_card_id" gorm:"type:char(36);not null;index"`
	OrderID           *uuid.UUID        `json:"order_id,omitempty" gorm:"type:char(36);index"`
	OrderNumber       string            `json:"order_number,omitempty" gorm:"size:64;index"`
	Action            TransactionAction `json:"action" gorm:"type:varchar(16);not null;index"`
	Amount            decimal.Decimal   `json:"amount" gorm:"type:decimal(20,2);not null"`
	AuthorizationCode string            `json:"authorization_code,omitempty" gorm:"size:64;index"`
	CreatedAt         time.Time         `json:"created_at"`

	// Relations
	GiftCard GiftCard `json:"-" gorm:"foreignKey:GiftCardID"`
}

// TableName pins the persisted table name.
func (GiftCardTransaction) TableName() string {
	return "gift_card_transactions"
}

// BeforeCreate sets UUID before creating the record.
func (t *GiftCardTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// OrderRef identifies the order a ledger entry is made for. Both fields are optional.
type OrderRef struct {
	OrderID     *uuid.UUID
	OrderNumber string
}
