package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StoreCreditCategoryGiftCard tags credit granted by gift card redemption.
const StoreCreditCategoryGiftCard = "Gift Card"

// StoreCredit is a credit grant held by a user.
// Lower Priority values are consumed first.
type StoreCredit struct {
	ID               uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	UserID           uuid.UUID       `json:"user_id" gorm:"type:char(36);not null;index"`
	CreatedByID      *uuid.UUID      `json:"created_by_id,omitempty" gorm:"type:char(36)"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null"`
	AmountUsed       decimal.Decimal `json:"amount_used" gorm:"type:decimal(20,2);not null;default:0"`
	AmountAuthorized decimal.Decimal `json:"amount_authorized" gorm:"type:decimal(20,2);not null;default:0"`
	Currency         string          `json:"currency" gorm:"size:3;not null;default:'USD'"`
	Category         string          `json:"category" gorm:"size:64;not null;index"`
	Priority         int             `json:"priority" gorm:"not null;default:0;index"`
	Memo             string          `json:"memo,omitempty" gorm:"type:text"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID"`
}

// BeforeCreate sets UUID before creating the record.
func (s *StoreCredit) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// AmountRemaining is what the credit can still cover.
func (s *StoreCredit) AmountRemaining() decimal.Decimal {
	return s.Amount.Sub(s.AmountUsed).Sub(s.AmountAuthorized)
}
