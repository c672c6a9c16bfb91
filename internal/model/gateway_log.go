package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GatewayLog records a payment adapter call.
// All calls are logged regardless of success or decline.
type GatewayLog struct {
	ID                uuid.UUID       `json:"id" gorm:"type:char(36);primaryKey"`
	GiftCardID        *uuid.UUID      `json:"gift_card_id,omitempty" gorm:"type:char(36);index"`
	Action            string          `json:"action" gorm:"type:varchar(16);not null;index"`
	Amount            decimal.Decimal `json:"amount" gorm:"type:decimal(20,2);not null;default:0"`
	AuthorizationCode string          `json:"authorization_code,omitempty" gorm:"size:64;index"`
	Success           bool            `json:"success" gorm:"not null;index"`
	Message           string          `json:"message,omitempty" gorm:"type:text"`
	Options           datatypes.JSON  `json:"options,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// BeforeCreate sets UUID before creating the record.
func (l *GatewayLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
