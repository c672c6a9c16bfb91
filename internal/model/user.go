package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a storefront customer. Users hold store credit and a gift card wallet.
type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// EmailMatches compares e-mail addresses the way they are stored: trimmed and case-insensitive.
func (u *User) EmailMatches(email string) bool {
	return strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(email))
}

// UserGiftCard links a card into a user's wallet. A card may have many owners.
type UserGiftCard struct {
	UserID     uuid.UUID `json:"user_id" gorm:"type:char(36);primaryKey"`
	GiftCardID uuid.UUID `json:"gift_card_id" gorm:"type:char(36);primaryKey"`
	CreatedAt  time.Time `json:"created_at"`
}
