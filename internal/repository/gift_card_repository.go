package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// GiftCardRepository defines gift card persistence operations.
type GiftCardRepository interface {
	Create(ctx context.Context, card *model.GiftCard) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.GiftCard, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.GiftCard, error)
	FindByCode(ctx context.Context, code string) (*model.GiftCard, error)
	FindByLineItemIDs(ctx context.Context, lineItemIDs []uuid.UUID) ([]model.GiftCard, error)
	FindDeliverable(ctx context.Context, now time.Time) ([]model.GiftCard, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	UpdateBalances(ctx context.Context, card *model.GiftCard) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	// Wallet
	AddOwner(ctx context.Context, userID, cardID uuid.UUID) error
	HasOwner(ctx context.Context, userID, cardID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.GiftCard, error)
}

type giftCardRepository struct {
	db *gorm.DB
}

// NewGiftCardRepository creates a new gift card repository.
func NewGiftCardRepository(db *gorm.DB) GiftCardRepository {
	return &giftCardRepository{db: db}
}

// Create inserts a new gift card. Relations are never upserted.
func (r *giftCardRepository) Create(ctx context.Context, card *model.GiftCard) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(card).Error
}

// FindByID finds a gift card by ID.
func (r *giftCardRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.GiftCard, error) {
	var card model.GiftCard
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByIDForUpdate finds a gift card by ID holding a row lock until the transaction ends.
func (r *giftCardRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.GiftCard, error) {
	var card model.GiftCard
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByCode finds a gift card by its redemption code, ignoring case.
func (r *giftCardRepository) FindByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	var card model.GiftCard
	if err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByLineItemIDs lists cards issued from any of the given line items.
func (r *giftCardRepository) FindByLineItemIDs(ctx context.Context, lineItemIDs []uuid.UUID) ([]model.GiftCard, error) {
	var cards []model.GiftCard
	if len(lineItemIDs) == 0 {
		return cards, nil
	}
	if err := r.db.WithContext(ctx).
		Where("line_item_id IN ?", lineItemIDs).
		Order("created_at ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// FindDeliverable lists active, unsent cards attached to a line item whose delivery date has passed.
func (r *giftCardRepository) FindDeliverable(ctx context.Context, now time.Time) ([]model.GiftCard, error) {
	var cards []model.GiftCard
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Where("line_item_id IS NOT NULL").
		Where("sent_at IS NULL").
		Where("delivery_on IS NOT NULL AND delivery_on <= ?", now).
		Order("delivery_on ASC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

// CodeExists reports whether code is already taken.
func (r *giftCardRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.GiftCard{}).
		Where("code = ?", strings.ToUpper(code)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateBalances persists the card's current and authorized amounts.
func (r *giftCardRepository) UpdateBalances(ctx context.Context, card *model.GiftCard) error {
	return r.db.WithContext(ctx).Model(&model.GiftCard{}).
		Where("id = ?", card.ID).
		Updates(map[string]interface{}{
			"current_value":     card.CurrentValue,
			"authorized_amount": card.AuthorizedAmount,
			"updated_at":        time.Now(),
		}).Error
}

// MarkSent sets sent_at once. It reports false when the card was already sent.
func (r *giftCardRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.GiftCard{}).
		Where("id = ? AND sent_at IS NULL", id).
		Updates(map[string]interface{}{"sent_at": at, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Deactivate clears the active flag.
func (r *giftCardRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&model.GiftCard{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddOwner links the card into the user's wallet. Linking twice is a no-op.
func (r *giftCardRepository) AddOwner(ctx context.Context, userID, cardID uuid.UUID) error {
	link := &model.UserGiftCard{UserID: userID, GiftCardID: cardID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(link).Error
}

// HasOwner reports whether the card is in the user's wallet.
func (r *giftCardRepository) HasOwner(ctx context.Context, userID, cardID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.UserGiftCard{}).
		Where("user_id = ? AND gift_card_id = ?", userID, cardID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUser lists the cards in a user's wallet, newest first.
func (r *giftCardRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.GiftCard, error) {
	var cards []model.GiftCard
	if err := r.db.WithContext(ctx).
		Joins("JOIN user_gift_cards ON user_gift_cards.gift_card_id = gift_cards.id").
		Where("user_gift_cards.user_id = ?", userID).
		Order("gift_cards.created_at DESC").
		Find(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}
