package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"giftledger/internal/model"
)

// GiftCardTransactionRepository is the append-only ledger of card entries.
// There is no update or delete.
type GiftCardTransactionRepository interface {
	Append(ctx context.Context, entry *model.GiftCardTransaction) error
	FindByAuthorizationCode(ctx context.Context, cardID uuid.UUID, code string, action model.TransactionAction) (*model.GiftCardTransaction, error)
	ListByAuthorizationCode(ctx context.Context, cardID uuid.UUID, code string) ([]model.GiftCardTransaction, error)
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.GiftCardTransaction, error)
	FindCardIDByAuthorizationCode(ctx context.Context, code string, actions ...model.TransactionAction) (uuid.UUID, error)
}

type giftCardTransactionRepository struct {
	db *gorm.DB
}

// NewGiftCardTransactionRepository creates a new ledger repository.
func NewGiftCardTransactionRepository(db *gorm.DB) GiftCardTransactionRepository {
	return &giftCardTransactionRepository{db: db}
}

// Append inserts one ledger entry.
func (r *giftCardTransactionRepository) Append(ctx context.Context, entry *model.GiftCardTransaction) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(entry).Error
}

// FindByAuthorizationCode returns the earliest entry of action carrying code on the card.
func (r *giftCardTransactionRepository) FindByAuthorizationCode(ctx context.Context, cardID uuid.UUID, code string, action model.TransactionAction) (*model.GiftCardTransaction, error) {
	var entry model.GiftCardTransaction
	if err := r.db.WithContext(ctx).
		Where("gift_card_id = ? AND authorization_code = ? AND action = ?", cardID, code, action).
		Order("created_at ASC").
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByAuthorizationCode lists every entry on the card linked to code, oldest first.
func (r *giftCardTransactionRepository) ListByAuthorizationCode(ctx context.Context, cardID uuid.UUID, code string) ([]model.GiftCardTransaction, error) {
	var entries []model.GiftCardTransaction
	if err := r.db.WithContext(ctx).
		Where("gift_card_id = ? AND authorization_code = ?", cardID, code).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListByCard lists the card's full ledger, oldest first.
func (r *giftCardTransactionRepository) ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.GiftCardTransaction, error) {
	var entries []model.GiftCardTransaction
	if err := r.db.WithContext(ctx).
		Where("gift_card_id = ?", cardID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// FindCardIDByAuthorizationCode resolves the card owning an authorization code.
// Only entries of the given actions are scanned.
func (r *giftCardTransactionRepository) FindCardIDByAuthorizationCode(ctx context.Context, code string, actions ...model.TransactionAction) (uuid.UUID, error) {
	var entry model.GiftCardTransaction
	q := r.db.WithContext(ctx).Where("authorization_code = ?", code)
	if len(actions) > 0 {
		q = q.Where("action IN ?", actions)
	}
	if err := q.Order("created_at ASC").First(&entry).Error; err != nil {
		return uuid.Nil, err
	}
	return entry.GiftCardID, nil
}
