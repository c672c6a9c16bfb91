package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"giftledger/internal/model"
	"giftledger/internal/repository"
)

// StoreCreditGranter creates store credit for a user. tx is the caller's
// transaction; a failed grant rolls the caller back.
type StoreCreditGranter interface {
	GrantCredit(ctx context.Context, tx *repository.Repositories, user *model.User, amount decimal.Decimal, category, memo string) (*model.StoreCredit, error)
}

// StoreCreditService is the store credit side of redemption and checkout.
type StoreCreditService struct {
	repos    *repository.Repositories
	currency string
}

// NewStoreCreditService creates a new store credit service.
func NewStoreCreditService(repos *repository.Repositories, currency string) *StoreCreditService {
	if currency == "" {
		currency = "USD"
	}
	return &StoreCreditService{repos: repos, currency: currency}
}

// GrantCredit records a credit of amount for user, created by the user themselves.
func (s *StoreCreditService) GrantCredit(ctx context.Context, tx *repository.Repositories, user *model.User, amount decimal.Decimal, category, memo string) (*model.StoreCredit, error) {
	if tx == nil {
		tx = s.repos
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("grant store credit: amount must be positive, got %s", amount.StringFixed(2))
	}
	credit := &model.StoreCredit{
		UserID:      user.ID,
		CreatedByID: &user.ID,
		Amount:      amount,
		Currency:    s.currency,
		Category:    category,
		Memo:        memo,
	}
	if err := tx.StoreCredits.Create(ctx, credit); err != nil {
		return nil, fmt.Errorf("grant store credit: %w", err)
	}
	return credit, nil
}

// ListForUser lists a user's credits in consumption order.
func (s *StoreCreditService) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.StoreCredit, error) {
	return s.repos.StoreCredits.ListByUser(ctx, userID)
}

// TotalRemaining sums what the user's credits can still cover.
func (s *StoreCreditService) TotalRemaining(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	credits, err := s.ListForUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, credit := range credits {
		total = total.Add(credit.AmountRemaining())
	}
	return total, nil
}
