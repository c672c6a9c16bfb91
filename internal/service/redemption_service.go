package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"giftledger/internal/errors"
	"giftledger/internal/events"
	"giftledger/internal/model"
)

// RedemptionService converts a card's remaining balance into store credit.
type RedemptionService struct {
	cards   *GiftCardService
	granter StoreCreditGranter
	enabled bool
}

// NewRedemptionService creates a new redemption service. enabled is the
// store-wide redemption policy.
func NewRedemptionService(cards *GiftCardService, granter StoreCreditGranter, enabled bool) *RedemptionService {
	return &RedemptionService{cards: cards, granter: granter, enabled: enabled}
}

// SafelyRedeem debits everything left on the card and grants it to user as
// store credit, atomically. The user must be the card's recipient and the
// order the card was bought on must be complete.
func (s *RedemptionService) SafelyRedeem(ctx context.Context, cardID uuid.UUID, user *model.User) (*model.StoreCredit, error) {
	start := time.Now()
	var credit *model.StoreCredit

	_, err := s.cards.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		card := l.Card()
		remaining := card.AmountRemaining()

		eligible, order, err := s.eligible(ctx, l, user)
		if err != nil {
			return err
		}
		if !eligible {
			if remaining.IsPositive() {
				return errors.ErrUnauthorized
			}
			return errors.ErrAlreadyRedeemed
		}

		variant, err := l.Repos().Catalog.FindVariant(ctx, card.VariantID)
		if err != nil {
			return fmt.Errorf("%w: %v", errors.ErrRedemptionFailed, err)
		}

		ref := model.OrderRef{OrderID: &order.ID, OrderNumber: order.Number}
		if err := l.Debit(ctx, remaining, ref); err != nil {
			return err
		}

		memo := fmt.Sprintf("Gift Card - %s received from %s", variant.SKU, order.Email)
		credit, err = s.granter.GrantCredit(ctx, l.Repos(), user, remaining, model.StoreCreditCategoryGiftCard, memo)
		if err != nil {
			log.WithError(err).WithField("card_id", card.ID).Error("store credit grant failed, rolling back redemption")
			return fmt.Errorf("%w: %v", errors.ErrRedemptionFailed, err)
		}

		l.emit(events.LedgerEvent{
			Type:         events.TypeGiftCardRedeemed,
			GiftCardID:   card.ID,
			Amount:       remaining,
			OrderNumber:  order.Number,
			CurrentValue: card.CurrentValue,
			OccurredAt:   l.now(),
		})
		return nil
	})
	s.cards.observe("redeem", start, err)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"card_id": cardID,
		"user_id": user.ID,
		"amount":  credit.Amount.StringFixed(2),
	}).Info("gift card redeemed")
	return credit, nil
}

// eligible applies the policy, identity, balance and order checks. The order
// is returned when every check passes.
func (s *RedemptionService) eligible(ctx context.Context, l *CardLedger, user *model.User) (bool, *model.Order, error) {
	card := l.Card()
	if !s.enabled || user == nil || !card.Active || !user.EmailMatches(card.Email) || !card.AmountRemaining().IsPositive() {
		return false, nil, nil
	}
	if card.LineItemID == nil {
		return false, nil, nil
	}

	item, err := l.Repos().Orders.FindLineItem(ctx, *card.LineItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("load line item: %w", err)
	}
	if item.Order == nil || !item.Order.Completed() {
		return false, nil, nil
	}
	return true, item.Order, nil
}
