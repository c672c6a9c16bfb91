package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"giftledger/internal/errors"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

// OrderService allocates an order's outstanding balance across a gift card and
// the customer's store credit.
type OrderService struct {
	repos *repository.Repositories
	cards *GiftCardService
}

// NewOrderService creates a new order allocation service.
func NewOrderService(repos *repository.Repositories, cards *GiftCardService) *OrderService {
	return &OrderService{repos: repos, cards: cards}
}

// AddGiftCardPayments replaces the order's checkout gift card payments with one
// payment from card covering as much of the balance as the card allows. A nil
// card, an exhausted card or a settled order only clears the stale payments.
func (s *OrderService) AddGiftCardPayments(ctx context.Context, orderID uuid.UUID, card *model.GiftCard) (*model.Payment, error) {
	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.invalidateGiftCardPayments(ctx, order); err != nil {
		return nil, err
	}
	if card == nil {
		return nil, nil
	}

	appliedCredit, err := s.TotalAppliedStoreCredit(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	outstanding := decimal.Max(order.OutstandingBalance().Sub(appliedCredit), decimal.Zero)
	ref := model.OrderRef{OrderID: &order.ID, OrderNumber: order.Number}

	var payment *model.Payment
	_, err = s.cards.Locked(ctx, card.ID, func(ctx context.Context, l *CardLedger) error {
		take := decimal.Min(l.Card().AmountRemaining(), outstanding)
		if !take.IsPositive() {
			return nil
		}
		code, err := l.Authorize(ctx, take, "", ref)
		if err != nil {
			return err
		}
		payment = &model.Payment{
			OrderID:      order.ID,
			SourceType:   model.PaymentSourceGiftCard,
			SourceID:     card.ID,
			Amount:       take,
			State:        model.PaymentStateCheckout,
			ResponseCode: code,
		}
		if err := l.Repos().Payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create gift card payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// invalidateGiftCardPayments marks checkout gift card payments invalid and
// releases their holds.
func (s *OrderService) invalidateGiftCardPayments(ctx context.Context, order *model.Order) error {
	stale, err := s.repos.Payments.ListByOrderInState(ctx, order.ID, model.PaymentSourceGiftCard, model.PaymentStateCheckout)
	if err != nil {
		return err
	}
	for _, payment := range stale {
		if err := s.repos.Payments.UpdateState(ctx, payment.ID, model.PaymentStateInvalid); err != nil {
			return fmt.Errorf("invalidate payment %s: %w", payment.ID, err)
		}
		if payment.ResponseCode == "" {
			continue
		}
		ref := model.OrderRef{OrderID: &order.ID, OrderNumber: order.Number}
		err := s.cards.Void(ctx, payment.SourceID, payment.ResponseCode, ref)
		if err != nil && !errors.Is(err, errors.ErrUnresolvedAuthorization) {
			return fmt.Errorf("void hold %s: %w", payment.ResponseCode, err)
		}
		if err != nil {
			log.WithField("authorization_code", payment.ResponseCode).Debug("stale gift card hold already released")
		}
	}
	return nil
}

// AddStoreCreditPayments replaces the order's checkout store credit payments,
// drawing on the user's credits by priority until the balance left after gift
// cards is covered. Either every payment changes or none does.
func (s *OrderService) AddStoreCreditPayments(ctx context.Context, orderID uuid.UUID) ([]model.Payment, error) {
	release, err := s.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	appliedGiftCard, err := s.TotalAppliedGiftCard(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	var payments []model.Payment
	err = s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		stale, err := tx.Payments.ListByOrderInState(ctx, order.ID, model.PaymentSourceStoreCredit, model.PaymentStateCheckout)
		if err != nil {
			return err
		}
		for _, payment := range stale {
			if err := tx.Payments.UpdateState(ctx, payment.ID, model.PaymentStateInvalid); err != nil {
				return fmt.Errorf("invalidate payment %s: %w", payment.ID, err)
			}
		}

		if order.UserID == nil {
			return nil
		}
		credits, err := tx.StoreCredits.ListByUser(ctx, *order.UserID)
		if err != nil {
			return err
		}

		remaining := order.OutstandingBalance().Sub(appliedGiftCard)
		for _, credit := range credits {
			if !remaining.IsPositive() {
				break
			}
			available := credit.AmountRemaining()
			if !available.IsPositive() {
				continue
			}

			take := decimal.Min(available, remaining)
			payment := model.Payment{
				OrderID:    order.ID,
				SourceType: model.PaymentSourceStoreCredit,
				SourceID:   credit.ID,
				Amount:     take,
				State:      model.PaymentStateCheckout,
			}
			if err := tx.Payments.Create(ctx, &payment); err != nil {
				return fmt.Errorf("create store credit payment: %w", err)
			}
			payments = append(payments, payment)
			remaining = remaining.Sub(take)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// TotalAppliedGiftCard sums the order's valid gift card payments.
func (s *OrderService) TotalAppliedGiftCard(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	return s.totalApplied(ctx, orderID, model.PaymentSourceGiftCard)
}

// UsingGiftCard reports whether any gift card value is applied to the order.
func (s *OrderService) UsingGiftCard(ctx context.Context, orderID uuid.UUID) (bool, error) {
	total, err := s.TotalAppliedGiftCard(ctx, orderID)
	if err != nil {
		return false, err
	}
	return total.IsPositive(), nil
}

// TotalAppliedStoreCredit sums the order's valid store credit payments.
func (s *OrderService) TotalAppliedStoreCredit(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	return s.totalApplied(ctx, orderID, model.PaymentSourceStoreCredit)
}

// OrderTotalAfterCredit is the order total less applied store credit and gift cards.
func (s *OrderService) OrderTotalAfterCredit(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	credit, err := s.TotalAppliedStoreCredit(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	giftCard, err := s.TotalAppliedGiftCard(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	return order.Total.Sub(credit).Sub(giftCard), nil
}

func (s *OrderService) totalApplied(ctx context.Context, orderID uuid.UUID, source model.PaymentSourceType) (decimal.Decimal, error) {
	payments, err := s.repos.Payments.ListByOrder(ctx, orderID, source)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, payment := range payments {
		if payment.Valid() {
			total = total.Add(payment.Amount)
		}
	}
	return total, nil
}

// lockOrder serializes payment allocation for one order.
func (s *OrderService) lockOrder(ctx context.Context, orderID uuid.UUID) (func(), error) {
	release, err := s.cards.locker.Lock(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", orderID, err)
	}
	return release, nil
}

func (s *OrderService) findOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	order, err := s.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}
