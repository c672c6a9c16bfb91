package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"giftledger/internal/errors"
	"giftledger/internal/events"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

// CardLedger applies balance operations to one card. It is only handed out while
// the card's lock and row lock are held, and every repository it uses is bound
// to the surrounding transaction.
type CardLedger struct {
	repos  *repository.Repositories
	card   *model.GiftCard
	now    func() time.Time
	events []events.LedgerEvent
}

func newCardLedger(repos *repository.Repositories, card *model.GiftCard, now func() time.Time) *CardLedger {
	return &CardLedger{repos: repos, card: card, now: now}
}

// Card returns the locked card with balances as of the last operation.
func (l *CardLedger) Card() *model.GiftCard {
	return l.card
}

// Repos returns the transaction-scoped repositories.
func (l *CardLedger) Repos() *repository.Repositories {
	return l.repos
}

// Authorize places a hold. With a code, it only confirms that a hold under
// that code exists and changes nothing.
func (l *CardLedger) Authorize(ctx context.Context, amount decimal.Decimal, code string, ref model.OrderRef) (string, error) {
	if err := validateAmount(amount); err != nil {
		return "", err
	}
	if code != "" {
		if _, err := l.findEntry(ctx, code, model.ActionAuthorize); err != nil {
			return "", err
		}
		return code, nil
	}
	if !l.card.Active {
		return "", errors.ErrGiftCardInactive
	}

	remaining := l.card.AmountRemaining()
	if amount.GreaterThan(remaining) {
		return "", &errors.InsufficientFundsError{Available: remaining, Requested: amount}
	}

	code = NewAuthorizationCode()
	l.card.AuthorizedAmount = l.card.AuthorizedAmount.Add(amount)
	if err := l.apply(ctx, model.ActionAuthorize, amount, code, ref); err != nil {
		return "", err
	}
	return code, nil
}

// Capture converts part or all of a hold into a balance reduction.
func (l *CardLedger) Capture(ctx context.Context, amount decimal.Decimal, code string, ref model.OrderRef) error {
	if code == "" {
		return errors.ErrUnresolvedAuthorization
	}
	if _, err := l.Authorize(ctx, amount, code, ref); err != nil {
		return err
	}
	voided, err := l.hasEntry(ctx, code, model.ActionVoid)
	if err != nil {
		return err
	}
	if voided {
		return errors.ErrUnresolvedAuthorization
	}
	if amount.GreaterThan(l.card.AuthorizedAmount) {
		return errors.ErrInsufficientAuthorizedAmount
	}

	l.card.AuthorizedAmount = l.card.AuthorizedAmount.Sub(amount)
	l.card.CurrentValue = l.card.CurrentValue.Sub(amount)
	return l.apply(ctx, model.ActionCapture, amount, code, ref)
}

// Void releases what is left of a hold. A hold can be voided once.
func (l *CardLedger) Void(ctx context.Context, code string, ref model.OrderRef) error {
	if code == "" {
		return errors.ErrUnresolvedAuthorization
	}
	entries, err := l.repos.Transactions.ListByAuthorizationCode(ctx, l.card.ID, code)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	var authorized, captured decimal.Decimal
	found := false
	for _, entry := range entries {
		switch entry.Action {
		case model.ActionAuthorize:
			found = true
			authorized = authorized.Add(entry.Amount)
		case model.ActionCapture:
			captured = captured.Add(entry.Amount)
		case model.ActionVoid:
			return errors.ErrUnresolvedAuthorization
		}
	}
	if !found {
		return errors.ErrUnresolvedAuthorization
	}

	release := decimal.Max(authorized.Sub(captured), decimal.Zero)
	release = decimal.Min(release, l.card.AuthorizedAmount)
	l.card.AuthorizedAmount = l.card.AuthorizedAmount.Sub(release)
	return l.apply(ctx, model.ActionVoid, release, code, ref)
}

// Credit returns captured value to the card. Credits under a code never add up
// to more than was captured under it.
func (l *CardLedger) Credit(ctx context.Context, amount decimal.Decimal, code string, ref model.OrderRef) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if code == "" {
		return errors.ErrUnresolvedCapture
	}
	entries, err := l.repos.Transactions.ListByAuthorizationCode(ctx, l.card.ID, code)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}

	var captured, credited decimal.Decimal
	hasCapture := false
	for _, entry := range entries {
		switch entry.Action {
		case model.ActionCapture:
			hasCapture = true
			captured = captured.Add(entry.Amount)
		case model.ActionCredit:
			credited = credited.Add(entry.Amount)
		}
	}
	if !hasCapture || credited.Add(amount).GreaterThan(captured) {
		return errors.ErrUnresolvedCapture
	}

	l.card.CurrentValue = l.card.CurrentValue.Add(amount)
	return l.apply(ctx, model.ActionCredit, amount, code, ref)
}

// Debit reduces the balance directly, bypassing holds. Debiting more than the
// amount remaining is a caller error.
func (l *CardLedger) Debit(ctx context.Context, amount decimal.Decimal, ref model.OrderRef) error {
	if err := validateAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(l.card.AmountRemaining()) {
		log.WithFields(log.Fields{
			"card_id":   l.card.ID,
			"amount":    amount.StringFixed(2),
			"remaining": l.card.AmountRemaining().StringFixed(2),
		}).Error("gift card debit exceeds balance")
		return errors.ErrDebitExceedsBalance
	}

	l.card.CurrentValue = l.card.CurrentValue.Sub(amount)
	return l.apply(ctx, model.ActionDebit, amount, "", ref)
}

// apply persists the card's balances together with one new ledger entry.
func (l *CardLedger) apply(ctx context.Context, action model.TransactionAction, amount decimal.Decimal, code string, ref model.OrderRef) error {
	if l.card.AuthorizedAmount.IsNegative() || l.card.AuthorizedAmount.GreaterThan(l.card.CurrentValue) {
		return fmt.Errorf("%s would break balance invariant: current %s, authorized %s",
			action, l.card.CurrentValue.StringFixed(2), l.card.AuthorizedAmount.StringFixed(2))
	}

	entry := &model.GiftCardTransaction{
		GiftCardID:        l.card.ID,
		OrderID:           ref.OrderID,
		OrderNumber:       ref.OrderNumber,
		Action:            action,
		Amount:            amount,
		AuthorizationCode: code,
	}
	if err := l.repos.Transactions.Append(ctx, entry); err != nil {
		return fmt.Errorf("append %s entry: %w", action, err)
	}
	if err := l.repos.GiftCards.UpdateBalances(ctx, l.card); err != nil {
		return fmt.Errorf("update balances: %w", err)
	}

	l.events = append(l.events, events.LedgerEvent{
		Type:              eventTypes[action],
		GiftCardID:        l.card.ID,
		Amount:            amount,
		AuthorizationCode: code,
		OrderNumber:       ref.OrderNumber,
		CurrentValue:      l.card.CurrentValue,
		AuthorizedAmount:  l.card.AuthorizedAmount,
		OccurredAt:        l.now(),
	})
	return nil
}

// emit queues an event for publication after commit.
func (l *CardLedger) emit(ev events.LedgerEvent) {
	l.events = append(l.events, ev)
}

func (l *CardLedger) findEntry(ctx context.Context, code string, action model.TransactionAction) (*model.GiftCardTransaction, error) {
	entry, err := l.repos.Transactions.FindByAuthorizationCode(ctx, l.card.ID, code, action)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUnresolvedAuthorization
		}
		return nil, fmt.Errorf("find %s entry: %w", action, err)
	}
	return entry, nil
}

func (l *CardLedger) hasEntry(ctx context.Context, code string, action model.TransactionAction) (bool, error) {
	_, err := l.repos.Transactions.FindByAuthorizationCode(ctx, l.card.ID, code, action)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("find %s entry: %w", action, err)
}

var eventTypes = map[model.TransactionAction]events.Type{
	model.ActionAuthorize: events.TypeGiftCardAuthorized,
	model.ActionCapture:   events.TypeGiftCardCaptured,
	model.ActionVoid:      events.TypeGiftCardVoided,
	model.ActionCredit:    events.TypeGiftCardCredited,
	model.ActionDebit:     events.TypeGiftCardDebited,
}

// validateAmount rejects negative amounts and sub-cent precision.
func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.Equal(amount.Round(2)) {
		return errors.ErrInvalidAmount
	}
	return nil
}
