package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"giftledger/internal/cache"
	"giftledger/internal/errors"
	"giftledger/internal/events"
	"giftledger/internal/lock"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

const defaultCardCacheTTL = 5 * time.Minute

// IssueParams describes a card to mint. Value comes from the line item when one
// is given, otherwise from the variant price.
type IssueParams struct {
	VariantID   uuid.UUID  `json:"variant_id" validate:"required"`
	LineItemID  *uuid.UUID `json:"line_item_id,omitempty"`
	Email       string     `json:"email" validate:"required,email"`
	Name        string     `json:"name" validate:"required,max=255"`
	SenderEmail string     `json:"sender_email,omitempty" validate:"omitempty,email"`
	SenderName  string     `json:"sender_name,omitempty" validate:"max=255"`
	Note        string     `json:"note,omitempty"`
	DeliveryOn  *time.Time `json:"delivery_on,omitempty"`
}

// GiftCardOptions tunes GiftCardService.
type GiftCardOptions struct {
	CodeLength int
	CacheTTL   time.Duration
}

// codeCache remembers which card a redemption code belongs to. Codes never
// move between cards, so entries need no invalidation.
type codeCache interface {
	GetJSON(ctx context.Context, key string, dst any) bool
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// GiftCardService owns gift card balances. Every balance change runs through
// Locked, which serializes work on a card and commits it atomically.
type GiftCardService struct {
	repos     *repository.Repositories
	locker    lock.Locker
	cache     codeCache
	publisher events.Publisher
	codes     *CodeGenerator
	validate  *validator.Validate
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewGiftCardService creates a new gift card service.
func NewGiftCardService(
	repos *repository.Repositories,
	locker lock.Locker,
	cache *cache.Client,
	publisher events.Publisher,
	opts GiftCardOptions,
) *GiftCardService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCardCacheTTL
	}
	return &GiftCardService{
		repos:     repos,
		locker:    locker,
		cache:     cache,
		publisher: publisher,
		codes:     NewCodeGenerator(opts.CodeLength),
		validate:  validator.New(),
		cacheTTL:  ttl,
		now:       time.Now,
	}
}

func (s *GiftCardService) cacheKey(code string) string {
	return fmt.Sprintf("gift_card:code:%s", code)
}

// Issue mints a new card with a unique code.
func (s *GiftCardService) Issue(ctx context.Context, params IssueParams) (*model.GiftCard, error) {
	if err := s.validate.StructCtx(ctx, params); err != nil {
		return nil, fmt.Errorf("invalid gift card: %w", err)
	}

	var card *model.GiftCard
	err := s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
		value, err := issueValue(ctx, tx, params)
		if err != nil {
			return err
		}
		code, err := s.codes.GenerateUnique(ctx, tx.GiftCards.CodeExists)
		if err != nil {
			return err
		}

		card = &model.GiftCard{
			VariantID:     params.VariantID,
			LineItemID:    params.LineItemID,
			Code:          code,
			Email:         params.Email,
			Name:          params.Name,
			SenderEmail:   params.SenderEmail,
			SenderName:    params.SenderName,
			Note:          params.Note,
			CurrentValue:  value,
			OriginalValue: value,
			Active:        true,
			DeliveryOn:    params.DeliveryOn,
		}
		if err := tx.GiftCards.Create(ctx, card); err != nil {
			return fmt.Errorf("create gift card: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.LedgerEvent{
		Type:         events.TypeGiftCardIssued,
		GiftCardID:   card.ID,
		Amount:       card.OriginalValue,
		CurrentValue: card.CurrentValue,
		OccurredAt:   s.now(),
	})
	log.WithFields(log.Fields{"card_id": card.ID, "code": MaskCode(card.Code)}).Info("gift card issued")
	return card, nil
}

func issueValue(ctx context.Context, tx *repository.Repositories, params IssueParams) (decimal.Decimal, error) {
	if params.LineItemID != nil {
		item, err := tx.Orders.FindLineItem(ctx, *params.LineItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return decimal.Zero, fmt.Errorf("line item %s: %w", params.LineItemID, errors.ErrOrderNotFound)
			}
			return decimal.Zero, err
		}
		if item.Quantity > 1 {
			return decimal.Zero, errors.ErrInvalidQuantity
		}
		return item.Amount(), nil
	}

	variant, err := tx.Catalog.FindVariant(ctx, params.VariantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, errors.ErrVariantNotFound
		}
		return decimal.Zero, err
	}
	return variant.Price, nil
}

// Locked runs fn against the card while holding its lock, inside one
// transaction with the card row locked. Events and cache invalidation happen
// after commit and unlock.
func (s *GiftCardService) Locked(ctx context.Context, cardID uuid.UUID, fn func(ctx context.Context, l *CardLedger) error) (*model.GiftCard, error) {
	release, err := s.locker.Lock(ctx, cardID)
	if err != nil {
		return nil, err
	}

	var ledger *CardLedger
	err = func() error {
		defer release()
		return s.repos.WithTransaction(ctx, func(ctx context.Context, tx *repository.Repositories) error {
			card, err := tx.GiftCards.FindByIDForUpdate(ctx, cardID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errors.ErrGiftCardNotFound
				}
				return fmt.Errorf("lock gift card: %w", err)
			}
			ledger = newCardLedger(tx, card, s.now)
			return fn(ctx, ledger)
		})
	}()
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ledger.events...)
	return ledger.card, nil
}

// Authorize places a hold on the card. See CardLedger.Authorize.
func (s *GiftCardService) Authorize(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, code string, ref model.OrderRef) (string, error) {
	start := time.Now()
	var authCode string
	_, err := s.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		var err error
		authCode, err = l.Authorize(ctx, amount, code, ref)
		return err
	})
	s.observe("authorize", start, err)
	return authCode, err
}

// Capture converts a hold into a balance reduction.
func (s *GiftCardService) Capture(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, code string, ref model.OrderRef) error {
	start := time.Now()
	_, err := s.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		return l.Capture(ctx, amount, code, ref)
	})
	s.observe("capture", start, err)
	return err
}

// Void releases a hold.
func (s *GiftCardService) Void(ctx context.Context, cardID uuid.UUID, code string, ref model.OrderRef) error {
	start := time.Now()
	_, err := s.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		return l.Void(ctx, code, ref)
	})
	s.observe("void", start, err)
	return err
}

// Credit refunds captured value.
func (s *GiftCardService) Credit(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, code string, ref model.OrderRef) error {
	start := time.Now()
	_, err := s.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		return l.Credit(ctx, amount, code, ref)
	})
	s.observe("credit", start, err)
	return err
}

// Debit reduces the balance directly.
func (s *GiftCardService) Debit(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, ref model.OrderRef) error {
	start := time.Now()
	_, err := s.Locked(ctx, cardID, func(ctx context.Context, l *CardLedger) error {
		return l.Debit(ctx, amount, ref)
	})
	s.observe("debit", start, err)
	return err
}

// Get retrieves a card by ID.
func (s *GiftCardService) Get(ctx context.Context, id uuid.UUID) (*model.GiftCard, error) {
	card, err := s.repos.GiftCards.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrGiftCardNotFound
		}
		return nil, err
	}
	return card, nil
}

// FindByCode retrieves a card by redemption code. Only the code to id mapping
// is cached; the card itself always comes from the database.
func (s *GiftCardService) FindByCode(ctx context.Context, code string) (*model.GiftCard, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	var id uuid.UUID
	if s.cache.GetJSON(ctx, s.cacheKey(normalized), &id) && id != uuid.Nil {
		card, err := s.Get(ctx, id)
		if err == nil {
			return card, nil
		}
		if !errors.Is(err, errors.ErrGiftCardNotFound) {
			return nil, err
		}
	}

	card, err := s.repos.GiftCards.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrGiftCardNotFound
		}
		return nil, err
	}

	_ = s.cache.SetJSON(ctx, s.cacheKey(normalized), card.ID, s.cacheTTL)
	return card, nil
}

// History lists the card's ledger entries, oldest first.
func (s *GiftCardService) History(ctx context.Context, cardID uuid.UUID) ([]model.GiftCardTransaction, error) {
	return s.repos.Transactions.ListByCard(ctx, cardID)
}

// AddToWallet attaches the card with code to the user's wallet.
func (s *GiftCardService) AddToWallet(ctx context.Context, userID uuid.UUID, code string) (*model.GiftCard, error) {
	if _, err := s.repos.Users.FindByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		return nil, err
	}
	card, err := s.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.repos.GiftCards.AddOwner(ctx, userID, card.ID); err != nil {
		return nil, fmt.Errorf("add to wallet: %w", err)
	}
	return card, nil
}

// ListForUser lists the cards in a user's wallet.
func (s *GiftCardService) ListForUser(ctx context.Context, userID uuid.UUID) ([]model.GiftCard, error) {
	return s.repos.GiftCards.ListByUser(ctx, userID)
}

// BelongsTo reports whether the card is in the user's wallet.
func (s *GiftCardService) BelongsTo(ctx context.Context, cardID, userID uuid.UUID) (bool, error) {
	return s.repos.GiftCards.HasOwner(ctx, userID, cardID)
}

// Deactivate stops the card from taking new holds.
func (s *GiftCardService) Deactivate(ctx context.Context, cardID uuid.UUID) error {
	card, err := s.Get(ctx, cardID)
	if err != nil {
		return err
	}
	if err := s.repos.GiftCards.Deactivate(ctx, cardID); err != nil {
		return err
	}
	s.publish(ctx, events.LedgerEvent{
		Type:             events.TypeGiftCardDeactivated,
		GiftCardID:       card.ID,
		CurrentValue:     card.CurrentValue,
		AuthorizedAmount: card.AuthorizedAmount,
		OccurredAt:       s.now(),
	})
	return nil
}

// Deliverable lists cards due for e-mail delivery.
func (s *GiftCardService) Deliverable(ctx context.Context) ([]model.GiftCard, error) {
	return s.repos.GiftCards.FindDeliverable(ctx, s.now())
}

// MarkSent records that the card's e-mail went out. It reports false if it was already sent.
func (s *GiftCardService) MarkSent(ctx context.Context, card *model.GiftCard) (bool, error) {
	at := s.now()
	sent, err := s.repos.GiftCards.MarkSent(ctx, card.ID, at)
	if err != nil || !sent {
		return sent, err
	}
	card.SentAt = &at
	s.publish(ctx, events.LedgerEvent{Type: events.TypeGiftCardSent, GiftCardID: card.ID, CurrentValue: card.CurrentValue, OccurredAt: at})
	return true, nil
}

// OrderActivatable reports whether the card may be applied to the order.
func (s *GiftCardService) OrderActivatable(ctx context.Context, cardID, orderID uuid.UUID) (bool, error) {
	card, err := s.Get(ctx, cardID)
	if err != nil {
		return false, err
	}
	order, err := s.repos.Orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, errors.ErrOrderNotFound
		}
		return false, err
	}
	return card.OrderActivatable(order), nil
}

func (s *GiftCardService) publish(ctx context.Context, evs ...events.LedgerEvent) {
	if len(evs) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		log.WithError(err).WithField("events", len(evs)).Warn("gift card events not published")
	}
}

func (s *GiftCardService) observe(operation string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.IsBusiness(err):
		status = "declined"
	default:
		status = "error"
	}
	metrics.RecordLedgerOperation(operation, status, time.Since(start).Seconds())
}
