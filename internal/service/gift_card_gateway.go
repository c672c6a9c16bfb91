package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"giftledger/internal/errors"
	"giftledger/internal/metrics"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

const (
	logBatchSize     = 10
	logFlushInterval = time.Second
)

// GatewayOptions is the options bag a payment processor passes with each call.
type GatewayOptions struct {
	// OrderID is "<order number>-<payment identifier>".
	OrderID string `json:"order_id,omitempty"`
	// AuthorizationCode makes Authorize confirm an existing hold instead of placing a new one.
	AuthorizationCode string `json:"authorization_code,omitempty"`
}

// OrderNumber extracts the order number from OrderID.
func (o GatewayOptions) OrderNumber() string {
	if o.OrderID == "" {
		return ""
	}
	return strings.SplitN(o.OrderID, "-", 2)[0]
}

// Response is the gateway-style outcome of an adapter call. Declines are
// responses, not errors.
type Response struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	Authorization string `json:"authorization,omitempty"`
}

// GiftCardGateway adapts payment processor calls in minor units to the gift card ledger.
type GiftCardGateway struct {
	cards   *GiftCardService
	logRepo repository.GatewayLogRepository
	// Channel for async gateway logging
	logChannel chan model.GatewayLog
	done       chan struct{}
	// mu guards closed so no send races the channel close.
	mu     sync.RWMutex
	closed bool
}

// NewGiftCardGateway creates the adapter and starts its log worker.
func NewGiftCardGateway(cards *GiftCardService, logRepo repository.GatewayLogRepository) *GiftCardGateway {
	g := &GiftCardGateway{
		cards:      cards,
		logRepo:    logRepo,
		logChannel: make(chan model.GatewayLog, 100),
		done:       make(chan struct{}),
	}

	// Start async log worker
	go g.logWorker(context.Background())

	return g
}

// Close stops the log worker after flushing pending logs. Calls made after
// Close still work and write their logs synchronously.
func (g *GiftCardGateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.logChannel)
	g.mu.Unlock()
	<-g.done
}

// Actions lists the follow-up actions an admin may take on a gift card payment.
func (g *GiftCardGateway) Actions() []string {
	return []string{"capture", "void"}
}

// CanVoid reports whether the payment's hold may be voided.
func (g *GiftCardGateway) CanVoid(payment *model.Payment) bool {
	return payment.State == model.PaymentStatePending
}

// CanCapture reports whether the payment may be captured.
func (g *GiftCardGateway) CanCapture(payment *model.Payment) bool {
	return payment.State == model.PaymentStateCheckout || payment.State == model.PaymentStatePending
}

// Authorize places a hold of cents on card.
func (g *GiftCardGateway) Authorize(ctx context.Context, cents int64, card *model.GiftCard, opts GatewayOptions) (Response, error) {
	amount := fromCents(cents)
	if card == nil {
		return g.decline(ctx, "authorize", nil, amount, "", opts, "Unable to find the specified gift card."), nil
	}

	code, err := g.cards.Authorize(ctx, card.ID, amount, opts.AuthorizationCode, orderRef(opts))
	return g.respond(ctx, "authorize", &card.ID, amount, code, opts, err)
}

// Capture converts the hold under authCode.
func (g *GiftCardGateway) Capture(ctx context.Context, cents int64, authCode string, opts GatewayOptions) (Response, error) {
	amount := fromCents(cents)
	cardID, resp, ok, err := g.resolve(ctx, "capture", amount, authCode, opts)
	if !ok {
		return resp, err
	}

	err = g.cards.Capture(ctx, cardID, amount, authCode, orderRef(opts))
	return g.respond(ctx, "capture", &cardID, amount, authCode, opts, err)
}

// Void releases the hold under authCode.
func (g *GiftCardGateway) Void(ctx context.Context, authCode string, opts GatewayOptions) (Response, error) {
	cardID, resp, ok, err := g.resolve(ctx, "void", decimal.Zero, authCode, opts)
	if !ok {
		return resp, err
	}

	err = g.cards.Void(ctx, cardID, authCode, orderRef(opts))
	return g.respond(ctx, "void", &cardID, decimal.Zero, authCode, opts, err)
}

// Credit refunds cents captured under authCode.
func (g *GiftCardGateway) Credit(ctx context.Context, cents int64, authCode string, opts GatewayOptions) (Response, error) {
	amount := fromCents(cents)
	cardID, resp, ok, err := g.resolve(ctx, "credit", amount, authCode, opts)
	if !ok {
		return resp, err
	}

	err = g.cards.Credit(ctx, cardID, amount, authCode, orderRef(opts))
	return g.respond(ctx, "credit", &cardID, amount, authCode, opts, err)
}

// Purchase authorizes and captures cents in one step.
func (g *GiftCardGateway) Purchase(ctx context.Context, cents int64, card *model.GiftCard, opts GatewayOptions) (Response, error) {
	amount := fromCents(cents)
	if card == nil {
		return g.decline(ctx, "purchase", nil, amount, "", opts, "Unable to find the specified gift card."), nil
	}

	start := time.Now()
	ref := orderRef(opts)
	var code string
	_, err := g.cards.Locked(ctx, card.ID, func(ctx context.Context, l *CardLedger) error {
		var err error
		if code, err = l.Authorize(ctx, amount, "", ref); err != nil {
			return err
		}
		return l.Capture(ctx, amount, code, ref)
	})
	g.cards.observe("purchase", start, err)
	if err != nil {
		code = ""
	}
	return g.respond(ctx, "purchase", &card.ID, amount, code, opts, err)
}

// resolve finds the card owning authCode. When it cannot, ok is false and the
// declined response (or a storage error) is returned.
func (g *GiftCardGateway) resolve(ctx context.Context, action string, amount decimal.Decimal, authCode string, opts GatewayOptions) (uuid.UUID, Response, bool, error) {
	if authCode != "" {
		cardID, err := g.cards.repos.Transactions.FindCardIDByAuthorizationCode(ctx, authCode, model.ActionAuthorize, model.ActionCapture)
		if err == nil {
			return cardID, Response{}, true, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			g.record(ctx, action, nil, amount, authCode, opts, false, err.Error())
			return uuid.Nil, Response{Success: false, Message: err.Error()}, false, fmt.Errorf("resolve authorization: %w", err)
		}
	}
	msg := fmt.Sprintf("Unable to find gift card for %s with authorization code %s.", action, authCode)
	return uuid.Nil, g.decline(ctx, action, nil, amount, authCode, opts, msg), false, nil
}

// respond turns a ledger outcome into a Response. Business failures become
// declines; anything else is also returned as an error.
func (g *GiftCardGateway) respond(ctx context.Context, action string, cardID *uuid.UUID, amount decimal.Decimal, code string, opts GatewayOptions, err error) (Response, error) {
	if err == nil {
		resp := Response{
			Success:       true,
			Message:       fmt.Sprintf("Successful gift card %s.", action),
			Authorization: code,
		}
		g.record(ctx, action, cardID, amount, code, opts, true, resp.Message)
		return resp, nil
	}

	if declined(err) {
		return g.decline(ctx, action, cardID, amount, code, opts, err.Error()), nil
	}

	log.WithError(err).WithFields(log.Fields{"action": action, "card_id": cardID}).Error("gift card gateway call failed")
	g.record(ctx, action, cardID, amount, code, opts, false, err.Error())
	return Response{Success: false, Message: err.Error()}, err
}

func (g *GiftCardGateway) decline(ctx context.Context, action string, cardID *uuid.UUID, amount decimal.Decimal, code string, opts GatewayOptions, msg string) Response {
	g.record(ctx, action, cardID, amount, code, opts, false, msg)
	return Response{Success: false, Message: msg}
}

// record counts the response and queues a gateway log.
func (g *GiftCardGateway) record(ctx context.Context, action string, cardID *uuid.UUID, amount decimal.Decimal, code string, opts GatewayOptions, success bool, msg string) {
	metrics.RecordGatewayResponse(action, success)

	options, _ := json.Marshal(opts)
	entry := model.GatewayLog{
		GiftCardID:        cardID,
		Action:            action,
		Amount:            amount,
		AuthorizationCode: code,
		Success:           success,
		Message:           msg,
		Options:           datatypes.JSON(options),
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.closed {
		// Send to async log channel (non-blocking)
		select {
		case g.logChannel <- entry:
			return
		default:
		}
	}

	// Channel full or closed, log synchronously as fallback
	if err := g.logRepo.Create(ctx, &entry); err != nil {
		log.WithError(err).WithField("action", action).Warn("gateway log not persisted")
		metrics.RecordGatewayLogsDropped(1)
	}
}

// logWorker persists gateway logs in batches.
func (g *GiftCardGateway) logWorker(ctx context.Context) {
	defer close(g.done)

	batch := make([]model.GatewayLog, 0, logBatchSize)
	ticker := time.NewTicker(logFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := g.logRepo.CreateBatch(ctx, batch); err != nil {
			log.WithError(err).WithField("count", len(batch)).Warn("gateway logs not persisted")
			metrics.RecordGatewayLogsDropped(len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-g.logChannel:
			if !ok {
				// Channel closed, flush remaining logs
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= logBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// declined reports whether err is a caller-facing refusal rather than a failure.
func declined(err error) bool {
	return errors.IsBusiness(err) ||
		errors.Is(err, errors.ErrInvalidAmount) ||
		errors.Is(err, errors.ErrGiftCardInactive) ||
		errors.Is(err, errors.ErrGiftCardNotFound)
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func orderRef(opts GatewayOptions) model.OrderRef {
	return model.OrderRef{OrderNumber: opts.OrderNumber()}
}
