package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"giftledger/internal/events"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

// Mailer sends the gift card e-mail to the card's recipient.
type Mailer interface {
	SendGiftCardEmail(ctx context.Context, card *model.GiftCard, order *model.Order) error
}

// LogMailer writes gift card e-mails to the log instead of sending them.
type LogMailer struct{}

// SendGiftCardEmail logs the e-mail that would be sent.
func (LogMailer) SendGiftCardEmail(_ context.Context, card *model.GiftCard, order *model.Order) error {
	fields := log.Fields{
		"card_id":   card.ID,
		"to":        card.Email,
		"from_name": card.SenderName,
		"reply_to":  card.SenderEmail,
		"code":      MaskCode(card.Code),
	}
	if order != nil {
		fields["order_number"] = order.Number
	}
	log.WithFields(fields).Info("gift card email")
	return nil
}

// DeliveryService e-mails gift cards when their order ships or is paid.
type DeliveryService struct {
	repos  *repository.Repositories
	cards  *GiftCardService
	mailer Mailer
}

// NewDeliveryService creates a new delivery service.
func NewDeliveryService(repos *repository.Repositories, cards *GiftCardService, mailer Mailer) *DeliveryService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &DeliveryService{repos: repos, cards: cards, mailer: mailer}
}

// Subscribe registers the delivery handlers on bus.
func (s *DeliveryService) Subscribe(bus *events.Bus) {
	bus.OnShipmentShipped(s.OnShipmentShipped)
	bus.OnPaymentCompleted(s.OnPaymentCompleted)
}

// OnShipmentShipped sends deliverable e-gift cards bought on the shipped line items.
func (s *DeliveryService) OnShipmentShipped(ctx context.Context, ev events.ShipmentShipped) error {
	order, err := s.repos.Orders.FindByID(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}

	shipped := make(map[uuid.UUID]bool, len(ev.LineItemIDs))
	for _, id := range ev.LineItemIDs {
		shipped[id] = true
	}

	var ids []uuid.UUID
	for _, item := range order.LineItems {
		if len(shipped) > 0 && !shipped[item.ID] {
			continue
		}
		if item.Variant != nil && item.Variant.Product != nil && item.Variant.Product.IsEGiftCard {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	cards, err := s.repos.GiftCards.FindByLineItemIDs(ctx, ids)
	if err != nil {
		return err
	}
	now := s.cards.now()
	for i := range cards {
		if !cards[i].Deliverable(now) {
			continue
		}
		if err := s.deliver(ctx, &cards[i], order); err != nil {
			return err
		}
	}
	return nil
}

// OnPaymentCompleted sends every unsent gift card bought on the order.
func (s *DeliveryService) OnPaymentCompleted(ctx context.Context, ev events.PaymentCompleted) error {
	order, err := s.repos.Orders.FindByID(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderID, err)
	}

	ids := make([]uuid.UUID, 0, len(order.LineItems))
	for _, item := range order.LineItems {
		ids = append(ids, item.ID)
	}
	cards, err := s.repos.GiftCards.FindByLineItemIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i := range cards {
		if cards[i].SentAt != nil || !cards[i].Active {
			continue
		}
		if err := s.deliver(ctx, &cards[i], order); err != nil {
			return err
		}
	}
	return nil
}

// DeliverDue sends every card whose delivery date has passed. It returns how many were sent.
func (s *DeliveryService) DeliverDue(ctx context.Context) (int, error) {
	cards, err := s.cards.Deliverable(ctx)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range cards {
		item, err := s.repos.Orders.FindLineItem(ctx, *cards[i].LineItemID)
		if err != nil {
			return sent, fmt.Errorf("load line item for card %s: %w", cards[i].ID, err)
		}
		if err := s.deliver(ctx, &cards[i], item.Order); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *DeliveryService) deliver(ctx context.Context, card *model.GiftCard, order *model.Order) error {
	if err := s.mailer.SendGiftCardEmail(ctx, card, order); err != nil {
		return fmt.Errorf("send gift card %s: %w", card.ID, err)
	}
	if _, err := s.cards.MarkSent(ctx, card); err != nil {
		return fmt.Errorf("mark gift card %s sent: %w", card.ID, err)
	}
	return nil
}
