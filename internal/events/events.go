// Package events carries ledger events out of the process and order events within it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Type names a ledger event.
type Type string

const (
	TypeGiftCardIssued      Type = "gift_card.issued"
	TypeGiftCardAuthorized  Type = "gift_card.authorized"
	TypeGiftCardCaptured    Type = "gift_card.captured"
	TypeGiftCardVoided      Type = "gift_card.voided"
	TypeGiftCardCredited    Type = "gift_card.credited"
	TypeGiftCardDebited     Type = "gift_card.debited"
	TypeGiftCardRedeemed    Type = "gift_card.redeemed"
	TypeGiftCardDeactivated Type = "gift_card.deactivated"
	TypeGiftCardSent        Type = "gift_card.sent"
)

// LedgerEvent describes one committed change to a gift card.
type LedgerEvent struct {
	Type              Type            `json:"type"`
	GiftCardID        uuid.UUID       `json:"gift_card_id"`
	Amount            decimal.Decimal `json:"amount"`
	AuthorizationCode string          `json:"authorization_code,omitempty"`
	OrderNumber       string          `json:"order_number,omitempty"`
	CurrentValue      decimal.Decimal `json:"current_value"`
	AuthorizedAmount  decimal.Decimal `json:"authorized_amount"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

// Publisher ships committed ledger events.
type Publisher interface {
	Publish(ctx context.Context, events ...LedgerEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...LedgerEvent) error { return nil }
func (NopPublisher) Close() error                                  { return nil }

// NewKafkaProducer creates a synchronous producer that waits for all in-sync replicas.
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("events: kafka producer: %w", err)
	}
	return producer, nil
}

// KafkaPublisher writes ledger events as JSON, keyed by card id so a card's
// events stay ordered within one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a publisher writing to topic.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends events in one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(events))
	for _, ev := range events {
		b, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("events: encode %s: %w", ev.Type, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.GiftCardID.String()),
			Value: sarama.ByteEncoder(b),
			Headers: []sarama.RecordHeader{
				{Key: []byte("event_type"), Value: []byte(ev.Type)},
			},
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		log.WithError(err).WithField("topic", p.topic).Warn("events: publish failed")
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
