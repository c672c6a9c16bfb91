package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ShipmentShipped is raised when a shipment leaves the warehouse.
type ShipmentShipped struct {
	OrderID     uuid.UUID
	LineItemIDs []uuid.UUID
}

// PaymentCompleted is raised when an order payment settles.
type PaymentCompleted struct {
	OrderID   uuid.UUID
	PaymentID uuid.UUID
}

// Bus dispatches order lifecycle events to in-process subscribers, synchronously
// and in subscription order.
type Bus struct {
	mu       sync.RWMutex
	shipped  []func(context.Context, ShipmentShipped) error
	payments []func(context.Context, PaymentCompleted) error
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// OnShipmentShipped registers fn for ShipmentShipped.
func (b *Bus) OnShipmentShipped(fn func(context.Context, ShipmentShipped) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shipped = append(b.shipped, fn)
}

// OnPaymentCompleted registers fn for PaymentCompleted.
func (b *Bus) OnPaymentCompleted(fn func(context.Context, PaymentCompleted) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payments = append(b.payments, fn)
}

// ShipmentShipped delivers ev to every subscriber. All subscribers run; their errors are joined.
func (b *Bus) ShipmentShipped(ctx context.Context, ev ShipmentShipped) error {
	b.mu.RLock()
	handlers := append([]func(context.Context, ShipmentShipped) error(nil), b.shipped...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range handlers {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PaymentCompleted delivers ev to every subscriber. All subscribers run; their errors are joined.
func (b *Bus) PaymentCompleted(ctx context.Context, ev PaymentCompleted) error {
	b.mu.RLock()
	handlers := append([]func(context.Context, PaymentCompleted) error(nil), b.payments...)
	b.mu.RUnlock()

	var errs []error
	for _, fn := range handlers {
		if err := fn(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
