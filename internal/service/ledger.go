package service

import (
	"giftledger/internal/cache"
	"giftledger/internal/config"
	"giftledger/internal/events"
	"giftledger/internal/lock"
	"giftledger/internal/repository"
)

// Ledger bundles the gift card services a storefront host embeds.
type Ledger struct {
	Cards        *GiftCardService
	Gateway      *GiftCardGateway
	StoreCredits *StoreCreditService
	Redemption   *RedemptionService
	Orders       *OrderService
	Delivery     *DeliveryService
	// Bus receives the host's order lifecycle events.
	Bus *events.Bus
}

// NewLedger wires the services over repos. A nil mailer logs e-mails instead of sending them.
func NewLedger(repos *repository.Repositories, locker lock.Locker, cacheClient *cache.Client, publisher events.Publisher, mailer Mailer, cfg config.GiftCardConfig) *Ledger {
	cards := NewGiftCardService(repos, locker, cacheClient, publisher, GiftCardOptions{
		CodeLength: cfg.CodeLength,
		CacheTTL:   cfg.CacheTTL,
	})
	credits := NewStoreCreditService(repos, cfg.Currency)

	l := &Ledger{
		Cards:        cards,
		Gateway:      NewGiftCardGateway(cards, repos.GatewayLogs),
		StoreCredits: credits,
		Redemption:   NewRedemptionService(cards, credits, cfg.RedeemEnabled),
		Orders:       NewOrderService(repos, cards),
		Delivery:     NewDeliveryService(repos, cards, mailer),
		Bus:          events.NewBus(),
	}
	l.Delivery.Subscribe(l.Bus)
	return l
}

// Close flushes pending gateway logs.
func (l *Ledger) Close() {
	l.Gateway.Close()
}
