package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"giftledger/internal/db"
	"giftledger/internal/events"
	"giftledger/internal/lock"
	"giftledger/internal/model"
	"giftledger/internal/repository"
)

// recordingPublisher keeps every published event in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// memoryCodeCache keeps cached code lookups in a map.
type memoryCodeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemoryCodeCache() *memoryCodeCache {
	return &memoryCodeCache{entries: make(map[string][]byte)}
}

func (c *memoryCodeCache) GetJSON(_ context.Context, key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *memoryCodeCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = data
	return nil
}

// MockStoreCreditGranter is a mock implementation of StoreCreditGranter.
type MockStoreCreditGranter struct {
	mock.Mock
}

func (m *MockStoreCreditGranter) GrantCredit(ctx context.Context, tx *repository.Repositories, user *model.User, amount decimal.Decimal, category, memo string) (*model.StoreCredit, error) {
	args := m.Called(ctx, tx, user, amount, category, memo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.StoreCredit), args.Error(1)
}

// MockMailer is a mock implementation of Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendGiftCardEmail(ctx context.Context, card *model.GiftCard, order *model.Order) error {
	args := m.Called(ctx, card, order)
	return args.Error(0)
}

type fixture struct {
	db        *gorm.DB
	repos     *repository.Repositories
	cards     *GiftCardService
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.Open(":memory:", db.Options{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	repos := repository.New(conn)
	publisher := &recordingPublisher{}
	cards := NewGiftCardService(repos, lock.NewMutexLocker(), nil, publisher, GiftCardOptions{})
	return &fixture{db: conn, repos: repos, cards: cards, publisher: publisher}
}

func (f *fixture) variant(t *testing.T, price string, eGift bool) *model.Variant {
	t.Helper()
	ctx := context.Background()
	product := &model.Product{Name: "Gift Card", Slug: uuid.NewString(), IsGiftCard: !eGift, IsEGiftCard: eGift}
	require.NoError(t, f.repos.Catalog.CreateProduct(ctx, product))
	variant := &model.Variant{ProductID: product.ID, SKU: "GC-" + price, Price: decimal.RequireFromString(price), Product: product}
	require.NoError(t, f.repos.Catalog.CreateVariant(ctx, variant))
	return variant
}

func (f *fixture) issue(t *testing.T, price string) *model.GiftCard {
	t.Helper()
	variant := f.variant(t, price, false)
	card, err := f.cards.Issue(context.Background(), IssueParams{
		VariantID: variant.ID,
		Email:     "a@x.com",
		Name:      "Alex",
	})
	require.NoError(t, err)
	return card
}

func (f *fixture) user(t *testing.T, email string) *model.User {
	t.Helper()
	user := &model.User{Name: "Alex", Email: email}
	require.NoError(t, f.repos.Users.Create(context.Background(), user))
	return user
}

func (f *fixture) order(t *testing.T, number string, total string, user *model.User) *model.Order {
	t.Helper()
	order := &model.Order{Number: number, Email: "buyer@example.com", State: model.OrderStatePayment, Total: decimal.RequireFromString(total)}
	if user != nil {
		order.UserID = &user.ID
	}
	require.NoError(t, f.repos.Orders.Create(context.Background(), order))
	return order
}

// purchasedCard issues a card from a line item on a new order, completed when complete is true.
func (f *fixture) purchasedCard(t *testing.T, price string, eGift, complete bool) (*model.GiftCard, *model.Order) {
	t.Helper()
	ctx := context.Background()
	variant := f.variant(t, price, eGift)
	order := f.order(t, "R"+uuid.NewString()[:8], price, nil)
	if complete {
		now := time.Now()
		order.State = model.OrderStateComplete
		order.CompletedAt = &now
		require.NoError(t, f.repos.Orders.Update(ctx, order))
	}
	item := &model.LineItem{OrderID: order.ID, VariantID: variant.ID, Quantity: 1, Price: variant.Price}
	require.NoError(t, f.repos.Orders.CreateLineItem(ctx, item))

	past := time.Now().Add(-time.Minute)
	card, err := f.cards.Issue(ctx, IssueParams{
		VariantID:   variant.ID,
		LineItemID:  &item.ID,
		Email:       "a@x.com",
		Name:        "Alex",
		SenderEmail: "sender@x.com",
		SenderName:  "Sam",
		DeliveryOn:  &past,
	})
	require.NoError(t, err)
	return card, order
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *model.GiftCard {
	t.Helper()
	card, err := f.repos.GiftCards.FindByID(context.Background(), id)
	require.NoError(t, err)
	return card
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertBalances(t *testing.T, card *model.GiftCard, current, authorized string) {
	t.Helper()
	require.Truef(t, card.CurrentValue.Equal(dec(current)), "current_value: want %s, got %s", current, card.CurrentValue)
	require.Truef(t, card.AuthorizedAmount.Equal(dec(authorized)), "authorized_amount: want %s, got %s", authorized, card.AuthorizedAmount)
}
