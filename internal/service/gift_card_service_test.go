package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftledger/internal/errors"
	"giftledger/internal/events"
	"giftledger/internal/model"
)

func TestGiftCardService_Issue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.variant(t, "25.00", false)

	tests := []struct {
		name    string
		params  IssueParams
		wantErr bool
	}{
		{name: "valid", params: IssueParams{VariantID: variant.ID, Email: "a@x.com", Name: "Alex"}},
		{name: "missing email", params: IssueParams{VariantID: variant.ID, Name: "Alex"}, wantErr: true},
		{name: "bad email", params: IssueParams{VariantID: variant.ID, Email: "nope", Name: "Alex"}, wantErr: true},
		{name: "missing name", params: IssueParams{VariantID: variant.ID, Email: "a@x.com"}, wantErr: true},
		{name: "bad sender email", params: IssueParams{VariantID: variant.ID, Email: "a@x.com", Name: "Alex", SenderEmail: "nope"}, wantErr: true},
		{name: "missing variant", params: IssueParams{Email: "a@x.com", Name: "Alex"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card, err := f.cards.Issue(ctx, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, card)
				return
			}
			require.NoError(t, err)
			assert.Len(t, card.Code, defaultCodeLength)
			assert.Equal(t, strings.ToUpper(card.Code), card.Code)
			assert.True(t, card.CurrentValue.Equal(dec("25.00")))
			assert.True(t, card.OriginalValue.Equal(dec("25.00")))
			assert.True(t, card.AuthorizedAmount.IsZero())
			assert.True(t, card.Active)
		})
	}

	_, err := f.cards.Issue(ctx, IssueParams{VariantID: uuid.New(), Email: "a@x.com", Name: "Alex"})
	assert.ErrorIs(t, err, errors.ErrVariantNotFound)
	assert.Contains(t, f.publisher.types(), events.TypeGiftCardIssued)
}

func TestGiftCardService_IssueFromLineItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	variant := f.variant(t, "30.00", true)
	order := f.order(t, "R500", "30.00", nil)

	item := &model.LineItem{OrderID: order.ID, VariantID: variant.ID, Quantity: 1, Price: dec("27.50")}
	require.NoError(t, f.repos.Orders.CreateLineItem(ctx, item))
	card, err := f.cards.Issue(ctx, IssueParams{VariantID: variant.ID, LineItemID: &item.ID, Email: "a@x.com", Name: "Alex"})
	require.NoError(t, err)
	assert.True(t, card.CurrentValue.Equal(dec("27.50")))

	bulk := &model.LineItem{OrderID: order.ID, VariantID: variant.ID, Quantity: 2, Price: dec("30.00")}
	require.NoError(t, f.repos.Orders.CreateLineItem(ctx, bulk))
	_, err = f.cards.Issue(ctx, IssueParams{VariantID: variant.ID, LineItemID: &bulk.ID, Email: "a@x.com", Name: "Alex"})
	assert.ErrorIs(t, err, errors.ErrInvalidQuantity)
}

func TestGiftCardService_FindByCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "10.00")

	found, err := f.cards.FindByCode(ctx, strings.ToLower(card.Code))
	require.NoError(t, err)
	assert.Equal(t, card.ID, found.ID)

	_, err = f.cards.FindByCode(ctx, "ZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, errors.ErrGiftCardNotFound)

	_, err = f.cards.FindByCode(ctx, "bad!")
	assert.ErrorIs(t, err, errors.ErrInvalidCode)
}

func TestGiftCardService_FindByCodeReadsFreshBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := newMemoryCodeCache()
	f.cards.cache = codes
	card := f.issue(t, "10.00")

	found, err := f.cards.FindByCode(ctx, card.Code)
	require.NoError(t, err)
	assertBalances(t, found, "10.00", "0")

	var cachedID uuid.UUID
	require.True(t, codes.GetJSON(ctx, f.cards.cacheKey(card.Code), &cachedID))
	assert.Equal(t, card.ID, cachedID)

	_, err = f.cards.Authorize(ctx, card.ID, dec("4.00"), "", model.OrderRef{})
	require.NoError(t, err)

	found, err = f.cards.FindByCode(ctx, card.Code)
	require.NoError(t, err)
	assertBalances(t, found, "10.00", "4.00")

	// An entry pointing at a missing card falls back to the code lookup.
	require.NoError(t, codes.SetJSON(ctx, f.cards.cacheKey(card.Code), uuid.New(), time.Minute))
	found, err = f.cards.FindByCode(ctx, card.Code)
	require.NoError(t, err)
	assert.Equal(t, card.ID, found.ID)
	require.True(t, codes.GetJSON(ctx, f.cards.cacheKey(card.Code), &cachedID))
	assert.Equal(t, card.ID, cachedID)
}

func TestGiftCardService_Wallet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "10.00")
	user := f.user(t, "a@x.com")

	owned, err := f.cards.BelongsTo(ctx, card.ID, user.ID)
	require.NoError(t, err)
	assert.False(t, owned)

	_, err = f.cards.AddToWallet(ctx, user.ID, card.Code)
	require.NoError(t, err)
	_, err = f.cards.AddToWallet(ctx, user.ID, card.Code)
	require.NoError(t, err)

	owned, err = f.cards.BelongsTo(ctx, card.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, owned)

	wallet, err := f.cards.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, wallet, 1)
	assert.Equal(t, card.ID, wallet[0].ID)

	_, err = f.cards.AddToWallet(ctx, uuid.New(), card.Code)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestGiftCardService_DeliverableAndMarkSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card, _ := f.purchasedCard(t, "20.00", true, true)
	f.issue(t, "5.00")

	due, err := f.cards.Deliverable(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, card.ID, due[0].ID)

	sent, err := f.cards.MarkSent(ctx, &due[0])
	require.NoError(t, err)
	assert.True(t, sent)
	assert.NotNil(t, due[0].SentAt)

	sent, err = f.cards.MarkSent(ctx, card)
	require.NoError(t, err)
	assert.False(t, sent)

	due, err = f.cards.Deliverable(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestGiftCardService_OrderActivatable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "10.00")
	time.Sleep(5 * time.Millisecond)
	order := f.order(t, "R700", "50.00", nil)

	ok, err := f.cards.OrderActivatable(ctx, card.ID, order.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	order.State = model.OrderStateComplete
	require.NoError(t, f.repos.Orders.Update(ctx, order))
	ok, err = f.cards.OrderActivatable(ctx, card.ID, order.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.cards.OrderActivatable(ctx, card.ID, uuid.New())
	assert.ErrorIs(t, err, errors.ErrOrderNotFound)
}
