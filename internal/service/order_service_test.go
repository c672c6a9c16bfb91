package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"giftledger/internal/errors"
	"giftledger/internal/model"
)

func TestOrderService_GiftCardThenStoreCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)
	credits := NewStoreCreditService(f.repos, "")

	user := f.user(t, "buyer@example.com")
	order := f.order(t, "R100", "500.00", user)
	card := f.issue(t, "400.00")
	_, err := credits.GrantCredit(ctx, nil, user, dec("150.00"), "Goodwill", "")
	require.NoError(t, err)

	payment, err := orders.AddGiftCardPayments(ctx, order.ID, card)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.True(t, payment.Amount.Equal(dec("400.00")))
	assert.Equal(t, model.PaymentStateCheckout, payment.State)
	assert.NotEmpty(t, payment.ResponseCode)
	assertBalances(t, f.reload(t, card.ID), "400.00", "400.00")

	creditPayments, err := orders.AddStoreCreditPayments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, creditPayments, 1)
	assert.True(t, creditPayments[0].Amount.Equal(dec("100.00")))

	remaining, err := orders.OrderTotalAfterCredit(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, remaining.IsZero(), "got %s", remaining)

	using, err := orders.UsingGiftCard(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, using)

	// Reapplying replaces the stale payment and its hold.
	again, err := orders.AddGiftCardPayments(ctx, order.ID, card)
	require.NoError(t, err)
	assert.NotEqual(t, payment.ID, again.ID)
	assert.NotEqual(t, payment.ResponseCode, again.ResponseCode)
	assert.True(t, again.Amount.Equal(dec("400.00")))
	assertBalances(t, f.reload(t, card.ID), "400.00", "400.00")

	applied, err := orders.TotalAppliedGiftCard(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec("400.00")))

	stale, err := f.repos.Payments.FindByID(ctx, payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStateInvalid, stale.State)
}

func TestOrderService_GiftCardCoversWholeOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	order := f.order(t, "R101", "30.00", nil)
	card := f.issue(t, "100.00")

	payment, err := orders.AddGiftCardPayments(ctx, order.ID, card)
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(dec("30.00")))
	assertBalances(t, f.reload(t, card.ID), "100.00", "30.00")

	payments, err := orders.AddStoreCreditPayments(ctx, order.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestOrderService_RemoveGiftCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	order := f.order(t, "R102", "50.00", nil)
	card := f.issue(t, "20.00")

	_, err := orders.AddGiftCardPayments(ctx, order.ID, card)
	require.NoError(t, err)
	assertBalances(t, f.reload(t, card.ID), "20.00", "20.00")

	payment, err := orders.AddGiftCardPayments(ctx, order.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, payment)
	assertBalances(t, f.reload(t, card.ID), "20.00", "0")

	using, err := orders.UsingGiftCard(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, using)

	total, err := orders.OrderTotalAfterCredit(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("50.00")))
}

func TestOrderService_StoreCreditPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	user := f.user(t, "buyer@example.com")
	order := f.order(t, "R103", "60.00", user)

	exhausted := &model.StoreCredit{UserID: user.ID, Amount: dec("10.00"), AmountUsed: dec("10.00"), Category: "Goodwill"}
	second := &model.StoreCredit{UserID: user.ID, Amount: dec("30.00"), Category: "Goodwill", Priority: 1}
	first := &model.StoreCredit{UserID: user.ID, Amount: dec("50.00"), Category: "Goodwill"}
	for _, credit := range []*model.StoreCredit{exhausted, second, first} {
		require.NoError(t, f.repos.StoreCredits.Create(ctx, credit))
	}

	payments, err := orders.AddStoreCreditPayments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, first.ID, payments[0].SourceID)
	assert.True(t, payments[0].Amount.Equal(dec("50.00")))
	assert.Equal(t, second.ID, payments[1].SourceID)
	assert.True(t, payments[1].Amount.Equal(dec("10.00")))

	// Recomputing invalidates the previous checkout payments.
	payments, err = orders.AddStoreCreditPayments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	applied, err := orders.TotalAppliedStoreCredit(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec("60.00")))

	total, err := NewStoreCreditService(f.repos, "").TotalRemaining(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("80.00")))
}

func TestOrderService_OrderNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	_, err := orders.AddGiftCardPayments(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, errors.ErrOrderNotFound)

	_, err = orders.AddStoreCreditPayments(ctx, uuid.New())
	assert.ErrorIs(t, err, errors.ErrOrderNotFound)
}

func TestOrderService_GiftCardNothingToCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	tests := []struct {
		name   string
		total  string
		credit string
		card   string
		spend  string
	}{
		{name: "store credit covers order", total: "40.00", credit: "40.00", card: "25.00"},
		{name: "card exhausted", total: "40.00", card: "25.00", spend: "25.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := f.user(t, uuid.NewString()+"@example.com")
			order := f.order(t, "R"+uuid.NewString()[:8], tt.total, user)
			card := f.issue(t, tt.card)
			if tt.credit != "" {
				require.NoError(t, f.repos.StoreCredits.Create(ctx, &model.StoreCredit{UserID: user.ID, Amount: dec(tt.credit), Category: "Goodwill"}))
				_, err := orders.AddStoreCreditPayments(ctx, order.ID)
				require.NoError(t, err)
			}
			if tt.spend != "" {
				require.NoError(t, f.cards.Debit(ctx, card.ID, dec(tt.spend), model.OrderRef{}))
			}
			before, err := f.cards.History(ctx, card.ID)
			require.NoError(t, err)

			payment, err := orders.AddGiftCardPayments(ctx, order.ID, card)
			require.NoError(t, err)
			assert.Nil(t, payment)

			after, err := f.cards.History(ctx, card.ID)
			require.NoError(t, err)
			assert.Len(t, after, len(before))
			using, err := orders.UsingGiftCard(ctx, order.ID)
			require.NoError(t, err)
			assert.False(t, using)
			payments, err := f.repos.Payments.ListByOrder(ctx, order.ID, model.PaymentSourceGiftCard)
			require.NoError(t, err)
			assert.Empty(t, payments)
		})
	}
}

func TestOrderService_ConcurrentGiftCardApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	order := f.order(t, "R104", "30.00", nil)
	card := f.issue(t, "100.00")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := orders.AddGiftCardPayments(ctx, order.ID, card)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	live, err := f.repos.Payments.ListByOrderInState(ctx, order.ID, model.PaymentSourceGiftCard, model.PaymentStateCheckout)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.True(t, live[0].Amount.Equal(dec("30.00")))
	assertBalances(t, f.reload(t, card.ID), "100.00", "30.00")
}

func TestOrderService_StoreCreditRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orders := NewOrderService(f.repos, f.cards)

	user := f.user(t, "buyer@example.com")
	order := f.order(t, "R105", "60.00", user)
	require.NoError(t, f.repos.StoreCredits.Create(ctx, &model.StoreCredit{UserID: user.ID, Amount: dec("50.00"), Category: "Goodwill"}))
	require.NoError(t, f.repos.StoreCredits.Create(ctx, &model.StoreCredit{UserID: user.ID, Amount: dec("30.00"), Category: "Goodwill", Priority: 1}))

	original, err := orders.AddStoreCreditPayments(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, original, 2)

	// Fail the second payment insert once armed.
	var armed atomic.Bool
	var inserts atomic.Int32
	err = f.db.Callback().Create().Before("gorm:create").Register("test:fail_payment", func(tx *gorm.DB) {
		if !armed.Load() || tx.Statement.Table != "payments" {
			return
		}
		if inserts.Add(1) == 2 {
			_ = tx.AddError(errors.New("payments insert failed"))
		}
	})
	require.NoError(t, err)
	armed.Store(true)

	_, err = orders.AddStoreCreditPayments(ctx, order.ID)
	require.Error(t, err)
	armed.Store(false)

	applied, err := orders.TotalAppliedStoreCredit(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec("60.00")), "applied store credit: %s", applied)

	live, err := f.repos.Payments.ListByOrderInState(ctx, order.ID, model.PaymentSourceStoreCredit, model.PaymentStateCheckout)
	require.NoError(t, err)
	require.Len(t, live, 2)
	ids := []uuid.UUID{live[0].ID, live[1].ID}
	assert.Contains(t, ids, original[0].ID)
	assert.Contains(t, ids, original[1].ID)
}
