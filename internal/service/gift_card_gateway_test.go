package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"giftledger/internal/model"
)

func TestGatewayOptions_OrderNumber(t *testing.T) {
	tests := []struct {
		orderID  string
		expected string
	}{
		{orderID: "R123-XYZ", expected: "R123"},
		{orderID: "R123", expected: "R123"},
		{orderID: "R123-A-B", expected: "R123"},
		{orderID: "", expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.orderID, func(t *testing.T) {
			assert.Equal(t, tt.expected, GatewayOptions{OrderID: tt.orderID}.OrderNumber())
		})
	}
}

func TestGiftCardGateway_AuthorizeCaptureCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := NewGiftCardGateway(f.cards, f.repos.GatewayLogs)
	card := f.issue(t, "25.00")
	opts := GatewayOptions{OrderID: "R123-XYZ"}

	resp, err := gateway.Authorize(ctx, 1300, card, opts)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)
	require.NotEmpty(t, resp.Authorization)
	code := resp.Authorization

	again, err := gateway.Authorize(ctx, 1300, card, GatewayOptions{OrderID: "R123-XYZ", AuthorizationCode: code})
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, code, again.Authorization)
	assertBalances(t, f.reload(t, card.ID), "25.00", "13.00")

	resp, err = gateway.Capture(ctx, 1300, code, opts)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	assert.Equal(t, code, resp.Authorization)
	assertBalances(t, f.reload(t, card.ID), "12.00", "0")

	resp, err = gateway.Credit(ctx, 1300, code, opts)
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)
	assertBalances(t, f.reload(t, card.ID), "25.00", "0")

	entries, err := f.cards.History(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, "R123", entry.OrderNumber)
	}

	gateway.Close()
	logs, err := f.repos.GatewayLogs.ListByGiftCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}

func TestGiftCardGateway_Declines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := NewGiftCardGateway(f.cards, f.repos.GatewayLogs)
	defer gateway.Close()
	card := f.issue(t, "10.00")

	resp, err := gateway.Authorize(ctx, 100, nil, GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unable to find the specified gift card.", resp.Message)

	resp, err = gateway.Authorize(ctx, 1001, card, GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "insufficient funds")

	resp, err = gateway.Capture(ctx, 100, "GC-MISSING", GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Unable to find gift card for capture with authorization code GC-MISSING.", resp.Message)

	resp, err = gateway.Void(ctx, "GC-MISSING", GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	resp, err = gateway.Credit(ctx, 100, "GC-MISSING", GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	auth, err := gateway.Authorize(ctx, 500, card, GatewayOptions{})
	require.NoError(t, err)
	resp, err = gateway.Capture(ctx, 600, auth.Authorization, GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "insufficient authorized amount")

	resp, err = gateway.Void(ctx, auth.Authorization, GatewayOptions{})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	resp, err = gateway.Void(ctx, auth.Authorization, GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	assertBalances(t, f.reload(t, card.ID), "10.00", "0")
}

func TestGiftCardGateway_Purchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := NewGiftCardGateway(f.cards, f.repos.GatewayLogs)
	defer gateway.Close()
	card := f.issue(t, "25.00")

	resp, err := gateway.Purchase(ctx, 2000, card, GatewayOptions{OrderID: "R9-1"})
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)
	assert.NotEmpty(t, resp.Authorization)
	assertBalances(t, f.reload(t, card.ID), "5.00", "0")

	resp, err = gateway.Purchase(ctx, 600, card, GatewayOptions{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Empty(t, resp.Authorization)
	assertBalances(t, f.reload(t, card.ID), "5.00", "0")

	entries, err := f.cards.History(ctx, card.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.ActionAuthorize, entries[0].Action)
	assert.Equal(t, model.ActionCapture, entries[1].Action)
}

func TestGiftCardGateway_Capabilities(t *testing.T) {
	f := newFixture(t)
	gateway := NewGiftCardGateway(f.cards, f.repos.GatewayLogs)
	defer gateway.Close()

	assert.Equal(t, []string{"capture", "void"}, gateway.Actions())

	tests := []struct {
		state      model.PaymentState
		canVoid    bool
		canCapture bool
	}{
		{state: model.PaymentStateCheckout, canVoid: false, canCapture: true},
		{state: model.PaymentStatePending, canVoid: true, canCapture: true},
		{state: model.PaymentStateCompleted, canVoid: false, canCapture: false},
		{state: model.PaymentStateVoid, canVoid: false, canCapture: false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			payment := &model.Payment{State: tt.state}
			assert.Equal(t, tt.canVoid, gateway.CanVoid(payment))
			assert.Equal(t, tt.canCapture, gateway.CanCapture(payment))
		})
	}
}

func TestGiftCardGateway_CallsAfterClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gateway := NewGiftCardGateway(f.cards, f.repos.GatewayLogs)
	card := f.issue(t, "10.00")

	gateway.Close()
	gateway.Close()

	var resp Response
	var err error
	require.NotPanics(t, func() {
		resp, err = gateway.Authorize(ctx, 100, card, GatewayOptions{})
	})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)

	require.NotPanics(t, func() {
		resp, err = gateway.Void(ctx, "GC-MISSING", GatewayOptions{})
	})
	require.NoError(t, err)
	assert.False(t, resp.Success)

	logs, err := f.repos.GatewayLogs.ListByGiftCard(ctx, card.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assertBalances(t, f.reload(t, card.ID), "10.00", "1.00")
}
