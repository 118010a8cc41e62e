package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_go/internal/domain"
)

func TestSession_OpenUnknownMarket(t *testing.T) {
	h := newHarness()
	_, err := h.sessions.Open(uuid.New(), "nowhere", &fakeView{})
	require.ErrorIs(t, err, domain.ErrUnknownMarket)
	assert.Equal(t, 0, h.sessions.Count())
}

func TestSession_OpenRendersAndLookup(t *testing.T) {
	h := newHarness(slotMarket("alpha", domain.OfferTemplate{
		Kind: domain.RewardItem,
		Item: domain.ItemDescriptor{Type: "DIAMOND"},
		Buy:  domain.PriceBand{Fixed: dec("10")},
	}))
	viewer := uuid.New()
	view := &fakeView{}

	sess, err := h.sessions.Open(viewer, "alpha", view)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sess.Generation)
	assert.Equal(t, 1, view.renders)
	assert.Len(t, view.offers, 1)
	assert.Nil(t, view.trades, "slot grids carry no trade list")

	id, ok := h.sessions.Lookup(viewer)
	assert.True(t, ok)
	assert.Equal(t, "alpha", id)

	assert.True(t, h.sessions.Close(viewer, domain.CloseVoluntary))
	_, ok = h.sessions.Lookup(viewer)
	assert.False(t, ok)
	assert.False(t, view.closed, "voluntary close leaves the view to its owner")
	assert.False(t, h.sessions.Close(viewer, domain.CloseVoluntary))
}

// Trade progress survives a close/reopen within a generation and is dropped on refresh.
func TestSession_TradeSnapshotLifecycle(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	viewer := uuid.New()

	view := &fakeView{}
	_, err := h.sessions.Open(viewer, "bazaar", view)
	require.NoError(t, err)
	require.Len(t, view.trades, 1)
	assert.Equal(t, 0, view.trades[0].Uses)
	assert.Equal(t, 3, view.trades[0].MaxUses)

	// The viewer works the trade twice, then closes.
	view.trades[0].Uses = 2
	h.sessions.Close(viewer, domain.CloseVoluntary)

	m, _ := h.registry.Get("bazaar")
	saved, ok := m.SavedTrades(viewer)
	require.True(t, ok)
	assert.Equal(t, 2, saved[0].Uses)

	reopened := &fakeView{}
	_, err = h.sessions.Open(viewer, "bazaar", reopened)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.trades[0].Uses, "reopen shows the depleted snapshot")
	h.sessions.Close(viewer, domain.CloseVoluntary)

	require.True(t, h.registry.Scheduler().RefreshNow("bazaar"))

	fresh := &fakeView{}
	_, err = h.sessions.Open(viewer, "bazaar", fresh)
	require.NoError(t, err)
	assert.Equal(t, 0, fresh.trades[0].Uses, "refresh discards the snapshot")
}

func TestSession_UnloadedSkipsCapture(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	viewer := uuid.New()
	view := &fakeView{}

	_, err := h.sessions.Open(viewer, "bazaar", view)
	require.NoError(t, err)
	view.trades[0].Uses = 1

	h.sessions.Close(viewer, domain.CloseUnloaded)

	m, _ := h.registry.Get("bazaar")
	_, ok := m.SavedTrades(viewer)
	assert.False(t, ok, "teardown must not read the view")
	assert.True(t, view.closed)
}

func TestSession_StaleGenerationNotSaved(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	viewer := uuid.New()
	view := &fakeView{}

	sess, err := h.sessions.Open(viewer, "bazaar", view)
	require.NoError(t, err)
	view.trades[0].Uses = 1
	sess.Generation--

	h.sessions.Close(viewer, domain.CloseVoluntary)

	m, _ := h.registry.Get("bazaar")
	_, ok := m.SavedTrades(viewer)
	assert.False(t, ok)
}

func TestSession_RefreshRerendersOpenViews(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	viewer := uuid.New()
	view := &fakeView{}

	sess, err := h.sessions.Open(viewer, "bazaar", view)
	require.NoError(t, err)
	view.trades[0].Uses = 3

	h.clock.Advance(time.Hour)

	assert.Equal(t, 2, view.renders)
	assert.Equal(t, 0, view.trades[0].Uses, "view shows the new canonical trades")
	assert.Equal(t, uint64(2), sess.Generation)
	assert.Contains(t, h.notifier.broadcasts, domain.MsgMarketRefreshed)
}

func TestSession_ScheduleCloseAfterDelay(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	viewer := uuid.New()
	view := &fakeView{}

	_, err := h.sessions.Open(viewer, "bazaar", view)
	require.NoError(t, err)
	view.trades[0].Uses = 1

	h.sessions.ScheduleClose(viewer)
	h.sessions.ScheduleClose(viewer)

	h.clock.Advance(DefaultCloseDelay - time.Millisecond)
	_, open := h.sessions.Lookup(viewer)
	assert.True(t, open, "close waits for the delay")

	h.clock.Advance(time.Millisecond)
	_, open = h.sessions.Lookup(viewer)
	assert.False(t, open)
	assert.True(t, view.closed)

	m, _ := h.registry.Get("bazaar")
	_, saved := m.SavedTrades(viewer)
	assert.False(t, saved, "deferred close uses the teardown reason")
}

func TestSession_ReloadClosesEverything(t *testing.T) {
	h := newHarness(tradeMarket("bazaar"))
	views := []*fakeView{{}, {}}
	for _, v := range views {
		_, err := h.sessions.Open(uuid.New(), "bazaar", v)
		require.NoError(t, err)
	}

	h.registry.Reload([]domain.MarketDefinition{tradeMarket("bazaar")})

	assert.Equal(t, 0, h.sessions.Count())
	for _, v := range views {
		assert.True(t, v.closed)
	}
}

func TestSession_InsufficientFundsClosesView(t *testing.T) {
	h := newHarness(slotMarket("alpha", domain.OfferTemplate{
		Kind: domain.RewardItem,
		Item: domain.ItemDescriptor{Type: "DIAMOND"},
		Buy:  domain.PriceBand{Fixed: dec("10")},
	}))
	viewer := uuid.New()
	view := &fakeView{}
	_, err := h.svc.Open(viewer, "alpha", view)
	require.NoError(t, err)

	_, err = h.svc.Buy(context.Background(), viewer, "alpha", 0)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.False(t, view.closed)

	h.clock.Advance(DefaultCloseDelay)
	assert.True(t, view.closed)
	assert.Equal(t, 0, h.sessions.Count())
}
