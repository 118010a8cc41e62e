package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_go/internal/domain"
	"market_go/internal/engine"
	"market_go/internal/infra/memory"
)

type txFixture struct {
	economy   *fakeEconomy
	inventory *fakeInventory
	actions   *fakeActions
	notifier  *fakeNotifier
	journal   *fakeJournal
	closer    *fakeCloser
	tx        *TransactionEngine
	viewer    domain.ViewerID
}

func newTxFixture() *txFixture {
	f := &txFixture{
		economy:   newFakeEconomy(),
		inventory: newFakeInventory(),
		actions:   &fakeActions{},
		notifier:  &fakeNotifier{},
		journal:   &fakeJournal{},
		closer:    &fakeCloser{},
		viewer:    uuid.New(),
	}
	f.tx = NewTransactionEngine(TransactionDeps{
		Economy:   f.economy,
		Inventory: f.inventory,
		Actions:   f.actions,
		Notifier:  f.notifier,
		Clock:     engine.NewManualClock(epoch),
		Journal:   f.journal,
		Logger:    quietLogger(),
	})
	f.tx.SetViewCloser(f.closer)
	return f
}

func itemOffer(buy, sell *decimal.Decimal) *domain.LiveOffer {
	return &domain.LiveOffer{
		Position:  4,
		Name:      "Diamonds",
		BuyPrice:  buy,
		SellPrice: sell,
		Reward:    domain.ItemReward{Stack: domain.ItemStack{Type: "DIAMOND", Name: "Diamond", Amount: 2}},
	}
}

func TestBuy_Unbuyable(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(1_000_000)

	for _, o := range []*domain.LiveOffer{itemOffer(nil, nil), itemOffer(dec("0"), nil)} {
		entry := &domain.LedgerEntry{}
		_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)

		require.ErrorIs(t, err, domain.ErrUnbuyable)
		assert.Equal(t, 0, entry.Bought)
		assert.Equal(t, domain.MsgUnbuyable, f.notifier.last().key)
	}
	assert.Equal(t, 0, f.economy.withdraws)
	assert.Empty(t, f.closer.scheduled, "unbuyable must not close the view")
}

func TestBuy_Success(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(100)
	entry := &domain.LedgerEntry{}

	rcpt, err := f.tx.Buy(context.Background(), f.viewer, "alpha", itemOffer(dec("10"), nil), entry)
	require.NoError(t, err)

	assert.Equal(t, 1, entry.Bought)
	assert.True(t, f.economy.balances[f.viewer].Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 2, f.inventory.count(f.viewer, "DIAMOND"))

	msg := f.notifier.last()
	assert.Equal(t, domain.MsgBuySuccess, msg.key)
	assert.Equal(t, "2x Diamond", msg.placeholders["item"])
	assert.Equal(t, "10", msg.placeholders["price"])
	assert.Equal(t, "90", msg.placeholders["bal"])

	assert.Len(t, rcpt.ID, 26, "receipt id should be a ULID")
	assert.Equal(t, SideBuy, rcpt.Side)
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, rcpt.ID, f.journal.records[0].ID)
	assert.Equal(t, "alpha", f.journal.records[0].MarketID)
	assert.Equal(t, 4, f.journal.records[0].Position)
}

func TestBuy_InsufficientFunds(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(5)
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", itemOffer(dec("10"), nil), entry)

	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	var te *domain.TransactionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 4, te.Position)

	assert.True(t, f.economy.balances[f.viewer].Equal(decimal.NewFromInt(5)), "balance must be unchanged")
	assert.Equal(t, 0, entry.Bought)
	assert.Equal(t, []domain.ViewerID{f.viewer}, f.closer.scheduled)
	assert.Empty(t, f.journal.records)
}

func TestBuy_LimitReached(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(100)
	o := itemOffer(dec("10"), nil)
	o.BuyLimit = intp(1)
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Bought)

	_, err = f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
	require.ErrorIs(t, err, domain.ErrLimitReached)
	assert.Equal(t, 1, entry.Bought)
	assert.Equal(t, domain.MsgBuyLimitReached, f.notifier.last().key)
	assert.True(t, f.economy.balances[f.viewer].Equal(decimal.NewFromInt(90)))
}

func TestBuy_ZeroLimitIsUnlimited(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(100)
	o := itemOffer(dec("1"), nil)
	o.BuyLimit = intp(0)
	entry := &domain.LedgerEntry{}

	for i := 0; i < 5; i++ {
		_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
		require.NoError(t, err)
	}
	assert.Equal(t, 5, entry.Bought)
}

func TestBuy_BarterValidatedBeforeDebit(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(100)
	f.inventory.set(f.viewer, "WHEAT", 10)

	o := itemOffer(dec("10"), nil)
	o.Barter = []domain.ItemStack{{Type: "WHEAT", Amount: 20}}
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)

	require.ErrorIs(t, err, domain.ErrInsufficientItems)
	assert.Equal(t, domain.MsgInsufficientItems, f.notifier.last().key)
	assert.Equal(t, 0, f.economy.withdraws, "no partial debit")
	assert.Equal(t, 0, f.inventory.removes)
	assert.Equal(t, 10, f.inventory.count(f.viewer, "WHEAT"))
	assert.Equal(t, 0, entry.Bought)
	assert.Len(t, f.closer.scheduled, 1)
}

func TestBuy_RepeatedBarterItemSummed(t *testing.T) {
	wheat := domain.ItemStack{Type: "WHEAT", Amount: 32}
	emerald := domain.ItemStack{Type: "EMERALD", Amount: 1}

	cases := []struct {
		name     string
		holding  int
		wantErr  error
		wantBal  string
		wantLeft int
		wantGot  int
	}{
		{"short of the summed need", 40, domain.ErrInsufficientItems, "100", 40, 0},
		{"exactly the summed need", 64, nil, "90", 0, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			economy := memory.NewEconomy(decimal.NewFromInt(100))
			inventory := memory.NewInventory()
			notifier := &fakeNotifier{}
			closer := &fakeCloser{}
			tx := NewTransactionEngine(TransactionDeps{
				Economy:   economy,
				Inventory: inventory,
				Actions:   &fakeActions{},
				Notifier:  notifier,
				Clock:     engine.NewManualClock(epoch),
				Logger:    quietLogger(),
			})
			tx.SetViewCloser(closer)

			viewer := uuid.New()
			ctx := context.Background()
			require.NoError(t, inventory.Give(ctx, viewer, wheat, tc.holding))

			o := &domain.LiveOffer{
				Position: 2,
				Name:     "Emerald",
				BuyPrice: dec("10"),
				Barter:   []domain.ItemStack{wheat, wheat},
				Reward:   domain.ItemReward{Stack: emerald},
			}
			entry := &domain.LedgerEntry{}

			_, err := tx.Buy(ctx, viewer, "farmer", o, entry)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, domain.MsgInsufficientItems, notifier.last().key)
				assert.Len(t, closer.scheduled, 1)
			} else {
				require.NoError(t, err)
			}

			bal, _ := economy.Balance(ctx, viewer)
			assert.Equal(t, tc.wantBal, bal.String())
			assert.Equal(t, tc.wantLeft, inventory.Count(viewer, wheat))
			assert.Equal(t, tc.wantGot, inventory.Count(viewer, emerald))
			assert.Equal(t, tc.wantGot, entry.Bought)
		})
	}
}

func TestBuy_BarterPlaceholders(t *testing.T) {
	f := newTxFixture()
	f.inventory.set(f.viewer, "WHEAT", 64)
	f.inventory.set(f.viewer, "PAPER", 24)

	o := itemOffer(nil, nil)
	o.Barter = []domain.ItemStack{{Type: "WHEAT", Amount: 20}, {Type: "PAPER", Amount: 24}}
	entry := &domain.LedgerEntry{}

	rcpt, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)

	assert.Equal(t, 44, f.inventory.count(f.viewer, "WHEAT"))
	assert.Equal(t, 0, f.inventory.count(f.viewer, "PAPER"))
	assert.Equal(t, 0, f.economy.withdraws)
	assert.True(t, rcpt.Price.IsZero())

	ph := f.notifier.last().placeholders
	assert.Equal(t, "", ph["price"])
	assert.Equal(t, "20x WHEAT", ph["item0"])
	assert.Equal(t, "24x PAPER", ph["item1"])
}

func TestBuy_CommandReward(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.RequireFromString("250.5")
	o := &domain.LiveOffer{
		Position: 1,
		Name:     "Flight",
		BuyPrice: dec("250.25"),
		Reward:   domain.CommandReward{BuyActions: []string{"fly <player> on"}},
	}
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)

	assert.Equal(t, []string{"fly <player> on"}, f.actions.ran)
	ph := f.notifier.last().placeholders
	assert.Equal(t, "Flight", ph["item"])
	assert.Equal(t, "250.25", ph["price"])
	assert.Equal(t, "0.25", ph["bal"])
	assert.Equal(t, 1, entry.Bought)
}

func TestBuy_FailingActionsStillComplete(t *testing.T) {
	f := newTxFixture()
	f.economy.balances[f.viewer] = decimal.NewFromInt(100)
	f.actions.err = errors.New("console unavailable")
	o := &domain.LiveOffer{
		Position: 1,
		Name:     "Flight",
		BuyPrice: dec("40"),
		Reward:   domain.CommandReward{BuyActions: []string{"fly <player> on"}},
	}
	entry := &domain.LedgerEntry{}

	rcpt, err := f.tx.Buy(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)

	assert.Equal(t, "60", rcpt.Balance.String())
	assert.Equal(t, 1, entry.Bought)
	assert.Equal(t, domain.MsgBuySuccess, f.notifier.last().key)
	assert.Len(t, f.journal.records, 1)
}

func TestSell_Unsellable(t *testing.T) {
	f := newTxFixture()
	f.inventory.set(f.viewer, "DIAMOND", 64)
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Sell(context.Background(), f.viewer, "alpha", itemOffer(dec("10"), nil), entry)
	require.ErrorIs(t, err, domain.ErrUnsellable)
	assert.Equal(t, 0, entry.Sold)
	assert.Equal(t, domain.MsgUnsellable, f.notifier.last().key)
}

func TestSell_NotEnoughItems(t *testing.T) {
	f := newTxFixture()
	f.inventory.set(f.viewer, "DIAMOND", 1)
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Sell(context.Background(), f.viewer, "alpha", itemOffer(nil, dec("3")), entry)

	require.ErrorIs(t, err, domain.ErrInsufficientItems)
	assert.Equal(t, domain.MsgNotEnoughItems, f.notifier.last().key)
	assert.Equal(t, 0, f.economy.deposits)
	assert.Equal(t, 0, entry.Sold)
	assert.Len(t, f.closer.scheduled, 1)
}

func TestSell_Success(t *testing.T) {
	f := newTxFixture()
	f.inventory.set(f.viewer, "DIAMOND", 5)
	o := itemOffer(nil, dec("3.5"))
	o.SellLimit = intp(1)
	entry := &domain.LedgerEntry{}

	rcpt, err := f.tx.Sell(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)

	assert.Equal(t, 1, entry.Sold)
	assert.Equal(t, 3, f.inventory.count(f.viewer, "DIAMOND"))
	assert.True(t, f.economy.balances[f.viewer].Equal(decimal.RequireFromString("3.5")))
	assert.Equal(t, SideSell, rcpt.Side)

	msg := f.notifier.last()
	assert.Equal(t, domain.MsgSellSuccess, msg.key)
	assert.Equal(t, "3.5", msg.placeholders["price"])

	_, err = f.tx.Sell(context.Background(), f.viewer, "alpha", o, entry)
	require.ErrorIs(t, err, domain.ErrLimitReached)
	assert.Equal(t, domain.MsgSellLimitReached, f.notifier.last().key)
}

func TestSell_CommandSkipsItemCheck(t *testing.T) {
	f := newTxFixture()
	o := &domain.LiveOffer{
		Name:      "Rank refund",
		SellPrice: dec("40"),
		Reward:    domain.CommandReward{SellActions: []string{"rank <player> remove vip"}},
	}
	entry := &domain.LedgerEntry{}

	_, err := f.tx.Sell(context.Background(), f.viewer, "alpha", o, entry)
	require.NoError(t, err)

	assert.Equal(t, []string{"rank <player> remove vip"}, f.actions.ran)
	assert.True(t, f.economy.balances[f.viewer].Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 1, entry.Sold)
}
