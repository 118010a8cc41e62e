package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"market_go/internal/domain"
	"market_go/internal/engine"
	"market_go/internal/offer"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeEconomy struct {
	balances  map[domain.ViewerID]decimal.Decimal
	withdraws int
	deposits  int
}

func newFakeEconomy() *fakeEconomy {
	return &fakeEconomy{balances: make(map[domain.ViewerID]decimal.Decimal)}
}

func (e *fakeEconomy) Balance(_ context.Context, v domain.ViewerID) (decimal.Decimal, error) {
	return e.balances[v], nil
}

func (e *fakeEconomy) Withdraw(_ context.Context, v domain.ViewerID, amt decimal.Decimal) error {
	e.withdraws++
	e.balances[v] = e.balances[v].Sub(amt)
	return nil
}

func (e *fakeEconomy) Deposit(_ context.Context, v domain.ViewerID, amt decimal.Decimal) error {
	e.deposits++
	e.balances[v] = e.balances[v].Add(amt)
	return nil
}

type fakeInventory struct {
	items   map[domain.ViewerID]map[string]int
	removes int
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{items: make(map[domain.ViewerID]map[string]int)}
}

func (i *fakeInventory) set(v domain.ViewerID, typ string, qty int) {
	if i.items[v] == nil {
		i.items[v] = make(map[string]int)
	}
	i.items[v][typ] = qty
}

func (i *fakeInventory) count(v domain.ViewerID, typ string) int {
	return i.items[v][typ]
}

func (i *fakeInventory) HasAtLeast(_ context.Context, v domain.ViewerID, item domain.ItemStack, qty int) (bool, error) {
	return i.items[v][item.Type] >= qty, nil
}

func (i *fakeInventory) Remove(_ context.Context, v domain.ViewerID, item domain.ItemStack, qty int) error {
	i.removes++
	if i.items[v][item.Type] < qty {
		return fmt.Errorf("remove %s: not enough", item.Type)
	}
	i.items[v][item.Type] -= qty
	return nil
}

func (i *fakeInventory) Give(_ context.Context, v domain.ViewerID, item domain.ItemStack, qty int) error {
	if i.items[v] == nil {
		i.items[v] = make(map[string]int)
	}
	i.items[v][item.Type] += qty
	return nil
}

type fakeActions struct {
	ran []string
	err error
}

func (a *fakeActions) Run(_ context.Context, _ domain.ViewerID, actions []string) error {
	a.ran = append(a.ran, actions...)
	return a.err
}

type sentMessage struct {
	viewer       domain.ViewerID
	key          string
	placeholders map[string]string
}

type fakeNotifier struct {
	sent       []sentMessage
	broadcasts []string
}

func (n *fakeNotifier) Send(v domain.ViewerID, key string, ph map[string]string) {
	n.sent = append(n.sent, sentMessage{viewer: v, key: key, placeholders: ph})
}

func (n *fakeNotifier) Broadcast(key string, _ map[string]string) {
	n.broadcasts = append(n.broadcasts, key)
}

func (n *fakeNotifier) last() sentMessage {
	if len(n.sent) == 0 {
		return sentMessage{}
	}
	return n.sent[len(n.sent)-1]
}

type fakeJournal struct {
	records []domain.TransactionRecord
}

func (j *fakeJournal) Record(_ context.Context, rec domain.TransactionRecord) error {
	j.records = append(j.records, rec)
	return nil
}

type fakeCloser struct {
	scheduled []domain.ViewerID
}

func (c *fakeCloser) ScheduleClose(v domain.ViewerID) {
	c.scheduled = append(c.scheduled, v)
}

type fakeView struct {
	renders int
	offers  []*domain.LiveOffer
	trades  []domain.TradeState
	closed  bool
}

func (v *fakeView) Render(offers []*domain.LiveOffer, trades []domain.TradeState) {
	v.renders++
	v.offers = offers
	v.trades = domain.CloneTrades(trades)
}

func (v *fakeView) Trades() ([]domain.TradeState, bool) {
	if v.trades == nil {
		return nil, false
	}
	return domain.CloneTrades(v.trades), true
}

func (v *fakeView) Close() { v.closed = true }

type stubCatalog struct{}

func (stubCatalog) Resolve(desc domain.ItemDescriptor, amount int, _ *domain.EnchantSpec) (domain.ItemStack, error) {
	if desc.Type == "" {
		return domain.ItemStack{}, domain.ErrInvalidItemDescriptor
	}
	return domain.ItemStack{Type: desc.Type, Name: desc.Name, Amount: amount}, nil
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intp(v int) *int { return &v }

// harness wires a real registry, scheduler, tracker and engine over fakes.
type harness struct {
	clock     *engine.ManualClock
	registry  *engine.Registry
	economy   *fakeEconomy
	inventory *fakeInventory
	actions   *fakeActions
	notifier  *fakeNotifier
	journal   *fakeJournal
	tx        *TransactionEngine
	sessions  *SessionTracker
	svc       *MarketService
}

func newHarness(defs ...domain.MarketDefinition) *harness {
	h := &harness{
		clock:     engine.NewManualClock(epoch),
		economy:   newFakeEconomy(),
		inventory: newFakeInventory(),
		actions:   &fakeActions{},
		notifier:  &fakeNotifier{},
		journal:   &fakeJournal{},
	}
	h.registry = engine.NewRegistry(engine.Options{
		Generator: offer.NewGenerator(stubCatalog{}, offer.DefaultPolicy(), quietLogger()),
		Clock:     h.clock,
		Notifier:  h.notifier,
		Logger:    quietLogger(),
	})
	h.tx = NewTransactionEngine(TransactionDeps{
		Economy:   h.economy,
		Inventory: h.inventory,
		Actions:   h.actions,
		Notifier:  h.notifier,
		Clock:     h.clock,
		Journal:   h.journal,
		Logger:    quietLogger(),
	})
	h.sessions = NewSessionTracker(h.registry, h.clock, DefaultCloseDelay, nil, quietLogger())
	h.tx.SetViewCloser(h.sessions)
	h.svc = NewMarketService(h.registry, h.tx, h.sessions, h.notifier, h.clock, map[string]string{"shop": "alpha"}, quietLogger())
	h.registry.Load(defs)
	return h
}

func slotMarket(id string, templates ...domain.OfferTemplate) domain.MarketDefinition {
	def := domain.MarketDefinition{
		ID:              id,
		Name:            id,
		Kind:            domain.KindSlotGrid,
		RefreshInterval: "10m",
		Pool:            templates,
	}
	for i := range templates {
		def.Positions = append(def.Positions, i)
	}
	return def
}

func tradeMarket(id string) domain.MarketDefinition {
	return domain.MarketDefinition{
		ID:              id,
		Name:            id,
		Kind:            domain.KindTradeSet,
		RefreshInterval: "1h",
		Positions:       []int{0},
		Pool: []domain.OfferTemplate{{
			Item:     domain.ItemDescriptor{Type: "EMERALD"},
			Barter:   []domain.BarterTemplate{{Item: domain.ItemDescriptor{Type: "WHEAT"}, Amount: domain.AmountRange{Fixed: intp(20)}}},
			BuyLimit: intp(3),
		}},
	}
}
