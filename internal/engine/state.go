package engine

import (
	"time"

	"market_go/internal/domain"
)

type refreshPhase int

const (
	phaseIdle refreshPhase = iota
	phaseArmed
	phaseFiring
	phaseCancelled
)

// String returns the string representation of refreshPhase
func (p refreshPhase) String() string {
	switch p {
	case phaseArmed:
		return "armed"
	case phaseFiring:
		return "firing"
	case phaseCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// refreshHandle is the one cancelable timer a market may hold. token changes on
// every arm and cancel so a callback can tell whether it is still authoritative.
type refreshHandle struct {
	timer domain.Timer
	phase refreshPhase
	token uint64
}

// viewerLedger is one viewer's per-position counters plus, for trade sets,
// the trade progress saved when their view last closed.
type viewerLedger struct {
	entries map[int]*domain.LedgerEntry
	trades  []domain.TradeState
}

// MarketState is the live snapshot for one market id. It is only touched on
// the tick thread.
type MarketState struct {
	def         *domain.MarketDefinition
	offers      []*domain.LiveOffer
	byPosition  map[int]*domain.LiveOffer
	generation  uint64
	nextRefresh time.Time
	ledger      map[domain.ViewerID]*viewerLedger
	refresh     refreshHandle
}

func newMarketState(def *domain.MarketDefinition) *MarketState {
	return &MarketState{
		def:    def,
		ledger: make(map[domain.ViewerID]*viewerLedger),
	}
}

func (m *MarketState) ID() string              { return m.def.ID }
func (m *MarketState) Name() string            { return m.def.Name }
func (m *MarketState) Kind() domain.MarketKind { return m.def.Kind }
func (m *MarketState) Generation() uint64      { return m.generation }
func (m *MarketState) NextRefresh() time.Time  { return m.nextRefresh }

// Offers returns the current generation in position order. The slice is a copy;
// the offers themselves are immutable.
func (m *MarketState) Offers() []*domain.LiveOffer {
	out := make([]*domain.LiveOffer, len(m.offers))
	copy(out, m.offers)
	return out
}

// Offer looks up the live offer at position in the current generation.
func (m *MarketState) Offer(position int) (*domain.LiveOffer, bool) {
	o, ok := m.byPosition[position]
	return o, ok
}

// LedgerEntry returns the viewer's counters for position, creating them on first use.
// The returned entry is valid until the next refresh.
func (m *MarketState) LedgerEntry(viewer domain.ViewerID, position int) *domain.LedgerEntry {
	vl := m.viewer(viewer)
	e, ok := vl.entries[position]
	if !ok {
		e = &domain.LedgerEntry{}
		vl.entries[position] = e
	}
	return e
}

// PeekLedger reads the viewer's counters without creating them.
func (m *MarketState) PeekLedger(viewer domain.ViewerID, position int) (domain.LedgerEntry, bool) {
	vl, ok := m.ledger[viewer]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	e, ok := vl.entries[position]
	if !ok {
		return domain.LedgerEntry{}, false
	}
	return *e, true
}

// LedgerViewers returns how many viewers hold ledger data in this generation.
func (m *MarketState) LedgerViewers() int {
	return len(m.ledger)
}

// SavedTrades returns the viewer's saved trade progress for this generation.
func (m *MarketState) SavedTrades(viewer domain.ViewerID) ([]domain.TradeState, bool) {
	vl, ok := m.ledger[viewer]
	if !ok || vl.trades == nil {
		return nil, false
	}
	return domain.CloneTrades(vl.trades), true
}

// SaveTrades stores the viewer's trade progress until the next refresh.
func (m *MarketState) SaveTrades(viewer domain.ViewerID, trades []domain.TradeState) {
	m.viewer(viewer).trades = domain.CloneTrades(trades)
}

// CanonicalTrades returns the pristine trade list of the current generation.
func (m *MarketState) CanonicalTrades() []domain.TradeState {
	return domain.CanonicalTrades(m.offers)
}

func (m *MarketState) viewer(viewer domain.ViewerID) *viewerLedger {
	vl, ok := m.ledger[viewer]
	if !ok {
		vl = &viewerLedger{entries: make(map[int]*domain.LedgerEntry)}
		m.ledger[viewer] = vl
	}
	return vl
}

// install replaces the offer collection with a new generation and drops the
// whole viewer ledger. Only the registry and scheduler call it.
func (m *MarketState) install(offers []*domain.LiveOffer, nextRefresh time.Time) {
	m.offers = offers
	m.byPosition = make(map[int]*domain.LiveOffer, len(offers))
	for _, o := range offers {
		m.byPosition[o.Position] = o
	}
	m.ledger = make(map[domain.ViewerID]*viewerLedger)
	m.generation++
	m.nextRefresh = nextRefresh
}

// MarketSnapshot is a read-only copy of a market for display and state dumps.
type MarketSnapshot struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Kind        string              `json:"kind"`
	Generation  uint64              `json:"generation"`
	NextRefresh time.Time           `json:"next_refresh"`
	Refresh     string              `json:"refresh_state"`
	Offers      []*domain.LiveOffer `json:"offers"`
	Viewers     int                 `json:"viewers"`
}

// Snapshot copies the market for reading off the tick thread.
func (m *MarketState) Snapshot() MarketSnapshot {
	return MarketSnapshot{
		ID:          m.def.ID,
		Name:        m.def.Name,
		Kind:        m.def.Kind.String(),
		Generation:  m.generation,
		NextRefresh: m.nextRefresh,
		Refresh:     m.refresh.phase.String(),
		Offers:      m.Offers(),
		Viewers:     len(m.ledger),
	}
}
