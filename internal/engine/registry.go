package engine

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"market_go/internal/domain"
)

// OfferSource produces one generation of live offers for a market.
type OfferSource interface {
	Generate(def *domain.MarketDefinition) []*domain.LiveOffer
}

// RefreshRecorder receives refresh counts. infra.Metrics satisfies it.
type RefreshRecorder interface {
	RecordRefresh()
}

// Options configures a Registry.
type Options struct {
	Generator OfferSource
	Clock     domain.Clock
	Notifier  domain.NotificationSink // optional
	Metrics   RefreshRecorder         // optional
	Logger    *slog.Logger
}

// Registry owns every MarketState. It is the only component that creates,
// replaces or discards them. All methods must run on the tick thread.
type Registry struct {
	markets   map[string]*MarketState
	gen       OfferSource
	clock     domain.Clock
	scheduler *Scheduler
	onClear   []func()
	logger    *slog.Logger
}

// NewRegistry creates an empty registry and its refresh scheduler.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		markets: make(map[string]*MarketState),
		gen:     opts.Generator,
		clock:   opts.Clock,
		logger:  logger,
	}
	r.scheduler = &Scheduler{
		reg:      r,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   logger,
	}
	return r
}

// Scheduler returns the registry's refresh scheduler.
func (r *Registry) Scheduler() *Scheduler {
	return r.scheduler
}

// OnClear registers fn to run before the registry is emptied.
func (r *Registry) OnClear(fn func()) {
	r.onClear = append(r.onClear, fn)
}

// Load validates, generates and arms every definition. A definition that fails
// validation is skipped and logged; its error is returned alongside the others.
func (r *Registry) Load(defs []domain.MarketDefinition) []error {
	var skipped []error
	for i := range defs {
		def := defs[i]
		if err := def.Validate(); err != nil {
			r.logger.Error("Skipping invalid market", slog.String("market", def.ID), slog.Any("error", err))
			skipped = append(skipped, err)
			continue
		}
		if _, dup := r.markets[def.ID]; dup {
			err := domain.NewConfigError(def.ID, "id", errors.New("duplicate market id"))
			r.logger.Error("Skipping duplicate market", slog.String("market", def.ID))
			skipped = append(skipped, err)
			continue
		}

		interval, _ := domain.ParseInterval(def.RefreshInterval) // checked by Validate

		state := newMarketState(&def)
		offers := r.generate(state.def)
		state.install(offers, r.clock.Now().Add(interval))
		r.markets[def.ID] = state
		r.scheduler.arm(state, interval)

		r.logger.Info("Market loaded",
			slog.String("market", def.ID),
			slog.String("kind", def.Kind.String()),
			slog.Int("offers", len(offers)),
			slog.Duration("refresh_in", interval))
	}
	return skipped
}

// generate runs the offer source and warns when the market comes up short.
func (r *Registry) generate(def *domain.MarketDefinition) []*domain.LiveOffer {
	offers := r.gen.Generate(def)
	if len(offers) < def.SlotCount() {
		r.logger.Warn("Market under-stocked",
			slog.String("market", def.ID),
			slog.Int("wanted", def.SlotCount()),
			slog.Int("generated", len(offers)),
			slog.Int("pool", len(def.Pool)))
	}
	return offers
}

// Get looks up a market. Absence means "unknown market id".
func (r *Registry) Get(id string) (*MarketState, bool) {
	m, ok := r.markets[id]
	return m, ok
}

// AllIDs returns every loaded market id, sorted.
func (r *Registry) AllIDs() []string {
	ids := make([]string, 0, len(r.markets))
	for id := range r.markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of loaded markets.
func (r *Registry) Len() int {
	return len(r.markets)
}

// Clear cancels every armed timer and empties the registry.
func (r *Registry) Clear() {
	for _, fn := range r.onClear {
		fn()
	}
	for _, m := range r.markets {
		r.scheduler.cancel(m)
	}
	r.markets = make(map[string]*MarketState)
}

// Reload discards every market and loads defs from scratch.
func (r *Registry) Reload(defs []domain.MarketDefinition) []error {
	r.Clear()
	return r.Load(defs)
}

// TimeUntilRefresh reports how long until the market's next scheduled refresh.
func (r *Registry) TimeUntilRefresh(id string) (time.Duration, bool) {
	m, ok := r.markets[id]
	if !ok {
		return 0, false
	}
	d := m.nextRefresh.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	return d, true
}

// Snapshot copies every market, sorted by id.
func (r *Registry) Snapshot() []MarketSnapshot {
	out := make([]MarketSnapshot, 0, len(r.markets))
	for _, id := range r.AllIDs() {
		out = append(out, r.markets[id].Snapshot())
	}
	return out
}
