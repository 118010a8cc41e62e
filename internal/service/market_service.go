package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"market_go/internal/domain"
	"market_go/internal/engine"
)

// MarketService is the surface presentation layers call: lookups, sessions,
// transactions and operator refreshes. Every method must run on the tick thread.
type MarketService struct {
	registry     *engine.Registry
	transactions *TransactionEngine
	sessions     *SessionTracker
	notifier     domain.NotificationSink
	clock        domain.Clock
	aliases      map[string]string
	logger       *slog.Logger
}

// MarketDetail is a market snapshot plus its refresh countdown.
type MarketDetail struct {
	engine.MarketSnapshot
	RefreshIn   time.Duration `json:"refresh_in_ns"`
	RefreshText string        `json:"refresh_in"`
}

// NewMarketService creates a new MarketService instance.
func NewMarketService(reg *engine.Registry, tx *TransactionEngine, sessions *SessionTracker, notifier domain.NotificationSink, clock domain.Clock, aliases map[string]string, logger *slog.Logger) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	normalized := make(map[string]string, len(aliases))
	for alias, id := range aliases {
		normalized[strings.ToLower(alias)] = id
	}
	return &MarketService{
		registry:     reg,
		transactions: tx,
		sessions:     sessions,
		notifier:     notifier,
		clock:        clock,
		aliases:      normalized,
		logger:       logger,
	}
}

// ResolveID maps an alias to its market id. Unknown names pass through.
func (s *MarketService) ResolveID(name string) string {
	if id, ok := s.aliases[strings.ToLower(name)]; ok {
		return id
	}
	return name
}

// IDs returns every loaded market id.
func (s *MarketService) IDs() []string {
	return s.registry.AllIDs()
}

// Markets returns snapshots of all markets sorted by id.
func (s *MarketService) Markets() []engine.MarketSnapshot {
	return s.registry.Snapshot()
}

// Market returns one market with its refresh countdown.
func (s *MarketService) Market(name string) (MarketDetail, error) {
	id := s.ResolveID(name)
	m, ok := s.registry.Get(id)
	if !ok {
		return MarketDetail{}, fmt.Errorf("%s: %w", name, domain.ErrUnknownMarket)
	}
	d, _ := s.registry.TimeUntilRefresh(id)
	return MarketDetail{
		MarketSnapshot: m.Snapshot(),
		RefreshIn:      d,
		RefreshText:    s.refreshText(m.NextRefresh()),
	}, nil
}

// AnnounceRefreshTime tells viewer when the market next rotates.
func (s *MarketService) AnnounceRefreshTime(viewer domain.ViewerID, name string) error {
	id := s.ResolveID(name)
	m, ok := s.registry.Get(id)
	if !ok {
		s.notifier.Send(viewer, domain.MsgInvalidMarketID, map[string]string{"id": name})
		return fmt.Errorf("%s: %w", name, domain.ErrUnknownMarket)
	}
	s.notifier.Send(viewer, domain.MsgMarketRefreshTime, map[string]string{
		"market": m.Name(),
		"time":   s.refreshText(m.NextRefresh()),
	})
	return nil
}

func (s *MarketService) refreshText(next time.Time) string {
	return strings.TrimSpace(humanize.RelTime(s.clock.Now(), next, "", "ago"))
}

// Open starts a session for viewer on the named market.
func (s *MarketService) Open(viewer domain.ViewerID, name string, view domain.View) (*Session, error) {
	sess, err := s.sessions.Open(viewer, s.ResolveID(name), view)
	if err != nil {
		s.notifier.Send(viewer, domain.MsgInvalidMarketID, map[string]string{"id": name})
		return nil, err
	}
	return sess, nil
}

// Close ends the viewer's session voluntarily.
func (s *MarketService) Close(viewer domain.ViewerID) bool {
	return s.sessions.Close(viewer, domain.CloseVoluntary)
}

// Lookup returns the market id the viewer has open.
func (s *MarketService) Lookup(viewer domain.ViewerID) (string, bool) {
	return s.sessions.Lookup(viewer)
}

// Buy purchases the offer at position in the viewer's open market.
func (s *MarketService) Buy(ctx context.Context, viewer domain.ViewerID, name string, position int) (Receipt, error) {
	m, o, sess, err := s.resolve(viewer, name, position)
	if err != nil {
		return Receipt{}, err
	}
	rcpt, err := s.transactions.Buy(ctx, viewer, m.ID(), o, m.LedgerEntry(viewer, position))
	if err != nil {
		return rcpt, err
	}
	if m.Kind() == domain.KindTradeSet {
		if tv, ok := sess.View.(interface{ RecordTradeUse(int) }); ok {
			tv.RecordTradeUse(position)
		}
	}
	return rcpt, nil
}

// Sell sells the offer at position in the viewer's open market.
func (s *MarketService) Sell(ctx context.Context, viewer domain.ViewerID, name string, position int) (Receipt, error) {
	m, o, _, err := s.resolve(viewer, name, position)
	if err != nil {
		return Receipt{}, err
	}
	return s.transactions.Sell(ctx, viewer, m.ID(), o, m.LedgerEntry(viewer, position))
}

// resolve finds the live offer a viewer is acting on. The viewer must have
// that market open.
func (s *MarketService) resolve(viewer domain.ViewerID, name string, position int) (*engine.MarketState, *domain.LiveOffer, *Session, error) {
	id := s.ResolveID(name)
	m, ok := s.registry.Get(id)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%s: %w", name, domain.ErrUnknownMarket)
	}
	sess, ok := s.sessions.Session(viewer)
	if !ok || sess.MarketID != id {
		return nil, nil, nil, fmt.Errorf("%s: %w", id, domain.ErrNoSession)
	}
	o, ok := m.Offer(position)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%s[%d]: %w", id, position, domain.ErrUnknownOffer)
	}
	return m, o, sess, nil
}

// Refresh rotates one market immediately.
func (s *MarketService) Refresh(name string) error {
	return s.registry.Scheduler().Refresh(s.ResolveID(name))
}

// RefreshAll rotates every market, best-effort, and returns how many rotated.
func (s *MarketService) RefreshAll() int {
	return s.registry.Scheduler().RefreshAll()
}

// Reload replaces every market. Open sessions are torn down first.
func (s *MarketService) Reload(defs []domain.MarketDefinition) []error {
	errs := s.registry.Reload(defs)
	s.logger.Info("Markets reloaded", slog.Int("loaded", s.registry.Len()), slog.Int("skipped", len(errs)))
	return errs
}
