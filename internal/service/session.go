package service

import (
	"fmt"
	"log/slog"
	"time"

	"market_go/internal/domain"
	"market_go/internal/engine"
)

// DefaultCloseDelay is how long a failed transaction waits before closing the view.
const DefaultCloseDelay = 50 * time.Millisecond

// SessionRecorder receives the open session gauge. infra.Metrics satisfies it.
type SessionRecorder interface {
	SetOpenSessions(n int)
}

// Session associates a viewer with the market generation they are looking at.
type Session struct {
	Viewer     domain.ViewerID
	MarketID   string
	Generation uint64
	OpenedAt   time.Time
	View       domain.View

	market *engine.MarketState
}

// SessionTracker maps viewers to the market they have open. It holds lookups
// only; the registry owns the markets. All methods run on the tick thread.
type SessionTracker struct {
	registry   *engine.Registry
	clock      domain.Clock
	closeDelay time.Duration
	sessions   map[domain.ViewerID]*Session
	pending    map[domain.ViewerID]domain.Timer
	metrics    SessionRecorder
	logger     *slog.Logger
}

// NewSessionTracker creates a tracker and hooks it into the registry's refresh
// and clear paths.
func NewSessionTracker(reg *engine.Registry, clock domain.Clock, closeDelay time.Duration, metrics SessionRecorder, logger *slog.Logger) *SessionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if closeDelay <= 0 {
		closeDelay = DefaultCloseDelay
	}
	t := &SessionTracker{
		registry:   reg,
		clock:      clock,
		closeDelay: closeDelay,
		sessions:   make(map[domain.ViewerID]*Session),
		pending:    make(map[domain.ViewerID]domain.Timer),
		metrics:    metrics,
		logger:     logger,
	}
	reg.Scheduler().OnRefresh(t.OnMarketRefreshed)
	reg.OnClear(t.CloseAll)
	return t
}

// Open shows a market to viewer. On trade sets the viewer's saved trade
// progress from this generation replaces the canonical trade list.
func (t *SessionTracker) Open(viewer domain.ViewerID, marketID string, view domain.View) (*Session, error) {
	m, ok := t.registry.Get(marketID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", marketID, domain.ErrUnknownMarket)
	}
	if _, open := t.sessions[viewer]; open {
		t.Close(viewer, domain.CloseVoluntary)
	}

	var trades []domain.TradeState
	if m.Kind() == domain.KindTradeSet {
		saved, ok := m.SavedTrades(viewer)
		if !ok {
			saved = m.CanonicalTrades()
		}
		trades = saved
	}
	view.Render(m.Offers(), trades)

	s := &Session{
		Viewer:     viewer,
		MarketID:   marketID,
		Generation: m.Generation(),
		OpenedAt:   t.clock.Now(),
		View:       view,
		market:     m,
	}
	t.sessions[viewer] = s
	t.report()

	t.logger.Debug("Session opened", slog.String("viewer", viewer.String()), slog.String("market", marketID))
	return s, nil
}

// Close ends the viewer's session. For trade sets the view's trade progress is
// saved back into the market, unless the view was torn down server-side or
// belongs to a generation that has since been replaced.
func (t *SessionTracker) Close(viewer domain.ViewerID, reason domain.CloseReason) bool {
	s, ok := t.sessions[viewer]
	if !ok {
		return false
	}
	if timer, ok := t.pending[viewer]; ok {
		timer.Stop()
		delete(t.pending, viewer)
	}

	if reason != domain.CloseUnloaded && s.market.Kind() == domain.KindTradeSet && t.current(s) {
		if trades, ok := s.View.Trades(); ok {
			s.market.SaveTrades(viewer, trades)
		}
	}
	if reason == domain.CloseUnloaded {
		s.View.Close()
	}

	delete(t.sessions, viewer)
	t.report()

	t.logger.Debug("Session closed",
		slog.String("viewer", viewer.String()),
		slog.String("market", s.MarketID),
		slog.String("reason", reason.String()))
	return true
}

// Lookup returns the market id the viewer has open.
func (t *SessionTracker) Lookup(viewer domain.ViewerID) (string, bool) {
	s, ok := t.sessions[viewer]
	if !ok {
		return "", false
	}
	return s.MarketID, true
}

// Session returns the viewer's open session.
func (t *SessionTracker) Session(viewer domain.ViewerID) (*Session, bool) {
	s, ok := t.sessions[viewer]
	return s, ok
}

// Count returns the number of open sessions.
func (t *SessionTracker) Count() int {
	return len(t.sessions)
}

// ScheduleClose closes the viewer's view with the teardown reason after the
// close delay, on the tick thread.
func (t *SessionTracker) ScheduleClose(viewer domain.ViewerID) {
	if _, ok := t.sessions[viewer]; !ok {
		return
	}
	if _, ok := t.pending[viewer]; ok {
		return
	}
	t.pending[viewer] = t.clock.AfterFunc(t.closeDelay, func() {
		delete(t.pending, viewer)
		t.Close(viewer, domain.CloseUnloaded)
	})
}

// OnMarketRefreshed re-renders every session on m with the new generation.
func (t *SessionTracker) OnMarketRefreshed(m *engine.MarketState) {
	for _, s := range t.sessions {
		if s.market != m {
			continue
		}
		var trades []domain.TradeState
		if m.Kind() == domain.KindTradeSet {
			trades = m.CanonicalTrades()
		}
		s.Generation = m.Generation()
		s.View.Render(m.Offers(), trades)
	}
}

// CloseAll tears down every session; used before the registry is cleared.
func (t *SessionTracker) CloseAll() {
	for viewer := range t.sessions {
		t.Close(viewer, domain.CloseUnloaded)
	}
}

// current reports whether the session still looks at the live generation of a registered market.
func (t *SessionTracker) current(s *Session) bool {
	m, ok := t.registry.Get(s.MarketID)
	return ok && m == s.market && m.Generation() == s.Generation
}

func (t *SessionTracker) report() {
	if t.metrics != nil {
		t.metrics.SetOpenSessions(len(t.sessions))
	}
}
