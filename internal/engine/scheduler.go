package engine

import (
	"fmt"
	"log/slog"
	"time"

	"market_go/internal/domain"
)

// Scheduler keeps one refresh timer per market: armed, firing, re-armed or
// cancelled. It shares the registry's tick thread.
type Scheduler struct {
	reg       *Registry
	notifier  domain.NotificationSink
	metrics   RefreshRecorder
	listeners []func(*MarketState)
	logger    *slog.Logger
}

// OnRefresh registers fn to run after a market rotates, once the new
// generation is installed.
func (s *Scheduler) OnRefresh(fn func(*MarketState)) {
	s.listeners = append(s.listeners, fn)
}

// arm schedules the market's next rotation, replacing any armed timer.
func (s *Scheduler) arm(m *MarketState, delay time.Duration) {
	if m.refresh.timer != nil {
		m.refresh.timer.Stop()
	}
	m.refresh.token++
	token := m.refresh.token
	m.refresh.phase = phaseArmed
	m.refresh.timer = s.reg.clock.AfterFunc(delay, func() {
		s.fire(m, token)
	})
}

// cancel stops the market's timer. A callback already queued sees the token
// change and does nothing.
func (s *Scheduler) cancel(m *MarketState) {
	if m.refresh.timer != nil {
		m.refresh.timer.Stop()
		m.refresh.timer = nil
	}
	m.refresh.token++
	m.refresh.phase = phaseCancelled
}

// fire is the timer callback.
func (s *Scheduler) fire(m *MarketState, token uint64) {
	if current, ok := s.reg.markets[m.ID()]; !ok || current != m {
		return
	}
	if m.refresh.token != token || m.refresh.phase != phaseArmed {
		return
	}
	m.refresh.phase = phaseFiring
	m.refresh.timer = nil

	if err := s.rotate(m); err != nil {
		m.refresh.phase = phaseCancelled
		s.logger.Error("Scheduled refresh failed", slog.String("market", m.ID()), slog.Any("error", err))
		return
	}
	s.logger.Info("Market refreshed", slog.String("market", m.ID()), slog.Uint64("generation", m.generation))
}

// rotate installs a new generation, notifies viewers and re-arms. The interval
// is parsed on every call so a changed definition takes effect here.
func (s *Scheduler) rotate(m *MarketState) error {
	interval, err := domain.ParseInterval(m.def.RefreshInterval)
	if err != nil {
		return fmt.Errorf("market %s: %w", m.ID(), err)
	}

	offers := s.reg.generate(m.def)
	m.install(offers, s.reg.clock.Now().Add(interval))

	if s.notifier != nil {
		s.notifier.Broadcast(domain.MsgMarketRefreshed, map[string]string{
			"market": m.Name(),
			"id":     m.ID(),
		})
	}
	for _, fn := range s.listeners {
		fn(m)
	}
	if s.metrics != nil {
		s.metrics.RecordRefresh()
	}

	s.arm(m, interval)
	return nil
}

// Refresh cancels the market's timer and rotates it immediately.
// It fails without side effects if the market is unknown or has no usable interval.
func (s *Scheduler) Refresh(id string) error {
	m, ok := s.reg.markets[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, domain.ErrUnknownMarket)
	}
	if _, err := domain.ParseInterval(m.def.RefreshInterval); err != nil {
		return fmt.Errorf("market %s: %w", id, err)
	}

	s.cancel(m)
	m.refresh.phase = phaseFiring
	return s.rotate(m)
}

// RefreshNow reports whether the market was refreshed.
func (s *Scheduler) RefreshNow(id string) bool {
	return s.Refresh(id) == nil
}

// RefreshAll refreshes every market. Individual failures are logged, not returned.
func (s *Scheduler) RefreshAll() int {
	refreshed := 0
	for _, id := range s.reg.AllIDs() {
		if err := s.Refresh(id); err != nil {
			s.logger.Warn("Refresh failed", slog.String("market", id), slog.Any("error", err))
			continue
		}
		refreshed++
	}
	return refreshed
}
