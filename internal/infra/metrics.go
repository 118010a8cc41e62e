package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	refreshes atomic.Uint64
	buys      atomic.Uint64
	sells     atomic.Uint64
	rejected  atomic.Uint64

	// Gauges
	openSessions atomic.Int64
	viewers      atomic.Int64 // connected notification streams
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordRefresh records one market rotation.
func (m *Metrics) RecordRefresh() {
	m.refreshes.Add(1)
}

// RecordBuy records a completed purchase.
func (m *Metrics) RecordBuy() {
	m.buys.Add(1)
}

// RecordSell records a completed sale.
func (m *Metrics) RecordSell() {
	m.sells.Add(1)
}

// RecordRejected records a transaction that failed a precondition.
func (m *Metrics) RecordRejected() {
	m.rejected.Add(1)
}

// SetOpenSessions sets the current open session count.
func (m *Metrics) SetOpenSessions(n int) {
	m.openSessions.Store(int64(n))
}

// IncrementViewers increments connected viewers by 1.
func (m *Metrics) IncrementViewers() {
	m.viewers.Add(1)
}

// DecrementViewers decrements connected viewers by 1.
func (m *Metrics) DecrementViewers() {
	m.viewers.Add(-1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Refreshes    uint64    `json:"refreshes"`
	Buys         uint64    `json:"buys"`
	Sells        uint64    `json:"sells"`
	Rejected     uint64    `json:"rejected"`
	OpenSessions int64     `json:"open_sessions"`
	Viewers      int64     `json:"viewers"`
	Timestamp    time.Time `json:"timestamp"`
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Refreshes:    m.refreshes.Load(),
		Buys:         m.buys.Load(),
		Sells:        m.sells.Load(),
		Rejected:     m.rejected.Load(),
		OpenSessions: m.openSessions.Load(),
		Viewers:      m.viewers.Load(),
		Timestamp:    time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.refreshes.Store(0)
	m.buys.Store(0)
	m.sells.Store(0)
	m.rejected.Store(0)
	m.openSessions.Store(0)
	m.viewers.Store(0)
}
