package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"market_go/internal/domain"
)

// ErrSequencerStopped is returned when work is submitted after Run has returned.
var ErrSequencerStopped = errors.New("sequencer stopped")

// Task is one unit of work executed on the tick thread.
type Task func()

// Sequencer is the single logical tick thread. Generation, refresh, transactions
// and session changes all run as tasks on its one goroutine, so the market
// state they touch needs no locking. Timers armed through it deliver their
// callbacks back onto the same goroutine.
type Sequencer struct {
	inbox   chan Task
	done    chan struct{}
	stopped atomic.Bool
	ticks   atomic.Uint64

	// Boundary: supplies the state written by DumpState
	dumpSource func() any

	logger *slog.Logger
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		inbox:  make(chan Task, inboxSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// SetDumpSource registers the function whose result DumpState writes.
func (s *Sequencer) SetDumpSource(fn func() any) {
	s.dumpSource = fn
}

// Run starts the main loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started (single tick thread)")
	defer func() {
		s.stopped.Store(true)
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...")
			return
		case task := <-s.inbox:
			s.execute(task)
		}
	}
}

// execute runs one task. A panicking task is logged and its state dumped;
// the loop keeps serving the remaining markets.
func (s *Sequencer) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("TASK_PANIC_RECOVERED", slog.Any("panic", r))
			s.DumpState(fmt.Sprintf("panic_dump_%d.json", time.Now().Unix()))
		}
	}()
	s.ticks.Add(1)
	task()
}

// Ticks returns the number of tasks executed so far.
func (s *Sequencer) Ticks() uint64 {
	return s.ticks.Load()
}

// Submit queues task for the tick thread. It returns false once the sequencer has stopped.
func (s *Sequencer) Submit(task Task) bool {
	if s.stopped.Load() {
		return false
	}
	select {
	case s.inbox <- task:
		return true
	case <-s.done:
		return false
	}
}

// Call runs fn on the tick thread and waits for its result.
func (s *Sequencer) Call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	task := func() {
		defer func() {
			if r := recover(); r != nil {
				errc <- fmt.Errorf("task panicked: %v", r)
				panic(r)
			}
		}()
		errc <- fn()
	}

	select {
	case s.inbox <- task:
	case <-s.done:
		return ErrSequencerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-s.done:
		// Run may have exited after dequeuing the task.
		select {
		case err := <-errc:
			return err
		default:
			return ErrSequencerStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Now implements domain.Clock.
func (s *Sequencer) Now() time.Time {
	return time.Now()
}

// AfterFunc implements domain.Clock. fn runs on the tick thread; a Stop that
// happens on the tick thread before fn starts always wins.
func (s *Sequencer) AfterFunc(d time.Duration, fn func()) domain.Timer {
	t := &tickTimer{}
	t.timer = time.AfterFunc(d, func() {
		s.Submit(func() {
			if !t.started.CompareAndSwap(false, true) {
				return
			}
			fn()
		})
	})
	return t
}

type tickTimer struct {
	timer *time.Timer
	// started is set by whichever of Stop or the callback gets there first.
	started atomic.Bool
}

func (t *tickTimer) Stop() bool {
	t.timer.Stop()
	return t.started.CompareAndSwap(false, true)
}

// DumpState writes the registered state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	if s.dumpSource == nil {
		return
	}
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		Ticks uint64 `json:"ticks"`
		State any    `json:"state"`
	}{
		Ticks: s.ticks.Load(),
		State: s.dumpSource(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
