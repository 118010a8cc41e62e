package memory

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"market_go/internal/domain"
)

// ExecutedAction is one action line as it was run.
type ExecutedAction struct {
	Viewer  domain.ViewerID `json:"viewer"`
	Command string          `json:"command"`
	At      time.Time       `json:"at"`
}

// ActionLog runs command rewards by recording them. <player> and <uuid> are
// replaced with the viewer id before the line is logged.
type ActionLog struct {
	mu      sync.Mutex
	history []ExecutedAction
	limit   int
	logger  *slog.Logger
}

// NewActionLog keeps at most limit executed actions (0 keeps all).
func NewActionLog(limit int, logger *slog.Logger) *ActionLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionLog{limit: limit, logger: logger}
}

func (a *ActionLog) Run(ctx context.Context, viewer domain.ViewerID, actions []string) error {
	id := viewer.String()
	r := strings.NewReplacer("<player>", id, "<uuid>", id)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, line := range actions {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd := r.Replace(line)
		a.history = append(a.history, ExecutedAction{Viewer: viewer, Command: cmd, At: time.Now()})
		a.logger.Info("Action executed", slog.String("viewer", id), slog.String("command", cmd))
	}
	if a.limit > 0 && len(a.history) > a.limit {
		a.history = append([]ExecutedAction(nil), a.history[len(a.history)-a.limit:]...)
	}
	return nil
}

// History returns the recorded actions, oldest first.
func (a *ActionLog) History() []ExecutedAction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ExecutedAction(nil), a.history...)
}
