// Package api serves markets to operators and viewers over HTTP.
// Every handler runs its market work on the tick thread through a Caller.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"market_go/internal/domain"
	"market_go/internal/event"
	"market_go/internal/infra"
	"market_go/internal/service"
)

// Caller runs fn on the tick thread. engine.Sequencer satisfies it.
type Caller interface {
	Call(ctx context.Context, fn func() error) error
}

// Notifier pushes frames to viewers and serves the notification stream.
// notify.Hub satisfies it.
type Notifier interface {
	Send(viewer domain.ViewerID, key string, placeholders map[string]string)
	Push(viewer domain.ViewerID, t event.Type, payload any)
	HandleWS(w http.ResponseWriter, r *http.Request)
}

// History reads the transaction journal. storage.Storage satisfies it.
type History interface {
	Recent(ctx context.Context, limit int) ([]domain.TransactionRecord, error)
	ByViewer(ctx context.Context, viewer domain.ViewerID, limit int) ([]domain.TransactionRecord, error)
}

// Holdings reports what a viewer owns.
type Holdings interface {
	Balance(ctx context.Context, viewer domain.ViewerID) (decimal.Decimal, error)
	Contents(viewer domain.ViewerID) []domain.ItemStack
}

// Loader reads market definitions from disk.
type Loader func() ([]domain.MarketDefinition, []error)

// Deps are the collaborators a Server calls.
type Deps struct {
	Caller   Caller
	Markets  *service.MarketService
	Notifier Notifier
	History  History  // optional
	Holdings Holdings // optional
	Metrics  *infra.Metrics
	Loader   Loader
	Logger   *slog.Logger
}

// Server is the HTTP surface of the market engine.
type Server struct {
	deps       Deps
	mux        *http.ServeMux
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route. addr may be empty when the server is only
// used as an http.Handler.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = infra.GlobalMetrics
	}

	s := &Server{deps: deps, mux: http.NewServeMux(), logger: logger}

	// Operator endpoints.
	s.mux.HandleFunc("GET /markets", s.handleMarkets)
	s.mux.HandleFunc("GET /markets/{id}", s.handleMarket)
	s.mux.HandleFunc("POST /markets/{id}/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /markets/refresh", s.handleRefreshAll)
	s.mux.HandleFunc("POST /reload", s.handleReload)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /transactions", s.handleTransactions)

	// Viewer endpoints; identity is the X-Viewer-ID header.
	s.mux.HandleFunc("POST /markets/{id}/open", s.handleOpen)
	s.mux.HandleFunc("GET /markets/{id}/time", s.handleRefreshTime)
	s.mux.HandleFunc("POST /markets/{id}/offers/{pos}/buy", s.handleBuy)
	s.mux.HandleFunc("POST /markets/{id}/offers/{pos}/sell", s.handleSell)
	s.mux.HandleFunc("POST /close", s.handleClose)
	s.mux.HandleFunc("GET /me", s.handleMe)

	if deps.Notifier != nil {
		s.mux.HandleFunc("GET /ws", deps.Notifier.HandleWS)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(logger)(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP API starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("HTTP API shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	return nil
}

// loggingMiddleware logs each request at debug level.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController, which the
// websocket upgrader hijacks through.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
