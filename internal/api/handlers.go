package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"market_go/internal/domain"
	"market_go/internal/engine"
	"market_go/internal/event"
	"market_go/internal/service"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// GET /markets
func (s *Server) handleMarkets(w http.ResponseWriter, r *http.Request) {
	var markets []engine.MarketSnapshot
	err := s.call(r.Context(), func() error {
		markets = s.deps.Markets.Markets()
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if markets == nil {
		markets = []engine.MarketSnapshot{}
	}
	writeJSON(w, http.StatusOK, markets)
}

// GET /markets/{id}
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	var detail service.MarketDetail
	err := s.call(r.Context(), func() error {
		var err error
		detail, err = s.deps.Markets.Market(r.PathValue("id"))
		return err
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// POST /markets/{id}/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var detail service.MarketDetail
	err := s.call(r.Context(), func() error {
		if err := s.deps.Markets.Refresh(id); err != nil {
			return err
		}
		var err error
		detail, err = s.deps.Markets.Market(id)
		return err
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// POST /markets/refresh
func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	var n int
	err := s.call(r.Context(), func() error {
		n = s.deps.Markets.RefreshAll()
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"refreshed": n})
}

// POST /reload
// Files are read off the tick thread; only the swap runs on it.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.deps.Loader == nil {
		writeError(w, http.StatusNotImplemented, "reload is not configured")
		return
	}
	defs, loadErrs := s.deps.Loader()

	var loaded int
	var regErrs []error
	err := s.call(r.Context(), func() error {
		regErrs = s.deps.Markets.Reload(defs)
		loaded = len(s.deps.Markets.IDs())
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	skipped := make([]string, 0, len(loadErrs)+len(regErrs))
	for _, e := range append(loadErrs, regErrs...) {
		skipped = append(skipped, e.Error())
	}
	if viewer, ok := optionalViewer(r); ok && s.deps.Notifier != nil {
		s.deps.Notifier.Send(viewer, domain.MsgConfigReload, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"loaded":  loaded,
		"skipped": skipped,
	})
}

// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Metrics.Snapshot())
}

// GET /transactions?viewer=&limit=
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, http.StatusNotImplemented, "journal is not configured")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var (
		recs []domain.TransactionRecord
		err  error
	)
	if raw := r.URL.Query().Get("viewer"); raw != "" {
		viewer, perr := uuid.Parse(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "viewer must be a UUID")
			return
		}
		recs, err = s.deps.History.ByViewer(r.Context(), viewer, limit)
	} else {
		recs, err = s.deps.History.Recent(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("Failed to read journal", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if recs == nil {
		recs = []domain.TransactionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// POST /markets/{id}/open
func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}
	view := service.NewRemoteView(func(st service.ViewState) {
		if s.deps.Notifier != nil {
			s.deps.Notifier.Push(viewer, event.TypeView, st)
		}
	})

	var (
		marketID string
		detail   service.MarketDetail
	)
	err := s.call(r.Context(), func() error {
		sess, err := s.deps.Markets.Open(viewer, r.PathValue("id"), view)
		if err != nil {
			return err
		}
		marketID = sess.MarketID
		detail, err = s.deps.Markets.Market(marketID)
		return err
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market":     marketID,
		"name":       detail.Name,
		"generation": detail.Generation,
		"refresh_in": detail.RefreshText,
		"view":       view.State(),
	})
}

// GET /markets/{id}/time
func (s *Server) handleRefreshTime(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}
	var detail service.MarketDetail
	err := s.call(r.Context(), func() error {
		if err := s.deps.Markets.AnnounceRefreshTime(viewer, r.PathValue("id")); err != nil {
			return err
		}
		var err error
		detail, err = s.deps.Markets.Market(r.PathValue("id"))
		return err
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market":     detail.ID,
		"refresh_in": detail.RefreshText,
		"next":       detail.NextRefresh,
	})
}

// POST /markets/{id}/offers/{pos}/buy
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.transact(w, r, s.deps.Markets.Buy)
}

// POST /markets/{id}/offers/{pos}/sell
func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.transact(w, r, s.deps.Markets.Sell)
}

type transactFunc func(ctx context.Context, viewer domain.ViewerID, name string, position int) (service.Receipt, error)

func (s *Server) transact(w http.ResponseWriter, r *http.Request, fn transactFunc) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}
	pos, err := strconv.Atoi(r.PathValue("pos"))
	if err != nil || pos < 0 {
		writeError(w, http.StatusBadRequest, "position must be a non-negative integer")
		return
	}

	var rcpt service.Receipt
	err = s.call(r.Context(), func() error {
		var err error
		rcpt, err = fn(r.Context(), viewer, r.PathValue("id"), pos)
		return err
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}

// POST /close
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}
	var closed bool
	err := s.call(r.Context(), func() error {
		closed = s.deps.Markets.Close(viewer)
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": closed})
}

// GET /me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireViewer(w, r)
	if !ok {
		return
	}

	resp := struct {
		Viewer    string             `json:"viewer"`
		Market    string             `json:"market,omitempty"`
		Balance   *decimal.Decimal   `json:"balance,omitempty"`
		Inventory []domain.ItemStack `json:"inventory,omitempty"`
	}{Viewer: viewer.String()}

	err := s.call(r.Context(), func() error {
		resp.Market, _ = s.deps.Markets.Lookup(viewer)
		if s.deps.Holdings == nil {
			return nil
		}
		bal, err := s.deps.Holdings.Balance(r.Context(), viewer)
		if err != nil {
			return err
		}
		resp.Balance = &bal
		resp.Inventory = s.deps.Holdings.Contents(viewer)
		return nil
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) call(ctx context.Context, fn func() error) error {
	return s.deps.Caller.Call(ctx, fn)
}

// writeFailure maps engine and transaction errors onto HTTP statuses.
// Transaction outcomes are expected and not logged as errors.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	switch {
	case domain.IsTransactionOutcome(err):
		s.logger.Debug("Transaction refused", slog.String("kind", kindOf(err)))
	case status >= http.StatusInternalServerError:
		s.logger.Error("Request failed", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kindOf(err),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownMarket), errors.Is(err, domain.ErrUnknownOffer):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoSession), errors.Is(err, domain.ErrLimitReached):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrUnbuyable), errors.Is(err, domain.ErrUnsellable),
		errors.Is(err, domain.ErrInsufficientItems):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrSequencerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindOf(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{domain.ErrUnknownMarket, "unknown_market"},
		{domain.ErrUnknownOffer, "unknown_offer"},
		{domain.ErrNoSession, "no_session"},
		{domain.ErrUnbuyable, "unbuyable"},
		{domain.ErrUnsellable, "unsellable"},
		{domain.ErrLimitReached, "limit_reached"},
		{domain.ErrInsufficientFunds, "insufficient_funds"},
		{domain.ErrInsufficientItems, "insufficient_items"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// requireViewer reads the X-Viewer-ID header and writes 400 when it is not a UUID.
func requireViewer(w http.ResponseWriter, r *http.Request) (domain.ViewerID, bool) {
	viewer, err := uuid.Parse(r.Header.Get("X-Viewer-ID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "X-Viewer-ID must be a UUID")
		return uuid.Nil, false
	}
	return viewer, true
}

func optionalViewer(r *http.Request) (domain.ViewerID, bool) {
	viewer, err := uuid.Parse(r.Header.Get("X-Viewer-ID"))
	return viewer, err == nil
}

// writeJSON serialises v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
