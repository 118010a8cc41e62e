package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"market_go/internal/api"
	"market_go/internal/domain"
	"market_go/internal/engine"
	"market_go/internal/event"
	"market_go/internal/infra"
	"market_go/internal/infra/memory"
	"market_go/internal/infra/notify"
	"market_go/internal/infra/storage"
	"market_go/internal/offer"
	"market_go/internal/service"
)

const (
	shutdownTimeout = 5 * time.Second
	actionHistory   = 1000
)

// holdings joins the in-memory economy and inventory for the API's /me view.
type holdings struct {
	*memory.Economy
	*memory.Inventory
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string

	Config    *infra.Config
	Logger    *slog.Logger
	Locale    *infra.Locale
	Metrics   *infra.Metrics
	Storage   *storage.Storage
	Sequencer *engine.Sequencer
	Hub       *notify.Hub

	Economy   *memory.Economy
	Inventory *memory.Inventory
	Actions   *memory.ActionLog

	Registry *engine.Registry
	Markets  *service.MarketService
	API      *api.Server
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize wires every component. Nothing runs until Run.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfg, err := infra.LoadConfig(b.ConfigPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)
	b.Logger = logger
	logger.Info("🚀 Bootstrapping market engine...", slog.String("config", b.ConfigPath))

	// 3. Locale and metrics
	locale, err := infra.LoadLocale(cfg.Market.Locale)
	if err != nil {
		return err
	}
	b.Locale = locale
	b.Metrics = infra.GlobalMetrics

	// 4. Initialize Storage (journal)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	logger.Info("✅ Journal initialized")

	// 5. Tick thread and notification hub
	event.Warmup()
	b.Sequencer = engine.NewSequencer(cfg.Server.InboxSize, logger)
	b.Hub = notify.NewHub(locale, b.Metrics, logger)

	// 6. Viewer-side collaborators
	b.Economy = memory.NewEconomy(cfg.Economy.StartingBalance)
	b.Inventory = memory.NewInventory()
	b.Actions = memory.NewActionLog(actionHistory, logger)

	// 7. Market core
	b.Registry = engine.NewRegistry(engine.Options{
		Generator: offer.NewGenerator(memory.NewCatalog(), cfg.PricePolicy(), logger),
		Clock:     b.Sequencer,
		Notifier:  b.Hub,
		Metrics:   b.Metrics,
		Logger:    logger,
	})
	tx := service.NewTransactionEngine(service.TransactionDeps{
		Economy:    b.Economy,
		Inventory:  b.Inventory,
		Actions:    b.Actions,
		Notifier:   b.Hub,
		Clock:      b.Sequencer,
		Journal:    store,
		Metrics:    b.Metrics,
		FormatItem: locale.FormatItem,
		Logger:     logger,
	})
	sessions := service.NewSessionTracker(b.Registry, b.Sequencer, cfg.CloseDelay(), b.Metrics, logger)
	tx.SetViewCloser(sessions)
	b.Markets = service.NewMarketService(b.Registry, tx, sessions, b.Hub, b.Sequencer, cfg.Market.Aliases, logger)
	b.Sequencer.SetDumpSource(func() any { return b.Registry.Snapshot() })

	// 8. HTTP surface
	b.API = api.NewServer(cfg.Server.Addr, api.Deps{
		Caller:   b.Sequencer,
		Markets:  b.Markets,
		Notifier: b.Hub,
		History:  store,
		Holdings: holdings{b.Economy, b.Inventory},
		Metrics:  b.Metrics,
		Loader:   b.readMarkets,
		Logger:   logger,
	})

	return nil
}

// readMarkets parses the market directory. It does file IO and must not run
// on the tick thread.
func (b *Bootstrap) readMarkets() ([]domain.MarketDefinition, []error) {
	return infra.LoadMarkets(b.Config.Market.Dir, b.Logger)
}

// LoadMarkets reads every market file and installs them on the tick thread.
func (b *Bootstrap) LoadMarkets(ctx context.Context) error {
	defs, fileErrs := b.readMarkets()
	var regErrs []error
	err := b.Sequencer.Call(ctx, func() error {
		regErrs = b.Registry.Load(defs)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	b.Logger.Info("✅ Markets loaded",
		slog.Int("markets", len(defs)-len(regErrs)),
		slog.Int("skipped", len(fileErrs)+len(regErrs)),
		slog.String("dir", b.Config.Market.Dir))
	return nil
}

// Run starts the tick thread, the notification hub and the HTTP API, and
// blocks until ctx is cancelled or one of them fails.
func (b *Bootstrap) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.Sequencer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := b.Hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := b.LoadMarkets(gctx); err != nil {
			return err
		}
		b.Logger.Info("✨ Market engine fully operational", slog.String("addr", b.Config.Server.Addr))
		return b.API.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return b.API.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases resources and logs the final metrics.
func (b *Bootstrap) Close() {
	if b.Metrics != nil && b.Logger != nil {
		snap := b.Metrics.Snapshot()
		b.Logger.Info("📊 Final metrics",
			slog.Uint64("refreshes", snap.Refreshes),
			slog.Uint64("buys", snap.Buys),
			slog.Uint64("sells", snap.Sells),
			slog.Uint64("rejected", snap.Rejected),
			slog.Int64("open_sessions", snap.OpenSessions))
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			b.Logger.Error("Failed to close journal", slog.Any("error", err))
		}
	}
}
