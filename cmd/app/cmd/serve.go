package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"market_go/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

var pprofAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the market engine and its HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&pprofAddr, "pprof", "", "serve pprof on this address (e.g. localhost:6060)")
}

func runServe(cmd *cobra.Command, args []string) error {
	bootstrap := app.NewBootstrap(configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return err
	}
	defer bootstrap.Close()

	if pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := bootstrap.Run(ctx)
	slog.Info("👋 Shutting down gracefully...")
	return err
}
