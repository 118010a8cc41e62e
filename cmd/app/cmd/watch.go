package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"market_go/internal/event"
	"market_go/internal/infra/notify"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch <viewer-uuid>",
	Short: "Follow a viewer's notification stream",
	Long: `Watch connects to a running engine's websocket stream as the given viewer
and prints every message, view update and refresh broadcast until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8080/ws", "notification stream URL")
}

func runWatch(cmd *cobra.Command, args []string) error {
	viewer, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("viewer: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	frames := make(chan event.Envelope, 64)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := notify.NewClient(watchURL, viewer, frames, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-frames:
			switch ev.Type {
			case event.TypeMessage, event.TypeMarketRefreshed:
				fmt.Fprintf(out, "%s  %-16s %s\n", ev.At.Format("15:04:05"), ev.Type, ev.Text)
			default:
				fmt.Fprintf(out, "%s  %-16s %v\n", ev.At.Format("15:04:05"), ev.Type, ev.Payload)
			}
		}
	}
}
