package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"market_go/internal/infra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and every market file",
	Long: `Validate loads the root config, the locale file and every market file the
engine would load, and reports each file that would be skipped.
Exits non-zero when anything is invalid.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := infra.LoadLocale(cfg.Market.Locale); err != nil {
		return fmt.Errorf("locale: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	defs, errs := infra.LoadMarkets(cfg.Market.Dir, logger)

	out := cmd.OutOrStdout()
	for _, e := range errs {
		fmt.Fprintf(out, "✗ %v\n", e)
	}
	fmt.Fprintf(out, "%d market(s) valid, %d skipped (%s)\n", len(defs), len(errs), cfg.Market.Dir)
	if len(errs) > 0 {
		return fmt.Errorf("%d invalid market file(s)", len(errs))
	}
	return nil
}
