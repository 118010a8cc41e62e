package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"market_go/internal/domain"
	"market_go/internal/infra"
)

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List the markets that would load",
	Args:  cobra.NoArgs,
	RunE:  runMarkets,
}

func init() {
	rootCmd.AddCommand(marketsCmd)
}

func runMarkets(cmd *cobra.Command, args []string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	defs, _ := infra.LoadMarkets(cfg.Market.Dir, logger)

	aliases := make(map[string][]string)
	for alias, id := range cfg.Market.Aliases {
		aliases[id] = append(aliases[id], alias)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tNAME\tREFRESH\tPOSITIONS\tTEMPLATES\tALIASES")
	for i := range defs {
		d := &defs[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\n",
			d.ID, d.Kind, d.Name, refreshLabel(d), d.SlotCount(), len(d.Pool), aliases[d.ID])
	}
	return w.Flush()
}

func refreshLabel(d *domain.MarketDefinition) string {
	interval, err := domain.ParseInterval(d.RefreshInterval)
	if err != nil {
		return "invalid"
	}
	return fmt.Sprintf("%s (%s s)", d.RefreshInterval, humanize.Comma(int64(interval.Seconds())))
}
