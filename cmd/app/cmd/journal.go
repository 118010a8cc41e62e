package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"market_go/internal/domain"
	"market_go/internal/infra"
	"market_go/internal/infra/storage"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query completed transactions",
	Long: `Query the transaction journal.

Subcommands:
  recent  - List the newest transactions
  tx      - Show one transaction by id
  volume  - Count transactions per market

Examples:
  market journal recent --limit 20
  market journal recent --viewer 7f0c...
  market journal tx 01HV...`,
}

var journalRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the newest transactions",
	Args:  cobra.NoArgs,
	RunE:  runJournalRecent,
}

var journalTxCmd = &cobra.Command{
	Use:   "tx <id>",
	Short: "Show one transaction",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTx,
}

var journalVolumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Count transactions per market",
	Args:  cobra.NoArgs,
	RunE:  runJournalVolume,
}

var (
	journalLimit  int
	journalViewer string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRecentCmd)
	journalCmd.AddCommand(journalTxCmd)
	journalCmd.AddCommand(journalVolumeCmd)

	journalRecentCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "number of transactions")
	journalRecentCmd.Flags().StringVar(&journalViewer, "viewer", "", "only this viewer's transactions")
}

func openJournal() (*storage.Storage, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	j, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

func runJournalRecent(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	var recs []domain.TransactionRecord
	if journalViewer != "" {
		viewer, perr := uuid.Parse(journalViewer)
		if perr != nil {
			return fmt.Errorf("viewer: %w", perr)
		}
		recs, err = j.ByViewer(cmd.Context(), viewer, journalLimit)
	} else {
		recs, err = j.Recent(cmd.Context(), journalLimit)
	}
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tWHEN\tVIEWER\tMARKET\tSIDE\tOFFER\tPRICE\tBALANCE")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, humanize.Time(r.At), r.Viewer, r.MarketID, r.Side, r.Offer,
			r.Price.StringFixed(2), r.Balance.StringFixed(2))
	}
	return w.Flush()
}

func runJournalTx(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("transaction %s not found", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:       %s\n", rec.ID)
	fmt.Fprintf(out, "At:       %s (%s)\n", rec.At.Format("2006-01-02 15:04:05"), humanize.Time(rec.At))
	fmt.Fprintf(out, "Viewer:   %s\n", rec.Viewer)
	fmt.Fprintf(out, "Market:   %s [%d]\n", rec.MarketID, rec.Position)
	fmt.Fprintf(out, "Side:     %s\n", rec.Side)
	fmt.Fprintf(out, "Offer:    %s x%d\n", rec.Offer, rec.Amount)
	fmt.Fprintf(out, "Price:    %s\n", rec.Price.StringFixed(2))
	fmt.Fprintf(out, "Balance:  %s\n", rec.Balance.StringFixed(2))
	return nil
}

func runJournalVolume(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	volume, err := j.VolumeByMarket(cmd.Context())
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MARKET\tTRANSACTIONS")
	markets := make([]string, 0, len(volume))
	for market := range volume {
		markets = append(markets, market)
	}
	sort.Strings(markets)
	for _, market := range markets {
		fmt.Fprintf(w, "%s\t%s\n", market, humanize.Comma(volume[market]))
	}
	return w.Flush()
}
