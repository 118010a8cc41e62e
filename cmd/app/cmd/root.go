package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "market",
	Short: "Rotating market engine",
	Long: `Market serves rotating shops: slot-grid markets whose offers are re-rolled
on a timer and merchant trade sets with per-viewer trade limits.

Commands:
  serve     - Run the engine and its HTTP/websocket API
  validate  - Check the configuration and every market file
  markets   - List the markets that would load
  journal   - Query completed transactions
  watch     - Follow a viewer's notification stream`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the root config file")
}
