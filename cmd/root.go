package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ultradar/internal/config"
)

var cfg *config.Config

// apiURL, when set, sends analytics commands to a running ultradar API
// instead of querying Athena directly.
var apiURL string

var rootCmd = &cobra.Command{
	Use:   "ultradar",
	Short: "Slot-curve analytics and ordering strategies",
	Long:  "Queries store slot curves from Athena, serves them over HTTP and manages the strategy and exclusion documents that shape them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "ultradar API base URL (query Athena directly when empty)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
