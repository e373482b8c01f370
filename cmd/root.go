package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/freight-quotes/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "freight-quotes",
	Short: "Collects ocean freight spot quotes from carrier portals",
	Long:  "Drives carrier booking portals route by route, normalizes the quoted charges to one currency and keeps a per-carrier result table with the latest quote for every route.",
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

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
