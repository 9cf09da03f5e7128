package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quorumworks/govpilot/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "govpilot",
	Short: "Automated on-chain governance voting agent",
	Long:  "Scans the governance registry for votable proposals, decides each one under the configured risk policy, and casts votes for every configured identity through a provider-failover RPC layer.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load .env from CWD if present; otherwise use environment as-is.
		if _, statErr := os.Stat(".env"); statErr == nil {
			_ = godotenv.Load(".env")
		}

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
