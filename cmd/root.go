package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/editais-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "editais-cli",
	Short: "Search PNCP procurement notices by municipality",
	Long:  "Searches the Portal Nacional de Contratações Públicas for editais across a set of municipalities, filters them by keyword and status, and exports the results to XLSX or CSV.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
