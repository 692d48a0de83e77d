package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PedramNavid/styleval/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "styleval",
	Short: "Blind evaluation harness for LLM writing styles",
	Long:  "Generates content across a model/strategy/task matrix, sequences blind human evaluation, and reports which combination best matches a writing voice.",
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
