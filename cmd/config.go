package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(context.Background(), config.Overrides{})
	if err != nil {
		return err
	}
	return newPrinter().Print(cfg.Config, output.ConfigTable(cfg))
}
