package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/output"
	"github.com/scttfrdmn/probav/pkg/progress"
)

var (
	listYear   int
	listMirror string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the raster files of a year's record",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().IntVarP(&listYear, "year", "y", 0, "Year of the record (2015-2019, default 2019)")
	listCmd.Flags().StringVar(&listMirror, "mirror", "", "List an S3 mirror (s3://bucket/prefix) instead of Zenodo")
	listCmd.RegisterFlagCompletionFunc("year", completeYear)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, config.Overrides{Year: listYear, Mirror: listMirror})
	if err != nil {
		return err
	}
	record, err := dataset.ResolveRecord(cfg.Year)
	if err != nil {
		return err
	}

	source, err := newSource(ctx, cfg, progress.Nop{})
	if err != nil {
		return err
	}
	spin := startSpinner(i18n.Tf("probav.list.listing", map[string]interface{}{"Source": source.Name()}))
	listing, err := source.Files(ctx, record)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", source.Name(), err)
	}

	return newPrinter().Print(listing, output.FilesTable(cfg.Year, listing))
}
