package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/archive"
	"github.com/scttfrdmn/probav/pkg/cache"
	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/output"
	"github.com/scttfrdmn/probav/pkg/progress"
)

var (
	mirrorYear      int
	mirrorDirectory string
	mirrorURI       string
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Maintain an S3 mirror of the archive",
}

var mirrorPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload cached files and their checksums to the mirror",
	Args:  cobra.NoArgs,
	RunE:  runMirrorPush,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.AddCommand(mirrorPushCmd)

	mirrorPushCmd.Flags().IntVarP(&mirrorYear, "year", "y", 0, "Year to upload (2015-2019, default 2019)")
	mirrorPushCmd.Flags().StringVarP(&mirrorDirectory, "directory", "d", "", "Download cache directory")
	mirrorPushCmd.Flags().StringVar(&mirrorURI, "mirror", "", "Mirror location (s3://bucket/prefix)")
	mirrorPushCmd.RegisterFlagCompletionFunc("year", completeYear)
}

func runMirrorPush(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig(ctx, config.Overrides{Year: mirrorYear, Directory: mirrorDirectory, Mirror: mirrorURI})
	if err != nil {
		return err
	}
	if cfg.Mirror.URI == "" {
		return errors.New("no mirror configured; use --mirror s3://bucket/prefix")
	}
	if !cfg.CacheEnabled() {
		return errors.New("no cache directory configured")
	}
	record, err := dataset.ResolveRecord(cfg.Year)
	if err != nil {
		return err
	}

	// Zenodo is the authority for names and checksums.
	zenodo := newZenodoClient(cfg, progress.Nop{})
	spin := startSpinner(i18n.Tf("probav.list.listing", map[string]interface{}{"Source": zenodo.Name()}))
	defer spin.Stop()
	listing, err := zenodo.Files(ctx, record)
	if err != nil {
		return err
	}

	c, err := cache.OpenReadOnly(cfg.Directory, cfg.Year)
	if err != nil {
		return err
	}
	defer c.Close()

	// Only files whose stored checksum matches the archive are uploaded.
	pushed := &archive.Listing{Record: listing.Record, Title: listing.Title}
	var notCached []string
	for _, f := range listing.Files {
		if sum, ok := c.Stored(f.Name); ok && sum == f.MD5 {
			pushed.Files = append(pushed.Files, f)
			continue
		}
		notCached = append(notCached, f.Name)
	}

	mirror, err := archive.NewS3Mirror(ctx, cfg.Mirror.URI, cfg.Mirror.Region)
	if err != nil {
		return err
	}
	spin.UpdateMessage(i18n.Tf("probav.mirror.push.uploading", map[string]interface{}{
		"Count":  len(pushed.Files),
		"Mirror": mirror.Name(),
	}))
	uploaded, missing, err := mirror.Push(ctx, pushed, c.Dir())
	spin.Stop()
	if err != nil {
		return fmt.Errorf("failed to push to %s: %w", mirror.Name(), err)
	}
	for _, name := range append(notCached, missing...) {
		log.Print(i18n.FormatStatus("warning", i18n.Tf("probav.mirror.push.missing", map[string]interface{}{"File": name})))
	}
	log.Print(i18n.FormatStatus("success", i18n.Tf("probav.mirror.push.done", map[string]interface{}{
		"Uploaded": len(uploaded),
		"Mirror":   mirror.Name(),
	})))

	return newPrinter().Print(pushed, output.FilesTable(cfg.Year, pushed))
}
