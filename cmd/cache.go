package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/cache"
	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/output"
)

var (
	cacheYear      int
	cacheDirectory string
	cacheFix       bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the download cache",
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check cached files against their stored checksums",
	Args:  cobra.NoArgs,
	RunE:  runCacheVerify,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheVerifyCmd)

	cacheCmd.PersistentFlags().IntVarP(&cacheYear, "year", "y", 0, "Year of the cached record (2015-2019, default 2019)")
	cacheCmd.PersistentFlags().StringVarP(&cacheDirectory, "directory", "d", "", "Download cache directory")
	cacheVerifyCmd.Flags().BoolVar(&cacheFix, "fix", false, "Forget the checksums of mismatching files so the next import downloads them again")
	cacheCmd.RegisterFlagCompletionFunc("year", completeYear)
}

func runCacheVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(context.Background(), config.Overrides{Year: cacheYear, Directory: cacheDirectory})
	if err != nil {
		return err
	}
	if !cfg.CacheEnabled() {
		return errors.New("no cache directory configured")
	}

	// Only --fix writes to the cache.
	open := cache.OpenReadOnly
	if cacheFix {
		open = cache.Open
	}
	c, err := open(cfg.Directory, cfg.Year)
	if err != nil {
		return err
	}
	defer c.Close()

	checked, bad := c.Verify()
	for _, m := range bad {
		log.Print(i18n.FormatStatus("warning", i18n.Tf("probav.cache.verify.mismatch", map[string]interface{}{"File": m.Name})))
	}

	if cacheFix && len(bad) > 0 {
		for _, m := range bad {
			c.Forget(m.Name)
		}
		if err := c.Save(); err != nil {
			return err
		}
		log.Print(i18n.FormatStatus("success", i18n.Tf("probav.cache.verify.fixed", map[string]interface{}{"Count": len(bad)})))
	}

	if err := newPrinter().Print(bad, output.MismatchTable(c.Dir(), checked, bad)); err != nil {
		return err
	}
	if len(bad) > 0 && !cacheFix {
		return fmt.Errorf("%d of %d cached files do not match their checksums", len(bad), checked)
	}
	if len(bad) == 0 {
		log.Print(i18n.FormatStatus("success", i18n.Tc("probav.cache.verify.ok", checked)))
	}
	return nil
}
