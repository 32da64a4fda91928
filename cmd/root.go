package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/output"
	"github.com/scttfrdmn/probav/pkg/security"
)

var (
	// Global flags
	cfgFile      string
	outputFormat string
	noColor      bool
	verbose      bool

	// i18n and accessibility flags
	flagLang          string
	flagNoEmoji       bool
	flagAccessibility bool
)

var rootCmd = &cobra.Command{
	Use:           "probav",
	SilenceUsage:  true,
	SilenceErrors: true,
	// Short and Long will be set after i18n initialization
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return output.ValidateFormat(outputFormat)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, i18n.FormatStatus("error", err.Error()))
		os.Exit(1)
	}
}

func init() {
	log.SetFlags(0)
	log.SetPrefix("probav: ")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.probav/config.yaml or $PROBAV_CONFIG)")

	// Add i18n and accessibility flags
	rootCmd.PersistentFlags().StringVar(&flagLang, "lang", "", "Language for output (en, de)")
	rootCmd.PersistentFlags().BoolVar(&flagNoEmoji, "no-emoji", false, "Disable emoji in output")
	rootCmd.PersistentFlags().BoolVar(&flagAccessibility, "accessibility", false, "Enable accessibility mode (implies --no-emoji)")

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", output.FormatTable, "Output format (table, json, yaml, csv)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colorized output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every external command")

	// Initialize i18n before command execution
	cobra.OnInitialize(initI18n)

	rootCmd.CompletionOptions.DisableDefaultCmd = false
	rootCmd.CompletionOptions.DisableDescriptions = false

	rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return output.Formats, cobra.ShellCompDirectiveNoFileComp
	})
	rootCmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return i18n.SupportedLanguages(), cobra.ShellCompDirectiveNoFileComp
	})
}

func initI18n() {
	cfg := i18n.Config{
		Language:          flagLang,
		Verbose:           verbose,
		AccessibilityMode: flagAccessibility,
		NoEmoji:           flagNoEmoji,
	}

	if err := i18n.Init(cfg); err != nil {
		log.Printf("Warning: failed to initialize i18n: %v", err)
		// Continue with default English
	}

	updateCommandDescriptions()
}

func updateCommandDescriptions() {
	rootCmd.Short = i18n.T("probav.root.short")
	rootCmd.Long = i18n.T("probav.root.long")

	for _, c := range []struct {
		path []string
		key  string
		long bool
	}{
		{[]string{"import"}, "probav.import", true},
		{[]string{"list"}, "probav.list", false},
		{[]string{"layers"}, "probav.layers", false},
		{[]string{"cache"}, "probav.cache", false},
		{[]string{"cache", "verify"}, "probav.cache.verify", false},
		{[]string{"mirror"}, "probav.mirror", false},
		{[]string{"mirror", "push"}, "probav.mirror.push", false},
		{[]string{"config"}, "probav.config", false},
		{[]string{"config", "show"}, "probav.config.show", false},
		{[]string{"version"}, "probav.version", false},
		{[]string{"completion"}, "probav.completion", false},
	} {
		cmd, _, err := rootCmd.Find(c.path)
		if err != nil || cmd == nil || cmd == rootCmd {
			continue
		}
		cmd.Short = i18n.T(c.key + ".short")
		if c.long {
			cmd.Long = i18n.T(c.key + ".long")
		}
	}

	updateLayerFlagUsage()
}

// loadConfig merges the config file, environment and flags and checks the
// directories the run writes to.
func loadConfig(ctx context.Context, flags config.Overrides) (*config.Loaded, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	} else if err := security.ValidatePathForReading(path); err != nil {
		return nil, fmt.Errorf("--config: %w", err)
	}

	cfg, err := config.Load(ctx, path, flags, &lazySSM{})
	if err != nil {
		return nil, err
	}
	if err := security.ValidateDirectory(cfg.Directory); err != nil {
		return nil, fmt.Errorf("directory %s: %w", security.SanitizePath(cfg.Directory), err)
	}
	if err := security.ValidateDirectory(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("temp_dir %s: %w", security.SanitizePath(cfg.TempDir), err)
	}
	return cfg, nil
}

// lazySSM creates the SSM client on first use, so AWS configuration is
// only loaded when mirror discovery is enabled.
type lazySSM struct {
	once   sync.Once
	client *ssm.Client
	err    error
}

func (l *lazySSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	l.once.Do(func() {
		l.client, l.err = config.NewSSMClient(ctx, os.Getenv("PROBAV_MIRROR_REGION"))
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.client.GetParameter(ctx, in, optFns...)
}

func newPrinter() *output.Printer {
	return output.NewPrinter(os.Stdout, outputFormat, !noColor && !flagAccessibility)
}
