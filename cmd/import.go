package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/scttfrdmn/probav/pkg/audit"
	"github.com/scttfrdmn/probav/pkg/command"
	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/grass"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/importer"
	"github.com/scttfrdmn/probav/pkg/observability/metrics"
	"github.com/scttfrdmn/probav/pkg/observability/tracing"
	"github.com/scttfrdmn/probav/pkg/output"
	"github.com/scttfrdmn/probav/pkg/progress"
)

var (
	importYear        int
	importDirectory   string
	importTempDir     string
	importOverwrite   bool
	importDryRun      bool
	importMirror      string
	importZenodoURL   string
	importAuditLog    string
	importMetricsFile string
	importTrace       bool

	// layer key -> --<layer>-output value
	layerOutputs = make(map[string]*string)
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Download, reproject and import land cover layers",
	Args:  cobra.NoArgs,
	RunE:  runImport,
	// Short and Long will be set after i18n initialization
}

func init() {
	rootCmd.AddCommand(importCmd)

	f := importCmd.Flags()
	f.IntVarP(&importYear, "year", "y", 0, "Year of the land cover maps (2015-2019, default 2019)")
	f.StringVarP(&importDirectory, "directory", "d", "", "Download cache directory; without one files go to a temporary directory removed after the import")
	f.StringVar(&importTempDir, "temp-dir", "", "Directory for temporary files")
	f.BoolVar(&importOverwrite, "overwrite", false, "Overwrite existing raster maps")
	f.BoolVar(&importDryRun, "dry-run", false, "Show the download plan without downloading or importing")
	f.StringVar(&importMirror, "mirror", "", "Read files from an S3 mirror (s3://bucket/prefix)")
	f.StringVar(&importZenodoURL, "zenodo-url", "", "Base URL of the Zenodo API")
	f.StringVar(&importAuditLog, "audit-log", "", "Append JSON audit events to this file")
	f.StringVar(&importMetricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.BoolVar(&importTrace, "trace", false, "Print OpenTelemetry spans to stderr")

	for _, layer := range dataset.Layers {
		layerOutputs[layer.Key] = f.String(layer.Flag(), "", "Name of the output raster map for the "+layer.Label)
	}

	importCmd.RegisterFlagCompletionFunc("year", completeYear)
}

// updateLayerFlagUsage translates the per-layer flag help.
func updateLayerFlagUsage() {
	for _, layer := range dataset.Layers {
		if fl := importCmd.Flags().Lookup(layer.Flag()); fl != nil {
			fl.Usage = i18n.Tf("probav.import.flag.output", map[string]interface{}{"Layer": layer.Label})
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(ctx, config.Overrides{
		Year:        importYear,
		Directory:   importDirectory,
		TempDir:     importTempDir,
		ZenodoURL:   importZenodoURL,
		Mirror:      importMirror,
		AuditLog:    importAuditLog,
		MetricsFile: importMetricsFile,
		Trace:       importTrace,
	})
	if err != nil {
		return err
	}

	outputs := selectedOutputs(cmd, cfg.Outputs)
	if err := dataset.ValidateOutputs(outputs); err != nil {
		if errors.Is(err, dataset.ErrNoOutputs) {
			return i18n.Te("probav.error.no_outputs", nil)
		}
		return err
	}
	if !importDryRun {
		if err := grass.CheckEnvironment(cfg.GRASS.Exec); err != nil {
			return i18n.Te("probav.error.no_session", nil)
		}
	}

	// Progress goes to stderr; stdout carries the result.
	var reporter progress.Reporter = progress.Nop{}
	if outputFormat == output.FormatTable {
		p := progress.NewProgress(os.Stderr, cfg.Year)
		p.Header()
		reporter = p
	}

	source, err := newSource(ctx, cfg, reporter)
	if err != nil {
		return err
	}

	opts := []importer.Option{
		importer.WithReporter(reporter),
		importer.WithWarpRunner(&command.Exec{Verbose: verbose}),
		importer.WithGDALWarp(cfg.GRASS.GDALWarp),
	}

	auditLogger, closeAudit, err := openAuditLog(cfg.Audit.Log)
	if err != nil {
		return err
	}
	defer closeAudit()
	ctx = audit.SetLoggerInContext(ctx, auditLogger)
	ctx = audit.NewContextWithCorrelationID(ctx, auditLogger.GetCorrelationID())

	tracer, err := tracing.NewTracer(ctx, cfg.Observability.Tracing, "probav", Version, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			log.Printf("Warning: failed to flush traces: %v", err)
		}
	}()
	opts = append(opts, importer.WithTracer(tracer))

	var registry *metrics.Registry
	if cfg.Observability.Metrics.Enabled {
		registry = metrics.NewRegistry()
		pipeline, err := metrics.NewPipeline(registry)
		if err != nil {
			return err
		}
		opts = append(opts, importer.WithMetrics(pipeline))
	}

	directory := cfg.Directory
	if !cfg.CacheEnabled() {
		directory = ""
	}

	imp := importer.New(source, &command.Exec{Prefix: cfg.GRASS.Exec, Verbose: verbose}, opts...)
	res, runErr := imp.Run(ctx, importer.Options{
		Year:      cfg.Year,
		Outputs:   outputs,
		Directory: directory,
		TempDir:   cfg.TempDir,
		Overwrite: importOverwrite,
		DryRun:    importDryRun,
	})

	// Metrics are written for failed runs too.
	if registry != nil {
		if err := registry.WriteTextfile(cfg.Observability.Metrics.TextfilePath); err != nil {
			log.Printf("Warning: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printer := newPrinter()
	if importDryRun {
		return printer.Print(res.Plan, output.PlanTable(res.Plan))
	}
	reporter.Message(i18n.FormatStatus("success", i18n.Tf("probav.import.summary", map[string]interface{}{
		"Imported":   len(res.Imported),
		"Downloaded": len(res.Downloaded),
		"Skipped":    len(res.Skipped),
	})))
	return printer.Print(res, output.ResultTable(res))
}

// selectedOutputs merges the configured output names with the
// --<layer>-output flags. Flags given on the command line win.
func selectedOutputs(cmd *cobra.Command, configured map[string]string) map[string]string {
	outputs := make(map[string]string)
	for key, name := range configured {
		outputs[key] = name
	}
	for _, layer := range dataset.Layers {
		if cmd.Flags().Changed(layer.Flag()) {
			outputs[layer.Key] = *layerOutputs[layer.Key]
		}
	}
	return outputs
}

// openAuditLog opens path for appending. Without a path events are
// discarded.
func openAuditLog(path string) (*audit.AuditLogger, func(), error) {
	if path == "" {
		return audit.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return newAuditLogger(f), func() { f.Close() }, nil
}

func newAuditLogger(w io.Writer) *audit.AuditLogger {
	return audit.NewLogger(w, audit.CurrentUser(), audit.NewCorrelationID())
}
