// Package importer runs the land cover pipeline: list the yearly record,
// bring the download cache up to date, then reproject and import every
// selected layer into GRASS.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"

	"github.com/scttfrdmn/probav/pkg/archive"
	"github.com/scttfrdmn/probav/pkg/audit"
	"github.com/scttfrdmn/probav/pkg/cache"
	"github.com/scttfrdmn/probav/pkg/command"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/grass"
	"github.com/scttfrdmn/probav/pkg/i18n"
	"github.com/scttfrdmn/probav/pkg/observability/metrics"
	"github.com/scttfrdmn/probav/pkg/observability/tracing"
	"github.com/scttfrdmn/probav/pkg/progress"
	"github.com/scttfrdmn/probav/pkg/warp"
)

// ErrMissingChecksum is returned when the archive lists a selected file
// without a checksum.
var ErrMissingChecksum = errors.New("remote file has no checksum")

// Options select what one run imports.
type Options struct {
	Year int
	// Outputs maps layer keys to output raster names.
	Outputs map[string]string
	// Directory is the root of the persistent download cache. When empty
	// files are downloaded into a temporary directory.
	Directory string
	// TempDir is where temporary directories are created (os.TempDir
	// when empty).
	TempDir   string
	Overwrite bool
	// DryRun stops after the download plan.
	DryRun bool
}

// ImportedMap is one raster map created by a run.
type ImportedMap struct {
	File  string `json:"file" yaml:"file"`
	Layer string `json:"layer" yaml:"layer"`
	Map   string `json:"map" yaml:"map"`
}

// Result summarizes a run.
type Result struct {
	Year       int           `json:"year" yaml:"year"`
	Record     string        `json:"record" yaml:"record"`
	CacheDir   string        `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"`
	Plan       cache.Plan    `json:"plan" yaml:"plan"`
	Downloaded []string      `json:"downloaded" yaml:"downloaded"`
	Skipped    []string      `json:"skipped" yaml:"skipped"`
	Bytes      int64         `json:"bytes" yaml:"bytes"`
	Imported   []ImportedMap `json:"imported" yaml:"imported"`
	// Categorized is the map that received the land cover classes.
	Categorized string `json:"categorized,omitempty" yaml:"categorized,omitempty"`
}

// Importer wires an archive source to a GRASS session.
type Importer struct {
	source     archive.Source
	session    *grass.Session
	warpRunner command.Runner
	gdalwarp   string
	freeMemory warp.FreeMemoryFunc

	reporter progress.Reporter
	tracer   *tracing.Tracer
	metrics  *metrics.Pipeline
}

// Option configures an Importer.
type Option func(*Importer)

// WithReporter shows progress.
func WithReporter(r progress.Reporter) Option {
	return func(i *Importer) { i.reporter = r }
}

// WithTracer records a span per stage.
func WithTracer(t *tracing.Tracer) Option {
	return func(i *Importer) { i.tracer = t }
}

// WithMetrics counts downloads and imports.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(i *Importer) { i.metrics = m }
}

// WithWarpRunner runs gdalwarp with r instead of the GRASS runner.
func WithWarpRunner(r command.Runner) Option {
	return func(i *Importer) { i.warpRunner = r }
}

// WithGDALWarp sets the gdalwarp executable.
func WithGDALWarp(path string) Option {
	return func(i *Importer) { i.gdalwarp = path }
}

// WithFreeMemory overrides how free memory is measured for GDAL_CACHEMAX.
func WithFreeMemory(f warp.FreeMemoryFunc) Option {
	return func(i *Importer) { i.freeMemory = f }
}

// New creates an Importer. GRASS modules are run through runner.
func New(source archive.Source, runner command.Runner, opts ...Option) *Importer {
	i := &Importer{
		source:     source,
		session:    grass.NewSession(runner),
		warpRunner: runner,
		freeMemory: warp.SystemFreeMemory,
		reporter:   progress.Nop{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run executes the pipeline. Events go to the audit logger carried by ctx.
func (i *Importer) Run(ctx context.Context, opts Options) (res *Result, err error) {
	attrs := []attribute.KeyValue{attribute.Int("year", opts.Year)}
	if id := audit.GetCorrelationIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("correlation_id", id))
	}
	ctx, span := i.tracer.Start(ctx, "probav.import", attrs...)
	defer func() { tracing.End(span, err) }()
	events := audit.FromContext(ctx)

	var temps tempDirs
	defer func() {
		if cerr := temps.RemoveAll(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	year := strconv.Itoa(opts.Year)
	res = &Result{Year: opts.Year}

	// resolve
	i.reporter.Start(progress.StepResolve)
	record, err := dataset.ResolveRecord(opts.Year)
	if err == nil {
		err = validateOutputs(opts.Outputs)
	}
	if err != nil {
		i.reporter.Error(progress.StepResolve, err)
		return nil, err
	}
	res.Record = record
	i.reporter.Complete(progress.StepResolve)

	// list
	i.reporter.Start(progress.StepList)
	listing, err := i.list(ctx, record)
	if err != nil {
		i.reporter.Error(progress.StepList, err)
		i.metrics.Failed(progress.StepList)
		return nil, err
	}
	selection, err := dataset.Select(listing.Names(), opts.Outputs)
	if err != nil {
		i.reporter.Error(progress.StepList, err)
		return nil, err
	}
	for _, layer := range dataset.Layers {
		if opts.Outputs[layer.Key] == "" {
			continue
		}
		if _, ok := selection.Output(layer.Key); !ok {
			log.Printf("Warning: record %s has no file for layer %s, %s is not imported", record, layer.Key, opts.Outputs[layer.Key])
			events.LogOperation("select", record, layer.Key, audit.ResultSkipped, nil)
		}
	}
	for _, sel := range selection {
		f, _ := listing.File(sel.Filename)
		if f.MD5 == "" {
			err = fmt.Errorf("%s: %w", sel.Filename, ErrMissingChecksum)
			i.reporter.Error(progress.StepList, err)
			return nil, err
		}
	}
	i.reporter.Complete(progress.StepList)

	// plan
	i.reporter.Start(progress.StepPlan)
	c, err := i.openCache(opts, &temps)
	if err != nil {
		i.reporter.Error(progress.StepPlan, err)
		return nil, err
	}
	defer c.Close()
	res.CacheDir = c.Dir()

	res.Plan = c.Plan(selection.Filenames(), listing.Checksums())
	for _, e := range res.Plan.Skipped() {
		res.Skipped = append(res.Skipped, e.Name)
		events.LogOperationWithData("download", record, e.Name, audit.ResultSkipped, map[string]interface{}{"reason": string(e.Reason)}, nil)
	}
	i.metrics.Skipped(year, len(res.Skipped))
	if n := len(res.Skipped); n > 0 {
		i.reporter.Message(i18n.Tc("probav.import.skipped", n))
	}
	events.LogOperationWithData("plan", record, "", audit.ResultSuccess, map[string]interface{}{
		"downloads": len(res.Plan.Downloads()),
		"skipped":   len(res.Skipped),
		"cache_dir": c.Dir(),
	}, nil)
	i.reporter.Complete(progress.StepPlan)

	if opts.DryRun {
		for _, step := range []string{progress.StepRegion, progress.StepDownload, progress.StepReproject, progress.StepCategories} {
			i.reporter.Skip(step)
		}
		return res, nil
	}

	// region: read before downloading so a broken session fails early
	i.reporter.Start(progress.StepRegion)
	region, proj, err := i.readLocation(ctx)
	if err != nil {
		i.reporter.Error(progress.StepRegion, err)
		i.metrics.Failed(progress.StepRegion)
		return nil, err
	}
	i.reporter.Complete(progress.StepRegion)

	// download
	if err := i.download(ctx, record, year, listing, c, res); err != nil {
		return nil, err
	}

	// reproject and import
	tmp, err := temps.Make(opts.TempDir)
	if err != nil {
		return nil, err
	}
	if err := i.reproject(ctx, record, year, region, proj, tmp, c, selection, opts.Overwrite, res); err != nil {
		return nil, err
	}

	// categories
	if name, ok := selection.Output(dataset.DiscreteClassificationKey); ok {
		i.reporter.Start(progress.StepCategories)
		err := i.session.SetCategories(ctx, name, dataset.DiscreteClassificationCategories)
		events.LogOperation("categories", record, name, result(err), err)
		if err != nil {
			i.reporter.Error(progress.StepCategories, err)
			i.metrics.Failed(progress.StepCategories)
			return nil, err
		}
		res.Categorized = name
		i.reporter.Complete(progress.StepCategories)
	} else {
		i.reporter.Skip(progress.StepCategories)
	}

	i.metrics.Succeeded(year, time.Now())
	events.LogOperationWithData("import", record, "", audit.ResultSuccess, map[string]interface{}{
		"imported":   len(res.Imported),
		"downloaded": len(res.Downloaded),
		"bytes":      res.Bytes,
	}, nil)
	return res, nil
}

func (i *Importer) list(ctx context.Context, record string) (*archive.Listing, error) {
	ctx, span := i.tracer.Start(ctx, "probav.list", attribute.String("record", record), attribute.String("source", i.source.Name()))
	start := time.Now()

	listing, err := i.source.Files(ctx, record)
	i.metrics.ObserveStage(progress.StepList, start)
	audit.FromContext(ctx).LogOperation("list", record, i.source.Name(), result(err), err)
	tracing.End(span, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list record %s: %w", record, err)
	}
	return listing, nil
}

func (i *Importer) openCache(opts Options, temps *tempDirs) (*cache.Cache, error) {
	if opts.Directory != "" && opts.DryRun {
		return cache.OpenReadOnly(opts.Directory, opts.Year)
	}
	if opts.Directory != "" {
		return cache.Open(opts.Directory, opts.Year)
	}
	dir, err := temps.Make(opts.TempDir)
	if err != nil {
		return nil, err
	}
	return cache.Ephemeral(dir), nil
}

func (i *Importer) readLocation(ctx context.Context) (grass.Region, grass.Projection, error) {
	region, err := i.session.Region(ctx)
	if err != nil {
		return grass.Region{}, grass.Projection{}, err
	}
	proj, err := i.session.Projection(ctx)
	if err != nil {
		return grass.Region{}, grass.Projection{}, err
	}
	log.Printf("Target %s (%s), bounds n=%g s=%g e=%g w=%g", proj.SRS(), proj.Unit, region.North, region.South, region.East, region.West)
	return region, proj, nil
}

// download fetches every planned file. Checksums of completed downloads
// are saved even when a later download fails.
func (i *Importer) download(ctx context.Context, record, year string, listing *archive.Listing, c *cache.Cache, res *Result) (err error) {
	downloads := res.Plan.Downloads()
	if len(downloads) == 0 {
		i.reporter.Skip(progress.StepDownload)
		return nil
	}

	i.reporter.Start(progress.StepDownload)
	start := time.Now()
	defer func() {
		if serr := c.Save(); serr != nil {
			err = multierror.Append(err, serr).ErrorOrNil()
		}
		i.metrics.ObserveStage(progress.StepDownload, start)
		if err != nil {
			i.reporter.Error(progress.StepDownload, err)
			i.metrics.Failed(progress.StepDownload)
			return
		}
		i.reporter.Complete(progress.StepDownload)
	}()

	for _, e := range downloads {
		file, _ := listing.File(e.Name)
		i.reporter.Message(i18n.Tf("probav.import.downloading", map[string]interface{}{
			"File": e.Name,
			"Size": humanize.Bytes(uint64(file.Size)),
		}))

		fctx, span := i.tracer.Start(ctx, "probav.download", attribute.String("file", e.Name), attribute.String("reason", string(e.Reason)))
		n, ferr := i.source.Fetch(fctx, file, e.Path)
		tracing.End(span, ferr)
		audit.FromContext(ctx).LogOperationWithData("download", record, e.Name, result(ferr), map[string]interface{}{
			"reason": string(e.Reason),
			"bytes":  n,
		}, ferr)
		if ferr != nil {
			return fmt.Errorf("failed to download %s: %w", e.Name, ferr)
		}

		c.Record(e.Name, file.MD5)
		res.Downloaded = append(res.Downloaded, e.Name)
		res.Bytes += n
		i.metrics.Downloaded(year, n)
	}
	return nil
}

func (i *Importer) reproject(ctx context.Context, record, year string, region grass.Region, proj grass.Projection, tmp string, c *cache.Cache, selection dataset.Selection, overwrite bool, res *Result) error {
	i.reporter.Start(progress.StepReproject)
	start := time.Now()
	defer i.metrics.ObserveStage(progress.StepReproject, start)

	w := warp.New(i.warpRunner, tmp, warp.NewOptions(region, proj))
	w.SetBinary(i.gdalwarp)
	w.SetFreeMemory(i.freeMemory)

	fail := func(stage string, err error) error {
		i.reporter.Error(progress.StepReproject, err)
		i.metrics.Failed(stage)
		return err
	}

	for _, sel := range selection {
		src := c.Path(sel.Filename)

		wctx, span := i.tracer.Start(ctx, "probav.warp", attribute.String("file", sel.Filename), attribute.String("dst_srs", proj.SRS()))
		out, err := w.Warp(wctx, src)
		tracing.End(span, err)
		audit.FromContext(ctx).LogOperation("warp", record, sel.Filename, result(err), err)
		if err != nil {
			return fail("warp", err)
		}

		ictx, span := i.tracer.Start(ctx, "probav.r.import", attribute.String("map", sel.Output))
		err = i.session.Import(ictx, out, sel.Output, overwrite)
		tracing.End(span, err)
		audit.FromContext(ctx).LogOperationWithData("r.import", record, sel.Output, result(err), map[string]interface{}{"layer": sel.Layer.Key}, err)
		if err != nil {
			return fail("import", err)
		}

		// The warped copy is only needed until r.import has read it.
		if rerr := os.Remove(out); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			log.Printf("Warning: failed to remove %s: %v", out, rerr)
		}

		res.Imported = append(res.Imported, ImportedMap{File: sel.Filename, Layer: sel.Layer.Key, Map: sel.Output})
		i.metrics.Imported(year, sel.Layer.Key)
		i.reporter.Message(i18n.Tf("probav.import.imported", map[string]interface{}{"Map": sel.Output}))
	}

	i.reporter.Complete(progress.StepReproject)
	return nil
}

func validateOutputs(outputs map[string]string) error {
	if err := dataset.ValidateOutputs(outputs); err != nil {
		return err
	}
	for key, name := range outputs {
		if name == "" {
			continue
		}
		if err := grass.ValidateMapName(name); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func result(err error) string {
	if err != nil {
		return audit.ResultFailed
	}
	return audit.ResultSuccess
}
