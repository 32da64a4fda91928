// Package warp reprojects downloaded tiles into the location's
// spatial reference with gdalwarp.
package warp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/scttfrdmn/probav/pkg/command"
	"github.com/scttfrdmn/probav/pkg/grass"
)

const (
	// SourceSRS is the reference system the tiles are published in.
	SourceSRS = "EPSG:4326"
	// MetricResolution is the target pixel size in meters.
	MetricResolution = 100
	// OverviewLevel selects which overview of the source is warped.
	OverviewLevel = 5

	// CacheFraction of free memory handed to GDAL_CACHEMAX.
	CacheFraction = 0.8
)

// ErrFailed wraps every reprojection failure.
var ErrFailed = errors.New("reprojection failed")

// Options are the gdalwarp parameters for one location.
type Options struct {
	DstSRS     string
	Bounds     [4]float64
	Resolution float64
	Resampling string
	Format     string
	Overview   int
	Creation   []string
}

// NewOptions derives the warp parameters from the current region and
// projection. A resolution is only forced for metric projections.
func NewOptions(r grass.Region, p grass.Projection) Options {
	xmin, ymin, xmax, ymax := r.Bounds()
	o := Options{
		DstSRS:     p.SRS(),
		Bounds:     [4]float64{xmin, ymin, xmax, ymax},
		Resampling: "near",
		Format:     "GTiff",
		Overview:   OverviewLevel,
		Creation:   []string{"TILED=YES", "COMPRESS=LZW"},
	}
	if p.Metric() {
		o.Resolution = MetricResolution
	}
	return o
}

// Args builds the gdalwarp argument list.
func (o Options) Args(src, dst string) []string {
	args := []string{
		"-s_srs", SourceSRS,
		"-t_srs", o.DstSRS,
		"-te", ftoa(o.Bounds[0]), ftoa(o.Bounds[1]), ftoa(o.Bounds[2]), ftoa(o.Bounds[3]),
		"-te_srs", o.DstSRS,
	}
	if o.Resolution > 0 {
		args = append(args, "-tr", ftoa(o.Resolution), ftoa(o.Resolution), "-tap")
	}
	args = append(args, "-r", o.Resampling, "-of", o.Format, "-ovr", strconv.Itoa(o.Overview))
	for _, co := range o.Creation {
		args = append(args, "-co", co)
	}
	return append(args, src, dst)
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FreeMemoryFunc reports free memory in bytes.
type FreeMemoryFunc func() (uint64, error)

// SystemFreeMemory reads free memory from the host.
func SystemFreeMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Free, nil
}

// Env returns the environment for one gdalwarp run. GDAL_CACHEMAX is
// omitted when free memory cannot be read.
func Env(free FreeMemoryFunc) []string {
	env := []string{"COMPRESS_OVERVIEW=LZW"}
	if free == nil {
		return env
	}
	b, err := free()
	if err != nil || b == 0 {
		return env
	}
	mb := float64(b) / (1024 * 1024)
	return append([]string{"GDAL_CACHEMAX=" + strconv.FormatFloat(CacheFraction*mb, 'f', 0, 64)}, env...)
}

// OutputPath is <dir>/<basename without .tif>_<pid>.tif.
func OutputPath(dir, src string, pid int) string {
	base := strings.TrimSuffix(filepath.Base(src), ".tif")
	return filepath.Join(dir, fmt.Sprintf("%s_%d.tif", base, pid))
}

// Warper runs gdalwarp through a command.Runner.
type Warper struct {
	runner  command.Runner
	binary  string
	tmpDir  string
	pid     int
	free    FreeMemoryFunc
	options Options
}

// New creates a Warper writing into tmpDir.
func New(runner command.Runner, tmpDir string, opts Options) *Warper {
	return &Warper{
		runner:  runner,
		binary:  "gdalwarp",
		tmpDir:  tmpDir,
		pid:     os.Getpid(),
		free:    SystemFreeMemory,
		options: opts,
	}
}

// SetFreeMemory overrides how free memory is measured.
func (w *Warper) SetFreeMemory(f FreeMemoryFunc) { w.free = f }

// SetBinary overrides the gdalwarp executable.
func (w *Warper) SetBinary(path string) {
	if path != "" {
		w.binary = path
	}
}

// Options returns the parameters used for every scene.
func (w *Warper) Options() Options { return w.options }

// Warp reprojects src and returns the path of the new GeoTIFF.
func (w *Warper) Warp(ctx context.Context, src string) (string, error) {
	dst := OutputPath(w.tmpDir, src, w.pid)
	_, err := w.runner.Run(ctx, command.Cmd{
		Name: w.binary,
		Args: w.options.Args(src, dst),
		Env:  Env(w.free),
	})
	if err != nil {
		return "", fmt.Errorf("%w: Reprojection of scene %s failed: %v", ErrFailed, src, err)
	}
	if _, err := os.Stat(dst); err != nil {
		return "", fmt.Errorf("%w: Reprojection of scene %s failed: no output written", ErrFailed, src)
	}
	return dst, nil
}
