// Package grass drives a GRASS GIS session through its command line
// modules.
package grass

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/scttfrdmn/probav/pkg/command"
	"github.com/scttfrdmn/probav/pkg/dataset"
)

var (
	// ErrNoSession is returned when neither a GRASS session nor an exec
	// prefix is available.
	ErrNoSession = errors.New("not inside a GRASS session (GISRC is not set); run from GRASS or configure grass.exec")
	// ErrNoEPSG is returned when the location has no EPSG code.
	ErrNoEPSG = errors.New("projection of the current location has no EPSG code")
)

// ValidateMapName checks that name is a legal raster map name: not empty,
// no leading '.', printable ASCII only and none of / " ' @ , = *.
func ValidateMapName(name string) error {
	if name == "" {
		return errors.New("map name cannot be empty")
	}
	if name[0] == '.' {
		return fmt.Errorf("invalid map name %q: must not start with '.'", name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c <= ' ' || c > '~' {
			return fmt.Errorf("invalid map name %q: contains a space, control or non-ASCII character", name)
		}
		if strings.IndexByte(`/"'@,=*`, c) >= 0 {
			return fmt.Errorf("invalid map name %q: character %q not allowed", name, c)
		}
	}
	return nil
}

// CheckEnvironment returns ErrNoSession when commands cannot reach a
// GRASS database.
func CheckEnvironment(prefix []string) error {
	if len(prefix) > 0 {
		return nil
	}
	if os.Getenv("GISRC") == "" {
		return ErrNoSession
	}
	return nil
}

// Region is the computational region.
type Region struct {
	North float64
	South float64
	East  float64
	West  float64
	NSRes float64
	EWRes float64
}

// Bounds returns (xmin, ymin, xmax, ymax).
func (r Region) Bounds() (xmin, ymin, xmax, ymax float64) {
	xmin, xmax = r.West, r.East
	if xmin > xmax {
		xmin, xmax = xmax, xmin
	}
	ymin, ymax = r.South, r.North
	if ymin > ymax {
		ymin, ymax = ymax, ymin
	}
	return xmin, ymin, xmax, ymax
}

// Projection describes the location's coordinate reference system.
type Projection struct {
	Name string
	EPSG int
	Unit string
}

// SRS returns the projection as an "EPSG:<code>" string.
func (p Projection) SRS() string {
	return fmt.Sprintf("EPSG:%d", p.EPSG)
}

// Metric reports whether map units are meters.
func (p Projection) Metric() bool {
	u := strings.ToLower(p.Unit)
	return u == "meter" || u == "metre" || u == "meters" || u == "metres"
}

// Session talks to one GRASS mapset.
type Session struct {
	runner command.Runner
}

// NewSession creates a session on top of runner.
func NewSession(runner command.Runner) *Session {
	return &Session{runner: runner}
}

// Region reads the current region (g.region -pagu).
func (s *Session) Region(ctx context.Context) (Region, error) {
	out, err := s.runner.Run(ctx, command.Cmd{Name: "g.region", Args: []string{"-pagu"}})
	if err != nil {
		return Region{}, fmt.Errorf("failed to read region: %w", err)
	}
	kv := command.ParseKeyValue(out)

	var r Region
	fields := []struct {
		key string
		dst *float64
	}{
		{"n", &r.North}, {"s", &r.South}, {"e", &r.East}, {"w", &r.West},
		{"nsres", &r.NSRes}, {"ewres", &r.EWRes},
	}
	for _, f := range fields {
		v, ok := kv[f.key]
		if !ok {
			if f.key == "nsres" || f.key == "ewres" {
				continue
			}
			return Region{}, fmt.Errorf("region output lacks %q", f.key)
		}
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Region{}, fmt.Errorf("region %s=%q: %w", f.key, v, err)
		}
		*f.dst = parsed
	}
	return r, nil
}

// Projection reads the location projection (g.proj -g).
func (s *Session) Projection(ctx context.Context) (Projection, error) {
	out, err := s.runner.Run(ctx, command.Cmd{Name: "g.proj", Args: []string{"-g"}})
	if err != nil {
		return Projection{}, fmt.Errorf("failed to read projection: %w", err)
	}
	return ParseProjection(command.ParseKeyValue(out))
}

// ParseProjection extracts the EPSG code and unit from g.proj -g output.
// The code is taken from "epsg", falling back to "srid=EPSG:<code>".
func ParseProjection(kv map[string]string) (Projection, error) {
	p := Projection{Name: kv["name"], Unit: kv["unit"]}
	if p.Unit == "" {
		p.Unit = kv["units"]
	}

	code := kv["epsg"]
	if code == "" {
		srid := kv["srid"]
		if i := strings.Index(strings.ToUpper(srid), "EPSG:"); i >= 0 {
			code = srid[i+len("EPSG:"):]
		}
	}
	if code == "" {
		return Projection{}, ErrNoEPSG
	}
	epsg, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return Projection{}, fmt.Errorf("invalid EPSG code %q: %w", code, err)
	}
	p.EPSG = epsg
	return p, nil
}

// Import registers a GeoTIFF as raster map output (r.import).
func (s *Session) Import(ctx context.Context, input, output string, overwrite bool) error {
	args := []string{"input=" + input, "output=" + output}
	if overwrite {
		args = append(args, "--overwrite")
	}
	if _, err := s.runner.Run(ctx, command.Cmd{Name: "r.import", Args: args}); err != nil {
		return fmt.Errorf("failed to import %s: %w", output, err)
	}
	return nil
}

// SetCategories attaches category labels to a raster map (r.category).
func (s *Session) SetCategories(ctx context.Context, name string, cats []dataset.Category) error {
	_, err := s.runner.Run(ctx, command.Cmd{
		Name:  "r.category",
		Args:  []string{"map=" + name, "rules=-", "separator=pipe"},
		Stdin: strings.NewReader(dataset.CategoryRules(cats)),
	})
	if err != nil {
		return fmt.Errorf("failed to set categories of %s: %w", name, err)
	}
	return nil
}

// MapExists reports whether a raster map of that name is in the search path
// (g.findfile element=cell).
func (s *Session) MapExists(ctx context.Context, name string) (bool, error) {
	out, err := s.runner.Run(ctx, command.Cmd{Name: "g.findfile", Args: []string{"element=cell", "file=" + name}})
	kv := command.ParseKeyValue(out)
	if found, ok := kv["name"]; ok {
		return found != "", nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	return false, nil
}
