// Package config loads probav settings from flags, PROBAV_* environment
// variables, ~/.probav/config.yaml and SSM Parameter Store.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/probav/pkg/archive"
	"github.com/scttfrdmn/probav/pkg/dataset"
	"github.com/scttfrdmn/probav/pkg/observability"
)

// Config file path below the home directory
const configFileName = ".probav/config.yaml"

// Sources a setting can come from, lowest precedence first.
const (
	SourceDefault = "default"
	SourceSSM     = "ssm"
	SourceFile    = "file"
	SourceEnv     = "env"
	SourceFlag    = "flag"
)

// Config represents the probav configuration
type Config struct {
	Year int `yaml:"year"`
	// Directory is the root of the download cache. When empty (or "none")
	// files are downloaded into a temporary directory that is removed
	// after the import.
	Directory string `yaml:"directory"`
	TempDir   string `yaml:"temp_dir"`

	Zenodo        ZenodoConfig         `yaml:"zenodo"`
	Mirror        MirrorConfig         `yaml:"mirror"`
	GRASS         GRASSConfig          `yaml:"grass"`
	Audit         AuditConfig          `yaml:"audit"`
	Observability observability.Config `yaml:"observability"`

	// Outputs are default output map names per layer key.
	Outputs map[string]string `yaml:"outputs"`
}

// ZenodoConfig configures the archive API.
type ZenodoConfig struct {
	URL     string `yaml:"url"`
	Retries uint64 `yaml:"retries"`
}

// MirrorConfig configures an S3 mirror of the archive.
type MirrorConfig struct {
	// URI is s3://bucket/prefix. When set, files are read from the
	// mirror instead of the archive.
	URI    string `yaml:"uri"`
	Region string `yaml:"region"`
	// Discover looks the mirror bucket up in SSM Parameter Store when no
	// URI is configured.
	Discover bool `yaml:"discover"`
}

// GRASSConfig configures how GRASS modules and GDAL are run.
type GRASSConfig struct {
	// Exec is prepended to every GRASS module, e.g.
	// ["grass", "/data/grassdb/europe/PERMANENT", "--exec"].
	Exec     []string `yaml:"exec"`
	GDALWarp string   `yaml:"gdalwarp"`
}

// AuditConfig configures the JSON audit log.
type AuditConfig struct {
	Log string `yaml:"log"`
}

// Overrides are values given on the command line. Zero values are unset.
type Overrides struct {
	Year        int
	Directory   string
	TempDir     string
	ZenodoURL   string
	Mirror      string
	AuditLog    string
	MetricsFile string
	Trace       bool
}

// Loaded is a configuration together with the source of each setting.
type Loaded struct {
	Config
	Path    string
	Sources map[string]string
}

// Default returns the built-in configuration. No cache directory is set.
func Default() Config {
	return Config{
		Year:          dataset.DefaultYear,
		Zenodo:        ZenodoConfig{URL: archive.DefaultZenodoURL, Retries: 3},
		GRASS:         GRASSConfig{GDALWarp: "gdalwarp"},
		Observability: observability.DefaultConfig(),
	}
}

// DefaultPath returns ~/.probav/config.yaml, or PROBAV_CONFIG when set.
func DefaultPath() string {
	if p := os.Getenv("PROBAV_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, configFileName)
}

// Load builds the configuration with precedence:
// 1. CLI flags (passed as overrides)
// 2. Environment variables
// 3. Config file
// 4. SSM Parameter Store (mirror bucket only, when discovery is enabled)
// 5. Defaults
//
// A missing config file is not an error; an unreadable one is.
func Load(ctx context.Context, path string, flags Overrides, ssm ParameterGetter) (*Loaded, error) {
	l := &Loaded{Config: Default(), Path: path, Sources: make(map[string]string)}
	for _, key := range settingKeys {
		l.Sources[key] = SourceDefault
	}

	if path != "" {
		if err := l.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := l.mergeEnv(); err != nil {
		return nil, err
	}
	l.mergeFlags(flags)

	if l.Mirror.URI == "" && l.Mirror.Discover && ssm != nil {
		if uri, err := DiscoverMirror(ctx, ssm); err == nil {
			l.Mirror.URI = uri
			l.Sources["mirror.uri"] = SourceSSM
		}
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

var settingKeys = []string{
	"year", "directory", "temp_dir", "zenodo.url", "zenodo.retries",
	"mirror.uri", "mirror.region", "mirror.discover", "grass.exec", "grass.gdalwarp",
	"audit.log", "observability.metrics.textfile", "observability.tracing.enabled",
	"outputs",
}

// mergeFile loads configuration from path. Only keys present in the file
// replace the current values.
func (l *Loaded) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &l.Config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for _, key := range settingKeys {
		if hasKey(raw, strings.Split(key, ".")) {
			l.Sources[key] = SourceFile
		}
	}
	return nil
}

func hasKey(m map[string]interface{}, path []string) bool {
	v, ok := m[path[0]]
	if !ok {
		return false
	}
	if len(path) == 1 {
		return true
	}
	sub, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	return hasKey(sub, path[1:])
}

// mergeEnv overrides config with PROBAV_* environment variables
func (l *Loaded) mergeEnv() error {
	set := func(key string, apply func(string) error, env string) error {
		val := os.Getenv(env)
		if val == "" {
			return nil
		}
		if err := apply(val); err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		l.Sources[key] = SourceEnv
		return nil
	}
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}

	vars := []struct {
		key   string
		env   string
		apply func(string) error
	}{
		{"year", "PROBAV_YEAR", func(v string) error {
			year, err := dataset.ParseYear(v)
			l.Year = year
			return err
		}},
		{"directory", "PROBAV_DIRECTORY", str(&l.Directory)},
		{"temp_dir", "PROBAV_TEMP_DIR", str(&l.TempDir)},
		{"zenodo.url", "PROBAV_ZENODO_URL", str(&l.Zenodo.URL)},
		{"zenodo.retries", "PROBAV_ZENODO_RETRIES", func(v string) error {
			n, err := strconv.ParseUint(v, 10, 32)
			l.Zenodo.Retries = n
			return err
		}},
		{"mirror.uri", "PROBAV_MIRROR", str(&l.Mirror.URI)},
		{"mirror.region", "PROBAV_MIRROR_REGION", str(&l.Mirror.Region)},
		{"mirror.discover", "PROBAV_MIRROR_DISCOVER", func(v string) error {
			b, err := strconv.ParseBool(v)
			l.Mirror.Discover = b
			return err
		}},
		{"grass.exec", "PROBAV_GRASS_EXEC", func(v string) error {
			l.GRASS.Exec = strings.Fields(v)
			return nil
		}},
		{"grass.gdalwarp", "PROBAV_GDALWARP", str(&l.GRASS.GDALWarp)},
		{"audit.log", "PROBAV_AUDIT_LOG", str(&l.Audit.Log)},
		{"observability.metrics.textfile", "PROBAV_METRICS_FILE", str(&l.Observability.Metrics.TextfilePath)},
	}
	for _, v := range vars {
		if err := set(v.key, v.apply, v.env); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loaded) mergeFlags(f Overrides) {
	setStr := func(key string, dst *string, val string) {
		if val != "" {
			*dst = val
			l.Sources[key] = SourceFlag
		}
	}

	if f.Year != 0 {
		l.Year = f.Year
		l.Sources["year"] = SourceFlag
	}
	setStr("directory", &l.Directory, f.Directory)
	setStr("temp_dir", &l.TempDir, f.TempDir)
	setStr("zenodo.url", &l.Zenodo.URL, f.ZenodoURL)
	setStr("mirror.uri", &l.Mirror.URI, f.Mirror)
	setStr("audit.log", &l.Audit.Log, f.AuditLog)
	setStr("observability.metrics.textfile", &l.Observability.Metrics.TextfilePath, f.MetricsFile)
	if f.Trace {
		l.Observability.Tracing.Enabled = true
		l.Sources["observability.tracing.enabled"] = SourceFlag
	}
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	if _, err := dataset.ResolveRecord(c.Year); err != nil {
		return err
	}
	if c.Mirror.URI != "" {
		if _, _, err := archive.ParseS3URI(c.Mirror.URI); err != nil {
			return fmt.Errorf("mirror.uri: %w", err)
		}
	}
	for key := range c.Outputs {
		if _, ok := dataset.LayerByKey(key); !ok {
			return fmt.Errorf("outputs: unknown layer %q", key)
		}
	}
	if c.Observability.Metrics.TextfilePath != "" {
		c.Observability.Metrics.Enabled = true
	}
	return nil
}

// CacheEnabled reports whether downloads are kept between runs.
func (c *Config) CacheEnabled() bool {
	return c.Directory != "" && c.Directory != "none"
}
