// Package cache keeps downloaded record files on disk together with the
// checksums they were downloaded under, so unchanged files are not
// fetched again.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/scttfrdmn/probav/pkg/download"
)

const (
	// ChecksumFile holds the stored checksums inside a year directory.
	ChecksumFile = "md5sums.json"
	lockFile     = ".probav.lock"
)

// ErrLocked is returned when another run holds the cache directory.
var ErrLocked = errors.New("cache directory is in use by another run")

// ErrReadOnly is returned when changes to a read-only cache are saved.
var ErrReadOnly = errors.New("cache was opened read-only")

// Reason says why a file is scheduled for download.
type Reason string

const (
	ReasonNewCache  Reason = "new cache"
	ReasonMissing   Reason = "not cached"
	ReasonUnknown   Reason = "no stored checksum"
	ReasonChanged   Reason = "checksum changed"
	ReasonEphemeral Reason = "temporary download"
	ReasonUpToDate  Reason = "up to date"
)

// Entry is the plan for one file.
type Entry struct {
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
	Download bool   `json:"download" yaml:"download"`
	Reason   Reason `json:"reason" yaml:"reason"`
}

// Plan is the download decision for a set of files.
type Plan []Entry

// Downloads returns the entries that must be fetched.
func (p Plan) Downloads() []Entry {
	var out []Entry
	for _, e := range p {
		if e.Download {
			out = append(out, e)
		}
	}
	return out
}

// Skipped returns the entries that are already cached.
func (p Plan) Skipped() []Entry {
	var out []Entry
	for _, e := range p {
		if !e.Download {
			out = append(out, e)
		}
	}
	return out
}

// Cache is a per-year download directory.
type Cache struct {
	dir        string
	persistent bool
	fresh      bool
	readOnly   bool
	sums       map[string]string
	dirty      bool
	lock       *flock.Flock
}

// YearDir returns the cache directory of year below root.
func YearDir(root string, year int) string {
	return filepath.Join(root, strconv.Itoa(year))
}

// Open opens (creating if needed) the persistent cache of year below
// root and takes its lock. A directory that did not exist yet is fresh:
// everything in it will be downloaded.
func Open(root string, year int) (*Cache, error) {
	dir := YearDir(root, year)
	c := &Cache{dir: dir, persistent: true, sums: make(map[string]string)}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
		c.fresh = true
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat cache directory: %w", err)
	}

	c.lock = flock.New(filepath.Join(dir, lockFile))
	locked, err := c.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock cache directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s: %w", dir, ErrLocked)
	}

	if !c.fresh {
		if err := c.load(); err != nil {
			c.lock.Unlock()
			return nil, err
		}
	}
	return c, nil
}

// OpenReadOnly reads the persistent cache of year below root without
// creating the directory or taking the lock. A missing directory yields a
// fresh, empty cache. Save fails once the cache was changed.
func OpenReadOnly(root string, year int) (*Cache, error) {
	dir := YearDir(root, year)
	c := &Cache{dir: dir, persistent: true, readOnly: true, sums: make(map[string]string)}

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		c.fresh = true
		return c, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat cache directory: %w", err)
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) load() error {
	path := filepath.Join(c.dir, ChecksumFile)
	sums, err := loadChecksums(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("No stored checksums found (%s). All files will be downloaded.", path)
	case err != nil:
		return err
	default:
		c.sums = sums
	}
	return nil
}

// Ephemeral returns a cache in dir that is never persisted; every file is
// downloaded.
func Ephemeral(dir string) *Cache {
	return &Cache{dir: dir, fresh: true, sums: make(map[string]string)}
}

// Dir returns the directory files are stored in.
func (c *Cache) Dir() string { return c.dir }

// Persistent reports whether checksums are saved.
func (c *Cache) Persistent() bool { return c.persistent }

// Path returns where name is stored.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name)
}

// Stored returns the stored checksum of name.
func (c *Cache) Stored(name string) (string, bool) {
	sum, ok := c.sums[name]
	return sum, ok
}

// Plan decides for each file whether it must be downloaded given the
// remote checksums.
func (c *Cache) Plan(names []string, remote map[string]string) Plan {
	plan := make(Plan, 0, len(names))
	for _, name := range names {
		e := Entry{Name: name, Path: c.Path(name), Download: true}
		switch {
		case !c.persistent:
			e.Reason = ReasonEphemeral
		case c.fresh:
			e.Reason = ReasonNewCache
		case !fileExists(e.Path):
			e.Reason = ReasonMissing
		default:
			old, ok := c.sums[name]
			switch {
			case !ok:
				e.Reason = ReasonUnknown
			case old != remote[name]:
				e.Reason = ReasonChanged
			default:
				e.Download = false
				e.Reason = ReasonUpToDate
			}
		}
		plan = append(plan, e)
	}
	return plan
}

// Record stores the checksum of a successfully downloaded file.
func (c *Cache) Record(name, md5 string) {
	c.sums[name] = md5
	c.dirty = true
}

// Save writes the stored checksums if the cache is persistent and they
// changed during this run.
func (c *Cache) Save() error {
	if !c.persistent || !c.dirty {
		return nil
	}
	if c.readOnly {
		return fmt.Errorf("%s: %w", c.dir, ErrReadOnly)
	}
	data, err := json.MarshalIndent(c.sums, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checksums: %w", err)
	}
	_, err = download.WriteVerified(filepath.Join(c.dir, ChecksumFile), bytes.NewReader(data), "")
	if err != nil {
		return fmt.Errorf("failed to save checksums: %w", err)
	}
	return nil
}

// Close releases the cache lock.
func (c *Cache) Close() error {
	if c.lock == nil {
		return nil
	}
	return c.lock.Unlock()
}

// Mismatch is a cached file whose content no longer matches its stored
// checksum.
type Mismatch struct {
	Name   string `json:"name" yaml:"name"`
	Stored string `json:"stored" yaml:"stored"`
	Actual string `json:"actual,omitempty" yaml:"actual,omitempty"`
	Err    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Verify recomputes the checksum of every cached file with a stored
// checksum. It returns the number of files checked and the mismatches.
func (c *Cache) Verify() (int, []Mismatch) {
	names := make([]string, 0, len(c.sums))
	for name := range c.sums {
		names = append(names, name)
	}
	sort.Strings(names)

	var bad []Mismatch
	for _, name := range names {
		actual, err := download.FileMD5(c.Path(name))
		if err != nil {
			bad = append(bad, Mismatch{Name: name, Stored: c.sums[name], Err: err.Error()})
			continue
		}
		if actual != c.sums[name] {
			bad = append(bad, Mismatch{Name: name, Stored: c.sums[name], Actual: actual})
		}
	}
	return len(names), bad
}

// Forget drops the stored checksum of name so the next run downloads it.
func (c *Cache) Forget(name string) {
	if _, ok := c.sums[name]; ok {
		delete(c.sums, name)
		c.dirty = true
	}
}

func loadChecksums(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sums := make(map[string]string)
	if err := json.Unmarshal(data, &sums); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return sums, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
