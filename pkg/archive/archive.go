// Package archive lists and fetches the files of a published dataset
// record, either from the Zenodo API or from an S3 mirror of it.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrRecordNotFound is returned when the archive has no such record.
var ErrRecordNotFound = errors.New("record not found")

// RemoteFile is one file of a record.
type RemoteFile struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	Size int64  `json:"size" yaml:"size"`
	MD5  string `json:"md5" yaml:"md5"`
}

// Listing is the content of a record.
type Listing struct {
	Record string       `json:"record" yaml:"record"`
	Title  string       `json:"title,omitempty" yaml:"title,omitempty"`
	Files  []RemoteFile `json:"files" yaml:"files"`
}

// Names returns the file names in listing order.
func (l *Listing) Names() []string {
	names := make([]string, len(l.Files))
	for i, f := range l.Files {
		names[i] = f.Name
	}
	return names
}

// Checksums returns name -> md5.
func (l *Listing) Checksums() map[string]string {
	sums := make(map[string]string, len(l.Files))
	for _, f := range l.Files {
		sums[f.Name] = f.MD5
	}
	return sums
}

// File looks a file up by name.
func (l *Listing) File(name string) (RemoteFile, bool) {
	for _, f := range l.Files {
		if f.Name == name {
			return f, true
		}
	}
	return RemoteFile{}, false
}

// Source is an archive that can list and fetch record files.
type Source interface {
	// Files lists the raster files of record together with their checksums.
	Files(ctx context.Context, record string) (*Listing, error)
	// Fetch stores file at dst, verifying its checksum. It returns the
	// number of bytes written.
	Fetch(ctx context.Context, file RemoteFile, dst string) (int64, error)
	// Name describes the source for messages.
	Name() string
}

// IsRaster reports whether name is a GeoTIFF.
func IsRaster(name string) bool {
	return strings.EqualFold(path.Ext(name), ".tif")
}

// ParseMD5Sums parses md5sum style lines ("<md5> <name>" or
// "<md5>  <name>"). The checksum is the first field and the name the
// last; blank lines are ignored.
func ParseMD5Sums(r io.Reader) (map[string]string, error) {
	sums := make(map[string]string)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("md5sums line %d: expected checksum and name", line)
		}
		name := strings.TrimPrefix(fields[len(fields)-1], "*")
		sums[path.Base(name)] = strings.ToLower(fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read md5sums: %w", err)
	}
	return sums, nil
}

// FormatMD5Sums renders checksums in the format ParseMD5Sums reads, in
// listing order.
func FormatMD5Sums(l *Listing) string {
	var b strings.Builder
	for _, f := range l.Files {
		fmt.Fprintf(&b, "%s %s\n", f.MD5, f.Name)
	}
	return b.String()
}
