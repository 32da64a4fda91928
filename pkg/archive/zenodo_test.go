package archive

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/scttfrdmn/probav/pkg/download"
)

const tileBody = "fake geotiff"

// wrongMD5 is well formed but does not match tileBody.
const wrongMD5 = "3a8d8a0a4a0b0d6e6f4e1e3d5f0b2c4a"

func newZenodoServer(t *testing.T, record string, sum string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/records/" + record:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{
  "id": %s,
  "metadata": {"title": "Copernicus Global Land Service: Land Cover 100m", "doi": "10.5281/zenodo.%s"},
  "files": [
    {"key": "PROBAV_LC100_Tree-CoverFraction-layer_EPSG-4326.tif", "size": %d, "checksum": "md5:%s",
     "links": {"self": "%s/files/tree.tif"}},
    {"key": "PROBAV_LC100_Product-User-Manual.pdf", "size": 10, "checksum": "md5:d41d8cd98f00b204e9800998ecf8427e",
     "links": {"self": "%s/files/manual.pdf"}}
  ]
}`, record, record, len(tileBody), sum, srv.URL, srv.URL)
		case "/files/tree.tif":
			w.Write([]byte(tileBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func md5Of(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func testZenodoClient(baseURL string) *ZenodoClient {
	noWait := func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	c := NewZenodoClient(baseURL, download.New(download.WithBackOff(noWait)))
	c.backoff = noWait
	return c
}

func TestZenodoFiles(t *testing.T) {
	sum := md5Of(tileBody)
	srv := newZenodoServer(t, "3939050", sum)
	c := testZenodoClient(srv.URL)

	listing, err := c.Files(context.Background(), "3939050")
	if err != nil {
		t.Fatalf("Files() error: %v", err)
	}

	if listing.Title == "" {
		t.Error("expected record title")
	}
	if len(listing.Files) != 1 {
		t.Fatalf("expected only the tif to be listed, got %+v", listing.Files)
	}
	f := listing.Files[0]
	if f.Name != "PROBAV_LC100_Tree-CoverFraction-layer_EPSG-4326.tif" {
		t.Errorf("Name = %q", f.Name)
	}
	if f.MD5 != sum {
		t.Errorf("MD5 = %q, want %q", f.MD5, sum)
	}
	if f.Size != int64(len(tileBody)) {
		t.Errorf("Size = %d", f.Size)
	}
}

func TestZenodoFetch(t *testing.T) {
	srv := newZenodoServer(t, "3939050", md5Of(tileBody))
	c := testZenodoClient(srv.URL)

	listing, err := c.Files(context.Background(), "3939050")
	if err != nil {
		t.Fatalf("Files() error: %v", err)
	}

	dst := filepath.Join(t.TempDir(), listing.Files[0].Name)
	n, err := c.Fetch(context.Background(), listing.Files[0], dst)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if n != int64(len(tileBody)) {
		t.Errorf("Fetch() wrote %d bytes", n)
	}
	if data, _ := os.ReadFile(dst); string(data) != tileBody {
		t.Errorf("content = %q", data)
	}
}

func TestZenodoFetchChecksumMismatch(t *testing.T) {
	srv := newZenodoServer(t, "3939050", wrongMD5)
	c := testZenodoClient(srv.URL)

	listing, err := c.Files(context.Background(), "3939050")
	if err != nil {
		t.Fatalf("Files() error: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "tile.tif")
	_, err = c.Fetch(context.Background(), listing.Files[0], dst)
	if !errors.Is(err, download.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("corrupt download must not be kept")
	}
}

func TestZenodoRecordNotFound(t *testing.T) {
	srv := newZenodoServer(t, "3939050", wrongMD5)
	c := testZenodoClient(srv.URL)

	_, err := c.Files(context.Background(), "1")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestZenodoRetriesListing(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id": 1, "files": []}`)
	}))
	defer srv.Close()

	c := testZenodoClient(srv.URL)
	listing, err := c.Files(context.Background(), "1")
	if err != nil {
		t.Fatalf("Files() error: %v", err)
	}
	if len(listing.Files) != 0 {
		t.Errorf("expected empty listing, got %+v", listing.Files)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestZenodoNoRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testZenodoClient(srv.URL)
	c.SetRetries(0)
	if _, err := c.Files(context.Background(), "1"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestParseChecksum(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"md5:D41D8CD98F00B204E9800998ECF8427E", "d41d8cd98f00b204e9800998ecf8427e", false},
		{"d41d8cd98f00b204e9800998ecf8427e", "d41d8cd98f00b204e9800998ecf8427e", false},
		{"sha256:abcd", "", true},
		{"md5:abc", "", true},
	}

	for _, tt := range tests {
		got, err := parseChecksum(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseChecksum(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseChecksum(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
