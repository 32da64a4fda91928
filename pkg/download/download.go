// Package download fetches remote files over HTTP into place, verifying
// their MD5 checksum while streaming.
package download

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const partSuffix = ".part"

// ErrChecksumMismatch is returned when a downloaded file does not match
// the expected checksum.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// StatusError is an unexpected HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether the request is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Progress is reported while a file is being written.
type Progress struct {
	Name    string
	Written int64
	Total   int64
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// Downloader downloads files over HTTP.
type Downloader struct {
	client     *http.Client
	maxRetries uint64
	backoff    func() backoff.BackOff
	progress   ProgressFunc
	userAgent  string
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) { d.client = c }
}

// WithRetries sets how often a transient failure is retried.
func WithRetries(n uint64) Option {
	return func(d *Downloader) { d.maxRetries = n }
}

// WithBackOff overrides the retry schedule.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(d *Downloader) { d.backoff = f }
}

// WithProgress installs a progress callback.
func WithProgress(f ProgressFunc) Option {
	return func(d *Downloader) { d.progress = f }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) { d.userAgent = ua }
}

// New creates a Downloader.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		// No overall timeout: tiles are several GiB.
		client:     &http.Client{},
		maxRetries: 3,
		backoff:    DefaultBackOff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultBackOff is the exponential retry schedule used by default.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 10 * time.Minute
	return b
}

// Download fetches url into dst. When wantMD5 is set the content is
// verified before dst is replaced. It returns the number of bytes written.
func (d *Downloader) Download(ctx context.Context, url, dst, wantMD5 string) (int64, error) {
	var written int64
	op := func() error {
		n, err := d.fetchOnce(ctx, url, dst, wantMD5)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		written = n
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(d.backoff(), d.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}
	return written, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, url, dst, wantMD5 string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	if d.progress == nil {
		return WriteVerified(dst, resp.Body, wantMD5)
	}
	pw := NewProgressWriter(d.progress, filepath.Base(dst), resp.ContentLength)
	n, err := WriteVerified(dst, io.TeeReader(resp.Body, pw), wantMD5)
	if err == nil {
		pw.Finish()
	}
	return n, err
}

// WriteVerified streams r into dst via a temporary file next to it. The
// temporary file is removed unless the MD5 of the content equals wantMD5
// (or wantMD5 is empty).
func WriteVerified(dst string, r io.Reader, wantMD5 string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	part := dst + partSuffix
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", part, err)
	}

	hash := md5.New()
	n, err := io.Copy(io.MultiWriter(f, hash), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("failed to write %s: %w", filepath.Base(dst), err)
	}

	got := hex.EncodeToString(hash.Sum(nil))
	if wantMD5 != "" && !strings.EqualFold(got, wantMD5) {
		os.Remove(part)
		return 0, fmt.Errorf("%s: %w (got %s, want %s)", filepath.Base(dst), ErrChecksumMismatch, got, wantMD5)
	}

	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return 0, fmt.Errorf("failed to move %s into place: %w", filepath.Base(dst), err)
	}
	return n, nil
}

// FileMD5 returns the hex encoded MD5 of the file at path.
func FileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", fmt.Errorf("calculate hash: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	// Local file errors (no space, permissions) repeat on every attempt.
	var pe *fs.PathError
	var le *os.LinkError
	if errors.As(err, &pe) || errors.As(err, &le) {
		return false
	}
	return true
}

// ProgressWriter reports the bytes written through it to a ProgressFunc,
// at most every 200ms and once more when the known total is reached.
type ProgressWriter struct {
	fn    ProgressFunc
	state Progress
	last  time.Time
}

// NewProgressWriter tracks a transfer of name. A total <= 0 means the size
// is unknown.
func NewProgressWriter(fn ProgressFunc, name string, total int64) *ProgressWriter {
	return &ProgressWriter{fn: fn, state: Progress{Name: name, Total: total}}
}

func (w *ProgressWriter) Write(p []byte) (int, error) {
	w.state.Written += int64(len(p))
	now := time.Now()
	if now.Sub(w.last) >= 200*time.Millisecond || w.state.Written == w.state.Total {
		w.last = now
		w.fn(w.state)
	}
	return len(p), nil
}

// Finish reports the final size of a transfer whose total was unknown, so
// the last update always has Written == Total.
func (w *ProgressWriter) Finish() {
	if w.state.Total > 0 || w.state.Written == 0 {
		return
	}
	w.state.Total = w.state.Written
	w.fn(w.state)
}
