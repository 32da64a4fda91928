package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/scttfrdmn/probav/pkg/download"
)

// DefaultZenodoURL is the public Zenodo instance.
const DefaultZenodoURL = "https://zenodo.org"

// zenodoRecord is the subset of the records API response we use.
type zenodoRecord struct {
	ID       json.Number `json:"id"`
	Metadata struct {
		Title string `json:"title"`
		DOI   string `json:"doi"`
	} `json:"metadata"`
	Files []zenodoFile `json:"files"`
}

type zenodoFile struct {
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Links    struct {
		Self string `json:"self"`
	} `json:"links"`
}

// ZenodoClient reads records from the Zenodo REST API.
type ZenodoClient struct {
	httpClient *http.Client
	baseURL    string
	downloader *download.Downloader
	backoff    func() backoff.BackOff
	maxRetries uint64
}

// NewZenodoClient creates a client. An empty baseURL uses DefaultZenodoURL.
func NewZenodoClient(baseURL string, downloader *download.Downloader) *ZenodoClient {
	if baseURL == "" {
		baseURL = DefaultZenodoURL
	}
	if downloader == nil {
		downloader = download.New()
	}
	return &ZenodoClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		downloader: downloader,
		backoff:    download.DefaultBackOff,
		maxRetries: 3,
	}
}

// SetRetries sets how often a failed API request is retried.
func (c *ZenodoClient) SetRetries(n uint64) {
	c.maxRetries = n
}

// Name implements Source.
func (c *ZenodoClient) Name() string {
	return c.baseURL
}

// Files implements Source.
func (c *ZenodoClient) Files(ctx context.Context, record string) (*Listing, error) {
	endpoint := fmt.Sprintf("%s/api/records/%s", c.baseURL, url.PathEscape(record))

	var rec zenodoRecord
	op := func() error {
		err := c.getJSON(ctx, endpoint, &rec)
		var se *download.StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return backoff.Permanent(err)
		}
		if errors.Is(err, ErrRecordNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.backoff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("failed to list record %s: %w", record, err)
	}

	listing := &Listing{Record: record, Title: rec.Metadata.Title}
	for _, f := range rec.Files {
		if !IsRaster(f.Key) {
			continue
		}
		sum, err := parseChecksum(f.Checksum)
		if err != nil {
			return nil, fmt.Errorf("record %s file %s: %w", record, f.Key, err)
		}
		link := f.Links.Self
		if link == "" {
			link = fmt.Sprintf("%s/records/%s/files/%s?download=1", c.baseURL, url.PathEscape(record), url.PathEscape(f.Key))
		}
		listing.Files = append(listing.Files, RemoteFile{
			Name: f.Key,
			URL:  link,
			Size: f.Size,
			MD5:  sum,
		})
	}
	return listing, nil
}

// Fetch implements Source.
func (c *ZenodoClient) Fetch(ctx context.Context, file RemoteFile, dst string) (int64, error) {
	return c.downloader.Download(ctx, file.URL, dst, file.MD5)
}

func (c *ZenodoClient) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call archive API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return ErrRecordNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return &download.StatusError{URL: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to parse response: %w", err))
	}
	return nil
}

// parseChecksum accepts "md5:<hex>" or a bare hex digest.
func parseChecksum(s string) (string, error) {
	algo, sum, found := strings.Cut(s, ":")
	if !found {
		sum, algo = algo, "md5"
	}
	if !strings.EqualFold(algo, "md5") {
		return "", fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
	if len(sum) != 32 {
		return "", fmt.Errorf("malformed md5 checksum %q", s)
	}
	return strings.ToLower(sum), nil
}
