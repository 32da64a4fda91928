package cmd

import (
	"context"
	"os"

	"github.com/scttfrdmn/probav/pkg/archive"
	"github.com/scttfrdmn/probav/pkg/config"
	"github.com/scttfrdmn/probav/pkg/download"
	"github.com/scttfrdmn/probav/pkg/output"
	"github.com/scttfrdmn/probav/pkg/progress"
)

// newSource returns the S3 mirror when one is configured, the Zenodo API
// otherwise.
func newSource(ctx context.Context, cfg *config.Loaded, reporter progress.Reporter) (archive.Source, error) {
	if cfg.Mirror.URI != "" {
		mirror, err := archive.NewS3Mirror(ctx, cfg.Mirror.URI, cfg.Mirror.Region)
		if err != nil {
			return nil, err
		}
		mirror.SetProgress(bytesTo(reporter))
		return mirror, nil
	}
	return newZenodoClient(cfg, reporter), nil
}

func bytesTo(reporter progress.Reporter) download.ProgressFunc {
	return func(p download.Progress) {
		reporter.Bytes(p.Name, p.Written, p.Total)
	}
}

func newZenodoClient(cfg *config.Loaded, reporter progress.Reporter) *archive.ZenodoClient {
	downloader := download.New(
		download.WithRetries(cfg.Zenodo.Retries),
		download.WithUserAgent("probav/"+Version),
		download.WithProgress(bytesTo(reporter)),
	)
	client := archive.NewZenodoClient(cfg.Zenodo.URL, downloader)
	client.SetRetries(cfg.Zenodo.Retries)
	return client
}

// startSpinner animates msg on stderr. Without table output or in
// accessibility mode it returns nil, which is safe to use.
func startSpinner(msg string) *progress.Spinner {
	if outputFormat != output.FormatTable || flagAccessibility {
		return nil
	}
	s := progress.NewSpinner(os.Stderr, msg)
	s.Start()
	return s
}
