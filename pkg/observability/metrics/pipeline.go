package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "probav"

// Pipeline holds the counters of an import run. A nil *Pipeline ignores
// every observation.
type Pipeline struct {
	filesDownloaded *prometheus.CounterVec
	filesSkipped    *prometheus.CounterVec
	bytesDownloaded *prometheus.CounterVec
	mapsImported    *prometheus.CounterVec
	failures        *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
}

// NewPipeline creates the run metrics and registers them with reg.
func NewPipeline(reg *Registry) (*Pipeline, error) {
	p := &Pipeline{
		filesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_downloaded_total",
			Help:      "Files fetched from the archive.",
		}, []string{"year"}),
		filesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_skipped_total",
			Help:      "Files reused from the cache.",
		}, []string{"year"}),
		bytesDownloaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes fetched from the archive.",
		}, []string{"year"}),
		mapsImported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_imported_total",
			Help:      "Raster maps registered with GRASS.",
		}, []string{"year", "layer"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed pipeline stages.",
		}, []string{"stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"stage"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful import.",
		}, []string{"year"}),
	}

	for _, c := range []prometheus.Collector{
		p.filesDownloaded, p.filesSkipped, p.bytesDownloaded, p.mapsImported,
		p.failures, p.stageDuration, p.lastSuccess,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Downloaded counts one fetched file of n bytes.
func (p *Pipeline) Downloaded(year string, n int64) {
	if p == nil {
		return
	}
	p.filesDownloaded.WithLabelValues(year).Inc()
	p.bytesDownloaded.WithLabelValues(year).Add(float64(n))
}

// Skipped counts files reused from the cache.
func (p *Pipeline) Skipped(year string, n int) {
	if p == nil {
		return
	}
	p.filesSkipped.WithLabelValues(year).Add(float64(n))
}

// Imported counts one imported raster map.
func (p *Pipeline) Imported(year, layer string) {
	if p == nil {
		return
	}
	p.mapsImported.WithLabelValues(year, layer).Inc()
}

// Failed counts a failed stage.
func (p *Pipeline) Failed(stage string) {
	if p == nil {
		return
	}
	p.failures.WithLabelValues(stage).Inc()
}

// ObserveStage records how long stage took since start.
func (p *Pipeline) ObserveStage(stage string, start time.Time) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Succeeded stamps the time of a completed run.
func (p *Pipeline) Succeeded(year string, at time.Time) {
	if p == nil {
		return
	}
	p.lastSuccess.WithLabelValues(year).Set(float64(at.Unix()))
}
