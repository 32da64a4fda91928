// Package metrics counts what a run downloaded and imported.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps Prometheus registry
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a new Registry
func NewRegistry() *Registry {
	return &Registry{
		reg: prometheus.NewRegistry(),
	}
}

// Register registers a collector
func (r *Registry) Register(c prometheus.Collector) error {
	return r.reg.Register(c)
}

// Gatherer returns the registry as a prometheus.Gatherer
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
