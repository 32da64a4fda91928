package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scttfrdmn/probav/pkg/observability"
)

func TestNewTracer_Disabled(t *testing.T) {
	ctx := context.Background()

	tracer, err := NewTracer(ctx, observability.TracingConfig{Enabled: false}, "probav", "test", nil)
	if err != nil {
		t.Fatalf("Failed to create disabled tracer: %v", err)
	}
	if tracer.tracer == nil {
		t.Fatal("Expected non-nil internal tracer")
	}
	if err := tracer.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestNewTracer_Stdout(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}
	config := observability.TracingConfig{
		Enabled:      true,
		Exporter:     "stdout",
		SamplingRate: 1.0,
	}

	tracer, err := NewTracer(ctx, config, "probav", "test", buf)
	if err != nil {
		t.Fatalf("Failed to create stdout tracer: %v", err)
	}

	ctx, parent := tracer.Start(ctx, "import", attribute.Int("year", 2019))
	_, child := tracer.Start(ctx, "warp")
	End(child, errors.New("exit status 1"))
	End(parent, nil)

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"name": "import"`, `"name": "warp"`, `"year": 2019`, `"parent_id"`, `"status": "Error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("trace output lacks %s:\n%s", want, out)
		}
	}
}

func TestNewTracer_InvalidExporter(t *testing.T) {
	config := observability.TracingConfig{
		Enabled:  true,
		Exporter: "xray",
	}

	if _, err := NewTracer(context.Background(), config, "probav", "test", nil); err == nil {
		t.Error("Expected error for unsupported exporter")
	}
}

func TestNilTracerStart(t *testing.T) {
	var tracer *Tracer
	ctx, span := tracer.Start(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("Expected no-op span")
	}
	End(span, nil)
}
