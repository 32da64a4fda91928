package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/scttfrdmn/probav/pkg/dataset"
)

// TestLayerFlags validates that every layer has an output flag
func TestLayerFlags(t *testing.T) {
	for _, layer := range dataset.Layers {
		if importCmd.Flags().Lookup(layer.Flag()) == nil {
			t.Errorf("missing flag --%s", layer.Flag())
		}
	}
	if importCmd.Flags().Lookup("discrete-classification-output") == nil {
		t.Error("missing --discrete-classification-output")
	}
}

// TestSelectedOutputs validates that flags override configured names
func TestSelectedOutputs(t *testing.T) {
	flag := "tree-coverfraction-output"
	if err := importCmd.Flags().Set(flag, "trees_2019"); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	defer func() {
		importCmd.Flags().Set(flag, "")
		importCmd.Flags().Lookup(flag).Changed = false
	}()

	configured := map[string]string{
		"tree_coverfraction": "trees",
		"forest_type":        "forest",
	}
	got := selectedOutputs(importCmd, configured)

	if got["tree_coverfraction"] != "trees_2019" {
		t.Errorf("flag should win, got %q", got["tree_coverfraction"])
	}
	if got["forest_type"] != "forest" {
		t.Errorf("configured output lost, got %q", got["forest_type"])
	}
	if configured["tree_coverfraction"] != "trees" {
		t.Error("configured map was modified")
	}
}

// TestSelectedOutputsEmptyFlag validates that an explicit empty flag
// disables a configured layer
func TestSelectedOutputsEmptyFlag(t *testing.T) {
	flag := "forest-type-output"
	if err := importCmd.Flags().Set(flag, ""); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	defer func() { importCmd.Flags().Lookup(flag).Changed = false }()

	got := selectedOutputs(importCmd, map[string]string{"forest_type": "forest"})
	if got["forest_type"] != "" {
		t.Errorf("expected empty output, got %q", got["forest_type"])
	}
}

// TestOpenAuditLog validates that events are appended as JSON lines
func TestOpenAuditLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for i := 0; i < 2; i++ {
		logger, closeLog, err := openAuditLog(path)
		if err != nil {
			t.Fatalf("openAuditLog() error: %v", err)
		}
		logger.LogOperation("import", "3939050", "", "success", nil)
		closeLog()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	lines := 0
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var event map[string]interface{}
		if err := dec.Decode(&event); err != nil {
			t.Fatalf("invalid event: %v", err)
		}
		if event["operation"] != "import" {
			t.Errorf("unexpected event %v", event)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("expected 2 events, got %d", lines)
	}
}

// TestOpenAuditLogDisabled validates the discard logger
func TestOpenAuditLogDisabled(t *testing.T) {
	logger, closeLog, err := openAuditLog("")
	if err != nil {
		t.Fatalf("openAuditLog() error: %v", err)
	}
	defer closeLog()
	logger.LogOperation("import", "3939050", "", "success", nil)
}

// TestRunLayersUnknown validates layer key checking
func TestRunLayersUnknown(t *testing.T) {
	if err := runLayers(layersCmd, []string{"clouds"}); err == nil {
		t.Error("expected error for unknown layer")
	}
}

// TestCompleteYear validates --year completion
func TestCompleteYear(t *testing.T) {
	years, _ := completeYear(importCmd, nil, "")
	if len(years) != len(dataset.Records) {
		t.Fatalf("expected %d years, got %d", len(dataset.Records), len(years))
	}
	if years[0] != "2015\trecord 3939038" {
		t.Errorf("first completion = %q", years[0])
	}
}

// TestCompleteLayer validates layer completion by prefix
func TestCompleteLayer(t *testing.T) {
	keys, _ := completeLayer(layersCmd, nil, "discrete")
	if len(keys) != 2 {
		t.Errorf("expected 2 discrete layers, got %v", keys)
	}
}

func TestStartSpinner(t *testing.T) {
	tests := []struct {
		format        string
		accessibility bool
		want          bool
	}{
		{format: "table", want: true},
		{format: "table", accessibility: true, want: false},
		{format: "json", want: false},
	}

	for _, tt := range tests {
		outputFormat, flagAccessibility = tt.format, tt.accessibility
		s := startSpinner("listing")
		if (s != nil) != tt.want {
			t.Errorf("format %s, accessibility %v: spinner = %v", tt.format, tt.accessibility, s != nil)
		}
		s.Stop()
	}
	outputFormat, flagAccessibility = "table", false
}
