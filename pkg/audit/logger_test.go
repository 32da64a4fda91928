package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogOperation(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "alice", "corr-456")

	logger.LogOperation("download", "3939050", "E000N60_Tree-CoverFraction.tif", ResultSuccess, nil)

	var event AuditEvent
	if err := json.NewDecoder(buf).Decode(&event); err != nil {
		t.Fatalf("Failed to decode audit event: %v", err)
	}

	if event.Operation != "download" {
		t.Errorf("Expected operation download, got %s", event.Operation)
	}
	if event.Record != "3939050" {
		t.Errorf("Expected record 3939050, got %s", event.Record)
	}
	if event.Resource != "E000N60_Tree-CoverFraction.tif" {
		t.Errorf("Unexpected resource %s", event.Resource)
	}
	if event.UserID != "alice" {
		t.Errorf("Expected userID alice, got %s", event.UserID)
	}
	if event.CorrelationID != "corr-456" {
		t.Errorf("Expected correlationID corr-456, got %s", event.CorrelationID)
	}
	if event.Level != "info" {
		t.Errorf("Expected level info, got %s", event.Level)
	}
}

func TestLogOperationWithError(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "alice", "corr-456")

	logger.LogOperation("warp", "3939050", "a.tif", ResultFailed, errors.New("gdalwarp: exit status 1"))

	var event AuditEvent
	if err := json.NewDecoder(buf).Decode(&event); err != nil {
		t.Fatalf("Failed to decode audit event: %v", err)
	}

	if event.Level != "error" {
		t.Errorf("Expected level error, got %s", event.Level)
	}
	if event.Error != "gdalwarp: exit status 1" {
		t.Errorf("Unexpected error %q", event.Error)
	}
}

func TestErrorIsSanitized(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "alice", "corr-456")

	logger.LogOperation("download", "3939050", "a.tif", ResultFailed,
		errors.New("GET https://zenodo.org/api/records/3939050?access_token=s3cr3t: 403"))

	if strings.Contains(buf.String(), "s3cr3t") {
		t.Errorf("token leaked into audit log: %s", buf.String())
	}
}

func TestLogOperationWithData(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "alice", "corr")

	logger.LogOperationWithData("plan", "3939050", "", ResultSuccess, map[string]interface{}{"downloads": 2}, nil)

	var event AuditEvent
	if err := json.NewDecoder(buf).Decode(&event); err != nil {
		t.Fatalf("Failed to decode audit event: %v", err)
	}
	if event.AdditionalData["downloads"] != float64(2) {
		t.Errorf("Unexpected additional data %v", event.AdditionalData)
	}
}

func TestOneLinePerEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "", "")

	logger.LogOperation("a", "", "", ResultSuccess, nil)
	logger.LogOperation("b", "", "", ResultSkipped, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d", len(lines))
	}
}

func TestNilLogger(t *testing.T) {
	var logger *AuditLogger
	logger.LogOperation("noop", "", "", ResultSuccess, nil)
}

func TestContext(t *testing.T) {
	ctx := context.Background()

	if GetCorrelationIDFromContext(ctx) != "" {
		t.Error("Expected empty correlation ID")
	}
	if FromContext(ctx) == nil {
		t.Fatal("FromContext must never return nil")
	}

	id := NewCorrelationID()
	if len(id) != 36 {
		t.Errorf("Expected UUID, got %q", id)
	}
	ctx = NewContextWithCorrelationID(ctx, id)
	if GetCorrelationIDFromContext(ctx) != id {
		t.Error("Correlation ID not stored")
	}

	buf := &bytes.Buffer{}
	logger := NewLogger(buf, "alice", id)
	ctx = SetLoggerInContext(ctx, logger)
	if FromContext(ctx) != logger {
		t.Error("Expected stored logger")
	}
}
