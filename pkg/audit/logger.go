// Package audit writes one JSON line per pipeline event.
package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/scttfrdmn/probav/pkg/security"
)

// Results recorded in events.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// AuditLogger writes structured audit events.
type AuditLogger struct {
	mu            sync.Mutex
	writer        io.Writer
	userID        string
	correlationID string
}

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp      time.Time              `json:"timestamp"`
	Level          string                 `json:"level"`
	Operation      string                 `json:"operation"`
	UserID         string                 `json:"user_id,omitempty"`
	Record         string                 `json:"record,omitempty"`
	Resource       string                 `json:"resource,omitempty"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	Result         string                 `json:"result"`
	Error          string                 `json:"error,omitempty"`
	AdditionalData map[string]interface{} `json:"additional_data,omitempty"`
}

// NewLogger creates a new audit logger.
func NewLogger(writer io.Writer, userID, correlationID string) *AuditLogger {
	if writer == nil {
		writer = io.Discard
	}

	return &AuditLogger{
		writer:        writer,
		userID:        userID,
		correlationID: correlationID,
	}
}

// Discard returns a logger that drops every event.
func Discard() *AuditLogger {
	return NewLogger(nil, "", "")
}

// LogOperation logs an event about resource (a file or raster map).
func (l *AuditLogger) LogOperation(operation, record, resource, result string, err error) {
	l.LogOperationWithData(operation, record, resource, result, nil, err)
}

// LogOperationWithData logs an event with additional structured data.
func (l *AuditLogger) LogOperationWithData(operation, record, resource, result string, data map[string]interface{}, err error) {
	if l == nil {
		return
	}

	event := AuditEvent{
		Timestamp:      time.Now().UTC(),
		Level:          "info",
		Operation:      operation,
		UserID:         l.userID,
		Record:         record,
		Resource:       resource,
		CorrelationID:  l.correlationID,
		Result:         result,
		AdditionalData: data,
	}

	if err != nil {
		event.Level = "error"
		event.Error = security.SanitizeForLog(err.Error())
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_ = json.NewEncoder(l.writer).Encode(event)
}

// GetCorrelationID returns the current correlation ID.
func (l *AuditLogger) GetCorrelationID() string {
	return l.correlationID
}
