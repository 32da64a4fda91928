package audit

import (
	"context"
	"os/user"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "audit_correlation_id"
	loggerKey        contextKey = "audit_logger"
)

// NewCorrelationID returns a fresh id for one run.
func NewCorrelationID() string {
	return uuid.New().String()
}

// CurrentUser returns the login name of the operator, or "unknown".
func CurrentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		return "unknown"
	}
	return u.Username
}

// NewContextWithCorrelationID stores a correlation id in ctx.
func NewContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// GetCorrelationIDFromContext retrieves the correlation ID from the context.
// Returns empty string if not found.
func GetCorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if correlationID, ok := v.(string); ok {
			return correlationID
		}
	}
	return ""
}

// SetLoggerInContext stores an audit logger in the context.
func SetLoggerInContext(ctx context.Context, logger *AuditLogger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or one that discards
// events.
func FromContext(ctx context.Context) *AuditLogger {
	if v := ctx.Value(loggerKey); v != nil {
		if logger, ok := v.(*AuditLogger); ok && logger != nil {
			return logger
		}
	}
	return Discard()
}
