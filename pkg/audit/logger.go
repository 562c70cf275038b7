// Package audit records gate decisions for operators: verification
// attempts, denials, and verifier failures.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event represents an auditable gate decision.
type Event struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
	ClientIdentity string    `json:"client_identity"`
	Action         string    `json:"action"`
	Allowed        bool      `json:"allowed"`
	Service        string    `json:"service,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// ActionVerify marks events produced by the verification endpoint.
const ActionVerify = "verify"

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	StartTime      *time.Time
	EndTime        *time.Time
	ClientIdentity string
	Allowed        *bool
	Limit          int
	Offset         int
}

// SlogLogger writes audit events to a structured logger. Query is not
// supported; it exists so the gate can run without a database.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a slog-backed audit logger.
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// Log records an audit event.
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "gate decision",
		slog.String("id", event.ID),
		slog.String("request_id", event.RequestID),
		slog.String("client_identity", event.ClientIdentity),
		slog.String("action", event.Action),
		slog.Bool("allowed", event.Allowed),
		slog.String("service", event.Service),
		slog.String("reason", event.Reason),
		slog.String("error", event.ErrorMessage),
		slog.Int64("duration_ms", event.DurationMS),
	)
	return nil
}

// Query is unsupported for the slog logger.
func (l *SlogLogger) Query(context.Context, QueryFilter) ([]Event, error) {
	return nil, nil
}

// Close is a no-op.
func (l *SlogLogger) Close() error { return nil }

var _ Logger = (*SlogLogger)(nil)
