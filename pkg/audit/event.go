package audit

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// NewEvent creates a verification audit event for the given client.
func NewEvent(clientIdentity string) *Event {
	return &Event{
		ID:             generateEventID(),
		Timestamp:      time.Now(),
		ClientIdentity: clientIdentity,
		Action:         ActionVerify,
	}
}

// WithRequestID attaches the per-request ID.
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// WithDecision records the policy outcome.
func (e *Event) WithDecision(allowed bool, service, reason string) *Event {
	e.Allowed = allowed
	e.Service = service
	e.Reason = reason
	return e
}

// WithError records a verifier failure.
func (e *Event) WithError(errMsg string) *Event {
	e.Allowed = false
	e.ErrorMessage = errMsg
	return e
}

// WithDuration records how long the verification took.
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMS = d.Milliseconds()
	return e
}

// generateEventID generates a unique event ID.
func generateEventID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	return base64.RawURLEncoding.EncodeToString(bytes)
}
