// Package verifier adapts the external risk-assessment service behind one
// interface. Two transports exist: a remote HTTP API that decrypts the
// challenge bundle upstream, and a local verifier that checks a signed
// bundle in-process. Both normalize to the same Assessment.
package verifier

import (
	"context"
	"fmt"
	"time"
)

// Assessment is the verifier's verdict about a challenge bundle.
type Assessment struct {
	// IssuedAt is when the bundle was produced by the verifier.
	IssuedAt time.Time

	// ClientIdentity is the identity the verifier bound the bundle to.
	// Empty when the scheme variant does not carry one.
	ClientIdentity string

	// Anonymized reports whether the caller is using a VPN, anonymizing
	// proxy, or relay.
	Anonymized bool

	// Service names the anonymizing service, if any.
	Service string
}

// Verifier turns an opaque challenge bundle into an Assessment.
type Verifier interface {
	// Verify evaluates the bundle. Transport and upstream failures are
	// returned as *TransportError; any other error means the bundle
	// itself was rejected.
	Verify(ctx context.Context, bundle string) (*Assessment, error)
}

// TransportError reports a failure talking to the remote assessment API.
type TransportError struct {
	// Op names the failing step: "request", "status", "decode".
	Op string

	// Status is the upstream HTTP status code, or zero when the request
	// never completed.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("assessment API %s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("assessment API %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamRejected reports whether the upstream API rejected the bundle
// itself (4xx), as opposed to being unreachable or broken.
func (e *TransportError) UpstreamRejected() bool {
	return e.Status >= 400 && e.Status < 500
}
