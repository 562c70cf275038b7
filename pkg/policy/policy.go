// Package policy decides whether a risk assessment passes the gate.
package policy

import (
	"time"

	"github.com/edgefence/edgefence/pkg/verifier"
)

// DefaultTolerance is the maximum allowed age of an assessment. It binds
// the bundle to a single live challenge round-trip and rejects replays.
const DefaultTolerance = 5 * time.Second

// Decision is the outcome of evaluating an assessment.
type Decision struct {
	// Allowed reports whether the caller may receive a session token.
	Allowed bool

	// Service is the anonymizing service that triggered the denial, when
	// the verifier identified one.
	Service string

	// Reason classifies the denial for logging and the denial page.
	Reason string
}

// Denial reasons.
const (
	ReasonStale            = "stale_assessment"
	ReasonAnonymized       = "anonymized_traffic"
	ReasonIdentityMismatch = "identity_mismatch"
)

// Engine evaluates assessments against the gate's policy. Its fields are
// fixed at construction and safe for unsynchronized concurrent reads.
type Engine struct {
	exempted        map[string]struct{}
	tolerance       time.Duration
	requireIdentity bool
}

// Config configures the policy engine.
type Config struct {
	// ExemptedServices lists anonymizing services allowed through even
	// when the assessment is stale or flags anonymized traffic, e.g. a
	// corporate VPN or an OS-level private relay.
	ExemptedServices []string

	// Tolerance is the assessment freshness window. Zero means
	// DefaultTolerance.
	Tolerance time.Duration

	// RequireIdentity rejects assessments that carry a client identity
	// different from the presenting caller. Assessments without an
	// identity (local bundle variant) skip the check regardless.
	RequireIdentity bool
}

// NewEngine creates a policy engine from config.
func NewEngine(cfg Config) *Engine {
	exempted := make(map[string]struct{}, len(cfg.ExemptedServices))
	for _, s := range cfg.ExemptedServices {
		exempted[s] = struct{}{}
	}
	tolerance := cfg.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{
		exempted:        exempted,
		tolerance:       tolerance,
		requireIdentity: cfg.RequireIdentity,
	}
}

// Decide evaluates an assessment for the presented identity at the given
// time. Exemption overrides both the staleness and the anonymity
// rejection, but never an identity mismatch.
func (e *Engine) Decide(a *verifier.Assessment, identity string, now time.Time) Decision {
	if e.requireIdentity && a.ClientIdentity != "" && a.ClientIdentity != identity {
		return Decision{Service: a.Service, Reason: ReasonIdentityMismatch}
	}

	staleness := now.Sub(a.IssuedAt)
	if staleness < 0 {
		staleness = -staleness
	}
	stale := staleness > e.tolerance

	if (stale || a.Anonymized) && !e.isExempt(a.Service) {
		reason := ReasonAnonymized
		if stale {
			reason = ReasonStale
		}
		return Decision{Service: a.Service, Reason: reason}
	}

	return Decision{Allowed: true, Service: a.Service}
}

func (e *Engine) isExempt(service string) bool {
	_, ok := e.exempted[service]
	return ok
}
