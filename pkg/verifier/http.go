package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds the call to the remote assessment API so a hung
// upstream cannot stall the requester. The policy's freshness window is
// the effective ceiling anyway.
const DefaultTimeout = 4 * time.Second

// maxResponseBytes caps the assessment response body read.
const maxResponseBytes = 1 << 20

// HTTPVerifier verifies bundles by POSTing them to a remote assessment
// API that decrypts and evaluates them upstream.
type HTTPVerifier struct {
	url    string
	token  string
	client *http.Client
}

// HTTPConfig configures the remote verifier.
type HTTPConfig struct {
	// URL is the assessment endpoint.
	URL string

	// Token authenticates this gate to the assessment API.
	Token string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration
}

var _ Verifier = (*HTTPVerifier)(nil)

// NewHTTPVerifier creates a remote verifier.
func NewHTTPVerifier(cfg HTTPConfig) (*HTTPVerifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("verifier URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &HTTPVerifier{
		url:    cfg.URL,
		token:  cfg.Token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// wireAssessment is the subset of the assessment API response the gate
// consumes.
type wireAssessment struct {
	TS      time.Time `json:"ts"`
	IP      string    `json:"ip"`
	Anon    bool      `json:"anon"`
	Service string    `json:"service"`
}

// Verify POSTs the bundle to the assessment API. The call is never
// retried; a failed verification requires the client to resubmit a fresh
// bundle.
func (v *HTTPVerifier) Verify(ctx context.Context, bundle string) (*Assessment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, strings.NewReader(bundle))
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")
	if v.token != "" {
		req.Header.Set("Token", v.token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "request", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Op: "status", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}
	var wire wireAssessment
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, &TransportError{Op: "decode", Err: err}
	}

	return &Assessment{
		IssuedAt:       wire.TS,
		ClientIdentity: wire.IP,
		Anonymized:     wire.Anon,
		Service:        wire.Service,
	}, nil
}
