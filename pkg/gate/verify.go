package gate

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/edgefence/edgefence/pkg/audit"
	"github.com/edgefence/edgefence/pkg/verifier"
)

// maxVerifyBody caps the verification request body.
const maxVerifyBody = 64 << 10

// verifyRequest is the body of POST /validate_captcha.
type verifyRequest struct {
	CaptchaData string `json:"captchaData"`
}

// denialResponse is the 403 body on policy deny.
type denialResponse struct {
	Service string `json:"service,omitempty"`
	Reason  string `json:"reason"`
}

// handleVerify processes a challenge bundle submission. On success it
// mints the session cookie; every other outcome is an explicit failure
// response. No cookie is ever issued on a failure path, and a failed
// call is not retried - the client must submit a fresh bundle.
func (g *Gate) handleVerify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	identity := g.clientIdentity(r)
	if identity == "" {
		g.logger.Warn("no client identity found in headers", "request_id", requestID)
	}
	event := audit.NewEvent(identity).WithRequestID(requestID)

	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVerifyBody)).Decode(&req); err != nil || req.CaptchaData == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	assessment, err := g.verifier.Verify(r.Context(), req.CaptchaData)
	if err != nil {
		status := statusForVerifyError(err)
		g.logger.Error("bundle verification failed",
			"request_id", requestID, "client", identity, "error", err)
		g.record(r, event.WithError(err.Error()).WithDuration(time.Since(start)))
		if status == http.StatusBadRequest {
			http.Error(w, "Error verifying bundle", status)
		} else {
			http.Error(w, "Internal Server Error", status)
		}
		return
	}

	decision := g.policy.Decide(assessment, identity, g.now())
	if !decision.Allowed {
		g.logger.Info("verification denied",
			"request_id", requestID, "client", identity,
			"service", decision.Service, "reason", decision.Reason)
		g.record(r, event.WithDecision(false, decision.Service, decision.Reason).WithDuration(time.Since(start)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(denialResponse{Service: decision.Service, Reason: decision.Reason})
		return
	}

	value, err := g.codec.Mint(identity, g.now())
	if err != nil {
		g.logger.Error("minting session cookie failed", "request_id", requestID, "error", err)
		g.record(r, event.WithError(err.Error()).WithDuration(time.Since(start)))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    value,
		Path:     "/",
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	g.record(r, event.WithDecision(true, decision.Service, "").WithDuration(time.Since(start)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Captcha validated successfully"))
}

// record writes the audit event; audit failures never affect the
// response.
func (g *Gate) record(r *http.Request, event *audit.Event) {
	if err := g.auditor.Log(r.Context(), *event); err != nil {
		g.logger.Error("writing audit event failed", "error", err)
	}
}

// statusForVerifyError maps verifier failures onto response codes: 400
// when the bundle itself was rejected, 500 when the assessment transport
// is unreachable or broken.
func statusForVerifyError(err error) int {
	var te *verifier.TransportError
	if errors.As(err, &te) {
		if te.UpstreamRejected() {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}
