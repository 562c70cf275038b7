// Package admin provides the operator REST API: audit trail queries
// and runtime status for the gate.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/edgefence/edgefence/pkg/audit"
)

const defaultAuditLimit = 50

// Status describes the running gate for operators.
type Status struct {
	Version          string    `json:"version"`
	StartedAt        time.Time `json:"started_at"`
	ChallengeMode    string    `json:"challenge_mode"`
	VerifierMode     string    `json:"verifier_mode"`
	ExemptedServices []string  `json:"exempted_services"`
	AuditPersisted   bool      `json:"audit_persisted"`
}

// Handler provides the operator API endpoints.
type Handler struct {
	mux        *http.ServeMux
	auditor    audit.Logger
	status     Status
	authMiddle func(http.Handler) http.Handler
}

// NewHandler creates an operator API handler. The auditor may be nil
// when no queryable audit store is configured.
func NewHandler(auditor audit.Logger, status Status, authMiddle func(http.Handler) http.Handler) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		auditor:    auditor,
		status:     status,
		authMiddle: authMiddle,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

// registerRoutes registers all operator API routes.
func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/v1/admin/status", h.getStatus)
	h.mux.HandleFunc("GET /api/v1/admin/audit/events", h.listAuditEvents)
}

// getStatus handles GET /api/v1/admin/status.
func (h *Handler) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.status)
}

// auditEventResponse wraps a page of audit events.
type auditEventResponse struct {
	Data   []audit.Event `json:"data"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// listAuditEvents handles GET /api/v1/admin/audit/events.
func (h *Handler) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	if h.auditor == nil {
		writeError(w, http.StatusNotImplemented, "no queryable audit store configured")
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		ClientIdentity: q.Get("client"),
		StartTime:      parseTimeParam(q.Get("start_time")),
		EndTime:        parseTimeParam(q.Get("end_time")),
		Limit:          parseIntParam(q.Get("limit"), defaultAuditLimit),
		Offset:         parseIntParam(q.Get("offset"), 0),
	}
	if v := q.Get("allowed"); v != "" {
		allowed := v == "true"
		filter.Allowed = &allowed
	}

	events, err := h.auditor.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit events")
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	writeJSON(w, http.StatusOK, auditEventResponse{
		Data:   events,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// parseTimeParam parses an RFC 3339 query parameter; nil means no
// filter, covering absence and parse failure.
func parseTimeParam(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func parseIntParam(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
