package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edgefence/edgefence/pkg/audit"
)

type stubAuditor struct {
	events []audit.Event
	filter audit.QueryFilter
	err    error
}

func (s *stubAuditor) Log(context.Context, audit.Event) error { return nil }

func (s *stubAuditor) Query(_ context.Context, f audit.QueryFilter) ([]audit.Event, error) {
	s.filter = f
	return s.events, s.err
}

func (s *stubAuditor) Close() error { return nil }

func hashKey(t *testing.T, key string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

func TestAPIKeyAuthenticator(t *testing.T) {
	auth := &APIKeyAuthenticator{Keys: []Key{
		{Name: "ops", Hash: hashKey(t, "sekret")},
		{Name: "ci", Hash: hashKey(t, "pipeline")},
	}}

	tests := []struct {
		name     string
		header   string
		value    string
		wantName string
		wantOK   bool
	}{
		{"x-api-key", "X-API-Key", "sekret", "ops", true},
		{"bearer", "Authorization", "Bearer pipeline", "ci", true},
		{"wrong key", "X-API-Key", "nope", "", false},
		{"no credentials", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set(tt.header, tt.value)
			}
			name, ok := auth.Authenticate(r)
			if ok != tt.wantOK || name != tt.wantName {
				t.Errorf("Authenticate() = (%q, %v), want (%q, %v)", name, ok, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestRequireKey(t *testing.T) {
	auth := &APIKeyAuthenticator{Keys: []Key{{Name: "ops", Hash: hashKey(t, "sekret")}}}
	var gotName string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotName = KeyName(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RequireKey(auth)(inner)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sekret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("authenticated status = %d, want 204", rec.Code)
	}
	if gotName != "ops" {
		t.Errorf("key name in context = %q, want ops", gotName)
	}
}

func TestGetStatus(t *testing.T) {
	status := Status{
		Version:       "1.2.3",
		ChallengeMode: "inline",
		VerifierMode:  "remote",
	}
	h := NewHandler(nil, status, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.2.3" || got.ChallengeMode != "inline" {
		t.Errorf("status body = %+v", got)
	}
}

func TestListAuditEvents(t *testing.T) {
	auditor := &stubAuditor{events: []audit.Event{
		{ID: "ev1", ClientIdentity: "1.2.3.4", Allowed: true},
	}}
	h := NewHandler(auditor, Status{}, nil)

	target := "/api/v1/admin/audit/events?client=1.2.3.4&allowed=true&limit=10&offset=20" +
		"&start_time=2026-08-01T00:00:00Z&end_time=2026-08-02T00:00:00Z"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	if auditor.filter.ClientIdentity != "1.2.3.4" {
		t.Errorf("filter client = %q", auditor.filter.ClientIdentity)
	}
	if auditor.filter.Allowed == nil || !*auditor.filter.Allowed {
		t.Error("filter allowed not set")
	}
	if auditor.filter.Limit != 10 || auditor.filter.Offset != 20 {
		t.Errorf("filter limit/offset = %d/%d", auditor.filter.Limit, auditor.filter.Offset)
	}
	wantStart := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if auditor.filter.StartTime == nil || !auditor.filter.StartTime.Equal(wantStart) {
		t.Errorf("filter start = %v", auditor.filter.StartTime)
	}
	wantEnd := time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)
	if auditor.filter.EndTime == nil || !auditor.filter.EndTime.Equal(wantEnd) {
		t.Errorf("filter end = %v", auditor.filter.EndTime)
	}

	var resp auditEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "ev1" {
		t.Errorf("response data = %+v", resp.Data)
	}
}

func TestListAuditEventsDefaults(t *testing.T) {
	auditor := &stubAuditor{}
	h := NewHandler(auditor, Status{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit/events", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if auditor.filter.Limit != defaultAuditLimit {
		t.Errorf("default limit = %d, want %d", auditor.filter.Limit, defaultAuditLimit)
	}
	if auditor.filter.StartTime != nil || auditor.filter.EndTime != nil {
		t.Errorf("time filters = %v/%v, want nil without params",
			auditor.filter.StartTime, auditor.filter.EndTime)
	}
	var resp auditEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data == nil {
		t.Error("nil events not normalized to empty list")
	}
}

func TestListAuditEventsBadTimeParam(t *testing.T) {
	auditor := &stubAuditor{}
	h := NewHandler(auditor, Status{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/admin/audit/events?start_time=yesterday", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if auditor.filter.StartTime != nil {
		t.Errorf("filter start = %v, want nil for unparseable value", auditor.filter.StartTime)
	}
}

func TestListAuditEventsNoStore(t *testing.T) {
	h := NewHandler(nil, Status{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit/events", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHandlerAuthMiddleware(t *testing.T) {
	auth := &APIKeyAuthenticator{Keys: []Key{{Name: "ops", Hash: hashKey(t, "sekret")}}}
	h := NewHandler(nil, Status{Version: "x"}, RequireKey(auth))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/status", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", rec.Code)
	}
}
