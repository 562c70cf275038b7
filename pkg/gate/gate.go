// Package gate implements the edge access-control gate. Requests with a
// valid session cookie pass through to the origin; everyone else is
// routed into the challenge-and-verify flow.
package gate

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/edgefence/edgefence/pkg/audit"
	"github.com/edgefence/edgefence/pkg/policy"
	"github.com/edgefence/edgefence/pkg/token"
	"github.com/edgefence/edgefence/pkg/verifier"
	"github.com/edgefence/edgefence/pkg/web"
)

// Challenge modes.
const (
	ModeInline   = "inline"   // serve the challenge page in place
	ModeRedirect = "redirect" // 302 to the challenge route
)

// Routes served by the gate itself; everything else is gated.
const (
	ChallengePath = "/captcha_page.html"
	DeniedPath    = "/denied"
	VerifyPath    = "/validate_captcha"
)

// Config wires a Gate.
type Config struct {
	// Codec mints and validates session cookies.
	Codec token.Codec

	// Verifier evaluates challenge bundles.
	Verifier verifier.Verifier

	// Policy decides whether an assessment passes.
	Policy *policy.Engine

	// Pages renders the challenge and denial pages.
	Pages *web.Pages

	// Origin is the protected service requests are proxied to.
	Origin *url.URL

	// CookieName is the session cookie name. Defaults to "MCLVALID".
	CookieName string

	// IdentityHeaders are the trusted edge headers carrying the client's
	// network identity, in priority order.
	IdentityHeaders []string

	// ChallengeMode selects inline or redirect challenge delivery.
	ChallengeMode string

	// Audit receives a record of every verification attempt. Optional.
	Audit audit.Logger

	// Logger receives structured gate logs. Optional.
	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Gate is the request-routing controller. It is an http.Handler; one
// instance serves all requests concurrently. All fields are immutable
// after construction.
type Gate struct {
	codec           token.Codec
	verifier        verifier.Verifier
	policy          *policy.Engine
	pages           *web.Pages
	proxy           http.Handler
	cookieName      string
	identityHeaders []string
	challengeMode   string
	auditor         audit.Logger
	logger          *slog.Logger
	now             func() time.Time
	mux             *http.ServeMux
}

// New creates a Gate.
func New(cfg Config) (*Gate, error) {
	if cfg.Codec == nil {
		return nil, fmt.Errorf("gate: codec is required")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("gate: verifier is required")
	}
	if cfg.Policy == nil {
		return nil, fmt.Errorf("gate: policy is required")
	}
	if cfg.Origin == nil {
		return nil, fmt.Errorf("gate: origin is required")
	}
	if cfg.Pages == nil {
		cfg.Pages = web.New("")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "MCLVALID"
	}
	if len(cfg.IdentityHeaders) == 0 {
		cfg.IdentityHeaders = []string{"CF-Connecting-IP", "X-Real-IP"}
	}
	if cfg.ChallengeMode == "" {
		cfg.ChallengeMode = ModeInline
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.NewSlogLogger(cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Gate{
		codec:           cfg.Codec,
		verifier:        cfg.Verifier,
		policy:          cfg.Policy,
		pages:           cfg.Pages,
		proxy:           httputil.NewSingleHostReverseProxy(cfg.Origin),
		cookieName:      cfg.CookieName,
		identityHeaders: cfg.IdentityHeaders,
		challengeMode:   cfg.ChallengeMode,
		auditor:         cfg.Audit,
		logger:          cfg.Logger,
		now:             cfg.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ChallengePath, g.handleChallengePage)
	mux.HandleFunc("GET "+DeniedPath, g.handleDeniedPage)
	mux.HandleFunc("POST "+VerifyPath, g.handleVerify)
	mux.HandleFunc("/", g.handleGate)
	g.mux = mux
	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mux.ServeHTTP(w, r)
}

// clientIdentity extracts the caller's network identity from the trusted
// edge headers. An empty result means no identity was visible; callers
// must treat that as fail-closed, never as a wildcard.
func (g *Gate) clientIdentity(r *http.Request) string {
	for _, h := range g.identityHeaders {
		if v := r.Header.Get(h); v != "" {
			return v
		}
	}
	return ""
}

// handleGate is the catch-all: pass through with a valid cookie,
// challenge otherwise. Verification is never re-run on this path.
func (g *Gate) handleGate(w http.ResponseWriter, r *http.Request) {
	identity := g.clientIdentity(r)
	if identity == "" {
		g.logger.Warn("no client identity found in headers", "path", r.URL.Path)
	}

	if cookie, err := r.Cookie(g.cookieName); err == nil {
		err := g.codec.Validate(cookie.Value, identity, g.now())
		if err == nil {
			g.proxy.ServeHTTP(w, r)
			return
		}
		// All validation failures collapse into the challenge flow; the
		// reason is logged but never exposed to the client.
		g.logger.Debug("session cookie rejected", "reason", err, "client", identity)
	}

	g.serveChallenge(w, r)
}

// serveChallenge responds with the challenge flow entry point.
func (g *Gate) serveChallenge(w http.ResponseWriter, r *http.Request) {
	if g.challengeMode == ModeRedirect {
		target := ChallengePath + "?uri=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	g.writePage(w, g.pages.Challenge(requestURL(r)))
}

// handleChallengePage serves the dedicated challenge route used by the
// redirect deployment variant.
func (g *Gate) handleChallengePage(w http.ResponseWriter, r *http.Request) {
	returnTo := r.URL.Query().Get("uri")
	if returnTo == "" || returnTo[0] != '/' {
		returnTo = "/"
	}
	g.writePage(w, g.pages.Challenge(returnTo))
}

// handleDeniedPage serves the denial page.
func (g *Gate) handleDeniedPage(w http.ResponseWriter, _ *http.Request) {
	g.writePage(w, g.pages.Denied())
}

func (g *Gate) writePage(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(body))
}

// requestURL reconstructs the URL the caller requested, for the inline
// challenge page to return to after verification.
func requestURL(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
