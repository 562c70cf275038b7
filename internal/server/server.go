// Package server assembles the gate from configuration and runs the
// HTTP listener.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/edgefence/edgefence/pkg/admin"
	"github.com/edgefence/edgefence/pkg/audit"
	auditpg "github.com/edgefence/edgefence/pkg/audit/postgres"
	"github.com/edgefence/edgefence/pkg/config"
	"github.com/edgefence/edgefence/pkg/database/migrate"
	"github.com/edgefence/edgefence/pkg/gate"
	"github.com/edgefence/edgefence/pkg/health"
	"github.com/edgefence/edgefence/pkg/policy"
	"github.com/edgefence/edgefence/pkg/token"
	"github.com/edgefence/edgefence/pkg/verifier"
	"github.com/edgefence/edgefence/pkg/web"
)

// Version is set at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Server is the assembled gate process.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	health  *health.Checker
	gate    *gate.Gate
	auditor audit.Logger
	db      *sql.DB
	httpSrv *http.Server
}

// New builds a Server from validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(),
	}
	if err := s.initComponents(); err != nil {
		s.closeResources()
		return nil, err
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           s.buildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// initComponents builds the gate's collaborators from configuration.
func (s *Server) initComponents() error {
	auditor, err := s.buildAuditor()
	if err != nil {
		return fmt.Errorf("creating audit logger: %w", err)
	}
	s.auditor = auditor

	codec, err := s.buildCodec()
	if err != nil {
		return fmt.Errorf("creating cookie codec: %w", err)
	}

	v, err := s.buildVerifier()
	if err != nil {
		return fmt.Errorf("creating verifier: %w", err)
	}

	origin, err := url.Parse(s.cfg.Origin.URL)
	if err != nil {
		return fmt.Errorf("parsing origin URL: %w", err)
	}

	g, err := gate.New(gate.Config{
		Codec:    codec,
		Verifier: v,
		Policy: policy.NewEngine(policy.Config{
			ExemptedServices: s.cfg.Policy.ExemptedServices,
			Tolerance:        s.cfg.Policy.Tolerance,
			RequireIdentity:  !s.cfg.Policy.DisableIdentityCheck,
		}),
		Pages:           web.New(s.cfg.Challenge.PublishableKey),
		Origin:          origin,
		CookieName:      s.cfg.Cookie.Name,
		IdentityHeaders: s.cfg.Identity.Headers,
		ChallengeMode:   s.cfg.Challenge.Mode,
		Audit:           s.auditor,
		Logger:          s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating gate: %w", err)
	}
	s.gate = g
	return nil
}

// buildCodec constructs the session cookie codec.
func (s *Server) buildCodec() (token.Codec, error) {
	secret, err := s.cfg.CookieSecret()
	if err != nil {
		return nil, err
	}
	return token.New(s.cfg.Cookie.Scheme, secret)
}

// buildVerifier constructs the configured bundle verifier.
func (s *Server) buildVerifier() (verifier.Verifier, error) {
	switch s.cfg.Verifier.Mode {
	case "remote":
		return verifier.NewHTTPVerifier(verifier.HTTPConfig{
			URL:     s.cfg.Verifier.Remote.URL,
			Token:   s.cfg.Verifier.Remote.Token,
			Timeout: s.cfg.Verifier.Remote.Timeout,
		})
	case "local":
		secret, err := s.cfg.LocalVerifierSecret()
		if err != nil {
			return nil, err
		}
		return verifier.NewBundleVerifier(verifier.BundleConfig{
			PublicKeyPEM: s.cfg.Verifier.Local.PublicKeyPEM,
			Secret:       secret,
		})
	default:
		return nil, fmt.Errorf("verifier mode %q is not supported", s.cfg.Verifier.Mode)
	}
}

// buildAuditor constructs the audit trail: PostgreSQL-backed when
// enabled, structured logs otherwise.
func (s *Server) buildAuditor() (audit.Logger, error) {
	if !s.cfg.Audit.Enabled {
		return audit.NewSlogLogger(s.logger), nil
	}

	db, err := sql.Open("postgres", s.cfg.Audit.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.Audit.Database.MaxOpenConns)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to audit database: %w", err)
	}
	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating audit database: %w", err)
	}
	s.db = db

	store := auditpg.New(db, auditpg.Config{RetentionDays: s.cfg.Audit.RetentionDays})
	store.StartCleanup()
	return store, nil
}

// buildMux composes the process-level routes around the gate.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health.LivenessHandler())
	mux.HandleFunc("GET /readyz", s.health.ReadinessHandler())

	if s.cfg.Admin.Enabled {
		keys := make([]admin.Key, 0, len(s.cfg.Admin.Keys))
		for _, k := range s.cfg.Admin.Keys {
			keys = append(keys, admin.Key{Name: k.Name, Hash: k.KeyHash})
		}
		handler := admin.NewHandler(s.queryableAuditor(), admin.Status{
			Version:          Version,
			StartedAt:        time.Now(),
			ChallengeMode:    s.cfg.Challenge.Mode,
			VerifierMode:     s.cfg.Verifier.Mode,
			ExemptedServices: s.cfg.Policy.ExemptedServices,
			AuditPersisted:   s.cfg.Audit.Enabled,
		}, admin.RequireKey(&admin.APIKeyAuthenticator{Keys: keys}))
		mux.Handle("/api/v1/admin/", handler)
	}

	mux.Handle("/", s.gate)
	return mux
}

// queryableAuditor returns the auditor only when it can answer queries.
func (s *Server) queryableAuditor() audit.Logger {
	if s.cfg.Audit.Enabled {
		return s.auditor
	}
	return nil
}

// Handler exposes the composed routes, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until the context is cancelled, then drains.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gate listening",
			"address", s.cfg.Server.Address,
			"tls", s.cfg.Server.TLS.Enabled,
			"version", Version)
		var err error
		if s.cfg.Server.TLS.Enabled {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.health.SetReady()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.health.SetDraining()
	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining connections: %w", err)
	}
	return s.Close()
}

// Close releases the server's resources.
func (s *Server) Close() error {
	s.closeResources()
	return nil
}

func (s *Server) closeResources() {
	if s.auditor != nil {
		if err := s.auditor.Close(); err != nil {
			s.logger.Error("closing audit logger failed", "error", err)
		}
		s.auditor = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
