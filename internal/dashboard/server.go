package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tkingovr/spawnguard/internal/audit"
	"github.com/tkingovr/spawnguard/internal/filter"
	"github.com/tkingovr/spawnguard/internal/policy"
)

// Server is the web dashboard HTTP server.
type Server struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	auditStore audit.Store
	checks     *filter.Chain
	policy     *policy.PolicyFile
	addr       string
}

// NewServer creates a new dashboard server. checks must be free of side
// effects; it answers /api/v1/check.
func NewServer(addr string, store audit.Store, checks *filter.Chain, pf *policy.PolicyFile, logger *slog.Logger) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		logger:     logger,
		auditStore: store,
		checks:     checks,
		policy:     pf,
		addr:       addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /", s.handleOverview)
	s.mux.HandleFunc("GET /audit", s.handleAudit)
	s.mux.HandleFunc("GET /policy", s.handlePolicy)
	s.mux.HandleFunc("GET /api/v1/stats", s.handleAPIStats)
	s.mux.HandleFunc("GET /api/v1/audit", s.handleAPIAudit)
	s.mux.HandleFunc("POST /api/v1/check", s.handleAPICheck)
}

// ListenAndServe starts the dashboard HTTP server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	s.logger.Info("starting dashboard", "addr", s.addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler returns the HTTP handler for embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}
