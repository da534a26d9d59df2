// Package adminhttp exposes the ambient operational HTTP surface:
// liveness, readiness, and toggle introspection. This is distinct from
// (and far smaller than) any outward-facing claims reporting API, which
// is out of scope here.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/dbx"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/redisx"
	"github.com/haramkhor2011-ship-it/claims-app-sub014/internal/toggle"

	"github.com/redis/go-redis/v9"
)

// Server is the admin/health HTTP surface.
type Server struct {
	addr    string
	pools   *dbx.Pools
	redis   *redis.Client
	toggles *toggle.Store
	log     zerolog.Logger

	httpServer *http.Server
}

func New(addr string, pools *dbx.Pools, redisClient *redis.Client, toggles *toggle.Store, log zerolog.Logger) *Server {
	return &Server{addr: addr, pools: pools, redis: redisClient, toggles: toggles, log: log.With().Str("component", "adminhttp").Logger()}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Get("/toggles", s.handleToggles)
	r.Put("/toggles/{code}", s.handleSetToggle)
	return r
}

// Start launches the HTTP server in the background.
func (s *Server) Start() {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.router()}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("admin http server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the HTTP server within timeout.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.pools.Ping(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "database unreachable: "+err.Error())
		return
	}
	if err := redisx.Ping(s.redis); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "redis unreachable: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func (s *Server) handleToggles(w http.ResponseWriter, r *http.Request) {
	status, err := s.toggles.Status(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSetToggle(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if err := s.toggles.Set(r.Context(), code, body.Enabled); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
