// Package api exposes the refresh triggers, refresh status, source health and
// process health over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/sarawaknews/internal/metrics"
	"github.com/deusflow/sarawaknews/internal/refresh"
	"github.com/deusflow/sarawaknews/internal/sources"
	"github.com/deusflow/sarawaknews/internal/storage"
)

// MaxErrorsShown caps the error list returned to the admin trigger.
const MaxErrorsShown = 10

type Refresher interface {
	Manual(ctx context.Context) (refresh.Outcome, error)
	Automatic(ctx context.Context) (refresh.Outcome, error)
	NextAllowedAt(st refresh.State) time.Time
}

type Store interface {
	refresh.MetadataStore
	ListSources(ctx context.Context) ([]sources.Source, error)
	RecentErrors(ctx context.Context, limit int) ([]storage.ErrorEntry, error)
	Counts(ctx context.Context) (storage.Stats, error)
	Ping(ctx context.Context) error
}

type Server struct {
	refresher  Refresher
	store      Store
	cronSecret string
	adminToken string
	metrics    *metrics.Metrics
	extraStats map[string]func() map[string]interface{}
	log        *slog.Logger
	now        func() time.Time
}

type Option func(*Server)

func WithCronSecret(s string) Option        { return func(srv *Server) { srv.cronSecret = s } }
func WithAdminToken(t string) Option        { return func(srv *Server) { srv.adminToken = t } }
func WithMetrics(m *metrics.Metrics) Option { return func(srv *Server) { srv.metrics = m } }
func WithLogger(l *slog.Logger) Option      { return func(srv *Server) { srv.log = l } }
func WithClock(now func() time.Time) Option { return func(srv *Server) { srv.now = now } }

// WithStats adds a named stats section to /health.
func WithStats(name string, fn func() map[string]interface{}) Option {
	return func(srv *Server) { srv.extraStats[name] = fn }
}

func New(r Refresher, s Store, opts ...Option) *Server {
	srv := &Server{
		refresher:  r,
		store:      s,
		metrics:    metrics.Global,
		extraStats: make(map[string]func() map[string]interface{}),
		log:        slog.Default(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(srv)
	}
	return srv
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/cron/refresh", s.requireSecret(s.cronSecret, true, s.handleCronRefresh))
	mux.HandleFunc("POST /api/admin/refresh", s.requireSecret(s.adminToken, false, s.handleAdminRefresh))
	mux.HandleFunc("GET /api/refresh/status", s.handleRefreshStatus)
	mux.HandleFunc("GET /api/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Serve runs the HTTP server until ctx is done, then drains it.
func (s *Server) Serve(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// A manual refresh walks every source sequentially.
		WriteTimeout: 10 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", addr)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// requireSecret accepts "Authorization: Bearer <secret>", and X-Cron-Secret
// when allowHeader is set. An empty secret disables the route.
func (s *Server) requireSecret(secret string, allowHeader bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret == "" {
			writeError(w, http.StatusServiceUnavailable, "trigger not configured")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" && allowHeader {
			got = r.Header.Get("X-Cron-Secret")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleCronRefresh(w http.ResponseWriter, r *http.Request) {
	out, err := s.refresher.Automatic(r.Context())
	if err != nil {
		s.log.Error("cron refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out.Throttled {
		w.Header().Set("Retry-After", strconv.Itoa(out.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "refresh throttled",
			"retryAfter": out.RetryAfter,
		})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	out, err := s.refresher.Manual(r.Context())
	if err != nil {
		s.log.Error("manual refresh failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out.Errors = refresh.TruncateErrors(out.Errors, MaxErrorsShown)
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	refresh.State
	NextAllowedAt time.Time `json:"nextAllowedAt"`
}

func (s *Server) handleRefreshStatus(w http.ResponseWriter, r *http.Request) {
	st, err := refresh.ReadState(r.Context(), s.store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{State: st, NextAllowedAt: s.refresher.NextAllowedAt(st)})
}

type sourceHealth struct {
	sources.Source
	sources.Health
	Healthy bool `json:"healthy"`
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	recent, err := s.store.RecentErrors(r.Context(), 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := s.now()
	out := make([]sourceHealth, 0, len(list))
	unhealthy := 0
	for _, src := range list {
		h := sources.Evaluate(src, now)
		if h.Status == sources.StatusUnhealthy {
			unhealthy++
		}
		out = append(out, sourceHealth{Source: src, Health: h, Healthy: h.Healthy()})
	}
	if recent == nil {
		recent = []storage.ErrorEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":      out,
		"unhealthy":    unhealthy,
		"recentErrors": recent,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.GetStats()
	code := http.StatusOK
	status := "ok"
	if !s.metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}

	resp := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
		"stats":      stats,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		resp["status"] = "error"
		resp["database"] = err.Error()
		code = http.StatusServiceUnavailable
	} else if counts, err := s.store.Counts(ctx); err == nil {
		resp["database"] = counts
	}
	for name, fn := range s.extraStats {
		resp[name] = fn()
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
