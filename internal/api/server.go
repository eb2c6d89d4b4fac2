// Package api serves the stored match data over HTTP. The surface is
// read-only: list endpoints with simple filters, gated by an API key
// and a per-client rate limit.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matchpoint-analytics/matchpoint/internal/config"
	"github.com/matchpoint-analytics/matchpoint/internal/store"
)

// MatchReader is the slice of the store the API needs.
type MatchReader interface {
	ListMatches(ctx context.Context, f store.MatchFilter) ([]store.MatchRow, error)
	ListYears(ctx context.Context) ([]int, error)
	ListDivisions(ctx context.Context, year int) ([]string, error)
}

// Server wraps the HTTP listener and its routes.
type Server struct {
	cfg   config.ServerConfig
	store MatchReader
	log   *zap.Logger
	srv   *http.Server
}

func NewServer(cfg config.ServerConfig, reader MatchReader) *Server {
	s := &Server{
		cfg:   cfg,
		store: reader,
		log:   zap.L().Named("api"),
	}
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"X-API-Key", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Use(s.rateLimit())
		r.Get("/matches", s.handleMatches)
		r.Get("/years", s.handleYears)
		r.Get("/divisions", s.handleDivisions)
	})

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting server", zap.Int("port", s.cfg.Port))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

// requireAPIKey gates requests on the shared secret. An empty configured
// key disables the check entirely, for local use.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-API-Key") != s.cfg.APIKey {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit keeps one token bucket per client address. Buckets are
// never evicted; the client population here is tiny.
func (s *Server) rateLimit() func(http.Handler) http.Handler {
	perMin := s.cfg.RateLimitPerMin
	if perMin <= 0 {
		perMin = 60
	}
	var mu sync.Mutex
	limiters := map[string]*rate.Limiter{}

	limiterFor := func(addr string) *rate.Limiter {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		mu.Lock()
		defer mu.Unlock()
		lim, ok := limiters[host]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin)
			limiters[host] = lim
		}
		return lim
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiterFor(r.RemoteAddr).Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMatches lists matches with optional year, division and limit
// filters. Store errors degrade to an empty list so dashboards keep
// rendering while the database is away.
func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	filter := store.MatchFilter{Limit: s.cfg.MaxPageSize}

	if v := r.URL.Query().Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "year must be an integer"})
			return
		}
		filter.Year = year
	}
	if v := r.URL.Query().Get("division"); v != "" {
		filter.Division = v
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		if s.cfg.MaxPageSize > 0 && limit > s.cfg.MaxPageSize {
			limit = s.cfg.MaxPageSize
		}
		filter.Limit = limit
	}

	rows, err := s.store.ListMatches(r.Context(), filter)
	if err != nil {
		s.log.Error("list matches failed", zap.Error(err))
		rows = []store.MatchRow{}
	}
	if rows == nil {
		rows = []store.MatchRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.store.ListYears(r.Context())
	if err != nil {
		s.log.Error("list years failed", zap.Error(err))
		years = []int{}
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, years)
}

func (s *Server) handleDivisions(w http.ResponseWriter, r *http.Request) {
	var year int
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "year must be an integer"})
			return
		}
		year = y
	}

	divisions, err := s.store.ListDivisions(r.Context(), year)
	if err != nil {
		s.log.Error("list divisions failed", zap.Error(err))
		divisions = []string{}
	}
	if divisions == nil {
		divisions = []string{}
	}
	writeJSON(w, http.StatusOK, divisions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
