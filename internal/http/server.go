// Package http exposes the daily records over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dailyaed/internal/auth"
	"dailyaed/internal/export"
	applog "dailyaed/internal/log"
	"dailyaed/internal/metrics"
	"dailyaed/internal/middleware/ratelimit"
	"dailyaed/internal/middleware/security"
	"dailyaed/internal/middleware/trace"
	"dailyaed/internal/services"
)

const maxBodyBytes = 64 << 10

// Options wires the server's collaborators.
type Options struct {
	Addr    string
	Records *services.RecordService
	// JWTSecret empty runs every request as the local account.
	JWTSecret          []byte
	RateLimitPerMinute int
	// TrustedProxies extends the proxies allowed to set X-Forwarded-For.
	TrustedProxies []string
	// Export options for statement downloads.
	Export []export.Option
	// Ready backs /readyz; nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger
}

type Server struct {
	http.Server
	records  *services.RecordService
	limiter  *ratelimit.Limiter
	detector *security.Detector
	export   []export.Option
	auth     *auth.Middleware
	ready    func(ctx context.Context) error
	logger   *applog.Logger

	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	metrics.Init()

	cfg := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		cfg.RequestsPerMinute = opts.RateLimitPerMinute
	}

	s := &Server{
		records:  opts.Records,
		limiter:  ratelimit.NewLimiter(cfg),
		detector: security.NewDetector(),
		export:   opts.Export,
		auth:     auth.NewMiddleware(opts.JWTSecret),
		ready:    opts.Ready,
		logger:   logger.WithComponent(applog.ComponentHTTP),
	}
	s.auth.Unauthorized = func(w http.ResponseWriter, r *http.Request, err error) {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
	}
	for _, p := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(p); err != nil {
			s.logger.Warn("Ignoring trusted proxy", applog.FieldError, err)
		}
	}
	metrics.SetRateLimitClients(s.limiter.ActiveClients)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware(s.logger, s.detector.ExtractClientIP).Handler)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Handler)
	r.Use(s.detector.Screen(s.logger, false))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Wrap)

		r.Get("/records/today", s.handleToday)
		r.Get("/records/{date}", s.handleGetRecord)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			}))
			r.Put("/records/{date}/income", s.handleSaveAmount(fieldIncome))
			r.Put("/records/{date}/expenses", s.handleSaveAmount(fieldExpenses))
			r.Put("/records/{date}/notes", s.handleSaveNotes)
		})

		r.Get("/months/{month}", s.handleMonth)
		r.Get("/months/{month}/export", s.handleExport)
	})

	return r
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
