// Package server is the HTTP gateway in front of the lifecycle engine.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tmpshare/internal/lifecycle"
)

// Pinger is anything /ready can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is one named readiness probe.
type Check struct {
	Name   string
	Pinger Pinger
}

type Config struct {
	Addr           string // e.g. ":8080"
	MaxUploadBytes int64
	// SweepOnRequest runs an expiry sweep before each upload and download.
	SweepOnRequest bool
	// RateLimit is requests per minute per client ip; 0 disables it.
	RateLimit int
	// TrustProxy honours X-Forwarded-* and X-Real-IP. Enable only behind a
	// reverse proxy that overwrites them.
	TrustProxy bool
	HomePage   []byte
	Checks     []Check
}

type Server struct {
	cfg        Config
	engine     *lifecycle.Engine
	limiter    *rateLimiter
	handler    http.Handler
	httpServer *http.Server
}

func New(cfg Config, engine *lifecycle.Engine) *Server {
	if len(cfg.HomePage) == 0 {
		cfg.HomePage = []byte(fallbackHomePage)
	}

	s := &Server{cfg: cfg, engine: engine}

	r := chi.NewRouter()
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestIDMiddleware, loggingMiddleware, metricsMiddleware, securityHeadersMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimit > 0 {
			s.limiter = newRateLimiter(cfg.RateLimit, time.Minute)
			r.Use(s.limiter.middleware)
		}
		r.Get("/", s.handleHome)
		r.Post("/api/upload", s.handleUpload)
		r.Get("/d/{fileID}", s.handleDownload)
	})

	r.NotFound(redirectHome)

	s.handler = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}

func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}
