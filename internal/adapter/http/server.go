package http

import (
	"net/http"
	"time"

	"github.com/bnema/orator/internal/adapter/http/middleware"
	"github.com/bnema/orator/internal/adapter/http/ratelimit"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/infrastructure/metrics"
	"github.com/bnema/orator/internal/service"
)

type ServerConfig struct {
	TmpDir         string
	MaxUploadMB    int
	MetricsEnabled bool
}

type Server struct {
	mux        *http.ServeMux
	handler    http.Handler
	handlers   *Handlers
	sseHandler *SSEHandler
	auth       TokenVerifier
	limiter    *ratelimit.FailureLimiter
	cfg        ServerConfig
	logger     *logger.Logger
}

func NewServer(jobs JobService, eventBus *service.EventBus, auth TokenVerifier, cfg ServerConfig, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:        mux,
		handlers:   NewHandlers(jobs, cfg.TmpDir, cfg.MaxUploadMB, log),
		sseHandler: NewSSEHandler(eventBus, jobs),
		auth:       auth,
		limiter:    ratelimit.NewFailureLimiter(5, 15*time.Minute, 30*time.Minute),
		cfg:        cfg,
		logger:     log,
	}

	s.registerRoutes()

	var h http.Handler = mux
	h = middleware.SecurityHeaders(h)
	h = middleware.Recover(log)(h)
	h = middleware.RequestLogger(log.Component("access"))(h)
	s.handler = h

	return s
}

func (s *Server) guard(next http.HandlerFunc) http.HandlerFunc {
	return RequireToken(s.auth, s.limiter, s.logger, next)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handlers.Dashboard())

	s.mux.HandleFunc("POST /upload", s.guard(s.handlers.Upload()))
	s.mux.HandleFunc("GET /files", s.handlers.ListFiles())
	s.mux.HandleFunc("GET /files/{id}", s.handlers.GetFile())
	s.mux.HandleFunc("GET /files/{id}/progress", s.handlers.Progress())
	s.mux.HandleFunc("GET /files/{id}/events", s.sseHandler.Events())
	s.mux.HandleFunc("GET /files/{id}/audio", s.handlers.Audio())
	s.mux.HandleFunc("POST /files/{id}/ask", s.guard(s.handlers.Ask()))
	s.mux.HandleFunc("DELETE /files/{id}", s.guard(s.handlers.DeleteFile()))

	s.mux.HandleFunc("GET /status", s.handlers.Status())
	s.mux.HandleFunc("GET /models", s.handlers.Models())
	s.mux.HandleFunc("GET /export/files.xlsx", s.handlers.Export())

	if s.cfg.MetricsEnabled {
		s.mux.Handle("GET /metrics", metrics.Handler())
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops background housekeeping.
func (s *Server) Close() {
	s.limiter.Stop()
}
