package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bnema/transcriber/internal/adapter/http/middleware"
	"github.com/bnema/transcriber/internal/adapter/http/ratelimit"
)

type Options struct {
	DefaultQuality int
	// SubmitRate is the per-client submissions per second. Zero disables
	// limiting.
	SubmitRate  float64
	SubmitBurst int
	KeepAlive   time.Duration
	// TrustProxy takes the client address from X-Forwarded-For or
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxy bool
}

type Server struct {
	router   chi.Router
	handlers *Handlers
	stream   *StreamHandler
	limiter  *ratelimit.SubmitLimiter
}

func NewServer(jobs JobService, progress ProgressSource, opts Options) *Server {
	limiter := ratelimit.NewSubmitLimiter(opts.SubmitRate, opts.SubmitBurst)

	s := &Server{
		router:   chi.NewRouter(),
		handlers: NewHandlers(jobs, limiter, opts.DefaultQuality),
		stream:   NewStreamHandler(progress, opts.KeepAlive),
		limiter:  limiter,
	}

	s.registerRoutes(opts.TrustProxy)

	return s
}

func (s *Server) registerRoutes(trustProxy bool) {
	r := s.router
	r.Use(chimw.RequestID)
	if trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestLogger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)

	r.Get("/", s.handlers.Index())
	r.Get("/healthz", s.handlers.Health())

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", s.handlers.Submit())
		r.Get("/{id}", s.handlers.Get())
		r.Delete("/{id}", s.handlers.Cancel())
		r.Get("/{id}/stream", s.stream.Events())
		r.Get("/{id}/ws", s.stream.WebSocket())
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the submit limiter's background sweep.
func (s *Server) Close() {
	s.limiter.Close()
}
