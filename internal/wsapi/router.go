package wsapi

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/erauner12/listd/internal/hub"
	"github.com/erauner12/listd/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server holds the dependencies wired into the HTTP/WebSocket router,
// mirroring the teacher's httpapi.Server shape (one struct of dependencies,
// one Routes method).
type Server struct {
	Adapter       storage.Adapter
	Hub           *hub.Hub
	MaxAttempts   int
	BackoffPolicy backoff.BackOff // nil => retry.NoBackoff()
	CORSOrigins   []string
	RateLimit     RateLimitConfig                 // zero value => DefaultRateLimitConfig
	PingDeps      func(ctx context.Context) error // health check hook, e.g. pool.Ping
}

// Routes builds the HTTP handler: health check, then the WebSocket upgrade
// endpoint behind the configured CORS policy.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)

	corsMW := cors.New(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet},
		AllowCredentials: true,
	})

	wsHandler := &Handler{
		Adapter:       s.Adapter,
		Hub:           s.Hub,
		MaxAttempts:   s.MaxAttempts,
		BackoffPolicy: s.BackoffPolicy,
		RateLimit:     s.RateLimit,
	}
	r.With(corsMW.Handler).Get("/v1/list/ws", wsHandler.ServeHTTP)

	log.Info().Strs("corsOrigins", s.CORSOrigins).Msg("listd routes registered")
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.PingDeps != nil {
		if err := s.PingDeps(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("unavailable"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
