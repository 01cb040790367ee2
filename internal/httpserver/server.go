// Package httpserver exposes the session core over a JSON API. It is the
// stand-in for the presentational layer: it calls the three mutating entry
// points, reads the current session, and routes role-gated destinations
// through the guard middleware.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	sphereauth "github.com/alumnisphere/sphereauth"
	"github.com/alumnisphere/sphereauth/internal/token"
	"github.com/alumnisphere/sphereauth/middleware"
)

// Server wraps the HTTP server lifecycle around one session store.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	store      *sphereauth.Store
	tokens     *token.Manager
	logger     *slog.Logger
	addr       string
}

// NewServer constructs a Server with configured dependencies.
func NewServer(addr string, store *sphereauth.Store, tokens *token.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router: router,
		store:  store,
		tokens: tokens,
		logger: logger,
		addr:   addr,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Use(s.withLogging)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/signup", s.handleSignup)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.With(middleware.Guard(s.store)).
				Get("/requests", s.handleListRequests)
			r.With(middleware.Guard(s.store, sphereauth.RoleStudent)).
				Post("/requests/mentorship", s.handleSubmitMentorship)
			r.With(middleware.Guard(s.store, sphereauth.RoleStudent)).
				Post("/requests/referral", s.handleSubmitReferral)
		})
	})
}

// Start bootstraps the HTTP server on the configured address.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured network address.
func (s *Server) Addr() string {
	return s.addr
}

// Router exposes the underlying router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}
