// Package web serves the JSON bridge a UI process uses to read state and send
// intents to the companion core.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/justestif/go-artsy-companion/internal/artist"
	"github.com/justestif/go-artsy-companion/internal/logging"
	"github.com/justestif/go-artsy-companion/internal/search"
	"github.com/justestif/go-artsy-companion/internal/session"
)

// DefaultAddr is the default bridge address.
const DefaultAddr = "127.0.0.1:8765"

const shutdownTimeout = 10 * time.Second

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr   string
	Logger *zap.Logger
}

// Core is the set of components the bridge drives.
type Core struct {
	Session *session.Manager
	Search  *search.Coordinator
	Artists *artist.Loader
}

// Server is the HTTP server for the bridge.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
	logger   *zap.Logger
}

// NewServer creates a new bridge server.
func NewServer(cfg ServerConfig, core Core) *Server {
	logger := logging.OrNop(cfg.Logger).Named("web")
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	router := chi.NewRouter()
	s := &Server{
		router:   router,
		handlers: NewHandlers(core, logger),
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/state", h.State)

	s.router.Route("/intents", func(r chi.Router) {
		r.Post("/search", h.Search)
		r.Post("/query", h.Query)

		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/logout", h.Logout)
		r.Post("/delete-account", h.DeleteAccount)
		r.Post("/check-auth", h.CheckAuth)

		r.Post("/favorites/load", h.LoadFavorites)
		r.Post("/favorites", h.AddFavorite)
		r.Delete("/favorites/{id}", h.RemoveFavorite)
		r.Post("/artists/{id}/viewed", h.ArtistViewed)
	})

	s.router.Get("/artists/{id}", h.Artist)
	s.router.Get("/artists/{id}/similar", h.SimilarArtists)
	s.router.Get("/artworks/{id}/categories", h.Categories)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("bridge listening", zap.String("addr", l.Addr().String()))
	return s.server.Serve(l)
}

// Start listens on the configured address.
func (s *Server) Start() error {
	s.logger.Info("bridge listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and shuts it down gracefully once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info("shutting down bridge")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("bridge stopped")
	return nil
}

// requestLogger replaces middleware.Logger with structured zap output.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
