package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/interview-engine/internal/config"
	"github.com/terra-clan/interview-engine/internal/events"
	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/internal/storage"
)

// Permissions checked by the API
const (
	PermSessionsRead  = "sessions:read"
	PermSessionsWrite = "sessions:write"
	PermCatalogRead   = "catalog:read"
)

// SessionService is the session lifecycle the API exposes
type SessionService interface {
	CreateSession(ctx context.Context, ownerID string, req models.CreateSessionRequest) (*models.Session, error)
	GetSession(ctx context.Context, ownerID, id string) (*models.Session, error)
	ListSessions(ctx context.Context, ownerID string, filters models.ListFilters) ([]*models.Session, error)
	SubmitAnswers(ctx context.Context, ownerID, id string, req models.SubmitRequest) (*models.Session, error)
	DeleteSession(ctx context.Context, ownerID, id string) error
	Ping(ctx context.Context) error
}

// CatalogBrowser lists catalog content
type CatalogBrowser interface {
	ListTopics() []models.TopicSummary
	ListChallenges() []models.ChallengeTemplate
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	sessions       SessionService
	catalog        CatalogBrowser
	subscriber     events.Subscriber
	authMiddleware *AuthMiddleware
}

// NewServer creates a new API server. subscriber may be nil, which disables the event stream.
func NewServer(
	cfg config.ServerConfig,
	sessions SessionService,
	catalog CatalogBrowser,
	subscriber events.Subscriber,
	repo storage.Repository,
) *Server {
	s := &Server{
		config:         cfg,
		sessions:       sessions,
		catalog:        catalog,
		subscriber:     subscriber,
		authMiddleware: NewAuthMiddleware(repo),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		timeout := middleware.Timeout(60 * time.Second)

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			// Long-lived event stream, exempt from the request timeout
			r.With(s.authMiddleware.RequirePermission(PermSessionsRead)).Get("/events", s.handleSessionEvents)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				r.With(s.authMiddleware.RequirePermission(PermSessionsRead)).Get("/", s.handleListSessions)
				r.With(s.authMiddleware.RequirePermission(PermSessionsWrite)).Post("/", s.handleCreateSession)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.authMiddleware.RequirePermission(PermSessionsRead)).Get("/", s.handleGetSession)
					r.With(s.authMiddleware.RequirePermission(PermSessionsWrite)).Delete("/", s.handleDeleteSession)
					r.With(s.authMiddleware.RequirePermission(PermSessionsWrite)).Post("/submit", s.handleSubmitAnswers)
				})
			})
		})

		// Catalog
		r.Route("/catalog", func(r chi.Router) {
			r.Use(timeout)
			r.Use(s.authMiddleware.RequirePermission(PermCatalogRead))
			r.Get("/topics", s.handleListTopics)
			r.Get("/challenges", s.handleListChallenges)
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
