// Package web provides the HTTP API server: authentication, product and
// document CRUD, CSV import submission with live progress, and webhook
// endpoint management.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docmine/server/internal/auth"
	"github.com/docmine/server/internal/config"
	"github.com/docmine/server/internal/queue"
	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/web/middleware"
	"github.com/docmine/server/internal/webhook"
)

// ImportQueue is the submission and status surface of the import queue.
type ImportQueue interface {
	Submit(ctx context.Context, sourcePath string, owner uuid.UUID) (*queue.Handle, error)
	GetStatus(ctx context.Context, id string) (*queue.Status, error)
	Mode() queue.Mode
}

// EventService delivers domain events and test payloads to webhook
// endpoints.
type EventService interface {
	Dispatch(ctx context.Context, ownerID uuid.UUID, event string, data interface{}) []webhook.Outcome
	Test(ctx context.Context, ownerID, endpointID uuid.UUID) (*webhook.Outcome, error)
}

// UserDirectory is the account surface the server depends on. It also
// backs the auth middleware's user lookup.
type UserDirectory interface {
	Create(ctx context.Context, name, email, passwordHash string) (*store.User, error)
	GetByEmail(ctx context.Context, email string) (*store.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*store.User, error)
}

// DocumentLibrary persists uploaded documents and their parse results.
type DocumentLibrary interface {
	Create(ctx context.Context, d *store.Document) error
	MarkParsing(ctx context.Context, id uuid.UUID) error
	SetParsed(ctx context.Context, id uuid.UUID, content string, extracted, metadata []byte) error
	SetFailed(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*store.Document, error)
	List(ctx context.Context, ownerID uuid.UUID, search string, limit, offset int) ([]store.Document, int64, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, title string, tags []string) (*store.Document, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (*store.Document, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	router *chi.Mux
	server *http.Server
	db     *pgxpool.Pool

	tokens    *auth.Tokens
	users     UserDirectory
	products  *store.ProductStore
	webhooks  *store.WebhookStore
	documents DocumentLibrary
	queue     ImportQueue
	events    EventService
	limiter   *uploadLimiter
}

// NewServer wires the API server. db backs all stores; q and events are
// the import queue and webhook dispatcher.
func NewServer(cfg *config.Config, db *pgxpool.Pool, q ImportQueue, events EventService, log *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    chi.NewRouter(),
		db:        db,
		tokens:    auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		users:     store.NewUserStore(db),
		products:  store.NewProductStore(db),
		webhooks:  store.NewWebhookStore(db),
		documents: store.NewDocumentStore(db),
		queue:     q,
		events:    events,
		limiter:   newUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))
	s.router.Use(chimw.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(s.tokens, s.users))
			r.Get("/me", s.handleMe)
		})
	})

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(s.tokens, s.users))

		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", s.handleListProducts)
			r.Post("/", s.handleCreateProduct)
			r.Post("/upload", s.handleImportCSV)
			r.Delete("/bulk/all", s.handleDeleteAllProducts)

			r.Get("/{id}", s.handleGetProduct)
			r.Put("/{id}", s.handleUpdateProduct)
			r.Delete("/{id}", s.handleDeleteProduct)
		})

		r.Route("/api/jobs", func(r chi.Router) {
			r.Get("/{jobID}", s.handleImportStatus)
			r.Get("/{jobID}/progress", s.handleImportProgress)
		})

		r.Route("/api/webhooks", func(r chi.Router) {
			r.Get("/", s.handleListWebhooks)
			r.Post("/", s.handleCreateWebhook)
			r.Get("/{id}", s.handleGetWebhook)
			r.Put("/{id}", s.handleUpdateWebhook)
			r.Delete("/{id}", s.handleDeleteWebhook)
			r.Post("/{id}/test", s.handleTestWebhook)
		})

		r.Route("/api/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleUploadDocument)
			r.Get("/{id}", s.handleGetDocument)
			r.Get("/{id}/download", s.handleDownloadDocument)
			r.Put("/{id}", s.handleUpdateDocument)
			r.Delete("/{id}", s.handleDeleteDocument)
		})
	})
}

// Start begins listening for HTTP requests. WriteTimeout stays disabled
// so SSE progress streams are not cut off.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.log.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight uploads.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.limiter.WaitForDrain(ctx); err != nil {
		s.log.Warn("shutdown with uploads still active", "active", s.limiter.ActiveCount())
	}
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	code := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			status, dbStatus = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]interface{}{
		"status":        status,
		"database":      dbStatus,
		"queueMode":     s.queue.Mode().String(),
		"activeUploads": s.limiter.ActiveCount(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
