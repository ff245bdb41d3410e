// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → OpenStore  → repository.Store (sqlite.DB or gormstore.Store)
//	  → NewMailer  → mail.Mailer (FileMailer or SESMailer)
//	  → services   → ProductService, FavoriteService, AccountService
//	  → handlers   → PageHandler, AjaxHandler, AccountHandler
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/config"
	"github.com/sakif/pur-beurre/internal/handler"
	"github.com/sakif/pur-beurre/internal/mail"
	"github.com/sakif/pur-beurre/internal/middleware"
	"github.com/sakif/pur-beurre/internal/repository"
	"github.com/sakif/pur-beurre/internal/repository/gormstore"
	sqliteRepo "github.com/sakif/pur-beurre/internal/repository/sqlite"
	"github.com/sakif/pur-beurre/internal/service"
	"github.com/sakif/pur-beurre/web"
)

// pinger is implemented by both storage backends.
type pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the external resources a Server is built on. New opens them from
// the configuration; tests pass in-memory ones to NewWithDeps.
type Deps struct {
	Store  repository.Store
	Mailer mail.Mailer
	// Passwords defaults to auth.NewPasswordService() when nil.
	Passwords *auth.PasswordService
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. It is closed in Start() after the graceful
// shutdown, or by Close() when the server never started.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store

	products  *service.ProductService
	favorites *service.FavoriteService
	accounts  *service.AccountService
}

// OpenStore opens the database backend selected by cfg.Driver.
//
//   - "sqlite"   → repository/sqlite on cfg.Path (the directory is created)
//   - "postgres" → repository/gormstore on cfg.URL
func OpenStore(cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return gormstore.Open("postgres", cfg.URL)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
			// 0755 = owner can read/write/execute, others can read/execute.
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		return sqliteRepo.New(cfg.Path)
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// NewMailer builds the mail backend selected by cfg.Backend.
func NewMailer(ctx context.Context, cfg config.MailConfig) (mail.Mailer, error) {
	switch cfg.Backend {
	case "ses":
		return mail.NewSESMailer(ctx, cfg.AWSRegion, cfg.From)
	case "file", "":
		return mail.NewFileMailer(cfg.Dir, cfg.From)
	}
	return nil, fmt.Errorf("unknown mail backend %q", cfg.Backend)
}

// New opens the store and the mailer described by cfg and wires the server.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	mailer, err := NewMailer(ctx, cfg.Mail)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating mailer: %w", err)
	}

	s, err := NewWithDeps(cfg, logger, Deps{Store: store, Mailer: mailer})
	if err != nil {
		store.Close() // Clean up DB if route setup fails
		return nil, err
	}
	return s, nil
}

// NewWithDeps wires the server on already opened dependencies. The server
// takes ownership of deps.Store.
func NewWithDeps(cfg *config.Config, logger *slog.Logger, deps Deps) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionDuration())
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	passwords := deps.Passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  deps.Store,

		products:  service.NewProductService(deps.Store, logger),
		favorites: service.NewFavoriteService(deps.Store, deps.Store, logger),
		accounts: service.NewAccountService(
			deps.Store, deps.Store, tokens, passwords, deps.Mailer, logger, cfg.Auth.ResetDuration(),
		),
	}

	if err := s.setupRoutes(tokens); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler returns the router. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Accounts exposes the account service (createsuperuser, tests).
func (s *Server) Accounts() *service.AccountService {
	return s.accounts
}

// Close releases the store of a server that was never started.
func (s *Server) Close() error {
	return s.store.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET       /                                  → home page
// GET       /legal/                            → legal notice
// GET       /food/{id}                         → product sheet
// GET       /results/{id}                      → substitutes
// GET       /results_/{id}                     → substitutes (sign-in required)
// GET       /favorites/                        → saved products (sign-in required)
// POST      /ajax_find_product                 → search box value → product id
// POST      /ajax_save_product                 → save a favorite (JSON 401 when anonymous)
// POST      /ajax_unsave_product               → remove a favorite
// GET       /ajax_products?term=               → autocomplete labels
// GET|POST  /auth/...                          → accounts (see below)
// GET       /api/me                            → signed-in user (JSON)
// GET       /static/*, /healthz
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
// 5. OptionalAuth: puts the user ID in the context when the cookie is valid
func (s *Server) setupRoutes(tokens *auth.TokenService) error {
	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(auth.OptionalAuth(tokens))

	// === Static Files ===
	// The assets are embedded in the binary; fs.Sub strips the "static/"
	// directory so GET /static/css/style.css serves static/css/style.css.
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		return fmt.Errorf("opening embedded static files: %w", err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	s.router.Get("/healthz", s.handleHealth)

	render, err := handler.NewRenderer(web.FS, s.logger)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	requireAuth := auth.RequireAuth(tokens)
	requireAuthJSON := auth.RequireAuthJSON(tokens)

	// === Page Routes ===
	pages := handler.NewPageHandler(s.products, s.favorites, render, s.config.Server.Substitutes, s.logger)
	s.router.Get("/", pages.HandleIndex)
	s.router.Get("/legal/", pages.HandleLegal)
	s.router.Get("/food/{id}", pages.HandleFood)
	s.router.Get("/results/{id}", pages.HandleResults)
	s.router.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/results_/{id}", pages.HandleResults)
		r.Get("/favorites/", pages.HandleFavorites)
	})

	// === AJAX Routes ===
	// Every method is accepted on the POST routes: other methods get {}.
	ajax := handler.NewAjaxHandler(s.products, s.favorites, s.logger)
	s.router.HandleFunc("/ajax_find_product", ajax.HandleFindProduct)
	s.router.With(requireAuthJSON).HandleFunc("/ajax_save_product", ajax.HandleSaveProduct)
	s.router.With(requireAuthJSON).HandleFunc("/ajax_unsave_product", ajax.HandleUnsaveProduct)
	s.router.Get("/ajax_products", ajax.HandleProducts)

	// === Account Routes ===
	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(
			s.config.GitHub.ClientID,
			s.config.GitHub.ClientSecret,
			s.config.GitHub.CallbackURL,
		)
		if s.config.GitHub.WebURL != "" {
			github.WithEndpoints(s.config.GitHub.WebURL, s.config.GitHub.APIURL)
		}
		s.logger.Info("GitHub sign-in enabled")
	}
	accounts := handler.NewAccountHandler(
		s.accounts, github, render, s.config.Server.SiteURL, s.config.Server.SecureCookies, s.logger,
	)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/sign/", accounts.HandleSign)
		r.Post("/sign/", accounts.HandleSign)

		r.Get("/reset_password/", accounts.HandleResetPassword)
		r.Post("/reset_password/", accounts.HandleResetPassword)
		r.Get("/reset_password/done/", accounts.HandleResetPasswordDone)
		r.Get("/reset_password_confirm/{token}/", accounts.HandleResetPasswordConfirm)
		r.Post("/reset_password_confirm/{token}/", accounts.HandleResetPasswordConfirm)
		r.Get("/reset_password_complete/", accounts.HandleResetPasswordComplete)

		if github != nil {
			r.Get("/github/login", accounts.HandleGitHubLogin)
			r.Get("/github/callback", accounts.HandleGitHubCallback)
		}

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/log_out/", accounts.HandleLogOut)
			r.Get("/account/", accounts.HandleAccount)
			r.Get("/change_password/", accounts.HandleChangePassword)
			r.Post("/change_password/", accounts.HandleChangePassword)
			r.Get("/change_password/done/", accounts.HandleChangePasswordDone)
		})
	})

	s.router.With(requireAuthJSON).Get("/api/me", accounts.HandleMe)

	s.router.NotFound(pages.HandleNotFound)

	return nil
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if p, ok := s.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.Error("health check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable\n"))
			return
		}
	}
	w.Write([]byte("ok\n"))
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes the SQLite WAL, releases the file lock)
//
// The `defer s.store.Close()` ensures step 3 happens on every return path.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         s.config.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	// Start the server in a goroutine (so it doesn't block)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("url", s.config.Server.SiteURL),
			slog.String("database", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
