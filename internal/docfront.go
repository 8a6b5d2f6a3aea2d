package internal

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/docfront/internal/config"
	"github.com/dgellow/docfront/internal/crypto"
	"github.com/dgellow/docfront/internal/csrf"
	"github.com/dgellow/docfront/internal/idp"
	jsonwriter "github.com/dgellow/docfront/internal/json"
	"github.com/dgellow/docfront/internal/log"
	"github.com/dgellow/docfront/internal/metrics"
	"github.com/dgellow/docfront/internal/server"
	"github.com/dgellow/docfront/internal/session"
	"github.com/dgellow/docfront/internal/storage"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

// DocFront is the complete docfront backend
type DocFront struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.Storage
	metrics    *metrics.Metrics
}

// NewDocFront creates the application with all dependencies built
func NewDocFront(ctx context.Context, cfg config.Config) (*DocFront, error) {
	log.LogInfoWithFields("docfront", "Building application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"storage": cfg.Storage.Kind,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	callbackURL, err := cfg.CallbackURL()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}
	provider := idp.NewGitHubProvider(cfg.Auth.GitHubClientID, string(cfg.Auth.GitHubClientSecret), callbackURL)

	app, err := newDocFront(cfg, store, provider)
	if err != nil {
		store.Close()
		return nil, err
	}
	return app, nil
}

func newDocFront(cfg config.Config, store storage.Storage, provider idp.Provider) (*DocFront, error) {
	sealer, err := crypto.NewSealer([]byte(cfg.Auth.SessionKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create session sealer: %w", err)
	}

	m := metrics.New()
	handler := buildHTTPHandler(cfg, store, provider, session.NewAccessor(sealer, cfg.Auth.SessionTTL), m)

	return &DocFront{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
		metrics:    m,
	}, nil
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives, or the listener fails
func (d *DocFront) Run(ctx context.Context) error {
	log.LogInfoWithFields("docfront", "Starting application", map[string]any{
		"addr": d.config.Server.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := d.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("docfront", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return d.httpServer.Stop(shutdownCtx)
	})

	runErr := g.Wait()

	if err := d.storage.Close(); err != nil {
		log.LogErrorWithFields("docfront", "Failed to close storage", map[string]any{
			"error": err.Error(),
		})
	}

	if runErr != nil {
		log.LogErrorWithFields("docfront", "Shut down due to error", map[string]any{
			"error": runErr.Error(),
		})
		return runErr
	}

	log.LogInfoWithFields("docfront", "Application shutdown complete", nil)
	return nil
}

// setupStorage creates storage based on configuration
func setupStorage(ctx context.Context, cfg config.Config) (storage.Storage, error) {
	switch cfg.Storage.Kind {
	case config.StorageKindFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Storage.GCPProject,
			"database":   cfg.Storage.FirestoreDatabase,
			"collection": cfg.Storage.FirestoreCollection,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Storage.GCPProject,
			cfg.Storage.FirestoreDatabase,
			cfg.Storage.FirestoreCollection,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	case config.StorageKindPostgres:
		log.LogInfoWithFields("storage", "Using Postgres storage", nil)
		pg, err := storage.NewPostgresStorage(ctx, string(cfg.Storage.PostgresDSN))
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres storage: %w", err)
		}
		return pg, nil
	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
		return storage.NewMemoryStorage(), nil
	}
}

// buildHTTPHandler creates the complete HTTP handler with all routing and middleware
func buildHTTPHandler(
	cfg config.Config,
	store storage.Storage,
	provider idp.Provider,
	sessions *session.Accessor,
	m *metrics.Metrics,
) http.Handler {
	mux := http.NewServeMux()

	scoper := storage.NewScoper(store, storage.WithViolationHook(m.IncrementScopeViolation))
	csrfManager := csrf.NewManager(cfg.Auth.CSRFTTL)

	authHandlers := server.NewAuthHandlers(provider, cfg.Auth.DefaultRedirect, sessions, csrfManager, scoper, m)
	installationHandlers := server.NewInstallationHandlers(scoper, m)

	csrfProtected := []server.MiddlewareFunc{
		server.NewCSRFMiddleware(csrfManager, m),
	}
	sessionProtected := []server.MiddlewareFunc{
		server.NewCSRFMiddleware(csrfManager, m),
		server.NewSessionMiddleware(sessions, m),
	}

	mux.Handle("/health", server.NewHealthHandler())
	mux.Handle("/metrics", m.Handler())

	mux.HandleFunc("/auth/start", authHandlers.StartHandler)
	mux.HandleFunc(cfg.Auth.CallbackPath, authHandlers.CallbackHandler)
	mux.HandleFunc("/auth/session", authHandlers.SessionHandler)
	mux.Handle("/auth/logout", server.ChainMiddleware(http.HandlerFunc(authHandlers.LogoutHandler), csrfProtected...))

	mux.Handle("/installations", server.ChainMiddleware(http.HandlerFunc(installationHandlers.ListHandler), sessionProtected...))
	mux.Handle("/installations/{id}", server.ChainMiddleware(http.HandlerFunc(installationHandlers.DeleteHandler), sessionProtected...))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "Not found")
	})

	log.LogInfoWithFields("server", "HTTP handler initialized", map[string]any{
		"callback": cfg.Auth.CallbackPath,
	})

	return server.ChainMiddleware(mux,
		server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
		server.NewLoggerMiddleware("http", m),
		server.NewRequestIDMiddleware(),
		server.NewRecoverMiddleware("docfront"),
	)
}
