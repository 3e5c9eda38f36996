package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/presskit-builder/apiserver/config"
	"github.com/presskit-builder/apiserver/internal/auth"
	"github.com/presskit-builder/apiserver/internal/db"
	"github.com/presskit-builder/apiserver/internal/handlers"
	"github.com/presskit-builder/apiserver/internal/logging"
	"github.com/presskit-builder/apiserver/internal/mq"
	"github.com/presskit-builder/apiserver/internal/services"
	"github.com/presskit-builder/apiserver/internal/store"
)

const (
	defaultPort      = 5000
	requestTimeout   = 60 * time.Second
	redisPingTimeout = 5 * time.Second
)

// Dependencies are the collaborators the HTTP router is built from.
type Dependencies struct {
	Users        services.UserRepository
	PressKits    services.PressKitRepository
	Hasher       auth.PasswordHasher
	Tokens       *auth.TokenService
	Events       services.EventPublisher
	ViewsChannel string
	CORSOrigins  []string
	Registry     *prometheus.Registry
	Logger       *slog.Logger
}

// Server wraps the HTTP server and its backends.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	redis      *redis.Client
	queue      *mq.MQ
	logger     *slog.Logger
}

// New connects to the configured backends and constructs a Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Server{db: dbConn, logger: logger}

	tokenOpts := []auth.TokenOption{auth.WithIssuer(cfg.JWTIssuer)}
	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := s.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			s.closeBackends()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		tokenOpts = append(tokenOpts, auth.WithDenylist(auth.NewRedisDenylist(s.redis)))
	} else {
		logger.Warn("REDIS_ADDR not set, token revocation disabled")
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, tokenOpts...)
	if err != nil {
		s.closeBackends()
		return nil, err
	}

	s.queue, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		s.closeBackends()
		return nil, err
	}
	// A nil *mq.MQ must not become a non-nil EventPublisher.
	var events services.EventPublisher
	if s.queue != nil {
		events = s.queue
	}

	router, err := NewRouter(Dependencies{
		Users:        store.NewUserRepository(dbConn),
		PressKits:    store.NewPressKitRepository(dbConn),
		Hasher:       auth.NewBcryptHasher(cfg.BcryptCost),
		Tokens:       tokens,
		Events:       events,
		ViewsChannel: cfg.MQ.ViewsChannel,
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		Registry:     prometheus.NewRegistry(),
		Logger:       logger,
	})
	if err != nil {
		s.closeBackends()
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// NewRouter builds the HTTP routes over deps.
func NewRouter(deps Dependencies) (*chi.Mux, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := NewMetrics(registry)

	userService := services.NewUserService(deps.Users)
	pressKitService := services.NewPressKitService(deps.PressKits, deps.Events, deps.ViewsChannel, logger)

	authHandler, err := handlers.NewAuthHandler(userService, deps.Hasher, deps.Tokens, logger)
	if err != nil {
		return nil, err
	}
	pressKitHandler := handlers.NewPressKitHandler(pressKitService, logger)

	validator := handlers.NewValidator()
	authMiddleware := handlers.RequireAuth(deps.Tokens, logger)

	router := chi.NewRouter()
	router.Use(
		corsHandler(deps.CORSOrigins),
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		metrics.Middleware,
		handlers.Recoverer(logger),
		middleware.Timeout(requestTimeout),
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)

	router.Get("/", handlers.Welcome)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, validator, authMiddleware)
	})
	router.Route("/api/press-kits", func(r chi.Router) {
		handlers.PressKitRouter(r, pressKitHandler, validator, authMiddleware)
	})

	return router, nil
}

// corsHandler lets browser clients on the listed origins call the API with a
// session token. An empty list allows any origin.
func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", handlers.AuthHeader},
		MaxAge:         300,
	})
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("close redis", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close database", "error", err)
		}
	}
}
