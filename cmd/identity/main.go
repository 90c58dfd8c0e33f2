// identity runs the Identity Store, RBAC Resolver, and Token Service
// (C1/C2/C3) behind the auth-service HTTP surface the gateway proxies to.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meridianclinic/platform/internal/gateway/middleware"
	"github.com/meridianclinic/platform/internal/identity"
	"github.com/meridianclinic/platform/internal/platform/config"
	"github.com/meridianclinic/platform/internal/platform/eventbus"
	"github.com/meridianclinic/platform/internal/platform/secretbox"
	"github.com/meridianclinic/platform/internal/storage"
	"github.com/meridianclinic/platform/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup("identity", cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Env, TracesSampleRate: 1.0}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.RedisURL)})
	defer redisClient.Close()

	box, err := secretbox.New(cfg.TenantSecretKeyHex)
	if err != nil {
		log.Error("secretbox_init_failed", "error", err)
		os.Exit(1)
	}

	if err := cfg.RequireJWTSecret(); err != nil && cfg.Env == "production" {
		log.Error("jwt_private_key_missing", "error", err)
		os.Exit(1)
	}
	tokens, err := identity.NewJWTProvider(cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM, cfg.JWTIssuer, cfg.JWTExpiration)
	if err != nil {
		log.Error("jwt_provider_init_failed", "error", err)
		os.Exit(1)
	}

	users := identity.NewStore(pool)
	roles := identity.NewRoleStore(pool)
	resolver := identity.NewResolver(roles)
	hasher := identity.NewBcryptHasher()
	mfa := identity.NewMFAService(cfg.JWTIssuer, box)

	publisher := eventbus.NewPublisher(redisClient, log)
	outbox := eventbus.NewOutbox(pool, publisher, log)
	go outbox.RelayLoop(ctx, time.Second)

	service := identity.NewService(pool, users, roles, resolver, hasher, tokens, mfa, outbox, identity.ServiceConfig{
		LockoutThreshold:        cfg.LockoutThreshold,
		LockoutDuration:         cfg.LockoutDuration,
		AllowPublicRegistration: cfg.AllowPublicRegistration,
	})

	// Any broadcast cache invalidation (RBAC table mutations elsewhere)
	// bumps the resolver's generation counter so stale permission sets
	// are never served past the next lookup.
	go runCacheInvalidationConsumer(ctx, redisClient, log, resolver, cfg.EventBusPrefetch, cfg.EventBusConcurrency, cfg.ConsumerHandlerTimeout)

	handler := identity.NewHandler(service, tokens, pool)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS(nil))
	r.Use(middleware.BodyLimit(cfg.BodyLimitBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	handler.Routes(r)

	runServer(ctx, log, r, pool)
}

func runCacheInvalidationConsumer(ctx context.Context, client *redis.Client, log *slog.Logger, resolver *identity.Resolver, prefetch, concurrency int, handlerTimeout time.Duration) {
	consumer := eventbus.NewConsumer(client, log, eventbus.Aggregate(eventbus.EventCacheInvalidate), "rbac-resolver", "identity-"+hostnameOrPID(),
		eventbus.WithPrefetch(prefetch), eventbus.WithConcurrency(concurrency), eventbus.WithHandlerTimeout(handlerTimeout))
	if err := consumer.Run(ctx, func(ctx context.Context, env eventbus.Envelope) error {
		resolver.Invalidate()
		return nil
	}); err != nil {
		log.Error("cache_invalidation_consumer_stopped", "error", err)
	}
}

func runServer(ctx context.Context, log *slog.Logger, handler http.Handler, pool *pgxpool.Pool) {
	_ = ctx
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server_listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		log.Info("shutdown_signal_received", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			_ = srv.Close()
		}
		pool.Close()
		log.Info("server_shutdown_complete")
	}
}

func redisAddr(url string) string {
	if url == "" {
		return "localhost:6379"
	}
	return url
}

func hostnameOrPID() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "identity"
}
