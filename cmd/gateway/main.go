// gateway runs the Edge Gateway (C8): service discovery, rate limiting,
// auth enforcement, header injection, and reverse-proxying to whichever
// backend service spec.md's routing table names.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/meridianclinic/platform/internal/gateway"
	"github.com/meridianclinic/platform/internal/gateway/discovery"
	"github.com/meridianclinic/platform/internal/identity"
	"github.com/meridianclinic/platform/internal/platform/config"
	"github.com/meridianclinic/platform/internal/platform/ratelimit"
	"github.com/meridianclinic/platform/pkg/logger"
)

// backendEnv maps each logical service name the routing table knows
// about to the environment variable carrying its comma-separated
// instance base URLs, e.g. AUTH_SERVICE_URLS=http://auth-1:8081,http://auth-2:8081.
var backendEnv = map[string]string{
	"auth-service":            "AUTH_SERVICE_URLS",
	"patient-service":         "PATIENT_SERVICE_URLS",
	"doctor-service":          "DOCTOR_SERVICE_URLS",
	"appointment-service":     "APPOINTMENT_SERVICE_URLS",
	"medical-records-service": "MEDICAL_RECORDS_SERVICE_URLS",
	"facility-service":        "FACILITY_SERVICE_URLS",
	"notification-service":    "NOTIFICATION_SERVICE_URLS",
	"audit-service":           "AUDIT_SERVICE_URLS",
}

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup("gateway", cfg.Env)
	log.Info("application_startup", "env", cfg.Env)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.Env, TracesSampleRate: 1.0}); err != nil {
			log.Error("sentry_init_failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := discovery.NewRegistry()
	registerBackends(registry, log)
	go registry.PollHealth(ctx, cfg.DiscoveryPollInterval)

	var limiter ratelimit.Limiter
	switch {
	case !cfg.RateLimitEnabled:
		limiter = ratelimit.NoopLimiter{}
		log.Info("rate_limiter_backend", "backend", "disabled")
	case cfg.RedisURL != "":
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.RedisURL)})
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, log, cfg.RateLimitRPM, cfg.RateLimitBurst)
		log.Info("rate_limiter_backend", "backend", "redis")
	default:
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst)
		log.Info("rate_limiter_backend", "backend", "local")
	}

	tokens, err := identity.NewJWTProvider(cfg.JWTPrivateKeyPEM, cfg.JWTPublicKeyPEM, cfg.JWTIssuer, cfg.JWTExpiration)
	if err != nil {
		log.Error("jwt_provider_init_failed", "error", err)
		os.Exit(1)
	}

	handler := gateway.New(registry, discovery.NewRoundRobin(), limiter, tokens, log, gateway.Options{
		AllowedOrigins:     allowedOrigins(),
		BodyLimitBytes:     cfg.BodyLimitBytes,
		RequestTimeout:     cfg.RequestTimeout,
		PublicPaths:        gateway.DefaultPublicPaths(),
		RateLimitPerMinute: cfg.RateLimitRPM,
	})

	runServer(ctx, log, handler)
}

func registerBackends(registry *discovery.Registry, log *slog.Logger) {
	for service, envVar := range backendEnv {
		raw := os.Getenv(envVar)
		if raw == "" {
			log.Warn("backend_not_configured", "service", service, "env", envVar)
			continue
		}
		urls := strings.Split(raw, ",")
		registry.Register(service, urls...)
		log.Info("backend_registered", "service", service, "instances", len(urls))
	}
}

func allowedOrigins() []string {
	raw := os.Getenv("CORS_ALLOWED_ORIGINS")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func runServer(ctx context.Context, log *slog.Logger, handler http.Handler) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
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

	select {
	case err := <-serverErrors:
		log.Error("server_startup_failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
		log.Info("shutdown_signal_received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful_shutdown_failed", "error", err)
			_ = srv.Close()
		}
		log.Info("server_shutdown_complete")
	}
}

func redisAddr(url string) string {
	if url == "" {
		return "localhost:6379"
	}
	return url
}
