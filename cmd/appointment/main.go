// appointment runs the Snapshot Projections and Appointment Coordinator
// (C5/C6) behind the appointment-service HTTP surface the gateway
// proxies to.
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

	"github.com/meridianclinic/platform/internal/appointment"
	"github.com/meridianclinic/platform/internal/gateway/middleware"
	"github.com/meridianclinic/platform/internal/platform/config"
	"github.com/meridianclinic/platform/internal/platform/eventbus"
	"github.com/meridianclinic/platform/internal/snapshot"
	"github.com/meridianclinic/platform/internal/storage"
	"github.com/meridianclinic/platform/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.Setup("appointment", cfg.Env)
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

	pool, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	log.Info("database_connected")

	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.RedisURL)})
	defer redisClient.Close()

	snapStore := snapshot.NewStore(pool)
	cache := snapshot.NewCachedReader(snapStore, redisClient)
	snapConsumer := snapshot.NewConsumer(snapStore, cache, log)

	apptStore := appointment.NewStore(pool)
	publisher := eventbus.NewPublisher(redisClient, log)
	outbox := eventbus.NewOutbox(pool, publisher, log)
	go outbox.RelayLoop(ctx, time.Second)

	coord := appointment.NewCoordinator(pool, apptStore, cache, outbox)

	startProjectionConsumers(ctx, redisClient, log, pool, snapConsumer, cfg.EventBusPrefetch, cfg.EventBusConcurrency, cfg.ConsumerHandlerTimeout)

	handler := appointment.NewHandler(coord, pool)

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

// startProjectionConsumers runs one consumer per upstream aggregate
// stream (patient, doctor, cache) under the shared snapshot-projector
// group, since PatientFacts/DoctorFacts/invalidation each arrive on
// their own stream but feed the same projection.
func startProjectionConsumers(ctx context.Context, client *redis.Client, log *slog.Logger, pool *pgxpool.Pool, consumer *snapshot.Consumer, prefetch, concurrency int, handlerTimeout time.Duration) {
	for _, aggregate := range []string{"patient", "doctor", "cache"} {
		c := eventbus.NewConsumer(client, log, aggregate, "snapshot-projector", "appointment-"+hostnameOrPID(),
			eventbus.WithDeadLetterSink(pool),
			eventbus.WithPrefetch(prefetch),
			eventbus.WithConcurrency(concurrency),
			eventbus.WithHandlerTimeout(handlerTimeout))
		go func(c *eventbus.Consumer, aggregate string) {
			if err := c.Run(ctx, consumer.Handle); err != nil {
				log.Error("projection_consumer_stopped", "aggregate", aggregate, "error", err)
			}
		}(c, aggregate)
	}
}

func runServer(ctx context.Context, log *slog.Logger, handler http.Handler, pool *pgxpool.Pool) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
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
	return "appointment"
}
