package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tablestack/tablestack-backend/internal/ingest"
	"github.com/tablestack/tablestack-backend/internal/ingest/consumers"
	"github.com/tablestack/tablestack-backend/internal/ingest/handler"
	"github.com/tablestack/tablestack-backend/internal/ingest/staging"
	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/domain"
	"github.com/tablestack/tablestack-backend/internal/ledger/repository"
	"github.com/tablestack/tablestack-backend/internal/ledger/schema"
	"github.com/tablestack/tablestack-backend/pkg/auth"
	"github.com/tablestack/tablestack-backend/pkg/config"
	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
	"github.com/tablestack/tablestack-backend/pkg/redisconn"
)

const serviceName = "sync-worker"

func main() {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Sync Worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := schema.Apply(ctx, db.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to apply ledger schema")
	}

	var (
		rmq       *messaging.RabbitMQ
		publisher messaging.EventPublisher = messaging.NoopPublisher{}
	)
	rmq, err = messaging.New(&cfg.RabbitMQ, log)
	switch {
	case err != nil && cfg.Server.Environment != config.EnvDevelopment:
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	case err != nil:
		log.Warn().Err(err).Msg("RabbitMQ unavailable, sync requests and events disabled")
		rmq = nil
	default:
		defer rmq.Close()
		publisher, err = messaging.NewPublisher(rmq, messaging.ExchangeLedgerEvents, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	redisConn, err := redisconn.New(ctx, &cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisConn.Close()

	var (
		reportCache cache.ReportCache = cache.NoopReportCache{}
		locker      ingest.Locker
	)
	if redisConn != nil {
		reportCache = cache.NewRedisReportCache(redisConn.Client)
		locker = ingest.NewRedisLocker(redisConn.Locks, cfg.Redis.LockTTL, log)
	}

	defaultZone, err := time.LoadLocation(cfg.Sync.DefaultTimezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Sync.DefaultTimezone).Msg("invalid default timezone")
	}

	restaurantRepo := repository.NewRestaurantRepository(db)
	syncers := ingest.NewSyncers(ingest.Deps{
		Staging:     staging.NewReader(db.DB),
		Ledger:      repository.NewSalesRepository(db),
		Runs:        repository.NewSyncRunRepository(db),
		Restaurants: restaurantRepo,
		Cache:       reportCache,
		Publisher:   publisher,
		DefaultZone: defaultZone,
		BatchSize:   cfg.Sync.BatchSize,
		Logger:      log,
	})
	orchestrator := ingest.NewOrchestrator(syncers, restaurantRepo, locker, log)

	var vendors []domain.POSSystem
	for _, v := range cfg.Sync.Vendors {
		vendor := domain.POSSystem(v)
		if !vendor.IsVendor() {
			log.Fatal().Str("pos_system", v).Msg("unknown vendor in sync.vendors")
		}
		vendors = append(vendors, vendor)
	}

	var scheduler *ingest.Scheduler
	if cfg.Sync.Interval > 0 {
		scheduler = ingest.NewScheduler(orchestrator, vendors, cfg.Sync.Interval, log)
		scheduler.Start(ctx)
	}

	if rmq != nil {
		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		requests, err := consumers.NewSyncRequestConsumer(rmq, orchestrator, cfg.RabbitMQ.MaxRetries, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create sync request consumer")
		}
		if err := requests.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start sync request consumer")
		}
	}

	syncHandler := handler.NewSyncHandler(orchestrator, log)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.Authenticate(auth.NewManager(&cfg.JWT)))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{
			"status":   "healthy",
			"service":  serviceName,
			"database": db.Health(r.Context()),
			"redis":    redisConn.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		httputil.JSON(w, http.StatusOK, health)
	})
	r.Post("/internal/sync", syncHandler.Run)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// A tenant sync can outlast the default write timeout.
		WriteTimeout: cfg.Queue.DispatchTimeout + 10*time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")

	if scheduler != nil {
		scheduler.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
