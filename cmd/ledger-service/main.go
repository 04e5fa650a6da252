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
	"github.com/go-chi/cors"

	"github.com/tablestack/tablestack-backend/internal/jobs"
	"github.com/tablestack/tablestack-backend/internal/ledger/access"
	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/internal/ledger/events"
	"github.com/tablestack/tablestack-backend/internal/ledger/handler"
	"github.com/tablestack/tablestack-backend/internal/ledger/repository"
	"github.com/tablestack/tablestack-backend/internal/ledger/schema"
	"github.com/tablestack/tablestack-backend/internal/ledger/service"
	"github.com/tablestack/tablestack-backend/pkg/auth"
	"github.com/tablestack/tablestack-backend/pkg/config"
	"github.com/tablestack/tablestack-backend/pkg/database"
	"github.com/tablestack/tablestack-backend/pkg/httputil"
	"github.com/tablestack/tablestack-backend/pkg/logger"
	"github.com/tablestack/tablestack-backend/pkg/messaging"
	"github.com/tablestack/tablestack-backend/pkg/redisconn"
)

const serviceName = "ledger-service"

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Ledger Service")

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

	// RabbitMQ is optional in development; events and incidents are then only logged or stored.
	var (
		rmq          *messaging.RabbitMQ
		ledgerEvents *events.LedgerEventPublisher
		opsPublisher messaging.EventPublisher = messaging.NoopPublisher{}
	)
	rmq, err = messaging.New(&cfg.RabbitMQ, log)
	switch {
	case err != nil && cfg.Server.Environment != config.EnvDevelopment:
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	case err != nil:
		log.Warn().Err(err).Msg("RabbitMQ unavailable, ledger events disabled")
		rmq = nil
	default:
		defer rmq.Close()
		ledgerEvents, err = events.NewLedgerEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create ledger event publisher")
		}
		opsPublisher, err = messaging.NewPublisher(rmq, messaging.ExchangeOpsEvents, serviceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create ops event publisher")
		}
	}

	redisConn, err := redisconn.New(ctx, &cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisConn.Close()

	var reportCache cache.ReportCache = cache.NoopReportCache{}
	if redisConn != nil {
		reportCache = cache.NewRedisReportCache(redisConn.Client)
	}

	// Repositories
	salesRepo := repository.NewSalesRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	restaurantRepo := repository.NewRestaurantRepository(db)
	membershipRepo := repository.NewMembershipRepository(db)
	reportRepo := repository.NewReportRepository(db)
	syncRunRepo := repository.NewSyncRunRepository(db)

	// Services
	authorizer := access.NewAuthorizer(membershipRepo)
	ledgerService := service.NewLedgerService(db, salesRepo, categoryRepo, restaurantRepo, authorizer, reportCache, ledgerEvents, log)
	reportService := service.NewReportService(reportRepo, authorizer, reportCache, cfg.Redis.ReportTTL, log)

	// Sync job queue, drained into the sync worker
	tokens := auth.NewManager(&cfg.JWT)
	queue := jobs.NewPostgresQueue(db)
	drainer := jobs.NewDrainer(
		queue,
		jobs.NewHTTPDispatcher(cfg.Queue.WorkerURL, tokens, cfg.Queue.DispatchTimeout),
		jobs.NewPostgresIncidentSink(db, opsPublisher, log),
		jobs.DrainerConfig{
			BatchSize:         cfg.Queue.BatchSize,
			VisibilityTimeout: cfg.Queue.VisibilityTimeout,
			MaxAttempts:       cfg.Queue.MaxAttempts,
		},
		log,
	)
	drainer.Start(ctx, cfg.Queue.DrainInterval)

	// Handlers
	salesHandler := handler.NewSalesHandler(ledgerService, log)
	reportHandler := handler.NewReportHandler(reportService, log)
	restaurantHandler := handler.NewRestaurantHandler(ledgerService, authorizer, queue, syncRunRepo, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httputil.Authenticate(tokens))

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

	r.Route("/api/v1", func(r chi.Router) {
		handler.Routes(r, salesHandler, reportHandler, restaurantHandler)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	log.Info().Msg("shutting down server")

	drainer.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
