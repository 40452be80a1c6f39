package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "claim-batch/internal/api/http"
	"claim-batch/internal/audit"
	"claim-batch/internal/auth"
	batchapp "claim-batch/internal/batch/application"
	batch "claim-batch/internal/batch/domain"
	"claim-batch/internal/batch/infrastructure/calcrule"
	batchpg "claim-batch/internal/batch/infrastructure/postgres"
	batchhttp "claim-batch/internal/batch/interfaces"
	"claim-batch/internal/config"
	"claim-batch/internal/database"
	"claim-batch/internal/eventing"
	"claim-batch/internal/eventing/infrastructure/kafka"
	eventingpg "claim-batch/internal/eventing/infrastructure/postgres"
	"claim-batch/internal/observability/metrics"
	reportapp "claim-batch/internal/reporting/application"
	reportpg "claim-batch/internal/reporting/infrastructure/postgres"
	reportredis "claim-batch/internal/reporting/infrastructure/redis"
	reporthttp "claim-batch/internal/reporting/interfaces"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, outbox relay and monthly scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

// batchService wires the batch run service against Postgres.
func (a *app) batchService(db *sql.DB, outbox *eventingpg.OutboxStore) (*batchapp.BatchRunService, error) {
	recorder := eventing.NewRecorder(outbox, a.cfg.Auth.TenantID)
	store := batchpg.NewStore(db, batchpg.WithRecorder(recorder), batchpg.WithLogger(a.logger))

	registry := batchapp.NewRegistry()
	catalog, err := calcrule.LoadCatalog(a.cfg.Calculation.CatalogFile)
	if err != nil {
		return nil, err
	}
	registered, err := catalog.Register(registry, a.logger)
	if err != nil {
		return nil, err
	}
	a.logger.Info("calculation rules registered", zap.Int("count", registered))

	dispatcher, err := batchapp.NewDispatcher(registry, a.logger)
	if err != nil {
		return nil, err
	}
	return batchapp.NewBatchRunService(store, dispatcher, batchapp.WithLogger(a.logger))
}

func (a *app) reportService(ctx context.Context, db *sql.DB) (*reportapp.ReportService, func(), error) {
	source, err := reportpg.NewSource(db)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {}
	var cache reportapp.Cache
	if a.cfg.Redis.Enabled {
		client, err := reportredis.NewClient(ctx, a.cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		reportCache, err := reportredis.NewReportCache(client, a.cfg.Redis.ReportTTL)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		cache = reportCache
		cleanup = func() { _ = client.Close() }
		a.logger.Info("report cache enabled", zap.String("addr", a.cfg.Redis.Addr))
	}
	service, err := reportapp.NewReportService(source, cache, a.logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return service, cleanup, nil
}

func (a *app) eventBus() (eventing.EventBus, func(), error) {
	if !a.cfg.Kafka.Enabled {
		return eventing.NewLogBus(a.logger), func() {}, nil
	}
	bus, err := kafka.NewBus(kafka.Config{
		Brokers:      a.cfg.Kafka.Brokers,
		Topic:        a.cfg.Kafka.Topic,
		WriteTimeout: a.cfg.Kafka.WriteTimeout,
	}, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return bus, func() { _ = bus.Close() }, nil
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	metrics.Init(db, a.logger)

	events := eventing.NewRegistry()
	events.Register(batch.BatchRunCompleted{})
	events.Register(batch.CapitationRequested{})
	outbox := eventingpg.NewOutboxStore(db)
	dlq := eventingpg.NewDLQStore(db)

	runs, err := a.batchService(db, outbox)
	if err != nil {
		return err
	}
	reports, closeCache, err := a.reportService(ctx, db)
	if err != nil {
		return err
	}
	defer closeCache()

	auditLogger := audit.NewRepository(db)
	batchHandler, err := batchhttp.NewBatchHandler(runs, auditLogger, a.logger)
	if err != nil {
		return err
	}
	reportHandler, err := reporthttp.NewReportHandler(reports, auditLogger, a.logger)
	if err != nil {
		return err
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Batch:          batchHandler,
		Reports:        reportHandler,
		Auth:           auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), auth.NewDefaultPolicy(apihttp.ExemptPaths, nil)),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Ready:          db.PingContext,
		Logger:         a.logger,
	})
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	bus, closeBus, err := a.eventBus()
	if err != nil {
		return err
	}
	defer closeBus()
	relay := eventing.NewDispatcher(bus, outbox, events, dlq, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		relay.Run(gctx, cfg.Outbox.DispatchInterval, cfg.Outbox.BatchSize)
		return nil
	})
	if cfg.Scheduler.Enabled {
		scheduler := batchapp.NewScheduler(runs, schedulerConfig(cfg.Scheduler), a.logger)
		g.Go(func() error {
			scheduler.Start(gctx)
			return nil
		})
	}
	err = g.Wait()
	a.logger.Info("shutdown complete")
	return err
}

func schedulerConfig(cfg config.SchedulerConfig) batchapp.SchedulerConfig {
	return batchapp.SchedulerConfig{
		DayOfMonth:  cfg.DayOfMonth,
		At:          cfg.At,
		Locations:   cfg.Locations,
		AuditUserID: cfg.AuditUserID,
	}
}
