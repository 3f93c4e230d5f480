package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/stackfolio/stackfolio/internal/app/aggregation"
	"github.com/stackfolio/stackfolio/internal/config/envloader"
	"github.com/stackfolio/stackfolio/internal/infra/blob"
	"github.com/stackfolio/stackfolio/internal/infra/index"
	"github.com/stackfolio/stackfolio/internal/infra/storage"
	queueStore "github.com/stackfolio/stackfolio/internal/infra/storage/queue/postgres"
	"github.com/stackfolio/stackfolio/pkg/common"
	"github.com/stackfolio/stackfolio/pkg/common/logger"
	"github.com/stackfolio/stackfolio/pkg/common/otel"
)

const serviceType = "aggregator"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("AGGREGATOR-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log = logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := envloader.NewEnvLoader().Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	tp, telemetryTeardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
		ExcludedRoutes: map[string]struct{}{
			"/v1/health":    {},
			"/v1/readiness": {},
		},
		Probability: cfg.Telemetry.SampleProbability,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"service.type":     serviceType,
			"host.name":        hostname,
		},
		InsecureExporter: true,
	})
	if err != nil {
		log.Error(ctx, "failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryTeardown(ctx)

	tracer := tp.Tracer(svcName)

	ready := &atomic.Bool{}
	healthServer := common.NewHealthServer(ready)
	defer func() {
		if err := healthServer.Server().Shutdown(ctx); err != nil {
			log.Error(ctx, "Error shutting down health server", "error", err)
		}
	}()

	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.DSN())
	if err != nil {
		log.Error(ctx, "failed to parse db config", "error", err)
		os.Exit(1)
	}
	poolCfg.MinConns = 5
	poolCfg.MaxConns = 20
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Error(ctx, "failed to open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := storage.RunMigrations(pool); err != nil {
		log.Error(ctx, "failed to run migrations", "error", err)
		os.Exit(1)
	}
	log.Info(ctx, "Migrations applied successfully. Starting application...")

	reportStore, err := blob.NewStore(ctx, blob.Config{
		Endpoint:  cfg.Blob.Endpoint,
		AccessKey: cfg.Blob.AccessKey,
		SecretKey: cfg.Blob.SecretKey,
		UseSSL:    cfg.Blob.UseSSL,
		Bucket:    cfg.Blob.Bucket,
	})
	if err != nil {
		log.Error(ctx, "failed to connect to object store", "error", err)
		os.Exit(1)
	}

	searchIndex, err := index.NewElasticIndex(ctx, index.ElasticConfig{
		Addresses: cfg.Search.Addresses,
		Username:  cfg.Search.Username,
		Password:  cfg.Search.Password,
		Index:     cfg.Search.Index,
	})
	if err != nil {
		log.Error(ctx, "failed to connect to search index", "error", err)
		os.Exit(1)
	}

	mp := otel.GetMeterProvider()
	metricCollector, err := aggregation.NewAggregationMetrics(mp)
	if err != nil {
		log.Error(ctx, "failed to create metrics collector", "error", err)
		os.Exit(1)
	}

	jobRepo := queueStore.NewJobStore(pool, tracer)
	aggregator := aggregation.NewAggregator(reportStore, searchIndex, log, tracer)
	worker := aggregation.NewWorker(jobRepo, aggregator, aggregation.WorkerConfig{
		BatchSize:            cfg.Worker.BatchSize,
		Parallelism:          cfg.Worker.Parallelism,
		CycleInterval:        cfg.Worker.CycleInterval.Std(),
		LeaseTimeout:         cfg.Worker.LeaseTimeout.Std(),
		ReclaimInterval:      cfg.Worker.ReclaimInterval.Std(),
		MaxAttempts:          cfg.Worker.MaxAttempts,
		MaxConsecutiveErrors: cfg.Worker.MaxConsecutiveErrors,
	}, log, metricCollector)

	log.Info(ctx, "Aggregation worker initialized")
	ready.Store(true)

	errCh := make(chan error, 1)
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info(ctx, "Received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		log.Error(ctx, "Worker error", "error", err)
		os.Exit(1)
	}
}
