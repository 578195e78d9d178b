package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	allocationhandler "fleetbook/internal/allocation/handler"
	allocationmetrics "fleetbook/internal/allocation/metrics"
	allocationservice "fleetbook/internal/allocation/service"
	allocationstore "fleetbook/internal/allocation/store"
	"fleetbook/internal/platform/config"
	"fleetbook/internal/platform/httpserver"
	"fleetbook/internal/platform/metrics"
	"fleetbook/internal/platform/redis"
	"fleetbook/pkg/platform/audit"
	"fleetbook/pkg/platform/audit/publisher"
	kafkasink "fleetbook/pkg/platform/audit/publishers/kafka"
	auditmemory "fleetbook/pkg/platform/audit/store/memory"
	"fleetbook/pkg/platform/httputil"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

// dependencies holds everything runServer opens and must close.
type dependencies struct {
	db        *sql.DB
	redis     *redis.Client
	kafka     *kafkasink.Sink
	publisher *publisher.Publisher
}

func (d *dependencies) close() {
	if d.publisher != nil {
		d.publisher.Close()
	}
	if d.kafka != nil {
		d.kafka.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.db != nil {
		_ = d.db.Close()
	}
}

// runServer wires the allocation service and serves HTTP until ctx is done.
func runServer(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps := &dependencies{}
	defer deps.close()

	loc, err := cfg.Allocation.Location()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var httpMetrics *metrics.Metrics
	if cfg.Server.MetricsEnabled {
		httpMetrics = metrics.New(registry)
	}

	opts := []allocationservice.Option{
		allocationservice.WithLogger(log),
		allocationservice.WithLocation(loc),
		allocationservice.WithTxTimeout(cfg.Allocation.TxTimeout),
		allocationservice.WithMetrics(allocationmetrics.New(registry)),
	}

	st, txOpt, err := buildStore(ctx, cfg, deps, log)
	if err != nil {
		return err
	}
	if txOpt != nil {
		opts = append(opts, txOpt)
	}

	deps.redis, err = redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if deps.redis != nil {
		opts = append(opts, allocationservice.WithDirectory(allocationstore.NewCachedDirectory(st, deps.redis.Client,
			allocationstore.WithCacheTTL(cfg.Redis.CacheTTL),
			allocationstore.WithCacheLogger(log),
		)))
		log.InfoContext(ctx, "redis directory cache enabled")
	}

	sink, err := buildAuditSink(ctx, cfg, deps, log)
	if err != nil {
		return err
	}
	deps.publisher = publisher.NewPublisher(sink,
		publisher.WithAsyncBuffer(cfg.Allocation.AuditBuffer),
		publisher.WithLogger(log),
	)
	opts = append(opts, allocationservice.WithAuditPublisher(deps.publisher))

	svc := allocationservice.New(st, opts...)

	router := chi.NewRouter()
	router.Get("/healthz", healthHandler(deps))
	if cfg.Server.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}
	allocationhandler.New(svc, log, httpMetrics,
		allocationhandler.WithRequestTimeout(cfg.Server.RequestTimeout),
	).Register(router)

	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting fleetbook", "addr", cfg.Server.Addr, "store", cfg.Database.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.InfoContext(shutdownCtx, "shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// buildStore returns the record store and, for PostgreSQL, the transaction
// option that replaces the in-memory sharded lock.
func buildStore(ctx context.Context, cfg *config.Config, deps *dependencies, log *slog.Logger) (allocationservice.Store, allocationservice.Option, error) {
	switch cfg.Database.Store {
	case config.StorePostgres:
		db, err := openDB(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		deps.db = db
		if err := allocationstore.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		pg := allocationstore.NewPostgres(db)
		log.InfoContext(ctx, "using postgres record store")
		return pg, allocationservice.WithTx(newAllocationPostgresTx(db, pg, cfg.Allocation.TxTimeout)), nil
	default:
		mem := allocationstore.NewInMemory()
		err := mem.Seed(ctx,
			allocationstore.SeedEmployees(allocationstore.DefaultSeedSize),
			allocationstore.SeedVehicles(allocationstore.DefaultSeedSize),
		)
		if err != nil {
			return nil, nil, err
		}
		log.InfoContext(ctx, "using in-memory record store", "seeded", allocationstore.DefaultSeedSize)
		return mem, nil, nil
	}
}

// buildAuditSink prefers Kafka when brokers are configured.
func buildAuditSink(ctx context.Context, cfg *config.Config, deps *dependencies, log *slog.Logger) (audit.Store, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return auditmemory.NewInMemoryStore(), nil
	}
	sink, err := kafkasink.New(kafkasink.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.AuditTopic,
		ClientID: cfg.Kafka.ClientID,
	}, log)
	if err != nil {
		return nil, err
	}
	deps.kafka = sink
	if err := sink.Ping(ctx); err != nil {
		return nil, fmt.Errorf("kafka ping: %w", err)
	}
	if cfg.Kafka.CreateTopic {
		if err := sink.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplication); err != nil {
			return nil, err
		}
	}
	log.InfoContext(ctx, "publishing audit events to kafka", "topic", cfg.Kafka.AuditTopic)
	return sink, nil
}

func healthHandler(deps *dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		if deps.db != nil {
			if err := deps.db.PingContext(r.Context()); err != nil {
				status["database"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if deps.redis != nil {
			if err := deps.redis.Health(r.Context()); err != nil {
				status["redis"] = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		if code != http.StatusOK {
			status["status"] = "degraded"
		}
		httputil.WriteJSON(w, code, status)
	}
}
