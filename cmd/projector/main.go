package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/contentpipe/search-projector/internal/index"
	"github.com/contentpipe/search-projector/internal/projection"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/health"
	"github.com/contentpipe/search-projector/pkg/kafka"
	"github.com/contentpipe/search-projector/pkg/logger"
	"github.com/contentpipe/search-projector/pkg/metrics"
	"github.com/contentpipe/search-projector/pkg/postgres"
	"github.com/contentpipe/search-projector/pkg/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search projector",
		"topic", cfg.Kafka.Topics.ContentEvents,
		"group", cfg.Kafka.ConsumerGroup,
		"stream_prefix", cfg.Projector.StreamPrefix,
	)

	m := metrics.New()
	checker := health.NewChecker()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()
	checker.Register("postgres", health.PingCheck(pg.DB.PingContext))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgStore := projection.NewPostgresStore(pg)
	if err := pgStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	var store projection.RecordStore = pgStore
	if rdb, err := redis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, running without record cache", "error", err)
	} else {
		defer rdb.Close()
		checker.Register("redis", health.PingCheck(rdb.Ping))
		store = projection.NewCachedStore(pgStore, rdb, cfg.Redis, m)
	}

	engine := index.NewEngine()
	driver := projection.NewDriver(store, engine, index.NewUUIDSource(), cfg.Projector, m)

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, checker)
	}

	var dlq *kafka.Producer
	if cfg.Kafka.Topics.DeadLetter != "" {
		dlq = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DeadLetter)
		defer dlq.Close()
	}

	consumer := kafka.NewBatchConsumer(cfg.Kafka, cfg.Kafka.Topics.ContentEvents,
		kafka.BatchConsumerOptions{
			MaxEvents:     cfg.Projector.BatchMaxEvents,
			MaxDelay:      cfg.Projector.BatchMaxDelay,
			MaxDeliveries: cfg.Projector.MaxDeliveries,
			DeadLetter:    dlq,
		},
		driver.HandleBatch(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("consumer error", "error", err)
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}

	slog.Info("search projector stopped")
}
