package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/app"
	"github.com/radieske/sports-bet-ledger/internal/funding"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/shared/cache"
	"github.com/radieske/sports-bet-ledger/internal/shared/config"
	"github.com/radieske/sports-bet-ledger/internal/shared/db"
	"github.com/radieske/sports-bet-ledger/internal/shared/kafka"
	"github.com/radieske/sports-bet-ledger/internal/shared/logger"
	"github.com/radieske/sports-bet-ledger/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "funding-confirmation-worker"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	store := repo.NewPostgres(pg)

	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka consumer: callbacks de confirmação da rede
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicChainConfirmations, "funding-confirmation")
	defer reader.Close()

	var dlq *kafka.Writer
	if cfg.TopicChainConfirmationsDLQ != "" {
		dlq = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChainConfirmationsDLQ)
		defer dlq.Close()
	}

	notifWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicNotifications)
	defer notifWriter.Close()

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	notifier := notify.New(log.Named("notify"),
		notify.NewKafkaSink(notifWriter),
		notify.NewRedisSink(rdb, cfg.RedisPubSubChannel),
	)
	notifier.OnError = collectors.IncLabel(collectors.NotifyErrors)

	engines := app.Build(cfg, log, app.Deps{Store: store, Redis: rdb, Notifier: notifier, Metrics: collectors})

	consumer := &funding.ConfirmationConsumer{
		Log:        log.Named("consumer"),
		Reader:     reader,
		Confirmer:  engines.Funding,
		Retries:    3,
		Backoff:    300 * time.Millisecond,
		OnConsumed: collectors.Inc(collectors.Consumed),
		OnError:    collectors.IncLabel(collectors.ConsumerErrors),
	}
	if dlq != nil {
		consumer.DLQ = dlq
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, store.Ping)
	log.Info("funding-confirmation-worker started",
		zap.String("consume", cfg.TopicChainConfirmations),
		zap.String("dlq", cfg.TopicChainConfirmationsDLQ),
		zap.String("metrics", metricsSrv.Addr),
	)

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
