package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/app"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/scheduler"
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
		cfg.ServiceName = "settlement-scheduler"
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

	// Redis aqui só publica notificações; o hub fica no ledger-service
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	notifWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicNotifications)
	defer notifWriter.Close()

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	notifier := notify.New(log.Named("notify"),
		notify.NewKafkaSink(notifWriter),
		notify.NewRedisSink(rdb, cfg.RedisPubSubChannel),
	)
	notifier.OnError = collectors.IncLabel(collectors.NotifyErrors)

	engines := app.Build(cfg, log, app.Deps{Store: store, Redis: rdb, Notifier: notifier, Metrics: collectors})
	jobs, err := engines.Jobs(cfg)
	if err != nil {
		log.Fatal("scheduler config", zap.Error(err))
	}

	sched := scheduler.New(log.Named("scheduler"), jobs...)
	sched.OnRun = collectors.ObserveSweep

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, store.Ping)
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	// bloqueia até SIGINT/SIGTERM e aguarda as execuções em andamento
	sched.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
