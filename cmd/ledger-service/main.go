package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	httpapi "github.com/radieske/sports-bet-ledger/internal/api/http"
	"github.com/radieske/sports-bet-ledger/internal/app"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/notify/ws"
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
		cfg.ServiceName = "ledger-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: fonte da verdade do ledger
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.Migrate(ctx, pg); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	store := repo.NewPostgres(pg)

	// Redis: cache de odds/preços e pub/sub do hub websocket
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka: notificações de domínio
	notifWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicNotifications)
	defer notifWriter.Close()

	collectors := metrics.NewCollectors(prometheus.DefaultRegisterer)
	notifier := notify.New(log.Named("notify"),
		notify.LogSink{Log: log.Named("notify")},
		notify.NewKafkaSink(notifWriter),
		notify.NewRedisSink(rdb, cfg.RedisPubSubChannel),
	)
	notifier.OnError = collectors.IncLabel(collectors.NotifyErrors)

	engines := app.Build(cfg, log, app.Deps{
		Store:    store,
		Redis:    rdb,
		Notifier: notifier,
		Metrics:  collectors,
	})

	// Hub websocket alimentado pelo canal Redis (cada instância recebe tudo)
	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log.Named("ws"), rdb, cfg.RedisPubSubChannel, hub)

	api := &httpapi.API{
		Log:     log.Named("http"),
		Ledger:  engines.Ledger,
		Wagers:  engines.Wagers,
		Pools:   engines.Pools,
		Events:  engines.Events,
		Funding: engines.Funding,
		Hub:     hub,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := store.Ping(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
