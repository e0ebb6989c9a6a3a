package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/chainsim"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/shared/config"
	"github.com/radieske/sports-bet-ledger/internal/shared/db"
	"github.com/radieske/sports-bet-ledger/internal/shared/kafka"
	"github.com/radieske/sports-bet-ledger/internal/shared/logger"
	"github.com/radieske/sports-bet-ledger/internal/shared/metrics"
)

var emitted = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "chain_simulator_confirmations_emitted_total",
	Help: "Callbacks de confirmação publicados",
})

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "chain-simulator"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	prometheus.MustRegister(emitted)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// só leitura: a rede simulada enxerga as transações pendentes
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	store := repo.NewPostgres(pg)

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicChainConfirmations)
	defer writer.Close()

	sim := &chainsim.Simulator{
		Log:       log.Named("chain"),
		Store:     store,
		Writer:    writer,
		MaxStep:   4,
		FailRate:  0.02,
		OnEmitted: emitted.Inc,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, store.Ping)
	log.Info("chain simulator running",
		zap.String("publish", cfg.TopicChainConfirmations),
		zap.Duration("interval", cfg.SimulatorInterval),
		zap.String("metrics", metricsSrv.Addr),
	)

	sim.Run(ctx, cfg.SimulatorInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
