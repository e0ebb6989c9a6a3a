package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/app"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/shared/config"
	"github.com/radieske/sports-bet-ledger/internal/shared/db"
	"github.com/radieske/sports-bet-ledger/internal/shared/logger"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ledgerctl"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{
		cfg: cfg,
		log: log,
		open: func(ctx context.Context) (*app.Engines, func(), error) {
			pg, err := db.ConnectPostgres(cfg.PostgresDSN)
			if err != nil {
				return nil, nil, err
			}
			// CLI só registra as notificações no log
			n := notify.New(log, notify.LogSink{Log: log})
			en := app.Build(cfg, log, app.Deps{Store: repo.NewPostgres(pg), Notifier: n})
			return en, func() { _ = pg.Close() }, nil
		},
		migrate: func(ctx context.Context) error {
			pg, err := db.ConnectPostgres(cfg.PostgresDSN)
			if err != nil {
				return err
			}
			defer pg.Close()
			return db.Migrate(ctx, pg)
		},
	}

	if err := newRootCmd(e).ExecuteContext(ctx); err != nil {
		log.Debug("command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
