package app

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/event"
	"github.com/radieske/sports-bet-ledger/internal/funding"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/pool"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/scheduler"
	"github.com/radieske/sports-bet-ledger/internal/shared/config"
	"github.com/radieske/sports-bet-ledger/internal/shared/metrics"
	"github.com/radieske/sports-bet-ledger/internal/wager"
)

// Deps são as dependências de infraestrutura já conectadas pelo main.
// Redis, Notifier e Metrics são opcionais.
type Deps struct {
	Store    repo.Store
	Redis    *redis.Client
	Notifier *notify.Notifier
	Metrics  *metrics.Collectors
	Chain    funding.ChainAdapter // default: funding.Simulated
}

// Engines agrupa os engines de domínio montados sobre o mesmo Store.
type Engines struct {
	Ledger  *ledger.Ledger
	Wagers  *wager.Engine
	Pools   *pool.Engine
	Events  *event.Engine
	Funding *funding.Reconciler
}

func Build(cfg config.Config, log *zap.Logger, d Deps) *Engines {
	chain := d.Chain
	if chain == nil {
		chain = funding.Simulated{}
	}

	l := ledger.New(d.Store, log.Named("ledger"),
		ledger.WithNotifier(d.Notifier),
		ledger.WithWithdrawalFee(cfg.FiatWithdrawalFee))

	wagerOpts := []wager.Option{wager.WithNotifier(d.Notifier)}
	if d.Redis != nil && cfg.CheckOddsCache {
		wagerOpts = append(wagerOpts, wager.WithOdds(wager.NewRedisOdds(d.Redis)))
	}
	w := wager.New(d.Store, l, log.Named("wager"), wager.Limits{
		MinStake:    cfg.MinStake,
		MaxStake:    cfg.MaxStake,
		DailyLimit:  cfg.DailyStakeLimit,
		Cutoff:      cfg.BettingCutoff,
		ReviewGrace: cfg.ReviewGrace,
	}, wagerOpts...)

	p := pool.New(d.Store, l, log.Named("pool"),
		pool.WithNotifier(d.Notifier),
		pool.WithExactScoreBonus(cfg.ExactScoreBonus))

	eventOpts := []event.Option{}
	if cfg.SportsDataURL != "" {
		eventOpts = append(eventOpts, event.WithLookup(event.NewHTTPLookup(cfg.SportsDataURL, cfg.SportsDataTimeout, cfg.SportsDataRPS)))
	}
	ev := event.New(d.Store, log.Named("event"), eventOpts...)

	var oracle funding.PriceOracle = funding.StaticPrices{}
	if d.Redis != nil {
		oracle = funding.NewRedisPrices(d.Redis)
	}
	f := funding.NewReconciler(d.Store, l, chain,
		funding.NewGuardedOracle(oracle, cfg.PriceTimeout),
		log.Named("funding"),
		funding.WithNotifier(d.Notifier),
		funding.WithFees(cfg.CryptoWithdrawalFeePct, cfg.ConversionFeePct))

	e := &Engines{Ledger: l, Wagers: w, Pools: p, Events: ev, Funding: f}
	if d.Metrics != nil {
		e.instrument(d.Metrics)
	}
	return e
}

func (e *Engines) instrument(m *metrics.Collectors) {
	e.Wagers.OnPlaced = m.Inc(m.WagersPlaced)
	e.Wagers.OnSettled = m.IncLabel(m.WagersSettled)
	e.Wagers.OnFlagged = m.Inc(m.WagersFlagged)
	e.Pools.OnJoined = m.Inc(m.PoolJoins)
	e.Pools.OnFinalized = m.Inc(m.PoolsFinalized)
	e.Pools.OnRefundFailed = m.Inc(m.RefundFailures)
	e.Events.OnFinished = m.Inc(m.EventsFinished)
	e.Funding.OnConfirmed = m.CryptoStatus(model.CryptoConfirmed)
	e.Funding.OnFailed = m.CryptoStatus(model.CryptoFailed)
	e.Funding.OnConverted = m.Inc(m.Conversions)
}

// Sweeps expõe as varreduras periódicas para o scheduler.
func (e *Engines) Sweeps() scheduler.Sweeps {
	return scheduler.Sweeps{
		WagerExpiredPending: e.Wagers.ProcessExpiredPending,
		PoolOpenDue:         e.Pools.OpenDue,
		PoolCloseExpired:    e.Pools.CloseExpired,
		PoolFinalize:        e.Pools.FinalizeEligible,
		EventCloseWindows:   e.Events.CloseBettingWindows,
	}
}

// Jobs monta os jobs do scheduler com os intervalos da config e os
// overrides do YAML, se houver.
func (e *Engines) Jobs(cfg config.Config) ([]scheduler.Job, error) {
	jobs := scheduler.DefaultJobs(e.Sweeps(), scheduler.Intervals{
		Wager:  cfg.WagerSweepInterval,
		Pool:   cfg.PoolSweepInterval,
		Window: cfg.WindowSweepInterval,
	})
	ov, err := scheduler.LoadOverrides(cfg.SchedulerConfigPath)
	if err != nil {
		return nil, err
	}
	return ov.Apply(jobs)
}
