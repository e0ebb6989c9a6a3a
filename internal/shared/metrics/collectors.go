package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

// Collectors agrupa os contadores de liquidação, varreduras e conciliação.
// Os engines não conhecem Prometheus: os métodos abaixo devolvem os
// callbacks OnX que o main pendura em cada engine.
type Collectors struct {
	WagersPlaced   prometheus.Counter
	WagersSettled  *prometheus.CounterVec
	WagersFlagged  prometheus.Counter
	PoolJoins      prometheus.Counter
	PoolsFinalized prometheus.Counter
	RefundFailures prometheus.Counter
	CryptoApplied  *prometheus.CounterVec
	Conversions    prometheus.Counter
	EventsFinished prometheus.Counter
	SweepRuns      *prometheus.CounterVec
	SweepItems     *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec
	NotifyErrors   *prometheus.CounterVec
	Consumed       prometheus.Counter
	ConsumerErrors *prometheus.CounterVec
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		WagersPlaced:   prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_wagers_placed_total", Help: "apostas colocadas"}),
		WagersSettled:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_wagers_settled_total", Help: "apostas liquidadas por estado final"}, []string{"state"}),
		WagersFlagged:  prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_wagers_flagged_total", Help: "apostas sinalizadas para revisão"}),
		PoolJoins:      prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_pool_joins_total", Help: "inscrições em bolões"}),
		PoolsFinalized: prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_pools_finalized_total", Help: "bolões finalizados"}),
		RefundFailures: prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_pool_refund_failures_total", Help: "estornos de bolão que falharam"}),
		CryptoApplied:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_crypto_transactions_total", Help: "transações cripto encerradas"}, []string{"type", "status"}),
		Conversions:    prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_crypto_conversions_total", Help: "conversões cripto para fiat"}),
		EventsFinished: prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_events_finished_total", Help: "eventos encerrados"}),
		SweepRuns:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_sweep_runs_total", Help: "execuções de varredura"}, []string{"job", "result"}),
		SweepItems:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_sweep_items_total", Help: "itens por varredura"}, []string{"job", "outcome"}),
		SweepDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "ledger_sweep_duration_seconds", Help: "duração das varreduras", Buckets: prometheus.DefBuckets}, []string{"job"}),
		NotifyErrors:   prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_notification_errors_total", Help: "falhas de entrega por sink"}, []string{"sink"}),
		Consumed:       prometheus.NewCounter(prometheus.CounterOpts{Name: "ledger_confirmations_consumed_total", Help: "callbacks de confirmação consumidos"}),
		ConsumerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "ledger_confirmation_errors_total", Help: "erros do consumidor por fase"}, []string{"phase"}),
	}
	reg.MustRegister(
		c.WagersPlaced, c.WagersSettled, c.WagersFlagged,
		c.PoolJoins, c.PoolsFinalized, c.RefundFailures,
		c.CryptoApplied, c.Conversions, c.EventsFinished,
		c.SweepRuns, c.SweepItems, c.SweepDuration,
		c.NotifyErrors, c.Consumed, c.ConsumerErrors,
	)
	return c
}

func (c *Collectors) Inc(counter prometheus.Counter) func() { return counter.Inc }

func (c *Collectors) IncLabel(vec *prometheus.CounterVec) func(string) {
	return func(label string) { vec.WithLabelValues(label).Inc() }
}

func (c *Collectors) CryptoStatus(status model.CryptoTxStatus) func(txType string) {
	return func(txType string) { c.CryptoApplied.WithLabelValues(txType, string(status)).Inc() }
}

// ObserveSweep é o OnRun do scheduler.
func (c *Collectors) ObserveSweep(job string, res model.SweepResult, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.SweepRuns.WithLabelValues(job, result).Inc()
	c.SweepItems.WithLabelValues(job, "processed").Add(float64(res.Processed))
	c.SweepItems.WithLabelValues(job, "failed").Add(float64(res.Failed))
	c.SweepDuration.WithLabelValues(job).Observe(took.Seconds())
}
