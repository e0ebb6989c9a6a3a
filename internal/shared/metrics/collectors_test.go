package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollectorsCallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors(reg)

	c.Inc(c.WagersPlaced)()
	c.Inc(c.WagersPlaced)()
	c.IncLabel(c.WagersSettled)("WON")
	c.CryptoStatus(model.CryptoConfirmed)("DEPOSIT")
	c.ObserveSweep("pool-finalize-eligible", model.SweepResult{Scanned: 3, Processed: 2, Failed: 1}, time.Second, nil)
	c.ObserveSweep("pool-finalize-eligible", model.SweepResult{}, time.Millisecond, errors.New("db down"))

	assert.Equal(t, 2.0, counterValue(t, reg, "ledger_wagers_placed_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "ledger_wagers_settled_total", map[string]string{"state": "WON"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ledger_crypto_transactions_total", map[string]string{"type": "DEPOSIT", "status": "CONFIRMED"}))
	assert.Equal(t, 2.0, counterValue(t, reg, "ledger_sweep_items_total", map[string]string{"job": "pool-finalize-eligible", "outcome": "processed"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "ledger_sweep_runs_total", map[string]string{"job": "pool-finalize-eligible", "result": "error"}))
}
