package funding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/repo/repotest"
)

func newConflictReconciler(t *testing.T) (*Reconciler, *repotest.ConflictStore) {
	t.Helper()
	store := repotest.NewConflictStore(repo.NewMemory())
	l := ledger.New(store, zap.NewNop(), ledger.WithClock(func() time.Time { return now }))
	_, err := l.OpenAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	return newReconciler(store, l), store
}

func TestConfirmRetriedTransactionAppliesOnce(t *testing.T) {
	ctx := context.Background()
	rec, store := newConflictReconciler(t)
	confirmed := map[string]int{}
	rec.OnConfirmed = func(txType string) { confirmed[txType]++ }

	dep, err := rec.CreateDeposit(ctx, "acc-1", "BTC", d("0.5"), btcFrom)
	require.NoError(t, err)

	before := store.Attempts()
	got, err := rec.ConfirmDeposit(ctx, dep.TxHash, 3)
	require.NoError(t, err)
	assert.Equal(t, before+2, store.Attempts())
	assert.Equal(t, model.CryptoConfirmed, got.Status)
	assert.Equal(t, 1, confirmed[string(model.CryptoDeposit)])

	w, err := rec.Wallet(ctx, "acc-1", "BTC")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(d("0.5")), w.Balance.String())
	assert.True(t, w.PendingDeposits.IsZero())

	// já confirmada: nada é reaplicado
	_, err = rec.ConfirmDeposit(ctx, dep.TxHash, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed[string(model.CryptoDeposit)])
}

func TestFailRetriedTransactionReleasesOnce(t *testing.T) {
	ctx := context.Background()
	rec, _ := newConflictReconciler(t)
	failed := 0
	rec.OnFailed = func(string) { failed++ }

	dep, err := rec.CreateDeposit(ctx, "acc-1", "BTC", d("0.5"), btcFrom)
	require.NoError(t, err)

	got, err := rec.Fail(ctx, dep.TxHash, "double spend")
	require.NoError(t, err)
	assert.Equal(t, model.CryptoFailed, got.Status)
	assert.Equal(t, "double spend", got.Notes)
	assert.Equal(t, 1, failed)

	w, err := rec.Wallet(ctx, "acc-1", "BTC")
	require.NoError(t, err)
	assert.True(t, w.PendingDeposits.IsZero(), w.PendingDeposits.String())
	assert.True(t, w.Balance.IsZero())

	_, err = rec.Fail(ctx, dep.TxHash, "again")
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}
