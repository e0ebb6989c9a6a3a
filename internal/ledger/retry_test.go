package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/repo/repotest"
)

func TestDepositAndWithdrawSurviveRetriedTransaction(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.InfoLevel)
	store := repotest.NewConflictStore(repo.NewMemory())
	l := New(store, zap.New(core))
	_, err := l.OpenAccount(ctx, "acc-1")
	require.NoError(t, err)

	before := store.Attempts()
	dep, err := l.Deposit(ctx, "acc-1", d("100.00"), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, before+2, store.Attempts())
	assert.True(t, dep.BalanceAfter.Equal(d("100.00")))

	wd, err := l.Withdraw(ctx, "acc-1", d("30.00"), "wd-1")
	require.NoError(t, err)
	assert.True(t, wd.BalanceAfter.Equal(d("70.00")))

	assert.Zero(t, logs.FilterMessage("deposit replay ignored").Len())
	assert.Equal(t, 1, logs.FilterMessage("deposit").Len())

	// a mesma referência depois do commit é replay de verdade
	again, err := l.Deposit(ctx, "acc-1", d("100.00"), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, dep.ID, again.ID)
	assert.Equal(t, 1, logs.FilterMessage("deposit replay ignored").Len())

	bal, err := l.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("70.00")))
	require.NoError(t, l.Verify(ctx, "acc-1"))
}
