package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/internal/repo/repotest"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

type kindCounter struct {
	mu    sync.Mutex
	kinds map[string]int
}

func (c *kindCounter) Publish(_ context.Context, n events.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds[n.Kind]++
	return nil
}

func (c *kindCounter) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kinds[kind]
}

// Cada InTx aborta uma vez com 40001 e é repetido, como no Postgres.
func newConflictFixture(t *testing.T) (*fixture, *repotest.ConflictStore, *kindCounter) {
	t.Helper()
	mem := repo.NewMemory()
	store := repotest.NewConflictStore(mem)
	sink := &kindCounter{kinds: map[string]int{}}
	f := newFixture(t, store, mem, WithNotifier(notify.New(zap.NewNop(), sink)))
	return f, store, sink
}

func TestFinalizeRetriedTransactionReportsEachParticipantOnce(t *testing.T) {
	ctx := context.Background()
	f, store, sink := newConflictFixture(t)
	p := f.createPool(t, 5, "10", "0")

	for i, pick := range []string{"home", "draw", "away"} {
		id := fmt.Sprintf("acc-%d", i)
		f.account(t, id, "20.00")
		_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
		require.NoError(t, err)
		preds, err := f.engine.SubmitPredictions(ctx, p.ID, id, []PredictionInput{
			{EventID: "ev-1", Pick: pick},
			{EventID: "ev-2", Pick: pick},
		})
		require.NoError(t, err)
		assert.Len(t, preds, 2)
		f.clock.advance(time.Second)
	}

	_, err := f.engine.ClosePool(ctx, p.ID)
	require.NoError(t, err)
	f.finish(t, "ev-1", 1, 0)
	f.finish(t, "ev-2", 1, 1)

	before := store.Attempts()
	out, err := f.engine.Finalize(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, before+2, store.Attempts(), "finalize deve ter sido repetido")

	require.Len(t, out.Standing, 3)
	seen := map[string]bool{}
	for _, s := range out.Standing {
		assert.False(t, seen[s.AccountID], s.AccountID)
		seen[s.AccountID] = true
	}
	// 60 total, distribuível 54: 70% / 30%
	assert.True(t, f.balance(t, out.Standing[0].AccountID).Equal(d("37.80")))
	assert.True(t, f.balance(t, out.Standing[1].AccountID).Equal(d("16.20")))
	assert.Equal(t, 2, sink.count(events.KindPoolPrize))
	assert.Equal(t, 1, sink.count(events.KindPoolFinalized))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.ledger.Verify(ctx, fmt.Sprintf("acc-%d", i)))
	}
}

func TestCancelPoolRetriedRefundsCountOnce(t *testing.T) {
	ctx := context.Background()
	f, _, _ := newConflictFixture(t)
	p := f.createPool(t, 5, "10", "0")
	for _, id := range []string{"a", "b"} {
		f.account(t, id, "20.00")
		_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
		require.NoError(t, err)
	}

	outcomes, err := f.engine.CancelPool(ctx, p.ID, "fixture postponed")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Zero(t, FailedRefunds(outcomes))
	for _, id := range []string{"a", "b"} {
		assert.True(t, f.balance(t, id).Equal(d("20.00")), id)
		require.NoError(t, f.ledger.Verify(ctx, id))
	}

	got, err := f.engine.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.PoolTotal.IsZero())
	assert.Equal(t, 0, got.CurrentParticipants)
}
