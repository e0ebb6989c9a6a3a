package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

var start = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ip(v int) *int { return &v }

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(dur time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(dur)
	c.mu.Unlock()
}

type fixture struct {
	store  repo.Store
	mem    *repo.Memory
	ledger *ledger.Ledger
	engine *Engine
	clock  *clock
}

func newFixture(t *testing.T, store repo.Store, mem *repo.Memory, opts ...Option) *fixture {
	t.Helper()
	c := &clock{t: start}
	l := ledger.New(store, zap.NewNop(), ledger.WithClock(c.now))
	e := New(store, l, zap.NewNop(), append([]Option{WithClock(c.now)}, opts...)...)
	f := &fixture{store: store, mem: mem, ledger: l, engine: e, clock: c}

	f.account(t, "owner", "0")
	f.event(t, "ev-1", start.Add(2*time.Hour))
	f.event(t, "ev-2", start.Add(3*time.Hour))
	return f
}

func newMemFixture(t *testing.T, opts ...Option) *fixture {
	mem := repo.NewMemory()
	return newFixture(t, mem, mem, opts...)
}

func (f *fixture) account(t *testing.T, id, funds string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.ledger.OpenAccount(ctx, id)
	require.NoError(t, err)
	if amt := d(funds); amt.IsPositive() {
		_, err = f.ledger.Deposit(ctx, id, amt, "seed-"+id)
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) event(t *testing.T, id string, at time.Time) {
	t.Helper()
	err := f.store.InTx(context.Background(), func(ctx context.Context, tx repo.Tx) error {
		return tx.InsertEvent(ctx, &model.Event{ID: id, HomeTeam: "H", AwayTeam: "A", ScheduledAt: at, State: model.EventScheduled, CreatedAt: start})
	})
	require.NoError(t, err)
}

func (f *fixture) finish(t *testing.T, id string, home, away int) {
	t.Helper()
	err := f.store.InTx(context.Background(), func(ctx context.Context, tx repo.Tx) error {
		ev, err := tx.EventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		at := f.clock.now()
		ev.State, ev.HomeScore, ev.AwayScore, ev.FinishedAt = model.EventFinished, &home, &away, &at
		return tx.UpdateEvent(ctx, ev)
	})
	require.NoError(t, err)
}

func (f *fixture) createPool(t *testing.T, max int, house, creator string) *model.Pool {
	t.Helper()
	p, err := f.engine.CreatePool(context.Background(), CreateRequest{
		Name:            "Rodada 12",
		OwnerAccountID:  "owner",
		EntryFee:        d("20.00"),
		MaxParticipants: max,
		Distribution:    model.Distribution{{Rank: 1, Percentage: d("70")}, {Rank: 2, Percentage: d("30")}},
		HouseCutPct:     d(house),
		CreatorCutPct:   d(creator),
		EventIDs:        []string{"ev-1", "ev-2"},
		OpenAt:          start.Add(-time.Hour),
		CloseAt:         start.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, model.PoolActive, p.State)
	return p
}

func TestFinalizeScenarioTenParticipants(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	p := f.createPool(t, 10, "10", "0")

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("acc-%d", i)
		f.account(t, id, "100.00")
		_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
		require.NoError(t, err)
		f.clock.advance(time.Second)

		// acc-0 acerta tudo, acc-1 acerta um, os demais erram
		picks := []PredictionInput{{EventID: "ev-1", Pick: "away"}, {EventID: "ev-2", Pick: "home"}}
		switch i {
		case 0:
			picks = []PredictionInput{{EventID: "ev-1", PredictedHome: ip(2), PredictedAway: ip(1)}, {EventID: "ev-2", Pick: "draw"}}
		case 1:
			picks[0].Pick = "home"
		}
		_, err = f.engine.SubmitPredictions(ctx, p.ID, id, picks)
		require.NoError(t, err)
	}

	got, err := f.engine.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.PoolTotal.Equal(d("200.00")))
	assert.Equal(t, 10, got.CurrentParticipants)

	f.clock.advance(time.Hour)
	res, err := f.engine.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	f.finish(t, "ev-1", 2, 1)
	f.finish(t, "ev-2", 1, 1)

	out, err := f.engine.Finalize(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, out.Split.Distributable.Equal(d("180")))
	assert.True(t, out.Split.House.Equal(d("20")))
	assert.True(t, out.Split.Creator.IsZero())

	assert.Equal(t, "acc-0", out.Standing[0].AccountID)
	assert.Equal(t, 2, out.Standing[0].Score)
	assert.Equal(t, 1, out.Standing[0].ExactHits)
	assert.Equal(t, "acc-1", out.Standing[1].AccountID)

	assert.True(t, f.balance(t, "acc-0").Equal(d("206.00"))) // 80 + 126
	assert.True(t, f.balance(t, "acc-1").Equal(d("134.00"))) // 80 + 54
	assert.True(t, f.balance(t, "acc-2").Equal(d("80.00")))

	// soma dos prêmios + casa + criador == poolTotal
	awarded := decimal.Zero
	for _, s := range out.Standing {
		awarded = awarded.Add(s.PrizeAwarded)
	}
	assert.True(t, awarded.Add(out.Split.House).Add(out.Split.Creator).Equal(d("200.00")))

	for i := 0; i < 10; i++ {
		require.NoError(t, f.ledger.Verify(ctx, fmt.Sprintf("acc-%d", i)))
	}

	board, err := f.engine.Leaderboard(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, board, 10)
	assert.Equal(t, 1, board[0].Rank)
	assert.False(t, board[0].Provisional)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	p := f.createPool(t, 5, "10", "5")
	for _, id := range []string{"a", "b"} {
		f.account(t, id, "20.00")
		_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
		require.NoError(t, err)
	}

	// ainda ACTIVE
	_, err := f.engine.Finalize(ctx, p.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	_, err = f.engine.ClosePool(ctx, p.ID)
	require.NoError(t, err)

	// eventos ainda não terminaram
	_, err = f.engine.Finalize(ctx, p.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	f.finish(t, "ev-1", 0, 0)
	f.finish(t, "ev-2", 3, 0)
	out, err := f.engine.Finalize(ctx, p.ID)
	require.NoError(t, err)
	// 40 total, criador 5% = 2.00, casa 10% = 4.00, distribuível 34
	assert.True(t, out.Split.Creator.Equal(d("2")))
	assert.True(t, f.balance(t, "owner").Equal(d("2.00")))

	balances := map[string]decimal.Decimal{"a": f.balance(t, "a"), "b": f.balance(t, "b"), "owner": f.balance(t, "owner")}

	_, err = f.engine.Finalize(ctx, p.ID)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyFinalized))
	res, err := f.engine.FinalizeEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)

	for id, b := range balances {
		assert.True(t, f.balance(t, id).Equal(b), id)
	}
}

func TestFinalizeEligibleSweep(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	p := f.createPool(t, 5, "10", "0")
	f.account(t, "a", "20.00")
	_, err := f.engine.JoinPool(ctx, p.ID, "a", d("20.00"))
	require.NoError(t, err)

	f.clock.advance(2 * time.Hour)
	_, err = f.engine.CloseExpired(ctx)
	require.NoError(t, err)

	res, err := f.engine.FinalizeEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	f.finish(t, "ev-1", 1, 0)
	f.finish(t, "ev-2", 1, 0)
	res, err = f.engine.FinalizeEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Scanned: 1, Processed: 1}, res)

	got, _ := f.engine.Get(ctx, p.ID)
	assert.Equal(t, model.PoolFinalized, got.State)
	// único participante leva 70% de 18; rank 2 sem participante fica com a casa
	assert.True(t, f.balance(t, "a").Equal(d("12.60")))
	assert.True(t, got.HouseAmount.Equal(d("7.40")))
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	const n = 10
	p := f.createPool(t, n-1, "10", "0")
	for i := 0; i < n; i++ {
		f.account(t, fmt.Sprintf("acc-%d", i), "20.00")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(fmt.Sprintf("acc-%d", i))
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrCapacityExceeded):
			full++
		}
	}
	assert.Equal(t, n-1, ok)
	assert.Equal(t, 1, full)

	got, _ := f.engine.Get(ctx, p.ID)
	assert.Equal(t, n-1, got.CurrentParticipants)
	assert.True(t, got.PoolTotal.Equal(d("180.00")))
}

func TestJoinValidation(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	p := f.createPool(t, 5, "10", "0")
	f.account(t, "a", "30.00")
	f.account(t, "poor", "5.00")

	_, err := f.engine.JoinPool(ctx, p.ID, "a", d("10.00"))
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = f.engine.JoinPool(ctx, p.ID, "a", d("20.00"))
	require.NoError(t, err)
	_, err = f.engine.JoinPool(ctx, p.ID, "a", d("20.00"))
	assert.True(t, errors.Is(err, apperr.ErrDuplicateRequest))

	_, err = f.engine.JoinPool(ctx, p.ID, "poor", d("20.00"))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))
	got, _ := f.engine.Get(ctx, p.ID)
	assert.Equal(t, 1, got.CurrentParticipants)

	_, err = f.engine.JoinPool(ctx, "missing", "a", d("20.00"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.engine.ClosePool(ctx, p.ID)
	require.NoError(t, err)
	f.account(t, "late", "20.00")
	_, err = f.engine.JoinPool(ctx, p.ID, "late", d("20.00"))
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestCreatePoolValidation(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	base := CreateRequest{
		Name: "x", OwnerAccountID: "owner", EntryFee: d("10"), MaxParticipants: 10,
		Distribution: model.Distribution{{Rank: 1, Percentage: d("100")}},
		HouseCutPct:  d("10"), CreatorCutPct: d("0"),
		EventIDs: []string{"ev-1"}, OpenAt: start.Add(time.Hour), CloseAt: start.Add(2 * time.Hour),
	}

	p, err := f.engine.CreatePool(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, model.PoolDraft, p.State)

	bad := base
	bad.Distribution = model.Distribution{{Rank: 1, Percentage: d("60")}, {Rank: 2, Percentage: d("30")}}
	_, err = f.engine.CreatePool(ctx, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad = base
	bad.HouseCutPct, bad.CreatorCutPct = d("60"), d("40")
	_, err = f.engine.CreatePool(ctx, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad = base
	bad.EventIDs = []string{"ev-1", "ev-1"}
	_, err = f.engine.CreatePool(ctx, bad)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	bad = base
	bad.EventIDs = []string{"ev-404"}
	_, err = f.engine.CreatePool(ctx, bad)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	// DRAFT -> ACTIVE pela varredura quando openAt chega
	res, err := f.engine.OpenDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	f.clock.advance(time.Hour)
	res, err = f.engine.OpenDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	got, _ := f.engine.Get(ctx, p.ID)
	assert.Equal(t, model.PoolActive, got.State)
}

func TestSubmitPredictionsRules(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	p := f.createPool(t, 5, "10", "0")
	f.account(t, "a", "20.00")

	_, err := f.engine.SubmitPredictions(ctx, p.ID, "a", []PredictionInput{{EventID: "ev-1", Pick: "home"}})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.engine.JoinPool(ctx, p.ID, "a", d("20.00"))
	require.NoError(t, err)

	for name, in := range map[string]PredictionInput{
		"foreign event":      {EventID: "ev-9", Pick: "home"},
		"bad pick":           {EventID: "ev-1", Pick: "win"},
		"contradicting pick": {EventID: "ev-1", Pick: "home", PredictedHome: ip(0), PredictedAway: ip(1)},
		"half score":         {EventID: "ev-1", PredictedHome: ip(1)},
	} {
		_, err := f.engine.SubmitPredictions(ctx, p.ID, "a", []PredictionInput{in})
		assert.Equal(t, apperr.Validation, apperr.KindOf(err), name)
	}

	preds, err := f.engine.SubmitPredictions(ctx, p.ID, "a", []PredictionInput{{EventID: "ev-1", PredictedHome: ip(0), PredictedAway: ip(1)}})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeAway, preds[0].Pick)

	// substituição do palpite
	_, err = f.engine.SubmitPredictions(ctx, p.ID, "a", []PredictionInput{{EventID: "ev-1", Pick: "draw"}})
	require.NoError(t, err)
	parts, _ := f.mem.ListParticipations(ctx, p.ID)
	stored, _ := f.mem.ListPredictions(ctx, parts[0].ID)
	require.Len(t, stored, 1)
	assert.Equal(t, model.OutcomeDraw, stored[0].Pick)

	// evento já começou
	f.clock.advance(150 * time.Minute)
	_, err = f.engine.SubmitPredictions(ctx, p.ID, "a", []PredictionInput{{EventID: "ev-1", Pick: "home"}})
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

// flakyStore falha o lock de uma conta específica para simular estorno com erro.
type flakyStore struct {
	*repo.Memory
	mu   sync.Mutex
	fail string
}

func (s *flakyStore) setFail(id string) {
	s.mu.Lock()
	s.fail = id
	s.mu.Unlock()
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	return s.Memory.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return fn(ctx, flakyTx{Tx: tx, fail: fail})
	})
}

type flakyTx struct {
	repo.Tx
	fail string
}

func (t flakyTx) AccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	if id == t.fail {
		return nil, errors.New("connection reset")
	}
	return t.Tx.AccountForUpdate(ctx, id)
}

func TestCancelPoolBestEffortRefunds(t *testing.T) {
	ctx := context.Background()
	mem := repo.NewMemory()
	store := &flakyStore{Memory: mem}
	f := newFixture(t, store, mem)
	p := f.createPool(t, 5, "10", "0")
	for _, id := range []string{"a", "b", "c"} {
		f.account(t, id, "20.00")
		_, err := f.engine.JoinPool(ctx, p.ID, id, d("20.00"))
		require.NoError(t, err)
	}

	store.setFail("b")
	outcomes, err := f.engine.CancelPool(ctx, p.ID, "event cancelled")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, 1, FailedRefunds(outcomes))
	assert.True(t, f.balance(t, "a").Equal(d("20.00")))
	assert.True(t, f.balance(t, "b").IsZero())
	assert.True(t, f.balance(t, "c").Equal(d("20.00")))

	got, _ := f.engine.Get(ctx, p.ID)
	assert.Equal(t, model.PoolCancelled, got.State)
	assert.True(t, got.PoolTotal.Equal(d("20.00")))

	_, err = f.engine.CancelPool(ctx, p.ID, "again")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	store.setFail("")
	outcomes, err = f.engine.RetryRefunds(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Refunded)
	assert.Equal(t, "b", outcomes[0].AccountID)
	assert.True(t, f.balance(t, "b").Equal(d("20.00")))

	got, _ = f.engine.Get(ctx, p.ID)
	assert.True(t, got.PoolTotal.IsZero())
	assert.Equal(t, 0, got.CurrentParticipants)

	outcomes, err = f.engine.RetryRefunds(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, outcomes)
}

func TestComputeSplitTruncatesToCents(t *testing.T) {
	p := &model.Pool{
		PoolTotal:     d("100.00"),
		HouseCutPct:   d("10"),
		CreatorCutPct: d("3.33"),
		Distribution:  model.Distribution{{Rank: 1, Percentage: d("33.33")}, {Rank: 2, Percentage: d("33.33")}, {Rank: 3, Percentage: d("33.34")}},
	}
	s := ComputeSplit(p, 3)
	assert.True(t, s.Creator.Equal(d("3.33")))
	total := s.Creator.Add(s.House)
	for _, v := range s.Prizes {
		assert.True(t, v.Equal(v.Truncate(2)))
		total = total.Add(v)
	}
	assert.True(t, total.Equal(d("100.00")))
	assert.True(t, s.House.GreaterThanOrEqual(d("10")))
}
