package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

func counting(n *int32, res model.SweepResult) SweepFunc {
	return func(context.Context) (model.SweepResult, error) {
		atomic.AddInt32(n, 1)
		return res, nil
	}
}

func TestRunOnceAndRunAll(t *testing.T) {
	ctx := context.Background()
	var a, b int32
	s := New(zap.NewNop(),
		Job{Name: "a", Interval: time.Hour, Run: counting(&a, model.SweepResult{Scanned: 2, Processed: 2})},
		Job{Name: "b", Run: func(context.Context) (model.SweepResult, error) {
			atomic.AddInt32(&b, 1)
			return model.SweepResult{Scanned: 1, Failed: 1}, errors.New("partial")
		}},
	)
	assert.Equal(t, []string{"a", "b"}, s.Jobs())

	res, err := s.RunOnce(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)

	_, err = s.RunOnce(ctx, "missing")
	assert.Error(t, err)

	all := s.RunAll(ctx)
	assert.Equal(t, 1, all["b"].Failed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&a))
	assert.Equal(t, int32(1), atomic.LoadInt32(&b))
}

func TestRunRecoversPanic(t *testing.T) {
	var seen error
	s := New(zap.NewNop(), Job{Name: "boom", Run: func(context.Context) (model.SweepResult, error) {
		panic("nil map")
	}})
	s.OnRun = func(_ string, _ model.SweepResult, _ time.Duration, err error) { seen = err }

	_, err := s.RunOnce(context.Background(), "boom")
	assert.Error(t, err)
	assert.Equal(t, err, seen)
}

func TestStartAllowsOverlappingRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var running, peak int32
	release := make(chan struct{})
	var once sync.Once

	slow := func(ctx context.Context) (model.SweepResult, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if n >= 2 {
			once.Do(func() { close(release) })
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return model.SweepResult{}, nil
	}

	s := New(zap.NewNop(), Job{Name: "slow", Interval: 5 * time.Millisecond, Run: slow})
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	select {
	case <-release:
	case <-time.After(2 * time.Second):
		t.Fatal("runs never overlapped")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestOverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jobs:
  pool-finalize-eligible:
    interval: 2m
  wager-expired-pending:
    enabled: false
`), 0o600))

	o, err := LoadOverrides(path)
	require.NoError(t, err)

	var n int32
	jobs := DefaultJobs(Sweeps{
		WagerExpiredPending: counting(&n, model.SweepResult{}),
		PoolFinalize:        counting(&n, model.SweepResult{}),
		PoolCloseExpired:    counting(&n, model.SweepResult{}),
	}, Intervals{Wager: 30 * time.Minute, Pool: 5 * time.Minute, Window: time.Minute})
	require.Len(t, jobs, 3)

	jobs, err = o.Apply(jobs)
	require.NoError(t, err)
	byName := map[string]Job{}
	for _, j := range jobs {
		byName[j.Name] = j
	}
	assert.Equal(t, time.Duration(0), byName[JobWagerExpiredPending].Interval)
	assert.Equal(t, 2*time.Minute, byName[JobPoolFinalize].Interval)
	assert.Equal(t, 5*time.Minute, byName[JobPoolCloseExpired].Interval)
}

func TestOverridesRejectUnknownJobAndBadInterval(t *testing.T) {
	jobs := []Job{{Name: JobPoolOpenDue, Interval: time.Minute}}

	_, err := Overrides{Jobs: map[string]JobOverride{"nope": {Interval: "1m"}}}.Apply(jobs)
	assert.Error(t, err)
	_, err = Overrides{Jobs: map[string]JobOverride{JobPoolOpenDue: {Interval: "soon"}}}.Apply(jobs)
	assert.Error(t, err)

	o, err := LoadOverrides("")
	require.NoError(t, err)
	out, err := o.Apply(jobs)
	require.NoError(t, err)
	assert.Equal(t, jobs, out)
}
