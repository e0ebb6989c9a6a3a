package event

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func newEngine(opts ...Option) (*Engine, *repo.Memory) {
	store := repo.NewMemory()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(store, zap.NewNop(), opts...), store
}

func TestCreateEventValidation(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine()

	cases := []struct {
		name string
		req  CreateRequest
	}{
		{"missing home", CreateRequest{AwayTeam: "B", ScheduledAt: now}},
		{"missing away", CreateRequest{HomeTeam: "A", ScheduledAt: now}},
		{"same team", CreateRequest{HomeTeam: "Santos", AwayTeam: "santos", ScheduledAt: now}},
		{"no date", CreateRequest{HomeTeam: "A", AwayTeam: "B"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.CreateEvent(ctx, tc.req)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}

	ev, err := e.CreateEvent(ctx, CreateRequest{ExternalID: "ext-1", HomeTeam: " Palmeiras ", AwayTeam: "Flamengo", ScheduledAt: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "Palmeiras", ev.HomeTeam)
	assert.Equal(t, model.EventScheduled, ev.State)

	_, err = e.CreateEvent(ctx, CreateRequest{ExternalID: "ext-1", HomeTeam: "X", AwayTeam: "Y", ScheduledAt: now})
	assert.True(t, errors.Is(err, apperr.ErrDuplicateRequest))
}

func TestFinishEventOnlyOnce(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine()
	finished := 0
	e.OnFinished = func() { finished++ }

	ev, err := e.CreateEvent(ctx, CreateRequest{HomeTeam: "A", AwayTeam: "B", ScheduledAt: now})
	require.NoError(t, err)

	_, err = e.FinishEvent(ctx, ev.ID, -1, 0)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	got, err := e.FinishEvent(ctx, ev.ID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, model.EventFinished, got.State)
	assert.Equal(t, model.OutcomeDraw, got.Outcome())
	require.NotNil(t, got.FinishedAt)

	_, err = e.FinishEvent(ctx, ev.ID, 3, 0)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyFinalized))
	_, err = e.StartEvent(ctx, ev.ID)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))

	stored, err := e.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *stored.HomeScore)
	assert.Equal(t, 1, finished)

	_, err = e.FinishEvent(ctx, "missing", 1, 0)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCloseBettingWindows(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine()

	past, err := e.CreateEvent(ctx, CreateRequest{HomeTeam: "A", AwayTeam: "B", ScheduledAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = e.CreateEvent(ctx, CreateRequest{HomeTeam: "C", AwayTeam: "D", ScheduledAt: now.Add(time.Hour)})
	require.NoError(t, err)

	res, err := e.CloseBettingWindows(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SweepResult{Scanned: 1, Processed: 1}, res)

	got, err := e.Get(ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EventLive, got.State)

	res, err = e.CloseBettingWindows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)

	live, err := e.List(ctx, model.EventLive)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestImportEventFromProvider(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/events/m-100":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"m-100","home_team":"Grêmio","away_team":"Inter","scheduled_at":"2026-10-19T19:00:00Z","status":"scheduled"}`))
		case "/events/m-200":
			_, _ = w.Write([]byte(`{"home_team":"Bahia","away_team":"Vitória","scheduled_at":"2026-10-17T19:00:00Z","status":"finished","home_score":1,"away_score":0}`))
		case "/events/m-500":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e, _ := newEngine(WithLookup(NewHTTPLookup(srv.URL, time.Second, 50)))

	ev, err := e.ImportEvent(ctx, "m-100")
	require.NoError(t, err)
	assert.Equal(t, "m-100", ev.ExternalID)
	assert.Equal(t, "Grêmio", ev.HomeTeam)
	assert.Equal(t, model.EventScheduled, ev.State)
	assert.True(t, ev.ScheduledAt.Equal(time.Date(2026, 10, 19, 19, 0, 0, 0, time.UTC)))

	ev, err = e.ImportEvent(ctx, "m-200")
	require.NoError(t, err)
	assert.Equal(t, model.EventFinished, ev.State)
	assert.Equal(t, model.OutcomeHome, ev.Outcome())

	_, err = e.ImportEvent(ctx, "m-100")
	assert.True(t, errors.Is(err, apperr.ErrDuplicateRequest))

	_, err = e.ImportEvent(ctx, "m-404")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = e.ImportEvent(ctx, "m-500")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestHTTPLookupCircuitBreaker(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL, time.Second, 100)
	for i := 0; i < 7; i++ {
		_, err := l.FindEvent(context.Background(), "x")
		assert.Error(t, err)
	}
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestHTTPLookupNotFoundKeepsCircuitClosed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	l := NewHTTPLookup(srv.URL, time.Second, 100)
	for i := 0; i < 7; i++ {
		_, err := l.FindEvent(context.Background(), "x")
		assert.ErrorIs(t, err, ErrUnknownEvent)
	}
	assert.Equal(t, int32(7), atomic.LoadInt32(&hits))
}
