package funding

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

type dlqRecorder struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *dlqRecorder) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func confirmation(t *testing.T, ev events.ChainConfirmation) kafka.Message {
	t.Helper()
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(ev.TxHash), Value: b}
}

func TestConsumerAppliesConfirmations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dep, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d("0.2"), btcFrom)
	require.NoError(t, err)

	dlq := &dlqRecorder{}
	applied := 0
	c := &ConfirmationConsumer{Log: zap.NewNop(), DLQ: dlq, Confirmer: f.rec, OnApplied: func() { applied++ }}

	for n := 1; n <= 4; n++ {
		c.Handle(ctx, confirmation(t, events.ChainConfirmation{TxHash: dep.TxHash, Asset: "BTC", Confirmations: n}))
	}
	assert.Equal(t, 4, applied)
	assert.Empty(t, dlq.msgs)
	assert.True(t, f.wallet(t, "BTC").Balance.Equal(d("0.2")))
}

func TestConsumerFailedCallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dep, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d("0.2"), btcFrom)
	require.NoError(t, err)

	c := &ConfirmationConsumer{Log: zap.NewNop(), Confirmer: f.rec}
	c.Handle(ctx, confirmation(t, events.ChainConfirmation{TxHash: dep.TxHash, Failed: true, Reason: "orphaned"}))

	got, err := f.rec.Transaction(ctx, dep.TxHash)
	require.NoError(t, err)
	assert.Equal(t, model.CryptoFailed, got.Status)
	assert.Equal(t, "orphaned", got.Notes)
}

func TestConsumerDeadLettersPoisonMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dlq := &dlqRecorder{}
	var phases []string
	c := &ConfirmationConsumer{
		Log: zap.NewNop(), DLQ: dlq, Confirmer: f.rec, Retries: 3,
		OnError: func(p string) { phases = append(phases, p) },
	}

	c.Handle(ctx, kafka.Message{Value: []byte("{not json")})
	c.Handle(ctx, kafka.Message{Value: []byte(`{"confirmations":3}`)})
	c.Handle(ctx, confirmation(t, events.ChainConfirmation{TxHash: "unknown", Confirmations: 3}))

	require.Len(t, dlq.msgs, 3)
	assert.Equal(t, []string{"decode", "decode", string(apperr.NotFound)}, phases)
}

type flakyConfirmer struct {
	fails int
	calls int
}

func (f *flakyConfirmer) Confirm(context.Context, string, int) (*model.CryptoTransaction, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, apperr.WrapInternal("test", errors.New("deadlock detected"))
	}
	return &model.CryptoTransaction{}, nil
}

func (f *flakyConfirmer) Fail(context.Context, string, string) (*model.CryptoTransaction, error) {
	return nil, errors.New("unexpected")
}

func TestConsumerRetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	dlq := &dlqRecorder{}
	fc := &flakyConfirmer{fails: 2}
	c := &ConfirmationConsumer{Log: zap.NewNop(), DLQ: dlq, Confirmer: fc, Retries: 3}

	c.Handle(ctx, confirmation(t, events.ChainConfirmation{TxHash: "h1", Confirmations: 3}))
	assert.Equal(t, 3, fc.calls)
	assert.Empty(t, dlq.msgs)

	fc = &flakyConfirmer{fails: 10}
	c.Confirmer = fc
	c.Handle(ctx, confirmation(t, events.ChainConfirmation{TxHash: "h2", Confirmations: 3}))
	assert.Equal(t, 4, fc.calls)
	assert.Len(t, dlq.msgs, 1)
}
