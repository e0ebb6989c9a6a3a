package funding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	sharedkafka "github.com/radieske/sports-bet-ledger/internal/shared/kafka"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// Confirmer é o lado do Reconciler usado pelo consumidor.
type Confirmer interface {
	Confirm(ctx context.Context, txHash string, confirmations int) (*model.CryptoTransaction, error)
	Fail(ctx context.Context, txHash, reason string) (*model.CryptoTransaction, error)
}

// ConfirmationConsumer aplica os callbacks de chain_confirmations. Erros
// transitórios são tentados de novo; mensagens inválidas ou recusadas pelo
// Reconciler vão para a DLQ.
type ConfirmationConsumer struct {
	Log       *zap.Logger
	Reader    sharedkafka.MessageReader
	DLQ       sharedkafka.MessageWriter // opcional
	Confirmer Confirmer
	Retries   int
	Backoff   time.Duration

	OnConsumed func()       // métricas
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por fase
}

func (c *ConfirmationConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if c.OnConsumed != nil {
			c.OnConsumed()
		}
		c.Handle(ctx, m)
	}
}

// Handle processa uma mensagem; exposto para testes e reprocessamento.
func (c *ConfirmationConsumer) Handle(ctx context.Context, m kafka.Message) {
	var ev events.ChainConfirmation
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.TxHash == "" {
		if err == nil {
			err = errors.New("missing tx_hash")
		}
		c.Log.Warn("invalid confirmation message", zap.Error(err))
		c.fail("decode")
		c.deadLetter(ctx, m)
		return
	}

	err := c.apply(ctx, ev)
	for i := 0; err != nil && transient(err) && i < c.Retries; i++ {
		time.Sleep(c.Backoff * time.Duration(i+1))
		err = c.apply(ctx, ev)
	}
	if err != nil {
		c.Log.Error("confirmation rejected",
			zap.String("txHash", ev.TxHash),
			zap.Int("confirmations", ev.Confirmations),
			zap.Bool("failed", ev.Failed),
			zap.Error(err))
		c.fail(string(apperr.KindOf(err)))
		c.deadLetter(ctx, m)
		return
	}
	if c.OnApplied != nil {
		c.OnApplied()
	}
}

func (c *ConfirmationConsumer) apply(ctx context.Context, ev events.ChainConfirmation) error {
	if ev.Failed {
		_, err := c.Confirmer.Fail(ctx, ev.TxHash, ev.Reason)
		return err
	}
	_, err := c.Confirmer.Confirm(ctx, ev.TxHash, ev.Confirmations)
	return err
}

func transient(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.Internal, apperr.ExternalUnavailable:
		return true
	}
	return false
}

func (c *ConfirmationConsumer) deadLetter(ctx context.Context, m kafka.Message) {
	if c.DLQ == nil {
		return
	}
	err := c.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()})
	if err != nil {
		c.Log.Error("dlq write failed", zap.ByteString("key", m.Key), zap.Error(err))
		c.fail("dlq")
	}
}

func (c *ConfirmationConsumer) fail(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}
