package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// Sink entrega uma notificação a um canal (log, Kafka, Redis...).
type Sink interface {
	Publish(ctx context.Context, n events.Notification) error
}

// Notifier faz fan-out para os sinks em modo fire-and-forget: falhas são
// logadas e nunca voltam para quem chamou. Um *Notifier nil é válido e
// descarta tudo.
type Notifier struct {
	log     *zap.Logger
	sinks   []Sink
	timeout time.Duration

	OnError func(sink string) // métricas
}

func New(log *zap.Logger, sinks ...Sink) *Notifier {
	return &Notifier{log: log, sinks: sinks, timeout: 2 * time.Second}
}

// Notify é chamado só depois do commit da operação financeira.
func (n *Notifier) Notify(ctx context.Context, accountID, kind string, payload any) {
	if n == nil || len(n.sinks) == 0 {
		return
	}

	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			n.log.Warn("notification marshal failed", zap.String("kind", kind), zap.Error(err))
			return
		}
		raw = b
	}
	msg := events.Notification{AccountID: accountID, Kind: kind, Payload: raw, Ts: time.Now().UTC()}

	// desacopla do cancelamento da requisição que originou a notificação
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	for _, s := range n.sinks {
		if err := s.Publish(ctx, msg); err != nil {
			name := fmt.Sprintf("%T", s)
			n.log.Warn("notification delivery failed",
				zap.String("sink", name),
				zap.String("accountId", accountID),
				zap.String("kind", kind),
				zap.Error(err))
			if n.OnError != nil {
				n.OnError(name)
			}
		}
	}
}

// LogSink registra a notificação no logger estruturado.
type LogSink struct{ Log *zap.Logger }

func (s LogSink) Publish(_ context.Context, n events.Notification) error {
	s.Log.Info("notification",
		zap.String("accountId", n.AccountID),
		zap.String("kind", n.Kind),
		zap.ByteString("payload", n.Payload))
	return nil
}
