package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/sports-bet-ledger/internal/shared/kafka"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// KafkaSink publica no tópico "ledger_notifications", chaveado por conta
// para manter a ordem por usuário dentro da partição.
type KafkaSink struct {
	Writer sharedkafka.MessageWriter
}

func NewKafkaSink(w *kafka.Writer) *KafkaSink { return &KafkaSink{Writer: w} }

func (s *KafkaSink) Publish(ctx context.Context, n events.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.AccountID), Value: b, Time: n.Ts})
}
