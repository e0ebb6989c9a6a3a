package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// RedisSink faz broadcast via Redis Pub/Sub; o hub websocket de cada
// instância do ledger-service escuta o mesmo canal.
type RedisSink struct {
	r       *redis.Client
	channel string
}

func NewRedisSink(r *redis.Client, channel string) *RedisSink {
	return &RedisSink{r: r, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, n events.Notification) error {
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.r.Publish(ctx, s.channel, b).Err()
}
