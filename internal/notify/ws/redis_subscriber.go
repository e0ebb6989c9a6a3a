package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// StartRedisSubscriber assina o canal de broadcast e repassa cada
// notificação ao Hub local. Cada instância do ledger-service assina o mesmo
// canal, então qualquer instância entrega ao cliente conectado nela.
func StartRedisSubscriber(ctx context.Context, log *zap.Logger, r *redis.Client, channel string, hub *Hub) {
	sub := r.Subscribe(ctx, channel)
	go func() {
		defer sub.Close()
		relay(ctx, log, sub.Channel(), hub)
	}()
}

// relay consome até o contexto terminar ou o canal fechar.
func relay(ctx context.Context, log *zap.Logger, ch <-chan *redis.Message, hub *Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			var n events.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				log.Warn("discarding malformed notification",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			hub.Broadcast(n)
		}
	}
}
