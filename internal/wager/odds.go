package wager

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// OddsSource informa a odd vigente de uma seleção. ok=false quando não há
// cotação em cache; nesse caso a odd informada pelo apostador é aceita.
type OddsSource interface {
	CurrentOdds(ctx context.Context, eventID, market, selection string) (odds decimal.Decimal, ok bool, err error)
}

// RedisOdds lê o snapshot publicado pelo pipeline de odds.
type RedisOdds struct {
	Rdb redis.Cmdable
}

func NewRedisOdds(r redis.Cmdable) *RedisOdds { return &RedisOdds{Rdb: r} }

func oddsKey(eventID, market, selection string) string {
	return fmt.Sprintf("odds:%s:%s:%s", eventID, market, selection)
}

// Espera chave "odds:{eventID}:{market}:{selection}" => valor string com odd, ex: "1.85"
func (o *RedisOdds) CurrentOdds(ctx context.Context, eventID, market, selection string) (decimal.Decimal, bool, error) {
	val, err := o.Rdb.Get(ctx, oddsKey(eventID, market, selection)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	odds, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse cached odds %q: %w", val, err)
	}
	return odds, true, nil
}
