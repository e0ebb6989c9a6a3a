package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
)

// PriceOracle informa o preço spot em USD. Falha ou ausência de preço
// bloqueia apenas novas conversões.
type PriceOracle interface {
	PriceOf(ctx context.Context, asset string) (decimal.Decimal, error)
}

var ErrNoPrice = errors.New("price unavailable")

// StaticPrices é usado em ambiente local e nos testes.
type StaticPrices map[string]decimal.Decimal

func (s StaticPrices) PriceOf(_ context.Context, asset string) (decimal.Decimal, error) {
	p, ok := s[strings.ToUpper(asset)]
	if !ok || !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	return p, nil
}

// RedisPrices lê price:{ASSET}, publicado pelo feed de cotações.
type RedisPrices struct {
	Rdb redis.Cmdable
}

func NewRedisPrices(rdb redis.Cmdable) *RedisPrices { return &RedisPrices{Rdb: rdb} }

func PriceKey(asset string) string { return "price:" + strings.ToUpper(asset) }

func (r *RedisPrices) PriceOf(ctx context.Context, asset string) (decimal.Decimal, error) {
	s, err := r.Rdb.Get(ctx, PriceKey(asset)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	if err != nil {
		return decimal.Zero, err
	}
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse price %s: %w", asset, err)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, asset)
	}
	return p, nil
}

// GuardedOracle limita cada consulta a um timeout e abre o circuito após
// falhas consecutivas. Qualquer falha sai como EXTERNAL_UNAVAILABLE.
type GuardedOracle struct {
	next    PriceOracle
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewGuardedOracle(next PriceOracle, timeout time.Duration) *GuardedOracle {
	st := gobreaker.Settings{Name: "price-oracle", Timeout: 30 * time.Second}
	st.ReadyToTrip = func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 }
	return &GuardedOracle{next: next, cb: gobreaker.NewCircuitBreaker(st), timeout: timeout}
}

func (g *GuardedOracle) PriceOf(ctx context.Context, asset string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	v, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.PriceOf(ctx, asset)
	})
	if err != nil {
		return decimal.Zero, apperr.NewExternal("oracle.PriceOf", err)
	}
	return v.(decimal.Decimal), nil
}
