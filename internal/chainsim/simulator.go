package chainsim

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/model"
	sharedkafka "github.com/radieske/sports-bet-ledger/internal/shared/kafka"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// PendingLister é o recorte do repo.Store que o simulador consulta.
type PendingLister interface {
	ListCryptoTxs(ctx context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error)
}

// Simulator faz o papel da rede: a cada tick avança as confirmações das
// transações PENDING e publica o callback em chain_confirmations.
type Simulator struct {
	Log      *zap.Logger
	Store    PendingLister
	Writer   sharedkafka.MessageWriter
	MaxStep  int     // confirmações novas por tick, sorteadas em [1, MaxStep]
	FailRate float64 // probabilidade de a rede rejeitar a transação
	Batch    int
	Rand     *rand.Rand

	OnEmitted func() // métricas
}

func (s *Simulator) rnd() *rand.Rand {
	if s.Rand == nil {
		s.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return s.Rand
}

// Tick publica um callback por transação pendente e devolve quantos saíram.
func (s *Simulator) Tick(ctx context.Context) (int, error) {
	batch := s.Batch
	if batch <= 0 {
		batch = 100
	}
	pending, err := s.Store.ListCryptoTxs(ctx, "", model.CryptoPending, batch)
	if err != nil {
		return 0, err
	}

	step := s.MaxStep
	if step < 1 {
		step = 1
	}
	sent := 0
	for _, t := range pending {
		// conversões nascem confirmadas; só depósitos e saques passam pela rede
		if t.Type != model.CryptoDeposit && t.Type != model.CryptoWithdrawal {
			continue
		}
		ev := events.ChainConfirmation{
			TxHash:        t.TxHash,
			Asset:         t.Asset,
			Confirmations: t.Confirmations + 1 + s.rnd().IntN(step),
			Ts:            time.Now().UTC(),
		}
		if s.FailRate > 0 && s.rnd().Float64() < s.FailRate {
			ev.Failed = true
			ev.Confirmations = t.Confirmations
			ev.Reason = "rejected by network"
		}
		if err := sharedkafka.WriteJSON(ctx, s.Writer, t.TxHash, ev); err != nil {
			s.Log.Warn("confirmation publish failed", zap.String("txHash", t.TxHash), zap.Error(err))
			continue
		}
		sent++
		if s.OnEmitted != nil {
			s.OnEmitted()
		}
	}
	return sent, nil
}

// Run chama Tick a cada intervalo até ctx ser cancelado.
func (s *Simulator) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Tick(ctx)
			if err != nil {
				s.Log.Warn("list pending failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.Log.Debug("confirmations emitted", zap.Int("count", n))
			}
		}
	}
}
