package pool

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// Split é a divisão do poolTotal. Prêmios e comissão do criador são
// truncados em centavos; a casa fica com o restante, inclusive as posições
// configuradas sem participante.
type Split struct {
	PoolTotal     decimal.Decimal         `json:"poolTotal"`
	Distributable decimal.Decimal         `json:"distributable"`
	Creator       decimal.Decimal         `json:"creator"`
	House         decimal.Decimal         `json:"house"`
	Prizes        map[int]decimal.Decimal `json:"prizes"` // rank -> prêmio
}

// ComputeSplit calcula a divisão para `ranked` participantes classificados.
func ComputeSplit(p *model.Pool, ranked int) Split {
	total := p.PoolTotal
	distributable := total.Mul(hundred.Sub(p.HouseCutPct).Sub(p.CreatorCutPct)).Div(hundred)
	s := Split{
		PoolTotal:     total,
		Distributable: distributable,
		Creator:       total.Mul(p.CreatorCutPct).Div(hundred).Truncate(ledger.FiatPlaces),
		Prizes:        map[int]decimal.Decimal{},
	}

	paid := s.Creator
	for _, share := range p.Distribution {
		if share.Rank > ranked {
			continue
		}
		prize := distributable.Mul(share.Percentage).Div(hundred).Truncate(ledger.FiatPlaces)
		s.Prizes[share.Rank] = prize
		paid = paid.Add(prize)
	}
	s.House = total.Sub(paid)
	return s
}

// scored é uma participação com a pontuação apurada.
type scored struct {
	part  model.Participation
	preds []model.Prediction
}

// score apura os palpites contra os eventos encerrados. Eventos ainda não
// encerrados ficam sem isCorrect.
func (e *Engine) score(part model.Participation, preds []model.Prediction, evs map[string]*model.Event) scored {
	part.Score, part.ExactHits = 0, 0
	out := make([]model.Prediction, 0, len(preds))
	for _, pr := range preds {
		ev, ok := evs[pr.EventID]
		if !ok || !ev.Finished() {
			out = append(out, pr)
			continue
		}
		correct := pr.Pick == ev.Outcome()
		exact := pr.PredictedHome != nil && pr.PredictedAway != nil &&
			ev.HomeScore != nil && ev.AwayScore != nil &&
			*pr.PredictedHome == *ev.HomeScore && *pr.PredictedAway == *ev.AwayScore
		pr.IsCorrect = &correct
		pr.ExactScore = exact
		if correct {
			part.Score++
		}
		if exact {
			part.ExactHits++
			part.Score += e.exactBonus
		}
		out = append(out, pr)
	}
	return scored{part: part, preds: out}
}

// rank ordena por pontos, placares exatos e ordem de inscrição.
func rank(list []scored) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].part, list[j].part
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ExactHits != b.ExactHits {
			return a.ExactHits > b.ExactHits
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	for i := range list {
		r := i + 1
		list[i].part.Rank = &r
	}
}

// FinalizeResult descreve a liquidação de um bolão.
type FinalizeResult struct {
	Pool     model.Pool            `json:"pool"`
	Split    Split                 `json:"split"`
	Standing []model.Participation `json:"standing"`
}

// Finalize apura, classifica e paga o bolão numa única transação. Só
// executa uma vez: a segunda chamada falha com AlreadyFinalized.
func (e *Engine) Finalize(ctx context.Context, poolID string) (*FinalizeResult, error) {
	const op = "pool.Finalize"
	var res FinalizeResult

	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		// a transação pode ser repetida; nada da tentativa abortada sobrevive
		res = FinalizeResult{}
		p, err := lockPool(ctx, tx, op, poolID)
		if err != nil {
			return err
		}
		if p.State == model.PoolFinalized {
			return apperr.New(apperr.AlreadyFinalized, op, "pool already finalized")
		}
		if p.State != model.PoolClosed {
			return apperr.NewInvalidState(op, "pool", p.State)
		}

		evs, err := loadEvents(ctx, tx, p)
		if err != nil {
			return err
		}
		for _, id := range p.EventIDs {
			if !evs[id].Finished() {
				return apperr.Newf(apperr.InvalidState, op, "event %s not finished", id)
			}
		}

		parts, err := tx.ListParticipationsForUpdate(ctx, poolID)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		var list []scored
		for _, part := range parts {
			if part.State != model.ParticipationActive {
				continue
			}
			preds, err := tx.ListPredictions(ctx, part.ID)
			if err != nil {
				return apperr.WrapInternal(op, err)
			}
			list = append(list, e.score(part, preds, evs))
		}
		rank(list)

		split := ComputeSplit(p, len(list))
		for i := range list {
			s := &list[i]
			for j := range s.preds {
				if err := tx.UpsertPrediction(ctx, &s.preds[j]); err != nil {
					return apperr.WrapInternal(op, err)
				}
			}
			prize, ok := split.Prizes[*s.part.Rank]
			if ok && prize.IsPositive() {
				if _, err := e.ledger.CreditTx(ctx, tx, s.part.AccountID, prize, model.EntryPoolPrizeCredit, s.part.ID); err != nil {
					return err
				}
				s.part.PrizeAwarded = prize
			}
			if err := tx.UpdateParticipation(ctx, &s.part); err != nil {
				return apperr.WrapInternal(op, err)
			}
			res.Standing = append(res.Standing, s.part)
		}
		if split.Creator.IsPositive() {
			if _, err := e.ledger.CreditTx(ctx, tx, p.OwnerAccountID, split.Creator, model.EntryPoolPrizeCredit, p.ID); err != nil {
				return err
			}
		}

		now := e.now()
		p.State = model.PoolFinalized
		p.FinalizedAt = &now
		p.HouseAmount = split.House
		p.CreatorAmount = split.Creator
		if err := tx.UpdatePool(ctx, p); err != nil {
			return apperr.WrapInternal(op, err)
		}
		res.Pool = *p
		res.Split = split
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pool finalized",
		zap.String("poolId", poolID),
		zap.Int("participants", len(res.Standing)),
		zap.String("poolTotal", res.Split.PoolTotal.StringFixed(2)),
		zap.String("house", res.Split.House.StringFixed(2)),
		zap.String("creator", res.Split.Creator.StringFixed(2)))
	if e.OnFinalized != nil {
		e.OnFinalized()
	}
	for _, part := range res.Standing {
		if part.PrizeAwarded.IsPositive() {
			e.notifier.Notify(ctx, part.AccountID, events.KindPoolPrize, part)
		}
	}
	e.notifier.Notify(ctx, res.Pool.OwnerAccountID, events.KindPoolFinalized, res.Pool)
	return &res, nil
}

func loadEvents(ctx context.Context, r repo.Reader, p *model.Pool) (map[string]*model.Event, error) {
	evs := make(map[string]*model.Event, len(p.EventIDs))
	for _, id := range p.EventIDs {
		ev, err := r.GetEvent(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.NewNotFound("pool.loadEvents", "event "+id)
		}
		if err != nil {
			return nil, apperr.WrapInternal("pool.loadEvents", err)
		}
		evs[id] = ev
	}
	return evs, nil
}

// FinalizeEligible liquida todo bolão CLOSED cujos eventos já terminaram.
func (e *Engine) FinalizeEligible(ctx context.Context) (model.SweepResult, error) {
	const op = "pool.FinalizeEligible"
	return e.sweep(ctx, op, model.PoolClosed,
		func(p model.Pool, _ time.Time) bool {
			evs, err := loadEvents(ctx, e.store, &p)
			if err != nil {
				e.log.Warn("pool events lookup failed", zap.String("poolId", p.ID), zap.Error(err))
				return false
			}
			for _, ev := range evs {
				if !ev.Finished() {
					return false
				}
			}
			return true
		},
		func(ctx context.Context, id string) error {
			_, err := e.Finalize(ctx, id)
			return err
		})
}
