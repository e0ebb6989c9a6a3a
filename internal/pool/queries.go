package pool

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

func (e *Engine) Get(ctx context.Context, poolID string) (*model.Pool, error) {
	p, err := e.store.GetPool(ctx, poolID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound("pool.Get", "pool")
	}
	if err != nil {
		return nil, apperr.WrapInternal("pool.Get", err)
	}
	return p, nil
}

func (e *Engine) List(ctx context.Context, state model.PoolState) ([]model.Pool, error) {
	out, err := e.store.ListPools(ctx, state)
	if err != nil {
		return nil, apperr.WrapInternal("pool.List", err)
	}
	return out, nil
}

// LeaderboardRow é uma linha da classificação. Provisional indica que o
// bolão ainda não foi finalizado e a pontuação considera só eventos encerrados.
type LeaderboardRow struct {
	Rank            int             `json:"rank"`
	ParticipationID string          `json:"participationId"`
	AccountID       string          `json:"accountId"`
	Score           int             `json:"score"`
	ExactHits       int             `json:"exactHits"`
	PrizeAwarded    decimal.Decimal `json:"prizeAwarded"`
	Provisional     bool            `json:"provisional"`
}

// Leaderboard usa a classificação gravada em bolões finalizados e calcula
// uma parcial nos demais.
func (e *Engine) Leaderboard(ctx context.Context, poolID string) ([]LeaderboardRow, error) {
	const op = "pool.Leaderboard"
	p, err := e.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	parts, err := e.store.ListParticipations(ctx, poolID)
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}

	var list []scored
	if p.State == model.PoolFinalized {
		for _, part := range parts {
			if part.State == model.ParticipationActive && part.Rank != nil {
				list = append(list, scored{part: part})
			}
		}
		sortByRank(list)
	} else {
		evs, err := loadEvents(ctx, e.store, p)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			if part.State != model.ParticipationActive {
				continue
			}
			preds, err := e.store.ListPredictions(ctx, part.ID)
			if err != nil {
				return nil, apperr.WrapInternal(op, err)
			}
			list = append(list, e.score(part, preds, evs))
		}
		rank(list)
	}

	rows := make([]LeaderboardRow, 0, len(list))
	for _, s := range list {
		rows = append(rows, LeaderboardRow{
			Rank:            *s.part.Rank,
			ParticipationID: s.part.ID,
			AccountID:       s.part.AccountID,
			Score:           s.part.Score,
			ExactHits:       s.part.ExactHits,
			PrizeAwarded:    s.part.PrizeAwarded,
			Provisional:     p.State != model.PoolFinalized,
		})
	}
	return rows, nil
}

func sortByRank(list []scored) {
	sort.Slice(list, func(i, j int) bool { return *list[i].part.Rank < *list[j].part.Rank })
}

// Report resume o dinheiro do bolão. Para bolões não finalizados a divisão
// é projetada sobre o poolTotal atual.
type Report struct {
	Pool         model.Pool       `json:"pool"`
	Participants int              `json:"participants"`
	Refunded     int              `json:"refunded"`
	Split        Split            `json:"split"`
	TotalAwarded decimal.Decimal  `json:"totalAwarded"`
	Leaderboard  []LeaderboardRow `json:"leaderboard"`
	Projected    bool             `json:"projected"`
}

func (e *Engine) Report(ctx context.Context, poolID string) (*Report, error) {
	board, err := e.Leaderboard(ctx, poolID)
	if err != nil {
		return nil, err
	}
	p, err := e.Get(ctx, poolID)
	if err != nil {
		return nil, err
	}
	parts, err := e.store.ListParticipations(ctx, poolID)
	if err != nil {
		return nil, apperr.WrapInternal("pool.Report", err)
	}

	r := &Report{Pool: *p, Leaderboard: board, TotalAwarded: decimal.Zero}
	for _, part := range parts {
		if part.State == model.ParticipationActive {
			r.Participants++
		} else {
			r.Refunded++
		}
		r.TotalAwarded = r.TotalAwarded.Add(part.PrizeAwarded)
	}

	if p.State == model.PoolFinalized {
		r.Split = ComputeSplit(p, r.Participants)
		r.Split.House = p.HouseAmount
		r.Split.Creator = p.CreatorAmount
	} else {
		r.Split = ComputeSplit(p, r.Participants)
		r.Projected = true
	}
	return r, nil
}
