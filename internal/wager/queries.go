package wager

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

func (e *Engine) Get(ctx context.Context, wagerID string) (*model.Wager, error) {
	w, err := e.store.GetWager(ctx, wagerID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound("wager.Get", "wager")
	}
	if err != nil {
		return nil, apperr.WrapInternal("wager.Get", err)
	}
	return w, nil
}

// List filtra por conta, evento e/ou estado; mais recentes primeiro.
func (e *Engine) List(ctx context.Context, f model.WagerFilter) ([]model.Wager, error) {
	out, err := e.store.ListWagers(ctx, f)
	if err != nil {
		return nil, apperr.WrapInternal("wager.List", err)
	}
	return out, nil
}

const statsPage = 500

// Stats agrega todas as apostas da conta. WinRate = won / (won + lost).
func (e *Engine) Stats(ctx context.Context, accountID string) (*model.WagerStats, error) {
	const op = "wager.Stats"
	if accountID == "" {
		return nil, apperr.NewInvalidInput(op, "accountId", accountID)
	}

	st := &model.WagerStats{
		AccountID:     accountID,
		TotalStaked:   decimal.Zero,
		TotalReturned: decimal.Zero,
		WinRate:       decimal.Zero,
	}
	for offset := 0; ; offset += statsPage {
		page, err := e.store.ListWagers(ctx, model.WagerFilter{AccountID: accountID, Limit: statsPage, Offset: offset})
		if err != nil {
			return nil, apperr.WrapInternal(op, err)
		}
		for _, w := range page {
			st.Total++
			switch w.State {
			case model.WagerPending:
				st.Pending++
			case model.WagerWon:
				st.Won++
				st.TotalReturned = st.TotalReturned.Add(w.PotentialPayout)
			case model.WagerLost:
				st.Lost++
			case model.WagerCancelled:
				st.Cancelled++
			case model.WagerRefunded:
				st.Refunded++
			}
			// apostas estornadas não contam como volume apostado
			if w.State != model.WagerCancelled && w.State != model.WagerRefunded {
				st.TotalStaked = st.TotalStaked.Add(w.Stake)
			}
		}
		if len(page) < statsPage {
			break
		}
	}

	if decided := st.Won + st.Lost; decided > 0 {
		st.WinRate = decimal.NewFromInt(int64(st.Won)).Div(decimal.NewFromInt(int64(decided))).Round(4)
	}
	return st, nil
}
