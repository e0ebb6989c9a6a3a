package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/pool"
)

func (a *API) createPool(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePoolRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Pools.CreatePool(r.Context(), pool.CreateRequest{
		Name:            req.Name,
		OwnerAccountID:  req.OwnerAccountID,
		EntryFee:        req.EntryFee,
		MaxParticipants: req.MaxParticipants,
		Distribution:    req.Distribution,
		HouseCutPct:     req.HouseCutPct,
		CreatorCutPct:   req.CreatorCutPct,
		EventIDs:        req.EventIDs,
		OpenAt:          req.OpenAt,
		CloseAt:         req.CloseAt,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPools(w http.ResponseWriter, r *http.Request) {
	out, err := a.Pools.List(r.Context(), model.PoolState(r.URL.Query().Get("state")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := a.Pools.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) activatePool(w http.ResponseWriter, r *http.Request) {
	a.poolAction(w, r, func(ctx context.Context, id string) (any, error) { return a.Pools.ActivatePool(ctx, id) })
}

func (a *API) closePool(w http.ResponseWriter, r *http.Request) {
	a.poolAction(w, r, func(ctx context.Context, id string) (any, error) { return a.Pools.ClosePool(ctx, id) })
}

func (a *API) finalizePool(w http.ResponseWriter, r *http.Request) {
	a.poolAction(w, r, func(ctx context.Context, id string) (any, error) { return a.Pools.Finalize(ctx, id) })
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	a.poolAction(w, r, func(ctx context.Context, id string) (any, error) { return a.Pools.Leaderboard(ctx, id) })
}

func (a *API) poolReport(w http.ResponseWriter, r *http.Request) {
	a.poolAction(w, r, func(ctx context.Context, id string) (any, error) { return a.Pools.Report(ctx, id) })
}

func (a *API) poolAction(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (any, error)) {
	out, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) joinPool(w http.ResponseWriter, r *http.Request) {
	var req dto.JoinPoolRequest
	if !a.decode(w, r, &req) {
		return
	}
	part, err := a.Pools.JoinPool(r.Context(), chi.URLParam(r, "id"), req.AccountID, req.EntryFee)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, part)
}

func (a *API) submitPredictions(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitPredictionsRequest
	if !a.decode(w, r, &req) {
		return
	}
	inputs := make([]pool.PredictionInput, 0, len(req.Predictions))
	for _, p := range req.Predictions {
		inputs = append(inputs, pool.PredictionInput{
			EventID:       p.EventID,
			Pick:          p.Pick,
			PredictedHome: p.PredictedHome,
			PredictedAway: p.PredictedAway,
		})
	}
	out, err := a.Pools.SubmitPredictions(r.Context(), chi.URLParam(r, "id"), req.AccountID, inputs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) cancelPool(w http.ResponseWriter, r *http.Request) {
	var req dto.ReasonRequest
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	outcomes, err := a.Pools.CancelPool(r.Context(), id, req.Reason)
	a.writeRefunds(w, r, id, outcomes, err)
}

func (a *API) retryRefunds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcomes, err := a.Pools.RetryRefunds(r.Context(), id)
	a.writeRefunds(w, r, id, outcomes, err)
}

// writeRefunds devolve 200 mesmo com estornos falhos: o cancelamento em si
// foi aplicado e a lista indica o que conciliar.
func (a *API) writeRefunds(w http.ResponseWriter, r *http.Request, poolID string, outcomes []model.RefundOutcome, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if outcomes == nil {
		outcomes = []model.RefundOutcome{}
	}
	writeJSON(w, http.StatusOK, dto.RefundsResponse{
		PoolID:   poolID,
		Outcomes: outcomes,
		Failed:   pool.FailedRefunds(outcomes),
	})
}
