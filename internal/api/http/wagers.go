package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/wager"
)

func (a *API) placeWager(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceWagerRequest
	if !a.decode(w, r, &req) {
		return
	}
	wg, err := a.Wagers.Place(r.Context(), wager.PlaceRequest{
		AccountID: req.AccountID,
		EventID:   req.EventID,
		Market:    req.Market,
		Selection: req.Selection,
		Stake:     req.Stake,
		Odds:      req.Odds,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wg)
}

// listWagers: GET /v1/wagers?accountId=&eventId=&state=&limit=&offset=
func (a *API) listWagers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.Wagers.List(r.Context(), model.WagerFilter{
		AccountID: q.Get("accountId"),
		EventID:   q.Get("eventId"),
		State:     model.WagerState(q.Get("state")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getWager(w http.ResponseWriter, r *http.Request) {
	wg, err := a.Wagers.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wg)
}

func (a *API) resolveWon(w http.ResponseWriter, r *http.Request) {
	a.settleWager(w, r, func(ctx context.Context, id, _ string) (*model.Wager, error) {
		return a.Wagers.ResolveWon(ctx, id)
	})
}

func (a *API) resolveLost(w http.ResponseWriter, r *http.Request) {
	a.settleWager(w, r, func(ctx context.Context, id, _ string) (*model.Wager, error) {
		return a.Wagers.ResolveLost(ctx, id)
	})
}

func (a *API) cancelWager(w http.ResponseWriter, r *http.Request) {
	a.settleWager(w, r, a.Wagers.Cancel)
}

func (a *API) refundWager(w http.ResponseWriter, r *http.Request) {
	a.settleWager(w, r, a.Wagers.Refund)
}

func (a *API) settleWager(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id, reason string) (*model.Wager, error)) {
	var req dto.ReasonRequest
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	wg, err := fn(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wg)
}
