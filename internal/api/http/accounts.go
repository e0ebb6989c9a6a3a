package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
)

func (a *API) openAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenAccountRequest
	// corpo opcional: sem accountId o ledger gera um id
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	acc, err := a.Ledger.OpenAccount(r.Context(), req.AccountID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := a.Ledger.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) setActive(w http.ResponseWriter, r *http.Request) {
	var req dto.SetActiveRequest
	if !a.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Ledger.SetActive(r.Context(), id, req.Active); err != nil {
		a.writeError(w, r, err)
		return
	}
	a.getAccount(w, r)
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	bal, err := a.Ledger.GetBalance(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: id, Balance: bal})
}

// listEntries: GET /v1/accounts/{id}/entries?limit=&offset=
func (a *API) listEntries(w http.ResponseWriter, r *http.Request) {
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
	entries, err := a.Ledger.History(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) verifyAccount(w http.ResponseWriter, r *http.Request) {
	if err := a.Ledger.Verify(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"consistent": true})
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.FiatMovementRequest
	if !a.decode(w, r, &req) {
		return
	}
	e, err := a.Ledger.Deposit(r.Context(), chi.URLParam(r, "id"), req.Amount, req.ReferenceID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.FiatMovementRequest
	if !a.decode(w, r, &req) {
		return
	}
	e, err := a.Ledger.Withdraw(r.Context(), chi.URLParam(r, "id"), req.Amount, req.ReferenceID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) wagerStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.Wagers.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
