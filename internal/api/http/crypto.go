package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
	"github.com/radieske/sports-bet-ledger/internal/funding"
	"github.com/radieske/sports-bet-ledger/internal/model"
)

func (a *API) listAssets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, funding.Assets())
}

// depositAddress: GET /v1/crypto/deposit-address?accountId=&asset=
func (a *API) depositAddress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, err := a.Funding.DepositAddress(r.Context(), q.Get("accountId"), q.Get("asset"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	asset, _ := funding.LookupAsset(q.Get("asset"))
	writeJSON(w, http.StatusOK, dto.DepositAddressResponse{AccountID: q.Get("accountId"), Asset: asset.Symbol, Address: addr})
}

func (a *API) createCryptoDeposit(w http.ResponseWriter, r *http.Request) {
	var req dto.CryptoDepositRequest
	if !a.decode(w, r, &req) {
		return
	}
	t, err := a.Funding.CreateDeposit(r.Context(), req.AccountID, req.Asset, req.Amount, req.FromAddress)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) createCryptoWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req dto.CryptoWithdrawalRequest
	if !a.decode(w, r, &req) {
		return
	}
	t, err := a.Funding.CreateWithdrawal(r.Context(), req.AccountID, req.Asset, req.ToAddress, req.Amount)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) convertToFiat(w http.ResponseWriter, r *http.Request) {
	var req dto.ConvertRequest
	if !a.decode(w, r, &req) {
		return
	}
	conv, err := a.Funding.ConvertToFiat(r.Context(), req.AccountID, req.Asset, req.Amount, req.Notes)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// listCryptoTxs: GET /v1/crypto/transactions?accountId=&status=&limit=
func (a *API) listCryptoTxs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.Funding.History(r.Context(), q.Get("accountId"), model.CryptoTxStatus(q.Get("status")), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getCryptoTx(w http.ResponseWriter, r *http.Request) {
	t, err := a.Funding.Transaction(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// confirmCryptoTx recebe o callback de confirmações da rede.
func (a *API) confirmCryptoTx(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmRequest
	if !a.decode(w, r, &req) {
		return
	}
	t, err := a.Funding.Confirm(r.Context(), chi.URLParam(r, "hash"), req.Confirmations)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) failCryptoTx(w http.ResponseWriter, r *http.Request) {
	var req dto.ReasonRequest
	if r.ContentLength > 0 && !a.decode(w, r, &req) {
		return
	}
	t, err := a.Funding.Fail(r.Context(), chi.URLParam(r, "hash"), req.Reason)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) listWallets(w http.ResponseWriter, r *http.Request) {
	out, err := a.Funding.Wallets(r.Context(), chi.URLParam(r, "accountId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if out == nil {
		out = []model.CryptoWallet{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getWallet(w http.ResponseWriter, r *http.Request) {
	wl, err := a.Funding.Wallet(r.Context(), chi.URLParam(r, "accountId"), chi.URLParam(r, "asset"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wl)
}
