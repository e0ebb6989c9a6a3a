package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/api/dto"
	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/event"
	"github.com/radieske/sports-bet-ledger/internal/funding"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/notify/ws"
	"github.com/radieske/sports-bet-ledger/internal/pool"
	"github.com/radieske/sports-bet-ledger/internal/wager"
)

// API expõe ledger, apostas, bolões, eventos e cripto via REST.
// Hub é opcional; sem ele /ws não é registrado.
type API struct {
	Log     *zap.Logger
	Ledger  *ledger.Ledger
	Wagers  *wager.Engine
	Pools   *pool.Engine
	Events  *event.Engine
	Funding *funding.Reconciler
	Hub     *ws.Hub
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, a.logRequests, middleware.Recoverer)

	r.Route("/v1/accounts", func(r chi.Router) {
		r.Post("/", a.openAccount)
		r.Get("/{id}", a.getAccount)
		r.Put("/{id}/active", a.setActive)
		r.Get("/{id}/balance", a.getBalance)
		r.Get("/{id}/entries", a.listEntries)
		r.Get("/{id}/verify", a.verifyAccount)
		r.Post("/{id}/deposits", a.deposit)
		r.Post("/{id}/withdrawals", a.withdraw)
		r.Get("/{id}/wager-stats", a.wagerStats)
	})

	r.Route("/v1/wagers", func(r chi.Router) {
		r.Post("/", a.placeWager)
		r.Get("/", a.listWagers)
		r.Get("/{id}", a.getWager)
		r.Post("/{id}/won", a.resolveWon)
		r.Post("/{id}/lost", a.resolveLost)
		r.Post("/{id}/cancel", a.cancelWager)
		r.Post("/{id}/refund", a.refundWager)
	})

	r.Route("/v1/pools", func(r chi.Router) {
		r.Post("/", a.createPool)
		r.Get("/", a.listPools)
		r.Get("/{id}", a.getPool)
		r.Post("/{id}/activate", a.activatePool)
		r.Post("/{id}/close", a.closePool)
		r.Post("/{id}/join", a.joinPool)
		r.Put("/{id}/predictions", a.submitPredictions)
		r.Post("/{id}/finalize", a.finalizePool)
		r.Post("/{id}/cancel", a.cancelPool)
		r.Post("/{id}/retry-refunds", a.retryRefunds)
		r.Get("/{id}/leaderboard", a.leaderboard)
		r.Get("/{id}/report", a.poolReport)
	})

	r.Route("/v1/events", func(r chi.Router) {
		r.Post("/", a.createEvent)
		r.Post("/import", a.importEvent)
		r.Get("/", a.listEvents)
		r.Get("/{id}", a.getEvent)
		r.Post("/{id}/start", a.startEvent)
		r.Post("/{id}/finish", a.finishEvent)
	})

	r.Route("/v1/crypto", func(r chi.Router) {
		r.Get("/assets", a.listAssets)
		r.Get("/deposit-address", a.depositAddress)
		r.Post("/deposits", a.createCryptoDeposit)
		r.Post("/withdrawals", a.createCryptoWithdrawal)
		r.Post("/conversions", a.convertToFiat)
		r.Get("/transactions", a.listCryptoTxs)
		r.Get("/transactions/{hash}", a.getCryptoTx)
		r.Post("/transactions/{hash}/confirm", a.confirmCryptoTx)
		r.Post("/transactions/{hash}/fail", a.failCryptoTx)
		r.Get("/wallets/{accountId}", a.listWallets)
		r.Get("/wallets/{accountId}/{asset}", a.getWallet)
	})

	if a.Hub != nil {
		r.Get("/ws", a.Hub.HandleWS)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.Validation:
		return http.StatusBadRequest
	case apperr.InsufficientFunds:
		return http.StatusPaymentRequired
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidState, apperr.AlreadyFinalized, apperr.CapacityExceeded, apperr.DuplicateRequest:
		return http.StatusConflict
	case apperr.ExternalUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError traduz o Kind do erro em status; erros internos não vazam detalhes.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.Log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.Error(err))
		msg = "internal error"
	}
	var ae *apperr.Error
	if errors.As(err, &ae) && status != http.StatusInternalServerError {
		msg = ae.Message
	}
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Kind: kind})
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: apperr.Validation})
		return false
	}
	return true
}

// queryInt lê um inteiro opcional da query string.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, apperr.NewInvalidInput("http.query", name, s)
	}
	return n, nil
}
