package dto

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
)

type ErrorResponse struct {
	Error string      `json:"error"`
	Kind  apperr.Kind `json:"kind"`
}

type BalanceResponse struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
}

type DepositAddressResponse struct {
	AccountID string `json:"accountId"`
	Asset     string `json:"asset"`
	Address   string `json:"address"`
}

// RefundsResponse acompanha cancelamento e reprocessamento de estornos;
// Failed > 0 indica participações que precisam de conciliação manual.
type RefundsResponse struct {
	PoolID   string                `json:"poolId"`
	Outcomes []model.RefundOutcome `json:"outcomes"`
	Failed   int                   `json:"failed"`
}
