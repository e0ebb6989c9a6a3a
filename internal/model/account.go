package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account é a conta fiat do usuário. O saldo só muda via ledger.
type Account struct {
	ID        string          `db:"id" json:"id"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	Active    bool            `db:"active" json:"active"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

type EntryKind string

const (
	EntryDeposit          EntryKind = "DEPOSIT"
	EntryWithdrawal       EntryKind = "WITHDRAWAL"
	EntryWagerDebit       EntryKind = "WAGER_DEBIT"
	EntryWagerCredit      EntryKind = "WAGER_CREDIT"
	EntryPoolEntryDebit   EntryKind = "POOL_ENTRY_DEBIT"
	EntryPoolPrizeCredit  EntryKind = "POOL_PRIZE_CREDIT"
	EntryRefund           EntryKind = "REFUND"
	EntryConversionCredit EntryKind = "CONVERSION_CREDIT"
	EntryFee              EntryKind = "FEE"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryDeposit, EntryWithdrawal, EntryWagerDebit, EntryWagerCredit, EntryPoolEntryDebit,
		EntryPoolPrizeCredit, EntryRefund, EntryConversionCredit, EntryFee:
		return true
	}
	return false
}

// LedgerEntry é imutável: criada uma vez por mutação, nunca atualizada.
// Amount é assinado (débitos negativos).
type LedgerEntry struct {
	ID           string          `db:"id" json:"id"`
	AccountID    string          `db:"account_id" json:"accountId"`
	Kind         EntryKind       `db:"kind" json:"kind"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	BalanceAfter decimal.Decimal `db:"balance_after" json:"balanceAfter"`
	ReferenceID  string          `db:"reference_id" json:"referenceId"`
	CreatedAt    time.Time       `db:"created_at" json:"createdAt"`
}
