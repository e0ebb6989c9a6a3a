package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type CryptoTxType string

const (
	CryptoDeposit          CryptoTxType = "DEPOSIT"
	CryptoWithdrawal       CryptoTxType = "WITHDRAWAL"
	CryptoConversionToFiat CryptoTxType = "CONVERSION_TO_FIAT"
)

type CryptoTxStatus string

const (
	CryptoPending   CryptoTxStatus = "PENDING"
	CryptoConfirmed CryptoTxStatus = "CONFIRMED"
	CryptoFailed    CryptoTxStatus = "FAILED"
)

// CryptoTransaction: Amount é o valor bruto no ativo; NetAmount é o que
// efetivamente sai para a rede (Amount - Fee) em saques.
type CryptoTransaction struct {
	ID                    string          `db:"id" json:"id"`
	AccountID             string          `db:"account_id" json:"accountId"`
	Type                  CryptoTxType    `db:"type" json:"type"`
	Asset                 string          `db:"asset" json:"asset"`
	Amount                decimal.Decimal `db:"amount" json:"amount"`
	Fee                   decimal.Decimal `db:"fee" json:"fee"`
	NetAmount             decimal.Decimal `db:"net_amount" json:"netAmount"`
	USDAmount             decimal.Decimal `db:"usd_amount" json:"usdAmount"`
	FromAddress           string          `db:"from_address" json:"fromAddress,omitempty"`
	ToAddress             string          `db:"to_address" json:"toAddress,omitempty"`
	TxHash                string          `db:"tx_hash" json:"txHash"`
	Status                CryptoTxStatus  `db:"status" json:"status"`
	Confirmations         int             `db:"confirmations" json:"confirmations"`
	RequiredConfirmations int             `db:"required_confirmations" json:"requiredConfirmations"`
	Notes                 string          `db:"notes" json:"notes,omitempty"`
	CreatedAt             time.Time       `db:"created_at" json:"createdAt"`
	ConfirmedAt           *time.Time      `db:"confirmed_at" json:"confirmedAt,omitempty"`
}

// CryptoWallet por (conta, ativo). Só muda por transições de CryptoTransaction.
type CryptoWallet struct {
	AccountID          string          `db:"account_id" json:"accountId"`
	Asset              string          `db:"asset" json:"asset"`
	Balance            decimal.Decimal `db:"balance" json:"balance"`
	PendingDeposits    decimal.Decimal `db:"pending_deposits" json:"pendingDeposits"`
	PendingWithdrawals decimal.Decimal `db:"pending_withdrawals" json:"pendingWithdrawals"`
	TotalDeposited     decimal.Decimal `db:"total_deposited" json:"totalDeposited"`
	TotalWithdrawn     decimal.Decimal `db:"total_withdrawn" json:"totalWithdrawn"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}
