package events

import (
	"encoding/json"
	"time"
)

// Tipos de notificação emitidos pelo core.
const (
	KindWagerPlaced      = "wager.placed"
	KindWagerSettled     = "wager.settled"
	KindWagerNeedsReview = "wager.needs_review"
	KindPoolJoined       = "pool.joined"
	KindPoolFinalized    = "pool.finalized"
	KindPoolPrize        = "pool.prize"
	KindPoolCancelled    = "pool.cancelled"
	KindPoolRefund       = "pool.refund"
	KindCryptoPending    = "crypto.pending"
	KindCryptoConfirmed  = "crypto.confirmed"
	KindCryptoFailed     = "crypto.failed"
	KindCryptoConverted  = "crypto.converted"
	KindLedgerDeposit    = "ledger.deposit"
	KindLedgerWithdrawal = "ledger.withdrawal"
)

// Notification é publicada no tópico "ledger_notifications" e no canal
// Redis de broadcast. AccountID vazio significa broadcast geral.
type Notification struct {
	AccountID string          `json:"account_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Ts        time.Time       `json:"ts"`
}
