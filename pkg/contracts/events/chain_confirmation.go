package events

import "time"

// ChainConfirmation é o callback da rede para uma transação cripto.
// Failed=true encerra a transação como FAILED.
type ChainConfirmation struct {
	TxHash        string    `json:"tx_hash"`
	Asset         string    `json:"asset"`
	Confirmations int       `json:"confirmations"`
	Failed        bool      `json:"failed,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Ts            time.Time `json:"ts"`
}
