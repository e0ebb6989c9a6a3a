package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WagerState string

const (
	WagerPending   WagerState = "PENDING"
	WagerWon       WagerState = "WON"
	WagerLost      WagerState = "LOST"
	WagerCancelled WagerState = "CANCELLED"
	WagerRefunded  WagerState = "REFUNDED"
)

func (s WagerState) Terminal() bool { return s != WagerPending }

// Wager é uma aposta simples. Market identifica o tipo de palpite
// (ex: "1x2") e Selection o palpite em si (ex: "home").
type Wager struct {
	ID              string          `db:"id" json:"id"`
	AccountID       string          `db:"account_id" json:"accountId"`
	EventID         string          `db:"event_id" json:"eventId"`
	Market          string          `db:"market" json:"market"`
	Selection       string          `db:"selection" json:"selection"`
	Odds            decimal.Decimal `db:"odds" json:"odds"`
	Stake           decimal.Decimal `db:"stake" json:"stake"`
	PotentialPayout decimal.Decimal `db:"potential_payout" json:"potentialPayout"`
	State           WagerState      `db:"state" json:"state"`
	Reason          string          `db:"reason" json:"reason,omitempty"`
	NeedsReview     bool            `db:"needs_review" json:"needsReview"`
	PlacedAt        time.Time       `db:"placed_at" json:"placedAt"`
	ResolvedAt      *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
}

type WagerFilter struct {
	AccountID string
	EventID   string
	State     WagerState
	Limit     int
	Offset    int
}

// WagerStats agrega as apostas de uma conta.
type WagerStats struct {
	AccountID     string          `json:"accountId"`
	Total         int             `json:"total"`
	Pending       int             `json:"pending"`
	Won           int             `json:"won"`
	Lost          int             `json:"lost"`
	Cancelled     int             `json:"cancelled"`
	Refunded      int             `json:"refunded"`
	TotalStaked   decimal.Decimal `json:"totalStaked"`
	TotalReturned decimal.Decimal `json:"totalReturned"`
	WinRate       decimal.Decimal `json:"winRate"`
}

// Market1x2 é o mercado de resultado final (home/draw/away).
const Market1x2 = "1x2"
