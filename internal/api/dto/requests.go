package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

// Valores monetários trafegam como string decimal ("100.00"); decimal.Decimal
// aceita tanto string quanto número no JSON.

type OpenAccountRequest struct {
	AccountID string `json:"accountId,omitempty"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type FiatMovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	ReferenceID string          `json:"referenceId"`
}

type PlaceWagerRequest struct {
	AccountID string          `json:"accountId"`
	EventID   string          `json:"eventId"`
	Market    string          `json:"market"`    // ex: "1x2"
	Selection string          `json:"selection"` // "home" | "draw" | "away"
	Stake     decimal.Decimal `json:"stake"`
	Odds      decimal.Decimal `json:"odds"` // odd que o cliente viu
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type CreatePoolRequest struct {
	Name            string             `json:"name"`
	OwnerAccountID  string             `json:"ownerAccountId"`
	EntryFee        decimal.Decimal    `json:"entryFee"`
	MaxParticipants int                `json:"maxParticipants"`
	Distribution    model.Distribution `json:"distribution"`
	HouseCutPct     decimal.Decimal    `json:"houseCutPct"`
	CreatorCutPct   decimal.Decimal    `json:"creatorCutPct"`
	EventIDs        []string           `json:"eventIds"`
	OpenAt          time.Time          `json:"openAt"`
	CloseAt         time.Time          `json:"closeAt"`
}

type JoinPoolRequest struct {
	AccountID string          `json:"accountId"`
	EntryFee  decimal.Decimal `json:"entryFee"`
}

type PredictionRequest struct {
	EventID       string `json:"eventId"`
	Pick          string `json:"pick,omitempty"`
	PredictedHome *int   `json:"predictedHome,omitempty"`
	PredictedAway *int   `json:"predictedAway,omitempty"`
}

type SubmitPredictionsRequest struct {
	AccountID   string              `json:"accountId"`
	Predictions []PredictionRequest `json:"predictions"`
}

type CreateEventRequest struct {
	ExternalID  string    `json:"externalId,omitempty"`
	HomeTeam    string    `json:"homeTeam"`
	AwayTeam    string    `json:"awayTeam"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type ImportEventRequest struct {
	ExternalID string `json:"externalId"`
}

type FinishEventRequest struct {
	HomeScore *int `json:"homeScore"`
	AwayScore *int `json:"awayScore"`
}

type CryptoDepositRequest struct {
	AccountID   string          `json:"accountId"`
	Asset       string          `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	FromAddress string          `json:"fromAddress"`
}

type CryptoWithdrawalRequest struct {
	AccountID string          `json:"accountId"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	ToAddress string          `json:"toAddress"`
}

type ConfirmRequest struct {
	Confirmations int `json:"confirmations"`
}

type ConvertRequest struct {
	AccountID string          `json:"accountId"`
	Asset     string          `json:"asset"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes,omitempty"`
}
