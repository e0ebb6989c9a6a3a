package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type PoolState string

const (
	PoolDraft     PoolState = "DRAFT"
	PoolActive    PoolState = "ACTIVE"
	PoolClosed    PoolState = "CLOSED"
	PoolFinalized PoolState = "FINALIZED"
	PoolCancelled PoolState = "CANCELLED"
)

// PrizeShare é a fatia do valor distribuível destinada a uma posição.
type PrizeShare struct {
	Rank       int             `json:"rank"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Distribution é persistida como JSONB.
type Distribution []PrizeShare

func (d Distribution) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *Distribution) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("distribution: unsupported type %T", src)
	}
}

// Total soma os percentuais configurados.
func (d Distribution) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, s := range d {
		sum = sum.Add(s.Percentage)
	}
	return sum
}

type Pool struct {
	ID                  string          `db:"id" json:"id"`
	Name                string          `db:"name" json:"name"`
	OwnerAccountID      string          `db:"owner_account_id" json:"ownerAccountId"`
	EntryFee            decimal.Decimal `db:"entry_fee" json:"entryFee"`
	MaxParticipants     int             `db:"max_participants" json:"maxParticipants"`
	CurrentParticipants int             `db:"current_participants" json:"currentParticipants"`
	PoolTotal           decimal.Decimal `db:"pool_total" json:"poolTotal"`
	Distribution        Distribution    `db:"distribution" json:"distribution"`
	HouseCutPct         decimal.Decimal `db:"house_cut_pct" json:"houseCutPct"`
	CreatorCutPct       decimal.Decimal `db:"creator_cut_pct" json:"creatorCutPct"`
	EventIDs            pq.StringArray  `db:"event_ids" json:"eventIds"`
	State               PoolState       `db:"state" json:"state"`
	OpenAt              time.Time       `db:"open_at" json:"openAt"`
	CloseAt             time.Time       `db:"close_at" json:"closeAt"`
	HouseAmount         decimal.Decimal `db:"house_amount" json:"houseAmount"`
	CreatorAmount       decimal.Decimal `db:"creator_amount" json:"creatorAmount"`
	Reason              string          `db:"reason" json:"reason,omitempty"`
	CreatedAt           time.Time       `db:"created_at" json:"createdAt"`
	FinalizedAt         *time.Time      `db:"finalized_at" json:"finalizedAt,omitempty"`
}

// Clone evita que chamadores compartilhem os slices internos.
func (p Pool) Clone() Pool {
	p.Distribution = append(Distribution(nil), p.Distribution...)
	p.EventIDs = append(pq.StringArray(nil), p.EventIDs...)
	return p
}

func (p *Pool) HasEvent(eventID string) bool {
	for _, id := range p.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

type ParticipationState string

const (
	ParticipationActive    ParticipationState = "ACTIVE"
	ParticipationCancelled ParticipationState = "CANCELLED"
)

type Participation struct {
	ID           string             `db:"id" json:"id"`
	PoolID       string             `db:"pool_id" json:"poolId"`
	AccountID    string             `db:"account_id" json:"accountId"`
	AmountPaid   decimal.Decimal    `db:"amount_paid" json:"amountPaid"`
	Score        int                `db:"score" json:"score"`
	ExactHits    int                `db:"exact_hits" json:"exactHits"`
	Rank         *int               `db:"rank" json:"rank,omitempty"`
	PrizeAwarded decimal.Decimal    `db:"prize_awarded" json:"prizeAwarded"`
	State        ParticipationState `db:"state" json:"state"`
	JoinedAt     time.Time          `db:"joined_at" json:"joinedAt"`
}

// Prediction é o palpite de um participante para um evento do bolão.
// Pick é obrigatório; o placar previsto é opcional e vale bônus se exato.
type Prediction struct {
	ParticipationID string    `db:"participation_id" json:"participationId"`
	PoolID          string    `db:"pool_id" json:"poolId"`
	EventID         string    `db:"event_id" json:"eventId"`
	Pick            string    `db:"pick" json:"pick"`
	PredictedHome   *int      `db:"predicted_home" json:"predictedHome,omitempty"`
	PredictedAway   *int      `db:"predicted_away" json:"predictedAway,omitempty"`
	IsCorrect       *bool     `db:"is_correct" json:"isCorrect,omitempty"`
	ExactScore      bool      `db:"exact_score" json:"exactScore"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// RefundOutcome descreve o resultado do estorno de uma participação.
type RefundOutcome struct {
	ParticipationID string          `json:"participationId"`
	AccountID       string          `json:"accountId"`
	Amount          decimal.Decimal `json:"amount"`
	Refunded        bool            `json:"refunded"`
	Error           string          `json:"error,omitempty"`
}
