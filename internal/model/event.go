package model

import "time"

type EventState string

const (
	EventScheduled EventState = "SCHEDULED"
	EventLive      EventState = "LIVE"
	EventFinished  EventState = "FINISHED"
)

// Resultados categóricos de uma partida (mercado 1x2).
const (
	OutcomeHome = "home"
	OutcomeDraw = "draw"
	OutcomeAway = "away"
)

type Event struct {
	ID          string     `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"externalId,omitempty"`
	HomeTeam    string     `db:"home_team" json:"homeTeam"`
	AwayTeam    string     `db:"away_team" json:"awayTeam"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduledAt"`
	State       EventState `db:"state" json:"state"`
	HomeScore   *int       `db:"home_score" json:"homeScore,omitempty"`
	AwayScore   *int       `db:"away_score" json:"awayScore,omitempty"`
	FinishedAt  *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

func (e *Event) Finished() bool { return e.State == EventFinished }

// Outcome devolve home/draw/away para um evento encerrado.
func (e *Event) Outcome() string {
	if !e.Finished() || e.HomeScore == nil || e.AwayScore == nil {
		return ""
	}
	switch {
	case *e.HomeScore > *e.AwayScore:
		return OutcomeHome
	case *e.HomeScore < *e.AwayScore:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}
