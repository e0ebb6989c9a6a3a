package event

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

// Engine mantém o ciclo de vida das partidas: SCHEDULED -> LIVE -> FINISHED.
// Depois de FINISHED o evento não muda mais.
type Engine struct {
	store  repo.Store
	lookup SportsDataLookup
	log    *zap.Logger
	now    func() time.Time

	OnFinished func() // métricas
}

type Option func(*Engine)

func WithLookup(l SportsDataLookup) Option { return func(e *Engine) { e.lookup = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(store repo.Store, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(e)
	}
	return e
}

type CreateRequest struct {
	ExternalID  string
	HomeTeam    string
	AwayTeam    string
	ScheduledAt time.Time
}

func (e *Engine) CreateEvent(ctx context.Context, req CreateRequest) (*model.Event, error) {
	const op = "event.Create"
	home, away := strings.TrimSpace(req.HomeTeam), strings.TrimSpace(req.AwayTeam)
	switch {
	case home == "":
		return nil, apperr.NewInvalidInput(op, "homeTeam", req.HomeTeam)
	case away == "":
		return nil, apperr.NewInvalidInput(op, "awayTeam", req.AwayTeam)
	case strings.EqualFold(home, away):
		return nil, apperr.New(apperr.Validation, op, "home and away teams must differ")
	case req.ScheduledAt.IsZero():
		return nil, apperr.NewInvalidInput(op, "scheduledAt", req.ScheduledAt)
	}

	ev := &model.Event{
		ID:          uuid.NewString(),
		ExternalID:  req.ExternalID,
		HomeTeam:    home,
		AwayTeam:    away,
		ScheduledAt: req.ScheduledAt.UTC(),
		State:       model.EventScheduled,
		CreatedAt:   e.now(),
	}
	if err := e.insert(ctx, op, ev); err != nil {
		return nil, err
	}
	e.log.Info("event created",
		zap.String("eventId", ev.ID),
		zap.String("externalId", ev.ExternalID),
		zap.Time("scheduledAt", ev.ScheduledAt))
	return ev, nil
}

func (e *Engine) insert(ctx context.Context, op string, ev *model.Event) error {
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.InsertEvent(ctx, ev)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return apperr.New(apperr.DuplicateRequest, op, "event already registered")
	}
	return apperr.WrapInternal(op, err)
}

// ImportEvent cria o evento a partir do provedor externo. Qualquer falha do
// provedor vira NOT_FOUND; placar só é importado para partidas encerradas.
func (e *Engine) ImportEvent(ctx context.Context, externalID string) (*model.Event, error) {
	const op = "event.Import"
	if strings.TrimSpace(externalID) == "" {
		return nil, apperr.NewInvalidInput(op, "externalId", externalID)
	}
	if e.lookup == nil {
		return nil, apperr.NewNotFound(op, "event "+externalID)
	}
	data, err := e.lookup.FindEvent(ctx, externalID)
	if err != nil {
		e.log.Warn("sports data lookup failed", zap.String("externalId", externalID), zap.Error(err))
		return nil, &apperr.Error{Kind: apperr.NotFound, Op: op, Message: "event " + externalID + " not found", Err: err}
	}

	ev, err := e.CreateEvent(ctx, CreateRequest{
		ExternalID:  externalID,
		HomeTeam:    data.HomeTeam,
		AwayTeam:    data.AwayTeam,
		ScheduledAt: data.ScheduledAt,
	})
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(data.Status) {
	case "live":
		return e.StartEvent(ctx, ev.ID)
	case "finished":
		if data.HomeScore != nil && data.AwayScore != nil {
			return e.FinishEvent(ctx, ev.ID, *data.HomeScore, *data.AwayScore)
		}
	}
	return ev, nil
}

func (e *Engine) StartEvent(ctx context.Context, id string) (*model.Event, error) {
	return e.transition(ctx, "event.Start", id, func(ev *model.Event) error {
		if ev.State != model.EventScheduled {
			return apperr.NewInvalidState("event.Start", "event", ev.State)
		}
		ev.State = model.EventLive
		return nil
	})
}

// FinishEvent grava o placar final. Só executa uma vez por evento.
func (e *Engine) FinishEvent(ctx context.Context, id string, home, away int) (*model.Event, error) {
	const op = "event.Finish"
	if home < 0 || away < 0 {
		return nil, apperr.Newf(apperr.Validation, op, "invalid score %d-%d", home, away)
	}
	ev, err := e.transition(ctx, op, id, func(ev *model.Event) error {
		if ev.Finished() {
			return apperr.New(apperr.AlreadyFinalized, op, "event already finished")
		}
		now := e.now()
		ev.State = model.EventFinished
		ev.HomeScore, ev.AwayScore = &home, &away
		ev.FinishedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.OnFinished != nil {
		e.OnFinished()
	}
	return ev, nil
}

func (e *Engine) transition(ctx context.Context, op, id string, apply func(*model.Event) error) (*model.Event, error) {
	var out model.Event
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		ev, err := tx.EventForUpdate(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "event")
		}
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		from := ev.State
		if err := apply(ev); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return apperr.WrapInternal(op, err)
		}
		e.log.Info("event transition",
			zap.String("eventId", ev.ID),
			zap.String("from", string(from)),
			zap.String("to", string(ev.State)))
		out = *ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CloseBettingWindows passa para LIVE todo evento SCHEDULED cujo horário
// de início já passou. Cada evento em sua própria transação.
func (e *Engine) CloseBettingWindows(ctx context.Context) (model.SweepResult, error) {
	const op = "event.CloseBettingWindows"
	var res model.SweepResult
	evs, err := e.store.ListEvents(ctx, model.EventScheduled)
	if err != nil {
		return res, apperr.WrapInternal(op, err)
	}
	now := e.now()
	for _, ev := range evs {
		if ev.ScheduledAt.After(now) {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++
		_, err := e.StartEvent(ctx, ev.ID)
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, apperr.ErrInvalidState):
			// já iniciado por outra execução
		default:
			res.Failed++
			e.log.Error("event sweep item failed", zap.String("op", op), zap.String("eventId", ev.ID), zap.Error(err))
		}
	}
	return res, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*model.Event, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound("event.Get", "event")
	}
	if err != nil {
		return nil, apperr.WrapInternal("event.Get", err)
	}
	return ev, nil
}

func (e *Engine) List(ctx context.Context, state model.EventState) ([]model.Event, error) {
	out, err := e.store.ListEvents(ctx, state)
	if err != nil {
		return nil, apperr.WrapInternal("event.List", err)
	}
	return out, nil
}
