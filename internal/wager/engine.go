package wager

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// Odds são gravadas como NUMERIC(10,4).
const OddsPlaces = 4

var maxOdds = decimal.NewFromInt(1_000_000)

// Limits parametriza as validações de colocação e a varredura de pendentes.
type Limits struct {
	MinStake    decimal.Decimal
	MaxStake    decimal.Decimal
	DailyLimit  decimal.Decimal
	Cutoff      time.Duration // janela fecha Cutoff antes do início do evento
	ReviewGrace time.Duration // tempo após o fim do evento antes de sinalizar revisão
}

func DefaultLimits() Limits {
	return Limits{
		MinStake:    decimal.RequireFromString("1.00"),
		MaxStake:    decimal.RequireFromString("10000.00"),
		DailyLimit:  decimal.RequireFromString("20000.00"),
		ReviewGrace: 2 * time.Hour,
	}
}

// Engine coloca, cancela e liquida apostas simples.
type Engine struct {
	store    repo.Store
	ledger   *ledger.Ledger
	log      *zap.Logger
	limits   Limits
	odds     OddsSource
	notifier *notify.Notifier
	now      func() time.Time

	OnPlaced  func()             // métricas
	OnSettled func(state string) // métricas por estado final
	OnFlagged func()             // métricas
}

type Option func(*Engine)

func WithOdds(o OddsSource) Option { return func(e *Engine) { e.odds = o } }

func WithNotifier(n *notify.Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(store repo.Store, l *ledger.Ledger, log *zap.Logger, limits Limits, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		ledger: l,
		log:    log,
		limits: limits,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type PlaceRequest struct {
	AccountID string
	EventID   string
	Market    string
	Selection string
	Stake     decimal.Decimal
	Odds      decimal.Decimal
}

func (e *Engine) validate(req PlaceRequest) error {
	const op = "wager.Place"
	switch {
	case req.AccountID == "":
		return apperr.NewInvalidInput(op, "accountId", req.AccountID)
	case req.EventID == "":
		return apperr.NewInvalidInput(op, "eventId", req.EventID)
	case req.Market == "":
		return apperr.NewInvalidInput(op, "market", req.Market)
	case req.Selection == "":
		return apperr.NewInvalidInput(op, "selection", req.Selection)
	case !ledger.ValidAmount(req.Stake):
		return apperr.NewInvalidInput(op, "stake", req.Stake)
	case req.Stake.LessThan(e.limits.MinStake) || req.Stake.GreaterThan(e.limits.MaxStake):
		return apperr.Newf(apperr.Validation, op, "stake must be between %s and %s",
			e.limits.MinStake.StringFixed(2), e.limits.MaxStake.StringFixed(2))
	case req.Odds.LessThanOrEqual(decimal.NewFromInt(1)) || !req.Odds.LessThan(maxOdds):
		return apperr.NewInvalidInput(op, "odds", req.Odds)
	case !req.Odds.Equal(req.Odds.Truncate(OddsPlaces)):
		return apperr.Newf(apperr.Validation, op, "odds accept at most %d decimal places", OddsPlaces)
	}
	if req.Market == model.Market1x2 {
		switch req.Selection {
		case model.OutcomeHome, model.OutcomeDraw, model.OutcomeAway:
		default:
			return apperr.NewInvalidInput(op, "selection", req.Selection)
		}
	}
	return nil
}

// checkOdds rejeita a aposta quando o cache tem uma cotação diferente da
// informada. Falha do cache não bloqueia a aposta.
func (e *Engine) checkOdds(ctx context.Context, req PlaceRequest) error {
	if e.odds == nil {
		return nil
	}
	cur, ok, err := e.odds.CurrentOdds(ctx, req.EventID, req.Market, req.Selection)
	if err != nil {
		e.log.Warn("odds cache lookup failed", zap.String("eventId", req.EventID), zap.Error(err))
		return nil
	}
	if ok && !cur.Equal(req.Odds) {
		return apperr.Newf(apperr.Validation, "wager.Place", "odds changed; current=%s", cur.String())
	}
	return nil
}

// Place valida tudo antes de debitar; débito e criação da aposta são
// gravados na mesma transação.
func (e *Engine) Place(ctx context.Context, req PlaceRequest) (*model.Wager, error) {
	const op = "wager.Place"
	if err := e.validate(req); err != nil {
		return nil, err
	}
	if err := e.checkOdds(ctx, req); err != nil {
		return nil, err
	}

	now := e.now()
	w := &model.Wager{
		ID:              uuid.NewString(),
		AccountID:       req.AccountID,
		EventID:         req.EventID,
		Market:          req.Market,
		Selection:       req.Selection,
		Odds:            req.Odds,
		Stake:           req.Stake,
		PotentialPayout: req.Stake.Mul(req.Odds).Round(ledger.FiatPlaces),
		State:           model.WagerPending,
		PlacedAt:        now,
	}

	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		// trava a conta primeiro: serializa limite diário e guarda de duplicidade
		acc, err := tx.AccountForUpdate(ctx, req.AccountID)
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "account")
		}
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if !acc.Active {
			return apperr.NewInvalidState(op, "account", "inactive")
		}

		ev, err := tx.GetEvent(ctx, req.EventID)
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "event")
		}
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if ev.State != model.EventScheduled || !now.Before(ev.ScheduledAt.Add(-e.limits.Cutoff)) {
			return apperr.New(apperr.InvalidState, op, "betting window closed")
		}

		if _, err := tx.FindOpenWager(ctx, req.AccountID, req.EventID, req.Market); err == nil {
			return apperr.New(apperr.DuplicateRequest, op, "open wager already exists for this event and market")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return apperr.WrapInternal(op, err)
		}

		if e.limits.DailyLimit.IsPositive() {
			dayStart := now.Truncate(24 * time.Hour)
			staked, err := tx.SumStakesSince(ctx, req.AccountID, dayStart)
			if err != nil {
				return apperr.WrapInternal(op, err)
			}
			if staked.Add(req.Stake).GreaterThan(e.limits.DailyLimit) {
				return apperr.Newf(apperr.Validation, op, "daily stake limit exceeded; remaining=%s",
					decimal.Max(e.limits.DailyLimit.Sub(staked), decimal.Zero).StringFixed(2))
			}
		}

		if _, err := e.ledger.DebitTx(ctx, tx, req.AccountID, req.Stake, model.EntryWagerDebit, w.ID); err != nil {
			return err
		}
		if err := tx.InsertWager(ctx, w); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return apperr.New(apperr.DuplicateRequest, op, "open wager already exists for this event and market")
			}
			return apperr.WrapInternal(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("wager placed",
		zap.String("wagerId", w.ID),
		zap.String("accountId", w.AccountID),
		zap.String("eventId", w.EventID),
		zap.String("stake", w.Stake.StringFixed(2)),
		zap.String("odds", w.Odds.String()),
		zap.String("potentialPayout", w.PotentialPayout.StringFixed(2)))
	if e.OnPlaced != nil {
		e.OnPlaced()
	}
	e.notifier.Notify(ctx, w.AccountID, events.KindWagerPlaced, w)
	return w, nil
}

func (e *Engine) ResolveWon(ctx context.Context, wagerID string) (*model.Wager, error) {
	return e.settle(ctx, "wager.ResolveWon", wagerID, model.WagerWon, "")
}

func (e *Engine) ResolveLost(ctx context.Context, wagerID string) (*model.Wager, error) {
	return e.settle(ctx, "wager.ResolveLost", wagerID, model.WagerLost, "")
}

func (e *Engine) Cancel(ctx context.Context, wagerID, reason string) (*model.Wager, error) {
	return e.settle(ctx, "wager.Cancel", wagerID, model.WagerCancelled, reason)
}

func (e *Engine) Refund(ctx context.Context, wagerID, reason string) (*model.Wager, error) {
	return e.settle(ctx, "wager.Refund", wagerID, model.WagerRefunded, reason)
}

// settle é a única transição a partir de PENDING. O lock na aposta garante
// que duas liquidações concorrentes não creditam duas vezes.
func (e *Engine) settle(ctx context.Context, op, wagerID string, target model.WagerState, reason string) (*model.Wager, error) {
	var w *model.Wager
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		w, err = tx.WagerForUpdate(ctx, wagerID)
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "wager")
		}
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if w.State != model.WagerPending {
			return apperr.NewInvalidState(op, "wager", w.State)
		}

		switch target {
		case model.WagerWon:
			_, err = e.ledger.CreditTx(ctx, tx, w.AccountID, w.PotentialPayout, model.EntryWagerCredit, w.ID)
		case model.WagerCancelled, model.WagerRefunded:
			_, err = e.ledger.CreditTx(ctx, tx, w.AccountID, w.Stake, model.EntryRefund, w.ID)
		}
		if err != nil {
			return err
		}

		now := e.now()
		w.State = target
		w.Reason = reason
		w.NeedsReview = false
		w.ResolvedAt = &now
		return apperr.WrapInternal(op, tx.UpdateWager(ctx, w))
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("wager settled",
		zap.String("wagerId", w.ID),
		zap.String("accountId", w.AccountID),
		zap.String("state", string(w.State)),
		zap.String("reason", reason))
	if e.OnSettled != nil {
		e.OnSettled(string(w.State))
	}
	e.notifier.Notify(ctx, w.AccountID, events.KindWagerSettled, w)
	return w, nil
}

// ProcessExpiredPending sinaliza para revisão manual as apostas ainda
// PENDING cujo evento terminou há mais de ReviewGrace. Não liquida nada.
func (e *Engine) ProcessExpiredPending(ctx context.Context) (model.SweepResult, error) {
	const op = "wager.ProcessExpiredPending"
	var res model.SweepResult

	stale, err := e.store.ListStalePendingWagers(ctx, e.now().Add(-e.limits.ReviewGrace))
	if err != nil {
		return res, apperr.WrapInternal(op, err)
	}
	res.Scanned = len(stale)

	for _, candidate := range stale {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		flagged, err := e.flag(ctx, candidate.ID)
		if err != nil {
			res.Failed++
			e.log.Error("flag pending wager failed", zap.String("wagerId", candidate.ID), zap.Error(err))
			continue
		}
		if flagged == nil {
			continue
		}
		res.Processed++
		e.log.Warn("wager needs manual resolution",
			zap.String("wagerId", candidate.ID),
			zap.String("eventId", candidate.EventID))
		if e.OnFlagged != nil {
			e.OnFlagged()
		}
		e.notifier.Notify(ctx, flagged.AccountID, events.KindWagerNeedsReview, flagged)
	}
	return res, nil
}

// flag devolve a aposta já sinalizada, ou nil se outra execução (ou um
// operador) chegou antes.
func (e *Engine) flag(ctx context.Context, wagerID string) (*model.Wager, error) {
	var flagged *model.Wager
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		flagged = nil
		w, err := tx.WagerForUpdate(ctx, wagerID)
		if err != nil {
			return err
		}
		if w.State != model.WagerPending || w.NeedsReview {
			return nil
		}
		w.NeedsReview = true
		w.Reason = "event finished; awaiting manual resolution"
		if err := tx.UpdateWager(ctx, w); err != nil {
			return err
		}
		flagged = w
		return nil
	})
	return flagged, err
}
