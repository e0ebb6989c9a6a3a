package pool

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

var hundred = decimal.NewFromInt(100)

// Engine conduz o ciclo de vida dos bolões:
// DRAFT -> ACTIVE -> CLOSED -> FINALIZED, com CANCELLED a partir de DRAFT/ACTIVE.
type Engine struct {
	store      repo.Store
	ledger     *ledger.Ledger
	log        *zap.Logger
	notifier   *notify.Notifier
	now        func() time.Time
	exactBonus int

	OnJoined       func() // métricas
	OnFinalized    func()
	OnRefundFailed func()
}

type Option func(*Engine)

func WithNotifier(n *notify.Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithExactScoreBonus soma pontos extras por placar exato.
func WithExactScoreBonus(points int) Option { return func(e *Engine) { e.exactBonus = points } }

func New(store repo.Store, l *ledger.Ledger, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, ledger: l, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(e)
	}
	return e
}

type CreateRequest struct {
	Name            string
	OwnerAccountID  string
	EntryFee        decimal.Decimal
	MaxParticipants int
	Distribution    model.Distribution
	HouseCutPct     decimal.Decimal
	CreatorCutPct   decimal.Decimal
	EventIDs        []string
	OpenAt          time.Time
	CloseAt         time.Time
}

// validateDistribution: percentuais das posições somam 100 do valor
// distribuível; as comissões juntas ficam abaixo de 100.
func validateDistribution(op string, req CreateRequest) error {
	if len(req.Distribution) == 0 {
		return apperr.NewInvalidInput(op, "distribution", "empty")
	}
	seen := map[int]bool{}
	for _, s := range req.Distribution {
		if s.Rank < 1 || seen[s.Rank] {
			return apperr.NewInvalidInput(op, "distribution.rank", s.Rank)
		}
		if !s.Percentage.IsPositive() {
			return apperr.NewInvalidInput(op, "distribution.percentage", s.Percentage)
		}
		seen[s.Rank] = true
	}
	if !req.Distribution.Total().Equal(hundred) {
		return apperr.Newf(apperr.Validation, op, "distribution must sum to 100, got %s", req.Distribution.Total())
	}
	if req.HouseCutPct.IsNegative() || req.CreatorCutPct.IsNegative() {
		return apperr.New(apperr.Validation, op, "cuts must not be negative")
	}
	if !req.HouseCutPct.Add(req.CreatorCutPct).LessThan(hundred) {
		return apperr.New(apperr.Validation, op, "house and creator cuts must leave a distributable share")
	}
	return nil
}

func (e *Engine) CreatePool(ctx context.Context, req CreateRequest) (*model.Pool, error) {
	const op = "pool.Create"
	now := e.now()
	switch {
	case req.Name == "":
		return nil, apperr.NewInvalidInput(op, "name", req.Name)
	case req.OwnerAccountID == "":
		return nil, apperr.NewInvalidInput(op, "ownerAccountId", req.OwnerAccountID)
	case !ledger.ValidAmount(req.EntryFee):
		return nil, apperr.NewInvalidInput(op, "entryFee", req.EntryFee)
	case req.MaxParticipants < 2:
		return nil, apperr.NewInvalidInput(op, "maxParticipants", req.MaxParticipants)
	case len(req.EventIDs) == 0:
		return nil, apperr.NewInvalidInput(op, "eventIds", "empty")
	case !req.CloseAt.After(req.OpenAt) || !req.CloseAt.After(now):
		return nil, apperr.NewInvalidInput(op, "closeAt", req.CloseAt)
	}
	if err := validateDistribution(op, req); err != nil {
		return nil, err
	}

	uniq := make(pq.StringArray, 0, len(req.EventIDs))
	seen := map[string]bool{}
	for _, id := range req.EventIDs {
		if id == "" || seen[id] {
			return nil, apperr.NewInvalidInput(op, "eventIds", id)
		}
		seen[id] = true
		uniq = append(uniq, id)
	}

	p := &model.Pool{
		ID:              uuid.NewString(),
		Name:            req.Name,
		OwnerAccountID:  req.OwnerAccountID,
		EntryFee:        req.EntryFee,
		MaxParticipants: req.MaxParticipants,
		PoolTotal:       decimal.Zero,
		Distribution:    append(model.Distribution(nil), req.Distribution...),
		HouseCutPct:     req.HouseCutPct,
		CreatorCutPct:   req.CreatorCutPct,
		EventIDs:        uniq,
		State:           model.PoolDraft,
		OpenAt:          req.OpenAt,
		CloseAt:         req.CloseAt,
		HouseAmount:     decimal.Zero,
		CreatorAmount:   decimal.Zero,
		CreatedAt:       now,
	}
	// abertura já vencida: nasce ativo
	if !req.OpenAt.After(now) {
		p.State = model.PoolActive
	}

	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		if _, err := tx.GetAccount(ctx, req.OwnerAccountID); errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "owner account")
		} else if err != nil {
			return apperr.WrapInternal(op, err)
		}
		for _, id := range p.EventIDs {
			ev, err := tx.GetEvent(ctx, id)
			if errors.Is(err, repo.ErrNotFound) {
				return apperr.NewNotFound(op, "event "+id)
			}
			if err != nil {
				return apperr.WrapInternal(op, err)
			}
			if ev.Finished() {
				return apperr.NewInvalidState(op, "event "+id, ev.State)
			}
		}
		return apperr.WrapInternal(op, tx.InsertPool(ctx, p))
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pool created",
		zap.String("poolId", p.ID),
		zap.String("owner", p.OwnerAccountID),
		zap.String("entryFee", p.EntryFee.StringFixed(2)),
		zap.String("state", string(p.State)))
	return p, nil
}

// transition aplica from -> to sob lock. guard pode vetar a transição.
func (e *Engine) transition(ctx context.Context, op, poolID string, from []model.PoolState, to model.PoolState, guard func(p *model.Pool) error) (*model.Pool, error) {
	var p *model.Pool
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		if p, err = lockPool(ctx, tx, op, poolID); err != nil {
			return err
		}
		allowed := false
		for _, s := range from {
			allowed = allowed || p.State == s
		}
		if !allowed {
			return apperr.NewInvalidState(op, "pool", p.State)
		}
		if guard != nil {
			if err := guard(p); err != nil {
				return err
			}
		}
		p.State = to
		return apperr.WrapInternal(op, tx.UpdatePool(ctx, p))
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("pool state changed", zap.String("poolId", p.ID), zap.String("state", string(to)))
	return p, nil
}

func lockPool(ctx context.Context, tx repo.Tx, op, poolID string) (*model.Pool, error) {
	p, err := tx.PoolForUpdate(ctx, poolID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound(op, "pool")
	}
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	return p, nil
}

// ActivatePool abre um bolão DRAFT para inscrições.
func (e *Engine) ActivatePool(ctx context.Context, poolID string) (*model.Pool, error) {
	const op = "pool.Activate"
	return e.transition(ctx, op, poolID, []model.PoolState{model.PoolDraft}, model.PoolActive, func(p *model.Pool) error {
		if !e.now().Before(p.CloseAt) {
			return apperr.New(apperr.InvalidState, op, "pool close time already passed")
		}
		return nil
	})
}

// ClosePool encerra as inscrições antes do prazo (ação administrativa).
func (e *Engine) ClosePool(ctx context.Context, poolID string) (*model.Pool, error) {
	return e.transition(ctx, "pool.Close", poolID, []model.PoolState{model.PoolActive}, model.PoolClosed, nil)
}

// JoinPool debita a inscrição, incrementa poolTotal/currentParticipants e cria
// a participação numa única transação com o bolão travado.
func (e *Engine) JoinPool(ctx context.Context, poolID, accountID string, entryFee decimal.Decimal) (*model.Participation, error) {
	const op = "pool.Join"
	if accountID == "" {
		return nil, apperr.NewInvalidInput(op, "accountId", accountID)
	}

	now := e.now()
	part := &model.Participation{
		ID:           uuid.NewString(),
		PoolID:       poolID,
		AccountID:    accountID,
		PrizeAwarded: decimal.Zero,
		State:        model.ParticipationActive,
		JoinedAt:     now,
	}

	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		p, err := lockPool(ctx, tx, op, poolID)
		if err != nil {
			return err
		}
		if p.State != model.PoolActive {
			return apperr.NewInvalidState(op, "pool", p.State)
		}
		if !now.Before(p.CloseAt) {
			return apperr.New(apperr.InvalidState, op, "pool closed for entries")
		}
		if !entryFee.Equal(p.EntryFee) {
			return apperr.Newf(apperr.Validation, op, "entry fee must be %s", p.EntryFee.StringFixed(2))
		}

		if _, err := tx.FindParticipation(ctx, poolID, accountID); err == nil {
			return apperr.New(apperr.DuplicateRequest, op, "account already joined this pool")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return apperr.WrapInternal(op, err)
		}
		if p.CurrentParticipants >= p.MaxParticipants {
			return apperr.New(apperr.CapacityExceeded, op, "pool is full")
		}

		if _, err := e.ledger.DebitTx(ctx, tx, accountID, p.EntryFee, model.EntryPoolEntryDebit, part.ID); err != nil {
			return err
		}
		p.CurrentParticipants++
		p.PoolTotal = p.PoolTotal.Add(p.EntryFee)
		if err := tx.UpdatePool(ctx, p); err != nil {
			return apperr.WrapInternal(op, err)
		}

		part.AmountPaid = p.EntryFee
		if err := tx.InsertParticipation(ctx, part); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return apperr.New(apperr.DuplicateRequest, op, "account already joined this pool")
			}
			return apperr.WrapInternal(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("pool joined",
		zap.String("poolId", poolID),
		zap.String("accountId", accountID),
		zap.String("participationId", part.ID),
		zap.String("amountPaid", part.AmountPaid.StringFixed(2)))
	if e.OnJoined != nil {
		e.OnJoined()
	}
	e.notifier.Notify(ctx, accountID, events.KindPoolJoined, part)
	return part, nil
}

// PredictionInput: Pick é obrigatório salvo quando o placar é informado,
// caso em que é derivado dele.
type PredictionInput struct {
	EventID       string `json:"eventId"`
	Pick          string `json:"pick"`
	PredictedHome *int   `json:"predictedHome,omitempty"`
	PredictedAway *int   `json:"predictedAway,omitempty"`
}

func resolvePick(op string, in PredictionInput) (string, error) {
	hasScore := in.PredictedHome != nil || in.PredictedAway != nil
	if hasScore {
		if in.PredictedHome == nil || in.PredictedAway == nil || *in.PredictedHome < 0 || *in.PredictedAway < 0 {
			return "", apperr.NewInvalidInput(op, "predicted score", in.EventID)
		}
		derived := outcomeOf(*in.PredictedHome, *in.PredictedAway)
		if in.Pick != "" && in.Pick != derived {
			return "", apperr.Newf(apperr.Validation, op, "pick %s contradicts predicted score for event %s", in.Pick, in.EventID)
		}
		return derived, nil
	}
	switch in.Pick {
	case model.OutcomeHome, model.OutcomeDraw, model.OutcomeAway:
		return in.Pick, nil
	}
	return "", apperr.NewInvalidInput(op, "pick", in.Pick)
}

func outcomeOf(home, away int) string {
	switch {
	case home > away:
		return model.OutcomeHome
	case home < away:
		return model.OutcomeAway
	default:
		return model.OutcomeDraw
	}
}

// SubmitPredictions grava ou substitui palpites enquanto o evento não começou.
func (e *Engine) SubmitPredictions(ctx context.Context, poolID, accountID string, inputs []PredictionInput) ([]model.Prediction, error) {
	const op = "pool.SubmitPredictions"
	if len(inputs) == 0 {
		return nil, apperr.NewInvalidInput(op, "predictions", "empty")
	}

	now := e.now()
	var out []model.Prediction
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		out = make([]model.Prediction, 0, len(inputs))
		p, err := lockPool(ctx, tx, op, poolID)
		if err != nil {
			return err
		}
		if p.State != model.PoolActive {
			return apperr.NewInvalidState(op, "pool", p.State)
		}
		part, err := tx.FindParticipation(ctx, poolID, accountID)
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.NewNotFound(op, "participation")
		}
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if part.State != model.ParticipationActive {
			return apperr.NewInvalidState(op, "participation", part.State)
		}

		for _, in := range inputs {
			if !p.HasEvent(in.EventID) {
				return apperr.Newf(apperr.Validation, op, "event %s is not part of this pool", in.EventID)
			}
			pick, err := resolvePick(op, in)
			if err != nil {
				return err
			}
			ev, err := tx.GetEvent(ctx, in.EventID)
			if err != nil {
				return apperr.WrapInternal(op, err)
			}
			if ev.State != model.EventScheduled || !now.Before(ev.ScheduledAt) {
				return apperr.Newf(apperr.InvalidState, op, "predictions locked for event %s", in.EventID)
			}

			pred := model.Prediction{
				ParticipationID: part.ID,
				PoolID:          poolID,
				EventID:         in.EventID,
				Pick:            pick,
				PredictedHome:   in.PredictedHome,
				PredictedAway:   in.PredictedAway,
				UpdatedAt:       now,
			}
			if err := tx.UpsertPrediction(ctx, &pred); err != nil {
				return apperr.WrapInternal(op, err)
			}
			out = append(out, pred)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("predictions submitted",
		zap.String("poolId", poolID),
		zap.String("accountId", accountID),
		zap.Int("count", len(out)))
	return out, nil
}

// OpenDue ativa bolões DRAFT cujo openAt já passou.
func (e *Engine) OpenDue(ctx context.Context) (model.SweepResult, error) {
	return e.sweep(ctx, "pool.OpenDue", model.PoolDraft,
		func(p model.Pool, now time.Time) bool { return !p.OpenAt.After(now) && now.Before(p.CloseAt) },
		func(ctx context.Context, id string) error {
			_, err := e.ActivatePool(ctx, id)
			return err
		})
}

// CloseExpired fecha bolões ACTIVE com closeAt vencido. Rodar de novo
// sobre um bolão já fechado não faz nada.
func (e *Engine) CloseExpired(ctx context.Context) (model.SweepResult, error) {
	const op = "pool.CloseExpired"
	return e.sweep(ctx, op, model.PoolActive,
		func(p model.Pool, now time.Time) bool { return !p.CloseAt.After(now) },
		func(ctx context.Context, id string) error {
			_, err := e.transition(ctx, op, id, []model.PoolState{model.PoolActive}, model.PoolClosed, nil)
			return err
		})
}

// sweep processa cada bolão elegível em sua própria transação. Perder a
// corrida para outra execução (InvalidState/AlreadyFinalized) não é falha.
func (e *Engine) sweep(ctx context.Context, op string, state model.PoolState, due func(model.Pool, time.Time) bool, apply func(context.Context, string) error) (model.SweepResult, error) {
	var res model.SweepResult
	pools, err := e.store.ListPools(ctx, state)
	if err != nil {
		return res, apperr.WrapInternal(op, err)
	}
	now := e.now()
	for _, p := range pools {
		if !due(p, now) {
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Scanned++
		err := apply(ctx, p.ID)
		switch {
		case err == nil:
			res.Processed++
		case errors.Is(err, apperr.ErrInvalidState), errors.Is(err, apperr.ErrAlreadyFinalized):
			e.log.Debug("pool sweep skipped", zap.String("op", op), zap.String("poolId", p.ID), zap.Error(err))
		default:
			res.Failed++
			e.log.Error("pool sweep item failed", zap.String("op", op), zap.String("poolId", p.ID), zap.Error(err))
		}
	}
	return res, nil
}
