package pool

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// CancelPool marca o bolão como CANCELLED e estorna cada participação em
// sua própria transação. Uma falha individual não interrompe as demais;
// o resultado de cada estorno volta na lista para conciliação manual.
func (e *Engine) CancelPool(ctx context.Context, poolID, reason string) ([]model.RefundOutcome, error) {
	const op = "pool.Cancel"
	p, err := e.transition(ctx, op, poolID, []model.PoolState{model.PoolDraft, model.PoolActive}, model.PoolCancelled,
		func(p *model.Pool) error {
			p.Reason = reason
			return nil
		})
	if err != nil {
		return nil, err
	}

	outcomes, err := e.refundAll(ctx, op, poolID)
	if err != nil {
		return outcomes, err
	}
	e.notifier.Notify(ctx, p.OwnerAccountID, events.KindPoolCancelled, p)
	return outcomes, nil
}

// RetryRefunds reprocessa participações ainda ACTIVE de um bolão cancelado.
func (e *Engine) RetryRefunds(ctx context.Context, poolID string) ([]model.RefundOutcome, error) {
	const op = "pool.RetryRefunds"
	p, err := e.store.GetPool(ctx, poolID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.NewNotFound(op, "pool")
		}
		return nil, apperr.WrapInternal(op, err)
	}
	if p.State != model.PoolCancelled {
		return nil, apperr.NewInvalidState(op, "pool", p.State)
	}
	return e.refundAll(ctx, op, poolID)
}

func (e *Engine) refundAll(ctx context.Context, op, poolID string) ([]model.RefundOutcome, error) {
	parts, err := e.store.ListParticipations(ctx, poolID)
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}

	outcomes := make([]model.RefundOutcome, 0, len(parts))
	for _, part := range parts {
		if part.State != model.ParticipationActive {
			continue
		}
		out := model.RefundOutcome{
			ParticipationID: part.ID,
			AccountID:       part.AccountID,
			Amount:          part.AmountPaid,
		}
		refunded, err := e.refundOne(ctx, op, poolID, part.ID)
		switch {
		case err != nil:
			out.Error = err.Error()
			e.log.Error("pool refund failed",
				zap.String("poolId", poolID),
				zap.String("participationId", part.ID),
				zap.String("accountId", part.AccountID),
				zap.String("amount", part.AmountPaid.StringFixed(2)),
				zap.Error(err))
			if e.OnRefundFailed != nil {
				e.OnRefundFailed()
			}
		case refunded:
			out.Refunded = true
			e.log.Info("pool refund",
				zap.String("poolId", poolID),
				zap.String("participationId", part.ID),
				zap.String("accountId", part.AccountID),
				zap.String("amount", part.AmountPaid.StringFixed(2)))
			e.notifier.Notify(ctx, part.AccountID, events.KindPoolRefund, out)
		default:
			// outra execução já estornou
			continue
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

// refundOne estorna uma participação: trava bolão, participação e conta
// nessa ordem, devolve amountPaid e abate poolTotal.
func (e *Engine) refundOne(ctx context.Context, op, poolID, participationID string) (bool, error) {
	refunded := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		refunded = false
		p, err := lockPool(ctx, tx, op, poolID)
		if err != nil {
			return err
		}
		part, err := tx.ParticipationForUpdate(ctx, participationID)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if part.State != model.ParticipationActive {
			return nil
		}

		if _, err := e.ledger.CreditTx(ctx, tx, part.AccountID, part.AmountPaid, model.EntryRefund, part.ID); err != nil {
			return err
		}
		part.State = model.ParticipationCancelled
		if err := tx.UpdateParticipation(ctx, part); err != nil {
			return apperr.WrapInternal(op, err)
		}
		p.PoolTotal = p.PoolTotal.Sub(part.AmountPaid)
		p.CurrentParticipants--
		if err := tx.UpdatePool(ctx, p); err != nil {
			return apperr.WrapInternal(op, err)
		}
		refunded = true
		return nil
	})
	return refunded, err
}

// FailedRefunds conta os estornos que precisam de intervenção.
func FailedRefunds(outcomes []model.RefundOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Refunded {
			n++
		}
	}
	return n
}
