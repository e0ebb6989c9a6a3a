package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/notify"
	"github.com/radieske/sports-bet-ledger/internal/repo"
	"github.com/radieske/sports-bet-ledger/pkg/contracts/events"
)

// FiatPlaces é a precisão (centavos) de todo valor fiat lançado no ledger.
const FiatPlaces = 2

// Ledger é o único caminho que altera Account.Balance. Cada mutação grava
// exatamente um LedgerEntry com balanceAfter na mesma transação.
type Ledger struct {
	store         repo.Store
	log           *zap.Logger
	notifier      *notify.Notifier
	now           func() time.Time
	withdrawalFee decimal.Decimal
}

type Option func(*Ledger)

func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func WithNotifier(n *notify.Notifier) Option { return func(l *Ledger) { l.notifier = n } }

// WithWithdrawalFee define a taxa fixa cobrada em Withdraw (lançamento FEE).
func WithWithdrawalFee(fee decimal.Decimal) Option {
	return func(l *Ledger) { l.withdrawalFee = fee }
}

func New(store repo.Store, log *zap.Logger, opts ...Option) *Ledger {
	l := &Ledger{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ValidAmount exige valor positivo com no máximo duas casas decimais.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Round(FiatPlaces))
}

// DebitTx debita dentro de uma transação já aberta pelo chamador. Trava a
// conta, exige conta ativa e saldo suficiente.
func (l *Ledger) DebitTx(ctx context.Context, tx repo.Tx, accountID string, amount decimal.Decimal, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	const op = "ledger.Debit"
	if !ValidAmount(amount) {
		return nil, apperr.NewInvalidInput(op, "amount", amount)
	}
	if !kind.Valid() {
		return nil, apperr.NewInvalidInput(op, "kind", kind)
	}

	acc, err := l.lockAccount(ctx, tx, op, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Active {
		return nil, apperr.NewInvalidState(op, "account", "inactive")
	}
	if acc.Balance.LessThan(amount) {
		return nil, apperr.NewInsufficientFunds(op)
	}
	return l.post(ctx, tx, op, acc, amount.Neg(), kind, referenceID)
}

// CreditTx credita dentro de uma transação já aberta. Contas inativas
// continuam recebendo créditos (estornos, prêmios).
func (l *Ledger) CreditTx(ctx context.Context, tx repo.Tx, accountID string, amount decimal.Decimal, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	const op = "ledger.Credit"
	if !ValidAmount(amount) {
		return nil, apperr.NewInvalidInput(op, "amount", amount)
	}
	if !kind.Valid() {
		return nil, apperr.NewInvalidInput(op, "kind", kind)
	}

	acc, err := l.lockAccount(ctx, tx, op, accountID)
	if err != nil {
		return nil, err
	}
	return l.post(ctx, tx, op, acc, amount, kind, referenceID)
}

func (l *Ledger) lockAccount(ctx context.Context, tx repo.Tx, op, accountID string) (*model.Account, error) {
	acc, err := tx.AccountForUpdate(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound(op, "account")
	}
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	return acc, nil
}

func (l *Ledger) post(ctx context.Context, tx repo.Tx, op string, acc *model.Account, signed decimal.Decimal, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	now := l.now()
	acc.Balance = acc.Balance.Add(signed)
	acc.UpdatedAt = now
	if err := tx.UpdateAccount(ctx, acc); err != nil {
		return nil, apperr.WrapInternal(op, err)
	}

	e := &model.LedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    acc.ID,
		Kind:         kind,
		Amount:       signed,
		BalanceAfter: acc.Balance,
		ReferenceID:  referenceID,
		CreatedAt:    now,
	}
	if err := tx.InsertEntry(ctx, e); err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	return e, nil
}

// Debit abre a própria transação. Não usar de dentro de outro InTx.
func (l *Ledger) Debit(ctx context.Context, accountID string, amount decimal.Decimal, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		entry, err = l.DebitTx(ctx, tx, accountID, amount, kind, referenceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logEntry("ledger debit", entry)
	return entry, nil
}

func (l *Ledger) Credit(ctx context.Context, accountID string, amount decimal.Decimal, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	var entry *model.LedgerEntry
	err := l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		var err error
		entry, err = l.CreditTx(ctx, tx, accountID, amount, kind, referenceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.logEntry("ledger credit", entry)
	return entry, nil
}

func (l *Ledger) logEntry(msg string, e *model.LedgerEntry) {
	l.log.Info(msg,
		zap.String("accountId", e.AccountID),
		zap.String("kind", string(e.Kind)),
		zap.String("amount", e.Amount.StringFixed(FiatPlaces)),
		zap.String("balanceAfter", e.BalanceAfter.StringFixed(FiatPlaces)),
		zap.String("referenceId", e.ReferenceID))
}

// OpenAccount cria a conta com saldo zero. id vazio gera um uuid.
func (l *Ledger) OpenAccount(ctx context.Context, id string) (*model.Account, error) {
	const op = "ledger.OpenAccount"
	if id == "" {
		id = uuid.NewString()
	}
	now := l.now()
	acc := &model.Account{ID: id, Balance: decimal.Zero, Active: true, CreatedAt: now, UpdatedAt: now}

	err := l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return tx.InsertAccount(ctx, acc)
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, apperr.Newf(apperr.DuplicateRequest, op, "account %s already exists", id)
	}
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	l.log.Info("account opened", zap.String("accountId", id))
	return acc, nil
}

func (l *Ledger) SetActive(ctx context.Context, accountID string, active bool) error {
	const op = "ledger.SetActive"
	return l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		acc, err := l.lockAccount(ctx, tx, op, accountID)
		if err != nil {
			return err
		}
		acc.Active = active
		acc.UpdatedAt = l.now()
		return apperr.WrapInternal(op, tx.UpdateAccount(ctx, acc))
	})
}

func (l *Ledger) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	acc, err := l.store.GetAccount(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound("ledger.GetAccount", "account")
	}
	if err != nil {
		return nil, apperr.WrapInternal("ledger.GetAccount", err)
	}
	return acc, nil
}

func (l *Ledger) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

// History devolve os lançamentos mais recentes primeiro.
func (l *Ledger) History(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	if _, err := l.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	entries, err := l.store.ListEntries(ctx, accountID, limit, offset)
	if err != nil {
		return nil, apperr.WrapInternal("ledger.History", err)
	}
	return entries, nil
}

// Verify confere balance == soma dos lançamentos.
func (l *Ledger) Verify(ctx context.Context, accountID string) error {
	const op = "ledger.Verify"
	acc, err := l.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	sum, err := l.store.SumEntries(ctx, accountID)
	if err != nil {
		return apperr.WrapInternal(op, err)
	}
	if !sum.Equal(acc.Balance) {
		return apperr.Newf(apperr.Internal, op, "balance %s differs from entries sum %s", acc.Balance, sum)
	}
	return nil
}

// Deposit credita um aporte fiat externo. Idempotente por referenceID: um
// segundo Deposit com a mesma referência devolve o lançamento original.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, referenceID string) (*model.LedgerEntry, error) {
	const op = "ledger.Deposit"
	if referenceID == "" {
		return nil, apperr.NewInvalidInput(op, "referenceId", referenceID)
	}

	var (
		entry  *model.LedgerEntry
		replay bool
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		entry, replay = nil, false
		// trava a conta antes de procurar a referência para serializar replays
		if _, err := l.lockAccount(ctx, tx, op, accountID); err != nil {
			return err
		}
		prev, err := tx.FindEntry(ctx, accountID, model.EntryDeposit, referenceID)
		if err == nil {
			entry, replay = prev, true
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return apperr.WrapInternal(op, err)
		}
		entry, err = l.CreditTx(ctx, tx, accountID, amount, model.EntryDeposit, referenceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if replay {
		l.log.Info("deposit replay ignored", zap.String("accountId", accountID), zap.String("referenceId", referenceID))
		return entry, nil
	}
	l.logEntry("deposit", entry)
	l.notifier.Notify(ctx, accountID, events.KindLedgerDeposit, entry)
	return entry, nil
}

// Withdraw debita o saque e, se configurada, a taxa fixa em um lançamento
// FEE separado. Saldo precisa cobrir valor + taxa. Idempotente por referenceID.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, referenceID string) (*model.LedgerEntry, error) {
	const op = "ledger.Withdraw"
	if referenceID == "" {
		return nil, apperr.NewInvalidInput(op, "referenceId", referenceID)
	}
	if !ValidAmount(amount) {
		return nil, apperr.NewInvalidInput(op, "amount", amount)
	}

	var (
		entry  *model.LedgerEntry
		replay bool
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		entry, replay = nil, false
		acc, err := l.lockAccount(ctx, tx, op, accountID)
		if err != nil {
			return err
		}
		prev, err := tx.FindEntry(ctx, accountID, model.EntryWithdrawal, referenceID)
		if err == nil {
			entry, replay = prev, true
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return apperr.WrapInternal(op, err)
		}

		if acc.Balance.LessThan(amount.Add(l.withdrawalFee)) {
			return apperr.NewInsufficientFunds(op)
		}
		if entry, err = l.DebitTx(ctx, tx, accountID, amount, model.EntryWithdrawal, referenceID); err != nil {
			return err
		}
		if l.withdrawalFee.IsPositive() {
			if _, err := l.DebitTx(ctx, tx, accountID, l.withdrawalFee, model.EntryFee, referenceID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if replay {
		l.log.Info("withdrawal replay ignored", zap.String("accountId", accountID), zap.String("referenceId", referenceID))
		return entry, nil
	}
	l.logEntry("withdrawal", entry)
	l.notifier.Notify(ctx, accountID, events.KindLedgerWithdrawal, entry)
	return entry, nil
}
