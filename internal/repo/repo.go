package repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// Store é a unidade de trabalho compartilhada por ledger, apostas, bolões
// e conciliação cripto. Toda mutação acontece dentro de InTx; leituras
// fora de transação não bloqueiam linhas.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Reader agrupa as consultas sem lock.
type Reader interface {
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	ListEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error)
	SumEntries(ctx context.Context, accountID string) (decimal.Decimal, error)

	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context, state model.EventState) ([]model.Event, error)

	GetWager(ctx context.Context, id string) (*model.Wager, error)
	ListWagers(ctx context.Context, f model.WagerFilter) ([]model.Wager, error)
	// ListStalePendingWagers lista apostas PENDING, ainda não sinalizadas, cujo
	// evento terminou antes de finishedBefore.
	ListStalePendingWagers(ctx context.Context, finishedBefore time.Time) ([]model.Wager, error)

	GetPool(ctx context.Context, id string) (*model.Pool, error)
	ListPools(ctx context.Context, state model.PoolState) ([]model.Pool, error)
	ListParticipations(ctx context.Context, poolID string) ([]model.Participation, error)
	ListPredictions(ctx context.Context, participationID string) ([]model.Prediction, error)

	GetWallet(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error)
	ListWallets(ctx context.Context, accountID string) ([]model.CryptoWallet, error)
	GetCryptoTx(ctx context.Context, txHash string) (*model.CryptoTransaction, error)
	ListCryptoTxs(ctx context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error)
}

// Tx expõe as leituras com lock (ForUpdate) e as escritas. Os métodos
// ForUpdate serializam mutações concorrentes sobre a mesma entidade.
type Tx interface {
	Reader

	InsertAccount(ctx context.Context, a *model.Account) error
	AccountForUpdate(ctx context.Context, id string) (*model.Account, error)
	UpdateAccount(ctx context.Context, a *model.Account) error
	InsertEntry(ctx context.Context, e *model.LedgerEntry) error
	FindEntry(ctx context.Context, accountID string, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error)

	InsertEvent(ctx context.Context, e *model.Event) error
	EventForUpdate(ctx context.Context, id string) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error

	InsertWager(ctx context.Context, w *model.Wager) error
	WagerForUpdate(ctx context.Context, id string) (*model.Wager, error)
	UpdateWager(ctx context.Context, w *model.Wager) error
	FindOpenWager(ctx context.Context, accountID, eventID, market string) (*model.Wager, error)
	// SumStakesSince soma as apostas não estornadas feitas a partir de since.
	SumStakesSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error)

	InsertPool(ctx context.Context, p *model.Pool) error
	PoolForUpdate(ctx context.Context, id string) (*model.Pool, error)
	UpdatePool(ctx context.Context, p *model.Pool) error
	FindParticipation(ctx context.Context, poolID, accountID string) (*model.Participation, error)
	ParticipationForUpdate(ctx context.Context, id string) (*model.Participation, error)
	ListParticipationsForUpdate(ctx context.Context, poolID string) ([]model.Participation, error)
	InsertParticipation(ctx context.Context, p *model.Participation) error
	UpdateParticipation(ctx context.Context, p *model.Participation) error
	UpsertPrediction(ctx context.Context, p *model.Prediction) error

	// WalletForUpdate cria a carteira zerada quando ainda não existe.
	WalletForUpdate(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error)
	UpdateWallet(ctx context.Context, w *model.CryptoWallet) error
	InsertCryptoTx(ctx context.Context, t *model.CryptoTransaction) error
	CryptoTxForUpdate(ctx context.Context, txHash string) (*model.CryptoTransaction, error)
	UpdateCryptoTx(ctx context.Context, t *model.CryptoTransaction) error
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
