package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

var (
	_ Store = (*Postgres)(nil)
	_ Tx    = (*pgTx)(nil)
)

// Postgres implementa Store sobre sqlx + lib/pq. Cada InTx abre uma
// transação READ COMMITTED; os métodos ForUpdate usam SELECT ... FOR UPDATE.
type Postgres struct {
	pgQueries
	db         *sqlx.DB
	maxRetries int
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{pgQueries: pgQueries{q: db}, db: db, maxRetries: 3}
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// InTx repete a transação inteira em serialization failure (40001) ou
// deadlock (40P01). fn não deve ter efeitos fora de tx e precisa zerar, a
// cada tentativa, qualquer resultado que acumule em variáveis externas.
func (p *Postgres) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		err = p.runTx(ctx, fn)
		if err == nil || !Retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return err
}

func (p *Postgres) runTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	sqlTx, err := p.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &pgTx{pgQueries{q: sqlTx}}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Retryable indica conflito de concorrência que o Postgres resolve repetindo
// a transação inteira: serialization failure ou deadlock.
func Retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// mapErr traduz erros do driver para as sentinelas do pacote.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// pgQueries concentra as leituras; serve tanto o pool quanto a transação.
type pgQueries struct{ q sqlx.ExtContext }

func getOne[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*T, error) {
	var out T
	if err := sqlx.GetContext(ctx, q, &out, query, args...); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (r pgQueries) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return getOne[model.Account](ctx, r.q, `SELECT * FROM accounts WHERE id=$1`, id)
}

func (r pgQueries) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	var out []model.LedgerEntry
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM ledger_entries WHERE account_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		accountID, clampLimit(limit), max(offset, 0))
	return out, err
}

func (r pgQueries) SumEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := sqlx.GetContext(ctx, r.q, &sum,
		`SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE account_id=$1`, accountID)
	return sum, err
}

func (r pgQueries) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return getOne[model.Event](ctx, r.q, `SELECT * FROM events WHERE id=$1`, id)
}

func (r pgQueries) ListEvents(ctx context.Context, state model.EventState) ([]model.Event, error) {
	var out []model.Event
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM events WHERE ($1::text = '' OR state = $1) ORDER BY scheduled_at`, string(state))
	return out, err
}

func (r pgQueries) GetWager(ctx context.Context, id string) (*model.Wager, error) {
	return getOne[model.Wager](ctx, r.q, `SELECT * FROM wagers WHERE id=$1`, id)
}

func (r pgQueries) ListWagers(ctx context.Context, f model.WagerFilter) ([]model.Wager, error) {
	var (
		conds []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.AccountID != "" {
		add("account_id", f.AccountID)
	}
	if f.EventID != "" {
		add("event_id", f.EventID)
	}
	if f.State != "" {
		add("state", string(f.State))
	}

	query := `SELECT * FROM wagers`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(f.Limit), max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY placed_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	var out []model.Wager
	err := sqlx.SelectContext(ctx, r.q, &out, query, args...)
	return out, err
}

func (r pgQueries) ListStalePendingWagers(ctx context.Context, finishedBefore time.Time) ([]model.Wager, error) {
	var out []model.Wager
	err := sqlx.SelectContext(ctx, r.q, &out, `
		SELECT w.* FROM wagers w
		JOIN events e ON e.id = w.event_id
		WHERE w.state = 'PENDING' AND NOT w.needs_review
		  AND e.state = 'FINISHED' AND e.finished_at <= $1
		ORDER BY w.placed_at`, finishedBefore)
	return out, err
}

func (r pgQueries) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	return getOne[model.Pool](ctx, r.q, `SELECT * FROM pools WHERE id=$1`, id)
}

func (r pgQueries) ListPools(ctx context.Context, state model.PoolState) ([]model.Pool, error) {
	var out []model.Pool
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM pools WHERE ($1::text = '' OR state = $1) ORDER BY created_at`, string(state))
	return out, err
}

func (r pgQueries) ListParticipations(ctx context.Context, poolID string) ([]model.Participation, error) {
	var out []model.Participation
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM pool_participations WHERE pool_id=$1 ORDER BY joined_at, id`, poolID)
	return out, err
}

func (r pgQueries) ListPredictions(ctx context.Context, participationID string) ([]model.Prediction, error) {
	var out []model.Prediction
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM pool_predictions WHERE participation_id=$1 ORDER BY event_id`, participationID)
	return out, err
}

func (r pgQueries) GetWallet(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	return getOne[model.CryptoWallet](ctx, r.q,
		`SELECT * FROM crypto_wallets WHERE account_id=$1 AND asset=$2`, accountID, asset)
}

func (r pgQueries) ListWallets(ctx context.Context, accountID string) ([]model.CryptoWallet, error) {
	var out []model.CryptoWallet
	err := sqlx.SelectContext(ctx, r.q, &out,
		`SELECT * FROM crypto_wallets WHERE account_id=$1 ORDER BY asset`, accountID)
	return out, err
}

func (r pgQueries) GetCryptoTx(ctx context.Context, txHash string) (*model.CryptoTransaction, error) {
	return getOne[model.CryptoTransaction](ctx, r.q, `SELECT * FROM crypto_transactions WHERE tx_hash=$1`, txHash)
}

func (r pgQueries) ListCryptoTxs(ctx context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error) {
	var out []model.CryptoTransaction
	err := sqlx.SelectContext(ctx, r.q, &out, `
		SELECT * FROM crypto_transactions
		WHERE ($1::text = '' OR account_id = $1) AND ($2::text = '' OR status = $2)
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		accountID, string(status), clampLimit(limit))
	return out, err
}

// pgTx adiciona as escritas e leituras com lock.
type pgTx struct{ pgQueries }

func (t *pgTx) exec(ctx context.Context, query string, arg any) error {
	_, err := sqlx.NamedExecContext(ctx, t.q, query, arg)
	return mapErr(err)
}

// update exige exatamente uma linha afetada.
func (t *pgTx) update(ctx context.Context, query string, arg any) error {
	res, err := sqlx.NamedExecContext(ctx, t.q, query, arg)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *model.Account) error {
	return t.exec(ctx, `
		INSERT INTO accounts (id, balance, active, created_at, updated_at)
		VALUES (:id, :balance, :active, :created_at, :updated_at)`, a)
}

func (t *pgTx) AccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return getOne[model.Account](ctx, t.q, `SELECT * FROM accounts WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *model.Account) error {
	return t.update(ctx, `
		UPDATE accounts SET balance=:balance, active=:active, updated_at=:updated_at
		WHERE id=:id`, a)
}

func (t *pgTx) InsertEntry(ctx context.Context, e *model.LedgerEntry) error {
	return t.exec(ctx, `
		INSERT INTO ledger_entries (id, account_id, kind, amount, balance_after, reference_id, created_at)
		VALUES (:id, :account_id, :kind, :amount, :balance_after, :reference_id, :created_at)`, e)
}

func (t *pgTx) FindEntry(ctx context.Context, accountID string, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	return getOne[model.LedgerEntry](ctx, t.q, `
		SELECT * FROM ledger_entries
		WHERE account_id=$1 AND kind=$2 AND reference_id=$3
		ORDER BY created_at LIMIT 1`, accountID, string(kind), referenceID)
}

func (t *pgTx) InsertEvent(ctx context.Context, e *model.Event) error {
	return t.exec(ctx, `
		INSERT INTO events (id, external_id, home_team, away_team, scheduled_at, state,
		                    home_score, away_score, finished_at, created_at)
		VALUES (:id, :external_id, :home_team, :away_team, :scheduled_at, :state,
		        :home_score, :away_score, :finished_at, :created_at)`, e)
}

func (t *pgTx) EventForUpdate(ctx context.Context, id string) (*model.Event, error) {
	return getOne[model.Event](ctx, t.q, `SELECT * FROM events WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	return t.update(ctx, `
		UPDATE events SET state=:state, home_score=:home_score, away_score=:away_score,
		                  finished_at=:finished_at, scheduled_at=:scheduled_at
		WHERE id=:id`, e)
}

func (t *pgTx) InsertWager(ctx context.Context, w *model.Wager) error {
	return t.exec(ctx, `
		INSERT INTO wagers (id, account_id, event_id, market, selection, odds, stake, potential_payout,
		                    state, reason, needs_review, placed_at, resolved_at)
		VALUES (:id, :account_id, :event_id, :market, :selection, :odds, :stake, :potential_payout,
		        :state, :reason, :needs_review, :placed_at, :resolved_at)`, w)
}

func (t *pgTx) WagerForUpdate(ctx context.Context, id string) (*model.Wager, error) {
	return getOne[model.Wager](ctx, t.q, `SELECT * FROM wagers WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) UpdateWager(ctx context.Context, w *model.Wager) error {
	return t.update(ctx, `
		UPDATE wagers SET state=:state, reason=:reason, needs_review=:needs_review, resolved_at=:resolved_at
		WHERE id=:id`, w)
}

func (t *pgTx) FindOpenWager(ctx context.Context, accountID, eventID, market string) (*model.Wager, error) {
	return getOne[model.Wager](ctx, t.q, `
		SELECT * FROM wagers
		WHERE account_id=$1 AND event_id=$2 AND market=$3 AND state='PENDING'
		LIMIT 1`, accountID, eventID, market)
}

func (t *pgTx) SumStakesSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := sqlx.GetContext(ctx, t.q, &sum, `
		SELECT COALESCE(SUM(stake), 0) FROM wagers
		WHERE account_id=$1 AND placed_at >= $2 AND state NOT IN ('CANCELLED', 'REFUNDED')`,
		accountID, since)
	return sum, err
}

func (t *pgTx) InsertPool(ctx context.Context, p *model.Pool) error {
	return t.exec(ctx, `
		INSERT INTO pools (id, name, owner_account_id, entry_fee, max_participants, current_participants,
		                   pool_total, distribution, house_cut_pct, creator_cut_pct, event_ids, state,
		                   open_at, close_at, house_amount, creator_amount, reason, created_at, finalized_at)
		VALUES (:id, :name, :owner_account_id, :entry_fee, :max_participants, :current_participants,
		        :pool_total, :distribution, :house_cut_pct, :creator_cut_pct, :event_ids, :state,
		        :open_at, :close_at, :house_amount, :creator_amount, :reason, :created_at, :finalized_at)`, p)
}

func (t *pgTx) PoolForUpdate(ctx context.Context, id string) (*model.Pool, error) {
	return getOne[model.Pool](ctx, t.q, `SELECT * FROM pools WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) UpdatePool(ctx context.Context, p *model.Pool) error {
	return t.update(ctx, `
		UPDATE pools SET current_participants=:current_participants, pool_total=:pool_total, state=:state,
		                 house_amount=:house_amount, creator_amount=:creator_amount, reason=:reason,
		                 finalized_at=:finalized_at
		WHERE id=:id`, p)
}

func (t *pgTx) FindParticipation(ctx context.Context, poolID, accountID string) (*model.Participation, error) {
	return getOne[model.Participation](ctx, t.q,
		`SELECT * FROM pool_participations WHERE pool_id=$1 AND account_id=$2`, poolID, accountID)
}

func (t *pgTx) ParticipationForUpdate(ctx context.Context, id string) (*model.Participation, error) {
	return getOne[model.Participation](ctx, t.q, `SELECT * FROM pool_participations WHERE id=$1 FOR UPDATE`, id)
}

func (t *pgTx) ListParticipationsForUpdate(ctx context.Context, poolID string) ([]model.Participation, error) {
	var out []model.Participation
	err := sqlx.SelectContext(ctx, t.q, &out,
		`SELECT * FROM pool_participations WHERE pool_id=$1 ORDER BY joined_at, id FOR UPDATE`, poolID)
	return out, err
}

func (t *pgTx) InsertParticipation(ctx context.Context, p *model.Participation) error {
	return t.exec(ctx, `
		INSERT INTO pool_participations (id, pool_id, account_id, amount_paid, score, exact_hits, rank,
		                                 prize_awarded, state, joined_at)
		VALUES (:id, :pool_id, :account_id, :amount_paid, :score, :exact_hits, :rank,
		        :prize_awarded, :state, :joined_at)`, p)
}

func (t *pgTx) UpdateParticipation(ctx context.Context, p *model.Participation) error {
	return t.update(ctx, `
		UPDATE pool_participations SET amount_paid=:amount_paid, score=:score, exact_hits=:exact_hits,
		                               rank=:rank, prize_awarded=:prize_awarded, state=:state
		WHERE id=:id`, p)
}

func (t *pgTx) UpsertPrediction(ctx context.Context, p *model.Prediction) error {
	return t.exec(ctx, `
		INSERT INTO pool_predictions (participation_id, pool_id, event_id, pick, predicted_home,
		                              predicted_away, is_correct, exact_score, updated_at)
		VALUES (:participation_id, :pool_id, :event_id, :pick, :predicted_home,
		        :predicted_away, :is_correct, :exact_score, :updated_at)
		ON CONFLICT (participation_id, event_id) DO UPDATE SET
		    pick=EXCLUDED.pick, predicted_home=EXCLUDED.predicted_home,
		    predicted_away=EXCLUDED.predicted_away, is_correct=EXCLUDED.is_correct,
		    exact_score=EXCLUDED.exact_score, updated_at=EXCLUDED.updated_at`, p)
}

func (t *pgTx) WalletForUpdate(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	if _, err := t.q.ExecContext(ctx, `
		INSERT INTO crypto_wallets (account_id, asset) VALUES ($1, $2)
		ON CONFLICT (account_id, asset) DO NOTHING`, accountID, asset); err != nil {
		return nil, mapErr(err)
	}
	return getOne[model.CryptoWallet](ctx, t.q,
		`SELECT * FROM crypto_wallets WHERE account_id=$1 AND asset=$2 FOR UPDATE`, accountID, asset)
}

func (t *pgTx) UpdateWallet(ctx context.Context, w *model.CryptoWallet) error {
	return t.update(ctx, `
		UPDATE crypto_wallets SET balance=:balance, pending_deposits=:pending_deposits,
		                          pending_withdrawals=:pending_withdrawals, total_deposited=:total_deposited,
		                          total_withdrawn=:total_withdrawn, updated_at=:updated_at
		WHERE account_id=:account_id AND asset=:asset`, w)
}

func (t *pgTx) InsertCryptoTx(ctx context.Context, c *model.CryptoTransaction) error {
	return t.exec(ctx, `
		INSERT INTO crypto_transactions (id, account_id, type, asset, amount, fee, net_amount, usd_amount,
		                                 from_address, to_address, tx_hash, status, confirmations,
		                                 required_confirmations, notes, created_at, confirmed_at)
		VALUES (:id, :account_id, :type, :asset, :amount, :fee, :net_amount, :usd_amount,
		        :from_address, :to_address, :tx_hash, :status, :confirmations,
		        :required_confirmations, :notes, :created_at, :confirmed_at)`, c)
}

func (t *pgTx) CryptoTxForUpdate(ctx context.Context, txHash string) (*model.CryptoTransaction, error) {
	return getOne[model.CryptoTransaction](ctx, t.q,
		`SELECT * FROM crypto_transactions WHERE tx_hash=$1 FOR UPDATE`, txHash)
}

func (t *pgTx) UpdateCryptoTx(ctx context.Context, c *model.CryptoTransaction) error {
	return t.update(ctx, `
		UPDATE crypto_transactions SET status=:status, confirmations=:confirmations, fee=:fee,
		                               net_amount=:net_amount, usd_amount=:usd_amount, notes=:notes,
		                               confirmed_at=:confirmed_at
		WHERE tx_hash=:tx_hash`, c)
}
