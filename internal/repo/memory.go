package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/model"
)

type predKey struct{ participationID, eventID string }

type walletKey struct{ accountID, asset string }

// Memory implementa Store em memória. InTx segura um mutex exclusivo pela
// transação inteira e desfaz as escritas (undo log) se fn falhar.
// Usado em testes e no modo local sem Postgres.
type Memory struct {
	mu sync.Mutex

	accounts   map[string]model.Account
	entries    []model.LedgerEntry
	events     map[string]model.Event
	eventIDs   []string
	wagers     map[string]model.Wager
	wagerIDs   []string
	pools      map[string]model.Pool
	poolIDs    []string
	parts      map[string]model.Participation
	partIDs    []string
	preds      map[predKey]model.Prediction
	predKeys   []predKey
	wallets    map[walletKey]model.CryptoWallet
	walletKeys []walletKey
	cryptoTxs  map[string]model.CryptoTransaction
	cryptoIDs  []string
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]model.Account),
		events:    make(map[string]model.Event),
		wagers:    make(map[string]model.Wager),
		pools:     make(map[string]model.Pool),
		parts:     make(map[string]model.Participation),
		preds:     make(map[predKey]model.Prediction),
		wallets:   make(map[walletKey]model.CryptoWallet),
		cryptoTxs: make(map[string]model.CryptoTransaction),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{memView: memView{m: m}}
	if err := fn(ctx, tx); err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		return err
	}
	return nil
}

func read[T any](m *Memory, fn func(v memView) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(memView{m: m})
}

func (m *Memory) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	return read(m, func(v memView) (*model.Account, error) { return v.GetAccount(ctx, id) })
}

func (m *Memory) ListEntries(ctx context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	return read(m, func(v memView) ([]model.LedgerEntry, error) { return v.ListEntries(ctx, accountID, limit, offset) })
}

func (m *Memory) SumEntries(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return read(m, func(v memView) (decimal.Decimal, error) { return v.SumEntries(ctx, accountID) })
}

func (m *Memory) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return read(m, func(v memView) (*model.Event, error) { return v.GetEvent(ctx, id) })
}

func (m *Memory) ListEvents(ctx context.Context, state model.EventState) ([]model.Event, error) {
	return read(m, func(v memView) ([]model.Event, error) { return v.ListEvents(ctx, state) })
}

func (m *Memory) GetWager(ctx context.Context, id string) (*model.Wager, error) {
	return read(m, func(v memView) (*model.Wager, error) { return v.GetWager(ctx, id) })
}

func (m *Memory) ListWagers(ctx context.Context, f model.WagerFilter) ([]model.Wager, error) {
	return read(m, func(v memView) ([]model.Wager, error) { return v.ListWagers(ctx, f) })
}

func (m *Memory) ListStalePendingWagers(ctx context.Context, finishedBefore time.Time) ([]model.Wager, error) {
	return read(m, func(v memView) ([]model.Wager, error) { return v.ListStalePendingWagers(ctx, finishedBefore) })
}

func (m *Memory) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	return read(m, func(v memView) (*model.Pool, error) { return v.GetPool(ctx, id) })
}

func (m *Memory) ListPools(ctx context.Context, state model.PoolState) ([]model.Pool, error) {
	return read(m, func(v memView) ([]model.Pool, error) { return v.ListPools(ctx, state) })
}

func (m *Memory) ListParticipations(ctx context.Context, poolID string) ([]model.Participation, error) {
	return read(m, func(v memView) ([]model.Participation, error) { return v.ListParticipations(ctx, poolID) })
}

func (m *Memory) ListPredictions(ctx context.Context, participationID string) ([]model.Prediction, error) {
	return read(m, func(v memView) ([]model.Prediction, error) { return v.ListPredictions(ctx, participationID) })
}

func (m *Memory) GetWallet(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	return read(m, func(v memView) (*model.CryptoWallet, error) { return v.GetWallet(ctx, accountID, asset) })
}

func (m *Memory) ListWallets(ctx context.Context, accountID string) ([]model.CryptoWallet, error) {
	return read(m, func(v memView) ([]model.CryptoWallet, error) { return v.ListWallets(ctx, accountID) })
}

func (m *Memory) GetCryptoTx(ctx context.Context, txHash string) (*model.CryptoTransaction, error) {
	return read(m, func(v memView) (*model.CryptoTransaction, error) { return v.GetCryptoTx(ctx, txHash) })
}

func (m *Memory) ListCryptoTxs(ctx context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error) {
	return read(m, func(v memView) ([]model.CryptoTransaction, error) {
		return v.ListCryptoTxs(ctx, accountID, status, limit)
	})
}

// memView lê o estado sem lock; quem chama já segura m.mu.
type memView struct{ m *Memory }

var (
	_ Store = (*Memory)(nil)
	_ Tx    = (*memTx)(nil)
)

func (v memView) GetAccount(_ context.Context, id string) (*model.Account, error) {
	a, ok := v.m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (v memView) ListEntries(_ context.Context, accountID string, limit, offset int) ([]model.LedgerEntry, error) {
	limit = clampLimit(limit)
	var out []model.LedgerEntry
	skipped := 0
	for i := len(v.m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := v.m.entries[i]
		if e.AccountID != accountID {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (v memView) SumEntries(_ context.Context, accountID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, e := range v.m.entries {
		if e.AccountID == accountID {
			sum = sum.Add(e.Amount)
		}
	}
	return sum, nil
}

func (v memView) GetEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := v.m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (v memView) ListEvents(_ context.Context, state model.EventState) ([]model.Event, error) {
	var out []model.Event
	for _, id := range v.m.eventIDs {
		e := v.m.events[id]
		if state == "" || e.State == state {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (v memView) GetWager(_ context.Context, id string) (*model.Wager, error) {
	w, ok := v.m.wagers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (v memView) ListWagers(_ context.Context, f model.WagerFilter) ([]model.Wager, error) {
	limit := clampLimit(f.Limit)
	var out []model.Wager
	skipped := 0
	for i := len(v.m.wagerIDs) - 1; i >= 0 && len(out) < limit; i-- {
		w := v.m.wagers[v.m.wagerIDs[i]]
		if f.AccountID != "" && w.AccountID != f.AccountID {
			continue
		}
		if f.EventID != "" && w.EventID != f.EventID {
			continue
		}
		if f.State != "" && w.State != f.State {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (v memView) ListStalePendingWagers(_ context.Context, finishedBefore time.Time) ([]model.Wager, error) {
	var out []model.Wager
	for _, id := range v.m.wagerIDs {
		w := v.m.wagers[id]
		if w.State != model.WagerPending || w.NeedsReview {
			continue
		}
		ev, ok := v.m.events[w.EventID]
		if !ok || ev.State != model.EventFinished || ev.FinishedAt == nil {
			continue
		}
		if ev.FinishedAt.After(finishedBefore) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (v memView) GetPool(_ context.Context, id string) (*model.Pool, error) {
	p, ok := v.m.pools[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := p.Clone()
	return &c, nil
}

func (v memView) ListPools(_ context.Context, state model.PoolState) ([]model.Pool, error) {
	var out []model.Pool
	for _, id := range v.m.poolIDs {
		p := v.m.pools[id]
		if state == "" || p.State == state {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (v memView) ListParticipations(_ context.Context, poolID string) ([]model.Participation, error) {
	var out []model.Participation
	for _, id := range v.m.partIDs {
		p := v.m.parts[id]
		if p.PoolID == poolID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v memView) ListPredictions(_ context.Context, participationID string) ([]model.Prediction, error) {
	var out []model.Prediction
	for _, k := range v.m.predKeys {
		if k.participationID == participationID {
			out = append(out, v.m.preds[k])
		}
	}
	return out, nil
}

func (v memView) GetWallet(_ context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	w, ok := v.m.wallets[walletKey{accountID, asset}]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (v memView) ListWallets(_ context.Context, accountID string) ([]model.CryptoWallet, error) {
	var out []model.CryptoWallet
	for _, k := range v.m.walletKeys {
		if k.accountID == accountID {
			out = append(out, v.m.wallets[k])
		}
	}
	return out, nil
}

func (v memView) GetCryptoTx(_ context.Context, txHash string) (*model.CryptoTransaction, error) {
	t, ok := v.m.cryptoTxs[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (v memView) ListCryptoTxs(_ context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error) {
	limit = clampLimit(limit)
	var out []model.CryptoTransaction
	for i := len(v.m.cryptoIDs) - 1; i >= 0 && len(out) < limit; i-- {
		t := v.m.cryptoTxs[v.m.cryptoIDs[i]]
		if accountID != "" && t.AccountID != accountID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type memTx struct {
	memView
	undo []func()
}

func (t *memTx) onRollback(fn func()) { t.undo = append(t.undo, fn) }

func (t *memTx) InsertAccount(_ context.Context, a *model.Account) error {
	if _, ok := t.m.accounts[a.ID]; ok {
		return ErrDuplicate
	}
	id := a.ID
	t.m.accounts[id] = *a
	t.onRollback(func() { delete(t.m.accounts, id) })
	return nil
}

func (t *memTx) AccountForUpdate(ctx context.Context, id string) (*model.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) UpdateAccount(_ context.Context, a *model.Account) error {
	old, ok := t.m.accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	t.m.accounts[a.ID] = *a
	id := a.ID
	t.onRollback(func() { t.m.accounts[id] = old })
	return nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.LedgerEntry) error {
	n := len(t.m.entries)
	t.m.entries = append(t.m.entries, *e)
	t.onRollback(func() { t.m.entries = t.m.entries[:n] })
	return nil
}

func (t *memTx) FindEntry(_ context.Context, accountID string, kind model.EntryKind, referenceID string) (*model.LedgerEntry, error) {
	for i := len(t.m.entries) - 1; i >= 0; i-- {
		e := t.m.entries[i]
		if e.AccountID == accountID && e.Kind == kind && e.ReferenceID == referenceID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertEvent(_ context.Context, e *model.Event) error {
	if _, ok := t.m.events[e.ID]; ok {
		return ErrDuplicate
	}
	if e.ExternalID != "" {
		for _, ev := range t.m.events {
			if ev.ExternalID == e.ExternalID {
				return ErrDuplicate
			}
		}
	}
	id := e.ID
	t.m.events[id] = *e
	n := len(t.m.eventIDs)
	t.m.eventIDs = append(t.m.eventIDs, id)
	t.onRollback(func() {
		delete(t.m.events, id)
		t.m.eventIDs = t.m.eventIDs[:n]
	})
	return nil
}

func (t *memTx) EventForUpdate(ctx context.Context, id string) (*model.Event, error) {
	return t.GetEvent(ctx, id)
}

func (t *memTx) UpdateEvent(_ context.Context, e *model.Event) error {
	old, ok := t.m.events[e.ID]
	if !ok {
		return ErrNotFound
	}
	t.m.events[e.ID] = *e
	id := e.ID
	t.onRollback(func() { t.m.events[id] = old })
	return nil
}

func (t *memTx) InsertWager(_ context.Context, w *model.Wager) error {
	if _, ok := t.m.wagers[w.ID]; ok {
		return ErrDuplicate
	}
	id := w.ID
	t.m.wagers[id] = *w
	n := len(t.m.wagerIDs)
	t.m.wagerIDs = append(t.m.wagerIDs, id)
	t.onRollback(func() {
		delete(t.m.wagers, id)
		t.m.wagerIDs = t.m.wagerIDs[:n]
	})
	return nil
}

func (t *memTx) WagerForUpdate(ctx context.Context, id string) (*model.Wager, error) {
	return t.GetWager(ctx, id)
}

func (t *memTx) UpdateWager(_ context.Context, w *model.Wager) error {
	old, ok := t.m.wagers[w.ID]
	if !ok {
		return ErrNotFound
	}
	t.m.wagers[w.ID] = *w
	id := w.ID
	t.onRollback(func() { t.m.wagers[id] = old })
	return nil
}

func (t *memTx) FindOpenWager(_ context.Context, accountID, eventID, market string) (*model.Wager, error) {
	for _, id := range t.m.wagerIDs {
		w := t.m.wagers[id]
		if w.AccountID == accountID && w.EventID == eventID && w.Market == market && w.State == model.WagerPending {
			return &w, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) SumStakesSince(_ context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, id := range t.m.wagerIDs {
		w := t.m.wagers[id]
		if w.AccountID != accountID || w.PlacedAt.Before(since) {
			continue
		}
		if w.State == model.WagerCancelled || w.State == model.WagerRefunded {
			continue
		}
		sum = sum.Add(w.Stake)
	}
	return sum, nil
}

func (t *memTx) InsertPool(_ context.Context, p *model.Pool) error {
	if _, ok := t.m.pools[p.ID]; ok {
		return ErrDuplicate
	}
	id := p.ID
	t.m.pools[id] = p.Clone()
	n := len(t.m.poolIDs)
	t.m.poolIDs = append(t.m.poolIDs, id)
	t.onRollback(func() {
		delete(t.m.pools, id)
		t.m.poolIDs = t.m.poolIDs[:n]
	})
	return nil
}

func (t *memTx) PoolForUpdate(ctx context.Context, id string) (*model.Pool, error) {
	return t.GetPool(ctx, id)
}

func (t *memTx) UpdatePool(_ context.Context, p *model.Pool) error {
	old, ok := t.m.pools[p.ID]
	if !ok {
		return ErrNotFound
	}
	t.m.pools[p.ID] = p.Clone()
	id := p.ID
	t.onRollback(func() { t.m.pools[id] = old })
	return nil
}

func (t *memTx) FindParticipation(_ context.Context, poolID, accountID string) (*model.Participation, error) {
	for _, id := range t.m.partIDs {
		p := t.m.parts[id]
		if p.PoolID == poolID && p.AccountID == accountID {
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ParticipationForUpdate(_ context.Context, id string) (*model.Participation, error) {
	p, ok := t.m.parts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (t *memTx) ListParticipationsForUpdate(ctx context.Context, poolID string) ([]model.Participation, error) {
	return t.ListParticipations(ctx, poolID)
}

func (t *memTx) InsertParticipation(_ context.Context, p *model.Participation) error {
	for _, id := range t.m.partIDs {
		ex := t.m.parts[id]
		if ex.PoolID == p.PoolID && ex.AccountID == p.AccountID {
			return ErrDuplicate
		}
	}
	id := p.ID
	t.m.parts[id] = *p
	n := len(t.m.partIDs)
	t.m.partIDs = append(t.m.partIDs, id)
	t.onRollback(func() {
		delete(t.m.parts, id)
		t.m.partIDs = t.m.partIDs[:n]
	})
	return nil
}

func (t *memTx) UpdateParticipation(_ context.Context, p *model.Participation) error {
	old, ok := t.m.parts[p.ID]
	if !ok {
		return ErrNotFound
	}
	t.m.parts[p.ID] = *p
	id := p.ID
	t.onRollback(func() { t.m.parts[id] = old })
	return nil
}

func (t *memTx) UpsertPrediction(_ context.Context, p *model.Prediction) error {
	k := predKey{p.ParticipationID, p.EventID}
	old, existed := t.m.preds[k]
	t.m.preds[k] = *p
	if existed {
		t.onRollback(func() { t.m.preds[k] = old })
		return nil
	}
	n := len(t.m.predKeys)
	t.m.predKeys = append(t.m.predKeys, k)
	t.onRollback(func() {
		delete(t.m.preds, k)
		t.m.predKeys = t.m.predKeys[:n]
	})
	return nil
}

func (t *memTx) WalletForUpdate(_ context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	k := walletKey{accountID, asset}
	if w, ok := t.m.wallets[k]; ok {
		return &w, nil
	}
	w := model.CryptoWallet{AccountID: accountID, Asset: asset, UpdatedAt: time.Now().UTC()}
	t.m.wallets[k] = w
	n := len(t.m.walletKeys)
	t.m.walletKeys = append(t.m.walletKeys, k)
	t.onRollback(func() {
		delete(t.m.wallets, k)
		t.m.walletKeys = t.m.walletKeys[:n]
	})
	return &w, nil
}

func (t *memTx) UpdateWallet(_ context.Context, w *model.CryptoWallet) error {
	k := walletKey{w.AccountID, w.Asset}
	old, ok := t.m.wallets[k]
	if !ok {
		return ErrNotFound
	}
	t.m.wallets[k] = *w
	t.onRollback(func() { t.m.wallets[k] = old })
	return nil
}

func (t *memTx) InsertCryptoTx(_ context.Context, c *model.CryptoTransaction) error {
	if _, ok := t.m.cryptoTxs[c.TxHash]; ok {
		return ErrDuplicate
	}
	hash := c.TxHash
	t.m.cryptoTxs[hash] = *c
	n := len(t.m.cryptoIDs)
	t.m.cryptoIDs = append(t.m.cryptoIDs, hash)
	t.onRollback(func() {
		delete(t.m.cryptoTxs, hash)
		t.m.cryptoIDs = t.m.cryptoIDs[:n]
	})
	return nil
}

func (t *memTx) CryptoTxForUpdate(ctx context.Context, txHash string) (*model.CryptoTransaction, error) {
	return t.GetCryptoTx(ctx, txHash)
}

func (t *memTx) UpdateCryptoTx(_ context.Context, c *model.CryptoTransaction) error {
	old, ok := t.m.cryptoTxs[c.TxHash]
	if !ok {
		return ErrNotFound
	}
	t.m.cryptoTxs[c.TxHash] = *c
	hash := c.TxHash
	t.onRollback(func() { t.m.cryptoTxs[hash] = old })
	return nil
}
