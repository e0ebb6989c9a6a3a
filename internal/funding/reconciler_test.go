package funding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/ledger"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

const (
	btcFrom = "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
	btcTo   = "1BoatSLRHtKNngkdXEeobR76b53LETtpyT"
	ethTo   = "0x52908400098527886E0F7030069857D2E4169EE7"
)

var now = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store  *repo.Memory
	ledger *ledger.Ledger
	rec    *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := repo.NewMemory()
	l := ledger.New(mem, zap.NewNop(), ledger.WithClock(func() time.Time { return now }))
	_, err := l.OpenAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	return &fixture{store: mem, ledger: l, rec: newReconciler(mem, l)}
}

func newReconciler(store repo.Store, l *ledger.Ledger) *Reconciler {
	oracle := StaticPrices{"BTC": d("60000"), "ETH": d("2500")}
	return NewReconciler(store, l, Simulated{}, oracle, zap.NewNop(),
		WithClock(func() time.Time { return now }), WithFees(d("1"), d("2")))
}

// fund deposita e confirma amount na carteira BTC de acc-1.
func (f *fixture) fund(t *testing.T, amount string) {
	t.Helper()
	ctx := context.Background()
	tx, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d(amount), btcFrom)
	require.NoError(t, err)
	_, err = f.rec.ConfirmDeposit(ctx, tx.TxHash, 3)
	require.NoError(t, err)
}

func (f *fixture) wallet(t *testing.T, asset string) *model.CryptoWallet {
	t.Helper()
	w, err := f.rec.Wallet(context.Background(), "acc-1", asset)
	require.NoError(t, err)
	return w
}

func TestDepositConfirmsAtThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tx, err := f.rec.CreateDeposit(ctx, "acc-1", "btc", d("0.5"), btcFrom)
	require.NoError(t, err)
	assert.Equal(t, model.CryptoPending, tx.Status)
	assert.Equal(t, 3, tx.RequiredConfirmations)
	assert.NotEmpty(t, tx.TxHash)
	assert.True(t, f.wallet(t, "BTC").PendingDeposits.Equal(d("0.5")))

	got, err := f.rec.Confirm(ctx, tx.TxHash, 2)
	require.NoError(t, err)
	assert.Equal(t, model.CryptoPending, got.Status)
	assert.Equal(t, 2, got.Confirmations)
	assert.True(t, f.wallet(t, "BTC").Balance.IsZero())

	got, err = f.rec.Confirm(ctx, tx.TxHash, 3)
	require.NoError(t, err)
	assert.Equal(t, model.CryptoConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	w := f.wallet(t, "BTC")
	assert.True(t, w.Balance.Equal(d("0.5")))
	assert.True(t, w.PendingDeposits.IsZero())
	assert.True(t, w.TotalDeposited.Equal(d("0.5")))
}

func TestConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d("1"), btcFrom)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.Confirm(ctx, tx.TxHash, 6)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err = f.rec.Confirm(ctx, tx.TxHash, 7)
	require.NoError(t, err)

	w := f.wallet(t, "BTC")
	assert.True(t, w.Balance.Equal(d("1")))
	assert.True(t, w.TotalDeposited.Equal(d("1")))
}

func TestConfirmRejectsWrongTypeAndUnknownHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tx, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d("1"), btcFrom)
	require.NoError(t, err)

	_, err = f.rec.ConfirmWithdrawal(ctx, tx.TxHash, 3)
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.rec.Confirm(ctx, "nope", 3)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = f.rec.Confirm(ctx, tx.TxHash, -1)
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCreateDepositValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := []struct {
		name    string
		account string
		asset   string
		amount  string
		from    string
		kind    error
	}{
		{"unknown asset", "acc-1", "DOGE", "1", btcFrom, apperr.ErrValidation},
		{"zero amount", "acc-1", "BTC", "0", btcFrom, apperr.ErrValidation},
		{"too many places", "acc-1", "BTC", "0.000000001", btcFrom, apperr.ErrValidation},
		{"eth address on btc", "acc-1", "BTC", "1", ethTo, apperr.ErrValidation},
		{"bad eth address", "acc-1", "ETH", "1", "0x1234", apperr.ErrValidation},
		{"bad ton address", "acc-1", "TON", "1", "not-a-ton-address", apperr.ErrValidation},
		{"unknown account", "ghost", "BTC", "1", btcFrom, apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.rec.CreateDeposit(ctx, tc.account, tc.asset, d(tc.amount), tc.from)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}

	txs, err := f.rec.History(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestWithdrawalFeeAndConfirmation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "2")

	tx, err := f.rec.CreateWithdrawal(ctx, "acc-1", "BTC", btcTo, d("1.0"))
	require.NoError(t, err)
	assert.True(t, tx.Fee.Equal(d("0.01")))
	assert.True(t, tx.NetAmount.Equal(d("0.99")))

	w := f.wallet(t, "BTC")
	assert.True(t, w.Balance.Equal(d("1")))
	assert.True(t, w.PendingWithdrawals.Equal(d("1")))

	_, err = f.rec.ConfirmWithdrawal(ctx, tx.TxHash, 3)
	require.NoError(t, err)
	w = f.wallet(t, "BTC")
	assert.True(t, w.Balance.Equal(d("1")))
	assert.True(t, w.PendingWithdrawals.IsZero())
	assert.True(t, w.TotalWithdrawn.Equal(d("1")))
}

func TestWithdrawalInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.rec.CreateWithdrawal(ctx, "acc-1", "BTC", btcTo, d("1"))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))

	f.fund(t, "0.5")
	_, err = f.rec.CreateWithdrawal(ctx, "acc-1", "BTC", btcTo, d("0.6"))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))
	assert.True(t, f.wallet(t, "BTC").Balance.Equal(d("0.5")))
}

func TestFailReleasesPendingAmounts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "1")

	wd, err := f.rec.CreateWithdrawal(ctx, "acc-1", "BTC", btcTo, d("0.4"))
	require.NoError(t, err)
	dep, err := f.rec.CreateDeposit(ctx, "acc-1", "BTC", d("0.3"), btcFrom)
	require.NoError(t, err)

	got, err := f.rec.Fail(ctx, wd.TxHash, "rejected by network")
	require.NoError(t, err)
	assert.Equal(t, model.CryptoFailed, got.Status)
	assert.Equal(t, "rejected by network", got.Notes)
	_, err = f.rec.Fail(ctx, dep.TxHash, "dropped")
	require.NoError(t, err)

	// repetido não tem efeito
	_, err = f.rec.Fail(ctx, wd.TxHash, "again")
	require.NoError(t, err)

	w := f.wallet(t, "BTC")
	assert.True(t, w.Balance.Equal(d("1")))
	assert.True(t, w.PendingWithdrawals.IsZero())
	assert.True(t, w.PendingDeposits.IsZero())

	_, err = f.rec.Confirm(ctx, wd.TxHash, 10)
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestConvertToFiatCreditsLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0.5")

	conv, err := f.rec.ConvertToFiat(ctx, "acc-1", "BTC", d("0.1"), "cash out")
	require.NoError(t, err)
	assert.True(t, conv.GrossUSD.Equal(d("6000")))
	assert.True(t, conv.NetUSD.Equal(d("5880")))
	assert.True(t, conv.FeeUSD.Equal(d("120")))
	assert.Equal(t, model.CryptoConversionToFiat, conv.Transaction.Type)
	assert.Equal(t, model.CryptoConfirmed, conv.Transaction.Status)
	assert.Equal(t, model.EntryConversionCredit, conv.Entry.Kind)
	assert.Equal(t, conv.Transaction.ID, conv.Entry.ReferenceID)
	assert.True(t, conv.Transaction.USDAmount.Equal(d("6000")), conv.Transaction.USDAmount.String())
	assert.True(t, conv.Transaction.USDAmount.Sub(conv.Entry.Amount).Equal(conv.FeeUSD))

	stored, err := f.rec.Transaction(ctx, conv.Transaction.TxHash)
	require.NoError(t, err)
	assert.True(t, stored.USDAmount.Equal(d("6000")))

	assert.True(t, f.wallet(t, "BTC").Balance.Equal(d("0.4")))
	bal, err := f.ledger.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.Equal(d("5880")))
	require.NoError(t, f.ledger.Verify(ctx, "acc-1"))
}

func TestConvertToFiatFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0.5")

	_, err := f.rec.ConvertToFiat(ctx, "acc-1", "BTC", d("1"), "")
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds))

	// sem preço para SOL
	_, err = f.rec.ConvertToFiat(ctx, "acc-1", "SOL", d("1"), "")
	assert.True(t, errors.Is(err, apperr.ErrExternalUnavailable))

	_, err = f.rec.ConvertToFiat(ctx, "acc-1", "BTC", d("0.00000001"), "")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	assert.True(t, f.wallet(t, "BTC").Balance.Equal(d("0.5")))
}

type brokenAccountStore struct{ *repo.Memory }

func (s brokenAccountStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	return s.Memory.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return fn(ctx, brokenAccountTx{tx})
	})
}

type brokenAccountTx struct{ repo.Tx }

func (brokenAccountTx) AccountForUpdate(context.Context, string) (*model.Account, error) {
	return nil, errors.New("connection reset")
}

func TestConvertToFiatIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fund(t, "0.5")

	broken := newReconciler(brokenAccountStore{f.store}, f.ledger)
	_, err := broken.ConvertToFiat(ctx, "acc-1", "BTC", d("0.1"), "")
	require.Error(t, err)

	assert.True(t, f.wallet(t, "BTC").Balance.Equal(d("0.5")))
	txs, err := f.rec.History(ctx, "acc-1", "", 0)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.NotEqual(t, model.CryptoConversionToFiat, tx.Type)
	}
	bal, err := f.ledger.GetBalance(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestDepositAddressMatchesAssetFormat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, sym := range Assets() {
		addr, err := f.rec.DepositAddress(ctx, "acc-1", sym)
		require.NoError(t, err, sym)
		assert.NoError(t, Simulated{}.ValidateAddress(sym, addr), sym)

		again, err := f.rec.DepositAddress(ctx, "acc-1", sym)
		require.NoError(t, err)
		assert.Equal(t, addr, again)
	}

	_, err := f.rec.DepositAddress(ctx, "ghost", "BTC")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
