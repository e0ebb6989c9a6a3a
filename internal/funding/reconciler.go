package funding

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

var hundred = decimal.NewFromInt(100)

// Reconciler leva depósitos, saques e conversões cripto para as carteiras
// e, na conversão, para o ledger fiat.
type Reconciler struct {
	store         repo.Store
	ledger        *ledger.Ledger
	chain         ChainAdapter
	oracle        PriceOracle
	log           *zap.Logger
	notifier      *notify.Notifier
	now           func() time.Time
	withdrawalPct decimal.Decimal
	conversionPct decimal.Decimal

	OnConfirmed func(txType string) // métricas
	OnFailed    func(txType string) // métricas
	OnConverted func()              // métricas
}

type Option func(*Reconciler)

func WithNotifier(n *notify.Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

// WithFees define as taxas percentuais de saque e de conversão.
func WithFees(withdrawalPct, conversionPct decimal.Decimal) Option {
	return func(r *Reconciler) {
		r.withdrawalPct = withdrawalPct
		r.conversionPct = conversionPct
	}
}

func NewReconciler(store repo.Store, l *ledger.Ledger, chain ChainAdapter, oracle PriceOracle, log *zap.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:         store,
		ledger:        l,
		chain:         chain,
		oracle:        oracle,
		log:           log,
		now:           func() time.Time { return time.Now().UTC() },
		withdrawalPct: decimal.NewFromInt(1),
		conversionPct: decimal.NewFromInt(2),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Reconciler) validate(op, asset string, amount decimal.Decimal) (Asset, error) {
	a, ok := LookupAsset(asset)
	if !ok {
		return Asset{}, apperr.NewInvalidInput(op, "asset", asset)
	}
	if !a.ValidAmount(amount) {
		return Asset{}, apperr.NewInvalidInput(op, "amount", amount)
	}
	return a, nil
}

func (r *Reconciler) requireAccount(ctx context.Context, op, accountID string) error {
	if accountID == "" {
		return apperr.NewInvalidInput(op, "accountId", accountID)
	}
	_, err := r.store.GetAccount(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NewNotFound(op, "account")
	}
	return apperr.WrapInternal(op, err)
}

// CreateDeposit registra um depósito PENDING vindo de fromAddress e soma o
// valor em pendingDeposits até a rede confirmar.
func (r *Reconciler) CreateDeposit(ctx context.Context, accountID, asset string, amount decimal.Decimal, fromAddress string) (*model.CryptoTransaction, error) {
	const op = "funding.CreateDeposit"
	a, err := r.validate(op, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := r.chain.ValidateAddress(a.Symbol, fromAddress); err != nil {
		return nil, err
	}
	if err := r.requireAccount(ctx, op, accountID); err != nil {
		return nil, err
	}
	to, err := r.chain.DepositAddress(ctx, accountID, a.Symbol)
	if err != nil {
		return nil, apperr.NewExternal(op, err)
	}

	t := &model.CryptoTransaction{
		ID:                    uuid.NewString(),
		AccountID:             accountID,
		Type:                  model.CryptoDeposit,
		Asset:                 a.Symbol,
		Amount:                amount,
		Fee:                   decimal.Zero,
		NetAmount:             amount,
		USDAmount:             decimal.Zero,
		FromAddress:           fromAddress,
		ToAddress:             to,
		Status:                model.CryptoPending,
		RequiredConfirmations: a.Confirmations,
		CreatedAt:             r.now(),
	}
	if t.TxHash, err = r.chain.Submit(ctx, t); err != nil {
		return nil, apperr.NewExternal(op, err)
	}

	err = r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		w, err := tx.WalletForUpdate(ctx, accountID, a.Symbol)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		w.PendingDeposits = w.PendingDeposits.Add(amount)
		w.UpdatedAt = t.CreatedAt
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return apperr.WrapInternal(op, err)
		}
		return r.insertTx(ctx, tx, op, t)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("crypto deposit pending",
		zap.String("accountId", accountID),
		zap.String("asset", a.Symbol),
		zap.String("amount", amount.String()),
		zap.String("txHash", t.TxHash))
	r.notifier.Notify(ctx, accountID, events.KindCryptoPending, t)
	return t, nil
}

// CreateWithdrawal move amount de balance para pendingWithdrawals e cria o
// saque PENDING. A taxa percentual fica com a casa: sai para a rede
// NetAmount = Amount - Fee.
func (r *Reconciler) CreateWithdrawal(ctx context.Context, accountID, asset, toAddress string, amount decimal.Decimal) (*model.CryptoTransaction, error) {
	const op = "funding.CreateWithdrawal"
	a, err := r.validate(op, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := r.chain.ValidateAddress(a.Symbol, toAddress); err != nil {
		return nil, err
	}
	if err := r.requireAccount(ctx, op, accountID); err != nil {
		return nil, err
	}
	// checagem antecipada para não registrar na rede um saque sem saldo;
	// a checagem que vale é a feita sob lock
	if w, err := r.store.GetWallet(ctx, accountID, a.Symbol); err != nil || w.Balance.LessThan(amount) {
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.WrapInternal(op, err)
		}
		return nil, apperr.NewInsufficientFunds(op)
	}

	fee := amount.Mul(r.withdrawalPct).Div(hundred).Truncate(a.Places)
	t := &model.CryptoTransaction{
		ID:                    uuid.NewString(),
		AccountID:             accountID,
		Type:                  model.CryptoWithdrawal,
		Asset:                 a.Symbol,
		Amount:                amount,
		Fee:                   fee,
		NetAmount:             amount.Sub(fee),
		USDAmount:             decimal.Zero,
		ToAddress:             toAddress,
		Status:                model.CryptoPending,
		RequiredConfirmations: a.Confirmations,
		CreatedAt:             r.now(),
	}
	if t.TxHash, err = r.chain.Submit(ctx, t); err != nil {
		return nil, apperr.NewExternal(op, err)
	}

	err = r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		w, err := tx.WalletForUpdate(ctx, accountID, a.Symbol)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if w.Balance.LessThan(amount) {
			return apperr.NewInsufficientFunds(op)
		}
		w.Balance = w.Balance.Sub(amount)
		w.PendingWithdrawals = w.PendingWithdrawals.Add(amount)
		w.UpdatedAt = t.CreatedAt
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return apperr.WrapInternal(op, err)
		}
		return r.insertTx(ctx, tx, op, t)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("crypto withdrawal pending",
		zap.String("accountId", accountID),
		zap.String("asset", a.Symbol),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("txHash", t.TxHash))
	r.notifier.Notify(ctx, accountID, events.KindCryptoPending, t)
	return t, nil
}

func (r *Reconciler) insertTx(ctx context.Context, tx repo.Tx, op string, t *model.CryptoTransaction) error {
	err := tx.InsertCryptoTx(ctx, t)
	if errors.Is(err, repo.ErrDuplicate) {
		return apperr.New(apperr.DuplicateRequest, op, "transaction hash already registered")
	}
	return apperr.WrapInternal(op, err)
}

// Confirm registra a contagem de confirmações. Ao atingir o mínimo do
// ativo, a transação PENDING vira CONFIRMED e as carteiras são ajustadas.
// Callbacks repetidos sobre uma transação já confirmada não têm efeito.
func (r *Reconciler) Confirm(ctx context.Context, txHash string, confirmations int) (*model.CryptoTransaction, error) {
	return r.confirm(ctx, "funding.Confirm", txHash, "", confirmations)
}

func (r *Reconciler) ConfirmDeposit(ctx context.Context, txHash string, confirmations int) (*model.CryptoTransaction, error) {
	return r.confirm(ctx, "funding.ConfirmDeposit", txHash, model.CryptoDeposit, confirmations)
}

func (r *Reconciler) ConfirmWithdrawal(ctx context.Context, txHash string, confirmations int) (*model.CryptoTransaction, error) {
	return r.confirm(ctx, "funding.ConfirmWithdrawal", txHash, model.CryptoWithdrawal, confirmations)
}

func (r *Reconciler) confirm(ctx context.Context, op, txHash string, want model.CryptoTxType, confirmations int) (*model.CryptoTransaction, error) {
	if confirmations < 0 {
		return nil, apperr.NewInvalidInput(op, "confirmations", confirmations)
	}
	var (
		out     model.CryptoTransaction
		applied bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		out, applied = model.CryptoTransaction{}, false
		t, err := r.lockTx(ctx, tx, op, txHash)
		if err != nil {
			return err
		}
		if want != "" && t.Type != want {
			return apperr.Newf(apperr.Validation, op, "transaction %s is %s", txHash, t.Type)
		}
		switch t.Status {
		case model.CryptoConfirmed:
			out = *t
			return nil
		case model.CryptoFailed:
			return apperr.NewInvalidState(op, "transaction", t.Status)
		}

		if confirmations > t.Confirmations {
			t.Confirmations = confirmations
		}
		if t.Confirmations < t.RequiredConfirmations {
			out = *t
			return apperr.WrapInternal(op, tx.UpdateCryptoTx(ctx, t))
		}

		w, err := tx.WalletForUpdate(ctx, t.AccountID, t.Asset)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		switch t.Type {
		case model.CryptoDeposit:
			w.PendingDeposits = w.PendingDeposits.Sub(t.Amount)
			w.Balance = w.Balance.Add(t.Amount)
			w.TotalDeposited = w.TotalDeposited.Add(t.Amount)
		case model.CryptoWithdrawal:
			w.PendingWithdrawals = w.PendingWithdrawals.Sub(t.Amount)
			w.TotalWithdrawn = w.TotalWithdrawn.Add(t.Amount)
		default:
			return apperr.NewInvalidState(op, "transaction type", t.Type)
		}
		now := r.now()
		w.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return apperr.WrapInternal(op, err)
		}
		t.Status = model.CryptoConfirmed
		t.ConfirmedAt = &now
		if err := tx.UpdateCryptoTx(ctx, t); err != nil {
			return apperr.WrapInternal(op, err)
		}
		out, applied = *t, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		r.log.Info("crypto transaction confirmed",
			zap.String("txHash", txHash),
			zap.String("type", string(out.Type)),
			zap.String("accountId", out.AccountID),
			zap.String("asset", out.Asset),
			zap.String("amount", out.Amount.String()),
			zap.Int("confirmations", out.Confirmations))
		if r.OnConfirmed != nil {
			r.OnConfirmed(string(out.Type))
		}
		r.notifier.Notify(ctx, out.AccountID, events.KindCryptoConfirmed, out)
	}
	return &out, nil
}

// Fail encerra uma transação PENDING como FAILED e libera os valores
// pendentes; num saque o valor volta para balance.
func (r *Reconciler) Fail(ctx context.Context, txHash, reason string) (*model.CryptoTransaction, error) {
	const op = "funding.Fail"
	var (
		out     model.CryptoTransaction
		applied bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		out, applied = model.CryptoTransaction{}, false
		t, err := r.lockTx(ctx, tx, op, txHash)
		if err != nil {
			return err
		}
		switch t.Status {
		case model.CryptoFailed:
			out = *t
			return nil
		case model.CryptoConfirmed:
			return apperr.NewInvalidState(op, "transaction", t.Status)
		}

		w, err := tx.WalletForUpdate(ctx, t.AccountID, t.Asset)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		switch t.Type {
		case model.CryptoDeposit:
			w.PendingDeposits = w.PendingDeposits.Sub(t.Amount)
		case model.CryptoWithdrawal:
			w.PendingWithdrawals = w.PendingWithdrawals.Sub(t.Amount)
			w.Balance = w.Balance.Add(t.Amount)
		default:
			return apperr.NewInvalidState(op, "transaction type", t.Type)
		}
		w.UpdatedAt = r.now()
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return apperr.WrapInternal(op, err)
		}
		t.Status = model.CryptoFailed
		t.Notes = reason
		if err := tx.UpdateCryptoTx(ctx, t); err != nil {
			return apperr.WrapInternal(op, err)
		}
		out, applied = *t, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		r.log.Warn("crypto transaction failed",
			zap.String("txHash", txHash),
			zap.String("type", string(out.Type)),
			zap.String("accountId", out.AccountID),
			zap.String("amount", out.Amount.String()),
			zap.String("reason", reason))
		if r.OnFailed != nil {
			r.OnFailed(string(out.Type))
		}
		r.notifier.Notify(ctx, out.AccountID, events.KindCryptoFailed, out)
	}
	return &out, nil
}

func (r *Reconciler) lockTx(ctx context.Context, tx repo.Tx, op, txHash string) (*model.CryptoTransaction, error) {
	t, err := tx.CryptoTxForUpdate(ctx, txHash)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound(op, "transaction")
	}
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	return t, nil
}

// Conversion é o resultado de ConvertToFiat.
type Conversion struct {
	Transaction model.CryptoTransaction `json:"transaction"`
	Price       decimal.Decimal         `json:"price"`
	GrossUSD    decimal.Decimal         `json:"grossUsd"`
	FeeUSD      decimal.Decimal         `json:"feeUsd"`
	NetUSD      decimal.Decimal         `json:"netUsd"`
	Entry       model.LedgerEntry       `json:"entry"`
}

// ConvertToFiat vende amount do ativo ao preço do oráculo e credita o
// líquido no ledger fiat. Débito da carteira e crédito fiat são gravados
// na mesma transação. USDAmount guarda o bruto; a taxa em USD é USDAmount
// menos o lançamento CONVERSION_CREDIT.
func (r *Reconciler) ConvertToFiat(ctx context.Context, accountID, asset string, amount decimal.Decimal, notes string) (*Conversion, error) {
	const op = "funding.ConvertToFiat"
	a, err := r.validate(op, asset, amount)
	if err != nil {
		return nil, err
	}
	if err := r.requireAccount(ctx, op, accountID); err != nil {
		return nil, err
	}

	price, err := r.oracle.PriceOf(ctx, a.Symbol)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.NewExternal(op, err)
		}
		return nil, err
	}

	gross := amount.Mul(price)
	net := gross.Mul(hundred.Sub(r.conversionPct)).Div(hundred).Truncate(ledger.FiatPlaces)
	if !net.IsPositive() {
		return nil, apperr.Newf(apperr.Validation, op, "amount too small to convert: %s %s", amount, a.Symbol)
	}
	feeAsset := amount.Mul(r.conversionPct).Div(hundred).Truncate(a.Places)

	now := r.now()
	conv := &Conversion{
		Price:    price,
		GrossUSD: gross.Round(ledger.FiatPlaces),
		NetUSD:   net,
	}
	conv.FeeUSD = conv.GrossUSD.Sub(net)
	t := &model.CryptoTransaction{
		ID:                    uuid.NewString(),
		AccountID:             accountID,
		Type:                  model.CryptoConversionToFiat,
		Asset:                 a.Symbol,
		Amount:                amount,
		Fee:                   feeAsset,
		NetAmount:             amount.Sub(feeAsset),
		USDAmount:             conv.GrossUSD,
		TxHash:                "conv-" + uuid.NewString(),
		Status:                model.CryptoConfirmed,
		RequiredConfirmations: 0,
		Notes:                 notes,
		CreatedAt:             now,
		ConfirmedAt:           &now,
	}

	err = r.store.InTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		w, err := tx.WalletForUpdate(ctx, accountID, a.Symbol)
		if err != nil {
			return apperr.WrapInternal(op, err)
		}
		if w.Balance.LessThan(amount) {
			return apperr.NewInsufficientFunds(op)
		}
		w.Balance = w.Balance.Sub(amount)
		w.UpdatedAt = now
		if err := tx.UpdateWallet(ctx, w); err != nil {
			return apperr.WrapInternal(op, err)
		}
		if err := r.insertTx(ctx, tx, op, t); err != nil {
			return err
		}
		e, err := r.ledger.CreditTx(ctx, tx, accountID, net, model.EntryConversionCredit, t.ID)
		if err != nil {
			return err
		}
		conv.Entry = *e
		return nil
	})
	if err != nil {
		return nil, err
	}
	conv.Transaction = *t

	r.log.Info("crypto converted to fiat",
		zap.String("accountId", accountID),
		zap.String("asset", a.Symbol),
		zap.String("amount", amount.String()),
		zap.String("price", price.String()),
		zap.String("netUsd", net.StringFixed(2)))
	if r.OnConverted != nil {
		r.OnConverted()
	}
	r.notifier.Notify(ctx, accountID, events.KindCryptoConverted, conv)
	return conv, nil
}
