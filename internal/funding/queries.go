package funding

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
	"github.com/radieske/sports-bet-ledger/internal/repo"
)

// DepositAddress devolve o endereço para onde a conta deve enviar o ativo.
func (r *Reconciler) DepositAddress(ctx context.Context, accountID, asset string) (string, error) {
	const op = "funding.DepositAddress"
	a, ok := LookupAsset(asset)
	if !ok {
		return "", apperr.NewInvalidInput(op, "asset", asset)
	}
	if err := r.requireAccount(ctx, op, accountID); err != nil {
		return "", err
	}
	addr, err := r.chain.DepositAddress(ctx, accountID, a.Symbol)
	if err != nil {
		return "", apperr.NewExternal(op, err)
	}
	return addr, nil
}

// Wallet devolve a carteira da conta no ativo; uma carteira nunca
// movimentada aparece zerada.
func (r *Reconciler) Wallet(ctx context.Context, accountID, asset string) (*model.CryptoWallet, error) {
	const op = "funding.Wallet"
	a, ok := LookupAsset(asset)
	if !ok {
		return nil, apperr.NewInvalidInput(op, "asset", asset)
	}
	w, err := r.store.GetWallet(ctx, accountID, a.Symbol)
	if errors.Is(err, repo.ErrNotFound) {
		return &model.CryptoWallet{
			AccountID:          accountID,
			Asset:              a.Symbol,
			Balance:            decimal.Zero,
			PendingDeposits:    decimal.Zero,
			PendingWithdrawals: decimal.Zero,
			TotalDeposited:     decimal.Zero,
			TotalWithdrawn:     decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, apperr.WrapInternal(op, err)
	}
	return w, nil
}

func (r *Reconciler) Wallets(ctx context.Context, accountID string) ([]model.CryptoWallet, error) {
	out, err := r.store.ListWallets(ctx, accountID)
	if err != nil {
		return nil, apperr.WrapInternal("funding.Wallets", err)
	}
	return out, nil
}

func (r *Reconciler) Transaction(ctx context.Context, txHash string) (*model.CryptoTransaction, error) {
	t, err := r.store.GetCryptoTx(ctx, txHash)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NewNotFound("funding.Transaction", "transaction")
	}
	if err != nil {
		return nil, apperr.WrapInternal("funding.Transaction", err)
	}
	return t, nil
}

// History lista as transações mais recentes; accountID e status vazios
// não filtram.
func (r *Reconciler) History(ctx context.Context, accountID string, status model.CryptoTxStatus, limit int) ([]model.CryptoTransaction, error) {
	out, err := r.store.ListCryptoTxs(ctx, accountID, status, limit)
	if err != nil {
		return nil, apperr.WrapInternal("funding.History", err)
	}
	return out, nil
}
