package funding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"

	"github.com/radieske/sports-bet-ledger/internal/apperr"
	"github.com/radieske/sports-bet-ledger/internal/model"
)

// Asset descreve um ativo suportado: formato de endereço, confirmações
// exigidas e precisão aceita nos valores.
type Asset struct {
	Symbol        string
	Confirmations int
	Places        int32
	valid         func(address string) bool
}

func (a Asset) ValidAddress(address string) bool { return a.valid(address) }

// ValidAmount exige valor positivo dentro da precisão do ativo.
func (a Asset) ValidAmount(v decimal.Decimal) bool {
	return v.IsPositive() && v.Equal(v.Truncate(a.Places))
}

func matcher(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

var assets = map[string]Asset{
	"BTC": {Symbol: "BTC", Confirmations: 3, Places: 8, valid: matcher(`^(bc1|[13])[a-zA-HJ-NP-Z0-9]{25,62}$`)},
	"ETH": {Symbol: "ETH", Confirmations: 12, Places: 9, valid: matcher(`^0x[a-fA-F0-9]{40}$`)},
	"SOL": {Symbol: "SOL", Confirmations: 32, Places: 9, valid: matcher(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)},
	"TON": {Symbol: "TON", Confirmations: 1, Places: 9, valid: func(addr string) bool {
		_, err := ton.ParseAccountID(addr)
		return err == nil
	}},
}

// LookupAsset aceita o símbolo em qualquer caixa.
func LookupAsset(symbol string) (Asset, bool) {
	a, ok := assets[strings.ToUpper(strings.TrimSpace(symbol))]
	return a, ok
}

// Assets lista os símbolos suportados em ordem alfabética.
func Assets() []string {
	out := make([]string, 0, len(assets))
	for s := range assets {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ChainAdapter isola a rede de cada ativo. Simulated atende ambientes
// locais; uma integração real entra pela mesma interface.
type ChainAdapter interface {
	ValidateAddress(asset, address string) error
	// DepositAddress devolve o endereço de depósito da conta para o ativo.
	DepositAddress(ctx context.Context, accountID, asset string) (string, error)
	// Submit registra a transferência na rede e devolve o hash usado nas
	// confirmações.
	Submit(ctx context.Context, t *model.CryptoTransaction) (string, error)
}

// Simulated gera endereços determinísticos por conta e hashes aleatórios.
type Simulated struct{}

func (Simulated) ValidateAddress(asset, address string) error {
	const op = "chain.ValidateAddress"
	a, ok := LookupAsset(asset)
	if !ok {
		return apperr.NewInvalidInput(op, "asset", asset)
	}
	if !a.ValidAddress(address) {
		return apperr.Newf(apperr.Validation, op, "invalid %s address: %q", a.Symbol, address)
	}
	return nil
}

const base58 = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func (Simulated) DepositAddress(_ context.Context, accountID, asset string) (string, error) {
	a, ok := LookupAsset(asset)
	if !ok {
		return "", apperr.NewInvalidInput("chain.DepositAddress", "asset", asset)
	}
	sum := sha256.Sum256([]byte(accountID + "|" + a.Symbol))
	h := hex.EncodeToString(sum[:])

	switch a.Symbol {
	case "BTC":
		return "bc1q" + h[:38], nil
	case "ETH":
		return "0x" + h[:40], nil
	case "TON":
		return "0:" + h, nil
	default:
		var b strings.Builder
		for _, c := range sum {
			b.WriteByte(base58[int(c)%len(base58)])
		}
		return b.String(), nil
	}
}

func (Simulated) Submit(_ context.Context, t *model.CryptoTransaction) (string, error) {
	h := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if t.Asset == "ETH" {
		return "0x" + h, nil
	}
	return h, nil
}
