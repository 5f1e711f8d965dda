package web3

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"OpenRebalancer/internal/config"
)

// Token is one entry of the tracked token table.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
	PriceID  string
	// Native marks the chain's gas asset. Its Address is the wrapped
	// reference token, which is what transactions and quotes go through.
	Native bool
}

// TokenTable is the read-only, ordered set of tracked assets. The native
// asset is always present and always last.
type TokenTable struct {
	tokens   []Token
	bySymbol map[string]int
}

// NewTokenTable builds the table from validated configuration.
func NewTokenTable(cfg config.Web3Config) (*TokenTable, error) {
	table := &TokenTable{bySymbol: make(map[string]int, len(cfg.Tokens)+1)}
	for _, tc := range cfg.Tokens {
		if !common.IsHexAddress(tc.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", tc.Symbol, tc.Address)
		}
		if err := table.add(Token{
			Symbol:   tc.Symbol,
			Address:  common.HexToAddress(tc.Address),
			Decimals: tc.Decimals,
			PriceID:  tc.PriceID,
		}); err != nil {
			return nil, err
		}
	}
	if !common.IsHexAddress(cfg.ReferenceToken) {
		return nil, fmt.Errorf("invalid reference token %q", cfg.ReferenceToken)
	}
	native := Token{
		Symbol:   cfg.Native.Symbol,
		Address:  common.HexToAddress(cfg.ReferenceToken),
		Decimals: cfg.Native.Decimals,
		PriceID:  cfg.Native.PriceID,
		Native:   true,
	}
	if err := table.add(native); err != nil {
		return nil, err
	}
	return table, nil
}

func (t *TokenTable) add(token Token) error {
	token.Symbol = NormalizeSymbol(token.Symbol)
	if token.Symbol == "" {
		return fmt.Errorf("token symbol cannot be empty")
	}
	if _, dup := t.bySymbol[token.Symbol]; dup {
		return fmt.Errorf("token %s configured twice", token.Symbol)
	}
	t.bySymbol[token.Symbol] = len(t.tokens)
	t.tokens = append(t.tokens, token)
	return nil
}

// Tokens returns a copy of the table in configuration order.
func (t *TokenTable) Tokens() []Token {
	out := make([]Token, len(t.tokens))
	copy(out, t.tokens)
	return out
}

// Lookup finds a token by case-insensitive symbol.
func (t *TokenTable) Lookup(symbol string) (Token, bool) {
	idx, ok := t.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return Token{}, false
	}
	return t.tokens[idx], true
}

// Native returns the gas asset entry.
func (t *TokenTable) Native() Token {
	return t.tokens[len(t.tokens)-1]
}

// PriceIDs returns the distinct price feed identifiers in table order.
func (t *TokenTable) PriceIDs() []string {
	seen := make(map[string]struct{}, len(t.tokens))
	ids := make([]string, 0, len(t.tokens))
	for _, token := range t.tokens {
		if _, ok := seen[token.PriceID]; ok {
			continue
		}
		seen[token.PriceID] = struct{}{}
		ids = append(ids, token.PriceID)
	}
	return ids
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ParseAddress validates a hex address the way wallets do: all-lower or
// all-upper hex is accepted as is, mixed case must carry a valid EIP-55
// checksum.
func ParseAddress(raw string) (common.Address, bool) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	addr := common.HexToAddress(raw)
	body := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if addr.Hex()[2:] != body {
			return common.Address{}, false
		}
	}
	return addr, true
}

// ToUnits converts a smallest-unit integer into whole units.
func ToUnits(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FromUnits converts whole units into the smallest unit, truncating any
// remainder below one base unit.
func FromUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
