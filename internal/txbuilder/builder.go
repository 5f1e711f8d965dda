package txbuilder

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"

	"OpenRebalancer/internal/config"
	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/web3"
)

// Policy holds the fixed gas parameters and network id stamped on every
// skeleton.
type Policy struct {
	ChainID  *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// PolicyFromConfig converts configured gwei and chain id values.
func PolicyFromConfig(web3Cfg config.Web3Config, cfg config.RebalanceConfig) (Policy, error) {
	gwei, err := cfg.GasPrice()
	if err != nil {
		return Policy{}, fmt.Errorf("parse gas price: %w", err)
	}
	if !gwei.IsPositive() {
		return Policy{}, fmt.Errorf("gas price must be positive, got %s", gwei)
	}
	return Policy{
		ChainID:  big.NewInt(web3Cfg.ChainID),
		GasLimit: cfg.GasLimit,
		GasPrice: gwei.Mul(decimal.NewFromInt(params.GWei)).Truncate(0).BigInt(),
	}, nil
}

// Request describes one action to convert.
type Request struct {
	From      common.Address
	Symbol    string
	AmountUSD decimal.Decimal
}

// Builder prices actions through the router quote and stamps the nonce.
type Builder struct {
	tokens *web3.TokenTable
	quotes web3.QuoteSource
	nonces web3.NonceSource
	policy Policy
}

// NewBuilder wires a skeleton builder.
func NewBuilder(tokens *web3.TokenTable, quotes web3.QuoteSource, nonces web3.NonceSource, policy Policy) *Builder {
	return &Builder{tokens: tokens, quotes: quotes, nonces: nonces, policy: policy}
}

// Build converts req.AmountUSD into reference units using the token's quote
// and returns the skeleton. No skeleton is produced without a usable quote.
func (b *Builder) Build(ctx context.Context, req Request) (*TransactionSkeleton, error) {
	token, ok := b.tokens.Lookup(req.Symbol)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("token %s is not tracked", req.Symbol))
	}

	quote, err := b.quotes.Quote(ctx, token)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQuoteUnavailable, err, fmt.Sprintf("quote for %s unavailable", token.Symbol))
	}
	if !quote.IsPositive() {
		return nil, xerrors.New(xerrors.CodeQuoteUnavailable, fmt.Sprintf("quote for %s is not positive", token.Symbol))
	}

	nonce, err := b.nonces.PendingNonce(ctx, req.From)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "failed to fetch pending nonce")
	}

	units := req.AmountUSD.Div(quote)
	return &TransactionSkeleton{
		From:       req.From,
		To:         token.Address,
		Value:      web3.FromUnits(units, b.tokens.Native().Decimals),
		ValueUnits: units,
		GasLimit:   b.policy.GasLimit,
		GasPrice:   new(big.Int).Set(b.policy.GasPrice),
		Nonce:      nonce,
		ChainID:    new(big.Int).Set(b.policy.ChainID),
	}, nil
}
