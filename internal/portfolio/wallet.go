package portfolio

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/web3"
	"OpenRebalancer/pkg/logger"
)

// WalletChain is what the inspector needs from the chain gateway.
type WalletChain interface {
	web3.BalanceOracle
	web3.CodeInspector
}

// TokenBalance is an unpriced token amount in whole units.
type TokenBalance struct {
	Symbol string
	Amount decimal.Decimal
}

// WalletInfo summarises an address for the connect-wallet flow.
type WalletInfo struct {
	Address       common.Address
	IsContract    bool
	NativeBalance decimal.Decimal
	TokenBalances []TokenBalance
}

// Inspector reads raw balances of an address without pricing them.
type Inspector struct {
	tokens      *web3.TokenTable
	chain       WalletChain
	concurrency int
	logger      *zap.Logger
}

// NewInspector wires an Inspector.
func NewInspector(tokens *web3.TokenTable, chain WalletChain, l *zap.Logger) *Inspector {
	if l == nil {
		l = logger.Named("wallet")
	}
	return &Inspector{tokens: tokens, chain: chain, concurrency: defaultConcurrency, logger: l}
}

// nodeFailure keeps the 400 the wallet endpoint has always answered with,
// but an unreachable node still pages.
var nodeFailure = []xerrors.Option{
	xerrors.WithHTTPStatus(http.StatusBadRequest),
	xerrors.WithSeverity(xerrors.SeverityCritical),
	xerrors.WithAlert(true),
}

// Inspect checks whether the address holds bytecode, reads its native
// balance and every tracked ERC-20 balance. Token failures report zero; a
// failing bytecode or native balance lookup fails the call.
func (i *Inspector) Inspect(ctx context.Context, owner common.Address) (*WalletInfo, error) {
	isContract, err := i.chain.IsContract(ctx, owner)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "failed to verify address", nodeFailure...)
	}
	native := i.tokens.Native()
	rawNative, err := i.chain.NativeBalance(ctx, owner)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "failed to get balance", nodeFailure...)
	}

	var tracked []web3.Token
	for _, token := range i.tokens.Tokens() {
		if !token.Native {
			tracked = append(tracked, token)
		}
	}
	balances := make([]TokenBalance, len(tracked))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for idx, token := range tracked {
		g.Go(func() error {
			balances[idx] = TokenBalance{Symbol: token.Symbol, Amount: decimal.Zero}
			raw, err := i.chain.TokenBalance(gctx, token.Address, owner)
			if err != nil {
				i.logger.Warn("token balance lookup failed",
					zap.String("symbol", token.Symbol),
					zap.String("address", owner.Hex()),
					zap.Error(err))
				return nil
			}
			balances[idx].Amount = web3.ToUnits(raw, token.Decimals)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &WalletInfo{
		Address:       owner,
		IsContract:    isContract,
		NativeBalance: web3.ToUnits(rawNative, native.Decimals),
		TokenBalances: balances,
	}, nil
}
