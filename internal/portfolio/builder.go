package portfolio

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/observability/metrics"
	"OpenRebalancer/internal/pricing"
	"OpenRebalancer/internal/web3"
	"OpenRebalancer/pkg/logger"
)

const defaultConcurrency = 8

// Builder assembles snapshots from a balance oracle and a price feed.
type Builder struct {
	tokens      *web3.TokenTable
	balances    web3.BalanceOracle
	prices      pricing.Feed
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// BuilderOption customises a Builder.
type BuilderOption func(*Builder)

// WithConcurrency bounds the number of in-flight balance lookups.
func WithConcurrency(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithLogger sets the logger for degraded lookups.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the snapshot timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder wires a snapshot builder.
func NewBuilder(tokens *web3.TokenTable, balances web3.BalanceOracle, prices pricing.Feed, opts ...BuilderOption) *Builder {
	b := &Builder{
		tokens:      tokens,
		balances:    balances,
		prices:      prices,
		concurrency: defaultConcurrency,
		logger:      logger.Named("portfolio"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build values every tracked token plus the native asset held by owner.
// Only a failure of the whole price batch or a cancelled context fails the
// build; individual lookups degrade to a zero holding.
func (b *Builder) Build(ctx context.Context, owner common.Address) (*Snapshot, error) {
	prices, err := b.prices.SpotPrices(ctx, b.tokens.PriceIDs())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, xerrors.Wrap(xerrors.CodePriceFeedUnavailable, err, "price feed unavailable")
	}

	tokens := b.tokens.Tokens()
	holdings := make([]Holding, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, token := range tokens {
		price, ok := prices[token.PriceID]
		if !ok {
			b.degrade(token, "price", nil)
			holdings[i] = ZeroHolding(token.Symbol)
			continue
		}
		g.Go(func() error {
			raw, err := b.balance(gctx, token, owner)
			if err != nil {
				b.degrade(token, "balance", err)
				holdings[i] = ZeroHolding(token.Symbol)
				return nil
			}
			holdings[i] = NewHolding(token.Symbol, web3.ToUnits(raw, token.Decimals), price)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewSnapshot(owner, holdings, b.now()), nil
}

func (b *Builder) balance(ctx context.Context, token web3.Token, owner common.Address) (*big.Int, error) {
	if token.Native {
		return b.balances.NativeBalance(ctx, owner)
	}
	return b.balances.TokenBalance(ctx, token.Address, owner)
}

func (b *Builder) degrade(token web3.Token, stage string, cause error) {
	metrics.RecordTokenFetchFailure(token.Symbol, stage)
	fields := []zap.Field{
		zap.String("code", string(xerrors.CodePerTokenFetchFailure)),
		zap.String("symbol", token.Symbol),
		zap.String("stage", stage),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	} else {
		fields = append(fields, zap.String("price_id", token.PriceID))
	}
	b.logger.Warn("token lookup failed, holding recorded as zero", fields...)
}
