package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"OpenRebalancer/internal/config"
	xerrors "OpenRebalancer/internal/errors"
	mock_pricing "OpenRebalancer/internal/pricing/mocks"
	"OpenRebalancer/internal/web3"
	mock_web3 "OpenRebalancer/internal/web3/mocks"
)

var (
	owner = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wbtc  = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	wsol  = common.HexToAddress("0xD31a59c85aE9D8edEFeC411D448f90841571b89c")
)

func testTokens(t *testing.T) *web3.TokenTable {
	t.Helper()
	table, err := web3.NewTokenTable(config.Web3Config{
		ReferenceToken: weth.Hex(),
		Native:         config.NativeConfig{Symbol: "NATIVE", PriceID: "ethereum", Decimals: 18},
		Tokens: []config.TokenConfig{
			{Symbol: "BTC", Address: wbtc.Hex(), Decimals: 8, PriceID: "wrapped-bitcoin"},
			{Symbol: "ETH", Address: weth.Hex(), Decimals: 18, PriceID: "weth"},
			{Symbol: "SOL", Address: wsol.Hex(), Decimals: 9, PriceID: "solana"},
		},
	})
	require.NoError(t, err)
	return table
}

func wei(units string, decimals int32) *big.Int {
	return web3.FromUnits(decimal.RequireFromString(units), decimals)
}

var allPriceIDs = []string{"wrapped-bitcoin", "weth", "solana", "ethereum"}

func TestBuilderValuesHoldings(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mock_web3.NewMockBalanceOracle(ctrl)
	feed := mock_pricing.NewMockFeed(ctrl)

	feed.EXPECT().SpotPrices(gomock.Any(), allPriceIDs).Return(map[string]decimal.Decimal{
		"wrapped-bitcoin": decimal.NewFromInt(20000),
		"weth":            decimal.NewFromInt(1000),
		"solana":          decimal.NewFromInt(100),
		"ethereum":        decimal.NewFromInt(1000),
	}, nil)
	balances.EXPECT().TokenBalance(gomock.Any(), wbtc, owner).Return(wei("0.025", 8), nil)
	balances.EXPECT().TokenBalance(gomock.Any(), weth, owner).Return(wei("0.3", 18), nil)
	balances.EXPECT().TokenBalance(gomock.Any(), wsol, owner).Return(wei("2", 9), nil)
	balances.EXPECT().NativeBalance(gomock.Any(), owner).Return(big.NewInt(0), nil)

	takenAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	builder := NewBuilder(testTokens(t), balances, feed,
		WithConcurrency(2),
		WithLogger(zap.NewNop()),
		WithClock(func() time.Time { return takenAt }))

	snapshot, err := builder.Build(context.Background(), owner)
	require.NoError(t, err)

	require.Equal(t, owner, snapshot.Owner())
	require.Equal(t, takenAt, snapshot.TakenAt())
	require.True(t, snapshot.TotalValue().Equal(decimal.NewFromInt(1000)), snapshot.TotalValue().String())

	var symbols []string
	for _, h := range snapshot.Holdings() {
		symbols = append(symbols, h.Symbol())
	}
	require.Equal(t, []string{"BTC", "ETH", "SOL", "NATIVE"}, symbols)

	btc, ok := snapshot.Holding("BTC")
	require.True(t, ok)
	require.True(t, btc.Value().Equal(decimal.NewFromInt(500)))

	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"BTC": {"amount": 0.025, "value": 500, "price": 20000},
		"ETH": {"amount": 0.3, "value": 300, "price": 1000},
		"SOL": {"amount": 2, "value": 200, "price": 100},
		"NATIVE": {"amount": 0, "value": 0, "price": 1000},
		"total_value": 1000
	}`, string(raw))
	require.Regexp(t, `^\{"BTC":.*"ETH":.*"SOL":.*"NATIVE":.*"total_value":1000\}$`, string(raw))
}

func TestBuilderDegradesFailedTokensToZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mock_web3.NewMockBalanceOracle(ctrl)
	feed := mock_pricing.NewMockFeed(ctrl)

	// weth price missing: ETH is zeroed without a balance call.
	feed.EXPECT().SpotPrices(gomock.Any(), gomock.Any()).Return(map[string]decimal.Decimal{
		"wrapped-bitcoin": decimal.NewFromInt(20000),
		"solana":          decimal.NewFromInt(100),
		"ethereum":        decimal.NewFromInt(1000),
	}, nil)
	balances.EXPECT().TokenBalance(gomock.Any(), wbtc, owner).Return(wei("0.05", 8), nil)
	balances.EXPECT().TokenBalance(gomock.Any(), wsol, owner).Return(nil, errors.New("execution reverted"))
	balances.EXPECT().NativeBalance(gomock.Any(), owner).Return(wei("0.5", 18), nil)

	snapshot, err := NewBuilder(testTokens(t), balances, feed, WithLogger(zap.NewNop())).
		Build(context.Background(), owner)
	require.NoError(t, err)

	for _, symbol := range []string{"ETH", "SOL"} {
		h, ok := snapshot.Holding(symbol)
		require.True(t, ok, symbol)
		require.True(t, h.Amount().IsZero(), symbol)
		require.True(t, h.UnitPrice().IsZero(), symbol)
		require.True(t, h.Value().IsZero(), symbol)
	}
	require.True(t, snapshot.TotalValue().Equal(decimal.NewFromInt(1500)), snapshot.TotalValue().String())
}

func TestBuilderFailsWhenPriceFeedIsDown(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mock_web3.NewMockBalanceOracle(ctrl)
	feed := mock_pricing.NewMockFeed(ctrl)

	feed.EXPECT().SpotPrices(gomock.Any(), gomock.Any()).Return(nil, errors.New("503 service unavailable"))

	snapshot, err := NewBuilder(testTokens(t), balances, feed, WithLogger(zap.NewNop())).
		Build(context.Background(), owner)
	require.Nil(t, snapshot)
	require.Equal(t, xerrors.CodePriceFeedUnavailable, xerrors.CodeOf(err))
	require.True(t, xerrors.ShouldAlert(err))
}

func TestBuilderHonoursCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	balances := mock_web3.NewMockBalanceOracle(ctrl)
	feed := mock_pricing.NewMockFeed(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	feed.EXPECT().SpotPrices(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ []string) (map[string]decimal.Decimal, error) {
			cancel()
			return nil, ctx.Err()
		})

	_, err := NewBuilder(testTokens(t), balances, feed, WithLogger(zap.NewNop())).Build(ctx, owner)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotIsDetachedFromInput(t *testing.T) {
	holdings := []Holding{
		NewHolding("BTC", decimal.RequireFromString("0.5"), decimal.NewFromInt(1000)),
		NewHolding("ETH", decimal.NewFromInt(2), decimal.NewFromInt(100)),
	}
	snapshot := NewSnapshot(owner, holdings, time.Now())
	holdings[0] = ZeroHolding("BTC")

	btc, _ := snapshot.Holding("BTC")
	require.True(t, btc.Value().Equal(decimal.NewFromInt(500)))
	require.True(t, snapshot.TotalValue().Equal(decimal.NewFromInt(700)))

	copied := snapshot.Holdings()
	copied[1] = ZeroHolding("ETH")
	eth, _ := snapshot.Holding("ETH")
	require.True(t, eth.Value().Equal(decimal.NewFromInt(200)))
}
