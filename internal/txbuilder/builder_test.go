package txbuilder

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"OpenRebalancer/internal/config"
	xerrors "OpenRebalancer/internal/errors"
	"OpenRebalancer/internal/web3"
	mock_web3 "OpenRebalancer/internal/web3/mocks"
)

var (
	sender = common.HexToAddress("0x1111111111111111111111111111111111111111")
	wbtc   = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	weth   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

func testSetup(t *testing.T) (*web3.TokenTable, Policy) {
	t.Helper()
	web3Cfg := config.Web3Config{
		ChainID:        1,
		ReferenceToken: weth.Hex(),
		Native:         config.NativeConfig{Symbol: "NATIVE", PriceID: "ethereum", Decimals: 18},
		Tokens: []config.TokenConfig{
			{Symbol: "BTC", Address: wbtc.Hex(), Decimals: 8, PriceID: "wrapped-bitcoin"},
			{Symbol: "ETH", Address: weth.Hex(), Decimals: 18, PriceID: "weth"},
		},
	}
	tokens, err := web3.NewTokenTable(web3Cfg)
	require.NoError(t, err)
	policy, err := PolicyFromConfig(web3Cfg, config.RebalanceConfig{GasLimit: 200000, GasPriceGwei: "20"})
	require.NoError(t, err)
	return tokens, policy
}

func TestPolicyFromConfig(t *testing.T) {
	_, policy := testSetup(t)
	require.Equal(t, "20000000000", policy.GasPrice.String())
	require.EqualValues(t, 200000, policy.GasLimit)
	require.Equal(t, int64(1), policy.ChainID.Int64())

	_, err := PolicyFromConfig(config.Web3Config{ChainID: 1}, config.RebalanceConfig{GasPriceGwei: "0"})
	require.Error(t, err)
}

func TestBuildConvertsUSDThroughQuote(t *testing.T) {
	ctrl := gomock.NewController(t)
	quotes := mock_web3.NewMockQuoteSource(ctrl)
	nonces := mock_web3.NewMockNonceSource(ctrl)
	tokens, policy := testSetup(t)

	btc, _ := tokens.Lookup("BTC")
	quotes.EXPECT().Quote(gomock.Any(), btc).Return(decimal.NewFromInt(20000), nil)
	nonces.EXPECT().PendingNonce(gomock.Any(), sender).Return(uint64(7), nil)

	skeleton, err := NewBuilder(tokens, quotes, nonces, policy).Build(context.Background(), Request{
		From:      sender,
		Symbol:    "btc",
		AmountUSD: decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	want := &TransactionSkeleton{
		From:       sender,
		To:         wbtc,
		Value:      big.NewInt(5_000_000_000_000_000),
		ValueUnits: decimal.RequireFromString("0.005"),
		GasLimit:   200000,
		GasPrice:   big.NewInt(20_000_000_000),
		Nonce:      7,
		ChainID:    big.NewInt(1),
	}
	opts := cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })
	if diff := cmp.Diff(want, skeleton, opts); diff != "" {
		t.Fatalf("unexpected skeleton (-want +got):\n%s", diff)
	}
}

func TestBuildFailsWithoutQuote(t *testing.T) {
	tests := []struct {
		name  string
		quote decimal.Decimal
		err   error
	}{
		{name: "router error", err: errors.New("execution reverted")},
		{name: "zero quote", quote: decimal.Zero},
		{name: "negative quote", quote: decimal.NewFromInt(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			quotes := mock_web3.NewMockQuoteSource(ctrl)
			nonces := mock_web3.NewMockNonceSource(ctrl)
			tokens, policy := testSetup(t)

			quotes.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(tc.quote, tc.err)

			skeleton, err := NewBuilder(tokens, quotes, nonces, policy).Build(context.Background(), Request{
				From: sender, Symbol: "BTC", AmountUSD: decimal.NewFromInt(100),
			})
			require.Nil(t, skeleton)
			require.Equal(t, xerrors.CodeQuoteUnavailable, xerrors.CodeOf(err))
		})
	}
}

func TestBuildRejectsUnknownToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokens, policy := testSetup(t)

	_, err := NewBuilder(tokens, mock_web3.NewMockQuoteSource(ctrl), mock_web3.NewMockNonceSource(ctrl), policy).
		Build(context.Background(), Request{From: sender, Symbol: "DOGE", AmountUSD: decimal.NewFromInt(1)})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestBuildWrapsNonceFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	quotes := mock_web3.NewMockQuoteSource(ctrl)
	nonces := mock_web3.NewMockNonceSource(ctrl)
	tokens, policy := testSetup(t)

	quotes.EXPECT().Quote(gomock.Any(), gomock.Any()).Return(decimal.NewFromInt(1), nil)
	nonces.EXPECT().PendingNonce(gomock.Any(), sender).Return(uint64(0), errors.New("dial tcp: refused"))

	_, err := NewBuilder(tokens, quotes, nonces, policy).
		Build(context.Background(), Request{From: sender, Symbol: "ETH", AmountUSD: decimal.NewFromInt(5)})
	require.Equal(t, xerrors.CodeUpstreamFailure, xerrors.CodeOf(err))
}

func TestSkeletonIsSignable(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	skeleton := &TransactionSkeleton{
		From:       from,
		To:         wbtc,
		Value:      big.NewInt(5_000_000_000_000_000),
		ValueUnits: decimal.RequireFromString("0.005"),
		GasLimit:   200000,
		GasPrice:   big.NewInt(20_000_000_000),
		Nonce:      3,
		ChainID:    big.NewInt(1),
	}
	signer := types.LatestSignerForChainID(skeleton.ChainID)
	require.Equal(t, signer.Hash(skeleton.Unsigned()), skeleton.SigningHash())

	signed, err := types.SignTx(skeleton.Unsigned(), signer, key)
	require.NoError(t, err)
	recovered, err := types.Sender(signer, signed)
	require.NoError(t, err)
	require.Equal(t, from, recovered)
	require.Zero(t, skeleton.Value.Cmp(signed.Value()))
}

func TestSkeletonJSON(t *testing.T) {
	skeleton := &TransactionSkeleton{
		From:       sender,
		To:         wbtc,
		Value:      big.NewInt(5_000_000_000_000_000),
		ValueUnits: decimal.RequireFromString("0.005"),
		GasLimit:   200000,
		GasPrice:   big.NewInt(20_000_000_000),
		Nonce:      7,
		ChainID:    big.NewInt(1),
	}
	raw, err := json.Marshal(skeleton)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	require.Equal(t, "5000000000000000", fields["value"])
	require.Equal(t, 0.005, fields["valueUnits"])
	require.Equal(t, "20000000000", fields["gasPrice"])
	require.Equal(t, "1", fields["chainId"])

	var decoded TransactionSkeleton
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, 0, decoded.Value.Cmp(skeleton.Value))
	require.True(t, decoded.ValueUnits.Equal(skeleton.ValueUnits))
	require.Equal(t, skeleton.Nonce, decoded.Nonce)
}
