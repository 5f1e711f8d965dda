package portfolio

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	xerrors "OpenRebalancer/internal/errors"
	mock_web3 "OpenRebalancer/internal/web3/mocks"
)

type walletChain struct {
	*mock_web3.MockBalanceOracle
	*mock_web3.MockCodeInspector
}

func newWalletChain(ctrl *gomock.Controller) walletChain {
	return walletChain{
		MockBalanceOracle: mock_web3.NewMockBalanceOracle(ctrl),
		MockCodeInspector: mock_web3.NewMockCodeInspector(ctrl),
	}
}

func TestInspectorReportsBalances(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := newWalletChain(ctrl)

	chain.MockCodeInspector.EXPECT().IsContract(gomock.Any(), owner).Return(false, nil)
	chain.MockBalanceOracle.EXPECT().NativeBalance(gomock.Any(), owner).Return(wei("1.5", 18), nil)
	chain.MockBalanceOracle.EXPECT().TokenBalance(gomock.Any(), wbtc, owner).Return(wei("0.1", 8), nil)
	chain.MockBalanceOracle.EXPECT().TokenBalance(gomock.Any(), weth, owner).Return(big.NewInt(0), nil)
	chain.MockBalanceOracle.EXPECT().TokenBalance(gomock.Any(), wsol, owner).Return(nil, errors.New("timeout"))

	info, err := NewInspector(testTokens(t), chain, zap.NewNop()).Inspect(context.Background(), owner)
	require.NoError(t, err)
	require.False(t, info.IsContract)
	require.Equal(t, "1.5", info.NativeBalance.String())
	require.Len(t, info.TokenBalances, 3)
	require.Equal(t, "BTC", info.TokenBalances[0].Symbol)
	require.Equal(t, "0.1", info.TokenBalances[0].Amount.String())
	require.True(t, info.TokenBalances[2].Amount.IsZero())
}

func TestInspectorFailsOnCodeLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	chain := newWalletChain(ctrl)

	chain.MockCodeInspector.EXPECT().IsContract(gomock.Any(), owner).Return(false, errors.New("connection refused"))

	_, err := NewInspector(testTokens(t), chain, zap.NewNop()).Inspect(context.Background(), owner)
	require.Equal(t, xerrors.CodeUpstreamFailure, xerrors.CodeOf(err))
	require.Equal(t, http.StatusBadRequest, xerrors.HTTPStatusOf(err))
	require.True(t, xerrors.ShouldAlert(err))
	require.Equal(t, xerrors.SeverityCritical, xerrors.SeverityOf(err))
}
