package web3

//go:generate mockgen -source=types.go -destination=mocks/mock_web3.go -package=mock_web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// BalanceOracle reports raw on-chain balances in the asset's smallest unit.
type BalanceOracle interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// CodeInspector tells contracts apart from externally owned accounts.
type CodeInspector interface {
	IsContract(ctx context.Context, addr common.Address) (bool, error)
}

// NonceSource returns the next pending nonce of an account.
type NonceSource interface {
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
}

// QuoteSource prices one whole unit of token in the reference asset.
type QuoteSource interface {
	Quote(ctx context.Context, token Token) (decimal.Decimal, error)
}

// Gateway is the full set of chain capabilities a running daemon needs.
type Gateway interface {
	BalanceOracle
	CodeInspector
	NonceSource
	QuoteSource
	Close()
}
