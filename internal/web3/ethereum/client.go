package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"OpenRebalancer/internal/web3"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

const routerABI = `[{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

// Config describes how to construct an EVM compatible gateway.
type Config struct {
	Name              string
	RPCURL            string
	Router            common.Address
	ReferenceToken    common.Address
	ReferenceDecimals int32
}

// Backend is the subset of ethclient the gateway relies on.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client implements web3.Gateway for EVM compatible chains.
type Client struct {
	name        string
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	backend     Backend
	router      common.Address
	reference   common.Address
	refDecimals int32
	erc20       abi.ABI
	routerABI   abi.ABI
	mu          sync.Mutex
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use gateway.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("ethereum rpc url is not configured")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum node: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	client, err := newClient(cfg, eth)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	client.rpcClient = rpcClient
	client.eth = eth
	return client, nil
}

// NewClientWithBackend wraps an arbitrary backend, e.g. a simulated chain or a
// test double.
func NewClientWithBackend(cfg Config, backend Backend) (*Client, error) {
	if backend == nil {
		return nil, errors.New("backend is nil")
	}
	return newClient(cfg, backend)
}

func newClient(cfg Config, backend Backend) (*Client, error) {
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	decimals := cfg.ReferenceDecimals
	if decimals == 0 {
		decimals = 18
	}
	return &Client{
		name:        cfg.Name,
		backend:     backend,
		router:      cfg.Router,
		reference:   cfg.ReferenceToken,
		refDecimals: decimals,
		erc20:       erc20,
		routerABI:   router,
	}, nil
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
		c.rpcClient = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID reports the network identifier of the connected node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	return id, nil
}

// NativeBalance returns the gas asset balance in wei.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance %s: %w", owner.Hex(), err)
	}
	return balance, nil
}

// TokenBalance calls balanceOf on an ERC-20 contract.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	data, err := c.erc20.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s on %s: %w", owner.Hex(), token.Hex(), err)
	}
	values, err := c.erc20.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf from %s: %w", token.Hex(), err)
	}
	balance, ok := firstBigInt(values)
	if !ok {
		return nil, fmt.Errorf("balanceOf on %s returned unexpected payload", token.Hex())
	}
	return balance, nil
}

// IsContract reports whether bytecode is deployed at addr.
func (c *Client) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("eth_getCode %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// PendingNonce returns the next nonce including pending transactions.
func (c *Client) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	nonce, err := c.backend.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount %s: %w", addr.Hex(), err)
	}
	return nonce, nil
}

// Quote asks the router how much of the reference token one whole unit of
// token swaps into. The reference token itself quotes at exactly one.
func (c *Client) Quote(ctx context.Context, token web3.Token) (decimal.Decimal, error) {
	if token.Address == c.reference {
		return decimal.NewFromInt(1), nil
	}

	amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(token.Decimals)), nil)
	path := []common.Address{token.Address, c.reference}
	data, err := c.routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	out, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &c.router, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("getAmountsOut %s->%s: %w", token.Symbol, c.reference.Hex(), err)
	}
	values, err := c.routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack getAmountsOut: %w", err)
	}
	if len(values) != 1 {
		return decimal.Zero, errors.New("getAmountsOut returned unexpected payload")
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) != len(path) {
		return decimal.Zero, errors.New("getAmountsOut returned unexpected payload")
	}
	amountOut := amounts[len(amounts)-1]
	if amountOut == nil || amountOut.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("router has no liquidity for %s", token.Symbol)
	}
	return web3.ToUnits(amountOut, c.refDecimals), nil
}

func firstBigInt(values []any) (*big.Int, bool) {
	if len(values) != 1 {
		return nil, false
	}
	v, ok := values[0].(*big.Int)
	return v, ok && v != nil
}

var _ web3.Gateway = (*Client)(nil)
