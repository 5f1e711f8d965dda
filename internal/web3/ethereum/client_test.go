package ethereum

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"OpenRebalancer/internal/config"
	"OpenRebalancer/internal/web3"
)

var (
	testRouter    = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testWETH      = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testWBTC      = common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599")
	testOwner     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testContract  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	errBackendOff = errors.New("backend offline")
)

type fakeBackend struct {
	t         *testing.T
	erc20     abi.ABI
	router    abi.ABI
	balances  map[common.Address]map[common.Address]*big.Int
	native    map[common.Address]*big.Int
	code      map[common.Address][]byte
	nonce     uint64
	quoteOut  *big.Int
	failCalls bool
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		t.Fatalf("parse erc20 abi: %v", err)
	}
	router, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		t.Fatalf("parse router abi: %v", err)
	}
	return &fakeBackend{
		t:        t,
		erc20:    erc20,
		router:   router,
		balances: map[common.Address]map[common.Address]*big.Int{},
		native:   map[common.Address]*big.Int{},
		code:     map[common.Address][]byte{},
	}
}

func (f *fakeBackend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if f.failCalls {
		return nil, errBackendOff
	}
	if v, ok := f.native[account]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBackend) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if f.failCalls {
		return nil, errBackendOff
	}
	return f.code[account], nil
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	if f.failCalls {
		return 0, errBackendOff
	}
	return f.nonce, nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (f *fakeBackend) CallContract(_ context.Context, call gethcore.CallMsg, _ *big.Int) ([]byte, error) {
	if f.failCalls {
		return nil, errBackendOff
	}
	if call.To == nil || len(call.Data) < 4 {
		f.t.Fatalf("malformed call: %+v", call)
	}

	balanceOf := f.erc20.Methods["balanceOf"]
	getAmountsOut := f.router.Methods["getAmountsOut"]
	switch {
	case bytes.Equal(call.Data[:4], balanceOf.ID):
		args, err := balanceOf.Inputs.Unpack(call.Data[4:])
		if err != nil {
			f.t.Fatalf("unpack balanceOf args: %v", err)
		}
		owner := args[0].(common.Address)
		balance := big.NewInt(0)
		if holders, ok := f.balances[*call.To]; ok && holders[owner] != nil {
			balance = holders[owner]
		}
		return balanceOf.Outputs.Pack(balance)
	case bytes.Equal(call.Data[:4], getAmountsOut.ID):
		if *call.To != testRouter {
			f.t.Fatalf("quote sent to %s, want router", call.To.Hex())
		}
		args, err := getAmountsOut.Inputs.Unpack(call.Data[4:])
		if err != nil {
			f.t.Fatalf("unpack getAmountsOut args: %v", err)
		}
		amountIn := args[0].(*big.Int)
		return getAmountsOut.Outputs.Pack([]*big.Int{amountIn, f.quoteOut})
	default:
		f.t.Fatalf("unexpected selector %x", call.Data[:4])
		return nil, nil
	}
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	client, err := NewClientWithBackend(Config{
		Name:           "test",
		Router:         testRouter,
		ReferenceToken: testWETH,
	}, backend)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestClientBalances(t *testing.T) {
	backend := newFakeBackend(t)
	backend.native[testOwner] = big.NewInt(2_000_000_000_000_000_000)
	backend.balances[testWBTC] = map[common.Address]*big.Int{testOwner: big.NewInt(50_000_000)}
	client := newTestClient(t, backend)
	ctx := context.Background()

	native, err := client.NativeBalance(ctx, testOwner)
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	if native.String() != "2000000000000000000" {
		t.Fatalf("unexpected native balance %s", native)
	}

	wbtc, err := client.TokenBalance(ctx, testWBTC, testOwner)
	if err != nil {
		t.Fatalf("token balance: %v", err)
	}
	if wbtc.Int64() != 50_000_000 {
		t.Fatalf("unexpected token balance %s", wbtc)
	}

	backend.failCalls = true
	if _, err := client.TokenBalance(ctx, testWBTC, testOwner); !errors.Is(err, errBackendOff) {
		t.Fatalf("expected backend error to be wrapped, got %v", err)
	}
}

func TestClientIsContractAndNonce(t *testing.T) {
	backend := newFakeBackend(t)
	backend.code[testContract] = []byte{0x60, 0x80}
	backend.nonce = 7
	client := newTestClient(t, backend)
	ctx := context.Background()

	isContract, err := client.IsContract(ctx, testContract)
	if err != nil || !isContract {
		t.Fatalf("expected contract, got %v err=%v", isContract, err)
	}
	isContract, err = client.IsContract(ctx, testOwner)
	if err != nil || isContract {
		t.Fatalf("expected plain account, got %v err=%v", isContract, err)
	}

	nonce, err := client.PendingNonce(ctx, testOwner)
	if err != nil || nonce != 7 {
		t.Fatalf("unexpected nonce %d err=%v", nonce, err)
	}
}

func TestClientQuote(t *testing.T) {
	backend := newFakeBackend(t)
	// 1 WBTC -> 15.5 WETH
	backend.quoteOut = new(big.Int).Mul(big.NewInt(155), big.NewInt(100_000_000_000_000_000))
	client := newTestClient(t, backend)
	ctx := context.Background()

	quote, err := client.Quote(ctx, web3.Token{Symbol: "BTC", Address: testWBTC, Decimals: 8})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !quote.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("unexpected quote %s", quote)
	}

	quote, err = client.Quote(ctx, web3.Token{Symbol: "ETH", Address: testWETH, Decimals: 18})
	if err != nil || !quote.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("reference token must quote 1, got %s err=%v", quote, err)
	}

	backend.quoteOut = big.NewInt(0)
	if _, err := client.Quote(ctx, web3.Token{Symbol: "BTC", Address: testWBTC, Decimals: 8}); err == nil {
		t.Fatal("expected zero liquidity quote to fail")
	}
}

var _ Backend = (*fakeBackend)(nil)

func TestVerifyChain(t *testing.T) {
	client := newTestClient(t, newFakeBackend(t))

	if err := client.VerifyChain(context.Background(), 1); err != nil {
		t.Fatalf("verify mainnet: %v", err)
	}
	if err := client.VerifyChain(context.Background(), 11155111); err == nil {
		t.Fatal("expected chain id mismatch")
	}
}

func TestConfigFromWeb3(t *testing.T) {
	cfg := ConfigFromWeb3(config.Web3Config{
		RPCURL:         "http://localhost:8545",
		ChainID:        1,
		Router:         testRouter.Hex(),
		ReferenceToken: testWETH.Hex(),
		Native:         config.NativeConfig{Decimals: 18},
	})
	if cfg.Router != testRouter || cfg.ReferenceToken != testWETH || cfg.ReferenceDecimals != 18 {
		t.Fatalf("unexpected gateway config: %+v", cfg)
	}
	if cfg.Name != "chain-1" {
		t.Fatalf("unexpected name %q", cfg.Name)
	}
}
