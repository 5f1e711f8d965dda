package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("INFURA_URL", "https://mainnet.example/v3/key")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, ":5000", cfg.Server.Address)
	require.Equal(t, "https://mainnet.example/v3/key", cfg.Web3.RPCURL)
	require.EqualValues(t, 1, cfg.Web3.ChainID)
	require.Len(t, cfg.Web3.Tokens, 3)
	require.Equal(t, "BTC", cfg.Web3.Tokens[0].Symbol)
	require.Equal(t, "memory", cfg.PlanStore.Driver)
	require.Equal(t, "none", cfg.Events.Driver)

	threshold, err := cfg.Rebalance.Threshold()
	require.NoError(t, err)
	require.Equal(t, "0.01", threshold.String())
	require.EqualValues(t, 600, cfg.Rebalance.PlanTTL().Seconds())
}

func TestLoadReadsYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "rebalancer.yaml")
	content := `
server:
  address: ":9090"
web3:
  rpc_url: "http://localhost:8545"
  chain_id: 1337
  tokens:
    - symbol: USDC
      address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
      decimals: 6
      price_id: usd-coin
rebalance:
  threshold_usd: "1.5"
plan_store:
  driver: redis
  redis:
    address: "localhost:6379"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REBALANCER_LOG_LEVEL", "debug")
	t.Setenv("REBALANCER_RPC_URL", "http://override:8545")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Address)
	require.Equal(t, "http://override:8545", cfg.Web3.RPCURL)
	require.EqualValues(t, 1337, cfg.Web3.ChainID)
	require.Len(t, cfg.Web3.Tokens, 1)
	require.Equal(t, "USDC", cfg.Web3.Tokens[0].Symbol)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "redis", cfg.PlanStore.Driver)
	require.Equal(t, "rebalancer:plans:", cfg.PlanStore.Redis.Prefix)
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Web3: Web3Config{RPCURL: "http://localhost:8545"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing rpc", func(c *Config) { c.Web3.RPCURL = "" }},
		{"bad router", func(c *Config) { c.Web3.Router = "router" }},
		{"bad token address", func(c *Config) { c.Web3.Tokens[0].Address = "0x1234" }},
		{"duplicate symbol", func(c *Config) { c.Web3.Tokens[1].Symbol = "btc" }},
		{"native symbol clash", func(c *Config) { c.Web3.Tokens[0].Symbol = "NATIVE" }},
		{"negative threshold", func(c *Config) { c.Rebalance.ThresholdUSD = "-1" }},
		{"zero gas price", func(c *Config) { c.Rebalance.GasPriceGwei = "0" }},
		{"unknown store", func(c *Config) { c.PlanStore.Driver = "etcd" }},
		{"mysql without dsn", func(c *Config) { c.PlanStore.Driver = "mysql" }},
		{"rabbitmq without url", func(c *Config) { c.Events.Driver = "rabbitmq" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, base().Validate())
}
