package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"OpenRebalancer/pkg/logger"
)

// Config 描述了 rebalancerd 在启动阶段需要加载的全部配置。构造完成后只读，
// 以值或指针形式传给各组件，不存在进程级单例。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Web3      Web3Config      `yaml:"web3"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Rebalance RebalanceConfig `yaml:"rebalance"`
	PlanStore PlanStoreConfig `yaml:"plan_store"`
	Events    EventsConfig    `yaml:"events"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Logging   logger.Config   `yaml:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address               string   `yaml:"address"`
	CORSOrigins           []string `yaml:"cors_origins"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request deadline applied to external calls.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Web3Config 包含访问区块链节点所需的 RPC 地址以及代币、路由合约表。
type Web3Config struct {
	RPCURL         string        `yaml:"rpc_url"`
	ChainID        int64         `yaml:"chain_id"`
	Router         string        `yaml:"router"`
	ReferenceToken string        `yaml:"reference_token"`
	Native         NativeConfig  `yaml:"native"`
	Tokens         []TokenConfig `yaml:"tokens"`
}

// NativeConfig 描述链原生的 gas 资产。
type NativeConfig struct {
	Symbol   string `yaml:"symbol"`
	PriceID  string `yaml:"price_id"`
	Decimals int32  `yaml:"decimals"`
}

// TokenConfig 描述一个被跟踪的 ERC-20 代币。
type TokenConfig struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
	PriceID  string `yaml:"price_id"`
}

// PricingConfig 描述美元现价数据源。
type PricingConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	Currency       string `yaml:"currency"`
	APIKey         string `yaml:"api_key"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// RequestsPerMinute 为 0 时不限流。
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Timeout returns the HTTP client timeout of the price feed.
func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RebalanceConfig 收拢再平衡计算与交易骨架的策略常量。
type RebalanceConfig struct {
	ThresholdUSD        string `yaml:"threshold_usd"`
	GasLimit            uint64 `yaml:"gas_limit"`
	GasPriceGwei        string `yaml:"gas_price_gwei"`
	PlanTTLSeconds      int    `yaml:"plan_ttl_seconds"`
	SnapshotConcurrency int    `yaml:"snapshot_concurrency"`
}

// Threshold parses ThresholdUSD.
func (r RebalanceConfig) Threshold() (decimal.Decimal, error) {
	return decimal.NewFromString(r.ThresholdUSD)
}

// GasPrice parses GasPriceGwei.
func (r RebalanceConfig) GasPrice() (decimal.Decimal, error) {
	return decimal.NewFromString(r.GasPriceGwei)
}

// PlanTTL returns how long pinned plans stay addressable by token.
func (r RebalanceConfig) PlanTTL() time.Duration {
	return time.Duration(r.PlanTTLSeconds) * time.Second
}

// PlanStoreConfig 选择固定计划的存储后端。
type PlanStoreConfig struct {
	Driver string      `yaml:"driver"`
	Redis  RedisConfig `yaml:"redis"`
	MySQL  MySQLConfig `yaml:"mysql"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// MySQLConfig 描述 MySQL 连接参数。
type MySQLConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
}

// EventsConfig 选择 transaction_ready 事件的投递方式。
type EventsConfig struct {
	Driver   string         `yaml:"driver"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
	Durable bool   `yaml:"durable"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
}

// Load 负责加载 .env、解析 YAML 配置文件并应用环境变量覆盖和默认值。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	var cfg Config
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析配置失败: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv 将环境变量覆盖到配置上。
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("INFURA_URL"); ok && v != "" {
		c.Web3.RPCURL = v
	}
	if v, ok := lookup("REBALANCER_RPC_URL"); ok && v != "" {
		c.Web3.RPCURL = v
	}
	if v, ok := lookup("REBALANCER_CHAIN_ID"); ok && v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Web3.ChainID = id
		}
	}
	if v, ok := lookup("REBALANCER_ADDRESS"); ok && v != "" {
		c.Server.Address = v
	}
	if v, ok := lookup("REBALANCER_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("REBALANCER_PLAN_STORE"); ok && v != "" {
		c.PlanStore.Driver = v
	}
	apiKeyEnv := c.Pricing.APIKeyEnv
	if apiKeyEnv == "" {
		apiKeyEnv = "COINGECKO_API_KEY"
	}
	if v, ok := lookup(apiKeyEnv); ok && v != "" && c.Pricing.APIKey == "" {
		c.Pricing.APIKey = v
	}
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值（以太坊主网）。
func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":5000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		c.Server.RequestTimeoutSeconds = 30
	}

	if c.Web3.ChainID == 0 {
		c.Web3.ChainID = 1
	}
	if c.Web3.Router == "" {
		c.Web3.Router = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	}
	if c.Web3.ReferenceToken == "" {
		c.Web3.ReferenceToken = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	}
	if c.Web3.Native.Symbol == "" {
		c.Web3.Native.Symbol = "NATIVE"
	}
	if c.Web3.Native.PriceID == "" {
		c.Web3.Native.PriceID = "ethereum"
	}
	if c.Web3.Native.Decimals == 0 {
		c.Web3.Native.Decimals = 18
	}
	if len(c.Web3.Tokens) == 0 {
		c.Web3.Tokens = []TokenConfig{
			{Symbol: "BTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8, PriceID: "wrapped-bitcoin"},
			{Symbol: "ETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18, PriceID: "weth"},
			{Symbol: "SOL", Address: "0xD31a59c85aE9D8edEFeC411D448f90841571b89c", Decimals: 9, PriceID: "solana"},
		}
	}

	if c.Pricing.Provider == "" {
		c.Pricing.Provider = "coingecko"
	}
	if c.Pricing.BaseURL == "" {
		c.Pricing.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "usd"
	}
	if c.Pricing.TimeoutSeconds <= 0 {
		c.Pricing.TimeoutSeconds = 10
	}
	if c.Pricing.RequestsPerMinute < 0 {
		c.Pricing.RequestsPerMinute = 0
	}

	if c.Rebalance.ThresholdUSD == "" {
		c.Rebalance.ThresholdUSD = "0.01"
	}
	if c.Rebalance.GasLimit == 0 {
		c.Rebalance.GasLimit = 200000
	}
	if c.Rebalance.GasPriceGwei == "" {
		c.Rebalance.GasPriceGwei = "20"
	}
	if c.Rebalance.PlanTTLSeconds <= 0 {
		c.Rebalance.PlanTTLSeconds = 600
	}
	if c.Rebalance.SnapshotConcurrency <= 0 {
		c.Rebalance.SnapshotConcurrency = 8
	}

	if c.PlanStore.Driver == "" {
		c.PlanStore.Driver = "memory"
	}
	if c.PlanStore.Redis.Prefix == "" {
		c.PlanStore.Redis.Prefix = "rebalancer:plans:"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "rebalancer.transactions"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate 检查配置的完整性，在任何外部连接建立之前拒绝错误配置。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Web3.RPCURL) == "" {
		return errors.New("未配置以太坊 RPC 地址 (web3.rpc_url / INFURA_URL)")
	}
	if c.Web3.ChainID <= 0 {
		return fmt.Errorf("非法的 chain_id: %d", c.Web3.ChainID)
	}
	if !common.IsHexAddress(c.Web3.Router) {
		return fmt.Errorf("非法的路由合约地址: %s", c.Web3.Router)
	}
	if !common.IsHexAddress(c.Web3.ReferenceToken) {
		return fmt.Errorf("非法的参考代币地址: %s", c.Web3.ReferenceToken)
	}

	seen := map[string]struct{}{strings.ToUpper(c.Web3.Native.Symbol): {}}
	for _, token := range c.Web3.Tokens {
		symbol := strings.ToUpper(strings.TrimSpace(token.Symbol))
		if symbol == "" {
			return errors.New("代币 symbol 不能为空")
		}
		if _, dup := seen[symbol]; dup {
			return fmt.Errorf("代币 %s 重复配置", symbol)
		}
		seen[symbol] = struct{}{}
		if !common.IsHexAddress(token.Address) {
			return fmt.Errorf("代币 %s 地址非法: %s", symbol, token.Address)
		}
		if token.Decimals < 0 || token.Decimals > 36 {
			return fmt.Errorf("代币 %s decimals 非法: %d", symbol, token.Decimals)
		}
		if strings.TrimSpace(token.PriceID) == "" {
			return fmt.Errorf("代币 %s 缺少 price_id", symbol)
		}
	}

	if c.Pricing.Provider != "coingecko" {
		return fmt.Errorf("未知的价格数据源: %s", c.Pricing.Provider)
	}

	threshold, err := c.Rebalance.Threshold()
	if err != nil || threshold.IsNegative() {
		return fmt.Errorf("非法的 threshold_usd: %q", c.Rebalance.ThresholdUSD)
	}
	gasPrice, err := c.Rebalance.GasPrice()
	if err != nil || !gasPrice.IsPositive() {
		return fmt.Errorf("非法的 gas_price_gwei: %q", c.Rebalance.GasPriceGwei)
	}

	switch c.PlanStore.Driver {
	case "none", "memory":
	case "redis":
		if c.PlanStore.Redis.Address == "" {
			return errors.New("redis 计划存储需要配置 plan_store.redis.address")
		}
	case "mysql":
		if c.PlanStore.MySQL.DSN == "" {
			return errors.New("mysql 计划存储需要配置 plan_store.mysql.dsn")
		}
	default:
		return fmt.Errorf("未知的计划存储驱动: %s", c.PlanStore.Driver)
	}

	switch c.Events.Driver {
	case "none", "memory":
	case "rabbitmq":
		if c.Events.RabbitMQ.URL == "" {
			return errors.New("rabbitmq 事件驱动需要配置 events.rabbitmq.url")
		}
	default:
		return fmt.Errorf("未知的事件驱动: %s", c.Events.Driver)
	}
	return nil
}
