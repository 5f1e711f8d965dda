package ethereum

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"OpenRebalancer/internal/config"
)

// ConfigFromWeb3 maps the application config onto a gateway Config.
func ConfigFromWeb3(cfg config.Web3Config) Config {
	return Config{
		Name:              fmt.Sprintf("chain-%d", cfg.ChainID),
		RPCURL:            cfg.RPCURL,
		Router:            common.HexToAddress(cfg.Router),
		ReferenceToken:    common.HexToAddress(cfg.ReferenceToken),
		ReferenceDecimals: cfg.Native.Decimals,
	}
}

// Dial 连接配置中的节点，并确认其 chain id 与配置一致，
// 否则生成的交易骨架会签到错误的链上。
func Dial(ctx context.Context, cfg config.Web3Config) (*Client, error) {
	client, err := NewClient(ctx, ConfigFromWeb3(cfg))
	if err != nil {
		return nil, fmt.Errorf("初始化链 %d 失败: %w", cfg.ChainID, err)
	}
	if err := client.VerifyChain(ctx, cfg.ChainID); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// VerifyChain fails when the node reports a chain id other than want.
func (c *Client) VerifyChain(ctx context.Context, want int64) error {
	got, err := c.ChainID(ctx)
	if err != nil {
		return err
	}
	if !got.IsInt64() || got.Int64() != want {
		return fmt.Errorf("节点 %s 的 chain id 为 %s，与配置的 %d 不一致", c.name, got, want)
	}
	return nil
}
