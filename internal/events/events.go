// Package events 负责向下游广播已生成的交易骨架。
package events

import (
	"context"
	"time"

	"OpenRebalancer/internal/txbuilder"
)

// TypeTransactionReady 标识一次步进请求产出的交易骨架事件。
const TypeTransactionReady = "transaction_ready"

// TransactionReady 描述一次已准备好、等待签名的交易。
type TransactionReady struct {
	Type        string                         `json:"type"`
	PlanToken   string                         `json:"plan_token,omitempty"`
	Address     string                         `json:"address"`
	ActionIndex int                            `json:"action_index"`
	NextIndex   int                            `json:"next_action_index"`
	Symbol      string                         `json:"symbol"`
	Direction   string                         `json:"direction"`
	AmountUSD   string                         `json:"amount_usd"`
	Transaction *txbuilder.TransactionSkeleton `json:"transaction"`
	OccurredAt  time.Time                      `json:"occurred_at"`
}

// Handler 处理订阅到的事件。
type Handler func(ctx context.Context, event TransactionReady) error

// Publisher 负责投递事件。
type Publisher interface {
	Publish(ctx context.Context, event TransactionReady) error
	Close() error
}

// Subscriber 负责消费事件。
type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// NoopPublisher 丢弃所有事件，未配置事件驱动时使用。
type NoopPublisher struct{}

// Publish 实现 Publisher 接口。
func (NoopPublisher) Publish(context.Context, TransactionReady) error { return nil }

// Close 实现 Publisher 接口。
func (NoopPublisher) Close() error { return nil }
