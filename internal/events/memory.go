package events

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus 使用 channel 模拟消息队列，主要用于测试与单进程部署。
type MemoryBus struct {
	ch     chan TransactionReady
	mu     sync.Mutex
	closed bool
}

// NewMemoryBus 创建一个内存事件总线。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{ch: make(chan TransactionReady, size)}
}

// Publish 将事件投递到总线。
func (b *MemoryBus) Publish(ctx context.Context, event TransactionReady) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("事件总线已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case b.ch <- event:
		return nil
	}
}

// Subscribe 阻塞消费事件直到 ctx 结束或总线关闭。
func (b *MemoryBus) Subscribe(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-b.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, event)
		}
	}
}

// Close 关闭总线。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.ch)
	return nil
}
