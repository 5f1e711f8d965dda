package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"OpenRebalancer/internal/config"
	"OpenRebalancer/pkg/logger"
)

// RabbitMQBus 通过 RabbitMQ 队列投递与消费事件。
type RabbitMQBus struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQBus 建立连接并声明队列。
func NewRabbitMQBus(cfg config.RabbitMQConfig) (*RabbitMQBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "rebalancer.transactions"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}
	return &RabbitMQBus{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 将事件以 JSON 形式投递到 RabbitMQ。
func (b *RabbitMQBus) Publish(ctx context.Context, event TransactionReady) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 事件总线未初始化")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return b.ch.PublishWithContext(ctx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
}

// Subscribe 使用手动确认模式消费事件，无法解析的消息直接丢弃。
func (b *RabbitMQBus) Subscribe(ctx context.Context, handler Handler) error {
	if b == nil || b.ch == nil {
		return errors.New("RabbitMQ 事件总线未初始化")
	}
	msgs, err := b.ch.Consume(b.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}
	log := logger.Named("events")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("RabbitMQ 消费通道已关闭")
			}
			var event TransactionReady
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Warn("丢弃无法解析的事件", zap.Error(err))
				_ = msg.Nack(false, false)
				continue
			}
			if err := handler(ctx, event); err != nil {
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
	}
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
