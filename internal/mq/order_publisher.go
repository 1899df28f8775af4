package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

const appID = "cart_shop"

// OrderEventPublisher 把订单事件发布到 topic 交换机，路由键即事件类型
type OrderEventPublisher struct {
	producer *Producer
	exchange string
	logger   *zap.Logger
}

// NewOrderEventPublisher 创建订单事件发布者
func NewOrderEventPublisher(producer *Producer, exchange string, logger *zap.Logger) *OrderEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderEventPublisher{producer: producer, exchange: exchange, logger: logger}
}

// DeclareTopology 声明持久化 topic 交换机，重复声明是幂等的
func (p *OrderEventPublisher) DeclareTopology() error {
	return p.producer.WithChannel(func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		return nil
	})
}

// Publish 发布单个事件
func (p *OrderEventPublisher) Publish(ctx context.Context, event *domain.OrderEvent) error {
	if err := p.producer.PublishJSON(ctx, p.exchange, string(event.Type), event, eventOptions(event)); err != nil {
		return fmt.Errorf("publish %s for order %d: %w", event.Type, event.OrderID, err)
	}
	p.logger.Debug("order event published",
		zap.String("event_id", event.ID),
		zap.String("type", string(event.Type)),
		zap.Int64("order_id", event.OrderID))
	return nil
}

func eventOptions(event *domain.OrderEvent) *PublishOptions {
	return &PublishOptions{
		MessageID: event.ID,
		Type:      string(event.Type),
		Timestamp: event.OccurredAt,
		AppID:     appID,
		Headers: amqp.Table{
			"order_id": event.OrderID,
			"user_id":  event.UserID,
		},
	}
}
