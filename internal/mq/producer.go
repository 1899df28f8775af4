package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ErrNacked broker 拒绝了消息
var ErrNacked = errors.New("mq: message was nacked by broker")

// Producer 确认模式下的 RabbitMQ 生产者。
// amqp 通道不支持并发发布，这里独占一个通道并串行发布。
type Producer struct {
	cm     *ConnectionManager
	config *Config
	logger *zap.Logger

	mutex  sync.Mutex
	ch     *amqp.Channel
	closed bool

	publishedCount atomic.Int64
	confirmedCount atomic.Int64
	failedCount    atomic.Int64
}

// PublishOptions 发布选项
type PublishOptions struct {
	Headers     amqp.Table
	MessageID   string
	Timestamp   time.Time
	Type        string
	AppID       string
	ContentType string
}

// NewProducer 创建生产者
func NewProducer(cm *ConnectionManager, config *Config, logger *zap.Logger) *Producer {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Producer{cm: cm, config: config, logger: logger}
	// 重连后旧通道随连接失效
	cm.OnReconnected(p.resetChannel)
	return p
}

// Publish 发布消息，失败时按配置重试
func (p *Producer) Publish(ctx context.Context, exchange, routingKey string, body []byte, options *PublishOptions) error {
	publishing := buildPublishing(body, options)

	maxAttempts := p.config.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.publishOnce(ctx, exchange, routingKey, publishing)
		if err == nil {
			return nil
		}
		lastErr = err
		p.logger.Warn("消息发布失败",
			zap.String("exchange", exchange),
			zap.String("routing_key", routingKey),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))

		if attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(p.config.RetryInterval):
		case <-ctx.Done():
			p.failedCount.Add(1)
			return ctx.Err()
		}
	}

	p.failedCount.Add(1)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxAttempts, lastErr)
}

// PublishJSON 发布 JSON 消息
func (p *Producer) PublishJSON(ctx context.Context, exchange, routingKey string, data any, options *PublishOptions) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if options == nil {
		options = &PublishOptions{}
	}
	options.ContentType = "application/json"
	return p.Publish(ctx, exchange, routingKey, body, options)
}

// WithChannel 在发布通道上执行操作，用于声明交换机等拓扑
func (p *Producer) WithChannel(fn func(ch *amqp.Channel) error) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	return fn(ch)
}

func (p *Producer) publishOnce(ctx context.Context, exchange, routingKey string, publishing amqp.Publishing) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.config.ConfirmTimeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(confirmCtx, exchange, routingKey, false, false, publishing)
	if err != nil {
		p.dropChannelLocked()
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.publishedCount.Add(1)

	ack, err := dc.WaitContext(confirmCtx)
	if err != nil {
		// 确认超时后通道上的序号不可再信任
		p.dropChannelLocked()
		return fmt.Errorf("wait publish confirmation: %w", err)
	}
	if !ack {
		return ErrNacked
	}
	p.confirmedCount.Add(1)
	return nil
}

// channelLocked 返回可用的确认模式通道，调用方需持有 mutex
func (p *Producer) channelLocked() (*amqp.Channel, error) {
	if p.closed {
		return nil, errors.New("producer is closed")
	}
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	ch, err := p.cm.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set confirm mode: %w", err)
	}
	p.ch = ch
	return ch, nil
}

func (p *Producer) dropChannelLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
}

func (p *Producer) resetChannel() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.dropChannelLocked()
}

// Close 关闭生产者，不关闭底层连接
func (p *Producer) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.dropChannelLocked()
	return nil
}

// GetStats 获取统计信息
func (p *Producer) GetStats() ProducerStats {
	return ProducerStats{
		PublishedCount: p.publishedCount.Load(),
		ConfirmedCount: p.confirmedCount.Load(),
		FailedCount:    p.failedCount.Load(),
	}
}

// ProducerStats 生产者统计信息
type ProducerStats struct {
	PublishedCount int64 `json:"published_count"`
	ConfirmedCount int64 `json:"confirmed_count"`
	FailedCount    int64 `json:"failed_count"`
}

func buildPublishing(body []byte, options *PublishOptions) amqp.Publishing {
	publishing := amqp.Publishing{
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		ContentType:  "application/octet-stream",
	}
	if options == nil {
		return publishing
	}

	publishing.Headers = options.Headers
	publishing.MessageId = options.MessageID
	publishing.Type = options.Type
	publishing.AppId = options.AppID
	if !options.Timestamp.IsZero() {
		publishing.Timestamp = options.Timestamp
	}
	if options.ContentType != "" {
		publishing.ContentType = options.ContentType
	}
	return publishing
}
