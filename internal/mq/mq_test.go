package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "amqps", mutate: func(c *Config) { c.URL = "amqps://u:p@mq:5671/" }},
		{name: "empty url", mutate: func(c *Config) { c.URL = "" }, wantErr: true},
		{name: "bad scheme", mutate: func(c *Config) { c.URL = "http://mq" }, wantErr: true},
		{name: "no exchange", mutate: func(c *Config) { c.Exchange = "" }, wantErr: true},
		{name: "no retries", mutate: func(c *Config) { c.MaxRetryAttempts = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	c := FromAppConfig(config.MQConfig{URL: "amqp://a:secret@mq:5672/"})
	assert.Equal(t, "shop.orders", c.Exchange)
	assert.NotContains(t, c.redactedURL(), "secret")

	c = FromAppConfig(config.MQConfig{URL: "amqp://mq", Exchange: "orders"})
	assert.Equal(t, "orders", c.Exchange)
}

func TestBuildPublishing(t *testing.T) {
	p := buildPublishing([]byte("x"), nil)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, "application/octet-stream", p.ContentType)
	assert.False(t, p.Timestamp.IsZero())

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p = buildPublishing([]byte("x"), &PublishOptions{MessageID: "m1", Type: "t", ContentType: "application/json", Timestamp: at})
	assert.Equal(t, "m1", p.MessageId)
	assert.Equal(t, "t", p.Type)
	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, at, p.Timestamp)
}

func TestEventOptions(t *testing.T) {
	order := &domain.Order{ID: 7, UserID: 3, Status: domain.OrderStatusPending, TotalAmount: decimal.NewFromInt(30)}
	e := domain.NewOrderEvent(domain.OrderEventPlaced, order, "")

	opts := eventOptions(e)
	assert.Equal(t, e.ID, opts.MessageID)
	assert.Equal(t, "order.placed", opts.Type)
	assert.Equal(t, int64(7), opts.Headers["order_id"])
	assert.NoError(t, opts.Headers.Validate())

	body, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"total_amount":"30"`)
}

func TestPublishWithoutConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetryAttempts = 2
	cfg.RetryInterval = time.Millisecond
	cm := NewConnectionManager(cfg, nil)
	producer := NewProducer(cm, cfg, nil)
	pub := NewOrderEventPublisher(producer, cfg.Exchange, nil)

	e := domain.NewOrderEvent(domain.OrderEventCancelled, &domain.Order{ID: 1, UserID: 1, Status: domain.OrderStatusCancelled}, domain.OrderStatusPending)
	err := pub.Publish(context.Background(), e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.Equal(t, int64(1), producer.GetStats().FailedCount)
	assert.Equal(t, StateDisconnected, cm.GetState())

	require.NoError(t, producer.Close())
	require.NoError(t, cm.Close())
	require.NoError(t, cm.Close())
	assert.Equal(t, StateClosed, cm.GetState())
}
