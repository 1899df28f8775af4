package service

import (
	"context"
	"errors"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// OrderEventPublisher 订单事件下游：消息队列、审计日志等
type OrderEventPublisher interface {
	Publish(ctx context.Context, event *domain.OrderEvent) error
}

// FanoutPublisher 依次投递给全部下游，汇总全部错误
type FanoutPublisher []OrderEventPublisher

func (f FanoutPublisher) Publish(ctx context.Context, event *domain.OrderEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopPublisher 未配置下游时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *domain.OrderEvent) error { return nil }

// StockCacheEvicter 结算提交后失效商品缓存
type StockCacheEvicter interface {
	Evict(ctx context.Context, ids ...int64)
}
