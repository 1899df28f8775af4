// Package limiter 基于 Redis 的令牌桶限流，用于保护加购与下单等写接口。
package limiter

import (
	"context"
	"errors"
	"time"
)

// LimitResult 限流结果
type LimitResult struct {
	Allowed    bool          `json:"allowed"`     // 是否允许通过
	Limit      int64         `json:"limit"`       // 桶容量
	Remaining  int64         `json:"remaining"`   // 剩余令牌
	RetryAfter time.Duration `json:"retry_after"` // 建议重试时间
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 检查是否允许请求通过
	Allow(ctx context.Context, key string) (*LimitResult, error)

	// AllowN 检查是否允许N个请求通过
	AllowN(ctx context.Context, key string, n int64) (*LimitResult, error)

	// Reset 重置限流状态
	Reset(ctx context.Context, key string) error
}

// Config 限流配置：每个 Window 补充 Rate 个令牌，桶容量 Burst
type Config struct {
	Rate      int64         `json:"rate"`
	Window    time.Duration `json:"window"`
	Burst     int64         `json:"burst"`
	KeyPrefix string        `json:"key_prefix"`
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Rate <= 0 || c.Burst <= 0 {
		return errors.New("limiter: rate and burst must be positive")
	}
	if c.Window < time.Millisecond {
		return errors.New("limiter: window must be at least 1ms")
	}
	return nil
}
