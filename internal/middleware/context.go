// Package middleware 提供 HTTP 中间件：请求 ID、恢复、超时、CORS、访问日志、认证与幂等键。
package middleware

import (
	"context"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyUser      contextKey = "user"
)

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext 未经过 RequestID 中间件时返回空串
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// WithUser 将调用者身份写入上下文
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

// UserFromContext 匿名请求返回 nil
func UserFromContext(ctx context.Context) *domain.User {
	user, _ := ctx.Value(contextKeyUser).(*domain.User)
	return user
}
