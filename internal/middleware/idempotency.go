package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/cache"
	"github.com/MorseWayne/cart_shop/internal/resp"
)

// HeaderIdempotencyKey 幂等键请求头
const HeaderIdempotencyKey = "Idempotency-Key"

const maxIdempotencyKeyLen = 128

// releaseTimeout 释放键的最长等待时间，请求上下文可能已被超时中间件取消
const releaseTimeout = 2 * time.Second

// IdempotencyConfig 幂等性中间件配置
type IdempotencyConfig struct {
	Cache  cache.Cache
	TTL    time.Duration
	Scope  string
	Logger *zap.Logger
}

// Idempotency 对携带 Idempotency-Key 的请求做去重：
// 同一调用者在 TTL 内重复提交同一个键返回 409。
// 处理失败（非 2xx）时释放键，允许客户端用同一个键重试。
// 未携带键的请求不受影响。
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		reqID := RequestIDFromContext(ctx)
		if len(key) > maxIdempotencyKeyLen {
			resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, "idempotency key too long", reqID, "")
			c.Abort()
			return
		}

		caller := "anonymous"
		if user := UserFromContext(ctx); user != nil {
			caller = fmt.Sprintf("user:%d", user.ID)
		}
		cacheKey := fmt.Sprintf("idem:%s:%s:%s", cfg.Scope, caller, key)

		ok, err := cfg.Cache.SetNX(ctx, cacheKey, reqID, cfg.TTL)
		if err != nil {
			cfg.Logger.Warn("idempotency store unavailable, request allowed",
				zap.String("request_id", reqID), zap.Error(err))
			c.Next()
			return
		}
		if !ok {
			cfg.Logger.Info("duplicate request rejected",
				zap.String("request_id", reqID), zap.String("idempotency_key", key))
			resp.Error(c.Writer, http.StatusConflict, resp.CodeConflict, "duplicate request", reqID, "")
			c.Abort()
			return
		}

		c.Next()

		if status := c.Writer.Status(); status < 200 || status >= 300 {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if err := cfg.Cache.Del(releaseCtx, cacheKey); err != nil {
				cfg.Logger.Warn("release idempotency key failed", zap.String("request_id", reqID), zap.Error(err))
			}
		}
	}
}
