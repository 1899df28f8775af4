package limiter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/middleware"
	"github.com/MorseWayne/cart_shop/internal/resp"
)

// MiddlewareConfig 中间件配置
type MiddlewareConfig struct {
	// 限流器
	Limiter Limiter

	// Key生成函数
	KeyGenerator func(*gin.Context) string

	// 限流服务出错时的处理，缺省放行并记录日志
	ErrorHandler func(*gin.Context, error)

	// 被限流时的响应
	OnLimitReached func(*gin.Context, *LimitResult)

	// 是否跳过限流检查
	Skip func(*gin.Context) bool

	Logger *zap.Logger
}

// ClientIPKeyGenerator 基于客户端 IP
func ClientIPKeyGenerator(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// PrincipalKeyGenerator 已登录按用户，匿名按 IP，并带上作用域区分接口
func PrincipalKeyGenerator(scope string) func(*gin.Context) string {
	return func(c *gin.Context) string {
		if user := middleware.UserFromContext(c.Request.Context()); user != nil {
			return fmt.Sprintf("%s:user:%d", scope, user.ID)
		}
		return fmt.Sprintf("%s:%s", scope, ClientIPKeyGenerator(c))
	}
}

// RateLimitMiddleware 创建限流中间件
func RateLimitMiddleware(config *MiddlewareConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.KeyGenerator == nil {
		config.KeyGenerator = ClientIPKeyGenerator
	}
	if config.ErrorHandler == nil {
		logger := config.Logger
		config.ErrorHandler = func(c *gin.Context, err error) {
			logger.Warn("rate limiter unavailable, request allowed",
				zap.String("request_id", middleware.RequestIDFromContext(c.Request.Context())),
				zap.Error(err))
			c.Next()
		}
	}
	if config.OnLimitReached == nil {
		config.OnLimitReached = defaultOnLimitReached
	}

	return func(c *gin.Context) {
		if config.Skip != nil && config.Skip(c) {
			c.Next()
			return
		}

		key := config.KeyGenerator(c)

		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		result, err := config.Limiter.Allow(ctx, key)
		cancel()
		if err != nil {
			config.ErrorHandler(c, err)
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			config.OnLimitReached(c, result)
			c.Abort()
			return
		}

		c.Next()
	}
}

// setRateLimitHeaders 设置限流相关的响应头
func setRateLimitHeaders(c *gin.Context, result *LimitResult) {
	c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	if result.RetryAfter > 0 {
		secs := int64((result.RetryAfter + time.Second - 1) / time.Second)
		c.Header("Retry-After", strconv.FormatInt(secs, 10))
	}
}

func defaultOnLimitReached(c *gin.Context, result *LimitResult) {
	resp.Error(c.Writer, http.StatusTooManyRequests, resp.CodeTooManyReq,
		"too many requests, please retry later", middleware.RequestIDFromContext(c.Request.Context()), "")
}
