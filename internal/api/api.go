// Package api 提供购物车、订单、商品与认证相关的 HTTP 处理器
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/middleware"
	"github.com/MorseWayne/cart_shop/internal/resp"
)

func requestID(c *gin.Context) string {
	return middleware.RequestIDFromContext(c.Request.Context())
}

// currentUser 当前调用者，匿名时返回 nil
func currentUser(c *gin.Context) *domain.User {
	return middleware.UserFromContext(c.Request.Context())
}

// parseID 解析正整数路径参数
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, "invalid "+name, requestID(c), "")
		return 0, false
	}
	return id, true
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	resp.Error(c.Writer, http.StatusBadRequest, resp.CodeInvalidParam, msg, requestID(c), "")
}

// classify 业务错误到 HTTP 状态与错误码的映射
func classify(err error) (int, resp.Code) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidIdentity):
		return http.StatusBadRequest, resp.CodeInvalidParam
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrEmptyCart),
		errors.Is(err, domain.ErrInvalidState):
		return http.StatusBadRequest, resp.CodeBusinessRule
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, resp.CodeNotFound
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, resp.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, resp.CodeForbidden
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, resp.CodeConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, resp.CodeTimeout
	default:
		return http.StatusInternalServerError, resp.CodeInternalError
	}
}

// writeError 写出错误响应。5xx 只返回通用提示，细节进日志。
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()

	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		msg = stockErr.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", requestID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		msg = "internal server error"
		if code == resp.CodeTimeout {
			msg = "request timeout"
		}
	} else {
		logger.Debug("request rejected", zap.String("request_id", requestID(c)), zap.Error(err))
	}

	resp.Error(c.Writer, status, code, msg, requestID(c), "")
}
