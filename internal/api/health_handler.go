package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/resp"
)

// Pinger 可做连通性检查的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 适配函数为 Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler 健康检查
type HealthHandler struct {
	version string
	deps    map[string]Pinger
	logger  *zap.Logger
}

// HealthStatus 健康检查结果
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// NewHealthHandler deps 为空的项会被忽略
func NewHealthHandler(version string, deps map[string]Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	clean := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			clean[name] = p
		}
	}
	return &HealthHandler{version: version, deps: clean, logger: logger}
}

// Healthz GET /healthz，任一依赖不可用时返回 503
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	out := HealthStatus{Status: "ok", Version: h.version, Checks: make(map[string]string, len(h.deps))}
	for name, p := range h.deps {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			out.Checks[name] = "down"
			out.Status = "degraded"
			continue
		}
		out.Checks[name] = "ok"
	}

	if out.Status != "ok" {
		resp.WriteJSON(c.Writer, http.StatusServiceUnavailable, resp.CodeInternalError, "dependency unavailable", &out, requestID(c), "")
		return
	}
	resp.OK(c.Writer, &out, requestID(c), "")
}
