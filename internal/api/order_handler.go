package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/audit"
	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// OrderHandler 订单 API 处理器。所有路由都要求登录，
// 普通用户只能操作自己的订单，管理员不受限制。
type OrderHandler struct {
	orders  service.OrderService
	history OrderHistory
	logger  *zap.Logger
}

// OrderHistory 订单审计记录查询，由 audit.Recorder 实现
type OrderHistory interface {
	History(ctx context.Context, orderID int64, limit int64) ([]*audit.Entry, error)
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// NewOrderHandler 创建订单 API 处理器
func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderHandler{orders: orders, logger: logger}
}

// WithHistory 启用订单审计查询；未启用时该接口返回 503
func (h *OrderHandler) WithHistory(history OrderHistory) *OrderHandler {
	h.history = history
	return h
}

// authorize 调用者必须是 userID 本人或管理员
func authorize(c *gin.Context, userID int64) error {
	u := currentUser(c)
	if u == nil {
		return domain.ErrUnauthenticated
	}
	if u.ID != userID && !u.IsAdmin() {
		return fmt.Errorf("%w: user %d cannot access orders of user %d", domain.ErrForbidden, u.ID, userID)
	}
	return nil
}

// Checkout 结算
// @Summary 结算购物车
// @Description 在单个事务内扣减库存并生成订单；可携带 Idempotency-Key 防止重复提交
// @Tags 订单
// @Accept json
// @Produce json
// @Param request body domain.CheckoutRequest false "结算请求，缺省为当前用户"
// @Success 201 {object} resp.Response[domain.Order] "成功"
// @Failure 400 {object} resp.Response[any] "购物车为空或库存不足"
// @Failure 403 {object} resp.Response[any] "无权为其他用户下单"
// @Failure 409 {object} resp.Response[any] "重复提交"
// @Router /orders/checkout [post]
// @Security Bearer
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}

	u := currentUser(c)
	if u == nil {
		writeError(c, h.logger, domain.ErrUnauthenticated)
		return
	}
	userID := u.ID
	if req.UserID != 0 {
		userID = req.UserID
	}
	if err := authorize(c, userID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	order, err := h.orders.Checkout(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.Created(c.Writer, "order placed", order, requestID(c), "")
}

// ListUserOrders 某用户的订单，新订单在前
func (h *OrderHandler) ListUserOrders(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}
	if err := authorize(c, userID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, &orders, requestID(c), "")
}

// loadOwnedOrder 读取订单并校验归属
func (h *OrderHandler) loadOwnedOrder(c *gin.Context) (*domain.Order, bool) {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return nil, false
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err == nil {
		err = authorize(c, order.UserID)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return nil, false
	}
	return order, true
}

// GetOrder 单个订单
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	resp.OK(c.Writer, order, requestID(c), "")
}

// CancelOrder 取消待处理订单，不回补库存
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	order, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	cancelled, err := h.orders.CancelOrder(c.Request.Context(), order.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, cancelled, requestID(c), "")
}

// UpdateOrderStatus 管理员更新订单状态
func (h *OrderHandler) UpdateOrderStatus(c *gin.Context) {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}
	var req domain.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	order, err := h.orders.UpdateOrderStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	var adminID int64
	if u := currentUser(c); u != nil {
		adminID = u.ID
	}
	h.logger.Info("order status updated by admin",
		zap.Int64("order_id", orderID),
		zap.Int64("admin_id", adminID),
		zap.String("status", string(order.Status)))
	resp.OK(c.Writer, order, requestID(c), "")
}

// OrderHistory 管理员查看订单的审计记录，新记录在前
// @Summary 订单审计记录
// @Tags 订单
// @Produce json
// @Param orderId path int true "订单ID"
// @Param limit query int false "条数，默认 50，最大 200"
// @Success 200 {object} resp.Response[[]audit.Entry] "成功"
// @Failure 404 {object} resp.Response[any] "订单不存在"
// @Failure 503 {object} resp.Response[any] "未启用审计"
// @Router /orders/order/{orderId}/history [get]
// @Security Bearer
func (h *OrderHandler) OrderHistory(c *gin.Context) {
	orderID, ok := parseID(c, "orderId")
	if !ok {
		return
	}
	if h.history == nil {
		resp.Error(c.Writer, http.StatusServiceUnavailable, resp.CodeInternalError, "order audit is disabled", requestID(c), "")
		return
	}
	if _, err := h.orders.GetOrder(c.Request.Context(), orderID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	limit := queryInt(c, "limit", defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}
	entries, err := h.history.History(c.Request.Context(), orderID, int64(limit))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	resp.OK(c.Writer, &entries, requestID(c), "")
}
