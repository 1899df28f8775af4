package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// CartHandler 购物车 API 处理器
type CartHandler struct {
	carts  service.CartService
	logger *zap.Logger
}

// NewCartHandler 创建购物车 API 处理器
func NewCartHandler(carts service.CartService, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{carts: carts, logger: logger}
}

// ownerOf 已登录用户优先，否则使用请求携带的游客会话
func ownerOf(c *gin.Context, sessionID string) (domain.CartOwner, error) {
	var userID int64
	if u := currentUser(c); u != nil {
		userID = u.ID
	}
	return domain.ResolveOwner(userID, strings.TrimSpace(sessionID))
}

// AddItem 加入购物车
// @Summary 加入购物车
// @Description 已登录用户写入用户购物车；匿名请求未携带 session_id 时分配新的游客会话
// @Tags 购物车
// @Accept json
// @Produce json
// @Param request body domain.AddToCartRequest true "加购请求"
// @Success 200 {object} resp.Response[domain.CartView] "成功"
// @Failure 400 {object} resp.Response[any] "请求参数错误"
// @Failure 404 {object} resp.Response[any] "商品不存在"
// @Router /cart/add [post]
func (h *CartHandler) AddItem(c *gin.Context) {
	var req domain.AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid product_id or quantity")
		return
	}

	if currentUser(c) == nil && strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
		h.logger.Info("guest session issued", zap.String("request_id", requestID(c)))
	}

	owner, err := ownerOf(c, req.SessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	view, err := h.carts.AddItem(c.Request.Context(), owner, req.ProductID, req.Qty())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, view, requestID(c), "")
}

// GetUserCart 当前登录用户的购物车，可能为空
func (h *CartHandler) GetUserCart(c *gin.Context) {
	u := currentUser(c)
	if u == nil {
		writeError(c, h.logger, domain.ErrUnauthenticated)
		return
	}
	view, err := h.carts.View(c.Request.Context(), domain.UserOwner(u.ID))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, view, requestID(c), "")
}

// GetGuestCart 按 session_id 查询游客购物车
func (h *CartHandler) GetGuestCart(c *gin.Context) {
	sid := strings.TrimSpace(c.Query("session_id"))
	if sid == "" {
		badRequest(c, "session_id is required")
		return
	}
	view, err := h.carts.View(c.Request.Context(), domain.GuestOwner(sid))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, view, requestID(c), "")
}

// bindItemRequest 读取 JSON 体，查询参数可作为补充（DELETE 请求常不带 body）
func bindItemRequest(c *gin.Context, requireProduct bool) (*domain.CartItemRequest, bool) {
	var req domain.CartItemRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, "invalid request body")
			return nil, false
		}
	}
	if req.ProductID == 0 {
		if v := c.Query("product_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				badRequest(c, "invalid product_id")
				return nil, false
			}
			req.ProductID = id
		}
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("session_id")
	}
	if requireProduct && req.ProductID <= 0 {
		badRequest(c, "invalid product_id")
		return nil, false
	}
	return &req, true
}

// RemoveItem 从购物车移除商品
func (h *CartHandler) RemoveItem(c *gin.Context) {
	req, ok := bindItemRequest(c, true)
	if !ok {
		return
	}
	owner, err := ownerOf(c, req.SessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.carts.RemoveItem(c.Request.Context(), owner, req.ProductID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, view, requestID(c), "")
}

// Increase 数量加一
func (h *CartHandler) Increase(c *gin.Context) { h.adjust(c, 1) }

// Decrease 数量减一，减到零时移除
func (h *CartHandler) Decrease(c *gin.Context) { h.adjust(c, -1) }

func (h *CartHandler) adjust(c *gin.Context, delta int) {
	req, ok := bindItemRequest(c, true)
	if !ok {
		return
	}
	owner, err := ownerOf(c, req.SessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	view, err := h.carts.AdjustQuantity(c.Request.Context(), owner, req.ProductID, delta)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, view, requestID(c), "")
}

// Clear 清空购物车，购物车不存在时同样成功
func (h *CartHandler) Clear(c *gin.Context) {
	req, ok := bindItemRequest(c, false)
	if !ok {
		return
	}
	owner, err := ownerOf(c, req.SessionID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := h.carts.Clear(c.Request.Context(), owner); err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.WriteJSON[any](c.Writer, http.StatusOK, resp.CodeOK, "cart cleared", nil, requestID(c), "")
}
