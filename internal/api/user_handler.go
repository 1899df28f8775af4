package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// UserHandler 注册、登录与令牌相关的HTTP处理器
type UserHandler struct {
	userService service.UserService
	logger      *zap.Logger
}

// NewUserHandler 创建用户处理器实例
func NewUserHandler(userService service.UserService, logger *zap.Logger) *UserHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserHandler{userService: userService, logger: logger}
}

// Register 处理用户注册请求
// POST /auth/register
func (h *UserHandler) Register(c *gin.Context) {
	var req domain.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("validation failed", zap.String("request_id", requestID(c)), zap.Error(err))
		badRequest(c, "username (3-32), valid email and password (6-72) are required")
		return
	}

	user, err := h.userService.Register(c.Request.Context(), &req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.Created(c.Writer, "user registered", user, requestID(c), "")
}

// Login 处理用户登录请求
// POST /auth/login
// 携带 session_id 时，登录成功后游客购物车并入用户购物车，合并结果随响应返回
func (h *UserHandler) Login(c *gin.Context) {
	var req domain.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}

	out, err := h.userService.Login(c.Request.Context(), &req)
	if err != nil {
		// 不区分用户不存在与密码错误
		if errors.Is(err, service.ErrInvalidCredentials) {
			resp.Error(c.Writer, http.StatusUnauthorized, resp.CodeUnauthorized, "invalid username or password", requestID(c), "")
			return
		}
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, out, requestID(c), "")
}

// RefreshToken 刷新访问令牌
// POST /auth/refresh
func (h *UserHandler) RefreshToken(c *gin.Context) {
	var req domain.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	pair, err := h.userService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, pair, requestID(c), "")
}

// Logout 令牌无状态，由客户端丢弃
// POST /auth/logout
func (h *UserHandler) Logout(c *gin.Context) {
	resp.WriteJSON[any](c.Writer, http.StatusOK, resp.CodeOK, "logged out", nil, requestID(c), "")
}

// GetProfile 获取当前用户信息
// GET /auth/profile
// 需要认证：使用AuthMiddleware保护
func (h *UserHandler) GetProfile(c *gin.Context) {
	u := currentUser(c)
	if u == nil {
		writeError(c, h.logger, domain.ErrUnauthenticated)
		return
	}

	// 从存储读取最新的用户信息
	user, err := h.userService.GetUserByID(c.Request.Context(), u.ID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	resp.OK(c.Writer, user, requestID(c), "")
}
