package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

const bearerPrefix = "Bearer "

// TokenValidator 认证中间件只依赖访问令牌校验
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*service.Claims, error)
}

// errMissingToken 未携带或格式错误的 Authorization 头
var errMissingToken = errors.New("authorization bearer token required")

// bearerToken 提取 Bearer 令牌
func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(h, bearerPrefix) {
		return "", errMissingToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix))
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}

// authMessage 令牌错误对应的提示
func authMessage(err error) string {
	switch {
	case errors.Is(err, errMissingToken):
		return "authorization header required"
	case errors.Is(err, service.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, service.ErrTokenNotReady):
		return "token not ready"
	default:
		return "invalid token"
	}
}

// AuthMiddleware JWT认证中间件
// 验证 Bearer 令牌，并将调用者身份注入到请求上下文中
func AuthMiddleware(jwt TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())

			token, err := bearerToken(r)
			if err == nil {
				var claims *service.Claims
				if claims, err = jwt.ValidateAccessToken(token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.Principal())))
					return
				}
			}

			logger.Warn("authentication failed", zap.String("request_id", reqID), zap.Error(err))
			resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, authMessage(err), reqID, "")
		})
	}
}

// OptionalAuth 可选认证中间件
// 令牌有效时注入身份；未携带令牌时按匿名继续。
// 携带了无效令牌则拒绝，避免已登录用户被静默降级为访客。
func OptionalAuth(jwt TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			AuthMiddleware(jwt, logger)(next).ServeHTTP(w, r)
		})
	}
}

// RequireRole 角色授权中间件，需位于 AuthMiddleware 之后
func RequireRole(requiredRole domain.UserRole, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := RequestIDFromContext(r.Context())
			user := UserFromContext(r.Context())

			if user == nil {
				logger.Error("user not found in context", zap.String("request_id", reqID))
				resp.Error(w, http.StatusUnauthorized, resp.CodeUnauthorized, "authentication required", reqID, "")
				return
			}

			if user.Role != requiredRole {
				logger.Warn("insufficient permissions",
					zap.String("request_id", reqID),
					zap.Int64("user_id", user.ID),
					zap.String("user_role", string(user.Role)),
					zap.String("required_role", string(requiredRole)),
				)
				resp.Error(w, http.StatusForbidden, resp.CodeForbidden, "insufficient permissions", reqID, "")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin 管理员权限中间件
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(domain.UserRoleAdmin, logger)
}
