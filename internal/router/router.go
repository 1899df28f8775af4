// Package router 提供 HTTP 路由设置和中间件配置功能
package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/api"
	"github.com/MorseWayne/cart_shop/internal/cache"
	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/limiter"
	"github.com/MorseWayne/cart_shop/internal/middleware"
	"github.com/MorseWayne/cart_shop/internal/resp"
)

// Dependencies 包含路由设置所需的所有依赖
type Dependencies struct {
	UserHandler    *api.UserHandler
	ProductHandler *api.ProductHandler
	CartHandler    *api.CartHandler
	OrderHandler   *api.OrderHandler
	HealthHandler  *api.HealthHandler
	JWTService     middleware.TokenValidator

	// 为 nil 时不限流
	Limiter limiter.Limiter

	// 下单幂等键存储
	IdempotencyCache cache.Cache
	IdempotencyTTL   time.Duration
}

// Router 路由器接口
type Router interface {
	Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler
}

// GinRouter Gin路由器实现
type GinRouter struct {
	engine *gin.Engine
	deps   *Dependencies
	logger *zap.Logger
}

// New 创建新的路由器实例
func New() Router {
	return &GinRouter{}
}

// Setup 设置路由。请求 ID、恢复、超时、CORS 与访问日志由外层 net/http 中间件链负责。
func (r *GinRouter) Setup(cfg *config.Config, deps *Dependencies, lg *zap.Logger) http.Handler {
	if cfg.App.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.App.Env == "test" {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	r.engine = gin.New()
	r.deps = deps
	r.logger = lg

	r.engine.NoRoute(func(c *gin.Context) {
		resp.Error(c.Writer, http.StatusNotFound, resp.CodeNotFound, "route not found",
			middleware.RequestIDFromContext(c.Request.Context()), "")
	})

	r.setupRoutes()
	return r.engine
}

// setupRoutes 设置所有路由
func (r *GinRouter) setupRoutes() {
	d := r.deps
	authRequired := adapt(middleware.AuthMiddleware(d.JWTService, r.logger))
	authOptional := adapt(middleware.OptionalAuth(d.JWTService, r.logger))
	adminOnly := adapt(middleware.RequireAdmin(r.logger))

	r.engine.GET("/healthz", d.HealthHandler.Healthz)

	// 认证路由
	auth := r.engine.Group("/auth")
	{
		auth.POST("/register", d.UserHandler.Register)
		auth.POST("/login", d.UserHandler.Login)
		auth.POST("/refresh", d.UserHandler.RefreshToken)
		auth.POST("/logout", d.UserHandler.Logout)
		auth.GET("/profile", authRequired, d.UserHandler.GetProfile)
	}

	// 商品与分类，写操作需要管理员
	products := r.engine.Group("/products")
	{
		products.GET("", d.ProductHandler.ListProducts)
		products.GET("/:id", d.ProductHandler.GetProduct)
		products.POST("", authRequired, adminOnly, d.ProductHandler.CreateProduct)
		products.PUT("/:id", authRequired, adminOnly, d.ProductHandler.UpdateProduct)
	}
	categories := r.engine.Group("/categories")
	{
		categories.GET("", d.ProductHandler.ListCategories)
		categories.GET("/:id", d.ProductHandler.GetCategory)
		categories.POST("", authRequired, adminOnly, d.ProductHandler.CreateCategory)
	}

	// 购物车：登录用户或游客会话
	cart := r.engine.Group("/cart")
	{
		cart.POST("/add", authOptional, r.rateLimit("cart_add"), d.CartHandler.AddItem)
		cart.GET("", authRequired, d.CartHandler.GetUserCart)
		cart.GET("/guest", d.CartHandler.GetGuestCart)
		cart.DELETE("/remove", authOptional, d.CartHandler.RemoveItem)
		cart.PUT("/increase", authOptional, d.CartHandler.Increase)
		cart.PUT("/decrease", authOptional, d.CartHandler.Decrease)
		cart.DELETE("/clear", authOptional, d.CartHandler.Clear)
	}

	// 订单：均需登录，状态更新仅限管理员
	orders := r.engine.Group("/orders")
	orders.Use(authRequired)
	{
		orders.POST("/checkout", r.rateLimit("checkout"), r.idempotency("checkout"), d.OrderHandler.Checkout)
		orders.GET("/order/:orderId", d.OrderHandler.GetOrder)
		orders.GET("/order/:orderId/history", adminOnly, d.OrderHandler.OrderHistory)
		orders.GET("/:userId", d.OrderHandler.ListUserOrders)
		orders.PUT("/cancel/:orderId", d.OrderHandler.CancelOrder)
		orders.PUT("/update/:orderId", adminOnly, d.OrderHandler.UpdateOrderStatus)
	}
}

// rateLimit 未配置限流器时为空操作
func (r *GinRouter) rateLimit(scope string) gin.HandlerFunc {
	if r.deps.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return limiter.RateLimitMiddleware(&limiter.MiddlewareConfig{
		Limiter:      r.deps.Limiter,
		KeyGenerator: limiter.PrincipalKeyGenerator(scope),
		Logger:       r.logger,
	})
}

func (r *GinRouter) idempotency(scope string) gin.HandlerFunc {
	if r.deps.IdempotencyCache == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.Idempotency(middleware.IdempotencyConfig{
		Cache:  r.deps.IdempotencyCache,
		TTL:    r.deps.IdempotencyTTL,
		Scope:  scope,
		Logger: r.logger,
	})
}

// adapt 把 net/http 中间件接入 gin。
// 中间件放行时把它改写过的请求（携带身份等上下文）交回 gin；拦截时中止后续处理器。
func adapt(m func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false
		m(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			passed = true
			c.Request = req
			c.Next()
		})).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}
