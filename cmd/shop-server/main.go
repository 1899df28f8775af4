package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/api"
	"github.com/MorseWayne/cart_shop/internal/audit"
	"github.com/MorseWayne/cart_shop/internal/cache"
	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/database"
	"github.com/MorseWayne/cart_shop/internal/limiter"
	"github.com/MorseWayne/cart_shop/internal/logger"
	mw "github.com/MorseWayne/cart_shop/internal/middleware"
	"github.com/MorseWayne/cart_shop/internal/mq"
	"github.com/MorseWayne/cart_shop/internal/repo"
	"github.com/MorseWayne/cart_shop/internal/repo/memstore"
	"github.com/MorseWayne/cart_shop/internal/router"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// storage 存储层：工作单元与各仓储
type storage struct {
	store      repo.Store
	repos      repo.Repositories
	users      repo.UserRepository
	categories repo.CategoryRepository
	pinger     api.Pinger
}

// application 组装完成的应用，closers 按逆序释放
type application struct {
	deps    *router.Dependencies
	closers []func(ctx context.Context) error
}

func (a *application) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close 释放全部外部连接
func (a *application) Close(ctx context.Context, lg *zap.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			lg.Sugar().Errorw("failed to release resource", "err", err)
		}
	}
}

// initConfigAndLogger 初始化配置和日志器
func initConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, cfg.App.Name, cfg.App.Version)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, lg, nil
}

// initStorage 按 STORE_DRIVER 选择 MySQL 或内存存储。
// MySQL 在 HTTP 服务启动前执行迁移。
func initStorage(cfg *config.Config, app *application, lg *zap.Logger) (*storage, error) {
	if cfg.Store.Driver == "memory" {
		lg.Sugar().Warnw("using in-memory store, data is lost on restart")
		st := memstore.New()
		return &storage{
			store:      st,
			repos:      st.Repos(),
			users:      st.Users(),
			categories: st.Categories(),
		}, nil
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.onClose(func(context.Context) error { return db.Close() })

	lg.Sugar().Infow("using migrations directory", "path", cfg.Migrations.Dir)
	if err := db.RunMigrations(cfg.Migrations.Dir); err != nil {
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return &storage{
		store:      repo.NewStore(db),
		repos:      repo.NewRepositories(db.DB),
		users:      repo.NewUserRepository(db.DB),
		categories: repo.NewCategoryRepository(db.DB),
		pinger:     api.PingFunc(db.PingContext),
	}, nil
}

// initCache 初始化缓存实例。Redis 不可用时退回内存缓存，此时 redisCache 为 nil。
func initCache(cfg *config.Config, lg *zap.Logger) (c cache.Cache, redisCache *cache.RedisCache) {
	if !cfg.Cache.Enabled {
		lg.Sugar().Infow("cache disabled")
		return cache.NewNullCache(), nil
	}

	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to Redis, falling back to memory cache", "error", err)
			lg.Sugar().Infow("cache enabled", "type", "memory (fallback)", "ttl", cfg.Cache.TTL)
			return cache.NewMemoryCache(), nil
		}
		lg.Sugar().Infow("cache enabled", "type", "redis", "addr", cfg.Redis.Addr(), "ttl", cfg.Cache.TTL)
		return rc, rc
	case "memory":
		lg.Sugar().Infow("cache enabled", "type", "memory", "ttl", cfg.Cache.TTL)
	default:
		lg.Sugar().Warnw("unknown cache type, using memory cache", "type", cfg.Cache.Type)
	}
	return cache.NewMemoryCache(), nil
}

// initLimiter 令牌桶需要 Redis 共享状态；没有 Redis 时不限流
func initLimiter(cfg *config.Config, redisCache *cache.RedisCache, lg *zap.Logger) limiter.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	if redisCache == nil {
		lg.Sugar().Warnw("rate limiting requires redis, disabled")
		return nil
	}
	l, err := limiter.NewTokenBucketLimiter(redisCache.Client(), &limiter.Config{
		Rate:   cfg.RateLimit.Rate,
		Burst:  cfg.RateLimit.Burst,
		Window: cfg.RateLimit.Window,
	})
	if err != nil {
		lg.Sugar().Warnw("invalid rate limit config, disabled", "err", err)
		return nil
	}
	lg.Sugar().Infow("rate limiting enabled", "rate", cfg.RateLimit.Rate, "burst", cfg.RateLimit.Burst, "window", cfg.RateLimit.Window)
	return l
}

// initEventPublishers 订单事件下游：RabbitMQ 与 MongoDB 审计，均为可选。
// 下游连接失败只告警，不阻止服务启动。
func initEventPublishers(ctx context.Context, cfg *config.Config, app *application, lg *zap.Logger) (service.OrderEventPublisher, *audit.Recorder) {
	var (
		fanout   service.FanoutPublisher
		recorder *audit.Recorder
	)

	if cfg.MQ.URL != "" {
		mqCfg := mq.FromAppConfig(cfg.MQ)
		if err := mqCfg.Validate(); err != nil {
			lg.Sugar().Warnw("invalid mq config, order events disabled", "err", err)
		} else {
			cm := mq.NewConnectionManager(mqCfg, lg)
			if err := cm.Connect(ctx); err != nil {
				lg.Sugar().Warnw("failed to connect to RabbitMQ, order events disabled", "err", err)
			} else {
				producer := mq.NewProducer(cm, mqCfg, lg)
				publisher := mq.NewOrderEventPublisher(producer, mqCfg.Exchange, lg)
				if err := publisher.DeclareTopology(); err != nil {
					lg.Sugar().Warnw("failed to declare order exchange", "err", err)
				}
				cm.OnReconnected(func() {
					if err := publisher.DeclareTopology(); err != nil {
						lg.Sugar().Warnw("failed to redeclare order exchange", "err", err)
					}
				})
				app.onClose(func(context.Context) error { return cm.Close() })
				app.onClose(func(context.Context) error { return producer.Close() })
				fanout = append(fanout, publisher)
			}
		}
	}

	if cfg.Mongo.URI != "" {
		rec, err := audit.NewRecorder(ctx, cfg.Mongo, lg)
		if err != nil {
			lg.Sugar().Warnw("failed to connect to MongoDB, order audit disabled", "err", err)
		} else {
			app.onClose(rec.Close)
			fanout = append(fanout, rec)
			recorder = rec
		}
	}

	if len(fanout) == 0 {
		return service.NopPublisher{}, recorder
	}
	return fanout, recorder
}

// newApplication 初始化依赖注入链：存储 -> 缓存 -> 服务 -> API处理器
func newApplication(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*application, error) {
	app := &application{}

	st, err := initStorage(cfg, app, lg)
	if err != nil {
		app.Close(ctx, lg)
		return nil, err
	}

	cacheInstance, redisCache := initCache(cfg, lg)
	app.onClose(func(context.Context) error { return cacheInstance.Close() })

	// 商品读缓存；事务内的仓储不经过缓存，提交后按商品ID失效
	var evicter service.StockCacheEvicter
	repos := st.repos
	if cfg.Cache.Enabled {
		cached := repo.NewCachedProductRepository(st.repos.Products, cacheInstance, cfg.Cache.TTL, lg)
		repos.Products = cached
		evicter = cached
	}

	publisher, recorder := initEventPublishers(ctx, cfg, app, lg)

	jwtService := service.NewJWTService(cfg, lg)
	cartService := service.NewCartService(st.store, repos, lg)
	orderService := service.NewOrderService(st.store, repos, publisher, evicter, lg)
	userService := service.NewUserService(st.users, jwtService, cartService, lg)
	productService := service.NewProductService(repos.Products, st.categories, lg)
	categoryService := service.NewCategoryService(st.categories, lg)

	health := map[string]api.Pinger{"store": st.pinger}
	if redisCache != nil {
		health["cache"] = redisCache
	}
	orderHandler := api.NewOrderHandler(orderService, lg)
	if recorder != nil {
		health["audit"] = recorder
		orderHandler.WithHistory(recorder)
	}

	app.deps = &router.Dependencies{
		UserHandler:      api.NewUserHandler(userService, lg),
		ProductHandler:   api.NewProductHandler(productService, categoryService, lg),
		CartHandler:      api.NewCartHandler(cartService, lg),
		OrderHandler:     orderHandler,
		HealthHandler:    api.NewHealthHandler(cfg.App.Version, health, lg),
		JWTService:       jwtService,
		Limiter:          initLimiter(cfg, redisCache, lg),
		IdempotencyCache: cacheInstance,
		IdempotencyTTL:   cfg.Idempotency.TTL,
	}
	if !cfg.Cache.Enabled {
		// NullCache 无法记录幂等键，使用进程内缓存
		app.deps.IdempotencyCache = cache.NewMemoryCache()
	}
	return app, nil
}

// buildHandler 设置路由和中间件
func buildHandler(cfg *config.Config, deps *router.Dependencies, lg *zap.Logger) http.Handler {
	handler := router.New().Setup(cfg, deps, lg)

	// 构建中间件链：请求进入时执行顺序为 access log → CORS → timeout → recovery → request ID
	// 响应返回时执行顺序为 request ID → recovery → timeout → CORS → access log
	handler = mw.RequestID(handler)
	handler = mw.Recovery(lg)(handler)
	handler = mw.Timeout(cfg.App.RequestTimeout)(handler)
	handler = mw.CORS(mw.CORSConfig{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: cfg.CORS.AllowedMethods,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
	})(handler)
	handler = mw.AccessLog(lg)(handler)

	return handler
}

// startServer 启动服务器并处理优雅关闭
func startServer(cfg *config.Config, handler http.Handler, lg *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.App.Port)
	lg.Sugar().Infow("server starting", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Sugar().Errorw("server error", "err", err)
		}
	case <-quit:
		lg.Sugar().Infow("shutdown signal received")
	}

	// 优雅关闭
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Sugar().Errorw("server shutdown error", "err", err)
	}
	lg.Sugar().Infow("server exited")
}

// main 为应用入口，协调各个组件的初始化和启动
func main() {
	// 1) 加载配置和初始化日志
	cfg, lg, err := initConfigAndLogger()
	if err != nil {
		log.Fatalf("failed to initialize config and logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	// 2) 初始化存储、缓存、事件下游与处理器
	app, err := newApplication(context.Background(), cfg, lg)
	if err != nil {
		lg.Sugar().Fatalw("failed to initialize application", "err", err)
	}

	// 3) 启动 HTTP 服务器，退出后释放连接
	startServer(cfg, buildHandler(cfg, app.deps, lg), lg)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	app.Close(ctx, lg)
}
