// Package config 负责加载应用配置。
// 配置来源优先级：环境变量 > .env 文件 > 默认值。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用全部配置
type Config struct {
	App         AppConfig
	Store       StoreConfig
	Database    DatabaseConfig
	Migrations  MigrationsConfig
	Redis       RedisConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	MQ          MQConfig
	Mongo       MongoConfig
	Idempotency IdempotencyConfig
}

// AppConfig 应用基础配置
type AppConfig struct {
	Env             string // dev, test, prod
	Name            string
	Port            int
	Version         string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig 存储驱动
type StoreConfig struct {
	Driver string // mysql, memory
}

// DatabaseConfig MySQL 连接配置
type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	MaxOpenConns int
	MaxIdleConns int
}

// MigrationsConfig 数据库迁移配置
type MigrationsConfig struct {
	Dir string
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled bool
	Type    string // redis, memory
	TTL     time.Duration
}

// RateLimitConfig 写接口限流配置（依赖 Redis）
type RateLimitConfig struct {
	Enabled bool
	Rate    int64
	Burst   int64
	Window  time.Duration
}

// JWTConfig 令牌配置
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// LogConfig 日志配置
type LogConfig struct {
	Level    string
	Encoding string // json, console
}

// MQConfig RabbitMQ 配置，URL 为空表示不启用
type MQConfig struct {
	URL      string
	Exchange string
}

// MongoConfig 订单审计库配置，URI 为空表示不启用
type MongoConfig struct {
	URI      string
	Database string
}

// IdempotencyConfig 下单幂等键配置
type IdempotencyConfig struct {
	TTL time.Duration
}

// Load 加载配置。.env 文件不存在时直接使用环境变量。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Env:             getString("APP_ENV", "dev"),
			Name:            getString("APP_NAME", "cart_shop"),
			Port:            getInt("APP_PORT", 8080),
			Version:         getString("APP_VERSION", "0.1.0"),
			RequestTimeout:  getDuration("APP_REQUEST_TIMEOUT", 5*time.Second),
			ShutdownTimeout: getDuration("APP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Driver: getString("STORE_DRIVER", "mysql"),
		},
		Database: DatabaseConfig{
			Host:         getString("DB_HOST", "127.0.0.1"),
			Port:         getInt("DB_PORT", 3306),
			User:         getString("DB_USER", "root"),
			Password:     getString("DB_PASSWORD", ""),
			DBName:       getString("DB_NAME", "cart_shop"),
			MaxOpenConns: getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getInt("DB_MAX_IDLE_CONNS", 10),
		},
		Migrations: MigrationsConfig{
			Dir: getString("MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			Host:     getString("REDIS_HOST", "127.0.0.1"),
			Port:     getInt("REDIS_PORT", 6379),
			Password: getString("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: getBool("CACHE_ENABLED", false),
			Type:    getString("CACHE_TYPE", "memory"),
			TTL:     getDuration("CACHE_TTL", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBool("RATE_LIMIT_ENABLED", false),
			Rate:    int64(getInt("RATE_LIMIT_RATE", 20)),
			Burst:   int64(getInt("RATE_LIMIT_BURST", 40)),
			Window:  getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		JWT: JWTConfig{
			Secret:          getString("JWT_SECRET", ""),
			AccessTokenTTL:  getDuration("JWT_ACCESS_TOKEN_TTL", time.Hour),
			RefreshTokenTTL: getDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE"}),
			AllowedHeaders: getList("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID", "Idempotency-Key"}),
		},
		Log: LogConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		MQ: MQConfig{
			URL:      getString("MQ_URL", ""),
			Exchange: getString("MQ_EXCHANGE", "shop.orders"),
		},
		Mongo: MongoConfig{
			URI:      getString("MONGO_URI", ""),
			Database: getString("MONGO_DATABASE", "cart_shop"),
		},
		Idempotency: IdempotencyConfig{
			TTL: getDuration("IDEMPOTENCY_TTL", 10*time.Minute),
		},
	}

	if cfg.JWT.Secret == "" && cfg.App.Env == "dev" {
		cfg.JWT.Secret = "dev-secret-change-me"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Store.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid APP_PORT %d", c.App.Port)
	}
	if c.App.RequestTimeout <= 0 || c.App.ShutdownTimeout <= 0 {
		return errors.New("request and shutdown timeouts must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 || c.RateLimit.Window < time.Second) {
		return errors.New("invalid rate limit settings")
	}
	return nil
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getDuration 支持 "5s" 形式，也支持纯数字（按秒）
func getDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func getList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
