package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

// 令牌错误均归类为 domain.ErrUnauthenticated
var (
	ErrInvalidToken  = fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	ErrTokenExpired  = fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
	ErrTokenNotReady = fmt.Errorf("%w: token used before valid", domain.ErrUnauthenticated)
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims 定义JWT载荷结构
type Claims struct {
	UserID   int64           `json:"user_id"`
	Username string          `json:"username"`
	Role     domain.UserRole `json:"role"`
	Type     string          `json:"type"` // "access" 或 "refresh"
	jwt.RegisteredClaims
}

// Principal 由令牌还原出的调用者身份
func (c *Claims) Principal() *domain.User {
	return &domain.User{
		ID:       c.UserID,
		Username: c.Username,
		Role:     c.Role,
		IsActive: true,
	}
}

// TokenPair 表示访问令牌和刷新令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // 访问令牌有效秒数
}

// JWTService 身份校验：签发并校验访问/刷新令牌
type JWTService interface {
	GenerateTokenPair(user *domain.User) (*TokenPair, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

type jwtService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewJWTService 创建JWT服务实例，签发者取应用名
func NewJWTService(cfg *config.Config, logger *zap.Logger) JWTService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &jwtService{
		secret:     []byte(cfg.JWT.Secret),
		issuer:     cfg.App.Name,
		accessTTL:  cfg.JWT.AccessTokenTTL,
		refreshTTL: cfg.JWT.RefreshTokenTTL,
		logger:     logger,
	}
}

func (s *jwtService) sign(user *domain.User, tokenType string, ttl time.Duration, now time.Time) (string, error) {
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// GenerateTokenPair 为用户签发一对令牌
func (s *jwtService) GenerateTokenPair(user *domain.User) (*TokenPair, error) {
	if user == nil || user.ID <= 0 {
		return nil, fmt.Errorf("%w: user is required", domain.ErrInvalidArgument)
	}
	now := time.Now()

	access, err := s.sign(user, tokenTypeAccess, s.accessTTL, now)
	if err != nil {
		s.logger.Error("failed to sign access token", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(user, tokenTypeRefresh, s.refreshTTL, now)
	if err != nil {
		s.logger.Error("failed to sign refresh token", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// ValidateAccessToken 校验访问令牌
func (s *jwtService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeAccess)
}

// ValidateRefreshToken 校验刷新令牌
func (s *jwtService) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, tokenTypeRefresh)
}

func (s *jwtService) validate(tokenString, wantType string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotReady
		default:
			s.logger.Debug("token parse failed", zap.Error(err))
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
