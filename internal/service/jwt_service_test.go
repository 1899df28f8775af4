package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

func createTestJWTService() JWTService {
	cfg := &config.Config{}
	cfg.JWT.Secret = "test-secret-key"
	cfg.JWT.AccessTokenTTL = 15 * time.Minute
	cfg.JWT.RefreshTokenTTL = 24 * time.Hour
	cfg.App.Name = "test-service"

	return NewJWTService(cfg, zap.NewNop())
}

func createTestUser() *domain.User {
	return &domain.User{
		ID:       123,
		Username: "testuser",
		Role:     domain.UserRoleUser,
		IsActive: true,
	}
}

func TestJWTService_GenerateTokenPair(t *testing.T) {
	jwtService := createTestJWTService()
	user := createTestUser()

	tokenPair, err := jwtService.GenerateTokenPair(user)
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if tokenPair.AccessToken == "" || tokenPair.RefreshToken == "" {
		t.Fatal("tokens should not be empty")
	}
	if tokenPair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("ExpiresIn = %d", tokenPair.ExpiresIn)
	}

	claims, err := jwtService.ValidateAccessToken(tokenPair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Username != user.Username || claims.Role != user.Role {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Type != "access" {
		t.Errorf("Expected Type 'access', got %s", claims.Type)
	}

	refreshClaims, err := jwtService.ValidateRefreshToken(tokenPair.RefreshToken)
	if err != nil {
		t.Fatalf("ValidateRefreshToken failed: %v", err)
	}
	if refreshClaims.Type != "refresh" {
		t.Errorf("Expected Type 'refresh', got %s", refreshClaims.Type)
	}

	p := claims.Principal()
	if p.ID != user.ID || !p.IsActive {
		t.Errorf("Principal() = %+v", p)
	}
}

func TestJWTService_GenerateTokenPairRequiresUser(t *testing.T) {
	jwtService := createTestJWTService()
	if _, err := jwtService.GenerateTokenPair(nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestJWTService_TokenTypeMismatch(t *testing.T) {
	jwtService := createTestJWTService()
	pair, err := jwtService.GenerateTokenPair(createTestUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	if _, err := jwtService.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access token: %v", err)
	}
	if _, err := jwtService.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("access token accepted as refresh token: %v", err)
	}
}

func TestJWTService_InvalidTokens(t *testing.T) {
	jwtService := createTestJWTService()

	other := &config.Config{}
	other.JWT.Secret = "another-secret"
	other.JWT.AccessTokenTTL = time.Minute
	other.JWT.RefreshTokenTTL = time.Hour
	other.App.Name = "test-service"
	foreign, err := NewJWTService(other, nil).GenerateTokenPair(createTestUser())
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong secret", token: foreign.AccessToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := jwtService.ValidateAccessToken(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
			if !errors.Is(err, domain.ErrUnauthenticated) {
				t.Errorf("token errors must classify as unauthenticated")
			}
		})
	}
}

func TestJWTService_ExpiredToken(t *testing.T) {
	claims := &Claims{
		UserID: 1,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "test-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = createTestJWTService().ValidateAccessToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestJWTService_WrongIssuer(t *testing.T) {
	claims := &Claims{
		UserID: 1,
		Type:   "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := createTestJWTService().ValidateAccessToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}
