package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/resp"
	"github.com/MorseWayne/cart_shop/internal/service"
)

// MockJWTService 是用于测试的令牌校验模拟实现
type MockJWTService struct {
	validTokens   map[string]*service.Claims
	expiredTokens map[string]bool
}

func NewMockJWTService() *MockJWTService {
	return &MockJWTService{
		validTokens:   make(map[string]*service.Claims),
		expiredTokens: make(map[string]bool),
	}
}

// IssueAccessToken 为用户登记一个访问令牌
func (m *MockJWTService) IssueAccessToken(user *domain.User) string {
	token := "mock_access_token_" + user.Username
	m.validTokens[token] = &service.Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Type:     "access",
	}
	return token
}

func (m *MockJWTService) ValidateAccessToken(tokenString string) (*service.Claims, error) {
	if m.expiredTokens[tokenString] {
		return nil, service.ErrTokenExpired
	}
	claims, exists := m.validTokens[tokenString]
	if !exists || claims.Type != "access" {
		return nil, service.ErrInvalidToken
	}
	return claims, nil
}

func (m *MockJWTService) AddExpiredToken(token string) {
	m.expiredTokens[token] = true
}

func createTestHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user != nil {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("authenticated"))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("anonymous"))
		}
	}
}

func newTestRequest(authHeader string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req.WithContext(withRequestID(req.Context(), "test-id"))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) resp.Response[any] {
	t.Helper()
	var body resp.Response[any]
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body %q: %v", rr.Body.String(), err)
	}
	return body
}

var testUser = &domain.User{ID: 1, Username: "testuser", Role: domain.UserRoleUser}

func TestAuthMiddleware_Success(t *testing.T) {
	mockJWT := NewMockJWTService()
	token := mockJWT.IssueAccessToken(testUser)

	handler := AuthMiddleware(mockJWT, zap.NewNop())(createTestHandler())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newTestRequest("Bearer "+token))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "authenticated" {
		t.Errorf("Expected 'authenticated', got %s", rr.Body.String())
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	mockJWT := NewMockJWTService()
	expired := mockJWT.IssueAccessToken(&domain.User{ID: 2, Username: "old"})
	mockJWT.AddExpiredToken(expired)

	testCases := []struct {
		name    string
		header  string
		message string
	}{
		{"missing header", "", "authorization header required"},
		{"missing Bearer prefix", "invalid_token", "authorization header required"},
		{"empty token", "Bearer ", "authorization header required"},
		{"unknown token", "Bearer invalid_token", "invalid token"},
		{"expired token", "Bearer " + expired, "token expired"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthMiddleware(mockJWT, zap.NewNop())(createTestHandler())
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, newTestRequest(tc.header))

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("Expected status 401, got %d", rr.Code)
			}
			body := decodeEnvelope(t, rr)
			if body.Success || body.Code != resp.CodeUnauthorized || body.Message != tc.message {
				t.Errorf("unexpected body %+v", body)
			}
			if body.RequestID != "test-id" {
				t.Errorf("request id not echoed: %q", body.RequestID)
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	admin := &domain.User{ID: 9, Username: "root", Role: domain.UserRoleAdmin}

	testCases := []struct {
		name       string
		user       *domain.User
		wantStatus int
	}{
		{"admin passes", admin, http.StatusOK},
		{"user forbidden", testUser, http.StatusForbidden},
		{"no user", nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			handler := RequireAdmin(zap.NewNop())(createTestHandler())
			req := newTestRequest("")
			if tc.user != nil {
				req = req.WithContext(WithUser(req.Context(), tc.user))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantStatus == http.StatusForbidden {
				if body := decodeEnvelope(t, rr); body.Code != resp.CodeForbidden {
					t.Errorf("Expected code %d, got %d", resp.CodeForbidden, body.Code)
				}
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	mockJWT := NewMockJWTService()
	token := mockJWT.IssueAccessToken(testUser)
	handler := OptionalAuth(mockJWT, zap.NewNop())(createTestHandler())

	testCases := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "authenticated"},
		{"no token", "", http.StatusOK, "anonymous"},
		{"invalid token", "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, newTestRequest(tc.header))
			if rr.Code != tc.wantStatus {
				t.Errorf("Expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantBody != "" && rr.Body.String() != tc.wantBody {
				t.Errorf("Expected %q, got %q", tc.wantBody, rr.Body.String())
			}
		})
	}
}

func TestUserFromContext(t *testing.T) {
	if UserFromContext(context.Background()) != nil {
		t.Error("Expected nil user for empty context")
	}
	ctx := WithUser(context.Background(), testUser)
	if got := UserFromContext(ctx); got == nil || got.ID != testUser.ID {
		t.Errorf("Expected user %d, got %+v", testUser.ID, got)
	}
}
