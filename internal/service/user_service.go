// Package service 实现业务逻辑层，协调仓储、缓存与外部组件完成购物车与订单流程。
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

// 用户相关错误，均可按 domain 分类映射状态码
var (
	ErrUserNotFound       = fmt.Errorf("%w: user not found", domain.ErrNotFound)
	ErrUserExists         = fmt.Errorf("%w: username or email already exists", domain.ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid username or password", domain.ErrUnauthenticated)
	ErrUserInactive       = fmt.Errorf("%w: user is inactive", domain.ErrForbidden)
)

// GuestCartMerger 登录时合并游客购物车
type GuestCartMerger interface {
	MergeGuestIntoUser(ctx context.Context, sessionID string, userID int64) (*domain.CartView, error)
}

// UserService 注册、登录与令牌刷新
type UserService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	// Login 校验凭证并签发令牌；携带 session_id 时把游客购物车并入用户购物车
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}

type userService struct {
	userRepo repo.UserRepository
	jwt      JWTService
	carts    GuestCartMerger
	logger   *zap.Logger
}

// NewUserService 创建用户服务，carts 为 nil 时登录不合并购物车
func NewUserService(userRepo repo.UserRepository, jwt JWTService, carts GuestCartMerger, logger *zap.Logger) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{userRepo: userRepo, jwt: jwt, carts: carts, logger: logger}
}

// Register 注册普通用户，用户名与邮箱均需唯一
func (s *userService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if existing, err := s.userRepo.GetByUsername(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return nil, ErrUserExists
	}
	if existing, err := s.userRepo.GetByEmail(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if existing != nil {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		Role:         domain.UserRoleUser,
		IsActive:     true,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// authenticate 支持用户名或邮箱登录
func (s *userService) authenticate(ctx context.Context, identifier, password string) (*domain.User, error) {
	var (
		user *domain.User
		err  error
	)
	if strings.Contains(identifier, "@") {
		user, err = s.userRepo.GetByEmail(ctx, strings.ToLower(identifier))
	} else {
		user, err = s.userRepo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

func (s *userService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	user, err := s.authenticate(ctx, strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		s.logger.Warn("login failed", zap.String("username", req.Username), zap.Error(err))
		return nil, err
	}

	pair, err := s.jwt.GenerateTokenPair(user)
	if err != nil {
		return nil, err
	}

	out := &domain.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}

	if req.SessionID != "" && s.carts != nil {
		view, err := s.carts.MergeGuestIntoUser(ctx, req.SessionID, user.ID)
		if err != nil {
			s.logger.Error("merge guest cart on login failed",
				zap.Int64("user_id", user.ID),
				zap.String("session_id", req.SessionID),
				zap.Error(err))
			return nil, fmt.Errorf("merge guest cart: %w", err)
		}
		out.Cart = view
	}

	s.logger.Info("user logged in", zap.Int64("user_id", user.ID))
	return out, nil
}

// Refresh 用刷新令牌换发新令牌对，重新读取用户以拒绝已停用账号
func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidToken
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return s.jwt.GenerateTokenPair(user)
}

func (s *userService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
