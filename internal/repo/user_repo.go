package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// UserRepository 定义用户数据访问接口
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// userRepo 是 UserRepository 接口的数据库实现
type userRepo struct {
	db DBTX
}

// NewUserRepository 创建用户仓储实例
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

// Create 创建新用户，密码哈希由服务层处理
func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, is_active)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.IsActive,
	)
	if err != nil {
		return wrapDuplicate("create user", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	user.ID = id
	return nil
}

func (r *userRepo) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	user := &domain.User{}
	query := `
		SELECT id, username, email, password_hash, role, is_active, created_at, updated_at
		FROM users WHERE ` + where

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // 用户不存在
		}
		return nil, err
	}
	return user, nil
}

// GetByID 根据ID查询用户
func (r *userRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := r.getOne(ctx, "id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByUsername 根据用户名查询用户
func (r *userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u, err := r.getOne(ctx, "username = ?", username)
	if err != nil {
		return nil, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

// GetByEmail 根据邮箱查询用户
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := r.getOne(ctx, "email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}
