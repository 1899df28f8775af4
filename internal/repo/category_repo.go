package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// CategoryRepository 分类数据访问接口
type CategoryRepository interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	List(ctx context.Context, offset, limit int) ([]*domain.Category, int64, error)
}

type categoryRepo struct {
	db DBTX
}

// NewCategoryRepository 创建分类仓储实例
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &categoryRepo{db: db}
}

func (r *categoryRepo) Create(ctx context.Context, c *domain.Category) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (name, is_exclusive) VALUES (?, ?)`,
		c.Name, c.IsExclusive,
	)
	if err != nil {
		return wrapDuplicate("create category", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *categoryRepo) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, is_exclusive, created_at FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.IsExclusive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

func (r *categoryRepo) List(ctx context.Context, offset, limit int) ([]*domain.Category, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count categories: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, is_exclusive, created_at FROM categories ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]*domain.Category, 0, limit)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.IsExclusive, &c.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, &c)
	}
	return categories, total, rows.Err()
}
