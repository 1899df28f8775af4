package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

const (
	defaultCategoryLimit = 10
	maxCategoryLimit     = 100
)

// CategoryService 商品分类
type CategoryService interface {
	CreateCategory(ctx context.Context, req *domain.CreateCategoryRequest) (*domain.Category, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context, page, limit int) (*domain.CategoryListResponse, error)
}

type categoryService struct {
	repo   repo.CategoryRepository
	logger *zap.Logger
}

func NewCategoryService(r repo.CategoryRepository, logger *zap.Logger) CategoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &categoryService{repo: r, logger: logger}
}

func (s *categoryService) CreateCategory(ctx context.Context, req *domain.CreateCategoryRequest) (*domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidArgument)
	}
	c := &domain.Category{Name: name, IsExclusive: req.IsExclusive}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.logger.Info("category created", zap.Int64("category_id", c.ID), zap.String("name", c.Name))
	return c, nil
}

func (s *categoryService) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid category id", domain.ErrInvalidArgument)
	}
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: category %d", domain.ErrNotFound, id)
	}
	return c, nil
}

// ListCategories page 从 1 开始，limit 缺省 10
func (s *categoryService) ListCategories(ctx context.Context, page, limit int) (*domain.CategoryListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultCategoryLimit
	}
	if limit > maxCategoryLimit {
		limit = maxCategoryLimit
	}

	list, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if list == nil {
		list = []*domain.Category{}
	}
	return &domain.CategoryListResponse{
		Categories: list,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}
