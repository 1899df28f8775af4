package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

// ProductService 定义商品业务逻辑接口
type ProductService interface {
	CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error)
	ListProducts(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error)
}

type productService struct {
	productRepo  repo.ProductRepository
	categoryRepo repo.CategoryRepository
	logger       *zap.Logger
}

// NewProductService 创建商品服务实例
func NewProductService(productRepo repo.ProductRepository, categoryRepo repo.CategoryRepository, logger *zap.Logger) ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &productService{productRepo: productRepo, categoryRepo: categoryRepo, logger: logger}
}

// checkCategory 商品引用的分类必须存在
func (s *productService) checkCategory(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	c, err := s.categoryRepo.GetByID(ctx, *id)
	if err != nil {
		return fmt.Errorf("load category: %w", err)
	}
	if c == nil {
		return fmt.Errorf("%w: category %d does not exist", domain.ErrInvalidArgument, *id)
	}
	return nil
}

// CreateProduct 创建商品
func (s *productService) CreateProduct(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	product := &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		OldPrice:    req.OldPrice,
		Stock:       req.Stock,
		CategoryID:  req.CategoryID,
		Weight:      req.Weight,
		IsExclusive: req.IsExclusive,
		ImageURL:    req.ImageURL,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.String("name", product.Name))
	return product, nil
}

// GetProduct 获取商品详情
func (s *productService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", domain.ErrInvalidArgument)
	}
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
	}
	return product, nil
}

// UpdateProduct 部分更新，未给出的字段保持不变
func (s *productService) UpdateProduct(ctx context.Context, id int64, req *domain.UpdateProductRequest) (*domain.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(product); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.logger.Info("product updated", zap.Int64("product_id", id))
	return product, nil
}

// ListProducts 分页查询，可按分类过滤
func (s *productService) ListProducts(ctx context.Context, req *domain.ProductListRequest) (*domain.ProductListResponse, error) {
	req.Normalize()
	products, total, err := s.productRepo.List(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return &domain.ProductListResponse{
		Products: products,
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
	}, nil
}
