package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/cache"
	"github.com/MorseWayne/cart_shop/internal/domain"
)

// CachedProductRepository 带缓存的商品仓储，按ID缓存单个商品。
// 缓存失败只记录日志，不影响读写结果。
type CachedProductRepository struct {
	repo   ProductRepository
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedProductRepository 创建带缓存的商品仓储
func NewCachedProductRepository(repo ProductRepository, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProductRepository{
		repo:   repo,
		cache:  c,
		ttl:    ttl,
		logger: logger,
	}
}

func productCacheKey(id int64) string {
	return fmt.Sprintf("product:id:%d", id)
}

func (r *CachedProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.repo.Create(ctx, product)
}

// GetByID 先查缓存，未命中时回源并回填
func (r *CachedProductRepository) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	key := productCacheKey(id)

	var product domain.Product
	if err := r.cache.Get(ctx, key, &product); err == nil {
		return &product, nil
	}

	result, err := r.repo.GetByID(ctx, id)
	if err != nil || result == nil {
		return result, err
	}

	if err := r.cache.Set(ctx, key, result, r.ttl); err != nil {
		r.logger.Warn("failed to cache product", zap.Int64("product_id", id), zap.Error(err))
	}
	return result, nil
}

// GetByIDs 批量查询逐个走缓存，未命中部分一次回源
func (r *CachedProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	found := make([]*domain.Product, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		var p domain.Product
		if err := r.cache.Get(ctx, productCacheKey(id), &p); err == nil {
			found = append(found, &p)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return found, nil
	}

	loaded, err := r.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		if err := r.cache.Set(ctx, productCacheKey(p.ID), p, r.ttl); err != nil {
			r.logger.Warn("failed to cache product", zap.Int64("product_id", p.ID), zap.Error(err))
		}
	}
	return append(found, loaded...), nil
}

func (r *CachedProductRepository) Update(ctx context.Context, product *domain.Product) error {
	if err := r.repo.Update(ctx, product); err != nil {
		return err
	}
	r.Evict(ctx, product.ID)
	return nil
}

// List 列表不缓存
func (r *CachedProductRepository) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	return r.repo.List(ctx, req)
}

func (r *CachedProductRepository) DecrementStock(ctx context.Context, id int64, qty int) error {
	if err := r.repo.DecrementStock(ctx, id, qty); err != nil {
		return err
	}
	r.Evict(ctx, id)
	return nil
}

// Evict 删除指定商品的缓存，事务提交后由结算流程调用
func (r *CachedProductRepository) Evict(ctx context.Context, ids ...int64) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		r.logger.Warn("failed to evict product cache", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}
