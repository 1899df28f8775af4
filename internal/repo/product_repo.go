package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// ProductRepository 定义商品数据访问接口
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error)
	Update(ctx context.Context, product *domain.Product) error
	List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error)

	// DecrementStock 仅当库存足够时原子扣减。
	// 商品不存在返回 domain.ErrNotFound，库存不足返回 *domain.InsufficientStockError。
	DecrementStock(ctx context.Context, id int64, qty int) error
}

// productRepo 实现ProductRepository接口
type productRepo struct {
	db DBTX
}

// NewProductRepository 创建商品仓储实例
func NewProductRepository(db DBTX) ProductRepository {
	return &productRepo{db: db}
}

const productColumns = `id, name, COALESCE(description, ''), price, old_price, stock, category_id, weight, is_exclusive, image_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p          domain.Product
		oldPrice   decimal.NullDecimal
		categoryID sql.NullInt64
		weight     sql.NullFloat64
	)
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&oldPrice,
		&p.Stock,
		&categoryID,
		&weight,
		&p.IsExclusive,
		&p.ImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if oldPrice.Valid {
		p.OldPrice = &oldPrice.Decimal
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	if weight.Valid {
		p.Weight = &weight.Float64
	}
	return &p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

// Create 创建商品
func (r *productRepo) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (name, description, price, old_price, stock, category_id, weight, is_exclusive, image_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		nullDecimal(product.OldPrice),
		product.Stock,
		product.CategoryID,
		product.Weight,
		product.IsExclusive,
		product.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	product.ID = id
	return nil
}

// GetByID 根据ID获取商品，不存在时返回 nil, nil
func (r *productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`

	product, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product by id: %w", err)
	}
	return product, nil
}

// GetByIDs 根据ID列表批量获取商品，缺失的ID不报错
func (r *productRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return []*domain.Product{}, nil
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id IN (%s) ORDER BY id`, productColumns, placeholders)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products by ids: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Update 更新商品
func (r *productRepo) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = ?, description = ?, price = ?, old_price = ?, stock = ?, category_id = ?,
		    weight = ?, is_exclusive = ?, image_url = ?
		WHERE id = ?
	`

	// MySQL 对未变化的行返回影响行数 0，存在性由服务层先行查询保证
	_, err := r.db.ExecContext(ctx, query,
		product.Name,
		product.Description,
		product.Price,
		nullDecimal(product.OldPrice),
		product.Stock,
		product.CategoryID,
		product.Weight,
		product.IsExclusive,
		product.ImageURL,
		product.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update product: %w", err)
	}
	return nil
}

// List 分页查询商品，可按分类过滤
func (r *productRepo) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	where := ""
	var args []any
	if req.CategoryID != nil {
		where = "WHERE category_id = ?"
		args = append(args, *req.CategoryID)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM products %s", where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, productColumns, where)
	args = append(args, req.PageSize, (req.Page-1)*req.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]*domain.Product, 0, req.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// DecrementStock 条件更新：WHERE stock >= qty，影响行数为 0 时再区分不存在与库存不足
func (r *productRepo) DecrementStock(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}

	query := `UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`
	result, err := r.db.ExecContext(ctx, query, qty, id, qty)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	ok, err := mustAffect(result)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	var (
		name  string
		stock int
	)
	err = r.db.QueryRowContext(ctx, `SELECT name, stock FROM products WHERE id = ?`, id).Scan(&name, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
		}
		return fmt.Errorf("failed to read product stock: %w", err)
	}
	return &domain.InsufficientStockError{ProductID: id, ProductName: name, Available: stock, Requested: qty}
}
