package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	// Create 写入订单头与行项目，回填ID
	Create(ctx context.Context, order *domain.Order) error
	// GetByID 不存在时返回 nil, nil
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	// ListByUser 按创建时间倒序
	ListByUser(ctx context.Context, userID int64) ([]*domain.Order, error)
	// UpdateStatus 无条件更新状态，订单不存在返回 false
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (bool, error)
	// CompareAndSetStatus 仅当当前状态为 from 时更新为 to
	CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (bool, error)
}

type orderRepo struct {
	db DBTX
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db DBTX) OrderRepository {
	return &orderRepo{db: db}
}

// Create 需在事务中调用以保证订单头与行项目一致
func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (user_id, total_amount, status) VALUES (?, ?, ?)`,
		order.UserID, order.TotalAmount, string(order.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, it := range order.Items {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, quantity, price_at_purchase)
			VALUES (?, ?, ?, ?, ?)
		`, id, it.ProductID, it.ProductName, it.Quantity, it.PriceAtPurchase)
		if err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
	}

	order.ID = id
	return r.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, status, created_at, updated_at FROM orders WHERE id = ?`, id,
	).Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	orders := []*domain.Order{&o}
	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at, updated_at
		FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadItems 一次查询填充多个订单的行项目
func (r *orderRepo) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		o.Items = []domain.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	placeholders, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT order_id, product_id, product_name, quantity, price_at_purchase
		FROM order_items WHERE order_id IN (%s) ORDER BY id
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			it      domain.OrderItem
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.PriceAtPurchase); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, it)
		}
	}
	return rows.Err()
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (bool, error) {
	// 状态未变化时 MySQL 影响行数为 0，因此先确认存在
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check order: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id); err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return true, nil
}

func (r *orderRepo) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	return mustAffect(result)
}
