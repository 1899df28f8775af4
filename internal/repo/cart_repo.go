package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/MorseWayne/cart_shop/internal/domain"
)

// CartRepository 购物车数据访问接口。
// 购物车按归属（user_id 或 session_id）唯一，写操作均为按归属的原子 upsert。
type CartRepository interface {
	// GetByOwner 不存在时返回 nil, nil
	GetByOwner(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	// GetByOwnerForUpdate 同 GetByOwner，并在事务内锁住购物车行直到提交
	GetByOwnerForUpdate(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	// AddItem 购物车不存在时创建，条目已存在时累加数量；累加后超过 domain.MaxItemQuantity 返回 ErrInvalidArgument
	AddItem(ctx context.Context, owner domain.CartOwner, productID int64, qty int) (cartID int64, err error)
	// RemoveItem 条目不存在返回 false
	RemoveItem(ctx context.Context, cartID, productID int64) (bool, error)
	// AdjustItem delta 为 ±1，减到 0 时删除条目；条目不存在返回 domain.ErrNotFound
	AdjustItem(ctx context.Context, cartID, productID int64, delta int) error
	// Delete 删除整个购物车（含条目），购物车已不存在时返回 false
	Delete(ctx context.Context, cartID int64) (bool, error)
	// Reassign 变更归属，用于游客购物车在登录后转为用户购物车
	Reassign(ctx context.Context, cartID int64, owner domain.CartOwner) error
}

type cartRepo struct {
	db DBTX
}

// NewCartRepository 创建购物车仓储实例
func NewCartRepository(db DBTX) CartRepository {
	return &cartRepo{db: db}
}

// ownerColumns 返回 (user_id, session_id)，未使用的一列为 NULL
func ownerColumns(owner domain.CartOwner) (sql.NullInt64, sql.NullString) {
	if uid, ok := owner.UserID(); ok {
		return sql.NullInt64{Int64: uid, Valid: true}, sql.NullString{}
	}
	sid, _ := owner.SessionID()
	return sql.NullInt64{}, sql.NullString{String: sid, Valid: true}
}

func (r *cartRepo) GetByOwner(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	return r.getByOwner(ctx, owner, false)
}

// GetByOwnerForUpdate 只能在事务内使用；并发的结算与合并在此排队，
// 前一个事务提交后读到的是最新状态（购物车可能已被消费）
func (r *cartRepo) GetByOwnerForUpdate(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	return r.getByOwner(ctx, owner, true)
}

func (r *cartRepo) getByOwner(ctx context.Context, owner domain.CartOwner, lock bool) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT id, created_at, updated_at FROM carts WHERE session_id = ?`
	var arg any
	if uid, ok := owner.UserID(); ok {
		query = `SELECT id, created_at, updated_at FROM carts WHERE user_id = ?`
		arg = uid
	} else {
		arg, _ = owner.SessionID()
	}
	if lock {
		query += ` FOR UPDATE`
	}

	cart := domain.NewCart(owner)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity FROM cart_items WHERE cart_id = ? ORDER BY created_at, product_id`,
		cart.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ProductID, &it.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, it)
	}
	return cart, rows.Err()
}

// ensureCart 利用唯一索引 upsert，LAST_INSERT_ID(id) 使已存在的行也能返回其ID
func (r *cartRepo) ensureCart(ctx context.Context, owner domain.CartOwner) (int64, error) {
	userID, sessionID := ownerColumns(owner)
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (user_id, session_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE id = LAST_INSERT_ID(id), updated_at = CURRENT_TIMESTAMP
	`, userID, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert cart: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get cart id: %w", err)
	}
	return id, nil
}

func (r *cartRepo) AddItem(ctx context.Context, owner domain.CartOwner, productID int64, qty int) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	if qty < 1 || qty > domain.MaxItemQuantity {
		return 0, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidArgument, domain.MaxItemQuantity)
	}

	cartID, err := r.ensureCart(ctx, owner)
	if err != nil {
		return 0, err
	}

	// 超过上限时保持原值，受影响行数为 0（插入为 1，更新为 2）
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = IF(quantity + VALUES(quantity) > ?, quantity, quantity + VALUES(quantity))
	`, cartID, productID, qty, domain.MaxItemQuantity)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert cart item: %w", err)
	}
	ok, err := mustAffect(result)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: quantity of product %d exceeds %d",
			domain.ErrInvalidArgument, productID, domain.MaxItemQuantity)
	}
	return cartID, nil
}

func (r *cartRepo) RemoveItem(ctx context.Context, cartID, productID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?`, cartID, productID)
	if err != nil {
		return false, fmt.Errorf("failed to remove cart item: %w", err)
	}
	return mustAffect(result)
}

func (r *cartRepo) AdjustItem(ctx context.Context, cartID, productID int64, delta int) error {
	switch delta {
	case 1:
		result, err := r.db.ExecContext(ctx,
			`UPDATE cart_items SET quantity = quantity + 1 WHERE cart_id = ? AND product_id = ? AND quantity < ?`,
			cartID, productID, domain.MaxItemQuantity)
		if err != nil {
			return fmt.Errorf("failed to increase quantity: %w", err)
		}
		ok, err := mustAffect(result)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// 区分条目不存在与已到上限
		var exists bool
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM cart_items WHERE cart_id = ? AND product_id = ?)`,
			cartID, productID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check cart item: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: quantity of product %d exceeds %d",
				domain.ErrInvalidArgument, productID, domain.MaxItemQuantity)
		}
		return fmt.Errorf("%w: product %d is not in cart", domain.ErrNotFound, productID)

	case -1:
		result, err := r.db.ExecContext(ctx,
			`UPDATE cart_items SET quantity = quantity - 1 WHERE cart_id = ? AND product_id = ? AND quantity > 1`,
			cartID, productID)
		if err != nil {
			return fmt.Errorf("failed to decrease quantity: %w", err)
		}
		ok, err := mustAffect(result)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// 数量为 1，直接删除条目
		removed, err := r.RemoveItem(ctx, cartID, productID)
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("%w: product %d is not in cart", domain.ErrNotFound, productID)
		}
		return nil

	default:
		return fmt.Errorf("%w: delta must be +1 or -1", domain.ErrInvalidArgument)
	}
}

func (r *cartRepo) Delete(ctx context.Context, cartID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE id = ?`, cartID)
	if err != nil {
		return false, fmt.Errorf("failed to delete cart: %w", err)
	}
	return mustAffect(result)
}

func (r *cartRepo) Reassign(ctx context.Context, cartID int64, owner domain.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	userID, sessionID := ownerColumns(owner)
	_, err := r.db.ExecContext(ctx,
		`UPDATE carts SET user_id = ?, session_id = ? WHERE id = ?`, userID, sessionID, cartID)
	if err != nil {
		return wrapDuplicate("reassign cart", err)
	}
	return nil
}
