package domain

import (
	"errors"
	"fmt"
)

// 业务错误分类，API 层按 errors.Is 映射为 HTTP 状态码
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidIdentity   = errors.New("either a user or a guest session is required")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidState      = errors.New("invalid state")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
)

// InsufficientStockError 描述哪个商品库存不足
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %s. Available: %d", e.ProductName, e.Available)
}

// Is 使 errors.Is(err, ErrInsufficientStock) 成立
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
