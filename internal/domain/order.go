package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "Pending"    // 待处理
	OrderStatusProcessing OrderStatus = "Processing" // 处理中
	OrderStatusShipped    OrderStatus = "Shipped"    // 已发货
	OrderStatusDelivered  OrderStatus = "Delivered"  // 已送达
	OrderStatusCancelled  OrderStatus = "Cancelled"  // 已取消
)

// OrderStatuses 全部合法状态
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid 是否为合法状态
func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// ParseOrderStatus 严格匹配状态名
func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrInvalidArgument, s)
	}
	return st, nil
}

// OrderItem 订单行，价格为下单时快照
type OrderItem struct {
	ProductID       int64           `json:"product_id"`
	ProductName     string          `json:"product_name"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"price_at_purchase"`
}

// Subtotal 行小计
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtPurchase.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order 订单，创建后行项目与金额不再变化
type Order struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewOrder 以待处理状态创建订单并计算总额
func NewOrder(userID int64, items []OrderItem) *Order {
	return &Order{
		UserID:      userID,
		Items:       items,
		TotalAmount: ComputeTotal(items),
		Status:      OrderStatusPending,
	}
}

// ComputeTotal 计算 Σ quantity × priceAtPurchase
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// CanCancel 只有待处理订单允许用户取消
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending
}

// Cancel 用户取消订单
func (o *Order) Cancel() error {
	if !o.CanCancel() {
		return fmt.Errorf("%w: only pending orders can be canceled", ErrInvalidState)
	}
	o.Status = OrderStatusCancelled
	return nil
}

// Clone 深拷贝
func (o *Order) Clone() *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}

// CheckoutRequest 结算请求，未携带 user_id 时使用当前登录用户
type CheckoutRequest struct {
	UserID int64 `json:"user_id"`
}

// UpdateOrderStatusRequest 管理员更新订单状态请求
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
