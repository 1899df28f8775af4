package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderEventType 订单事件类型，同时用作消息路由键
type OrderEventType string

const (
	OrderEventPlaced        OrderEventType = "order.placed"
	OrderEventCancelled     OrderEventType = "order.cancelled"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent 订单状态变化后对外发布的事件
type OrderEvent struct {
	ID             string          `json:"id"`
	Type           OrderEventType  `json:"type"`
	OrderID        int64           `json:"order_id"`
	UserID         int64           `json:"user_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Items          []OrderItem     `json:"items,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewOrderEvent 根据订单当前状态生成事件
func NewOrderEvent(t OrderEventType, o *Order, previous OrderStatus) *OrderEvent {
	e := &OrderEvent{
		ID:             uuid.NewString(),
		Type:           t,
		OrderID:        o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		PreviousStatus: previous,
		TotalAmount:    o.TotalAmount,
		OccurredAt:     time.Now().UTC(),
	}
	if t == OrderEventPlaced {
		e.Items = append([]OrderItem(nil), o.Items...)
	}
	return e
}
