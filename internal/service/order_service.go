package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

// publishTimeout 提交后投递事件的最长等待时间
const publishTimeout = 5 * time.Second

// OrderService 结算与订单管理
type OrderService interface {
	// Checkout 在单个事务内完成：校验库存、条件扣减、生成订单、删除购物车
	Checkout(ctx context.Context, userID int64) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]*domain.Order, error)
	// CancelOrder 仅待处理订单可取消，不回补库存
	CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	// UpdateOrderStatus 管理员操作，接受任意合法状态
	UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error)
}

type orderService struct {
	store     repo.Store
	repos     repo.Repositories
	publisher OrderEventPublisher
	evicter   StockCacheEvicter
	logger    *zap.Logger
}

// NewOrderService 创建订单服务，publisher 与 evicter 可为 nil
func NewOrderService(store repo.Store, repos repo.Repositories, publisher OrderEventPublisher, evicter StockCacheEvicter, logger *zap.Logger) OrderService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &orderService{store: store, repos: repos, publisher: publisher, evicter: evicter, logger: logger}
}

func (s *orderService) Checkout(ctx context.Context, userID int64) (*domain.Order, error) {
	owner := domain.UserOwner(userID)
	if err := owner.Validate(); err != nil {
		return nil, fmt.Errorf("%w: invalid user id", domain.ErrInvalidArgument)
	}

	var order *domain.Order
	err := s.store.WithinTx(ctx, func(tx repo.Repositories) error {
		// 锁住购物车，同一购物车的并发结算在此排队
		cart, err := tx.Carts.GetByOwnerForUpdate(ctx, owner)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}
		if cart == nil || cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		products, err := tx.Products.GetByIDs(ctx, cart.ProductIDs())
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		byID := make(map[int64]*domain.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		// 先整体校验，再扣减；扣减本身带条件，兜住校验之后的并发
		items := make([]domain.OrderItem, 0, len(cart.Items))
		for _, it := range cart.Items {
			p, ok := byID[it.ProductID]
			if !ok {
				return fmt.Errorf("%w: product %d", domain.ErrNotFound, it.ProductID)
			}
			if !p.HasStock(it.Quantity) {
				return &domain.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Available:   p.Stock,
					Requested:   it.Quantity,
				}
			}
			items = append(items, domain.OrderItem{
				ProductID:       p.ID,
				ProductName:     p.Name,
				Quantity:        it.Quantity,
				PriceAtPurchase: p.Price,
			})
		}

		for _, it := range items {
			if err := tx.Products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}

		order = domain.NewOrder(userID, items)
		if err := tx.Orders.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		deleted, err := tx.Carts.Delete(ctx, cart.ID)
		if err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}
		if !deleted {
			// 购物车已被其他结算消费，回滚本次扣减与订单
			return fmt.Errorf("%w: cart %d was already checked out", domain.ErrEmptyCart, cart.ID)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("checkout failed", zap.Int64("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.String("total_amount", order.TotalAmount.StringFixed(2)),
		zap.Int("items", len(order.Items)))

	s.afterCommit(ctx, domain.NewOrderEvent(domain.OrderEventPlaced, order, ""), productIDs(order))
	return order, nil
}

func productIDs(o *domain.Order) []int64 {
	ids := make([]int64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// afterCommit 提交后的副作用只记录失败，不影响请求结果
func (s *orderService) afterCommit(ctx context.Context, event *domain.OrderEvent, evictIDs []int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if s.evicter != nil && len(evictIDs) > 0 {
		s.evicter.Evict(ctx, evictIDs...)
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("publish order event failed",
			zap.String("event_id", event.ID),
			zap.String("type", string(event.Type)),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	if orderID <= 0 {
		return nil, fmt.Errorf("%w: invalid order id", domain.ErrInvalidArgument)
	}
	order, err := s.repos.Orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) ListUserOrders(ctx context.Context, userID int64) ([]*domain.Order, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: invalid user id", domain.ErrInvalidArgument)
	}
	orders, err := s.repos.Orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	return orders, nil
}

func (s *orderService) CancelOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	previous := order.Status
	if err := order.Cancel(); err != nil {
		return nil, err
	}

	// 条件更新，防止读取后状态已被管理员修改
	ok, err := s.repos.Orders.CompareAndSetStatus(ctx, orderID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: only pending orders can be canceled", domain.ErrInvalidState)
	}

	s.logger.Info("order cancelled", zap.Int64("order_id", orderID), zap.Int64("user_id", order.UserID))
	s.afterCommit(ctx, domain.NewOrderEvent(domain.OrderEventCancelled, order, previous), nil)
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) (*domain.Order, error) {
	next, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	previous := order.Status

	ok, err := s.repos.Orders.UpdateStatus(ctx, orderID, next)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, orderID)
	}
	order.Status = next

	s.logger.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)))
	s.afterCommit(ctx, domain.NewOrderEvent(domain.OrderEventStatusChanged, order, previous), nil)
	return order, nil
}
