package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

// CartService 购物车引擎。所有写操作都是按归属的原子 upsert，
// 返回值为写入后带商品详情的购物车视图。
type CartService interface {
	// Resolve 返回已有购物车，没有时返回未落库的空购物车
	Resolve(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error)
	View(ctx context.Context, owner domain.CartOwner) (*domain.CartView, error)
	AddItem(ctx context.Context, owner domain.CartOwner, productID int64, qty int) (*domain.CartView, error)
	RemoveItem(ctx context.Context, owner domain.CartOwner, productID int64) (*domain.CartView, error)
	AdjustQuantity(ctx context.Context, owner domain.CartOwner, productID int64, delta int) (*domain.CartView, error)
	Clear(ctx context.Context, owner domain.CartOwner) error
	MergeGuestIntoUser(ctx context.Context, sessionID string, userID int64) (*domain.CartView, error)
}

type cartService struct {
	store  repo.Store
	repos  repo.Repositories
	logger *zap.Logger
}

// NewCartService 创建购物车服务。repos 用于单步操作，store 用于合并等多步事务。
func NewCartService(store repo.Store, repos repo.Repositories, logger *zap.Logger) CartService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &cartService{store: store, repos: repos, logger: logger}
}

func (s *cartService) Resolve(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repos.Carts.GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return domain.NewCart(owner), nil
	}
	return cart, nil
}

func (s *cartService) View(ctx context.Context, owner domain.CartOwner) (*domain.CartView, error) {
	cart, err := s.Resolve(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.buildView(ctx, s.repos.Products, cart)
}

// buildView 用当前商品价格组装视图
func (s *cartService) buildView(ctx context.Context, products repo.ProductRepository, cart *domain.Cart) (*domain.CartView, error) {
	byID := make(map[int64]*domain.Product, len(cart.Items))
	if !cart.IsEmpty() {
		list, err := products.GetByIDs(ctx, cart.ProductIDs())
		if err != nil {
			return nil, fmt.Errorf("load cart products: %w", err)
		}
		for _, p := range list {
			byID[p.ID] = p
		}
	}
	return domain.BuildCartView(cart, byID), nil
}

// AddItem 不校验库存，库存只在结算时扣减
func (s *cartService) AddItem(ctx context.Context, owner domain.CartOwner, productID int64, qty int) (*domain.CartView, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	if productID <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", domain.ErrInvalidArgument)
	}
	if qty < 1 || qty > domain.MaxItemQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", domain.ErrInvalidArgument, domain.MaxItemQuantity)
	}

	product, err := s.repos.Products.GetByID(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("%w: product %d", domain.ErrNotFound, productID)
	}

	cartID, err := s.repos.Carts.AddItem(ctx, owner, productID, qty)
	if err != nil {
		return nil, fmt.Errorf("add cart item: %w", err)
	}

	s.logger.Info("cart item added",
		zap.Int64("cart_id", cartID),
		zap.String("owner", owner.String()),
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty))

	return s.View(ctx, owner)
}

// existing 查找已落库的购物车，不存在返回 NotFound
func (s *cartService) existing(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repos.Carts.GetByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil, fmt.Errorf("%w: cart not found", domain.ErrNotFound)
	}
	return cart, nil
}

// RemoveItem 条目不存在时不报错
func (s *cartService) RemoveItem(ctx context.Context, owner domain.CartOwner, productID int64) (*domain.CartView, error) {
	if productID <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", domain.ErrInvalidArgument)
	}
	cart, err := s.existing(ctx, owner)
	if err != nil {
		return nil, err
	}
	removed, err := s.repos.Carts.RemoveItem(ctx, cart.ID, productID)
	if err != nil {
		return nil, fmt.Errorf("remove cart item: %w", err)
	}
	if removed {
		s.logger.Info("cart item removed", zap.Int64("cart_id", cart.ID), zap.Int64("product_id", productID))
	}
	return s.View(ctx, owner)
}

// AdjustQuantity delta 为 +1 或 -1，减到 0 时移除条目
func (s *cartService) AdjustQuantity(ctx context.Context, owner domain.CartOwner, productID int64, delta int) (*domain.CartView, error) {
	if delta != 1 && delta != -1 {
		return nil, fmt.Errorf("%w: delta must be +1 or -1", domain.ErrInvalidArgument)
	}
	if productID <= 0 {
		return nil, fmt.Errorf("%w: invalid product id", domain.ErrInvalidArgument)
	}
	cart, err := s.existing(ctx, owner)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Carts.AdjustItem(ctx, cart.ID, productID, delta); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: product %d is not in cart", domain.ErrNotFound, productID)
		}
		return nil, fmt.Errorf("adjust cart item: %w", err)
	}
	return s.View(ctx, owner)
}

// Clear 删除整个购物车，没有购物车时视为成功
func (s *cartService) Clear(ctx context.Context, owner domain.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	cart, err := s.repos.Carts.GetByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}
	if cart == nil {
		return nil
	}
	if _, err := s.repos.Carts.Delete(ctx, cart.ID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	s.logger.Info("cart cleared", zap.Int64("cart_id", cart.ID), zap.String("owner", owner.String()))
	return nil
}

// MergeGuestIntoUser 把游客购物车并入用户购物车。
// 用户没有购物车时直接变更游客购物车的归属；游客购物车已不存在时为空操作，重复调用结果不变。
// 两个购物车都在事务内加锁读取，同一会话的并发登录只有一个会真正合并。
func (s *cartService) MergeGuestIntoUser(ctx context.Context, sessionID string, userID int64) (*domain.CartView, error) {
	guestOwner := domain.GuestOwner(sessionID)
	userOwner := domain.UserOwner(userID)
	if err := guestOwner.Validate(); err != nil {
		return nil, err
	}
	if err := userOwner.Validate(); err != nil {
		return nil, err
	}

	var view *domain.CartView
	err := s.store.WithinTx(ctx, func(tx repo.Repositories) error {
		guest, err := tx.Carts.GetByOwnerForUpdate(ctx, guestOwner)
		if err != nil {
			return fmt.Errorf("load guest cart: %w", err)
		}
		user, err := tx.Carts.GetByOwnerForUpdate(ctx, userOwner)
		if err != nil {
			return fmt.Errorf("load user cart: %w", err)
		}

		switch {
		case guest == nil:
			if user == nil {
				user = domain.NewCart(userOwner)
			}
		case user == nil:
			if err := tx.Carts.Reassign(ctx, guest.ID, userOwner); err != nil {
				return fmt.Errorf("reassign guest cart: %w", err)
			}
			guest.Owner = userOwner
			user = guest
			s.logger.Info("guest cart re-owned",
				zap.Int64("cart_id", guest.ID),
				zap.Int64("user_id", userID))
		default:
			if err := user.Merge(guest); err != nil {
				return err
			}
			for _, it := range guest.Items {
				if _, err := tx.Carts.AddItem(ctx, userOwner, it.ProductID, it.Quantity); err != nil {
					return fmt.Errorf("merge cart item: %w", err)
				}
			}
			deleted, err := tx.Carts.Delete(ctx, guest.ID)
			if err != nil {
				return fmt.Errorf("delete guest cart: %w", err)
			}
			if !deleted {
				return fmt.Errorf("%w: guest cart %d already merged", domain.ErrConflict, guest.ID)
			}
			s.logger.Info("guest cart merged",
				zap.Int64("guest_cart_id", guest.ID),
				zap.Int64("user_cart_id", user.ID),
				zap.Int("items", len(guest.Items)))
		}

		view, err = s.buildView(ctx, tx.Products, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}
