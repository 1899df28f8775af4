// Package memstore 提供全部仓储接口的内存实现。
// 所有操作由一把互斥锁串行化；WithinTx 持锁执行并在失败时恢复快照，
// 因而具备与数据库事务相同的原子性与隔离性。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo"
)

// ErrDuplicate 违反唯一约束
var ErrDuplicate = fmt.Errorf("%w: duplicate entry", domain.ErrConflict)

type state struct {
	products   map[int64]*domain.Product
	categories map[int64]*domain.Category
	carts      map[int64]*domain.Cart
	cartOwners map[string]int64
	orders     map[int64]*domain.Order
	users      map[int64]*domain.User

	productSeq  int64
	categorySeq int64
	cartSeq     int64
	orderSeq    int64
	userSeq     int64
}

func newState() *state {
	return &state{
		products:   make(map[int64]*domain.Product),
		categories: make(map[int64]*domain.Category),
		carts:      make(map[int64]*domain.Cart),
		cartOwners: make(map[string]int64),
		orders:     make(map[int64]*domain.Order),
		users:      make(map[int64]*domain.User),
	}
}

// clone 深拷贝可变聚合；商品与用户按值复制
func (s *state) clone() *state {
	cp := *s
	cp.products = make(map[int64]*domain.Product, len(s.products))
	for k, v := range s.products {
		p := *v
		cp.products[k] = &p
	}
	cp.categories = make(map[int64]*domain.Category, len(s.categories))
	for k, v := range s.categories {
		c := *v
		cp.categories[k] = &c
	}
	cp.carts = make(map[int64]*domain.Cart, len(s.carts))
	for k, v := range s.carts {
		cp.carts[k] = v.Clone()
	}
	cp.cartOwners = make(map[string]int64, len(s.cartOwners))
	for k, v := range s.cartOwners {
		cp.cartOwners[k] = v
	}
	cp.orders = make(map[int64]*domain.Order, len(s.orders))
	for k, v := range s.orders {
		cp.orders[k] = v.Clone()
	}
	cp.users = make(map[int64]*domain.User, len(s.users))
	for k, v := range s.users {
		u := *v
		cp.users[k] = &u
	}
	return &cp
}

// Store 内存存储
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

// New 创建空的内存存储
func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// handle 非事务句柄每次操作加锁；事务句柄运行在 WithinTx 已持有的锁内
type handle struct {
	s    *Store
	inTx bool
}

func (h handle) do(fn func(st *state) error) error {
	if !h.inTx {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
	}
	return fn(h.s.st)
}

func (s *Store) repositories(inTx bool) repo.Repositories {
	h := handle{s: s, inTx: inTx}
	return repo.Repositories{
		Products: productRepo{h},
		Carts:    cartRepo{h},
		Orders:   orderRepo{h},
	}
}

// Repos 返回非事务仓储
func (s *Store) Repos() repo.Repositories {
	return s.repositories(false)
}

// Categories 分类仓储
func (s *Store) Categories() repo.CategoryRepository {
	return categoryRepo{handle{s: s}}
}

// Users 用户仓储
func (s *Store) Users() repo.UserRepository {
	return userRepo{handle{s: s}}
}

// WithinTx fn 返回错误或 panic 时恢复到事务开始前的快照
func (s *Store) WithinTx(ctx context.Context, fn func(tx repo.Repositories) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
	}()

	if err = fn(s.repositories(true)); err != nil {
		s.st = snapshot
	}
	return err
}

var _ repo.Store = (*Store)(nil)

// ---- products ----

type productRepo struct{ h handle }

func (r productRepo) Create(ctx context.Context, product *domain.Product) error {
	return r.h.do(func(st *state) error {
		st.productSeq++
		now := r.h.s.now()
		product.ID = st.productSeq
		product.CreatedAt, product.UpdatedAt = now, now
		p := *product
		st.products[p.ID] = &p
		return nil
	})
}

func (r productRepo) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var out *domain.Product
	err := r.h.do(func(st *state) error {
		if p, ok := st.products[id]; ok {
			cp := *p
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r productRepo) GetByIDs(ctx context.Context, ids []int64) ([]*domain.Product, error) {
	out := make([]*domain.Product, 0, len(ids))
	err := r.h.do(func(st *state) error {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			p, ok := st.products[id]
			if !ok || seen[id] {
				continue
			}
			seen[id] = true
			cp := *p
			out = append(out, &cp)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r productRepo) Update(ctx context.Context, product *domain.Product) error {
	return r.h.do(func(st *state) error {
		old, ok := st.products[product.ID]
		if !ok {
			return nil
		}
		product.CreatedAt = old.CreatedAt
		product.UpdatedAt = r.h.s.now()
		p := *product
		st.products[p.ID] = &p
		return nil
	})
}

func (r productRepo) List(ctx context.Context, req *domain.ProductListRequest) ([]*domain.Product, int64, error) {
	var (
		out   []*domain.Product
		total int64
	)
	err := r.h.do(func(st *state) error {
		var all []*domain.Product
		for _, p := range st.products {
			if req.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *req.CategoryID) {
				continue
			}
			cp := *p
			all = append(all, &cp)
		}
		sort.Slice(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.After(all[j].CreatedAt)
			}
			return all[i].ID > all[j].ID
		})
		total = int64(len(all))
		out = page(all, req.Page, req.PageSize)
		return nil
	})
	return out, total, err
}

func (r productRepo) DecrementStock(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidArgument)
	}
	return r.h.do(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return fmt.Errorf("%w: product %d", domain.ErrNotFound, id)
		}
		if p.Stock < qty {
			return &domain.InsufficientStockError{ProductID: id, ProductName: p.Name, Available: p.Stock, Requested: qty}
		}
		p.Stock -= qty
		p.UpdatedAt = r.h.s.now()
		return nil
	})
}

// ---- categories ----

type categoryRepo struct{ h handle }

func (r categoryRepo) Create(ctx context.Context, c *domain.Category) error {
	return r.h.do(func(st *state) error {
		for _, existing := range st.categories {
			if existing.Name == c.Name {
				return fmt.Errorf("%w: category %q", ErrDuplicate, c.Name)
			}
		}
		st.categorySeq++
		c.ID = st.categorySeq
		c.CreatedAt = r.h.s.now()
		cp := *c
		st.categories[cp.ID] = &cp
		return nil
	})
}

func (r categoryRepo) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var out *domain.Category
	err := r.h.do(func(st *state) error {
		if c, ok := st.categories[id]; ok {
			cp := *c
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r categoryRepo) List(ctx context.Context, offset, limit int) ([]*domain.Category, int64, error) {
	var (
		out   []*domain.Category
		total int64
	)
	err := r.h.do(func(st *state) error {
		all := make([]*domain.Category, 0, len(st.categories))
		for _, c := range st.categories {
			cp := *c
			all = append(all, &cp)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
		total = int64(len(all))
		out = slice(all, offset, limit)
		return nil
	})
	return out, total, err
}

// ---- carts ----

type cartRepo struct{ h handle }

func (r cartRepo) GetByOwner(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	var out *domain.Cart
	err := r.h.do(func(st *state) error {
		if id, ok := st.cartOwners[owner.String()]; ok {
			out = st.carts[id].Clone()
		}
		return nil
	})
	return out, err
}

// GetByOwnerForUpdate 事务句柄已持有全局锁，与 GetByOwner 相同
func (r cartRepo) GetByOwnerForUpdate(ctx context.Context, owner domain.CartOwner) (*domain.Cart, error) {
	return r.GetByOwner(ctx, owner)
}

func (r cartRepo) AddItem(ctx context.Context, owner domain.CartOwner, productID int64, qty int) (int64, error) {
	if err := owner.Validate(); err != nil {
		return 0, err
	}
	var cartID int64
	err := r.h.do(func(st *state) error {
		now := r.h.s.now()
		id, ok := st.cartOwners[owner.String()]
		var c *domain.Cart
		if ok {
			c = st.carts[id].Clone()
		} else {
			c = domain.NewCart(owner)
			c.CreatedAt = now
		}
		if err := c.Add(productID, qty); err != nil {
			return err
		}
		if !ok {
			st.cartSeq++
			c.ID = st.cartSeq
			st.cartOwners[owner.String()] = c.ID
		}
		c.UpdatedAt = now
		st.carts[c.ID] = c
		cartID = c.ID
		return nil
	})
	return cartID, err
}

func (r cartRepo) RemoveItem(ctx context.Context, cartID, productID int64) (bool, error) {
	var removed bool
	err := r.h.do(func(st *state) error {
		if c, ok := st.carts[cartID]; ok {
			removed = c.Remove(productID)
			if removed {
				c.UpdatedAt = r.h.s.now()
			}
		}
		return nil
	})
	return removed, err
}

func (r cartRepo) AdjustItem(ctx context.Context, cartID, productID int64, delta int) error {
	return r.h.do(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return fmt.Errorf("%w: cart %d", domain.ErrNotFound, cartID)
		}
		if err := c.Adjust(productID, delta); err != nil {
			return err
		}
		c.UpdatedAt = r.h.s.now()
		return nil
	})
}

func (r cartRepo) Delete(ctx context.Context, cartID int64) (bool, error) {
	var deleted bool
	err := r.h.do(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return nil
		}
		delete(st.cartOwners, c.Owner.String())
		delete(st.carts, cartID)
		deleted = true
		return nil
	})
	return deleted, err
}

func (r cartRepo) Reassign(ctx context.Context, cartID int64, owner domain.CartOwner) error {
	if err := owner.Validate(); err != nil {
		return err
	}
	return r.h.do(func(st *state) error {
		c, ok := st.carts[cartID]
		if !ok {
			return nil
		}
		if other, taken := st.cartOwners[owner.String()]; taken && other != cartID {
			return fmt.Errorf("%w: %s already owns cart %d", ErrDuplicate, owner, other)
		}
		delete(st.cartOwners, c.Owner.String())
		c.Owner = owner
		c.UpdatedAt = r.h.s.now()
		st.cartOwners[owner.String()] = cartID
		return nil
	})
}

// ---- orders ----

type orderRepo struct{ h handle }

func (r orderRepo) Create(ctx context.Context, order *domain.Order) error {
	return r.h.do(func(st *state) error {
		st.orderSeq++
		now := r.h.s.now()
		order.ID = st.orderSeq
		order.CreatedAt, order.UpdatedAt = now, now
		st.orders[order.ID] = order.Clone()
		return nil
	})
}

func (r orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var out *domain.Order
	err := r.h.do(func(st *state) error {
		if o, ok := st.orders[id]; ok {
			out = o.Clone()
		}
		return nil
	})
	return out, err
}

func (r orderRepo) ListByUser(ctx context.Context, userID int64) ([]*domain.Order, error) {
	out := []*domain.Order{}
	err := r.h.do(func(st *state) error {
		for _, o := range st.orders {
			if o.UserID == userID {
				out = append(out, o.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}

func (r orderRepo) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus) (bool, error) {
	var ok bool
	err := r.h.do(func(st *state) error {
		o, found := st.orders[id]
		if !found {
			return nil
		}
		o.Status = status
		o.UpdatedAt = r.h.s.now()
		ok = true
		return nil
	})
	return ok, err
}

func (r orderRepo) CompareAndSetStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (bool, error) {
	var ok bool
	err := r.h.do(func(st *state) error {
		o, found := st.orders[id]
		if !found || o.Status != from {
			return nil
		}
		o.Status = to
		o.UpdatedAt = r.h.s.now()
		ok = true
		return nil
	})
	return ok, err
}

// ---- users ----

type userRepo struct{ h handle }

func (r userRepo) Create(ctx context.Context, user *domain.User) error {
	return r.h.do(func(st *state) error {
		for _, u := range st.users {
			if u.Username == user.Username || u.Email == user.Email {
				return fmt.Errorf("%w: user %q", ErrDuplicate, user.Username)
			}
		}
		st.userSeq++
		now := r.h.s.now()
		user.ID = st.userSeq
		user.CreatedAt, user.UpdatedAt = now, now
		u := *user
		st.users[u.ID] = &u
		return nil
	})
}

func (r userRepo) find(match func(u *domain.User) bool) (*domain.User, error) {
	var out *domain.User
	err := r.h.do(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				cp := *u
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r userRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Username == username })
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func page[T any](all []T, pageNum, size int) []T {
	if pageNum < 1 {
		pageNum = 1
	}
	return slice(all, (pageNum-1)*size, size)
}

func slice[T any](all []T, offset, limit int) []T {
	if offset >= len(all) || limit <= 0 {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
