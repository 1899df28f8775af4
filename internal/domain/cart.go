package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind 购物车归属类型
type OwnerKind string

const (
	OwnerUser  OwnerKind = "user"  // 登录用户
	OwnerGuest OwnerKind = "guest" // 游客会话
)

// CartOwner 购物车归属，登录用户或游客会话二选一。
// 字段不导出，只能通过 UserOwner / GuestOwner 构造。
type CartOwner struct {
	kind      OwnerKind
	userID    int64
	sessionID string
}

// UserOwner 构造登录用户归属
func UserOwner(userID int64) CartOwner {
	return CartOwner{kind: OwnerUser, userID: userID}
}

// GuestOwner 构造游客会话归属
func GuestOwner(sessionID string) CartOwner {
	return CartOwner{kind: OwnerGuest, sessionID: sessionID}
}

// ResolveOwner 已认证用户优先，否则使用游客会话
func ResolveOwner(userID int64, sessionID string) (CartOwner, error) {
	switch {
	case userID > 0:
		return UserOwner(userID), nil
	case sessionID != "":
		return GuestOwner(sessionID), nil
	default:
		return CartOwner{}, ErrInvalidIdentity
	}
}

func (o CartOwner) Kind() OwnerKind { return o.kind }

func (o CartOwner) IsUser() bool { return o.kind == OwnerUser }

func (o CartOwner) IsGuest() bool { return o.kind == OwnerGuest }

// UserID 返回用户ID，游客归属时 ok 为 false
func (o CartOwner) UserID() (int64, bool) {
	return o.userID, o.kind == OwnerUser
}

// SessionID 返回游客会话ID，用户归属时 ok 为 false
func (o CartOwner) SessionID() (string, bool) {
	return o.sessionID, o.kind == OwnerGuest
}

// Validate 零值或缺少标识时返回 ErrInvalidIdentity
func (o CartOwner) Validate() error {
	switch o.kind {
	case OwnerUser:
		if o.userID <= 0 {
			return ErrInvalidIdentity
		}
	case OwnerGuest:
		if o.sessionID == "" {
			return ErrInvalidIdentity
		}
	default:
		return ErrInvalidIdentity
	}
	return nil
}

func (o CartOwner) String() string {
	if o.kind == OwnerUser {
		return fmt.Sprintf("user:%d", o.userID)
	}
	return "guest:" + o.sessionID
}

// MaxItemQuantity 单个条目数量上限，累加、合并与增加数量都不得超过
const MaxItemQuantity = 999

// checkQuantity 校验累加后的数量
func checkQuantity(productID int64, qty int) error {
	if qty > MaxItemQuantity {
		return fmt.Errorf("%w: quantity of product %d exceeds %d", ErrInvalidArgument, productID, MaxItemQuantity)
	}
	return nil
}

// CartItem 购物车条目，只存在于购物车内部
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// Cart 购物车聚合，每个商品至多一条
type Cart struct {
	ID        int64
	Owner     CartOwner
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCart 创建未持久化的空购物车
func NewCart(owner CartOwner) *Cart {
	return &Cart{Owner: owner, Items: []CartItem{}}
}

// Persisted 是否已落库
func (c *Cart) Persisted() bool { return c.ID != 0 }

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) indexOf(productID int64) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Item 查找商品条目
func (c *Cart) Item(productID int64) (CartItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// Add 已有条目累加数量，否则追加
func (c *Cart) Add(productID int64, qty int) error {
	if productID <= 0 {
		return fmt.Errorf("%w: invalid product id", ErrInvalidArgument)
	}
	if qty < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrInvalidArgument)
	}
	if err := checkQuantity(productID, qty); err != nil {
		return err
	}
	if i := c.indexOf(productID); i >= 0 {
		if err := checkQuantity(productID, c.Items[i].Quantity+qty); err != nil {
			return err
		}
		c.Items[i].Quantity += qty
		return nil
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: qty})
	return nil
}

// Remove 删除条目，不存在时返回 false
func (c *Cart) Remove(productID int64) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// Adjust 数量加一或减一，减到 0 时移除条目
func (c *Cart) Adjust(productID int64, delta int) error {
	if delta != 1 && delta != -1 {
		return fmt.Errorf("%w: delta must be +1 or -1", ErrInvalidArgument)
	}
	i := c.indexOf(productID)
	if i < 0 {
		return fmt.Errorf("%w: product %d is not in cart", ErrNotFound, productID)
	}
	if c.Items[i].Quantity+delta < 1 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}
	if err := checkQuantity(productID, c.Items[i].Quantity+delta); err != nil {
		return err
	}
	c.Items[i].Quantity += delta
	return nil
}

// Merge 将另一个购物车的条目并入，同一商品数量相加。
// 任一商品合并后超过上限时返回错误，购物车保持不变。
func (c *Cart) Merge(other *Cart) error {
	for _, it := range other.Items {
		sum := it.Quantity
		if cur, ok := c.Item(it.ProductID); ok {
			sum += cur.Quantity
		}
		if err := checkQuantity(it.ProductID, sum); err != nil {
			return err
		}
	}
	for _, it := range other.Items {
		if i := c.indexOf(it.ProductID); i >= 0 {
			c.Items[i].Quantity += it.Quantity
			continue
		}
		c.Items = append(c.Items, it)
	}
	return nil
}

// ProductIDs 返回条目中的商品ID
func (c *Cart) ProductIDs() []int64 {
	ids := make([]int64, 0, len(c.Items))
	for _, it := range c.Items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

// TotalQuantity 商品总件数
func (c *Cart) TotalQuantity() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// Clone 深拷贝
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]CartItem(nil), c.Items...)
	return &cp
}

type cartJSON struct {
	ID        int64      `json:"id,omitempty"`
	UserID    *int64     `json:"user_id,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// MarshalJSON 按归属类型只输出 user_id 或 session_id
func (c Cart) MarshalJSON() ([]byte, error) {
	w := cartJSON{ID: c.ID, Items: c.Items, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
	if w.Items == nil {
		w.Items = []CartItem{}
	}
	if uid, ok := c.Owner.UserID(); ok {
		w.UserID = &uid
	} else if sid, ok := c.Owner.SessionID(); ok {
		w.SessionID = sid
	}
	return json.Marshal(w)
}

// UnmarshalJSON 同时给出 user_id 和 session_id 视为非法
func (c *Cart) UnmarshalJSON(data []byte) error {
	var w cartJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var uid int64
	if w.UserID != nil {
		if w.SessionID != "" {
			return fmt.Errorf("%w: cart has both user_id and session_id", ErrInvalidIdentity)
		}
		uid = *w.UserID
	}
	owner, err := ResolveOwner(uid, w.SessionID)
	if err != nil {
		return err
	}
	*c = Cart{ID: w.ID, Owner: owner, Items: w.Items, CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt}
	return nil
}

// CartLine 带商品详情的购物车行
type CartLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	ImageURL  string          `json:"image_url,omitempty"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	InStock   bool            `json:"in_stock"`
}

// CartView 购物车展示视图，价格取自当前商品
type CartView struct {
	ID            int64           `json:"id,omitempty"`
	UserID        *int64          `json:"user_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	Items         []CartLine      `json:"items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

// BuildCartView 组装展示视图，已下架（查不到）的商品跳过
func BuildCartView(c *Cart, products map[int64]*Product) *CartView {
	v := &CartView{ID: c.ID, Items: make([]CartLine, 0, len(c.Items)), TotalAmount: decimal.Zero}
	if uid, ok := c.Owner.UserID(); ok {
		v.UserID = &uid
	} else if sid, ok := c.Owner.SessionID(); ok {
		v.SessionID = sid
	}
	for _, it := range c.Items {
		p, ok := products[it.ProductID]
		if !ok {
			continue
		}
		sub := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		v.Items = append(v.Items, CartLine{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Name:      p.Name,
			Price:     p.Price,
			ImageURL:  p.ImageURL,
			Subtotal:  sub,
			InStock:   p.Stock >= it.Quantity,
		})
		v.TotalQuantity += it.Quantity
		v.TotalAmount = v.TotalAmount.Add(sub)
	}
	return v
}

// AddToCartRequest 加购请求，quantity 缺省为 1
type AddToCartRequest struct {
	ProductID int64  `json:"product_id" binding:"required,gt=0"`
	Quantity  *int   `json:"quantity" binding:"omitempty,gte=1,lte=999"`
	SessionID string `json:"session_id"`
}

// Qty 返回请求数量
func (r *AddToCartRequest) Qty() int {
	if r.Quantity == nil {
		return 1
	}
	return *r.Quantity
}

// CartItemRequest 删除/增减数量/清空请求
type CartItemRequest struct {
	ProductID int64  `json:"product_id"`
	SessionID string `json:"session_id"`
}
