package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/cart_shop/internal/domain"
	"github.com/MorseWayne/cart_shop/internal/repo/memstore"
)

func newCartFixture(t *testing.T) (CartService, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewCartService(store, store.Repos(), nil), store
}

func seedProduct(t *testing.T, store *memstore.Store, name string, price int64, stock int) *domain.Product {
	t.Helper()
	p := &domain.Product{Name: name, Price: decimal.NewFromInt(price), Stock: stock}
	require.NoError(t, store.Repos().Products.Create(context.Background(), p))
	return p
}

func TestCartService_ResolvePlaceholder(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()

	cart, err := svc.Resolve(ctx, domain.GuestOwner("s1"))
	require.NoError(t, err)
	assert.False(t, cart.Persisted())
	assert.True(t, cart.IsEmpty())

	// 解析不会落库
	stored, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s1"))
	require.NoError(t, err)
	assert.Nil(t, stored)

	_, err = svc.Resolve(ctx, domain.CartOwner{})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestCartService_AddItemSumsQuantity(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "pen", 10, 1)
	owner := domain.UserOwner(1)

	_, err := svc.AddItem(ctx, owner, p.ID, 2)
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, owner, p.ID, 3)
	require.NoError(t, err)

	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, 5, view.TotalQuantity)
	assert.True(t, view.TotalAmount.Equal(decimal.NewFromInt(50)))
	// 加购不校验库存
	assert.False(t, view.Items[0].InStock)
}

func TestCartService_AddItemErrors(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "pen", 10, 5)

	tests := []struct {
		name    string
		owner   domain.CartOwner
		product int64
		qty     int
		wantErr error
	}{
		{name: "zero quantity", owner: domain.GuestOwner("s"), product: p.ID, qty: 0, wantErr: domain.ErrInvalidArgument},
		{name: "negative quantity", owner: domain.GuestOwner("s"), product: p.ID, qty: -2, wantErr: domain.ErrInvalidArgument},
		{name: "quantity over cap", owner: domain.GuestOwner("s"), product: p.ID, qty: domain.MaxItemQuantity + 1, wantErr: domain.ErrInvalidArgument},
		{name: "bad product id", owner: domain.GuestOwner("s"), product: 0, qty: 1, wantErr: domain.ErrInvalidArgument},
		{name: "unknown product", owner: domain.GuestOwner("s"), product: 404, qty: 1, wantErr: domain.ErrNotFound},
		{name: "no identity", owner: domain.CartOwner{}, product: p.ID, qty: 1, wantErr: domain.ErrInvalidIdentity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, tt.owner, tt.product, tt.qty)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	c, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)
	assert.Nil(t, c, "failed adds must not create a cart")
}

func TestCartService_RemoveItem(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	a := seedProduct(t, store, "a", 1, 5)
	b := seedProduct(t, store, "b", 2, 5)
	owner := domain.GuestOwner("s")

	_, err := svc.RemoveItem(ctx, owner, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no cart yet")

	_, err = svc.AddItem(ctx, owner, a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, b.ID, 1)
	require.NoError(t, err)

	view, err := svc.RemoveItem(ctx, owner, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, b.ID, view.Items[0].ProductID)

	// 不存在的条目是空操作
	view, err = svc.RemoveItem(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Len(t, view.Items, 1)
}

func TestCartService_AdjustQuantity(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)
	owner := domain.UserOwner(9)

	_, err := svc.AddItem(ctx, owner, p.ID, 1)
	require.NoError(t, err)

	view, err := svc.AdjustQuantity(ctx, owner, p.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Items[0].Quantity)

	view, err = svc.AdjustQuantity(ctx, owner, p.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Items[0].Quantity)

	// 数量为 1 时减少会移除条目
	view, err = svc.AdjustQuantity(ctx, owner, p.ID, -1)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = svc.AdjustQuantity(ctx, owner, p.ID, -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.AdjustQuantity(ctx, owner, p.ID, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCartService_Clear(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)
	owner := domain.GuestOwner("s")

	require.NoError(t, svc.Clear(ctx, owner), "clearing a missing cart succeeds")

	_, err := svc.AddItem(ctx, owner, p.ID, 3)
	require.NoError(t, err)
	require.NoError(t, svc.Clear(ctx, owner))

	c, err := store.Repos().Carts.GetByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Nil(t, c, "clear deletes the whole aggregate")
}

func TestCartService_MergeReownsGuestCart(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 4, 5)

	_, err := svc.AddItem(ctx, domain.GuestOwner("s"), p.ID, 2)
	require.NoError(t, err)
	guest, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)

	view, err := svc.MergeGuestIntoUser(ctx, "s", 7)
	require.NoError(t, err)
	require.NotNil(t, view.UserID)
	assert.Equal(t, int64(7), *view.UserID)
	assert.Empty(t, view.SessionID)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)

	owned, err := store.Repos().Carts.GetByOwner(ctx, domain.UserOwner(7))
	require.NoError(t, err)
	require.NotNil(t, owned)
	assert.Equal(t, guest.ID, owned.ID, "re-owned, not copied")

	gone, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestCartService_MergeSumsIntoUserCart(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	a := seedProduct(t, store, "a", 1, 5)
	b := seedProduct(t, store, "b", 1, 5)

	_, err := svc.AddItem(ctx, domain.UserOwner(1), a.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.GuestOwner("s"), a.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.GuestOwner("s"), b.ID, 4)
	require.NoError(t, err)

	view, err := svc.MergeGuestIntoUser(ctx, "s", 1)
	require.NoError(t, err)

	got := map[int64]int{}
	for _, l := range view.Items {
		got[l.ProductID] = l.Quantity
	}
	assert.Equal(t, map[int64]int{a.ID: 3, b.ID: 4}, got)

	gone, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)
	assert.Nil(t, gone)

	// 重复合并为空操作
	again, err := svc.MergeGuestIntoUser(ctx, "s", 1)
	require.NoError(t, err)
	assert.Equal(t, view.Items, again.Items)
}

func TestCartService_MergeWithoutAnyCart(t *testing.T) {
	svc, _ := newCartFixture(t)

	view, err := svc.MergeGuestIntoUser(context.Background(), "nobody", 3)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = svc.MergeGuestIntoUser(context.Background(), "", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestCartService_ConcurrentAddsOnSameCart(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)
	owner := domain.GuestOwner("tab")

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddItem(ctx, owner, p.ID, 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 50, view.Items[0].Quantity)
}

func TestCartService_AddItemNeverOverflows(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "pen", 1, 5)
	owner := domain.GuestOwner("s1")

	_, err := svc.AddItem(ctx, owner, p.ID, math.MaxInt)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.AddItem(ctx, owner, p.ID, domain.MaxItemQuantity)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, owner, p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.AdjustQuantity(ctx, owner, p.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	view, err := svc.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, domain.MaxItemQuantity, view.Items[0].Quantity)
	assert.Equal(t, domain.MaxItemQuantity, view.TotalQuantity)
}

func TestCartService_MergeOverCapKeepsBothCarts(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)

	_, err := svc.AddItem(ctx, domain.UserOwner(1), p.ID, domain.MaxItemQuantity)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.GuestOwner("s"), p.ID, 1)
	require.NoError(t, err)

	_, err = svc.MergeGuestIntoUser(ctx, "s", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	guest, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)
	require.NotNil(t, guest)
	user, err := store.Repos().Carts.GetByOwner(ctx, domain.UserOwner(1))
	require.NoError(t, err)
	assert.Equal(t, domain.MaxItemQuantity, user.TotalQuantity())
}

func TestCartService_ConcurrentLoginsMergeOnce(t *testing.T) {
	svc, store := newCartFixture(t)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)

	_, err := svc.AddItem(ctx, domain.UserOwner(1), p.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.GuestOwner("s"), p.ID, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MergeGuestIntoUser(ctx, "s", 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	view, err := svc.View(ctx, domain.UserOwner(1))
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestCartService_MergeRollsBackWhenGuestCartAlreadyConsumed(t *testing.T) {
	store := memstore.New()
	svc := NewCartService(consumedCartStore{store}, store.Repos(), nil)
	ctx := context.Background()
	p := seedProduct(t, store, "a", 1, 5)

	_, err := svc.AddItem(ctx, domain.UserOwner(1), p.ID, 1)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, domain.GuestOwner("s"), p.ID, 2)
	require.NoError(t, err)

	_, err = svc.MergeGuestIntoUser(ctx, "s", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)

	guest, err := store.Repos().Carts.GetByOwner(ctx, domain.GuestOwner("s"))
	require.NoError(t, err)
	require.NotNil(t, guest, "rolled back")
	user, err := store.Repos().Carts.GetByOwner(ctx, domain.UserOwner(1))
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.TotalQuantity())
}
