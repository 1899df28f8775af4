package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisCache_Basic(t *testing.T) {
	// 需要本地 Redis，连接失败时跳过
	if testing.Short() {
		t.Skip("Skipping Redis test in short mode")
	}

	c, err := NewRedisCache("localhost:6379", "", 1)
	if err != nil {
		t.Skipf("Skipping Redis test, cannot connect: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	keys := []string{"test:cart_shop:key1", "test:cart_shop:nx"}
	_ = c.Del(ctx, keys...)
	defer c.Del(ctx, keys...)

	t.Run("Set and Get", func(t *testing.T) {
		if err := c.Set(ctx, keys[0], item{Name: "pen", Qty: 1}, time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		var got item
		if err := c.Get(ctx, keys[0], &got); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Name != "pen" {
			t.Errorf("Expected name=pen, got %v", got.Name)
		}
	})

	t.Run("SetNX", func(t *testing.T) {
		ok, err := c.SetNX(ctx, keys[1], "first", time.Minute)
		if err != nil || !ok {
			t.Fatalf("first SetNX = %v, %v", ok, err)
		}
		ok, err = c.SetNX(ctx, keys[1], "second", time.Minute)
		if err != nil || ok {
			t.Fatalf("second SetNX = %v, %v", ok, err)
		}
		var got string
		_ = c.Get(ctx, keys[1], &got)
		if got != "first" {
			t.Errorf("Expected 'first', got %v", got)
		}
	})

	t.Run("Miss", func(t *testing.T) {
		var got string
		if err := c.Get(ctx, "test:cart_shop:absent", &got); !errors.Is(err, ErrCacheMiss) {
			t.Errorf("Get error = %v, want ErrCacheMiss", err)
		}
	})
}
