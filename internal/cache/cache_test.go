package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type item struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "k", item{Name: "pen", Qty: 2}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got item
	if err := c.Get(ctx, "k", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "pen" || got.Qty != 2 {
		t.Errorf("got %+v", got)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get after Del error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCache_Expiration(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "short", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if ok, _ := c.Exists(ctx, "short"); ok {
		t.Error("expired key should not exist")
	}

	_ = c.Set(ctx, "forever", 1, 0)
	if ok, _ := c.Exists(ctx, "forever"); !ok {
		t.Error("key without expiration should exist")
	}
}

func TestMemoryCache_SetNXConcurrent(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.SetNX(ctx, "idem", "1", time.Minute)
			if err != nil {
				t.Errorf("SetNX failed: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("SetNX winners = %d, want 1", wins)
	}
}

func TestNullCache(t *testing.T) {
	c := NewNullCache()
	ctx := context.Background()

	var v int
	if err := c.Get(ctx, "k", &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get error = %v, want ErrCacheMiss", err)
	}
	if ok, _ := c.SetNX(ctx, "k", 1, time.Minute); !ok {
		t.Error("NullCache.SetNX should always succeed")
	}
}
