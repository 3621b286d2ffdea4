package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestHelper(t *testing.T, prefix string) (*CacheHelper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheHelper(client, prefix), mr
}

type cachedSeries struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

func TestCacheHelper_SetGetRoundTrip(t *testing.T) {
	helper, _ := newTestHelper(t, "series:")
	ctx := context.Background()

	want := cachedSeries{ID: 1, Title: "Mock Test 1"}
	if err := helper.Set(ctx, "id:1", want, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got cachedSeries
	if err := helper.Get(ctx, "id:1", &got); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCacheHelper_GetMissing(t *testing.T) {
	helper, _ := newTestHelper(t, "series:")

	var dest cachedSeries
	err := helper.Get(context.Background(), "id:404", &dest)
	if !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestCacheHelper_TTLExpiry(t *testing.T) {
	helper, mr := newTestHelper(t, "attempt:")
	ctx := context.Background()

	if err := helper.Set(ctx, "id:1", cachedSeries{ID: 1}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var dest cachedSeries
	if err := helper.Get(ctx, "id:1", &dest); !errors.Is(err, ErrCacheNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestCacheHelper_Delete(t *testing.T) {
	helper, _ := newTestHelper(t, "series:")
	ctx := context.Background()

	_ = helper.Set(ctx, "id:1", cachedSeries{ID: 1}, time.Minute)
	_ = helper.Set(ctx, "id:2", cachedSeries{ID: 2}, time.Minute)

	if err := helper.Delete(ctx, "id:1", "id:2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	for _, key := range []string{"id:1", "id:2"} {
		exists, err := helper.Exists(ctx, key)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			t.Errorf("key %s survived delete", key)
		}
	}
}

func TestCacheHelper_InvalidatePattern(t *testing.T) {
	helper, _ := newTestHelper(t, "stats:")
	ctx := context.Background()

	_ = helper.Set(ctx, "series:1", cachedSeries{ID: 1}, time.Minute)
	_ = helper.Set(ctx, "series:2", cachedSeries{ID: 2}, time.Minute)
	_ = helper.Set(ctx, "other:1", cachedSeries{ID: 3}, time.Minute)

	if err := helper.InvalidatePattern(ctx, "series:*"); err != nil {
		t.Fatalf("InvalidatePattern failed: %v", err)
	}

	if exists, _ := helper.Exists(ctx, "series:1"); exists {
		t.Error("series:1 survived pattern invalidation")
	}
	if exists, _ := helper.Exists(ctx, "series:2"); exists {
		t.Error("series:2 survived pattern invalidation")
	}
	if exists, _ := helper.Exists(ctx, "other:1"); !exists {
		t.Error("other:1 wrongly invalidated")
	}
}

func TestCacheHelper_CacheOrExecute(t *testing.T) {
	helper, _ := newTestHelper(t, "series:")
	ctx := context.Background()

	calls := 0
	fetch := func() (interface{}, error) {
		calls++
		return cachedSeries{ID: 5, Title: "Fetched"}, nil
	}

	var first cachedSeries
	if err := helper.CacheOrExecute(ctx, "id:5", &first, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed: %v", err)
	}
	if calls != 1 || first.Title != "Fetched" {
		t.Fatalf("fetch not executed on miss: calls=%d result=%+v", calls, first)
	}

	// Population is asynchronous; wait for the key to land
	deadline := time.Now().Add(2 * time.Second)
	for {
		if exists, _ := helper.Exists(ctx, "id:5"); exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache never populated after miss")
		}
		time.Sleep(10 * time.Millisecond)
	}

	var second cachedSeries
	if err := helper.CacheOrExecute(ctx, "id:5", &second, time.Minute, fetch); err != nil {
		t.Fatalf("CacheOrExecute failed on hit: %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch ran %d times, want 1", calls)
	}
	if second != first {
		t.Errorf("hit returned %+v, want %+v", second, first)
	}
}

func TestCacheHelper_CacheOrExecuteFetchError(t *testing.T) {
	helper, _ := newTestHelper(t, "series:")

	wantErr := errors.New("db down")
	var dest cachedSeries
	err := helper.CacheOrExecute(context.Background(), "id:9", &dest, time.Minute, func() (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fetch error surfaced, got %v", err)
	}
}

func TestCacheHelper_NilClientDegradesGracefully(t *testing.T) {
	helper := NewCacheHelper(nil, "series:")
	ctx := context.Background()

	if err := helper.Set(ctx, "id:1", cachedSeries{ID: 1}, time.Minute); err != nil {
		t.Errorf("Set with nil client must be a no-op, got %v", err)
	}
	if err := helper.Delete(ctx, "id:1"); err != nil {
		t.Errorf("Delete with nil client must be a no-op, got %v", err)
	}
	if err := helper.InvalidatePattern(ctx, "*"); err != nil {
		t.Errorf("InvalidatePattern with nil client must be a no-op, got %v", err)
	}

	var dest cachedSeries
	if err := helper.Get(ctx, "id:1", &dest); !errors.Is(err, ErrCacheNotAvailable) {
		t.Errorf("expected ErrCacheNotAvailable, got %v", err)
	}

	// Cache-aside still serves the fetch result
	if err := helper.CacheOrExecute(ctx, "id:1", &dest, time.Minute, func() (interface{}, error) {
		return cachedSeries{ID: 1, Title: "Direct"}, nil
	}); err != nil {
		t.Fatalf("CacheOrExecute with nil client failed: %v", err)
	}
	if dest.Title != "Direct" {
		t.Errorf("fetch result not returned: %+v", dest)
	}
}

func TestCacheManager_InvalidateAttempt(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := NewCacheManager(client)
	ctx := context.Background()

	_ = manager.Attempt.Set(ctx, "id:7", cachedSeries{ID: 7}, time.Minute)
	_ = manager.Stats.Set(ctx, "series:3", cachedSeries{ID: 3}, time.Minute)

	manager.InvalidateAttempt(ctx, 7, 3)

	if exists, _ := manager.Attempt.Exists(ctx, "id:7"); exists {
		t.Error("attempt cache survived invalidation")
	}
	if exists, _ := manager.Stats.Exists(ctx, "series:3"); exists {
		t.Error("stats cache survived invalidation")
	}
}
