package store

import (
	"context"
	"testing"
	"time"
)

func setupRedisTest(t *testing.T) (*Redis, func()) {
	t.Helper()

	config := RedisConfig{
		URL:    "localhost:6379",
		DB:     15,
		Prefix: "test:farmgate:",
	}

	store, err := NewRedis(config)
	if err != nil {
		t.Skip("Redis not available:", err)
	}

	cleanup := func() {
		ctx := context.Background()
		iter := store.client.Scan(ctx, 0, config.Prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			store.client.Del(ctx, iter.Val())
		}
		store.Close()
	}
	return store, cleanup
}

func TestRedis_Increment(t *testing.T) {
	store, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		count, ttl, err := store.Increment(ctx, "10.0.0.5", time.Minute)
		if err != nil {
			t.Fatalf("Increment() error = %v", err)
		}
		if count != i {
			t.Errorf("count = %d, want %d", count, i)
		}
		if ttl <= 0 || ttl > time.Minute {
			t.Errorf("ttl = %v, want (0, 1m]", ttl)
		}
	}
}

func TestRedis_WindowResets(t *testing.T) {
	store, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	window := 100 * time.Millisecond
	for i := 0; i < 3; i++ {
		store.Increment(ctx, "short", window)
	}

	time.Sleep(150 * time.Millisecond)

	count, _, err := store.Increment(ctx, "short", window)
	if err != nil {
		t.Fatalf("Increment() error = %v", err)
	}
	if count != 1 {
		t.Errorf("count after window = %d, want 1", count)
	}
}

func TestRedis_GetAndReset(t *testing.T) {
	store, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()

	w, err := store.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if w.Count != 0 {
		t.Errorf("count = %d, want 0", w.Count)
	}

	store.Increment(ctx, "k", time.Minute)
	store.Increment(ctx, "k", time.Minute)

	w, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if w.Count != 2 {
		t.Errorf("count = %d, want 2", w.Count)
	}
	if w.Start.IsZero() {
		t.Error("expected window start to be set")
	}

	if err := store.Reset(ctx, "k"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	w, _ = store.Get(ctx, "k")
	if w.Count != 0 {
		t.Errorf("count after reset = %d, want 0", w.Count)
	}
}
