package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemory_RecordAndSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Record(ctx, Event{Key: "10.0.0.5", Allowed: i%4 != 0, Method: "GET", Path: "/api/orders"})
		}(i)
	}
	wg.Wait()

	got, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Allowed != 15 || got.Denied != 5 {
		t.Errorf("Snapshot() = %+v, want allowed=15 denied=5", got)
	}
}

func TestMemory_RecentMinutes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 20, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Record(ctx, Event{Allowed: true, At: now.Add(-20 * time.Minute)})
	m.Record(ctx, Event{Allowed: true, At: now.Add(-2 * time.Minute)})
	m.Record(ctx, Event{Allowed: false, At: now.Add(-2 * time.Minute)})
	m.Record(ctx, Event{Allowed: true, At: now})
	m.Record(ctx, Event{Allowed: true})

	got, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Allowed != 4 || got.Denied != 1 {
		t.Errorf("totals = %d/%d, want 4/1", got.Allowed, got.Denied)
	}

	want := []Minute{
		{Start: time.Date(2026, 3, 1, 12, 28, 0, 0, time.UTC), Allowed: 1, Denied: 1},
		{Start: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC), Allowed: 2},
	}
	if len(got.Recent) != len(want) {
		t.Fatalf("Recent = %+v, want %+v", got.Recent, want)
	}
	for i := range want {
		if !got.Recent[i].Start.Equal(want[i].Start) || got.Recent[i].Allowed != want[i].Allowed || got.Recent[i].Denied != want[i].Denied {
			t.Errorf("Recent[%d] = %+v, want %+v", i, got.Recent[i], want[i])
		}
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if err := n.Record(context.Background(), Event{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if got, _ := n.Snapshot(context.Background()); got.Allowed != 0 || got.Denied != 0 || got.Recent != nil {
		t.Errorf("Snapshot() = %+v, want zero", got)
	}
}

func TestRedis_RecordAndSnapshot(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available:", err)
	}
	defer client.Close()

	prefix := "test:farmgate:stats"
	defer func() {
		iter := client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}()

	r := NewRedis(client, WithPrefix(prefix), WithTTL(time.Minute))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return at.Add(30 * time.Second) }
	for i := 0; i < 3; i++ {
		if err := r.Record(ctx, Event{Allowed: true, At: at}); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	r.Record(ctx, Event{Allowed: false, At: at})

	got, err := r.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got.Allowed != 3 || got.Denied != 1 {
		t.Errorf("Snapshot() = %+v, want allowed=3 denied=1", got)
	}
	if len(got.Recent) != 1 || !got.Recent[0].Start.Equal(at) || got.Recent[0].Allowed != 3 || got.Recent[0].Denied != 1 {
		t.Errorf("Recent = %+v, want one minute at %v with 3/1", got.Recent, at)
	}

	ttl, err := client.TTL(ctx, prefix+":m:202603011200").Result()
	if err != nil || ttl <= 0 {
		t.Errorf("expected minute bucket with ttl, got %v (err %v)", ttl, err)
	}
}
