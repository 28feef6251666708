package guard

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) (*RedisStore, *mr.Miniredis) {
	t.Helper()
	m, err := mr.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ""), m
}

func TestRedisStore_LocksAndClears(t *testing.T) {
	store, m := newRedisStore(t)
	clk := newFakeClock()
	g := New(store, WithClock(clk.Now))
	ctx := context.Background()

	fail(t, g, "198.51.100.1", DefaultThreshold)
	if !locked(t, g, "198.51.100.1") {
		t.Fatal("expected lock")
	}
	if !m.Exists(DefaultRedisPrefix + "198.51.100.1") {
		t.Fatal("expected prefixed key in redis")
	}
	if ttl := m.TTL(DefaultRedisPrefix + "198.51.100.1"); ttl != DefaultWindow {
		t.Fatalf("key ttl = %s, want %s", ttl, DefaultWindow)
	}

	if err := g.Clear(ctx, "198.51.100.1"); err != nil {
		t.Fatal(err)
	}
	if locked(t, g, "198.51.100.1") {
		t.Fatal("cleared address still locked")
	}
}

func TestRedisStore_ExpiresWithWindow(t *testing.T) {
	store, m := newRedisStore(t)
	clk := newFakeClock()
	g := New(store, WithClock(clk.Now), WithThreshold(2), WithWindow(time.Minute))

	fail(t, g, "a", 2)
	m.FastForward(time.Minute + time.Second)
	clk.Advance(time.Minute + time.Second)

	if locked(t, g, "a") {
		t.Fatal("expected unlock once the key expired")
	}
	if rec := fail(t, g, "a", 1); rec.Count != 1 {
		t.Fatalf("count = %d, want 1", rec.Count)
	}
}

func TestRedisStore_RestartsStaleRecord(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Increment(ctx, "a", t0, time.Hour); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Increment(ctx, "a", t0.Add(time.Minute), time.Hour); err != nil {
		t.Fatal(err)
	}
	// key still present in redis but the caller's clock says the window passed
	rec, err := store.Increment(ctx, "a", t0.Add(2*time.Hour), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Count != 1 {
		t.Fatalf("count = %d, want 1", rec.Count)
	}

	got, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("Get: %v %v", ok, err)
	}
	if got.Count != 1 || !got.LastAttempt.Equal(t0.Add(2*time.Hour)) {
		t.Fatalf("stored record = %+v", got)
	}
}

func TestRedisStore_ErrorsWhenDown(t *testing.T) {
	store, m := newRedisStore(t)
	m.Close()
	if _, _, err := store.Get(context.Background(), "a"); err == nil {
		t.Fatal("expected error with redis down")
	}
	if err := store.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error with redis down")
	}
}
