package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisLimiter_FixedWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	l := NewRedisLimiter(rdb, Window{Prefix: "rl:test", MaxAttempts: 2, Period: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "a@x.com"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "a@x.com"); !errors.Is(err, ErrLimited) {
		t.Fatalf("third attempt: want ErrLimited, got %v", err)
	}
	if err := l.Allow(ctx, "b@x.com"); err != nil {
		t.Fatalf("other key must have its own budget: %v", err)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Allow(ctx, "a@x.com"); err != nil {
		t.Fatalf("after window: %v", err)
	}
}

func TestRedisLimiter_KeysAreHashed(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Window{Prefix: "rl:test", MaxAttempts: 5, Period: time.Minute}, nil)

	if err := l.Allow(context.Background(), "secret@x.com"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	for _, k := range mr.Keys() {
		if k == "rl:test:secret@x.com" {
			t.Fatal("raw identifier stored in redis")
		}
	}
	if len(mr.Keys()) != 1 {
		t.Fatalf("expected one key, got %v", mr.Keys())
	}
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	closed := NewRedisLimiter(rdb, Window{Prefix: "rl", MaxAttempts: 1, Period: time.Minute}, nil)
	if err := closed.Allow(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("fail closed: want ErrUnavailable, got %v", err)
	}

	open := NewRedisLimiter(rdb, Window{Prefix: "rl", MaxAttempts: 1, Period: time.Minute, FailOpen: true}, nil)
	if err := open.Allow(context.Background(), "k"); err != nil {
		t.Fatalf("fail open: want nil, got %v", err)
	}
}

func TestRedisLimiter_Disabled(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewRedisLimiter(rdb, Window{Prefix: "rl", MaxAttempts: 0, Period: time.Minute}, nil)
	for i := 0; i < 10; i++ {
		if err := l.Allow(context.Background(), "k"); err != nil {
			t.Fatalf("disabled limiter rejected attempt: %v", err)
		}
	}
}
