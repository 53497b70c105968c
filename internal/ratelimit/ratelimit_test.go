package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, prefix string) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, prefix)
}

func TestAllowUpToMax(t *testing.T) {
	l := newTestLimiter(t, "rl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "link:1.2.3.4", 3, time.Hour)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should be within the limit", i+1)
		}
	}

	ok, err := l.Allow(ctx, "link:1.2.3.4", 3, time.Hour)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Fatal("fourth request in the window should be denied")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, "rl")
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "link:1.2.3.4", 1, time.Hour); !ok {
		t.Fatal("first key should be allowed")
	}
	if ok, _ := l.Allow(ctx, "link:1.2.3.4", 1, time.Hour); ok {
		t.Fatal("first key should now be exhausted")
	}
	if ok, _ := l.Allow(ctx, "link:5.6.7.8", 1, time.Hour); !ok {
		t.Fatal("a different key should have its own window")
	}
}

func TestPrefixesAreIndependent(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	links := New(client, "link")
	posts := New(client, "post")
	ctx := context.Background()

	if ok, _ := links.Allow(ctx, "u1", 1, time.Hour); !ok {
		t.Fatal("link limiter should allow the first event")
	}
	if ok, _ := links.Allow(ctx, "u1", 1, time.Hour); ok {
		t.Fatal("link limiter should be exhausted")
	}
	if ok, _ := posts.Allow(ctx, "u1", 1, time.Hour); !ok {
		t.Fatal("post limiter must not share the link limiter's counter")
	}
}

func TestWindowKeyCarriesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	l := New(client, "rl")
	window := time.Hour
	if _, err := l.Allow(context.Background(), "u1", 3, window); err != nil {
		t.Fatalf("allow: %v", err)
	}

	key := fmt.Sprintf("rl:u1:%d", time.Now().Unix()/int64(window.Seconds()))
	ttl := mr.TTL(key)
	if ttl <= 0 || ttl > window {
		t.Fatalf("window key should expire within the window, got ttl %v", ttl)
	}
}
