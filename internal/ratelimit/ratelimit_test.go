package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/logger"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestStore(maxKeys int) (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(maxKeys)
	s.now = c.now
	return s, c
}

func TestMemoryStoreFixedWindow(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(10)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		n, _ := s.Incr(ctx, "k", time.Minute)
		if n != i {
			t.Fatalf("count = %d, want %d", n, i)
		}
	}
	c.t = c.t.Add(time.Minute)
	if n, _ := s.Incr(ctx, "k", time.Minute); n != 1 {
		t.Fatalf("count after window = %d, want 1", n)
	}
}

func TestMemoryStoreBoundedKeys(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(2)
	ctx := context.Background()
	_, _ = s.Incr(ctx, "a", time.Minute)
	c.t = c.t.Add(10 * time.Second)
	_, _ = s.Incr(ctx, "b", time.Minute)
	_, _ = s.Incr(ctx, "c", time.Minute)
	if s.Len() != 2 {
		t.Fatalf("len = %d, want 2", s.Len())
	}
	if n, _ := s.Incr(ctx, "b", time.Minute); n != 2 {
		t.Fatalf("b evicted instead of the oldest window")
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	t.Parallel()

	s, c := newTestStore(10)
	ctx := context.Background()
	_, _ = s.Incr(ctx, "short", time.Second)
	_, _ = s.Incr(ctx, "long", time.Hour)
	c.t = c.t.Add(time.Minute)
	if removed := s.Sweep(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
}

func TestLimiterAllow(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(10)
	l := NewLimiter(logger.Discard(), s, config.RateLimitConfig{Enabled: true, Requests: 2, Window: "1m"})
	ctx := context.Background()
	if !l.Allow(ctx, "i-1") || !l.Allow(ctx, "i-1") {
		t.Fatalf("first two events must pass")
	}
	if l.Allow(ctx, "i-1") {
		t.Fatalf("third event must be limited")
	}
	if !l.Allow(ctx, "i-2") {
		t.Fatalf("keys must be independent")
	}
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(10)
	l := NewLimiter(logger.Discard(), s, config.RateLimitConfig{Enabled: false, Requests: 1})
	for i := 0; i < 5; i++ {
		if !l.Allow(context.Background(), "k") {
			t.Fatalf("disabled limiter rejected event %d", i)
		}
	}
	var nilLimiter *Limiter
	if !nilLimiter.Allow(context.Background(), "k") || nilLimiter.Enabled() {
		t.Fatalf("nil limiter must admit everything")
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("down")
}

func TestLimiterFailsOpen(t *testing.T) {
	t.Parallel()

	l := NewLimiter(logger.Discard(), failingStore{}, config.RateLimitConfig{Enabled: true, Requests: 1})
	if !l.Allow(context.Background(), "k") {
		t.Fatalf("store failure must admit the event")
	}
}

func TestMemoryStoreConcurrent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(100)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Incr(context.Background(), "shared", time.Minute)
		}()
	}
	wg.Wait()
	if n, _ := s.Incr(context.Background(), "shared", time.Minute); n != 51 {
		t.Fatalf("count = %d, want 51", n)
	}
}

// stubRedis counts INCR and honours EXPIRE NX in memory. failExpire makes
// that many EXPIRE calls fail first.
type stubRedis struct {
	redis.Cmdable

	mu         sync.Mutex
	counts     map[string]int64
	ttls       map[string]time.Duration
	failExpire int
}

func newStubRedis(failExpire int) *stubRedis {
	return &stubRedis{counts: map[string]int64{}, ttls: map[string]time.Duration{}, failExpire: failExpire}
}

func (s *stubRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	cmd := redis.NewIntCmd(ctx, "incr", key)
	cmd.SetVal(s.counts[key])
	return cmd
}

func (s *stubRedis) ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx, "expire", key, expiration, "nx")
	if s.failExpire > 0 {
		s.failExpire--
		cmd.SetErr(errors.New("i/o timeout"))
		return cmd
	}
	if _, ok := s.ttls[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	s.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func TestRedisStoreRecoversLostExpiry(t *testing.T) {
	t.Parallel()

	client := newStubRedis(1)
	s := NewRedisStore(client, "hub:")
	ctx := context.Background()

	n, err := s.Incr(ctx, "i-1", time.Minute)
	if err == nil {
		t.Fatalf("expected the failed expire to surface")
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	for i := int64(2); i <= 5; i++ {
		n, err := s.Incr(ctx, "i-1", time.Minute)
		if err != nil {
			t.Fatalf("incr %d: %v", i, err)
		}
		if n != i {
			t.Fatalf("count = %d, want %d", n, i)
		}
	}
	if ttl := client.ttls["hub:ratelimit:i-1"]; ttl != time.Minute {
		t.Fatalf("ttl = %v, want %v", ttl, time.Minute)
	}
}

func TestRedisStoreFailedExpireFailsOpen(t *testing.T) {
	t.Parallel()

	l := NewLimiter(logger.Discard(), NewRedisStore(newStubRedis(1), ""), config.RateLimitConfig{Enabled: true, Requests: 1, Window: "1m"})
	ctx := context.Background()
	if !l.Allow(ctx, "k") {
		t.Fatalf("first event must pass")
	}
	if l.Allow(ctx, "k") {
		t.Fatalf("second event must be limited")
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: addr})
	if err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, fmt.Sprintf("test:%s:", uuid.NewString()))
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("count = %d, want %d", n, i)
		}
	}
	ttl, err := client.TTL(ctx, s.prefix+"ratelimit:k").Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
}
