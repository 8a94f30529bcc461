package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/envutil"
	"github.com/franaraujo77/ai-video-generator-sub001/internal/platform/logger"
)

// TokenPool extends per-process admission with a cross-worker ceiling
// shared over Redis, for deployments running more than one Worker
// Runtime process against the same Task Store (spec.md §9 Open
// Questions: "global concurrency would need a shared counter"). It is
// optional: when REDIS_ADDR is unset, NewTokenPool returns nil and the
// Governor's in-process caps remain the only admission control.
//
// Grounded on the teacher's internal/services/sse_bus.go redisSSEBus,
// which builds a *redis.Client from REDIS_ADDR and pings it once at
// construction rather than lazily on first use.
type TokenPool struct {
	log    *logger.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewTokenPool dials Redis if REDIS_ADDR is set and reachable. A dial
// failure is logged and treated the same as "not configured": the
// pool's methods all become no-ops that admit freely, so a Redis outage
// degrades to process-local-only admission instead of stalling the
// pipeline.
func NewTokenPool(log *logger.Logger) *TokenPool {
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis token pool unreachable, falling back to process-local admission only", "addr", addr, "error", err)
		_ = client.Close()
		return nil
	}

	return &TokenPool{
		log:    log.With("component", "TokenPool"),
		client: client,
		ttl:    envutil.Duration("GOVERNOR_TOKEN_TTL", 10*time.Minute),
	}
}

func (p *TokenPool) key(c Class) string {
	return fmt.Sprintf("pipeline:governor:%s", c)
}

// Acquire increments the shared counter for class c and reports whether
// the result stayed within limit. A rejected increment is rolled back
// immediately so the counter never drifts above the live admitted set.
func (p *TokenPool) Acquire(ctx context.Context, c Class, limit int) (bool, error) {
	if p == nil {
		return true, nil
	}
	key := p.key(c)
	n, err := p.client.Incr(ctx, key).Result()
	if err != nil {
		p.log.Warn("token pool incr failed, admitting without global coordination", "class", c, "error", err)
		return true, nil
	}
	if n == 1 {
		p.client.Expire(ctx, key, p.ttl)
	}
	if int(n) > limit {
		p.client.Decr(ctx, key)
		return false, nil
	}
	return true, nil
}

// Release decrements the shared counter for class c, clamped at zero by
// the same Lua-free pattern the teacher's sse_bus uses for its
// subscriber counts: a guarded decrement followed by a floor check.
func (p *TokenPool) Release(ctx context.Context, c Class) {
	if p == nil {
		return
	}
	key := p.key(c)
	n, err := p.client.Decr(ctx, key).Result()
	if err != nil {
		return
	}
	if n < 0 {
		p.client.Set(ctx, key, 0, p.ttl)
	}
}

// Close releases the underlying connection pool. Safe to call on a nil
// *TokenPool.
func (p *TokenPool) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
