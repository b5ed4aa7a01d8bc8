// Package ratelimit provides the per-conversation send cool-down. Cooldown is
// the in-process implementation; Limiter shares the window through Redis
// using INCR + EXPIRE so several client processes of one user throttle
// together.
package ratelimit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle decides whether an action keyed by key may proceed now.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Rule defines a rate limiting policy: the Redis key prefix, maximum number of
// requests allowed in the window, and the window duration.
type Rule struct {
	Key    string        // Redis key prefix (e.g., "rl:send:")
	Limit  int           // max count in the window
	Window time.Duration // time window
}

// DefaultSendCooldown is how long sending stays disabled after a send.
const DefaultSendCooldown = time.Second

// SendRule allows one send per conversation per window.
func SendRule(window time.Duration) Rule {
	return Rule{Key: "rl:send:", Limit: 1, Window: window}
}

// ---------------------------------------------------------------------------
// In-process cool-down
// ---------------------------------------------------------------------------

// Cooldown blocks a key for a fixed window after each allowed action.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	until  map[string]time.Time
	now    func() time.Time
}

// NewCooldown returns a Cooldown with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		until:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (c *Cooldown) SetClock(now func() time.Time) {
	c.now = now
}

// Allow reports whether key is outside its cool-down and, if so, starts a
// new one.
func (c *Cooldown) Allow(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, ok := c.until[key]; ok && now.Before(until) {
		return false, nil
	}
	c.until[key] = now.Add(c.window)

	// Keep the map from growing with every conversation ever used.
	if len(c.until) > 256 {
		for k, u := range c.until {
			if !now.Before(u) {
				delete(c.until, k)
			}
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Redis-backed limiter
// ---------------------------------------------------------------------------

// Limiter performs rate limiting checks against Redis.
type Limiter struct {
	client *redis.Client
	rule   Rule
}

// NewLimiter creates a Limiter backed by the given Redis client enforcing rule.
func NewLimiter(client *redis.Client, rule Rule) *Limiter {
	return &Limiter{client: client, rule: rule}
}

// Allow increments the counter for key and sets the expiry on first access.
//
// On Redis errors the method fails open (returns true with the error) so that
// a Redis outage never blocks sending.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	rk := l.rule.Key + key

	count, err := l.client.Incr(ctx, rk).Result()
	if err != nil {
		log.Printf("[ratelimit] redis INCR error key=%s: %v (failing open)", rk, err)
		return true, err
	}

	if count == 1 {
		if err := l.client.Expire(ctx, rk, l.rule.Window).Err(); err != nil {
			log.Printf("[ratelimit] redis EXPIRE error key=%s: %v (failing open)", rk, err)
			// Without a TTL the key would block the conversation forever.
			l.client.Del(ctx, rk)
			return true, err
		}
	}

	return int(count) <= l.rule.Limit, nil
}
