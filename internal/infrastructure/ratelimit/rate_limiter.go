package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	ActionSendMessage = "send_message"
	ActionCreateRoom  = "create_room"
	ActionAPI         = "api"
)

// Policy allows Burst actions at once and refills one token every Every.
// A zero Burst disables limiting for the action.
type Policy struct {
	Burst int
	Every time.Duration
}

// PerMinute spreads n actions evenly over a minute with a burst of n.
func PerMinute(n int) Policy {
	if n <= 0 {
		return Policy{}
	}
	return Policy{Burst: n, Every: time.Minute / time.Duration(n)}
}

// PerHour spreads n actions evenly over an hour with a burst of n.
func PerHour(n int) Policy {
	if n <= 0 {
		return Policy{}
	}
	return Policy{Burst: n, Every: time.Hour / time.Duration(n)}
}

// TokenBucket represents a token bucket for rate limiting
type TokenBucket struct {
	tokens     int
	maxTokens  int
	refillTime time.Duration
	lastRefill time.Time
	lastUsed   time.Time
	mutex      sync.Mutex
}

func NewTokenBucket(policy Policy, now time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     policy.Burst,
		maxTokens:  policy.Burst,
		refillTime: policy.Every,
		lastRefill: now,
		lastUsed:   now,
	}
}

// Allow consumes a token if one is available. Otherwise it reports how long until the next one.
func (tb *TokenBucket) Allow(now time.Time) (bool, time.Duration) {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens > 0 {
		tb.tokens--
		return true, 0
	}
	return false, tb.lastRefill.Add(tb.refillTime).Sub(now)
}

func (tb *TokenBucket) refill(now time.Time) {
	if tb.refillTime <= 0 {
		tb.tokens = tb.maxTokens
		return
	}
	steps := int(now.Sub(tb.lastRefill) / tb.refillTime)
	if steps <= 0 {
		return
	}
	tb.tokens += steps
	if tb.tokens >= tb.maxTokens {
		tb.tokens = tb.maxTokens
		tb.lastRefill = now
		return
	}
	// keep the partial interval so refills stay evenly spaced
	tb.lastRefill = tb.lastRefill.Add(time.Duration(steps) * tb.refillTime)
}

func (tb *TokenBucket) GetTokens() int {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()
	return tb.tokens
}

// RateLimiter keeps one bucket per user and action.
type RateLimiter struct {
	buckets  map[string]*TokenBucket
	policies map[string]Policy
	fallback Policy
	now      func() time.Time
	mutex    sync.RWMutex
}

func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	p := make(map[string]Policy, len(policies))
	for action, policy := range policies {
		p[action] = policy
	}
	return &RateLimiter{
		buckets:  make(map[string]*TokenBucket),
		policies: p,
		fallback: PerMinute(60),
		now:      time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) policy(action string) Policy {
	if p, ok := rl.policies[action]; ok {
		return p
	}
	return rl.fallback
}

// Allow checks if a user action is allowed
func (rl *RateLimiter) Allow(userID, action string) (bool, time.Duration) {
	policy := rl.policy(action)
	if policy.Burst <= 0 {
		return true, 0
	}

	key := userID + ":" + action
	now := rl.now()

	rl.mutex.RLock()
	bucket, exists := rl.buckets[key]
	rl.mutex.RUnlock()

	if !exists {
		rl.mutex.Lock()
		if bucket, exists = rl.buckets[key]; !exists {
			bucket = NewTokenBucket(policy, now)
			rl.buckets[key] = bucket
		}
		rl.mutex.Unlock()
	}

	return bucket.Allow(now)
}

// GetStatus returns current rate limit status for a user action
func (rl *RateLimiter) GetStatus(userID, action string) (tokens int, maxTokens int) {
	rl.mutex.RLock()
	bucket, exists := rl.buckets[userID+":"+action]
	rl.mutex.RUnlock()

	if !exists {
		return 0, 0
	}
	return bucket.GetTokens(), bucket.maxTokens
}

// Cleanup removes buckets unused for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	removed := 0
	for key, bucket := range rl.buckets {
		bucket.mutex.Lock()
		stale := now.Sub(bucket.lastUsed) > idle
		bucket.mutex.Unlock()
		if stale {
			delete(rl.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine runs Cleanup every interval until ctx is done.
func (rl *RateLimiter) StartCleanupRoutine(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup(time.Hour)
			}
		}
	}()
}
