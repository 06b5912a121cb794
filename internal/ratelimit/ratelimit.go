package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when an action exceeds its rolling-window limit.
var ErrRateLimited = errors.New("rate limited")

// Action names for counter keys. An action plus an identity (username, user
// id, or client ip) addresses one counter.
const (
	ActionRegister = "register"
	ActionLogin    = "login"
	ActionEnroll   = "enroll"
)

// CounterStore counts events per key inside a rolling window.
type CounterStore interface {
	// Incr records one event and returns the window count after recording.
	Incr(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
	// Count returns the window count without recording an event.
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

// Limiter enforces rolling one-hour limits keyed by action and identity.
type Limiter struct {
	store  CounterStore
	window time.Duration
	now    func() time.Time
}

// New creates a limiter over the given counter store.
func New(store CounterStore) *Limiter {
	return &Limiter{store: store, window: time.Hour, now: time.Now}
}

// Allow records an attempt and returns ErrRateLimited once the key exceeds
// limit within the window. Rejected attempts still count.
func (l *Limiter) Allow(ctx context.Context, action, identity string, limit int) error {
	n, err := l.store.Incr(ctx, key(action, identity), l.now(), l.window)
	if err != nil {
		return err
	}
	if n > limit {
		return ErrRateLimited
	}
	return nil
}

// AtLimit reports whether the key already reached limit, without recording.
// Login checks this before touching password hashes.
func (l *Limiter) AtLimit(ctx context.Context, action, identity string, limit int) (bool, error) {
	n, err := l.store.Count(ctx, key(action, identity), l.now(), l.window)
	if err != nil {
		return false, err
	}
	return n >= limit, nil
}

// Record counts one event without enforcing a limit. Failed logins use this.
func (l *Limiter) Record(ctx context.Context, action, identity string) error {
	_, err := l.store.Incr(ctx, key(action, identity), l.now(), l.window)
	return err
}

func key(action, identity string) string {
	return action + ":" + identity
}

// MemoryCounter keeps per-key event timestamps in process memory. Suits
// single-node runs and tests.
type MemoryCounter struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

// NewMemoryCounter creates an empty in-memory counter store.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{events: make(map[string][]time.Time)}
}

// Incr records an event after pruning expired ones.
func (m *MemoryCounter) Incr(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := prune(m.events[key], now.Add(-window))
	kept = append(kept, now)
	m.events[key] = kept
	return len(kept), nil
}

// Count prunes expired events and returns how many remain.
func (m *MemoryCounter) Count(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := prune(m.events[key], now.Add(-window))
	if len(kept) == 0 {
		delete(m.events, key)
		return 0, nil
	}
	m.events[key] = kept
	return len(kept), nil
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, t := range events {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

const counterPrefix = "academy:limits:"

// RedisCounter stores each key as a sorted set scored by event time, so
// counters are shared across api instances. Keys expire one window after
// their last event.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a redis-backed counter store.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr trims the window and records an event in one transaction.
func (r *RedisCounter) Incr(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	k := counterPrefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// Count trims the window and returns the remaining cardinality.
func (r *RedisCounter) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	k := counterPrefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", cutoff)
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}
