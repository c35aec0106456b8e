// Package cache provides namespaced key/value persistence with a freshness
// policy. Entries carry their own maxAge / stale-while-revalidate windows;
// reads report fresh, stale, expired or miss. The durable SQLite backend is
// swapped for an in-memory map for the rest of the session if it ever fails.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status classifies an entry's age against its policy.
type Status string

const (
	StatusFresh   Status = "fresh"
	StatusStale   Status = "stale"
	StatusExpired Status = "expired"
	StatusMiss    Status = "miss"
)

// Policy controls how long an entry is served as fresh and how long past
// that it may still be served while a revalidation is expected.
type Policy struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
}

// Entry is the stored envelope around a cached value.
type Entry struct {
	Value                json.RawMessage `json:"value"`
	Timestamp            time.Time       `json:"timestamp"`
	MaxAge               time.Duration   `json:"max_age,omitempty"`
	StaleWhileRevalidate time.Duration   `json:"stale_while_revalidate,omitempty"`
}

// Result is what a Read returns. ShouldRevalidate is set for stale and
// expired entries, and also on a miss: a caller that keys fetches off this
// flag alone still refreshes data it has never had.
type Result struct {
	Value            json.RawMessage
	Entry            *Entry
	Status           Status
	Age              time.Duration
	ShouldRevalidate bool
}

// Cache is a namespaced view over a Storage backend. All keys written by a
// Cache are prefixed with its namespace; Clear never touches other
// namespaces.
type Cache struct {
	ns       string
	primary  Storage
	fallback *MemoryStorage
	policy   Policy
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	degraded bool
}

// New creates a cache over the given backend. policy supplies the default
// freshness windows for writes that don't specify their own.
func New(namespace string, primary Storage, policy Policy, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		ns:       namespace,
		primary:  primary,
		fallback: NewMemoryStorage(),
		policy:   policy,
		logger:   logger,
		now:      time.Now,
	}
}

func (c *Cache) storageKey(key string) string {
	return c.ns + ":" + key
}

// Read returns the entry under key along with its freshness classification.
// A corrupt stored entry is purged and reported as a miss.
func (c *Cache) Read(key string) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(key)
}

func (c *Cache) readLocked(key string) Result {
	sk := c.storageKey(key)
	raw, ok := c.get(sk)
	if !ok {
		return Result{Status: StatusMiss, ShouldRevalidate: true}
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Timestamp.IsZero() {
		// Self-healing read: drop what we cannot parse.
		c.logger.Warn("purging corrupt cache entry", zap.String("key", key))
		c.delete(sk)
		return Result{Status: StatusMiss, ShouldRevalidate: true}
	}

	age := c.now().Sub(entry.Timestamp)
	status := c.classify(&entry, age)
	return Result{
		Value:            entry.Value,
		Entry:            &entry,
		Status:           status,
		Age:              age,
		ShouldRevalidate: status == StatusStale || status == StatusExpired,
	}
}

func (c *Cache) classify(entry *Entry, age time.Duration) Status {
	maxAge := entry.MaxAge
	if maxAge == 0 {
		maxAge = c.policy.MaxAge
	}
	swr := entry.StaleWhileRevalidate
	if swr == 0 {
		swr = c.policy.StaleWhileRevalidate
	}
	switch {
	case age <= maxAge:
		return StatusFresh
	case age <= maxAge+swr:
		return StatusStale
	default:
		return StatusExpired
	}
}

// Write stores value under key. A nil policy uses the cache defaults.
func (c *Cache) Write(key string, value any, policy *Policy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(key, value, policy)
}

func (c *Cache) writeLocked(key string, value any, policy *Policy) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	entry := Entry{
		Value:     raw,
		Timestamp: c.now(),
	}
	if policy != nil {
		entry.MaxAge = policy.MaxAge
		entry.StaleWhileRevalidate = policy.StaleWhileRevalidate
	}
	packed, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.set(c.storageKey(key), string(packed))
}

// Mutate atomically transforms the entry under key. fn receives the current
// value (nil on miss) and returns the replacement; returning nil invalidates
// the key. Atomicity is with respect to this cache instance, not across
// processes.
func (c *Cache) Mutate(key string, fn func(prev json.RawMessage) (any, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res := c.readLocked(key)
	var prev json.RawMessage
	if res.Status != StatusMiss {
		prev = res.Value
	}
	next, err := fn(prev)
	if err != nil {
		return err
	}
	if next == nil {
		c.delete(c.storageKey(key))
		return nil
	}
	var policy *Policy
	if res.Entry != nil && (res.Entry.MaxAge != 0 || res.Entry.StaleWhileRevalidate != 0) {
		policy = &Policy{MaxAge: res.Entry.MaxAge, StaleWhileRevalidate: res.Entry.StaleWhileRevalidate}
	}
	return c.writeLocked(key, next, policy)
}

// Invalidate removes the entry under key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(c.storageKey(key))
}

// Clear removes every entry under this cache's namespace. Entries written
// by other namespaces sharing the same backend are untouched.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := c.ns + ":"
	if !c.degraded {
		keys, err := c.primary.Keys(prefix)
		if err != nil {
			c.degrade(err)
		} else {
			for _, k := range keys {
				if err := c.primary.Delete(k); err != nil {
					c.degrade(err)
					break
				}
			}
		}
	}
	keys, _ := c.fallback.Keys(prefix)
	for _, k := range keys {
		_ = c.fallback.Delete(k)
	}
	return nil
}

// get reads through the primary backend with the fallback as overlay.
func (c *Cache) get(sk string) (string, bool) {
	if !c.degraded {
		v, ok, err := c.primary.Get(sk)
		if err != nil {
			c.degrade(err)
		} else if ok {
			return v, true
		}
	}
	v, ok, _ := c.fallback.Get(sk)
	return v, ok
}

func (c *Cache) set(sk, value string) error {
	if !c.degraded {
		if err := c.primary.Set(sk, value); err != nil {
			c.degrade(err)
		} else {
			return nil
		}
	}
	return c.fallback.Set(sk, value)
}

func (c *Cache) delete(sk string) {
	if !c.degraded {
		if err := c.primary.Delete(sk); err != nil {
			c.degrade(err)
		}
	}
	_ = c.fallback.Delete(sk)
}

// degrade switches this instance to the in-memory fallback for the rest of
// the session. Reads and writes keep working but no longer survive restart.
func (c *Cache) degrade(err error) {
	if c.degraded {
		return
	}
	c.degraded = true
	c.logger.Error("cache backend failed, falling back to memory", zap.Error(err))
}

// Get reads and unmarshals the entry under key into T. The zero value of T
// is returned alongside a miss.
func Get[T any](c *Cache, key string) (T, Result, error) {
	var out T
	res := c.Read(key)
	if res.Status == StatusMiss {
		return out, res, nil
	}
	if err := json.Unmarshal(res.Value, &out); err != nil {
		return out, res, fmt.Errorf("unmarshal cache value: %w", err)
	}
	return out, res, nil
}
