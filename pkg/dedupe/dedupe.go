// Package dedupe provides an in-memory TTL cache that suppresses duplicate
// webhook events. The upstream provider retries delivery on slow or non-2xx
// responses, so the same inbound email can arrive more than once; entries
// are keyed by a content hash of (sender, subject, body text).
//
// Suppression is best effort only. Entries expire after the configured TTL
// and a dropped process forgets everything, which is acceptable because the
// pipeline never promises exactly-once feedback delivery.
package dedupe

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"lukechampine.com/blake3"

	"github.com/mailsage/mailsage/logger"
)

// Entry records one previously handled event.
type Entry struct {
	MessageID string // Provider message id of the feedback email, if delivered
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Cache is a fixed-capacity TTL map with a background sweeper. Readers never
// wait on the sweeper; it takes the same mutex but only removes expired
// entries and returns.
type Cache struct {
	mu             sync.RWMutex
	entries        map[string]*Entry
	ttl            time.Duration
	maxSize        int
	sweepInterval  time.Duration
	stopSweep      chan struct{}
	sweepStopped   chan struct{}
	stopped        bool
	hits           atomic.Uint64
	misses         atomic.Uint64
}

// New creates a dedupe cache and starts its sweeper goroutine.
func New(ttl, sweepInterval time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	c := &Cache{
		entries:       make(map[string]*Entry),
		ttl:           ttl,
		maxSize:       maxSize,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		sweepStopped:  make(chan struct{}),
	}

	go c.sweepLoop()

	logger.Info("Dedupe cache initialized", "ttl", ttl, "sweep_interval", sweepInterval, "max_size", maxSize)

	return c
}

// Key hashes the identifying fields of an inbound event into a cache key.
func Key(sender, subject, text string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Seen reports whether key has an unexpired entry.
func (c *Cache) Seen(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.ExpiresAt) {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return entry, true
}

// Record stores an entry for key, evicting the oldest entry when full.
func (c *Cache) Record(key, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = &Entry{
		MessageID: messageID,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}
}

// evictOldest removes the entry closest to expiry.
// Caller must hold the write lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// sweepLoop periodically removes expired entries.
func (c *Cache) sweepLoop() {
	defer close(c.sweepStopped)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			removed++
		}
	}

	if removed > 0 {
		logger.Debug("Dedupe cache sweep removed expired entries", "removed", removed, "remaining", len(c.entries))
	}
}

// Stop stops the sweeper goroutine.
func (c *Cache) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopSweep)

	select {
	case <-c.sweepStopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns cache statistics.
func (c *Cache) GetStats() (hits, misses uint64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits.Load(), c.misses.Load(), len(c.entries)
}
