package redis

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/darthbatman/TypeSense/internal/adapter/metrics"
	"github.com/darthbatman/TypeSense/internal/domain"
	"github.com/darthbatman/TypeSense/internal/sentiment"
)

// sharedFetchTimeout bounds a collapsed lookup, which outlives any single
// caller's context.
const sharedFetchTimeout = 30 * time.Second

// ScoreCache is a read-through cache in front of a SentimentScorer. Scores are
// a pure function of the scored text, so entries never need invalidation.
//
// Layer 1 is an in-process map, layer 2 is Redis, layer 3 is the scorer.
// Redis failures degrade to a scorer call; they never fail the lookup.
type ScoreCache struct {
	rdb      goredis.Cmdable
	scorer   domain.SentimentScorer
	mem      *memoryCache
	redisTTL time.Duration
	clock    clockwork.Clock
	group    singleflight.Group
	metrics  *metrics.ScoringMetrics

	fetchTimeout time.Duration
}

var _ domain.SentimentScorer = (*ScoreCache)(nil)

func NewScoreCache(rdb goredis.Cmdable, scorer domain.SentimentScorer, redisTTL, memTTL time.Duration, clock clockwork.Clock, m *metrics.ScoringMetrics) *ScoreCache {
	return &ScoreCache{
		rdb:      rdb,
		scorer:   scorer,
		mem:      newMemoryCache(memTTL, clock),
		redisTTL: redisTTL,
		clock:    clock,
		metrics:  m,

		fetchTimeout: sharedFetchTimeout,
	}
}

// StartEvictionTimer periodically drops expired in-memory entries. Call the
// returned function to stop it.
func (c *ScoreCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := c.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired score cache entries", "count", evicted, "remaining", c.mem.size())
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func (c *ScoreCache) Score(ctx context.Context, text string) (float64, error) {
	key := scoreCacheKey(text)

	if score, ok := c.mem.get(key); ok {
		c.observe("memory", "hit")
		return score, nil
	}
	c.observe("memory", "miss")

	// The shared fetch is detached from the caller that started it. Each
	// waiter still returns on its own context.
	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.fetch(fetchCtx, key, text)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(float64), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (c *ScoreCache) fetch(ctx context.Context, key, text string) (float64, error) {
	if score, ok := c.getCached(ctx, key); ok {
		c.observe("redis", "hit")
		c.mem.set(key, score)
		return score, nil
	}
	c.observe("redis", "miss")

	score, err := c.scorer.Score(ctx, text)
	if err != nil {
		return 0, err
	}

	c.mem.set(key, score)
	c.writeCache(ctx, key, score)
	return score, nil
}

func (c *ScoreCache) getCached(ctx context.Context, key string) (float64, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis score cache GET failed", "key", key, "error", err)
		}
		return 0, false
	}

	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.WarnContext(ctx, "Discarding unparseable cached score", "key", key, "error", err)
		return 0, false
	}
	return score, true
}

func (c *ScoreCache) writeCache(ctx context.Context, key string, score float64) {
	value := strconv.FormatFloat(score, 'g', -1, 64)
	if err := c.rdb.Set(ctx, key, value, c.redisTTL).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis score cache", "key", key, "error", err)
	}
}

func (c *ScoreCache) observe(layer, result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(layer, result).Inc()
	}
}

func scoreCacheKey(text string) string {
	return "score_cache:" + string(sentiment.ContentID(text))
}

// memoryCache is the in-process layer with per-entry expiry.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryCacheEntry struct {
	score     float64
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(key string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.score, true
}

func (c *memoryCache) set(key string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryCacheEntry{
		score:     score,
		expiresAt: c.clock.Now().Add(c.ttl),
	}
}

func (c *memoryCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
