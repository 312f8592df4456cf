package application

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/example/attendance-tracker/internal/attendance"
)

// ruleCache keeps recently read daily rules so scans do not hit the store for
// configuration that changes a handful of times per event. Misses are cached
// too; writes go through Invalidate.
type ruleCache struct {
	entries *expirable.LRU[attendance.Date, ruleCacheEntry]

	// versions counts invalidations per date. A fill read before the latest
	// invalidation is dropped.
	mu       sync.Mutex
	versions map[attendance.Date]uint64
}

type ruleCacheEntry struct {
	rule  attendance.DailyRule
	found bool
}

func newRuleCache(ttl time.Duration, maxEntries int) *ruleCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	return &ruleCache{
		entries:  expirable.NewLRU[attendance.Date, ruleCacheEntry](maxEntries, nil, ttl),
		versions: make(map[attendance.Date]uint64),
	}
}

// Get returns a copy of the cached rule. found is false for a cached miss.
func (c *ruleCache) Get(date attendance.Date) (rule attendance.DailyRule, found, ok bool) {
	if c == nil {
		return attendance.DailyRule{}, false, false
	}
	entry, ok := c.entries.Get(date)
	if !ok {
		return attendance.DailyRule{}, false, false
	}
	if !entry.found {
		return attendance.DailyRule{}, false, true
	}
	return entry.rule.Clone(), true, true
}

func (c *ruleCache) Store(date attendance.Date, rule *attendance.DailyRule) {
	if c == nil {
		return
	}
	if rule == nil {
		c.entries.Add(date, ruleCacheEntry{})
		return
	}
	c.entries.Add(date, ruleCacheEntry{rule: rule.Clone(), found: true})
}

// Version returns the invalidation count of date. Take it before reading the
// store and pass it to StoreIfCurrent.
func (c *ruleCache) Version(date attendance.Date) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[date]
}

// StoreIfCurrent caches rule unless date was invalidated after version was
// taken. It reports whether the entry was stored.
func (c *ruleCache) StoreIfCurrent(date attendance.Date, version uint64, rule *attendance.DailyRule) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[date] != version {
		return false
	}
	c.Store(date, rule)
	return true
}

func (c *ruleCache) Invalidate(date attendance.Date) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[date]++
	c.entries.Remove(date)
}

func (c *ruleCache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}
