package analytics

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DetailCache memoizes expanded session details by session id. It is an
// explicit value: whoever renders the dashboard creates one and hands it to
// its Board.
type DetailCache struct {
	items *cache.Cache
}

// NewDetailCache returns an empty cache. A ttl of zero or less keeps details
// for the lifetime of the cache.
func NewDetailCache(ttl time.Duration) *DetailCache {
	if ttl <= 0 {
		return &DetailCache{items: cache.New(cache.NoExpiration, 0)}
	}
	return &DetailCache{items: cache.New(ttl, 2*ttl)}
}

// Get returns the memoized detail of sessionID.
func (c *DetailCache) Get(sessionID string) (SessionDetail, bool) {
	v, ok := c.items.Get(sessionID)
	if !ok {
		return SessionDetail{}, false
	}
	d, ok := v.(SessionDetail)
	return d, ok
}

// Put stores d, replacing any previous detail of the same session.
func (c *DetailCache) Put(sessionID string, d SessionDetail) {
	c.items.Set(sessionID, d, cache.DefaultExpiration)
}

// Forget drops the memoized detail of sessionID, forcing the next expand to fetch.
func (c *DetailCache) Forget(sessionID string) {
	c.items.Delete(sessionID)
}

// Len returns the number of memoized details, expired ones included until cleanup.
func (c *DetailCache) Len() int {
	return c.items.ItemCount()
}
