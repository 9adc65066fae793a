package api

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// QueryCache is an in-memory LRU of answers keyed by normalized query text.
// Keys are md5 digests, a fingerprint rather than a security boundary.
type QueryCache struct {
	lru     *expirable.LRU[string, string]
	maxSize int
}

// NewQueryCache creates a cache holding up to size answers for ttl each.
// ttl <= 0 disables expiry.
func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	return &QueryCache{
		lru:     expirable.NewLRU[string, string](size, nil, ttl),
		maxSize: size,
	}
}

func cacheKey(query string) string {
	sum := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer for query, if any.
func (c *QueryCache) Get(query string) (string, bool) {
	return c.lru.Get(cacheKey(query))
}

// Set stores an answer for query.
func (c *QueryCache) Set(query, answer string) {
	c.lru.Add(cacheKey(query), answer)
}

// Purge drops every cached answer.
func (c *QueryCache) Purge() {
	c.lru.Purge()
}

// Len returns the current number of cached answers.
func (c *QueryCache) Len() int {
	return c.lru.Len()
}

// MaxSize returns the configured capacity.
func (c *QueryCache) MaxSize() int {
	return c.maxSize
}
