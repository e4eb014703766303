// Package cache provides the bounded recency window used to suppress
// duplicate alerts. Collectors keep one per source; the dedup pipeline
// stage shares one across all collectors.
package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// RecencyCache remembers the most recently added string keys up to a
// fixed capacity. Once full, every new key evicts the oldest one.
type RecencyCache struct {
	lru *lru.Cache[string, struct{}]
}

// New returns a RecencyCache holding at most capacity keys.
func New(capacity int) (*RecencyCache, error) {
	c, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "recency cache")
	}
	return &RecencyCache{lru: c}, nil
}

// Add records key and reports whether it was absent. The check and the
// insert are a single atomic step, so concurrent adders agree on which
// one saw the key first. A repeated Add does not refresh recency.
func (c *RecencyCache) Add(key string) bool {
	contained, _ := c.lru.ContainsOrAdd(key, struct{}{})
	return !contained
}

// Contains reports whether key is inside the window.
func (c *RecencyCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

// Len returns the number of keys currently held.
func (c *RecencyCache) Len() int {
	return c.lru.Len()
}
