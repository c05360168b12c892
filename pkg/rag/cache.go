package rag

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// queryCache is a best-effort LRU with per-entry TTL, keyed by the
// normalized query plus a fingerprint of the filter set. A miss under
// contention simply issues a duplicate backend call.
type queryCache struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List
	entries map[string]*list.Element
}

type cacheEntry struct {
	key     string
	chunks  []Chunk
	expires time.Time
}

func newQueryCache(maxSize int, ttl time.Duration) *queryCache {
	return &queryCache{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (c *queryCache) get(key string) ([]Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)

	out := make([]Chunk, len(entry.chunks))
	copy(out, entry.chunks)
	return out, true
}

func (c *queryCache) put(key string, chunks []Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]Chunk, len(chunks))
	copy(stored, chunks)

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.chunks = stored
		entry.expires = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:     key,
		chunks:  stored,
		expires: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// cacheKey fingerprints the normalized query and the filter set. Filter
// order must not matter, so keys are sorted before hashing.
func cacheKey(normalizedQuery string, k int, minScore float64, filters map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|k=%d|min=%.6f", normalizedQuery, k, minScore)

	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "|%s=%v", key, filters[key])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
