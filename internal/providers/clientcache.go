package providers

import (
	"crypto/sha256"
	"sync"
)

// DefaultMaxClients bounds how many SDK clients a backend keeps. Server keys
// stay hot; keys supplied per request age out.
const DefaultMaxClients = 32

// clientCache holds SDK clients keyed by a digest of the provider and secret,
// so secrets are never map keys. When full, the least recently used client is
// evicted.
type clientCache[C any] struct {
	mu      sync.Mutex
	limit   int
	clock   uint64
	entries map[[sha256.Size]byte]*cachedClient[C]
}

type cachedClient[C any] struct {
	client   C
	lastUsed uint64
}

func newClientCache[C any](limit int) *clientCache[C] {
	if limit <= 0 {
		limit = DefaultMaxClients
	}
	return &clientCache[C]{limit: limit, entries: make(map[[sha256.Size]byte]*cachedClient[C])}
}

// get returns the client for provider and secret, building it on a miss.
func (c *clientCache[C]) get(provider, secret string, build func() (C, error)) (C, error) {
	id := sha256.Sum256([]byte(provider + "\x00" + secret))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++

	if e, ok := c.entries[id]; ok {
		e.lastUsed = c.clock
		return e.client, nil
	}

	client, err := build()
	if err != nil {
		return client, err
	}
	if len(c.entries) >= c.limit {
		c.evictLocked()
	}
	c.entries[id] = &cachedClient[C]{client: client, lastUsed: c.clock}
	return client, nil
}

func (c *clientCache[C]) evictLocked() {
	var (
		oldest   [sha256.Size]byte
		found    bool
		lastUsed uint64
	)
	for id, e := range c.entries {
		if !found || e.lastUsed < lastUsed {
			oldest, lastUsed, found = id, e.lastUsed, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}

func (c *clientCache[C]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
