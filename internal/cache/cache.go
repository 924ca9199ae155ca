package cache

import (
	"slices"
	"sync"
)

// Config controls aging and capacity.
type Config struct {
	// IdleFrames evicts entries not used for more than this many frames.
	// Zero disables idle eviction; only expired entries and the soft limit
	// remove anything.
	IdleFrames int

	// SoftLimit is the entry count above which the least recently used
	// entries are evicted down to three quarters of the limit. Zero means
	// unlimited.
	SoftLimit int
}

// Cache maps keys to values that are evicted by frame age.
//
// Cache must not be copied after creation (has mutex).
type Cache[K comparable, V any] struct {
	mu      sync.Mutex
	cfg     Config
	entries map[K]*entry[V]
	frame   uint64
	onEvict func(K, V)

	hits, misses, evictions uint64
}

type entry[V any] struct {
	value     V
	lastUse   uint64 // frame of the last Get or Set
	keepUntil uint64 // not evicted before this frame
	expired   bool
}

type victim[K comparable, V any] struct {
	key   K
	value V
}

// New creates a cache. onEvict, if non-nil, is called for every value that
// leaves the cache other than through Get.
func New[K comparable, V any](cfg Config, onEvict func(K, V)) *Cache[K, V] {
	return &Cache[K, V]{
		cfg:     cfg,
		entries: make(map[K]*entry[V]),
		onEvict: onEvict,
	}
}

// Get returns the value for key and marks it used in the current frame.
// A hit clears a pending expiry.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	e.lastUse = c.frame
	e.expired = false
	return e.value, true
}

// Has reports whether key is present without touching it.
func (c *Cache[K, V]) Has(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Set stores value under key. A replaced value is passed to the eviction
// callback.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetKeep(key, value, 0)
}

// SetKeep stores value under key and keeps it for at least frames frames.
// The new entry is never evicted by the soft limit trim this call runs.
func (c *Cache[K, V]) SetKeep(key K, value V, frames int) {
	c.mu.Lock()
	var old []victim[K, V]
	if e, ok := c.entries[key]; ok {
		old = append(old, victim[K, V]{key, e.value})
	}
	e := &entry[V]{value: value, lastUse: c.frame, keepUntil: c.frame + uint64(max(frames, 0))}
	c.entries[key] = e
	old = append(old, c.trimLocked(e)...)
	c.mu.Unlock()

	c.evict(old)
}

// Keep guarantees key survives at least the next frames frames.
func (c *Cache[K, V]) Keep(key K, frames int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.keepUntil = max(e.keepUntil, c.frame+uint64(max(frames, 0)))
	return true
}

// Expire marks key for eviction once its keep window has passed. The
// entry stays readable until then; a Get revives it.
func (c *Cache[K, V]) Expire(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.expired = true
	return true
}

// ExpireFunc expires every key for which match returns true.
func (c *Cache[K, V]) ExpireFunc(match func(K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if match(k) {
			e.expired = true
			n++
		}
	}
	return n
}

// Delete removes key immediately, ignoring its keep window.
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if ok {
		c.evict([]victim[K, V]{{key, e.value}})
	}
	return ok
}

// Advance moves to the next frame and evicts what aged out. Returns the
// number of evicted entries.
func (c *Cache[K, V]) Advance() int {
	c.mu.Lock()
	c.frame++
	var out []victim[K, V]
	for k, e := range c.entries {
		if c.frame < e.keepUntil {
			continue
		}
		idle := c.cfg.IdleFrames > 0 && c.frame-e.lastUse > uint64(c.cfg.IdleFrames)
		if e.expired || idle {
			out = append(out, victim[K, V]{k, e.value})
			delete(c.entries, k)
		}
	}
	out = append(out, c.trimLocked(nil)...)
	c.mu.Unlock()

	c.evict(out)
	return len(out)
}

// Clear evicts everything.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	out := make([]victim[K, V], 0, len(c.entries))
	for k, e := range c.entries {
		out = append(out, victim[K, V]{k, e.value})
	}
	c.entries = make(map[K]*entry[V])
	c.mu.Unlock()

	c.evict(out)
}

// Range calls fn for each entry until fn returns false. fn must not call
// back into the cache.
func (c *Cache[K, V]) Range(fn func(K, V) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !fn(k, e.value) {
			return
		}
	}
}

// Frame returns the current frame number.
func (c *Cache[K, V]) Frame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Len returns the number of entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.entries),
		Capacity:  c.cfg.SoftLimit,
		Frame:     c.frame,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// trimLocked removes least recently used entries outside their keep window
// until the cache is at three quarters of the soft limit. skip is never a
// candidate. Caller must hold c.mu.
func (c *Cache[K, V]) trimLocked(skip *entry[V]) []victim[K, V] {
	if c.cfg.SoftLimit <= 0 || len(c.entries) <= c.cfg.SoftLimit {
		return nil
	}
	target := max(1, c.cfg.SoftLimit*3/4)

	type cand struct {
		key     K
		lastUse uint64
	}
	cands := make([]cand, 0, len(c.entries))
	for k, e := range c.entries {
		if e != skip && c.frame >= e.keepUntil {
			cands = append(cands, cand{k, e.lastUse})
		}
	}
	slices.SortFunc(cands, func(a, b cand) int {
		switch {
		case a.lastUse < b.lastUse:
			return -1
		case a.lastUse > b.lastUse:
			return 1
		}
		return 0
	})

	var out []victim[K, V]
	for _, cd := range cands {
		if len(c.entries) <= target {
			break
		}
		out = append(out, victim[K, V]{cd.key, c.entries[cd.key].value})
		delete(c.entries, cd.key)
	}
	return out
}

func (c *Cache[K, V]) evict(vs []victim[K, V]) {
	if len(vs) == 0 {
		return
	}
	c.mu.Lock()
	c.evictions += uint64(len(vs))
	c.mu.Unlock()
	if c.onEvict == nil {
		return
	}
	for _, v := range vs {
		c.onEvict(v.key, v.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the soft limit, 0 if unlimited.
	Capacity int
	// Frame is the current frame number.
	Frame uint64
	// Hits and Misses count Get results.
	Hits, Misses uint64
	// Evictions counts values handed to the eviction callback.
	Evictions uint64
}
