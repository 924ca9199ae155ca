// Package cache provides a frame-aged cache for resources whose release has
// to wait for the renderer.
//
// Entries age by frames rather than wall time. Callers bump the frame with
// Advance once per rendered frame; entries that were not used for IdleFrames
// frames, or that were explicitly expired, are evicted once their keep window
// has passed. A soft limit evicts the least recently used entries first, but
// never an entry still inside its keep window.
//
//	c := cache.New[Key, *Texture](cache.Config{IdleFrames: 120}, destroy)
//	c.Set(k, tex)
//	c.Keep(k, 10) // survives at least 10 more frames
//	c.Advance()
//
// Cache is safe for concurrent use. The eviction callback runs without the
// cache lock held, so it may call back into the cache.
package cache
