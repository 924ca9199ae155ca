// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"fmt"
	"image"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/mipcache/internal/cache"
	"github.com/gogpu/mipcache/internal/logging"
)

// Key identifies one uploaded level of one image.
type Key struct {
	Image uint64
	Level int
}

func (k Key) String() string { return fmt.Sprintf("%d#%d", k.Image, k.Level) }

// textureDestroyer matches gogpu textures that own GPU memory.
type textureDestroyer interface {
	Destroy()
}

type resource struct {
	tex    gpucontext.Texture
	format gputypes.TextureFormat
	size   image.Point
	bytes  int
}

// CacheConfig controls texture lifetime.
type CacheConfig struct {
	// IdleFrames destroys textures not bound for more than this many frames.
	// Zero keeps them until expired or evicted by the limit.
	IdleFrames int

	// MaxTextures is a soft limit; above it the least recently bound
	// textures outside their grace window are destroyed. Zero is unlimited.
	MaxTextures int
}

// CacheStats is a snapshot of ResourceCache counters.
type CacheStats struct {
	Textures  int
	Bytes     int64
	Frame     uint64
	Uploads   uint64
	Hits      uint64
	Misses    uint64
	Destroyed uint64

	// FormatBytes breaks Bytes down by texture format.
	FormatBytes map[gputypes.TextureFormat]int64
}

// ResourceCache owns the textures of one rendering context.
type ResourceCache struct {
	c       *cache.Cache[Key, *resource]
	bytes   atomic.Int64
	uploads atomic.Uint64

	mu          sync.Mutex
	formatBytes map[gputypes.TextureFormat]int64
}

// NewResourceCache creates an empty cache.
func NewResourceCache(cfg CacheConfig) *ResourceCache {
	rc := &ResourceCache{formatBytes: make(map[gputypes.TextureFormat]int64)}
	rc.c = cache.New(cache.Config{IdleFrames: cfg.IdleFrames, SoftLimit: cfg.MaxTextures}, rc.destroy)
	return rc
}

func (rc *ResourceCache) destroy(key Key, r *resource) {
	rc.account(r, -1)
	if d, ok := r.tex.(textureDestroyer); ok {
		d.Destroy()
	}
	logging.Logger().Debug("texture: destroyed", "key", key, "size", r.size, "format", r.format)
}

func (rc *ResourceCache) account(r *resource, sign int64) {
	n := sign * int64(r.bytes)
	rc.bytes.Add(n)
	rc.mu.Lock()
	rc.formatBytes[r.format] += n
	if rc.formatBytes[r.format] == 0 {
		delete(rc.formatBytes, r.format)
	}
	rc.mu.Unlock()
}

// Get returns the texture for key and marks it bound this frame.
func (rc *ResourceCache) Get(key Key) (gpucontext.Texture, bool) {
	r, ok := rc.c.Get(key)
	if !ok {
		return nil, false
	}
	return r.tex, true
}

// Has reports whether key has a texture, without marking it bound.
func (rc *ResourceCache) Has(key Key) bool { return rc.c.Has(key) }

// Put registers a texture of the given format and size under key and
// keeps it for at least keep frames. A texture already stored under key
// is destroyed. The new texture is never destroyed by the limit during
// Put itself.
func (rc *ResourceCache) Put(key Key, tex gpucontext.Texture, format gputypes.TextureFormat, size image.Point, keep int) {
	r := &resource{
		tex:    tex,
		format: format,
		size:   size,
		bytes:  size.X * size.Y * bytesPerPixel(format),
	}
	rc.account(r, 1)
	rc.uploads.Add(1)
	rc.c.SetKeep(key, r, keep)
}

// Keep defers destruction of key for at least frames frames.
func (rc *ResourceCache) Keep(key Key, frames int) bool { return rc.c.Keep(key, frames) }

// Expire schedules key for destruction at the first EndFrame past its
// grace window. Binding it again first cancels the expiry.
func (rc *ResourceCache) Expire(key Key) bool { return rc.c.Expire(key) }

// DropImage expires every texture of image id.
func (rc *ResourceCache) DropImage(id uint64) int {
	return rc.c.ExpireFunc(func(k Key) bool { return k.Image == id })
}

// EndFrame advances the frame counter and destroys textures that are
// expired, idle or over the limit. Returns the number destroyed.
func (rc *ResourceCache) EndFrame() int { return rc.c.Advance() }

// Frame returns the current frame number.
func (rc *ResourceCache) Frame() uint64 { return rc.c.Frame() }

// Len returns the number of live textures.
func (rc *ResourceCache) Len() int { return rc.c.Len() }

// Clear destroys every texture, for example when the context is lost.
func (rc *ResourceCache) Clear() { rc.c.Clear() }

// Stats returns a snapshot of the cache counters.
func (rc *ResourceCache) Stats() CacheStats {
	s := rc.c.Stats()
	rc.mu.Lock()
	fb := maps.Clone(rc.formatBytes)
	rc.mu.Unlock()
	return CacheStats{
		Textures:  s.Len,
		Bytes:     rc.bytes.Load(),
		Frame:     s.Frame,
		Uploads:   rc.uploads.Load(),
		Hits:      s.Hits,
		Misses:    s.Misses,
		Destroyed: s.Evictions,

		FormatBytes: fb,
	}
}

func bytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatR16Float:
		return 2
	case gputypes.TextureFormatRGBA16Float:
		return 8
	default:
		return 4
	}
}
