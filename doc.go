// Package mipcache loads images in the background and keeps them resident
// at the resolutions they are drawn at.
//
// # Overview
//
// Every image is a pyramid of up to six levels, each half the size of the
// previous one. Levels are decoded and scaled on a single background
// worker in priority order, shared between users by reference count, and
// evicted when nobody has looked at them for a while. On the GPU side a
// binder picks which uploaded level to draw for a target size, preferring
// a texture that is already there over a fresh upload.
//
// # Quick Start
//
//	import "github.com/gogpu/mipcache"
//
//	c, err := mipcache.New(mipcache.WithDiskCache("", mipmap.CodecSnappy))
//	if err != nil { ... }
//	defer c.Close()
//
//	p, err := c.Acquire("photo.jpg")
//	if err != nil { ... }
//	defer c.Release(p)
//
//	rc := texture.NewResourceCache(texture.CacheConfig{IdleFrames: 120})
//	mm, _ := c.NewTextures(p, rc, nil)
//
//	// every frame:
//	mm.Draw(dc, image.Pt(320, 240), 0, 0)
//	c.Update(frameTime)
//	rc.EndFrame()
//
// # Architecture
//
// The library is organized into:
//   - taskqueue: single worker, priority ordered, cooperative cancellation
//   - mipmap: CPU pyramids, their loader and scaler tasks, the shared store
//   - texture: per-context GPU residency and level selection
//   - internal: pixel buffers and codecs, the disk scale cache, config
//
// # Logging
//
// mipcache is silent by default. See SetLogger.
package mipcache
