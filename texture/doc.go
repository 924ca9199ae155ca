// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package texture keeps pyramid levels resident as GPU textures.
//
// A ResourceCache belongs to one rendering context and owns every texture
// uploaded for it, keyed by image ID and level. Mipmaps binds one pyramid
// into such a cache: on each Bind it picks the texture to draw for a target
// size, uploading a CPU level only when no existing texture is as close to
// the optimal level.
//
//	rc := texture.NewResourceCache(texture.CacheConfig{IdleFrames: 120})
//	mm, _ := texture.New(pyramid, rc, nil)
//
//	app.OnDraw(func(dc gpucontext.TextureDrawer) {
//	    mm.Draw(dc, image.Pt(320, 240), 0, 0)
//	    rc.EndFrame()
//	})
//
// Neither type is safe for concurrent use. Call them from the goroutine that
// owns the rendering context. The Source they read from may be shared.
package texture
