// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package mipmap keeps CPU-side image pyramids filled in the background.
//
// # Overview
//
// A Pyramid holds up to MaxLevels versions of one image file, each half the
// size of the previous one. Nothing is decoded up front: StartLoading reads
// the header only, and levels are produced on demand by tasks on a
// taskqueue.Queue. Level 0 comes from a loader that decodes the file; every
// coarser level comes from a scaler that halves the next finer level, or
// reads it back from the on-disk scale cache.
//
//	q := taskqueue.New()
//	q.Start()
//	store, _ := mipmap.NewStore(q, mipmap.Options{DiskCache: true})
//
//	p, err := store.Acquire("photo.jpg")
//	level := p.Optimal(image.Pt(200, 150))
//	p.Request(level)
//	// ... later, on the render loop:
//	if buf := p.Image(p.Closest(image.Pt(200, 150))); buf != nil { ... }
//	store.Update(dt)
//
// # Invariants
//
// At most one producer exists per level. A level is only published once its
// producer finished. Levels not used within the purge time are evicted by
// Update and simply re-requested later.
//
// # Concurrency
//
// All Pyramid and Store methods are safe for concurrent use. Producers run on
// the queue's worker goroutine. Locks are taken in the order Store, Pyramid,
// Queue.
package mipmap
