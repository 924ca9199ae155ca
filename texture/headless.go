// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpucontext"
)

// ErrInvalidData is returned when pixel data does not match the texture size.
var ErrInvalidData = errors.New("texture: pixel data does not match size")

// HeadlessTexture is an in-memory texture.
type HeadlessTexture struct {
	width, height int
	data          []byte

	mu        sync.Mutex
	destroyed bool
	updates   int
}

// Width returns the texture width in pixels.
func (t *HeadlessTexture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *HeadlessTexture) Height() int { return t.height }

// Pixels returns the uploaded RGBA data.
func (t *HeadlessTexture) Pixels() []byte { return t.data }

// UpdateData replaces the pixel data.
func (t *HeadlessTexture) UpdateData(data []byte) error {
	if len(data) != len(t.data) {
		return ErrInvalidData
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	copy(t.data, data)
	t.updates++
	return nil
}

// Destroy releases the texture.
func (t *HeadlessTexture) Destroy() {
	t.mu.Lock()
	t.destroyed = true
	t.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (t *HeadlessTexture) Destroyed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.destroyed
}

// HeadlessCreator creates HeadlessTextures. It stands in for a GPU context
// in tests and tools that run without a window.
type HeadlessCreator struct {
	mu       sync.Mutex
	textures []*HeadlessTexture
	failNext error
}

// NewTextureFromRGBA copies data into a new texture.
func (c *HeadlessCreator) NewTextureFromRGBA(width, height int, data []byte) (gpucontext.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		return nil, err
	}
	if width <= 0 || height <= 0 || len(data) < width*height*4 {
		return nil, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidData, width, height, len(data))
	}
	t := &HeadlessTexture{width: width, height: height, data: make([]byte, width*height*4)}
	copy(t.data, data)
	c.textures = append(c.textures, t)
	return t, nil
}

// FailNext makes the next NewTextureFromRGBA return err.
func (c *HeadlessCreator) FailNext(err error) {
	c.mu.Lock()
	c.failNext = err
	c.mu.Unlock()
}

// Created returns the number of textures created so far.
func (c *HeadlessCreator) Created() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.textures)
}

// Live returns the number of created textures not yet destroyed.
func (c *HeadlessCreator) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.textures {
		if !t.Destroyed() {
			n++
		}
	}
	return n
}

// HeadlessDrawer records draw calls instead of issuing them.
type HeadlessDrawer struct {
	Creator *HeadlessCreator

	mu    sync.Mutex
	draws int
	last  gpucontext.Texture
}

// NewHeadlessDrawer returns a drawer backed by a fresh HeadlessCreator.
func NewHeadlessDrawer() *HeadlessDrawer {
	return &HeadlessDrawer{Creator: &HeadlessCreator{}}
}

// DrawTexture records tex as drawn.
func (d *HeadlessDrawer) DrawTexture(tex gpucontext.Texture, _, _ float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.draws++
	d.last = tex
	return nil
}

// TextureCreator returns the drawer's creator.
func (d *HeadlessDrawer) TextureCreator() gpucontext.TextureCreator { return d.Creator }

// Draws returns the number of DrawTexture calls and the last texture drawn.
func (d *HeadlessDrawer) Draws() (int, gpucontext.Texture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws, d.last
}

var (
	_ gpucontext.TextureCreator = (*HeadlessCreator)(nil)
	_ gpucontext.TextureDrawer  = (*HeadlessDrawer)(nil)
	_ gpucontext.TextureUpdater = (*HeadlessTexture)(nil)
	_ gpucontext.Texture        = (*HeadlessTexture)(nil)
)
