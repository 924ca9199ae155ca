// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texture

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/mipmap"
)

// Errors returned by Mipmaps.
var (
	// ErrNilSource is returned by New without a pyramid.
	ErrNilSource = errors.New("texture: nil source")

	// ErrNilCache is returned by New without a resource cache.
	ErrNilCache = errors.New("texture: nil resource cache")

	// ErrNoCreator is returned when a level must be uploaded but neither
	// New nor the draw context supplied a TextureCreator.
	ErrNoCreator = errors.New("texture: no texture creator")
)

// Source is the part of a *mipmap.Pyramid that Mipmaps reads.
type Source interface {
	ID() uint64
	MaxLevel() int
	Optimal(size image.Point) int
	Closest(size image.Point) int
	Mark(level int)
	Request(level int)
	Pin(level int) (*mipmap.Buffer, func())
}

var _ Source = (*mipmap.Pyramid)(nil)

// uploadFormat is the format of every pyramid level.
const uploadFormat = gputypes.TextureFormatRGBA8Unorm

// Default binding policy.
const (
	DefaultGraceFrames   = 10
	DefaultPurgeDistance = 2
)

type options struct {
	slack         int
	graceFrames   int
	purgeDistance int
}

// Option configures Mipmaps.
type Option func(*options)

// WithSlack lets an existing texture win over an upload when it is up to n
// levels further from the optimal level than the closest CPU level.
func WithSlack(n int) Option {
	return func(o *options) { o.slack = max(n, 0) }
}

// WithGraceFrames sets how many frames a bound texture survives unused.
func WithGraceFrames(n int) Option {
	return func(o *options) { o.graceFrames = max(n, 0) }
}

// WithPurgeDistance expires textures more than n levels from the optimal
// level on every Bind. Negative disables it.
func WithPurgeDistance(n int) Option {
	return func(o *options) { o.purgeDistance = n }
}

// Mipmaps binds the levels of one pyramid as textures of one context.
type Mipmaps struct {
	src     Source
	rc      *ResourceCache
	creator gpucontext.TextureCreator
	opts    options
	bound   int
	closed  bool
}

// New creates a binder for src that stores textures in rc. creator may be
// nil when every upload happens through Draw, which takes the creator from
// the draw context.
func New(src Source, rc *ResourceCache, creator gpucontext.TextureCreator, opts ...Option) (*Mipmaps, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if rc == nil {
		return nil, ErrNilCache
	}
	o := options{graceFrames: DefaultGraceFrames, purgeDistance: DefaultPurgeDistance}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mipmaps{src: src, rc: rc, creator: creator, opts: o, bound: -1}, nil
}

// Bound returns the level of the last successful Bind, or -1.
func (m *Mipmaps) Bound() int { return m.bound }

func (m *Mipmaps) key(level int) Key { return Key{Image: m.src.ID(), Level: level} }

// Bind returns the texture to draw for size. It reports false while no
// level is resident on either side yet; the caller should draw a
// placeholder and try again next frame.
//
// A texture already on the GPU is preferred over uploading a new one as
// long as it is no further from the optimal level than the closest CPU
// level, plus the configured slack.
func (m *Mipmaps) Bind(size image.Point) (gpucontext.Texture, bool) {
	if m.closed {
		return nil, false
	}
	opt := m.src.Optimal(size)
	if opt < 0 {
		return nil, false
	}
	defer m.purge(opt)

	if tex, ok := m.rc.Get(m.key(opt)); ok {
		m.src.Mark(opt)
		return m.use(opt, tex), true
	}
	m.src.Request(opt)

	mybest := m.nearestTexture(opt)
	closest := m.src.Closest(size)

	if mybest >= 0 && (closest < 0 || absInt(mybest-opt) <= absInt(closest-opt)+m.opts.slack) {
		tex, _ := m.rc.Get(m.key(mybest))
		m.src.Mark(mybest)
		return m.use(mybest, tex), true
	}
	if closest >= 0 {
		tex, err := m.upload(closest)
		if err == nil {
			return m.use(closest, tex), true
		}
		logging.Logger().Warn("texture: upload failed", "image", m.src.ID(), "level", closest, "err", err)
		if mybest >= 0 {
			tex, _ := m.rc.Get(m.key(mybest))
			return m.use(mybest, tex), true
		}
	}
	return nil, false
}

// nearestTexture searches opt+1, opt-1, opt+2, ... for a level that
// already has a texture.
func (m *Mipmaps) nearestTexture(opt int) int {
	maxLevel := m.src.MaxLevel()
	for d := 1; d <= maxLevel; d++ {
		if l := opt + d; l <= maxLevel && m.rc.Has(m.key(l)) {
			return l
		}
		if l := opt - d; l >= 0 && m.rc.Has(m.key(l)) {
			return l
		}
	}
	return -1
}

func (m *Mipmaps) upload(level int) (gpucontext.Texture, error) {
	if m.creator == nil {
		return nil, ErrNoCreator
	}
	buf, unpin := m.src.Pin(level)
	defer unpin()
	if buf == nil {
		return nil, fmt.Errorf("texture: level %d evicted before upload", level)
	}
	tex, err := m.creator.NewTextureFromRGBA(buf.Width(), buf.Height(), buf.Pix())
	if err != nil {
		return nil, fmt.Errorf("texture: upload level %d: %w", level, err)
	}
	m.rc.Put(m.key(level), tex, uploadFormat, buf.Size(), m.opts.graceFrames)
	m.src.Mark(level)
	logging.Logger().Debug("texture: uploaded", "image", m.src.ID(), "level", level, "size", buf.Size())
	return tex, nil
}

func (m *Mipmaps) use(level int, tex gpucontext.Texture) gpucontext.Texture {
	m.rc.Keep(m.key(level), m.opts.graceFrames)
	m.bound = level
	return tex
}

// purge expires textures that drifted too far from opt.
func (m *Mipmaps) purge(opt int) {
	if m.opts.purgeDistance < 0 {
		return
	}
	for l := 0; l <= m.src.MaxLevel(); l++ {
		if l != m.bound && absInt(l-opt) > m.opts.purgeDistance {
			m.rc.Expire(m.key(l))
		}
	}
}

// Draw binds size and draws the texture at (x, y). It reports false with
// a nil error when nothing could be bound yet.
func (m *Mipmaps) Draw(dc gpucontext.TextureDrawer, size image.Point, x, y float32) (bool, error) {
	if m.creator == nil {
		m.creator = dc.TextureCreator()
	}
	tex, ok := m.Bind(size)
	if !ok {
		return false, nil
	}
	if err := dc.DrawTexture(tex, x, y); err != nil {
		return true, fmt.Errorf("texture: draw: %w", err)
	}
	return true, nil
}

// Close expires every texture of the image. Textures still inside their
// grace window live until it ends.
func (m *Mipmaps) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.rc.DropImage(m.src.ID())
	m.bound = -1
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
