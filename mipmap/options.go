// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package mipmap

import (
	"fmt"
	"time"

	"github.com/gogpu/mipcache/internal/diskcache"
	intImage "github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/taskqueue"
)

// Buffer is an RGBA8 pixel buffer holding one level.
type Buffer = intImage.Buffer

// Filter selects how coarser levels are computed.
type Filter = intImage.Filter

// Filter values.
const (
	FilterBox        = intImage.FilterBox
	FilterBilinear   = intImage.FilterBilinear
	FilterCatmullRom = intImage.FilterCatmullRom
)

// Codec selects the on-disk format of cached levels.
type Codec = diskcache.Codec

// Codec values.
const (
	CodecImage  = diskcache.CodecImage
	CodecSnappy = diskcache.CodecSnappy
)

// Default policy values.
const (
	DefaultBandRows      = 256
	DefaultLevel         = 3
	DefaultPreviewBoost  = 100
	DefaultRetryDelay    = time.Second
	DefaultPurgeTime     = 5 * time.Second
	DefaultStalePriority = -1
)

// Options configures pyramids. The zero value is usable.
type Options struct {
	// DiskCache enables reading and writing scaled levels on disk.
	DiskCache bool
	// CacheDir holds cached levels. Empty places them in a ".cache"
	// directory beside each source image.
	CacheDir string
	// CacheCodec is the on-disk format.
	CacheCodec Codec
	// CacheEntries bounds the number of cache files written per process.
	CacheEntries int

	// Filter computes coarser levels. FilterBox runs in BandRows steps.
	Filter Filter
	// BandRows is the number of destination rows a box scaler produces per
	// task step.
	BandRows int

	// DefaultLevel is the first level that gets a priority bump. Levels at
	// or above it are cheap previews and run before finer work.
	DefaultLevel int
	// PreviewBoost is added to the preview requested by StartLoading.
	PreviewBoost float64
	// StalePriority is assigned to queued producers whose level stopped
	// being requested.
	StalePriority float64

	// RetryDelay defers producers created by Retry.
	RetryDelay time.Duration
	// PurgeTime is the idle time after which Store.Update evicts a level.
	PurgeTime time.Duration
}

func (o Options) withDefaults() Options {
	if o.BandRows <= 0 {
		o.BandRows = DefaultBandRows
	}
	if o.DefaultLevel <= 0 {
		o.DefaultLevel = DefaultLevel
	}
	if o.PreviewBoost == 0 {
		o.PreviewBoost = DefaultPreviewBoost
	}
	if o.StalePriority == 0 {
		o.StalePriority = DefaultStalePriority
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.PurgeTime <= 0 {
		o.PurgeTime = DefaultPurgeTime
	}
	return o
}

// env is what pyramids of one store share.
type env struct {
	opts  Options
	queue *taskqueue.Queue
	disk  *diskcache.Cache
}

func newEnv(q *taskqueue.Queue, opts Options) (*env, error) {
	if q == nil {
		return nil, ErrNoQueue
	}
	e := &env{opts: opts.withDefaults(), queue: q}
	if e.opts.DiskCache {
		d, err := diskcache.New(e.opts.CacheDir, e.opts.CacheCodec, e.opts.CacheEntries)
		if err != nil {
			return nil, fmt.Errorf("mipmap: %w", err)
		}
		e.disk = d
	}
	return e, nil
}
