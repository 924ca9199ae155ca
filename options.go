package mipcache

import (
	"time"

	"github.com/gogpu/mipcache/mipmap"
	"github.com/gogpu/mipcache/texture"
)

// Option configures a Cache during creation.
// Use functional options to customize Cache behavior.
//
// Example:
//
//	// In-memory only, default policy
//	c, _ := mipcache.New()
//
//	// Persist scaled levels and keep them around longer
//	c, _ := mipcache.New(
//	    mipcache.WithDiskCache("/var/cache/thumbs", mipmap.CodecSnappy),
//	    mipcache.WithPurgeTime(30*time.Second),
//	)
type Option func(*options)

// options holds optional configuration for Cache creation.
type options struct {
	queueName string
	pyramid   mipmap.Options
	textures  []texture.Option
}

// defaultOptions returns the default cache options.
func defaultOptions() options {
	return options{queueName: "mipcache"}
}

// WithQueueName names the worker queue in log output.
func WithQueueName(name string) Option {
	return func(o *options) {
		o.queueName = name
	}
}

// WithDiskCache stores scaled levels under dir with the given codec. An
// empty dir keeps a ".cache" directory beside each source image.
func WithDiskCache(dir string, codec mipmap.Codec) Option {
	return func(o *options) {
		o.pyramid.DiskCache = true
		o.pyramid.CacheDir = dir
		o.pyramid.CacheCodec = codec
	}
}

// WithCacheEntries bounds the number of disk cache files this process keeps.
func WithCacheEntries(n int) Option {
	return func(o *options) {
		o.pyramid.CacheEntries = n
	}
}

// WithFilter selects the filter used to compute coarser levels.
func WithFilter(f mipmap.Filter) Option {
	return func(o *options) {
		o.pyramid.Filter = f
	}
}

// WithBandRows sets how many rows a box scaler produces per worker step.
// Smaller bands let urgent work interleave sooner.
func WithBandRows(n int) Option {
	return func(o *options) {
		o.pyramid.BandRows = n
	}
}

// WithPurgeTime sets how long a level may stay unused before Update
// evicts it.
func WithPurgeTime(d time.Duration) Option {
	return func(o *options) {
		o.pyramid.PurgeTime = d
	}
}

// WithRetryDelay sets the delay before a retried level is produced again.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		o.pyramid.RetryDelay = d
	}
}

// WithPyramidOptions replaces every pyramid setting at once.
func WithPyramidOptions(po mipmap.Options) Option {
	return func(o *options) {
		o.pyramid = po
	}
}

// WithTextureOptions sets the options passed to every binder created by
// NewTextures.
func WithTextureOptions(opts ...texture.Option) Option {
	return func(o *options) {
		o.textures = append(o.textures, opts...)
	}
}
