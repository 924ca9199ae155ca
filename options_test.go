package mipcache

import (
	"testing"
	"time"

	"github.com/gogpu/mipcache/mipmap"
	"github.com/gogpu/mipcache/texture"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.queueName != "mipcache" {
		t.Errorf("queueName = %q, want mipcache", o.queueName)
	}
	if o.pyramid.DiskCache {
		t.Error("disk cache should be off by default")
	}
}

func TestOptionsApply(t *testing.T) {
	o := defaultOptions()
	for _, opt := range []Option{
		WithQueueName("thumbs"),
		WithDiskCache("/tmp/c", mipmap.CodecSnappy),
		WithCacheEntries(50),
		WithFilter(mipmap.FilterCatmullRom),
		WithBandRows(16),
		WithPurgeTime(time.Minute),
		WithRetryDelay(time.Millisecond),
		WithTextureOptions(texture.WithSlack(1), texture.WithGraceFrames(4)),
	} {
		opt(&o)
	}

	p := o.pyramid
	if o.queueName != "thumbs" || !p.DiskCache || p.CacheDir != "/tmp/c" || p.CacheCodec != mipmap.CodecSnappy {
		t.Errorf("disk cache options not applied: %+v", p)
	}
	if p.CacheEntries != 50 || p.Filter != mipmap.FilterCatmullRom || p.BandRows != 16 {
		t.Errorf("scaling options not applied: %+v", p)
	}
	if p.PurgeTime != time.Minute || p.RetryDelay != time.Millisecond {
		t.Errorf("timing options not applied: %+v", p)
	}
	if len(o.textures) != 2 {
		t.Errorf("len(textures) = %d, want 2", len(o.textures))
	}
}

func TestWithPyramidOptionsReplaces(t *testing.T) {
	o := defaultOptions()
	WithBandRows(16)(&o)
	WithPyramidOptions(mipmap.Options{PurgeTime: time.Hour})(&o)
	if o.pyramid.BandRows != 0 || o.pyramid.PurgeTime != time.Hour {
		t.Errorf("pyramid = %+v", o.pyramid)
	}
}
