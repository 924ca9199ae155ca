package image

import (
	"image"
	"sync"
)

// Pool recycles Buffers by size.
//
// Mipmap levels of one image family tend to share dimensions, so a purged
// level's buffer is usually the right size for the next decode or scale.
// All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[image.Point][]*Buffer
	maxSize int // max buffers per bucket, 0 = unlimited
}

// NewPool creates a pool keeping at most maxPerBucket buffers of each size.
func NewPool(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[image.Point][]*Buffer),
		maxSize: maxPerBucket,
	}
}

// Get returns a zeroed buffer of the given size, reusing a pooled one when
// available. Returns nil for invalid dimensions.
func (p *Pool) Get(width, height int) *Buffer {
	key := image.Pt(width, height)

	p.mu.Lock()
	if bucket := p.buckets[key]; len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()
		buf.Clear()
		return buf
	}
	p.mu.Unlock()

	buf, err := NewBuffer(width, height)
	if err != nil {
		return nil
	}
	return buf
}

// Put hands buf back for reuse. The caller must not touch buf afterwards.
func (p *Pool) Put(buf *Buffer) {
	if buf == nil {
		return
	}
	key := buf.Size()

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Len returns the number of pooled buffers across all sizes.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

var defaultPool = NewPool(4)

// GetBuffer takes a buffer from the default pool.
func GetBuffer(width, height int) *Buffer {
	return defaultPool.Get(width, height)
}

// PutBuffer returns a buffer to the default pool.
func PutBuffer(buf *Buffer) {
	defaultPool.Put(buf)
}
