package mipcache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/mipmap"
	"github.com/gogpu/mipcache/taskqueue"
	"github.com/gogpu/mipcache/texture"
)

// Cache bundles a worker queue and a pyramid store.
//
// Cache is safe for concurrent use. Textures are per rendering context;
// create them with NewTextures on the goroutine that owns the context.
type Cache struct {
	queue    *taskqueue.Queue
	store    *mipmap.Store
	textures []texture.Option

	started   atomic.Uint64
	finished  atomic.Uint64
	failed    atomic.Uint64
	highWater atomic.Int64
	closed    atomic.Bool
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Pyramids      int
	ResidentBytes int
	Queue         taskqueue.Stats

	TasksStarted  uint64
	TasksFinished uint64
	TasksFailed   uint64
	// PendingHighWater is the longest the runnable queue has been.
	PendingHighWater int
}

// New creates a cache and starts its worker.
func New(opts ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache{textures: o.textures}
	c.queue = taskqueue.New(
		taskqueue.WithName(o.queueName),
		taskqueue.WithStartedHook(c.onStarted),
		taskqueue.WithFinishedHook(c.onFinished),
		taskqueue.WithMaintenance(c.onMaintenance),
	)
	store, err := mipmap.NewStore(c.queue, o.pyramid)
	if err != nil {
		return nil, fmt.Errorf("mipcache: %w", err)
	}
	c.store = store
	c.queue.Start()

	so := store.Options()
	logging.Logger().Info("mipcache: created", "queue", o.queueName,
		"disk_cache", so.DiskCache, "filter", so.Filter, "purge", so.PurgeTime)
	return c, nil
}

func (c *Cache) onStarted(*taskqueue.Task) { c.started.Add(1) }

func (c *Cache) onFinished(t *taskqueue.Task) {
	if t.State() == taskqueue.StateFailed {
		c.failed.Add(1)
		return
	}
	c.finished.Add(1)
}

// onMaintenance runs on the worker with the queue locked.
func (c *Cache) onMaintenance(m *taskqueue.Maintenance) {
	n := int64(m.Len())
	for {
		cur := c.highWater.Load()
		if n <= cur || c.highWater.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Store returns the underlying pyramid store.
func (c *Cache) Store() *mipmap.Store { return c.store }

// Queue returns the worker queue.
func (c *Cache) Queue() *taskqueue.Queue { return c.queue }

// Acquire returns the shared pyramid of path and starts producing its
// preview. Pair every successful Acquire with a Release.
func (c *Cache) Acquire(path string) (*mipmap.Pyramid, error) {
	return c.store.Acquire(path)
}

// Release gives back a pyramid obtained from Acquire.
func (c *Cache) Release(p *mipmap.Pyramid) {
	c.store.Release(p)
}

// Update advances every pyramid by dt and evicts idle levels. Call it once
// per frame or on a timer. Returns the number of evicted levels.
func (c *Cache) Update(dt time.Duration) int {
	return c.store.Update(dt)
}

// WaitIdle blocks until the worker has nothing left to do.
func (c *Cache) WaitIdle(ctx context.Context) error {
	return c.queue.WaitIdle(ctx)
}

// NewTextures creates a texture binder for p in the resource cache of one
// rendering context. creator may be nil when drawing through
// Mipmaps.Draw.
func (c *Cache) NewTextures(p *mipmap.Pyramid, rc *texture.ResourceCache, creator gpucontext.TextureCreator) (*texture.Mipmaps, error) {
	return texture.New(p, rc, creator, c.textures...)
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	s := Stats{
		Queue:            c.queue.Stats(),
		TasksStarted:     c.started.Load(),
		TasksFinished:    c.finished.Load(),
		TasksFailed:      c.failed.Load(),
		PendingHighWater: int(c.highWater.Load()),
	}
	for _, p := range c.store.Pyramids() {
		s.Pyramids++
		s.ResidentBytes += p.ResidentBytes()
	}
	return s
}

// Close stops the worker. It fails while pyramids are still acquired;
// release them first.
func (c *Cache) Close() error {
	if err := c.store.Shutdown(); err != nil {
		return fmt.Errorf("mipcache: close: %w", err)
	}
	if c.closed.Swap(true) {
		return nil
	}
	c.queue.Stop()
	logging.Logger().Info("mipcache: closed", "tasks", c.finished.Load()+c.failed.Load())
	return nil
}
