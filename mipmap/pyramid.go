// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package mipmap

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	intImage "github.com/gogpu/mipcache/internal/image"
	"github.com/gogpu/mipcache/internal/logging"
	"github.com/gogpu/mipcache/taskqueue"
)

// Errors returned by pyramids and stores.
var (
	// ErrNoQueue is returned when a pyramid or store is built without a queue.
	ErrNoQueue = errors.New("mipmap: nil task queue")

	// ErrStarted is returned by StartLoading on a pyramid that already loaded a header.
	ErrStarted = errors.New("mipmap: already started")

	// ErrClosed is returned by StartLoading after Close.
	ErrClosed = errors.New("mipmap: pyramid closed")

	// ErrSizeChanged is reported when the decoded image does not match its header.
	ErrSizeChanged = errors.New("mipmap: decoded size differs from header")

	// ErrLiveReferences is returned by Store.Shutdown while pyramids are still acquired.
	ErrLiveReferences = errors.New("mipmap: pyramids still referenced")
)

var nextID atomic.Uint64

// item is the slot for one level.
type item struct {
	state     LevelState
	producer  *taskqueue.Task
	buf       *Buffer
	lastUsed  time.Duration // pyramid clock
	requested bool
	reqPrio   float64
	readers   int       // pins: scaler sources and consumer reads
	noDisk    bool      // the disk copy failed to load; build from the chain
	retryAt   time.Time // queue clock; producers are deferred until then
}

// Pyramid is the CPU-side mipmap set of one image file.
type Pyramid struct {
	id  uint64
	env *env

	mu         sync.Mutex
	path       string
	format     string
	native     image.Point
	maxLevel   int
	items      [MaxLevels]item
	clock      time.Duration
	priority   float64
	closed     bool
}

// NewPyramid creates an empty pyramid whose producers run on q.
func NewPyramid(q *taskqueue.Queue, opts Options) (*Pyramid, error) {
	e, err := newEnv(q, opts)
	if err != nil {
		return nil, err
	}
	return newPyramid(e), nil
}

func newPyramid(e *env) *Pyramid {
	return &Pyramid{id: nextID.Add(1), env: e, maxLevel: -1}
}

// StartLoading reads the header of path to learn the native size. With
// immediate set, the coarsest level is requested right away at preview
// priority.
func (p *Pyramid) StartLoading(path string, immediate bool) error {
	hdr, err := intImage.DecodeConfigFile(path)
	if err != nil {
		return fmt.Errorf("mipmap: start %s: %w", path, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return ErrClosed
	case p.maxLevel >= 0:
		return ErrStarted
	}
	p.path = path
	p.format = hdr.Format
	p.native = hdr.Size()
	p.maxLevel = maxLevelFor(p.native)
	logging.Logger().Debug("mipmap: header read", "path", path,
		"width", p.native.X, "height", p.native.Y, "levels", p.maxLevel+1)

	if immediate {
		p.requestLocked(p.maxLevel, p.env.opts.PreviewBoost)
	}
	return nil
}

// ID returns a process-unique identifier, stable for the pyramid's lifetime.
func (p *Pyramid) ID() uint64 { return p.id }

// Filename returns the source path.
func (p *Pyramid) Filename() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

// NativeSize returns the level 0 dimensions, or the zero point before
// StartLoading.
func (p *Pyramid) NativeSize() image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.native
}

// MaxLevel returns the coarsest valid level, or -1 before StartLoading.
func (p *Pyramid) MaxLevel() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxLevel
}

// LevelSize returns the dimensions of level.
func (p *Pyramid) LevelSize(level int) image.Point {
	p.mu.Lock()
	defer p.mu.Unlock()
	return LevelSize(p.native, level)
}

// Optimal returns the coarsest level that still covers size, or -1 before
// StartLoading. It never touches pixel data.
func (p *Pyramid) Optimal(size image.Point) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optimalLocked(size)
}

func (p *Pyramid) optimalLocked(size image.Point) int {
	if p.maxLevel < 0 {
		return -1
	}
	return optimalLevel(p.native, p.maxLevel, size)
}

// Closest returns the resident level nearest to Optimal(size), preferring
// the finer one on ties, or -1 when nothing is resident.
func (p *Pyramid) Closest(size image.Point) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	opt := p.optimalLocked(size)
	if opt < 0 {
		return -1
	}
	best := -1
	for l := 0; l <= p.maxLevel; l++ {
		if p.items[l].state != LevelFinished {
			continue
		}
		if best < 0 || absInt(l-opt) < absInt(best-opt) {
			best = l
		}
	}
	return best
}

// State returns the production state of level.
func (p *Pyramid) State(level int) LevelState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(level) {
		return LevelWaiting
	}
	return p.items[level].state
}

// Image returns the pixels of level if resident, else nil. The buffer may
// be recycled by a later Update; use Pin to read it from another goroutine.
func (p *Pyramid) Image(level int) *Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(level) || p.items[level].state != LevelFinished {
		return nil
	}
	return p.items[level].buf
}

// Pin returns the pixels of level and keeps them from being evicted until
// the returned func is called. Returns nil and a no-op if not resident.
func (p *Pyramid) Pin(level int) (*Buffer, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(level) || p.items[level].state != LevelFinished {
		return nil, func() {}
	}
	it := &p.items[level]
	it.readers++
	var once sync.Once
	return it.buf, func() { once.Do(func() { p.unpin(level) }) }
}

func (p *Pyramid) unpin(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it := &p.items[level]
	it.readers--
	if p.closed && it.readers == 0 && it.buf != nil {
		intImage.PutBuffer(it.buf)
		it.buf = nil
	}
}

// Mark records that level was used now, postponing its eviction.
func (p *Pyramid) Mark(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.validLocked(level) {
		p.items[level].lastUsed = p.clock
	}
}

// Request asks for level to become resident and returns immediately.
// Missing finer levels are requested along the way.
func (p *Pyramid) Request(level int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.validLocked(level) {
		p.requestLocked(level, 0)
	}
}

// SetPriority sets the base priority of this pyramid's producers, for
// example higher for images on screen. Queued producers are re-ranked.
func (p *Pyramid) SetPriority(base float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.priority = base
	for l := 0; l <= p.maxLevel; l++ {
		it := &p.items[l]
		if it.producer != nil && it.requested {
			it.reqPrio = p.priorityLocked(l, 0)
			p.env.queue.SetPriority(it.producer, it.reqPrio)
		}
	}
}

// Retry resets a failed level so it is produced again after the retry
// delay. Returns false if level had not failed.
func (p *Pyramid) Retry(level int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.validLocked(level) || p.items[level].state != LevelFailed {
		return false
	}
	at := p.env.queue.Now().Add(p.env.opts.RetryDelay)
	for l := level; l >= 0 && p.items[l].state == LevelFailed; l-- {
		p.items[l].state = LevelWaiting
		p.items[l].noDisk = false
		p.items[l].retryAt = at
	}
	p.requestLocked(level, 0)
	return true
}

// Active reports whether any producer is queued or running.
func (p *Pyramid) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for l := range p.items {
		if p.items[l].producer != nil {
			return true
		}
	}
	return false
}

// ResidentBytes returns the memory held by resident levels.
func (p *Pyramid) ResidentBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for l := range p.items {
		if b := p.items[l].buf; b != nil {
			n += b.ByteSize()
		}
	}
	return n
}

// LevelInfo describes one level for diagnostics.
type LevelInfo struct {
	Level     int
	Size      image.Point
	State     LevelState
	Requested bool
	Idle      time.Duration
}

// Levels returns a snapshot of every valid level.
func (p *Pyramid) Levels() []LevelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]LevelInfo, 0, p.maxLevel+1)
	for l := 0; l <= p.maxLevel; l++ {
		it := &p.items[l]
		out = append(out, LevelInfo{
			Level:     l,
			Size:      LevelSize(p.native, l),
			State:     it.state,
			Requested: it.requested,
			Idle:      p.clock - it.lastUsed,
		})
	}
	return out
}

// Update advances the pyramid clock by dt, evicts levels idle for at least
// purge, and keeps producers for requested levels alive. Returns the number
// of evicted levels.
func (p *Pyramid) Update(dt, purge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.maxLevel < 0 {
		return 0
	}
	p.clock += dt

	evicted := 0
	for l := 0; l <= p.maxLevel; l++ {
		it := &p.items[l]
		idle := p.clock - it.lastUsed
		switch {
		case it.state == LevelFinished && it.producer == nil && it.readers == 0 && idle >= purge:
			intImage.PutBuffer(it.buf)
			it.buf = nil
			it.state = LevelWaiting
			it.requested = false
			evicted++
			logging.Logger().Debug("mipmap: level evicted", "path", p.path, "level", l, "idle", idle)

		case it.requested && idle >= purge:
			it.requested = false
			if it.producer != nil {
				p.env.queue.SetPriority(it.producer, p.env.opts.StalePriority)
			}

		case it.requested && it.state == LevelWaiting && it.producer == nil:
			p.ensureLocked(l, it.reqPrio)
		}
	}
	return evicted
}

// Close cancels outstanding producers and frees resident levels that no
// one is reading. The Store calls it when the last reference is released.
func (p *Pyramid) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for l := range p.items {
		it := &p.items[l]
		if it.producer != nil {
			it.producer.Release()
		}
		if it.buf != nil && it.readers == 0 {
			intImage.PutBuffer(it.buf)
			it.buf = nil
		}
		it.requested = false
	}
}

func (p *Pyramid) validLocked(level int) bool {
	return level >= 0 && level <= p.maxLevel
}

// priorityLocked ranks a producer for level. Levels at or above
// DefaultLevel get 2, 4, 8, ... on top so previews come first.
func (p *Pyramid) priorityLocked(level int, boost float64) float64 {
	prio := p.priority + boost
	if d := p.env.opts.DefaultLevel; level >= d {
		prio += float64(int(1) << (level - d + 1))
	}
	return prio
}

func (p *Pyramid) requestLocked(level int, boost float64) {
	it := &p.items[level]
	it.requested = true
	it.lastUsed = p.clock
	prio := p.priorityLocked(level, boost)
	if it.producer != nil {
		// An in-flight request is never demoted by a weaker one.
		prio = max(prio, it.reqPrio)
	}
	it.reqPrio = prio
	p.ensureLocked(level, prio)
}

// ensureLocked makes sure a producer exists that will eventually make level
// resident. It walks toward level 0 until it finds a level that can be
// produced now; the rest of the chain is created as levels finish.
func (p *Pyramid) ensureLocked(level int, prio float64) {
	if p.closed {
		return
	}
	it := &p.items[level]
	switch {
	case it.state == LevelFinished || it.state == LevelFailed:
		return
	case it.producer != nil:
		if prio > it.producer.Priority() {
			p.env.queue.SetPriority(it.producer, prio)
		}
		return
	}

	if level == 0 {
		p.spawnLocked(0, &loader{p: p, path: p.path}, prio)
		return
	}
	src := &p.items[level-1]
	if src.state == LevelFinished {
		src.readers++
		p.spawnLocked(level, &scaler{p: p, level: level, src: src.buf}, prio)
		return
	}
	// The worker checks the disk copy; a miss falls back to the chain.
	if p.env.disk != nil && !it.noDisk {
		p.spawnLocked(level, &scaler{p: p, level: level, fromDisk: true}, prio)
		return
	}

	switch src.state {
	case LevelFailed:
		it.state = LevelFailed
	default:
		src.requested = true
		src.lastUsed = p.clock
		src.reqPrio = max(src.reqPrio, prio)
		p.ensureLocked(level-1, prio)
	}
}

func (p *Pyramid) spawnLocked(level int, w taskqueue.Work, prio float64) {
	opts := []taskqueue.TaskOption{
		taskqueue.Named(fmt.Sprintf("%s#%d", filepath.Base(p.path), level)),
	}
	it := &p.items[level]
	if !it.retryAt.IsZero() {
		if p.env.queue.Now().Before(it.retryAt) {
			opts = append(opts, taskqueue.At(it.retryAt))
		}
		it.retryAt = time.Time{}
	}
	t := taskqueue.NewTask(w, opts...)
	it.producer = t
	it.state = LevelWorking
	p.env.queue.Add(t, prio)
}

// publish installs the result of the producer for level. A nil buf marks
// the level failed along with requested levels that depended on it.
func (p *Pyramid) publish(level int, buf *Buffer, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it := &p.items[level]
	it.producer = nil
	if p.closed {
		if buf != nil {
			intImage.PutBuffer(buf)
		}
		return
	}
	log := logging.Logger()
	if buf == nil {
		it.state = LevelFailed
		log.Warn("mipmap: level failed", "path", p.path, "level", level, "err", cause)
		for l := level + 1; l <= p.maxLevel; l++ {
			dep := &p.items[l]
			if !dep.requested || dep.state != LevelWaiting || dep.producer != nil {
				break
			}
			dep.state = LevelFailed
		}
		return
	}

	it.buf = buf
	it.state = LevelFinished
	it.lastUsed = p.clock
	log.Debug("mipmap: level ready", "path", p.path, "level", level, "size", buf.Size())

	if next := level + 1; next <= p.maxLevel {
		if dep := &p.items[next]; dep.requested && dep.state == LevelWaiting {
			p.ensureLocked(next, dep.reqPrio)
		}
	}
}

// diskMiss reverts a level whose cached copy could not be used and
// rebuilds it from the chain.
func (p *Pyramid) diskMiss(level int, cause error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it := &p.items[level]
	it.producer = nil
	it.state = LevelWaiting
	it.noDisk = true
	if p.closed {
		return
	}
	logging.Logger().Debug("mipmap: disk cache unusable", "path", p.path, "level", level, "err", cause)
	if it.requested {
		p.ensureLocked(level, it.reqPrio)
	}
}

// diskStored records that level now has a usable disk copy.
func (p *Pyramid) diskStored(level int) {
	p.mu.Lock()
	p.items[level].noDisk = false
	p.mu.Unlock()
}

func (p *Pyramid) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// snapshot returns what producers need without holding the lock during I/O.
func (p *Pyramid) snapshot() (path, format string, native image.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path, p.format, p.native
}
