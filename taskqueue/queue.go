// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package taskqueue

import (
	"container/heap"
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/mipcache/internal/logging"
)

// ErrStopped is returned by WaitIdle when the queue was stopped with work
// still outstanding.
var ErrStopped = errors.New("taskqueue: stopped")

// Queue is a priority queue drained by a single worker goroutine.
//
// All methods are safe for concurrent use. Hooks and Step run on the worker
// goroutine without the queue lock held, so they may call Add and
// SetPriority; they must not call Stop.
type Queue struct {
	opts options

	mu        sync.Mutex
	pending   taskHeap
	deferred  []*Task // sorted by scheduled time
	completed []*Task
	current   *Task
	busy      bool // worker is inside step, hooks included
	seq       uint64
	cont      bool
	started   bool
	stopped   bool
	idleCh    chan struct{}
	trash     []*Task // retired, disposed once the lock is released
	stats     Stats

	wake    chan struct{}
	done    chan struct{}
	running atomic.Bool
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Pending   int // runnable tasks
	Deferred  int // tasks waiting for their scheduled time
	Completed int // retained finished tasks
	Added     uint64
	Steps     uint64
	Requeues  uint64
	Finished  uint64
	Failed    uint64
	Retired   uint64
}

// New creates a stopped queue. Tasks may be added before Start.
func New(opts ...Option) *Queue {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue{
		opts: o,
		cont: true,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start spawns the worker goroutine. Calling Start again, or after Stop,
// does nothing.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	q.running.Store(true)
	go q.run()
}

// Stop tells the worker to exit after its current step and waits for it.
// Tasks still queued are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.cont = false
	q.stopped = true
	started := q.started
	q.mu.Unlock()

	q.signal()
	if started {
		<-q.done
	}
}

// IsRunning reports whether the worker goroutine is alive.
func (q *Queue) IsRunning() bool { return q.running.Load() }

// Now returns the time on the queue's clock. Deadlines passed to At should
// be derived from it.
func (q *Queue) Now() time.Time { return q.opts.now() }

// Add queues t with the given priority. Higher priorities run first.
// Adding to a stopped queue logs a warning and leaves t unscheduled.
func (q *Queue) Add(t *Task, priority float64) {
	log := logging.Logger()

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		log.Warn("taskqueue: add after stop", "queue", q.opts.name, "task", t.name)
		return
	}
	if t.where != locNone {
		q.mu.Unlock()
		log.Warn("taskqueue: task already queued", "queue", q.opts.name, "task", t.name)
		return
	}
	t.q.Store(q)
	t.setPriority(priority)
	if !t.at.IsZero() && t.at.After(q.opts.now()) {
		q.deferLocked(t)
	} else {
		q.pushLocked(t)
	}
	q.stats.Added++
	q.mu.Unlock()

	q.signal()
}

// SetPriority changes the priority of t. A pending task moves to the back
// of its new bucket and SetPriority returns true. For a task that is
// running or deferred the new priority applies when it is next queued, and
// SetPriority returns false.
func (q *Queue) SetPriority(t *Task, priority float64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.setPriorityLocked(t, priority)
}

func (q *Queue) setPriorityLocked(t *Task, priority float64) bool {
	if t.q.Load() != q {
		return false
	}
	t.setPriority(priority)
	if t.where != locPending {
		return false
	}
	q.seq++
	t.seq = q.seq
	heap.Fix(&q.pending, t.index)
	return true
}

// WaitIdle blocks until no task is pending, deferred or running.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	for {
		if q.idleLocked() {
			q.mu.Unlock()
			return nil
		}
		if q.stopped {
			q.mu.Unlock()
			return ErrStopped
		}
		if q.idleCh == nil {
			q.idleCh = make(chan struct{})
		}
		ch := q.idleCh
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		q.mu.Lock()
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.pending)
	s.Deferred = len(q.deferred)
	s.Completed = len(q.completed)
	return s
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	defer q.running.Store(false)

	for {
		q.mu.Lock()
		if !q.cont {
			q.notifyIdleLocked()
			trash := q.takeTrashLocked()
			q.mu.Unlock()
			drain(trash)
			return
		}
		q.sweepLocked()
		if q.opts.maintenance != nil {
			q.opts.maintenance(&Maintenance{q: q})
		}
		now := q.opts.now()
		q.promoteLocked(now)
		t := q.popLocked()
		if t == nil {
			if trash := q.takeTrashLocked(); len(trash) > 0 {
				q.mu.Unlock()
				drain(trash)
				continue
			}
			q.notifyIdleLocked()
			var timer *time.Timer
			var fire <-chan time.Time
			if len(q.deferred) > 0 {
				timer = time.NewTimer(q.deferred[0].at.Sub(now))
				fire = timer.C
			}
			q.mu.Unlock()

			select {
			case <-q.wake:
			case <-fire:
			}
			if timer != nil {
				timer.Stop()
			}
			continue
		}
		q.current = t
		q.busy = true
		t.where = locCurrent
		trash := q.takeTrashLocked()
		q.mu.Unlock()
		drain(trash)

		q.step(t)
	}
}

func (q *Queue) step(t *Task) {
	log := logging.Logger()

	if t.state.CompareAndSwap(int32(StateWaiting), int32(StateRunning)) {
		log.Debug("taskqueue: task started", "queue", q.opts.name, "task", t.name)
		if q.opts.onStarted != nil {
			q.opts.onStarted(t)
		}
	}

	st := t.work.Step()
	if !st.Terminal() {
		st = StateRunning
	}
	t.state.Store(int32(st))

	q.mu.Lock()
	q.current = nil
	t.where = locNone
	q.stats.Steps++
	dispose := false
	switch {
	case st.Terminal():
		if st == StateDone {
			q.stats.Finished++
		} else {
			q.stats.Failed++
		}
		if t.retain && !t.Released() {
			t.where = locCompleted
			q.completed = append(q.completed, t)
		} else {
			dispose = true
		}
	case t.Released():
		q.retireLocked(t)
	default:
		q.stats.Requeues++
		q.pushLocked(t)
	}
	q.sweepLocked()
	trash := q.takeTrashLocked()
	q.mu.Unlock()
	drain(trash)

	if st.Terminal() {
		log.Debug("taskqueue: task finished", "queue", q.opts.name, "task", t.name, "state", st)
		if q.opts.onFinished != nil {
			q.opts.onFinished(t)
		}
		if dispose {
			disposeWork(t)
		}
		t.finish()
	}

	q.mu.Lock()
	q.busy = false
	q.mu.Unlock()
}

func (q *Queue) pushLocked(t *Task) {
	q.seq++
	t.seq = q.seq
	t.where = locPending
	heap.Push(&q.pending, t)
}

func (q *Queue) deferLocked(t *Task) {
	i, _ := slices.BinarySearchFunc(q.deferred, t.at, func(e *Task, at time.Time) int {
		return e.at.Compare(at)
	})
	// Land after equal times so deferral keeps insertion order.
	for i < len(q.deferred) && q.deferred[i].at.Equal(t.at) {
		i++
	}
	t.where = locDeferred
	q.deferred = slices.Insert(q.deferred, i, t)
}

// promoteLocked moves deferred tasks whose time has come into pending.
func (q *Queue) promoteLocked(now time.Time) {
	n := 0
	for n < len(q.deferred) && !q.deferred[n].at.After(now) {
		q.pushLocked(q.deferred[n])
		n++
	}
	if n > 0 {
		clear(q.deferred[:n])
		q.deferred = q.deferred[n:]
	}
}

// popLocked returns the best runnable task, retiring released ones on the way.
func (q *Queue) popLocked() *Task {
	for q.pending.Len() > 0 {
		t := heap.Pop(&q.pending).(*Task)
		t.where = locNone
		if t.Released() {
			q.retireLocked(t)
			continue
		}
		return t
	}
	return nil
}

// sweepLocked drops released tasks from the completed and deferred lists.
func (q *Queue) sweepLocked() {
	q.completed = slices.DeleteFunc(q.completed, func(t *Task) bool {
		if t.Released() {
			q.retireLocked(t)
			return true
		}
		return false
	})
	q.deferred = slices.DeleteFunc(q.deferred, func(t *Task) bool {
		if t.Released() {
			q.retireLocked(t)
			return true
		}
		return false
	})
}

func (q *Queue) retireLocked(t *Task) {
	t.where = locNone
	t.life.Store(int32(lifeRetired))
	q.stats.Retired++
	q.trash = append(q.trash, t)
}

func (q *Queue) takeTrashLocked() []*Task {
	trash := q.trash
	q.trash = nil
	return trash
}

// drain disposes retired tasks. Runs without the queue lock so Dispose may
// take locks that are held around calls into the queue.
func drain(trash []*Task) {
	for _, t := range trash {
		disposeWork(t)
		t.finish()
	}
}

func (q *Queue) idleLocked() bool {
	return len(q.pending) == 0 && len(q.deferred) == 0 && !q.busy
}

func (q *Queue) notifyIdleLocked() {
	if q.idleCh == nil {
		return
	}
	if q.idleLocked() || !q.cont {
		close(q.idleCh)
		q.idleCh = nil
	}
}

func disposeWork(t *Task) {
	if d, ok := t.work.(Disposer); ok {
		d.Dispose()
	}
}

// Maintenance gives the maintenance hook access to the pending tasks while
// the queue lock is held.
type Maintenance struct {
	q *Queue
}

// Len returns the number of pending tasks.
func (m *Maintenance) Len() int { return len(m.q.pending) }

// Each calls fn for pending tasks in no particular order until fn returns
// false. fn may call SetPriority.
func (m *Maintenance) Each(fn func(*Task) bool) {
	for _, t := range slices.Clone(m.q.pending) {
		if !fn(t) {
			return
		}
	}
}

// SetPriority behaves like Queue.SetPriority.
func (m *Maintenance) SetPriority(t *Task, priority float64) bool {
	return m.q.setPriorityLocked(t, priority)
}
