// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package taskqueue

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Task.
type State int32

const (
	// StateWaiting means the task has not been stepped yet.
	StateWaiting State = iota
	// StateRunning means the task has been stepped and wants more steps.
	StateRunning
	// StateDone means the task finished successfully.
	StateDone
	// StateFailed means the task gave up.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Terminal reports whether s ends the task.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Work is one unit of background work, executed in steps.
//
// Step performs a bounded amount of work and returns StateDone or
// StateFailed when finished. Any other state asks to be stepped again.
type Work interface {
	Step() State
}

// WorkFunc adapts a function to Work.
type WorkFunc func() State

// Step calls f.
func (f WorkFunc) Step() State { return f() }

// Disposer is implemented by Work that holds resources to hand back when
// the queue drops the task. Dispose runs on the worker goroutine without the
// queue lock held, at most once per task.
type Disposer interface {
	Dispose()
}

type lifecycle int32

const (
	lifeActive lifecycle = iota
	lifeReleased
	lifeRetired
)

type location uint8

const (
	locNone location = iota
	locPending
	locDeferred
	locCurrent
	locCompleted
)

// Task is a queued Work with scheduling metadata.
type Task struct {
	work   Work
	name   string
	retain bool
	at     time.Time

	state    atomic.Int32
	life     atomic.Int32
	prio     atomic.Uint64
	done     chan struct{}
	doneOnce sync.Once

	q atomic.Pointer[Queue]

	// Guarded by the owning Queue's mutex.
	seq   uint64
	index int
	where location
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// Named sets a name used in logs.
func Named(name string) TaskOption {
	return func(t *Task) { t.name = name }
}

// Retain keeps the task in the queue's completed list after it finishes,
// until Release is called.
func Retain() TaskOption {
	return func(t *Task) { t.retain = true }
}

// At defers the first step until the given time.
func At(when time.Time) TaskOption {
	return func(t *Task) { t.at = when }
}

// NewTask wraps w in a Task.
func NewTask(w Work, opts ...TaskOption) *Task {
	t := &Task{work: w, done: make(chan struct{}), index: -1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Work returns the wrapped work.
func (t *Task) Work() Work { return t.work }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// State returns the current state.
func (t *Task) State() State { return State(t.state.Load()) }

// Priority returns the current priority.
func (t *Task) Priority() float64 { return math.Float64frombits(t.prio.Load()) }

func (t *Task) setPriority(p float64) { t.prio.Store(math.Float64bits(p)) }

// Done is closed when the task finishes or is retired.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) finish() { t.doneOnce.Do(func() { close(t.done) }) }

// Release marks the task deletable. A pending task is dropped without
// further steps; a retained completed task is dropped on the next sweep.
// A step in progress is not interrupted.
func (t *Task) Release() {
	if !t.life.CompareAndSwap(int32(lifeActive), int32(lifeReleased)) {
		return
	}
	if q := t.q.Load(); q != nil {
		q.signal()
	}
}

// Released reports whether Release was called.
func (t *Task) Released() bool { return lifecycle(t.life.Load()) != lifeActive }

// Retired reports whether the queue has dropped the task after a Release.
func (t *Task) Retired() bool { return lifecycle(t.life.Load()) == lifeRetired }
