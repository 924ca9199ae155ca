// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package taskqueue

import "time"

// Option configures a Queue.
type Option func(*options)

type options struct {
	name        string
	now         func() time.Time
	onStarted   func(*Task)
	onFinished  func(*Task)
	maintenance func(*Maintenance)
}

func defaultOptions() options {
	return options{name: "taskqueue", now: time.Now}
}

// WithName sets the queue name used in logs.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithStartedHook registers fn to run on the worker right before a task's
// first step.
func WithStartedHook(fn func(*Task)) Option {
	return func(o *options) { o.onStarted = fn }
}

// WithFinishedHook registers fn to run on the worker right after a task
// reaches StateDone or StateFailed.
func WithFinishedHook(fn func(*Task)) Option {
	return func(o *options) { o.onFinished = fn }
}

// WithMaintenance registers fn to run under the queue lock before each
// pick. fn must only use the Maintenance it is given.
func WithMaintenance(fn func(*Maintenance)) Option {
	return func(o *options) { o.maintenance = fn }
}

// WithClock replaces time.Now for deferred scheduling.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
