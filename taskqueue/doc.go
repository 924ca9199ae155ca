// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package taskqueue runs background work on a single worker goroutine.
//
// # Overview
//
// Producers wrap a Work in a Task and Add it with a priority. The worker
// repeatedly picks the highest-priority runnable task and calls its Step
// once. A task that is not finished after a step goes to the back of its
// priority bucket, so tasks of equal priority are served round-robin and a
// long job never starves a newly added urgent one.
//
//	q := taskqueue.New(taskqueue.WithName("mipmaps"))
//	q.Start()
//	defer q.Stop()
//
//	t := taskqueue.NewTask(work)
//	q.Add(t, 10)
//	<-t.Done()
//
// # Cancellation
//
// Release marks a task deletable. The queue never interrupts a running
// step; a released task is dropped before its next step, and a retained
// completed task is dropped on the next sweep. Work implementing Disposer is
// told when the queue lets go of it.
//
// # Failure
//
// Tasks report StateFailed themselves; the queue never retries. A panic in
// Step is not recovered and terminates the process, and a step that never
// returns stalls every task behind it.
package taskqueue
