// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package taskqueue

import "container/heap"

// taskHeap orders pending tasks by:
// 1. Priority (descending)
// 2. Insertion sequence (ascending): FIFO within a priority bucket
type taskHeap []*Task

var _ heap.Interface = (*taskHeap)(nil)

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].Priority(), h[j].Priority()
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
