// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import "container/heap"

// fdEntry is one registration in the descriptor heap.
type fdEntry struct {
	fd    int
	index int
}

// fdHeap is a max heap of registered descriptors. The select backend
// uses it to track the largest registered descriptor: O(log n) to
// update, O(1) to query. A descriptor registered for both read and
// write holds two entries.
type fdHeap []*fdEntry

// newFdHeap creates a new descriptor heap.
func newFdHeap() *fdHeap {
	fh := &fdHeap{}
	heap.Init(fh)
	return fh
}

// Len returns the number of entries in the heap.
func (h fdHeap) Len() int { return len(h) }

// Less orders entries by descending descriptor.
func (h fdHeap) Less(i, j int) bool { return h[i].fd > h[j].fd }

// Swap swaps the entries at index i and j.
func (h fdHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push pushes the entry x onto the heap.
func (h *fdHeap) Push(x interface{}) {
	ent := x.(*fdEntry)
	ent.index = len(*h)
	*h = append(*h, ent)
}

// Pop removes and returns the last entry. heap.Pop and heap.Remove
// move the entry being removed to the end before calling it.
func (h *fdHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// pushFd adds a registration for fd and returns its entry.
func (h *fdHeap) pushFd(fd int) *fdEntry {
	ent := &fdEntry{fd: fd}
	heap.Push(h, ent)
	return ent
}

// removeEntry removes a registration from the heap.
func (h *fdHeap) removeEntry(ent *fdEntry) {
	heap.Remove(h, ent.index)
	ent.index = -1
}

// maxFd returns the largest registered descriptor, or -1 if none.
func (h *fdHeap) maxFd() int {
	if len(*h) == 0 {
		return -1
	}
	return (*h)[0].fd
}

// empty returns true if the heap holds no registrations.
func (h *fdHeap) empty() bool { return len(*h) == 0 }
