// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// maxReadyEvents is the largest batch of ready events taken from the
// kernel in one wait.
const maxReadyEvents = 1024

// fdEvent is the registration state of one file descriptor.
type fdEvent struct {
	// r is the read callback.
	r Callback
	// w is the write callback.
	w Callback
	// rEnt and wEnt locate the registrations in the select backend's
	// descriptor heap.
	rEnt *fdEntry
	wEnt *fdEntry
}

func (fe *fdEvent) has(events uint32) bool {
	switch events {
	case EvRead:
		return fe.r != nil
	case EvWrite:
		return fe.w != nil
	}
	return false
}

func (fe *fdEvent) set(events uint32, cb Callback) {
	if events&EvRead != 0 {
		fe.r = cb
	}
	if events&EvWrite != 0 {
		fe.w = cb
	}
}

func (fe *fdEvent) clear(events uint32) {
	if events&EvRead != 0 {
		fe.r = nil
		fe.rEnt = nil
	}
	if events&EvWrite != 0 {
		fe.w = nil
		fe.wEnt = nil
	}
}

// mask returns the union of the registered events.
func (fe *fdEvent) mask() uint32 {
	m := uint32(0)
	if fe.r != nil {
		m |= EvRead
	}
	if fe.w != nil {
		m |= EvWrite
	}
	return m
}

// readyEvent is one snapshotted (descriptor, events, callback) triple.
type readyEvent struct {
	fd     int
	events uint32
	cb     Callback
}

// loopBase is the state shared by every backend: the registration
// table, its mutex, the running flag and the logger.
//
// Every access to fdEvs holds mu. Kernel-side registration changes
// also happen under mu so table state and kernel state cannot diverge
// as observed by other mutators. mu is never held across a callback.
type loopBase struct {
	mu      sync.Mutex
	fdEvs   map[int]*fdEvent
	running atomic.Bool
	log     zerolog.Logger
}

func (b *loopBase) init(log zerolog.Logger) {
	b.fdEvs = make(map[int]*fdEvent)
	b.log = log
}

// IsRunning reports whether Start is currently dispatching events.
func (b *loopBase) IsRunning() bool {
	return b.running.Load()
}

func (b *loopBase) base() *loopBase { return b }

func (b *loopBase) stillRegistered(fd int, events uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	fe, ok := b.fdEvs[fd]
	return ok && fe.has(events)
}

// dispatch invokes the snapshotted triples without holding the mutex.
// A pair deregistered by an earlier callback in the batch is skipped;
// the snapshot keeps the remaining invocations safe either way.
func (b *loopBase) dispatch(ready []readyEvent) {
	for i := range ready {
		if !b.stillRegistered(ready[i].fd, ready[i].events) {
			continue
		}
		ready[i].cb(ready[i].fd, ready[i].events)
	}
}

func validEvents(events uint32) bool {
	return events == EvRead || events == EvWrite
}
