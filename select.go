// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd
// +build linux darwin dragonfly freebsd netbsd openbsd

package loopp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// selectLoop is the portable select backed event loop. The registered
// interest bitmaps are maintained under the table mutex and snapshot
// copied before every wait, so mutations from other goroutines never
// race the kernel call. The largest registered descriptor is tracked
// by a descriptor heap rather than recomputed by scan.
type selectLoop struct {
	loopBase
	wk *pipeWakeup

	rSet unix.FdSet
	wSet unix.FdSet
	fds  *fdHeap
}

// NewSelect creates an event loop backed by the portable bitmap
// primitive. Descriptors must stay below unix.FD_SETSIZE.
func NewSelect(opts ...Option) (EventLoop, error) {
	o := newOptions(opts)

	wk, err := newPipeWakeup()
	if err != nil {
		return nil, err
	}

	l := &selectLoop{wk: wk, fds: newFdHeap()}
	l.init(o.logger)
	l.rSet.Set(wk.rfd)
	return l, nil
}

// AddFd registers cb for the (fd, events) pair.
func (l *selectLoop) AddFd(fd int, events uint32, cb Callback) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}
	if fd >= unix.FD_SETSIZE {
		return fmt.Errorf("%w: %w: fd %d", ErrRegister, ErrTooManyFds, fd)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if ok && fe.has(events) {
		return nil
	}
	if !ok {
		fe = &fdEvent{}
		l.fdEvs[fd] = fe
	}
	fe.set(events, cb)

	switch events {
	case EvRead:
		l.rSet.Set(fd)
		fe.rEnt = l.fds.pushFd(fd)
	case EvWrite:
		l.wSet.Set(fd)
		fe.wEnt = l.fds.pushFd(fd)
	}

	l.log.Debug().Int("fd", fd).Uint32("events", events).Msg("event registered")

	return l.wk.poke()
}

// RemoveFd removes the (fd, events) registration.
func (l *selectLoop) RemoveFd(fd int, events uint32) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if !ok || !fe.has(events) {
		return nil
	}

	switch events {
	case EvRead:
		l.rSet.Clear(fd)
		l.fds.removeEntry(fe.rEnt)
	case EvWrite:
		l.wSet.Clear(fd)
		l.fds.removeEntry(fe.wEnt)
	}
	fe.clear(events)
	if fe.mask() == 0 {
		delete(l.fdEvs, fd)
	}

	l.log.Debug().Int("fd", fd).Uint32("events", events).Msg("event deregistered")

	return l.wk.poke()
}

// Start blocks, dispatching callbacks until Stop is called.
func (l *selectLoop) Start() error {
	l.running.Store(true)
	l.log.Debug().Msg("loop started")

	ready := make([]readyEvent, 0, 64)

	for l.running.Load() {
		l.mu.Lock()
		rSet := l.rSet
		wSet := l.wSet
		maxFd := l.wk.rfd
		if fd := l.fds.maxFd(); fd > maxFd {
			maxFd = fd
		}
		l.mu.Unlock()

		n, err := unix.Select(maxFd+1, &rSet, &wSet, nil, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.running.Store(false)
			l.log.Error().Err(err).Msg("wait failed")
			return fmt.Errorf("%w: select: %w", ErrWait, err)
		}
		if n == 0 {
			continue
		}

		if rSet.IsSet(l.wk.rfd) {
			l.wk.drain()
		}

		ready = ready[:0]

		l.mu.Lock()
		for fd, fe := range l.fdEvs {
			if rSet.IsSet(fd) && fe.r != nil {
				ready = append(ready, readyEvent{fd: fd, events: EvRead, cb: fe.r})
			}
			if wSet.IsSet(fd) && fe.w != nil {
				ready = append(ready, readyEvent{fd: fd, events: EvWrite, cb: fe.w})
			}
		}
		l.mu.Unlock()

		l.dispatch(ready)
	}

	l.log.Debug().Msg("loop stopped")
	return nil
}

// Stop makes the waiter return from Start. The poke is issued even
// when the loop is not running; it is drained harmlessly later.
func (l *selectLoop) Stop() error {
	l.running.CompareAndSwap(true, false)
	return l.wk.poke()
}

// Close releases the wakeup pipe.
func (l *selectLoop) Close() error {
	l.wk.close()
	return nil
}
