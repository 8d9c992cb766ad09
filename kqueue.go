// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

package loopp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// kqueueLoop is the kqueue backed event loop. Registration changes are
// applied to the kernel immediately rather than batched into the next
// wait, so a rejected change surfaces from the call that caused it.
// The wakeup pipe's read end is registered for EVFILT_READ and never
// surfaced to callbacks.
type kqueueLoop struct {
	loopBase
	kqFd  int
	wk    *pipeWakeup
	kqEvs []unix.Kevent_t
}

func newKqueueLoop(opts *options) (*kqueueLoop, error) {
	kqFd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("%w: kqueue: %w", ErrInit, err)
	}

	wk, err := newPipeWakeup()
	if err != nil {
		unix.Close(kqFd)
		return nil, err
	}

	l := &kqueueLoop{
		kqFd:  kqFd,
		wk:    wk,
		kqEvs: make([]unix.Kevent_t, maxReadyEvents),
	}
	l.init(opts.logger)

	if err := l.applyChange(wk.rfd, unix.EVFILT_READ, unix.EV_ADD); err != nil {
		wk.close()
		unix.Close(kqFd)
		return nil, fmt.Errorf("%w: add wakeup fd: %w", ErrInit, err)
	}

	return l, nil
}

func (l *kqueueLoop) applyChange(fd, filter, flags int) error {
	var kev unix.Kevent_t
	unix.SetKevent(&kev, fd, filter, flags)
	_, err := unix.Kevent(l.kqFd, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func kqueueFilter(events uint32) int {
	if events&EvWrite != 0 {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

// AddFd registers cb for the (fd, events) pair.
func (l *kqueueLoop) AddFd(fd int, events uint32, cb Callback) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if ok && fe.has(events) {
		return nil
	}

	if err := l.applyChange(fd, kqueueFilter(events), unix.EV_ADD); err != nil {
		return fmt.Errorf("%w: kevent: %w", ErrRegister, err)
	}

	if !ok {
		fe = &fdEvent{}
		l.fdEvs[fd] = fe
	}
	fe.set(events, cb)

	l.log.Debug().Int("fd", fd).Uint32("events", events).Msg("event registered")

	return l.wk.poke()
}

// RemoveFd removes the (fd, events) registration.
func (l *kqueueLoop) RemoveFd(fd int, events uint32) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if !ok || !fe.has(events) {
		return nil
	}

	if err := l.applyChange(fd, kqueueFilter(events), unix.EV_DELETE); err != nil {
		return fmt.Errorf("%w: kevent: %w", ErrRegister, err)
	}

	fe.clear(events)
	if fe.mask() == 0 {
		delete(l.fdEvs, fd)
	}

	l.log.Debug().Int("fd", fd).Uint32("events", events).Msg("event deregistered")

	return l.wk.poke()
}

// Start blocks, dispatching callbacks until Stop is called.
func (l *kqueueLoop) Start() error {
	l.running.Store(true)
	l.log.Debug().Msg("loop started")

	ready := make([]readyEvent, 0, maxReadyEvents)

	for l.running.Load() {
		n, err := unix.Kevent(l.kqFd, nil, l.kqEvs, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.running.Store(false)
			l.log.Error().Err(err).Msg("wait failed")
			return fmt.Errorf("%w: kevent: %w", ErrWait, err)
		}

		ready = ready[:0]

		l.mu.Lock()
		// Read filters first so read fires before write on any single
		// descriptor. EV_EOF arrives through EVFILT_READ and so folds
		// into read readiness on its own.
		for i := 0; i < n; i++ {
			if l.kqEvs[i].Flags&unix.EV_ERROR != 0 {
				continue
			}
			fd := int(l.kqEvs[i].Ident)
			if l.kqEvs[i].Filter != unix.EVFILT_READ {
				continue
			}
			if fd == l.wk.rfd {
				l.wk.drain()
				continue
			}
			if fe, ok := l.fdEvs[fd]; ok && fe.r != nil {
				ready = append(ready, readyEvent{fd: fd, events: EvRead, cb: fe.r})
			}
		}
		for i := 0; i < n; i++ {
			if l.kqEvs[i].Flags&unix.EV_ERROR != 0 {
				continue
			}
			fd := int(l.kqEvs[i].Ident)
			if l.kqEvs[i].Filter != unix.EVFILT_WRITE {
				continue
			}
			if fe, ok := l.fdEvs[fd]; ok && fe.w != nil {
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
func (l *kqueueLoop) Stop() error {
	l.running.CompareAndSwap(true, false)
	return l.wk.poke()
}

// Close releases the kqueue instance and the wakeup pipe.
func (l *kqueueLoop) Close() error {
	l.wk.close()
	return unix.Close(l.kqFd)
}
