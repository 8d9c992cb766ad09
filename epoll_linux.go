// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// epollLoop is the epoll backed event loop. One epoll instance holds a
// per-descriptor interest mask recomputed from the registration table
// on every change. The eventfd wakeup is registered for read and never
// surfaced to callbacks.
type epollLoop struct {
	loopBase
	epFd int
	wk   *eventfdWakeup
}

func newEpollLoop(opts *options) (*epollLoop, error) {
	epFd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: epoll_create1: %w", ErrInit, err)
	}

	wk, err := newEventfdWakeup()
	if err != nil {
		unix.Close(epFd)
		return nil, err
	}

	epEv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wk.fd)}
	if err := unix.EpollCtl(epFd, unix.EPOLL_CTL_ADD, wk.fd, &epEv); err != nil {
		wk.close()
		unix.Close(epFd)
		return nil, fmt.Errorf("%w: add wakeup fd: %w", ErrInit, err)
	}

	l := &epollLoop{epFd: epFd, wk: wk}
	l.init(opts.logger)
	return l, nil
}

func epollMask(events uint32) uint32 {
	m := uint32(0)
	if events&EvRead != 0 {
		m |= unix.EPOLLIN
	}
	if events&EvWrite != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

// AddFd registers cb for the (fd, events) pair.
func (l *epollLoop) AddFd(fd int, events uint32, cb Callback) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if ok && fe.has(events) {
		return nil
	}

	epEv := unix.EpollEvent{Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if ok {
		op = unix.EPOLL_CTL_MOD
		epEv.Events = epollMask(fe.mask() | events)
	} else {
		epEv.Events = epollMask(events)
	}

	if err := unix.EpollCtl(l.epFd, op, fd, &epEv); err != nil {
		return fmt.Errorf("%w: epoll_ctl: %w", ErrRegister, err)
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
func (l *epollLoop) RemoveFd(fd int, events uint32) error {
	if !validEvents(events) {
		return fmt.Errorf("%w: %#x", ErrInvalidEvents, events)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fe, ok := l.fdEvs[fd]
	if !ok || !fe.has(events) {
		return nil
	}

	remaining := fe.mask() &^ events
	if remaining == 0 {
		if err := unix.EpollCtl(l.epFd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
			return fmt.Errorf("%w: epoll_ctl: %w", ErrRegister, err)
		}
		delete(l.fdEvs, fd)
	} else {
		epEv := unix.EpollEvent{Events: epollMask(remaining), Fd: int32(fd)}
		if err := unix.EpollCtl(l.epFd, unix.EPOLL_CTL_MOD, fd, &epEv); err != nil {
			return fmt.Errorf("%w: epoll_ctl: %w", ErrRegister, err)
		}
		fe.clear(events)
	}

	l.log.Debug().Int("fd", fd).Uint32("events", events).Msg("event deregistered")

	return l.wk.poke()
}

// Start blocks, dispatching callbacks until Stop is called.
func (l *epollLoop) Start() error {
	l.running.Store(true)
	l.log.Debug().Msg("loop started")

	epEvs := make([]unix.EpollEvent, maxReadyEvents)
	ready := make([]readyEvent, 0, maxReadyEvents)

	for l.running.Load() {
		n, err := unix.EpollWait(l.epFd, epEvs, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			l.running.Store(false)
			l.log.Error().Err(err).Msg("wait failed")
			return fmt.Errorf("%w: epoll_wait: %w", ErrWait, err)
		}

		ready = ready[:0]

		l.mu.Lock()
		for i := 0; i < n; i++ {
			fd := int(epEvs[i].Fd)
			if fd == l.wk.fd {
				l.wk.drain()
				continue
			}

			fe, ok := l.fdEvs[fd]
			if !ok {
				continue
			}

			// Hangup and error conditions surface as read readiness so
			// the callback's own read observes them.
			what := epEvs[i].Events
			if what&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 && fe.r != nil {
				ready = append(ready, readyEvent{fd: fd, events: EvRead, cb: fe.r})
			}
			if what&unix.EPOLLOUT != 0 && fe.w != nil {
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
func (l *epollLoop) Stop() error {
	l.running.CompareAndSwap(true, false)
	return l.wk.poke()
}

// Close releases the epoll instance and the wakeup eventfd.
func (l *epollLoop) Close() error {
	l.wk.close()
	return unix.Close(l.epFd)
}
