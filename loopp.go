// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loopp multiplexes readiness events from many file descriptors
// onto user supplied callbacks. A loop watches descriptors for read and
// write readiness through the best kernel primitive the platform offers
// and invokes the registered callback for each pair that fires.
//
// Registrations may be added and removed from any goroutine, including
// from callbacks running on the loop goroutine. The loop presents level
// semantics regardless of backend.
package loopp

const (
	// EvRead is the readable event.
	EvRead = 1 << iota
	// EvWrite is the writable event.
	EvWrite
)

// Callback is invoked when a watched descriptor becomes ready for the
// registered event. Callbacks run on the loop goroutine and may call
// any EventLoop method, including ones that mutate registrations or
// stop the loop. A panicking callback is not recovered.
type Callback func(fd int, events uint32)

// EventLoop watches file descriptors and dispatches readiness events.
//
// The loop does not own registered descriptors. The caller closes them,
// and must remove every registration for a descriptor before closing it.
type EventLoop interface {
	// IsRunning reports whether Start is currently dispatching events.
	IsRunning() bool

	// AddFd registers cb for the (fd, events) pair. events must be
	// exactly one of EvRead or EvWrite. If the pair is already
	// registered, AddFd succeeds without replacing the callback.
	// On success the current waiter is woken so it observes the new
	// registration.
	AddFd(fd int, events uint32, cb Callback) error

	// RemoveFd removes the (fd, events) registration. Removing an
	// unregistered pair succeeds as a no-op. When the last event on a
	// descriptor is removed, the descriptor is deregistered from the
	// kernel. On success the current waiter is woken.
	RemoveFd(fd int, events uint32) error

	// Start blocks the calling goroutine, dispatching callbacks until
	// Stop is called. It must not be called concurrently with itself.
	// Start returns nil after Stop, or a wait error wrapping ErrWait
	// if the kernel wait fails with anything but EINTR.
	Start() error

	// Stop makes the waiter return from Start as soon as possible.
	// Stop is idempotent and thread-safe. It may be called before
	// Start and from within callbacks.
	Stop() error

	// Close releases the kernel resources held by the loop. It must
	// not be called while the loop is running.
	Close() error
}
