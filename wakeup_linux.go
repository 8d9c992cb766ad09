// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// eventfdWakeup unblocks a blocking wait through an eventfd counter.
type eventfdWakeup struct {
	fd int
}

func newEventfdWakeup() (*eventfdWakeup, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("%w: eventfd: %w", ErrInit, err)
	}
	return &eventfdWakeup{fd: fd}, nil
}

// poke adds one to the counter. A saturated counter is already
// readable, so EAGAIN is success.
func (wk *eventfdWakeup) poke() error {
	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(wk.fd, one[:]); err != nil && !temporaryErr(err) {
		return fmt.Errorf("%w: write eventfd: %w", ErrWakeup, err)
	}
	return nil
}

// drain resets the counter.
func (wk *eventfdWakeup) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(wk.fd, buf[:]); err != nil {
			return
		}
	}
}

func (wk *eventfdWakeup) close() {
	unix.Close(wk.fd)
}
