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

// pipeWakeup unblocks a blocking wait through a non-blocking pipe. The
// read end sits in the waitset; any goroutine may poke the write end.
type pipeWakeup struct {
	rfd int
	wfd int
}

func newPipeWakeup() (*pipeWakeup, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("%w: pipe: %w", ErrInit, err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, fmt.Errorf("%w: set nonblock: %w", ErrInit, err)
		}
		unix.CloseOnExec(fd)
	}
	return &pipeWakeup{rfd: fds[0], wfd: fds[1]}, nil
}

// poke makes the read end readable. A full pipe wakes the waiter just
// as well, so EAGAIN is success.
func (wk *pipeWakeup) poke() error {
	if _, err := unix.Write(wk.wfd, []byte{0}); err != nil && !temporaryErr(err) {
		return fmt.Errorf("%w: write pipe: %w", ErrWakeup, err)
	}
	return nil
}

// drain empties the read end.
func (wk *pipeWakeup) drain() {
	buf := make([]byte, 64)
	for {
		if _, err := unix.Read(wk.rfd, buf); err != nil {
			return
		}
	}
}

func (wk *pipeWakeup) close() {
	unix.Close(wk.rfd)
	unix.Close(wk.wfd)
}
