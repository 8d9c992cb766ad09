// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// The kernel registration mirrors the table after every mutation. A raw
// duplicate ADD fails with EEXIST while any interest remains, and a raw
// DEL fails with ENOENT once the last interest is gone.
func TestEpollKernelMirror(t *testing.T) {
	r, _ := makePipe(t)

	l, err := New()
	require.NoError(t, err)
	defer l.Close()
	el := l.(*epollLoop)

	probeAdd := func() error {
		epEv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(r)}
		return unix.EpollCtl(el.epFd, unix.EPOLL_CTL_ADD, r, &epEv)
	}
	probeDel := func() error {
		return unix.EpollCtl(el.epFd, unix.EPOLL_CTL_DEL, r, nil)
	}

	require.ErrorIs(t, probeDel(), unix.ENOENT)

	cb := func(fd int, events uint32) {}
	require.NoError(t, l.AddFd(r, EvRead, cb))
	require.ErrorIs(t, probeAdd(), unix.EEXIST)

	require.NoError(t, l.AddFd(r, EvWrite, cb))
	require.ErrorIs(t, probeAdd(), unix.EEXIST)

	require.NoError(t, l.RemoveFd(r, EvWrite))
	require.ErrorIs(t, probeAdd(), unix.EEXIST)

	require.NoError(t, l.RemoveFd(r, EvRead))
	require.ErrorIs(t, probeDel(), unix.ENOENT)
}

// A registration the kernel rejects leaves the table untouched.
func TestEpollRegisterRollback(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()
	el := l.(*epollLoop)

	// A regular file is not pollable; epoll_ctl rejects it with EPERM.
	f, err := unix.Open(t.TempDir()+"/plain", unix.O_CREAT|unix.O_RDWR, 0o600)
	require.NoError(t, err)
	defer unix.Close(f)

	err = l.AddFd(f, EvRead, func(fd int, events uint32) {})
	require.ErrorIs(t, err, ErrRegister)

	el.mu.Lock()
	require.Empty(t, el.fdEvs)
	el.mu.Unlock()
}
