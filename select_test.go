// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSelectTooManyFds(t *testing.T) {
	l, err := NewSelect()
	require.NoError(t, err)
	defer l.Close()

	cb := func(fd int, events uint32) {}
	require.ErrorIs(t, l.AddFd(unix.FD_SETSIZE, EvRead, cb), ErrTooManyFds)
	require.ErrorIs(t, l.AddFd(unix.FD_SETSIZE+5, EvWrite, cb), ErrTooManyFds)

	sl := l.(*selectLoop)
	sl.mu.Lock()
	require.Empty(t, sl.fdEvs)
	sl.mu.Unlock()
}

func TestSelectMaxFdTracking(t *testing.T) {
	l, err := NewSelect()
	require.NoError(t, err)
	defer l.Close()
	sl := l.(*selectLoop)

	cb := func(fd int, events uint32) {}

	require.NoError(t, l.AddFd(10, EvRead, cb))
	require.NoError(t, l.AddFd(7, EvWrite, cb))
	require.NoError(t, l.AddFd(10, EvWrite, cb))
	require.Equal(t, 10, sl.fds.maxFd())

	require.NoError(t, l.RemoveFd(10, EvRead))
	require.Equal(t, 10, sl.fds.maxFd())
	require.NoError(t, l.RemoveFd(10, EvWrite))
	require.Equal(t, 7, sl.fds.maxFd())

	require.NoError(t, l.RemoveFd(7, EvWrite))
	require.True(t, sl.fds.empty())
}

func TestSelectBitmapMaintenance(t *testing.T) {
	l, err := NewSelect()
	require.NoError(t, err)
	defer l.Close()
	sl := l.(*selectLoop)

	cb := func(fd int, events uint32) {}

	require.NoError(t, l.AddFd(10, EvRead, cb))
	require.NoError(t, l.AddFd(10, EvWrite, cb))
	require.True(t, sl.rSet.IsSet(10))
	require.True(t, sl.wSet.IsSet(10))

	require.NoError(t, l.RemoveFd(10, EvRead))
	require.False(t, sl.rSet.IsSet(10))
	require.True(t, sl.wSet.IsSet(10))

	require.NoError(t, l.RemoveFd(10, EvWrite))
	require.False(t, sl.wSet.IsSet(10))

	// The wakeup read end stays registered throughout.
	require.True(t, sl.rSet.IsSet(sl.wk.rfd))
}
