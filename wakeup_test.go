// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestPipeWakeupPokeDrain(t *testing.T) {
	wk, err := newPipeWakeup()
	require.NoError(t, err)
	defer wk.close()

	require.NoError(t, wk.poke())
	require.NoError(t, wk.poke())
	require.NoError(t, wk.poke())

	buf := make([]byte, 1)
	_, err = unix.Read(wk.rfd, buf)
	require.NoError(t, err)

	wk.drain()

	_, err = unix.Read(wk.rfd, buf)
	require.ErrorIs(t, err, unix.EAGAIN)
}
