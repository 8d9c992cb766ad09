// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEventfdWakeupPokeDrain(t *testing.T) {
	wk, err := newEventfdWakeup()
	require.NoError(t, err)
	defer wk.close()

	require.NoError(t, wk.poke())
	require.NoError(t, wk.poke())

	wk.drain()

	var buf [8]byte
	_, err = unix.Read(wk.fd, buf[:])
	require.ErrorIs(t, err, unix.EAGAIN)
}
