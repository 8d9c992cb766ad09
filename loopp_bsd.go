// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build darwin || dragonfly || freebsd || netbsd || openbsd
// +build darwin dragonfly freebsd netbsd openbsd

package loopp

// New creates an event loop backed by the best primitive the platform
// offers, kqueue on Darwin and the BSDs.
func New(opts ...Option) (EventLoop, error) {
	return newKqueueLoop(newOptions(opts))
}
