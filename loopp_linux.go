// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

// New creates an event loop backed by the best primitive the platform
// offers, epoll on Linux.
func New(opts ...Option) (EventLoop, error) {
	return newEpollLoop(newOptions(opts))
}
