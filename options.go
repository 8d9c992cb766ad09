// Copyright (c) 2023 cheng-zhongliang. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loopp

import "github.com/rs/zerolog"

// options holds the configuration applied by New and NewSelect.
type options struct {
	logger zerolog.Logger
}

// Option configures an event loop.
type Option func(*options)

// WithLogger attaches a structured logger to the loop. Registration
// changes and lifecycle transitions are logged at debug level, wait
// failures at error level. The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts []Option) *options {
	o := &options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(o)
	}
	return o
}
