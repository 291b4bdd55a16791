// Copyright 2019 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package options holds the state every simpleperf subcommand shares:
// a cancellation context wired to SIGINT/SIGTERM and a logger, the same
// CommonOptions shape maxgio92-xcover/pkg/cmd/options threads through
// its own subcommands.
package options

import (
	"context"

	"github.com/rs/zerolog"
)

// CommonOptions is embedded by every subcommand's own Options struct.
type CommonOptions struct {
	Ctx    context.Context
	Logger zerolog.Logger
}

// Option configures a CommonOptions at construction time.
type Option func(*CommonOptions)

// WithContext installs ctx, normally one cancelled by signal.NotifyContext.
func WithContext(ctx context.Context) Option {
	return func(o *CommonOptions) { o.Ctx = ctx }
}

// WithLogger installs the console logger subcommands report through.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *CommonOptions) { o.Logger = logger }
}

// New builds a CommonOptions from opts.
func New(opts ...Option) *CommonOptions {
	o := &CommonOptions{Ctx: context.Background()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
