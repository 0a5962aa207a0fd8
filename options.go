// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import "log/slog"

// appConfig accumulates the result of applying a caller's Options, mirroring the
// router-config-then-build shape of a functional-option API.
type appConfig struct {
	maxUPS         int
	schedulerKind  SchedulerPolicy
	loop           bool
	adapter        Adapter
	adapterOpts    AdapterOptions
	debug          bool
	logger         *slog.Logger
}

func defaultAppConfig() *appConfig {
	return &appConfig{
		maxUPS:        120,
		schedulerKind: PolicyFrame,
		adapterOpts:   DefaultAdapterOptions(),
		logger:        defaultLogger(),
	}
}

// Option configures an App at construction time. The set mirrors spec §6's configuration
// table: max_ups, scheduler, adapter, debug, and the adapter's own sub-options.
type Option func(*appConfig)

// WithMaxUPS caps drains per second. Defaults to 120.
func WithMaxUPS(n int) Option {
	return func(c *appConfig) {
		if n > 0 {
			c.maxUPS = n
		}
	}
}

// WithSchedulerPolicy selects sync, microtask, or frame drain scheduling. Defaults to frame.
func WithSchedulerPolicy(p SchedulerPolicy) Option {
	return func(c *appConfig) { c.schedulerKind = p }
}

// WithLoopMode enables the scheduler's optional loop mode: invalidate is re-issued on every
// tick even absent explicit mutations.
func WithLoopMode(enable bool) Option {
	return func(c *appConfig) { c.loop = enable }
}

// WithAdapter injects a custom Adapter implementation in place of DefaultAdapter.
func WithAdapter(a Adapter) Option {
	return func(c *appConfig) { c.adapter = a }
}

// WithDebug records the debug flag on the app's configuration. The flag does not change what
// is logged, which metrics are kept, or which events App.On listeners receive.
func WithDebug(enable bool) Option {
	return func(c *appConfig) { c.debug = enable }
}

// WithLogger overrides the slog.Logger used for the warnings described in spec §7 (unknown
// phase, cycle rejection). Defaults to a discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *appConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithArrayDeletePolicy selects "splice" or "unset" semantics for Index/Param deletes.
func WithArrayDeletePolicy(p ArrayDeletePolicy) Option {
	return func(c *appConfig) { c.adapterOpts.ArrayDelete = p }
}

// WithAutoCreate toggles intermediate-container auto-creation during Set. Defaults to true.
func WithAutoCreate(enable bool) Option {
	return func(c *appConfig) { c.adapterOpts.AutoCreate = enable }
}

// WithIndexEnabled toggles the secondary array index. Defaults to true.
func WithIndexEnabled(enable bool) Option {
	return func(c *appConfig) { c.adapterOpts.IndexEnabled = enable }
}

// WithIndexStrategy selects "eager-all-keys" or "lazy-key" secondary-index population.
func WithIndexStrategy(s IndexStrategy) Option {
	return func(c *appConfig) { c.adapterOpts.IndexStrategy = s }
}
