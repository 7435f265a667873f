// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package await polls a condition until it holds, a timeout elapses,
// or the context ends. The recorder uses it for every request/reply
// exchange with a peer ("tasks" until a TSK reply, "lambdas" until an
// LMB reply) so that an unresponsive peer costs a bounded wait instead
// of a hung session.
package await

import (
	"context"
	"errors"
	"time"

	"github.com/gazelog/gazelog/lib/clock"
)

// ErrTimeout reports that the condition did not hold within
// Options.Timeout. Callers log it and carry on.
var ErrTimeout = errors.New("await: timed out waiting for condition")

// Defaults for zero Options fields.
const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 3 * time.Second
)

// Options controls polling. Zero fields take the defaults.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Until returns nil as soon as condition reports true. The condition is
// checked immediately and then once per interval. It returns
// ErrTimeout after the timeout, or ctx.Err() if ctx ends first.
func Until(ctx context.Context, clk clock.Clock, condition func() bool, options Options) error {
	if condition() {
		return nil
	}
	options = options.withDefaults()

	deadline := clk.After(options.Timeout)
	ticker := clk.NewTicker(options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		case <-deadline:
			// A reply that landed in the last interval still counts.
			if condition() {
				return nil
			}
			return ErrTimeout
		}
	}
}

// Reply calls send once and then waits, as Until, for hasReply.
func Reply(ctx context.Context, clk clock.Clock, send func(), hasReply func() bool, options Options) error {
	send()
	return Until(ctx, clk, hasReply, options)
}
