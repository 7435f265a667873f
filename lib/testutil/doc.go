// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [RequireReceive], [RequireSend] and [RequireClosed] wrap the
// select-with-timeout pattern used by every test that waits on a
// socket or goroutine. [Eventually] polls a condition for tests whose
// observable effect is a counter rather than a channel. These helpers
// are the only place tests touch the wall clock; everything else goes
// through a fake [github.com/gazelog/gazelog/lib/clock.FakeClock].
//
// [Logger] returns a logger that discards output. [UniqueID] returns
// distinct identifiers for session IDs and message bodies.
package testutil
