// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog keeps the in-progress session marker used to detect
// sessions that ended without cleanup (power loss, kill -9, a crashed
// vendor SDK).
//
// The recorder writes a [State] before the first task starts tracking
// and updates it as tasks advance. Orderly shutdown, whether the
// session completed or the operator interrupted it, calls [Clear]. If
// the next start finds a marker through [Check], the previous session
// crashed: its partial files are still in the log folder and the
// operator is told which session, participant and task were affected.
//
// The marker is CBOR ([github.com/gazelog/gazelog/lib/codec]) written
// atomically ([github.com/gazelog/gazelog/lib/atomicfile]). Check
// ignores markers older than a maximum age so a marker abandoned weeks
// ago does not alarm every later session.
package watchdog
