// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the time source used by the session recorder,
// the request/reply poller, the append log and the synthetic gaze
// generator.
//
// Components take a [Clock] in their config instead of calling the
// time package directly. The binary passes [Real]; tests pass a
// [FakeClock] from [Fake] and drive it with Advance, so stagger delays,
// reply timeouts and poll intervals run deterministically and without
// wall-clock sleeps:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go recorder.Run(ctx, plan)
//	fake.WaitForTimers(1)          // the poll loop has armed its ticker
//	fake.Advance(100 * time.Millisecond)
//
// WaitForTimers closes the race between a goroutine registering a
// timer and the test advancing past it.
package clock
