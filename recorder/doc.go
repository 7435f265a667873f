// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package recorder runs a recording session: it sequences the planned
// tasks, drives the companion applications through their line
// protocol, and fuses the sensor streams into one log record per gaze
// sample.
//
// # Streams and cells
//
// Every input except gaze updates a cell, a mutex-guarded latest value:
// the head-mounted hand location (transformed into head-relative space
// with the latest head rotation), the top-view hand location received
// over UDP, and the most recent task-peer message. Each gaze sample
// swaps the message cell empty, copies both hand cells, and appends one
// record. A message is therefore attributed to exactly one record, and
// records keep gaze arrival order because only the gaze callback
// appends while tracking.
//
// # Task life cycle
//
// A task moves through [StateDeviceCheck], [StateAwaitStart],
// [StateTracking], [StateStopping], and [StateTaskComplete]. Devices
// that are not ready end the session before the operator is asked to
// start. While tracking, the hand streamer is started at once and the
// task and peripheral peers after a stagger, since their start resets
// their clocks. Tracking ends on the task peer's FIN, an operator stop,
// or an interrupt. Stopping detaches the fusion step before any stop
// command goes out, so no record is appended after a peer stops.
//
// Wait trials (conditions with a negative index) run like any task but
// send no task, lambda, start, or stop commands to the task and
// peripheral peers.
//
// # Interrupts
//
// [Recorder.Interrupt] sets one flag checked at every state boundary
// and cancels whatever the orchestrator is blocked on. The session then
// skips to cleanup: records still buffered are flushed, files are
// quarantined instead of collected, and the catalog records the
// outcome.
package recorder
