// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import "errors"

// State is the orchestrator's position in the session.
type State int32

const (
	StateIdle State = iota
	StateDeviceCheck
	StateAwaitStart
	StateTracking
	StateStopping
	StateTaskComplete
	StateSessionDone
	StateInterrupted
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateDeviceCheck:  "device_check",
	StateAwaitStart:   "await_start",
	StateTracking:     "tracking",
	StateStopping:     "stopping",
	StateTaskComplete: "task_complete",
	StateSessionDone:  "session_done",
	StateInterrupted:  "interrupted",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Outcome is how a task, or a whole session, ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeDeviceNotReady Outcome = "device_not_ready"
	OutcomeInterrupted    Outcome = "interrupted"

	// OutcomeAbandoned marks a session found unfinished at a later
	// start, after a crash or a kill.
	OutcomeAbandoned Outcome = "abandoned"
)

var (
	// ErrDeviceNotReady ends a session whose sensors are not ready.
	ErrDeviceNotReady = errors.New("recorder: not all devices are ready")

	// ErrOperatorInterrupt ends a session the operator interrupted.
	ErrOperatorInterrupt = errors.New("recorder: interrupted by operator")
)
