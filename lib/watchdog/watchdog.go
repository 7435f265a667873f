// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gazelog/gazelog/lib/atomicfile"
	"github.com/gazelog/gazelog/lib/codec"
)

// State describes the session that was running when the marker was
// last written.
type State struct {
	SessionID     string    `cbor:"session_id"`
	ParticipantID int       `cbor:"participant_id"`
	Pace          string    `cbor:"pace,omitempty"`
	TaskIndex     int       `cbor:"task_index"`
	TaskCount     int       `cbor:"task_count"`
	PID           int       `cbor:"pid"`
	Started       time.Time `cbor:"started"`
	Timestamp     time.Time `cbor:"timestamp"`
}

// Write atomically replaces the marker at path with state. The file is
// created 0600; its directory must exist.
func Write(path string, state State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session marker: %w", err)
	}
	if err := atomicfile.Write(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session marker: %w", err)
	}
	return nil
}

// Read decodes the marker at path. A missing file yields an error
// wrapping fs.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decoding session marker %s: %w", path, err)
	}
	return state, nil
}

// Check reports a marker whose Timestamp lies within maxAge of now. A
// missing or stale marker returns false with a nil error; unreadable
// or corrupt markers return the error so the caller can tell "no
// crash" from "cannot tell".
func Check(path string, maxAge time.Duration, now time.Time) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if now.Sub(state.Timestamp) > maxAge {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the marker. A missing marker is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session marker: %w", err)
	}
	return nil
}
