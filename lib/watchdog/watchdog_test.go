// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func sampleState() State {
	return State{
		SessionID:     "5f0c2a9e",
		ParticipantID: 17,
		Pace:          "slow",
		TaskIndex:     3,
		TaskCount:     12,
		PID:           4242,
		Started:       now.Add(-10 * time.Minute),
		Timestamp:     now.Add(-time.Minute),
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.marker")
	want := sampleState()

	if err := Write(path, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.SessionID != want.SessionID || got.ParticipantID != want.ParticipantID ||
		got.Pace != want.Pace || got.TaskIndex != want.TaskIndex ||
		got.TaskCount != want.TaskCount || got.PID != want.PID {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
	if !got.Started.Equal(want.Started) || !got.Timestamp.Equal(want.Timestamp) {
		t.Errorf("times = %v / %v, want %v / %v", got.Started, got.Timestamp, want.Started, want.Timestamp)
	}
}

func TestWriteOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.marker")
	state := sampleState()
	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}
	state.TaskIndex = 4
	if err := Write(path, state); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.TaskIndex != 4 {
		t.Errorf("TaskIndex = %d, want 4", got.TaskIndex)
	}
}

func TestWriteFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.marker")
	if err := Write(path, sampleState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestReadNonexistent(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Read error = %v, want fs.ErrNotExist", err)
	}
}

func TestCheck(t *testing.T) {
	directory := t.TempDir()

	fresh := filepath.Join(directory, "fresh")
	if err := Write(fresh, sampleState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	stale := filepath.Join(directory, "stale")
	old := sampleState()
	old.Timestamp = now.Add(-72 * time.Hour)
	if err := Write(stale, old); err != nil {
		t.Fatalf("Write: %v", err)
	}
	corrupt := filepath.Join(directory, "corrupt")
	if err := os.WriteFile(corrupt, []byte{0xff, 0x00, 0x13}, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tests := []struct {
		name      string
		path      string
		wantFound bool
		wantErr   bool
	}{
		{"fresh", fresh, true, false},
		{"stale", stale, false, false},
		{"missing", filepath.Join(directory, "absent"), false, false},
		{"corrupt", corrupt, false, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			state, found, err := Check(test.path, 24*time.Hour, now)
			if (err != nil) != test.wantErr {
				t.Fatalf("Check error = %v, wantErr %v", err, test.wantErr)
			}
			if found != test.wantFound {
				t.Fatalf("Check found = %v, want %v", found, test.wantFound)
			}
			if found && state.SessionID != "5f0c2a9e" {
				t.Errorf("SessionID = %q", state.SessionID)
			}
		})
	}
}

func TestClearIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.marker")
	if err := Write(path, sampleState()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := Clear(path); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("marker still present after Clear: %v", err)
	}
}
