// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"time"

	"github.com/gazelog/gazelog/lib/schema"
)

// TaskStats counts the samples of one task.
type TaskStats struct {
	GazeSamples     int
	HeadsetTotal    int
	HeadsetValid    int
	TopViewTotal    int
	TopViewValid    int
	StreamerPackets int
}

// HeadsetPercent is the share of head-mounted hand samples that tracked
// a hand, 0..100.
func (s TaskStats) HeadsetPercent() float64 {
	return percent(s.HeadsetValid, s.HeadsetTotal)
}

// TopViewPercent is the share of top-view hand samples that tracked a
// hand, 0..100.
func (s TaskStats) TopViewPercent() float64 {
	return percent(s.TopViewValid, s.TopViewTotal)
}

func percent(part, whole int) float64 {
	return float64(part) / float64(max(whole, 1)) * 100
}

// TaskResult describes one task of a session.
type TaskResult struct {
	Index     int
	Condition schema.TaskCondition
	Outcome   Outcome
	Stats     TaskStats

	// Rating is 0 when no rating was collected.
	Rating int

	// LogPath, LogDigest, and Records describe the file flushed at the
	// end of the task.
	LogPath   string
	LogDigest string
	Records   int

	// Err is ErrDeviceNotReady, ErrOperatorInterrupt, or a flush
	// failure; nil for a clean completion.
	Err error
}

// SessionReport describes a whole session.
type SessionReport struct {
	SessionID    string
	Started      time.Time
	Finished     time.Time
	ManifestPath string
	Tasks        []TaskResult
	Outcome      Outcome

	// ArchiveFolder is where the session files ended up; empty when no
	// archive is configured or collection was skipped.
	ArchiveFolder string
}
