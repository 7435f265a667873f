// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/gazelog/gazelog/lib/geometry"
)

// Pupil holds per-eye openness and pupil size as reported by the eye
// tracker.
type Pupil struct {
	OpennessLeft  float32 `json:"openness_left"`
	SizeLeft      float32 `json:"size_left"`
	OpennessRight float32 `json:"openness_right"`
	SizeRight     float32 `json:"size_right"`
}

// EyeHead is one gaze sample. Timestamp is in the tracker's own
// monotonic units and is not comparable with wall time.
type EyeHead struct {
	Timestamp int64             `json:"timestamp"`
	Eye       geometry.Rotation `json:"eye"`
	Head      geometry.Rotation `json:"head"`
	Pupil     Pupil             `json:"pupil"`
}

// HandLocation is the position of four hand landmarks.
type HandLocation struct {
	Palm   geometry.Vector `json:"palm"`
	Thumb  geometry.Vector `json:"thumb"`
	Index  geometry.Vector `json:"index"`
	Middle geometry.Vector `json:"middle"`
}

// IsEmpty reports tracking loss: every landmark is the zero vector.
func (h HandLocation) IsEmpty() bool {
	return h.Palm.IsZero() && h.Thumb.IsZero() && h.Index.IsZero() && h.Middle.IsZero()
}

// Points returns the landmarks in log-column order.
func (h HandLocation) Points() [4]geometry.Vector {
	return [4]geometry.Vector{h.Palm, h.Thumb, h.Index, h.Middle}
}

// Map applies f to every landmark.
func (h HandLocation) Map(f func(geometry.Vector) geometry.Vector) HandLocation {
	return HandLocation{
		Palm:   f(h.Palm),
		Thumb:  f(h.Thumb),
		Index:  f(h.Index),
		Middle: f(h.Middle),
	}
}

// Transform moves every landmark into head-relative space with
// geometry.Transform.
func (h HandLocation) Transform(head geometry.Rotation, offset geometry.Vector) HandLocation {
	return h.Map(func(v geometry.Vector) geometry.Vector {
		return geometry.Transform(head, v, offset)
	})
}

// TaskCondition is one trial of a session plan: an index into the
// peripheral peer's lambda catalog and one into the task peer's n-back
// catalog. A negative index marks a wait trial, which still occupies
// a slot in the plan but sends no task commands to the peers.
type TaskCondition struct {
	CttLambdaIndex int `json:"ctt_lambda_index"`
	NBackTaskIndex int `json:"nback_task_index"`
}

// IsValid reports whether both indices select a catalog entry.
func (c TaskCondition) IsValid() bool {
	return c.CttLambdaIndex >= 0 && c.NBackTaskIndex >= 0
}

func (c TaskCondition) String() string {
	if !c.IsValid() {
		return "wait"
	}
	return fmt.Sprintf("lambda %d / n-back %d", c.CttLambdaIndex, c.NBackTaskIndex)
}
