// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package taskplan

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/gazelog/gazelog/lib/applog"
	"github.com/gazelog/gazelog/lib/schema"
)

// ManifestPrefix starts the manifest file name.
const ManifestPrefix = "conditions"

// Setup is one entry of a setup file.
type Setup struct {
	Randomized       bool  `json:"randomized"`
	Repetitions      int   `json:"repetitions"`
	CttLambdaIndexes []int `json:"cttLambdaIndexes"`
	NBackTaskIndexes []int `json:"nbackTaskIndexes"`
}

// Default is a single wait trial.
func Default() Setup {
	return Setup{
		Repetitions:      1,
		CttLambdaIndexes: []int{-1},
		NBackTaskIndexes: []int{-1},
	}
}

// Load reads setup number index from path. An empty path or a missing
// file yields Default; a file that does not parse, or an index outside
// the array, is an error.
func Load(path string, index int) (Setup, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Setup{}, fmt.Errorf("reading task setup: %w", err)
	}
	return Parse(data, index)
}

// Parse decodes setup number index from a JSONC array.
func Parse(data []byte, index int) (Setup, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return Setup{}, fmt.Errorf("parsing task setup: %w", err)
	}
	if index < 0 || index >= len(raw) {
		return Setup{}, fmt.Errorf("task setup index %d out of range (file has %d setups)", index, len(raw))
	}

	setup := Default()
	if err := json.Unmarshal(raw[index], &setup); err != nil {
		return Setup{}, fmt.Errorf("parsing task setup %d: %w", index, err)
	}
	if err := setup.Validate(); err != nil {
		return Setup{}, fmt.Errorf("task setup %d: %w", index, err)
	}
	return setup, nil
}

// Validate checks that the setup expands to at least one condition.
func (s Setup) Validate() error {
	var problems []string
	if s.Repetitions < 1 {
		problems = append(problems, fmt.Sprintf("repetitions must be at least 1, got %d", s.Repetitions))
	}
	if len(s.CttLambdaIndexes) == 0 {
		problems = append(problems, "cttLambdaIndexes is empty (use [-1] for no peripheral task)")
	}
	if len(s.NBackTaskIndexes) == 0 {
		problems = append(problems, "nbackTaskIndexes is empty (use [-1] for no n-back task)")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Expand returns every condition of the setup in execution order. rng
// shuffles randomized setups; nil uses the global source.
func (s Setup) Expand(rng *rand.Rand) []schema.TaskCondition {
	conditions := make([]schema.TaskCondition, 0, s.Repetitions*len(s.CttLambdaIndexes)*len(s.NBackTaskIndexes))
	for repetition := 0; repetition < s.Repetitions; repetition++ {
		for _, lambda := range s.CttLambdaIndexes {
			for _, nback := range s.NBackTaskIndexes {
				conditions = append(conditions, schema.TaskCondition{CttLambdaIndex: lambda, NBackTaskIndex: nback})
			}
		}
	}
	if s.Randomized {
		swap := func(i, j int) { conditions[i], conditions[j] = conditions[j], conditions[i] }
		if rng != nil {
			rng.Shuffle(len(conditions), swap)
		} else {
			rand.Shuffle(len(conditions), swap)
		}
	}
	return conditions
}

// NBackTask is the stimulus of one n-back catalog entry.
type NBackTask struct {
	Digits int
	Layout int
}

// Lambdas maps lambda indexes to the peripheral task's instability
// parameter.
var Lambdas = map[int]float64{
	0: 0.5, 1: 1.0, 2: 1.5, 3: 2.0, 4: 2.5,
	5: 3.0, 6: 3.5, 7: 4.0, 8: 4.5, 9: 5.0,
}

// NBackTasks maps n-back indexes to digit count and layout.
var NBackTasks = map[int]NBackTask{
	0: {Digits: 2, Layout: 1},
	1: {Digits: 4, Layout: 1},
	2: {Digits: 8, Layout: 1},
	3: {Digits: 4, Layout: 2},
	4: {Digits: 8, Layout: 2},
}

// Manifest renders the manifest content: a header row and one row per
// condition. Unknown indexes render their values as -1.
func Manifest(conditions []schema.TaskCondition) []byte {
	var builder strings.Builder
	builder.WriteString("CTT\tNBackTask\tLambda\tDigits\tLayout\n")
	for _, condition := range conditions {
		lambda := "-1"
		if value, ok := Lambdas[condition.CttLambdaIndex]; ok {
			lambda = strconv.FormatFloat(value, 'f', -1, 64)
		}
		task, ok := NBackTasks[condition.NBackTaskIndex]
		if !ok {
			task = NBackTask{Digits: -1, Layout: -1}
		}
		fmt.Fprintf(&builder, "%d\t%d\t%s\t%d\t%d\n",
			condition.CttLambdaIndex, condition.NBackTaskIndex, lambda, task.Digits, task.Layout)
	}
	return []byte(builder.String())
}

// WriteManifest writes the manifest into folder and returns its path.
func WriteManifest(folder string, at time.Time, conditions []schema.TaskCondition) (string, error) {
	path, err := applog.WriteStamped(folder, ManifestPrefix, at, Manifest(conditions))
	if err != nil {
		return "", fmt.Errorf("writing session manifest: %w", err)
	}
	return path, nil
}
