// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gazelog/gazelog/lib/applog"
	"github.com/gazelog/gazelog/lib/clock"
	"github.com/gazelog/gazelog/lib/geometry"
	"github.com/gazelog/gazelog/lib/schema"
	"github.com/gazelog/gazelog/lib/testutil"
)

// Column positions in a flushed record, after the log's own stamp.
const (
	columnGazeTimestamp = 1
	columnHeadset       = 10
	columnTopView       = 22
	columnMessage       = 34
)

func newTestFusion(t *testing.T) (*fusion, *applog.Log) {
	t.Helper()
	log, err := applog.New(applog.Config{
		Folder: filepath.Join(t.TempDir(), "logs"),
		Prefix: "vdl",
		Clock:  clock.Fake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)),
		Logger: testutil.Logger(),
	})
	if err != nil {
		t.Fatalf("applog.New: %v", err)
	}
	return newFusion(log, testutil.Logger(), geometry.DefaultHandOffset, false), log
}

// flushRows flushes log and returns its records split into columns.
func flushRows(t *testing.T, log *applog.Log) [][]string {
	t.Helper()
	result, err := log.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if result.Path == "" {
		return nil
	}
	content, err := applog.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var rows [][]string
	for _, line := range strings.Split(strings.TrimSuffix(string(content), "\n"), "\n") {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

func hand(base float64) schema.HandLocation {
	return schema.HandLocation{
		Palm:   geometry.Vector{X: base, Y: base + 1, Z: base + 2},
		Thumb:  geometry.Vector{X: base + 3, Y: base + 4, Z: base + 5},
		Index:  geometry.Vector{X: base + 6, Y: base + 7, Z: base + 8},
		Middle: geometry.Vector{X: base + 9, Y: base + 10, Z: base + 11},
	}
}

func handColumns(location schema.HandLocation) []string {
	var columns []string
	for _, point := range location.Points() {
		columns = append(columns, fixed2(point.X), fixed2(point.Y), fixed2(point.Z))
	}
	return columns
}

func requireHand(t *testing.T, row []string, column int, want schema.HandLocation, label string) {
	t.Helper()
	got := row[column : column+12]
	for i, value := range handColumns(want) {
		if got[i] != value {
			t.Fatalf("%s column %d = %q, want %q (row %v)", label, i, got[i], value, row)
		}
	}
}

func TestFusionAttributesLatestValues(t *testing.T) {
	f, log := newTestFusion(t)
	f.attach()

	head := geometry.Rotation{Yaw: 30}
	first := hand(1)
	second := hand(20)
	topView := hand(50)

	f.onGaze(schema.EyeHead{Timestamp: 100, Head: head})
	f.onHeadsetHand(first)
	f.onTopView(topView)
	f.post("TSK2,Ordered")
	f.onGaze(schema.EyeHead{Timestamp: 101, Head: head})

	f.onHeadsetHand(second)
	f.onGaze(schema.EyeHead{Timestamp: 102, Head: head})

	f.post("one")
	f.post("two")
	f.onTopView(schema.HandLocation{})
	f.onGaze(schema.EyeHead{Timestamp: 103, Head: head})

	rows := flushRows(t, log)
	if len(rows) != 4 {
		t.Fatalf("got %d records, want 4", len(rows))
	}
	for i, row := range rows {
		if len(row) != 1+recordFields {
			t.Fatalf("record %d has %d columns, want %d", i, len(row), 1+recordFields)
		}
		if want := strconv.Itoa(100 + i); row[columnGazeTimestamp] != want {
			t.Errorf("record %d gaze timestamp = %q, want %q", i, row[columnGazeTimestamp], want)
		}
	}

	requireHand(t, rows[0], columnHeadset, schema.HandLocation{}, "record 0 headset")
	requireHand(t, rows[0], columnTopView, schema.HandLocation{}, "record 0 top view")

	requireHand(t, rows[1], columnHeadset, first.Transform(head, geometry.DefaultHandOffset), "record 1 headset")
	requireHand(t, rows[1], columnTopView, topView, "record 1 top view")

	requireHand(t, rows[2], columnHeadset, second.Transform(head, geometry.DefaultHandOffset), "record 2 headset")
	requireHand(t, rows[2], columnTopView, topView, "record 2 top view")
	requireHand(t, rows[3], columnTopView, schema.HandLocation{}, "record 3 top view")

	messages := []string{"", "TSK2,Ordered", "", "two"}
	for i, want := range messages {
		if got := rows[i][columnMessage]; got != want {
			t.Errorf("record %d message = %q, want %q", i, got, want)
		}
	}
}

func TestFusionKeepsEmptyHandsEmpty(t *testing.T) {
	f, log := newTestFusion(t)
	f.attach()

	f.onGaze(schema.EyeHead{Timestamp: 1, Head: geometry.Rotation{Yaw: 45, Pitch: 10}})
	f.onHeadsetHand(schema.HandLocation{})
	f.onGaze(schema.EyeHead{Timestamp: 2, Head: geometry.Rotation{Yaw: 45, Pitch: 10}})

	rows := flushRows(t, log)
	requireHand(t, rows[1], columnHeadset, schema.HandLocation{}, "headset after tracking loss")
}

func TestFusionCountsSamples(t *testing.T) {
	f, _ := newTestFusion(t)
	f.attach()

	f.onHeadsetHand(hand(1))
	f.onHeadsetHand(schema.HandLocation{})
	f.onHeadsetHand(hand(2))
	f.onTopView(schema.HandLocation{})
	f.onTopView(hand(3))
	for i := range 5 {
		f.onGaze(schema.EyeHead{Timestamp: int64(i)})
	}

	stats := f.counts()
	want := TaskStats{GazeSamples: 5, HeadsetTotal: 3, HeadsetValid: 2, TopViewTotal: 2, TopViewValid: 1}
	if stats != want {
		t.Fatalf("counts = %+v, want %+v", stats, want)
	}

	f.attach()
	if stats := f.counts(); stats != (TaskStats{}) {
		t.Fatalf("counts after attach = %+v, want zero", stats)
	}
}

func TestFusionDetachedAppendsNothing(t *testing.T) {
	f, log := newTestFusion(t)

	f.post("early")
	f.onGaze(schema.EyeHead{Timestamp: 1, Head: geometry.Rotation{Yaw: 90}})
	if log.Len() != 0 {
		t.Fatalf("detached fusion appended %d records", log.Len())
	}
	if got := f.head.Read(); got.Yaw != 90 {
		t.Errorf("head rotation = %+v, want yaw 90", got)
	}

	f.attach()
	f.onGaze(schema.EyeHead{Timestamp: 2})
	f.detach()
	f.onGaze(schema.EyeHead{Timestamp: 3})

	rows := flushRows(t, log)
	if len(rows) != 1 {
		t.Fatalf("got %d records, want 1", len(rows))
	}
	if rows[0][columnMessage] != "early" {
		t.Errorf("message = %q, want %q", rows[0][columnMessage], "early")
	}
}

func TestFusionClearDropsPendingState(t *testing.T) {
	f, log := newTestFusion(t)
	f.onHeadsetHand(hand(1))
	f.onTopView(hand(2))
	f.post("stale")

	f.clear()
	f.attach()
	f.onGaze(schema.EyeHead{Timestamp: 1})

	rows := flushRows(t, log)
	requireHand(t, rows[0], columnHeadset, schema.HandLocation{}, "headset")
	requireHand(t, rows[0], columnTopView, schema.HandLocation{}, "top view")
	if rows[0][columnMessage] != "" {
		t.Errorf("message = %q, want empty", rows[0][columnMessage])
	}
}

func TestFusionProgressLogging(t *testing.T) {
	tests := []struct {
		name      string
		verbose   bool
		wantLevel string
		wantGaze  bool
	}{
		{"verbose logs values at info", true, "INFO", true},
		{"quiet logs counters at debug", false, "DEBUG", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, log := newTestFusion(t)
			var output bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&output, &slog.HandlerOptions{Level: slog.LevelDebug}))
			f := newFusion(log, logger, geometry.DefaultHandOffset, tt.verbose)

			f.attach()
			for i := range 2 * verboseEvery {
				f.onGaze(schema.EyeHead{Timestamp: int64(i), Eye: geometry.Rotation{Yaw: 3}})
			}

			var lines []map[string]any
			for _, line := range bytes.Split(bytes.TrimSpace(output.Bytes()), []byte("\n")) {
				var entry map[string]any
				if err := json.Unmarshal(line, &entry); err != nil {
					t.Fatalf("decoding %q: %v", line, err)
				}
				if entry["msg"] == "tracking" {
					lines = append(lines, entry)
				}
			}
			if len(lines) != 2 {
				t.Fatalf("got %d progress lines, want 2: %s", len(lines), output.String())
			}
			for _, entry := range lines {
				if entry["level"] != tt.wantLevel {
					t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
				}
				if _, ok := entry["gaze_yaw"]; ok != tt.wantGaze {
					t.Errorf("gaze_yaw present = %v, want %v", ok, tt.wantGaze)
				}
			}
		})
	}
}
