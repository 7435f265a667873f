// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gazelog/gazelog/recorder"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gazelog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestParseFlagsRecordsGivenFlags(t *testing.T) {
	opts, err := parseFlags([]string{"--debug", "--pace", "fast", "--index=2", "--participant", "7"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if !opts.debug || opts.pace != "fast" || opts.setupIndex != 2 || opts.participant != 7 {
		t.Errorf("options = %+v", opts)
	}
	for _, name := range []string{"debug", "pace", "index", "participant"} {
		if !opts.set[name] {
			t.Errorf("flag %s not marked as set", name)
		}
	}
	if opts.set["verbose"] {
		t.Error("verbose marked as set")
	}
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	if _, err := parseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Fatal("parseFlags accepted a positional argument")
	}
	if _, err := parseFlags([]string{"--no-such-flag"}, io.Discard); err == nil {
		t.Fatal("parseFlags accepted an unknown flag")
	}
}

func TestLoadConfigAppliesOverrides(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
data_root: `+root+`
log:
  folder: ${GAZELOG_DATA}/records
session:
  pace: slow
  verbose: true
`)
	opts, err := parseFlags([]string{"--config", path, "--pace", "fast", "--ip", "10.0.0.5", "--no-rating"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Folder != filepath.Join(root, "records") {
		t.Errorf("log folder = %q", cfg.Log.Folder)
	}
	if cfg.Session.Pace != "fast" {
		t.Errorf("pace = %q, want the flag value", cfg.Session.Pace)
	}
	if !cfg.Session.Verbose {
		t.Error("verbose from the file was overridden by an unset flag")
	}
	if cfg.Peers.Host != "10.0.0.5" {
		t.Errorf("peer host = %q", cfg.Peers.Host)
	}
	if cfg.Session.Rating {
		t.Error("rating still enabled with --no-rating")
	}
}

func TestLoadConfigUsesEnvironment(t *testing.T) {
	path := writeConfig(t, "session:\n  setup_index: 3\n")
	t.Setenv("GAZELOG_CONFIG", path)

	opts, err := parseFlags(nil, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Session.SetupIndex != 3 {
		t.Errorf("setup index = %d, want 3", cfg.Session.SetupIndex)
	}
}

func TestLoadConfigRejectsInvalidOverride(t *testing.T) {
	path := writeConfig(t, "data_root: "+t.TempDir()+"\n")
	opts, err := parseFlags([]string{"--config", path, "--pace", "medium"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := loadConfig(opts); err == nil || !strings.Contains(err.Error(), "session.pace") {
		t.Fatalf("loadConfig error = %v, want a session.pace problem", err)
	}
}

func TestStatisticsMapsPercentages(t *testing.T) {
	stats := statistics(recorder.TaskStats{
		GazeSamples:     200,
		HeadsetTotal:    50,
		HeadsetValid:    25,
		TopViewTotal:    40,
		TopViewValid:    40,
		StreamerPackets: 45,
	})
	if stats.HeadsetTracking != 50 || stats.TopViewTracking != 100 {
		t.Errorf("tracking = %v / %v", stats.HeadsetTracking, stats.TopViewTracking)
	}
	if stats.GazeSamples != 200 || stats.StreamerPackets != 45 {
		t.Errorf("statistics = %+v", stats)
	}
}

func TestTeeHandlerRespectsLevels(t *testing.T) {
	var warnings, everything bytes.Buffer
	logger := slog.New(teeHandler{
		slog.NewTextHandler(&warnings, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&everything, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}).With("session_id", "s1")

	logger.Debug("detail")
	logger.Warn("problem")

	if strings.Contains(warnings.String(), "detail") || !strings.Contains(warnings.String(), "problem") {
		t.Errorf("warning handler got %q", warnings.String())
	}
	if !strings.Contains(everything.String(), `"msg":"detail"`) || !strings.Contains(everything.String(), `"session_id":"s1"`) {
		t.Errorf("debug handler got %q", everything.String())
	}
}

func TestNewLoggerWritesDebugFile(t *testing.T) {
	folder := t.TempDir()
	logger, closeLogger, err := newLogger(folder, time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC), false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("recorded only in the file", "n", 1)
	closeLogger()

	matches, err := filepath.Glob(filepath.Join(folder, "debug-*.log"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("debug files = %v (%v)", matches, err)
	}
	content, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("reading debug file: %v", err)
	}
	if !strings.Contains(string(content), "recorded only in the file") {
		t.Errorf("debug file = %q", content)
	}
}
