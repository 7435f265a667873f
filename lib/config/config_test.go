// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gazelog/gazelog/lib/geometry"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Peers.Host != "127.0.0.1" {
		t.Errorf("expected peers.host=127.0.0.1, got %s", cfg.Peers.Host)
	}
	if cfg.Peers.Task.Port != 8963 || cfg.Peers.Peripheral.Port != 8964 || cfg.Peers.HandStreamer.Port != 8965 {
		t.Errorf("unexpected peer ports: %+v", cfg.Peers)
	}
	if cfg.HandDatagram.Address != ":8982" {
		t.Errorf("expected hand_datagram.address=:8982, got %s", cfg.HandDatagram.Address)
	}
	if cfg.Devices.HandOffset != geometry.DefaultHandOffset {
		t.Errorf("expected default hand offset, got %+v", cfg.Devices.HandOffset)
	}
	if cfg.Session.ReplyTimeout != 3*time.Second || cfg.Session.PollInterval != 100*time.Millisecond {
		t.Errorf("unexpected reply timing: %v / %v", cfg.Session.ReplyTimeout, cfg.Session.PollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_WithoutGazelogConfig(t *testing.T) {
	t.Setenv("GAZELOG_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Log.Prefix != "vdl" {
		t.Errorf("expected default prefix, got %s", cfg.Log.Prefix)
	}
}

func TestLoad_WithGazelogConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "gazelog.yaml")
	configContent := `
peers:
  host: 10.0.0.5
  task:
    port: 9000
session:
  pace: fast
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("GAZELOG_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Peers.Host != "10.0.0.5" {
		t.Errorf("expected host=10.0.0.5, got %s", cfg.Peers.Host)
	}
	if cfg.Peers.Task.Port != 9000 {
		t.Errorf("expected task port 9000, got %d", cfg.Peers.Task.Port)
	}
	if cfg.Peers.Peripheral.Port != 8964 {
		t.Errorf("peripheral port should keep its default, got %d", cfg.Peers.Peripheral.Port)
	}
	if cfg.Session.Pace != "fast" {
		t.Errorf("expected pace=fast, got %s", cfg.Session.Pace)
	}
}

func TestLoadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "gazelog.yaml")
	configContent := `
data_root: /srv/study
log:
  folder: ${GAZELOG_DATA}/records
  compression: zstd
devices:
  hand_offset: {x: 1, y: 14.5, z: -5}
session:
  reply_timeout: 2s
  start_stagger: 750ms
archive:
  masks: ["*.tsv"]
  recipients: [age1example]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Log.Folder != "/srv/study/records" {
		t.Errorf("expected expanded folder, got %s", cfg.Log.Folder)
	}
	if cfg.Log.Compression != "zstd" {
		t.Errorf("expected zstd, got %s", cfg.Log.Compression)
	}
	want := geometry.Vector{X: 1, Y: 14.5, Z: -5}
	if cfg.Devices.HandOffset != want {
		t.Errorf("hand offset = %+v, want %+v", cfg.Devices.HandOffset, want)
	}
	if cfg.Session.ReplyTimeout != 2*time.Second {
		t.Errorf("reply_timeout = %v, want 2s", cfg.Session.ReplyTimeout)
	}
	if cfg.Session.StartStagger != 750*time.Millisecond {
		t.Errorf("start_stagger = %v, want 750ms", cfg.Session.StartStagger)
	}
	if len(cfg.Archive.Masks) != 1 || cfg.Archive.Masks[0] != "*.tsv" {
		t.Errorf("masks = %v, want [*.tsv]", cfg.Archive.Masks)
	}
	if cfg.Session.StopSettle != 500*time.Millisecond {
		t.Errorf("stop_settle should keep its default, got %v", cfg.Session.StopSettle)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "gazelog.yaml")
	if err := os.WriteFile(configPath, []byte("peers: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(configPath)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), configPath) {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("GAZELOG_TEST_VAR", "from-env")

	vars := map[string]string{"GAZELOG_DATA": "/data"}
	tests := []struct {
		input string
		want  string
	}{
		{"${GAZELOG_DATA}/logs", "/data/logs"},
		{"${GAZELOG_TEST_VAR}", "from-env"},
		{"${GAZELOG_UNSET_VAR:-fallback}", "fallback"},
		{"${GAZELOG_UNSET_VAR}", ""},
		{"plain/path", "plain/path"},
	}

	for _, tt := range tests {
		if got := expandVars(tt.input, vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPeersAddress(t *testing.T) {
	peers := Default().Peers
	if got := peers.Address(peers.Task); got != "127.0.0.1:8963" {
		t.Errorf("Address(task) = %s", got)
	}
	peers.Peripheral.Host = "192.168.1.20"
	if got := peers.Address(peers.Peripheral); got != "192.168.1.20:8964" {
		t.Errorf("Address(peripheral) = %s", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad compression", func(c *Config) { c.Log.Compression = "gzip" }, "log.compression"},
		{"port out of range", func(c *Config) { c.Peers.Task.Port = 70000 }, "peers.task.port"},
		{"zero timeout", func(c *Config) { c.Peers.ConnectTimeout = 0 }, "connect_timeout"},
		{"unknown pace", func(c *Config) { c.Session.Pace = "medium" }, "session.pace"},
		{"no masks", func(c *Config) { c.Archive.Masks = nil }, "archive.masks"},
		{"bad mask", func(c *Config) { c.Archive.Masks = []string{"["} }, "archive.masks"},
		{"negative stagger", func(c *Config) { c.Session.StartStagger = -time.Second }, "delays"},
		{"datagram without address", func(c *Config) { c.HandDatagram.Address = "" }, "hand_datagram"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Log.Folder = ""
	cfg.Peers.Host = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"log.folder", "peers.host"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}
}

func TestValidate_OrderIsStable(t *testing.T) {
	cfg := Default()
	cfg.Peers.Task.Port = 0
	cfg.Peers.Peripheral.Port = -1
	cfg.Peers.HandStreamer.Port = 70000
	cfg.Session.ReplyTimeout = 0
	cfg.Session.PollInterval = 0
	cfg.Session.SyntheticInterval = 0

	want := cfg.Validate().Error()
	for range 20 {
		if got := cfg.Validate().Error(); got != want {
			t.Fatalf("Validate() = %q, earlier run gave %q", got, want)
		}
	}
	order := []string{
		"peers.task.port 0",
		"peers.peripheral.port -1",
		"peers.hand_streamer.port 70000",
		"session.reply_timeout",
		"session.poll_interval",
		"session.synthetic_interval",
	}
	last := -1
	for _, fragment := range order {
		index := strings.Index(want, fragment)
		if index < 0 {
			t.Fatalf("error %q should mention %q", want, fragment)
		}
		if index < last {
			t.Errorf("%q reported out of order in %q", fragment, want)
		}
		last = index
	}
}

func TestValidate_AllowsZeroDelays(t *testing.T) {
	cfg := Default()
	cfg.Session.StartStagger = 0
	cfg.Session.StopSettle = 0
	cfg.Session.ProfileDelay = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want zero delays accepted", err)
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Log.Folder = filepath.Join(root, "logs")
	cfg.Log.DebugFolder = filepath.Join(root, "debug")
	cfg.Archive.Destination = filepath.Join(root, "data")
	cfg.Catalog.Path = filepath.Join(root, "db", "catalog.db")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() failed: %v", err)
	}
	for _, dir := range []string{"logs", "debug", "data", "db"} {
		info, err := os.Stat(filepath.Join(root, dir))
		if err != nil || !info.IsDir() {
			t.Errorf("%s was not created", dir)
		}
	}
}
