// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/gazelog/gazelog/lib/geometry"
)

// Config is the master configuration for gazelog.
type Config struct {
	// DataRoot is the base directory that the other path defaults hang
	// off. Available to path fields as ${GAZELOG_DATA}.
	DataRoot string `yaml:"data_root"`

	Log          LogConfig      `yaml:"log"`
	Peers        PeersConfig    `yaml:"peers"`
	HandDatagram DatagramConfig `yaml:"hand_datagram"`
	Devices      DevicesConfig  `yaml:"devices"`
	Session      SessionConfig  `yaml:"session"`
	Archive      ArchiveConfig  `yaml:"archive"`
	Catalog      CatalogConfig  `yaml:"catalog"`
}

// LogConfig configures where fused records and diagnostics are written.
type LogConfig struct {
	// Folder receives the per-task record files, the session
	// manifest, and task-peer logs.
	Folder string `yaml:"folder"`

	// Prefix starts every record file name.
	// Default: vdl
	Prefix string `yaml:"prefix"`

	// Compression is one of "none", "zstd", "lz4".
	Compression string `yaml:"compression"`

	// DebugFolder receives the JSON diagnostic log of each run.
	DebugFolder string `yaml:"debug_folder"`
}

// PeerConfig addresses one companion application.
type PeerConfig struct {
	// Host overrides PeersConfig.Host for this peer when non-empty.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PeersConfig addresses the companion applications over TCP.
type PeersConfig struct {
	// Host is the machine running the companion applications.
	// Default: 127.0.0.1
	Host string `yaml:"host"`

	Task         PeerConfig `yaml:"task"`
	Peripheral   PeerConfig `yaml:"peripheral"`
	HandStreamer PeerConfig `yaml:"hand_streamer"`

	// ConnectTimeout bounds each connection attempt.
	// Default: 3s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Address returns the host:port of p, falling back to the shared host.
func (c PeersConfig) Address(p PeerConfig) string {
	host := p.Host
	if host == "" {
		host = c.Host
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// DatagramConfig configures the UDP hand-location receiver.
type DatagramConfig struct {
	// Address is the local UDP address to bind.
	// Default: :8982
	Address string `yaml:"address"`

	// Disabled turns the receiver off entirely.
	Disabled bool `yaml:"disabled"`
}

// DevicesConfig holds per-device calibration.
type DevicesConfig struct {
	// HandOffset is the mounting offset of the head-mounted hand
	// tracker, in centimeters, in the tracker's own frame.
	HandOffset geometry.Vector `yaml:"hand_offset"`
}

// SessionConfig configures the orchestrator.
type SessionConfig struct {
	// SetupFile is the JSONC task-setup file. A missing file yields
	// the built-in setup.
	SetupFile string `yaml:"setup_file"`

	// SetupIndex selects one setup from the file.
	SetupIndex int `yaml:"setup_index"`

	// Pace is sent to the task peer as profile<pace> and names the
	// archive sub-folder. Empty disables both.
	Pace string `yaml:"pace"`

	// Debug bypasses the device check and substitutes a synthetic gaze
	// stream when no gaze hardware is present.
	Debug bool `yaml:"debug"`

	// Verbose logs every 50th fused sample at info level with all values.
	Verbose bool `yaml:"verbose"`

	// Rating asks the operator for a 1..7 rating after each task.
	Rating bool `yaml:"rating"`

	ReplyTimeout      time.Duration `yaml:"reply_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	StartStagger      time.Duration `yaml:"start_stagger"`
	StopSettle        time.Duration `yaml:"stop_settle"`
	ProfileDelay      time.Duration `yaml:"profile_delay"`
	SyntheticInterval time.Duration `yaml:"synthetic_interval"`

	// StaleMarkerAge is the oldest in-progress marker still reported
	// as a crashed session at startup.
	// Default: 168h
	StaleMarkerAge time.Duration `yaml:"stale_marker_age"`
}

// ArchiveConfig configures participant data collection.
type ArchiveConfig struct {
	// Destination holds one P<NN> folder per participant.
	Destination string `yaml:"destination"`

	// Masks select the files in Log.Folder that belong to a session.
	Masks []string `yaml:"masks"`

	// Paces lists every pace a participant must complete.
	Paces []string `yaml:"paces"`

	// Recipients are age public keys. When set, collected files are
	// encrypted and the plaintext is removed.
	Recipients []string `yaml:"recipients"`
}

// CatalogConfig configures the SQLite session catalog.
type CatalogConfig struct {
	// Path is the database file. Empty disables the catalog.
	Path string `yaml:"path"`
}

// Default returns a configuration that runs every component on the
// local machine with data under ${HOME}/gazelog.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	root := filepath.Join(homeDir, "gazelog")

	return &Config{
		DataRoot: root,
		Log: LogConfig{
			Folder:      filepath.Join(root, "logs"),
			Prefix:      "vdl",
			Compression: "none",
			DebugFolder: filepath.Join(root, "debug"),
		},
		Peers: PeersConfig{
			Host:           "127.0.0.1",
			Task:           PeerConfig{Port: 8963},
			Peripheral:     PeerConfig{Port: 8964},
			HandStreamer:   PeerConfig{Port: 8965},
			ConnectTimeout: 3 * time.Second,
		},
		HandDatagram: DatagramConfig{
			Address: ":8982",
		},
		Devices: DevicesConfig{
			HandOffset: geometry.DefaultHandOffset,
		},
		Session: SessionConfig{
			SetupFile:         "setup.json",
			Rating:            true,
			ReplyTimeout:      3 * time.Second,
			PollInterval:      100 * time.Millisecond,
			StartStagger:      time.Second,
			StopSettle:        500 * time.Millisecond,
			ProfileDelay:      200 * time.Millisecond,
			SyntheticInterval: 5 * time.Millisecond,
			StaleMarkerAge:    7 * 24 * time.Hour,
		},
		Archive: ArchiveConfig{
			Destination: filepath.Join(root, "data"),
			Masks:       []string{"*.txt", "*.txt.zst", "*.txt.lz4"},
			Paces:       []string{"slow", "fast"},
		},
		Catalog: CatalogConfig{
			Path: filepath.Join(root, "catalog.db"),
		},
	}
}

// environment is the process environment consulted by Load.
type environment struct {
	ConfigPath string `env:"GAZELOG_CONFIG"`
}

// Load loads configuration from the file named by GAZELOG_CONFIG.
// When the variable is unset the defaults are returned, expanded.
func Load() (*Config, error) {
	var e environment
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if e.ConfigPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(e.ConfigPath)
}

// LoadFile loads configuration from a specific file path. Fields absent
// from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"GAZELOG_DATA": c.DataRoot,
		"HOME":         os.Getenv("HOME"),
	}

	c.DataRoot = expandVars(c.DataRoot, vars)
	vars["GAZELOG_DATA"] = c.DataRoot

	c.Log.Folder = expandVars(c.Log.Folder, vars)
	c.Log.DebugFolder = expandVars(c.Log.DebugFolder, vars)
	c.Session.SetupFile = expandVars(c.Session.SetupFile, vars)
	c.Archive.Destination = expandVars(c.Archive.Destination, vars)
	c.Catalog.Path = expandVars(c.Catalog.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Log.Folder == "" {
		errs = append(errs, fmt.Errorf("log.folder is required"))
	}
	if c.Log.Prefix == "" {
		errs = append(errs, fmt.Errorf("log.prefix is required"))
	}
	compressions := []string{"", "none", "zstd", "lz4"}
	if !slices.Contains(compressions, c.Log.Compression) {
		errs = append(errs, fmt.Errorf("log.compression must be one of: none, zstd, lz4"))
	}

	if c.Peers.Host == "" {
		errs = append(errs, fmt.Errorf("peers.host is required"))
	}
	for _, peer := range []struct {
		name   string
		config PeerConfig
	}{
		{"task", c.Peers.Task},
		{"peripheral", c.Peers.Peripheral},
		{"hand_streamer", c.Peers.HandStreamer},
	} {
		if peer.config.Port <= 0 || peer.config.Port > 65535 {
			errs = append(errs, fmt.Errorf("peers.%s.port %d out of range", peer.name, peer.config.Port))
		}
	}
	if c.Peers.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("peers.connect_timeout must be positive"))
	}

	if !c.HandDatagram.Disabled && c.HandDatagram.Address == "" {
		errs = append(errs, fmt.Errorf("hand_datagram.address is required unless disabled"))
	}

	if c.Session.SetupIndex < 0 {
		errs = append(errs, fmt.Errorf("session.setup_index must not be negative"))
	}
	for _, interval := range []struct {
		name  string
		value time.Duration
	}{
		{"reply_timeout", c.Session.ReplyTimeout},
		{"poll_interval", c.Session.PollInterval},
		{"synthetic_interval", c.Session.SyntheticInterval},
	} {
		if interval.value <= 0 {
			errs = append(errs, fmt.Errorf("session.%s must be positive", interval.name))
		}
	}
	if c.Session.StartStagger < 0 || c.Session.StopSettle < 0 || c.Session.ProfileDelay < 0 {
		errs = append(errs, fmt.Errorf("session delays must not be negative"))
	}
	if c.Session.Pace != "" && len(c.Archive.Paces) > 0 && !slices.ContainsFunc(c.Archive.Paces, func(pace string) bool {
		return strings.EqualFold(pace, c.Session.Pace)
	}) {
		errs = append(errs, fmt.Errorf("session.pace %q is not one of archive.paces %v", c.Session.Pace, c.Archive.Paces))
	}

	if c.Archive.Destination == "" {
		errs = append(errs, fmt.Errorf("archive.destination is required"))
	}
	if len(c.Archive.Masks) == 0 {
		errs = append(errs, fmt.Errorf("archive.masks must list at least one pattern"))
	}
	for _, mask := range c.Archive.Masks {
		if _, err := filepath.Match(mask, ""); err != nil {
			errs = append(errs, fmt.Errorf("archive.masks: %q: %w", mask, err))
		}
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured output directories.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Log.Folder,
		c.Log.DebugFolder,
		c.Archive.Destination,
	}
	if c.Catalog.Path != "" {
		paths = append(paths, filepath.Dir(c.Catalog.Path))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
