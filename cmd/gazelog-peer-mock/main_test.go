// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"
	"time"

	"github.com/gazelog/gazelog/lib/peersim"
	"github.com/gazelog/gazelog/lib/testutil"
)

func TestPeerConfigsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	configs, err := peerConfigs(opts, testutil.Logger())
	if err != nil {
		t.Fatalf("peerConfigs: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("got %d peers, want 3", len(configs))
	}

	want := map[peersim.Kind]string{
		peersim.Task:         "127.0.0.1:8963",
		peersim.Peripheral:   "127.0.0.1:8964",
		peersim.HandStreamer: "127.0.0.1:8965",
	}
	for _, cfg := range configs {
		if cfg.Address != want[cfg.Kind] {
			t.Errorf("%s address = %q, want %q", cfg.Kind, cfg.Address, want[cfg.Kind])
		}
	}
	if configs[0].Behavior.FinishAfter != 30*time.Second {
		t.Errorf("task FinishAfter = %v", configs[0].Behavior.FinishAfter)
	}
	if configs[2].Behavior.DatagramTarget != "127.0.0.1:8982" {
		t.Errorf("streamer datagram target = %q", configs[2].Behavior.DatagramTarget)
	}
}

func TestPeerConfigsSelection(t *testing.T) {
	opts, err := parseFlags([]string{"--kind", "task", "--finish-after", "2s", "--silent", "--host", "0.0.0.0", "--task-port", "9000"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	configs, err := peerConfigs(opts, testutil.Logger())
	if err != nil {
		t.Fatalf("peerConfigs: %v", err)
	}
	if len(configs) != 1 || configs[0].Kind != peersim.Task {
		t.Fatalf("configs = %+v", configs)
	}
	behavior := configs[0].Behavior
	if behavior.FinishAfter != 2*time.Second || !behavior.Silent {
		t.Errorf("behavior = %+v", behavior)
	}
	if configs[0].Address != "0.0.0.0:9000" {
		t.Errorf("address = %q", configs[0].Address)
	}
}

func TestPeerConfigsRejectsUnknownKind(t *testing.T) {
	opts, err := parseFlags([]string{"--kind", "projector"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if _, err := peerConfigs(opts, testutil.Logger()); err == nil {
		t.Fatal("peerConfigs accepted an unknown kind")
	}
}
