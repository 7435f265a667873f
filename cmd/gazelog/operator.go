// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/gazelog/gazelog/lib/console"
	"github.com/gazelog/gazelog/recorder"
)

// consoleOperator adapts the terminal console to recorder.Operator.
type consoleOperator struct {
	*console.Console
}

var _ recorder.Operator = consoleOperator{}

func (o consoleOperator) Announce(message string) {
	o.Info(message)
}

func (o consoleOperator) Report(stats recorder.TaskStats) {
	o.Console.Report(statistics(stats))
}

func statistics(stats recorder.TaskStats) console.Statistics {
	return console.Statistics{
		GazeSamples:     stats.GazeSamples,
		HeadsetTotal:    stats.HeadsetTotal,
		TopViewTotal:    stats.TopViewTotal,
		StreamerPackets: stats.StreamerPackets,
		HeadsetTracking: stats.HeadsetPercent(),
		TopViewTracking: stats.TopViewPercent(),
	}
}
