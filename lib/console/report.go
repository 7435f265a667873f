// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"strings"
)

// Statistics is what the operator sees after each task.
type Statistics struct {
	GazeSamples     int
	HeadsetTotal    int
	TopViewTotal    int
	StreamerPackets int

	// Percentages are 0..100.
	HeadsetTracking float64
	TopViewTracking float64
}

// Report prints the statistics of one task.
func (c *Console) Report(stats Statistics) {
	var b strings.Builder
	row := func(name, value string) {
		fmt.Fprintf(&b, "%s %s\n", c.label.Render(fmt.Sprintf("%-40s", name+":")), c.value.Render(value))
	}

	fmt.Fprintln(&b)
	row("Gaze samples", fmt.Sprint(stats.GazeSamples))
	row("Headset hand tracking samples", fmt.Sprint(stats.HeadsetTotal))
	row("Top-view hand tracking samples", fmt.Sprint(stats.TopViewTotal))
	if stats.StreamerPackets > 0 {
		valid := 100 * float64(stats.TopViewTotal) / float64(stats.StreamerPackets)
		row("Valid top-view hand tracking percentage", fmt.Sprintf("%.1f", valid))
	}
	row("Hand tracking percentage",
		fmt.Sprintf("%.1f %% (headset) / %.1f %% (top-view)", stats.HeadsetTracking, stats.TopViewTracking))

	fmt.Fprint(c.out, b.String())
	fmt.Fprintln(c.out)
}
