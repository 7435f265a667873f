// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package sensor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gazelog/gazelog/lib/clock"
	"github.com/gazelog/gazelog/lib/schema"
	"github.com/gazelog/gazelog/lib/testutil"
)

func TestUnavailable(t *testing.T) {
	var gaze GazeSource = Unavailable{}
	if gaze.Ready() {
		t.Error("Unavailable reports ready")
	}
	if err := gaze.Start(func(schema.EyeHead) {}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Start = %v, want ErrUnavailable", err)
	}
	var hand HandSource = UnavailableHand{}
	if err := hand.Start(func(schema.HandLocation) {}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Start = %v, want ErrUnavailable", err)
	}
}

func TestManual(t *testing.T) {
	source := NewManual[schema.EyeHead](true)
	var _ GazeSource = source

	if source.Emit(schema.EyeHead{Timestamp: 1}) {
		t.Fatal("Emit before Start delivered")
	}

	var got []int64
	source.Start(func(sample schema.EyeHead) { got = append(got, sample.Timestamp) })
	source.Emit(schema.EyeHead{Timestamp: 2})
	source.Emit(schema.EyeHead{Timestamp: 3})
	source.Stop()
	source.Emit(schema.EyeHead{Timestamp: 4})

	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("delivered %v, want [2 3]", got)
	}
	if source.Starts() != 1 {
		t.Errorf("Starts = %d", source.Starts())
	}
	source.SetReady(false)
	if source.Ready() {
		t.Error("SetReady(false) ignored")
	}
}

func TestRunSynthetic(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	samples := make(chan schema.EyeHead, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		RunSynthetic(ctx, fake, 5*time.Millisecond, func(sample schema.EyeHead) { samples <- sample })
		close(done)
	}()

	fake.WaitForTimers(1)
	for i := 1; i <= 3; i++ {
		fake.Advance(5 * time.Millisecond)
		sample := testutil.RequireReceive(t, samples, 5*time.Second, "synthetic sample %d", i)
		if want := int64(i * 5000); sample.Timestamp != want {
			t.Errorf("sample %d Timestamp = %d, want %d", i, sample.Timestamp, want)
		}
	}

	cancel()
	testutil.RequireClosed(t, done, 5*time.Second, "generator exit")
}
