// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sensor defines the boundary between vendor tracker bindings
// and the recorder.
//
// A binding for an eye tracker implements [GazeSource]; a binding for
// a hand tracker implements [HandSource]. Both deliver samples through
// a handler registered with Start, on whatever goroutine the vendor
// SDK calls back on. The recorder treats each handler call as
// independent and copies what it needs before returning.
//
// The package ships [Unavailable] for builds without a vendor SDK,
// [Manual] for benches and tests that push samples by hand, and
// [RunSynthetic], which stands in for gaze hardware in debug mode.
package sensor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gazelog/gazelog/lib/clock"
	"github.com/gazelog/gazelog/lib/schema"
)

// ErrUnavailable is returned by Start on a source with no device.
var ErrUnavailable = errors.New("sensor: device unavailable")

// Source is the lifecycle shared by every sensor.
type Source interface {
	// Ready reports whether the device is connected and calibrated.
	Ready() bool

	// Stop ends delivery. After Stop returns the handler is not
	// called again. Stop on a stopped source does nothing.
	Stop()
}

// GazeSource delivers eye and head samples.
type GazeSource interface {
	Source
	Start(handler func(schema.EyeHead)) error
}

// HandSource delivers hand locations in the tracker's own frame.
type HandSource interface {
	Source
	Start(handler func(schema.HandLocation)) error
}

// Unavailable is a source with no device behind it.
type Unavailable struct{}

var (
	_ GazeSource = Unavailable{}
	_ HandSource = UnavailableHand{}
)

func (Unavailable) Ready() bool                      { return false }
func (Unavailable) Stop()                            {}
func (Unavailable) Start(func(schema.EyeHead)) error { return ErrUnavailable }

// UnavailableHand is a hand source with no device behind it.
type UnavailableHand struct{}

func (UnavailableHand) Ready() bool                           { return false }
func (UnavailableHand) Stop()                                 {}
func (UnavailableHand) Start(func(schema.HandLocation)) error { return ErrUnavailable }

// Manual is a source driven by Emit. It satisfies GazeSource when T is
// schema.EyeHead and HandSource when T is schema.HandLocation.
type Manual[T any] struct {
	mu      sync.Mutex
	ready   bool
	handler func(T)
	starts  int
}

// NewManual returns a stopped Manual source reporting ready.
func NewManual[T any](ready bool) *Manual[T] {
	return &Manual[T]{ready: ready}
}

func (m *Manual[T]) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// SetReady changes what Ready reports.
func (m *Manual[T]) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

func (m *Manual[T]) Start(handler func(T)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
	m.starts++
	return nil
}

func (m *Manual[T]) Stop() {
	m.mu.Lock()
	m.handler = nil
	m.mu.Unlock()
}

// Starts counts Start calls.
func (m *Manual[T]) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Emit delivers sample to the handler on the calling goroutine and
// reports whether a handler was registered. The lock is held during
// delivery so Stop waits for an in-flight sample.
func (m *Manual[T]) Emit(sample T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return false
	}
	m.handler(sample)
	return true
}

// RunSynthetic calls emit with an empty gaze sample every interval
// until ctx ends. Timestamps count microseconds since the first sample
// so the log keeps a plausible gaze clock.
func RunSynthetic(ctx context.Context, clk clock.Clock, interval time.Duration, emit func(schema.EyeHead)) {
	ticker := clk.NewTicker(interval)
	defer ticker.Stop()
	start := clk.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			emit(schema.EyeHead{Timestamp: now.Sub(start).Microseconds()})
		}
	}
}
