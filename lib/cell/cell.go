// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package cell provides Cell, a single mutex-guarded value holding the
// latest known state of one input stream.
//
// Each stream gets its own cell so a slow writer on one stream never
// blocks readers of another, and no code path ever holds two cell
// locks at once. Values go in and come out by copy; the raw storage is
// never exposed. T should therefore be a value type (structs of
// numbers and strings); a T containing slices or maps would share
// their backing storage across copies.
package cell

import "sync"

// Cell holds one value of type T. The zero Cell holds the zero T and
// is ready to use. A Cell must not be copied after first use.
type Cell[T any] struct {
	mu    sync.Mutex
	value T
}

// New returns a Cell holding initial.
func New[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial}
}

// Read returns a copy of the current value.
func (c *Cell[T]) Read() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Write replaces the current value.
func (c *Cell[T]) Write(value T) {
	c.mu.Lock()
	c.value = value
	c.mu.Unlock()
}

// Update calls mutate with a pointer to the value while holding the
// lock, so several fields change together. mutate must not retain the
// pointer or touch another Cell.
func (c *Cell[T]) Update(mutate func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mutate(&c.value)
}

// Swap stores value and returns the previous one in a single critical
// section. Swap(zero) is take-and-clear.
func (c *Cell[T]) Swap(value T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.value
	c.value = value
	return previous
}
