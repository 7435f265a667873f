// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package console is the operator's side of a recording session.
//
// A single goroutine reads lines from the input; every prompt consumes
// the next line, so a line typed before a prompt appears is not lost.
// End of input is reported as [io.EOF] from every prompt.
//
// Output is styled with lipgloss when the writer is a terminal and is
// plain text otherwise.
package console
