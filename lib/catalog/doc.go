// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog keeps a SQLite index of recorded sessions and tasks.
//
// The record files remain the primary output. The catalog answers the
// questions an operator asks between sessions (which participants ran,
// with which pace, how each task ended, how good hand tracking was)
// without reopening every file. Rows are written by the recorder at
// session start, after every task, and at session end; a session whose
// finished_at stays NULL was killed before it could clean up.
//
// Connections come from [sqlitepool]; writes use IMMEDIATE transactions.
package catalog
