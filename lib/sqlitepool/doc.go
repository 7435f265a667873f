// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite connection pool behind the
// session catalog.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool and applies the same
// pragmas to every connection:
//
//   - journal_mode=WAL, so the console can read the catalog while the
//     recorder writes task rows.
//   - synchronous=FULL. The catalog is the study's record of which
//     participant ran which conditions; a commit must survive power
//     loss in the lab.
//   - busy_timeout=5000 and foreign_keys=ON.
//
// Callers [Pool.Take] a connection, use it on one goroutine, and
// [Pool.Put] it back. [Config.OnConnect] runs once per connection and
// is where the catalog creates its schema.
package sqlitepool
