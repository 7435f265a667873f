// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec configures CBOR for gazelog's internal on-disk state.
//
// External interfaces stay human-readable: the UDP hand payload is
// JSON, logs and manifests are TSV. Internal state that only gazelog
// itself reads back, currently the in-progress session marker kept by
// [github.com/gazelog/gazelog/lib/watchdog], is CBOR with Core
// Deterministic Encoding (RFC 8949 §4.2), so identical state always
// yields identical bytes.
//
// Callers import this package rather than fxamacker/cbor directly.
package codec
