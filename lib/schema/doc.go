// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the sample and plan types that cross
// component boundaries: gaze samples from the eye tracker, hand
// locations from either hand tracker, and the task conditions of a
// session plan.
//
// All types are plain values. Passing one to another goroutine copies
// it, so a consumer can never observe a half-written update.
//
// [HandLocation] is also the JSON schema of the UDP hand datagram:
//
//	{"palm":{"x":1,"y":2,"z":3},"thumb":{...},"index":{...},"middle":{...}}
package schema
