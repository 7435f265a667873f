// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package geometry holds the vector and rotation value types shared by
// every sensor stream, and the coordinate transform that moves a
// hand-tracker point into head-relative space.
//
// Frames use the hand tracker's native labelling throughout: X points
// left, Y points forward, Z points down. Rotations are Euler angles in
// degrees as reported by the headset.
//
// # Head-rotation compensation
//
// [Transform] translates a point by the tracker's mounting offset,
// then rotates it by the negated head angles (yaw, then pitch, then
// roll, ZYX intrinsic), so the result compensates for head motion
// rather than following it. The offset is applied once, before
// rotation, and is not subtracted again afterwards. Every hand stream
// that reports in head-relative space uses this same convention so the
// headset-mounted and external trackers land in one frame.
//
// The transform is a pure function: the same inputs always produce the
// same output.
package geometry
