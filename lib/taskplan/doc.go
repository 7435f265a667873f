// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskplan turns a task-setup file into the ordered list of
// task conditions a session runs, and writes the session manifest.
//
// A setup file is a JSON array (comments and trailing commas allowed,
// via tidwall/jsonc) of setups; the operator selects one by index:
//
//	[
//	  // 0: practice, a single wait trial
//	  {},
//	  // 1: main block
//	  {
//	    "randomized": true,
//	    "repetitions": 2,
//	    "cttLambdaIndexes": [-1, 0, 5, 9],
//	    "nbackTaskIndexes": [-1, 1, 4],
//	  },
//	]
//
// [Setup.Expand] produces repetitions × lambdas × n-back conditions,
// lambda-major, and shuffles them when the setup is randomized. A
// condition with a negative index is a wait trial.
//
// The manifest ([WriteManifest]) lists the conditions in execution
// order with the lambda value and n-back digits/layout they map to in
// the peers' fixed catalogs ([Lambdas], [NBackTasks]).
package taskplan
