// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the gazelog binaries.
//
// Values are injected at build time:
//
//	go build -ldflags "-X github.com/gazelog/gazelog/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without injection [Info] falls back to the VCS stamp the Go
// toolchain embeds, and the version reads "0.1.0-dev". Both binaries
// log [Info] at startup so a debug log can be traced to its build.
package version
