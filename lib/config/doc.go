// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for gazelog.
//
// Configuration comes from a single file named either by the
// GAZELOG_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). When neither is given the operator binary runs on
// [Default]; there is no search path and no discovery.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${GAZELOG_DATA}, and ${VAR:-default} patterns are expanded.
// Environment variables never override individual values.
//
// Key exports:
//
//   - [Config] -- master struct with Log, Peers, Session, Archive, Catalog
//   - [Default] -- returns a Config that works on a single workstation
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config
