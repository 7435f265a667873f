// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package transport

import "syscall"

func reuseAddress(network, address string, raw syscall.RawConn) error { return nil }
