// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds small socket helpers shared by the line client,
// the datagram receiver and the peer emulator.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is an ordinary end of a
// connection: EOF, a socket closed by Stop, a broken pipe, or a reset.
// Peers in the lab are restarted freely, so none of these is worth an
// error-level log line.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
