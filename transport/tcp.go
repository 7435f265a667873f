// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Dialer opens the stream connection behind a LineClient. Tests
// substitute dialers that stall or fail on demand.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

var _ Dialer = (*TCPDialer)(nil)

// TCPDialer dials peers over TCP.
type TCPDialer struct {
	// KeepAlive is the TCP keep-alive period. Zero uses the Go
	// default; negative disables keep-alives.
	KeepAlive time.Duration
}

// DialContext opens a TCP connection to address (host:port). The
// connect timeout comes from ctx. Nagle's algorithm is disabled so a
// one-word command like "start" leaves immediately.
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	conn, err := (&net.Dialer{KeepAlive: d.KeepAlive}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}
