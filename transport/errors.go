// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned by Connect while a read loop
	// from an earlier connection is still running.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrTimeout is returned (wrapped) by Connect when the connection
	// is not established within the timeout.
	ErrTimeout = errors.New("transport: timed out")
)

// ConnectionError is a socket-level failure to reach a peer.
type ConnectionError struct {
	Peer    string
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s at %s: %v", e.Peer, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// DecodeError is a datagram that held no decodable hand location.
type DecodeError struct {
	// Payload is the start of the offending datagram.
	Payload string
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding hand datagram %q: %v", e.Payload, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
