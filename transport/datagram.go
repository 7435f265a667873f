// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gazelog/gazelog/lib/netutil"
	"github.com/gazelog/gazelog/lib/schema"
)

// DefaultDatagramAddress is where the external hand tracker sends.
const DefaultDatagramAddress = ":8982"

const (
	maxDatagramSize    = 64 * 1024
	defaultStopTimeout = time.Second
)

// DatagramConfig configures ListenDatagrams.
type DatagramConfig struct {
	// Address defaults to DefaultDatagramAddress.
	Address string

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnData receives every decoded hand location, on the receive
	// goroutine.
	OnData func(schema.HandLocation)

	// StopTimeout bounds how long Stop waits for the loop. Defaults
	// to one second.
	StopTimeout time.Duration
}

// DatagramReceiver is a running UDP receive loop.
type DatagramReceiver struct {
	conn        net.PacketConn
	logger      *slog.Logger
	onData      func(schema.HandLocation)
	stopTimeout time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	received atomic.Uint64
	dropped  atomic.Uint64
}

// ListenDatagrams binds the UDP socket (with SO_REUSEADDR where the
// platform supports it, so a restarted recorder can rebind at once)
// and starts the receive loop. The loop ends when ctx is cancelled or
// Stop is called.
func ListenDatagrams(ctx context.Context, cfg DatagramConfig) (*DatagramReceiver, error) {
	address := cfg.Address
	if address == "" {
		address = DefaultDatagramAddress
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	onData := cfg.OnData
	if onData == nil {
		onData = func(schema.HandLocation) {}
	}
	stopTimeout := cfg.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	listenConfig := net.ListenConfig{Control: reuseAddress}
	conn, err := listenConfig.ListenPacket(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("listening for hand datagrams on %s: %w", address, err)
	}

	loopContext, cancel := context.WithCancel(ctx)
	receiver := &DatagramReceiver{
		conn:        conn,
		logger:      logger.With("listener", conn.LocalAddr().String()),
		onData:      onData,
		stopTimeout: stopTimeout,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go receiver.loop(loopContext)
	receiver.logger.Info("hand datagram receiver listening")
	return receiver, nil
}

// LocalAddr returns the bound address.
func (r *DatagramReceiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Received counts datagrams that decoded to a hand location.
func (r *DatagramReceiver) Received() uint64 { return r.received.Load() }

// Dropped counts datagrams that did not decode.
func (r *DatagramReceiver) Dropped() uint64 { return r.dropped.Load() }

// Stop cancels the loop, closes the socket and waits up to the stop
// timeout for the loop to exit. It is idempotent.
func (r *DatagramReceiver) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		r.conn.Close()
		select {
		case <-r.done:
		case <-time.After(r.stopTimeout):
			r.logger.Warn("hand datagram loop did not exit in time")
		}
	})
}

func (r *DatagramReceiver) loop(ctx context.Context) {
	defer close(r.done)
	defer r.conn.Close()

	// ReadFrom does not observe ctx; closing the socket unblocks it.
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buffer := make([]byte, maxDatagramSize)
	for {
		n, _, err := r.conn.ReadFrom(buffer)
		if err != nil {
			if ctx.Err() != nil || netutil.IsExpectedCloseError(err) {
				return
			}
			r.logger.Warn("hand datagram read failed", "error", err)
			continue
		}

		location, err := DecodeHandLocation(buffer[:n])
		if err != nil {
			r.dropped.Add(1)
			r.logger.Debug("hand datagram dropped", "error", err)
			continue
		}
		r.received.Add(1)
		r.onData(location)
	}
}

// DecodeHandLocation decodes one datagram. A payload that is not a
// single JSON object is searched line by line from the end, and the
// last line holding a valid object wins; senders that flush a partial
// write followed by the full one produce exactly that shape. A payload
// with no valid object yields a *DecodeError.
func DecodeHandLocation(payload []byte) (schema.HandLocation, error) {
	location, err := decodeObject(payload)
	if err == nil {
		return location, nil
	}
	firstErr := err

	lines := bytes.Split(payload, []byte{'\n'})
	if len(lines) > 1 {
		for i := len(lines) - 1; i >= 0; i-- {
			if location, err := decodeObject(lines[i]); err == nil {
				return location, nil
			}
		}
	}
	return schema.HandLocation{}, &DecodeError{Payload: truncate(string(payload), 80), Err: firstErr}
}

var errNotObject = errors.New("not a JSON object")

func decodeObject(data []byte) (schema.HandLocation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return schema.HandLocation{}, errNotObject
	}
	var location schema.HandLocation
	if err := json.Unmarshal(data, &location); err != nil {
		return schema.HandLocation{}, err
	}
	return location, nil
}
