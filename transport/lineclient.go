// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gazelog/gazelog/lib/netutil"
)

// Defaults for LineClientConfig and Connect.
const (
	DefaultConnectTimeout    = 3 * time.Second
	DefaultInitialBufferSize = 4096

	outboxCapacity = 256
	writeTimeout   = time.Second
	drainTimeout   = time.Second
)

// LineClientConfig configures a LineClient. Every hook is optional and
// runs on the client's read goroutine.
type LineClientConfig struct {
	// Name identifies the peer in logs and errors, e.g. "task".
	Name string

	// Dialer defaults to a TCPDialer.
	Dialer Dialer

	// InitialBufferSize is the read buffer size before growth.
	InitialBufferSize int

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnConnect runs once per connection before the first read.
	OnConnect func()

	// OnMessage receives each message with trailing CR/LF removed.
	// The next read does not start until it returns.
	OnMessage func(message string)

	// OnDisconnect runs once when the read loop ends. err is nil when
	// the peer closed the connection or Stop was called.
	OnDisconnect func(err error)
}

// LineClient is a line-protocol connection to one peer. The zero value
// is not usable; create one with NewLineClient. A LineClient may be
// connected again after it has disconnected.
type LineClient struct {
	name       string
	dialer     Dialer
	bufferSize int
	logger     *slog.Logger

	onConnect    func()
	onMessage    func(string)
	onDisconnect func(error)

	mu      sync.Mutex
	session *lineSession
	address string
}

// lineSession is one established connection.
type lineSession struct {
	conn   net.Conn
	outbox chan string

	// closing is guarded by LineClient.mu. Once set, the outbox is
	// closed and Send drops messages.
	closing bool

	// reader is the goroutine ID of the read loop, zero until it runs.
	// Stop compares it with its caller to tell a hook calling Stop from
	// any other goroutine.
	reader atomic.Uint64

	writerDone chan struct{}
	readerDone chan struct{}
}

// NewLineClient returns a disconnected client.
func NewLineClient(cfg LineClientConfig) *LineClient {
	client := &LineClient{
		name:         cfg.Name,
		dialer:       cfg.Dialer,
		bufferSize:   cfg.InitialBufferSize,
		logger:       cfg.Logger,
		onConnect:    cfg.OnConnect,
		onMessage:    cfg.OnMessage,
		onDisconnect: cfg.OnDisconnect,
	}
	if client.name == "" {
		client.name = "peer"
	}
	if client.dialer == nil {
		client.dialer = &TCPDialer{}
	}
	if client.bufferSize <= 0 {
		client.bufferSize = DefaultInitialBufferSize
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}
	client.logger = client.logger.With("peer", client.name)
	if client.onConnect == nil {
		client.onConnect = func() {}
	}
	if client.onMessage == nil {
		client.onMessage = func(string) {}
	}
	if client.onDisconnect == nil {
		client.onDisconnect = func(error) {}
	}
	return client
}

// Name returns the configured peer name.
func (c *LineClient) Name() string { return c.name }

// Address returns the address of the last Connect attempt.
func (c *LineClient) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// IsConnected reports whether a connection is established and not
// being stopped.
func (c *LineClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && !c.session.closing
}

// Connect dials address and starts the read and write goroutines. A
// non-positive timeout means DefaultConnectTimeout. Errors are
// ErrAlreadyConnected, an error wrapping ErrTimeout, or a
// *ConnectionError.
func (c *LineClient) Connect(ctx context.Context, address string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.address = address
	c.mu.Unlock()

	dialContext, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dialContext, address)
	if err != nil {
		var netErr net.Error
		if ctx.Err() == nil && (errors.Is(dialContext.Err(), context.DeadlineExceeded) ||
			(errors.As(err, &netErr) && netErr.Timeout())) {
			return fmt.Errorf("connecting to %s at %s after %v: %w", c.name, address, timeout, ErrTimeout)
		}
		return &ConnectionError{Peer: c.name, Address: address, Err: err}
	}

	session := &lineSession{
		conn:       conn,
		outbox:     make(chan string, outboxCapacity),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}

	c.mu.Lock()
	if c.session != nil {
		// A concurrent Connect won.
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyConnected
	}
	c.session = session
	c.mu.Unlock()

	c.logger.Info("peer connected", "address", address)
	go c.writeLoop(session)
	go c.readLoop(session)
	return nil
}

// Send queues message followed by a newline. It never blocks: while
// disconnected, or if the queue is full, the message is dropped.
func (c *LineClient) Send(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session := c.session
	if session == nil || session.closing {
		c.logger.Debug("send skipped, not connected", "message", message)
		return
	}
	select {
	case session.outbox <- message + "\n":
	default:
		c.logger.Warn("send queue full, message dropped", "message", message)
	}
}

// Stop flushes queued sends (bounded), closes the socket and waits for
// the read loop to end, including any OnMessage call in progress and
// OnDisconnect. It is idempotent and safe from any goroutine. Called
// from a hook on the read goroutine it does not wait for itself; the
// loop ends as soon as the hook returns.
func (c *LineClient) Stop() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session == nil {
		return
	}

	c.closeOutbox(session)
	select {
	case <-session.writerDone:
	case <-time.After(drainTimeout):
		c.logger.Warn("queued sends not flushed before stop")
	}
	session.conn.Close()

	if session.reader.Load() == goroutineID() {
		return
	}
	<-session.readerDone
}

// goroutineID parses the calling goroutine's ID from its stack header,
// "goroutine 42 [running]:".
func goroutineID() uint64 {
	var buffer [64]byte
	header := string(buffer[:runtime.Stack(buffer[:], false)])
	rest, ok := strings.CutPrefix(header, "goroutine ")
	if !ok {
		return 0
	}
	id, _, _ := strings.Cut(rest, " ")
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (c *LineClient) closeOutbox(session *lineSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !session.closing {
		session.closing = true
		close(session.outbox)
	}
}

func (c *LineClient) writeLoop(session *lineSession) {
	defer close(session.writerDone)
	for message := range session.outbox {
		session.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if _, err := io.WriteString(session.conn, message); err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Warn("send failed", "message", strings.TrimSuffix(message, "\n"), "error", err)
			}
			// Drain so closeOutbox never blocks anyone; the read loop
			// notices the dead socket on its own.
			for range session.outbox {
			}
			return
		}
	}
}

func (c *LineClient) readLoop(session *lineSession) {
	session.reader.Store(goroutineID())
	var loopErr error
	defer func() {
		c.closeOutbox(session)
		session.conn.Close()

		c.mu.Lock()
		if c.session == session {
			c.session = nil
		}
		c.mu.Unlock()

		if loopErr != nil {
			c.logger.Warn("peer connection lost", "error", loopErr)
		} else {
			c.logger.Info("peer disconnected")
		}
		c.onDisconnect(loopErr)
		close(session.readerDone)
	}()

	c.onConnect()

	buffer := make([]byte, c.bufferSize)
	for {
		var raw []byte
		var err error
		raw, buffer, err = readMessage(session.conn, buffer)

		if message := strings.TrimRight(string(raw), "\r\n"); message != "" {
			c.logger.Debug("peer message", "message", truncate(message, 120))
			c.onMessage(message)
		}

		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				loopErr = err
			}
			return
		}
	}
}

// readMessage reads one message as described in the package comment.
// It returns the bytes read, the (possibly grown) buffer to reuse, and
// any read error. Bytes may be non-empty together with an error.
func readMessage(conn io.Reader, buffer []byte) ([]byte, []byte, error) {
	n, err := conn.Read(buffer)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return nil, buffer, err
	}
	total := n
	for err == nil && total == len(buffer) && buffer[total-1] != '\n' {
		grown := make([]byte, 2*len(buffer))
		copy(grown, buffer[:total])
		buffer = grown
		n, err = conn.Read(buffer[total:])
		total += n
	}
	message := make([]byte, total)
	copy(message, buffer[:total])
	return message, buffer, err
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
