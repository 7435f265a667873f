// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gazelog/gazelog/lib/testutil"
)

const testTimeout = 5 * time.Second

// fakePeer accepts a single connection on loopback.
type fakePeer struct {
	listener net.Listener
	accepted chan net.Conn
}

func newFakePeer(t *testing.T) *fakePeer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	peer := &fakePeer{listener: listener, accepted: make(chan net.Conn, 1)}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		peer.accepted <- conn
	}()
	t.Cleanup(func() { listener.Close() })
	return peer
}

func (p *fakePeer) address() string { return p.listener.Addr().String() }

func (p *fakePeer) conn(t *testing.T) net.Conn {
	t.Helper()
	conn := testutil.RequireReceive(t, p.accepted, testTimeout, "peer accepting")
	t.Cleanup(func() { conn.Close() })
	return conn
}

// recordingClient wires every hook to a channel.
type recordingClient struct {
	*LineClient
	connected    chan struct{}
	messages     chan string
	disconnected chan error
}

func newRecordingClient(t *testing.T, cfg LineClientConfig) *recordingClient {
	t.Helper()
	recorder := &recordingClient{
		connected:    make(chan struct{}, 4),
		messages:     make(chan string, 64),
		disconnected: make(chan error, 4),
	}
	cfg.Name = "task"
	cfg.Logger = testutil.Logger()
	cfg.OnConnect = func() { recorder.connected <- struct{}{} }
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(message string) { recorder.messages <- message }
	}
	cfg.OnDisconnect = func(err error) { recorder.disconnected <- err }
	recorder.LineClient = NewLineClient(cfg)
	t.Cleanup(recorder.Stop)
	return recorder
}

func TestLineClientSingleMessage(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})

	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	testutil.RequireReceive(t, client.connected, testTimeout, "OnConnect")
	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	conn := peer.conn(t)
	if _, err := conn.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if got := testutil.RequireReceive(t, client.messages, testTimeout, "message"); got != "hello" {
		t.Fatalf("message = %q, want %q", got, "hello")
	}
	testutil.RequireNoReceive(t, client.messages, 100*time.Millisecond, "a second message")
}

func TestLineClientStripsCarriageReturn(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)
	conn.Write([]byte("FIN\r\n"))

	if got := testutil.RequireReceive(t, client.messages, testTimeout, "message"); got != "FIN" {
		t.Fatalf("message = %q, want FIN", got)
	}
}

func TestLineClientGrowsBuffer(t *testing.T) {
	const bufferSize = 16
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{InitialBufferSize: bufferSize})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)

	// Both writes are exactly the buffer size; the second ends the
	// message with its newline.
	first := strings.Repeat("a", bufferSize)
	second := strings.Repeat("b", bufferSize-1) + "\n"
	if _, err := conn.Write([]byte(first)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := conn.Write([]byte(second)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	want := first + strings.TrimSuffix(second, "\n")
	if got := testutil.RequireReceive(t, client.messages, testTimeout, "message"); got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
	testutil.RequireNoReceive(t, client.messages, 100*time.Millisecond, "a second message")
}

func TestLineClientFlushesUnterminatedMessageOnClose(t *testing.T) {
	const bufferSize = 16
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{InitialBufferSize: bufferSize})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)

	// Two buffer-sized writes without a newline keep the client
	// reading; the close ends the message.
	first := strings.Repeat("a", bufferSize)
	second := strings.Repeat("b", bufferSize)
	for _, chunk := range []string{first, second} {
		if _, err := conn.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	testutil.RequireNoReceive(t, client.messages, 100*time.Millisecond, "message before close")
	conn.Close()

	if got := testutil.RequireReceive(t, client.messages, testTimeout, "message"); got != first+second {
		t.Fatalf("message = %q, want %q", got, first+second)
	}
	if err := testutil.RequireReceive(t, client.disconnected, testTimeout, "OnDisconnect"); err != nil {
		t.Errorf("OnDisconnect error = %v, want nil", err)
	}
}

// chunkReader returns one chunk per Read, then io.EOF.
type chunkReader struct {
	chunks []string
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func TestReadMessage(t *testing.T) {
	tests := []struct {
		name       string
		chunks     []string
		want       string
		wantErr    error
		wantBuffer int
	}{
		{"short read", []string{"FIN\n", "TSK1"}, "FIN\n", nil, 8},
		{"full read ending in newline", []string{"1234567\n", "next"}, "1234567\n", nil, 8},
		{"full reads grow the buffer", []string{"12345678", "abcdefgh", "xy"}, "12345678abcdefghxy", nil, 32},
		{"full reads then end of input", []string{"12345678", "abcdefgh"}, "12345678abcdefgh", io.EOF, 32},
		{"end of input", nil, "", io.EOF, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			message, buffer, err := readMessage(&chunkReader{chunks: tt.chunks}, make([]byte, 8))
			if string(message) != tt.want {
				t.Errorf("message = %q, want %q", message, tt.want)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if len(buffer) != tt.wantBuffer {
				t.Errorf("buffer size = %d, want %d", len(buffer), tt.wantBuffer)
			}
		})
	}
}

func TestLineClientLongMultilinePayload(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{InitialBufferSize: 64})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)

	var payload strings.Builder
	payload.WriteString("LOG")
	for i := 0; i < 40; i++ {
		payload.WriteString("trial\t1\t0\t512\n")
	}
	if _, err := conn.Write([]byte(payload.String())); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := testutil.RequireReceive(t, client.messages, testTimeout, "message")
	if got != strings.TrimRight(payload.String(), "\n") {
		t.Fatalf("message has %d bytes, want %d", len(got), payload.Len()-1)
	}
}

func TestLineClientSendsInOrder(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)

	commands := []string{"task3", "lambda7", "start", "stop", "getlog"}
	for _, command := range commands {
		client.Send(command)
	}

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	for _, want := range commands {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading %q: %v", want, err)
		}
		if got := strings.TrimSuffix(line, "\n"); got != want {
			t.Fatalf("peer read %q, want %q", got, want)
		}
	}
}

func TestLineClientSendWhileDisconnectedIsNoop(t *testing.T) {
	client := newRecordingClient(t, LineClientConfig{})
	client.Send("start")
	if client.IsConnected() {
		t.Fatal("IsConnected() = true before Connect")
	}
}

func TestLineClientAlreadyConnected(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	err := client.Connect(context.Background(), peer.address(), time.Second)
	if !errors.Is(err, ErrAlreadyConnected) {
		t.Fatalf("second Connect = %v, want ErrAlreadyConnected", err)
	}
}

func TestLineClientConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	address := listener.Addr().String()
	listener.Close()

	client := newRecordingClient(t, LineClientConfig{})
	err = client.Connect(context.Background(), address, time.Second)
	var connectionErr *ConnectionError
	if !errors.As(err, &connectionErr) {
		t.Fatalf("Connect = %v, want *ConnectionError", err)
	}
	if connectionErr.Address != address || connectionErr.Peer != "task" {
		t.Errorf("ConnectionError = %+v", connectionErr)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after failed Connect")
	}
}

// stallingDialer never connects; it waits for the dial context.
type stallingDialer struct{}

func (stallingDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLineClientConnectTimeout(t *testing.T) {
	client := newRecordingClient(t, LineClientConfig{Dialer: stallingDialer{}})
	err := client.Connect(context.Background(), "192.0.2.1:8963", 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Connect = %v, want ErrTimeout", err)
	}
}

func TestLineClientPeerClose(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer.conn(t).Close()

	if err := testutil.RequireReceive(t, client.disconnected, testTimeout, "OnDisconnect"); err != nil {
		t.Errorf("OnDisconnect error = %v, want nil for a clean close", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after peer closed")
	}

	// The client can dial again once the loop has ended.
	second := newFakePeer(t)
	if err := client.Connect(context.Background(), second.address(), time.Second); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
}

func TestLineClientStopFromHandler(t *testing.T) {
	peer := newFakePeer(t)
	var client *recordingClient
	handled := make(chan struct{})
	client = newRecordingClient(t, LineClientConfig{
		OnMessage: func(message string) {
			client.Stop()
			close(handled)
		},
	})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer.conn(t).Write([]byte("FIN\n"))

	testutil.RequireClosed(t, handled, testTimeout, "handler returning after Stop")
	testutil.RequireReceive(t, client.disconnected, testTimeout, "OnDisconnect")
}

func TestLineClientStopWaitsForRunningHandler(t *testing.T) {
	peer := newFakePeer(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	client := newRecordingClient(t, LineClientConfig{
		OnMessage: func(message string) {
			close(entered)
			<-release
		},
	})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer.conn(t).Write([]byte("LOG\n"))
	testutil.RequireClosed(t, entered, testTimeout, "handler running")

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()
	testutil.RequireNoReceive(t, stopped, 200*time.Millisecond, "Stop returning while the handler runs")

	close(release)
	testutil.RequireClosed(t, stopped, testTimeout, "Stop returning")
	select {
	case <-client.disconnected:
	default:
		t.Fatal("Stop returned before OnDisconnect ran")
	}
}

func TestLineClientStopIsIdempotent(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	peer.conn(t)

	client.Stop()
	client.Stop()
	if client.IsConnected() {
		t.Fatal("IsConnected() = true after Stop")
	}
	testutil.RequireReceive(t, client.disconnected, testTimeout, "OnDisconnect")
	testutil.RequireNoReceive(t, client.disconnected, 50*time.Millisecond, "second OnDisconnect")
}

func TestLineClientStopFlushesQueuedSends(t *testing.T) {
	peer := newFakePeer(t)
	client := newRecordingClient(t, LineClientConfig{})
	if err := client.Connect(context.Background(), peer.address(), time.Second); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := peer.conn(t)

	client.Send("stop")
	client.Stop()

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if line != "stop\n" {
		t.Fatalf("peer read %q, want %q", line, "stop\n")
	}
}
