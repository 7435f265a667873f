// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package peersim

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gazelog/gazelog/lib/clock"
	"github.com/gazelog/gazelog/lib/geometry"
	"github.com/gazelog/gazelog/lib/netutil"
	"github.com/gazelog/gazelog/lib/schema"
)

// Kind selects which companion application a Peer emulates.
type Kind string

const (
	Task         Kind = "task"
	Peripheral   Kind = "peripheral"
	HandStreamer Kind = "hand_streamer"
)

// ParseKind validates a kind name.
func ParseKind(name string) (Kind, error) {
	switch kind := Kind(name); kind {
	case Task, Peripheral, HandStreamer:
		return kind, nil
	}
	return "", fmt.Errorf("peersim: unknown peer kind %q", name)
}

// Behavior configures the replies of a Peer. Fields that do not apply
// to the peer's kind are ignored.
type Behavior struct {
	// Lambdas answer "lambdas" as LMB<l>;<l>;...
	Lambdas []float64

	// Tasks answer "tasks" as TSK<entry>;<entry>;... where each entry
	// is "<digits>,<Ordered|Random>".
	Tasks []string

	// FinishAfter is the delay between "start" and FIN. Zero never
	// sends FIN.
	FinishAfter time.Duration

	// Log is the payload of the LOG reply to "getlog".
	Log string

	// PacketInterval is the hand streamer's send period while started.
	PacketInterval time.Duration

	// DatagramTarget receives the hand streamer's UDP packets. Empty
	// disables UDP.
	DatagramTarget string

	// Silent suppresses every reply; commands are still recorded.
	Silent bool
}

// DefaultBehavior returns replies resembling the real applications.
func DefaultBehavior(kind Kind) Behavior {
	switch kind {
	case Task:
		return Behavior{
			Tasks:       []string{"1,Ordered", "2,Ordered", "2,Random", "3,Random"},
			FinishAfter: 30 * time.Second,
			Log:         "trial\tdigit\tresponse\n1\t4\tmiss\n",
		}
	case Peripheral:
		return Behavior{Lambdas: []float64{0.5, 1, 1.5, 2}}
	case HandStreamer:
		return Behavior{PacketInterval: 10 * time.Millisecond}
	}
	return Behavior{}
}

// Config configures a Peer.
type Config struct {
	Kind     Kind
	Address  string
	Behavior Behavior
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Peer is one emulated companion application.
type Peer struct {
	kind     Kind
	behavior Behavior
	clock    clock.Clock
	logger   *slog.Logger
	listener net.Listener
	datagram net.Conn

	mu       sync.Mutex
	commands []string
	conns    map[net.Conn]struct{}
	started  bool
	finish   *clock.Timer
	packets  chan struct{}
	sequence int

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen starts a peer. It runs until Close or ctx ends.
func Listen(ctx context.Context, cfg Config) (*Peer, error) {
	if _, err := ParseKind(string(cfg.Kind)); err != nil {
		return nil, err
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("peersim: %s: %w", cfg.Kind, err)
	}

	p := &Peer{
		kind:     cfg.Kind,
		behavior: cfg.Behavior,
		clock:    clk,
		logger:   logger.With("peer", string(cfg.Kind)),
		listener: listener,
		conns:    make(map[net.Conn]struct{}),
	}

	if cfg.Kind == HandStreamer && cfg.Behavior.DatagramTarget != "" {
		p.datagram, err = net.Dial("udp", cfg.Behavior.DatagramTarget)
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("peersim: datagram target: %w", err)
		}
	}

	p.wg.Add(1)
	go p.acceptLoop()
	go func() {
		<-ctx.Done()
		p.Close()
	}()

	p.logger.Info("peer listening", "address", listener.Addr().String())
	return p, nil
}

// Kind returns what the peer emulates.
func (p *Peer) Kind() Kind { return p.kind }

// Addr returns the listening address.
func (p *Peer) Addr() string { return p.listener.Addr().String() }

// Commands returns every command received so far, in arrival order.
func (p *Peer) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.commands)
}

// Started reports whether the last start was not yet followed by stop.
func (p *Peer) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Connections returns the number of connected clients.
func (p *Peer) Connections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Broadcast writes message to every connected client.
func (p *Peer) Broadcast(message string) {
	p.mu.Lock()
	conns := make([]net.Conn, 0, len(p.conns))
	for conn := range p.conns {
		conns = append(conns, conn)
	}
	p.mu.Unlock()

	for _, conn := range conns {
		p.write(conn, message)
	}
}

// Close stops listening, disconnects every client, and waits for the
// connection goroutines.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.listener.Close()

		p.mu.Lock()
		p.stopActivityLocked()
		for conn := range p.conns {
			conn.Close()
		}
		p.mu.Unlock()

		p.wg.Wait()
		if p.datagram != nil {
			p.datagram.Close()
		}
		p.logger.Info("peer closed")
	})
	return err
}

func (p *Peer) acceptLoop() {
	defer p.wg.Done()
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				p.logger.Warn("accept failed", "error", err)
			}
			return
		}
		p.mu.Lock()
		p.conns[conn] = struct{}{}
		p.mu.Unlock()

		p.wg.Add(1)
		go p.serve(conn)
	}
}

func (p *Peer) serve(conn net.Conn) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		delete(p.conns, conn)
		p.mu.Unlock()
		conn.Close()
	}()

	p.logger.Info("client connected", "remote", conn.RemoteAddr().String())
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		command := strings.TrimRight(scanner.Text(), "\r")
		if command == "" {
			continue
		}
		p.mu.Lock()
		p.commands = append(p.commands, command)
		p.mu.Unlock()
		p.logger.Debug("command received", "command", command)
		p.handle(conn, command)
	}
	if err := scanner.Err(); err != nil && !netutil.IsExpectedCloseError(err) {
		p.logger.Warn("client read failed", "error", err)
	}
}

func (p *Peer) handle(conn net.Conn, command string) {
	switch {
	case command == "start":
		p.start()
	case command == "stop":
		p.mu.Lock()
		p.stopActivityLocked()
		p.mu.Unlock()
	case p.kind == Task && command == "tasks":
		p.reply(conn, "TSK"+strings.Join(p.behavior.Tasks, ";"))
	case p.kind == Task && command == "getlog":
		p.reply(conn, "LOG"+p.behavior.Log)
	case p.kind == Peripheral && command == "lambdas":
		values := make([]string, len(p.behavior.Lambdas))
		for i, lambda := range p.behavior.Lambdas {
			values[i] = strconv.FormatFloat(lambda, 'f', -1, 64)
		}
		p.reply(conn, "LMB"+strings.Join(values, ";"))
	}
}

func (p *Peer) reply(conn net.Conn, message string) {
	if p.behavior.Silent {
		return
	}
	p.write(conn, message)
}

func (p *Peer) write(conn net.Conn, message string) {
	if _, err := conn.Write([]byte(message + "\n")); err != nil && !netutil.IsExpectedCloseError(err) {
		p.logger.Warn("write failed", "error", err)
	}
}

func (p *Peer) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopActivityLocked()
	p.started = true

	if p.kind == Task && p.behavior.FinishAfter > 0 && !p.behavior.Silent {
		p.finish = p.clock.AfterFunc(p.behavior.FinishAfter, func() {
			p.logger.Info("task finished")
			p.Broadcast("FIN")
		})
	}
	if p.kind == HandStreamer && p.behavior.PacketInterval > 0 {
		done := make(chan struct{})
		p.packets = done
		go p.streamPackets(p.clock.NewTicker(p.behavior.PacketInterval), done)
	}
}

func (p *Peer) stopActivityLocked() {
	p.started = false
	if p.finish != nil {
		p.finish.Stop()
		p.finish = nil
	}
	if p.packets != nil {
		close(p.packets)
		p.packets = nil
	}
}

// streamPackets sends one hand location per tick until done closes.
func (p *Peer) streamPackets(ticker *clock.Ticker, done <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		p.sequence++
		sequence := p.sequence
		p.mu.Unlock()

		payload, err := json.Marshal(SyntheticHand(sequence))
		if err != nil {
			p.logger.Error("encoding hand location", "error", err)
			return
		}
		p.Broadcast(string(payload))
		if p.datagram != nil {
			if _, err := p.datagram.Write(payload); err != nil {
				p.logger.Debug("datagram send failed", "error", err)
			}
		}
	}
}

// SyntheticHand returns a slowly moving hand location. Every tenth
// sequence number is a tracking loss.
func SyntheticHand(sequence int) schema.HandLocation {
	if sequence%10 == 0 {
		return schema.HandLocation{}
	}
	shift := float64(sequence%100) / 10
	palm := geometry.Vector{X: 5 + shift, Y: 30, Z: 10}
	return schema.HandLocation{
		Palm:   palm,
		Thumb:  palm.Add(geometry.Vector{X: -3, Y: 4, Z: -1}),
		Index:  palm.Add(geometry.Vector{X: -1, Y: 8, Z: -1}),
		Middle: palm.Add(geometry.Vector{X: 1, Y: 8.5, Z: -1}),
	}
}
