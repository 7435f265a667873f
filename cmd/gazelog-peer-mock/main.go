// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Gazelog-peer-mock stands in for the companion applications on a
// bench without them. It listens on the ports gazelog connects to and
// answers the line protocol the way the real applications do:
//   - task: answers tasks and getlog, sends FIN a fixed time after start
//   - peripheral: answers lambdas
//   - hand_streamer: while started, sends synthetic hand locations over
//     the TCP connection and as UDP datagrams
//
// Every received command is logged, which makes the mock a convenient
// protocol trace when debugging gazelog itself.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/gazelog/gazelog/lib/peersim"
	"github.com/gazelog/gazelog/lib/process"
	"github.com/gazelog/gazelog/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	kinds          []string
	host           string
	taskPort       int
	peripheralPort int
	streamerPort   int
	finishAfter    time.Duration
	packetInterval time.Duration
	datagramTarget string
	silent         bool
	showVersion    bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flags := pflag.NewFlagSet("gazelog-peer-mock", pflag.ContinueOnError)
	flags.StringSliceVar(&opts.kinds, "kind", []string{"task", "peripheral", "hand_streamer"}, "peers to emulate")
	flags.StringVar(&opts.host, "host", "127.0.0.1", "address to listen on")
	flags.IntVar(&opts.taskPort, "task-port", 8963, "task application port")
	flags.IntVar(&opts.peripheralPort, "peripheral-port", 8964, "peripheral application port")
	flags.IntVar(&opts.streamerPort, "streamer-port", 8965, "hand streamer port")
	flags.DurationVar(&opts.finishAfter, "finish-after", 30*time.Second, "delay between start and FIN (0 never finishes)")
	flags.DurationVar(&opts.packetInterval, "packet-interval", 10*time.Millisecond, "hand streamer send period")
	flags.StringVar(&opts.datagramTarget, "datagram-target", "127.0.0.1:8982", "UDP address for hand datagrams (empty disables)")
	flags.BoolVar(&opts.silent, "silent", false, "record commands without replying")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// peerConfigs builds one peer configuration per requested kind.
func peerConfigs(opts *options, logger *slog.Logger) ([]peersim.Config, error) {
	ports := map[peersim.Kind]int{
		peersim.Task:         opts.taskPort,
		peersim.Peripheral:   opts.peripheralPort,
		peersim.HandStreamer: opts.streamerPort,
	}
	var configs []peersim.Config
	for _, name := range opts.kinds {
		kind, err := peersim.ParseKind(name)
		if err != nil {
			return nil, err
		}
		behavior := peersim.DefaultBehavior(kind)
		behavior.Silent = opts.silent
		switch kind {
		case peersim.Task:
			behavior.FinishAfter = opts.finishAfter
		case peersim.HandStreamer:
			behavior.PacketInterval = opts.packetInterval
			behavior.DatagramTarget = opts.datagramTarget
		}
		configs = append(configs, peersim.Config{
			Kind:     kind,
			Address:  net.JoinHostPort(opts.host, strconv.Itoa(ports[kind])),
			Behavior: behavior,
			Logger:   logger,
		})
	}
	if len(configs) == 0 {
		return nil, errors.New("no peer kind selected")
	}
	return configs, nil
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Println("gazelog-peer-mock", version.Full())
		return nil
	}

	var handler slog.Handler
	handlerOptions := &slog.HandlerOptions{Level: slog.LevelDebug}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, handlerOptions)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOptions)
	}
	logger := slog.New(handler)

	configs, err := peerConfigs(opts, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var peers []*peersim.Peer
	defer func() {
		for _, peer := range peers {
			peer.Close()
			logger.Info("peer closed", "kind", peer.Kind(), "commands", len(peer.Commands()))
		}
	}()
	for _, cfg := range configs {
		peer, err := peersim.Listen(ctx, cfg)
		if err != nil {
			return err
		}
		peers = append(peers, peer)
	}

	logger.Info("peer mock running", "peers", len(peers), "version", version.Info())
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
