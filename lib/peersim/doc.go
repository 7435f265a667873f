// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package peersim emulates the companion applications a recording
// session talks to: the task application, the peripheral-task
// application, and the hand streamer.
//
// Each [Peer] listens on TCP, records every command line it receives in
// arrival order, and answers the way the real application does. The
// task peer replies TSK to "tasks", LOG to "getlog", and sends FIN a
// configurable time after "start". The peripheral peer replies LMB to
// "lambdas". The hand streamer, while started, sends a JSON hand
// location at a fixed interval both on its TCP connection and as a UDP
// datagram to a configured receiver.
//
// Recorder tests run peers in-process; cmd/gazelog-peer-mock runs them
// as a stand-alone bench fixture.
package peersim
