// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects gazelog to its companion applications.
//
// [LineClient] keeps one TCP connection to a peer (the task controller,
// the peripheral-task controller, or the hand streamer) and exchanges
// newline-terminated ASCII commands and replies. Sends are queued to a
// per-connection writer goroutine, so they are ordered, never block the
// caller, and silently do nothing while disconnected. Replies arrive on
// a read goroutine that calls OnMessage synchronously. Nothing
// reconnects automatically; the recorder decides when to dial again.
//
// # Message framing
//
// The peers do not length-prefix their replies and some replies (LOG)
// span many lines, so a message is "whatever one burst of reads
// returns": the client reads into a buffer, and while a read fills the
// buffer completely it doubles the buffer and keeps reading. The first
// short read ends the message. A full read that already ends in a
// newline also ends it, so a reply of exactly the buffer size does not
// wait for the next one. A reply that fills the buffer exactly without
// a trailing newline does wait: the message ends with the next short
// read, or when the peer closes the connection. Trailing CR and LF
// bytes are stripped.
//
// This relies on the peer writing each reply in one go and on TCP
// delivering it without a pause in the middle. Two replies sent back
// to back may arrive as one message, and a reply split across a
// network stall may arrive as two. The companion applications send at
// most a few replies per task, far apart, which keeps this workable on
// a lab LAN; it is not a general framing scheme.
//
// [DatagramReceiver] listens for UDP datagrams from the external hand
// tracker, each a JSON [github.com/gazelog/gazelog/lib/schema.HandLocation].
// Malformed datagrams are recovered when possible ([DecodeHandLocation])
// and otherwise dropped; no datagram ever stops the receive loop.
//
// [Dialer] abstracts how the line client opens its socket; [TCPDialer]
// is the production implementation.
package transport
