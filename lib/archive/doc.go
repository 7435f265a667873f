// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive files session output into per-participant folders.
//
// Record files, manifests, and task-peer logs accumulate in the log
// folder while a session runs. After a session completes, [Archive.Collect]
// moves the files matching the configured masks into
// <destination>/P<NN>/<pace>/, writing a BLAKE3 manifest alongside them.
// When age recipients are configured each file is encrypted to
// <name>.age and the plaintext is removed from the log folder; the
// manifest digests always describe the plaintext.
//
// An interrupted session is never deleted. [Archive.Quarantine] moves its
// files to <destination>/interrupted/<session-id>/ where an operator can
// inspect or discard them.
//
// Participant folders also answer the bookkeeping questions asked at
// start-up: the last participant ID seen, and whether a participant has
// already completed every pace.
package archive
