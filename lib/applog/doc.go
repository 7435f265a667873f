// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Package applog is the append log: an ordered in-memory buffer of
// tab-separated records that is written to disk at task and session
// boundaries.
//
// [Log.Append] stamps each record with wall time in Unix microseconds.
// Stamps are strictly increasing even when the wall clock stalls or
// steps backwards, so the first column always sorts the file.
//
// [Log.Flush] writes every buffered record to a new file named
//
//	<prefix>-<YYYY-MM-DD_HH-MM-SS.mmm>.txt[.zst|.lz4]
//
// atomically, then drops exactly the records it wrote. A failed flush
// keeps them buffered so a later flush can retry; records are never
// lost to a full disk or a missing folder. The [FlushResult] carries a
// BLAKE3 digest of the bytes on disk, which the recorder logs and the
// archive manifest repeats.
//
// Compression is optional: zstd (klauspost/compress) or the LZ4 frame
// format (pierrec/lz4), both readable with the stock command-line
// tools. [ReadFile] reverses either.
package applog
