// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package gravel implements the internal statistics and property-reporting
// subsystem of a log-structured merge-tree storage engine. It accumulates
// the counters produced by the compaction/flush pipeline and the write
// path, derives summary metrics (write amplification, throughput, stall
// ratios), and exposes them through a string-keyed property namespace in
// both typed-integer and formatted-text form.
//
// The subsystem never acquires the engine's central mutex itself. Counter
// mutation and in-mutex property evaluation are performed by callers that
// already hold the mutex; the one exception, the table-reader memory
// estimate, is evaluated against an independently reference-counted
// manifest.Version so that the scan does not block foreground writes. The
// Property type's OutOfMutex method tells callers which path a property
// must take.
package gravel

import "github.com/graveldb/gravel/internal/manifest"

// MemTable exposes the subset of the active memtable consulted by property
// queries.
type MemTable interface {
	// ApproximateMemoryUsage returns the memtable's memory footprint in
	// bytes, including arena blocks that are not yet full.
	ApproximateMemoryUsage() uint64
	// NumEntries returns the number of entries in the memtable.
	NumEntries() uint64
}

// MemTableList exposes the subset of the immutable-memtable queue consulted
// by property queries.
type MemTableList interface {
	// NumImmutable returns the number of immutable memtables awaiting
	// flush.
	NumImmutable() int
	// FlushPending reports whether at least one immutable memtable is ready
	// to be flushed.
	FlushPending() bool
	// ApproximateMemoryUsage returns the combined memory footprint of the
	// immutable memtables, in bytes.
	ApproximateMemoryUsage() uint64
	// NumEntries returns the combined number of entries in the immutable
	// memtables.
	NumEntries() uint64
}

// CompactionPicker exposes the compaction scheduler's pending-work check.
type CompactionPicker interface {
	// NeedsCompaction reports whether the picker has determined that at
	// least one compaction is needed for the given version.
	NeedsCompaction(v *manifest.Version) bool
}

// SnapshotList exposes the engine's list of open read snapshots.
type SnapshotList interface {
	// Count returns the number of open snapshots.
	Count() int
	// OldestUnixSeconds returns the creation time of the oldest open
	// snapshot as a Unix timestamp, or 0 if there are none.
	OldestUnixSeconds() int64
}

// VersionSet exposes the engine's version metadata.
type VersionSet interface {
	// Current returns the current version. The engine mutex must be held;
	// callers that need the version after releasing the mutex must Ref it
	// first.
	Current() *manifest.Version
	// LiveVersionCount returns the number of versions that are still
	// referenced, including the current one.
	LiveVersionCount() int
}

// Env bundles the read-only engine accessors consulted when evaluating
// properties. The statistics subsystem does not reimplement any of these
// collaborators; it only reads through them. Unless noted otherwise on the
// method consuming it, every accessor requires the engine mutex to be held.
type Env struct {
	Mem       MemTable
	Imm       MemTableList
	Picker    CompactionPicker
	Snapshots SnapshotList
	Versions  VersionSet

	// FileDeletionsEnabled reports whether deletion of obsolete files is
	// currently enabled.
	FileDeletionsEnabled func() bool
}
