// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"bytes"
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// TableReader tracks the in-memory footprint of an open table file: the
// index, filter and other metadata blocks pinned by the reader. A
// TableReader is attached to a TableMetadata by the file cache when the
// table is first opened and is immutable afterwards, so it can be read
// without the engine mutex.
type TableReader struct {
	// MemEstimate is the approximate number of bytes of memory used by the
	// reader, computed when the table is opened.
	MemEstimate uint64
}

// TableMetadata holds the metadata for an on-disk table.
type TableMetadata struct {
	// FileNum is the file number.
	FileNum uint64
	// Size is the size of the file, in bytes.
	Size uint64
	// Smallest and Largest are the inclusive bounds of the user keys stored
	// in the table.
	Smallest []byte
	Largest  []byte
	// NumEntries is the total number of entries in the table, and
	// NumDeletions the number of deletion entries among them. Both come from
	// the table properties block.
	NumEntries   uint64
	NumDeletions uint64
	// BeingCompacted is true while the table is an input to an in-progress
	// compaction. Protected by the engine mutex.
	BeingCompacted bool
	// Reader is the open reader for the table, or nil if the table has not
	// been opened (or was evicted from the file cache). The pointer is
	// published before the containing Version becomes visible.
	Reader *TableReader
}

// String implements fmt.Stringer.
func (m *TableMetadata) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m *TableMetadata) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%06d:[%s-%s]", redact.SafeUint(m.FileNum),
		redact.Safe(string(m.Smallest)), redact.Safe(string(m.Largest)))
}

// LevelMetadata contains the tables within a level of the LSM, along with
// the level's aggregate size and compaction score.
type LevelMetadata struct {
	tables    []*TableMetadata
	totalSize uint64

	// Score is the level's compaction score, as computed by the compaction
	// picker the last time the version changed. Protected by the engine
	// mutex.
	Score float64
}

// Empty indicates whether there are any tables in the level.
func (lm *LevelMetadata) Empty() bool {
	return len(lm.tables) == 0
}

// Len returns the number of tables within the level.
func (lm *LevelMetadata) Len() int {
	return len(lm.tables)
}

// Size returns the cumulative size of all the tables within the level.
func (lm *LevelMetadata) Size() uint64 {
	return lm.totalSize
}

// NumCompacting returns the number of tables in the level that are inputs
// to an in-progress compaction.
//
// The engine mutex must be held when calling this.
func (lm *LevelMetadata) NumCompacting() int {
	var n int
	for _, t := range lm.tables {
		if t.BeingCompacted {
			n++
		}
	}
	return n
}

// Insert adds the table to the level. Tables within a level must be
// inserted in sorted order; CheckOrdering verifies this in tests and
// invariant builds.
func (lm *LevelMetadata) Insert(t *TableMetadata) {
	lm.tables = append(lm.tables, t)
	lm.totalSize += t.Size
}

// All returns an iterator over every table in the level.
func (lm *LevelMetadata) All() iter.Seq[*TableMetadata] {
	return func(yield func(*TableMetadata) bool) {
		for _, t := range lm.tables {
			if !yield(t) {
				return
			}
		}
	}
}

func (lm *LevelMetadata) checkOrdering(level int) error {
	for i := 1; i < len(lm.tables); i++ {
		prev, cur := lm.tables[i-1], lm.tables[i]
		if bytes.Compare(prev.Largest, cur.Smallest) >= 0 {
			return errors.Errorf("L%d tables %06d and %06d are not ordered: [%s-%s] vs [%s-%s]",
				level, prev.FileNum, cur.FileNum,
				prev.Smallest, prev.Largest, cur.Smallest, cur.Largest)
		}
	}
	return nil
}
