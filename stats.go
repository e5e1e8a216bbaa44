// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package gravel

import (
	"fmt"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/redact"
	"github.com/graveldb/gravel/internal/invariants"
)

// CompactionStats accumulates the work performed by compactions out of a
// single level. There is one instance per level, plus synthesized instances
// for the cross-level Sum and interval rows of the stats report. All fields
// are cumulative and monotonically non-decreasing for the lifetime of the
// level; interval views are derived by subtracting an earlier observation,
// never by resetting the live counters.
type CompactionStats struct {
	// BytesRead is the number of bytes read from the level itself.
	BytesRead uint64
	// BytesReadNextLevel is the number of bytes read from the next level,
	// i.e. the compaction's output level.
	BytesReadNextLevel uint64
	// BytesWritten is the number of bytes written by compactions.
	BytesWritten uint64
	// BytesMoved is the number of bytes moved between levels by trivial
	// file moves, without being rewritten.
	BytesMoved uint64
	// Micros is the total wall-clock time spent in compactions, in
	// microseconds.
	Micros uint64
	// Count is the number of compactions.
	Count uint64
	// InputRecords is the number of records read by compactions.
	InputRecords uint64
	// DroppedRecords is the number of records dropped by compactions
	// (shadowed or deleted entries).
	DroppedRecords uint64
}

// Add merges the counters from u into s.
func (s *CompactionStats) Add(u CompactionStats) {
	s.BytesRead += u.BytesRead
	s.BytesReadNextLevel += u.BytesReadNextLevel
	s.BytesWritten += u.BytesWritten
	s.BytesMoved += u.BytesMoved
	s.Micros += u.Micros
	s.Count += u.Count
	s.InputRecords += u.InputRecords
	s.DroppedRecords += u.DroppedRecords
}

// Subtract removes the counters in u from s. It is only meaningful when u
// is an earlier observation of the same monotonic counters, so the result
// cannot underflow in correct usage; invariant builds panic if it does.
func (s *CompactionStats) Subtract(u CompactionStats) {
	s.BytesRead = invariants.SafeSub(s.BytesRead, u.BytesRead)
	s.BytesReadNextLevel = invariants.SafeSub(s.BytesReadNextLevel, u.BytesReadNextLevel)
	s.BytesWritten = invariants.SafeSub(s.BytesWritten, u.BytesWritten)
	s.BytesMoved = invariants.SafeSub(s.BytesMoved, u.BytesMoved)
	s.Micros = invariants.SafeSub(s.Micros, u.Micros)
	s.Count = invariants.SafeSub(s.Count, u.Count)
	s.InputRecords = invariants.SafeSub(s.InputRecords, u.InputRecords)
	s.DroppedRecords = invariants.SafeSub(s.DroppedRecords, u.DroppedRecords)
}

// TotalBytesRead returns the bytes read from the level and from the next
// level combined.
func (s CompactionStats) TotalBytesRead() uint64 {
	return s.BytesRead + s.BytesReadNextLevel
}

// WriteAmp computes the write amplification for compactions out of this
// level: BytesWritten / BytesRead, or 0 when nothing has been read. The
// cross-level summary row of the stats report deliberately uses a different
// denominator (bytes flushed into L0); see InternalStats.DumpCFStats.
func (s CompactionStats) WriteAmp() float64 {
	if s.BytesRead == 0 {
		return 0
	}
	return float64(s.BytesWritten) / float64(s.BytesRead)
}

// elapsedSeconds returns the measured compaction time in seconds. The +1
// keeps the throughput divisions below well defined for levels with zero
// measured time, at the cost of a negligible bias.
func (s CompactionStats) elapsedSeconds() float64 {
	return (float64(s.Micros) + 1) / 1e6
}

// ReadMBPerSec returns the compaction read throughput in MB/s.
func (s CompactionStats) ReadMBPerSec() float64 {
	return float64(s.TotalBytesRead()) / mb / s.elapsedSeconds()
}

// WriteMBPerSec returns the compaction write throughput in MB/s.
func (s CompactionStats) WriteMBPerSec() float64 {
	return float64(s.BytesWritten) / mb / s.elapsedSeconds()
}

// AvgSeconds returns the mean compaction duration in seconds, or 0 when no
// compactions have run.
func (s CompactionStats) AvgSeconds() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Micros) / 1e6 / float64(s.Count)
}

// StallReason identifies why foreground writes were stalled.
type StallReason int8

const (
	// StallLevel0Slowdown: the L0 file count reached the slowdown trigger
	// and writes were delayed.
	StallLevel0Slowdown StallReason = iota
	// StallLevel0NumFiles: the L0 file count reached the hard limit and
	// writes were blocked.
	StallLevel0NumFiles
	// StallMemtableCompaction: every memtable was full and writes waited
	// for a flush.
	StallMemtableCompaction
	// StallLevelSlowdownSoft: a level's estimated pending compaction bytes
	// exceeded the soft limit. Tracked per level.
	StallLevelSlowdownSoft
	// StallLevelSlowdownHard: a level's estimated pending compaction bytes
	// exceeded the hard limit. Tracked per level.
	StallLevelSlowdownHard

	numStallReasons
)

// numGlobalStallReasons counts the reasons that are not tied to a level.
const numGlobalStallReasons = int(StallLevelSlowdownSoft)

// PerLevel reports whether the reason is tracked per level rather than for
// the whole column family.
func (r StallReason) PerLevel() bool {
	return r == StallLevelSlowdownSoft || r == StallLevelSlowdownHard
}

// String implements fmt.Stringer. The spellings appear in the stall
// breakdown of the stats report.
func (r StallReason) String() string {
	return redact.StringWithoutMarkers(r)
}

// SafeFormat implements redact.SafeFormatter.
func (r StallReason) SafeFormat(w redact.SafePrinter, _ rune) {
	switch r {
	case StallLevel0Slowdown:
		w.SafeString("level0_slowdown")
	case StallLevel0NumFiles:
		w.SafeString("level0_numfiles")
	case StallMemtableCompaction:
		w.SafeString("memtable_compaction")
	case StallLevelSlowdownSoft:
		w.SafeString("leveln_slowdown_soft")
	case StallLevelSlowdownHard:
		w.SafeString("leveln_slowdown_hard")
	default:
		w.Printf("unknown(%d)", redact.SafeInt(r))
	}
}

// stallCounters accumulates the time and occurrence count for one stall
// table key.
type stallCounters struct {
	micros uint64
	count  uint64
}

func (c *stallCounters) add(u stallCounters) {
	c.micros += u.micros
	c.count += u.count
}

// DBWideStats holds the cumulative counters that are not tied to any level.
// The write path mutates the fields directly, with the engine mutex held.
type DBWideStats struct {
	// WriteDoneBySelf is the number of batches committed by their own
	// leader, i.e. the number of group commits.
	WriteDoneBySelf uint64
	// WriteDoneByOther is the number of write requests that were committed
	// as part of another leader's group.
	WriteDoneByOther uint64
	// NumKeysWritten is the number of key updates issued across all write
	// requests.
	NumKeysWritten uint64
	// BytesWritten is the number of user bytes ingested by writes.
	BytesWritten uint64
	// WriteWithWAL is the number of writes that went through the WAL.
	WriteWithWAL uint64
	// WALBytes is the number of bytes written to the WAL.
	WALBytes uint64
	// WALSynced is the number of WAL sync operations.
	WALSynced uint64
	// StallMicros is the accumulated time writes spent stalled, in
	// microseconds.
	StallMicros uint64
}

// cfStatsSnapshot records the cumulative per-column-family values observed
// at the time of the previous full report. Interval ("Int") values are the
// difference between the live counters and this snapshot.
type cfStatsSnapshot struct {
	compStats   CompactionStats
	ingestBytes uint64
	stallMicros uint64
	stallCount  uint64
}

// dbStatsSnapshot is the DB-wide analogue of cfStatsSnapshot.
type dbStatsSnapshot struct {
	ingestBytes    uint64
	writeOther     uint64
	writeSelf      uint64
	numKeysWritten uint64
	walBytes       uint64
	walSynced      uint64
	writeWithWAL   uint64
	stallMicros    uint64
	secondsUp      float64
}

// InternalStats accumulates the statistics for a single column family. The
// counters are created empty when the column family is opened and live
// exactly as long as it does; nothing is ever reset, and interval semantics
// come entirely from the report snapshots.
//
// InternalStats performs no locking of its own. Every method that mutates
// or reads the counters requires the engine mutex to be held by the caller,
// with the single exception of GetIntPropertyOutOfMutex.
type InternalStats struct {
	name      string
	numLevels int

	// timeNow is used to measure uptime. Tests substitute a fake clock.
	timeNow   func() crtime.Mono
	startedAt crtime.Mono

	// compStats[level] accumulates compactions out of that level. For L0
	// this includes flushes.
	compStats []CompactionStats
	// flushBytes is the number of bytes flushed from memtables into L0:
	// the ingest denominator for the summary write-amplification.
	flushBytes uint64

	// stall holds the counters for the reasons that are not tied to a
	// level, indexed by StallReason.
	stall [numGlobalStallReasons]stallCounters
	// stallSoft and stallHard hold the per-level pending-bytes slowdown
	// counters.
	stallSoft []stallCounters
	stallHard []stallCounters

	// DB holds the DB-wide write and WAL counters. As in the rest of the
	// subsystem, the engine mutex must be held to mutate or read it.
	DB DBWideStats

	cfSnapshot cfStatsSnapshot
	dbSnapshot dbStatsSnapshot

	// backgroundErrors is the accumulated number of errors in background
	// flushes or compactions.
	backgroundErrors uint64
}

// NewInternalStats returns empty statistics for a column family with the
// given name and number of levels.
func NewInternalStats(name string, numLevels int) *InternalStats {
	if numLevels < 1 {
		panic(fmt.Sprintf("gravel: invalid level count %d", numLevels))
	}
	s := &InternalStats{
		name:      name,
		numLevels: numLevels,
		timeNow:   crtime.NowMono,
		compStats: make([]CompactionStats, numLevels),
		stallSoft: make([]stallCounters, numLevels),
		stallHard: make([]stallCounters, numLevels),
	}
	s.startedAt = s.timeNow()
	return s
}

// NumLevels returns the number of levels the statistics were configured
// with.
func (s *InternalStats) NumLevels() int {
	return s.numLevels
}

// AddCompactionStats merges the stats from a completed compaction out of
// the given level into the cumulative counters.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) AddCompactionStats(level int, stats CompactionStats) {
	s.compStats[level].Add(stats)
}

// AddFlushedBytes records bytes flushed from a memtable into L0.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) AddFlushedBytes(n uint64) {
	s.flushBytes += n
}

// RecordStall records a stalled or delayed write. level is consulted only
// for the per-level reasons and ignored otherwise.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) RecordStall(reason StallReason, level int, d time.Duration) {
	u := stallCounters{micros: uint64(d.Microseconds()), count: 1}
	switch reason {
	case StallLevelSlowdownSoft:
		s.stallSoft[level].add(u)
	case StallLevelSlowdownHard:
		s.stallHard[level].add(u)
	default:
		s.stall[reason].add(u)
	}
}

// RecordBackgroundError counts an error from a background flush or
// compaction.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) RecordBackgroundError() {
	s.backgroundErrors++
}

// levelStall returns the cumulative stall counters attributed to a level in
// the stats report: L0 owns the three whole-family reasons, the other
// levels own their pending-bytes slowdowns.
func (s *InternalStats) levelStall(level int) stallCounters {
	if level == 0 {
		var c stallCounters
		c.add(s.stall[StallLevel0Slowdown])
		c.add(s.stall[StallLevel0NumFiles])
		c.add(s.stall[StallMemtableCompaction])
		return c
	}
	var c stallCounters
	c.add(s.stallSoft[level])
	c.add(s.stallHard[level])
	return c
}
