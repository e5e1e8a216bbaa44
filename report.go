// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package gravel

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/graveldb/gravel/internal/invariants"
	"github.com/graveldb/gravel/internal/manifest"
)

const (
	mb = 1 << 20
	gb = 1 << 30
)

func (s *InternalStats) writeCompactionStatsHeader(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "\n** Compaction Stats [%s] **\n", s.name)
	buf.WriteString(
		"Level   Files   Size(MB) Score Read(GB)  Rn(GB) Rnp1(GB) " +
			"Write(GB) Wnew(GB) Moved(GB) W-Amp Rd(MB/s) Wr(MB/s) " +
			"Comp(sec) Comp(cnt) Avg(sec) " +
			"Stall(sec) Stall(cnt) Avg(ms)     RecordIn   RecordDrop\n")
	buf.WriteString(strings.Repeat("-", 194) + "\n")
}

// writeLevelStats renders one row of the per-level table. The same layout
// is reused for the "Sum" and "Int" rows, with a synthesized name and
// counters. Column order and units are part of the contract for parsers of
// this text.
func writeLevelStats(
	buf *bytes.Buffer,
	name string,
	numFiles, beingCompacted int,
	totalFileSize, score, wAmp float64,
	stall stallCounters,
	stats CompactionStats,
) {
	bytesRead := stats.TotalBytesRead()
	bytesNew := invariants.SafeSub(stats.BytesWritten, stats.BytesReadNextLevel)
	var stallAvgMs float64
	if stall.count > 0 {
		stallAvgMs = float64(stall.micros) / 1e3 / float64(stall.count)
	}
	fmt.Fprintf(buf,
		"%4s %5d/%-3d %8.0f %5.1f "+ /* Level, Files, Size(MB), Score */
			"%8.1f "+ /* Read(GB) */
			"%7.1f "+ /* Rn(GB) */
			"%8.1f "+ /* Rnp1(GB) */
			"%9.1f "+ /* Write(GB) */
			"%8.1f "+ /* Wnew(GB) */
			"%9.1f "+ /* Moved(GB) */
			"%5.1f "+ /* W-Amp */
			"%8.1f "+ /* Rd(MB/s) */
			"%8.1f "+ /* Wr(MB/s) */
			"%9.0f "+ /* Comp(sec) */
			"%9d "+ /* Comp(cnt) */
			"%8.3f "+ /* Avg(sec) */
			"%10.2f "+ /* Stall(sec) */
			"%10d "+ /* Stall(cnt) */
			"%7.2f "+ /* Avg(ms) */
			"%12d "+ /* input records */
			"%12d\n", /* dropped records */
		name, numFiles, beingCompacted, totalFileSize/mb, score,
		float64(bytesRead)/gb,
		float64(stats.BytesRead)/gb,
		float64(stats.BytesReadNextLevel)/gb,
		float64(stats.BytesWritten)/gb,
		float64(bytesNew)/gb,
		float64(stats.BytesMoved)/gb,
		wAmp,
		stats.ReadMBPerSec(),
		stats.WriteMBPerSec(),
		float64(stats.Micros)/1e6,
		stats.Count,
		stats.AvgSeconds(),
		float64(stall.micros)/1e6,
		stall.count,
		stallAvgMs,
		stats.InputRecords,
		stats.DroppedRecords)
}

// DumpCFStats appends the column family's compaction and stall report to
// buf: the per-level table with its Sum and Int rows, the flush volume, and
// the stall breakdown by reason. It finishes by overwriting the interval
// snapshot with the just-observed cumulative values, so consecutive reports
// show interval activity.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) DumpCFStats(buf *bytes.Buffer, env Env) {
	current := env.Versions.Current()
	s.writeCompactionStatsHeader(buf)

	var statsSum CompactionStats
	var totalFiles, totalBeingCompacted int
	var totalFileSize float64
	var totalStall stallCounters
	var totalSoft, totalHard stallCounters
	for level := 0; level < s.numLevels; level++ {
		lm := &current.Levels[level]
		files := lm.Len()
		totalFiles += files
		compacting := lm.NumCompacting()
		totalBeingCompacted += compacting
		// Only levels that have at least one file or some measured
		// compaction time get a row (and contribute to the summary).
		if s.compStats[level].Micros == 0 && files == 0 {
			continue
		}
		stall := s.levelStall(level)
		statsSum.Add(s.compStats[level])
		totalFileSize += float64(lm.Size())
		totalStall.add(stall)
		totalSoft.add(s.stallSoft[level])
		totalHard.add(s.stallHard[level])
		writeLevelStats(buf, "L"+strconv.Itoa(level), files, compacting,
			float64(lm.Size()), lm.Score, s.compStats[level].WriteAmp(),
			stall, s.compStats[level])
	}

	// The summary rows represent total amplification relative to what
	// entered the system, so their write-amp denominator is the flush
	// ingest volume rather than the bytes re-read internally.
	currIngest := s.flushBytes
	wAmp := float64(statsSum.BytesWritten) / float64(currIngest+1)
	writeLevelStats(buf, "Sum", totalFiles, totalBeingCompacted,
		totalFileSize, 0, wAmp, totalStall, statsSum)

	// The interval snapshot sums every level, not just the levels that
	// qualify for a row: a level can stall while it holds files and then
	// empty out before the next report, and the snapshot may never shrink
	// between reports.
	var cumStats CompactionStats
	var cumStall stallCounters
	for level := 0; level < s.numLevels; level++ {
		cumStats.Add(s.compStats[level])
		cumStall.add(s.levelStall(level))
	}

	intervalIngest := currIngest - s.cfSnapshot.ingestBytes + 1
	intervalStats := cumStats
	intervalStats.Subtract(s.cfSnapshot.compStats)
	intervalStall := stallCounters{
		micros: invariants.SafeSub(cumStall.micros, s.cfSnapshot.stallMicros),
		count:  invariants.SafeSub(cumStall.count, s.cfSnapshot.stallCount),
	}
	wAmp = float64(intervalStats.BytesWritten) / float64(intervalIngest)
	writeLevelStats(buf, "Int", 0, 0, 0, 0, wAmp, intervalStall, intervalStats)

	fmt.Fprintf(buf, "Flush(GB): accumulative %.3f, interval %.3f\n",
		float64(currIngest)/gb, float64(intervalIngest)/gb)
	fmt.Fprintf(buf,
		"Stalls(secs): %.3f %s, %.3f %s, %.3f %s, %.3f %s, %.3f %s\n",
		float64(s.stall[StallLevel0Slowdown].micros)/1e6, StallLevel0Slowdown,
		float64(s.stall[StallLevel0NumFiles].micros)/1e6, StallLevel0NumFiles,
		float64(s.stall[StallMemtableCompaction].micros)/1e6, StallMemtableCompaction,
		float64(totalSoft.micros)/1e6, StallLevelSlowdownSoft,
		float64(totalHard.micros)/1e6, StallLevelSlowdownHard)
	fmt.Fprintf(buf,
		"Stalls(count): %d %s, %d %s, %d %s, %d %s, %d %s\n",
		s.stall[StallLevel0Slowdown].count, StallLevel0Slowdown,
		s.stall[StallLevel0NumFiles].count, StallLevel0NumFiles,
		s.stall[StallMemtableCompaction].count, StallMemtableCompaction,
		totalSoft.count, StallLevelSlowdownSoft,
		totalHard.count, StallLevelSlowdownHard)

	s.cfSnapshot = cfStatsSnapshot{
		compStats:   cumStats,
		ingestBytes: currIngest,
		stallMicros: cumStall.micros,
		stallCount:  cumStall.count,
	}
}

// DumpDBStats appends the DB-wide report to buf: uptime, write and WAL
// counters, cumulative and interval. It finishes by overwriting the
// interval snapshot, like DumpCFStats.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) DumpDBStats(buf *bytes.Buffer) {
	secondsUp := (float64(s.timeNow().Sub(s.startedAt).Microseconds()) + 1) / 1e6
	intervalSecondsUp := secondsUp - s.dbSnapshot.secondsUp
	fmt.Fprintf(buf, "\n** DB Stats **\nUptime(secs): %.1f total, %.1f interval\n",
		secondsUp, intervalSecondsUp)

	db := &s.DB

	// writes:  total number of write requests.
	// keys:    total number of key updates issued by those requests.
	// batches: number of group commits; writes/batches is the average
	//          group commit size. The interval block uses the same layout.
	writes := db.WriteDoneByOther + db.WriteDoneBySelf
	fmt.Fprintf(buf,
		"Cumulative writes: %d writes, %d keys, %d batches, "+
			"%.1f writes per batch, %.2f GB user ingest, stall micros: %d\n",
		writes, db.NumKeysWritten, db.WriteDoneBySelf,
		float64(writes)/float64(db.WriteDoneBySelf+1),
		float64(db.BytesWritten)/gb, db.StallMicros)
	fmt.Fprintf(buf,
		"Cumulative WAL: %d writes, %d syncs, %.2f writes per sync, %.2f GB written\n",
		db.WriteWithWAL, db.WALSynced,
		float64(db.WriteWithWAL)/float64(db.WALSynced+1),
		float64(db.WALBytes)/gb)

	intervalWriteOther := db.WriteDoneByOther - s.dbSnapshot.writeOther
	intervalWriteSelf := db.WriteDoneBySelf - s.dbSnapshot.writeSelf
	intervalWrites := intervalWriteOther + intervalWriteSelf
	fmt.Fprintf(buf,
		"Interval writes: %d writes, %d keys, %d batches, "+
			"%.1f writes per batch, %.1f MB user ingest, stall micros: %d\n",
		intervalWrites,
		db.NumKeysWritten-s.dbSnapshot.numKeysWritten,
		intervalWriteSelf,
		float64(intervalWrites)/float64(intervalWriteSelf+1),
		float64(db.BytesWritten-s.dbSnapshot.ingestBytes)/mb,
		db.StallMicros-s.dbSnapshot.stallMicros)

	intervalWriteWithWAL := db.WriteWithWAL - s.dbSnapshot.writeWithWAL
	intervalWALSynced := db.WALSynced - s.dbSnapshot.walSynced
	fmt.Fprintf(buf,
		"Interval WAL: %d writes, %d syncs, %.2f writes per sync, %.2f MB written\n",
		intervalWriteWithWAL, intervalWALSynced,
		float64(intervalWriteWithWAL)/float64(intervalWALSynced+1),
		float64(db.WALBytes-s.dbSnapshot.walBytes)/mb)

	s.dbSnapshot = dbStatsSnapshot{
		ingestBytes:    db.BytesWritten,
		writeOther:     db.WriteDoneByOther,
		writeSelf:      db.WriteDoneBySelf,
		numKeysWritten: db.NumKeysWritten,
		walBytes:       db.WALBytes,
		walSynced:      db.WALSynced,
		writeWithWAL:   db.WriteWithWAL,
		stallMicros:    db.StallMicros,
		secondsUp:      secondsUp,
	}
}

// writeLevelFileStats renders the small per-level file count and size
// table backing the levelstats property.
func (s *InternalStats) writeLevelFileStats(buf *bytes.Buffer, current *manifest.Version) {
	buf.WriteString("Level Files Size(MB)\n--------------------\n")
	for level := 0; level < s.numLevels; level++ {
		fmt.Fprintf(buf, "%3d %8d %8.0f\n", level,
			current.Levels[level].Len(),
			float64(current.Levels[level].Size())/mb)
	}
}
