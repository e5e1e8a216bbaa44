// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package gravel

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/datadriven"
	"github.com/graveldb/gravel/internal/manifest"
	"github.com/stretchr/testify/require"
)

// TestWriteLevelStatsFixedWidth pins the exact field widths of a per-level
// row, since the layout is part of the contract for parsers of the report
// text.
func TestWriteLevelStatsFixedWidth(t *testing.T) {
	stats := CompactionStats{
		BytesRead:          2147483648, // 2 GiB
		BytesReadNextLevel: 1073741824, // 1 GiB
		BytesWritten:       4294967296, // 4 GiB
		Micros:             10000000,
		Count:              5,
		InputRecords:       5000,
		DroppedRecords:     1000,
	}
	var buf bytes.Buffer
	writeLevelStats(&buf, "L1", 4, 1, 419430400, 1.2, stats.WriteAmp(),
		stallCounters{micros: 200000, count: 2}, stats)

	expected := "  L1" + // level
		" " + "    4" + "/" + "1  " + // files/in-progress
		" " + "     400" + // size (MB)
		" " + "  1.2" + // score
		" " + "     3.0" + // read (GB)
		" " + "    2.0" + // Rn (GB)
		" " + "     1.0" + // Rnp1 (GB)
		" " + "      4.0" + // write (GB)
		" " + "     3.0" + // Wnew (GB)
		" " + "      0.0" + // moved (GB)
		" " + "  2.0" + // w-amp
		" " + "   307.2" + // read MB/s
		" " + "   409.6" + // write MB/s
		" " + "       10" + // comp (sec)
		" " + "        5" + // comp (cnt)
		" " + "   2.000" + // avg (sec)
		" " + "      0.20" + // stall (sec)
		" " + "         2" + // stall (cnt)
		" " + " 100.00" + // avg (ms)
		" " + "        5000" + // input records
		" " + "        1000" + // dropped records
		"\n"
	require.Equal(t, expected, buf.String())
}

// TestIntervalZeroAfterConsecutiveReports verifies that with no counter
// updates between two full reports, every interval field of the second
// report is zero.
func TestIntervalZeroAfterConsecutiveReports(t *testing.T) {
	s, now := newTestStats("default", 3)
	v := manifest.NewVersion(3)
	v.Levels[1].Insert(&manifest.TableMetadata{FileNum: 1, Size: mb, Smallest: []byte("a"), Largest: []byte("b")})
	env := testEnv(v)

	s.AddCompactionStats(1, CompactionStats{
		BytesRead: 100 << 20, BytesWritten: 200 << 20, Micros: 1000000, Count: 2,
	})
	s.AddFlushedBytes(100 << 20)
	s.RecordStall(StallLevel0Slowdown, 0, time.Second)
	s.DB.WriteDoneBySelf = 10
	s.DB.NumKeysWritten = 50

	var first bytes.Buffer
	s.DumpCFStats(&first, env)
	s.DumpDBStats(&first)

	*now += crtime.Mono(time.Second)
	var second bytes.Buffer
	s.DumpCFStats(&second, env)
	s.DumpDBStats(&second)

	intRow := findReportRow(t, second.String(), "Int")
	// Every numeric column of the Int row other than the trailing "+1"
	// artifacts is zero: files, size, score, volumes, rates, counts.
	require.Equal(t, []string{
		"Int", "0/0", "0", "0.0", "0.0", "0.0", "0.0", "0.0", "0.0", "0.0",
		"0.0", "0.0", "0.0", "0", "0", "0.000", "0.00", "0", "0.00", "0", "0",
	}, intRow)
	require.Contains(t, second.String(), "Interval writes: 0 writes, 0 keys, 0 batches, 0.0 writes per batch")
	require.Contains(t, second.String(), "Interval WAL: 0 writes, 0 syncs, 0.00 writes per sync, 0.00 MB written")
}

// TestIntervalStallOnEmptiedLevel reports once while a stalled level holds
// files, then again after the level has emptied out. The emptied level no
// longer gets a row, but the interval stall columns must stay defined (and
// zero) rather than subtracting a snapshot larger than the visible total.
func TestIntervalStallOnEmptiedLevel(t *testing.T) {
	s, _ := newTestStats("default", 3)
	v1 := manifest.NewVersion(3)
	v1.Levels[2].Insert(&manifest.TableMetadata{FileNum: 1, Size: mb, Smallest: []byte("a"), Largest: []byte("b")})
	s.RecordStall(StallLevelSlowdownSoft, 2, 300*time.Millisecond)

	var first bytes.Buffer
	s.DumpCFStats(&first, testEnv(v1))
	l2 := findReportRow(t, first.String(), "L2")
	require.Equal(t, []string{"0.30", "1"}, l2[16:18])

	var second bytes.Buffer
	require.NotPanics(t, func() {
		s.DumpCFStats(&second, testEnv(manifest.NewVersion(3)))
	})
	intRow := findReportRow(t, second.String(), "Int")
	require.Equal(t, []string{"0.00", "0"}, intRow[16:18])
}

// TestDumpDBStatsDenominatorGuards covers the +1 denominator guards: a
// writes-per-batch with a non-trivial divisor and a writes-per-sync of
// exactly zero rather than a division fault.
func TestDumpDBStatsDenominatorGuards(t *testing.T) {
	s, _ := newTestStats("default", 3)
	s.DB.WriteDoneBySelf = 60
	s.DB.WriteDoneByOther = 40
	var buf bytes.Buffer
	s.DumpDBStats(&buf)
	// 100 writes over 60+1 batches.
	require.Contains(t, buf.String(), "Cumulative writes: 100 writes, 0 keys, 60 batches, 1.6 writes per batch")
	// 0 WAL writes over 0+1 syncs.
	require.Contains(t, buf.String(), "Cumulative WAL: 0 writes, 0 syncs, 0.00 writes per sync, 0.00 GB written")
}

// findReportRow splits the report into lines and returns the fields of the
// row whose first field matches name.
func findReportRow(t *testing.T, report, name string) []string {
	t.Helper()
	for _, line := range strings.Split(report, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == name {
			return fields
		}
	}
	t.Fatalf("row %q not found in report:\n%s", name, report)
	return nil
}

// normalizeReport collapses runs of spaces so the datadriven expectations
// stay readable; the exact widths are pinned separately in
// TestWriteLevelStatsFixedWidth. Separator lines made of dashes are
// shortened, and the leading blank line dropped.
func normalizeReport(s string) string {
	var b strings.Builder
	lines := strings.Split(strings.TrimLeft(s, "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for _, line := range lines {
		if line != "" && strings.Trim(line, "-") == "" {
			b.WriteString(strings.Repeat("-", 8) + "\n")
			continue
		}
		b.WriteString(strings.Join(strings.Fields(line), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func TestReportDataDriven(t *testing.T) {
	var s *InternalStats
	var now crtime.Mono
	var vs *testVersionSet
	var env Env
	var nextFileNum uint64

	datadriven.RunTest(t, "testdata/report", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			var levels int
			name := "default"
			td.ScanArgs(t, "levels", &levels)
			td.MaybeScanArgs(t, "name", &name)
			now = 0
			s = NewInternalStats(name, levels)
			s.timeNow = func() crtime.Mono { return now }
			s.startedAt = now
			vs = &testVersionSet{current: manifest.NewVersion(levels), live: 1}
			env = testEnv(nil)
			env.Versions = vs
			nextFileNum = 1
			return ""

		case "add-tables":
			var level, count int
			var sizeEach uint64
			var compacting int
			var scoreStr string
			var entries, deletions uint64
			td.ScanArgs(t, "level", &level)
			td.ScanArgs(t, "count", &count)
			td.ScanArgs(t, "size-each", &sizeEach)
			td.MaybeScanArgs(t, "compacting", &compacting)
			td.MaybeScanArgs(t, "score", &scoreStr)
			var score float64
			if scoreStr != "" {
				var err error
				score, err = strconv.ParseFloat(scoreStr, 64)
				require.NoError(t, err)
			}
			td.MaybeScanArgs(t, "entries", &entries)
			td.MaybeScanArgs(t, "deletions", &deletions)
			lm := &vs.current.Levels[level]
			base := lm.Len()
			for i := 0; i < count; i++ {
				lm.Insert(&manifest.TableMetadata{
					FileNum:        nextFileNum,
					Size:           sizeEach,
					Smallest:       []byte(fmt.Sprintf("k%02d", 2*(base+i))),
					Largest:        []byte(fmt.Sprintf("k%02d", 2*(base+i)+1)),
					NumEntries:     entries,
					NumDeletions:   deletions,
					BeingCompacted: i < compacting,
				})
				nextFileNum++
			}
			lm.Score = score
			require.NoError(t, vs.current.CheckOrdering())
			return ""

		case "compact":
			var level int
			var cs CompactionStats
			td.ScanArgs(t, "level", &level)
			td.MaybeScanArgs(t, "read", &cs.BytesRead)
			td.MaybeScanArgs(t, "read-next", &cs.BytesReadNextLevel)
			td.MaybeScanArgs(t, "written", &cs.BytesWritten)
			td.MaybeScanArgs(t, "moved", &cs.BytesMoved)
			td.MaybeScanArgs(t, "micros", &cs.Micros)
			td.MaybeScanArgs(t, "count", &cs.Count)
			td.MaybeScanArgs(t, "input", &cs.InputRecords)
			td.MaybeScanArgs(t, "dropped", &cs.DroppedRecords)
			s.AddCompactionStats(level, cs)
			return ""

		case "flush":
			var n uint64
			td.ScanArgs(t, "bytes", &n)
			s.AddFlushedBytes(n)
			return ""

		case "stall":
			var reasonName string
			var level, count int
			var durStr string
			count = 1
			td.ScanArgs(t, "reason", &reasonName)
			td.MaybeScanArgs(t, "level", &level)
			td.MaybeScanArgs(t, "count", &count)
			td.ScanArgs(t, "dur", &durStr)
			dur, err := time.ParseDuration(durStr)
			require.NoError(t, err)
			var reason StallReason
			switch reasonName {
			case "level0_slowdown":
				reason = StallLevel0Slowdown
			case "level0_numfiles":
				reason = StallLevel0NumFiles
			case "memtable_compaction":
				reason = StallMemtableCompaction
			case "leveln_slowdown_soft":
				reason = StallLevelSlowdownSoft
			case "leveln_slowdown_hard":
				reason = StallLevelSlowdownHard
			default:
				td.Fatalf(t, "unknown stall reason %q", reasonName)
			}
			for i := 0; i < count; i++ {
				s.RecordStall(reason, level, dur)
			}
			return ""

		case "db":
			td.MaybeScanArgs(t, "self", &s.DB.WriteDoneBySelf)
			td.MaybeScanArgs(t, "other", &s.DB.WriteDoneByOther)
			td.MaybeScanArgs(t, "keys", &s.DB.NumKeysWritten)
			td.MaybeScanArgs(t, "bytes", &s.DB.BytesWritten)
			td.MaybeScanArgs(t, "wal-writes", &s.DB.WriteWithWAL)
			td.MaybeScanArgs(t, "wal-bytes", &s.DB.WALBytes)
			td.MaybeScanArgs(t, "wal-syncs", &s.DB.WALSynced)
			td.MaybeScanArgs(t, "stall-micros", &s.DB.StallMicros)
			return ""

		case "tick":
			var seconds int
			td.ScanArgs(t, "seconds", &seconds)
			now += crtime.Mono(time.Duration(seconds) * time.Second)
			return ""

		case "cfstats":
			var buf bytes.Buffer
			s.DumpCFStats(&buf, env)
			return normalizeReport(buf.String())

		case "dbstats":
			var buf bytes.Buffer
			s.DumpDBStats(&buf)
			return strings.TrimLeft(buf.String(), "\n")

		case "levelstats", "sstables":
			p, ok := ResolveProperty(PropertyPrefix+td.Cmd, s.NumLevels())
			require.True(t, ok)
			out, ok := s.GetStringProperty(p, env)
			require.True(t, ok)
			return out

		case "property":
			var name string
			td.ScanArgs(t, "name", &name)
			p, ok := ResolveProperty(name, s.NumLevels())
			if !ok {
				return "unknown property\n"
			}
			if p.OutOfMutex() {
				val, ok := s.GetIntPropertyOutOfMutex(p, vs.current)
				require.True(t, ok)
				return fmt.Sprintf("%d\n", val)
			}
			out, ok := s.GetStringProperty(p, env)
			require.True(t, ok)
			return out + "\n"

		default:
			td.Fatalf(t, "unknown command: %s", td.Cmd)
			return ""
		}
	})
}
