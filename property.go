// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package gravel

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/graveldb/gravel/internal/manifest"
)

// PropertyPrefix is the namespace prefix shared by all property names. Any
// name outside the namespace is unknown.
const PropertyPrefix = "gravel."

// PropertyKind describes the shape of a property's value.
type PropertyKind uint8

const (
	// PropertyInteger properties yield a single uint64.
	PropertyInteger PropertyKind = iota
	// PropertyText properties yield a formatted, human-readable report.
	PropertyText
)

type propertyType int8

const (
	propNumFilesAtLevel propertyType = iota
	propLevelStats
	propStats
	propCFStats
	propDBStats
	propSSTables
	propNumImmutableMemTable
	propMemtableFlushPending
	propCompactionPending
	propBackgroundErrors
	propCurSizeActiveMemTable
	propCurSizeAllMemTables
	propNumEntriesActiveMemTable
	propNumEntriesImmMemTables
	propEstimateNumKeys
	propEstimateTableReadersMem
	propIsFileDeletionsEnabled
	propNumSnapshots
	propOldestSnapshotTime
	propNumLiveVersions
)

type propertyDesc struct {
	typ  propertyType
	kind PropertyKind
	// outOfMutex marks properties whose evaluation cost is not bounded by a
	// simple counter read. They must be evaluated through
	// GetIntPropertyOutOfMutex, without the engine mutex held.
	outOfMutex bool
}

// properties maps each recognized property suffix to its descriptor. The
// one parametrized name, num-files-at-level<N>, is handled separately in
// ResolveProperty.
var properties = map[string]propertyDesc{
	"levelstats":                   {propLevelStats, PropertyText, false},
	"stats":                        {propStats, PropertyText, false},
	"cfstats":                      {propCFStats, PropertyText, false},
	"dbstats":                      {propDBStats, PropertyText, false},
	"sstables":                     {propSSTables, PropertyText, false},
	"num-immutable-mem-table":      {propNumImmutableMemTable, PropertyInteger, false},
	"mem-table-flush-pending":      {propMemtableFlushPending, PropertyInteger, false},
	"compaction-pending":           {propCompactionPending, PropertyInteger, false},
	"background-errors":            {propBackgroundErrors, PropertyInteger, false},
	"cur-size-active-mem-table":    {propCurSizeActiveMemTable, PropertyInteger, false},
	"cur-size-all-mem-tables":      {propCurSizeAllMemTables, PropertyInteger, false},
	"num-entries-active-mem-table": {propNumEntriesActiveMemTable, PropertyInteger, false},
	"num-entries-imm-mem-tables":   {propNumEntriesImmMemTables, PropertyInteger, false},
	"estimate-num-keys":            {propEstimateNumKeys, PropertyInteger, false},
	"estimate-table-readers-mem":   {propEstimateTableReadersMem, PropertyInteger, true},
	"is-file-deletions-enabled":    {propIsFileDeletionsEnabled, PropertyInteger, false},
	"num-snapshots":                {propNumSnapshots, PropertyInteger, false},
	"oldest-snapshot-time":         {propOldestSnapshotTime, PropertyInteger, false},
	"num-live-versions":            {propNumLiveVersions, PropertyInteger, false},
}

// numFilesAtLevelPrefix is the parametrized property name: it is followed
// by a decimal level index.
const numFilesAtLevelPrefix = "num-files-at-level"

// Property identifies a successfully resolved property: its descriptor
// plus, for the per-level property, the decoded level index.
type Property struct {
	desc  propertyDesc
	level int
}

// Kind returns the shape of the property's value.
func (p Property) Kind() PropertyKind {
	return p.desc.kind
}

// OutOfMutex reports whether the property must be evaluated without the
// engine mutex held, via GetIntPropertyOutOfMutex. Every other property
// requires the mutex.
func (p Property) OutOfMutex() bool {
	return p.desc.outOfMutex
}

// ResolveProperty maps a property name to its descriptor. It is a pure
// lookup with no side effects. The second return value is false when the
// name is outside the namespace, the suffix is unrecognized, or the level
// suffix of num-files-at-level<N> is malformed or outside [0, numLevels).
func ResolveProperty(name string, numLevels int) (Property, bool) {
	suffix, ok := strings.CutPrefix(name, PropertyPrefix)
	if !ok {
		return Property{}, false
	}
	if d, ok := properties[suffix]; ok {
		return Property{desc: d}, true
	}
	if rest, ok := strings.CutPrefix(suffix, numFilesAtLevelPrefix); ok {
		// The suffix must be a fully-consumed decimal integer within the
		// configured level range.
		level, err := strconv.ParseUint(rest, 10, 32)
		if err != nil || int(level) >= numLevels {
			return Property{}, false
		}
		return Property{
			desc:  propertyDesc{propNumFilesAtLevel, PropertyInteger, false},
			level: int(level),
		}, true
	}
	return Property{}, false
}

// GetIntProperty evaluates an integer-valued property. It returns false if
// the property is not integer-valued or requires out-of-mutex evaluation.
//
// The engine mutex must be held when calling this.
func (s *InternalStats) GetIntProperty(p Property, env Env) (uint64, bool) {
	if p.desc.outOfMutex {
		return 0, false
	}
	switch p.desc.typ {
	case propNumFilesAtLevel:
		return uint64(env.Versions.Current().Levels[p.level].Len()), true
	case propNumImmutableMemTable:
		return uint64(env.Imm.NumImmutable()), true
	case propMemtableFlushPending:
		if env.Imm.FlushPending() {
			return 1, true
		}
		return 0, true
	case propCompactionPending:
		// 1 if the picker has already determined that at least one
		// compaction is needed, 0 otherwise.
		if env.Picker.NeedsCompaction(env.Versions.Current()) {
			return 1, true
		}
		return 0, true
	case propBackgroundErrors:
		return s.backgroundErrors, true
	case propCurSizeActiveMemTable:
		return env.Mem.ApproximateMemoryUsage(), true
	case propCurSizeAllMemTables:
		return env.Mem.ApproximateMemoryUsage() + env.Imm.ApproximateMemoryUsage(), true
	case propNumEntriesActiveMemTable:
		return env.Mem.NumEntries(), true
	case propNumEntriesImmMemTables:
		return env.Imm.NumEntries(), true
	case propEstimateNumKeys:
		// Estimated entries in the tables plus exact entries in the
		// memtables.
		return env.Mem.NumEntries() + env.Imm.NumEntries() +
			env.Versions.Current().EstimatedActiveKeys(), true
	case propIsFileDeletionsEnabled:
		if env.FileDeletionsEnabled() {
			return 1, true
		}
		return 0, true
	case propNumSnapshots:
		return uint64(env.Snapshots.Count()), true
	case propOldestSnapshotTime:
		return uint64(env.Snapshots.OldestUnixSeconds()), true
	case propNumLiveVersions:
		return uint64(env.Versions.LiveVersionCount()), true
	default:
		return 0, false
	}
}

// GetStringProperty evaluates a property into text form. Text properties
// render their report; integer-valued properties are formatted in decimal.
// It returns false for properties that require out-of-mutex evaluation.
//
// The engine mutex must be held when calling this. Note that the full
// report properties (stats, cfstats, dbstats) update the interval snapshot
// as a side effect, under the same critical section.
func (s *InternalStats) GetStringProperty(p Property, env Env) (string, bool) {
	if p.desc.outOfMutex {
		return "", false
	}
	switch p.desc.typ {
	case propLevelStats:
		var buf bytes.Buffer
		s.writeLevelFileStats(&buf, env.Versions.Current())
		return buf.String(), true
	case propStats:
		var buf bytes.Buffer
		s.DumpCFStats(&buf, env)
		s.DumpDBStats(&buf)
		return buf.String(), true
	case propCFStats:
		var buf bytes.Buffer
		s.DumpCFStats(&buf, env)
		return buf.String(), true
	case propDBStats:
		var buf bytes.Buffer
		s.DumpDBStats(&buf)
		return buf.String(), true
	case propSSTables:
		return env.Versions.Current().DebugString(), true
	default:
		v, ok := s.GetIntProperty(p, env)
		if !ok {
			return "", false
		}
		return strconv.FormatUint(v, 10), true
	}
}

// GetIntPropertyOutOfMutex evaluates the properties marked out-of-mutex.
// version is the caller's reference-counted handle to the engine's current
// version metadata, obtained before releasing the engine mutex (or through
// a lock-free acquisition path); a nil version is not an error and yields
// zero, matching the no-version-open state.
//
// The engine mutex must NOT be held when calling this: the point of the
// out-of-mutex carve-out is that the potentially expensive scan does not
// block foreground writes.
func (s *InternalStats) GetIntPropertyOutOfMutex(
	p Property, version *manifest.Version,
) (uint64, bool) {
	if p.desc.typ != propEstimateTableReadersMem {
		return 0, false
	}
	if version == nil {
		return 0, true
	}
	return version.MemoryUsageByTableReaders(), true
}
