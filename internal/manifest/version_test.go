// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionRefLifecycle(t *testing.T) {
	var l VersionList
	l.Init()
	require.True(t, l.Empty())

	deleted := make(map[*Version]bool)
	newVersion := func() *Version {
		v := NewVersion(3)
		v.Deleted = func() { deleted[v] = true }
		v.Ref()
		l.PushBack(v)
		return v
	}

	v1 := newVersion()
	v2 := newVersion()
	require.Equal(t, 2, l.Len())
	require.Equal(t, v2, l.Back())

	// An extra reference keeps v1 alive past the first Unref.
	v1.Ref()
	v1.Unref()
	require.False(t, deleted[v1])
	require.Equal(t, 2, l.Len())

	v1.Unref()
	require.True(t, deleted[v1])
	require.False(t, deleted[v2])
	require.Equal(t, 1, l.Len())
	require.Equal(t, v2, l.Back())

	v2.Unref()
	require.True(t, deleted[v2])
	require.True(t, l.Empty())
	require.Nil(t, l.Back())
}

func TestVersionUnrefLocked(t *testing.T) {
	var l VersionList
	l.Init()

	v := NewVersion(3)
	var deleted bool
	v.Deleted = func() { deleted = true }
	v.Ref()
	l.PushBack(v)

	l.mu.Lock()
	v.UnrefLocked()
	l.mu.Unlock()
	require.True(t, deleted)
	require.True(t, l.Empty())
}

func TestVersionUnrefWithoutList(t *testing.T) {
	v := NewVersion(1)
	var deleted bool
	v.Deleted = func() { deleted = true }
	v.Ref()
	v.Unref()
	require.True(t, deleted)
}

func TestMemoryUsageByTableReaders(t *testing.T) {
	v := NewVersion(3)
	v.Levels[0].Insert(&TableMetadata{
		FileNum: 1, Size: 100, Smallest: []byte("a"), Largest: []byte("b"),
		Reader: &TableReader{MemEstimate: 1000},
	})
	v.Levels[1].Insert(&TableMetadata{
		FileNum: 2, Size: 200, Smallest: []byte("a"), Largest: []byte("b"),
		Reader: &TableReader{MemEstimate: 234},
	})
	// A table without an open reader contributes nothing.
	v.Levels[2].Insert(&TableMetadata{
		FileNum: 3, Size: 300, Smallest: []byte("a"), Largest: []byte("b"),
	})
	require.EqualValues(t, 1234, v.MemoryUsageByTableReaders())
}

func TestEstimatedActiveKeys(t *testing.T) {
	v := NewVersion(2)
	v.Levels[0].Insert(&TableMetadata{
		FileNum: 1, Smallest: []byte("a"), Largest: []byte("b"),
		NumEntries: 100, NumDeletions: 10,
	})
	v.Levels[1].Insert(&TableMetadata{
		FileNum: 2, Smallest: []byte("a"), Largest: []byte("b"),
		NumEntries: 30, NumDeletions: 5,
	})
	require.EqualValues(t, 130-2*15, v.EstimatedActiveKeys())

	// Deletion-heavy versions clamp at zero rather than wrapping.
	v.Levels[1].Insert(&TableMetadata{
		FileNum: 3, Smallest: []byte("c"), Largest: []byte("d"),
		NumEntries: 60, NumDeletions: 60,
	})
	require.EqualValues(t, 0, v.EstimatedActiveKeys())
}

func TestCheckOrdering(t *testing.T) {
	v := NewVersion(2)
	// Overlap within level 0 is allowed.
	v.Levels[0].Insert(&TableMetadata{FileNum: 1, Smallest: []byte("a"), Largest: []byte("m")})
	v.Levels[0].Insert(&TableMetadata{FileNum: 2, Smallest: []byte("c"), Largest: []byte("z")})
	v.Levels[1].Insert(&TableMetadata{FileNum: 3, Smallest: []byte("a"), Largest: []byte("c")})
	v.Levels[1].Insert(&TableMetadata{FileNum: 4, Smallest: []byte("d"), Largest: []byte("f")})
	require.NoError(t, v.CheckOrdering())

	v.Levels[1].Insert(&TableMetadata{FileNum: 5, Smallest: []byte("e"), Largest: []byte("g")})
	err := v.CheckOrdering()
	require.Error(t, err)
	require.Contains(t, err.Error(), "L1 tables 000004 and 000005 are not ordered")
}

func TestVersionString(t *testing.T) {
	v := NewVersion(3)
	v.Levels[1].Insert(&TableMetadata{
		FileNum: 7, Size: 1024, Smallest: []byte("a"), Largest: []byte("m"),
		NumEntries: 12, NumDeletions: 3,
	})
	require.Equal(t, "L1:\n  000007:[a-m] size=1024\n", v.String())
	require.Equal(t, "L1:\n  000007:[a-m] size=1024 entries=12 deletions=3\n",
		v.DebugString())
}

func TestLevelMetadata(t *testing.T) {
	var lm LevelMetadata
	require.True(t, lm.Empty())
	lm.Insert(&TableMetadata{FileNum: 1, Size: 10, Smallest: []byte("a"), Largest: []byte("b")})
	lm.Insert(&TableMetadata{FileNum: 2, Size: 20, Smallest: []byte("c"), Largest: []byte("d"), BeingCompacted: true})
	require.False(t, lm.Empty())
	require.Equal(t, 2, lm.Len())
	require.EqualValues(t, 30, lm.Size())
	require.Equal(t, 1, lm.NumCompacting())

	var files []uint64
	for tbl := range lm.All() {
		files = append(files, tbl.FileNum)
	}
	require.Equal(t, []uint64{1, 2}, files)
}
