// Copyright 2026 The Gravel Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package manifest

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/graveldb/gravel/internal/invariants"
)

// Version is a collection of table metadata for the on-disk tables at the
// various levels of the LSM. A Version is immutable once installed:
// compactions and flushes produce a new Version rather than mutating the
// current one.
//
// Versions are reference counted, independently of the engine mutex. A
// caller that needs to read a Version after releasing the mutex (for
// example, to estimate table-reader memory without blocking foreground
// writes) acquires a reference while the mutex is still held and releases
// it when done.
type Version struct {
	refs atomic.Int32

	// Levels holds the metadata for each level of the LSM. Level 0 may
	// contain overlapping tables; all other levels are sorted and
	// non-overlapping.
	Levels []LevelMetadata

	// Deleted is invoked, with the VersionList mutex held, when the last
	// reference to the version is dropped.
	Deleted func()

	// The list the version is linked into, if any.
	list *VersionList

	// The next/prev link for the VersionList doubly-linked list of versions.
	prev, next *Version
}

// NewVersion returns an empty Version with the given number of levels.
func NewVersion(numLevels int) *Version {
	return &Version{
		Levels: make([]LevelMetadata, numLevels),
	}
}

// NumLevels returns the number of levels in the version.
func (v *Version) NumLevels() int {
	return len(v.Levels)
}

// Refs returns the number of references to the version.
func (v *Version) Refs() int32 {
	return v.refs.Load()
}

// Ref increments the version refcount.
func (v *Version) Ref() {
	v.refs.Add(1)
}

// Unref decrements the version refcount. If the last reference to the
// version was removed, the version is removed from the list of versions and
// the Deleted callback is invoked. Requires that the VersionList mutex is
// NOT locked.
func (v *Version) Unref() {
	switch n := v.refs.Add(-1); {
	case n < 0:
		panic("gravel: version refcount negative")
	case n == 0:
		l := v.list
		if l != nil {
			l.mu.Lock()
			l.Remove(v)
			if v.Deleted != nil {
				v.Deleted()
			}
			l.mu.Unlock()
		} else if v.Deleted != nil {
			v.Deleted()
		}
	}
}

// UnrefLocked decrements the version refcount. If the last reference to the
// version was removed, the version is removed from the list of versions and
// the Deleted callback is invoked. Requires that the VersionList mutex is
// already locked.
func (v *Version) UnrefLocked() {
	switch n := v.refs.Add(-1); {
	case n < 0:
		panic("gravel: version refcount negative")
	case n == 0:
		if v.list != nil {
			v.list.Remove(v)
		}
		if v.Deleted != nil {
			v.Deleted()
		}
	}
}

// MemoryUsageByTableReaders returns the approximate number of bytes of
// memory used by the open readers of the version's tables: index, filter
// and other metadata blocks pinned outside the block cache. The scan walks
// every table in the version and so may be expensive for large LSMs; it is
// intentionally safe to run without the engine mutex, against a version
// kept alive by its refcount.
func (v *Version) MemoryUsageByTableReaders() uint64 {
	var total uint64
	for l := range v.Levels {
		for t := range v.Levels[l].All() {
			if t.Reader != nil {
				total += t.Reader.MemEstimate
			}
		}
	}
	return total
}

// EstimatedActiveKeys estimates the number of live keys in the version's
// tables. Each deletion entry is assumed to shadow one older entry, so the
// estimate discounts deletions twice: once for the tombstone itself and
// once for the entry it deletes.
func (v *Version) EstimatedActiveKeys() uint64 {
	var entries, deletions uint64
	for l := range v.Levels {
		for t := range v.Levels[l].All() {
			entries += t.NumEntries
			deletions += t.NumDeletions
		}
	}
	if entries < 2*deletions {
		return 0
	}
	return entries - 2*deletions
}

// CheckOrdering checks that the tables in each level beyond level 0 are
// sorted and non-overlapping.
func (v *Version) CheckOrdering() error {
	for l := 1; l < len(v.Levels); l++ {
		if err := v.Levels[l].checkOrdering(l); err != nil {
			return errors.Wrap(err, "gravel: internal error")
		}
	}
	return nil
}

// String implements fmt.Stringer, printing the table metadata for each
// level in the version.
func (v *Version) String() string {
	var buf bytes.Buffer
	for l := range v.Levels {
		if v.Levels[l].Empty() {
			continue
		}
		fmt.Fprintf(&buf, "L%d:\n", l)
		for t := range v.Levels[l].All() {
			fmt.Fprintf(&buf, "  %s size=%d\n", t, t.Size)
		}
	}
	return buf.String()
}

// DebugString returns an alternative format to String() which includes
// entry counts for each table.
func (v *Version) DebugString() string {
	var buf bytes.Buffer
	for l := range v.Levels {
		if v.Levels[l].Empty() {
			continue
		}
		fmt.Fprintf(&buf, "L%d:\n", l)
		for t := range v.Levels[l].All() {
			fmt.Fprintf(&buf, "  %s size=%d entries=%d deletions=%d\n",
				t, t.Size, t.NumEntries, t.NumDeletions)
		}
	}
	return buf.String()
}

// VersionList implements a doubly-linked list of versions, ordered from
// oldest to newest. The back of the list is the current version.
type VersionList struct {
	mu   sync.Mutex
	root Version
}

// Init initializes the version list.
func (l *VersionList) Init() {
	l.root.next = &l.root
	l.root.prev = &l.root
}

// Empty returns true if the list is empty, and false otherwise.
func (l *VersionList) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.root.next == &l.root
}

// Len returns the number of versions in the list. This is the number of
// live versions: every version in the list holds at least one reference.
func (l *VersionList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for v := l.root.next; v != &l.root; v = v.next {
		n++
	}
	return n
}

// Back returns the newest version in the list, or nil if the list is empty.
func (l *VersionList) Back() *Version {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.root.prev == &l.root {
		return nil
	}
	return l.root.prev
}

// PushBack adds a new version to the back of the list, making it the
// current version.
func (l *VersionList) PushBack(v *Version) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v.list != nil || v.prev != nil {
		panic("gravel: version list is inconsistent")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

// Remove removes the specified version from the list. Requires that the
// list mutex is held (it is held by Version.Unref when the last reference
// drops).
func (l *VersionList) Remove(v *Version) {
	if v == &l.root {
		panic("gravel: cannot remove version list root node")
	}
	if v.list != l {
		panic("gravel: version list is inconsistent")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next = nil // avoid memory leaks
	v.prev = nil // avoid memory leaks
	v.list = nil // avoid memory leaks
	if invariants.Enabled && v.refs.Load() > 0 {
		panic("gravel: version removed with outstanding references")
	}
}
