// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package region implements the free-list that tracks sub-allocations
// inside one shared byte range.
//
// A List keeps its regions sorted by offset. The regions tile [0, End())
// with no gaps and no overlaps, no two neighbours are both free, and the
// last region is never free: trailing free space is handed back to the
// bump pointer.
package region

import (
	"fmt"
	"math"
	"sort"
	"unsafe"

	"github.com/gogpu/frontend/internal/memory"
)

// MaxSize is the largest size a single region can hold.
const MaxSize = 1<<31 - 1

var regionBytes = int64(unsafe.Sizeof(Region{}))

// Region is a contiguous byte range tagged free or used.
type Region struct {
	Offset uint32
	Size   uint32
	Free   bool
}

// End returns the first offset past r.
func (r Region) End() uint64 { return uint64(r.Offset) + uint64(r.Size) }

// List is a first-fit region allocator with bump fallback.
// It is not safe for concurrent use.
type List struct {
	alloc   memory.Allocator
	regions []Region
}

// NewList creates an empty List whose region storage is charged to alloc.
func NewList(alloc memory.Allocator) *List {
	return &List{alloc: alloc}
}

// Allocate reserves size bytes and returns their offset. The first free
// region large enough is split; if none fits the bytes are appended at
// End. It returns false if the region storage cannot grow.
func (l *List) Allocate(size uint32) (uint32, bool) {
	checkSize(size)

	for i := range l.regions {
		r := l.regions[i]
		if !r.Free || r.Size < size {
			continue
		}
		if remain := r.Size - size; remain > 0 {
			split := Region{Offset: r.Offset + size, Size: remain, Free: true}
			if !l.insertAt(i+1, split) {
				return 0, false
			}
		}
		l.regions[i].Size = size
		l.regions[i].Free = false
		return r.Offset, true
	}

	offset := l.End()
	if uint64(offset)+uint64(size) > math.MaxUint32 {
		return 0, false
	}
	if !l.push(Region{Offset: offset, Size: size}) {
		return 0, false
	}
	return offset, true
}

// Reallocate resizes the used region at offset.
//
// An unchanged size is a no-op. A smaller size truncates the region in
// place. A larger size frees the region and allocates again, which may
// return a different offset; the caller then owns moving its bytes.
// Reallocating an offset that is not a used region panics.
func (l *List) Reallocate(offset, size uint32) (uint32, bool) {
	checkSize(size)

	i, ok := l.IndexOf(offset)
	if !ok || l.regions[i].Free {
		panic(fmt.Sprintf("region: reallocate of unknown offset %d", offset))
	}

	r := l.regions[i]
	switch {
	case size == r.Size:
		return offset, true
	case size < r.Size:
		if !l.shrink(i, size) {
			return 0, false
		}
		return offset, true
	}

	l.removeAt(i)
	newOffset, ok := l.Allocate(size)
	if !ok {
		// Removing the region released at least as many slots as
		// re-reserving it needs, so this cannot fail.
		if !l.Reserve(r.Offset, r.Size) {
			panic("region: consistency error")
		}
		return 0, false
	}
	return newOffset, true
}

func (l *List) shrink(i int, size uint32) bool {
	r := &l.regions[i]
	remain := r.Size - size
	switch {
	case i == len(l.regions)-1:
	case l.regions[i+1].Free:
		next := &l.regions[i+1]
		next.Offset -= remain
		next.Size += remain
	default:
		split := Region{Offset: r.Offset + size, Size: remain, Free: true}
		if !l.insertAt(i+1, split) {
			return false
		}
		r = &l.regions[i]
	}
	r.Size = size
	return true
}

// Deallocate frees the used region at offset and merges it with free
// neighbours. It returns false if offset is not a used region.
func (l *List) Deallocate(offset uint32) bool {
	i, ok := l.IndexOf(offset)
	if !ok || l.regions[i].Free {
		return false
	}
	l.removeAt(i)
	return true
}

// Reserve marks [offset, offset+size) used again after it was released
// by this List. The range must lie inside a single free region or past
// End. It is used to roll back a failed multi-step operation, so it never
// needs more region slots than the List held before that operation.
func (l *List) Reserve(offset, size uint32) bool {
	checkSize(size)

	end := l.End()
	if offset >= end {
		if offset > end && !l.push(Region{Offset: end, Size: offset - end, Free: true}) {
			return false
		}
		return l.push(Region{Offset: offset, Size: size})
	}

	i := sort.Search(len(l.regions), func(i int) bool {
		return l.regions[i].Offset > offset
	}) - 1
	if i < 0 {
		return false
	}
	r := l.regions[i]
	if !r.Free || uint64(offset)+uint64(size) > r.End() {
		return false
	}

	pre := offset - r.Offset
	post := uint32(r.End() - (uint64(offset) + uint64(size)))
	if post > 0 {
		if !l.insertAt(i+1, Region{Offset: offset + size, Size: post, Free: true}) {
			return false
		}
	}
	if pre > 0 {
		if !l.insertAt(i+1, Region{Offset: offset, Size: size}) {
			if post > 0 {
				l.shiftDown(i + 1)
			}
			return false
		}
		l.regions[i].Size = pre
		return true
	}
	l.regions[i] = Region{Offset: offset, Size: size}
	return true
}

// IndexOf finds the region that starts at offset by binary search.
func (l *List) IndexOf(offset uint32) (int, bool) {
	i := sort.Search(len(l.regions), func(i int) bool {
		return l.regions[i].Offset >= offset
	})
	if i < len(l.regions) && l.regions[i].Offset == offset {
		return i, true
	}
	return 0, false
}

// RegionAt returns the region at index i.
func (l *List) RegionAt(i int) Region {
	return l.regions[i]
}

// RegionByOffset returns the region that starts at offset. It panics if
// there is none.
func (l *List) RegionByOffset(offset uint32) Region {
	i, ok := l.IndexOf(offset)
	if !ok {
		panic(fmt.Sprintf("region: invalid offset %d", offset))
	}
	return l.regions[i]
}

// Len returns the number of regions.
func (l *List) Len() int { return len(l.regions) }

// End returns the offset one past the last region.
func (l *List) End() uint32 {
	if len(l.regions) == 0 {
		return 0
	}
	return uint32(l.regions[len(l.regions)-1].End())
}

// Regions returns a copy of the regions in offset order.
func (l *List) Regions() []Region {
	return append([]Region(nil), l.regions...)
}

// Validate checks the tiling and coalescing invariants.
func (l *List) Validate() error {
	var next uint64
	for i, r := range l.regions {
		if r.Size == 0 {
			return fmt.Errorf("region %d: empty", i)
		}
		if uint64(r.Offset) != next {
			return fmt.Errorf("region %d: offset %d, want %d", i, r.Offset, next)
		}
		if i > 0 && r.Free && l.regions[i-1].Free {
			return fmt.Errorf("region %d: adjacent free regions", i)
		}
		next = r.End()
	}
	if n := len(l.regions); n > 0 && l.regions[n-1].Free {
		return fmt.Errorf("region %d: trailing free region", n-1)
	}
	return nil
}

// Release returns the region storage to the allocator.
func (l *List) Release() {
	l.alloc.Release(int64(cap(l.regions)) * regionBytes)
	l.regions = nil
}

// removeAt frees region i, merges free neighbours and drops a free tail.
func (l *List) removeAt(i int) {
	l.regions[i].Free = true

	for i > 0 && l.regions[i-1].Free {
		l.regions[i-1].Size += l.regions[i].Size
		l.shiftDown(i)
		i--
	}
	for i+1 < len(l.regions) && l.regions[i+1].Free {
		l.regions[i].Size += l.regions[i+1].Size
		l.shiftDown(i + 1)
	}

	if i == len(l.regions)-1 {
		l.regions = l.regions[:i]
	}
}

func (l *List) grow() bool {
	n, c := len(l.regions), cap(l.regions)
	if n < c {
		return true
	}
	newCap := (c + 1) * 3 / 2
	if newCap <= n {
		newCap = n + 1
	}
	if !l.alloc.Acquire(int64(newCap-c) * regionBytes) {
		return false
	}
	regions := make([]Region, n, newCap)
	copy(regions, l.regions)
	l.regions = regions
	return true
}

func (l *List) push(r Region) bool {
	if !l.grow() {
		return false
	}
	l.regions = append(l.regions, r)
	return true
}

func (l *List) insertAt(i int, r Region) bool {
	if !l.grow() {
		return false
	}
	l.regions = l.regions[:len(l.regions)+1]
	copy(l.regions[i+1:], l.regions[i:])
	l.regions[i] = r
	return true
}

func (l *List) shiftDown(i int) {
	copy(l.regions[i:], l.regions[i+1:])
	l.regions = l.regions[:len(l.regions)-1]
}

func checkSize(size uint32) {
	if size == 0 || size > MaxSize {
		panic(fmt.Sprintf("region: invalid size %d", size))
	}
}
