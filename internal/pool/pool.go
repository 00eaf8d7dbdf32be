// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package pool implements a fixed-capacity slab allocator with an
// occupancy bitset and per-slot generation counters.
package pool

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/frontend/internal/bitset"
	"github.com/gogpu/frontend/internal/memory"
)

// Handle identifies one lifetime of one pool slot. A slot's generation is
// bumped every time the object in it is destroyed, so a Handle taken
// before a destroy never matches the slot's next occupant.
type Handle struct {
	Index      uint32
	Generation uint32
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

// StaticPool is a slab of count objects of type T. Slot pointers are
// stable for the lifetime of the pool since the slab never grows.
//
// StaticPool is not safe for concurrent use.
type StaticPool[T any] struct {
	alloc       memory.Allocator
	slots       []T
	generations []uint32
	used        *bitset.Bitset
	objectSize  int64
	stride      uintptr
}

// New creates a pool of count slots. Each slot is charged to alloc at
// unsafe.Sizeof(T) rounded up to memory.Alignment.
func New[T any](alloc memory.Allocator, count int) (*StaticPool[T], error) {
	var zero T
	stride := unsafe.Sizeof(zero)
	if stride == 0 {
		panic("pool: zero-sized object type")
	}
	objectSize := memory.Align(int64(stride))

	if !alloc.Acquire(objectSize * int64(count)) {
		return nil, memory.ErrOutOfMemory
	}
	used, err := bitset.New(alloc, count)
	if err != nil {
		alloc.Release(objectSize * int64(count))
		return nil, err
	}

	return &StaticPool[T]{
		alloc:       alloc,
		slots:       make([]T, count),
		generations: make([]uint32, count),
		used:        used,
		objectSize:  objectSize,
		stride:      stride,
	}, nil
}

// Allocate reserves the lowest free slot. It returns false when the pool
// is full.
func (p *StaticPool[T]) Allocate() (int, bool) {
	i, ok := p.used.FindFirstUnset()
	if !ok {
		return 0, false
	}
	p.used.Set(i)
	return i, true
}

// Deallocate frees slot i. Freeing a slot that is not allocated panics.
func (p *StaticPool[T]) Deallocate(i int) {
	if !p.used.Test(i) {
		panic(fmt.Sprintf("pool: double free of slot %d", i))
	}
	p.used.Clear(i)
}

// Create allocates a slot and returns a pointer to its zero value.
func (p *StaticPool[T]) Create() (*T, bool) {
	i, ok := p.Allocate()
	if !ok {
		return nil, false
	}
	var zero T
	p.slots[i] = zero
	return &p.slots[i], true
}

// Destroy zeroes the object at ptr, advances the slot's generation and
// frees the slot.
func (p *StaticPool[T]) Destroy(ptr *T) {
	i := p.IndexOf(ptr)
	var zero T
	p.slots[i] = zero
	p.generations[i]++
	p.Deallocate(i)
}

// IndexOf returns the slot index of ptr. It panics if ptr does not point
// at the start of a slot in this pool.
func (p *StaticPool[T]) IndexOf(ptr *T) int {
	i, ok := p.indexOf(ptr)
	if !ok {
		panic("pool: pointer not owned by pool")
	}
	return i
}

// Owns reports whether ptr points at a slot in this pool.
func (p *StaticPool[T]) Owns(ptr *T) bool {
	_, ok := p.indexOf(ptr)
	return ok
}

func (p *StaticPool[T]) indexOf(ptr *T) (int, bool) {
	if ptr == nil || len(p.slots) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.slots[0]))
	addr := uintptr(unsafe.Pointer(ptr))
	if addr < base {
		return 0, false
	}
	delta := addr - base
	if delta%p.stride != 0 {
		return 0, false
	}
	i := int(delta / p.stride)
	if i >= len(p.slots) {
		return 0, false
	}
	return i, true
}

// At returns the object in slot i.
func (p *StaticPool[T]) At(i int) *T {
	return &p.slots[i]
}

// IsAllocated reports whether slot i holds a live object.
func (p *StaticPool[T]) IsAllocated(i int) bool {
	return p.used.Test(i)
}

// Handle returns the current handle for slot i.
func (p *StaticPool[T]) Handle(i int) Handle {
	return Handle{Index: uint32(i), Generation: p.generations[i]}
}

// Valid reports whether h refers to the live occupant of its slot.
func (p *StaticPool[T]) Valid(h Handle) bool {
	i := int(h.Index)
	if i >= len(p.slots) {
		return false
	}
	return p.used.Test(i) && p.generations[i] == h.Generation
}

// Each calls fn for every live object in slot order until fn returns false.
func (p *StaticPool[T]) Each(fn func(i int, obj *T) bool) {
	p.used.EachSet(func(i int) bool {
		return fn(i, &p.slots[i])
	})
}

// Capacity returns the number of slots.
func (p *StaticPool[T]) Capacity() int { return len(p.slots) }

// Size returns the number of live objects.
func (p *StaticPool[T]) Size() int { return p.used.CountSet() }

// IsEmpty reports whether no object is live.
func (p *StaticPool[T]) IsEmpty() bool { return p.Size() == 0 }

// CanAllocate reports whether a free slot exists.
func (p *StaticPool[T]) CanAllocate() bool { return p.used.CountUnset() > 0 }

// ObjectSize returns the aligned per-slot size charged to the allocator.
func (p *StaticPool[T]) ObjectSize() int64 { return p.objectSize }

// Release frees the slab. It panics if any object is still live.
func (p *StaticPool[T]) Release() {
	if p.slots == nil {
		return
	}
	if n := p.used.CountSet(); n != 0 {
		panic(fmt.Sprintf("pool: %d objects leaked", n))
	}
	p.alloc.Release(p.objectSize * int64(len(p.slots)))
	p.used.Release()
	p.slots = nil
	p.generations = nil
}
