// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package bitset implements a fixed-size bit vector whose storage is
// charged to a memory.Allocator.
package bitset

import (
	"fmt"

	bbs "github.com/bits-and-blooms/bitset"

	"github.com/gogpu/frontend/internal/memory"
)

const wordBytes = 8

// Bitset is a packed bit vector of a fixed size.
//
// Index operations panic when the index is not below Len. A Bitset is not
// safe for concurrent use.
type Bitset struct {
	alloc memory.Allocator
	bits  *bbs.BitSet
	size  int
	bytes int64
}

// New creates a Bitset holding size bits, all clear.
// It returns memory.ErrOutOfMemory if alloc refuses the word storage.
func New(alloc memory.Allocator, size int) (*Bitset, error) {
	if size < 0 {
		panic(fmt.Sprintf("bitset: negative size %d", size))
	}
	bytes := int64((size+63)/64) * wordBytes
	if !alloc.Acquire(bytes) {
		return nil, memory.ErrOutOfMemory
	}
	return &Bitset{
		alloc: alloc,
		bits:  bbs.New(uint(size)),
		size:  size,
		bytes: bytes,
	}, nil
}

// Len returns the number of bits.
func (b *Bitset) Len() int { return b.size }

// Bytes returns the storage charged to the allocator.
func (b *Bitset) Bytes() int64 { return b.bytes }

func (b *Bitset) check(i int) {
	if i < 0 || i >= b.size {
		panic(fmt.Sprintf("bitset: index %d out of range [0,%d)", i, b.size))
	}
}

// Set sets bit i.
func (b *Bitset) Set(i int) {
	b.check(i)
	b.bits.Set(uint(i))
}

// Clear clears bit i.
func (b *Bitset) Clear(i int) {
	b.check(i)
	b.bits.Clear(uint(i))
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool {
	b.check(i)
	return b.bits.Test(uint(i))
}

// ClearAll clears every bit.
func (b *Bitset) ClearAll() { b.bits.ClearAll() }

// CountSet returns the number of set bits.
func (b *Bitset) CountSet() int { return int(b.bits.Count()) }

// CountUnset returns the number of clear bits.
func (b *Bitset) CountUnset() int { return b.size - b.CountSet() }

// FindFirstSet returns the lowest set bit.
func (b *Bitset) FindFirstSet() (int, bool) {
	i, ok := b.bits.NextSet(0)
	if !ok || int(i) >= b.size {
		return 0, false
	}
	return int(i), true
}

// FindFirstUnset returns the lowest clear bit.
func (b *Bitset) FindFirstUnset() (int, bool) {
	i, ok := b.bits.NextClear(0)
	if !ok || int(i) >= b.size {
		return 0, false
	}
	return int(i), true
}

// EachSet calls fn for every set bit in ascending order until fn returns
// false.
func (b *Bitset) EachSet(fn func(i int) bool) {
	for i, ok := b.bits.NextSet(0); ok && int(i) < b.size; i, ok = b.bits.NextSet(i + 1) {
		if !fn(int(i)) {
			return
		}
	}
}

// EachUnset calls fn for every clear bit in ascending order until fn
// returns false.
func (b *Bitset) EachUnset(fn func(i int) bool) {
	for i, ok := b.bits.NextClear(0); ok && int(i) < b.size; i, ok = b.bits.NextClear(i + 1) {
		if !fn(int(i)) {
			return
		}
	}
}

// Release returns the word storage to the allocator. The Bitset must not
// be used afterwards.
func (b *Bitset) Release() {
	if b.bits == nil {
		return
	}
	b.alloc.Release(b.bytes)
	b.bits = nil
	b.size = 0
}
