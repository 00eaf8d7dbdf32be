// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package command implements the byte arena that recorded commands and
// their payloads are packed into.
//
// A Buffer is a chunked bump allocator with a hard capacity. Chunks are
// added lazily as recording grows and are kept across Reset, so a steady
// state frame performs no allocation.
package command

import (
	"github.com/gogpu/frontend/internal/memory"
)

// DefaultChunkSize is the granularity the arena grows by.
const DefaultChunkSize = 64 << 10

// HeaderSize is charged for every command in addition to its payload.
const HeaderSize = 32

type chunk struct {
	buf    []byte
	offset int
}

// Buffer is a bump arena for command payloads. It is not safe for
// concurrent use.
type Buffer struct {
	alloc     memory.Allocator
	capacity  int
	chunkSize int
	chunks    []chunk
	current   int
	reserved  int
	used      int
}

// New creates a Buffer that holds at most capacity bytes.
func New(alloc memory.Allocator, capacity int) *Buffer {
	return &Buffer{
		alloc:     alloc,
		capacity:  capacity,
		chunkSize: min(DefaultChunkSize, capacity),
	}
}

// Allocate returns n zeroed bytes, or false if the capacity is exhausted
// or the allocator refuses to grow the arena.
func (b *Buffer) Allocate(n int) ([]byte, bool) {
	if n <= 0 {
		return nil, true
	}
	size := int(memory.Align(int64(n)))

	for b.current < len(b.chunks) {
		c := &b.chunks[b.current]
		if c.offset+size <= len(c.buf) {
			out := c.buf[c.offset : c.offset+n : c.offset+n]
			clear(out)
			c.offset += size
			b.used += size
			return out, true
		}
		b.current++
	}

	if !b.grow(size) {
		return nil, false
	}
	c := &b.chunks[b.current]
	out := c.buf[:n:n]
	c.offset = size
	b.used += size
	return out, true
}

// Copy allocates len(data) bytes and copies data into them.
func (b *Buffer) Copy(data []byte) ([]byte, bool) {
	out, ok := b.Allocate(len(data))
	if ok {
		copy(out, data)
	}
	return out, ok
}

func (b *Buffer) grow(size int) bool {
	chunkSize := max(b.chunkSize, size)
	if b.reserved+chunkSize > b.capacity {
		chunkSize = b.capacity - b.reserved
		if chunkSize < size {
			return false
		}
	}
	if !b.alloc.Acquire(int64(chunkSize)) {
		return false
	}
	b.reserved += chunkSize
	b.chunks = append(b.chunks, chunk{buf: make([]byte, chunkSize)})
	b.current = len(b.chunks) - 1
	return true
}

// Reset rewinds the arena. Chunks are kept for reuse.
func (b *Buffer) Reset() {
	for i := range b.chunks {
		b.chunks[i].offset = 0
	}
	b.current = 0
	b.used = 0
}

// Used returns the bytes handed out since the last Reset.
func (b *Buffer) Used() int { return b.used }

// Reserved returns the bytes held in chunks.
func (b *Buffer) Reserved() int { return b.reserved }

// Size returns the capacity.
func (b *Buffer) Size() int { return b.capacity }

// Release returns every chunk to the allocator.
func (b *Buffer) Release() {
	b.alloc.Release(int64(b.reserved))
	b.chunks = nil
	b.current = 0
	b.reserved = 0
	b.used = 0
}
