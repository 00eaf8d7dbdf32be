// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/frontend/internal/memory"
)

func TestAllocate(t *testing.T) {
	b := New(memory.NewUnlimited(), 1<<20)

	p, ok := b.Allocate(10)
	require.True(t, ok)
	assert.Len(t, p, 10)
	assert.Equal(t, 16, b.Used(), "allocations are aligned")

	q, ok := b.Copy([]byte{1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, q)

	p[0] = 0xff
	assert.Equal(t, byte(1), q[0], "allocations do not alias")
}

func TestCapacity(t *testing.T) {
	b := New(memory.NewUnlimited(), 64)
	for i := 0; i < 4; i++ {
		_, ok := b.Allocate(16)
		require.True(t, ok)
	}
	_, ok := b.Allocate(1)
	assert.False(t, ok, "arena is full")

	b.Reset()
	assert.Equal(t, 0, b.Used())
	_, ok = b.Allocate(64)
	assert.True(t, ok, "reset space is reusable")
}

func TestLargeAllocationSpansNewChunk(t *testing.T) {
	b := New(memory.NewUnlimited(), 4*DefaultChunkSize)
	_, ok := b.Allocate(100)
	require.True(t, ok)
	big, ok := b.Allocate(DefaultChunkSize + 1)
	require.True(t, ok)
	assert.Len(t, big, DefaultChunkSize+1)
	assert.Equal(t, DefaultChunkSize+int(memory.Align(DefaultChunkSize+1)), b.Reserved())
}

func TestResetKeepsChunksZeroed(t *testing.T) {
	b := New(memory.NewUnlimited(), 1024)
	p, _ := b.Allocate(8)
	copy(p, []byte("deadbeef"))
	reserved := b.Reserved()

	b.Reset()
	q, _ := b.Allocate(8)
	assert.Equal(t, make([]byte, 8), q)
	assert.Equal(t, reserved, b.Reserved())
}

func TestAllocatorRefusal(t *testing.T) {
	budget := memory.NewBudget(100)
	b := New(budget, 1024)
	_, ok := b.Allocate(8)
	assert.False(t, ok)
	assert.Equal(t, int64(0), budget.Used())

	b2 := New(budget, 64)
	_, ok = b2.Allocate(8)
	require.True(t, ok)
	assert.Equal(t, int64(64), budget.Used())
	b2.Release()
	assert.Equal(t, int64(0), budget.Used())
}
