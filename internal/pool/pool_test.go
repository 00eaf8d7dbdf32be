// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package pool

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/frontend/internal/memory"
)

type object64 [64]byte

type widget struct {
	id   int
	name string
}

func TestAllocateSequence(t *testing.T) {
	p, err := New[object64](memory.NewUnlimited(), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(64), p.ObjectSize())

	for want := 0; want < 4; want++ {
		i, ok := p.Allocate()
		require.True(t, ok)
		assert.Equal(t, want, i)
	}
	_, ok := p.Allocate()
	assert.False(t, ok, "fifth allocation must fail")

	p.Deallocate(1)
	i, ok := p.Allocate()
	require.True(t, ok)
	assert.Equal(t, 1, i)

	for i := 0; i < 4; i++ {
		p.Deallocate(i)
	}
	p.Release()
}

func TestNoDuplicateIndices(t *testing.T) {
	const capacity = 32
	p, err := New[widget](memory.NewUnlimited(), capacity)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	live := map[int]bool{}
	for n := 0; n < 5000; n++ {
		if rng.Intn(3) > 0 {
			i, ok := p.Allocate()
			assert.Equal(t, len(live) < capacity, ok)
			if ok {
				require.False(t, live[i], "index %d handed out twice", i)
				live[i] = true
			}
		} else if len(live) > 0 {
			for i := range live {
				p.Deallocate(i)
				delete(live, i)
				break
			}
		}
		assert.Equal(t, len(live), p.Size())
	}
}

func TestDoubleFreePanics(t *testing.T) {
	p, err := New[widget](memory.NewUnlimited(), 2)
	require.NoError(t, err)
	i, _ := p.Allocate()
	p.Deallocate(i)
	assert.Panics(t, func() { p.Deallocate(i) })
}

func TestCreateDestroy(t *testing.T) {
	p, err := New[widget](memory.NewUnlimited(), 3)
	require.NoError(t, err)

	a, ok := p.Create()
	require.True(t, ok)
	a.id, a.name = 1, "a"
	b, _ := p.Create()
	assert.Equal(t, 0, p.IndexOf(a))
	assert.Equal(t, 1, p.IndexOf(b))

	h := p.Handle(p.IndexOf(a))
	assert.True(t, p.Valid(h))

	p.Destroy(a)
	assert.False(t, p.Valid(h), "handle must not survive destroy")

	c, _ := p.Create()
	assert.Same(t, a, c, "lowest slot is reused")
	assert.Equal(t, widget{}, *c, "reused slot is zeroed")
	assert.NotEqual(t, h, p.Handle(p.IndexOf(c)))

	p.Destroy(b)
	p.Destroy(c)
	assert.True(t, p.IsEmpty())
	p.Release()
}

func TestIndexOfForeignPointer(t *testing.T) {
	p, err := New[widget](memory.NewUnlimited(), 2)
	require.NoError(t, err)
	foreign := &widget{}
	assert.False(t, p.Owns(foreign))
	assert.Panics(t, func() { p.IndexOf(foreign) })
	assert.Panics(t, func() { p.Destroy(foreign) })
}

func TestLeakPanics(t *testing.T) {
	p, err := New[widget](memory.NewUnlimited(), 2)
	require.NoError(t, err)
	_, _ = p.Create()
	assert.Panics(t, p.Release)
}

func TestAllocationFailureRollsBack(t *testing.T) {
	// Enough for the slab but not the bitset words.
	budget := memory.NewBudget(64 * 4)
	_, err := New[object64](budget, 4)
	assert.ErrorIs(t, err, memory.ErrOutOfMemory)
	assert.Equal(t, int64(0), budget.Used())

	_, err = New[object64](memory.NewBudget(10), 4)
	assert.ErrorIs(t, err, memory.ErrOutOfMemory)
}

func TestEach(t *testing.T) {
	p, err := New[widget](memory.NewUnlimited(), 4)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		w, _ := p.Create()
		w.id = i
	}
	p.Deallocate(1)

	var ids []int
	p.Each(func(i int, w *widget) bool {
		ids = append(ids, w.id)
		return true
	})
	assert.Equal(t, []int{0, 2}, ids)
	assert.True(t, p.CanAllocate())
	assert.Equal(t, 4, p.Capacity())
}
