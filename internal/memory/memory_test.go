// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{1, 16},
		{16, 16},
		{17, 32},
		{64, 64},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Align(tt.in), "Align(%d)", tt.in)
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(100)
	require.True(t, b.Acquire(60))
	assert.False(t, b.Acquire(50), "over-limit reservation must fail")
	assert.Equal(t, int64(60), b.Used())

	require.True(t, b.Acquire(40))
	assert.Equal(t, int64(100), b.Used())

	b.Release(60)
	assert.Equal(t, int64(40), b.Used())
	assert.True(t, b.Acquire(50))
	assert.Equal(t, int64(100), b.Limit())
}

func TestBudgetZeroSize(t *testing.T) {
	b := NewBudget(0)
	assert.True(t, b.Acquire(0))
	assert.False(t, b.Acquire(1))
	b.Release(0)
	assert.Equal(t, int64(0), b.Used())
}

func TestBudgetConcurrent(t *testing.T) {
	b := NewBudget(1 << 20)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 1000; j++ {
				if b.Acquire(16) {
					b.Release(16)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(0), b.Used())
}

func TestUnlimited(t *testing.T) {
	u := NewUnlimited()
	assert.True(t, u.Acquire(1<<40))
	assert.Equal(t, int64(1<<40), u.Used())
	u.Release(1 << 40)
	assert.Equal(t, int64(0), u.Used())
}
