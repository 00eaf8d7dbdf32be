// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package memory provides the byte budgets that frontend data structures
// charge their backing storage against.
//
// Every growable structure in the frontend (bitsets, pools, region lists,
// buffer stores) reserves bytes from an Allocator before it grows. A refused
// reservation surfaces as ErrOutOfMemory, which is how capacity exhaustion
// propagates up through the layers without panicking.
package memory

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Alignment is the granularity every reservation is rounded up to.
const Alignment = 16

// ErrOutOfMemory is returned when an Allocator refuses a reservation.
var ErrOutOfMemory = errors.New("memory: out of memory")

// Allocator hands out byte reservations.
//
// Acquire never blocks: it either reserves n bytes and returns true or
// reserves nothing and returns false. Release returns bytes obtained from
// a successful Acquire.
type Allocator interface {
	Acquire(n int64) bool
	Release(n int64)
	Used() int64
}

// Align rounds n up to a multiple of Alignment.
func Align(n int64) int64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// Budget is an Allocator with a hard byte limit.
type Budget struct {
	limit int64
	sem   *semaphore.Weighted
	used  atomic.Int64
}

// NewBudget creates a Budget that allows at most limit bytes to be
// reserved at once.
func NewBudget(limit int64) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit, sem: semaphore.NewWeighted(limit)}
}

// Acquire reserves n bytes, failing immediately if the budget is exhausted.
func (b *Budget) Acquire(n int64) bool {
	if n <= 0 {
		return true
	}
	if !b.sem.TryAcquire(n) {
		return false
	}
	b.used.Add(n)
	return true
}

// Release returns n bytes to the budget.
func (b *Budget) Release(n int64) {
	if n <= 0 {
		return
	}
	b.used.Add(-n)
	b.sem.Release(n)
}

// Used reports the bytes currently reserved.
func (b *Budget) Used() int64 { return b.used.Load() }

// Limit reports the budget's capacity.
func (b *Budget) Limit() int64 { return b.limit }

// Unlimited is an Allocator that never refuses and only tracks usage.
type Unlimited struct {
	used atomic.Int64
}

// NewUnlimited returns an Allocator without a limit.
func NewUnlimited() *Unlimited { return &Unlimited{} }

func (u *Unlimited) Acquire(n int64) bool {
	if n > 0 {
		u.used.Add(n)
	}
	return true
}

func (u *Unlimited) Release(n int64) {
	if n > 0 {
		u.used.Add(-n)
	}
}

func (u *Unlimited) Used() int64 { return u.used.Load() }
