package frontend

import (
	"errors"

	"github.com/gogpu/frontend/internal/memory"
)

var (
	// ErrPoolExhausted is returned when a resource pool has no free slot.
	ErrPoolExhausted = errors.New("frontend: resource pool exhausted")

	// ErrCommandBufferFull is returned when the command arena cannot hold
	// another command this frame.
	ErrCommandBufferFull = errors.New("frontend: command buffer full")

	// ErrOutOfMemory is returned when the context allocator refuses to
	// grow a store or region list.
	ErrOutOfMemory = memory.ErrOutOfMemory

	// ErrClosed is returned by operations on a closed Context.
	ErrClosed = errors.New("frontend: context closed")

	// ErrNilBackend is returned by NewContext without a backend.
	ErrNilBackend = errors.New("frontend: backend must not be nil")
)
