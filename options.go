package frontend

import (
	"log/slog"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frontend/internal/memory"
)

// Limits sizes the fixed-capacity resource pools and the command arena.
// Pools never grow after the Context is created.
type Limits struct {
	MaxBuffers          int
	MaxTargets          int
	MaxPrograms         int
	MaxTextures1D       int
	MaxTextures2D       int
	MaxTextures3D       int
	MaxTexturesCM       int
	MaxDownloaders      int
	CommandMemory       int // bytes
	MaxTextureDimension int
}

// DefaultLimits returns the limits a Context uses unless overridden.
func DefaultLimits() Limits {
	return Limits{
		MaxBuffers:          64,
		MaxTargets:          512,
		MaxPrograms:         512,
		MaxTextures1D:       16,
		MaxTextures2D:       1024,
		MaxTextures3D:       16,
		MaxTexturesCM:       128,
		MaxDownloaders:      8,
		CommandMemory:       2 << 20,
		MaxTextureDimension: 2048,
	}
}

type limitRange struct {
	value    *int
	min, max int
}

// Clamp forces every limit into its supported range.
func (l *Limits) Clamp() {
	for _, r := range []limitRange{
		{&l.MaxBuffers, 16, 128},
		{&l.MaxTargets, 16, 1024},
		{&l.MaxPrograms, 128, 4096},
		{&l.MaxTextures1D, 16, 128},
		{&l.MaxTextures2D, 16, 4096},
		{&l.MaxTextures3D, 1, 128},
		{&l.MaxTexturesCM, 16, 256},
		{&l.MaxDownloaders, 1, 32},
		{&l.CommandMemory, 1 << 20, 4 << 20},
		{&l.MaxTextureDimension, 256, 16384},
	} {
		*r.value = min(max(*r.value, r.min), r.max)
	}
}

// Allocator hands out the byte reservations every pool, region list,
// buffer store and the command arena charge their storage against.
type Allocator = memory.Allocator

// NewBudget returns an Allocator that holds at most limit bytes.
func NewBudget(limit int64) Allocator { return memory.NewBudget(limit) }

// ContextOption configures a Context during creation.
//
// Example:
//
//	ctx, err := frontend.NewContext(backend,
//	    frontend.WithLimits(limits),
//	    frontend.WithSwapchain(1280, 720, gputypes.TextureFormatBGRA8Unorm))
type ContextOption func(*contextOptions)

type contextOptions struct {
	limits          Limits
	allocator       Allocator
	logger          *slog.Logger
	deferredFrames  int
	width, height   int
	swapchainFormat gputypes.TextureFormat
	maxFPS          int
}

func defaultOptions() contextOptions {
	return contextOptions{
		limits:          DefaultLimits(),
		deferredFrames:  1,
		width:           1600,
		height:          900,
		swapchainFormat: gputypes.TextureFormatRGBA8Unorm,
	}
}

// WithLimits overrides the pool capacities. Out-of-range values are
// clamped.
func WithLimits(l Limits) ContextOption {
	return func(o *contextOptions) {
		o.limits = l
	}
}

// WithAllocator charges every pool, region list, buffer store and the
// command arena against a. The default allocator has no limit.
func WithAllocator(a Allocator) ContextOption {
	return func(o *contextOptions) {
		o.allocator = a
	}
}

// WithLogger sets the logger for this Context instead of the package
// logger.
func WithLogger(l *slog.Logger) ContextOption {
	return func(o *contextOptions) {
		o.logger = l
	}
}

// WithDeferredFrames sets how many Process calls a destroyed resource
// keeps its pool slot. One is enough for a backend that executes commands
// synchronously inside Process; use the number of frames in flight for
// asynchronous backends.
func WithDeferredFrames(n int) ContextOption {
	return func(o *contextOptions) {
		if n > 0 {
			o.deferredFrames = n
		}
	}
}

// WithSwapchain sets the swapchain dimensions and format.
func WithSwapchain(width, height int, format gputypes.TextureFormat) ContextOption {
	return func(o *contextOptions) {
		o.width, o.height = width, height
		o.swapchainFormat = format
	}
}

// WithMaxFPS caps the frame rate enforced by Swap. Zero means unlimited.
func WithMaxFPS(fps int) ContextOption {
	return func(o *contextOptions) {
		o.maxFPS = fps
	}
}
