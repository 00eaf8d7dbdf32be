package frontend

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestLimitsClamp(t *testing.T) {
	l := Limits{MaxBuffers: 1, MaxTargets: 1 << 20, MaxTextures3D: 0, CommandMemory: 10}
	l.Clamp()

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"MaxBuffers", l.MaxBuffers, 16},
		{"MaxTargets", l.MaxTargets, 1024},
		{"MaxPrograms", l.MaxPrograms, 128},
		{"MaxTextures3D", l.MaxTextures3D, 1},
		{"MaxDownloaders", l.MaxDownloaders, 1},
		{"CommandMemory", l.CommandMemory, 1 << 20},
		{"MaxTextureDimension", l.MaxTextureDimension, 256},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestDefaultLimitsInRange(t *testing.T) {
	l := DefaultLimits()
	clamped := l
	clamped.Clamp()
	if l != clamped {
		t.Errorf("DefaultLimits() = %+v, clamped %+v", l, clamped)
	}
}

func TestContextOptions(t *testing.T) {
	budget := NewBudget(64 << 20)
	o := defaultOptions()
	for _, opt := range []ContextOption{
		WithAllocator(budget),
		WithDeferredFrames(3),
		WithDeferredFrames(0),
		WithSwapchain(320, 200, gputypes.TextureFormatBGRA8Unorm),
		WithMaxFPS(60),
	} {
		opt(&o)
	}

	if o.allocator != budget {
		t.Error("WithAllocator not applied")
	}
	if o.deferredFrames != 3 {
		t.Errorf("deferredFrames = %d, want 3 (zero is ignored)", o.deferredFrames)
	}
	if o.width != 320 || o.height != 200 || o.swapchainFormat != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("swapchain = %dx%d %v", o.width, o.height, o.swapchainFormat)
	}
	if o.maxFPS != 60 {
		t.Errorf("maxFPS = %d, want 60", o.maxFPS)
	}
}

func TestContextWithBudget(t *testing.T) {
	rec := &recorder{}
	if _, err := NewContext(rec, WithAllocator(NewBudget(1024))); err == nil {
		t.Fatal("NewContext with a 1 KiB budget succeeded")
	}

	budget := NewBudget(64 << 20)
	ctx, err := NewContext(rec, WithAllocator(budget))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	if budget.Used() == 0 {
		t.Error("pools not charged to the allocator")
	}
	if err := ctx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if budget.Used() != 0 {
		t.Errorf("Used() = %d after Close, want 0", budget.Used())
	}
}
