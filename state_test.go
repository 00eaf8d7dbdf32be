package frontend

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
)

func TestStateHash(t *testing.T) {
	a, b := DefaultState(), DefaultState()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.NotZero(t, a.Hash())

	changes := []func(s *State){
		func(s *State) { s.Scissor.Enabled = true },
		func(s *State) { s.Blend.SetFactors(gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha) },
		func(s *State) { s.Depth.Write = true },
		func(s *State) { s.Cull.CullMode = gputypes.CullModeNone },
		func(s *State) { s.Stencil.Front.PassOp = StencilIncrement },
		func(s *State) { s.Polygon = PolygonLine },
		func(s *State) { s.Viewport.Rect.Width = 10 },
	}
	seen := map[uint64]bool{a.Hash(): true}
	for i, change := range changes {
		s := DefaultState()
		change(&s)
		assert.Equal(t, a.Hash(), s.Hash(), "change %d: hash is stale until Flush", i)
		h := s.Flush()
		assert.False(t, seen[h], "change %d collides", i)
		seen[h] = true
	}
}

func TestBlendSetFactors(t *testing.T) {
	var b BlendState
	b.SetFactors(gputypes.BlendFactorSrcAlpha, gputypes.BlendFactorOneMinusSrcAlpha)
	assert.Equal(t, gputypes.BlendFactorSrcAlpha, b.AlphaSrcFactor)
	assert.Equal(t, gputypes.BlendFactorOneMinusSrcAlpha, b.ColorDstFactor)
}

func TestRectArea(t *testing.T) {
	assert.Equal(t, int64(12), Rect{Width: 3, Height: 4}.Area())
	assert.Equal(t, int64(0), Rect{Width: 3}.Area())
}
