package frontend

import (
	"hash/fnv"

	"github.com/gogpu/gputypes"
)

// Rect is an integer rectangle in framebuffer pixels.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Area returns the number of pixels covered by r.
func (r Rect) Area() int64 { return int64(r.Width) * int64(r.Height) }

// ScissorState restricts rasterization to a rectangle.
type ScissorState struct {
	Enabled bool
	Rect    Rect
}

// BlendState configures color blending for every attachment.
type BlendState struct {
	Enabled        bool
	ColorSrcFactor gputypes.BlendFactor
	ColorDstFactor gputypes.BlendFactor
	ColorOperation gputypes.BlendOperation
	AlphaSrcFactor gputypes.BlendFactor
	AlphaDstFactor gputypes.BlendFactor
	AlphaOperation gputypes.BlendOperation
	WriteMask      gputypes.ColorWriteMask
}

// SetFactors sets the same factors for color and alpha.
func (b *BlendState) SetFactors(src, dst gputypes.BlendFactor) {
	b.ColorSrcFactor, b.ColorDstFactor = src, dst
	b.AlphaSrcFactor, b.AlphaDstFactor = src, dst
}

// DepthState configures the depth test.
type DepthState struct {
	Test    bool
	Write   bool
	Compare gputypes.CompareFunction
}

// CullState configures face culling.
type CullState struct {
	Enabled   bool
	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode
}

// StencilOperation is the action taken on a stencil value.
type StencilOperation uint8

const (
	StencilKeep StencilOperation = iota
	StencilZero
	StencilReplace
	StencilIncrement
	StencilIncrementWrap
	StencilDecrement
	StencilDecrementWrap
	StencilInvert
)

// StencilFace holds the stencil actions for one winding.
type StencilFace struct {
	FailOp      StencilOperation
	DepthFailOp StencilOperation
	PassOp      StencilOperation
}

// StencilState configures the stencil test.
type StencilState struct {
	Enabled   bool
	Compare   gputypes.CompareFunction
	Reference uint8
	ReadMask  uint8
	WriteMask uint8
	Front     StencilFace
	Back      StencilFace
}

// PolygonMode selects how polygons are rasterized.
type PolygonMode uint8

const (
	PolygonFill PolygonMode = iota
	PolygonLine
	PolygonPoint
)

// ViewportState maps normalized device coordinates to pixels.
type ViewportState struct {
	Rect Rect
}

// State is the fixed-function state of a draw.
type State struct {
	Scissor  ScissorState
	Blend    BlendState
	Depth    DepthState
	Cull     CullState
	Stencil  StencilState
	Polygon  PolygonMode
	Viewport ViewportState

	hash uint64
}

// DefaultState returns a State with blending, depth, culling and
// stenciling disabled and every color channel written.
func DefaultState() State {
	s := State{
		Blend: BlendState{
			ColorSrcFactor: gputypes.BlendFactorOne,
			ColorDstFactor: gputypes.BlendFactorZero,
			ColorOperation: gputypes.BlendOperationAdd,
			AlphaSrcFactor: gputypes.BlendFactorOne,
			AlphaDstFactor: gputypes.BlendFactorZero,
			AlphaOperation: gputypes.BlendOperationAdd,
			WriteMask:      gputypes.ColorWriteMaskAll,
		},
		Depth: DepthState{Compare: gputypes.CompareFunctionLess},
		Cull: CullState{
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  gputypes.CullModeBack,
		},
		Stencil: StencilState{
			Compare:   gputypes.CompareFunctionAlways,
			ReadMask:  0xFF,
			WriteMask: 0xFF,
		},
	}
	s.Flush()
	return s
}

// Flush recomputes the state hash after fields were changed.
func (s *State) Flush() uint64 {
	h := fnv.New64a()
	writeBool := func(b bool) {
		var v uint32
		if b {
			v = 1
		}
		hashWriteUint32(h, v)
	}
	writeRect := func(r Rect) {
		hashWriteUint32(h, uint32(r.X))
		hashWriteUint32(h, uint32(r.Y))
		hashWriteUint32(h, uint32(r.Width))
		hashWriteUint32(h, uint32(r.Height))
	}

	writeBool(s.Scissor.Enabled)
	writeRect(s.Scissor.Rect)

	b := &s.Blend
	writeBool(b.Enabled)
	hashWriteUint32(h, uint32(b.ColorSrcFactor))
	hashWriteUint32(h, uint32(b.ColorDstFactor))
	hashWriteUint32(h, uint32(b.ColorOperation))
	hashWriteUint32(h, uint32(b.AlphaSrcFactor))
	hashWriteUint32(h, uint32(b.AlphaDstFactor))
	hashWriteUint32(h, uint32(b.AlphaOperation))
	hashWriteUint32(h, uint32(b.WriteMask))

	writeBool(s.Depth.Test)
	writeBool(s.Depth.Write)
	hashWriteUint32(h, uint32(s.Depth.Compare))

	writeBool(s.Cull.Enabled)
	hashWriteUint32(h, uint32(s.Cull.FrontFace))
	hashWriteUint32(h, uint32(s.Cull.CullMode))

	st := &s.Stencil
	writeBool(st.Enabled)
	hashWriteUint32(h, uint32(st.Compare))
	hashWriteUint32(h, uint32(st.Reference)|uint32(st.ReadMask)<<8|uint32(st.WriteMask)<<16)
	for _, f := range [2]StencilFace{st.Front, st.Back} {
		hashWriteUint32(h, uint32(f.FailOp)|uint32(f.DepthFailOp)<<8|uint32(f.PassOp)<<16)
	}

	hashWriteUint32(h, uint32(s.Polygon))
	writeRect(s.Viewport.Rect)

	s.hash = h.Sum64()
	return s.hash
}

// Hash returns the value computed by the last Flush.
func (s *State) Hash() uint64 { return s.hash }
