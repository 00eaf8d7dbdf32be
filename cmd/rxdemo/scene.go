package main

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frontend"
)

const quadWGSL = `
struct Quad {
    placement: vec4<f32>,
    color: vec4<f32>,
}

@group(0) @binding(0) var<uniform> quad: Quad;

@vertex
fn vs_main(@location(0) pos: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(pos * quad.placement.z + quad.placement.xy, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return quad.color;
}
`

var quadElements = []uint16{0, 1, 2, 0, 2, 3}

// scene draws a grid of quads whose geometry shares one arena. Every frame
// one quad is reshaped, which moves its block when it grows.
type scene struct {
	ctx       *frontend.Context
	tag       frontend.Tag
	program   *frontend.Program
	placement *frontend.Uniform
	color     *frontend.Uniform
	arena     *frontend.Arena
	blocks    []*frontend.Block
	sides     []int
}

func newScene(ctx *frontend.Context, quads int) (*scene, error) {
	if quads <= 0 {
		return nil, fmt.Errorf("need at least one quad, got %d", quads)
	}
	s := &scene{ctx: ctx, tag: frontend.NewTag("rxdemo")}

	p, err := ctx.CreateProgram(s.tag)
	if err != nil {
		return nil, err
	}
	p.AddShader(frontend.Shader{Stage: frontend.ShaderVertex, Source: quadWGSL, EntryPoint: "vs_main"})
	p.AddShader(frontend.Shader{Stage: frontend.ShaderFragment, Source: quadWGSL, EntryPoint: "fs_main"})
	s.placement = p.AddUniform("placement", frontend.UniformVec4f, false)
	s.color = p.AddUniform("color", frontend.UniformVec4f, false)
	if err := ctx.InitializeProgram(s.tag, p); err != nil {
		return nil, err
	}
	s.program = p

	s.arena, err = ctx.Arena(&frontend.BufferFormat{
		Type:         frontend.BufferDynamic,
		ElementType:  frontend.ElementU16,
		VertexStride: 8,
		VertexAttributes: []frontend.Attribute{
			{Location: 0, Format: gputypes.VertexFormatFloat32x2},
		},
	})
	if err != nil {
		s.destroy()
		return nil, err
	}
	for range quads {
		blk := s.arena.Block()
		s.blocks = append(s.blocks, blk)
		s.sides = append(s.sides, 4)
		if err := s.shape(len(s.blocks)-1, 0); err != nil {
			s.destroy()
			return nil, err
		}
	}
	if err := ctx.UpdateBuffer(s.tag, s.arena.Buffer()); err != nil {
		s.destroy()
		return nil, err
	}
	return s, nil
}

// shape writes quad i as a square rotated by angle. Vertices past the
// fourth repeat its corners and only change the block size.
func (s *scene) shape(i int, angle float64) error {
	blk := s.blocks[i]
	verts := make([]byte, 0, s.sides[i]*8)
	for v := range s.sides[i] {
		a := angle + float64(v)*math.Pi/2
		verts = binary.LittleEndian.AppendUint32(verts, math.Float32bits(float32(math.Cos(a))))
		verts = binary.LittleEndian.AppendUint32(verts, math.Float32bits(float32(math.Sin(a))))
	}
	if err := blk.WriteVertices(verts); err != nil {
		return err
	}
	elems := make([]byte, 0, len(quadElements)*2)
	for _, e := range quadElements {
		elems = binary.LittleEndian.AppendUint16(elems, e)
	}
	return blk.WriteElements(elems)
}

func (s *scene) render(frame int) error {
	// Reshape one quad per frame. Growing it forces a reallocation in the
	// arena's region list.
	i := frame % len(s.blocks)
	s.sides[i] = 4 + frame%3
	if err := s.shape(i, float64(frame)*0.05); err != nil {
		return err
	}
	if err := s.ctx.UpdateBuffer(s.tag, s.arena.Buffer()); err != nil {
		return err
	}

	d := s.ctx.SwapchainTexture().Dimensions()
	state := frontend.DefaultState()
	state.Viewport.Rect = frontend.Rect{Width: int32(d.Width), Height: int32(d.Height)}
	state.Flush()

	err := s.ctx.Clear(s.tag, frontend.ClearParams{
		State:       state,
		Target:      s.ctx.Swapchain(),
		DrawBuffers: frontend.NewDrawBuffers(0),
		Mask:        frontend.ClearColor(0),
		Colors:      [frontend.MaxDrawBuffers]gputypes.Color{{R: 0.05, G: 0.05, B: 0.1, A: 1}},
	})
	if err != nil {
		return err
	}

	cols := int(math.Ceil(math.Sqrt(float64(len(s.blocks)))))
	cell := 2 / float32(cols)
	for i, blk := range s.blocks {
		x := -1 + cell*(float32(i%cols)+0.5)
		y := -1 + cell*(float32(i/cols)+0.5)
		s.placement.RecordVec4f([4]float32{x, y, cell * 0.4, 0})
		hue := float64(i) / float64(len(s.blocks))
		s.color.RecordVec4f([4]float32{float32(hue), float32(1 - hue), 0.6, 1})

		err := s.ctx.Draw(s.tag, frontend.DrawParams{
			State:       state,
			Target:      s.ctx.Swapchain(),
			DrawBuffers: frontend.NewDrawBuffers(0),
			Buffer:      s.arena.Buffer(),
			Program:     s.program,
			Count:       len(quadElements),
			Offset:      blk.BaseElement(),
			BaseVertex:  blk.BaseVertex(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *scene) destroy() {
	for _, blk := range s.blocks {
		blk.Destroy()
	}
	s.blocks = nil
	if s.program != nil {
		s.ctx.DestroyProgram(s.tag, s.program)
		s.program = nil
	}
}
