// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pipelineKey identifies a render pipeline of one program.
type pipelineKey struct {
	format    uint64
	state     uint64
	primitive frontend.PrimitiveType
	colors    [frontend.MaxDrawBuffers]gputypes.TextureFormat
	depth     gputypes.TextureFormat
}

// targetFormats is the attachment layout a pipeline renders into.
type targetFormats struct {
	colors [frontend.MaxDrawBuffers]gputypes.TextureFormat
	n      int
	depth  gputypes.TextureFormat
}

var topologies = map[frontend.PrimitiveType]gputypes.PrimitiveTopology{
	frontend.PrimitiveTriangles:     gputypes.PrimitiveTopologyTriangleList,
	frontend.PrimitiveTriangleStrip: gputypes.PrimitiveTopologyTriangleStrip,
	frontend.PrimitiveLines:         gputypes.PrimitiveTopologyLineList,
	frontend.PrimitivePoints:        gputypes.PrimitiveTopologyPointList,
}

var stencilOps = [...]hal.StencilOperation{
	frontend.StencilKeep:          hal.StencilOperationKeep,
	frontend.StencilZero:          hal.StencilOperationZero,
	frontend.StencilReplace:       hal.StencilOperationReplace,
	frontend.StencilIncrement:     hal.StencilOperationIncrementClamp,
	frontend.StencilIncrementWrap: hal.StencilOperationIncrementWrap,
	frontend.StencilDecrement:     hal.StencilOperationDecrementClamp,
	frontend.StencilDecrementWrap: hal.StencilOperationDecrementWrap,
	frontend.StencilInvert:        hal.StencilOperationInvert,
}

// pipeline returns the cached pipeline for a draw, creating it on first
// use.
func (b *Backend) pipeline(p *gpuProgram, c *frontend.DrawCommand, tf targetFormats) (hal.RenderPipeline, error) {
	key := pipelineKey{
		state:     c.State.Hash(),
		primitive: c.Primitive,
		colors:    tf.colors,
		depth:     tf.depth,
	}
	if c.Buffer != nil {
		key.format = c.Buffer.Format().Hash()
	}
	if rp, ok := p.pipelines[key]; ok {
		return rp, nil
	}

	topology, ok := topologies[c.Primitive]
	if !ok {
		return nil, fmt.Errorf("primitive %d has no WebGPU topology", c.Primitive)
	}
	desc := &hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s_pipeline_%d", p.label, len(p.pipelines)),
		Layout: p.pipeLayout,
		Vertex: hal.VertexState{
			Module:     p.vertex.module,
			EntryPoint: p.vertex.entry,
		},
		Primitive: primitiveState(&c.State, topology),
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if c.Buffer != nil {
		desc.Vertex.Buffers = vertexLayouts(c.Buffer.Format())
	}
	if p.fragment.module != nil {
		desc.Fragment = &hal.FragmentState{
			Module:     p.fragment.module,
			EntryPoint: p.fragment.entry,
			Targets:    colorTargets(&c.State, tf),
		}
	}
	if tf.depth != gputypes.TextureFormatUndefined {
		desc.DepthStencil = depthStencilState(&c.State, tf.depth)
	}

	rp, err := b.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	p.pipelines[key] = rp
	b.log.Debug("wgpu: pipeline created", "program", p.label, "pipelines", len(p.pipelines))
	return rp, nil
}

func vertexLayouts(f *frontend.BufferFormat) []gputypes.VertexBufferLayout {
	attributes := func(attrs []frontend.Attribute) []gputypes.VertexAttribute {
		out := make([]gputypes.VertexAttribute, len(attrs))
		for i, a := range attrs {
			out[i] = gputypes.VertexAttribute{
				Format:         a.Format,
				Offset:         uint64(a.Offset),
				ShaderLocation: a.Location,
			}
		}
		return out
	}
	layouts := []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(f.VertexStride),
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attributes(f.VertexAttributes),
	}}
	if f.IsInstanced() {
		layouts = append(layouts, gputypes.VertexBufferLayout{
			ArrayStride: uint64(f.InstanceStride),
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes:  attributes(f.InstanceAttributes),
		})
	}
	return layouts
}

func primitiveState(s *frontend.State, topology gputypes.PrimitiveTopology) gputypes.PrimitiveState {
	ps := gputypes.PrimitiveState{
		Topology: topology,
		CullMode: gputypes.CullModeNone,
	}
	if s.Cull.Enabled {
		ps.CullMode = s.Cull.CullMode
		ps.FrontFace = s.Cull.FrontFace
	}
	return ps
}

func colorTargets(s *frontend.State, tf targetFormats) []gputypes.ColorTargetState {
	targets := make([]gputypes.ColorTargetState, tf.n)
	for i := range targets {
		targets[i] = gputypes.ColorTargetState{
			Format:    tf.colors[i],
			WriteMask: s.Blend.WriteMask,
		}
		if s.Blend.Enabled {
			targets[i].Blend = &gputypes.BlendState{
				Color: gputypes.BlendComponent{
					SrcFactor: s.Blend.ColorSrcFactor,
					DstFactor: s.Blend.ColorDstFactor,
					Operation: s.Blend.ColorOperation,
				},
				Alpha: gputypes.BlendComponent{
					SrcFactor: s.Blend.AlphaSrcFactor,
					DstFactor: s.Blend.AlphaDstFactor,
					Operation: s.Blend.AlphaOperation,
				},
			}
		}
	}
	return targets
}

func depthStencilState(s *frontend.State, format gputypes.TextureFormat) *hal.DepthStencilState {
	ds := &hal.DepthStencilState{
		Format:            format,
		DepthWriteEnabled: s.Depth.Write,
		DepthCompare:      gputypes.CompareFunctionAlways,
	}
	if s.Depth.Test {
		ds.DepthCompare = s.Depth.Compare
	}
	face := func(f frontend.StencilFace) hal.StencilFaceState {
		if !s.Stencil.Enabled {
			return hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			}
		}
		return hal.StencilFaceState{
			Compare:     s.Stencil.Compare,
			FailOp:      stencilOps[f.FailOp],
			DepthFailOp: stencilOps[f.DepthFailOp],
			PassOp:      stencilOps[f.PassOp],
		}
	}
	ds.StencilFront = face(s.Stencil.Front)
	ds.StencilBack = face(s.Stencil.Back)
	if s.Stencil.Enabled {
		ds.StencilReadMask = uint32(s.Stencil.ReadMask)
		ds.StencilWriteMask = uint32(s.Stencil.WriteMask)
	}
	return ds
}

type samplerKey struct {
	filter frontend.FilterOptions
	wrap   [3]frontend.WrapType
}

var addressModes = [...]gputypes.AddressMode{
	frontend.WrapClampToEdge:       gputypes.AddressModeClampToEdge,
	frontend.WrapClampToBorder:     gputypes.AddressModeClampToEdge,
	frontend.WrapRepeat:            gputypes.AddressModeRepeat,
	frontend.WrapMirroredRepeat:    gputypes.AddressModeMirrorRepeat,
	frontend.WrapMirrorClampToEdge: gputypes.AddressModeMirrorRepeat,
}

// sampled is implemented by every frontend texture kind.
type sampled interface {
	Filter() frontend.FilterOptions
	Wrap() [3]frontend.WrapType
}

// sampler returns a shared sampler for the texture's filter and wrap
// settings.
func (b *Backend) sampler(t frontend.Texture) (hal.Sampler, error) {
	st, ok := t.(sampled)
	if !ok {
		return nil, fmt.Errorf("texture %s has no sampler state", t.Handle())
	}
	key := samplerKey{filter: st.Filter(), wrap: st.Wrap()}
	if s, ok := b.samplers[key]; ok {
		return s, nil
	}
	filter := gputypes.FilterModeNearest
	if key.filter.Bilinear || key.filter.Trilinear {
		filter = gputypes.FilterModeLinear
	}
	mip := gputypes.FilterModeNearest
	if key.filter.Trilinear {
		mip = gputypes.FilterModeLinear
	}
	s, err := b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "frontend_sampler",
		AddressModeU: addressModes[key.wrap[0]],
		AddressModeV: addressModes[key.wrap[1]],
		AddressModeW: addressModes[key.wrap[2]],
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: mip,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler: %w", err)
	}
	b.samplers[key] = s
	return s, nil
}
