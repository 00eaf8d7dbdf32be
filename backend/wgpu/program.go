// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// compileWGSL compiles WGSL source to SPIR-V words.
func compileWGSL(source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V size %d is not word aligned", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}

type stage struct {
	module hal.ShaderModule
	entry  string
}

// uniformSlot is where one frontend uniform lives on the GPU. Sampler
// uniforms hold the texture unit bound at binding.
type uniformSlot struct {
	offset  uint64
	size    int
	sampler bool
	binding uint32
	viewDim gputypes.TextureViewDimension
	unit    int
}

// gpuProgram holds the compiled stages and the binding layout derived
// from the program's uniforms.
type gpuProgram struct {
	label       string
	vertex      stage
	fragment    stage
	slots       []uniformSlot
	uniformBuf  hal.Buffer
	uniformSize uint64
	layout      hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout
	pipelines   map[pipelineKey]hal.RenderPipeline
}

var samplerViewDims = map[frontend.UniformType]gputypes.TextureViewDimension{
	frontend.UniformSampler1D: gputypes.TextureViewDimension1D,
	frontend.UniformSampler2D: gputypes.TextureViewDimension2D,
	frontend.UniformSampler3D: gputypes.TextureViewDimension3D,
	frontend.UniformSamplerCM: gputypes.TextureViewDimensionCube,
}

// uniformAlign follows the WGSL uniform address space: scalars align to
// 4, two-component vectors to 8, everything larger to 16.
func uniformAlign(size int) uint64 {
	switch {
	case size <= 4:
		return 4
	case size == 8:
		return 8
	default:
		return 16
	}
}

func (b *Backend) constructProgram(src *frontend.Program) (*gpuProgram, error) {
	p := &gpuProgram{label: src.Tag().Description, pipelines: make(map[pipelineKey]hal.RenderPipeline)}

	for _, s := range src.Shaders() {
		words, err := compileWGSL(s.Source)
		if err != nil {
			p.destroy(b.device)
			return nil, fmt.Errorf("%s shader: %w", s.Stage, err)
		}
		module, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  fmt.Sprintf("%s_%s", p.label, s.Stage),
			Source: hal.ShaderSource{SPIRV: words},
		})
		if err != nil {
			p.destroy(b.device)
			return nil, fmt.Errorf("create %s shader module: %w", s.Stage, err)
		}
		switch s.Stage {
		case frontend.ShaderVertex:
			p.vertex = stage{module: module, entry: s.EntryPoint}
		case frontend.ShaderFragment:
			p.fragment = stage{module: module, entry: s.EntryPoint}
		}
	}
	if p.vertex.module == nil {
		p.destroy(b.device)
		return nil, errors.New("program has no vertex shader")
	}

	entries := p.layoutUniforms(src.Uniforms())
	if err := b.createProgramLayout(p, entries); err != nil {
		p.destroy(b.device)
		return nil, err
	}
	for i, u := range src.Uniforms() {
		p.store(b, i, u.Bytes())
	}
	return p, nil
}

// layoutUniforms assigns buffer offsets to plain uniforms and binding
// pairs to samplers.
func (p *gpuProgram) layoutUniforms(uniforms []*frontend.Uniform) []gputypes.BindGroupLayoutEntry {
	const visibility = gputypes.ShaderStageVertex | gputypes.ShaderStageFragment
	var entries []gputypes.BindGroupLayoutEntry
	binding := uint32(1)
	p.slots = make([]uniformSlot, len(uniforms))
	for i, u := range uniforms {
		slot := &p.slots[i]
		slot.size = u.Size()
		if u.Type().IsSampler() {
			slot.sampler = true
			slot.binding = binding
			slot.viewDim = samplerViewDims[u.Type()]
			entries = append(entries,
				gputypes.BindGroupLayoutEntry{
					Binding:    binding,
					Visibility: visibility,
					Texture: &gputypes.TextureBindingLayout{
						SampleType:    gputypes.TextureSampleTypeFloat,
						ViewDimension: slot.viewDim,
					},
				},
				gputypes.BindGroupLayoutEntry{
					Binding:    binding + 1,
					Visibility: visibility,
					Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
				})
			binding += 2
			continue
		}
		a := uniformAlign(slot.size)
		slot.offset = (p.uniformSize + a - 1) &^ (a - 1)
		p.uniformSize = slot.offset + uint64(slot.size)
	}
	if p.uniformSize > 0 {
		p.uniformSize = (p.uniformSize + 15) &^ 15
		entries = append([]gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: visibility,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}}, entries...)
	}
	return entries
}

func (b *Backend) createProgramLayout(p *gpuProgram, entries []gputypes.BindGroupLayoutEntry) error {
	if p.uniformSize > 0 {
		buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: p.label + "_uniforms",
			Size:  p.uniformSize,
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create uniform buffer: %w", err)
		}
		p.uniformBuf = buf
	}
	layout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.label + "_layout",
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	p.layout = layout
	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            p.label + "_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{layout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout
	return nil
}

// store writes the value of uniform i. Sampler values select a texture
// unit and never reach the uniform buffer.
func (p *gpuProgram) store(b *Backend, i int, value []byte) {
	slot := &p.slots[i]
	if slot.sampler {
		slot.unit = int(int32(binary.LittleEndian.Uint32(value)))
		return
	}
	b.queue.WriteBuffer(p.uniformBuf, slot.offset, pad4(value))
}

// flush applies the dirty uniform values of a draw. values holds them
// back to back in uniform index order.
func (p *gpuProgram) flush(b *Backend, dirty uint64, values []byte) error {
	for i := range p.slots {
		if dirty&(1<<i) == 0 {
			continue
		}
		n := p.slots[i].size
		if len(values) < n {
			return fmt.Errorf("uniform %d: %d bytes left, want %d", i, len(values), n)
		}
		p.store(b, i, values[:n])
		values = values[n:]
	}
	return nil
}

// bindGroup binds the uniform buffer and the draw's textures. The group
// is destroyed once the frame's submissions complete.
func (b *Backend) bindGroup(p *gpuProgram, textures *frontend.DrawTextures) (hal.BindGroup, error) {
	var entries []gputypes.BindGroupEntry
	if p.uniformBuf != nil {
		entries = append(entries, gputypes.BindGroupEntry{Binding: 0, Resource: gputypes.BufferBinding{
			Buffer: p.uniformBuf.NativeHandle(), Offset: 0, Size: p.uniformSize,
		}})
	}
	for i := range p.slots {
		slot := &p.slots[i]
		if !slot.sampler {
			continue
		}
		if slot.unit < 0 || slot.unit >= textures.Len() {
			return nil, fmt.Errorf("sampler uniform %d reads unit %d of %d bound textures", i, slot.unit, textures.Len())
		}
		src := textures.At(slot.unit)
		g, err := b.texture(src)
		if err != nil {
			return nil, err
		}
		sampler, err := b.sampler(src)
		if err != nil {
			return nil, err
		}
		entries = append(entries,
			gputypes.BindGroupEntry{Binding: slot.binding, Resource: gputypes.TextureViewBinding{
				TextureView: g.view.NativeHandle(),
			}},
			gputypes.BindGroupEntry{Binding: slot.binding + 1, Resource: gputypes.SamplerBinding{
				Sampler: sampler.NativeHandle(),
			}})
	}
	bg, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_bind",
		Layout:  p.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	b.garbage = append(b.garbage, bg)
	return bg, nil
}

func (p *gpuProgram) destroy(device hal.Device) {
	for k, rp := range p.pipelines {
		device.DestroyRenderPipeline(rp)
		delete(p.pipelines, k)
	}
	if p.pipeLayout != nil {
		device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.layout != nil {
		device.DestroyBindGroupLayout(p.layout)
		p.layout = nil
	}
	if p.uniformBuf != nil {
		device.DestroyBuffer(p.uniformBuf)
		p.uniformBuf = nil
	}
	for _, s := range []*stage{&p.vertex, &p.fragment} {
		if s.module != nil {
			device.DestroyShaderModule(s.module)
			s.module = nil
		}
	}
}
