package frontend

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"strings"
)

// MaxBones is the number of 3x4 joint matrices a bones uniform holds.
const MaxBones = 80

// maxUniforms is bounded by the width of the dirty bitset.
const maxUniforms = 64

// ShaderStage identifies a programmable pipeline stage.
type ShaderStage uint8

const (
	ShaderVertex ShaderStage = iota
	ShaderFragment
)

func (s ShaderStage) String() string {
	if s == ShaderFragment {
		return "fragment"
	}
	return "vertex"
}

// Shader is one WGSL stage of a Program.
type Shader struct {
	Stage      ShaderStage
	Source     string
	EntryPoint string
}

// UniformType is the value type of a uniform.
type UniformType uint8

const (
	UniformSampler1D UniformType = iota
	UniformSampler2D
	UniformSampler3D
	UniformSamplerCM
	UniformBool
	UniformInt
	UniformFloat
	UniformVec2i
	UniformVec3i
	UniformVec4i
	UniformVec2f
	UniformVec3f
	UniformVec4f
	UniformMat3x3f
	UniformMat4x4f
	UniformBones
)

var uniformSizes = [...]int{
	UniformSampler1D: 4,
	UniformSampler2D: 4,
	UniformSampler3D: 4,
	UniformSamplerCM: 4,
	UniformBool:      4,
	UniformInt:       4,
	UniformFloat:     4,
	UniformVec2i:     8,
	UniformVec3i:     12,
	UniformVec4i:     16,
	UniformVec2f:     8,
	UniformVec3f:     12,
	UniformVec4f:     16,
	UniformMat3x3f:   36,
	UniformMat4x4f:   64,
	UniformBones:     48 * MaxBones,
}

// Size returns the byte size of a value of type t. Bools occupy a 32-bit
// word.
func (t UniformType) Size() int { return uniformSizes[t] }

// IsSampler reports whether t names a texture unit.
func (t UniformType) IsSampler() bool { return t <= UniformSamplerCM }

// Uniform is a named shader constant. Recording a changed value marks it
// dirty; the next draw with its program copies it into the command.
type Uniform struct {
	program *Program
	index   int
	name    string
	kind    UniformType
	padding bool
	value   []byte
}

func (u *Uniform) Name() string      { return u.name }
func (u *Uniform) Type() UniformType { return u.kind }
func (u *Uniform) Size() int         { return len(u.value) }

// Bytes returns the current value.
func (u *Uniform) Bytes() []byte { return u.value }

// IsPadding reports whether the uniform exists only for layout and is
// never flushed.
func (u *Uniform) IsPadding() bool { return u.padding }

func (u *Uniform) expect(t UniformType) {
	if u.kind != t && !(t == UniformSampler2D && u.kind.IsSampler()) {
		panic(fmt.Sprintf("frontend: uniform %q of type %d recorded as %d", u.name, u.kind, t))
	}
}

func (u *Uniform) store(b []byte) {
	if bytes.Equal(u.value[:len(b)], b) {
		return
	}
	copy(u.value, b)
	u.program.markDirty(u.index)
}

func (u *Uniform) RecordSampler(unit int) {
	u.expect(UniformSampler2D)
	u.store(binary.LittleEndian.AppendUint32(nil, uint32(int32(unit))))
}

func (u *Uniform) RecordInt(v int32) {
	u.expect(UniformInt)
	u.store(binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (u *Uniform) RecordBool(v bool) {
	u.expect(UniformBool)
	var w uint32
	if v {
		w = 1
	}
	u.store(binary.LittleEndian.AppendUint32(nil, w))
}

func (u *Uniform) RecordFloat(v float32) {
	u.expect(UniformFloat)
	u.store(appendFloats(nil, v))
}

func (u *Uniform) RecordVec2i(v [2]int32) { u.recordInts(UniformVec2i, v[:]) }
func (u *Uniform) RecordVec3i(v [3]int32) { u.recordInts(UniformVec3i, v[:]) }
func (u *Uniform) RecordVec4i(v [4]int32) { u.recordInts(UniformVec4i, v[:]) }

func (u *Uniform) RecordVec2f(v [2]float32) { u.recordFloats(UniformVec2f, v[:]) }
func (u *Uniform) RecordVec3f(v [3]float32) { u.recordFloats(UniformVec3f, v[:]) }
func (u *Uniform) RecordVec4f(v [4]float32) { u.recordFloats(UniformVec4f, v[:]) }

// RecordMat3x3f records a column-major 3x3 matrix.
func (u *Uniform) RecordMat3x3f(m [9]float32) { u.recordFloats(UniformMat3x3f, m[:]) }

// RecordMat4x4f records a column-major 4x4 matrix.
func (u *Uniform) RecordMat4x4f(m [16]float32) { u.recordFloats(UniformMat4x4f, m[:]) }

// RecordBones records joint matrices. Frames beyond MaxBones are ignored
// and the remainder of the uniform keeps its previous value.
func (u *Uniform) RecordBones(frames [][12]float32) {
	u.expect(UniformBones)
	n := min(len(frames), MaxBones)
	b := make([]byte, 0, n*48)
	for _, f := range frames[:n] {
		b = appendFloats(b, f[:]...)
	}
	u.store(b)
}

// RecordRaw replaces the value with data, which must be exactly Size
// bytes. The uniform is marked dirty unconditionally.
func (u *Uniform) RecordRaw(data []byte) {
	if len(data) != len(u.value) {
		panic(fmt.Sprintf("frontend: uniform %q raw size %d, want %d", u.name, len(data), len(u.value)))
	}
	copy(u.value, data)
	u.program.markDirty(u.index)
}

func (u *Uniform) recordInts(t UniformType, v []int32) {
	u.expect(t)
	b := make([]byte, 0, 4*len(v))
	for _, x := range v {
		b = binary.LittleEndian.AppendUint32(b, uint32(x))
	}
	u.store(b)
}

func (u *Uniform) recordFloats(t UniformType, v []float32) {
	u.expect(t)
	u.store(appendFloats(make([]byte, 0, 4*len(v)), v...))
}

func appendFloats(b []byte, v ...float32) []byte {
	for _, x := range v {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(x))
	}
	return b
}

// Program is a set of shader stages and the uniforms they read.
type Program struct {
	resource

	shaders  []Shader
	uniforms []*Uniform
	dirty    uint64
	padding  uint64
}

// AddShader appends a stage. Carriage returns are stripped from the
// source.
func (p *Program) AddShader(s Shader) {
	p.mustBeLive("AddShader")
	s.Source = normalizeSource(s.Source)
	if s.EntryPoint == "" {
		s.EntryPoint = "main"
	}
	p.shaders = append(p.shaders, s)
}

// AddUniform appends a uniform. Padding uniforms take part in the layout
// but are never flushed into draw commands.
func (p *Program) AddUniform(name string, t UniformType, padding bool) *Uniform {
	p.mustBeLive("AddUniform")
	if len(p.uniforms) == maxUniforms {
		panic(fmt.Sprintf("frontend: program exceeds %d uniforms", maxUniforms))
	}
	u := &Uniform{
		program: p,
		index:   len(p.uniforms),
		name:    name,
		kind:    t,
		padding: padding,
		value:   make([]byte, t.Size()),
	}
	if padding {
		p.padding |= 1 << u.index
	}
	p.uniforms = append(p.uniforms, u)
	p.updateUsage()
	return u
}

func (p *Program) Shaders() []Shader     { return p.shaders }
func (p *Program) Uniforms() []*Uniform  { return p.uniforms }
func (p *Program) DirtyUniforms() uint64 { return p.dirty }

// Uniform returns the uniform with the given name.
func (p *Program) Uniform(name string) (*Uniform, bool) {
	for _, u := range p.uniforms {
		if u.name == name {
			return u, true
		}
	}
	return nil, false
}

// DirtyUniformsSize returns the bytes FlushDirtyUniforms will write.
func (p *Program) DirtyUniformsSize() int {
	n := 0
	for d := p.dirty; d != 0; d &= d - 1 {
		n += p.uniforms[bits.TrailingZeros64(d)].Size()
	}
	return n
}

// FlushDirtyUniforms copies every dirty uniform into dst in index order
// and clears the dirty set. dst must hold DirtyUniformsSize bytes.
func (p *Program) FlushDirtyUniforms(dst []byte) {
	for ; p.dirty != 0; p.dirty &= p.dirty - 1 {
		u := p.uniforms[bits.TrailingZeros64(p.dirty)]
		dst = dst[copy(dst, u.value):]
	}
}

// Validate reports whether the program can be initialized.
func (p *Program) Validate() error {
	if len(p.shaders) == 0 {
		return errors.New("no shaders specified")
	}
	return nil
}

func (p *Program) markDirty(i int) {
	if p.padding&(1<<i) == 0 {
		p.dirty |= 1 << i
	}
}

func (p *Program) updateUsage() {
	var n int64
	for _, u := range p.uniforms {
		n += int64(u.Size())
	}
	p.setUsage(n)
}

func (p *Program) release() {
	p.setUsage(0)
	p.shaders = nil
	p.uniforms = nil
}

func normalizeSource(src string) string {
	return strings.ReplaceAll(src, "\r", "")
}
