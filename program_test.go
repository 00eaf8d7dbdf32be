package frontend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProgram(t *testing.T) (*Context, *Program) {
	t.Helper()
	ctx, _ := newTestContext(t)
	p, err := ctx.CreateProgram(Tag{})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx.DestroyProgram(Tag{}, p)
		require.NoError(t, ctx.Close())
	})
	return ctx, p
}

func TestProgramShaders(t *testing.T) {
	ctx, p := newProgram(t)

	assert.Panics(t, func() { _ = ctx.InitializeProgram(Tag{}, p) }, "no shaders")

	p.AddShader(Shader{Stage: ShaderVertex, Source: "fn a() {}\r\nfn b() {}\r\n"})
	p.AddShader(Shader{Stage: ShaderFragment, Source: "fn fs() {}", EntryPoint: "fs"})
	require.NoError(t, ctx.InitializeProgram(Tag{}, p))

	shaders := p.Shaders()
	require.Len(t, shaders, 2)
	assert.Equal(t, "fn a() {}\nfn b() {}\n", shaders[0].Source)
	assert.Equal(t, "main", shaders[0].EntryPoint)
	assert.Equal(t, "fs", shaders[1].EntryPoint)
	assert.Equal(t, "fragment", shaders[1].Stage.String())
}

func TestUniformDirtyOnChange(t *testing.T) {
	_, p := newProgram(t)
	alpha := p.AddUniform("alpha", UniformFloat, false)
	flip := p.AddUniform("flip", UniformBool, false)

	alpha.RecordFloat(0)
	assert.Zero(t, p.DirtyUniforms(), "recording the current value")

	alpha.RecordFloat(0.5)
	flip.RecordBool(true)
	assert.Equal(t, uint64(0b11), p.DirtyUniforms())
	assert.Equal(t, 8, p.DirtyUniformsSize())

	dst := make([]byte, p.DirtyUniformsSize())
	p.FlushDirtyUniforms(dst)
	assert.Equal(t, float32(0.5), math.Float32frombits(binary.LittleEndian.Uint32(dst)))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(dst[4:]))
	assert.Zero(t, p.DirtyUniforms())

	alpha.RecordRaw(alpha.Bytes())
	assert.Equal(t, uint64(0b01), p.DirtyUniforms(), "raw records are always dirty")
}

func TestUniformPaddingNeverDirty(t *testing.T) {
	_, p := newProgram(t)
	pad := p.AddUniform("pad", UniformVec3f, true)
	pad.RecordVec3f([3]float32{1, 2, 3})

	assert.True(t, pad.IsPadding())
	assert.Zero(t, p.DirtyUniforms())
	assert.Equal(t, int64(12), p.Usage())
}

func TestUniformTypes(t *testing.T) {
	_, p := newProgram(t)
	tex := p.AddUniform("tex", UniformSamplerCM, false)
	mvp := p.AddUniform("mvp", UniformMat4x4f, false)
	bones := p.AddUniform("bones", UniformBones, false)

	tex.RecordSampler(3)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(tex.Bytes()))
	assert.Panics(t, func() { mvp.RecordFloat(1) })
	assert.Panics(t, func() { mvp.RecordRaw(make([]byte, 4)) })

	var m [16]float32
	m[0], m[15] = 1, 1
	mvp.RecordMat4x4f(m)
	assert.Equal(t, 64, mvp.Size())

	bones.RecordBones(make([][12]float32, MaxBones+5))
	assert.Equal(t, 48*MaxBones, bones.Size())

	got, ok := p.Uniform("mvp")
	require.True(t, ok)
	assert.Same(t, mvp, got)
	_, ok = p.Uniform("missing")
	assert.False(t, ok)
}

func TestProgramUniformLimit(t *testing.T) {
	_, p := newProgram(t)
	for range maxUniforms {
		p.AddUniform("u", UniformInt, false)
	}
	assert.Panics(t, func() { p.AddUniform("overflow", UniformInt, false) })
}
