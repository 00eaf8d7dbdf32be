package frontend

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type drawFixture struct {
	ctx     *Context
	rec     *recorder
	color   *Texture2D
	target  *Target
	program *Program
}

func newDrawFixture(t *testing.T) *drawFixture {
	t.Helper()
	ctx, rec := newTestContext(t)
	f := &drawFixture{ctx: ctx, rec: rec}
	f.color = newAttachmentTexture(t, ctx, gputypes.TextureFormatRGBA8Unorm, Extent2D{64, 32})
	f.target = newTestTarget(t, ctx, f.color)
	f.program = newTestProgram(t, ctx)
	t.Cleanup(func() {
		ctx.DestroyProgram(Tag{}, f.program)
		ctx.DestroyTarget(Tag{}, f.target)
		ctx.DestroyTexture2D(Tag{}, f.color)
		require.NoError(t, ctx.Close())
	})
	ctx.Process()
	rec.reset()
	return f
}

func (f *drawFixture) params() DrawParams {
	return DrawParams{
		State:       drawState(),
		Target:      f.target,
		DrawBuffers: NewDrawBuffers(0),
		Program:     f.program,
		Count:       6,
	}
}

func TestDrawFlushesDirtyUniforms(t *testing.T) {
	f := newDrawFixture(t)
	color := f.program.AddUniform("color", UniformVec4f, false)
	f.program.AddUniform("pad", UniformVec4f, true)
	scale := f.program.AddUniform("scale", UniformFloat, false)
	color.RecordVec4f([4]float32{1, 0, 0, 1})
	scale.RecordFloat(2)

	require.NoError(t, f.ctx.Draw(Tag{}, f.params()))
	assert.Zero(t, f.program.DirtyUniforms(), "draw clears the dirty set")

	require.NoError(t, f.ctx.Draw(Tag{}, f.params()))
	require.True(t, f.ctx.Process())

	first := f.rec.commands[0].(*DrawCommand)
	assert.Equal(t, uint64(0b101), first.DirtyUniforms)
	assert.Equal(t, append(append([]byte{}, color.Bytes()...), scale.Bytes()...), first.Uniforms)
	ds := drawState()
	assert.Equal(t, ds.Hash(), first.State.Hash())

	second := f.rec.commands[1].(*DrawCommand)
	assert.Zero(t, second.DirtyUniforms)
	assert.Empty(t, second.Uniforms)

	stats := f.ctx.FrameStats()
	assert.Equal(t, int64(2), stats.DrawCalls)
	assert.Equal(t, int64(12), stats.Vertices)
	assert.Equal(t, int64(4), stats.Triangles)
	assert.Equal(t, int64(20), stats.Footprint)
}

func TestDrawCountsPrimitives(t *testing.T) {
	tests := []struct {
		name      string
		primitive PrimitiveType
		count     int
		want      FrameStats
	}{
		{"triangles", PrimitiveTriangles, 9, FrameStats{Triangles: 3}},
		{"strip", PrimitiveTriangleStrip, 5, FrameStats{Triangles: 3}},
		{"fan", PrimitiveTriangleFan, 1, FrameStats{}},
		{"lines", PrimitiveLines, 6, FrameStats{Lines: 3}},
		{"points", PrimitivePoints, 7, FrameStats{Points: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDrawFixture(t)
			p := f.params()
			p.Primitive = tt.primitive
			p.Count = tt.count
			require.NoError(t, f.ctx.Draw(Tag{}, p))
			f.ctx.Process()

			tt.want.DrawCalls = 1
			tt.want.Vertices = int64(tt.count)
			tt.want.CommandsRecorded = 1
			assert.Equal(t, tt.want, f.ctx.FrameStats())
		})
	}
}

func TestDrawInstanced(t *testing.T) {
	f := newDrawFixture(t)
	format := vertexFormat()
	format.InstanceStride = 16
	format.InstanceAttributes = []Attribute{{Location: 1, Format: gputypes.VertexFormatFloat32x4}}
	b := newTestBuffer(t, f.ctx, format)
	defer f.ctx.DestroyBuffer(Tag{}, b)

	p := f.params()
	p.Buffer = b
	p.Count = 3
	p.Instances = 4
	p.BaseInstance = 2
	require.NoError(t, f.ctx.Draw(Tag{}, p))
	f.ctx.Process()

	stats := f.ctx.FrameStats()
	assert.Equal(t, int64(1), stats.InstancedDrawCalls)
	assert.Equal(t, int64(12), stats.Vertices)
	assert.Equal(t, int64(4), stats.Triangles)
}

func TestDrawContractViolations(t *testing.T) {
	f := newDrawFixture(t)
	plain := newTestBuffer(t, f.ctx, vertexFormat())
	defer f.ctx.DestroyBuffer(Tag{}, plain)
	f.ctx.Process()

	sampled := f.color
	tests := []struct {
		name   string
		modify func(p *DrawParams)
	}{
		{"empty viewport", func(p *DrawParams) { p.State.Viewport.Rect.Width = 0 }},
		{"no draw buffers", func(p *DrawParams) { p.DrawBuffers = DrawBuffers{} }},
		{"no program", func(p *DrawParams) { p.Program = nil }},
		{"zero count", func(p *DrawParams) { p.Count = 0 }},
		{"bufferless offset", func(p *DrawParams) { p.Offset = 3 }},
		{"bufferless instances", func(p *DrawParams) { p.Instances = 2 }},
		{"instances without instance sink", func(p *DrawParams) {
			p.Buffer = plain
			p.Instances = 2
		}},
		{"base vertex without elements", func(p *DrawParams) {
			p.Buffer = plain
			p.BaseVertex = 1
		}},
		{"feedback loop", func(p *DrawParams) { p.Textures.Add(sampled) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := f.params()
			tt.modify(&p)
			assert.Panics(t, func() { _ = f.ctx.Draw(Tag{}, p) })
		})
	}
	assert.False(t, f.ctx.Process(), "nothing recorded by a rejected draw")
}

func TestClear(t *testing.T) {
	f := newDrawFixture(t)
	red := gputypes.Color{R: 1, A: 1}
	var colors [MaxDrawBuffers]gputypes.Color
	colors[0] = red

	require.NoError(t, f.ctx.Clear(Tag{}, ClearParams{
		State:       drawState(),
		Target:      f.target,
		DrawBuffers: NewDrawBuffers(0),
		Mask:        ClearDepth | ClearColor(0),
		Depth:       1,
		Stencil:     7,
		Colors:      colors,
	}))
	require.True(t, f.ctx.Process())

	cmd := f.rec.last().(*ClearCommand)
	assert.True(t, cmd.ClearDepth)
	assert.False(t, cmd.ClearStencil)
	assert.Zero(t, cmd.StencilValue, "unselected value dropped")
	assert.Equal(t, float32(1), cmd.DepthValue)
	assert.Equal(t, uint32(1), cmd.ClearColors)
	assert.Equal(t, red, cmd.ColorValues[0])
	assert.Equal(t, int64(1), f.ctx.FrameStats().ClearCalls)

	assert.Panics(t, func() {
		_ = f.ctx.Clear(Tag{}, ClearParams{State: drawState(), Target: f.target, DrawBuffers: NewDrawBuffers(0)})
	})
}

func TestBlit(t *testing.T) {
	f := newDrawFixture(t)
	other := newAttachmentTexture(t, f.ctx, gputypes.TextureFormatRGBA8Unorm, Extent2D{64, 32})
	dst := newTestTarget(t, f.ctx, other)
	hdr := newAttachmentTexture(t, f.ctx, gputypes.TextureFormatRGBA16Float, Extent2D{64, 32})
	hdrTarget := newTestTarget(t, f.ctx, hdr)
	defer func() {
		f.ctx.DestroyTarget(Tag{}, hdrTarget)
		f.ctx.DestroyTexture2D(Tag{}, hdr)
		f.ctx.DestroyTarget(Tag{}, dst)
		f.ctx.DestroyTexture2D(Tag{}, other)
	}()

	require.NoError(t, f.ctx.Blit(Tag{}, drawState(), f.target, 0, dst, 0))
	require.NoError(t, f.ctx.Blit(Tag{}, drawState(), f.target, 0, f.ctx.Swapchain(), 0))
	f.ctx.Process()
	assert.Equal(t, int64(2), f.ctx.FrameStats().BlitCalls)

	assert.Panics(t, func() { _ = f.ctx.Blit(Tag{}, drawState(), f.target, 0, f.target, 0) }, "self")
	assert.Panics(t, func() { _ = f.ctx.Blit(Tag{}, drawState(), f.ctx.Swapchain(), 0, dst, 0) }, "swapchain source")
	assert.Panics(t, func() { _ = f.ctx.Blit(Tag{}, drawState(), f.target, 1, dst, 0) }, "attachment bounds")
	assert.Panics(t, func() { _ = f.ctx.Blit(Tag{}, drawState(), hdrTarget, 0, dst, 0) }, "float to unorm")
}

func TestDownload(t *testing.T) {
	f := newDrawFixture(t)
	d, err := f.ctx.CreateDownloader(Tag{})
	require.NoError(t, err)
	defer f.ctx.DestroyDownloader(Tag{}, d)
	d.RecordFormat(gputypes.TextureFormatRGBA8Unorm)
	d.RecordBuffers(1)
	require.NoError(t, d.RecordDimensions(Extent2D{2, 2}))
	require.NoError(t, f.ctx.InitializeDownloader(Tag{}, d))

	f.rec.onCmd = func(cmd Command) {
		if dl, ok := cmd.(*DownloadCommand); ok {
			dl.Downloader.Complete([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
		}
	}
	assert.False(t, d.Ready())
	require.NoError(t, f.ctx.Download(Tag{}, f.target, 0, Extent2D{1, 1}, d))
	f.ctx.Process()

	assert.True(t, d.Ready())
	assert.Equal(t, int64(1), d.Downloads())
	assert.Equal(t, byte(16), d.Pixels()[15])
	assert.Equal(t, int64(16), f.ctx.Stats(ResourceDownloader).Memory)
}

func TestProfile(t *testing.T) {
	f := newDrawFixture(t)
	require.NoError(t, f.ctx.Profile("shadows"))
	f.ctx.Process()

	cmd := f.rec.last().(*ProfileCommand)
	assert.Equal(t, "shadows", cmd.Name)
	assert.Equal(t, "Profile", cmd.Type().String())
}
