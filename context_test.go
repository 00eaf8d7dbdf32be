package frontend

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/frontend/internal/command"
	"github.com/gogpu/frontend/internal/memory"
)

func TestNewContextNilBackend(t *testing.T) {
	_, err := NewContext(nil)
	require.ErrorIs(t, err, ErrNilBackend)
}

func TestNewContextRecordsSwapchain(t *testing.T) {
	rec := &recorder{}
	ctx, err := NewContext(rec, WithSwapchain(64, 32, gputypes.TextureFormatBGRA8Unorm))
	require.NoError(t, err)

	require.True(t, ctx.Process())
	assert.Equal(t, []CommandType{CmdAllocate, CmdConstruct, CmdAllocate, CmdConstruct}, rec.types())

	sc := ctx.Swapchain()
	assert.True(t, sc.IsSwapchain())
	assert.Equal(t, Extent2D{64, 32}, sc.Dimensions())
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, ctx.SwapchainFormat())
	assert.Equal(t, 1, ctx.Stats(ResourceTexture2D).Used)
	assert.Equal(t, int64(64*32*4), ctx.Stats(ResourceTarget).Memory)

	require.NoError(t, ctx.Close())
	assert.True(t, rec.closed)
	assert.ErrorIs(t, ctx.Close(), ErrClosed)
}

func TestProcessEmptyFrame(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	assert.False(t, ctx.Process())
}

func TestDestroyReleasesSlotOnProcess(t *testing.T) {
	ctx, rec := newTestContext(t)
	defer ctx.Close()

	var lifecycle Lifecycle
	rec.onCmd = func(cmd Command) {
		if cmd.Type() == CmdDestroy {
			lifecycle = cmd.(*ResourceCommand).Resource.Lifecycle()
		}
	}

	b := newTestBuffer(t, ctx, vertexFormat())
	assert.Equal(t, 1, ctx.Stats(ResourceBuffer).Used)

	ctx.DestroyBuffer(Tag{Description: "test"}, b)
	assert.Equal(t, LifecycleDestroyed, b.Lifecycle())
	assert.Equal(t, 1, ctx.Stats(ResourceBuffer).Used, "slot held until Process")

	require.True(t, ctx.Process())
	assert.Equal(t, []CommandType{CmdAllocate, CmdConstruct, CmdDestroy}, rec.types())
	assert.Equal(t, LifecycleDestroyed, lifecycle, "backend sees the resource before release")
	assert.Equal(t, 0, ctx.Stats(ResourceBuffer).Used)
	assert.Equal(t, LifecycleReleased, b.Lifecycle())
}

func TestDeferredFrames(t *testing.T) {
	ctx, _ := newTestContext(t, WithDeferredFrames(2))
	defer ctx.Close()

	b := newTestBuffer(t, ctx, vertexFormat())
	ctx.DestroyBuffer(Tag{}, b)

	require.True(t, ctx.Process())
	assert.Equal(t, 1, ctx.Stats(ResourceBuffer).Used, "still in flight after one frame")

	require.NoError(t, ctx.Profile("frame"))
	require.True(t, ctx.Process())
	assert.Equal(t, 0, ctx.Stats(ResourceBuffer).Used)
}

func TestHandleNotReused(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	b := newTestBuffer(t, ctx, vertexFormat())
	first := b.Handle()
	ctx.DestroyBuffer(Tag{}, b)
	ctx.Process()

	b = newTestBuffer(t, ctx, vertexFormat())
	defer ctx.DestroyBuffer(Tag{}, b)
	assert.Equal(t, first.Index, b.Handle().Index)
	assert.NotEqual(t, first, b.Handle())
}

func TestPoolExhausted(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxBuffers = 16
	ctx, _ := newTestContext(t, WithLimits(limits))
	defer ctx.Close()

	var buffers []*Buffer
	for range 16 {
		b, err := ctx.CreateBuffer(Tag{})
		require.NoError(t, err)
		buffers = append(buffers, b)
	}
	_, err := ctx.CreateBuffer(Tag{})
	require.ErrorIs(t, err, ErrPoolExhausted)

	for _, b := range buffers {
		ctx.DestroyBuffer(Tag{}, b)
	}
	ctx.Process()

	b, err := ctx.CreateBuffer(Tag{})
	require.NoError(t, err)
	ctx.DestroyBuffer(Tag{}, b)
}

func TestCommandBufferFull(t *testing.T) {
	limits := DefaultLimits()
	limits.CommandMemory = 1 << 20
	ctx, rec := newTestContext(t, WithLimits(limits))
	defer ctx.Close()

	b := newTestBuffer(t, ctx, vertexFormat())

	var err error
	for i := 0; i <= limits.CommandMemory/command.HeaderSize && err == nil; i++ {
		err = ctx.Profile("fill")
	}
	require.ErrorIs(t, err, ErrCommandBufferFull)
	require.ErrorIs(t, ctx.Profile("fill"), ErrCommandBufferFull)

	ctx.DestroyBuffer(Tag{}, b)
	require.True(t, ctx.Process())
	assert.Equal(t, CmdDestroy, rec.last().Type(), "destroy recorded past capacity")
	assert.Equal(t, 0, ctx.Stats(ResourceBuffer).Used)

	assert.NoError(t, ctx.Profile("after reset"))
}

func TestCreateAfterClose(t *testing.T) {
	ctx, _ := newTestContext(t)
	require.NoError(t, ctx.Close())

	_, err := ctx.CreateBuffer(Tag{})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ctx.Arena(vertexFormatPtr())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCacheReferences(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	b := newTestBuffer(t, ctx, vertexFormat())
	ctx.CacheBuffer(b, "quad")
	assert.Equal(t, 1, ctx.Stats(ResourceBuffer).Cached)

	got := ctx.CachedBuffer("quad")
	require.Same(t, b, got)
	assert.Nil(t, ctx.CachedBuffer("missing"))

	ctx.DestroyBuffer(Tag{}, got)
	assert.Equal(t, LifecycleInitialized, b.Lifecycle(), "cache lookup holds a reference")

	ctx.DestroyBuffer(Tag{}, b)
	assert.Equal(t, LifecycleDestroyed, b.Lifecycle())
	assert.Nil(t, ctx.CachedBuffer("quad"))
	assert.Equal(t, 0, ctx.Stats(ResourceBuffer).Cached)
}

func TestCloseDestroysCachedResources(t *testing.T) {
	ctx, rec := newTestContext(t)

	tex, err := ctx.CreateTexture2D(Tag{})
	require.NoError(t, err)
	tex.RecordFormat(gputypes.TextureFormatRGBA8Unorm)
	tex.RecordType(TextureStatic)
	tex.RecordLevels(1)
	tex.RecordDimensions(Extent2D{4, 4})
	require.NoError(t, ctx.InitializeTexture2D(Tag{}, tex))
	ctx.CacheTexture2D(tex, "white")

	require.NoError(t, ctx.Close())
	assert.Contains(t, rec.types(), CmdDestroy)
}

func TestCloseLeakPanics(t *testing.T) {
	ctx, _ := newTestContext(t)
	newTestBuffer(t, ctx, vertexFormat())

	assert.Panics(t, func() { _ = ctx.Close() })
}

func TestUpdateBuffer(t *testing.T) {
	ctx, rec := newTestContext(t)
	defer ctx.Close()

	b := newTestBuffer(t, ctx, vertexFormat())
	defer ctx.DestroyBuffer(Tag{}, b)
	ctx.Process()
	rec.reset()

	require.NoError(t, ctx.UpdateBuffer(Tag{}, b))
	assert.False(t, ctx.Process(), "no edits, no command")

	require.NoError(t, b.WriteVertices(make([]byte, 16)))
	b.RecordVerticesEdit(4, 8)
	require.NoError(t, ctx.UpdateBuffer(Tag{}, b))
	require.True(t, ctx.Process())

	cmd, ok := rec.last().(*UpdateCommand)
	require.True(t, ok)
	assert.Equal(t, b.Handle(), cmd.Handle)
	assert.Equal(t, []Edit{{Sink: SinkVertices, Offset: 4, Size: 8}}, cmd.BufferEdits())
	assert.Empty(t, b.Edits(), "edits dropped after Process")
	assert.Equal(t, int64(8), ctx.FrameStats().Footprint)
	assert.Equal(t, int64(1), ctx.FrameStats().CommandsRecorded)
}

func TestUpdateTexture2D(t *testing.T) {
	ctx, rec := newTestContext(t)
	defer ctx.Close()

	tex, err := ctx.CreateTexture2D(Tag{})
	require.NoError(t, err)
	defer ctx.DestroyTexture2D(Tag{}, tex)
	tex.RecordFormat(gputypes.TextureFormatR8Unorm)
	tex.RecordType(TextureDynamic)
	tex.RecordLevels(2)
	tex.RecordDimensions(Extent2D{8, 4})
	require.NoError(t, tex.WriteData(make([]byte, 8*4+4*2)))
	require.NoError(t, ctx.InitializeTexture2D(Tag{}, tex))

	tex.RecordEdit(1, Extent2D{1, 0}, Extent2D{2, 2})
	require.NoError(t, ctx.UpdateTexture2D(Tag{}, tex))
	require.True(t, ctx.Process())

	cmd := rec.last().(*UpdateCommand)
	assert.Equal(t, []TextureEdit[Extent3D]{
		{Level: 1, Offset: Extent3D{1, 0, 0}, Size: Extent3D{2, 2, 1}},
	}, cmd.TextureEdits())
	assert.Empty(t, tex.Edits())
}

func TestConcurrentRecording(t *testing.T) {
	ctx, rec := newTestContext(t)
	defer ctx.Close()

	const workers, perWorker = 8, 20
	var g errgroup.Group
	for w := range workers {
		g.Go(func() error {
			for i := range perWorker {
				tag := Tag{Description: fmt.Sprintf("worker %d program %d", w, i)}
				p, err := ctx.CreateProgram(tag)
				if err != nil {
					return err
				}
				p.AddShader(Shader{Stage: ShaderVertex, Source: "@vertex fn main() {}"})
				if err := ctx.InitializeProgram(tag, p); err != nil {
					return err
				}
				ctx.DestroyProgram(tag, p)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, ctx.Process())
	assert.Len(t, rec.types(), workers*perWorker*3)
	assert.Equal(t, 0, ctx.Stats(ResourceProgram).Used)
}

func TestArenaMoveKeepsBytes(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	f := vertexFormat()
	a, err := ctx.Arena(&f)
	require.NoError(t, err)
	same, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	require.Same(t, a, same, "equal formats share an arena")

	first, second := a.Block(), a.Block()
	require.NoError(t, first.WriteVertices([]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, second.WriteVertices([]byte{9, 9, 9, 9, 9, 9, 9, 9}))

	v, err := first.MapVertices(16)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, v[:8])

	off, size := first.Range(SinkVertices)
	assert.Equal(t, uint32(16), off)
	assert.Equal(t, uint32(16), size)
	assert.Equal(t, 4, first.BaseVertex())
	assert.Contains(t, a.Buffer().Edits(), Edit{Sink: SinkVertices, Offset: 16, Size: 8})
	assert.Equal(t, []Region{
		{Offset: 0, Size: 8, Free: true},
		{Offset: 8, Size: 8},
		{Offset: 16, Size: 16},
	}, a.Regions(SinkVertices))

	second.Destroy()
	first.Destroy()
	assert.Empty(t, a.Regions(SinkVertices))
	off, _ = first.Range(SinkVertices)
	assert.Equal(t, NoOffset, off)
}

func TestArenaConcurrentWrites(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)

	const workers, rounds = 16, 32
	blocks := make([]*Block, workers)
	for w := range blocks {
		blocks[w] = a.Block()
	}
	var g errgroup.Group
	for w, blk := range blocks {
		g.Go(func() error {
			for i := range rounds {
				data := bytes.Repeat([]byte{byte(w + 1)}, 4*(i+1))
				if err := blk.WriteVertices(data); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	store := a.Buffer().Store(SinkVertices)
	for w, blk := range blocks {
		off, size := blk.Range(SinkVertices)
		require.Equal(t, uint32(4*rounds), size)
		assert.Equal(t, bytes.Repeat([]byte{byte(w + 1)}, 4*rounds), store[off:off+size], "block %d", w)
	}
	for _, blk := range blocks {
		blk.Destroy()
	}
}

func TestBlockEditAfterStoreGrowth(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	x, y := a.Block(), a.Block()
	_, err = x.MapVertices(8)
	require.NoError(t, err)
	_, err = y.MapVertices(4096)
	require.NoError(t, err)

	x.Edit(SinkVertices, func(data []byte) {
		for i := range data {
			data[i] = 7
		}
	})
	off, size := x.Range(SinkVertices)
	assert.Equal(t, bytes.Repeat([]byte{7}, 8), a.Buffer().Store(SinkVertices)[off:off+size])
	assert.Contains(t, a.Buffer().Edits(), Edit{Sink: SinkVertices, Offset: off, Size: size})

	empty := a.Block()
	called := false
	empty.Edit(SinkVertices, func(data []byte) {
		called = true
		assert.Nil(t, data)
	})
	assert.True(t, called)

	x.Destroy()
	y.Destroy()
}

func TestBlockDestroyAfterClose(t *testing.T) {
	ctx, _ := newTestContext(t)
	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	blk := a.Block()
	require.NoError(t, blk.WriteVertices(make([]byte, 8)))

	require.NoError(t, ctx.Close())
	assert.NotPanics(t, blk.Destroy)
	off, size := blk.Range(SinkVertices)
	assert.Equal(t, NoOffset, off)
	assert.Zero(t, size)
	assert.Panics(t, func() { _ = blk.WriteVertices(make([]byte, 4)) })
}

func TestArenaGrowthIsLogged(t *testing.T) {
	var buf bytes.Buffer
	ctx, _ := newTestContext(t, WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	defer ctx.Close()

	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	blk := a.Block()
	require.NoError(t, blk.WriteVertices(make([]byte, 16)))
	blk.Destroy()

	assert.Contains(t, buf.String(), "arena store grown")
	assert.Contains(t, buf.String(), "to=16")
}

func TestArenaOutOfMemoryRollsBack(t *testing.T) {
	alloc := &failingAlloc{Unlimited: memory.NewUnlimited()}
	ctx, _ := newTestContext(t, WithAllocator(alloc))
	defer ctx.Close()

	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	first, second := a.Block(), a.Block()
	require.NoError(t, first.WriteVertices(make([]byte, 8)))
	require.NoError(t, second.WriteVertices(make([]byte, 8)))
	before := a.Regions(SinkVertices)

	alloc.fail = true
	_, err = first.MapVertices(16)
	require.ErrorIs(t, err, ErrOutOfMemory)
	_, err = a.Block().MapVertices(8)
	require.ErrorIs(t, err, ErrOutOfMemory)
	alloc.fail = false

	assert.Equal(t, before, a.Regions(SinkVertices))
	off, size := first.Range(SinkVertices)
	assert.Equal(t, uint32(0), off)
	assert.Equal(t, uint32(8), size)

	first.Destroy()
	second.Destroy()
}

func TestBlockSinkChecks(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	a, err := ctx.Arena(vertexFormatPtr())
	require.NoError(t, err)
	b := a.Block()

	assert.Panics(t, func() { _, _ = b.MapElements(4) }, "non-indexed format")
	assert.Panics(t, func() { _, _ = b.MapVertices(6) }, "not a multiple of the stride")
	assert.Panics(t, func() { b.RecordVerticesEdit(0, 4) }, "empty block")

	v, err := b.MapVertices(0)
	require.NoError(t, err)
	assert.Nil(t, v)
}
