package frontend

import (
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/frontend/internal/memory"
)

// recorder is a Backend that keeps every command it is handed.
type recorder struct {
	mu       sync.Mutex
	commands []Command
	swaps    int
	closed   bool
	onCmd    func(Command)
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Process(cmd Command) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	fn := r.onCmd
	r.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
}

func (r *recorder) Swap() { r.swaps++ }

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func (r *recorder) types() []CommandType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandType, len(r.commands))
	for i, c := range r.commands {
		out[i] = c.Type()
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.commands = nil
	r.mu.Unlock()
}

func (r *recorder) last() Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commands[len(r.commands)-1]
}

// failingAlloc refuses every reservation while fail is set.
type failingAlloc struct {
	*memory.Unlimited
	fail bool
}

func (a *failingAlloc) Acquire(n int64) bool {
	if a.fail {
		return false
	}
	return a.Unlimited.Acquire(n)
}

func newTestContext(t *testing.T, opts ...ContextOption) (*Context, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts = append([]ContextOption{WithSwapchain(64, 32, gputypes.TextureFormatRGBA8Unorm)}, opts...)
	ctx, err := NewContext(rec, opts...)
	require.NoError(t, err)
	ctx.Process()
	rec.reset()
	return ctx, rec
}

func vertexFormat() BufferFormat {
	return BufferFormat{
		Type:         BufferDynamic,
		VertexStride: 4,
		VertexAttributes: []Attribute{
			{Location: 0, Format: gputypes.VertexFormatFloat32},
		},
	}
}

func newTestBuffer(t *testing.T, ctx *Context, f BufferFormat) *Buffer {
	t.Helper()
	b, err := ctx.CreateBuffer(Tag{Description: "test buffer"})
	require.NoError(t, err)
	b.RecordFormat(f)
	require.NoError(t, ctx.InitializeBuffer(Tag{Description: "test buffer"}, b))
	return b
}

func newTestProgram(t *testing.T, ctx *Context) *Program {
	t.Helper()
	p, err := ctx.CreateProgram(Tag{Description: "test program"})
	require.NoError(t, err)
	p.AddShader(Shader{Stage: ShaderVertex, Source: "@vertex fn main() {}"})
	p.AddShader(Shader{Stage: ShaderFragment, Source: "@fragment fn main() {}"})
	require.NoError(t, ctx.InitializeProgram(Tag{Description: "test program"}, p))
	return p
}

func newAttachmentTexture(t *testing.T, ctx *Context, f gputypes.TextureFormat, d Extent2D) *Texture2D {
	t.Helper()
	tex, err := ctx.CreateTexture2D(Tag{Description: "attachment"})
	require.NoError(t, err)
	tex.RecordFormat(f)
	tex.RecordType(TextureAttachment)
	tex.RecordLevels(1)
	tex.RecordDimensions(d)
	require.NoError(t, ctx.InitializeTexture2D(Tag{Description: "attachment"}, tex))
	return tex
}

func newTestTarget(t *testing.T, ctx *Context, textures ...*Texture2D) *Target {
	t.Helper()
	tg, err := ctx.CreateTarget(Tag{Description: "test target"})
	require.NoError(t, err)
	for _, tex := range textures {
		tg.AttachTexture(tex, 0)
	}
	require.NoError(t, ctx.InitializeTarget(Tag{Description: "test target"}, tg))
	return tg
}

func drawState() State {
	s := DefaultState()
	s.Viewport.Rect = Rect{Width: 64, Height: 32}
	s.Flush()
	return s
}

func vertexFormatPtr() *BufferFormat {
	f := vertexFormat()
	return &f
}
