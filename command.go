package frontend

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
)

// CommandType identifies the type of a recorded command.
type CommandType uint8

const (
	// Resource commands
	CmdAllocate  CommandType = iota // Pool slot reserved
	CmdConstruct                    // Resource initialized
	CmdUpdate                       // Resource edits uploaded
	CmdDestroy                      // Resource destroyed

	// Frame commands
	CmdClear    // Clear target attachments
	CmdDraw     // Draw primitives
	CmdBlit     // Copy between target attachments
	CmdDownload // Read back a target attachment
	CmdProfile  // Profiling marker
)

var commandTypeNames = [...]string{
	CmdAllocate:  "Allocate",
	CmdConstruct: "Construct",
	CmdUpdate:    "Update",
	CmdDestroy:   "Destroy",
	CmdClear:     "Clear",
	CmdDraw:      "Draw",
	CmdBlit:      "Blit",
	CmdDownload:  "Download",
	CmdProfile:   "Profile",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all command types. Backends
// receive commands in recording order and type-switch on them.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
	// Tag returns where the command was recorded.
	Tag() Tag
}

// Resource is implemented by every pooled resource.
type Resource interface {
	Handle() Handle
	Tag() Tag
	Lifecycle() Lifecycle
	Usage() int64
}

// header is embedded in every command.
type header struct {
	tag Tag
}

func (h header) Tag() Tag { return h.tag }

// ResourceCommand is an allocate, construct or destroy command. Handle is
// captured at record time; Resource stays dereferenceable until the
// Process call that executes the command returns.
type ResourceCommand struct {
	header
	Kind     CommandType
	Handle   Handle
	Resource Resource
}

func (c *ResourceCommand) Type() CommandType { return c.Kind }

const (
	bufferEditSize  = 12
	textureEditSize = 28
)

// UpdateCommand uploads the edits recorded on a Buffer or texture. The
// edits are packed into the command buffer.
type UpdateCommand struct {
	header
	Handle   Handle
	Resource Resource
	Edits    int
	payload  []byte
}

func (c *UpdateCommand) Type() CommandType { return CmdUpdate }

// BufferEdits decodes the edits of a Buffer update.
func (c *UpdateCommand) BufferEdits() []Edit {
	if c.Handle.Type != ResourceBuffer {
		panic("frontend: not a buffer update")
	}
	edits := make([]Edit, c.Edits)
	for i := range edits {
		p := c.payload[i*bufferEditSize:]
		edits[i] = Edit{
			Sink:   Sink(binary.LittleEndian.Uint32(p)),
			Offset: binary.LittleEndian.Uint32(p[4:]),
			Size:   binary.LittleEndian.Uint32(p[8:]),
		}
	}
	return edits
}

// TextureEdits decodes the edits of a texture update. One and two
// dimensional edits have their unused axes set to zero offset and unit
// size.
func (c *UpdateCommand) TextureEdits() []TextureEdit[Extent3D] {
	if c.Handle.Type == ResourceBuffer {
		panic("frontend: not a texture update")
	}
	edits := make([]TextureEdit[Extent3D], c.Edits)
	for i := range edits {
		p := c.payload[i*textureEditSize:]
		u := func(j int) int { return int(binary.LittleEndian.Uint32(p[j*4:])) }
		edits[i] = TextureEdit[Extent3D]{
			Level:  u(0),
			Offset: Extent3D{u(1), u(2), u(3)},
			Size:   Extent3D{u(4), u(5), u(6)},
		}
	}
	return edits
}

func encodeBufferEdits(dst []byte, edits []Edit) {
	for i, e := range edits {
		p := dst[i*bufferEditSize:]
		binary.LittleEndian.PutUint32(p, uint32(e.Sink))
		binary.LittleEndian.PutUint32(p[4:], e.Offset)
		binary.LittleEndian.PutUint32(p[8:], e.Size)
	}
}

func encodeTextureEdits[D extent[D]](dst []byte, edits []TextureEdit[D]) {
	for i, e := range edits {
		p := dst[i*textureEditSize:]
		off, size := e.Offset.extent3D(), e.Size.extent3D()
		if _, is1D := any(e.Offset).(Extent1D); is1D {
			off = Extent3D{off.Width, 0, 0}
		} else if _, is2D := any(e.Offset).(Extent2D); is2D {
			off = Extent3D{off.Width, off.Height, 0}
		}
		for j, v := range [7]int{e.Level, off.Width, off.Height, off.Depth, size.Width, size.Height, size.Depth} {
			binary.LittleEndian.PutUint32(p[j*4:], uint32(v))
		}
	}
}

// MaxDrawBuffers is the maximum number of color attachments a draw or
// clear writes.
const MaxDrawBuffers = 8

// DrawBuffers selects target attachments by index.
type DrawBuffers struct {
	n       uint8
	indices [MaxDrawBuffers]uint8
}

// NewDrawBuffers returns DrawBuffers selecting the given attachments.
func NewDrawBuffers(indices ...int) DrawBuffers {
	var b DrawBuffers
	for _, i := range indices {
		b.Add(i)
	}
	return b
}

// Add appends an attachment index.
func (b *DrawBuffers) Add(i int) {
	if int(b.n) == MaxDrawBuffers {
		panic("frontend: too many draw buffers")
	}
	if i < 0 || i >= MaxDrawBuffers {
		panic(fmt.Sprintf("frontend: draw buffer %d out of range", i))
	}
	b.indices[b.n] = uint8(i)
	b.n++
}

func (b DrawBuffers) Len() int       { return int(b.n) }
func (b DrawBuffers) IsEmpty() bool  { return b.n == 0 }
func (b DrawBuffers) At(i int) int   { return int(b.indices[i]) }
func (b DrawBuffers) Indices() []int { return toInts(b.indices[:b.n]) }

func toInts(b []uint8) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// MaxDrawTextures is the maximum number of textures a draw samples.
const MaxDrawTextures = 8

// DrawTextures lists the textures a draw samples, in unit order.
type DrawTextures struct {
	n        uint8
	textures [MaxDrawTextures]Texture
}

// Add appends t and returns its texture unit.
func (d *DrawTextures) Add(t Texture) int {
	if int(d.n) == MaxDrawTextures {
		panic("frontend: too many draw textures")
	}
	d.textures[d.n] = t
	d.n++
	return int(d.n) - 1
}

func (d *DrawTextures) Len() int         { return int(d.n) }
func (d *DrawTextures) At(i int) Texture { return d.textures[i] }
func (d *DrawTextures) Clear()           { *d = DrawTextures{} }
func (d *DrawTextures) IsEmpty() bool    { return d.n == 0 }

// PrimitiveType is the topology of a draw.
type PrimitiveType uint8

const (
	PrimitiveTriangles PrimitiveType = iota
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
	PrimitivePoints
	PrimitiveLines
)

// ClearMask selects what a Clear writes.
type ClearMask uint32

const (
	ClearDepth   ClearMask = 1 << 0
	ClearStencil ClearMask = 1 << 1
)

// ClearColor returns the mask bit for draw buffer i.
func ClearColor(i int) ClearMask { return 1 << (2 + i) }

// Colors returns the per-draw-buffer color bits.
func (m ClearMask) Colors() uint32 { return uint32(m >> 2) }

// DrawParams describes a draw call. A nil Buffer draws without vertex
// input, generating vertices in the shader.
type DrawParams struct {
	State        State
	Target       *Target
	DrawBuffers  DrawBuffers
	Buffer       *Buffer
	Program      *Program
	Count        int
	Offset       int
	Instances    int
	BaseVertex   int
	BaseInstance int
	Primitive    PrimitiveType
	Textures     DrawTextures
}

// DrawCommand is a recorded draw.
type DrawCommand struct {
	header
	DrawParams
	DirtyUniforms uint64
	// Uniforms holds the dirty uniform values in uniform index order.
	Uniforms []byte
}

func (c *DrawCommand) Type() CommandType { return CmdDraw }

// ClearCommand is a recorded clear.
type ClearCommand struct {
	header
	State        State
	Target       *Target
	DrawBuffers  DrawBuffers
	ClearDepth   bool
	ClearStencil bool
	ClearColors  uint32
	DepthValue   float32
	StencilValue uint8
	ColorValues  [MaxDrawBuffers]gputypes.Color
}

func (c *ClearCommand) Type() CommandType { return CmdClear }

// BlitCommand copies one attachment into another target's attachment.
type BlitCommand struct {
	header
	State         State
	SrcTarget     *Target
	SrcAttachment int
	DstTarget     *Target
	DstAttachment int
}

func (c *BlitCommand) Type() CommandType { return CmdBlit }

// DownloadCommand reads an attachment region back into a Downloader.
type DownloadCommand struct {
	header
	SrcTarget     *Target
	SrcAttachment int
	Offset        Extent2D
	Downloader    *Downloader
}

func (c *DownloadCommand) Type() CommandType { return CmdDownload }

// ProfileCommand marks a named section in the command stream.
type ProfileCommand struct {
	header
	Name string
}

func (c *ProfileCommand) Type() CommandType { return CmdProfile }
