package frontend

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frontend/internal/command"
	"github.com/gogpu/frontend/internal/memory"
)

// editable is a resource whose pending edits are dropped once a Process
// call has handed them to the backend.
type editable interface {
	clearEdits()
}

// Context records resource and draw commands from any goroutine and hands
// them to a Backend once per frame.
//
// Every recording method takes one mutex, so commands are totally ordered
// by the order in which callers acquire it. Resources destroyed during a
// frame keep their pool slot until the Process call that executes their
// destroy command, or later with WithDeferredFrames.
type Context struct {
	mu      sync.Mutex
	backend Backend
	log     *slog.Logger
	alloc   memory.Allocator
	limits  Limits

	buffers     *kind[Buffer, *Buffer]
	targets     *kind[Target, *Target]
	programs    *kind[Program, *Program]
	textures1D  *kind[Texture1D, *Texture1D]
	textures2D  *kind[Texture2D, *Texture2D]
	textures3D  *kind[Texture3D, *Texture3D]
	texturesCM  *kind[TextureCM, *TextureCM]
	downloaders *kind[Downloader, *Downloader]
	kinds       [resourceTypeCount]slotReleaser

	cmdBuf   *command.Buffer
	commands []Command
	edited   []editable
	ringHead int
	deferred int
	arenas   map[uint64]*Arena
	closed   bool

	swapchainTexture *Texture2D
	swapchainTarget  *Target

	usage  [resourceTypeCount]atomic.Int64
	frame  atomic.Uint64
	counts frameCounters
	timer  *FrameTimer
}

// NewContext creates a Context that executes commands on backend.
func NewContext(backend Backend, opts ...ContextOption) (*Context, error) {
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.limits.Clamp()
	if o.allocator == nil {
		o.allocator = memory.NewUnlimited()
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	c := &Context{
		backend:  backend,
		log:      o.logger,
		alloc:    o.allocator,
		limits:   o.limits,
		cmdBuf:   command.New(o.allocator, o.limits.CommandMemory),
		deferred: o.deferredFrames,
		arenas:   make(map[uint64]*Arena),
		timer:    NewFrameTimer(),
	}
	c.timer.CapFPS(float64(o.maxFPS))

	if err := c.createPools(o); err != nil {
		c.releasePools()
		return nil, err
	}
	if err := c.createSwapchain(o); err != nil {
		c.releasePools()
		return nil, err
	}

	c.log.Info("frontend: context created",
		"backend", backend.Name(),
		"swapchain", fmt.Sprintf("%dx%d", o.width, o.height),
		"deferred_frames", o.deferredFrames)
	return c, nil
}

func (c *Context) createPools(o contextOptions) error {
	l, n := o.limits, o.deferredFrames
	var err error
	if c.buffers, err = newKind[Buffer](ResourceBuffer, c.alloc, l.MaxBuffers, n); err != nil {
		return err
	}
	c.kinds[ResourceBuffer] = c.buffers
	if c.targets, err = newKind[Target](ResourceTarget, c.alloc, l.MaxTargets, n); err != nil {
		return err
	}
	c.kinds[ResourceTarget] = c.targets
	if c.programs, err = newKind[Program](ResourceProgram, c.alloc, l.MaxPrograms, n); err != nil {
		return err
	}
	c.kinds[ResourceProgram] = c.programs
	if c.textures1D, err = newKind[Texture1D](ResourceTexture1D, c.alloc, l.MaxTextures1D, n); err != nil {
		return err
	}
	c.kinds[ResourceTexture1D] = c.textures1D
	if c.textures2D, err = newKind[Texture2D](ResourceTexture2D, c.alloc, l.MaxTextures2D, n); err != nil {
		return err
	}
	c.kinds[ResourceTexture2D] = c.textures2D
	if c.textures3D, err = newKind[Texture3D](ResourceTexture3D, c.alloc, l.MaxTextures3D, n); err != nil {
		return err
	}
	c.kinds[ResourceTexture3D] = c.textures3D
	if c.texturesCM, err = newKind[TextureCM](ResourceTextureCM, c.alloc, l.MaxTexturesCM, n); err != nil {
		return err
	}
	c.kinds[ResourceTextureCM] = c.texturesCM
	if c.downloaders, err = newKind[Downloader](ResourceDownloader, c.alloc, l.MaxDownloaders, n); err != nil {
		return err
	}
	c.kinds[ResourceDownloader] = c.downloaders
	return nil
}

// releasePools undoes a partially constructed Context. Nothing has been
// handed to the backend yet, so queued slots are released directly.
func (c *Context) releasePools() {
	for _, k := range c.kinds {
		if k == nil {
			continue
		}
		for i := range c.deferred {
			k.releaseSlot(i)
		}
		k.close()
	}
	c.cmdBuf.Release()
}

func (c *Context) createSwapchain(o contextOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tag := Tag{Description: "swapchain"}
	tex, err := c.textures2D.create(c, tag)
	if err != nil {
		return fmt.Errorf("frontend: swapchain texture: %w", err)
	}
	tex.faces = 1
	tex.swapchain = true
	tex.RecordFormat(o.swapchainFormat)
	tex.RecordType(TextureAttachment)
	tex.RecordLevels(1)
	tex.RecordDimensions(Extent2D{o.width, o.height})
	tex.RecordWrap(WrapClampToEdge, WrapClampToEdge)
	if err := c.initializeLocked(tag, tex); err != nil {
		c.textures2D.destroy(c, tag, tex)
		return fmt.Errorf("frontend: swapchain texture: %w", err)
	}

	target, err := c.targets.create(c, tag)
	if err != nil {
		c.textures2D.destroy(c, tag, tex)
		return fmt.Errorf("frontend: swapchain target: %w", err)
	}
	target.swapchain = true
	target.attachments = append(target.attachments, Attachment{Kind: AttachmentTexture2D, Texture2D: tex})
	target.setDimensions(tex.Dimensions())
	target.updateUsage()
	if err := c.initializeLocked(tag, target); err != nil {
		c.targets.destroy(c, tag, target)
		c.textures2D.destroy(c, tag, tex)
		return fmt.Errorf("frontend: swapchain target: %w", err)
	}

	c.swapchainTexture, c.swapchainTarget = tex, target
	return nil
}

// record appends cmd, charging its header and payload bytes to the
// command arena. The returned payload is zeroed.
func (c *Context) record(cmd Command, payload int) ([]byte, error) {
	buf, ok := c.cmdBuf.Allocate(command.HeaderSize + payload)
	if !ok {
		c.log.Warn("frontend: command buffer full",
			"command", cmd.Type(), "used", c.cmdBuf.Used(), "size", c.cmdBuf.Size())
		return nil, ErrCommandBufferFull
	}
	c.commands = append(c.commands, cmd)
	return buf[command.HeaderSize:], nil
}

// recordDestroy appends a destroy command. A destroy is recorded even
// when the arena is full, since dropping it would leak the pool slot.
func (c *Context) recordDestroy(tag Tag, r Resource) {
	cmd := &ResourceCommand{header: header{tag}, Kind: CmdDestroy, Handle: r.Handle(), Resource: r}
	if _, err := c.record(cmd, 0); err != nil {
		c.commands = append(c.commands, cmd)
	}
}

// Process hands every recorded command to the backend in recording
// order, then drops pending edits, releases the pool slots of destroyed
// resources whose deferral has elapsed, rewinds the command arena and
// publishes the frame statistics. It reports false when nothing was
// recorded.
func (c *Context) Process() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.commands) == 0 {
		return false
	}
	n := len(c.commands)
	c.counts.commandsRecorded.add(int64(n))

	for _, cmd := range c.commands {
		c.backend.Process(cmd)
	}

	for _, e := range c.edited {
		e.clearEdits()
	}
	clear(c.edited)
	c.edited = c.edited[:0]

	c.ringHead = (c.ringHead + 1) % c.deferred
	for _, k := range c.kinds {
		k.releaseSlot(c.ringHead)
	}

	clear(c.commands)
	c.commands = c.commands[:0]
	c.cmdBuf.Reset()

	c.counts.swap()
	c.log.Debug("frontend: processed", "commands", n, "frame", c.frame.Load())
	return true
}

// Swap presents the frame, advances the frame counter and updates the
// frame timer. It must be called from one goroutine.
func (c *Context) Swap() {
	c.backend.Swap()
	c.frame.Add(1)
	c.timer.Update()
}

// Resize changes the swapchain dimensions.
func (c *Context) Resize(width, height int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Extent2D{width, height}
	c.swapchainTexture.dimensions = d
	c.swapchainTexture.updateLevels()
	c.swapchainTarget.dimensions = d
	c.swapchainTarget.updateUsage()
}

// Swapchain returns the target presented by Swap.
func (c *Context) Swapchain() *Target { return c.swapchainTarget }

// SwapchainTexture returns the only attachment of the swapchain target.
func (c *Context) SwapchainTexture() *Texture2D { return c.swapchainTexture }

// Backend returns the backend commands are executed on.
func (c *Context) Backend() Backend { return c.backend }

// Limits returns the clamped limits the pools were sized with.
func (c *Context) Limits() Limits { return c.limits }

// Frame returns the number of Swap calls.
func (c *Context) Frame() uint64 { return c.frame.Load() }

// Timer returns the frame timer updated by Swap.
func (c *Context) Timer() *FrameTimer { return c.timer }

// Stats returns the pool statistics of resource type t.
func (c *Context) Stats(t ResourceType) Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kinds[t].stats(c)
}

// FrameStats returns the counters of the last processed frame.
func (c *Context) FrameStats() FrameStats { return c.counts.snapshot() }

// Arena returns the arena for format, creating it on first use. Formats
// with equal hashes share an arena.
func (c *Context) Arena(format *BufferFormat) (*Arena, error) {
	if !format.finalized {
		format.Finalize()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if a, ok := c.arenas[format.Hash()]; ok {
		return a, nil
	}
	a, err := newArenaLocked(c, format)
	if err != nil {
		return nil, err
	}
	c.arenas[format.Hash()] = a
	c.log.Debug("frontend: arena created", "hash", format.Hash(), "buffer", a.buffer.Handle())
	return a, nil
}

// Close destroys the swapchain, cached resources and arenas, processes
// the final commands and releases every pool. Releasing a pool that still
// holds a resource the caller never destroyed panics. Blocks outlive
// their arena: Destroy on them afterwards only resets them, and any other
// Block operation panics.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	tag := Tag{Description: "close"}
	c.destroyTargetLocked(tag, c.swapchainTarget)
	c.textures2D.destroy(c, tag, c.swapchainTexture)
	for _, k := range c.kinds {
		k.destroyCached(c)
	}
	for h, a := range c.arenas {
		a.destroyLocked()
		delete(c.arenas, h)
	}
	c.mu.Unlock()

	c.Process()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, k := range c.kinds {
		for i := range c.deferred {
			k.releaseSlot(i)
		}
		k.close()
	}
	c.cmdBuf.Release()

	c.log.Info("frontend: context closed", "frames", c.frame.Load())
	if err := c.backend.Close(); err != nil {
		return fmt.Errorf("frontend: close backend: %w", err)
	}
	return nil
}

// SwapchainFormat returns the texel format of the swapchain.
func (c *Context) SwapchainFormat() gputypes.TextureFormat { return c.swapchainTexture.Format() }
