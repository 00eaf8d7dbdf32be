package frontend

import (
	"github.com/gogpu/gputypes"
)

// Draw records a draw call. Contract violations panic: an empty viewport,
// no draw buffers, no program, a zero count, offsets or instances on a
// draw without a buffer, instances on a non-instanced buffer, a base
// vertex on a non-indexed buffer, or a sampled texture that is also a
// selected attachment of the target.
func (c *Context) Draw(tag Tag, p DrawParams) error {
	switch {
	case p.State.Viewport.Rect.Area() <= 0:
		panic("frontend: draw with empty viewport")
	case p.DrawBuffers.IsEmpty():
		panic("frontend: draw without draw buffers")
	case p.Target == nil:
		panic("frontend: draw without target")
	case p.Program == nil:
		panic("frontend: draw without program")
	case p.Count == 0:
		panic("frontend: empty draw call")
	}

	instances := 1
	if p.Buffer == nil {
		if p.Offset != 0 || p.Instances != 0 || p.BaseVertex != 0 || p.BaseInstance != 0 {
			panic("frontend: bufferless draw with offset, instances or base")
		}
	} else {
		if p.Instances != 0 {
			if !p.Buffer.format.IsInstanced() {
				panic("frontend: instanced draw requires instanced buffer")
			}
			instances = p.Instances
		}
		if p.BaseVertex != 0 && !p.Buffer.format.IsIndexed() {
			panic("frontend: base vertex draw requires indexed buffer")
		}
	}
	for i := range p.Textures.Len() {
		if p.Target.HasFeedback(p.Textures.At(i), p.DrawBuffers) {
			panic("frontend: draw forms texture and target feedback loop")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p.Target.mustBeLive("Draw")
	p.Program.mustBeLive("Draw")
	if p.Buffer != nil {
		p.Buffer.mustBeLive("Draw")
	}
	size := p.Program.DirtyUniformsSize()
	cmd := &DrawCommand{header: header{tag}, DrawParams: p, DirtyUniforms: p.Program.DirtyUniforms()}
	payload, err := c.record(cmd, size)
	if err != nil {
		return err
	}
	cmd.State.Flush()
	cmd.Uniforms = payload[:size]
	p.Program.FlushDirtyUniforms(cmd.Uniforms)

	c.countDraw(p.Primitive, int64(p.Count), int64(instances))
	c.counts.footprint.add(int64(size))
	c.counts.drawCalls.add(1)
	if p.Instances > 0 {
		c.counts.instancedDrawCalls.add(1)
	}
	return nil
}

func (c *Context) countDraw(prim PrimitiveType, count, instances int64) {
	c.counts.vertices.add(count * instances)
	switch prim {
	case PrimitiveLines:
		c.counts.lines.add(count / 2 * instances)
	case PrimitivePoints:
		c.counts.points.add(count * instances)
	case PrimitiveTriangleStrip, PrimitiveTriangleFan:
		c.counts.triangles.add(max(count-2, 0) * instances)
	case PrimitiveTriangles:
		c.counts.triangles.add(count / 3 * instances)
	}
}

// ClearParams describes a Clear. Colors holds one value per draw buffer
// selected by the mask.
type ClearParams struct {
	State       State
	Target      *Target
	DrawBuffers DrawBuffers
	Mask        ClearMask
	Depth       float32
	Stencil     uint8
	Colors      [MaxDrawBuffers]gputypes.Color
}

// Clear records a clear of the attachments selected by p.Mask.
func (c *Context) Clear(tag Tag, p ClearParams) error {
	switch {
	case p.State.Viewport.Rect.Area() <= 0:
		panic("frontend: clear with empty viewport")
	case p.Target == nil:
		panic("frontend: clear without target")
	case p.DrawBuffers.IsEmpty():
		panic("frontend: clear without draw buffers")
	case p.Mask == 0:
		panic("frontend: empty clear")
	}

	cmd := &ClearCommand{
		header:       header{tag},
		State:        p.State,
		Target:       p.Target,
		DrawBuffers:  p.DrawBuffers,
		ClearDepth:   p.Mask&ClearDepth != 0,
		ClearStencil: p.Mask&ClearStencil != 0,
		ClearColors:  p.Mask.Colors(),
	}
	if cmd.ClearDepth {
		cmd.DepthValue = p.Depth
	}
	if cmd.ClearStencil {
		cmd.StencilValue = p.Stencil
	}
	for i := range MaxDrawBuffers {
		if cmd.ClearColors&(1<<i) != 0 {
			cmd.ColorValues[i] = p.Colors[i]
		}
	}
	cmd.State.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	p.Target.mustBeLive("Clear")
	if _, err := c.record(cmd, 0); err != nil {
		return err
	}
	c.counts.clearCalls.add(1)
	return nil
}

// Blit records a copy from an attachment of src into an attachment of
// dst. Both must be distinct 2D color attachments with the same kind of
// color data, and src must not be the swapchain.
func (c *Context) Blit(tag Tag, state State, src *Target, srcAttachment int, dst *Target, dstAttachment int) error {
	if src == dst {
		panic("frontend: cannot blit to self")
	}
	if src.IsSwapchain() {
		panic("frontend: cannot use swapchain as blit source")
	}
	if srcAttachment < 0 || srcAttachment >= len(src.attachments) {
		panic("frontend: blit source attachment out of bounds")
	}
	if dstAttachment < 0 || dstAttachment >= len(dst.attachments) {
		panic("frontend: blit destination attachment out of bounds")
	}
	sa, da := src.attachments[srcAttachment], dst.attachments[dstAttachment]
	if sa.Kind != AttachmentTexture2D || da.Kind != AttachmentTexture2D {
		panic("frontend: blit attachments must be 2D textures")
	}
	if sa.Texture2D == da.Texture2D {
		panic("frontend: cannot blit attachment to itself")
	}
	if !sa.Texture2D.IsColorFormat() || !da.Texture2D.IsColorFormat() {
		panic("frontend: blit requires color attachments")
	}
	if sa.Texture2D.IsFloatColor() != da.Texture2D.IsFloatColor() {
		panic("frontend: incompatible formats between blit attachments")
	}

	cmd := &BlitCommand{
		header:        header{tag},
		State:         state,
		SrcTarget:     src,
		SrcAttachment: srcAttachment,
		DstTarget:     dst,
		DstAttachment: dstAttachment,
	}
	cmd.State.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()

	src.mustBeLive("Blit")
	dst.mustBeLive("Blit")
	if _, err := c.record(cmd, 0); err != nil {
		return err
	}
	c.counts.blitCalls.add(1)
	return nil
}

// Download records a readback of an attachment of src, starting at
// offset, into d.
func (c *Context) Download(tag Tag, src *Target, attachment int, offset Extent2D, d *Downloader) error {
	if attachment < 0 || attachment >= len(src.attachments) {
		panic("frontend: download attachment out of bounds")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	src.mustBeLive("Download")
	d.mustBeLive("Download")
	_, err := c.record(&DownloadCommand{
		header:        header{tag},
		SrcTarget:     src,
		SrcAttachment: attachment,
		Offset:        offset,
		Downloader:    d,
	}, 0)
	return err
}

// Profile records a named marker in the command stream.
func (c *Context) Profile(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.record(&ProfileCommand{header: header{Tag{Description: "profile"}}, Name: name}, 0)
	return err
}
