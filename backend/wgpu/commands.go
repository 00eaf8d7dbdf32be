// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// copyPitchAlignment is the BytesPerRow alignment of texture to buffer
// copies.
const copyPitchAlignment = 256

func (b *Backend) resource(c *frontend.ResourceCommand) error {
	switch c.Kind {
	case frontend.CmdConstruct:
		return b.construct(c.Handle, c.Resource)
	case frontend.CmdDestroy:
		return b.destroy(c.Handle)
	}
	return nil
}

func (b *Backend) construct(h frontend.Handle, res frontend.Resource) error {
	switch r := res.(type) {
	case *frontend.Buffer:
		return b.constructBuffer(h, r)
	case *frontend.Program:
		p, err := b.constructProgram(r)
		if err != nil {
			return err
		}
		b.programs[h] = p
	case *frontend.Target:
		b.targets[h] = struct{}{}
	case *frontend.Downloader:
		d, err := b.constructDownloader(r)
		if err != nil {
			return err
		}
		b.downloaders[h] = d
	default:
		d, err := describe(res)
		if err != nil {
			return err
		}
		g, err := b.createTexture(d)
		if err != nil {
			return err
		}
		b.textures[h] = g
	}
	return nil
}

// destroy waits for in-flight work before releasing native objects that
// earlier commands may still reference.
func (b *Backend) destroy(h frontend.Handle) error {
	if err := b.wait(); err != nil {
		return err
	}
	switch h.Type {
	case frontend.ResourceBuffer:
		if g, ok := b.buffers[h]; ok {
			g.destroy(b.device)
			delete(b.buffers, h)
		}
	case frontend.ResourceProgram:
		if p, ok := b.programs[h]; ok {
			p.destroy(b.device)
			delete(b.programs, h)
		}
	case frontend.ResourceTarget:
		delete(b.targets, h)
	case frontend.ResourceDownloader:
		if d, ok := b.downloaders[h]; ok {
			d.destroy(b.device)
			delete(b.downloaders, h)
		}
	default:
		if g, ok := b.textures[h]; ok {
			g.destroy(b.device)
			delete(b.textures, h)
		}
	}
	return nil
}

func (b *Backend) update(c *frontend.UpdateCommand) error {
	if c.Handle.Type == frontend.ResourceBuffer {
		g, ok := b.buffers[c.Handle]
		if !ok {
			return fmt.Errorf("unknown buffer %s", c.Handle)
		}
		return b.updateBuffer(g, c.Resource.(*frontend.Buffer), c.BufferEdits())
	}
	g, ok := b.textures[c.Handle]
	if !ok {
		return fmt.Errorf("unknown texture %s", c.Handle)
	}
	d, err := describe(c.Resource)
	if err != nil {
		return err
	}
	if !sameShape(&d, &g.desc) {
		resized, err := b.createTexture(d)
		if err != nil {
			return err
		}
		if err := b.wait(); err != nil {
			return err
		}
		g.destroy(b.device)
		b.textures[c.Handle] = resized
		return nil
	}
	g.desc.data = d.data
	return b.updateTexture(g, c.TextureEdits())
}

func sameShape(a, b *textureDesc) bool {
	if a.format != b.format || a.layers != b.layers || len(a.levels) != len(b.levels) {
		return false
	}
	return a.levels[0].dims == b.levels[0].dims
}

// renderPass describes the attachments a draw or clear writes.
type renderPass struct {
	colors  []hal.RenderPassColorAttachment
	depth   *hal.RenderPassDepthStencilAttachment
	formats targetFormats
	dims    frontend.Extent2D
}

func (b *Backend) renderPass(t *frontend.Target, buffers frontend.DrawBuffers) (renderPass, error) {
	if _, ok := b.targets[t.Handle()]; !ok {
		return renderPass{}, fmt.Errorf("unknown target %s", t.Handle())
	}
	rp := renderPass{dims: t.Dimensions()}
	atts := t.Attachments()
	for i := range buffers.Len() {
		idx := buffers.At(i)
		if idx >= len(atts) {
			return rp, fmt.Errorf("draw buffer %d: target has %d attachments", idx, len(atts))
		}
		att := atts[idx]
		g, err := b.texture(att.Texture())
		if err != nil {
			return rp, err
		}
		layer := 0
		if att.Kind == frontend.AttachmentTextureCM {
			layer = int(att.Face)
		}
		view, err := b.attachmentView(g, att.Level, layer)
		if err != nil {
			return rp, err
		}
		rp.colors = append(rp.colors, hal.RenderPassColorAttachment{
			View:    view,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		})
		rp.formats.colors[i] = g.desc.format
	}
	rp.formats.n = buffers.Len()

	ds := t.DepthTexture()
	if ds == nil {
		ds = t.StencilTexture()
	}
	if ds != nil {
		g, err := b.texture(ds)
		if err != nil {
			return rp, err
		}
		view, err := b.attachmentView(g, 0, 0)
		if err != nil {
			return rp, err
		}
		rp.depth = &hal.RenderPassDepthStencilAttachment{
			View:              view,
			DepthLoadOp:       gputypes.LoadOpLoad,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpLoad,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		}
		rp.formats.depth = g.desc.format
	}
	return rp, nil
}

// setDynamicState applies the viewport, scissor and stencil reference.
// Rectangles are clamped to the attachment.
func setDynamicState(enc hal.RenderPassEncoder, s *frontend.State, dims frontend.Extent2D) {
	vp := s.Viewport.Rect
	enc.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	sc := frontend.Rect{Width: int32(dims.Width), Height: int32(dims.Height)}
	if s.Scissor.Enabled {
		sc = clampRect(s.Scissor.Rect, dims)
	}
	enc.SetScissorRect(uint32(sc.X), uint32(sc.Y), uint32(sc.Width), uint32(sc.Height))
	if s.Stencil.Enabled {
		enc.SetStencilReference(uint32(s.Stencil.Reference))
	}
}

func clampRect(r frontend.Rect, dims frontend.Extent2D) frontend.Rect {
	x0 := min(max(r.X, 0), int32(dims.Width))
	y0 := min(max(r.Y, 0), int32(dims.Height))
	x1 := min(max(r.X+r.Width, x0), int32(dims.Width))
	y1 := min(max(r.Y+r.Height, y0), int32(dims.Height))
	return frontend.Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

func (b *Backend) clear(c *frontend.ClearCommand) error {
	pass, err := b.renderPass(c.Target, c.DrawBuffers)
	if err != nil {
		return err
	}
	for i := range pass.colors {
		if c.ClearColors&(1<<i) != 0 {
			pass.colors[i].LoadOp = gputypes.LoadOpClear
			pass.colors[i].ClearValue = c.ColorValues[i]
		}
	}
	if pass.depth != nil {
		if c.ClearDepth {
			pass.depth.DepthLoadOp = gputypes.LoadOpClear
			pass.depth.DepthClearValue = c.DepthValue
		}
		if c.ClearStencil {
			pass.depth.StencilLoadOp = gputypes.LoadOpClear
			pass.depth.StencilClearValue = uint32(c.StencilValue)
		}
	}

	encoder, err := b.beginEncoding(c.Tag().Description)
	if err != nil {
		return err
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  c.Tag().Description,
		ColorAttachments:       pass.colors,
		DepthStencilAttachment: pass.depth,
	})
	rp.End()
	return b.submit(encoder)
}

func (b *Backend) draw(c *frontend.DrawCommand) error {
	p, ok := b.programs[c.Program.Handle()]
	if !ok {
		return fmt.Errorf("unknown program %s", c.Program.Handle())
	}
	if err := p.flush(b, c.DirtyUniforms, c.Uniforms); err != nil {
		return err
	}
	var buf *gpuBuffer
	if c.Buffer != nil {
		if buf, ok = b.buffers[c.Buffer.Handle()]; !ok {
			return fmt.Errorf("unknown buffer %s", c.Buffer.Handle())
		}
		if buf.bufs[frontend.SinkVertices] == nil {
			return fmt.Errorf("buffer %s has no vertices", c.Buffer.Handle())
		}
	}
	pass, err := b.renderPass(c.Target, c.DrawBuffers)
	if err != nil {
		return err
	}
	pipeline, err := b.pipeline(p, c, pass.formats)
	if err != nil {
		return err
	}
	bg, err := b.bindGroup(p, &c.Textures)
	if err != nil {
		return err
	}

	encoder, err := b.beginEncoding(c.Tag().Description)
	if err != nil {
		return err
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:                  c.Tag().Description,
		ColorAttachments:       pass.colors,
		DepthStencilAttachment: pass.depth,
	})
	rp.SetPipeline(pipeline)
	rp.SetBindGroup(0, bg, nil)
	setDynamicState(rp, &c.State, pass.dims)

	instances := uint32(max(c.Instances, 1))
	indexed := false
	if buf != nil {
		format := c.Buffer.Format()
		rp.SetVertexBuffer(0, buf.bufs[frontend.SinkVertices], 0)
		if format.IsInstanced() && buf.bufs[frontend.SinkInstances] != nil {
			rp.SetVertexBuffer(1, buf.bufs[frontend.SinkInstances], 0)
		}
		if format.IsIndexed() && buf.bufs[frontend.SinkElements] != nil {
			rp.SetIndexBuffer(buf.bufs[frontend.SinkElements], indexFormat(format.ElementType), 0)
			indexed = true
		}
	}
	if indexed {
		rp.DrawIndexed(uint32(c.Count), instances, uint32(c.Offset), int32(c.BaseVertex), uint32(c.BaseInstance))
	} else {
		rp.Draw(uint32(c.Count), instances, uint32(c.Offset), uint32(c.BaseInstance))
	}
	rp.End()
	return b.submit(encoder)
}

// attachmentCopy resolves a 2D attachment to its texture and copy base.
func (b *Backend) attachmentCopy(t *frontend.Target, index int) (*gpuTexture, hal.ImageCopyTexture, frontend.Extent3D, error) {
	atts := t.Attachments()
	if index >= len(atts) {
		return nil, hal.ImageCopyTexture{}, frontend.Extent3D{}, fmt.Errorf("attachment %d of %d", index, len(atts))
	}
	att := atts[index]
	g, err := b.texture(att.Texture())
	if err != nil {
		return nil, hal.ImageCopyTexture{}, frontend.Extent3D{}, err
	}
	base := hal.ImageCopyTexture{Texture: g.tex, MipLevel: uint32(att.Level)}
	if att.Kind == frontend.AttachmentTextureCM {
		base.Origin = hal.Origin3D{Z: uint32(att.Face)}
	}
	return g, base, g.desc.levels[att.Level].dims, nil
}

func (b *Backend) blit(c *frontend.BlitCommand) error {
	_, src, srcDims, err := b.attachmentCopy(c.SrcTarget, c.SrcAttachment)
	if err != nil {
		return err
	}
	_, dst, dstDims, err := b.attachmentCopy(c.DstTarget, c.DstAttachment)
	if err != nil {
		return err
	}
	encoder, err := b.beginEncoding(c.Tag().Description)
	if err != nil {
		return err
	}
	encoder.CopyTextureToTexture(src.Texture, dst.Texture, []hal.TextureCopy{{
		SrcBase: src,
		DstBase: dst,
		Size: hal.Extent3D{
			Width:              uint32(min(srcDims.Width, dstDims.Width)),
			Height:             uint32(min(srcDims.Height, dstDims.Height)),
			DepthOrArrayLayers: 1,
		},
	}})
	return b.submit(encoder)
}

// gpuDownloader owns the staging buffer one readback lands in.
type gpuDownloader struct {
	staging     hal.Buffer
	bytesPerRow uint32
	alignedRow  uint32
	rows        uint32
}

func (b *Backend) constructDownloader(src *frontend.Downloader) (*gpuDownloader, error) {
	dims := src.Dimensions()
	bytesPerRow := uint32(dims.Width * frontend.BytesPerPixel(src.Format()))
	aligned := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: src.Tag().Description + "_staging",
		Size:  uint64(aligned) * uint64(dims.Height),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	return &gpuDownloader{staging: staging, bytesPerRow: bytesPerRow, alignedRow: aligned, rows: uint32(dims.Height)}, nil
}

func (d *gpuDownloader) destroy(device hal.Device) {
	if d.staging != nil {
		device.DestroyBuffer(d.staging)
		d.staging = nil
	}
}

// download copies the attachment region into the staging buffer, waits
// for the GPU and completes the Downloader with tightly packed rows.
func (b *Backend) download(c *frontend.DownloadCommand) error {
	d, ok := b.downloaders[c.Downloader.Handle()]
	if !ok {
		return fmt.Errorf("unknown downloader %s", c.Downloader.Handle())
	}
	g, base, dims, err := b.attachmentCopy(c.SrcTarget, c.SrcAttachment)
	if err != nil {
		return err
	}
	if frontend.BytesPerPixel(g.desc.format) != frontend.BytesPerPixel(c.Downloader.Format()) {
		return fmt.Errorf("attachment format %v does not match downloader format %v", g.desc.format, c.Downloader.Format())
	}
	size := c.Downloader.Dimensions()
	if c.Offset.Width+size.Width > dims.Width || c.Offset.Height+size.Height > dims.Height {
		return fmt.Errorf("download region %v+%v outside %dx%d attachment", c.Offset, size, dims.Width, dims.Height)
	}
	base.Origin.X = uint32(c.Offset.Width)
	base.Origin.Y = uint32(c.Offset.Height)

	encoder, err := b.beginEncoding(c.Tag().Description)
	if err != nil {
		return err
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: g.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})
	encoder.CopyTextureToBuffer(g.tex, d.staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: d.alignedRow, RowsPerImage: d.rows},
		TextureBase:  base,
		Size:         hal.Extent3D{Width: uint32(size.Width), Height: uint32(size.Height), DepthOrArrayLayers: 1},
	}})
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: g.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})
	if err := b.submit(encoder); err != nil {
		return err
	}
	if err := b.wait(); err != nil {
		return err
	}

	readback := make([]byte, uint64(d.alignedRow)*uint64(d.rows))
	if err := b.queue.ReadBuffer(d.staging, 0, readback); err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	c.Downloader.Complete(unpadRows(readback, d.bytesPerRow, d.alignedRow, d.rows))
	return nil
}

// unpadRows strips the per-row copy padding.
func unpadRows(data []byte, bytesPerRow, alignedRow, rows uint32) []byte {
	if bytesPerRow == alignedRow {
		return data
	}
	tight := make([]byte, uint64(bytesPerRow)*uint64(rows))
	for row := range rows {
		copy(tight[row*bytesPerRow:(row+1)*bytesPerRow], data[row*alignedRow:row*alignedRow+bytesPerRow])
	}
	return tight
}
