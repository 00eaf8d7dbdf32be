// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// level locates one mip level inside a frontend texture's Data.
type level struct {
	offset int
	size   int
	dims   frontend.Extent3D
}

// textureDesc is the HAL view of a frontend texture.
type textureDesc struct {
	label   string
	format  gputypes.TextureFormat
	dim     gputypes.TextureDimension
	viewDim gputypes.TextureViewDimension
	layers  int
	levels  []level
	data    []byte
	usage   gputypes.TextureUsage
}

type viewKey struct {
	level uint32
	layer uint32
}

// gpuTexture is a HAL texture with its default view and the single-level
// views used as render attachments.
type gpuTexture struct {
	desc  textureDesc
	tex   hal.Texture
	view  hal.TextureView
	views map[viewKey]hal.TextureView
}

type chain[D any] interface {
	Levels() int
	LevelInfo(i int) frontend.LevelInfo[D]
}

func levelsOf[D any](t chain[D], to3D func(D) frontend.Extent3D) []level {
	out := make([]level, t.Levels())
	for i := range out {
		info := t.LevelInfo(i)
		out[i] = level{offset: info.Offset, size: info.Size, dims: to3D(info.Dimensions)}
	}
	return out
}

func describe(res frontend.Resource) (textureDesc, error) {
	const sampled = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
	d := textureDesc{label: res.Tag().Description, layers: 1}
	switch t := res.(type) {
	case *frontend.Texture1D:
		d.format, d.data = t.Format(), t.Data()
		d.dim, d.viewDim = gputypes.TextureDimension1D, gputypes.TextureViewDimension1D
		d.levels = levelsOf[frontend.Extent1D](t, func(e frontend.Extent1D) frontend.Extent3D {
			return frontend.Extent3D{Width: e.Width, Height: 1, Depth: 1}
		})
		d.usage = sampled
	case *frontend.Texture2D:
		d.format, d.data = t.Format(), t.Data()
		d.dim, d.viewDim = gputypes.TextureDimension2D, gputypes.TextureViewDimension2D
		d.levels = levelsOf[frontend.Extent2D](t, extent2D)
		d.usage = sampled | gputypes.TextureUsageRenderAttachment
	case *frontend.Texture3D:
		d.format, d.data = t.Format(), t.Data()
		d.dim, d.viewDim = gputypes.TextureDimension3D, gputypes.TextureViewDimension3D
		d.levels = levelsOf[frontend.Extent3D](t, func(e frontend.Extent3D) frontend.Extent3D { return e })
		d.usage = sampled
	case *frontend.TextureCM:
		d.format, d.data = t.Format(), t.Data()
		d.dim, d.viewDim = gputypes.TextureDimension2D, gputypes.TextureViewDimensionCube
		d.levels = levelsOf[frontend.Extent2D](t, extent2D)
		d.layers = 6
		d.usage = sampled | gputypes.TextureUsageRenderAttachment
	default:
		return d, fmt.Errorf("not a texture: %T", res)
	}
	if len(d.levels) == 0 {
		return d, errors.New("texture has no levels")
	}
	return d, nil
}

func extent2D(e frontend.Extent2D) frontend.Extent3D {
	return frontend.Extent3D{Width: e.Width, Height: e.Height, Depth: 1}
}

func (d *textureDesc) size() hal.Extent3D {
	base := d.levels[0].dims
	depth := base.Depth
	if d.layers > 1 {
		depth = d.layers
	}
	return hal.Extent3D{
		Width:              uint32(base.Width),
		Height:             uint32(base.Height),
		DepthOrArrayLayers: uint32(depth),
	}
}

func (b *Backend) createTexture(d textureDesc) (*gpuTexture, error) {
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         d.label,
		Size:          d.size(),
		MipLevelCount: uint32(len(d.levels)),
		SampleCount:   1,
		Dimension:     d.dim,
		Format:        d.format,
		Usage:         d.usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture: %w", err)
	}
	view, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         d.label + "_view",
		Format:        d.format,
		Dimension:     d.viewDim,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: uint32(len(d.levels)),
	})
	if err != nil {
		b.device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view: %w", err)
	}
	g := &gpuTexture{desc: d, tex: tex, view: view, views: make(map[viewKey]hal.TextureView)}
	b.uploadLevels(g)
	return g, nil
}

// uploadLevels writes every level present in the texture's data.
func (b *Backend) uploadLevels(g *gpuTexture) {
	d := &g.desc
	bpp := frontend.BytesPerPixel(d.format)
	for i, lv := range d.levels {
		if lv.offset+lv.size > len(d.data) {
			return
		}
		depth := lv.dims.Depth
		if d.layers > 1 {
			depth = d.layers
		}
		b.queue.WriteTexture(
			&hal.ImageCopyTexture{Texture: g.tex, MipLevel: uint32(i)},
			d.data[lv.offset:lv.offset+lv.size],
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(lv.dims.Width * bpp),
				RowsPerImage: uint32(lv.dims.Height),
			},
			&hal.Extent3D{
				Width:              uint32(lv.dims.Width),
				Height:             uint32(lv.dims.Height),
				DepthOrArrayLayers: uint32(depth),
			},
		)
	}
}

// updateTexture uploads the edited boxes straight out of the texture's
// data.
func (b *Backend) updateTexture(g *gpuTexture, edits []frontend.TextureEdit[frontend.Extent3D]) error {
	d := &g.desc
	bpp := frontend.BytesPerPixel(d.format)
	for _, e := range edits {
		if e.Level >= len(d.levels) {
			return fmt.Errorf("edit level %d out of %d", e.Level, len(d.levels))
		}
		lv := d.levels[e.Level]
		start := lv.offset + ((e.Offset.Depth*lv.dims.Height+e.Offset.Height)*lv.dims.Width+e.Offset.Width)*bpp
		if start >= lv.offset+lv.size || lv.offset+lv.size > len(d.data) {
			return fmt.Errorf("edit at level %d outside texture data", e.Level)
		}
		b.queue.WriteTexture(
			&hal.ImageCopyTexture{
				Texture:  g.tex,
				MipLevel: uint32(e.Level),
				Origin: hal.Origin3D{
					X: uint32(e.Offset.Width),
					Y: uint32(e.Offset.Height),
					Z: uint32(e.Offset.Depth),
				},
			},
			d.data[start:lv.offset+lv.size],
			&hal.ImageDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(lv.dims.Width * bpp),
				RowsPerImage: uint32(lv.dims.Height),
			},
			&hal.Extent3D{
				Width:              uint32(max(e.Size.Width, 1)),
				Height:             uint32(max(e.Size.Height, 1)),
				DepthOrArrayLayers: uint32(max(e.Size.Depth, 1)),
			},
		)
	}
	return nil
}

// attachmentView returns a 2D view of one level and layer.
func (b *Backend) attachmentView(g *gpuTexture, lvl, layer int) (hal.TextureView, error) {
	key := viewKey{level: uint32(lvl), layer: uint32(layer)}
	if v, ok := g.views[key]; ok {
		return v, nil
	}
	v, err := b.device.CreateTextureView(g.tex, &hal.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s_level%d_layer%d", g.desc.label, lvl, layer),
		Format:          g.desc.format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    key.level,
		MipLevelCount:   1,
		BaseArrayLayer:  key.layer,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create attachment view: %w", err)
	}
	g.views[key] = v
	return v, nil
}

// texture returns the native texture for t. The swapchain texture is
// recreated when the frontend resized it.
func (b *Backend) texture(t frontend.Texture) (*gpuTexture, error) {
	g, ok := b.textures[t.Handle()]
	if !ok {
		return nil, fmt.Errorf("unknown texture %s", t.Handle())
	}
	sc, ok := t.(*frontend.Texture2D)
	if !ok || !sc.IsSwapchain() {
		return g, nil
	}
	dims := sc.Dimensions()
	if base := g.desc.levels[0].dims; base.Width == dims.Width && base.Height == dims.Height {
		return g, nil
	}
	d, err := describe(sc)
	if err != nil {
		return nil, err
	}
	resized, err := b.createTexture(d)
	if err != nil {
		return nil, err
	}
	g.destroy(b.device)
	b.textures[t.Handle()] = resized
	b.log.Debug("wgpu: swapchain resized", "width", dims.Width, "height", dims.Height)
	return resized, nil
}

func (g *gpuTexture) destroy(device hal.Device) {
	for k, v := range g.views {
		device.DestroyTextureView(v)
		delete(g.views, k)
	}
	if g.view != nil {
		device.DestroyTextureView(g.view)
		g.view = nil
	}
	if g.tex != nil {
		device.DestroyTexture(g.tex)
		g.tex = nil
	}
}
