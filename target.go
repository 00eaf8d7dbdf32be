package frontend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// AttachmentKind identifies what a color attachment refers to.
type AttachmentKind uint8

const (
	AttachmentTexture2D AttachmentKind = iota
	AttachmentTextureCM
)

// Attachment is one color attachment of a Target.
type Attachment struct {
	Kind      AttachmentKind
	Level     int
	Texture2D *Texture2D
	TextureCM *TextureCM
	Face      CubeFace
}

// Texture returns the attached texture.
func (a Attachment) Texture() Texture {
	if a.Kind == AttachmentTextureCM {
		return a.TextureCM
	}
	return a.Texture2D
}

// Target is a set of attachments that draws, clears and blits write to.
type Target struct {
	resource

	attachments   []Attachment
	depth         *Texture2D
	stencil       *Texture2D
	ownsDepth     bool
	ownsStencil   bool
	dimensions    Extent2D
	hasDimensions bool
	swapchain     bool
}

// Attachments returns the color attachments in index order.
func (t *Target) Attachments() []Attachment { return t.attachments }

// DepthTexture returns the depth attachment, which is also the stencil
// attachment for combined formats.
func (t *Target) DepthTexture() *Texture2D { return t.depth }

// StencilTexture returns the stencil attachment.
func (t *Target) StencilTexture() *Texture2D { return t.stencil }

func (t *Target) HasDepth() bool       { return t.depth != nil }
func (t *Target) HasStencil() bool     { return t.stencil != nil }
func (t *Target) Dimensions() Extent2D { return t.dimensions }
func (t *Target) IsSwapchain() bool    { return t.swapchain }

func (t *Target) setDimensions(d Extent2D) {
	if t.hasDimensions {
		if d != t.dimensions {
			panic(fmt.Sprintf("frontend: attachment %dx%d does not match target %dx%d",
				d.Width, d.Height, t.dimensions.Width, t.dimensions.Height))
		}
		return
	}
	t.dimensions = d
	t.hasDimensions = true
}

func (t *Target) checkAttachable(op string) {
	t.mustBeLive(op)
	if t.swapchain {
		panic("frontend: cannot attach to swapchain")
	}
}

// AttachTexture appends level of tex as the next color attachment.
func (t *Target) AttachTexture(tex *Texture2D, level int) {
	t.checkAttachable("AttachTexture")
	if tex.Type() != TextureAttachment {
		panic("frontend: texture is not attachable")
	}
	if level < 0 || level >= len(tex.levelInfo) {
		panic(fmt.Sprintf("frontend: attachment level %d out of range", level))
	}
	for _, a := range t.attachments {
		if a.Kind == AttachmentTexture2D && a.Texture2D == tex {
			panic("frontend: texture already attached")
		}
	}
	t.setDimensions(tex.levelInfo[level].Dimensions)
	t.attachments = append(t.attachments, Attachment{Kind: AttachmentTexture2D, Level: level, Texture2D: tex})
	t.updateUsage()
}

// AttachCubemap appends one face of one level of tex as the next color
// attachment.
func (t *Target) AttachCubemap(tex *TextureCM, face CubeFace, level int) {
	t.checkAttachable("AttachCubemap")
	if tex.Type() != TextureAttachment {
		panic("frontend: texture is not attachable")
	}
	if level < 0 || level >= len(tex.levelInfo) {
		panic(fmt.Sprintf("frontend: attachment level %d out of range", level))
	}
	for _, a := range t.attachments {
		if a.Kind == AttachmentTextureCM && a.TextureCM == tex && a.Face == face {
			panic("frontend: cube map face already attached")
		}
	}
	t.setDimensions(tex.levelInfo[level].Dimensions)
	t.attachments = append(t.attachments, Attachment{Kind: AttachmentTextureCM, Level: level, TextureCM: tex, Face: face})
	t.updateUsage()
}

// AttachDepth attaches an existing depth texture.
func (t *Target) AttachDepth(tex *Texture2D) {
	t.checkAttachable("AttachDepth")
	if t.depth != nil || t.stencil != nil {
		panic("frontend: depth or stencil already attached")
	}
	if !tex.IsDepthFormat() || tex.Type() != TextureAttachment {
		panic("frontend: not a depth attachment texture")
	}
	t.setDimensions(tex.Dimensions())
	t.depth = tex
	t.updateUsage()
}

// AttachStencil attaches an existing stencil texture.
func (t *Target) AttachStencil(tex *Texture2D) {
	t.checkAttachable("AttachStencil")
	if t.depth != nil || t.stencil != nil {
		panic("frontend: depth or stencil already attached")
	}
	if !tex.IsStencilFormat() || tex.Type() != TextureAttachment {
		panic("frontend: not a stencil attachment texture")
	}
	t.setDimensions(tex.Dimensions())
	t.stencil = tex
	t.updateUsage()
}

// AttachDepthStencil attaches a combined depth-stencil texture.
func (t *Target) AttachDepthStencil(tex *Texture2D) {
	t.checkAttachable("AttachDepthStencil")
	if t.depth != nil || t.stencil != nil {
		panic("frontend: depth or stencil already attached")
	}
	if !tex.IsDepthFormat() || !tex.IsStencilFormat() || tex.Type() != TextureAttachment {
		panic("frontend: not a depth stencil attachment texture")
	}
	t.setDimensions(tex.Dimensions())
	t.depth, t.stencil = tex, tex
	t.updateUsage()
}

// RequestDepth creates and attaches a depth texture owned by the target.
// It is destroyed with the target.
func (t *Target) RequestDepth(format gputypes.TextureFormat, d Extent2D) error {
	if !isDepthFormat(format) {
		panic("frontend: not a depth format")
	}
	tex, err := t.requestTexture("target depth", format, d)
	if err != nil {
		return err
	}
	t.AttachDepth(tex)
	t.ownsDepth = true
	return nil
}

// RequestDepthStencil creates and attaches a combined depth-stencil
// texture owned by the target.
func (t *Target) RequestDepthStencil(format gputypes.TextureFormat, d Extent2D) error {
	if !isStencilFormat(format) {
		panic("frontend: not a depth stencil format")
	}
	tex, err := t.requestTexture("target depth stencil", format, d)
	if err != nil {
		return err
	}
	t.AttachDepthStencil(tex)
	t.ownsDepth, t.ownsStencil = true, true
	return nil
}

func (t *Target) requestTexture(desc string, format gputypes.TextureFormat, d Extent2D) (*Texture2D, error) {
	t.checkAttachable("Request")
	if t.depth != nil || t.stencil != nil {
		panic("frontend: depth or stencil already attached")
	}
	tag := Tag{Description: desc}
	tex, err := t.ctx.CreateTexture2D(tag)
	if err != nil {
		return nil, fmt.Errorf("frontend: request %s: %w", desc, err)
	}
	tex.RecordFormat(format)
	tex.RecordType(TextureAttachment)
	tex.RecordLevels(1)
	tex.RecordDimensions(d)
	tex.RecordWrap(WrapClampToEdge, WrapClampToEdge)
	if err := t.ctx.InitializeTexture2D(tag, tex); err != nil {
		t.ctx.DestroyTexture2D(tag, tex)
		return nil, fmt.Errorf("frontend: request %s: %w", desc, err)
	}
	return tex, nil
}

// HasFeedback reports whether tex is one of the attachments selected by
// buffers, which would make a draw sample what it writes.
func (t *Target) HasFeedback(tex Texture, buffers DrawBuffers) bool {
	if tex == nil {
		return false
	}
	h := tex.Handle()
	for i := 0; i < buffers.Len(); i++ {
		idx := buffers.At(i)
		if idx < len(t.attachments) && t.attachments[idx].Texture().Handle() == h {
			return true
		}
	}
	return false
}

// Validate reports whether the target can be initialized.
func (t *Target) Validate() error {
	if !t.hasDimensions {
		return errors.New("dimensions not recorded")
	}
	if t.swapchain {
		if len(t.attachments) != 1 {
			return errors.New("swapchain target must have exactly one attachment")
		}
		return nil
	}
	if len(t.attachments) == 0 && t.depth == nil && t.stencil == nil {
		return errors.New("no attachments")
	}
	return nil
}

// ownedTextures returns the textures the target created and must destroy.
func (t *Target) ownedTextures() []*Texture2D {
	switch {
	case t.ownsDepth:
		return []*Texture2D{t.depth}
	case t.ownsStencil:
		return []*Texture2D{t.stencil}
	}
	return nil
}

func (t *Target) release() { t.setUsage(0) }

func (t *Target) updateUsage() {
	var n int64
	add := func(tex Texture, d Extent2D) {
		n += int64(d.area() * BytesPerPixel(tex.Format()))
	}
	for _, a := range t.attachments {
		add(a.Texture(), t.dimensions)
	}
	if t.depth != nil {
		add(t.depth, t.dimensions)
	}
	if t.stencil != nil && t.stencil != t.depth {
		add(t.stencil, t.dimensions)
	}
	t.setUsage(n)
}
