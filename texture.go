package frontend

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// TextureType describes how a texture's contents are produced.
type TextureType uint8

const (
	textureTypeUnset TextureType = iota
	// TextureAttachment textures are rendered to through a Target.
	TextureAttachment
	// TextureStatic textures are uploaded once at initialization.
	TextureStatic
	// TextureDynamic textures accept edits through RecordEdit.
	TextureDynamic
)

// WrapType is a texture addressing mode.
type WrapType uint8

const (
	WrapClampToEdge WrapType = iota
	WrapClampToBorder
	WrapRepeat
	WrapMirroredRepeat
	WrapMirrorClampToEdge
)

// FilterOptions selects texture sampling.
type FilterOptions struct {
	Bilinear  bool
	Trilinear bool
	Mipmaps   bool
}

// CubeFace selects one face of a cube map.
type CubeFace uint8

const (
	CubeFaceRight CubeFace = iota
	CubeFaceLeft
	CubeFaceTop
	CubeFaceBottom
	CubeFaceFront
	CubeFaceBack
)

// Extent1D is the size of a one-dimensional texture level.
type Extent1D struct{ Width int }

// Extent2D is the size of a two-dimensional texture level.
type Extent2D struct{ Width, Height int }

// Extent3D is the size of a three-dimensional texture level.
type Extent3D struct{ Width, Height, Depth int }

type extent[D any] interface {
	comparable
	area() int
	half() D
	maxSide() int
	contains(offset, size D) bool
	extent3D() Extent3D
}

func (e Extent1D) area() int { return e.Width }

func (e Extent1D) half() Extent1D { return Extent1D{max(e.Width/2, 1)} }

func (e Extent1D) maxSide() int { return e.Width }

func (e Extent1D) contains(o, s Extent1D) bool {
	return o.Width >= 0 && s.Width >= 0 && o.Width+s.Width <= e.Width
}

func (e Extent1D) extent3D() Extent3D { return Extent3D{e.Width, 1, 1} }

func (e Extent2D) area() int { return e.Width * e.Height }

func (e Extent2D) half() Extent2D {
	return Extent2D{max(e.Width/2, 1), max(e.Height/2, 1)}
}

func (e Extent2D) maxSide() int { return max(e.Width, e.Height) }

func (e Extent2D) contains(o, s Extent2D) bool {
	return Extent1D{e.Width}.contains(Extent1D{o.Width}, Extent1D{s.Width}) &&
		Extent1D{e.Height}.contains(Extent1D{o.Height}, Extent1D{s.Height})
}

func (e Extent2D) extent3D() Extent3D { return Extent3D{e.Width, e.Height, 1} }

func (e Extent3D) area() int { return e.Width * e.Height * e.Depth }

func (e Extent3D) half() Extent3D {
	return Extent3D{max(e.Width/2, 1), max(e.Height/2, 1), max(e.Depth/2, 1)}
}

func (e Extent3D) maxSide() int { return max(e.Width, e.Height, e.Depth) }

func (e Extent3D) contains(o, s Extent3D) bool {
	return Extent2D{e.Width, e.Height}.contains(Extent2D{o.Width, o.Height}, Extent2D{s.Width, s.Height}) &&
		Extent1D{e.Depth}.contains(Extent1D{o.Depth}, Extent1D{s.Depth})
}

func (e Extent3D) extent3D() Extent3D { return e }

// LevelInfo locates one mip level inside a texture's data.
type LevelInfo[D any] struct {
	Offset     int
	Size       int
	Dimensions D
}

// TextureEdit is a region of one level that the backend must re-upload.
type TextureEdit[D any] struct {
	Level  int
	Offset D
	Size   D
}

// Texture is the common view of every texture kind.
type Texture interface {
	Handle() Handle
	Format() gputypes.TextureFormat
	Lifecycle() Lifecycle
	IsColorFormat() bool
}

// BytesPerPixel returns the size of one texel of f, or 0 for formats the
// frontend does not know.
func BytesPerPixel(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return 1
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatDepth32Float, gputypes.TextureFormatDepth24Plus:
		return 4
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float:
		return 16
	}
	return 0
}

func isDepthFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth24PlusStencil8:
		return true
	}
	return false
}

func isStencilFormat(f gputypes.TextureFormat) bool {
	return f == gputypes.TextureFormatDepth24PlusStencil8
}

func isFloatColorFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA16Float, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatRG32Float:
		return true
	}
	return false
}

// texture holds the state shared by every texture kind.
type texture[D extent[D]] struct {
	resource

	format     gputypes.TextureFormat
	kind       TextureType
	filter     FilterOptions
	wrap       [3]WrapType
	dimensions D
	levels     int
	faces      int
	levelInfo  []LevelInfo[D]
	data       []byte
	edits      []TextureEdit[D]
	swapchain  bool
}

// RecordFormat sets the texel format.
func (t *texture[D]) RecordFormat(f gputypes.TextureFormat) {
	t.mustBeLive("RecordFormat")
	t.format = f
	t.updateLevels()
}

// RecordType sets how the texture is filled.
func (t *texture[D]) RecordType(k TextureType) {
	t.mustBeLive("RecordType")
	t.kind = k
}

// RecordFilter sets the sampling options.
func (t *texture[D]) RecordFilter(f FilterOptions) {
	t.mustBeLive("RecordFilter")
	t.filter = f
}

// RecordWrap sets the addressing mode per axis.
func (t *texture[D]) RecordWrap(w ...WrapType) {
	t.mustBeLive("RecordWrap")
	copy(t.wrap[:], w)
}

// RecordLevels sets the number of mip levels.
func (t *texture[D]) RecordLevels(n int) {
	t.mustBeLive("RecordLevels")
	t.levels = n
	t.updateLevels()
}

// RecordDimensions sets the size of level 0.
func (t *texture[D]) RecordDimensions(d D) {
	t.mustBeLive("RecordDimensions")
	t.dimensions = d
	t.updateLevels()
}

func (t *texture[D]) Format() gputypes.TextureFormat { return t.format }
func (t *texture[D]) Type() TextureType              { return t.kind }
func (t *texture[D]) Filter() FilterOptions          { return t.filter }
func (t *texture[D]) Wrap() [3]WrapType              { return t.wrap }
func (t *texture[D]) Dimensions() D                  { return t.dimensions }
func (t *texture[D]) Levels() int                    { return t.levels }
func (t *texture[D]) IsSwapchain() bool              { return t.swapchain }

// LevelInfo returns the placement of level i in Data.
func (t *texture[D]) LevelInfo(i int) LevelInfo[D] { return t.levelInfo[i] }

// Data returns every level's texels, level 0 first.
func (t *texture[D]) Data() []byte { return t.data }

// Edits returns the edits recorded since the last Process.
func (t *texture[D]) Edits() []TextureEdit[D] { return t.edits }

func (t *texture[D]) IsColorFormat() bool {
	return t.format != gputypes.TextureFormatUndefined && !isDepthFormat(t.format)
}
func (t *texture[D]) IsDepthFormat() bool   { return isDepthFormat(t.format) }
func (t *texture[D]) IsStencilFormat() bool { return isStencilFormat(t.format) }
func (t *texture[D]) IsFloatColor() bool    { return isFloatColorFormat(t.format) }

// MaxLevels returns the length of the full mip chain for the recorded
// dimensions.
func (t *texture[D]) MaxLevels() int {
	side := t.dimensions.maxSide()
	if side <= 0 {
		return 0
	}
	return bits.Len(uint(side))
}

func (t *texture[D]) updateLevels() {
	t.levelInfo = t.levelInfo[:0]
	bpp := BytesPerPixel(t.format)
	if t.levels <= 0 || t.dimensions.maxSide() <= 0 {
		return
	}
	d, offset := t.dimensions, 0
	for i := 0; i < t.levels; i++ {
		size := d.area() * bpp * t.faces
		t.levelInfo = append(t.levelInfo, LevelInfo[D]{Offset: offset, Size: size, Dimensions: d})
		offset += size
		d = d.half()
	}
}

func (t *texture[D]) chainSize() int {
	if n := len(t.levelInfo); n > 0 {
		last := t.levelInfo[n-1]
		return last.Offset + last.Size
	}
	return 0
}

// WriteData replaces the texel data of every level. len(data) must equal
// the size of the full recorded level chain.
func (t *texture[D]) WriteData(data []byte) error {
	dst, err := t.MapData(len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// MapData sizes the texel store to size bytes and returns it.
func (t *texture[D]) MapData(size int) ([]byte, error) {
	t.mustBeLive("MapData")
	if t.kind == TextureAttachment {
		panic("frontend: attachment textures have no client data")
	}
	if want := t.chainSize(); size != want {
		panic(fmt.Sprintf("frontend: texture data size %d, want %d", size, want))
	}
	delta := int64(size - len(t.data))
	if delta > 0 && !t.ctx.alloc.Acquire(delta) {
		return nil, ErrOutOfMemory
	}
	if delta < 0 {
		t.ctx.alloc.Release(-delta)
	}
	if size <= cap(t.data) {
		t.data = t.data[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, t.data)
		t.data = grown
	}
	t.setUsage(int64(size))
	return t.data, nil
}

// RecordEdit marks a region of a level of a dynamic texture for
// re-upload.
func (t *texture[D]) RecordEdit(level int, offset, size D) {
	t.mustBeLive("RecordEdit")
	if t.kind != TextureDynamic {
		panic("frontend: edit on non-dynamic texture")
	}
	if level < 0 || level >= len(t.levelInfo) {
		panic(fmt.Sprintf("frontend: edit level %d out of range", level))
	}
	if !t.levelInfo[level].Dimensions.contains(offset, size) {
		panic("frontend: texture edit out of bounds")
	}
	t.edits = append(t.edits, TextureEdit[D]{Level: level, Offset: offset, Size: size})
}

// Validate reports whether the texture can be initialized.
func (t *texture[D]) Validate() error {
	switch {
	case t.format == gputypes.TextureFormatUndefined:
		return errors.New("format not recorded")
	case t.kind == textureTypeUnset:
		return errors.New("type not recorded")
	case t.dimensions.maxSide() <= 0:
		return errors.New("dimensions not recorded")
	case t.levels <= 0:
		return errors.New("levels not recorded")
	case t.levels > t.MaxLevels():
		return fmt.Errorf("%d levels exceed the %d of a full chain", t.levels, t.MaxLevels())
	case t.kind == TextureAttachment && t.levels > 1 && !t.filter.Mipmaps:
		return errors.New("attachment levels require mipmap filtering")
	}
	if !t.swapchain && t.ctx != nil && t.dimensions.maxSide() > t.ctx.limits.MaxTextureDimension {
		return fmt.Errorf("dimension %d exceeds limit %d", t.dimensions.maxSide(), t.ctx.limits.MaxTextureDimension)
	}
	return nil
}

func (t *texture[D]) clearEdits() { t.edits = t.edits[:0] }

func (t *texture[D]) release() {
	t.ctx.alloc.Release(int64(len(t.data)))
	t.data = nil
	t.setUsage(0)
}

// Texture1D is a one-dimensional texture.
type Texture1D struct {
	texture[Extent1D]
}

// Texture2D is a two-dimensional texture.
type Texture2D struct {
	texture[Extent2D]
}

// Texture3D is a volume texture.
type Texture3D struct {
	texture[Extent3D]
}

// TextureCM is a cube map: six square faces per level, stored face by
// face within each level.
type TextureCM struct {
	texture[Extent2D]
}

// FaceOffset returns the offset of face f of level i within Data.
func (t *TextureCM) FaceOffset(level int, f CubeFace) int {
	info := t.levelInfo[level]
	return info.Offset + int(f)*(info.Size/6)
}
