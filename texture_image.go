package frontend

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	xdraw "golang.org/x/image/draw"
)

// WriteImage fills level 0 of an RGBA8 or BGRA8 texture from img. The
// image bounds must match the recorded dimensions. Other levels are left
// untouched; call GenerateMipmaps to fill them.
func (t *Texture2D) WriteImage(img image.Image) error {
	t.mustBeLive("WriteImage")
	b := img.Bounds()
	if b.Dx() != t.dimensions.Width || b.Dy() != t.dimensions.Height {
		return fmt.Errorf("frontend: image %dx%d does not match texture %dx%d",
			b.Dx(), b.Dy(), t.dimensions.Width, t.dimensions.Height)
	}
	if len(t.data) != t.chainSize() {
		if _, err := t.MapData(t.chainSize()); err != nil {
			return err
		}
	}

	level := t.levelImage(0)
	if level == nil {
		return fmt.Errorf("frontend: WriteImage needs an RGBA8 or BGRA8 format, have %v", t.format)
	}
	xdraw.Draw(level, level.Bounds(), img, b.Min, xdraw.Src)
	if t.format == gputypes.TextureFormatBGRA8Unorm {
		swapRedBlue(level.Pix)
	}
	return nil
}

// GenerateMipmaps fills levels 1 and up by bilinear downsampling of the
// level above. BGRA data is filtered as if it were RGBA; the filter is
// channel independent.
func (t *Texture2D) GenerateMipmaps() error {
	t.mustBeLive("GenerateMipmaps")
	if len(t.data) != t.chainSize() {
		return fmt.Errorf("frontend: texture data not written")
	}
	for i := 1; i < len(t.levelInfo); i++ {
		src, dst := t.levelImage(i-1), t.levelImage(i)
		if src == nil {
			return fmt.Errorf("frontend: GenerateMipmaps needs an RGBA8 or BGRA8 format, have %v", t.format)
		}
		xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}
	return nil
}

// levelImage views level i of an 8-bit four channel texture as an RGBA
// image sharing the texture's data.
func (t *Texture2D) levelImage(i int) *image.RGBA {
	if t.format != gputypes.TextureFormatRGBA8Unorm && t.format != gputypes.TextureFormatBGRA8Unorm {
		return nil
	}
	info := t.levelInfo[i]
	w, h := info.Dimensions.Width, info.Dimensions.Height
	return &image.RGBA{
		Pix:    t.data[info.Offset : info.Offset+info.Size],
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}
}

func swapRedBlue(pix []byte) {
	for i := 0; i+3 < len(pix); i += 4 {
		pix[i], pix[i+2] = pix[i+2], pix[i]
	}
}
