package frontend

import (
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextureLevels(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	tex, err := ctx.CreateTexture2D(Tag{})
	require.NoError(t, err)
	defer ctx.DestroyTexture2D(Tag{}, tex)

	tex.RecordFormat(gputypes.TextureFormatRGBA8Unorm)
	tex.RecordType(TextureStatic)
	tex.RecordDimensions(Extent2D{8, 2})
	assert.Equal(t, 4, tex.MaxLevels())
	tex.RecordLevels(4)

	want := []LevelInfo[Extent2D]{
		{Offset: 0, Size: 64, Dimensions: Extent2D{8, 2}},
		{Offset: 64, Size: 16, Dimensions: Extent2D{4, 1}},
		{Offset: 80, Size: 8, Dimensions: Extent2D{2, 1}},
		{Offset: 88, Size: 4, Dimensions: Extent2D{1, 1}},
	}
	for i, w := range want {
		assert.Equal(t, w, tex.LevelInfo(i), "level %d", i)
	}

	assert.Panics(t, func() { _, _ = tex.MapData(10) }, "size must match the chain")
	_, err = tex.MapData(92)
	require.NoError(t, err)
	assert.Equal(t, int64(92), tex.Usage())
	assert.Panics(t, func() { tex.RecordEdit(0, Extent2D{}, Extent2D{1, 1}) }, "static texture")
}

func TestTextureValidate(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	tex, err := ctx.CreateTexture3D(Tag{})
	require.NoError(t, err)
	defer ctx.DestroyTexture3D(Tag{}, tex)

	assert.EqualError(t, tex.Validate(), "format not recorded")
	tex.RecordFormat(gputypes.TextureFormatR8Unorm)
	assert.EqualError(t, tex.Validate(), "type not recorded")
	tex.RecordType(TextureDynamic)
	assert.EqualError(t, tex.Validate(), "dimensions not recorded")
	tex.RecordDimensions(Extent3D{4, 4, 4})
	assert.EqualError(t, tex.Validate(), "levels not recorded")
	tex.RecordLevels(4)
	assert.Error(t, tex.Validate(), "more levels than a full chain")
	tex.RecordLevels(3)
	assert.NoError(t, tex.Validate())

	tex.RecordDimensions(Extent3D{4096, 1, 1})
	tex.RecordLevels(1)
	assert.Error(t, tex.Validate(), "over the dimension limit")
}

func TestTextureWriteImage(t *testing.T) {
	ctx, _ := newTestContext(t)
	defer ctx.Close()

	tex, err := ctx.CreateTexture2D(Tag{})
	require.NoError(t, err)
	defer ctx.DestroyTexture2D(Tag{}, tex)
	tex.RecordFormat(gputypes.TextureFormatBGRA8Unorm)
	tex.RecordType(TextureStatic)
	tex.RecordLevels(2)
	tex.RecordDimensions(Extent2D{2, 2})

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for y := range 2 {
		for x := range 2 {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 40, A: 255})
		}
	}
	require.NoError(t, tex.WriteImage(img))
	assert.Equal(t, []byte{40, 100, 200, 255}, tex.Data()[:4], "stored as BGRA")

	require.NoError(t, tex.GenerateMipmaps())
	mip := tex.Data()[tex.LevelInfo(1).Offset:]
	assert.Equal(t, []byte{40, 100, 200, 255}, mip[:4])

	assert.Error(t, tex.WriteImage(image.NewRGBA(image.Rect(0, 0, 3, 3))))
}
