package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunNull(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frame.png")
	var buf bytes.Buffer
	err := run(config{backend: "null", frames: 10, width: 32, height: 16, quads: 5, output: out}, &buf)
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "null: 10 frames at 32x16")
	assert.Contains(t, buf.String(), "draws 5")
	assert.Contains(t, buf.String(), "last frame saved to")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestRunRejects(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, run(config{backend: "nope", frames: 1, width: 8, height: 8, quads: 1}, &buf))
	assert.Error(t, run(config{backend: "null", frames: 1, width: 8, height: 8, quads: 0}, &buf))
}
