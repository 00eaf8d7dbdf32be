package frontend

import (
	"errors"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// Downloader receives pixels read back from a target attachment. The
// backend fills it while executing a Download command.
type Downloader struct {
	resource

	format        gputypes.TextureFormat
	dimensions    Extent2D
	hasDimensions bool
	buffers       int
	pixels        []byte
	downloads     atomic.Int64
}

// RecordFormat sets the pixel format of the readback.
func (d *Downloader) RecordFormat(f gputypes.TextureFormat) {
	d.mustBeLive("RecordFormat")
	if d.format != gputypes.TextureFormatUndefined {
		panic("frontend: downloader format already recorded")
	}
	d.format = f
}

// RecordBuffers sets how many downloads must complete before the
// downloader is ready.
func (d *Downloader) RecordBuffers(n int) {
	d.mustBeLive("RecordBuffers")
	if d.buffers != 0 {
		panic("frontend: downloader buffers already recorded")
	}
	d.buffers = n
}

// RecordDimensions sets the readback size and allocates the pixel
// store. Format and buffers must be recorded first.
func (d *Downloader) RecordDimensions(e Extent2D) error {
	d.mustBeLive("RecordDimensions")
	switch {
	case d.hasDimensions:
		panic("frontend: downloader dimensions already recorded")
	case d.format == gputypes.TextureFormatUndefined:
		panic("frontend: downloader format not recorded")
	case d.buffers == 0:
		panic("frontend: downloader buffers not recorded")
	}
	size := e.area() * BytesPerPixel(d.format)
	if !d.ctx.alloc.Acquire(int64(size)) {
		return ErrOutOfMemory
	}
	d.pixels = make([]byte, size)
	d.dimensions = e
	d.hasDimensions = true
	d.setUsage(int64(size * d.buffers))
	return nil
}

func (d *Downloader) Format() gputypes.TextureFormat { return d.format }
func (d *Downloader) Dimensions() Extent2D           { return d.dimensions }
func (d *Downloader) Buffers() int                   { return d.buffers }

// Downloads returns the number of completed downloads.
func (d *Downloader) Downloads() int64 { return d.downloads.Load() }

// Ready reports whether enough downloads have completed for Pixels to
// hold a result.
func (d *Downloader) Ready() bool { return d.downloads.Load() >= int64(d.buffers) }

// Pixels returns the most recently downloaded pixels.
func (d *Downloader) Pixels() []byte { return d.pixels }

// Complete copies pixels into the downloader. Backends call it when a
// readback finishes.
func (d *Downloader) Complete(pixels []byte) {
	copy(d.pixels, pixels)
	d.downloads.Add(1)
}

// Validate reports whether the downloader can be initialized.
func (d *Downloader) Validate() error {
	if d.format == gputypes.TextureFormatUndefined {
		return errors.New("format not recorded")
	}
	if !d.hasDimensions {
		return errors.New("dimensions not recorded")
	}
	return nil
}

func (d *Downloader) release() {
	d.ctx.alloc.Release(int64(len(d.pixels)))
	d.pixels = nil
	d.setUsage(0)
}
