// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

const sinks = 3

// gpuBuffer holds one HAL buffer per non-empty sink.
type gpuBuffer struct {
	label string
	bufs  [sinks]hal.Buffer
	sizes [sinks]uint64
	// widen is set when 8-bit elements are uploaded as 16-bit indices.
	widen bool
}

var sinkUsage = [sinks]gputypes.BufferUsage{
	frontend.SinkVertices:  gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	frontend.SinkElements:  gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	frontend.SinkInstances: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
}

func (b *Backend) constructBuffer(h frontend.Handle, src *frontend.Buffer) error {
	g := &gpuBuffer{
		label: src.Tag().Description,
		widen: src.Format().ElementType == frontend.ElementU8,
	}
	for s := frontend.SinkVertices; s <= frontend.SinkInstances; s++ {
		if err := b.uploadSink(g, s, src.Store(s)); err != nil {
			g.destroy(b.device)
			return err
		}
	}
	b.buffers[h] = g
	return nil
}

// uploadSink makes the sink's HAL buffer at least as large as store and
// writes all of it.
func (b *Backend) uploadSink(g *gpuBuffer, s frontend.Sink, store []byte) error {
	if len(store) == 0 {
		return nil
	}
	data := g.sinkBytes(s, store)
	size := align4(uint64(len(data)))
	if g.bufs[s] == nil || g.sizes[s] < size {
		if g.bufs[s] != nil {
			b.device.DestroyBuffer(g.bufs[s])
		}
		buf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s_%s", g.label, s),
			Size:  size,
			Usage: sinkUsage[s],
		})
		if err != nil {
			g.bufs[s], g.sizes[s] = nil, 0
			return fmt.Errorf("create %s buffer: %w", s, err)
		}
		g.bufs[s], g.sizes[s] = buf, size
	}
	b.queue.WriteBuffer(g.bufs[s], 0, pad4(data))
	return nil
}

// updateBuffer uploads the edited ranges. A sink that outgrew its HAL
// buffer is recreated and uploaded whole.
func (b *Backend) updateBuffer(g *gpuBuffer, src *frontend.Buffer, edits []frontend.Edit) error {
	var regrown [sinks]bool
	for _, e := range edits {
		store := src.Store(e.Sink)
		if regrown[e.Sink] {
			continue
		}
		need := uint64(len(store))
		if g.widen && e.Sink == frontend.SinkElements {
			need *= 2
		}
		if g.bufs[e.Sink] == nil || g.sizes[e.Sink] < align4(need) {
			if err := b.uploadSink(g, e.Sink, store); err != nil {
				return err
			}
			regrown[e.Sink] = true
			continue
		}
		end := min(int(e.Offset)+int(e.Size), len(store))
		if int(e.Offset) >= end {
			continue
		}
		lo := int(e.Offset) &^ 3
		hi := min((end+3)&^3, len(store))
		data := g.sinkBytes(e.Sink, store[lo:hi])
		offset := uint64(lo)
		if g.widen && e.Sink == frontend.SinkElements {
			offset *= 2
		}
		b.queue.WriteBuffer(g.bufs[e.Sink], offset, pad4(data))
	}
	return nil
}

func (g *gpuBuffer) sinkBytes(s frontend.Sink, store []byte) []byte {
	if !g.widen || s != frontend.SinkElements {
		return store
	}
	out := make([]byte, 2*len(store))
	for i, v := range store {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func (g *gpuBuffer) destroy(device hal.Device) {
	for i, buf := range g.bufs {
		if buf != nil {
			device.DestroyBuffer(buf)
			g.bufs[i] = nil
		}
	}
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

// pad4 returns data extended with zeros to a multiple of four bytes.
func pad4(data []byte) []byte {
	if len(data)%4 == 0 {
		return data
	}
	out := make([]byte, align4(uint64(len(data))))
	copy(out, data)
	return out
}

func indexFormat(t frontend.ElementType) gputypes.IndexFormat {
	if t == frontend.ElementU32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}
