package frontend

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gputypes"
)

// BufferType describes how often a buffer's contents change.
type BufferType uint8

const (
	BufferStatic BufferType = iota
	BufferDynamic
)

// ElementType is the index format of a buffer's element sink.
type ElementType uint8

const (
	ElementNone ElementType = iota
	ElementU8
	ElementU16
	ElementU32
)

// Size returns the byte size of one element.
func (e ElementType) Size() uint32 {
	switch e {
	case ElementU8:
		return 1
	case ElementU16:
		return 2
	case ElementU32:
		return 4
	}
	return 0
}

// Sink is one of the three byte streams a draw call can reference.
type Sink uint8

const (
	SinkVertices Sink = iota
	SinkElements
	SinkInstances

	sinkCount
)

var sinkNames = [...]string{
	SinkVertices:  "Vertices",
	SinkElements:  "Elements",
	SinkInstances: "Instances",
}

func (s Sink) String() string {
	if int(s) < len(sinkNames) {
		return sinkNames[s]
	}
	return fmt.Sprintf("Sink(%d)", s)
}

// Attribute is one vertex or instance attribute.
type Attribute struct {
	Location uint32
	Format   gputypes.VertexFormat
	Offset   uint32
}

// BufferFormat describes the layout of a Buffer. Formats with equal
// hashes share an Arena.
type BufferFormat struct {
	Type               BufferType
	ElementType        ElementType
	VertexStride       uint32
	InstanceStride     uint32
	VertexAttributes   []Attribute
	InstanceAttributes []Attribute

	hash      uint64
	finalized bool
}

// Finalize validates the format and computes its hash. It panics if the
// vertex stride is missing or instance attributes lack a stride.
func (f *BufferFormat) Finalize() {
	if f.VertexStride == 0 {
		panic("frontend: buffer format without vertex stride")
	}
	if len(f.InstanceAttributes) > 0 && f.InstanceStride == 0 {
		panic("frontend: instanced buffer format without instance stride")
	}

	h := fnv.New64a()
	hashWriteUint32(h, uint32(f.Type))
	hashWriteUint32(h, uint32(f.ElementType))
	hashWriteUint32(h, f.VertexStride)
	hashWriteUint32(h, f.InstanceStride)
	for _, attrs := range [2][]Attribute{f.VertexAttributes, f.InstanceAttributes} {
		//nolint:gosec // G115: attribute count is bounded by vertex input limits
		hashWriteUint32(h, uint32(len(attrs)))
		for _, a := range attrs {
			hashWriteUint32(h, a.Location)
			hashWriteUint32(h, uint32(a.Format))
			hashWriteUint32(h, a.Offset)
		}
	}
	f.hash = h.Sum64()
	f.finalized = true
}

// Hash returns the value computed by Finalize.
func (f *BufferFormat) Hash() uint64 {
	if !f.finalized {
		panic("frontend: buffer format not finalized")
	}
	return f.hash
}

// Equal reports whether two formats describe the same layout.
func (f *BufferFormat) Equal(o *BufferFormat) bool {
	if f.Type != o.Type || f.ElementType != o.ElementType ||
		f.VertexStride != o.VertexStride || f.InstanceStride != o.InstanceStride ||
		len(f.VertexAttributes) != len(o.VertexAttributes) ||
		len(f.InstanceAttributes) != len(o.InstanceAttributes) {
		return false
	}
	for i := range f.VertexAttributes {
		if f.VertexAttributes[i] != o.VertexAttributes[i] {
			return false
		}
	}
	for i := range f.InstanceAttributes {
		if f.InstanceAttributes[i] != o.InstanceAttributes[i] {
			return false
		}
	}
	return true
}

// IsIndexed reports whether the format has an element sink.
func (f *BufferFormat) IsIndexed() bool { return f.ElementType != ElementNone }

// IsInstanced reports whether the format has an instance sink.
func (f *BufferFormat) IsInstanced() bool { return f.InstanceStride != 0 }

// ElementSize returns the byte size of one index.
func (f *BufferFormat) ElementSize() uint32 { return f.ElementType.Size() }

func (f *BufferFormat) stride(s Sink) uint32 {
	switch s {
	case SinkVertices:
		return f.VertexStride
	case SinkElements:
		return f.ElementSize()
	default:
		return f.InstanceStride
	}
}

func (f *BufferFormat) clone() BufferFormat {
	c := *f
	c.VertexAttributes = append([]Attribute(nil), f.VertexAttributes...)
	c.InstanceAttributes = append([]Attribute(nil), f.InstanceAttributes...)
	return c
}

// Edit is a byte range of one sink that the backend must re-upload.
type Edit struct {
	Sink   Sink
	Offset uint32
	Size   uint32
}

// Buffer holds vertex, element and instance bytes for draws.
type Buffer struct {
	resource

	format   BufferFormat
	recorded bool
	stores   [sinkCount][]byte
	edits    []Edit
}

// RecordFormat sets the buffer layout, finalizing it if needed.
func (b *Buffer) RecordFormat(f BufferFormat) {
	b.mustBeLive("RecordFormat")
	if !f.finalized {
		f.Finalize()
	}
	b.format = f.clone()
	b.recorded = true
}

// Format returns the recorded layout.
func (b *Buffer) Format() *BufferFormat { return &b.format }

// Store returns the bytes of sink s.
func (b *Buffer) Store(s Sink) []byte { return b.stores[s] }

// Size returns the total bytes across all sinks.
func (b *Buffer) Size() int {
	return len(b.stores[SinkVertices]) + len(b.stores[SinkElements]) + len(b.stores[SinkInstances])
}

// MapVertices resizes the vertex sink to size bytes and returns it.
func (b *Buffer) MapVertices(size int) ([]byte, error) { return b.mapSink(SinkVertices, size) }

// MapElements resizes the element sink to size bytes and returns it.
func (b *Buffer) MapElements(size int) ([]byte, error) { return b.mapSink(SinkElements, size) }

// MapInstances resizes the instance sink to size bytes and returns it.
func (b *Buffer) MapInstances(size int) ([]byte, error) { return b.mapSink(SinkInstances, size) }

// WriteVertices replaces the vertex sink with data.
func (b *Buffer) WriteVertices(data []byte) error { return b.writeSink(SinkVertices, data) }

// WriteElements replaces the element sink with data.
func (b *Buffer) WriteElements(data []byte) error { return b.writeSink(SinkElements, data) }

// WriteInstances replaces the instance sink with data.
func (b *Buffer) WriteInstances(data []byte) error { return b.writeSink(SinkInstances, data) }

// RecordVerticesEdit marks a vertex byte range for re-upload.
func (b *Buffer) RecordVerticesEdit(offset, size uint32) {
	b.recordSinkEdit(SinkVertices, offset, size)
}

// RecordElementsEdit marks an element byte range for re-upload.
func (b *Buffer) RecordElementsEdit(offset, size uint32) {
	b.recordSinkEdit(SinkElements, offset, size)
}

// RecordInstancesEdit marks an instance byte range for re-upload.
func (b *Buffer) RecordInstancesEdit(offset, size uint32) {
	b.recordSinkEdit(SinkInstances, offset, size)
}

// Edits returns the edits recorded since the last Process.
func (b *Buffer) Edits() []Edit { return b.edits }

// BytesForEdits returns the total size of the pending edits.
func (b *Buffer) BytesForEdits() int64 {
	var n int64
	for _, e := range b.edits {
		n += int64(e.Size)
	}
	return n
}

// Validate reports whether the buffer can be initialized.
func (b *Buffer) Validate() error {
	if !b.recorded {
		return errors.New("format not recorded")
	}
	return nil
}

func (b *Buffer) checkSink(s Sink) {
	switch s {
	case SinkElements:
		if !b.format.IsIndexed() {
			panic("frontend: element sink on non-indexed buffer")
		}
	case SinkInstances:
		if !b.format.IsInstanced() {
			panic("frontend: instance sink on non-instanced buffer")
		}
	}
}

func (b *Buffer) mapSink(s Sink, size int) ([]byte, error) {
	b.mustBeLive("Map")
	if size == 0 {
		return nil, nil
	}
	b.checkSink(s)
	if stride := b.format.stride(s); size%int(stride) != 0 {
		panic(fmt.Sprintf("frontend: %s size %d not a multiple of stride %d", s, size, stride))
	}
	if !b.resizeStore(s, size) {
		return nil, ErrOutOfMemory
	}
	return b.stores[s], nil
}

func (b *Buffer) writeSink(s Sink, data []byte) error {
	dst, err := b.mapSink(s, len(data))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (b *Buffer) recordSinkEdit(s Sink, offset, size uint32) {
	if size == 0 {
		return
	}
	b.checkSink(s)
	if uint64(offset)+uint64(size) > uint64(len(b.stores[s])) {
		panic(fmt.Sprintf("frontend: %s edit [%d,%d) out of bounds", s, offset, uint64(offset)+uint64(size)))
	}
	b.edits = append(b.edits, Edit{Sink: s, Offset: offset, Size: size})
}

// resizeStore sets the length of sink s, charging growth to the context
// allocator. Existing bytes are preserved.
func (b *Buffer) resizeStore(s Sink, size int) bool {
	store := b.stores[s]
	delta := int64(size - len(store))
	if delta > 0 && !b.ctx.alloc.Acquire(delta) {
		return false
	}
	if delta < 0 {
		b.ctx.alloc.Release(-delta)
	}
	if size <= cap(store) {
		if size > len(store) {
			clear(store[len(store):size])
		}
		b.stores[s] = store[:size]
	} else {
		grown := make([]byte, size, max(size, cap(store)*3/2))
		copy(grown, store)
		b.stores[s] = grown
	}
	b.setUsage(int64(b.Size()))
	return true
}

func (b *Buffer) clearEdits() { b.edits = b.edits[:0] }

// release returns the store bytes to the allocator before the slot is
// reused.
func (b *Buffer) release() {
	for s := range b.stores {
		b.ctx.alloc.Release(int64(len(b.stores[s])))
		b.stores[s] = nil
	}
	b.setUsage(0)
}
