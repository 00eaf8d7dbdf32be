package frontend

import (
	"fmt"

	"github.com/gogpu/frontend/internal/region"
)

// NoOffset marks a Block sink that holds no bytes.
const NoOffset = ^uint32(0)

// Arena packs the geometry of many Blocks that share a BufferFormat into
// a single Buffer. Each sink of the Buffer is carved up by its own region
// list. An Arena must outlive its Blocks.
type Arena struct {
	ctx    *Context
	format BufferFormat
	buffer *Buffer
	lists  [sinkCount]*region.List
}

// newArenaLocked creates the shared buffer through the context. The
// caller holds ctx.mu.
func newArenaLocked(ctx *Context, format *BufferFormat) (*Arena, error) {
	tag := Tag{Description: "arena"}
	b, err := ctx.buffers.create(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("frontend: arena buffer: %w", err)
	}
	b.RecordFormat(*format)
	if err := ctx.initializeLocked(tag, b); err != nil {
		ctx.destroyBufferLocked(tag, b)
		return nil, fmt.Errorf("frontend: arena buffer: %w", err)
	}
	a := &Arena{ctx: ctx, format: b.format, buffer: b}
	for i := range a.lists {
		a.lists[i] = region.NewList(ctx.alloc)
	}
	return a, nil
}

// Buffer returns the shared buffer that draws with this arena's Blocks
// reference.
func (a *Arena) Buffer() *Buffer { return a.buffer }

// Format returns the layout shared by the arena's geometry.
func (a *Arena) Format() *BufferFormat { return &a.format }

// Block returns an empty Block in this arena.
func (a *Arena) Block() *Block {
	b := &Block{arena: a}
	for i := range b.ranges {
		b.ranges[i] = blockRange{Offset: NoOffset, Size: NoOffset}
	}
	return b
}

// Region is one allocated byte range of an arena sink.
type Region = region.Region

// Regions returns a copy of the regions of sink s.
func (a *Arena) Regions(s Sink) []Region {
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()
	return a.lists[s].Regions()
}

// destroyLocked destroys the shared buffer and releases the region
// lists. The caller holds ctx.mu.
func (a *Arena) destroyLocked() {
	a.ctx.destroyBufferLocked(Tag{Description: "arena"}, a.buffer)
	for _, l := range a.lists {
		l.Release()
	}
	a.buffer = nil
}

type blockRange struct {
	Offset uint32
	Size   uint32
}

// Block is one draw's share of an Arena: up to one byte range per sink.
// A Block is not safe for concurrent use. Different Blocks of an Arena may
// call Write*, Edit, Record*Edit and Destroy from different goroutines;
// slices returned by Map* must not be used concurrently with them.
type Block struct {
	arena  *Arena
	ranges [sinkCount]blockRange
}

// Arena returns the arena the block allocates from.
func (b *Block) Arena() *Arena { return b.arena }

// Range returns the offset and size of sink s in the shared buffer. The
// offset is NoOffset when the sink holds no bytes.
func (b *Block) Range(s Sink) (offset, size uint32) {
	r := b.ranges[s]
	if r.Offset == NoOffset {
		return NoOffset, 0
	}
	return r.Offset, r.Size
}

// MapVertices sizes the block's vertex range to size bytes and returns
// it. The bytes keep their contents when the range moves. The slice
// aliases the arena's store and is valid only until the next map, write
// or edit of any Block in the arena, which may reallocate the store. Use
// WriteVertices or Edit to fill the range safely.
func (b *Block) MapVertices(size int) ([]byte, error) { return b.mapSink(SinkVertices, size) }

// MapElements sizes the block's element range to size bytes.
func (b *Block) MapElements(size int) ([]byte, error) { return b.mapSink(SinkElements, size) }

// MapInstances sizes the block's instance range to size bytes.
func (b *Block) MapInstances(size int) ([]byte, error) { return b.mapSink(SinkInstances, size) }

// WriteVertices replaces the block's vertices with data and records an
// edit for them.
func (b *Block) WriteVertices(data []byte) error { return b.writeSink(SinkVertices, data) }

func (b *Block) WriteElements(data []byte) error  { return b.writeSink(SinkElements, data) }
func (b *Block) WriteInstances(data []byte) error { return b.writeSink(SinkInstances, data) }

// RecordVerticesEdit marks bytes [offset, offset+size) of the block's
// vertex range for re-upload.
func (b *Block) RecordVerticesEdit(offset, size uint32) { b.recordEdit(SinkVertices, offset, size) }

func (b *Block) RecordElementsEdit(offset, size uint32) { b.recordEdit(SinkElements, offset, size) }

func (b *Block) RecordInstancesEdit(offset, size uint32) {
	b.recordEdit(SinkInstances, offset, size)
}

// Edit calls fn with the block's current range of sink s and records an
// edit covering it. fn runs with the context locked and must not call
// back into the Context. An empty range calls fn with nil.
func (b *Block) Edit(s Sink, fn func(data []byte)) {
	a := b.arena
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	a.mustBeOpen("Edit")
	a.buffer.checkSink(s)
	r := b.ranges[s]
	if r.Offset == NoOffset {
		fn(nil)
		return
	}
	fn(a.buffer.stores[s][r.Offset : r.Offset+r.Size])
	a.buffer.recordSinkEdit(s, r.Offset, r.Size)
}

// BaseVertex returns the index of the block's first vertex in the shared
// buffer.
func (b *Block) BaseVertex() int { return b.base(SinkVertices) }

// BaseElement returns the index of the block's first element.
func (b *Block) BaseElement() int { return b.base(SinkElements) }

// BaseInstance returns the index of the block's first instance.
func (b *Block) BaseInstance() int { return b.base(SinkInstances) }

func (b *Block) base(s Sink) int {
	off := b.ranges[s].Offset
	if off == NoOffset {
		return 0
	}
	return int(off / b.arena.format.stride(s))
}

// Destroy returns the block's ranges to the arena. The block is empty
// afterwards and may be mapped again. After Context.Close it only resets
// the block.
func (b *Block) Destroy() {
	a := b.arena
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	if a.buffer == nil {
		for i := range b.ranges {
			b.ranges[i] = blockRange{Offset: NoOffset, Size: NoOffset}
		}
		return
	}
	for s := range b.ranges {
		b.freeRange(Sink(s))
	}
}

func (a *Arena) mustBeOpen(op string) {
	if a.buffer == nil {
		panic("frontend: " + op + " on block of closed arena")
	}
}

func (b *Block) freeRange(s Sink) {
	r := &b.ranges[s]
	if r.Offset == NoOffset {
		return
	}
	if !b.arena.lists[s].Deallocate(r.Offset) {
		panic("frontend: arena consistency error")
	}
	*r = blockRange{Offset: NoOffset, Size: NoOffset}
}

func (b *Block) mapSink(s Sink, size int) ([]byte, error) {
	b.arena.ctx.mu.Lock()
	defer b.arena.ctx.mu.Unlock()
	return b.mapSinkLocked(s, size)
}

// mapSinkLocked resizes the range of sink s. The caller holds ctx.mu.
func (b *Block) mapSinkLocked(s Sink, size int) ([]byte, error) {
	a := b.arena
	a.mustBeOpen("map")
	buf := a.buffer
	buf.checkSink(s)
	if size == 0 {
		b.freeRange(s)
		return nil, nil
	}
	if size > region.MaxSize {
		panic(fmt.Sprintf("frontend: %s map of %d bytes", s, size))
	}
	if stride := a.format.stride(s); size%int(stride) != 0 {
		panic(fmt.Sprintf("frontend: %s size %d not a multiple of stride %d", s, size, stride))
	}

	list := a.lists[s]
	r := &b.ranges[s]
	n := uint32(size)

	if r.Offset == NoOffset {
		off, ok := list.Allocate(n)
		if !ok {
			return nil, ErrOutOfMemory
		}
		if !a.growStore(s, off+n) {
			if !list.Deallocate(off) {
				panic("frontend: arena consistency error")
			}
			return nil, ErrOutOfMemory
		}
		*r = blockRange{Offset: off, Size: n}
		return buf.stores[s][off : off+n], nil
	}

	if n == r.Size {
		return buf.stores[s][r.Offset : r.Offset+n], nil
	}

	old := *r
	off, ok := list.Reallocate(old.Offset, n)
	if !ok {
		return nil, ErrOutOfMemory
	}
	if !a.growStore(s, off+n) {
		// Undo the reallocation. Releasing the new range and reserving
		// the old one needs no more region slots than the list held.
		if !list.Deallocate(off) || !list.Reserve(old.Offset, old.Size) {
			panic("frontend: arena consistency error")
		}
		return nil, ErrOutOfMemory
	}
	if off != old.Offset {
		store := buf.stores[s]
		keep := min(old.Size, n)
		copy(store[off:off+keep], store[old.Offset:old.Offset+keep])
		buf.recordSinkEdit(s, off, keep)
	}
	*r = blockRange{Offset: off, Size: n}
	return buf.stores[s][off : off+n], nil
}

// growStore extends sink s of the shared buffer to hold end bytes. Growth
// past the high-water mark is recorded as an edit.
func (a *Arena) growStore(s Sink, end uint32) bool {
	mark := uint32(len(a.buffer.stores[s]))
	if end <= mark {
		return true
	}
	if !a.buffer.resizeStore(s, int(end)) {
		return false
	}
	a.buffer.recordSinkEdit(s, mark, end-mark)
	a.ctx.log.Debug("frontend: arena store grown", "sink", s, "from", mark, "to", end)
	return true
}

// writeSink maps, fills and records the range in one critical section so
// a concurrent map of another Block cannot reallocate the store midway.
func (b *Block) writeSink(s Sink, data []byte) error {
	a := b.arena
	a.ctx.mu.Lock()
	defer a.ctx.mu.Unlock()

	dst, err := b.mapSinkLocked(s, len(data))
	if err != nil || len(data) == 0 {
		return err
	}
	copy(dst, data)
	b.recordEditLocked(s, 0, uint32(len(data)))
	return nil
}

func (b *Block) recordEdit(s Sink, offset, size uint32) {
	b.arena.ctx.mu.Lock()
	defer b.arena.ctx.mu.Unlock()
	b.recordEditLocked(s, offset, size)
}

func (b *Block) recordEditLocked(s Sink, offset, size uint32) {
	a := b.arena
	a.mustBeOpen("edit")
	r := b.ranges[s]
	if r.Offset == NoOffset || uint64(offset)+uint64(size) > uint64(r.Size) {
		panic(fmt.Sprintf("frontend: %s edit [%d,%d) outside block", s, offset, uint64(offset)+uint64(size)))
	}
	a.buffer.recordSinkEdit(s, r.Offset+offset, size)
}
