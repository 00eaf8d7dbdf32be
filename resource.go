package frontend

import (
	"encoding/binary"
	"fmt"
	"hash"
	"path/filepath"
	"runtime"
)

// ResourceType identifies one of the pooled resource kinds.
type ResourceType uint8

const (
	ResourceBuffer ResourceType = iota
	ResourceTarget
	ResourceProgram
	ResourceTexture1D
	ResourceTexture2D
	ResourceTexture3D
	ResourceTextureCM
	ResourceDownloader

	resourceTypeCount
)

var resourceTypeNames = [...]string{
	ResourceBuffer:     "Buffer",
	ResourceTarget:     "Target",
	ResourceProgram:    "Program",
	ResourceTexture1D:  "Texture1D",
	ResourceTexture2D:  "Texture2D",
	ResourceTexture3D:  "Texture3D",
	ResourceTextureCM:  "TextureCM",
	ResourceDownloader: "Downloader",
}

// String returns the string representation of a ResourceType.
func (t ResourceType) String() string {
	if int(t) < len(resourceTypeNames) {
		return resourceTypeNames[t]
	}
	return fmt.Sprintf("ResourceType(%d)", t)
}

// Lifecycle is the state of a pooled resource. The zero value is the
// state of a free pool slot.
type Lifecycle uint8

const (
	// LifecycleReleased means the pool slot holds no resource.
	LifecycleReleased Lifecycle = iota
	// LifecycleAllocated means the slot is reserved and the allocate
	// command recorded.
	LifecycleAllocated
	// LifecycleInitialized means the construct command is recorded and
	// the resource may be updated and drawn with.
	LifecycleInitialized
	// LifecycleDestroyed means the destroy command is recorded. The slot
	// is released by a later Process.
	LifecycleDestroyed
)

var lifecycleNames = [...]string{
	LifecycleReleased:    "Released",
	LifecycleAllocated:   "Allocated",
	LifecycleInitialized: "Initialized",
	LifecycleDestroyed:   "Destroyed",
}

func (l Lifecycle) String() string {
	if int(l) < len(lifecycleNames) {
		return lifecycleNames[l]
	}
	return fmt.Sprintf("Lifecycle(%d)", l)
}

// Handle identifies one lifetime of a pooled resource. Backends key their
// native objects by Handle; a Handle is never reused once its resource
// has been released.
type Handle struct {
	Type       ResourceType
	Index      uint32
	Generation uint32
}

func (h Handle) String() string {
	return fmt.Sprintf("%s#%d:%d", h.Type, h.Index, h.Generation)
}

// Tag describes where a command was recorded.
type Tag struct {
	Description string
	File        string
	Line        int
}

// NewTag returns a Tag for the caller's source location.
func NewTag(description string) Tag {
	_, file, line, _ := runtime.Caller(1)
	return Tag{Description: description, File: filepath.Base(file), Line: line}
}

func (t Tag) String() string {
	if t.File == "" {
		return t.Description
	}
	return fmt.Sprintf("%s (%s:%d)", t.Description, t.File, t.Line)
}

// resource is embedded in every pooled resource. Its fields other than
// usage are guarded by the owning Context's mutex.
type resource struct {
	ctx      *Context
	handle   Handle
	tag      Tag
	state    Lifecycle
	refs     int32
	usage    int64
	cacheKey string
	cached   bool
}

func (r *resource) init(ctx *Context, h Handle, tag Tag) {
	r.ctx = ctx
	r.handle = h
	r.tag = tag
	r.state = LifecycleAllocated
	r.refs = 1
}

// Handle returns the resource's generational handle.
func (r *resource) Handle() Handle { return r.handle }

// Tag returns the tag the resource was created with.
func (r *resource) Tag() Tag { return r.tag }

// Lifecycle returns the resource's lifecycle state.
func (r *resource) Lifecycle() Lifecycle { return r.state }

// Usage returns the bytes of client-side storage held by the resource.
func (r *resource) Usage() int64 { return r.usage }

func (r *resource) mustBeLive(op string) {
	if r.state != LifecycleAllocated && r.state != LifecycleInitialized {
		panic(fmt.Sprintf("frontend: %s on %s resource %s", op, r.state, r.handle))
	}
}

func (r *resource) acquireReference() { r.refs++ }

// releaseReference drops one reference and reports whether it was the
// last.
func (r *resource) releaseReference() bool {
	r.refs--
	return r.refs == 0
}

// setUsage records the resource's storage size in the context totals.
func (r *resource) setUsage(bytes int64) {
	if r.ctx != nil {
		r.ctx.usage[r.handle.Type].Add(bytes - r.usage)
	}
	r.usage = bytes
}

func hashWriteUint32(h hash.Hash64, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, _ = h.Write(b[:]) // hash.Write never returns an error
}

func hashWriteUint64(h hash.Hash64, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, _ = h.Write(b[:])
}
