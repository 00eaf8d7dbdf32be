package frontend

import (
	"fmt"

	"github.com/gogpu/frontend/internal/memory"
	"github.com/gogpu/frontend/internal/pool"
)

// pooled is the pointer side of a resource stored in a StaticPool.
type pooled[T any] interface {
	*T
	Resource
	base() *resource
	Validate() error
	release()
}

func (r *resource) base() *resource { return r }

// kind holds the pool, deferred destroy ring and cache of one resource
// type. Every method is called with the Context mutex held.
type kind[T any, P pooled[T]] struct {
	typ   ResourceType
	pool  *pool.StaticPool[T]
	ring  [][]P
	cache map[string]P
}

func newKind[T any, P pooled[T]](typ ResourceType, alloc memory.Allocator, count, deferred int) (*kind[T, P], error) {
	p, err := pool.New[T](alloc, count)
	if err != nil {
		return nil, fmt.Errorf("frontend: %s pool: %w", typ, err)
	}
	return &kind[T, P]{
		typ:   typ,
		pool:  p,
		ring:  make([][]P, deferred),
		cache: make(map[string]P),
	}, nil
}

// create reserves a slot and records its allocate command.
func (k *kind[T, P]) create(c *Context, tag Tag) (P, error) {
	if c.closed {
		return nil, ErrClosed
	}
	obj, ok := k.pool.Create()
	if !ok {
		c.log.Warn("frontend: pool exhausted", "type", k.typ, "capacity", k.pool.Capacity(), "tag", tag.String())
		return nil, ErrPoolExhausted
	}
	ph := k.pool.Handle(k.pool.IndexOf(obj))
	h := Handle{Type: k.typ, Index: ph.Index, Generation: ph.Generation}

	r := P(obj)
	r.base().init(c, h, tag)
	if _, err := c.record(&ResourceCommand{header: header{tag}, Kind: CmdAllocate, Handle: h, Resource: r}, 0); err != nil {
		k.pool.Destroy(obj)
		return nil, err
	}
	return r, nil
}

// destroy drops a reference. The last reference records the destroy
// command and queues the slot for release.
func (k *kind[T, P]) destroy(c *Context, tag Tag, r P) bool {
	b := r.base()
	b.mustBeLive("Destroy")
	if !b.releaseReference() {
		return false
	}
	if b.cached {
		delete(k.cache, b.cacheKey)
		b.cached = false
	}
	c.recordDestroy(tag, r)
	b.state = LifecycleDestroyed
	k.ring[c.ringHead] = append(k.ring[c.ringHead], r)
	return true
}

// releaseSlot returns the slots queued in ring entry i to the pool.
func (k *kind[T, P]) releaseSlot(i int) {
	for j, r := range k.ring[i] {
		r.release()
		k.pool.Destroy((*T)(r))
		k.ring[i][j] = nil
	}
	k.ring[i] = k.ring[i][:0]
}

func (k *kind[T, P]) cached(key string) P {
	r, ok := k.cache[key]
	if !ok {
		return nil
	}
	r.base().acquireReference()
	return r
}

func (k *kind[T, P]) insertCache(r P, key string) {
	b := r.base()
	b.mustBeLive("Cache")
	if b.cached {
		delete(k.cache, b.cacheKey)
	}
	k.cache[key] = r
	b.cacheKey, b.cached = key, true
}

// destroyCached drops the reference of every cached resource.
func (k *kind[T, P]) destroyCached(c *Context) {
	for _, r := range k.cache {
		r.base().cached = false
		k.destroy(c, Tag{Description: "cache"}, r)
	}
	clear(k.cache)
}

func (k *kind[T, P]) stats(c *Context) Statistics {
	return Statistics{
		Total:  k.pool.Capacity(),
		Used:   k.pool.Size(),
		Cached: len(k.cache),
		Memory: c.usage[k.typ].Load(),
	}
}

// slotReleaser is the type-erased view of a kind used by Process.
type slotReleaser interface {
	releaseSlot(i int)
	destroyCached(c *Context)
	stats(c *Context) Statistics
	close()
}

func (k *kind[T, P]) close() { k.pool.Release() }
