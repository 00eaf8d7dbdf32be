package frontend

import "fmt"

// initializer is a resource that can be constructed.
type initializer interface {
	Resource
	base() *resource
	Validate() error
}

// initializeLocked validates r and records its construct command. A
// resource that fails validation is a programming error and panics.
func (c *Context) initializeLocked(tag Tag, r initializer) error {
	b := r.base()
	b.mustBeLive("Initialize")
	if b.state != LifecycleAllocated {
		panic(fmt.Sprintf("frontend: %s already initialized", b.handle))
	}
	if err := r.Validate(); err != nil {
		panic(fmt.Sprintf("frontend: initialize %s (%s): %v", b.handle, tag, err))
	}
	if _, err := c.record(&ResourceCommand{header: header{tag}, Kind: CmdConstruct, Handle: b.handle, Resource: r}, 0); err != nil {
		return err
	}
	b.state = LifecycleInitialized
	return nil
}

func (c *Context) initialize(tag Tag, r initializer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(tag, r)
}

// CreateBuffer reserves a Buffer. Record its format, then call
// InitializeBuffer.
func (c *Context) CreateBuffer(tag Tag) (*Buffer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffers.create(c, tag)
}

// CreateTarget reserves a Target.
func (c *Context) CreateTarget(tag Tag) (*Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets.create(c, tag)
}

// CreateProgram reserves a Program.
func (c *Context) CreateProgram(tag Tag) (*Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.programs.create(c, tag)
}

// CreateTexture1D reserves a Texture1D.
func (c *Context) CreateTexture1D(tag Tag) (*Texture1D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.textures1D.create(c, tag)
	if err != nil {
		return nil, err
	}
	t.faces = 1
	return t, nil
}

// CreateTexture2D reserves a Texture2D.
func (c *Context) CreateTexture2D(tag Tag) (*Texture2D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.textures2D.create(c, tag)
	if err != nil {
		return nil, err
	}
	t.faces = 1
	return t, nil
}

// CreateTexture3D reserves a Texture3D.
func (c *Context) CreateTexture3D(tag Tag) (*Texture3D, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.textures3D.create(c, tag)
	if err != nil {
		return nil, err
	}
	t.faces = 1
	return t, nil
}

// CreateTextureCM reserves a cube map.
func (c *Context) CreateTextureCM(tag Tag) (*TextureCM, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, err := c.texturesCM.create(c, tag)
	if err != nil {
		return nil, err
	}
	t.faces = 6
	return t, nil
}

// CreateDownloader reserves a Downloader.
func (c *Context) CreateDownloader(tag Tag) (*Downloader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.downloaders.create(c, tag)
}

// InitializeBuffer records the construct command for b. It panics if
// b.Validate fails.
func (c *Context) InitializeBuffer(tag Tag, b *Buffer) error { return c.initialize(tag, b) }

func (c *Context) InitializeTarget(tag Tag, t *Target) error       { return c.initialize(tag, t) }
func (c *Context) InitializeProgram(tag Tag, p *Program) error     { return c.initialize(tag, p) }
func (c *Context) InitializeTexture1D(tag Tag, t *Texture1D) error { return c.initialize(tag, t) }
func (c *Context) InitializeTexture2D(tag Tag, t *Texture2D) error { return c.initialize(tag, t) }
func (c *Context) InitializeTexture3D(tag Tag, t *Texture3D) error { return c.initialize(tag, t) }
func (c *Context) InitializeTextureCM(tag Tag, t *TextureCM) error { return c.initialize(tag, t) }

func (c *Context) InitializeDownloader(tag Tag, d *Downloader) error {
	return c.initialize(tag, d)
}

// UpdateBuffer records an update command carrying b's pending edits. A
// nil buffer or one without edits records nothing.
func (c *Context) UpdateBuffer(tag Tag, b *Buffer) error {
	if b == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	b.mustBeLive("Update")
	c.counts.footprint.add(b.BytesForEdits())
	if len(b.edits) == 0 {
		return nil
	}
	cmd := &UpdateCommand{header: header{tag}, Handle: b.handle, Resource: b, Edits: len(b.edits)}
	payload, err := c.record(cmd, len(b.edits)*bufferEditSize)
	if err != nil {
		return err
	}
	encodeBufferEdits(payload, b.edits)
	cmd.payload = payload
	c.edited = append(c.edited, b)
	return nil
}

// UpdateTexture1D records an update command carrying t's pending edits.
func (c *Context) UpdateTexture1D(tag Tag, t *Texture1D) error {
	if t == nil {
		return nil
	}
	return updateTexture(c, tag, &t.texture, t)
}

// UpdateTexture2D records an update command carrying t's pending edits.
func (c *Context) UpdateTexture2D(tag Tag, t *Texture2D) error {
	if t == nil {
		return nil
	}
	return updateTexture(c, tag, &t.texture, t)
}

// UpdateTexture3D records an update command carrying t's pending edits.
func (c *Context) UpdateTexture3D(tag Tag, t *Texture3D) error {
	if t == nil {
		return nil
	}
	return updateTexture(c, tag, &t.texture, t)
}

func updateTexture[D extent[D]](c *Context, tag Tag, t *texture[D], r Resource) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t.mustBeLive("Update")
	if len(t.edits) == 0 {
		return nil
	}
	cmd := &UpdateCommand{header: header{tag}, Handle: t.handle, Resource: r, Edits: len(t.edits)}
	payload, err := c.record(cmd, len(t.edits)*textureEditSize)
	if err != nil {
		return err
	}
	encodeTextureEdits(payload, t.edits)
	cmd.payload = payload
	c.edited = append(c.edited, t)
	return nil
}

// DestroyBuffer drops a reference to b. The last reference records the
// destroy command; the slot is released by a later Process. A nil buffer
// is ignored.
func (c *Context) DestroyBuffer(tag Tag, b *Buffer) {
	if b == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyBufferLocked(tag, b)
}

func (c *Context) destroyBufferLocked(tag Tag, b *Buffer) { c.buffers.destroy(c, tag, b) }

// DestroyTarget drops a reference to t. Destroying the last reference
// also destroys the depth and stencil textures the target requested.
func (c *Context) DestroyTarget(tag Tag, t *Target) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destroyTargetLocked(tag, t)
}

func (c *Context) destroyTargetLocked(tag Tag, t *Target) {
	owned := t.ownedTextures()
	if !c.targets.destroy(c, tag, t) {
		return
	}
	for _, tex := range owned {
		c.textures2D.destroy(c, tag, tex)
	}
}

func (c *Context) DestroyProgram(tag Tag, p *Program) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs.destroy(c, tag, p)
}

func (c *Context) DestroyTexture1D(tag Tag, t *Texture1D) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures1D.destroy(c, tag, t)
}

func (c *Context) DestroyTexture2D(tag Tag, t *Texture2D) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures2D.destroy(c, tag, t)
}

func (c *Context) DestroyTexture3D(tag Tag, t *Texture3D) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures3D.destroy(c, tag, t)
}

func (c *Context) DestroyTextureCM(tag Tag, t *TextureCM) {
	if t == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texturesCM.destroy(c, tag, t)
}

func (c *Context) DestroyDownloader(tag Tag, d *Downloader) {
	if d == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloaders.destroy(c, tag, d)
}

// CachedBuffer returns the buffer cached under key with an extra
// reference, or nil. Release the reference with DestroyBuffer.
func (c *Context) CachedBuffer(key string) *Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffers.cached(key)
}

// CacheBuffer stores b under key. The cache holds no reference of its
// own; destroying b removes it.
func (c *Context) CacheBuffer(b *Buffer, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers.insertCache(b, key)
}

func (c *Context) CachedTarget(key string) *Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets.cached(key)
}

func (c *Context) CacheTarget(t *Target, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets.insertCache(t, key)
}

func (c *Context) CachedTexture1D(key string) *Texture1D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textures1D.cached(key)
}

func (c *Context) CacheTexture1D(t *Texture1D, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures1D.insertCache(t, key)
}

func (c *Context) CachedTexture2D(key string) *Texture2D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textures2D.cached(key)
}

func (c *Context) CacheTexture2D(t *Texture2D, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures2D.insertCache(t, key)
}

func (c *Context) CachedTexture3D(key string) *Texture3D {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textures3D.cached(key)
}

func (c *Context) CacheTexture3D(t *Texture3D, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.textures3D.insertCache(t, key)
}

func (c *Context) CachedTextureCM(key string) *TextureCM {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.texturesCM.cached(key)
}

func (c *Context) CacheTextureCM(t *TextureCM, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texturesCM.insertCache(t, key)
}
