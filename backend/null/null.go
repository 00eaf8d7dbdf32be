// Package null provides a backend that executes nothing.
//
// The null backend consumes the command stream of a frontend.Context the
// way a real backend would: it tracks which handles are live, checks that
// every command refers to a resource in the right state, and completes
// downloads with zeroed pixels. It is used for headless runs, tests and
// as the reference for backend authors.
//
// # Example
//
//	// Import to register the backend
//	import _ "github.com/gogpu/frontend/backend/null"
//
//	// Create via registry
//	b, _ := frontend.NewBackend("null")
//
//	// Or create directly
//	b := null.New()
package null

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/frontend"
)

func init() {
	frontend.RegisterBackend("null", func() (frontend.Backend, error) {
		return New(), nil
	})
}

// Backend is a frontend.Backend that only validates the command stream.
type Backend struct {
	mu       sync.Mutex
	live     map[frontend.Handle]frontend.Lifecycle
	counts   [frontend.CmdProfile + 1]int
	frames   int
	profiles []string
	errs     []error
	closed   bool
}

// Ensure Backend implements frontend.Backend.
var _ frontend.Backend = (*Backend)(nil)

// New creates a null backend.
func New() *Backend {
	return &Backend{live: make(map[frontend.Handle]frontend.Lifecycle)}
}

// Name returns "null".
func (b *Backend) Name() string { return "null" }

// Process checks cmd against the handles seen so far.
func (b *Backend) Process(cmd frontend.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if int(cmd.Type()) < len(b.counts) {
		b.counts[cmd.Type()]++
	}

	switch c := cmd.(type) {
	case *frontend.ResourceCommand:
		b.resource(c)
	case *frontend.UpdateCommand:
		b.expect(c, c.Handle, frontend.LifecycleInitialized)
	case *frontend.DrawCommand:
		b.expect(c, c.Target.Handle(), frontend.LifecycleInitialized)
		b.expect(c, c.Program.Handle(), frontend.LifecycleInitialized)
		if c.Buffer != nil {
			b.expect(c, c.Buffer.Handle(), frontend.LifecycleInitialized)
		}
		for i := range c.Textures.Len() {
			b.expect(c, c.Textures.At(i).Handle(), frontend.LifecycleInitialized)
		}
	case *frontend.ClearCommand:
		b.expect(c, c.Target.Handle(), frontend.LifecycleInitialized)
	case *frontend.BlitCommand:
		b.expect(c, c.SrcTarget.Handle(), frontend.LifecycleInitialized)
		b.expect(c, c.DstTarget.Handle(), frontend.LifecycleInitialized)
	case *frontend.DownloadCommand:
		b.expect(c, c.SrcTarget.Handle(), frontend.LifecycleInitialized)
		b.expect(c, c.Downloader.Handle(), frontend.LifecycleInitialized)
		c.Downloader.Complete(nil)
	case *frontend.ProfileCommand:
		b.profiles = append(b.profiles, c.Name)
	}
}

func (b *Backend) resource(c *frontend.ResourceCommand) {
	switch c.Kind {
	case frontend.CmdAllocate:
		if _, ok := b.live[c.Handle]; ok {
			b.fail(c, c.Handle, "allocated twice")
			return
		}
		b.live[c.Handle] = frontend.LifecycleAllocated
	case frontend.CmdConstruct:
		if b.expect(c, c.Handle, frontend.LifecycleAllocated) {
			b.live[c.Handle] = frontend.LifecycleInitialized
		}
	case frontend.CmdDestroy:
		if _, ok := b.live[c.Handle]; !ok {
			b.fail(c, c.Handle, "destroyed but never allocated")
			return
		}
		delete(b.live, c.Handle)
	}
}

func (b *Backend) expect(cmd frontend.Command, h frontend.Handle, want frontend.Lifecycle) bool {
	got, ok := b.live[h]
	if !ok {
		b.fail(cmd, h, "unknown handle")
		return false
	}
	if got != want {
		b.fail(cmd, h, fmt.Sprintf("is %s, want %s", got, want))
		return false
	}
	return true
}

func (b *Backend) fail(cmd frontend.Command, h frontend.Handle, msg string) {
	err := fmt.Errorf("null: %s %s: %s (%s)", cmd.Type(), h, msg, cmd.Tag())
	frontend.Logger().Warn("null: invalid command", slog.String("error", err.Error()))
	b.errs = append(b.errs, err)
}

// Swap counts a presented frame.
func (b *Backend) Swap() {
	b.mu.Lock()
	b.frames++
	b.mu.Unlock()
}

// Close reports resources the frontend never destroyed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if n := len(b.live); n > 0 {
		return fmt.Errorf("null: %d resources still live at close", n)
	}
	return nil
}

// Live returns the number of allocated and not yet destroyed handles.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Count returns how many commands of type t were processed.
func (b *Backend) Count(t frontend.CommandType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[t]
}

// Frames returns the number of Swap calls.
func (b *Backend) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Profiles returns the profile markers in the order they were processed.
func (b *Backend) Profiles() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.profiles...)
}

// Errors returns every protocol violation seen so far.
func (b *Backend) Errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]error(nil), b.errs...)
}
