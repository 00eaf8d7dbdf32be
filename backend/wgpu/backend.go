// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gogpu/frontend"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func init() {
	frontend.RegisterBackend("wgpu", func() (frontend.Backend, error) {
		return Open()
	})
}

// waitTimeout bounds every fence wait.
const waitTimeout = 5 * time.Second

var (
	// ErrNoAdapter is returned when the HAL instance exposes no adapters.
	ErrNoAdapter = errors.New("wgpu: no GPU adapters found")

	// ErrNoHAL is returned by NewFromProvider when the provider does not
	// expose its HAL device and queue.
	ErrNoHAL = errors.New("wgpu: provider does not expose HAL types")
)

// Backend is a frontend.Backend over a HAL device.
type Backend struct {
	mu sync.Mutex

	instance hal.Instance // nil for external devices
	device   hal.Device
	queue    hal.Queue
	owned    bool
	log      *slog.Logger

	buffers     map[frontend.Handle]*gpuBuffer
	textures    map[frontend.Handle]*gpuTexture
	programs    map[frontend.Handle]*gpuProgram
	downloaders map[frontend.Handle]*gpuDownloader
	targets     map[frontend.Handle]struct{}
	samplers    map[samplerKey]hal.Sampler

	fence      hal.Fence
	fenceValue uint64
	inflight   []hal.CommandBuffer
	garbage    []hal.BindGroup

	frames   int
	failures int
	closed   bool
}

// Ensure Backend implements frontend.Backend.
var _ frontend.Backend = (*Backend)(nil)

// New creates a backend on an existing device and queue. The caller keeps
// ownership of both.
func New(device hal.Device, queue hal.Queue) (*Backend, error) {
	return newBackend(nil, device, queue, false)
}

// Open creates a backend on its own device. It prefers the Vulkan HAL when
// it is linked into the binary and falls back to the noop device.
func Open() (*Backend, error) {
	var (
		instance hal.Instance
		err      error
	)
	if vk, ok := hal.GetBackend(gputypes.BackendVulkan); ok {
		instance, err = vk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	} else {
		instance, err = noop.API{}.CreateInstance(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return openInstance(instance)
}

// OpenNoop creates a backend on the noop device. Nothing is rendered, but
// every HAL call is made.
func OpenNoop() (*Backend, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return openInstance(instance)
}

func openInstance(instance hal.Instance) (*Backend, error) {
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	b, err := newBackend(instance, openDev.Device, openDev.Queue, true)
	if err != nil {
		openDev.Device.Destroy()
		instance.Destroy()
		return nil, err
	}
	b.log.Info("wgpu: device opened", "adapter", selected.Info.Name)
	return b, nil
}

// NewFromProvider creates a backend on the device of a host application.
// The provider must also implement HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	return New(device, queue)
}

func newBackend(instance hal.Instance, device hal.Device, queue hal.Queue, owned bool) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("wgpu: nil device or queue")
	}
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("wgpu: create fence: %w", err)
	}
	return &Backend{
		instance:    instance,
		device:      device,
		queue:       queue,
		owned:       owned,
		log:         frontend.Logger(),
		buffers:     make(map[frontend.Handle]*gpuBuffer),
		textures:    make(map[frontend.Handle]*gpuTexture),
		programs:    make(map[frontend.Handle]*gpuProgram),
		downloaders: make(map[frontend.Handle]*gpuDownloader),
		targets:     make(map[frontend.Handle]struct{}),
		samplers:    make(map[samplerKey]hal.Sampler),
		fence:       fence,
	}, nil
}

// Name returns "wgpu".
func (b *Backend) Name() string { return "wgpu" }

// Process executes cmd on the device. Failures are logged and counted;
// the command is skipped.
func (b *Backend) Process(cmd frontend.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.fail(cmd, errors.New("backend closed"))
		return
	}

	var err error
	switch c := cmd.(type) {
	case *frontend.ResourceCommand:
		err = b.resource(c)
	case *frontend.UpdateCommand:
		err = b.update(c)
	case *frontend.ClearCommand:
		err = b.clear(c)
	case *frontend.DrawCommand:
		err = b.draw(c)
	case *frontend.BlitCommand:
		err = b.blit(c)
	case *frontend.DownloadCommand:
		err = b.download(c)
	case *frontend.ProfileCommand:
		b.log.Debug("wgpu: profile", "name", c.Name)
	}
	if err != nil {
		b.fail(cmd, err)
	}
}

func (b *Backend) fail(cmd frontend.Command, err error) {
	b.failures++
	b.log.Warn("wgpu: command failed",
		"command", cmd.Type().String(),
		"tag", cmd.Tag().String(),
		"err", err)
}

// Swap waits for the frame's submissions and releases them.
func (b *Backend) Swap() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.wait(); err != nil {
		b.failures++
		b.log.Warn("wgpu: swap", "err", err)
	}
	b.frames++
}

// Close waits for the device and destroys every native object. It reports
// resources the frontend never destroyed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	waitErr := b.wait()
	leaked := len(b.buffers) + len(b.textures) + len(b.programs) + len(b.downloaders) + len(b.targets)

	for h, buf := range b.buffers {
		buf.destroy(b.device)
		delete(b.buffers, h)
	}
	for h, p := range b.programs {
		p.destroy(b.device)
		delete(b.programs, h)
	}
	for h, t := range b.textures {
		t.destroy(b.device)
		delete(b.textures, h)
	}
	for h, d := range b.downloaders {
		d.destroy(b.device)
		delete(b.downloaders, h)
	}
	clear(b.targets)
	for k, s := range b.samplers {
		b.device.DestroySampler(s)
		delete(b.samplers, k)
	}
	b.device.DestroyFence(b.fence)

	if b.owned {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	b.log.Info("wgpu: backend closed", "frames", b.frames, "failures", b.failures)

	if waitErr != nil {
		return waitErr
	}
	if leaked > 0 {
		return fmt.Errorf("wgpu: %d resources still live at close", leaked)
	}
	return nil
}

// Frames returns the number of Swap calls.
func (b *Backend) Frames() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames
}

// Failures returns the number of commands that could not be executed.
func (b *Backend) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Live returns the number of native resources keyed by frontend handles.
func (b *Backend) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffers) + len(b.textures) + len(b.programs) + len(b.downloaders) + len(b.targets)
}

// Device returns the HAL device commands are executed on.
func (b *Backend) Device() hal.Device { return b.device }

// beginEncoding creates an encoder for one command.
func (b *Backend) beginEncoding(label string) (hal.CommandEncoder, error) {
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return encoder, nil
}

// submit ends encoding and submits the command buffer. It is freed by the
// next wait.
func (b *Backend) submit(encoder hal.CommandEncoder) error {
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	b.fenceValue++
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, b.fence, b.fenceValue); err != nil {
		b.device.FreeCommandBuffer(cmdBuf)
		return fmt.Errorf("submit: %w", err)
	}
	b.inflight = append(b.inflight, cmdBuf)
	return nil
}

// wait blocks until every submission has completed, then frees command
// buffers and per-draw bind groups.
func (b *Backend) wait() error {
	if len(b.inflight) == 0 && len(b.garbage) == 0 {
		return nil
	}
	if len(b.inflight) > 0 {
		ok, err := b.device.Wait(b.fence, b.fenceValue, waitTimeout)
		if err != nil || !ok {
			return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
		}
	}
	for _, c := range b.inflight {
		b.device.FreeCommandBuffer(c)
	}
	b.inflight = b.inflight[:0]
	for _, bg := range b.garbage {
		b.device.DestroyBindGroup(bg)
	}
	b.garbage = b.garbage[:0]
	return nil
}
