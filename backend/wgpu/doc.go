// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu provides a backend that executes frontend commands on a
// gogpu/wgpu HAL device.
//
// Every pooled frontend resource becomes a native object keyed by its
// frontend.Handle:
//
//   - Buffer sinks become vertex, index and instance buffers. Update
//     commands upload only the edited byte ranges with Queue.WriteBuffer.
//   - Textures become HAL textures with a default view. Attachment views
//     for a single level or cube face are created on first use.
//   - Programs are compiled from WGSL to SPIR-V with naga. Plain uniforms
//     are packed into one uniform buffer at binding 0, sampler uniforms
//     take a texture and sampler binding pair each.
//   - Downloaders own a staging buffer sized for one readback.
//
// Render pipelines are created lazily per program, buffer format, state
// and target formats, and cached until the program is destroyed.
//
// Clears, draws, blits and downloads are each encoded into their own
// command buffer and submitted immediately. Swap waits for the frame's
// submissions and frees them. Downloads wait for the GPU and complete the
// Downloader before Process returns.
//
// # Example
//
//	// Import to register the backend
//	import _ "github.com/gogpu/frontend/backend/wgpu"
//
//	// Create via registry. Uses a Vulkan device when the Vulkan HAL is
//	// linked in and the noop device otherwise.
//	b, _ := frontend.NewBackend("wgpu")
//
//	// Or share the device of a host application
//	b, err := wgpu.NewFromProvider(provider)
package wgpu
