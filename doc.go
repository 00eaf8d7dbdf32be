// Package frontend is the resource and command lifecycle core of a
// real-time renderer.
//
// # Overview
//
// A Context sits between high-level draw calls and a graphics Backend. It
// owns a fixed-capacity pool per resource type, records every resource
// operation and draw into an ordered command stream, and hands that stream
// to the Backend once per frame from Process.
//
//	ctx, err := frontend.NewContext(backend)
//	if err != nil {
//	    return err
//	}
//	defer ctx.Close()
//
//	buf, _ := ctx.CreateBuffer(frontend.NewTag("mesh"))
//	buf.RecordFormat(format)
//	buf.WriteVertices(vertices)
//	ctx.InitializeBuffer(frontend.NewTag("mesh"), buf)
//
//	ctx.Draw(frontend.NewTag("mesh"), frontend.DrawParams{
//	    State:       state,
//	    Target:      ctx.Swapchain(),
//	    DrawBuffers: frontend.NewDrawBuffers(0),
//	    Buffer:      buf,
//	    Program:     program,
//	    Count:       36,
//	})
//	ctx.Process()
//	ctx.Swap()
//
// # Resource lifecycle
//
// Every resource moves through Allocated, Initialized and Destroyed.
// Destroy records a destroy command but the pool slot is only released by
// a later Process, after the Backend has consumed that command. Commands
// carry generational handles so a Backend never confuses a slot's next
// occupant with a destroyed one.
//
// # Arenas
//
// Geometry that shares a BufferFormat can be packed into one Buffer with
// Context.Arena. Each Block places vertex, element and instance bytes in
// the arena's shared stores, and draws address them through BaseVertex,
// BaseElement and BaseInstance.
//
// # Backends
//
// Backends register themselves by name, following the database/sql driver
// pattern:
//
//	import _ "github.com/gogpu/frontend/backend/null"
//
//	b, err := frontend.NewBackend("null")
package frontend

// Version is the current version of the library.
const Version = "0.1.0"
