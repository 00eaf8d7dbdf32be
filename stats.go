package frontend

import "sync/atomic"

// Statistics describes one resource pool.
type Statistics struct {
	// Total is the pool capacity.
	Total int
	// Used is the number of occupied slots, including destroyed resources
	// awaiting release.
	Used int
	// Cached is the number of resources held by the context cache.
	Cached int
	// Memory is the client-side bytes held by live resources.
	Memory int64
}

// FrameStats counts the work recorded during one frame.
type FrameStats struct {
	DrawCalls          int64
	InstancedDrawCalls int64
	ClearCalls         int64
	BlitCalls          int64
	Vertices           int64
	Triangles          int64
	Lines              int64
	Points             int64
	CommandsRecorded   int64
	Footprint          int64
}

// counter is double buffered: index 0 accumulates the frame being
// recorded and index 1 holds the last processed frame.
type counter [2]atomic.Int64

func (c *counter) add(n int64) { c[0].Add(n) }
func (c *counter) last() int64 { return c[1].Load() }
func (c *counter) swap()       { c[1].Store(c[0].Swap(0)) }

type frameCounters struct {
	drawCalls          counter
	instancedDrawCalls counter
	clearCalls         counter
	blitCalls          counter
	vertices           counter
	triangles          counter
	lines              counter
	points             counter
	commandsRecorded   counter
	footprint          counter
}

func (f *frameCounters) all() []*counter {
	return []*counter{
		&f.drawCalls, &f.instancedDrawCalls, &f.clearCalls, &f.blitCalls,
		&f.vertices, &f.triangles, &f.lines, &f.points,
		&f.commandsRecorded, &f.footprint,
	}
}

func (f *frameCounters) swap() {
	for _, c := range f.all() {
		c.swap()
	}
}

func (f *frameCounters) snapshot() FrameStats {
	return FrameStats{
		DrawCalls:          f.drawCalls.last(),
		InstancedDrawCalls: f.instancedDrawCalls.last(),
		ClearCalls:         f.clearCalls.last(),
		BlitCalls:          f.blitCalls.last(),
		Vertices:           f.vertices.last(),
		Triangles:          f.triangles.last(),
		Lines:              f.lines.last(),
		Points:             f.points.last(),
		CommandsRecorded:   f.commandsRecorded.last(),
		Footprint:          f.footprint.last(),
	}
}
