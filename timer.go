package frontend

import "time"

// frameHistory is the window of frame times kept for graphs.
const frameHistory = 10 * time.Second

// FrameTime is one entry of the frame history.
type FrameTime struct {
	// Life is the time since the timer started.
	Life time.Duration
	// Frame is how long the frame took.
	Frame time.Duration
}

// FrameTimer measures frame durations and optionally caps the frame rate.
// It is not safe for concurrent use; Context.Swap drives it from the
// presenting goroutine.
type FrameTimer struct {
	now   func() time.Time
	sleep func(time.Duration)

	start        time.Time
	lastFrame    time.Time
	lastSecond   time.Time
	maxFrame     time.Duration
	frameCount   int
	minDelta     time.Duration
	maxDelta     time.Duration
	totalDelta   time.Duration
	delta        time.Duration
	history      []FrameTime
	fps          int
	frameMin     time.Duration
	frameMax     time.Duration
	frameAverage time.Duration
}

// NewFrameTimer returns a timer started now.
func NewFrameTimer() *FrameTimer {
	return newFrameTimer(time.Now, time.Sleep)
}

func newFrameTimer(now func() time.Time, sleep func(time.Duration)) *FrameTimer {
	t := &FrameTimer{now: now, sleep: sleep}
	t.start = now()
	t.lastFrame = t.start
	t.reset(t.start)
	return t
}

// CapFPS limits Update to at most fps frames per second. Zero or a
// negative value removes the cap.
func (t *FrameTimer) CapFPS(fps float64) {
	if fps <= 0 {
		t.maxFrame = 0
		return
	}
	t.maxFrame = time.Duration(float64(time.Second) / fps)
}

func (t *FrameTimer) reset(now time.Time) {
	t.lastSecond = now
	t.frameCount = 0
	t.minDelta = time.Second
	t.maxDelta = 0
	t.totalDelta = 0
}

// Update marks the end of a frame, sleeping first if the frame rate is
// capped. It reports whether a new one second sample was published.
func (t *FrameTimer) Update() bool {
	t.frameCount++
	current := t.now()
	elapsed := current.Sub(t.lastFrame)
	t.totalDelta += elapsed

	life := current.Sub(t.start)
	t.history = append(t.history, FrameTime{Life: life, Frame: elapsed})
	for i, f := range t.history {
		if f.Life >= life-frameHistory {
			t.history = t.history[i:]
			break
		}
	}

	t.minDelta = min(t.minDelta, elapsed)
	t.maxDelta = max(t.maxDelta, elapsed)

	if t.maxFrame > 0 {
		target := t.lastSecond.Add(time.Duration(t.frameCount) * t.maxFrame)
		if wait := target.Sub(current); wait > 0 {
			t.sleep(wait)
			after := t.now()
			t.totalDelta += after.Sub(current)
			current = after
		}
	}

	t.delta = current.Sub(t.lastFrame)
	t.lastFrame = current

	if current.Sub(t.lastSecond) >= time.Second {
		t.fps = t.frameCount
		t.frameAverage = t.totalDelta / time.Duration(t.frameCount)
		t.frameMin = t.minDelta
		t.frameMax = t.maxDelta
		t.reset(current)
		return true
	}
	return false
}

// DeltaTime returns the duration of the last frame.
func (t *FrameTimer) DeltaTime() time.Duration { return t.delta }

// FPS returns the frames counted in the last full second.
func (t *FrameTimer) FPS() int { return t.fps }

func (t *FrameTimer) MinFrameTime() time.Duration     { return t.frameMin }
func (t *FrameTimer) MaxFrameTime() time.Duration     { return t.frameMax }
func (t *FrameTimer) AverageFrameTime() time.Duration { return t.frameAverage }

// History returns the frame times of the last ten seconds.
func (t *FrameTimer) History() []FrameTime { return t.history }
