// Command rxdemo drives a frontend Context through a number of frames and
// prints the frame statistics.
//
//	rxdemo -backend null -frames 120 -quads 32
//	rxdemo -backend wgpu -output frame.png
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/frontend"
	_ "github.com/gogpu/frontend/backend/null"
	_ "github.com/gogpu/frontend/backend/wgpu"
)

type config struct {
	backend string
	frames  int
	width   int
	height  int
	quads   int
	fps     int
	output  string
}

func main() {
	var (
		cfg     config
		verbose = flag.Bool("v", false, "log frontend and backend activity")
	)
	flag.StringVar(&cfg.backend, "backend", "null", fmt.Sprintf("backend to run on %v", frontend.Backends()))
	flag.IntVar(&cfg.frames, "frames", 120, "frames to render")
	flag.IntVar(&cfg.width, "width", 640, "swapchain width")
	flag.IntVar(&cfg.height, "height", 360, "swapchain height")
	flag.IntVar(&cfg.quads, "quads", 16, "quads drawn per frame")
	flag.IntVar(&cfg.fps, "fps", 0, "frame rate cap, 0 for none")
	flag.StringVar(&cfg.output, "output", "", "write the last frame to this PNG file")
	flag.Parse()

	if *verbose {
		frontend.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if err := run(cfg, os.Stdout); err != nil {
		log.Fatalf("rxdemo: %v", err)
	}
}

func run(cfg config, out io.Writer) error {
	b, err := frontend.NewBackend(cfg.backend)
	if err != nil {
		return err
	}
	ctx, err := frontend.NewContext(b,
		frontend.WithSwapchain(cfg.width, cfg.height, gputypes.TextureFormatRGBA8Unorm),
		frontend.WithMaxFPS(cfg.fps),
	)
	if err != nil {
		_ = b.Close()
		return err
	}

	s, err := newScene(ctx, cfg.quads)
	if err != nil {
		_ = ctx.Close()
		return err
	}
	err = play(ctx, s, cfg, out)
	s.destroy()
	if cerr := ctx.Close(); err == nil {
		err = cerr
	}
	return err
}

func play(ctx *frontend.Context, s *scene, cfg config, out io.Writer) error {
	for frame := range cfg.frames {
		if err := s.render(frame); err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		ctx.Process()
		ctx.Swap()
	}
	report(out, ctx, cfg)

	if cfg.output == "" {
		return nil
	}
	if err := s.save(cfg.output); err != nil {
		return err
	}
	fmt.Fprintf(out, "last frame saved to %s\n", cfg.output)
	return nil
}

func report(out io.Writer, ctx *frontend.Context, cfg config) {
	fs := ctx.FrameStats()
	t := ctx.Timer()
	fmt.Fprintf(out, "%s: %d frames at %dx%d\n", cfg.backend, ctx.Frame(), cfg.width, cfg.height)
	fmt.Fprintf(out, "  draws %d  clears %d  commands %d  footprint %d bytes\n",
		fs.DrawCalls, fs.ClearCalls, fs.CommandsRecorded, fs.Footprint)
	fmt.Fprintf(out, "  vertices %d  triangles %d\n", fs.Vertices, fs.Triangles)
	fmt.Fprintf(out, "  frame time min %v  avg %v  max %v\n", t.MinFrameTime(), t.AverageFrameTime(), t.MaxFrameTime())
	for _, rt := range []frontend.ResourceType{frontend.ResourceBuffer, frontend.ResourceProgram, frontend.ResourceTexture2D, frontend.ResourceTarget} {
		st := ctx.Stats(rt)
		fmt.Fprintf(out, "  %-10s %d/%d used  %d bytes\n", rt, st.Used, st.Total, st.Memory)
	}
}

// save downloads the swapchain and encodes it as PNG.
func (s *scene) save(path string) error {
	w, h := s.ctx.SwapchainTexture().Dimensions().Width, s.ctx.SwapchainTexture().Dimensions().Height
	tag := frontend.NewTag("readback")
	d, err := s.ctx.CreateDownloader(tag)
	if err != nil {
		return err
	}
	defer s.ctx.DestroyDownloader(tag, d)
	d.RecordFormat(gputypes.TextureFormatRGBA8Unorm)
	d.RecordBuffers(1)
	if err := d.RecordDimensions(frontend.Extent2D{Width: w, Height: h}); err != nil {
		return err
	}
	if err := s.ctx.InitializeDownloader(tag, d); err != nil {
		return err
	}
	if err := s.ctx.Download(tag, s.ctx.Swapchain(), 0, frontend.Extent2D{}, d); err != nil {
		return err
	}
	s.ctx.Process()
	if !d.Ready() {
		return fmt.Errorf("download of %dx%d swapchain did not complete", w, h)
	}

	img := &image.RGBA{Pix: d.Pixels(), Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
