package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-resample/config"
	"github.com/nvr-ai/go-resample/gpu"
	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/images/cv"
	"github.com/nvr-ai/go-resample/images/vips"
	"github.com/nvr-ai/go-resample/pipeline"
	"github.com/nvr-ai/go-resample/profiler"
	"github.com/nvr-ai/go-resample/schedule"
)

const (
	// DefaultOutputPath is where the result is written when -output is not given.
	DefaultOutputPath = "resampled.png"
	// DefaultOutputDir receives the frames when -input is a directory.
	DefaultOutputDir = "resampled"
)

func main() {
	var (
		configPath string
		inputPath  string
		outputPath string
		mode       string
		width      int
		height     int
		size       string
		gray       bool
		target     string
		check      bool
		benchN     int
		rotate     bool
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON pipeline configuration")
	flag.StringVar(&inputPath, "input", "", "Path to the input image, or a directory of frames")
	flag.StringVar(&outputPath, "output", DefaultOutputPath, "Path to the output image")
	flag.StringVar(&mode, "mode", config.KindResize, "Transform: resize | warp-polar")
	flag.IntVar(&width, "width", 0, "Output width (0 = transform default)")
	flag.IntVar(&height, "height", 0, "Output height (0 = transform default)")
	flag.StringVar(&size, "size", "", "Output size as an alias (720p, 1080p, 4k, ...) or WIDTHxHEIGHT")
	flag.BoolVar(&gray, "gray", false, "Load the input as greyscale")
	flag.StringVar(&target, "target", "auto", "Schedule target: cpu | accelerated | auto")
	flag.BoolVar(&check, "check", false, "Compare a resize against OpenCV, libvips, nfnt/resize and x/image/draw")
	flag.IntVar(&benchN, "bench", 0, "Time N applies and print statistics")
	flag.BoolVar(&rotate, "rotate", false, "Rotate warp-polar output 90 degrees clockwise")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	if inputPath == "" {
		log.Fatalf("❌ -input is required")
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("❌ Failed to load config: %v", err)
		}
	}

	// Explicit flags override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Transform.Kind = mode
		case "width":
			cfg.Transform.Width = width
		case "height":
			cfg.Transform.Height = height
		case "size":
			cfg.Transform.Size = size
		case "target":
			cfg.Schedule.Target = target
		case "debug":
			cfg.Schedule.Debug = debug
		}
	})
	t, err := cfg.BuildTransform()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	tgt, err := cfg.Target()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	channels := 3
	if gray {
		channels = 1
	}
	var frames []images.Frame
	if info, statErr := os.Stat(inputPath); statErr == nil && info.IsDir() {
		frames, err = images.ListFrames(inputPath)
		if err != nil {
			log.Fatalf("❌ Failed to list frames: %v", err)
		}
		if len(frames) == 0 {
			log.Fatalf("❌ No image files in %s", inputPath)
		}
		log.Printf("📋 Found %d frames in %s", len(frames), inputPath)
		inputPath = frames[0].Path
		if outputPath == DefaultOutputPath {
			outputPath = DefaultOutputDir
		}
	}

	src, err := images.ReadFile(inputPath, channels)
	if err != nil {
		log.Fatalf("❌ Failed to load %s: %v", inputPath, err)
	}
	log.Printf("📋 Loaded %s: %s", inputPath, src.Descriptor())

	caps := schedule.HostOnly()
	if tgt != schedule.TargetCPU {
		caps = gpu.Capabilities()
	}

	p, err := pipeline.New[uint8](src.Descriptor(), t, cfg.Options()...)
	if err != nil {
		log.Fatalf("❌ Failed to create pipeline: %v", err)
	}
	defer p.Close()

	if err := p.Schedule(tgt, caps); err != nil {
		log.Fatalf("❌ Failed to schedule %s: %v", t.Name(), err)
	}
	plan := p.Plan()
	if plan.Fallback() {
		log.Printf("⚠️ Accelerated target unavailable, running on cpu")
	}
	log.Printf("✅ Scheduled %s: %s", t.Name(), plan)

	rotateOutput := rotate && cfg.Transform.Kind == config.KindWarpPolar
	if frames != nil {
		runFrames(p, frames, channels, outputPath, rotateOutput)
		return
	}

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	if err != nil {
		log.Fatalf("❌ Failed to allocate output: %v", err)
	}
	if err := p.Apply(src, out); err != nil {
		log.Fatalf("❌ Failed to apply %s: %v", t.Name(), err)
	}

	result := out
	if rotateOutput {
		result, err = cv.Rotate90(out)
		if err != nil {
			log.Fatalf("❌ Failed to rotate output: %v", err)
		}
	}
	if err := images.WriteFile(outputPath, result); err != nil {
		log.Fatalf("❌ Failed to save %s: %v", outputPath, err)
	}
	log.Printf("✅ Wrote %s (%s)", outputPath, result.Descriptor())

	if check {
		if cfg.Transform.Kind != config.KindResize {
			log.Printf("⚠️ -check only applies to resize")
		} else {
			runCheck(src, out)
		}
	}

	if benchN > 0 {
		runBench(p, src, out, cfg.Transform.Kind, benchN)
	}
}

// runFrames applies p to every frame and writes each result into dir under the
// frame's own name. Frames of another geometry are skipped.
func runFrames(p *pipeline.Pipeline[uint8], frames []images.Frame, channels int, dir string, rotate bool) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("❌ Failed to create %s: %v", dir, err)
	}
	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	if err != nil {
		log.Fatalf("❌ Failed to allocate output: %v", err)
	}

	prof := profiler.New()
	written := 0
	for _, f := range frames {
		src, err := f.Load(channels)
		if err != nil {
			log.Printf("⚠️ Skipping %s: %v", f.Path, err)
			continue
		}
		done := prof.StartOperation("apply")
		err = p.Apply(src, out)
		done()
		if errors.Is(err, pipeline.ErrShape) {
			log.Printf("⚠️ Skipping frame %d: %v", f.Index, err)
			continue
		}
		if err != nil {
			log.Fatalf("❌ Failed to apply frame %d: %v", f.Index, err)
		}

		result := out
		if rotate {
			if result, err = cv.Rotate90(out); err != nil {
				log.Fatalf("❌ Failed to rotate frame %d: %v", f.Index, err)
			}
		}
		if err := images.WriteFile(filepath.Join(dir, filepath.Base(f.Path)), result); err != nil {
			log.Fatalf("❌ Failed to save frame %d: %v", f.Index, err)
		}
		written++
	}
	log.Printf("✅ Wrote %d of %d frames to %s", written, len(frames), dir)
	prof.Report(os.Stdout)
}

// runCheck compares out with independent bilinear resizers and prints the total
// absolute difference for each.
func runCheck(src, out *images.Buffer[uint8]) {
	w, h := out.Width, out.Height
	refs := []struct {
		name string
		run  func() (*images.Buffer[uint8], error)
	}{
		{"opencv", func() (*images.Buffer[uint8], error) { return cv.ReferenceResize(src, w, h) }},
		{"libvips", func() (*images.Buffer[uint8], error) { return vips.ReferenceResize(src, w, h) }},
		{"nfnt", func() (*images.Buffer[uint8], error) { return images.ReferenceNFNT(src, w, h) }},
		{"x/image", func() (*images.Buffer[uint8], error) { return images.ReferenceXDraw(src, w, h) }},
	}
	for _, ref := range refs {
		expect, err := ref.run()
		if err != nil {
			log.Printf("⚠️ %s reference failed: %v", ref.name, err)
			continue
		}
		d, err := images.AbsDiff(out, expect)
		if err != nil {
			log.Printf("⚠️ %s comparison failed: %v", ref.name, err)
			continue
		}
		fmt.Printf("%-8s total diff: %.0f, max diff: %.0f, mismatched: %d\n", ref.name, d.Total, d.Max, d.Mismatched)
	}
}

// runBench times n applies of p and, for resizes, n OpenCV resizes.
func runBench(p *pipeline.Pipeline[uint8], src, out *images.Buffer[uint8], kind string, n int) {
	prof := profiler.New()
	first := images.Checksum(out)
	name := kind + " " + p.Plan().Target().String()
	for i := 0; i < n; i++ {
		done := prof.StartOperation(name)
		if err := p.Apply(src, out); err != nil {
			log.Fatalf("❌ Benchmark apply failed: %v", err)
		}
		done()
	}
	if kind == config.KindResize {
		for i := 0; i < n; i++ {
			done := prof.StartOperation(kind + " opencv")
			if _, err := cv.ReferenceResize(src, out.Width, out.Height); err != nil {
				log.Fatalf("❌ Benchmark reference failed: %v", err)
			}
			done()
		}
	}
	prof.Report(os.Stdout)
	if sum := images.Checksum(out); sum != first {
		log.Printf("⚠️ Output changed between applies: %s != %s", sum, first)
	} else {
		fmt.Printf("output checksum: %s\n", sum)
	}
}
