package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-resample/config"
	"github.com/nvr-ai/go-resample/gpu"
	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/images/cv"
	"github.com/nvr-ai/go-resample/pipeline"
	"github.com/nvr-ai/go-resample/schedule"
)

func main() {
	var (
		deviceID   int
		configPath string
		mode       string
		size       string
		target     string
		debug      bool
	)
	flag.IntVar(&deviceID, "device", 0, "Video capture device")
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON pipeline configuration")
	flag.StringVar(&mode, "mode", config.KindResize, "Transform: resize | warp-polar")
	flag.StringVar(&size, "size", "640", "Output size as an alias or WIDTHxHEIGHT")
	flag.StringVar(&target, "target", "auto", "Schedule target: cpu | accelerated | auto")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatalf("❌ Failed to load config: %v", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Transform.Kind = mode
		case "target":
			cfg.Schedule.Target = target
		case "debug":
			cfg.Schedule.Debug = debug
		}
	})
	if cfg.Transform.Size == "" && cfg.Transform.Width == 0 && cfg.Transform.Height == 0 {
		cfg.Transform.Size = size
	}
	t, err := cfg.BuildTransform()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	tgt, err := cfg.Target()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		log.Fatalf("❌ Failed to open device %d: %v", deviceID, err)
	}
	defer webcam.Close()

	window := gocv.NewWindow("Resample")
	defer window.Close()

	img := gocv.NewMat()
	defer img.Close()

	// The first frame fixes the geometry the pipeline is scheduled for.
	if ok := webcam.Read(&img); !ok || img.Empty() {
		log.Fatalf("❌ Cannot read device %d", deviceID)
	}
	first, err := cv.FromMat(img)
	if err != nil {
		log.Fatalf("❌ Unsupported frame: %v", err)
	}

	caps := schedule.HostOnly()
	if tgt != schedule.TargetCPU {
		caps = gpu.Capabilities()
	}
	p, err := pipeline.New[uint8](first.Descriptor(), t, cfg.Options()...)
	if err != nil {
		log.Fatalf("❌ Failed to create pipeline: %v", err)
	}
	defer p.Close()
	if err := p.Schedule(tgt, caps); err != nil {
		log.Fatalf("❌ Failed to schedule %s: %v", t.Name(), err)
	}
	log.Printf("✅ Scheduled %s %s -> %s: %s", t.Name(), p.InputDescriptor(), p.OutputDescriptor(), p.Plan())

	out, err := images.NewBufferFor[uint8](p.OutputDescriptor())
	if err != nil {
		log.Fatalf("❌ Failed to allocate output: %v", err)
	}

	green := color.RGBA{0, 255, 0, 0}
	fps := 0.0
	frameCount := 0
	lastTime := time.Now()

	log.Printf("📋 Reading camera device %d", deviceID)
	for {
		if ok := webcam.Read(&img); !ok {
			log.Printf("⚠️ Cannot read device %d", deviceID)
			return
		}
		if img.Empty() {
			continue
		}

		frame, err := cv.FromMat(img)
		if err != nil {
			log.Printf("⚠️ Skipping frame: %v", err)
			continue
		}
		if err := p.Apply(frame, out); err != nil {
			log.Fatalf("❌ Failed to apply %s: %v", t.Name(), err)
		}

		frameCount++
		if elapsed := time.Since(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = time.Now()
		}

		shown, err := cv.ToMat(out)
		if err != nil {
			log.Fatalf("❌ Failed to convert output: %v", err)
		}
		gocv.PutText(&shown, fmt.Sprintf("%s %.1f fps", p.Plan().Target(), fps), image.Pt(10, 24),
			gocv.FontHersheyPlain, 1.4, green, 2)
		window.IMShow(shown)
		shown.Close()
		if window.WaitKey(1) == 27 {
			return
		}
	}
}
