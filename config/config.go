// Package config - YAML/JSON configuration for a resampling pipeline: which
// transform to build and how to schedule it.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-resample/images"
	"github.com/nvr-ai/go-resample/pipeline"
	"github.com/nvr-ai/go-resample/resample"
	"github.com/nvr-ai/go-resample/schedule"
)

// Transform kinds.
const (
	KindResize    = "resize"
	KindWarpPolar = "warp-polar"
)

// ErrInvalid is returned by Validate and Load for unusable configurations.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete pipeline configuration.
type Config struct {
	// Transform selects the geometric transform.
	Transform TransformConfig `json:"transform" yaml:"transform"`
	// Schedule tunes the compiled plan.
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
}

// TransformConfig describes a pipeline.Transform.
type TransformConfig struct {
	// Kind is KindResize or KindWarpPolar.
	Kind string `json:"kind" yaml:"kind"`
	// Width of the output; 0 takes the transform default.
	Width int `json:"width" yaml:"width"`
	// Height of the output; 0 takes the transform default.
	Height int `json:"height" yaml:"height"`
	// Size is a resolution alias ("720p") or "WIDTHxHEIGHT". It overrides
	// Width and Height when set.
	Size string `json:"size,omitempty" yaml:"size,omitempty"`
	// CenterX of the polar unwarp, in output pixels; unset means width/2.
	CenterX *float32 `json:"center_x,omitempty" yaml:"center_x,omitempty"`
	// CenterY of the polar unwarp, in output pixels; unset means height/2.
	CenterY *float32 `json:"center_y,omitempty" yaml:"center_y,omitempty"`
	// MaxRadius of the polar unwarp; 0 means min(center_x, center_y).
	MaxRadius float32 `json:"max_radius" yaml:"max_radius"`
	// AngularEdge is "clamp" or "wrap".
	AngularEdge string `json:"angular_edge" yaml:"angular_edge"`
}

// ScheduleConfig describes the schedule request and pipeline options.
type ScheduleConfig struct {
	// Target is "cpu", "accelerated" or "auto".
	Target string `json:"target" yaml:"target"`
	// TileWidth of CPU tiles; 0 takes the transform default.
	TileWidth int `json:"tile_width" yaml:"tile_width"`
	// TileHeight of CPU tiles; 0 takes the transform default.
	TileHeight int `json:"tile_height" yaml:"tile_height"`
	// Lanes per inner block; 0 takes the transform default.
	Lanes int `json:"lanes" yaml:"lanes"`
	// Workers in the pool; 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
	// DeviceTileWidth of accelerator workgroups; 0 means 16.
	DeviceTileWidth int `json:"device_tile_width" yaml:"device_tile_width"`
	// DeviceTileHeight of accelerator workgroups; 0 means 16.
	DeviceTileHeight int `json:"device_tile_height" yaml:"device_tile_height"`
	// Precompute tabulates source coordinates at schedule time.
	Precompute bool `json:"precompute" yaml:"precompute"`
	// Fill is written for out-of-bounds pixels.
	Fill float32 `json:"fill" yaml:"fill"`
	// Debug enables [DEBUG] logging.
	Debug bool `json:"debug" yaml:"debug"`
}

// Default returns a configuration for a same-size resize on the best available
// target.
//
// Returns:
//   - Config: The default configuration.
//
// @example
// cfg := config.Default()
// cfg.Transform.Kind = config.KindWarpPolar
// t, err := cfg.BuildTransform()
func Default() Config {
	return Config{
		Transform: TransformConfig{
			Kind:        KindResize,
			AngularEdge: resample.EdgeClamp.String(),
		},
		Schedule: ScheduleConfig{
			Target:     schedule.TargetAuto.String(),
			Precompute: true,
		},
	}
}

// Load reads a YAML or JSON file over Default and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read %s", path)
	}
	return Parse(data)
}

// Parse decodes YAML or JSON over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(ErrInvalid, "decode: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}

// Validate rejects unknown names and negative sizes.
func (c Config) Validate() error {
	t := c.Transform
	switch t.Kind {
	case KindResize, KindWarpPolar:
	default:
		return errors.Wrapf(ErrInvalid, "transform kind %q", t.Kind)
	}
	if t.Width < 0 || t.Height < 0 {
		return errors.Wrapf(ErrInvalid, "transform size %dx%d", t.Width, t.Height)
	}
	if t.Size != "" {
		if _, err := images.ParseResolution(t.Size); err != nil {
			return errors.Wrap(ErrInvalid, err.Error())
		}
	}
	if t.MaxRadius < 0 {
		return errors.Wrapf(ErrInvalid, "max radius %v", t.MaxRadius)
	}
	if _, err := c.angularEdge(); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}

	s := c.Schedule
	if _, err := schedule.ParseTarget(s.Target); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	for name, v := range map[string]int{
		"tile_width":         s.TileWidth,
		"tile_height":        s.TileHeight,
		"lanes":              s.Lanes,
		"workers":            s.Workers,
		"device_tile_width":  s.DeviceTileWidth,
		"device_tile_height": s.DeviceTileHeight,
	} {
		if v < 0 {
			return errors.Wrapf(ErrInvalid, "%s %d", name, v)
		}
	}
	return nil
}

func (c Config) angularEdge() (resample.EdgeMode, error) {
	m, err := resample.ParseEdgeMode(c.Transform.AngularEdge)
	if err != nil {
		return m, err
	}
	if m == resample.EdgeMirror {
		return m, errors.Errorf("angular edge %q: want clamp or wrap", c.Transform.AngularEdge)
	}
	return m, nil
}

// BuildTransform builds the configured transform.
func (c Config) BuildTransform() (pipeline.Transform, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	t := c.Transform
	if t.Size != "" {
		r, _ := images.ParseResolution(t.Size)
		t.Width, t.Height = r.Width, r.Height
	}
	if t.Kind == KindResize {
		return pipeline.Resize{Width: t.Width, Height: t.Height}, nil
	}
	edge, _ := c.angularEdge()
	return pipeline.WarpPolar{
		Width:       t.Width,
		Height:      t.Height,
		CenterX:     t.CenterX,
		CenterY:     t.CenterY,
		MaxRadius:   t.MaxRadius,
		AngularEdge: edge,
	}, nil
}

// Target returns the configured schedule target.
func (c Config) Target() (schedule.Target, error) {
	t, err := schedule.ParseTarget(c.Schedule.Target)
	if err != nil {
		return t, errors.Wrap(ErrInvalid, err.Error())
	}
	return t, nil
}

// Request returns the schedule overrides. Output size and channels are filled in
// by the pipeline.
func (c Config) Request() schedule.Request {
	s := c.Schedule
	return schedule.Request{
		TileWidth:        s.TileWidth,
		TileHeight:       s.TileHeight,
		Lanes:            s.Lanes,
		Workers:          s.Workers,
		DeviceTileWidth:  s.DeviceTileWidth,
		DeviceTileHeight: s.DeviceTileHeight,
	}
}

// Options returns the pipeline options the configuration implies.
func (c Config) Options() []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithRequest(c.Request()),
		pipeline.WithPrecompute(c.Schedule.Precompute),
		pipeline.WithFill(c.Schedule.Fill),
		pipeline.WithDebug(c.Schedule.Debug),
	}
}
