package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/engine/math"
	"github.com/spaghettifunk/framekeeper/engine/renderer"
	"github.com/spaghettifunk/framekeeper/engine/renderer/frames"
	"github.com/spaghettifunk/framekeeper/engine/renderer/gpu"
)

// ErrInvalid marks configuration values that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

type EngineConfig struct {
	Application ApplicationConfig `toml:"application"`
	Logging     LoggingConfig     `toml:"logging"`
	Renderer    RendererConfig    `toml:"renderer"`
	Descriptors DescriptorConfig  `toml:"descriptors"`
}

type ApplicationConfig struct {
	Name        string `toml:"name"`
	StartPosX   uint32 `toml:"start_pos_x"`
	StartPosY   uint32 `toml:"start_pos_y"`
	StartWidth  uint32 `toml:"start_width"`
	StartHeight uint32 `toml:"start_height"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type RendererConfig struct {
	FramesInFlight   int        `toml:"frames_in_flight"`
	FrameTimeout     Duration   `toml:"frame_timeout"`
	ImmediateTimeout Duration   `toml:"immediate_timeout"`
	MaxDrawWidth     uint32     `toml:"max_draw_width"`
	MaxDrawHeight    uint32     `toml:"max_draw_height"`
	RenderScale      float32    `toml:"render_scale"`
	PresentMode      string     `toml:"present_mode"`
	Validation       bool       `toml:"validation"`
	ClearColor       [4]float32 `toml:"clear_color"`
	ShowHUD          bool       `toml:"show_hud"`
	HUDFont          string     `toml:"hud_font"`
}

type DescriptorConfig struct {
	InitialSets    uint32             `toml:"initial_sets"`
	MaxSetsPerPool uint32             `toml:"max_sets_per_pool"`
	Ratios         map[string]float32 `toml:"ratios"`
}

// Duration reads "1s" or "250ms" style strings.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var descriptorTypes = map[string]gpu.DescriptorType{
	"sampler":                gpu.DescriptorSampler,
	"sampled_image":          gpu.DescriptorSampledImage,
	"storage_image":          gpu.DescriptorStorageImage,
	"storage_buffer":         gpu.DescriptorStorageBuffer,
	"uniform_buffer":         gpu.DescriptorUniformBuffer,
	"combined_image_sampler": gpu.DescriptorCombinedImageSampler,
}

var presentModes = map[string]gpu.PresentMode{
	"fifo":         gpu.PresentModeFIFO,
	"mailbox":      gpu.PresentModeMailbox,
	"immediate":    gpu.PresentModeImmediate,
	"fifo_relaxed": gpu.PresentModeFIFORelaxed,
}

func Default() *EngineConfig {
	return &EngineConfig{
		Application: ApplicationConfig{
			Name:        "Framekeeper",
			StartPosX:   100,
			StartPosY:   100,
			StartWidth:  1280,
			StartHeight: 720,
		},
		Logging: LoggingConfig{Level: "info"},
		Renderer: RendererConfig{
			FramesInFlight:   frames.FramesInFlight,
			FrameTimeout:     Duration{time.Second},
			ImmediateTimeout: Duration{10 * time.Second},
			MaxDrawWidth:     2560,
			MaxDrawHeight:    1440,
			RenderScale:      1,
			PresentMode:      "fifo",
			ClearColor:       [4]float32{0.1, 0.1, 0.12, 1},
			ShowHUD:          true,
		},
		Descriptors: DescriptorConfig{
			InitialSets:    1000,
			MaxSetsPerPool: 4092,
			Ratios: map[string]float32{
				"storage_image":          3,
				"storage_buffer":         3,
				"uniform_buffer":         3,
				"combined_image_sampler": 4,
			},
		},
	}
}

// Load reads path on top of the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (*EngineConfig, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Wrapf(err, "line %d column %d", row, col)
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func (c *EngineConfig) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *EngineConfig) Validate() error {
	if c.Renderer.FramesInFlight != frames.FramesInFlight {
		return errors.Wrapf(ErrInvalid, "frames_in_flight must be %d, got %d", frames.FramesInFlight, c.Renderer.FramesInFlight)
	}
	if c.Renderer.FrameTimeout.Duration <= 0 {
		return errors.Wrap(ErrInvalid, "frame_timeout must be positive")
	}
	if c.Renderer.ImmediateTimeout.Duration < 0 {
		return errors.Wrap(ErrInvalid, "immediate_timeout must not be negative")
	}
	if c.Renderer.MaxDrawWidth == 0 || c.Renderer.MaxDrawHeight == 0 {
		return errors.Wrap(ErrInvalid, "max draw extent must not be empty")
	}
	if c.Renderer.RenderScale < 0.1 || c.Renderer.RenderScale > 1 {
		return errors.Wrapf(ErrInvalid, "render_scale %v outside [0.1, 1]", c.Renderer.RenderScale)
	}
	if _, err := c.PresentMode(); err != nil {
		return err
	}
	if _, err := core.ParseLogLevel(c.Logging.Level); err != nil {
		return errors.Wrap(ErrInvalid, err.Error())
	}
	if c.Descriptors.InitialSets == 0 {
		return errors.Wrap(ErrInvalid, "initial_sets must be positive")
	}
	if c.Descriptors.MaxSetsPerPool < c.Descriptors.InitialSets {
		return errors.Wrapf(ErrInvalid, "max_sets_per_pool %d below initial_sets %d", c.Descriptors.MaxSetsPerPool, c.Descriptors.InitialSets)
	}
	if _, err := c.Ratios(); err != nil {
		return err
	}
	if c.Application.StartWidth == 0 || c.Application.StartHeight == 0 {
		return errors.Wrap(ErrInvalid, "window size must not be empty")
	}
	return nil
}

func (c *EngineConfig) PresentMode() (gpu.PresentMode, error) {
	mode, ok := presentModes[strings.ToLower(c.Renderer.PresentMode)]
	if !ok {
		return 0, errors.Wrapf(ErrInvalid, "unknown present_mode %q", c.Renderer.PresentMode)
	}
	return mode, nil
}

func (c *EngineConfig) LogLevel() core.LogLevel {
	level, err := core.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return core.InfoLevel
	}
	return level
}

// Ratios converts the descriptor ratio table. The order is stable so
// pools are created the same way on every run.
func (c *EngineConfig) Ratios() ([]gpu.PoolSizeRatio, error) {
	if len(c.Descriptors.Ratios) == 0 {
		return nil, errors.Wrap(ErrInvalid, "descriptor ratios are empty")
	}
	names := []string{"sampler", "combined_image_sampler", "sampled_image", "storage_image", "uniform_buffer", "storage_buffer"}
	for name := range c.Descriptors.Ratios {
		if _, ok := descriptorTypes[name]; !ok {
			return nil, errors.Wrapf(ErrInvalid, "unknown descriptor type %q", name)
		}
	}
	out := make([]gpu.PoolSizeRatio, 0, len(c.Descriptors.Ratios))
	for _, name := range names {
		ratio, ok := c.Descriptors.Ratios[name]
		if !ok {
			continue
		}
		if ratio <= 0 {
			return nil, errors.Wrapf(ErrInvalid, "ratio for %s must be positive", name)
		}
		out = append(out, gpu.PoolSizeRatio{Type: descriptorTypes[name], Ratio: ratio})
	}
	return out, nil
}

// RendererOptions builds the orchestrator options. c must be valid.
func (c *EngineConfig) RendererOptions() renderer.Options {
	mode, _ := c.PresentMode()
	ratios, _ := c.Ratios()
	return renderer.Options{
		FenceTimeout:     c.Renderer.FrameTimeout.Duration,
		ImmediateTimeout: c.Renderer.ImmediateTimeout.Duration,
		MaxDrawExtent:    gpu.Extent2D{Width: c.Renderer.MaxDrawWidth, Height: c.Renderer.MaxDrawHeight},
		RenderScale:      math.Clamp(c.Renderer.RenderScale, 0.1, 1),
		PresentMode:      mode,
		InitialSets:      c.Descriptors.InitialSets,
		MaxSetsPerPool:   c.Descriptors.MaxSetsPerPool,
		FrameRatios:      ratios,
		ClearColor:       c.Renderer.ClearColor,
	}
}
