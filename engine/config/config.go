// Package config loads engine settings from YAML with environment overrides and turns them into engine options.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Carmen-Shannon/oxy-bind/engine"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/logger"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bind/engine/window"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file.
const (
	EnvBackend  = "OXY_BACKEND"
	EnvWidth    = "OXY_WIDTH"
	EnvHeight   = "OXY_HEIGHT"
	EnvLogLevel = "OXY_LOG_LEVEL"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config holds the engine settings.
type Config struct {
	Backend string `yaml:"backend"`

	Window struct {
		Title  string `yaml:"title"`
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
	} `yaml:"window"`

	Render struct {
		VSync         bool    `yaml:"vsync"`
		MSAA          int     `yaml:"msaa"`
		ForceSoftware bool    `yaml:"force_software"`
		FrameLimit    float64 `yaml:"frame_limit"`
	} `yaml:"render"`

	Compute struct {
		ParticleCount []int `yaml:"particle_count"`
	} `yaml:"compute"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Profiling bool `yaml:"profiling"`
}

// Default returns the settings used for every field the file leaves out.
func Default() Config {
	var c Config
	c.Backend = renderer.BackendExplicit.String()
	c.Window.Title = "oxy"
	c.Window.Width = 1280
	c.Window.Height = 720
	c.Render.MSAA = int(gpu.MSAA4x)
	c.Log.Level = "info"
	return c
}

// Load reads the YAML file at path over Default and applies the environment overrides.
//
// Parameters:
//   - path: the config file; empty skips the file
//
// Returns:
//   - Config: the validated settings
//   - error: a read, parse or validation error
func Load(path string) (Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		data = b
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes data over Default, applies overrides from lookup and validates the result.
//
// Parameters:
//   - data: YAML document, may be empty
//   - lookup: environment lookup, os.LookupEnv in production; nil skips overrides
//
// Returns:
//   - Config: the validated settings
//   - error: a parse or validation error
func Parse(data []byte, lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if lookup != nil {
		if err := c.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok {
		c.Backend = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	for name, dst := range map[string]*int{EnvWidth: &c.Window.Width, EnvHeight: &c.Window.Height} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, name, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks every field that would otherwise fail at Mount.
func (c Config) Validate() error {
	if _, err := renderer.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("%w: window size %dx%d", ErrInvalid, c.Window.Width, c.Window.Height)
	}
	switch gpu.MSAASampleCount(c.Render.MSAA) {
	case gpu.MSAAOff, gpu.MSAA4x, gpu.MSAA8x, gpu.MSAA16x:
	default:
		return fmt.Errorf("%w: msaa %d is not one of 1, 4, 8, 16", ErrInvalid, c.Render.MSAA)
	}
	if n := len(c.Compute.ParticleCount); n > 3 {
		return fmt.Errorf("%w: particle_count has %d components", ErrInvalid, n)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Logger builds the zap logger described by the log section.
func (c Config) Logger() (*zap.Logger, error) {
	return logger.New(logger.Config{Level: c.Log.Level, Development: c.Log.Development, Name: "oxy"})
}

// Options converts the settings into engine options. The logger is handed to every component.
//
// Parameters:
//   - log: the logger, usually from Logger
//
// Returns:
//   - []engine.EngineBuilderOption: options for engine.NewEngine
//   - error: an invalid backend name
func (c Config) Options(log *zap.Logger) ([]engine.EngineBuilderOption, error) {
	backend, err := renderer.ParseBackend(c.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	presentMode := gpu.PresentModeUncapped
	if c.Render.VSync {
		presentMode = gpu.PresentModeVSync
	}
	msaa := gpu.MSAASampleCount(c.Render.MSAA)

	windowOptions := []window.WindowBuilderOption{
		window.WithTitle(c.Window.Title),
		window.WithWidth(c.Window.Width),
		window.WithHeight(c.Window.Height),
	}
	if backend == renderer.BackendRaster {
		windowOptions = append(windowOptions, window.WithSamples(int(msaa)))
	}

	options := []engine.EngineBuilderOption{
		engine.WithBackend(backend),
		engine.WithLogger(log),
		engine.WithProfiling(c.Profiling),
		engine.WithRenderFrameLimit(c.Render.FrameLimit),
		engine.WithWindowOptions(windowOptions...),
		engine.WithRendererOptions(
			renderer.WithPresentMode(presentMode),
			renderer.WithMSAA(msaa),
			renderer.WithForceSoftwareRenderer(c.Render.ForceSoftware),
		),
	}
	if len(c.Compute.ParticleCount) > 0 {
		options = append(options, engine.WithParticleCount(c.Compute.ParticleCount...))
	}
	return options, nil
}
