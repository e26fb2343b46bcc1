package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/engine"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const document = `
backend: raster
window:
  title: particles
  width: 800
render:
  vsync: true
  msaa: 8
compute:
  particle_count: [64, 16, 4]
log:
  level: debug
`

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestParseOverDefaults(t *testing.T) {
	c, err := Parse([]byte(document), nil)
	require.NoError(t, err)

	assert.Equal(t, "raster", c.Backend)
	assert.Equal(t, "particles", c.Window.Title)
	assert.Equal(t, 800, c.Window.Width)
	assert.Equal(t, 720, c.Window.Height, "unset fields keep their default")
	assert.True(t, c.Render.VSync)
	assert.Equal(t, 8, c.Render.MSAA)
	assert.Equal(t, []int{64, 16, 4}, c.Compute.ParticleCount)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestEnvironmentOverrides(t *testing.T) {
	c, err := Parse([]byte(document), env(map[string]string{
		EnvBackend:  "webgpu",
		EnvWidth:    "1920",
		EnvHeight:   "1080",
		EnvLogLevel: "warn",
	}))
	require.NoError(t, err)
	assert.Equal(t, "webgpu", c.Backend)
	assert.Equal(t, 1920, c.Window.Width)
	assert.Equal(t, 1080, c.Window.Height)
	assert.Equal(t, "warn", c.Log.Level)

	_, err = Parse(nil, env(map[string]string{EnvWidth: "wide"}))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"backend", "backend: metal"},
		{"size", "window: {width: 0}"},
		{"msaa", "render: {msaa: 3}"},
		{"particle count", "compute: {particle_count: [1, 2, 3, 4]}"},
		{"log level", "log: {level: loud}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), nil)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("window: ["), nil)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oxy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))
	t.Setenv(EnvBackend, "gl")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gl", c.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOptionsMountEngine(t *testing.T) {
	c, err := Parse([]byte("compute: {particle_count: [0]}"), nil)
	require.NoError(t, err)
	opts, err := c.Options(zap.NewNop())
	require.NoError(t, err)

	dev := gputest.NewDevice(gputest.Explicit())
	e := engine.NewEngine(append(opts, engine.WithDevice(dev))...)
	defer e.Clean()
	assert.Error(t, e.Mount(), "a zero particle count fails at mount")

	c = Default()
	log, err := c.Logger()
	require.NoError(t, err)
	opts, err = c.Options(log)
	require.NoError(t, err)
	dev = gputest.NewDevice(gputest.Explicit())
	e = engine.NewEngine(append(opts, engine.WithDevice(dev))...)
	require.NoError(t, e.Mount())
	e.Clean()
	assert.True(t, dev.Released())
}
