package double_buffer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextureSize(t *testing.T) {
	tests := []struct {
		name          string
		dims          []int
		width, height uint32
		warnings      []WarnCode
	}{
		{"perfect square", []int{1024}, 32, 32, nil},
		{"non-square", []int{1000}, 32, 32, []WarnCode{WarnNonSquare}},
		{"one", []int{1}, 1, 1, nil},
		{"two", []int{2}, 2, 2, []WarnCode{WarnNonSquare}},
		{"2d as is", []int{128, 8}, 128, 8, nil},
		{"3d flattened", []int{64, 16, 4}, 64, 64, []WarnCode{WarnFlattened3D}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := common.NewDomain(tt.dims...)
			require.NoError(t, err)
			w, h, warnings := TextureSize(d)
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
			assert.Equal(t, tt.warnings, warnings)
		})
	}
}

type fixture struct {
	dev      *gputest.Device
	emu      Emulator
	cache    resource.Cache
	warnings []Warning
}

func newFixture(t *testing.T, dims ...int) *fixture {
	t.Helper()
	f := &fixture{dev: gputest.NewDevice(gputest.Raster())}
	d, err := common.NewDomain(dims...)
	require.NoError(t, err)
	f.emu = NewEmulator(f.dev, WithDomain(d), WithWarningHandler(func(w Warning) { f.warnings = append(f.warnings, w) }))
	f.cache = resource.NewCache(f.dev, resource.WithFactory(common.KindStorage, f.emu.Factory()))
	return f
}

func (f *fixture) storage(t *testing.T, key string, values []float32) *DoubleBuffer {
	t.Helper()
	data, shape := resource.Pack(common.KindStorage, 1, values)
	_, _, err := f.cache.GetOrCreate(key, common.KindStorage, shape)
	require.NoError(t, err)
	require.NoError(t, f.cache.Write(key, data))
	require.NoError(t, f.cache.Flush())
	db, ok := f.emu.Buffer(key)
	require.True(t, ok)
	return db
}

func (f *fixture) pipeline(t *testing.T) gpu.RenderPipeline {
	t.Helper()
	p, err := f.dev.CreateRenderPipeline(gpu.RenderPipelineDescriptor{Label: "compute"})
	require.NoError(t, err)
	return p
}

func TestSeedIsIdenticalOnBothSides(t *testing.T) {
	f := newFixture(t, 4)
	db := f.storage(t, "pos", []float32{1, 2, 3, 4})

	ping := db.Ping().Texture.(*gputest.Texture)
	pong := db.Pong().Texture.(*gputest.Texture)
	assert.Equal(t, ping.Data, pong.Data)
	assert.Len(t, ping.Data, 4*texelBytes)
	assert.Equal(t, []float32{1, 0, 0, 0, 2, 0, 0, 0}, common.BytesFloat32(ping.Data[:32]))
	assert.Same(t, db.Ping().Texture, db.Latest(), "ping is latest before any dispatch")
}

func TestZeroSeedWhenNeverWritten(t *testing.T) {
	f := newFixture(t, 4)
	_, _, err := f.cache.GetOrCreate("vel", common.KindStorage, resource.Shape{Count: 4, Components: 2})
	require.NoError(t, err)
	db, _ := f.emu.Buffer("vel")
	ping := db.Ping().Texture.(*gputest.Texture)
	pong := db.Pong().Texture.(*gputest.Texture)
	assert.Equal(t, make([]byte, 4*texelBytes), ping.Data)
	assert.Equal(t, ping.Data, pong.Data)
}

func TestDispatchParity(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 7} {
		f := newFixture(t, 16)
		db := f.storage(t, "pos", make([]float32, 16))
		p := f.pipeline(t)
		for i := 0; i < n; i++ {
			require.NoError(t, f.emu.Dispatch(p, nil))
		}
		if n%2 == 1 {
			assert.Same(t, db.Pong().Texture, db.Latest(), "n=%d", n)
		} else {
			assert.Same(t, db.Ping().Texture, db.Latest(), "n=%d", n)
		}
		assert.Equal(t, n%2 == 0, f.emu.CurrentIsPing())
	}
}

func TestDispatchReadsCurrentWritesOther(t *testing.T) {
	f := newFixture(t, 16)
	f.storage(t, "pos", make([]float32, 16))
	p := f.pipeline(t)

	var reads []bool
	source := func(readPing bool) []gpu.BindGroup {
		reads = append(reads, readPing)
		return nil
	}
	f.dev.ResetCalls()
	require.NoError(t, f.emu.Dispatch(p, source))
	require.NoError(t, f.emu.Dispatch(p, source))

	assert.Equal(t, []bool{true, false}, reads)
	assert.Equal(t, []string{"BeginRenderPass pos.pong", "BeginRenderPass pos.ping"}, f.dev.CallsWithPrefix("BeginRenderPass"))
	assert.Contains(t, f.dev.Calls(), "Draw 3 1")
}

func TestMultipleKeysShareTargetAndParity(t *testing.T) {
	f := newFixture(t, 4)
	f.storage(t, "pos", make([]float32, 4))
	p := f.pipeline(t)
	require.NoError(t, f.emu.Dispatch(p, nil))

	vel := f.storage(t, "vel", make([]float32, 4))
	assert.False(t, vel.CurrentIsPing(), "new buffers join the current parity")

	f.dev.ResetCalls()
	require.NoError(t, f.emu.Dispatch(p, nil))
	assert.Equal(t, []string{"CreateFramebuffer storage.ping 2"}, f.dev.CallsWithPrefix("CreateFramebuffer"))
	for _, db := range f.emu.Buffers() {
		assert.True(t, db.CurrentIsPing())
	}
}

func TestDispatchWithoutBuffers(t *testing.T) {
	f := newFixture(t, 4)
	assert.ErrorIs(t, f.emu.Dispatch(f.pipeline(t), nil), ErrNoBuffers)
}

func TestSizingWarningsReported(t *testing.T) {
	f := newFixture(t, 64, 16, 4)
	db := f.storage(t, "grid", make([]float32, 64*16*4))
	w, h := db.Size()
	assert.Equal(t, uint32(64), w)
	assert.Equal(t, uint32(64), h)
	require.Len(t, f.warnings, 1)
	assert.Equal(t, WarnFlattened3D, f.warnings[0].Code)
	assert.Equal(t, "grid", f.warnings[0].Key)

	f = newFixture(t, 1000)
	f.storage(t, "pos", make([]float32, 1000))
	require.Len(t, f.warnings, 1)
	assert.Equal(t, WarnNonSquare, f.warnings[0].Code)
}

func TestReleaseExactlyOnce(t *testing.T) {
	f := newFixture(t, 4)
	f.storage(t, "pos", make([]float32, 4))
	f.storage(t, "vel", make([]float32, 4))
	require.NoError(t, f.emu.Dispatch(f.pipeline(t), nil))

	f.emu.Release()
	f.cache.Release()
	f.emu.Release()

	assert.Empty(t, f.dev.OverReleased())
	assert.Equal(t, 1, f.dev.Live(), "only the pipeline created by the test remains")
}

func TestReshapeReplacesBuffer(t *testing.T) {
	f := newFixture(t, 4)
	old := f.storage(t, "pos", make([]float32, 4))
	_, change, err := f.cache.GetOrCreate("pos", common.KindStorage, resource.Shape{Count: 4, Components: 2})
	require.NoError(t, err)
	assert.Equal(t, resource.Reshaped, change)

	db, ok := f.emu.Buffer("pos")
	require.True(t, ok)
	assert.NotSame(t, old, db)
	assert.Len(t, f.emu.Buffers(), 1)
	assert.Equal(t, 1, old.Ping().Texture.(*gputest.Texture).Releases())
}
