package renderer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.2, 0.4, 0.8, 1.0);
}
`

const computeWGSL = `
@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

const fragmentGLSL = `
out vec4 fragColor;
void main() {
    fragColor = vec4(1.0);
}
`

const computeGLSL = `
in vec2 vUV;
uniform sampler2D pos;
out vec4 next;
void main() {
    next = texture(pos, vUV) + vec4(0.01);
}
`

func newTestRenderer(t *testing.T, dev gpu.Device, pipelines ...pipeline.Pipeline) Renderer {
	t.Helper()
	r, err := NewRenderer(BackendExplicit, nil, WithDevice(dev), WithPipelines(pipelines...))
	require.NoError(t, err)
	return r
}

// indexOf returns the position of the first call equal to want, or -1.
func indexOf(calls []string, want string) int {
	for i, c := range calls {
		if c == want {
			return i
		}
	}
	return -1
}

func TestNewRendererWithoutWindowOrDevice(t *testing.T) {
	_, err := NewRenderer(BackendExplicit, nil)
	assert.Error(t, err)
}

func TestFrameOrder(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := pipeline.NewPipeline("sim", dev,
		pipeline.WithFragmentSource(fragmentWGSL),
		pipeline.WithComputeSource(computeWGSL),
	)
	r := newTestRenderer(t, dev, p)
	defer r.Clean()

	_, err := p.Declare(common.KindStorage, "particles", resource.Shape{Count: 128, Components: 4})
	require.NoError(t, err)
	_, err = p.Declare(common.KindUniform, "dt", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, p.Write("dt", common.Float32Bytes([]float32{0.016})))

	require.NoError(t, r.Frame())
	calls := dev.Calls()

	begin := indexOf(calls, "BeginFrame")
	compute := indexOf(calls, "BeginComputePass sim.compute")
	dispatch := indexOf(calls, "Dispatch 2 1 1")
	render := indexOf(calls, "BeginRenderPass surface")
	draw := indexOf(calls, "Draw 3 1")
	submit := indexOf(calls, "Submit")
	present := indexOf(calls, "Present")

	require.NotEqual(t, -1, begin)
	require.NotEqual(t, -1, compute)
	require.NotEqual(t, -1, dispatch)
	require.NotEqual(t, -1, render)
	require.NotEqual(t, -1, draw)
	writes := dev.CallsWithPrefix("WriteBuffer dt")
	require.NotEmpty(t, writes)
	assert.Less(t, indexOf(calls, writes[0]), begin, "writes flush before the frame begins")
	assert.Less(t, compute, dispatch)
	assert.Less(t, dispatch, render, "compute runs before the draw")
	assert.Less(t, render, draw)
	assert.Less(t, draw, submit)
	assert.Less(t, submit, present)
	assert.False(t, p.NeedsRebuild())
}

func TestFirstPipelineClearsLaterLoad(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	a := pipeline.NewPipeline("a", dev, pipeline.WithFragmentSource(fragmentWGSL))
	b := pipeline.NewPipeline("b", dev, pipeline.WithFragmentSource(fragmentWGSL))
	r := newTestRenderer(t, dev, a, b)
	defer r.Clean()

	require.NoError(t, r.Frame())
	assert.Len(t, dev.CallsWithPrefix("BeginRenderPass surface"), 2)
	assert.Equal(t, []string{"SetPipeline a", "SetPipeline b"}, dev.CallsWithPrefix("SetPipeline"))
	assert.Equal(t, []pipeline.Pipeline{a, b}, r.Pipelines())
}

func TestRegisterSkipsDuplicateKeys(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	a := pipeline.NewPipeline("a", dev, pipeline.WithFragmentSource(fragmentWGSL))
	dup := pipeline.NewPipeline("a", dev, pipeline.WithFragmentSource(fragmentWGSL))
	defer dup.Release()
	r := newTestRenderer(t, dev, a)
	defer r.Clean()

	r.RegisterPipelines(dup)
	require.Len(t, r.Pipelines(), 1)
	assert.Same(t, a, r.Pipeline("a"))
	assert.Nil(t, r.Pipeline("missing"))
}

func TestFailedBuildSkipsDraw(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := pipeline.NewPipeline("p", dev, pipeline.WithFragmentSource(fragmentWGSL))
	r := newTestRenderer(t, dev, p)
	defer r.Clean()

	dev.FailOn("CreateRenderPipeline", true)
	err := r.Frame()
	require.Error(t, err)
	assert.ErrorIs(t, err, gputest.ErrInjected)
	assert.Empty(t, dev.CallsWithPrefix("Draw"), "no render pipeline, no draw")
	assert.NotEmpty(t, dev.CallsWithPrefix("Present"), "the frame still presents")

	dev.FailOn("CreateRenderPipeline", false)
	dev.ResetCalls()
	_, err = p.Declare(common.KindUniform, "u", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, r.Frame())
	assert.Equal(t, []string{"Draw 3 1"}, dev.CallsWithPrefix("Draw"))
}

func TestReshapeDuringBrokenSourceSkipsDraw(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := pipeline.NewPipeline("p", dev, pipeline.WithFragmentSource(fragmentWGSL))
	r := newTestRenderer(t, dev, p)
	defer r.Clean()

	_, err := p.Declare(common.KindUniform, "a", resource.Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	require.NoError(t, r.Frame())
	require.Equal(t, []string{"Draw 3 1"}, dev.CallsWithPrefix("Draw"))

	p.SetSource(shader.ShaderTypeFragment, "@fragment fn fs_main( -> {")
	_, err = p.Declare(common.KindUniform, "a", resource.Shape{Count: 1, Components: 4})
	require.NoError(t, err)
	dev.ResetCalls()
	for range 2 {
		assert.ErrorIs(t, r.Frame(), shader.ErrCompile)
	}
	assert.Empty(t, dev.CallsWithPrefix("SetBindGroup"), "no bind group over a released buffer")
	assert.Empty(t, dev.CallsWithPrefix("Draw"))
	assert.Len(t, dev.CallsWithPrefix("Present"), 2)
	assert.True(t, p.NeedsRebuild(), "the broken source is retried")

	p.SetSource(shader.ShaderTypeFragment, fragmentWGSL)
	dev.ResetCalls()
	require.NoError(t, r.Frame())
	assert.Equal(t, []string{"Draw 3 1"}, dev.CallsWithPrefix("Draw"))
	assert.Empty(t, dev.OverReleased())
}

func TestEmulatedComputeParity(t *testing.T) {
	dev := gputest.NewDevice(gputest.Raster())
	domain, err := common.NewDomain(64)
	require.NoError(t, err)
	p := pipeline.NewPipeline("sim", dev,
		pipeline.WithFragmentSource(fragmentGLSL),
		pipeline.WithComputeSource(computeGLSL),
		pipeline.WithDomain(domain),
	)
	r := newTestRenderer(t, dev, p)
	defer r.Clean()

	_, err = p.Declare(common.KindStorage, "pos", resource.Shape{Count: 64, Components: 4})
	require.NoError(t, err)
	emu := p.Emulator()
	require.NotNil(t, emu)

	for n := 1; n <= 3; n++ {
		require.NoError(t, r.Frame())
		assert.Equal(t, n%2 == 0, emu.CurrentIsPing(), "parity flips once per frame")
	}
	assert.Empty(t, dev.CallsWithPrefix("BeginComputePass"), "raster devices never open native compute passes")
	assert.Len(t, dev.CallsWithPrefix("Draw 3 1"), 6, "one emulated pass and one draw per frame")
}

func TestEmulatedComputeWithoutStorage(t *testing.T) {
	dev := gputest.NewDevice(gputest.Raster())
	p := pipeline.NewPipeline("sim", dev,
		pipeline.WithFragmentSource(fragmentGLSL),
		pipeline.WithComputeSource(computeGLSL),
	)
	r := newTestRenderer(t, dev, p)
	defer r.Clean()

	_, err := p.Declare(common.KindUniform, "u", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	assert.NoError(t, r.Frame())
}

func TestResize(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	r := newTestRenderer(t, dev)

	require.NoError(t, r.Resize(800, 600))
	w, h := dev.Size()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	require.NoError(t, r.Clean())
	assert.ErrorIs(t, r.Resize(10, 10), ErrCleaned)
}

func TestCleanIsIdempotent(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := pipeline.NewPipeline("p", dev, pipeline.WithFragmentSource(fragmentWGSL))
	r := newTestRenderer(t, dev, p)

	_, err := p.Declare(common.KindTexture, "tex", resource.Shape{Width: 2, Height: 2})
	require.NoError(t, err)
	require.NoError(t, r.Frame())

	require.NoError(t, r.Clean())
	require.NoError(t, r.Clean())
	assert.True(t, dev.Released())
	assert.Len(t, dev.CallsWithPrefix("ReleaseDevice"), 1)
	assert.Empty(t, dev.OverReleased())
	assert.Equal(t, 0, dev.Live())
	assert.ErrorIs(t, r.Frame(), ErrCleaned)
	assert.Empty(t, r.Pipelines())
}
