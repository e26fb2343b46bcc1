package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gputest"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(0.2, 0.4, 0.8, 1.0);
}
`

const otherFragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 1.0, 1.0, 1.0);
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

func layoutEntries(t *testing.T, l gpu.BindGroupLayout) []gpu.LayoutEntry {
	t.Helper()
	gl, ok := l.(*gputest.BindGroupLayout)
	require.True(t, ok)
	return gl.Desc.Entries
}

func TestRebuildOnlyOnShapeChange(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL))
	defer p.Release()

	require.True(t, p.NeedsRebuild(), "a new pipeline needs a first build")
	require.NoError(t, p.Build())
	assert.False(t, p.NeedsRebuild())

	_, err := p.Declare(common.KindUniform, "time", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	assert.True(t, p.NeedsRebuild(), "new key")
	require.NoError(t, p.Build())

	_, err = p.Declare(common.KindUniform, "time", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, p.Write("time", common.Float32Bytes([]float32{1.5})))
	assert.False(t, p.NeedsRebuild(), "value updates never rebuild")

	_, err = p.Declare(common.KindTexture, "tex", resource.Shape{Width: 4, Height: 4})
	require.NoError(t, err)
	require.NoError(t, p.Build())
	_, err = p.Declare(common.KindTexture, "tex", resource.Shape{Width: 8, Height: 4})
	require.NoError(t, err)
	assert.True(t, p.NeedsRebuild(), "texture dimension change")
	require.NoError(t, p.Build())

	_, err = p.Declare(common.KindUniform, "time", resource.Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	assert.True(t, p.NeedsRebuild(), "component width change")
	require.NoError(t, p.Build())

	p.SetSource(shader.ShaderTypeFragment, fragmentWGSL)
	assert.False(t, p.NeedsRebuild(), "same source")
	p.SetSource(shader.ShaderTypeFragment, otherFragmentWGSL)
	assert.True(t, p.NeedsRebuild(), "source change")
	require.NoError(t, p.Build())

	assert.True(t, p.Remove("tex"))
	assert.True(t, p.NeedsRebuild(), "removed key")
	assert.False(t, p.Remove("tex"))
}

func TestBuildLayoutsByGroup(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL), WithComputeSource(computeWGSL))
	defer p.Release()

	for _, k := range []string{"a", "b", "c"} {
		_, err := p.Declare(common.KindUniform, k, resource.Shape{Count: 1, Components: 4})
		require.NoError(t, err)
	}
	for _, k := range []string{"t1", "t2"} {
		_, err := p.Declare(common.KindTexture, k, resource.Shape{Width: 2, Height: 2})
		require.NoError(t, err)
	}
	d, err := p.Declare(common.KindUniform, "d", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), d.Address.Group)
	assert.Equal(t, uint32(3), d.Address.Binding)
	_, err = p.Declare(common.KindStorage, "particles", resource.Shape{Count: 256, Components: 4})
	require.NoError(t, err)

	require.NoError(t, p.Build())
	providers := p.Providers()
	require.Len(t, providers, 3)

	uniforms := layoutEntries(t, providers[0].BindGroupLayout())
	require.Len(t, uniforms, 4)
	for i, e := range uniforms {
		assert.Equal(t, uint32(i), e.Binding)
		require.NotNil(t, e.Buffer)
		assert.Equal(t, gputypes.BufferBindingTypeUniform, e.Buffer.Type)
		assert.Equal(t, gputypes.ShaderStageVertex|gputypes.ShaderStageFragment|gputypes.ShaderStageCompute, e.Visibility)
	}

	textures := layoutEntries(t, providers[1].BindGroupLayout())
	require.Len(t, textures, 4)
	assert.NotNil(t, textures[0].Sampler)
	assert.NotNil(t, textures[1].Texture)
	assert.Equal(t, "t1", textures[0].Name)
	assert.Equal(t, uint32(2), textures[2].Binding)
	assert.Equal(t, "t2", textures[3].Name)
	assert.Equal(t, "t2", providers[1].Key(3))

	storage := layoutEntries(t, providers[2].BindGroupLayout())
	require.Len(t, storage, 1)
	assert.Equal(t, gputypes.ShaderStageCompute, storage[0].Visibility)
	assert.Equal(t, gputypes.BufferBindingTypeStorage, storage[0].Buffer.Type)

	assert.NotNil(t, p.ComputePipeline())
	assert.Nil(t, p.EmulatedComputePipeline())
	assert.Len(t, p.BindGroups(true), 3)
}

func TestVertexLayoutsOrderedByLocation(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL), WithInstanceAttribute("offset"))
	defer p.Release()

	_, err := p.Declare(common.KindAttribute, "position", resource.Shape{Count: 6, Components: 3})
	require.NoError(t, err)
	_, err = p.Declare(common.KindAttribute, "offset", resource.Shape{Count: 10, Components: 2})
	require.NoError(t, err)
	p.SetInstanceCount(10)
	require.NoError(t, p.Build())

	rp, ok := p.RenderPipeline().(*gputest.RenderPipeline)
	require.True(t, ok)
	vbs := rp.Desc.VertexBuffers
	require.Len(t, vbs, 2)
	assert.Equal(t, "position", vbs[0].Name)
	assert.Equal(t, uint64(12), vbs[0].ArrayStride)
	assert.Equal(t, gputypes.VertexFormatFloat32x3, vbs[0].Attributes[0].Format)
	assert.Equal(t, uint32(0), vbs[0].Attributes[0].ShaderLocation)
	assert.Equal(t, gputypes.VertexStepModeVertex, vbs[0].StepMode)
	assert.Equal(t, gputypes.VertexFormatFloat32x2, vbs[1].Attributes[0].Format)
	assert.Equal(t, uint32(1), vbs[1].Attributes[0].ShaderLocation)
	assert.Equal(t, gputypes.VertexStepModeInstance, vbs[1].StepMode)

	assert.Len(t, p.VertexBuffers(), 2)
	assert.Equal(t, uint32(6), p.VertexCount())
	assert.Equal(t, uint32(10), p.InstanceCount())
	p.SetVertexCount(3)
	assert.Equal(t, uint32(3), p.VertexCount())
}

func TestMatrixAttributeRejected(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL))
	defer p.Release()

	_, err := p.Declare(common.KindAttribute, "model", resource.Shape{Count: 1, Components: 16})
	require.NoError(t, err)
	assert.ErrorIs(t, p.Build(), ErrUnsupportedAttribute)
	assert.Nil(t, p.RenderPipeline())
}

func TestRenderStateReachesDescriptor(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev,
		WithFragmentSource(fragmentWGSL),
		WithBlendEnabled(true),
		WithBlendState(gputypes.BlendStatePremultiplied()),
		WithCullMode(gputypes.CullModeBack),
		WithTopology(gputypes.PrimitiveTopologyPointList),
		WithDepthTestEnabled(false),
		WithDepthBias(2, 1.5),
		WithClearColor(0, 0, 0, 1),
	)
	defer p.Release()
	require.NoError(t, p.Build())

	rp := p.RenderPipeline().(*gputest.RenderPipeline)
	require.NotNil(t, rp.Desc.Blend)
	assert.Equal(t, gputypes.BlendStatePremultiplied(), *rp.Desc.Blend)
	assert.Equal(t, gputypes.CullModeBack, rp.Desc.CullMode)
	assert.Equal(t, gputypes.PrimitiveTopologyPointList, rp.Desc.Topology)
	assert.False(t, rp.Desc.DepthTest)
	assert.True(t, rp.Desc.DepthWrite)
	assert.Equal(t, int32(2), rp.Desc.DepthBias)
	assert.Equal(t, gputypes.ColorWriteMaskAll, rp.Desc.WriteMask)
	assert.Equal(t, [4]float64{0, 0, 0, 1}, p.ClearColor())
	assert.Equal(t, uint32(3), p.VertexCount(), "full-screen triangle without attributes")
}

func TestBuildFailureKeepsPrevious(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL))
	defer p.Release()

	_, err := p.Declare(common.KindUniform, "a", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, p.Build())
	previous := p.RenderPipeline()
	groups := p.BindGroups(true)

	_, err = p.Declare(common.KindUniform, "b", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	live := dev.Live()

	dev.FailOn("CreateRenderPipeline", true)
	err = p.Build()
	assert.ErrorIs(t, err, gputest.ErrInjected)
	assert.Same(t, previous, p.RenderPipeline())
	assert.Equal(t, groups, p.BindGroups(true))
	assert.Equal(t, live, dev.Live(), "staged objects are released")
	assert.Equal(t, 1, p.Builds())

	dev.FailOn("CreateRenderPipeline", false)
	p.SetSource(shader.ShaderTypeFragment, otherFragmentWGSL)
	require.NoError(t, p.Build())
	assert.NotSame(t, previous, p.RenderPipeline())
	assert.Equal(t, 1, previous.(*gputest.RenderPipeline).Releases())
}

func TestFailedRebuildDropsStaleBindGroups(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL))
	defer p.Release()

	slot, err := p.Declare(common.KindUniform, "a", resource.Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	require.NoError(t, p.Build())
	old := slot.Handle.(*gputest.Buffer)
	previous := p.RenderPipeline()
	require.NotNil(t, previous)

	p.SetSource(shader.ShaderTypeFragment, "@fragment fn fs_main( -> {")
	_, err = p.Declare(common.KindUniform, "a", resource.Shape{Count: 1, Components: 4})
	require.NoError(t, err)
	require.Equal(t, 1, old.Releases())

	assert.ErrorIs(t, p.Build(), shader.ErrCompile)
	assert.True(t, p.NeedsRebuild())
	assert.Nil(t, p.RenderPipeline(), "bind groups over a reshaped key are not kept")
	assert.Empty(t, p.BindGroups(true))
	assert.Equal(t, 1, previous.(*gputest.RenderPipeline).Releases())

	p.SetSource(shader.ShaderTypeFragment, fragmentWGSL)
	require.NoError(t, p.Build())
	assert.False(t, p.NeedsRebuild())
	for _, bg := range p.BindGroups(true) {
		for _, entry := range bg.(*gputest.BindGroup).Desc.Entries {
			if buf, ok := entry.Buffer.(*gputest.Buffer); ok {
				assert.Zero(t, buf.Releases(), buf.Label())
			}
		}
	}
	assert.Empty(t, dev.OverReleased())
}

func TestMalformedDeclareKeepsBinding(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL))
	defer p.Release()

	_, err := p.Declare(common.KindUniform, "empty", resource.Shape{Count: 0, Components: 1})
	require.ErrorIs(t, err, resource.ErrMalformedShape)
	_, ok := p.Slot("empty")
	assert.False(t, ok)

	slot, err := p.Declare(common.KindUniform, "time", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), slot.Address.Binding, "a rejected key takes no binding")
}

func TestCompileErrorLeavesNoPipeline(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource("@fragment fn fs_main( -> {"))
	defer p.Release()

	assert.ErrorIs(t, p.Build(), shader.ErrCompile)
	assert.Nil(t, p.RenderPipeline())
	assert.True(t, p.NeedsRebuild(), "only a successful build clears the flag")

	p = NewPipeline("q", dev)
	defer p.Release()
	assert.ErrorIs(t, p.Build(), ErrNoFragment)
}

func TestRasterEmulatedCompute(t *testing.T) {
	dev := gputest.NewDevice(gputest.Raster())
	domain, err := common.NewDomain(1024)
	require.NoError(t, err)
	p := NewPipeline("sim", dev,
		WithFragmentSource(fragmentGLSL),
		WithComputeSource(computeGLSL),
		WithDomain(domain),
	)
	defer p.Release()

	_, err = p.Declare(common.KindStorage, "pos", resource.Shape{Count: 1024, Components: 4})
	require.NoError(t, err)
	_, err = p.Declare(common.KindUniform, "dt", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, p.Build())

	assert.Nil(t, p.ComputePipeline())
	require.NotNil(t, p.EmulatedComputePipeline())
	assert.True(t, p.HasCompute())
	ep := p.EmulatedComputePipeline().(*gputest.RenderPipeline)
	assert.True(t, ep.Desc.OffscreenTarget)
	assert.Equal(t, []gputypes.TextureFormat{gputypes.TextureFormatRGBA32Float}, ep.Desc.TargetFormats)

	providers := p.Providers()
	require.Len(t, providers, 2)
	storage := providers[0]
	assert.True(t, storage.PingPong())
	assert.False(t, providers[1].PingPong())

	entries := layoutEntries(t, storage.BindGroupLayout())
	require.Len(t, entries, 1)
	assert.Equal(t, gputypes.TextureSampleTypeUnfilterableFloat, entries[0].Texture.SampleType)

	db, ok := p.Emulator().Buffer("pos")
	require.True(t, ok)
	assert.Same(t, db.Ping().Texture, storage.BindGroupFor(true).(*gputest.BindGroup).Desc.Entries[0].Texture)
	assert.Same(t, db.Pong().Texture, storage.BindGroupFor(false).(*gputest.BindGroup).Desc.Entries[0].Texture)

	view, ok := p.StorageView("pos")
	require.True(t, ok)
	assert.Same(t, db.Latest(), view)
}

func TestExplicitWorkgroupCount(t *testing.T) {
	dev := gputest.NewDevice(gputest.Explicit())
	p := NewPipeline("p", dev, WithFragmentSource(fragmentWGSL), WithComputeSource(computeWGSL))
	defer p.Release()

	_, err := p.Declare(common.KindStorage, "particles", resource.Shape{Count: 1000, Components: 4})
	require.NoError(t, err)
	require.NoError(t, p.Build())
	assert.Equal(t, [3]uint32{16, 1, 1}, p.WorkgroupCount(), "domain falls back to the largest storage count")

	domain, err := common.NewDomain(64, 16, 4)
	require.NoError(t, err)
	p.SetDomain(domain)
	assert.Equal(t, [3]uint32{64, 1, 1}, p.WorkgroupCount())

	view, ok := p.StorageView("particles")
	require.True(t, ok)
	slot, _ := p.Slot("particles")
	assert.Same(t, slot.Buffer(), view)
}

func TestReleaseIsIdempotent(t *testing.T) {
	dev := gputest.NewDevice(gputest.Raster())
	p := NewPipeline("sim", dev, WithFragmentSource(fragmentGLSL), WithComputeSource(computeGLSL))

	_, err := p.Declare(common.KindStorage, "pos", resource.Shape{Count: 16, Components: 4})
	require.NoError(t, err)
	_, err = p.Declare(common.KindTexture, "tex", resource.Shape{Width: 2, Height: 2})
	require.NoError(t, err)
	require.NoError(t, p.Build())
	_, err = p.Declare(common.KindUniform, "u", resource.Shape{Count: 1, Components: 1})
	require.NoError(t, err)
	require.NoError(t, p.Build())

	p.Release()
	p.Release()
	assert.Empty(t, dev.OverReleased())
	assert.Equal(t, 0, dev.Live())

	_, err = p.Declare(common.KindUniform, "late", resource.Shape{Count: 1, Components: 1})
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, p.Build(), ErrReleased)
}
