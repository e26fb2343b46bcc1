package wgpu_device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

// The gputypes and wgpu enums follow different revisions of webgpu.h, so values are mapped by name rather than cast.

func textureFormat(f gputypes.TextureFormat) (wgpu.TextureFormat, error) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	case gputypes.TextureFormatRGBA32Float:
		return wgpu.TextureFormatRGBA32Float, nil
	case gputypes.TextureFormatR8Unorm:
		return wgpu.TextureFormatR8Unorm, nil
	default:
		return 0, fmt.Errorf("unsupported texture format %v", f)
	}
}

func gpuTextureFormat(f wgpu.TextureFormat) gputypes.TextureFormat {
	switch f {
	case wgpu.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return gputypes.TextureFormatRGBA8UnormSrgb
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return gputypes.TextureFormatBGRA8UnormSrgb
	default:
		return gputypes.TextureFormatBGRA8Unorm
	}
}

func bufferUsage(u gputypes.BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	pairs := []struct {
		from gputypes.BufferUsage
		to   wgpu.BufferUsage
	}{
		{gputypes.BufferUsageMapRead, wgpu.BufferUsageMapRead},
		{gputypes.BufferUsageMapWrite, wgpu.BufferUsageMapWrite},
		{gputypes.BufferUsageCopySrc, wgpu.BufferUsageCopySrc},
		{gputypes.BufferUsageCopyDst, wgpu.BufferUsageCopyDst},
		{gputypes.BufferUsageIndex, wgpu.BufferUsageIndex},
		{gputypes.BufferUsageVertex, wgpu.BufferUsageVertex},
		{gputypes.BufferUsageUniform, wgpu.BufferUsageUniform},
		{gputypes.BufferUsageStorage, wgpu.BufferUsageStorage},
	}
	for _, p := range pairs {
		if u&p.from != 0 {
			out |= p.to
		}
	}
	return out
}

func textureUsage(u gputypes.TextureUsage) wgpu.TextureUsage {
	var out wgpu.TextureUsage
	pairs := []struct {
		from gputypes.TextureUsage
		to   wgpu.TextureUsage
	}{
		{gputypes.TextureUsageCopySrc, wgpu.TextureUsageCopySrc},
		{gputypes.TextureUsageCopyDst, wgpu.TextureUsageCopyDst},
		{gputypes.TextureUsageTextureBinding, wgpu.TextureUsageTextureBinding},
		{gputypes.TextureUsageStorageBinding, wgpu.TextureUsageStorageBinding},
		{gputypes.TextureUsageRenderAttachment, wgpu.TextureUsageRenderAttachment},
	}
	for _, p := range pairs {
		if u&p.from != 0 {
			out |= p.to
		}
	}
	return out
}

func shaderStages(s gputypes.ShaderStages) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&gputypes.ShaderStageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gputypes.ShaderStageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	if s&gputypes.ShaderStageCompute != 0 {
		out |= wgpu.ShaderStageCompute
	}
	return out
}

func vertexFormat(f gputypes.VertexFormat) (wgpu.VertexFormat, error) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return wgpu.VertexFormatFloat32, nil
	case gputypes.VertexFormatFloat32x2:
		return wgpu.VertexFormatFloat32x2, nil
	case gputypes.VertexFormatFloat32x3:
		return wgpu.VertexFormatFloat32x3, nil
	case gputypes.VertexFormatFloat32x4:
		return wgpu.VertexFormatFloat32x4, nil
	default:
		return 0, fmt.Errorf("unsupported vertex format %v", f)
	}
}

func stepMode(m gputypes.VertexStepMode) wgpu.VertexStepMode {
	if m == gputypes.VertexStepModeInstance {
		return wgpu.VertexStepModeInstance
	}
	return wgpu.VertexStepModeVertex
}

func topology(t gputypes.PrimitiveTopology) wgpu.PrimitiveTopology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return wgpu.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return wgpu.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return wgpu.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return wgpu.PrimitiveTopologyTriangleStrip
	default:
		return wgpu.PrimitiveTopologyTriangleList
	}
}

func cullMode(c gputypes.CullMode) wgpu.CullMode {
	switch c {
	case gputypes.CullModeFront:
		return wgpu.CullModeFront
	case gputypes.CullModeBack:
		return wgpu.CullModeBack
	default:
		return wgpu.CullModeNone
	}
}

func frontFace(f gputypes.FrontFace) wgpu.FrontFace {
	if f == gputypes.FrontFaceCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}

func writeMask(m gputypes.ColorWriteMask) wgpu.ColorWriteMask {
	var out wgpu.ColorWriteMask
	if m&gputypes.ColorWriteMaskRed != 0 {
		out |= wgpu.ColorWriteMaskRed
	}
	if m&gputypes.ColorWriteMaskGreen != 0 {
		out |= wgpu.ColorWriteMaskGreen
	}
	if m&gputypes.ColorWriteMaskBlue != 0 {
		out |= wgpu.ColorWriteMaskBlue
	}
	if m&gputypes.ColorWriteMaskAlpha != 0 {
		out |= wgpu.ColorWriteMaskAlpha
	}
	return out
}

func blendFactor(f gputypes.BlendFactor) wgpu.BlendFactor {
	switch f {
	case gputypes.BlendFactorZero:
		return wgpu.BlendFactorZero
	case gputypes.BlendFactorSrc:
		return wgpu.BlendFactorSrc
	case gputypes.BlendFactorOneMinusSrc:
		return wgpu.BlendFactorOneMinusSrc
	case gputypes.BlendFactorSrcAlpha:
		return wgpu.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return wgpu.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return wgpu.BlendFactorDst
	case gputypes.BlendFactorOneMinusDst:
		return wgpu.BlendFactorOneMinusDst
	case gputypes.BlendFactorDstAlpha:
		return wgpu.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return wgpu.BlendFactorOneMinusDstAlpha
	default:
		return wgpu.BlendFactorOne
	}
}

func blendOperation(o gputypes.BlendOperation) wgpu.BlendOperation {
	switch o {
	case gputypes.BlendOperationSubtract:
		return wgpu.BlendOperationSubtract
	case gputypes.BlendOperationReverseSubtract:
		return wgpu.BlendOperationReverseSubtract
	case gputypes.BlendOperationMin:
		return wgpu.BlendOperationMin
	case gputypes.BlendOperationMax:
		return wgpu.BlendOperationMax
	default:
		return wgpu.BlendOperationAdd
	}
}

func blendState(b *gputypes.BlendState) *wgpu.BlendState {
	if b == nil {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			Operation: blendOperation(b.Color.Operation),
			SrcFactor: blendFactor(b.Color.SrcFactor),
			DstFactor: blendFactor(b.Color.DstFactor),
		},
		Alpha: wgpu.BlendComponent{
			Operation: blendOperation(b.Alpha.Operation),
			SrcFactor: blendFactor(b.Alpha.SrcFactor),
			DstFactor: blendFactor(b.Alpha.DstFactor),
		},
	}
}

// layoutEntry converts one gputypes layout entry. The returned kind tells CreateBindGroup which object of a
// texture resource a binding takes.
func layoutEntry(e gputypes.BindGroupLayoutEntry) (wgpu.BindGroupLayoutEntry, entryKind) {
	out := wgpu.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: shaderStages(e.Visibility),
	}
	switch {
	case e.Buffer != nil:
		switch e.Buffer.Type {
		case gputypes.BufferBindingTypeStorage:
			out.Buffer.Type = wgpu.BufferBindingTypeStorage
		case gputypes.BufferBindingTypeReadOnlyStorage:
			out.Buffer.Type = wgpu.BufferBindingTypeReadOnlyStorage
		default:
			out.Buffer.Type = wgpu.BufferBindingTypeUniform
		}
		return out, entryBuffer
	case e.Sampler != nil:
		out.Sampler.Type = wgpu.SamplerBindingTypeFiltering
		if e.Sampler.Type == gputypes.SamplerBindingTypeNonFiltering {
			out.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
		}
		return out, entrySampler
	default:
		out.Texture.SampleType = wgpu.TextureSampleTypeFloat
		if e.Texture != nil && e.Texture.SampleType == gputypes.TextureSampleTypeUnfilterableFloat {
			out.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		}
		out.Texture.ViewDimension = wgpu.TextureViewDimension2D
		return out, entryTexture
	}
}

func presentMode(m gpu.PresentMode) wgpu.PresentMode {
	switch m {
	case gpu.PresentModeVSync:
		return wgpu.PresentModeFifo
	case gpu.PresentModeUncapped:
		fallthrough
	default:
		return wgpu.PresentModeImmediate
	}
}
