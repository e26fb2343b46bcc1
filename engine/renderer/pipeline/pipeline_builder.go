package pipeline

import (
	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/allocator"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/double_buffer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexSource sets the vertex shader source for this pipeline.
//
// Parameters:
//   - source: the vertex shader source, WGSL or GLSL
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex source for this pipeline
func WithVertexSource(source string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.SetSource(shader.ShaderTypeVertex, source)
	}
}

// WithFragmentSource sets the fragment shader source for this pipeline.
//
// Parameters:
//   - source: the fragment shader source, WGSL or GLSL
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment source for this pipeline
func WithFragmentSource(source string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.SetSource(shader.ShaderTypeFragment, source)
	}
}

// WithComputeSource sets the compute shader source for this pipeline.
//
// Parameters:
//   - source: the compute shader source, WGSL or GLSL
//
// Returns:
//   - PipelineBuilderOption: a function that sets the compute source for this pipeline
func WithComputeSource(source string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.SetSource(shader.ShaderTypeCompute, source)
	}
}

// WithCompiler shares a shader compiler between pipelines.
func WithCompiler(c shader.Compiler) PipelineBuilderOption {
	return func(p *pipeline) {
		p.compiler = c
	}
}

// WithAllocator replaces the binding allocator created from the device limits.
func WithAllocator(a allocator.Allocator) PipelineBuilderOption {
	return func(p *pipeline) {
		p.allocator = a
	}
}

// WithDomain sets the compute dispatch domain.
func WithDomain(d common.Domain) PipelineBuilderOption {
	return func(p *pipeline) {
		p.domain = d
	}
}

// WithWarningHandler receives the sizing warnings of emulated storage buffers.
func WithWarningHandler(fn func(double_buffer.Warning)) PipelineBuilderOption {
	return func(p *pipeline) {
		p.warn = fn
	}
}

// WithLogger sets the logger handed to the allocator, cache, compiler and emulator.
func WithLogger(l *zap.Logger) PipelineBuilderOption {
	return func(p *pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithInstanceAttribute steps the named attributes once per instance instead of once per vertex.
func WithInstanceAttribute(keys ...string) PipelineBuilderOption {
	return func(p *pipeline) {
		for _, k := range keys {
			p.instanceAttributes[k] = true
		}
	}
}

// WithVertexCount sets the vertex count of the draw call.
func WithVertexCount(n uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexCount = n
	}
}

// WithInstanceCount sets the instance count of the draw call.
func WithInstanceCount(n uint32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.SetInstanceCount(n)
	}
}

// WithClearColor sets the clear color of the render pass.
func WithClearColor(r, g, b, a float64) PipelineBuilderOption {
	return func(p *pipeline) {
		p.clearColor = [4]float64{r, g, b, a}
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithDepthBias sets the constant depth bias and slope scale for this pipeline.
//
// Parameters:
//   - bias: the constant depth bias
//   - slopeScale: the depth bias slope scale
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth bias for this pipeline
func WithDepthBias(bias int32, slopeScale float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthBias = bias
		p.depthBiasSlopeScale = slopeScale
	}
}

// WithBlendEnabled sets whether blending is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether blending should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend enabled state for this pipeline
func WithBlendEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendEnabled = enabled
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use (e.g., gputypes.CullModeNone, gputypes.CullModeFront, gputypes.CullModeBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode gputypes.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
//
// Parameters:
//   - topology: the primitive topology to use (e.g., gputypes.PrimitiveTopologyTriangleList)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology gputypes.PrimitiveTopology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: the front face winding order to use (e.g., gputypes.FrontFaceCCW, gputypes.FrontFaceCW)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the front face winding order for this pipeline
func WithFrontFace(frontFace gputypes.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}

// WithWriteMask sets the color write mask for this pipeline.
//
// Parameters:
//   - writeMask: the color write mask to use (e.g., gputypes.ColorWriteMaskAll)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the color write mask for this pipeline
func WithWriteMask(writeMask gputypes.ColorWriteMask) PipelineBuilderOption {
	return func(p *pipeline) {
		p.writeMask = writeMask
	}
}

// WithBlendState sets the blend state used when blending is enabled.
//
// Parameters:
//   - blendState: the blend state to use
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend state for this pipeline
func WithBlendState(blendState gputypes.BlendState) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendState = blendState
	}
}
