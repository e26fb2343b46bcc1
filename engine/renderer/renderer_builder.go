package renderer

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/pipeline"
	"go.uber.org/zap"
)

// RendererBuilderOption is a functional option used to configure a Renderer during construction.
type RendererBuilderOption func(*renderer)

// WithPipeline registers a pipeline to be driven every frame.
//
// Parameters:
//   - p: the pipeline to register
//
// Returns:
//   - RendererBuilderOption: a function that registers the pipeline with the renderer
func WithPipeline(p pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		r.register(p)
	}
}

// WithPipelines registers several pipelines, drawn in the given order.
//
// Parameters:
//   - pipelines: the pipelines to register
//
// Returns:
//   - RendererBuilderOption: a function that registers the pipelines with the renderer
func WithPipelines(pipelines ...pipeline.Pipeline) RendererBuilderOption {
	return func(r *renderer) {
		for _, p := range pipelines {
			r.register(p)
		}
	}
}

// WithPresentMode sets the present mode for the renderer.
//
// Parameters:
//   - mode: the PresentMode to use (e.g., gpu.PresentModeVSync, gpu.PresentModeUncapped)
//
// Returns:
//   - RendererBuilderOption: a function that sets the present mode on the renderer
func WithPresentMode(mode gpu.PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithMSAA sets the MSAA sample count for the renderer.
// Only power-of-two values are valid: gpu.MSAAOff (1), gpu.MSAA4x (4), gpu.MSAA8x (8), gpu.MSAA16x (16).
// WebGPU guarantees support for 1 and 4; higher values are adapter-dependent.
//
// Parameters:
//   - count: the MSAASampleCount to use
//
// Returns:
//   - RendererBuilderOption: a function that sets the MSAA sample count on the renderer
func WithMSAA(count gpu.MSAASampleCount) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingMSAA = &count
	}
}

// WithForceSoftwareRenderer sets whether to force the use of a software (fallback) adapter.
//
// Parameters:
//   - force: true to force software rendering, false to prefer hardware
//
// Returns:
//   - RendererBuilderOption: a function that sets the fallback adapter preference on the renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithDevice drives an existing device instead of creating one for the window. The renderer takes ownership and
// releases it in Clean.
func WithDevice(d gpu.Device) RendererBuilderOption {
	return func(r *renderer) {
		r.device = d
	}
}

// WithProfiler sets the profiler observing every frame.
func WithProfiler(p *profiler.Profiler) RendererBuilderOption {
	return func(r *renderer) {
		r.profiler = p
	}
}

// WithLogger sets the logger handed to the device.
func WithLogger(l *zap.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if l != nil {
			r.logger = l
		}
	}
}
