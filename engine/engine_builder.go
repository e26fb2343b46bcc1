package engine

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bind/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithBackend selects the backend the device is created for. Defaults to renderer.BackendExplicit.
//
// Parameters:
//   - backend: the backend type
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(backend renderer.RendererBackendType) EngineBuilderOption {
	return func(e *engine) {
		e.backendType = backend
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. The caller keeps ownership and closes it.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithWindowOptions sets the options of the window created at Mount. The client API is chosen from the backend.
//
// Parameters:
//   - options: window builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindowOptions(options ...window.WindowBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.windowOptions = append(e.windowOptions, options...)
	}
}

// WithDevice drives an existing device; no window is created. The engine takes ownership of the device.
//
// Parameters:
//   - d: the device
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(d gpu.Device) EngineBuilderOption {
	return func(e *engine) {
		e.device = d
	}
}

// WithRendererOptions forwards options to the renderer created at Mount.
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOptions = append(e.rendererOptions, options...)
	}
}

// WithPipelineOptions forwards options to the main pipeline created at Mount. They are applied after the engine's
// own options.
func WithPipelineOptions(options ...pipeline.PipelineBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.pipelineOptions = append(e.pipelineOptions, options...)
	}
}

// WithShaders sets the initial shader sources. See Engine.SetShaders.
func WithShaders(vertex, fragment, compute string) EngineBuilderOption {
	return func(e *engine) {
		e.sources[shader.ShaderTypeVertex] = vertex
		e.sources[shader.ShaderTypeFragment] = fragment
		e.sources[shader.ShaderTypeCompute] = compute
	}
}

// WithParticleCount sets the compute domain as a count or an [x, y] or [x, y, z] shape. A malformed count fails
// Mount.
//
// Parameters:
//   - dims: one to three positive extents
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithParticleCount(dims ...int) EngineBuilderOption {
	return func(e *engine) {
		e.domainDims = dims
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) EngineBuilderOption {
	return func(e *engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithLogSink sets the function receiving configuration errors and warnings. Each distinct message of a key is
// delivered once until the key recovers.
func WithLogSink(fn func(string)) EngineBuilderOption {
	return func(e *engine) {
		e.logSink = fn
	}
}

// WithProfiling enables or disables periodic frame rate and heap logging.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profiling = enabled
	}
}

// WithRegisterer registers the frame metrics on r.
func WithRegisterer(r prometheus.Registerer) EngineBuilderOption {
	return func(e *engine) {
		e.registerer = r
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.frameLimit = frameDuration(fps)
	}
}

// WithListener subscribes fn to hook during construction. See Engine.On.
func WithListener(hook Hook, fn func()) EngineBuilderOption {
	return func(e *engine) {
		if fn != nil {
			e.listeners[hook] = append(e.listeners[hook], fn)
		}
	}
}
