package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/logger"
	"github.com/Carmen-Shannon/oxy-bind/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/double_buffer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bind/engine/window"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// MainPipeline is the key of the pipeline every setter writes to.
const MainPipeline = "main"

var (
	// ErrNotMounted is returned by Run when Mount has not succeeded.
	ErrNotMounted = errors.New("engine not mounted")
	// ErrCleaned is returned by Mount and Run after Clean.
	ErrCleaned = errors.New("engine cleaned")
)

// Hook names a lifecycle event listeners can subscribe to with On.
type Hook int

const (
	// HookMount runs once after the renderer and the main pipeline exist.
	HookMount Hook = iota
	// HookResize runs after the device was resized to the new window size.
	HookResize
	// HookRender runs after every frame, once the render callback returned.
	HookRender
	// HookClean runs after every GPU resource was released.
	HookClean
)

func (h Hook) String() string {
	switch h {
	case HookMount:
		return "mount"
	case HookResize:
		return "resize"
	case HookRender:
		return "render"
	case HookClean:
		return "clean"
	default:
		return "unknown"
	}
}

// engine implements the Engine interface.
// It is the single mutator of the main pipeline's resources; mu guards setters called from input callbacks.
type engine struct {
	mu sync.Mutex

	window        window.Window
	ownsWindow    bool
	windowOptions []window.WindowBuilderOption

	backendType     renderer.RendererBackendType
	device          gpu.Device
	rendererOptions []renderer.RendererBuilderOption
	pipelineOptions []pipeline.PipelineBuilderOption
	renderer        renderer.Renderer
	pipeline        pipeline.Pipeline

	sources    map[shader.ShaderType]string
	domainDims []int
	pending    []func(p pipeline.Pipeline)
	listeners  map[Hook][]func()
	logger     *zap.Logger
	logSink    func(string)
	sink       *logger.Sink
	profiler   *profiler.Profiler
	registerer prometheus.Registerer
	profiling  bool
	frameLimit time.Duration
	lastRender time.Time
	onRender   func(deltaTime float32)
	initErr    error
	mounted    bool
	cleaned    bool
}

// Engine is the reactive dispatch core: one state object exposing named resource setters and lifecycle hooks over
// either backend.
//
// A setter with an unseen key allocates an address, creates the slot and marks the pipeline for rebuild; a known key
// with an unchanged shape only enqueues an upload. Setters called before Mount are replayed in order when the
// pipeline is created. Errors never escape the core: they are reported once per key and message through the log
// sink and the pipeline keeps its last valid state.
type Engine interface {
	// Uniform sets a uniform value. Accepted values are float32, float64, int, int32, uint32, bool, [2|3|4|16]float32,
	// []float32, []float64, [][2|3|4]float32 and Vectors.
	Uniform(key string, value any)

	// Attribute sets per-vertex data. Keys registered with pipeline.WithInstanceAttribute advance per instance.
	Attribute(key string, value any)

	// Texture sets a sampled RGBA8 texture from an image.Image or common.TextureStagingData.
	Texture(key string, value any)

	// Storage sets persistent compute data. The first write seeds both sides of an emulated double buffer.
	Storage(key string, value any)

	// StorageView returns the current storage handle of key for fragment-stage sampling: the buffer on the explicit
	// backend, the most recently written texture on the raster backend.
	StorageView(key string) (gpu.Handle, bool)

	// SetShaders replaces the shader sources. An empty vertex source selects the fullscreen triangle; an empty
	// compute source removes the compute stage.
	SetShaders(vertex, fragment, compute string)

	// Mount creates the window (unless WithWindow or WithDevice was given), the device and the main pipeline.
	// A failed mount is fatal: it is reported once and no frame is ever driven afterwards.
	Mount() error

	// Resize recreates the size-dependent attachments before the next frame.
	Resize(width, height int)

	// Render drives one frame.
	Render()

	// Step is Render; hosts with their own loop call it once per frame.
	Step()

	// Clean releases every GPU handle exactly once and detaches the frame driver. Later calls are no-ops.
	Clean()

	// On subscribes fn to hook. Listeners run after the core's own handler, in subscription order.
	On(hook Hook, fn func())

	// Run mounts if needed, drives Step from the window loop on the calling thread until the window closes, then
	// cleans up.
	Run() error

	// SetRenderCallback registers a function called after every frame with the time since the previous frame.
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit caps the frames per second driven by Run. 0 uncaps.
	SetRenderFrameLimit(fps float64)

	// Err returns the mount error, if any.
	Err() error

	Window() window.Window
	Renderer() renderer.Renderer
	Pipeline() pipeline.Pipeline
	Profiler() *profiler.Profiler
}

var _ Engine = &engine{}

// NewEngine creates a new Engine instance with the provided options. Nothing touches the GPU until Mount.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		backendType: renderer.BackendExplicit,
		sources:     make(map[shader.ShaderType]string),
		listeners:   make(map[Hook][]func()),
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}

	e.sink = logger.NewSink(e.logger, e.logSink)
	profilerLogger := zap.NewNop()
	if e.profiling {
		profilerLogger = e.logger.Named("profiler")
	}
	e.profiler = profiler.NewProfiler(
		profiler.WithLogger(profilerLogger),
		profiler.WithRegisterer(e.registerer),
	)
	return e
}

func (e *engine) Window() window.Window {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderer
}

func (e *engine) Pipeline() pipeline.Pipeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initErr
}

func (e *engine) Uniform(key string, value any) {
	e.setNumeric(common.KindUniform, key, value)
}

func (e *engine) Attribute(key string, value any) {
	e.setNumeric(common.KindAttribute, key, value)
}

func (e *engine) Storage(key string, value any) {
	e.setNumeric(common.KindStorage, key, value)
}

func (e *engine) Texture(key string, value any) {
	data, err := textureData(value)
	if err != nil {
		e.sink.Error(key, err)
		return
	}
	shape := resource.Shape{Width: data.Width, Height: data.Height}
	e.dispatch(common.KindTexture, key, data.Pixels, shape)
}

func (e *engine) setNumeric(kind common.ResourceKind, key string, value any) {
	values, components, err := normalize(value)
	if err != nil {
		e.sink.Error(key, err)
		return
	}
	data, shape := resource.Pack(kind, components, values)
	e.dispatch(kind, key, data, shape)
}

// dispatch routes a normalized value to the main pipeline, or queues it until Mount.
func (e *engine) dispatch(kind common.ResourceKind, key string, data []byte, shape resource.Shape) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cleaned || e.initErr != nil {
		return
	}
	apply := func(p pipeline.Pipeline) {
		if _, err := p.Declare(kind, key, shape); err != nil {
			e.sink.Error(key, err)
			return
		}
		if err := p.Write(key, data); err != nil {
			e.sink.Error(key, err)
			return
		}
		e.sink.Forget(key)
	}
	if e.pipeline == nil {
		e.pending = append(e.pending, apply)
		return
	}
	apply(e.pipeline)
}

func (e *engine) StorageView(key string) (gpu.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pipeline == nil {
		return nil, false
	}
	return e.pipeline.StorageView(key)
}

func (e *engine) SetShaders(vertex, fragment, compute string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sources := map[shader.ShaderType]string{
		shader.ShaderTypeVertex:   vertex,
		shader.ShaderTypeFragment: fragment,
		shader.ShaderTypeCompute:  compute,
	}
	for shaderType, source := range sources {
		e.sources[shaderType] = source
		if e.pipeline != nil {
			e.pipeline.SetSource(shaderType, source)
		}
	}
}

func (e *engine) On(hook Hook, fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[hook] = append(e.listeners[hook], fn)
}

// emit runs the listeners of hook. It must be called without holding mu so listeners may call setters.
func (e *engine) emit(hook Hook) {
	e.mu.Lock()
	listeners := append([]func(){}, e.listeners[hook]...)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func (e *engine) Mount() error {
	e.mu.Lock()
	switch {
	case e.cleaned:
		e.mu.Unlock()
		return ErrCleaned
	case e.initErr != nil:
		err := e.initErr
		e.mu.Unlock()
		return err
	case e.mounted:
		e.mu.Unlock()
		return nil
	}

	if err := e.mount(); err != nil {
		e.initErr = err
		e.sink.Error(HookMount.String(), err)
		e.mu.Unlock()
		return err
	}
	e.mounted = true
	e.lastRender = time.Now()
	e.mu.Unlock()

	e.emit(HookMount)
	return nil
}

// mount creates the window, renderer and main pipeline, then replays queued setters. Called with mu held.
func (e *engine) mount() error {
	var domain common.Domain
	if len(e.domainDims) > 0 {
		d, err := common.NewDomain(e.domainDims...)
		if err != nil {
			return err
		}
		domain = d
	}

	rendererOptions := append([]renderer.RendererBuilderOption{
		renderer.WithLogger(e.logger.Named("renderer")),
		renderer.WithProfiler(e.profiler),
	}, e.rendererOptions...)

	if e.device != nil {
		rendererOptions = append(rendererOptions, renderer.WithDevice(e.device))
	} else if e.window == nil {
		api := window.ClientAPINone
		if e.backendType == renderer.BackendRaster {
			api = window.ClientAPIOpenGL
		}
		w, err := window.NewWindow(append([]window.WindowBuilderOption{window.WithClientAPI(api)}, e.windowOptions...)...)
		if err != nil {
			return fmt.Errorf("failed to create window: %w", err)
		}
		e.window = w
		e.ownsWindow = true
	}

	r, err := renderer.NewRenderer(e.backendType, e.window, rendererOptions...)
	if err != nil {
		return err
	}
	e.renderer = r

	pipelineOptions := []pipeline.PipelineBuilderOption{
		pipeline.WithLogger(e.logger.Named("pipeline")),
		pipeline.WithWarningHandler(func(w double_buffer.Warning) {
			e.sink.Warn(w.Key, w.Error())
		}),
	}
	if !domain.IsZero() {
		pipelineOptions = append(pipelineOptions, pipeline.WithDomain(domain))
	}
	for shaderType, source := range e.sources {
		if source == "" {
			continue
		}
		switch shaderType {
		case shader.ShaderTypeVertex:
			pipelineOptions = append(pipelineOptions, pipeline.WithVertexSource(source))
		case shader.ShaderTypeFragment:
			pipelineOptions = append(pipelineOptions, pipeline.WithFragmentSource(source))
		case shader.ShaderTypeCompute:
			pipelineOptions = append(pipelineOptions, pipeline.WithComputeSource(source))
		}
	}
	pipelineOptions = append(pipelineOptions, e.pipelineOptions...)

	e.pipeline = pipeline.NewPipeline(MainPipeline, r.Device(), pipelineOptions...)
	r.RegisterPipelines(e.pipeline)

	for _, apply := range e.pending {
		apply(e.pipeline)
	}
	e.pending = nil

	if e.window != nil {
		e.window.SetResizeCallback(e.Resize)
	}
	e.logger.Info("engine mounted",
		zap.Stringer("backend", e.backendType),
		zap.String("device", r.Device().Capabilities().Backend),
	)
	return nil
}

func (e *engine) Resize(width, height int) {
	e.mu.Lock()
	if !e.mounted || e.cleaned {
		e.mu.Unlock()
		return
	}
	if err := e.renderer.Resize(width, height); err != nil {
		e.sink.Error(HookResize.String(), err)
	}
	e.mu.Unlock()

	e.emit(HookResize)
}

func (e *engine) Step() {
	e.Render()
}

func (e *engine) Render() {
	e.mu.Lock()
	if !e.mounted || e.cleaned {
		e.mu.Unlock()
		return
	}
	if err := e.renderer.Frame(); err != nil {
		for _, err := range multierr.Errors(err) {
			e.sink.Error(HookRender.String(), err)
		}
	} else {
		e.sink.Forget(HookRender.String())
	}
	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now
	onRender := e.onRender
	e.mu.Unlock()

	if onRender != nil {
		onRender(dt)
	}
	e.emit(HookRender)
}

func (e *engine) Clean() {
	e.mu.Lock()
	if e.cleaned {
		e.mu.Unlock()
		return
	}
	e.cleaned = true
	e.pending = nil
	if e.renderer != nil {
		if err := e.renderer.Clean(); err != nil {
			e.sink.Error(HookClean.String(), err)
		}
	}
	e.renderer = nil
	e.pipeline = nil
	if e.ownsWindow && e.window != nil {
		if err := e.window.Close(); err != nil {
			e.sink.Error(HookClean.String(), err)
		}
	}
	e.mu.Unlock()

	e.emit(HookClean)
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onRender = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameLimit = frameDuration(fps)
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

func (e *engine) Run() error {
	if err := e.Mount(); err != nil {
		return err
	}
	e.mu.Lock()
	w := e.window
	e.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%w: no window to run", ErrNotMounted)
	}

	w.SetUpdateCallback(func() {
		start := time.Now()
		e.Step()

		e.mu.Lock()
		limit := e.frameLimit
		e.mu.Unlock()
		if limit > 0 {
			if remaining := limit - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	})
	w.ProcessMessages()
	e.Clean()
	return nil
}
