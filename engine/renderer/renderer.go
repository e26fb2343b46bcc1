package renderer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gl_device"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/wgpu_device"
	"github.com/Carmen-Shannon/oxy-bind/engine/profiler"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/double_buffer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-bind/engine/window"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrCleaned is returned by Frame and Resize after Clean.
var ErrCleaned = errors.New("renderer cleaned")

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	order         []string

	backendType RendererBackendType
	device      gpu.Device
	profiler    *profiler.Profiler
	logger      *zap.Logger
	cleaned     bool

	forceFallbackAdapter bool
	pendingPresentMode   *gpu.PresentMode
	pendingMSAA          *gpu.MSAASampleCount
}

// Renderer is the frame driver. It owns the device and drives every registered pipeline once per Frame in a fixed
// order: flush writes, dispatch compute, rebuild, render, submit and present.
type Renderer interface {
	// Backend returns the backend the renderer was created for.
	Backend() RendererBackendType

	// Device returns the device pipelines must be created on.
	Device() gpu.Device

	// Pipeline returns a registered pipeline by key, or nil.
	Pipeline(key string) pipeline.Pipeline

	// Pipelines returns the registered pipelines in draw order.
	Pipelines() []pipeline.Pipeline

	// RegisterPipelines adds pipelines to the frame. A key already registered is skipped.
	RegisterPipelines(pipelines ...pipeline.Pipeline)

	// Frame drives one frame.
	//
	// Returns:
	//   - error: every flush, build and pass error of the frame combined. A failed build does not stop the frame;
	//     the pipeline keeps its previous objects or skips its draw.
	Frame() error

	// Resize recreates the size-dependent attachments before the next pass.
	Resize(width, height int) error

	// Profiler returns the profiler observing every frame.
	Profiler() *profiler.Profiler

	// Clean releases every registered pipeline and the device exactly once. Later calls return nil.
	Clean() error
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer for the given backend. Unless WithDevice is given, the device is created for win:
// the explicit backend needs a window created with window.ClientAPINone, the raster backend one with
// window.ClientAPIOpenGL whose context is current on the calling thread.
//
// Parameters:
//   - backendType: the backend to create a device for
//   - win: the window to present into; may be nil when WithDevice is used
//   - options: RendererBuilderOption values
//
// Returns:
//   - Renderer: the renderer
//   - error: a wrapped gpu.ErrNoAdapter when no device could be created
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		backendType:   backendType,
		logger:        zap.NewNop(),
	}

	for _, opt := range options {
		opt(r)
	}
	if r.profiler == nil {
		r.profiler = profiler.NewProfiler(profiler.WithLogger(r.logger))
	}
	if r.device != nil {
		return r, nil
	}
	if win == nil {
		return nil, fmt.Errorf("%s renderer: no window and no device", backendType)
	}

	presentMode := gpu.PresentModeUncapped
	if r.pendingPresentMode != nil {
		presentMode = *r.pendingPresentMode
	}
	msaa := gpu.MSAA4x
	if r.pendingMSAA != nil {
		msaa = *r.pendingMSAA
	}

	var err error
	switch backendType {
	case BackendRaster:
		interval := 0
		if presentMode == gpu.PresentModeVSync {
			interval = 1
		}
		win.SetSwapInterval(interval)
		r.device, err = gl_device.NewDevice(win,
			gl_device.WithMSAA(msaa),
			gl_device.WithLogger(r.logger),
		)
	case BackendExplicit:
		fallthrough
	default:
		r.device, err = wgpu_device.NewDevice(win.SurfaceDescriptor(), win.Width(), win.Height(),
			wgpu_device.WithPresentMode(presentMode),
			wgpu_device.WithMSAA(msaa),
			wgpu_device.WithForceSoftwareRenderer(r.forceFallbackAdapter),
			wgpu_device.WithLogger(r.logger),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("%s renderer: %w", backendType, err)
	}
	return r, nil
}

func (r *renderer) Backend() RendererBackendType {
	return r.backendType
}

func (r *renderer) Device() gpu.Device {
	return r.device
}

func (r *renderer) Profiler() *profiler.Profiler {
	return r.profiler
}

func (r *renderer) register(p pipeline.Pipeline) {
	key := p.PipelineKey()
	if _, exists := r.pipelineCache[key]; exists {
		return
	}
	r.pipelineCache[key] = p
	r.order = append(r.order, key)
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() []pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pipeline.Pipeline, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.pipelineCache[key])
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pipelines {
		r.register(p)
	}
}

func (r *renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleaned {
		return ErrCleaned
	}
	return r.device.Resize(width, height)
}

func (r *renderer) Frame() error {
	pipelines := r.Pipelines()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleaned {
		return ErrCleaned
	}
	start := time.Now()
	defer func() {
		r.profiler.ObserveFrame(time.Since(start))
		r.profiler.Tick()
	}()

	var errs error
	// 1. flush coalesced writes
	for _, p := range pipelines {
		errs = multierr.Append(errs, p.Flush())
	}

	if err := r.device.BeginFrame(); err != nil {
		return multierr.Append(errs, fmt.Errorf("failed to begin frame: %w", err))
	}

	// 2. compute
	attempted := make(map[pipeline.Pipeline]bool)
	for _, p := range pipelines {
		errs = multierr.Append(errs, r.compute(p, attempted))
	}

	// 3. rebuild, at most one attempt per pipeline and frame
	for _, p := range pipelines {
		if p.NeedsRebuild() && !attempted[p] {
			errs = multierr.Append(errs, r.build(p))
		}
	}

	// 4. render
	for i, p := range pipelines {
		errs = multierr.Append(errs, r.draw(p, i > 0))
	}

	// 5. submit and present
	if err := r.device.EndFrame(); err != nil {
		return multierr.Append(errs, fmt.Errorf("failed to end frame: %w", err))
	}
	r.device.Present()
	return errs
}

func (r *renderer) build(p pipeline.Pipeline) error {
	err := p.Build()
	r.profiler.Rebuild(p.PipelineKey(), err)
	return err
}

// compute dispatches the pipeline's compute stage. A pipeline with a compute source is rebuilt first when its
// resource set changed: a reshaped resource releases the handles the previous bind groups reference, and a new
// pipeline has no compute object to dispatch yet.
func (r *renderer) compute(p pipeline.Pipeline, attempted map[pipeline.Pipeline]bool) error {
	if p.Source(shader.ShaderTypeCompute) == "" {
		return nil
	}
	if p.NeedsRebuild() {
		attempted[p] = true
		if err := r.build(p); err != nil {
			return err
		}
	}
	if !p.HasCompute() {
		return nil
	}

	if emu := p.Emulator(); emu != nil {
		err := emu.Dispatch(p.EmulatedComputePipeline(), p.BindGroups)
		if errors.Is(err, double_buffer.ErrNoBuffers) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", p.PipelineKey(), err)
		}
		r.profiler.Dispatch(p.PipelineKey(), "emulated")
		return nil
	}

	pass, err := r.device.BeginComputePass(p.PipelineKey() + ".compute")
	if err != nil {
		return fmt.Errorf("pipeline %q: failed to begin compute pass: %w", p.PipelineKey(), err)
	}
	pass.SetPipeline(p.ComputePipeline())
	for i, bg := range p.BindGroups(true) {
		if bg != nil {
			pass.SetBindGroup(uint32(i), bg)
		}
	}
	wg := p.WorkgroupCount()
	pass.DispatchWorkgroups(wg[0], wg[1], wg[2])
	if err := pass.End(); err != nil {
		return fmt.Errorf("pipeline %q: failed to end compute pass: %w", p.PipelineKey(), err)
	}
	r.profiler.Dispatch(p.PipelineKey(), "native")
	return nil
}

// draw opens the surface pass and draws the pipeline. The first pipeline clears the surface, later ones load it.
// Without a render pipeline the pass is still opened so the surface is cleared, but nothing is drawn.
func (r *renderer) draw(p pipeline.Pipeline, load bool) error {
	pass, err := r.device.BeginRenderPass(gpu.RenderPassDescriptor{
		Label:      p.PipelineKey(),
		ClearColor: p.ClearColor(),
		Load:       load,
	})
	if err != nil {
		return fmt.Errorf("pipeline %q: failed to begin render pass: %w", p.PipelineKey(), err)
	}

	rp := p.RenderPipeline()
	if rp == nil {
		r.profiler.SkippedDraw(p.PipelineKey())
	} else {
		readPing := true
		if emu := p.Emulator(); emu != nil {
			readPing = emu.CurrentIsPing()
		}
		pass.SetPipeline(rp)
		for i, bg := range p.BindGroups(readPing) {
			if bg != nil {
				pass.SetBindGroup(uint32(i), bg)
			}
		}
		for slot, buf := range p.VertexBuffers() {
			if buf != nil {
				pass.SetVertexBuffer(uint32(slot), buf)
			}
		}
		pass.Draw(p.VertexCount(), p.InstanceCount())
	}
	if err := pass.End(); err != nil {
		return fmt.Errorf("pipeline %q: failed to end render pass: %w", p.PipelineKey(), err)
	}
	return nil
}

func (r *renderer) Clean() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleaned {
		return nil
	}
	r.cleaned = true
	for _, key := range r.order {
		r.pipelineCache[key].Release()
	}
	r.pipelineCache = make(map[string]pipeline.Pipeline)
	r.order = nil
	if r.device != nil {
		r.device.Release()
	}
	r.logger.Debug("renderer cleaned", zap.String("backend", r.backendType.String()))
	return nil
}
