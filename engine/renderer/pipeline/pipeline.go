package pipeline

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/allocator"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/double_buffer"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

var (
	// ErrNoFragment is returned by Build when no fragment source was set.
	ErrNoFragment = errors.New("pipeline has no fragment source")
	// ErrUnsupportedAttribute is returned by Build for attributes that do not fit one vertex location.
	ErrUnsupportedAttribute = errors.New("attribute shape not supported")
	// ErrReleased is returned by calls on a released pipeline.
	ErrReleased = errors.New("pipeline released")
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	pipelineKey string
	device      gpu.Device
	caps        gpu.Capabilities
	logger      *zap.Logger
	warn        func(double_buffer.Warning)

	allocator allocator.Allocator
	cache     resource.Cache
	compiler  shader.Compiler
	// emulator is nil on devices with native storage buffers.
	emulator double_buffer.Emulator
	domain   common.Domain

	sources map[shader.ShaderType]string
	// shaders holds the shaders of the last successful build.
	shaders map[shader.ShaderType]shader.Shader

	renderPipeline   gpu.RenderPipeline
	computePipeline  gpu.ComputePipeline
	emulatedPipeline gpu.RenderPipeline
	providers        []bind_group_provider.BindGroupProvider
	vertexSlots      []*resource.Slot
	needsRebuild     bool
	stale            bool
	builds           int
	released         bool

	instanceAttributes map[string]bool
	vertexCount        uint32
	instanceCount      uint32
	clearColor         [4]float64

	depthTestEnabled    bool
	depthWriteEnabled   bool
	depthBias           int32
	depthBiasSlopeScale float32
	blendEnabled        bool
	cullMode            gputypes.CullMode
	topology            gputypes.PrimitiveTopology
	frontFace           gputypes.FrontFace
	writeMask           gputypes.ColorWriteMask
	blendState          gputypes.BlendState
}

// Pipeline is the per-program configuration: shader sources, the resources declared for them and the compiled GPU
// objects built from both. Each Pipeline owns its binding allocator, resource cache and, on devices without
// storage buffers, its double-buffer emulator; nothing is shared between pipelines.
//
// Build is a function of resource shapes and addresses only. Value writes go through Write and never mark a
// rebuild.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used as a label prefix for its GPU objects.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// SetSource replaces the source for a shader role and marks a rebuild when it differs from the current one.
	// An empty source removes the role; an empty vertex source selects the built-in full-screen triangle.
	//
	// Parameters:
	//   - shaderType: the role of the source
	//   - source: WGSL or GLSL source text
	SetSource(shaderType shader.ShaderType, source string)

	// Source returns the source set for a shader role, or "".
	Source(shaderType shader.ShaderType) string

	// Shader retrieves the shader compiled for the specified role by the last successful build, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex, fragment, or compute)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not built
	Shader(shaderType shader.ShaderType) shader.Shader

	// Declare assigns key an address on first use and returns its slot, creating or reshaping the GPU handle as
	// needed. A created or reshaped slot marks a rebuild; an unchanged shape does not.
	//
	// Parameters:
	//   - kind: the resource kind
	//   - key: the resource key
	//   - shape: the structural description of the resource
	//
	// Returns:
	//   - *resource.Slot: the slot holding the address, shadow and handle
	//   - error: allocator.ErrBindGroupLimit, allocator.ErrKindMismatch, resource.ErrMalformedShape or a device error
	Declare(kind common.ResourceKind, key string, shape resource.Shape) (*resource.Slot, error)

	// Write copies data into the shadow of a declared key and enqueues its upload.
	//
	// Parameters:
	//   - key: the resource key
	//   - data: the packed bytes, at most the shadow length
	//
	// Returns:
	//   - error: resource.ErrUnknownKey or resource.ErrShapeMismatch
	Write(key string, data []byte) error

	// Remove releases the handle of key and marks a rebuild. The key keeps its address.
	Remove(key string) bool

	// Slot returns the slot of a declared key.
	Slot(key string) (*resource.Slot, bool)

	// Flush uploads every pending write in first-enqueue order.
	Flush() error

	// SetDomain sets the compute dispatch domain, also used to size emulated storage created afterwards.
	SetDomain(d common.Domain)

	// Domain returns the compute dispatch domain.
	Domain() common.Domain

	// NeedsRebuild reports whether a key was added or removed, a shape changed or a source changed since the last
	// successful build.
	NeedsRebuild() bool

	// Build compiles the shaders and creates the vertex layouts, bind group layouts, bind groups, render pipeline
	// and compute pipeline for the current resources. On failure the previously built objects are kept.
	//
	// Returns:
	//   - error: the first failure, wrapped with the pipeline key
	Build() error

	// Builds returns the number of successful builds.
	Builds() int

	// RenderPipeline returns the built render pipeline, or nil if no build succeeded.
	RenderPipeline() gpu.RenderPipeline

	// ComputePipeline returns the native compute pipeline, or nil.
	ComputePipeline() gpu.ComputePipeline

	// EmulatedComputePipeline returns the render pipeline running the compute source into the storage double
	// buffers, or nil.
	EmulatedComputePipeline() gpu.RenderPipeline

	// HasCompute reports whether a compute pipeline, native or emulated, is built.
	HasCompute() bool

	// Providers returns the bind group providers of the last successful build, indexed by group.
	Providers() []bind_group_provider.BindGroupProvider

	// BindGroups returns the bind groups indexed by group for the given read side of emulated storage.
	//
	// Parameters:
	//   - readPing: true to read the ping side of every double buffer
	//
	// Returns:
	//   - []gpu.BindGroup: one bind group per group index
	BindGroups(readPing bool) []gpu.BindGroup

	// VertexBuffers returns the attribute buffers of the last successful build, indexed by location.
	VertexBuffers() []gpu.Buffer

	// WorkgroupCount returns the dispatch size of the compute pipeline for the current domain.
	WorkgroupCount() [3]uint32

	// StorageView returns the storage resource to sample in the render stage: the buffer on devices with storage
	// buffers, the latest written texture of the double buffer otherwise.
	StorageView(key string) (gpu.Handle, bool)

	// Allocator returns the binding allocator of this pipeline.
	Allocator() allocator.Allocator

	// Cache returns the resource cache of this pipeline.
	Cache() resource.Cache

	// Emulator returns the double-buffer emulator, or nil on devices with storage buffers.
	Emulator() double_buffer.Emulator

	// VertexCount returns the vertex count of the draw call. Unless set, it is the element count of the first
	// per-vertex attribute, or 3 for the full-screen triangle.
	VertexCount() uint32

	// SetVertexCount overrides the vertex count; 0 restores the derived count.
	SetVertexCount(n uint32)

	// InstanceCount returns the instance count of the draw call.
	InstanceCount() uint32

	// SetInstanceCount sets the instance count of the draw call.
	SetInstanceCount(n uint32)

	// ClearColor returns the clear color of the render pass.
	ClearColor() [4]float64

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth testing is enabled, false otherwise
	DepthTestEnabled() bool

	// DepthWriteEnabled returns whether depth writing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth writing is enabled, false otherwise
	DepthWriteEnabled() bool

	// DepthBias returns the depth bias value configured for this pipeline.
	//
	// Returns:
	//   - int32: the depth bias value for this pipeline
	DepthBias() int32

	// DepthBiasSlopeScale returns the depth bias slope scale configured for this pipeline.
	//
	// Returns:
	//   - float32: the depth bias slope scale for this pipeline
	DepthBiasSlopeScale() float32

	// BlendEnabled returns whether blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	// CullMode returns the cull mode configured for this pipeline.
	//
	// Returns:
	//   - gputypes.CullMode: the cull mode for this pipeline
	CullMode() gputypes.CullMode

	// Topology returns the primitive topology configured for this pipeline.
	//
	// Returns:
	//   - gputypes.PrimitiveTopology: the primitive topology for this pipeline
	Topology() gputypes.PrimitiveTopology

	// FrontFace returns the front face winding order configured for this pipeline.
	//
	// Returns:
	//   - gputypes.FrontFace: the front face winding order for this pipeline
	FrontFace() gputypes.FrontFace

	// WriteMask returns the color write mask configured for this pipeline.
	//
	// Returns:
	//   - gputypes.ColorWriteMask: the color write mask for this pipeline
	WriteMask() gputypes.ColorWriteMask

	// BlendState returns the blend state used when blending is enabled.
	//
	// Returns:
	//   - gputypes.BlendState: the blend state for this pipeline
	BlendState() gputypes.BlendState

	// Release releases every compiled object, slot and double buffer exactly once. Calling Release twice is a
	// no-op.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a Pipeline for device with the given options.
// Defaults: depth test and write enabled, blending disabled, CullModeNone, TriangleList, CCW, all channels written,
// alpha blend state, one instance.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - device: the device the pipeline creates its objects on
//   - opts: builder options, see pipeline_builder.go
//
// Returns:
//   - Pipeline: the new pipeline, marked for a first build
func NewPipeline(pipelineKey string, device gpu.Device, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:        pipelineKey,
		device:             device,
		caps:               device.Capabilities(),
		logger:             zap.NewNop(),
		sources:            make(map[shader.ShaderType]string),
		shaders:            make(map[shader.ShaderType]shader.Shader),
		instanceAttributes: make(map[string]bool),
		instanceCount:      1,
		needsRebuild:       true,
		depthTestEnabled:   true,
		depthWriteEnabled:  true,
		blendEnabled:       false,
		cullMode:           gputypes.CullModeNone,
		topology:           gputypes.PrimitiveTopologyTriangleList,
		frontFace:          gputypes.FrontFaceCCW,
		writeMask:          gputypes.ColorWriteMaskAll,
		blendState:         gputypes.BlendStatePremultiplied(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.allocator == nil {
		p.allocator = allocator.NewAllocator(
			allocator.WithMaxBindGroups(p.caps.MaxBindGroups),
			allocator.WithLogger(p.logger),
		)
	}
	if p.compiler == nil {
		p.compiler = shader.NewCompiler(p.caps.Language, shader.WithLogger(p.logger))
	}
	cacheOpts := []resource.CacheBuilderOption{resource.WithLogger(p.logger)}
	if !p.caps.StorageBuffers {
		p.emulator = double_buffer.NewEmulator(device,
			double_buffer.WithDomain(p.domain),
			double_buffer.WithLogger(p.logger),
			double_buffer.WithWarningHandler(p.warn),
		)
		cacheOpts = append(cacheOpts, resource.WithFactory(common.KindStorage, p.emulator.Factory()))
	}
	p.cache = resource.NewCache(device, cacheOpts...)
	return p
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) SetSource(shaderType shader.ShaderType, source string) {
	if p.sources[shaderType] == source {
		return
	}
	if source == "" {
		delete(p.sources, shaderType)
	} else {
		p.sources[shaderType] = source
	}
	p.needsRebuild = true
}

func (p *pipeline) Source(shaderType shader.ShaderType) string {
	return p.sources[shaderType]
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	return p.shaders[shaderType]
}

func (p *pipeline) Declare(kind common.ResourceKind, key string, shape resource.Shape) (*resource.Slot, error) {
	if p.released {
		return nil, ErrReleased
	}
	if err := shape.Validate(kind); err != nil {
		return nil, fmt.Errorf("%q: %w", key, err)
	}
	addr, err := p.allocator.Allocate(kind, key)
	if err != nil {
		return nil, err
	}
	slot, change, err := p.cache.GetOrCreate(key, kind, shape)
	if err != nil {
		return nil, err
	}
	slot.Address = addr
	if change == resource.Reshaped {
		p.stale = true
	}
	if change != resource.Unchanged {
		p.needsRebuild = true
		p.logger.Debug("resource shape changed",
			zap.String("pipeline", p.pipelineKey),
			zap.String("key", key),
			zap.Stringer("change", change),
			zap.Stringer("address", addr),
		)
	}
	return slot, nil
}

func (p *pipeline) Write(key string, data []byte) error {
	if p.released {
		return ErrReleased
	}
	return p.cache.Write(key, data)
}

func (p *pipeline) Remove(key string) bool {
	if !p.cache.Remove(key) {
		return false
	}
	p.needsRebuild = true
	p.stale = true
	return true
}

func (p *pipeline) Slot(key string) (*resource.Slot, bool) {
	return p.cache.Slot(key)
}

func (p *pipeline) Flush() error {
	if p.released {
		return ErrReleased
	}
	if err := p.cache.Flush(); err != nil {
		return fmt.Errorf("pipeline %q: %w", p.pipelineKey, err)
	}
	return nil
}

func (p *pipeline) SetDomain(d common.Domain) {
	p.domain = d
	if p.emulator != nil {
		p.emulator.SetDomain(d)
	}
}

func (p *pipeline) Domain() common.Domain {
	return p.domain
}

func (p *pipeline) NeedsRebuild() bool {
	return p.needsRebuild
}

func (p *pipeline) Builds() int {
	return p.builds
}

func (p *pipeline) RenderPipeline() gpu.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) ComputePipeline() gpu.ComputePipeline {
	return p.computePipeline
}

func (p *pipeline) EmulatedComputePipeline() gpu.RenderPipeline {
	return p.emulatedPipeline
}

func (p *pipeline) HasCompute() bool {
	return p.computePipeline != nil || p.emulatedPipeline != nil
}

func (p *pipeline) Providers() []bind_group_provider.BindGroupProvider {
	return p.providers
}

func (p *pipeline) BindGroups(readPing bool) []gpu.BindGroup {
	out := make([]gpu.BindGroup, len(p.providers))
	for i, provider := range p.providers {
		out[i] = provider.BindGroupFor(readPing)
	}
	return out
}

func (p *pipeline) VertexBuffers() []gpu.Buffer {
	out := make([]gpu.Buffer, len(p.vertexSlots))
	for i, slot := range p.vertexSlots {
		out[i] = slot.Buffer()
	}
	return out
}

func (p *pipeline) WorkgroupCount() [3]uint32 {
	cs := p.shaders[shader.ShaderTypeCompute]
	size := uint32(allocator.DefaultWorkgroupSize)
	if cs != nil && cs.Invocations() > 0 {
		size = cs.Invocations()
	}
	domain := p.domain
	if domain.IsZero() {
		n := 0
		for _, slot := range p.cache.Slots() {
			if slot.Kind == common.KindStorage {
				n = max(n, slot.Shape.Count)
			}
		}
		domain, _ = common.NewDomain(n)
	}
	return allocator.WorkgroupCount(domain, size, p.caps.MaxComputeWorkgroupsPerDimension)
}

func (p *pipeline) StorageView(key string) (gpu.Handle, bool) {
	slot, ok := p.cache.Slot(key)
	if !ok || slot.Kind != common.KindStorage {
		return nil, false
	}
	if p.emulator != nil {
		db, ok := p.emulator.Buffer(key)
		if !ok {
			return nil, false
		}
		return db.Latest(), true
	}
	return slot.Buffer(), slot.Buffer() != nil
}

func (p *pipeline) Allocator() allocator.Allocator {
	return p.allocator
}

func (p *pipeline) Cache() resource.Cache {
	return p.cache
}

func (p *pipeline) Emulator() double_buffer.Emulator {
	return p.emulator
}

func (p *pipeline) VertexCount() uint32 {
	if p.vertexCount > 0 {
		return p.vertexCount
	}
	for _, slot := range p.vertexSlots {
		if !p.instanceAttributes[slot.Key] {
			return uint32(slot.Shape.Count)
		}
	}
	return double_buffer.FullscreenVertexCount
}

func (p *pipeline) SetVertexCount(n uint32) {
	p.vertexCount = n
}

func (p *pipeline) InstanceCount() uint32 {
	return p.instanceCount
}

func (p *pipeline) SetInstanceCount(n uint32) {
	p.instanceCount = max(n, 1)
}

func (p *pipeline) ClearColor() [4]float64 {
	return p.clearColor
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) DepthWriteEnabled() bool {
	return p.depthWriteEnabled
}

func (p *pipeline) DepthBias() int32 {
	return p.depthBias
}

func (p *pipeline) DepthBiasSlopeScale() float32 {
	return p.depthBiasSlopeScale
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() gputypes.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() gputypes.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) FrontFace() gputypes.FrontFace {
	return p.frontFace
}

func (p *pipeline) WriteMask() gputypes.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) BlendState() gputypes.BlendState {
	return p.blendState
}

func (p *pipeline) Release() {
	if p.released {
		return
	}
	p.released = true
	p.releaseCompiled()
	p.cache.Release()
	if p.emulator != nil {
		p.emulator.Release()
	}
	p.allocator.Reset()
	p.logger.Debug("released pipeline", zap.String("pipeline", p.pipelineKey))
}

// releaseCompiled releases the objects of the last successful build.
func (p *pipeline) releaseCompiled() {
	for _, provider := range p.providers {
		provider.Release()
	}
	p.providers = nil
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.emulatedPipeline != nil {
		p.emulatedPipeline.Release()
		p.emulatedPipeline = nil
	}
	p.vertexSlots = nil
}
