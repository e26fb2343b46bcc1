package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/shader"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// staged collects the objects of one build attempt. They replace the pipeline's objects only when every step
// succeeded; otherwise they are released.
type staged struct {
	shaders     map[shader.ShaderType]shader.Shader
	modules     []gpu.ShaderModule
	providers   []bind_group_provider.BindGroupProvider
	vertexSlots []*resource.Slot
	render      gpu.RenderPipeline
	compute     gpu.ComputePipeline
	emulated    gpu.RenderPipeline
}

func (s *staged) releaseModules() {
	for _, m := range s.modules {
		m.Release()
	}
	s.modules = nil
}

func (s *staged) release() {
	s.releaseModules()
	for _, p := range s.providers {
		p.Release()
	}
	if s.render != nil {
		s.render.Release()
	}
	if s.compute != nil {
		s.compute.Release()
	}
	if s.emulated != nil {
		s.emulated.Release()
	}
}

func (p *pipeline) Build() error {
	if p.released {
		return ErrReleased
	}
	st := &staged{shaders: make(map[shader.ShaderType]shader.Shader)}
	if err := p.build(st); err != nil {
		st.release()
		// the previous bind groups reference released handles once a key was reshaped or removed
		if p.stale {
			p.releaseCompiled()
			p.stale = false
		}
		p.logger.Error("pipeline build failed", zap.String("pipeline", p.pipelineKey), zap.Error(err))
		return fmt.Errorf("failed to build pipeline %q: %w", p.pipelineKey, err)
	}
	st.releaseModules()

	p.releaseCompiled()
	p.needsRebuild = false
	p.stale = false
	p.shaders = st.shaders
	p.providers = st.providers
	p.vertexSlots = st.vertexSlots
	p.renderPipeline = st.render
	p.computePipeline = st.compute
	p.emulatedPipeline = st.emulated
	p.builds++
	p.logger.Debug("built pipeline",
		zap.String("pipeline", p.pipelineKey),
		zap.Int("groups", len(p.providers)),
		zap.Int("attributes", len(p.vertexSlots)),
		zap.Bool("compute", p.HasCompute()),
		zap.Int("build", p.builds),
	)
	return nil
}

func (p *pipeline) build(st *staged) error {
	if err := p.compileShaders(st); err != nil {
		return err
	}
	_, hasCompute := st.shaders[shader.ShaderTypeCompute]
	slots := p.cache.Slots()

	// 1. vertex buffer layouts
	vertexBuffers, vertexSlots, err := vertexLayouts(slots, p.instanceAttributes)
	if err != nil {
		return err
	}
	st.vertexSlots = vertexSlots

	// 2. bind group layouts and bind groups
	for _, plan := range planGroups(slots, p.emulator != nil, hasCompute) {
		provider, err := p.createGroup(plan)
		if err != nil {
			return err
		}
		st.providers = append(st.providers, provider)
	}
	layouts := make([]gpu.BindGroupLayout, len(st.providers))
	for i, provider := range st.providers {
		layouts[i] = provider.BindGroupLayout()
	}

	// 3. render pipeline
	vs, err := p.createModule(st, st.shaders[shader.ShaderTypeVertex])
	if err != nil {
		return err
	}
	fs, err := p.createModule(st, st.shaders[shader.ShaderTypeFragment])
	if err != nil {
		return err
	}
	desc := gpu.RenderPipelineDescriptor{
		Label:               p.pipelineKey,
		Vertex:              vs,
		Fragment:            fs,
		VertexEntryPoint:    st.shaders[shader.ShaderTypeVertex].EntryPoint(),
		FragmentEntryPoint:  st.shaders[shader.ShaderTypeFragment].EntryPoint(),
		VertexBuffers:       vertexBuffers,
		BindGroupLayouts:    layouts,
		Topology:            p.topology,
		CullMode:            p.cullMode,
		FrontFace:           p.frontFace,
		WriteMask:           p.writeMask,
		DepthTest:           p.depthTestEnabled,
		DepthWrite:          p.depthWriteEnabled,
		DepthBias:           p.depthBias,
		DepthBiasSlopeScale: p.depthBiasSlopeScale,
	}
	if p.blendEnabled {
		bs := p.blendState
		desc.Blend = &bs
	}
	if st.render, err = p.device.CreateRenderPipeline(desc); err != nil {
		return fmt.Errorf("render pipeline: %w", err)
	}

	// 4. compute pipeline
	if !hasCompute {
		return nil
	}
	if p.emulator != nil {
		return p.buildEmulatedCompute(st, layouts)
	}
	cs, err := p.createModule(st, st.shaders[shader.ShaderTypeCompute])
	if err != nil {
		return err
	}
	st.compute, err = p.device.CreateComputePipeline(gpu.ComputePipelineDescriptor{
		Label:            p.pipelineKey + ".compute",
		Module:           cs,
		EntryPoint:       st.shaders[shader.ShaderTypeCompute].EntryPoint(),
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return fmt.Errorf("compute pipeline: %w", err)
	}
	return nil
}

// buildEmulatedCompute creates the render pipeline that runs the compute source as a fragment shader over a
// full-screen triangle, writing one RGBA32F attachment per double buffer.
func (p *pipeline) buildEmulatedCompute(st *staged, layouts []gpu.BindGroupLayout) error {
	buffers := p.emulator.Buffers()
	if len(buffers) == 0 {
		p.logger.Warn("compute source without storage resources", zap.String("pipeline", p.pipelineKey))
		return nil
	}
	fullscreen, err := p.compiler.Compile("fullscreen", shader.ShaderTypeVertex, shader.FullscreenVertex(p.caps.Language))
	if err != nil {
		return fmt.Errorf("emulated compute: %w", err)
	}
	vs, err := p.createModule(st, fullscreen)
	if err != nil {
		return err
	}
	cs := st.shaders[shader.ShaderTypeCompute]
	fs, err := p.createModule(st, cs)
	if err != nil {
		return err
	}
	formats := make([]gputypes.TextureFormat, len(buffers))
	for i := range buffers {
		formats[i] = gputypes.TextureFormatRGBA32Float
	}
	st.emulated, err = p.device.CreateRenderPipeline(gpu.RenderPipelineDescriptor{
		Label:              p.pipelineKey + ".compute",
		Vertex:             vs,
		Fragment:           fs,
		VertexEntryPoint:   fullscreen.EntryPoint(),
		FragmentEntryPoint: cs.EntryPoint(),
		BindGroupLayouts:   layouts,
		Topology:           gputypes.PrimitiveTopologyTriangleList,
		CullMode:           gputypes.CullModeNone,
		FrontFace:          gputypes.FrontFaceCCW,
		WriteMask:          gputypes.ColorWriteMaskAll,
		TargetFormats:      formats,
		OffscreenTarget:    true,
	})
	if err != nil {
		return fmt.Errorf("emulated compute pipeline: %w", err)
	}
	return nil
}

func (p *pipeline) compileShaders(st *staged) error {
	fragment := p.sources[shader.ShaderTypeFragment]
	if fragment == "" {
		return ErrNoFragment
	}
	vertex := p.sources[shader.ShaderTypeVertex]
	if vertex == "" {
		vertex = shader.FullscreenVertex(p.caps.Language)
	}
	roles := map[shader.ShaderType]string{
		shader.ShaderTypeVertex:   vertex,
		shader.ShaderTypeFragment: fragment,
	}
	if compute := p.sources[shader.ShaderTypeCompute]; compute != "" {
		roles[shader.ShaderTypeCompute] = compute
	}
	for _, t := range []shader.ShaderType{shader.ShaderTypeVertex, shader.ShaderTypeFragment, shader.ShaderTypeCompute} {
		source, ok := roles[t]
		if !ok {
			continue
		}
		s, err := p.compiler.Compile(p.pipelineKey+"."+t.String(), t, source)
		if err != nil {
			return err
		}
		st.shaders[t] = s
	}
	return nil
}

func (p *pipeline) createModule(st *staged, s shader.Shader) (gpu.ShaderModule, error) {
	m, err := p.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, fmt.Errorf("%s module: %w", s.ShaderType(), err)
	}
	st.modules = append(st.modules, m)
	return m, nil
}

// createGroup creates the layout and bind group of one group index. Groups reading emulated storage get a ping and
// a pong variant.
func (p *pipeline) createGroup(plan groupPlan) (bind_group_provider.BindGroupProvider, error) {
	label := fmt.Sprintf("%s.group%d", p.pipelineKey, plan.group)
	provider := bind_group_provider.NewBindGroupProvider(label, plan.group)

	layout, err := p.device.CreateBindGroupLayout(gpu.BindGroupLayoutDescriptor{
		Label:   label,
		Group:   plan.group,
		Entries: plan.entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group layout %d: %w", plan.group, err)
	}
	provider.SetBindGroupLayout(layout)

	pingPong := false
	for _, s := range plan.slots {
		if s.Kind == common.KindStorage && p.emulator != nil {
			pingPong = true
		}
	}

	readPing, err := p.createBindGroup(provider, plan, true)
	if err != nil {
		provider.Release()
		return nil, err
	}
	if !pingPong {
		provider.SetBindGroup(readPing)
		return provider, nil
	}
	readPong, err := p.createBindGroup(provider, plan, false)
	if err != nil {
		readPing.Release()
		provider.Release()
		return nil, err
	}
	provider.SetPingPong(readPing, readPong)
	return provider, nil
}

func (p *pipeline) createBindGroup(provider bind_group_provider.BindGroupProvider, plan groupPlan, readPing bool) (gpu.BindGroup, error) {
	entries := make([]gpu.BindGroupEntry, 0, len(plan.entries))
	for _, s := range plan.slots {
		addr := s.Address
		switch s.Kind {
		case common.KindUniform:
			buf := s.Buffer()
			if buf == nil {
				return nil, fmt.Errorf("uniform %q has no buffer", s.Key)
			}
			provider.SetBuffer(int(addr.Binding), s.Key, buf)
			entries = append(entries, gpu.BindGroupEntry{Binding: addr.Binding, Buffer: buf})
		case common.KindTexture:
			tex := s.Texture()
			if tex == nil {
				return nil, fmt.Errorf("texture %q has no texture", s.Key)
			}
			provider.SetTexture(int(addr.SamplerBinding()), s.Key, tex)
			provider.SetTexture(int(addr.ViewBinding()), s.Key, tex)
			entries = append(entries,
				gpu.BindGroupEntry{Binding: addr.SamplerBinding(), Texture: tex},
				gpu.BindGroupEntry{Binding: addr.ViewBinding(), Texture: tex},
			)
		case common.KindStorage:
			if p.emulator == nil {
				buf := s.Buffer()
				if buf == nil {
					return nil, fmt.Errorf("storage %q has no buffer", s.Key)
				}
				provider.SetBuffer(int(addr.Binding), s.Key, buf)
				entries = append(entries, gpu.BindGroupEntry{Binding: addr.Binding, Buffer: buf})
				continue
			}
			db, ok := p.emulator.Buffer(s.Key)
			if !ok {
				return nil, fmt.Errorf("storage %q has no double buffer", s.Key)
			}
			side := db.Pong()
			if readPing {
				side = db.Ping()
			}
			provider.SetTexture(int(addr.Binding), s.Key, side.Texture)
			entries = append(entries, gpu.BindGroupEntry{Binding: addr.Binding, Texture: side.Texture})
		}
	}

	suffix := "ping"
	if !readPing {
		suffix = "pong"
	}
	bg, err := p.device.CreateBindGroup(gpu.BindGroupDescriptor{
		Label:   provider.Label() + "." + suffix,
		Layout:  provider.BindGroupLayout(),
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group %d: %w", plan.group, err)
	}
	return bg, nil
}
