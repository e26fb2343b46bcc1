// Package gl_device implements gpu.Device on an OpenGL 3.3 core context through go-gl. It is the raster backend:
// no storage buffers or compute pipelines, GLSL only, and bindings resolved by name when a program is linked.
package gl_device

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// Surface is the window the device presents into. Its GL context must be current on the calling thread.
type Surface interface {
	SwapBuffers()
	Width() int
	Height() int
}

type device struct {
	mu      *sync.Mutex
	surface Surface
	caps    gpu.Capabilities
	logger  *zap.Logger

	maxUniformBindings uint32
	maxTextureUnits    int32
	msaa               gpu.MSAASampleCount

	width, height int
	inFrame       bool
	released      bool
}

var _ gpu.Device = &device{}

// NewDevice loads the GL function pointers of the surface's current context and queries its limits. The calling
// goroutine is locked to its OS thread.
//
// Parameters:
//   - surface: the window owning the current GL 3.3 core context
//   - options: DeviceBuilderOption values
//
// Returns:
//   - gpu.Device: the raster device
//   - error: gpu.ErrNoAdapter wrapped with the loader error when GL could not be initialized
func NewDevice(surface Surface, options ...DeviceBuilderOption) (gpu.Device, error) {
	runtime.LockOSThread()
	d := &device{
		mu:      &sync.Mutex{},
		surface: surface,
		logger:  zap.NewNop(),
		msaa:    gpu.MSAAOff,
		width:   surface.Width(),
		height:  surface.Height(),
	}
	for _, opt := range options {
		opt(d)
	}
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("%w: %v", gpu.ErrNoAdapter, err)
	}

	var uniformBindings, textureUnits, uboAlignment int32
	gl.GetIntegerv(gl.MAX_UNIFORM_BUFFER_BINDINGS, &uniformBindings)
	gl.GetIntegerv(gl.MAX_COMBINED_TEXTURE_IMAGE_UNITS, &textureUnits)
	gl.GetIntegerv(gl.UNIFORM_BUFFER_OFFSET_ALIGNMENT, &uboAlignment)
	d.maxUniformBindings = uint32(uniformBindings)
	d.maxTextureUnits = textureUnits

	d.caps = gpu.Capabilities{
		Backend:                          "raster",
		Language:                         gpu.LanguageGLSL,
		MaxBindGroups:                    8,
		StorageBuffers:                   false,
		MaxComputeWorkgroupsPerDimension: 0,
		UniformBufferAlignment:           uint64(max(uboAlignment, 16)),
		BufferAlignment:                  4,
		SurfaceFormat:                    gputypes.TextureFormatRGBA8Unorm,
	}
	if d.msaa > gpu.MSAAOff {
		gl.Enable(gl.MULTISAMPLE)
	}
	d.logger.Info("raster device ready",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
		zap.Int32("uniform_bindings", uniformBindings),
		zap.Int32("texture_units", textureUnits),
	)
	return d, nil
}

func (d *device) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *device) checkError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: gl error 0x%x", op, code)
	}
	return nil
}

func (d *device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	b := &buffer{size: desc.Size, usage: desc.Usage, shadow: make([]byte, desc.Size)}
	gl.GenBuffers(1, &b.id)
	target := uint32(gl.ARRAY_BUFFER)
	if desc.Usage&gputypes.BufferUsageUniform != 0 {
		target = gl.UNIFORM_BUFFER
	}
	gl.BindBuffer(target, b.id)
	gl.BufferData(target, int(desc.Size), nil, gl.DYNAMIC_DRAW)
	gl.BindBuffer(target, 0)
	if err := d.checkError("create buffer " + desc.Label); err != nil {
		b.Release()
		return nil, err
	}
	return b, nil
}

func (d *device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	b, ok := buf.(*buffer)
	if !ok || b.id == 0 {
		return fmt.Errorf("write to foreign or released buffer %T", buf)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	if len(data) == 0 {
		return nil
	}
	copy(b.shadow[offset:], data)
	target := uint32(gl.ARRAY_BUFFER)
	if b.usage&gputypes.BufferUsageUniform != 0 {
		target = gl.UNIFORM_BUFFER
	}
	gl.BindBuffer(target, b.id)
	gl.BufferSubData(target, int(offset), len(data), gl.Ptr(data))
	gl.BindBuffer(target, 0)
	return d.checkError("write buffer")
}

func textureFormats(f gputypes.TextureFormat) (internal int32, format, xtype uint32, err error) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm:
		return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE, nil
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return gl.SRGB8_ALPHA8, gl.RGBA, gl.UNSIGNED_BYTE, nil
	case gputypes.TextureFormatRGBA32Float:
		return gl.RGBA32F, gl.RGBA, gl.FLOAT, nil
	case gputypes.TextureFormatR8Unorm:
		return gl.R8, gl.RED, gl.UNSIGNED_BYTE, nil
	default:
		return 0, 0, 0, fmt.Errorf("unsupported texture format %v", f)
	}
}

func (d *device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	internal, format, xtype, err := textureFormats(desc.Format)
	if err != nil {
		return nil, err
	}
	t := &texture{
		width:          desc.Width,
		height:         desc.Height,
		format:         desc.Format,
		internalFormat: internal,
		pixelFormat:    format,
		pixelType:      xtype,
	}
	filter := int32(gl.LINEAR)
	if desc.Nearest || desc.Format == gputypes.TextureFormatRGBA32Float {
		filter = gl.NEAREST
	}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, filter)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, format, xtype, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := d.checkError("create texture " + desc.Label); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

func (d *device) WriteTexture(tex gpu.Texture, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	t, ok := tex.(*texture)
	if !ok || t.id == 0 {
		return fmt.Errorf("write to foreign or released texture %T", tex)
	}
	if want := int(t.width*t.height) * gpu.BytesPerTexel(t.format); len(data) != want {
		return fmt.Errorf("texture upload of %d bytes, want %d", len(data), want)
	}
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(t.width), int32(t.height), t.pixelFormat, t.pixelType, gl.Ptr(data))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return d.checkError("write texture")
}

func (d *device) CreateFramebuffer(label string, attachments ...gpu.Texture) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	if len(attachments) == 0 {
		return nil, fmt.Errorf("framebuffer %q needs at least one attachment", label)
	}
	f := &framebuffer{attachments: attachments}
	gl.GenFramebuffers(1, &f.id)
	gl.BindFramebuffer(gl.FRAMEBUFFER, f.id)
	drawBuffers := make([]uint32, len(attachments))
	for i, a := range attachments {
		t, ok := a.(*texture)
		if !ok {
			gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
			f.Release()
			return nil, fmt.Errorf("framebuffer %q: foreign attachment %T", label, a)
		}
		drawBuffers[i] = gl.COLOR_ATTACHMENT0 + uint32(i)
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, drawBuffers[i], gl.TEXTURE_2D, t.id, 0)
	}
	gl.DrawBuffers(int32(len(drawBuffers)), &drawBuffers[0])
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		f.Release()
		return nil, fmt.Errorf("framebuffer %q incomplete: 0x%x", label, status)
	}
	return f, nil
}

func (d *device) CreateShaderModule(desc gpu.ShaderModuleDescriptor) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	id, err := compileShader(desc.Stage, desc.Source)
	if err != nil {
		return nil, fmt.Errorf("%s module %q: %w", desc.Stage, desc.Label, err)
	}
	return &shaderModule{id: id, stage: desc.Stage, aliases: desc.Aliases}, nil
}

func (d *device) CreateBindGroupLayout(desc gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	if int(desc.Group) >= d.caps.MaxBindGroups {
		return nil, fmt.Errorf("group %d exceeds device limit %d", desc.Group, d.caps.MaxBindGroups)
	}
	l := &bindGroupLayout{
		group:   desc.Group,
		entries: append([]gpu.LayoutEntry(nil), desc.Entries...),
		kinds:   make(map[uint32]entryKind, len(desc.Entries)),
	}
	for _, e := range desc.Entries {
		switch {
		case e.Buffer != nil:
			if e.Buffer.Type != gputypes.BufferBindingTypeUniform {
				return nil, fmt.Errorf("binding %q: storage buffers are not supported by the raster device", e.Name)
			}
			l.kinds[e.Binding] = entryUniform
		case e.Sampler != nil:
			l.kinds[e.Binding] = entrySampler
		default:
			l.kinds[e.Binding] = entryTexture
		}
	}
	return l, nil
}

func (d *device) CreateBindGroup(desc gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	layout, ok := desc.Layout.(*bindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign layout %T", desc.Label, desc.Layout)
	}
	g := &bindGroup{
		layout:   layout,
		buffers:  make(map[uint32]*buffer),
		textures: make(map[uint32]*texture),
	}
	for _, e := range desc.Entries {
		switch layout.kinds[e.Binding] {
		case entryUniform:
			b, ok := e.Buffer.(*buffer)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: want buffer, got %T", desc.Label, e.Binding, e.Buffer)
			}
			g.buffers[e.Binding] = b
		case entrySampler, entryTexture:
			t, ok := e.Texture.(*texture)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: want texture, got %T", desc.Label, e.Binding, e.Texture)
			}
			g.textures[e.Binding] = t
		}
	}
	return g, nil
}

func (d *device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	vs, ok := desc.Vertex.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("render pipeline %q: foreign vertex module %T", desc.Label, desc.Vertex)
	}
	fs, ok := desc.Fragment.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("render pipeline %q: foreign fragment module %T", desc.Label, desc.Fragment)
	}
	program, err := linkProgram(vs, fs, desc.VertexBuffers)
	if err != nil {
		return nil, fmt.Errorf("render pipeline %q: %w", desc.Label, err)
	}
	p := &renderPipeline{
		program:       program,
		vertexBuffers: desc.VertexBuffers,
		state:         newRenderState(desc),
	}
	if err := d.resolve(p, desc.BindGroupLayouts, vs, fs); err != nil {
		p.Release()
		return nil, fmt.Errorf("render pipeline %q: %w", desc.Label, err)
	}
	gl.GenVertexArrays(1, &p.vao)
	if err := d.checkError("render pipeline " + desc.Label); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func (d *device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	return nil, fmt.Errorf("compute pipeline %q: not supported by the raster device", desc.Label)
}

func (d *device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	d.inFrame = true
	return nil
}

func (d *device) BeginRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inFrame {
		return nil, gpu.ErrNoFrame
	}
	mask := uint32(gl.COLOR_BUFFER_BIT)
	if desc.Target != nil {
		fb, ok := desc.Target.(*framebuffer)
		if !ok {
			return nil, fmt.Errorf("render pass %q: foreign target %T", desc.Label, desc.Target)
		}
		first := fb.attachments[0]
		gl.BindFramebuffer(gl.FRAMEBUFFER, fb.id)
		gl.Viewport(0, 0, int32(first.Width()), int32(first.Height()))
	} else {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.Viewport(0, 0, int32(d.width), int32(d.height))
		mask |= gl.DEPTH_BUFFER_BIT
	}
	if !desc.Load {
		// clears honor the write masks, so reset them first
		gl.ColorMask(true, true, true, true)
		gl.DepthMask(true)
		gl.ClearColor(float32(desc.ClearColor[0]), float32(desc.ClearColor[1]), float32(desc.ClearColor[2]), float32(desc.ClearColor[3]))
		gl.Clear(mask)
	}
	return &renderPass{dev: d, groups: make(map[uint32]*bindGroup)}, nil
}

func (d *device) BeginComputePass(label string) (gpu.ComputePass, error) {
	return nil, fmt.Errorf("compute pass %q: not supported by the raster device", label)
}

func (d *device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inFrame {
		return gpu.ErrNoFrame
	}
	d.inFrame = false
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Flush()
	return d.checkError("end frame")
}

func (d *device) Present() {
	d.surface.SwapBuffers()
}

// Resize only records the new size; the default framebuffer follows the window.
func (d *device) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	d.width, d.height = width, height
	return nil
}

func (d *device) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
}

type renderPass struct {
	dev      *device
	pipeline *renderPipeline
	groups   map[uint32]*bindGroup
}

func (p *renderPass) SetPipeline(rp gpu.RenderPipeline) {
	pl := rp.(*renderPipeline)
	p.pipeline = pl
	gl.UseProgram(pl.program)
	gl.BindVertexArray(pl.vao)
	pl.state.apply()
}

func (p *renderPass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	p.groups[index] = bg.(*bindGroup)
}

// SetVertexBuffer binds buf as the single attribute of the pipeline's vertex buffer at slot.
func (p *renderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	if p.pipeline == nil || int(slot) >= len(p.pipeline.vertexBuffers) {
		return
	}
	layout := p.pipeline.vertexBuffers[slot]
	b := buf.(*buffer)
	gl.BindBuffer(gl.ARRAY_BUFFER, b.id)
	for _, a := range layout.Attributes {
		gl.EnableVertexAttribArray(a.ShaderLocation)
		gl.VertexAttribPointerWithOffset(a.ShaderLocation, components(a.Format), gl.FLOAT, false, int32(layout.ArrayStride), uintptr(a.Offset))
		divisor := uint32(0)
		if layout.StepMode == gputypes.VertexStepModeInstance {
			divisor = 1
		}
		gl.VertexAttribDivisor(a.ShaderLocation, divisor)
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (p *renderPass) Draw(vertexCount, instanceCount uint32) {
	pl := p.pipeline
	if pl == nil {
		return
	}
	for _, u := range pl.uniforms {
		g := p.groups[u.group]
		if g == nil {
			continue
		}
		b := g.buffers[u.binding]
		if b == nil {
			continue
		}
		if u.block {
			gl.BindBufferBase(gl.UNIFORM_BUFFER, u.point, b.id)
		} else {
			uploadPlain(u.uniform, b.shadow)
		}
	}
	for _, t := range pl.textures {
		g := p.groups[t.group]
		if g == nil {
			continue
		}
		tex := g.textures[t.binding]
		if tex == nil {
			continue
		}
		gl.ActiveTexture(gl.TEXTURE0 + uint32(t.unit))
		gl.BindTexture(gl.TEXTURE_2D, tex.id)
	}
	gl.DrawArraysInstanced(pl.state.mode, 0, int32(vertexCount), int32(max(instanceCount, 1)))
}

func (p *renderPass) End() error {
	gl.BindVertexArray(0)
	gl.UseProgram(0)
	return p.dev.checkError("render pass")
}

func components(f gputypes.VertexFormat) int32 {
	switch f {
	case gputypes.VertexFormatFloat32x2:
		return 2
	case gputypes.VertexFormatFloat32x3:
		return 3
	case gputypes.VertexFormatFloat32x4:
		return 4
	default:
		return 1
	}
}
