// Package wgpu_device implements gpu.Device on WebGPU through cogentcore/webgpu. It is the explicit backend:
// native storage buffers and compute pipelines, WGSL only.
package wgpu_device

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

type device struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	surface  *wgpu.Surface
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	caps                 gpu.Capabilities
	surfaceFormat        wgpu.TextureFormat
	alphaMode            wgpu.CompositeAlphaMode
	presentMode          gpu.PresentMode
	sampleCount          gpu.MSAASampleCount
	forceFallbackAdapter bool
	width, height        int

	msaaTexture  *wgpu.Texture
	msaaView     *wgpu.TextureView
	depthTexture *wgpu.Texture
	depthView    *wgpu.TextureView

	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView

	logger   *zap.Logger
	released bool
}

var _ gpu.Device = &device{}

// NewDevice requests an adapter and device compatible with the surface and configures the surface at the given
// size. The calling goroutine is locked to its OS thread.
//
// Parameters:
//   - surfaceDescriptor: the platform surface, usually from window.Window.SurfaceDescriptor
//   - width, height: the initial surface size in pixels
//   - options: DeviceBuilderOption values
//
// Returns:
//   - gpu.Device: the explicit device
//   - error: gpu.ErrNoAdapter wrapped with the driver error when no adapter or device could be obtained
func NewDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...DeviceBuilderOption) (gpu.Device, error) {
	runtime.LockOSThread()
	d := &device{
		mu:          &sync.Mutex{},
		presentMode: gpu.PresentModeUncapped,
		sampleCount: gpu.MSAAOff,
		logger:      zap.NewNop(),
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: %v", gpu.ErrNoAdapter, err)
	}
	d.adapter = a

	limits := wgpu.DefaultLimits()
	limits.MaxBindGroups = 8

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: %v", gpu.ErrNoAdapter, err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	capabilities := d.surface.GetCapabilities(d.adapter)
	if len(capabilities.Formats) == 0 {
		d.Release()
		return nil, fmt.Errorf("%w: surface reports no formats", gpu.ErrNoAdapter)
	}
	d.surfaceFormat = capabilities.Formats[0]
	d.alphaMode = capabilities.AlphaModes[0]

	d.caps = gpu.DefaultCapabilities()
	d.caps.MaxBindGroups = int(limits.MaxBindGroups)
	d.caps.MaxComputeWorkgroupsPerDimension = limits.MaxComputeWorkgroupsPerDimension
	d.caps.SurfaceFormat = gpuTextureFormat(d.surfaceFormat)

	if err := d.configure(width, height); err != nil {
		d.Release()
		return nil, err
	}
	d.logger.Info("explicit device ready",
		zap.Int("width", width),
		zap.Int("height", height),
		zap.Uint32("msaa", uint32(d.sampleCount)),
	)
	return d, nil
}

// configure (re)configures the surface and recreates the MSAA and depth attachments.
func (d *device) configure(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: presentMode(d.presentMode),
		AlphaMode:   d.alphaMode,
	})
	d.releaseAttachments()
	d.width, d.height = width, height

	count := uint32(d.sampleCount)
	if count > 1 {
		tex, view, err := d.attachment("msaa", d.surfaceFormat, count)
		if err != nil {
			return err
		}
		d.msaaTexture, d.msaaView = tex, view
	}
	tex, view, err := d.attachment("depth", wgpu.TextureFormatDepth24Plus, count)
	if err != nil {
		return err
	}
	d.depthTexture, d.depthView = tex, view
	return nil
}

func (d *device) attachment(label string, format wgpu.TextureFormat, samples uint32) (*wgpu.Texture, *wgpu.TextureView, error) {
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              uint32(d.width),
			Height:             uint32(d.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%s attachment: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, nil, fmt.Errorf("%s attachment view: %w", label, err)
	}
	return tex, view, nil
}

func (d *device) releaseAttachments() {
	if d.msaaView != nil {
		d.msaaView.Release()
		d.msaaView = nil
	}
	if d.msaaTexture != nil {
		d.msaaTexture.Release()
		d.msaaTexture = nil
	}
	if d.depthView != nil {
		d.depthView.Release()
		d.depthView = nil
	}
	if d.depthTexture != nil {
		d.depthTexture.Release()
		d.depthTexture = nil
	}
}

func (d *device) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	size := align(desc.Size, 4)
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            desc.Label,
		Size:             size,
		Usage:            bufferUsage(desc.Usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	return &buffer{buf: buf, size: size}, nil
}

func (d *device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	b, ok := buf.(*buffer)
	if !ok || b.buf == nil {
		return fmt.Errorf("write to foreign or released buffer %T", buf)
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes", len(data), offset, b.size)
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

func (d *device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	format, err := textureFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     textureUsage(desc.Usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: 1,
		},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}
	t := &texture{tex: tex, width: desc.Width, height: desc.Height, format: desc.Format}
	if t.view, err = tex.CreateView(nil); err != nil {
		t.Release()
		return nil, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	filter := wgpu.FilterModeLinear
	mipmap := wgpu.MipmapFilterModeLinear
	if desc.Nearest || desc.Format == gputypes.TextureFormatRGBA32Float {
		filter = wgpu.FilterModeNearest
		mipmap = wgpu.MipmapFilterModeNearest
	}
	t.sampler, err = d.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         desc.Label + " sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     filter,
		MinFilter:     filter,
		MipmapFilter:  mipmap,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		t.Release()
		return nil, fmt.Errorf("create sampler %q: %w", desc.Label, err)
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
	if !ok || t.tex == nil {
		return fmt.Errorf("write to foreign or released texture %T", tex)
	}
	bpp := uint32(gpu.BytesPerTexel(t.format))
	if want := int(t.width * t.height * bpp); len(data) != want {
		return fmt.Errorf("texture upload of %d bytes, want %d", len(data), want)
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  t.width * bpp,
			RowsPerImage: t.height,
		},
		&wgpu.Extent3D{
			Width:              t.width,
			Height:             t.height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (d *device) CreateFramebuffer(label string, attachments ...gpu.Texture) (gpu.Framebuffer, error) {
	if len(attachments) == 0 {
		return nil, fmt.Errorf("framebuffer %q needs at least one attachment", label)
	}
	for _, a := range attachments {
		if _, ok := a.(*texture); !ok {
			return nil, fmt.Errorf("framebuffer %q: foreign attachment %T", label, a)
		}
	}
	return &framebuffer{attachments: attachments}, nil
}

func (d *device) CreateShaderModule(desc gpu.ShaderModuleDescriptor) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s module %q: %w", desc.Stage, desc.Label, err)
	}
	return &shaderModule{module: m, stage: desc.Stage}, nil
}

func (d *device) CreateBindGroupLayout(desc gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	if int(desc.Group) >= d.caps.MaxBindGroups {
		return nil, fmt.Errorf("group %d exceeds device limit %d", desc.Group, d.caps.MaxBindGroups)
	}
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(desc.Entries))
	kinds := make(map[uint32]entryKind, len(desc.Entries))
	for _, e := range desc.Entries {
		entry, kind := layoutEntry(e.BindGroupLayoutEntry)
		entries = append(entries, entry)
		kinds[e.Binding] = kind
	}
	layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout %q: %w", desc.Label, err)
	}
	return &bindGroupLayout{layout: layout, group: desc.Group, kinds: kinds}, nil
}

func (d *device) CreateBindGroup(desc gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	layout, ok := desc.Layout.(*bindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("bind group %q: foreign layout %T", desc.Label, desc.Layout)
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry := wgpu.BindGroupEntry{Binding: e.Binding}
		switch layout.kinds[e.Binding] {
		case entryBuffer:
			b, ok := e.Buffer.(*buffer)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: want buffer, got %T", desc.Label, e.Binding, e.Buffer)
			}
			entry.Buffer = b.buf
			entry.Offset = 0
			entry.Size = wgpu.WholeSize
		case entrySampler:
			t, ok := e.Texture.(*texture)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: want texture, got %T", desc.Label, e.Binding, e.Texture)
			}
			entry.Sampler = t.sampler
		case entryTexture:
			t, ok := e.Texture.(*texture)
			if !ok {
				return nil, fmt.Errorf("bind group %q binding %d: want texture, got %T", desc.Label, e.Binding, e.Texture)
			}
			entry.TextureView = t.view
		}
		entries = append(entries, entry)
	}
	bg, err := d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout.layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group %q: %w", desc.Label, err)
	}
	return &bindGroup{group: bg}, nil
}

func (d *device) pipelineLayout(label string, layouts []gpu.BindGroupLayout) (*wgpu.PipelineLayout, error) {
	bgls := make([]*wgpu.BindGroupLayout, len(layouts))
	for i, l := range layouts {
		bgl, ok := l.(*bindGroupLayout)
		if !ok || bgl.layout == nil {
			return nil, fmt.Errorf("pipeline %q: group %d layout is foreign or released", label, i)
		}
		bgls[i] = bgl.layout
	}
	return d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: bgls,
	})
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

	buffers := make([]wgpu.VertexBufferLayout, 0, len(desc.VertexBuffers))
	for _, vb := range desc.VertexBuffers {
		attrs := make([]wgpu.VertexAttribute, 0, len(vb.Attributes))
		for _, a := range vb.Attributes {
			format, err := vertexFormat(a.Format)
			if err != nil {
				return nil, fmt.Errorf("render pipeline %q attribute %q: %w", desc.Label, vb.Name, err)
			}
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         format,
				Offset:         a.Offset,
				ShaderLocation: a.ShaderLocation,
			})
		}
		buffers = append(buffers, wgpu.VertexBufferLayout{
			ArrayStride: vb.ArrayStride,
			StepMode:    stepMode(vb.StepMode),
			Attributes:  attrs,
		})
	}

	var targets []wgpu.ColorTargetState
	if len(desc.TargetFormats) == 0 {
		targets = append(targets, wgpu.ColorTargetState{
			Format:    d.surfaceFormat,
			WriteMask: writeMask(desc.WriteMask),
			Blend:     blendState(desc.Blend),
		})
	}
	for _, f := range desc.TargetFormats {
		format, err := textureFormat(f)
		if err != nil {
			return nil, fmt.Errorf("render pipeline %q: %w", desc.Label, err)
		}
		target := wgpu.ColorTargetState{Format: format, WriteMask: writeMask(desc.WriteMask)}
		// float targets are not blendable
		if f != gputypes.TextureFormatRGBA32Float {
			target.Blend = blendState(desc.Blend)
		}
		targets = append(targets, target)
	}

	layout, err := d.pipelineLayout(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}

	rpd := &wgpu.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     vs.module,
			EntryPoint: desc.VertexEntryPoint,
			Buffers:    buffers,
		},
		Fragment: &wgpu.FragmentState{
			Module:     fs.module,
			EntryPoint: desc.FragmentEntryPoint,
			Targets:    targets,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  topology(desc.Topology),
			FrontFace: frontFace(desc.FrontFace),
			CullMode:  cullMode(desc.CullMode),
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}
	if !desc.OffscreenTarget {
		rpd.Multisample.Count = uint32(d.sampleCount)
		depthCompare := wgpu.CompareFunctionLess
		if !desc.DepthTest {
			depthCompare = wgpu.CompareFunctionAlways
		}
		rpd.DepthStencil = &wgpu.DepthStencilState{
			Format:              wgpu.TextureFormatDepth24Plus,
			DepthWriteEnabled:   desc.DepthWrite,
			DepthCompare:        depthCompare,
			DepthBias:           desc.DepthBias,
			DepthBiasSlopeScale: desc.DepthBiasSlopeScale,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := d.device.CreateRenderPipeline(rpd)
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("create render pipeline %q: %w", desc.Label, err)
	}
	return &renderPipeline{pipeline: created, layout: layout}, nil
}

func (d *device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, gpu.ErrReleased
	}
	cs, ok := desc.Module.(*shaderModule)
	if !ok {
		return nil, fmt.Errorf("compute pipeline %q: foreign module %T", desc.Label, desc.Module)
	}
	layout, err := d.pipelineLayout(desc.Label, desc.BindGroupLayouts)
	if err != nil {
		return nil, err
	}
	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     cs.module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		layout.Release()
		return nil, fmt.Errorf("create compute pipeline %q: %w", desc.Label, err)
	}
	return &computePipeline{pipeline: created, layout: layout}, nil
}

func (d *device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	if d.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return fmt.Errorf("surface view: %w", err)
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return fmt.Errorf("command encoder: %w", err)
	}
	d.frameEncoder = encoder
	d.frameSurface = surfaceTexture
	d.frameView = view
	return nil
}

func (d *device) BeginRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameEncoder == nil {
		return nil, gpu.ErrNoFrame
	}
	loadOp := wgpu.LoadOpClear
	if desc.Load {
		loadOp = wgpu.LoadOpLoad
	}
	clear := wgpu.Color{R: desc.ClearColor[0], G: desc.ClearColor[1], B: desc.ClearColor[2], A: desc.ClearColor[3]}

	if desc.Target != nil {
		fb, ok := desc.Target.(*framebuffer)
		if !ok {
			return nil, fmt.Errorf("render pass %q: foreign target %T", desc.Label, desc.Target)
		}
		attachments := make([]wgpu.RenderPassColorAttachment, 0, len(fb.attachments))
		for _, a := range fb.attachments {
			attachments = append(attachments, wgpu.RenderPassColorAttachment{
				View:       a.(*texture).view,
				LoadOp:     loadOp,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: clear,
			})
		}
		pass := d.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			Label:            desc.Label,
			ColorAttachments: attachments,
		})
		return &renderPass{pass: pass}, nil
	}

	// With MSAA the pass draws into the multisampled texture and resolves into the swapchain view.
	color := wgpu.RenderPassColorAttachment{
		View:       d.frameView,
		LoadOp:     loadOp,
		StoreOp:    wgpu.StoreOpStore,
		ClearValue: clear,
	}
	if d.sampleCount > 1 {
		color.View = d.msaaView
		color.ResolveTarget = d.frameView
		color.StoreOp = wgpu.StoreOpDiscard
	}
	pass := d.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{color},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            d.depthView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpDiscard,
			DepthClearValue: 1.0,
		},
	})
	return &renderPass{pass: pass}, nil
}

func (d *device) BeginComputePass(label string) (gpu.ComputePass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameEncoder == nil {
		return nil, gpu.ErrNoFrame
	}
	pass := d.frameEncoder.BeginComputePass(&wgpu.ComputePassDescriptor{Label: label})
	return &computePass{pass: pass}, nil
}

func (d *device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameEncoder == nil {
		return gpu.ErrNoFrame
	}
	defer func() {
		d.frameEncoder.Release()
		d.frameEncoder = nil
	}()

	commandBuffer, err := d.frameEncoder.Finish(nil)
	if err != nil {
		d.releaseFrameSurface()
		return fmt.Errorf("finish frame: %w", err)
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (d *device) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frameSurface == nil {
		return
	}
	d.surface.Present()
	d.releaseFrameSurface()
}

func (d *device) releaseFrameSurface() {
	if d.frameView != nil {
		d.frameView.Release()
		d.frameView = nil
	}
	if d.frameSurface != nil {
		d.frameSurface.Release()
		d.frameSurface = nil
	}
}

func (d *device) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return gpu.ErrReleased
	}
	if width == d.width && height == d.height {
		return nil
	}
	if err := d.configure(width, height); err != nil {
		return fmt.Errorf("resize to %dx%d: %w", width, height, err)
	}
	d.logger.Debug("resized surface", zap.Int("width", width), zap.Int("height", height))
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
	if d.released {
		return
	}
	d.released = true
	if d.frameEncoder != nil {
		d.frameEncoder.Release()
		d.frameEncoder = nil
	}
	d.releaseFrameSurface()
	d.releaseAttachments()
	if d.queue != nil {
		d.queue.Release()
	}
	if d.device != nil {
		d.device.Release()
	}
	if d.adapter != nil {
		d.adapter.Release()
	}
	if d.surface != nil {
		d.surface.Release()
	}
	if d.instance != nil {
		d.instance.Release()
	}
}

func align(n, to uint64) uint64 {
	if r := n % to; r != 0 {
		return n + to - r
	}
	return n
}
