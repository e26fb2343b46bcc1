package wgpu_device

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/gputypes"
)

type entryKind int

const (
	entryBuffer entryKind = iota
	entrySampler
	entryTexture
)

type buffer struct {
	buf  *wgpu.Buffer
	size uint64
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// texture owns the wgpu texture, its default view and the sampler used to read it.
type texture struct {
	tex     *wgpu.Texture
	view    *wgpu.TextureView
	sampler *wgpu.Sampler
	width   uint32
	height  uint32
	format  gputypes.TextureFormat
}

func (t *texture) Width() uint32                  { return t.width }
func (t *texture) Height() uint32                 { return t.height }
func (t *texture) Format() gputypes.TextureFormat { return t.format }

func (t *texture) Release() {
	if t.sampler != nil {
		t.sampler.Release()
		t.sampler = nil
	}
	if t.view != nil {
		t.view.Release()
		t.view = nil
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
}

// framebuffer has no wgpu object; render passes attach the views of its textures directly.
type framebuffer struct {
	attachments []gpu.Texture
}

func (f *framebuffer) Attachments() []gpu.Texture { return f.attachments }
func (f *framebuffer) Release()                   { f.attachments = nil }

type shaderModule struct {
	module *wgpu.ShaderModule
	stage  gpu.Stage
}

func (s *shaderModule) Stage() gpu.Stage { return s.stage }

func (s *shaderModule) Release() {
	if s.module != nil {
		s.module.Release()
		s.module = nil
	}
}

type bindGroupLayout struct {
	layout *wgpu.BindGroupLayout
	group  uint32
	kinds  map[uint32]entryKind
}

func (l *bindGroupLayout) Group() uint32 { return l.group }

func (l *bindGroupLayout) Release() {
	if l.layout != nil {
		l.layout.Release()
		l.layout = nil
	}
}

type bindGroup struct {
	group *wgpu.BindGroup
}

func (g *bindGroup) Release() {
	if g.group != nil {
		g.group.Release()
		g.group = nil
	}
}

type renderPipeline struct {
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.PipelineLayout
}

func (p *renderPipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}

type computePipeline struct {
	pipeline *wgpu.ComputePipeline
	layout   *wgpu.PipelineLayout
}

func (p *computePipeline) Release() {
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	if p.layout != nil {
		p.layout.Release()
		p.layout = nil
	}
}

type renderPass struct {
	pass *wgpu.RenderPassEncoder
}

func (p *renderPass) SetPipeline(rp gpu.RenderPipeline) {
	p.pass.SetPipeline(rp.(*renderPipeline).pipeline)
}

func (p *renderPass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	p.pass.SetBindGroup(index, bg.(*bindGroup).group, nil)
}

func (p *renderPass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	p.pass.SetVertexBuffer(slot, buf.(*buffer).buf, 0, wgpu.WholeSize)
}

func (p *renderPass) Draw(vertexCount, instanceCount uint32) {
	p.pass.Draw(vertexCount, instanceCount, 0, 0)
}

func (p *renderPass) End() error {
	p.pass.End()
	p.pass.Release()
	return nil
}

type computePass struct {
	pass *wgpu.ComputePassEncoder
}

func (p *computePass) SetPipeline(cp gpu.ComputePipeline) {
	p.pass.SetPipeline(cp.(*computePipeline).pipeline)
}

func (p *computePass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	p.pass.SetBindGroup(index, bg.(*bindGroup).group, nil)
}

func (p *computePass) DispatchWorkgroups(x, y, z uint32) {
	p.pass.DispatchWorkgroups(x, y, z)
}

func (p *computePass) End() error {
	p.pass.End()
	p.pass.Release()
	return nil
}
