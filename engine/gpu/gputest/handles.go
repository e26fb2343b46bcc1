package gputest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/gogpu/gputypes"
)

type handle struct {
	dev      *Device
	id       int
	kind     string
	label    string
	releases int
}

func (h *handle) Release() {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	h.releases++
	h.dev.record("Release %s %s", h.kind, h.label)
}

// Label returns the debug label the handle was created with.
func (h *handle) Label() string { return h.label }

// Releases returns how many times Release was called.
func (h *handle) Releases() int {
	h.dev.mu.Lock()
	defer h.dev.mu.Unlock()
	return h.releases
}

// Buffer records its contents.
type Buffer struct {
	*handle
	Desc   gpu.BufferDescriptor
	Data   []byte
	Writes int
}

func (b *Buffer) Size() uint64 { return b.Desc.Size }

// Texture records the last full upload.
type Texture struct {
	*handle
	Desc   gpu.TextureDescriptor
	Data   []byte
	Writes int
}

func (t *Texture) Width() uint32                  { return t.Desc.Width }
func (t *Texture) Height() uint32                 { return t.Desc.Height }
func (t *Texture) Format() gputypes.TextureFormat { return t.Desc.Format }

type Framebuffer struct {
	*handle
	attachments []gpu.Texture
}

func (f *Framebuffer) Attachments() []gpu.Texture { return f.attachments }

type ShaderModule struct {
	*handle
	Desc gpu.ShaderModuleDescriptor
}

func (s *ShaderModule) Stage() gpu.Stage { return s.Desc.Stage }

type BindGroupLayout struct {
	*handle
	Desc gpu.BindGroupLayoutDescriptor
}

func (l *BindGroupLayout) Group() uint32 { return l.Desc.Group }

type BindGroup struct {
	*handle
	Desc gpu.BindGroupDescriptor
}

type RenderPipeline struct {
	*handle
	Desc gpu.RenderPipelineDescriptor
}

type ComputePipeline struct {
	*handle
	Desc gpu.ComputePipelineDescriptor
}

// pass records encoder commands into the owning device's log.
type pass struct {
	dev  *Device
	kind string
}

func (p *pass) log(format string, args ...any) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.dev.record(format, args...)
}

func (p *pass) SetPipeline(pl gpu.RenderPipeline) {
	p.log("SetPipeline %s", pl.(*RenderPipeline).label)
}

func (p *pass) SetBindGroup(index uint32, bg gpu.BindGroup) {
	p.log("SetBindGroup %d %s", index, labelOf(bg))
}

func (p *pass) SetVertexBuffer(slot uint32, buf gpu.Buffer) {
	p.log("SetVertexBuffer %d %s", slot, buf.(*Buffer).label)
}

func (p *pass) Draw(vertexCount, instanceCount uint32) {
	p.log("Draw %d %d", vertexCount, instanceCount)
}

func (p *pass) DispatchWorkgroups(x, y, z uint32) {
	p.log("Dispatch %d %d %d", x, y, z)
}

func (p *pass) End() error {
	p.log("End %s", p.kind)
	return nil
}

// computePass adapts pass to gpu.ComputePass, whose SetPipeline takes a compute pipeline.
type computePass struct{ *pass }

func (c computePass) SetPipeline(pl gpu.ComputePipeline) {
	c.log("SetPipeline %s", pl.(*ComputePipeline).label)
}

func labelOf(h any) string {
	if l, ok := h.(interface{ Label() string }); ok {
		return l.Label()
	}
	return fmt.Sprintf("%T", h)
}
