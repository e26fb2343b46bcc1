package gl_device

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/gogpu/gputypes"
)

type entryKind int

const (
	entryUniform entryKind = iota
	entrySampler
	entryTexture
)

// buffer keeps a CPU copy of its contents so plain (non-block) uniforms can be uploaded with glUniform*.
type buffer struct {
	id     uint32
	size   uint64
	usage  gputypes.BufferUsage
	shadow []byte
}

func (b *buffer) Size() uint64 { return b.size }

func (b *buffer) Release() {
	if b.id != 0 {
		gl.DeleteBuffers(1, &b.id)
		b.id = 0
	}
	b.shadow = nil
}

type texture struct {
	id             uint32
	width, height  uint32
	format         gputypes.TextureFormat
	internalFormat int32
	pixelFormat    uint32
	pixelType      uint32
}

func (t *texture) Width() uint32                  { return t.width }
func (t *texture) Height() uint32                 { return t.height }
func (t *texture) Format() gputypes.TextureFormat { return t.format }

func (t *texture) Release() {
	if t.id != 0 {
		gl.DeleteTextures(1, &t.id)
		t.id = 0
	}
}

type framebuffer struct {
	id          uint32
	attachments []gpu.Texture
}

func (f *framebuffer) Attachments() []gpu.Texture { return f.attachments }

func (f *framebuffer) Release() {
	if f.id != 0 {
		gl.DeleteFramebuffers(1, &f.id)
		f.id = 0
	}
}

type shaderModule struct {
	id      uint32
	stage   gpu.Stage
	aliases map[string]gpu.Alias
}

func (s *shaderModule) Stage() gpu.Stage { return s.stage }

func (s *shaderModule) Release() {
	if s.id != 0 {
		gl.DeleteShader(s.id)
		s.id = 0
	}
}

// bindGroupLayout has no GL object; programs resolve its entries by name at link time.
type bindGroupLayout struct {
	group   uint32
	entries []gpu.LayoutEntry
	kinds   map[uint32]entryKind
}

func (l *bindGroupLayout) Group() uint32 { return l.group }
func (l *bindGroupLayout) Release()      {}

type bindGroup struct {
	layout   *bindGroupLayout
	buffers  map[uint32]*buffer
	textures map[uint32]*texture
}

func (g *bindGroup) Release() {
	g.buffers = nil
	g.textures = nil
}
