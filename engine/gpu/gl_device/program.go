package gl_device

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/gogpu/gputypes"
	"go.uber.org/zap"
)

// activeUniform is one entry of glGetActiveUniform with array suffixes stripped from the name.
type activeUniform struct {
	location int32
	glType   uint32
	size     int32
}

// uniformBinding connects a (group, binding) uniform to either a block binding point or a plain uniform location.
type uniformBinding struct {
	group, binding uint32
	block          bool
	point          uint32
	uniform        activeUniform
}

type textureBinding struct {
	group, binding uint32
	unit           int32
}

type renderPipeline struct {
	program       uint32
	vao           uint32
	vertexBuffers []gpu.VertexBufferLayout
	uniforms      []uniformBinding
	textures      []textureBinding
	state         renderState
}

func (p *renderPipeline) Release() {
	if p.vao != 0 {
		gl.DeleteVertexArrays(1, &p.vao)
		p.vao = 0
	}
	if p.program != 0 {
		gl.DeleteProgram(p.program)
		p.program = 0
	}
}

func compileShader(stage gpu.Stage, source string) (uint32, error) {
	kind := uint32(gl.VERTEX_SHADER)
	switch stage {
	case gpu.StageFragment:
		kind = gl.FRAGMENT_SHADER
	case gpu.StageCompute:
		return 0, fmt.Errorf("compute shaders are not supported by the raster device")
	}
	shader := gl.CreateShader(kind)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile error: %s", strings.TrimRight(log, "\x00"))
	}
	return shader, nil
}

// linkProgram links the vertex and fragment shaders after binding every attribute name to its location.
func linkProgram(vs, fs *shaderModule, vertexBuffers []gpu.VertexBufferLayout) (uint32, error) {
	program := gl.CreateProgram()
	gl.AttachShader(program, vs.id)
	gl.AttachShader(program, fs.id)
	for _, vb := range vertexBuffers {
		for _, a := range vb.Attributes {
			gl.BindAttribLocation(program, a.ShaderLocation, gl.Str(vb.Name+"\x00"))
		}
	}
	gl.LinkProgram(program)
	gl.DetachShader(program, vs.id)
	gl.DetachShader(program, fs.id)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("link error: %s", strings.TrimRight(log, "\x00"))
	}
	return program, nil
}

func activeUniforms(program uint32) map[string]activeUniform {
	var count, maxLength int32
	gl.GetProgramiv(program, gl.ACTIVE_UNIFORMS, &count)
	gl.GetProgramiv(program, gl.ACTIVE_UNIFORM_MAX_LENGTH, &maxLength)
	out := make(map[string]activeUniform, count)
	name := make([]uint8, maxLength+1)
	for i := int32(0); i < count; i++ {
		var length, size int32
		var glType uint32
		gl.GetActiveUniform(program, uint32(i), maxLength+1, &length, &size, &glType, &name[0])
		n := strings.TrimSuffix(string(name[:length]), "[0]")
		out[n] = activeUniform{
			location: gl.GetUniformLocation(program, gl.Str(n+"\x00")),
			glType:   glType,
			size:     size,
		}
	}
	return out
}

// candidates returns the identifiers a resource may carry in the linked program: its key first, then every
// translated name aliasing its (group, binding).
func candidates(name string, group, binding uint32, modules ...*shaderModule) []string {
	out := []string{name}
	for _, m := range modules {
		for ident, a := range m.aliases {
			if a.Group == group && a.Binding == binding {
				out = append(out, ident)
			}
		}
	}
	return out
}

// resolve maps every layout entry to a block binding point, plain uniform location or texture unit. Entries the
// linker optimized out are skipped.
func (d *device) resolve(p *renderPipeline, layouts []gpu.BindGroupLayout, vs, fs *shaderModule) error {
	active := activeUniforms(p.program)
	gl.UseProgram(p.program)
	defer gl.UseProgram(0)

	var point uint32
	var unit int32
	for g, l := range layouts {
		layout, ok := l.(*bindGroupLayout)
		if !ok {
			return fmt.Errorf("group %d: foreign layout %T", g, l)
		}
		for _, e := range layout.entries {
			kind := layout.kinds[e.Binding]
			if kind == entrySampler {
				continue
			}
			found := false
			for _, n := range candidates(e.Name, layout.group, e.Binding, vs, fs) {
				if kind == entryUniform {
					if idx := gl.GetUniformBlockIndex(p.program, gl.Str(n+"\x00")); idx != gl.INVALID_INDEX {
						if point >= d.maxUniformBindings {
							return fmt.Errorf("uniform %q exceeds %d block bindings", e.Name, d.maxUniformBindings)
						}
						gl.UniformBlockBinding(p.program, idx, point)
						p.uniforms = append(p.uniforms, uniformBinding{group: layout.group, binding: e.Binding, block: true, point: point})
						point++
						found = true
						break
					}
					if u, ok := active[n]; ok {
						p.uniforms = append(p.uniforms, uniformBinding{group: layout.group, binding: e.Binding, uniform: u})
						found = true
						break
					}
					continue
				}
				if u, ok := active[n]; ok && isSampler(u.glType) {
					if unit >= d.maxTextureUnits {
						return fmt.Errorf("texture %q exceeds %d texture units", e.Name, d.maxTextureUnits)
					}
					gl.Uniform1i(u.location, unit)
					p.textures = append(p.textures, textureBinding{group: layout.group, binding: e.Binding, unit: unit})
					unit++
					found = true
					break
				}
			}
			if !found {
				d.logger.Debug("binding not referenced by program",
					zap.String("name", e.Name),
					zap.Uint32("group", layout.group),
					zap.Uint32("binding", e.Binding),
				)
			}
		}
	}
	return nil
}

func isSampler(glType uint32) bool {
	switch glType {
	case gl.SAMPLER_2D, gl.INT_SAMPLER_2D, gl.UNSIGNED_INT_SAMPLER_2D:
		return true
	}
	return false
}

// uploadPlain writes a plain uniform from the CPU copy of its buffer. Arrays of fewer than four components are read
// with the 16-byte stride uniform buffers use.
func uploadPlain(u activeUniform, data []byte) {
	values := common.BytesFloat32(data)
	components := 0
	switch u.glType {
	case gl.FLOAT:
		components = 1
	case gl.FLOAT_VEC2:
		components = 2
	case gl.FLOAT_VEC3:
		components = 3
	case gl.FLOAT_VEC4, gl.FLOAT_MAT2:
		components = 4
	case gl.FLOAT_MAT3:
		components = 9
	case gl.FLOAT_MAT4:
		components = 16
	default:
		return
	}
	count := int(u.size)
	if count > 1 && components < 4 {
		packed := make([]float32, 0, count*components)
		for i := 0; i < count && i*4+components <= len(values); i++ {
			packed = append(packed, values[i*4:i*4+components]...)
		}
		values = packed
	}
	count = min(count, len(values)/components)
	if count == 0 {
		return
	}
	ptr := &values[0]
	switch u.glType {
	case gl.FLOAT:
		gl.Uniform1fv(u.location, int32(count), ptr)
	case gl.FLOAT_VEC2:
		gl.Uniform2fv(u.location, int32(count), ptr)
	case gl.FLOAT_VEC3:
		gl.Uniform3fv(u.location, int32(count), ptr)
	case gl.FLOAT_VEC4:
		gl.Uniform4fv(u.location, int32(count), ptr)
	case gl.FLOAT_MAT2:
		gl.UniformMatrix2fv(u.location, int32(count), false, ptr)
	case gl.FLOAT_MAT3:
		gl.UniformMatrix3fv(u.location, int32(count), false, ptr)
	case gl.FLOAT_MAT4:
		gl.UniformMatrix4fv(u.location, int32(count), false, ptr)
	}
}

// renderState is the fixed-function state a pipeline applies when bound.
type renderState struct {
	mode       uint32
	cull       gputypes.CullMode
	frontFace  gputypes.FrontFace
	depthTest  bool
	depthWrite bool
	depthBias  int32
	slopeScale float32
	blend      *gputypes.BlendState
	writeMask  gputypes.ColorWriteMask
	offscreen  bool
}

func newRenderState(desc gpu.RenderPipelineDescriptor) renderState {
	s := renderState{
		mode:       primitiveMode(desc.Topology),
		cull:       desc.CullMode,
		frontFace:  desc.FrontFace,
		depthTest:  desc.DepthTest,
		depthWrite: desc.DepthWrite,
		depthBias:  desc.DepthBias,
		slopeScale: desc.DepthBiasSlopeScale,
		writeMask:  desc.WriteMask,
		offscreen:  desc.OffscreenTarget,
	}
	if desc.Blend != nil {
		b := *desc.Blend
		s.blend = &b
	}
	return s
}

func (s renderState) apply() {
	if s.depthTest && !s.offscreen {
		gl.Enable(gl.DEPTH_TEST)
		gl.DepthFunc(gl.LESS)
	} else {
		gl.Disable(gl.DEPTH_TEST)
	}
	gl.DepthMask(s.depthWrite && !s.offscreen)

	if s.depthBias != 0 || s.slopeScale != 0 {
		gl.Enable(gl.POLYGON_OFFSET_FILL)
		gl.PolygonOffset(s.slopeScale, float32(s.depthBias))
	} else {
		gl.Disable(gl.POLYGON_OFFSET_FILL)
	}

	switch s.cull {
	case gputypes.CullModeFront:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.FRONT)
	case gputypes.CullModeBack:
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	default:
		gl.Disable(gl.CULL_FACE)
	}
	if s.frontFace == gputypes.FrontFaceCW {
		gl.FrontFace(gl.CW)
	} else {
		gl.FrontFace(gl.CCW)
	}

	if s.blend != nil && !s.offscreen {
		gl.Enable(gl.BLEND)
		gl.BlendEquationSeparate(blendOperation(s.blend.Color.Operation), blendOperation(s.blend.Alpha.Operation))
		gl.BlendFuncSeparate(
			blendFactor(s.blend.Color.SrcFactor), blendFactor(s.blend.Color.DstFactor),
			blendFactor(s.blend.Alpha.SrcFactor), blendFactor(s.blend.Alpha.DstFactor),
		)
	} else {
		gl.Disable(gl.BLEND)
	}
	gl.ColorMask(
		s.writeMask&gputypes.ColorWriteMaskRed != 0,
		s.writeMask&gputypes.ColorWriteMaskGreen != 0,
		s.writeMask&gputypes.ColorWriteMaskBlue != 0,
		s.writeMask&gputypes.ColorWriteMaskAlpha != 0,
	)
}

func primitiveMode(t gputypes.PrimitiveTopology) uint32 {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return gl.POINTS
	case gputypes.PrimitiveTopologyLineList:
		return gl.LINES
	case gputypes.PrimitiveTopologyLineStrip:
		return gl.LINE_STRIP
	case gputypes.PrimitiveTopologyTriangleStrip:
		return gl.TRIANGLE_STRIP
	default:
		return gl.TRIANGLES
	}
}

func blendFactor(f gputypes.BlendFactor) uint32 {
	switch f {
	case gputypes.BlendFactorZero:
		return gl.ZERO
	case gputypes.BlendFactorSrc:
		return gl.SRC_COLOR
	case gputypes.BlendFactorOneMinusSrc:
		return gl.ONE_MINUS_SRC_COLOR
	case gputypes.BlendFactorSrcAlpha:
		return gl.SRC_ALPHA
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return gl.ONE_MINUS_SRC_ALPHA
	case gputypes.BlendFactorDst:
		return gl.DST_COLOR
	case gputypes.BlendFactorOneMinusDst:
		return gl.ONE_MINUS_DST_COLOR
	case gputypes.BlendFactorDstAlpha:
		return gl.DST_ALPHA
	case gputypes.BlendFactorOneMinusDstAlpha:
		return gl.ONE_MINUS_DST_ALPHA
	default:
		return gl.ONE
	}
}

func blendOperation(o gputypes.BlendOperation) uint32 {
	switch o {
	case gputypes.BlendOperationSubtract:
		return gl.FUNC_SUBTRACT
	case gputypes.BlendOperationReverseSubtract:
		return gl.FUNC_REVERSE_SUBTRACT
	case gputypes.BlendOperationMin:
		return gl.MIN
	case gputypes.BlendOperationMax:
		return gl.MAX
	default:
		return gl.FUNC_ADD
	}
}
