package gpu

import "github.com/gogpu/gputypes"

// Stage identifies a shader stage.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "unknown"
	}
}

// Language is the shading language a device consumes natively.
type Language int

const (
	LanguageWGSL Language = iota
	LanguageGLSL
)

func (l Language) String() string {
	if l == LanguageGLSL {
		return "glsl"
	}
	return "wgsl"
}

// BufferDescriptor describes a buffer allocation.
type BufferDescriptor struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
}

// TextureDescriptor describes a 2D texture and its sampler.
type TextureDescriptor struct {
	Label  string
	Width  uint32
	Height uint32
	Format gputypes.TextureFormat
	Usage  gputypes.TextureUsage
	// Nearest selects point filtering; emulated storage textures always use it so texels are read back exactly.
	Nearest bool
}

// Alias is the WGSL (group, binding) a generated GLSL identifier was translated from.
type Alias struct {
	Group   uint32
	Binding uint32
}

// ShaderModuleDescriptor carries shader source for one stage.
type ShaderModuleDescriptor struct {
	Label      string
	Stage      Stage
	Source     string
	EntryPoint string
	// Aliases maps identifiers of translated GLSL to their WGSL binding so the raster backend can resolve them
	// when they differ from the resource key.
	Aliases map[string]Alias
}

// LayoutEntry is a gputypes layout entry plus the resource name. The raster backend resolves uniform, sampler
// and attribute locations by name; the explicit backend ignores it.
type LayoutEntry struct {
	Name string
	gputypes.BindGroupLayoutEntry
}

// BindGroupLayoutDescriptor describes every binding of one group index.
type BindGroupLayoutDescriptor struct {
	Label   string
	Group   uint32
	Entries []LayoutEntry
}

// BindGroupEntry binds one resource. Texture entries are used for both the sampler and the view binding of a
// texture resource; the device picks the matching object by the layout entry type.
type BindGroupEntry struct {
	Binding uint32
	Buffer  Buffer
	Texture Texture
}

// BindGroupDescriptor describes a bind group for a layout.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// VertexBufferLayout is a gputypes vertex layout plus the attribute name, one buffer per attribute.
type VertexBufferLayout struct {
	Name string
	gputypes.VertexBufferLayout
}

// RenderPipelineDescriptor describes a render pipeline. BindGroupLayouts is indexed by group; gaps are not allowed.
type RenderPipelineDescriptor struct {
	Label              string
	Vertex             ShaderModule
	Fragment           ShaderModule
	VertexEntryPoint   string
	FragmentEntryPoint string
	VertexBuffers      []VertexBufferLayout
	BindGroupLayouts   []BindGroupLayout

	Topology  gputypes.PrimitiveTopology
	CullMode  gputypes.CullMode
	FrontFace gputypes.FrontFace
	// Blend is the color blend state; nil disables blending.
	Blend      *gputypes.BlendState
	WriteMask  gputypes.ColorWriteMask
	DepthTest  bool
	DepthWrite bool
	// DepthBias and DepthBiasSlopeScale offset written depth values; the raster backend maps them to polygon offset.
	DepthBias           int32
	DepthBiasSlopeScale float32

	// TargetFormats lists the color attachment formats. Empty means the surface format.
	TargetFormats []gputypes.TextureFormat
	// OffscreenTarget marks pipelines drawing into a Framebuffer without depth or MSAA.
	OffscreenTarget bool
}

// ComputePipelineDescriptor describes a native compute pipeline.
type ComputePipelineDescriptor struct {
	Label            string
	Module           ShaderModule
	EntryPoint       string
	BindGroupLayouts []BindGroupLayout
}

// RenderPassDescriptor describes a render pass. A nil Target renders into the surface with depth.
type RenderPassDescriptor struct {
	Label      string
	Target     Framebuffer
	ClearColor [4]float64
	// Load keeps the previous contents instead of clearing.
	Load bool
}

// Capabilities describes the limits the binding layer must respect.
type Capabilities struct {
	Backend  string
	Language Language
	// MaxBindGroups is the number of bind group indices a pipeline layout may use.
	MaxBindGroups int
	// StorageBuffers reports native persistent storage buffers and compute pipelines.
	StorageBuffers bool
	// MaxComputeWorkgroupsPerDimension caps each dispatch dimension.
	MaxComputeWorkgroupsPerDimension uint32
	// UniformBufferAlignment is the size granularity of uniform buffers.
	UniformBufferAlignment uint64
	// BufferAlignment is the size granularity of every other buffer.
	BufferAlignment uint64
	// SurfaceFormat is the format of the presentable surface.
	SurfaceFormat gputypes.TextureFormat
}

// DefaultCapabilities returns the WebGPU baseline limits with MaxBindGroups raised to 8, matching what the
// explicit device requests.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Backend:                          "explicit",
		Language:                         LanguageWGSL,
		MaxBindGroups:                    8,
		StorageBuffers:                   true,
		MaxComputeWorkgroupsPerDimension: 65535,
		UniformBufferAlignment:           256,
		BufferAlignment:                  4,
		SurfaceFormat:                    gputypes.TextureFormatBGRA8Unorm,
	}
}
