package bind_group_provider

import (
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
)

// bindGroupProvider is the unexported implementation of BindGroupProvider.
type bindGroupProvider struct {
	// label is a debug label added for convenience.
	label string
	// group is the bind group index this provider serves.
	group uint32

	// The following fields are GPU allocated resources owned by this provider and released by Release. They are
	// populated by the pipeline builder, not by user-creation.

	// bindGroupLayout is the layout shared by every variant.
	bindGroupLayout gpu.BindGroupLayout
	// bindGroups holds the bind group reading the ping side at index 0 and the pong side at index 1. Groups that
	// reference no emulated storage hold the same bind group in both.
	bindGroups [2]gpu.BindGroup

	// The following fields reference resources owned by the resource cache. They are kept for inspection and are
	// never released here.

	// buffers holds the buffers bound by this group, keyed by binding index.
	buffers map[int]gpu.Buffer
	// textures holds the textures bound by this group, keyed by binding index. Sampler and view bindings of one
	// texture resource both map to it.
	textures map[int]gpu.Texture
	// keys holds the resource key bound at each binding index.
	keys map[int]string
	// pingPong reports whether the group references an emulated storage texture.
	pingPong bool
	released bool
}

// BindGroupProvider holds the bind group objects for one bind group index of a pipeline.
//
// Usage pattern:
//  1. The pipeline builder creates one provider per group index during Build
//  2. It stores the layout via SetBindGroupLayout and the bind groups via SetBindGroup / SetPingPong
//  3. The frame driver calls BindGroupFor(readPing) when encoding passes
//  4. The next successful Build releases the provider and replaces it
type BindGroupProvider interface {
	// Release releases the layout and bind groups held by this provider. Bound buffers and textures are owned by
	// the resource cache and left alone. Calling Release twice is a no-op.
	Release()

	// Label returns the debug label for this provider.
	// Used for debugging and profiling purposes.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// Group returns the bind group index this provider serves.
	//
	// Returns:
	//   - uint32: the group index
	Group() uint32

	// BindGroup returns the bind group reading the ping side.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - gpu.BindGroup: the bind group or nil
	BindGroup() gpu.BindGroup

	// BindGroupFor returns the bind group variant that reads the given side of every emulated storage texture.
	//
	// Parameters:
	//   - readPing: true to read the ping side
	//
	// Returns:
	//   - gpu.BindGroup: the bind group or nil
	BindGroupFor(readPing bool) gpu.BindGroup

	// BindGroupLayout returns the created bind group layout for this provider.
	// Returns nil if GPU resources have not been initialized.
	//
	// Returns:
	//   - gpu.BindGroupLayout: the bind group layout or nil
	BindGroupLayout() gpu.BindGroupLayout

	// PingPong reports whether the provider holds distinct ping and pong variants.
	PingPong() bool

	// Buffer returns the buffer bound at binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpu.Buffer: the buffer or nil
	Buffer(binding int) gpu.Buffer

	// Buffers returns a map of all buffers bound by this provider, keyed by binding index.
	//
	// Returns:
	//   - map[int]gpu.Buffer: a map of buffers keyed by binding index
	Buffers() map[int]gpu.Buffer

	// Texture returns the texture bound at binding, or nil.
	//
	// Parameters:
	//   - binding: the binding index
	//
	// Returns:
	//   - gpu.Texture: the texture or nil
	Texture(binding int) gpu.Texture

	// Textures returns a map of all textures bound by this provider, keyed by binding index.
	//
	// Returns:
	//   - map[int]gpu.Texture: a map of textures keyed by binding index
	Textures() map[int]gpu.Texture

	// Key returns the resource key bound at binding, or "".
	Key(binding int) string

	// SetBindGroupLayout sets the bind group layout after GPU initialization.
	//
	// Parameters:
	//   - bgl: the created bind group layout
	SetBindGroupLayout(bgl gpu.BindGroupLayout)

	// SetBindGroup sets a single bind group used for both sides.
	//
	// Parameters:
	//   - bg: the created bind group
	SetBindGroup(bg gpu.BindGroup)

	// SetPingPong sets the two variants of a group that reads emulated storage.
	//
	// Parameters:
	//   - readPing: the bind group reading the ping textures
	//   - readPong: the bind group reading the pong textures
	SetPingPong(readPing, readPong gpu.BindGroup)

	// SetBuffer records the buffer bound at binding for key.
	SetBuffer(binding int, key string, buf gpu.Buffer)

	// SetTexture records the texture bound at binding for key.
	SetTexture(binding int, key string, tex gpu.Texture)
}

// Compile-time check that bindGroupProvider implements BindGroupProvider
var _ BindGroupProvider = &bindGroupProvider{}

// NewBindGroupProvider creates a new BindGroupProvider with the provided options.
//
// Parameters:
//   - label: the debug label
//   - group: the bind group index
//   - options: a variadic list of options to configure the provider
//
// Returns:
//   - BindGroupProvider: a new instance of BindGroupProvider configured with the provided options
func NewBindGroupProvider(label string, group uint32, options ...BindGroupProviderOption) BindGroupProvider {
	p := &bindGroupProvider{
		label:    label,
		group:    group,
		buffers:  make(map[int]gpu.Buffer),
		textures: make(map[int]gpu.Texture),
		keys:     make(map[int]string),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *bindGroupProvider) Label() string {
	return p.label
}

func (p *bindGroupProvider) Group() uint32 {
	return p.group
}

func (p *bindGroupProvider) BindGroup() gpu.BindGroup {
	return p.bindGroups[0]
}

func (p *bindGroupProvider) BindGroupFor(readPing bool) gpu.BindGroup {
	if readPing {
		return p.bindGroups[0]
	}
	return p.bindGroups[1]
}

func (p *bindGroupProvider) BindGroupLayout() gpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *bindGroupProvider) PingPong() bool {
	return p.pingPong
}

func (p *bindGroupProvider) Buffer(binding int) gpu.Buffer {
	return p.buffers[binding]
}

func (p *bindGroupProvider) Buffers() map[int]gpu.Buffer {
	return p.buffers
}

func (p *bindGroupProvider) Texture(binding int) gpu.Texture {
	return p.textures[binding]
}

func (p *bindGroupProvider) Textures() map[int]gpu.Texture {
	return p.textures
}

func (p *bindGroupProvider) Key(binding int) string {
	return p.keys[binding]
}

func (p *bindGroupProvider) SetBindGroupLayout(bgl gpu.BindGroupLayout) {
	p.bindGroupLayout = bgl
}

func (p *bindGroupProvider) SetBindGroup(bg gpu.BindGroup) {
	p.bindGroups = [2]gpu.BindGroup{bg, bg}
	p.pingPong = false
}

func (p *bindGroupProvider) SetPingPong(readPing, readPong gpu.BindGroup) {
	p.bindGroups = [2]gpu.BindGroup{readPing, readPong}
	p.pingPong = true
}

func (p *bindGroupProvider) SetBuffer(binding int, key string, buf gpu.Buffer) {
	p.buffers[binding] = buf
	p.keys[binding] = key
}

func (p *bindGroupProvider) SetTexture(binding int, key string, tex gpu.Texture) {
	p.textures[binding] = tex
	p.keys[binding] = key
}

func (p *bindGroupProvider) Release() {
	if p.released {
		return
	}
	p.released = true
	if p.bindGroups[0] != nil {
		p.bindGroups[0].Release()
	}
	if p.pingPong && p.bindGroups[1] != nil {
		p.bindGroups[1].Release()
	}
	p.bindGroups = [2]gpu.BindGroup{}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}
