package bind_group_provider

import "github.com/Carmen-Shannon/oxy-bind/engine/gpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithBindGroup sets the bind group for this provider, used for both sides.
//
// Parameters:
//   - bg: the bind group to set for this provider
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group for this provider
func WithBindGroup(bg gpu.BindGroup) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetBindGroup(bg)
	}
}

// WithBindGroupLayout sets the bind group layout for this provider.
//
// Parameters:
//   - bgl: the bind group layout to use for this provider
//
// Returns:
//   - BindGroupProviderOption: a function that sets the bind group layout for this provider
func WithBindGroupLayout(bgl gpu.BindGroupLayout) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.bindGroupLayout = bgl
	}
}

// WithBuffer sets a buffer for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this buffer
//   - key: the resource key of the buffer
//   - buf: the buffer to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the buffer for the specified binding
func WithBuffer(binding int, key string, buf gpu.Buffer) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetBuffer(binding, key, buf)
	}
}

// WithTexture sets a texture for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this texture
//   - key: the resource key of the texture
//   - tex: the texture to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the texture for the specified binding
func WithTexture(binding int, key string, tex gpu.Texture) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.SetTexture(binding, key, tex)
	}
}
