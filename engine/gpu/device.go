// Package gpu defines the backend-neutral device surface shared by the raster (OpenGL) and explicit (WebGPU)
// backends. Descriptors are expressed with gputypes so the binding and pipeline layers never import a concrete
// graphics API; each backend converts them at its own boundary.
package gpu

import (
	"errors"

	"github.com/gogpu/gputypes"
)

var (
	// ErrNoAdapter is returned when no compatible adapter, device or GL context can be obtained.
	ErrNoAdapter = errors.New("no compatible GPU adapter")
	// ErrNoFrame is returned when a pass is requested outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("no frame in progress")
	// ErrReleased is returned by any call on a device after Release.
	ErrReleased = errors.New("device released")
)

// Handle is any GPU object that owns driver memory. Release must be called exactly once.
type Handle interface {
	Release()
}

// Buffer is a linear GPU allocation.
type Buffer interface {
	Handle
	// Size returns the allocated size in bytes, including alignment padding.
	Size() uint64
}

// Texture is a 2D texture paired with the sampler used to read it.
type Texture interface {
	Handle
	Width() uint32
	Height() uint32
	Format() gputypes.TextureFormat
}

// Framebuffer is a render target made of one or more color attachments.
type Framebuffer interface {
	Handle
	Attachments() []Texture
}

// ShaderModule is a compiled shader stage.
type ShaderModule interface {
	Handle
	Stage() Stage
}

// BindGroupLayout describes the bindings of one group index.
type BindGroupLayout interface {
	Handle
	Group() uint32
}

// BindGroup is a set of resources matching a BindGroupLayout.
type BindGroup interface {
	Handle
}

// RenderPipeline is a linked vertex+fragment pipeline.
type RenderPipeline interface {
	Handle
}

// ComputePipeline is a native compute pipeline. Only devices reporting Capabilities.StorageBuffers create these.
type ComputePipeline interface {
	Handle
}

// RenderPass encodes draw commands against one target.
type RenderPass interface {
	SetPipeline(p RenderPipeline)
	SetBindGroup(index uint32, bg BindGroup)
	SetVertexBuffer(slot uint32, buf Buffer)
	Draw(vertexCount, instanceCount uint32)
	End() error
}

// ComputePass encodes native compute dispatches.
type ComputePass interface {
	SetPipeline(p ComputePipeline)
	SetBindGroup(index uint32, bg BindGroup)
	DispatchWorkgroups(x, y, z uint32)
	End() error
}

// Device is the contract both backends implement. All methods are called from the frame loop thread.
type Device interface {
	// Capabilities returns the static limits and features of the device.
	Capabilities() Capabilities

	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	// WriteBuffer enqueues an upload into buf at offset. The upload is visible to every pass begun afterwards.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	CreateTexture(desc TextureDescriptor) (Texture, error)
	// WriteTexture replaces the full contents of tex. data must match the texture's format and size.
	WriteTexture(tex Texture, data []byte) error

	// CreateFramebuffer builds a render target writing into the given textures, in attachment order.
	CreateFramebuffer(label string, attachments ...Texture) (Framebuffer, error)

	CreateShaderModule(desc ShaderModuleDescriptor) (ShaderModule, error)
	CreateBindGroupLayout(desc BindGroupLayoutDescriptor) (BindGroupLayout, error)
	CreateBindGroup(desc BindGroupDescriptor) (BindGroup, error)
	CreateRenderPipeline(desc RenderPipelineDescriptor) (RenderPipeline, error)
	CreateComputePipeline(desc ComputePipelineDescriptor) (ComputePipeline, error)

	// BeginFrame acquires the surface texture and opens the frame's command encoder.
	BeginFrame() error
	BeginRenderPass(desc RenderPassDescriptor) (RenderPass, error)
	BeginComputePass(label string) (ComputePass, error)
	// EndFrame finishes the command encoder and submits it to the queue.
	EndFrame() error
	// Present displays the surface texture acquired by BeginFrame.
	Present()

	// Resize recreates every size-dependent attachment (depth, MSAA) before returning.
	Resize(width, height int) error
	Size() (width, height int)

	// Release destroys the device. Handles created by it must be released first.
	Release()
}
