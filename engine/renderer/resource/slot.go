package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/allocator"
	"github.com/gogpu/gputypes"
)

// Shape is everything about a resource that the pipeline layout depends on. Two values with equal shapes share a
// GPU handle and only differ by an upload.
type Shape struct {
	// Count is the number of elements (1 for a single uniform value).
	Count int
	// Components is the per-element component count, 1 to 4 (16 for a mat4 uniform).
	Components int
	// Width and Height are the texture dimensions in pixels.
	Width  uint32
	Height uint32
	// Format is the texture format; zero for buffers.
	Format gputypes.TextureFormat
}

// Stride returns the per-element component stride used in GPU memory. Uniform arrays use a 16-byte stride and storage
// vec3 elements are padded to vec4, following WGSL layout rules.
func (s Shape) Stride(kind common.ResourceKind) int {
	switch kind {
	case common.KindUniform:
		if s.Count > 1 && s.Components < 4 {
			return 4
		}
	case common.KindStorage:
		if s.Components == 3 {
			return 4
		}
	}
	return s.Components
}

// ByteSize returns the unpadded size of the CPU shadow for kind.
func (s Shape) ByteSize(kind common.ResourceKind) int {
	if kind == common.KindTexture {
		return int(s.Width) * int(s.Height) * 4
	}
	return s.Count * s.Stride(kind) * 4
}

func (s Shape) String() string {
	if s.Width > 0 {
		return fmt.Sprintf("%dx%d", s.Width, s.Height)
	}
	return fmt.Sprintf("%dx%d", s.Count, s.Components)
}

// Validate reports shapes that can never be allocated.
func (s Shape) Validate(kind common.ResourceKind) error {
	if kind == common.KindTexture {
		if s.Width == 0 || s.Height == 0 {
			return fmt.Errorf("%w: texture %s", ErrMalformedShape, s)
		}
		return nil
	}
	if s.Count <= 0 || s.Components <= 0 || (s.Components > 4 && s.Components != 16) {
		return fmt.Errorf("%w: %s %s", ErrMalformedShape, kind, s)
	}
	return nil
}

// Slot is the memoized state of one resource key.
type Slot struct {
	Key  string
	Kind common.ResourceKind
	// Address is assigned by the owner after allocation and never changes.
	Address allocator.Address
	Shape   Shape
	// Shadow is the CPU copy of the data last written.
	Shadow []byte
	// Handle is the GPU object backing the slot: a gpu.Buffer, a gpu.Texture or an Uploader.
	Handle gpu.Handle
	// Generation increments every time Handle is recreated.
	Generation int

	dirty bool
}

// Dirty reports whether the slot has a write not yet flushed.
func (s *Slot) Dirty() bool { return s.dirty }

// Buffer returns the handle as a buffer, or nil.
func (s *Slot) Buffer() gpu.Buffer {
	b, _ := s.Handle.(gpu.Buffer)
	return b
}

// Texture returns the handle as a texture, or nil.
func (s *Slot) Texture() gpu.Texture {
	t, _ := s.Handle.(gpu.Texture)
	return t
}

// Uploader is implemented by handles that upload shadow data themselves instead of through a plain buffer or texture
// write. Double buffers use it to seed both sides.
type Uploader interface {
	gpu.Handle
	Upload(dev gpu.Device, data []byte) error
}

// HandleFactory creates the GPU handle for a slot whose Kind, Key and Shape are set.
type HandleFactory func(dev gpu.Device, slot *Slot) (gpu.Handle, error)

// DefaultFactory creates buffers for numeric kinds and RGBA8 textures for textures, sized to the device alignment.
func DefaultFactory(dev gpu.Device, slot *Slot) (gpu.Handle, error) {
	caps := dev.Capabilities()
	size := uint64(slot.Shape.ByteSize(slot.Kind))

	switch slot.Kind {
	case common.KindTexture:
		format := slot.Shape.Format
		if format == gputypes.TextureFormatUndefined {
			format = gputypes.TextureFormatRGBA8Unorm
		}
		return dev.CreateTexture(gpu.TextureDescriptor{
			Label:  slot.Key,
			Width:  slot.Shape.Width,
			Height: slot.Shape.Height,
			Format: format,
			Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
		})
	case common.KindUniform:
		return dev.CreateBuffer(gpu.BufferDescriptor{
			Label: slot.Key,
			Size:  common.AlignUp(size, common.Coalesce(caps.UniformBufferAlignment, 256)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
	case common.KindAttribute:
		return dev.CreateBuffer(gpu.BufferDescriptor{
			Label: slot.Key,
			Size:  common.AlignUp(size, common.Coalesce(caps.BufferAlignment, 4)),
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
	case common.KindStorage:
		return dev.CreateBuffer(gpu.BufferDescriptor{
			Label: slot.Key,
			Size:  common.AlignUp(size, common.Coalesce(caps.BufferAlignment, 4)),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
		})
	default:
		return nil, fmt.Errorf("no handle for %s %q", slot.Kind, slot.Key)
	}
}
