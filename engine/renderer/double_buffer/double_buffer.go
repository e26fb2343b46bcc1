// Package double_buffer emulates persistent read-write storage on devices without storage buffers. Every storage key
// is backed by two RGBA32F textures with a framebuffer each; a dispatch reads one side and renders into the other.
package double_buffer

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/gogpu/gputypes"
)

// texelBytes is the size of one RGBA32F texel.
const texelBytes = 16

// Side is one half of a double buffer.
type Side struct {
	Texture     gpu.Texture
	Framebuffer gpu.Framebuffer
}

// DoubleBuffer is the ping/pong pair of one storage key.
type DoubleBuffer struct {
	key           string
	ping          Side
	pong          Side
	currentIsPing bool

	// components and stride describe the shadow layout of one element.
	components int
	stride     int
	width      uint32
	height     uint32
	released   bool
}

// Key returns the storage key.
func (d *DoubleBuffer) Key() string { return d.key }

// CurrentIsPing reports whether ping is the side read by the next dispatch.
func (d *DoubleBuffer) CurrentIsPing() bool { return d.currentIsPing }

// Current returns the side read by the next dispatch.
func (d *DoubleBuffer) Current() Side {
	if d.currentIsPing {
		return d.ping
	}
	return d.pong
}

// Target returns the side written by the next dispatch.
func (d *DoubleBuffer) Target() Side {
	if d.currentIsPing {
		return d.pong
	}
	return d.ping
}

// Ping returns the ping side.
func (d *DoubleBuffer) Ping() Side { return d.ping }

// Pong returns the pong side.
func (d *DoubleBuffer) Pong() Side { return d.pong }

// Latest returns the texture written by the most recent dispatch. Before the first dispatch it is ping, which holds
// the seed like pong does.
func (d *DoubleBuffer) Latest() gpu.Texture {
	return d.Current().Texture
}

// Size returns the texture extent of both sides.
func (d *DoubleBuffer) Size() (uint32, uint32) { return d.width, d.height }

func (d *DoubleBuffer) flip() {
	d.currentIsPing = !d.currentIsPing
}

// Upload writes shadow data into both sides so they hold identical contents. Element i lands in texel i, row major.
func (d *DoubleBuffer) Upload(dev gpu.Device, data []byte) error {
	if d.released {
		return fmt.Errorf("storage %q: %w", d.key, gpu.ErrReleased)
	}
	texels, err := d.texels(data)
	if err != nil {
		return err
	}
	if err := dev.WriteTexture(d.ping.Texture, texels); err != nil {
		return fmt.Errorf("failed to seed ping side of %q: %w", d.key, err)
	}
	if err := dev.WriteTexture(d.pong.Texture, texels); err != nil {
		return fmt.Errorf("failed to seed pong side of %q: %w", d.key, err)
	}
	return nil
}

func (d *DoubleBuffer) texels(data []byte) ([]byte, error) {
	elemBytes := d.stride * 4
	total := int(d.width) * int(d.height)
	if elemBytes == 0 || len(data)/elemBytes > total {
		return nil, fmt.Errorf("storage %q: %d elements do not fit a %dx%d texture", d.key, len(data)/max(elemBytes, 1), d.width, d.height)
	}
	out := make([]byte, total*texelBytes)
	for i := 0; i < len(data)/elemBytes; i++ {
		for c := 0; c < d.components && c < 4; c++ {
			v := binary.LittleEndian.Uint32(data[i*elemBytes+c*4:])
			binary.LittleEndian.PutUint32(out[i*texelBytes+c*4:], v)
		}
	}
	return out, nil
}

// Release releases both sides once.
func (d *DoubleBuffer) Release() {
	if d.released {
		return
	}
	d.released = true
	for _, s := range []Side{d.ping, d.pong} {
		if s.Framebuffer != nil {
			s.Framebuffer.Release()
		}
		if s.Texture != nil {
			s.Texture.Release()
		}
	}
}

func newDoubleBuffer(dev gpu.Device, key string, width, height uint32, components, stride int) (*DoubleBuffer, error) {
	d := &DoubleBuffer{key: key, currentIsPing: true, components: components, stride: stride, width: width, height: height}
	for i, side := range []*Side{&d.ping, &d.pong} {
		label := fmt.Sprintf("%s.%s", key, []string{"ping", "pong"}[i])
		tex, err := dev.CreateTexture(gpu.TextureDescriptor{
			Label:   label,
			Width:   width,
			Height:  height,
			Format:  gputypes.TextureFormatRGBA32Float,
			Usage:   gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
			Nearest: true,
		})
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("failed to create %s texture: %w", label, err)
		}
		side.Texture = tex
		fb, err := dev.CreateFramebuffer(label, tex)
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("failed to create %s framebuffer: %w", label, err)
		}
		side.Framebuffer = fb
	}
	return d, nil
}
