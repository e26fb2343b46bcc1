package common

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomain(t *testing.T) {
	d, err := NewDomain(1024)
	require.NoError(t, err)
	assert.Equal(t, Domain{X: 1024, Y: 1, Z: 1, Dims: 1}, d)
	assert.Equal(t, 1024, d.Count())

	d, err = NewDomain(64, 16, 4)
	require.NoError(t, err)
	assert.Equal(t, 4096, d.Count())
	assert.Equal(t, "[64,16,4]", d.String())

	for _, bad := range [][]int{{}, {0}, {4, -1}, {1, 2, 3, 4}} {
		_, err := NewDomain(bad...)
		assert.ErrorIs(t, err, ErrMalformedDomain, "dims %v", bad)
	}
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(4, 256))
	assert.Equal(t, uint64(256), AlignUp(256, 256))
	assert.Equal(t, uint64(512), AlignUp(257, 256))
	assert.Equal(t, uint64(12), AlignUp(12, 4))
	assert.Equal(t, uint64(7), AlignUp(7, 0))
}

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 2, CeilDiv(13, 12))
	assert.Equal(t, 1, CeilDiv(12, 12))
	assert.Equal(t, 0, CeilDiv(0, 6))
	assert.Equal(t, 0, CeilDiv(5, 0))
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2, 3.25}
	b := Float32Bytes(in)
	require.Len(t, b, 16)
	assert.Equal(t, in, BytesFloat32(b))
}

func TestTextureFromImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{R: 255, A: 255})

	tex := TextureFromImage(img)
	assert.Equal(t, uint32(3), tex.Width)
	assert.Equal(t, uint32(2), tex.Height)
	require.NoError(t, tex.Validate())
	assert.Equal(t, byte(255), tex.Pixels[(1*3+1)*4])
}

func TestTextureValidate(t *testing.T) {
	assert.Error(t, TextureStagingData{}.Validate())
	assert.Error(t, TextureStagingData{Pixels: make([]byte, 8), Width: 2, Height: 2}.Validate())
	assert.NoError(t, TextureStagingData{Pixels: make([]byte, 16), Width: 2, Height: 2}.Validate())
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 4))
	assert.Equal(t, "", Coalesce("", ""))
}
