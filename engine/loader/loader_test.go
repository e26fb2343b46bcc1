package loader

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	return img
}

func writeImages(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	var pngData, bmpData bytes.Buffer
	require.NoError(t, png.Encode(&pngData, testImage(4, 2)))
	require.NoError(t, bmp.Encode(&bmpData, testImage(3, 3)))

	pngPath := filepath.Join(dir, "a.png")
	bmpPath := filepath.Join(dir, "b.bmp")
	require.NoError(t, os.WriteFile(pngPath, pngData.Bytes(), 0o600))
	require.NoError(t, os.WriteFile(bmpPath, bmpData.Bytes(), 0o600))
	return pngPath, bmpPath
}

func TestLoadAll(t *testing.T) {
	pngPath, bmpPath := writeImages(t)
	l := NewLoader(WithWorkers(2))
	defer l.Close()

	textures, err := l.LoadAll(pngPath, bmpPath)
	require.NoError(t, err)
	require.Len(t, textures, 2)
	assert.Equal(t, uint32(4), textures[0].Width)
	assert.Equal(t, uint32(2), textures[0].Height)
	assert.Equal(t, uint32(3), textures[1].Width)
	assert.Equal(t, []byte{10, 20, 30, 255}, textures[1].Pixels[:4])
	assert.NoError(t, textures[1].Validate())

	cached, ok := l.Get(pngPath)
	require.True(t, ok)
	assert.Equal(t, textures[0], cached)
	assert.Len(t, l.Textures(), 2)
}

func TestLoadAllCombinesErrors(t *testing.T) {
	pngPath, _ := writeImages(t)
	dir := t.TempDir()
	l := NewLoader()
	defer l.Close()

	textures, err := l.LoadAll(pngPath, filepath.Join(dir, "missing.png"), filepath.Join(dir, "gone.webp"))
	require.Error(t, err)
	assert.Nil(t, textures)
	assert.Contains(t, err.Error(), "missing.png")
	assert.Contains(t, err.Error(), "gone.webp")
}

func TestLoadReader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(2, 2)))
	l := NewLoader(WithTexture("preset", common.TextureStagingData{Pixels: make([]byte, 4), Width: 1, Height: 1}))
	defer l.Close()

	tex, err := l.LoadReader("memory", &buf)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), tex.Width)

	_, ok := l.Get("preset")
	assert.True(t, ok)
	_, err = l.LoadReader("empty", bytes.NewReader(nil))
	assert.Error(t, err)
}
