// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// TextureStagingData holds RGBA pixel data for a texture resource pending GPU upload.
// The Resource Cache sizes texture slots from Width and Height, so two staging values with the same
// dimensions share a GPU texture and only trigger an upload.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in RGBA format, with 4 bytes per pixel.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// errEmptyTexture is returned when staging data has no pixels or a zero dimension.
var errEmptyTexture = errors.New("texture staging data is empty")

// Validate checks that the pixel buffer matches the declared dimensions.
//
// Returns:
//   - error: nil if the staging data can be uploaded as-is
func (t TextureStagingData) Validate() error {
	if t.Width == 0 || t.Height == 0 || len(t.Pixels) == 0 {
		return errEmptyTexture
	}
	if want := int(t.Width) * int(t.Height) * 4; len(t.Pixels) != want {
		return fmt.Errorf("texture staging data has %d bytes, want %d for %dx%d RGBA", len(t.Pixels), want, t.Width, t.Height)
	}
	return nil
}

// LoadTexture decodes an image from raw bytes or from a path on disk into RGBA staging data.
// Supports PNG, JPEG, BMP and WebP.
// Reference: https://pkg.go.dev/image
//
// Parameters:
//   - data: encoded image bytes; when empty, path is read instead
//   - path: the file path used when data is empty
//
// Returns:
//   - TextureStagingData: the decoded RGBA pixels and dimensions
//   - error: error if decoding fails
func LoadTexture(data []byte, path string) (TextureStagingData, error) {
	var img image.Image
	var err error

	if len(data) > 0 {
		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode embedded image: %w", err)
		}
	} else if path != "" {
		file, fileErr := os.Open(path)
		if fileErr != nil {
			return TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", path, fileErr)
		}
		defer file.Close()

		img, _, err = image.Decode(file)
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode texture file %s: %w", path, err)
		}
	} else {
		return TextureStagingData{}, errEmptyTexture
	}

	return TextureFromImage(img), nil
}

// TextureFromImage converts any image.Image into RGBA staging data.
//
// Parameters:
//   - img: the source image
//
// Returns:
//   - TextureStagingData: the RGBA pixels and dimensions
func TextureFromImage(img image.Image) TextureStagingData {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(bounds.Dx()),
		Height: uint32(bounds.Dy()),
	}
}
