package renderer

import (
	"fmt"
	"strings"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendExplicit selects the WebGPU device: native storage buffers and compute pipelines.
	BackendExplicit RendererBackendType = iota

	// BackendRaster selects the OpenGL 3.3 core device. Storage resources are emulated with double-buffered
	// float textures and compute sources run as fragment passes.
	BackendRaster
)

func (b RendererBackendType) String() string {
	switch b {
	case BackendExplicit:
		return "explicit"
	case BackendRaster:
		return "raster"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend converts a backend name to a RendererBackendType. "webgpu" and "wgpu" name the explicit backend,
// "gl" and "opengl" the raster one.
func ParseBackend(name string) (RendererBackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "explicit", "webgpu", "wgpu":
		return BackendExplicit, nil
	case "raster", "gl", "opengl":
		return BackendRaster, nil
	default:
		return BackendExplicit, fmt.Errorf("unknown backend %q", name)
	}
}
