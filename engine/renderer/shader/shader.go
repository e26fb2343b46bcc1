package shader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
)

// ShaderType identifies the pipeline role a shader source plays.
type ShaderType int

const (
	// ShaderTypeCompute is the simulation stage. On the raster backend it is a fragment shader rendering into the
	// storage double buffers.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex stage of the render pipeline.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment stage of the render pipeline.
	ShaderTypeFragment
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptySource is returned for blank shader sources.
	ErrEmptySource = errors.New("empty shader source")
	// ErrLanguageMismatch is returned when GLSL is given to the explicit backend.
	ErrLanguageMismatch = errors.New("shader language not supported by backend")
	// ErrNoEntryPoint is returned when a WGSL source has no entry point for the requested stage.
	ErrNoEntryPoint = errors.New("no entry point for stage")
	// ErrCompile wraps parse, lowering, validation and translation failures.
	ErrCompile = errors.New("shader compilation failed")
)

// Binding is a WGSL (group, binding) pair.
type Binding = gpu.Alias

// shader is the implementation of the Shader interface.
// It holds the source prepared for one device language plus the reflection the pipeline needs.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	language      gpu.Language
	entryPoint    string
	workGroupSize [3]uint32
	translated    bool
	aliases       map[string]Binding
}

// Shader is a shader source prepared for a device: validated, reflected and, for WGSL sources targeting the raster
// backend, translated to GLSL 330.
type Shader interface {
	// Key retrieves the identifier of this shader, used as the module label.
	//
	// Returns:
	//   - string: the shader's key
	Key() string

	// Source retrieves the source code in the device language.
	//
	// Returns:
	//   - string: WGSL for the explicit backend, GLSL 330 for the raster backend
	Source() string

	// Language returns the language of Source.
	Language() gpu.Language

	// EntryPoint returns the entry point name ("main" for GLSL).
	EntryPoint() string

	// WorkgroupSize returns the compute workgroup size. It is [0, 0, 0] for render shaders and defaults to
	// [64, 1, 1] for compute shaders that do not declare one.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Invocations returns the product of WorkgroupSize.
	Invocations() uint32

	// ShaderType returns the role of the shader.
	ShaderType() ShaderType

	// Stage returns the device stage that executes the shader.
	Stage() gpu.Stage

	// Translated reports whether Source was generated from WGSL.
	Translated() bool

	// Aliases maps identifiers in translated GLSL to the WGSL (group, binding) they came from.
	// It is empty for sources used as written.
	Aliases() map[string]Binding

	// Module returns the descriptor the device compiles.
	//
	// Returns:
	//   - gpu.ShaderModuleDescriptor: the module descriptor
	Module() gpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader prepares source for a device consuming target.
//
// Parameters:
//   - key: the shader identifier
//   - shaderType: the role of the source
//   - source: WGSL or GLSL source
//   - target: the language the device consumes
//
// Returns:
//   - Shader: the prepared shader
//   - error: ErrEmptySource, ErrLanguageMismatch, ErrNoEntryPoint or an ErrCompile chain listing every problem
func NewShader(key string, shaderType ShaderType, source string, target gpu.Language) (Shader, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%s shader %q: %w", shaderType, key, ErrEmptySource)
	}
	s := &shader{
		key:        key,
		shaderType: shaderType,
		language:   target,
		aliases:    make(map[string]Binding),
	}

	if DetectLanguage(source) == gpu.LanguageGLSL {
		if target != gpu.LanguageGLSL {
			return nil, fmt.Errorf("%s shader %q is GLSL: %w", shaderType, key, ErrLanguageMismatch)
		}
		s.source = withVersion(source)
		s.entryPoint = "main"
		if shaderType == ShaderTypeCompute {
			s.workGroupSize = [3]uint32{1, 1, 1}
		}
		return s, nil
	}

	module, err := parseWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("%s shader %q: %w", shaderType, key, err)
	}
	ep, err := findEntryPoint(module, s.Stage())
	if err != nil {
		return nil, fmt.Errorf("%s shader %q: %w", shaderType, key, err)
	}
	s.entryPoint = ep.Name
	if shaderType == ShaderTypeCompute {
		s.workGroupSize = workgroupSize(ep.Workgroup)
	}

	if target == gpu.LanguageWGSL {
		s.source = source
		return s, nil
	}

	glslSource, aliases, err := translate(module, ep.Name, s.Stage())
	if err != nil {
		return nil, fmt.Errorf("%s shader %q: %w", shaderType, key, err)
	}
	s.source = glslSource
	s.translated = true
	s.aliases = aliases
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) Language() gpu.Language {
	return s.language
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) Invocations() uint32 {
	return s.workGroupSize[0] * s.workGroupSize[1] * s.workGroupSize[2]
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

// Stage maps the role to the executing stage. Emulated compute runs as a fragment shader.
func (s *shader) Stage() gpu.Stage {
	switch s.shaderType {
	case ShaderTypeVertex:
		return gpu.StageVertex
	case ShaderTypeCompute:
		if s.language == gpu.LanguageGLSL {
			return gpu.StageFragment
		}
		return gpu.StageCompute
	default:
		return gpu.StageFragment
	}
}

func (s *shader) Translated() bool {
	return s.translated
}

func (s *shader) Aliases() map[string]Binding {
	return s.aliases
}

func (s *shader) Module() gpu.ShaderModuleDescriptor {
	return gpu.ShaderModuleDescriptor{
		Label:      s.key,
		Stage:      s.Stage(),
		Source:     s.source,
		EntryPoint: s.entryPoint,
		Aliases:    s.aliases,
	}
}
