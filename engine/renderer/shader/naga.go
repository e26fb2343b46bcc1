package shader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/glsl"
	"github.com/gogpu/naga/ir"
	"go.uber.org/multierr"
)

var (
	glslMain    = regexp.MustCompile(`\bvoid\s+main\s*\(`)
	glslVersion = regexp.MustCompile(`(?m)^\s*#version\b`)
	// uniformBlock matches the blocks naga emits for bound uniforms: "uniform Block { T _group_G_binding_B_stage; };".
	uniformBlock = regexp.MustCompile(`uniform\s+(\w+)\s*\{\s*\w+\s+_group_(\d+)_binding_(\d+)_\w+(?:\[\d*\])?;\s*\};`)
)

// DetectLanguage guesses the language of a shader source. GLSL sources carry a #version line or a void main.
func DetectLanguage(source string) gpu.Language {
	if glslVersion.MatchString(source) || glslMain.MatchString(source) {
		return gpu.LanguageGLSL
	}
	return gpu.LanguageWGSL
}

func withVersion(source string) string {
	if glslVersion.MatchString(source) {
		return source
	}
	return "#version 330 core\n" + source
}

// parseWGSL parses, lowers and validates WGSL, collecting every validation error.
func parseWGSL(source string) (*ir.Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	problems, err := naga.Validate(module)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	var errs error
	for _, p := range problems {
		errs = multierr.Append(errs, p)
	}
	if errs != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, errs)
	}
	return module, nil
}

func irStage(stage gpu.Stage) ir.ShaderStage {
	switch stage {
	case gpu.StageVertex:
		return ir.StageVertex
	case gpu.StageCompute:
		return ir.StageCompute
	default:
		return ir.StageFragment
	}
}

func findEntryPoint(module *ir.Module, stage gpu.Stage) (ir.EntryPoint, error) {
	want := irStage(stage)
	for _, ep := range module.EntryPoints {
		if ep.Stage == want {
			return ep, nil
		}
	}
	return ir.EntryPoint{}, fmt.Errorf("%w: %s", ErrNoEntryPoint, stage)
}

func workgroupSize(declared [3]uint32) [3]uint32 {
	if declared == [3]uint32{} {
		return [3]uint32{64, 1, 1}
	}
	for i := range declared {
		if declared[i] == 0 {
			declared[i] = 1
		}
	}
	return declared
}

// translate generates GLSL 330 for one entry point and maps the generated resource names back to WGSL bindings.
func translate(module *ir.Module, entryPoint string, stage gpu.Stage) (string, map[string]Binding, error) {
	opts := glsl.Options{
		LangVersion: glsl.Version330,
		EntryPoint:  entryPoint,
	}
	if stage == gpu.StageVertex {
		opts.WriterFlags = glsl.WriterFlagAdjustCoordinateSpace
	}
	source, info, err := glsl.Compile(module, opts)
	if err != nil {
		return "", nil, fmt.Errorf("%w: glsl: %w", ErrCompile, err)
	}

	aliases := make(map[string]Binding)
	for name, m := range info.TextureMappings {
		aliases[name] = Binding{Group: m.TextureBinding.Group, Binding: m.TextureBinding.Binding}
	}
	for _, match := range uniformBlock.FindAllStringSubmatch(source, -1) {
		g, _ := strconv.ParseUint(match[2], 10, 32)
		b, _ := strconv.ParseUint(match[3], 10, 32)
		aliases[match[1]] = Binding{Group: uint32(g), Binding: uint32(b)}
	}
	return strings.TrimSpace(source) + "\n", aliases, nil
}
