package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solidFragmentWGSL = `
@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.0, 0.0, 1.0);
}
`

const computeWGSL = `
@compute @workgroup_size(8, 8, 1)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

const computeNoSizeWGSL = `
@compute @workgroup_size(64)
fn cs_main(@builtin(global_invocation_id) id: vec3<u32>) {
}
`

const uniformFragmentWGSL = `
struct Params {
    time: f32,
};

@group(0) @binding(0) var<uniform> params: Params;

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(params.time, 0.0, 0.0, 1.0);
}
`

const plainGLSL = `
uniform float iTime;
out vec4 fragColor;
void main() {
    fragColor = vec4(iTime, 0.0, 0.0, 1.0);
}
`

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, gpu.LanguageWGSL, DetectLanguage(solidFragmentWGSL))
	assert.Equal(t, gpu.LanguageGLSL, DetectLanguage(plainGLSL))
	assert.Equal(t, gpu.LanguageGLSL, DetectLanguage("#version 330 core\nvoid  main (){}"))
}

func TestWGSLForExplicitBackend(t *testing.T) {
	s, err := NewShader("fs", ShaderTypeFragment, solidFragmentWGSL, gpu.LanguageWGSL)
	require.NoError(t, err)
	assert.Equal(t, "fs_main", s.EntryPoint())
	assert.Equal(t, gpu.StageFragment, s.Stage())
	assert.False(t, s.Translated())
	assert.Equal(t, solidFragmentWGSL, s.Source())
	assert.Equal(t, [3]uint32{0, 0, 0}, s.WorkgroupSize())

	mod := s.Module()
	assert.Equal(t, "fs", mod.Label)
	assert.Equal(t, "fs_main", mod.EntryPoint)
}

func TestWorkgroupReflection(t *testing.T) {
	s, err := NewShader("cs", ShaderTypeCompute, computeWGSL, gpu.LanguageWGSL)
	require.NoError(t, err)
	assert.Equal(t, gpu.StageCompute, s.Stage())
	assert.Equal(t, [3]uint32{8, 8, 1}, s.WorkgroupSize())
	assert.Equal(t, uint32(64), s.Invocations())

	s, err = NewShader("cs", ShaderTypeCompute, computeNoSizeWGSL, gpu.LanguageWGSL)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), s.Invocations())
}

func TestDefaultWorkgroupSize(t *testing.T) {
	assert.Equal(t, [3]uint32{64, 1, 1}, workgroupSize([3]uint32{}))
	assert.Equal(t, [3]uint32{32, 1, 1}, workgroupSize([3]uint32{32, 0, 0}))
}

func TestGLSLPassthrough(t *testing.T) {
	s, err := NewShader("fs", ShaderTypeFragment, plainGLSL, gpu.LanguageGLSL)
	require.NoError(t, err)
	assert.Equal(t, "main", s.EntryPoint())
	assert.Contains(t, s.Source(), "#version 330 core\n")
	assert.False(t, s.Translated())
	assert.Empty(t, s.Aliases())
}

func TestEmulatedComputeRunsAsFragment(t *testing.T) {
	s, err := NewShader("cs", ShaderTypeCompute, plainGLSL, gpu.LanguageGLSL)
	require.NoError(t, err)
	assert.Equal(t, gpu.StageFragment, s.Stage())
}

func TestGLSLRejectedByExplicitBackend(t *testing.T) {
	_, err := NewShader("fs", ShaderTypeFragment, plainGLSL, gpu.LanguageWGSL)
	assert.ErrorIs(t, err, ErrLanguageMismatch)
}

func TestWGSLTranslatedForRasterBackend(t *testing.T) {
	s, err := NewShader("fs", ShaderTypeFragment, uniformFragmentWGSL, gpu.LanguageGLSL)
	require.NoError(t, err)
	assert.True(t, s.Translated())
	assert.Contains(t, s.Source(), "#version 330 core")
	assert.Equal(t, gpu.LanguageGLSL, s.Language())

	found := false
	for _, b := range s.Aliases() {
		if b == (Binding{Group: 0, Binding: 0}) {
			found = true
		}
	}
	assert.True(t, found, "uniform block alias for @group(0) @binding(0), got %v", s.Aliases())
}

func TestCompileErrors(t *testing.T) {
	_, err := NewShader("bad", ShaderTypeFragment, "@fragment fn fs_main( -> {", gpu.LanguageWGSL)
	assert.ErrorIs(t, err, ErrCompile)

	_, err = NewShader("fs", ShaderTypeVertex, solidFragmentWGSL, gpu.LanguageWGSL)
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	_, err = NewShader("empty", ShaderTypeVertex, "  \n", gpu.LanguageWGSL)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestCompilerCaches(t *testing.T) {
	c := NewCompiler(gpu.LanguageWGSL, WithCacheSize(2))
	a, err := c.Compile("fs", ShaderTypeFragment, solidFragmentWGSL)
	require.NoError(t, err)
	b, err := c.Compile("fs-again", ShaderTypeFragment, solidFragmentWGSL)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, c.Len())

	_, err = c.Compile("bad", ShaderTypeFragment, "fn (")
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len(), "failures are not cached")

	_, err = c.Compile("cs", ShaderTypeCompute, computeWGSL)
	require.NoError(t, err)
	_, err = c.Compile("cs2", ShaderTypeCompute, computeNoSizeWGSL)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len(), "oldest entry evicted")

	c.Purge()
	assert.Equal(t, 0, c.Len())
}

func TestFullscreenVertex(t *testing.T) {
	s, err := NewShader("fullscreen", ShaderTypeVertex, FullscreenVertex(gpu.LanguageWGSL), gpu.LanguageWGSL)
	require.NoError(t, err)
	assert.Equal(t, "vs_main", s.EntryPoint())

	s, err = NewShader("fullscreen", ShaderTypeVertex, FullscreenVertex(gpu.LanguageGLSL), gpu.LanguageGLSL)
	require.NoError(t, err)
	assert.Equal(t, FullscreenVertexGLSL, s.Source())
}
