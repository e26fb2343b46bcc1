package shader

import "github.com/Carmen-Shannon/oxy-bind/engine/gpu"

// FullscreenVertexWGSL draws a triangle covering the viewport from vertex_index alone and passes uv in [0, 1].
const FullscreenVertexWGSL = `struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    let x = f32((index << 1u) & 2u);
    let y = f32(index & 2u);
    var output: VertexOutput;
    output.position = vec4<f32>(x * 2.0 - 1.0, 1.0 - y * 2.0, 0.0, 1.0);
    output.uv = vec2<f32>(x, y);
    return output;
}
`

// FullscreenVertexGLSL is the GLSL 330 counterpart of FullscreenVertexWGSL. It is also the vertex stage of every
// emulated compute pipeline, where uv addresses the storage texel being written.
const FullscreenVertexGLSL = `#version 330 core
out vec2 vUV;
void main() {
    float x = float((gl_VertexID << 1) & 2);
    float y = float(gl_VertexID & 2);
    vUV = vec2(x, y);
    gl_Position = vec4(x * 2.0 - 1.0, y * 2.0 - 1.0, 0.0, 1.0);
}
`

// FullscreenVertex returns the full-screen triangle vertex source for a device language.
func FullscreenVertex(target gpu.Language) string {
	if target == gpu.LanguageGLSL {
		return FullscreenVertexGLSL
	}
	return FullscreenVertexWGSL
}
