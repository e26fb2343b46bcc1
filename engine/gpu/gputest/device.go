// Package gputest provides a recording gpu.Device for tests. It allocates nothing on a real GPU, keeps the bytes
// written to buffers and textures, logs every command in order and counts releases per handle so tests can
// assert that each handle is released exactly once.
package gputest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/gogpu/gputypes"
)

// ErrInjected is returned by calls configured to fail through Device.FailOn.
var ErrInjected = errors.New("injected failure")

// Device is a recording gpu.Device.
type Device struct {
	mu       sync.Mutex
	caps     gpu.Capabilities
	nextID   int
	handles  map[int]*handle
	calls    []string
	failOn   map[string]bool
	inFrame  bool
	width    int
	height   int
	released bool
}

var _ gpu.Device = &Device{}

// NewDevice creates a recording device with the given capabilities and a 640x480 surface.
func NewDevice(caps gpu.Capabilities) *Device {
	return &Device{
		caps:    caps,
		handles: make(map[int]*handle),
		failOn:  make(map[string]bool),
		width:   640,
		height:  480,
	}
}

// Raster returns capabilities of an OpenGL 3.3 class device without native storage.
func Raster() gpu.Capabilities {
	return gpu.Capabilities{
		Backend:                          "raster",
		Language:                         gpu.LanguageGLSL,
		MaxBindGroups:                    8,
		StorageBuffers:                   false,
		MaxComputeWorkgroupsPerDimension: 0,
		UniformBufferAlignment:           256,
		BufferAlignment:                  4,
		SurfaceFormat:                    gputypes.TextureFormatRGBA8Unorm,
	}
}

// Explicit returns capabilities of a WebGPU class device.
func Explicit() gpu.Capabilities {
	return gpu.DefaultCapabilities()
}

// FailOn makes the named method (e.g. "CreateShaderModule") return ErrInjected until cleared with ok=false.
func (d *Device) FailOn(method string, fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failOn[method] = fail
}

// Calls returns a copy of the recorded command log.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// CallsWithPrefix returns recorded commands starting with prefix.
func (d *Device) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range d.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the command log.
func (d *Device) ResetCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Live returns the number of created handles not yet released.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, h := range d.handles {
		if h.releases == 0 {
			n++
		}
	}
	return n
}

// Created returns the number of handles created of the given kind ("buffer", "texture", ...). Empty kind counts all.
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, h := range d.handles {
		if kind == "" || h.kind == kind {
			n++
		}
	}
	return n
}

// OverReleased returns labels of handles released more than once.
func (d *Device) OverReleased() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for _, h := range d.handles {
		if h.releases > 1 {
			out = append(out, fmt.Sprintf("%s#%d(%s)", h.kind, h.id, h.label))
		}
	}
	return out
}

// Released reports whether the device itself was released.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

func (d *Device) record(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *Device) fail(method string) error {
	if d.released {
		return gpu.ErrReleased
	}
	if d.failOn[method] {
		return fmt.Errorf("%s: %w", method, ErrInjected)
	}
	return nil
}

func (d *Device) newHandle(kind, label string) *handle {
	d.nextID++
	h := &handle{dev: d, id: d.nextID, kind: kind, label: label}
	d.handles[h.id] = h
	return h
}

func (d *Device) Capabilities() gpu.Capabilities {
	return d.caps
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBuffer"); err != nil {
		return nil, err
	}
	b := &Buffer{handle: d.newHandle("buffer", desc.Label), Desc: desc, Data: make([]byte, desc.Size)}
	d.record("CreateBuffer %s %d", desc.Label, desc.Size)
	return b, nil
}

func (d *Device) WriteBuffer(buf gpu.Buffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("WriteBuffer"); err != nil {
		return err
	}
	b, ok := buf.(*Buffer)
	if !ok {
		return fmt.Errorf("foreign buffer %T", buf)
	}
	if offset+uint64(len(data)) > uint64(len(b.Data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %s of %d bytes", len(data), offset, b.label, len(b.Data))
	}
	copy(b.Data[offset:], data)
	b.Writes++
	d.record("WriteBuffer %s %d", b.label, len(data))
	return nil
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateTexture"); err != nil {
		return nil, err
	}
	t := &Texture{handle: d.newHandle("texture", desc.Label), Desc: desc}
	d.record("CreateTexture %s %dx%d", desc.Label, desc.Width, desc.Height)
	return t, nil
}

func (d *Device) WriteTexture(tex gpu.Texture, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("WriteTexture"); err != nil {
		return err
	}
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("foreign texture %T", tex)
	}
	t.Data = append(t.Data[:0], data...)
	t.Writes++
	d.record("WriteTexture %s %d", t.label, len(data))
	return nil
}

func (d *Device) CreateFramebuffer(label string, attachments ...gpu.Texture) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateFramebuffer"); err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, errors.New("framebuffer needs at least one attachment")
	}
	f := &Framebuffer{handle: d.newHandle("framebuffer", label), attachments: attachments}
	d.record("CreateFramebuffer %s %d", label, len(attachments))
	return f, nil
}

func (d *Device) CreateShaderModule(desc gpu.ShaderModuleDescriptor) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateShaderModule"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(desc.Source) == "" {
		return nil, fmt.Errorf("empty %s shader source", desc.Stage)
	}
	s := &ShaderModule{handle: d.newHandle("shader", desc.Label), Desc: desc}
	d.record("CreateShaderModule %s %s", desc.Label, desc.Stage)
	return s, nil
}

func (d *Device) CreateBindGroupLayout(desc gpu.BindGroupLayoutDescriptor) (gpu.BindGroupLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBindGroupLayout"); err != nil {
		return nil, err
	}
	if int(desc.Group) >= d.caps.MaxBindGroups {
		return nil, fmt.Errorf("group %d exceeds device limit %d", desc.Group, d.caps.MaxBindGroups)
	}
	l := &BindGroupLayout{handle: d.newHandle("layout", desc.Label), Desc: desc}
	d.record("CreateBindGroupLayout %s %d", desc.Label, desc.Group)
	return l, nil
}

func (d *Device) CreateBindGroup(desc gpu.BindGroupDescriptor) (gpu.BindGroup, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateBindGroup"); err != nil {
		return nil, err
	}
	g := &BindGroup{handle: d.newHandle("bindgroup", desc.Label), Desc: desc}
	d.record("CreateBindGroup %s %d", desc.Label, len(desc.Entries))
	return g, nil
}

func (d *Device) CreateRenderPipeline(desc gpu.RenderPipelineDescriptor) (gpu.RenderPipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateRenderPipeline"); err != nil {
		return nil, err
	}
	p := &RenderPipeline{handle: d.newHandle("renderpipeline", desc.Label), Desc: desc}
	d.record("CreateRenderPipeline %s", desc.Label)
	return p, nil
}

func (d *Device) CreateComputePipeline(desc gpu.ComputePipelineDescriptor) (gpu.ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("CreateComputePipeline"); err != nil {
		return nil, err
	}
	if !d.caps.StorageBuffers {
		return nil, errors.New("compute pipelines are not supported by this device")
	}
	p := &ComputePipeline{handle: d.newHandle("computepipeline", desc.Label), Desc: desc}
	d.record("CreateComputePipeline %s", desc.Label)
	return p, nil
}

func (d *Device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("BeginFrame"); err != nil {
		return err
	}
	d.inFrame = true
	d.record("BeginFrame")
	return nil
}

func (d *Device) BeginRenderPass(desc gpu.RenderPassDescriptor) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("BeginRenderPass"); err != nil {
		return nil, err
	}
	if !d.inFrame {
		return nil, gpu.ErrNoFrame
	}
	target := "surface"
	if desc.Target != nil {
		target = desc.Target.(*Framebuffer).label
	}
	d.record("BeginRenderPass %s", target)
	return &pass{dev: d, kind: "render"}, nil
}

func (d *Device) BeginComputePass(label string) (gpu.ComputePass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("BeginComputePass"); err != nil {
		return nil, err
	}
	if !d.inFrame {
		return nil, gpu.ErrNoFrame
	}
	d.record("BeginComputePass %s", label)
	return computePass{&pass{dev: d, kind: "compute"}}, nil
}

func (d *Device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("EndFrame"); err != nil {
		return err
	}
	if !d.inFrame {
		return gpu.ErrNoFrame
	}
	d.inFrame = false
	d.record("Submit")
	return nil
}

func (d *Device) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("Present")
}

func (d *Device) Resize(width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail("Resize"); err != nil {
		return err
	}
	d.width, d.height = width, height
	d.record("Resize %dx%d", width, height)
	return nil
}

func (d *Device) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width, d.height
}

func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.record("ReleaseDevice")
}
