package double_buffer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/renderer/resource"
	"go.uber.org/zap"
)

// FullscreenVertexCount is the vertex count of the full-screen triangle drawn by every dispatch.
const FullscreenVertexCount = 3

// ErrNoBuffers is returned by Dispatch when no storage key exists yet.
var ErrNoBuffers = errors.New("no storage double buffers")

// BindGroupSource returns the bind groups for a dispatch, indexed by group. readPing selects the variant whose
// storage textures read the ping sides.
type BindGroupSource func(readPing bool) []gpu.BindGroup

// emulator is the unexported implementation of Emulator.
type emulator struct {
	device gpu.Device
	logger *zap.Logger
	warn   func(Warning)
	domain common.Domain

	buffers map[string]*DoubleBuffer
	order   []string
	// currentIsPing is shared by every buffer; new buffers join at the current parity since both sides hold the seed.
	currentIsPing bool
	// targets caches the multi-attachment framebuffers writing every ping (index 0) or pong (index 1) side.
	targets [2]gpu.Framebuffer
}

// Emulator owns the double buffers of one pipeline and cycles them.
//
// Usage pattern:
//  1. The owner installs Factory as the storage handle factory of its resource cache
//  2. Storage writes reach DoubleBuffer.Upload through the cache flush and seed both sides
//  3. The frame driver calls Dispatch once per frame with the emulated compute pipeline
//  4. Render bind groups read Latest (the current side after the flip)
type Emulator interface {
	// Factory returns the resource.HandleFactory creating a DoubleBuffer per storage slot.
	Factory() resource.HandleFactory

	// SetDomain sets the element domain used to size buffers created afterwards.
	SetDomain(d common.Domain)

	// Buffer returns the double buffer of key.
	Buffer(key string) (*DoubleBuffer, bool)

	// Buffers returns every live double buffer in creation order.
	Buffers() []*DoubleBuffer

	// CurrentIsPing reports which side every buffer reads on the next dispatch.
	CurrentIsPing() bool

	// Dispatch renders the emulated compute pass into the non-current sides and flips every buffer.
	//
	// Parameters:
	//   - pipeline: the emulated compute render pipeline
	//   - groups: the bind group variants
	//
	// Returns:
	//   - error: ErrNoBuffers or a pass error; the parity only flips when the pass ended successfully
	Dispatch(pipeline gpu.RenderPipeline, groups BindGroupSource) error

	// Release releases every double buffer and cached target exactly once.
	Release()
}

var _ Emulator = &emulator{}

// NewEmulator creates an Emulator allocating through device.
//
// Parameters:
//   - device: the raster device
//   - opts: builder options, see emulator_builder.go
//
// Returns:
//   - Emulator: an emulator without buffers
func NewEmulator(device gpu.Device, opts ...EmulatorBuilderOption) Emulator {
	e := &emulator{
		device:        device,
		logger:        zap.NewNop(),
		buffers:       make(map[string]*DoubleBuffer),
		currentIsPing: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *emulator) Factory() resource.HandleFactory {
	return e.create
}

func (e *emulator) SetDomain(d common.Domain) {
	e.domain = d
}

func (e *emulator) create(dev gpu.Device, slot *resource.Slot) (gpu.Handle, error) {
	if slot.Kind != common.KindStorage {
		return resource.DefaultFactory(dev, slot)
	}

	domain := e.domain
	if domain.IsZero() || domain.Count() < slot.Shape.Count {
		domain, _ = common.NewDomain(max(slot.Shape.Count, 1))
	}
	width, height, warnings := TextureSize(domain)
	for _, code := range warnings {
		w := Warning{Key: slot.Key, Code: code, Domain: domain, Width: width, Height: height}
		e.logger.Warn("storage sizing", zap.Error(w))
		if e.warn != nil {
			e.warn(w)
		}
	}

	db, err := newDoubleBuffer(dev, slot.Key, width, height, slot.Shape.Components, slot.Shape.Stride(common.KindStorage))
	if err != nil {
		return nil, err
	}
	if err := db.Upload(dev, slot.Shadow); err != nil {
		db.Release()
		return nil, err
	}
	db.currentIsPing = e.currentIsPing

	// on reshape the cache releases the previous handle after this returns; forget ignores it then
	if _, ok := e.buffers[slot.Key]; !ok {
		e.order = append(e.order, slot.Key)
	}
	e.buffers[slot.Key] = db
	e.invalidateTargets()
	e.logger.Debug("created double buffer", zap.String("key", slot.Key), zap.Uint32("width", width), zap.Uint32("height", height))
	return &trackedBuffer{DoubleBuffer: db, owner: e}, nil
}

func (e *emulator) Buffer(key string) (*DoubleBuffer, bool) {
	db, ok := e.buffers[key]
	return db, ok
}

func (e *emulator) Buffers() []*DoubleBuffer {
	out := make([]*DoubleBuffer, 0, len(e.order))
	for _, key := range e.order {
		out = append(out, e.buffers[key])
	}
	return out
}

func (e *emulator) CurrentIsPing() bool {
	return e.currentIsPing
}

func (e *emulator) Dispatch(pipeline gpu.RenderPipeline, groups BindGroupSource) error {
	if len(e.order) == 0 {
		return ErrNoBuffers
	}
	target, err := e.target()
	if err != nil {
		return err
	}

	pass, err := e.device.BeginRenderPass(gpu.RenderPassDescriptor{Label: "emulated compute", Target: target})
	if err != nil {
		return fmt.Errorf("failed to begin emulated compute pass: %w", err)
	}
	pass.SetPipeline(pipeline)
	if groups != nil {
		for i, bg := range groups(e.currentIsPing) {
			if bg != nil {
				pass.SetBindGroup(uint32(i), bg)
			}
		}
	}
	pass.Draw(FullscreenVertexCount, 1)
	if err := pass.End(); err != nil {
		return fmt.Errorf("failed to end emulated compute pass: %w", err)
	}

	e.currentIsPing = !e.currentIsPing
	for _, key := range e.order {
		e.buffers[key].flip()
	}
	return nil
}

// target returns the framebuffer writing the non-current side of every buffer.
func (e *emulator) target() (gpu.Framebuffer, error) {
	if len(e.order) == 1 {
		return e.buffers[e.order[0]].Target().Framebuffer, nil
	}
	idx := 0
	if e.currentIsPing {
		idx = 1
	}
	if e.targets[idx] != nil {
		return e.targets[idx], nil
	}
	attachments := make([]gpu.Texture, 0, len(e.order))
	for _, key := range e.order {
		attachments = append(attachments, e.buffers[key].Target().Texture)
	}
	fb, err := e.device.CreateFramebuffer(fmt.Sprintf("storage.%s", []string{"ping", "pong"}[idx]), attachments...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage target: %w", err)
	}
	e.targets[idx] = fb
	return fb, nil
}

func (e *emulator) invalidateTargets() {
	for i, fb := range e.targets {
		if fb != nil {
			fb.Release()
			e.targets[i] = nil
		}
	}
}

func (e *emulator) forget(db *DoubleBuffer) {
	if e.buffers[db.key] != db {
		return
	}
	delete(e.buffers, db.key)
	for i, k := range e.order {
		if k == db.key {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.invalidateTargets()
}

func (e *emulator) Release() {
	e.invalidateTargets()
	for _, key := range e.order {
		e.buffers[key].Release()
	}
	e.buffers = make(map[string]*DoubleBuffer)
	e.order = nil
}

// trackedBuffer is the handle given to the resource cache. Releasing it also removes the buffer from the emulator.
type trackedBuffer struct {
	*DoubleBuffer
	owner *emulator
}

func (t *trackedBuffer) Release() {
	t.owner.forget(t.DoubleBuffer)
	t.DoubleBuffer.Release()
}
