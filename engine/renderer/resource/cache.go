// Package resource holds the per-pipeline arena of resource slots: a CPU shadow and a GPU handle per key, created
// once and written thereafter.
package resource

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// ErrUnknownKey is returned by Write for a key that was never created.
	ErrUnknownKey = errors.New("unknown resource key")
	// ErrShapeMismatch is returned by Write when data is longer than the slot; that is a shape change.
	ErrShapeMismatch = errors.New("data does not fit the resource shape")
	// ErrMalformedShape is returned for shapes with zero or out-of-range dimensions.
	ErrMalformedShape = errors.New("malformed resource shape")
)

// Change describes what GetOrCreate did to a slot.
type Change int

const (
	// Unchanged means the slot existed with the same shape.
	Unchanged Change = iota
	// Created means the key is new.
	Created
	// Reshaped means the key existed with another shape and its handle was recreated.
	Reshaped
)

func (c Change) String() string {
	switch c {
	case Created:
		return "created"
	case Reshaped:
		return "reshaped"
	default:
		return "unchanged"
	}
}

// cache is the unexported implementation of Cache.
type cache struct {
	device    gpu.Device
	logger    *zap.Logger
	factories map[common.ResourceKind]HandleFactory

	slots   map[string]*Slot
	order   []string
	pending []string
}

// Cache memoizes one GPU handle and CPU shadow per resource key.
//
// Usage pattern:
//  1. The owner calls GetOrCreate with the key's current shape; a Created or Reshaped change means the pipeline
//     layout must be rebuilt
//  2. The owner calls Write with the new value; repeated writes to one key before a flush are coalesced
//  3. The frame driver calls Flush once per frame, before any pass opens
//  4. Release destroys every handle on teardown
type Cache interface {
	// GetOrCreate returns the slot for key, creating it or recreating its handle when shape differs.
	//
	// Parameters:
	//   - key: the resource name
	//   - kind: the resource kind
	//   - shape: the shape of the value about to be written
	//
	// Returns:
	//   - *Slot: the slot, owned by the cache
	//   - Change: whether the slot was created, reshaped or left alone
	//   - error: ErrMalformedShape or a handle creation error; the previous slot is kept intact on error
	GetOrCreate(key string, kind common.ResourceKind, shape Shape) (*Slot, Change, error)

	// Write copies data into the shadow of key and schedules an upload. Shorter data updates a prefix.
	//
	// Parameters:
	//   - key: the resource name
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: ErrUnknownKey or ErrShapeMismatch
	Write(key string, data []byte) error

	// Flush uploads every pending write in first-enqueue order and clears the queue.
	// All uploads are attempted; failures are combined.
	Flush() error

	// Pending returns the number of keys waiting for upload.
	Pending() int

	// Slot returns the slot of key.
	Slot(key string) (*Slot, bool)

	// Slots returns every slot in insertion order.
	Slots() []*Slot

	// Remove releases and forgets key. It reports whether the key existed.
	Remove(key string) bool

	// Release releases every handle exactly once and empties the cache.
	Release()
}

var _ Cache = &cache{}

// NewCache creates a Cache allocating through device.
//
// Parameters:
//   - device: the device owning every handle
//   - opts: builder options, see cache_builder.go
//
// Returns:
//   - Cache: an empty cache
func NewCache(device gpu.Device, opts ...CacheBuilderOption) Cache {
	c := &cache{
		device:    device,
		logger:    zap.NewNop(),
		factories: make(map[common.ResourceKind]HandleFactory),
		slots:     make(map[string]*Slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *cache) factory(kind common.ResourceKind) HandleFactory {
	if f, ok := c.factories[kind]; ok {
		return f
	}
	return DefaultFactory
}

func (c *cache) GetOrCreate(key string, kind common.ResourceKind, shape Shape) (*Slot, Change, error) {
	if err := shape.Validate(kind); err != nil {
		return nil, Unchanged, fmt.Errorf("%q: %w", key, err)
	}

	existing, ok := c.slots[key]
	if ok && existing.Kind == kind && existing.Shape == shape {
		return existing, Unchanged, nil
	}

	next := &Slot{Key: key, Kind: kind, Shape: shape, Shadow: make([]byte, shape.ByteSize(kind))}
	handle, err := c.factory(kind)(c.device, next)
	if err != nil {
		return nil, Unchanged, fmt.Errorf("failed to create %s %q (%s): %w", kind, key, shape, err)
	}

	if !ok {
		next.Handle = handle
		c.slots[key] = next
		c.order = append(c.order, key)
		c.logger.Debug("created resource", zap.String("key", key), zap.Stringer("kind", kind), zap.Stringer("shape", shape))
		return next, Created, nil
	}

	c.logger.Debug("reshaped resource", zap.String("key", key), zap.Stringer("from", existing.Shape), zap.Stringer("to", shape))
	if existing.Handle != nil {
		existing.Handle.Release()
	}
	existing.Kind = kind
	existing.Shape = shape
	existing.Shadow = next.Shadow
	existing.Handle = handle
	existing.Generation++
	existing.dirty = false
	c.dropPending(key)
	return existing, Reshaped, nil
}

func (c *cache) Write(key string, data []byte) error {
	slot, ok := c.slots[key]
	if !ok {
		return fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}
	if len(data) > len(slot.Shadow) {
		return fmt.Errorf("%q: %d bytes into %d: %w", key, len(data), len(slot.Shadow), ErrShapeMismatch)
	}
	copy(slot.Shadow, data)
	if !slot.dirty {
		slot.dirty = true
		c.pending = append(c.pending, key)
	}
	return nil
}

func (c *cache) Flush() error {
	var errs error
	for _, key := range c.pending {
		slot, ok := c.slots[key]
		if !ok || !slot.dirty {
			continue
		}
		slot.dirty = false
		errs = multierr.Append(errs, c.upload(slot))
	}
	c.pending = c.pending[:0]
	return errs
}

func (c *cache) upload(slot *Slot) error {
	var err error
	switch h := slot.Handle.(type) {
	case Uploader:
		err = h.Upload(c.device, slot.Shadow)
	case gpu.Buffer:
		err = c.device.WriteBuffer(h, 0, slot.Shadow)
	case gpu.Texture:
		err = c.device.WriteTexture(h, slot.Shadow)
	default:
		err = fmt.Errorf("unsupported handle %T", slot.Handle)
	}
	if err != nil {
		return fmt.Errorf("failed to upload %s %q: %w", slot.Kind, slot.Key, err)
	}
	return nil
}

func (c *cache) Pending() int {
	return len(c.pending)
}

func (c *cache) Slot(key string) (*Slot, bool) {
	s, ok := c.slots[key]
	return s, ok
}

func (c *cache) Slots() []*Slot {
	out := make([]*Slot, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.slots[key])
	}
	return out
}

func (c *cache) Remove(key string) bool {
	slot, ok := c.slots[key]
	if !ok {
		return false
	}
	if slot.Handle != nil {
		slot.Handle.Release()
		slot.Handle = nil
	}
	delete(c.slots, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.dropPending(key)
	return true
}

func (c *cache) Release() {
	for _, key := range c.order {
		slot := c.slots[key]
		if slot.Handle != nil {
			slot.Handle.Release()
			slot.Handle = nil
		}
	}
	c.slots = make(map[string]*Slot)
	c.order = nil
	c.pending = nil
}

func (c *cache) dropPending(key string) {
	for i, k := range c.pending {
		if k == key {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}
