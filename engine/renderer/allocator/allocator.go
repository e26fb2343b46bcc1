package allocator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"go.uber.org/zap"
)

const (
	// UniformBand is the number of uniform bindings packed into one group.
	UniformBand = 12
	// TextureBand is the number of texture keys packed into one group. Each key takes two bindings.
	TextureBand = 6
	// StorageBand is the number of storage bindings packed into one group.
	StorageBand = 12
	// DefaultMaxBindGroups is the WebGPU baseline group limit.
	DefaultMaxBindGroups = 4
	// DefaultMaxAttributes is the WebGPU baseline vertex attribute limit.
	DefaultMaxAttributes = 16
)

var (
	// ErrBindGroupLimit is returned when a key would open a group index at or above the device limit.
	ErrBindGroupLimit = errors.New("bind group limit exceeded")
	// ErrAttributeLimit is returned when more attribute locations are requested than the device supports.
	ErrAttributeLimit = errors.New("vertex attribute limit exceeded")
	// ErrKindMismatch is returned when a key is allocated again under a different kind.
	ErrKindMismatch = errors.New("key already allocated with a different kind")
)

// Address is the permanent slot address of a resource key. Group and Binding are meaningful for uniform, texture and
// storage kinds; Location for attributes.
type Address struct {
	Key      string
	Kind     common.ResourceKind
	Group    uint32
	Binding  uint32
	Location uint32
}

// SamplerBinding returns the sampler binding of a texture address.
func (a Address) SamplerBinding() uint32 { return a.Binding }

// ViewBinding returns the texture view binding of a texture address.
func (a Address) ViewBinding() uint32 { return a.Binding + 1 }

func (a Address) String() string {
	if a.Kind == common.KindAttribute {
		return fmt.Sprintf("%s %q @location(%d)", a.Kind, a.Key, a.Location)
	}
	return fmt.Sprintf("%s %q @group(%d) @binding(%d)", a.Kind, a.Key, a.Group, a.Binding)
}

// band tracks the open group of one kind and how many keys it already holds.
type band struct {
	group int
	used  int
}

// allocator is the unexported implementation of Allocator.
type allocator struct {
	mu sync.Mutex

	logger        *zap.Logger
	maxBindGroups int
	maxAttributes int

	// addresses holds every assigned address, keyed by resource key.
	addresses map[string]Address
	// order holds keys in first-seen order.
	order []string
	// bands holds the currently open band per bound kind.
	bands map[common.ResourceKind]*band
	// nextGroup is the lowest group index not yet opened by any kind.
	nextGroup int
	// nextLocation is the next free attribute location.
	nextLocation uint32
}

// Allocator assigns stable (group, binding) and location addresses to resource keys.
//
// Addresses are handed out in first-seen order. Uniform and storage keys take one binding each, texture keys take a
// sampler binding at 2i and a view binding at 2i+1. When a kind's band is full, or the kind has no band yet, it opens
// the lowest group index no kind has opened, so groups are never shared or renumbered. The result depends only on the
// call sequence.
type Allocator interface {
	// Allocate returns the address of key, assigning one on first use.
	//
	// Parameters:
	//   - kind: the resource kind of the key
	//   - key: the resource name
	//
	// Returns:
	//   - Address: the permanent address of the key
	//   - error: ErrBindGroupLimit, ErrAttributeLimit or ErrKindMismatch; the key stays unassigned on error
	Allocate(kind common.ResourceKind, key string) (Address, error)

	// Lookup returns the address of key without assigning one.
	Lookup(key string) (Address, bool)

	// Snapshot returns every assigned address in first-seen order.
	Snapshot() []Address

	// Groups returns the number of group indices opened so far.
	Groups() int

	// Reset forgets every assignment. It is only used on teardown.
	Reset()
}

var _ Allocator = &allocator{}

// NewAllocator creates a new Allocator.
//
// Parameters:
//   - opts: builder options, see allocator_builder.go
//
// Returns:
//   - Allocator: an empty allocator
func NewAllocator(opts ...AllocatorBuilderOption) Allocator {
	a := &allocator{
		logger:        zap.NewNop(),
		maxBindGroups: DefaultMaxBindGroups,
		maxAttributes: DefaultMaxAttributes,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reset()
	return a
}

func (a *allocator) Allocate(kind common.ResourceKind, key string) (Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if addr, ok := a.addresses[key]; ok {
		if addr.Kind != kind {
			return Address{}, fmt.Errorf("%s %q (was %s): %w", kind, key, addr.Kind, ErrKindMismatch)
		}
		return addr, nil
	}

	addr := Address{Key: key, Kind: kind}
	if kind == common.KindAttribute {
		if int(a.nextLocation) >= a.maxAttributes {
			return Address{}, fmt.Errorf("attribute %q needs location %d, limit %d: %w", key, a.nextLocation, a.maxAttributes, ErrAttributeLimit)
		}
		addr.Location = a.nextLocation
		a.nextLocation++
	} else {
		b := a.bands[kind]
		if b == nil || b.used >= capacity(kind) {
			if a.nextGroup >= a.maxBindGroups {
				return Address{}, fmt.Errorf("%s %q needs group %d, limit %d: %w", kind, key, a.nextGroup, a.maxBindGroups, ErrBindGroupLimit)
			}
			b = &band{group: a.nextGroup}
			a.bands[kind] = b
			a.nextGroup++
			a.logger.Debug("opened bind group", zap.Stringer("kind", kind), zap.Int("group", b.group))
		}
		addr.Group = uint32(b.group)
		addr.Binding = uint32(b.used)
		if kind == common.KindTexture {
			addr.Binding = uint32(2 * b.used)
		}
		b.used++
	}

	a.addresses[key] = addr
	a.order = append(a.order, key)
	a.logger.Debug("allocated", zap.Stringer("address", addr))
	return addr, nil
}

func (a *allocator) Lookup(key string) (Address, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.addresses[key]
	return addr, ok
}

func (a *allocator) Snapshot() []Address {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Address, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.addresses[key])
	}
	return out
}

func (a *allocator) Groups() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextGroup
}

func (a *allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *allocator) reset() {
	a.addresses = make(map[string]Address)
	a.order = nil
	a.bands = make(map[common.ResourceKind]*band)
	a.nextGroup = 0
	a.nextLocation = 0
}

func capacity(kind common.ResourceKind) int {
	switch kind {
	case common.KindTexture:
		return TextureBand
	case common.KindStorage:
		return StorageBand
	default:
		return UniformBand
	}
}
