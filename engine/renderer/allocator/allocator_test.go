package allocator

import (
	"fmt"
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAllocate(t *testing.T, a Allocator, kind common.ResourceKind, key string) Address {
	t.Helper()
	addr, err := a.Allocate(kind, key)
	require.NoError(t, err, "allocate %s %q", kind, key)
	return addr
}

func TestUniformBandPacking(t *testing.T) {
	a := NewAllocator()
	for i := 0; i < 13; i++ {
		addr := mustAllocate(t, a, common.KindUniform, fmt.Sprintf("u%d", i))
		if i < 12 {
			assert.Equal(t, uint32(0), addr.Group, "u%d group", i)
			assert.Equal(t, uint32(i), addr.Binding, "u%d binding", i)
		} else {
			assert.Equal(t, uint32(1), addr.Group)
			assert.Equal(t, uint32(0), addr.Binding)
		}
	}
	assert.Equal(t, 2, a.Groups())
}

func TestTextureBandPacking(t *testing.T) {
	a := NewAllocator()
	want := []uint32{0, 2, 4, 6, 8, 10}
	for i := 0; i < 7; i++ {
		addr := mustAllocate(t, a, common.KindTexture, fmt.Sprintf("t%d", i))
		if i < 6 {
			assert.Equal(t, uint32(0), addr.Group)
			assert.Equal(t, want[i], addr.SamplerBinding())
			assert.Equal(t, want[i]+1, addr.ViewBinding())
		} else {
			assert.Equal(t, uint32(1), addr.Group)
			assert.Equal(t, uint32(0), addr.Binding)
		}
	}
}

func TestMixedKindsNeverShareOrRenumberGroups(t *testing.T) {
	a := NewAllocator()
	for i, key := range []string{"a", "b", "c"} {
		addr := mustAllocate(t, a, common.KindUniform, key)
		assert.Equal(t, Address{Key: key, Kind: common.KindUniform, Group: 0, Binding: uint32(i)}, addr)
	}
	t1 := mustAllocate(t, a, common.KindTexture, "t1")
	t2 := mustAllocate(t, a, common.KindTexture, "t2")
	assert.Equal(t, uint32(1), t1.Group)
	assert.Equal(t, uint32(0), t1.Binding)
	assert.Equal(t, uint32(1), t2.Group)
	assert.Equal(t, uint32(2), t2.Binding)

	d := mustAllocate(t, a, common.KindUniform, "d")
	assert.Equal(t, uint32(0), d.Group)
	assert.Equal(t, uint32(3), d.Binding)

	s := mustAllocate(t, a, common.KindStorage, "positions")
	assert.Equal(t, uint32(2), s.Group)
	assert.Equal(t, uint32(0), s.Binding)

	// earlier addresses are untouched
	got, ok := a.Lookup("t1")
	require.True(t, ok)
	assert.Equal(t, t1, got)
}

func TestAddressStability(t *testing.T) {
	a := NewAllocator(WithMaxBindGroups(8))
	first := mustAllocate(t, a, common.KindStorage, "velocity")
	for i := 0; i < 40; i++ {
		mustAllocate(t, a, common.KindUniform, fmt.Sprintf("u%d", i))
	}
	again := mustAllocate(t, a, common.KindStorage, "velocity")
	assert.Equal(t, first, again)
}

func TestAttributeLocations(t *testing.T) {
	a := NewAllocator()
	mustAllocate(t, a, common.KindUniform, "iTime")
	for i, key := range []string{"position", "normal", "uv"} {
		addr := mustAllocate(t, a, common.KindAttribute, key)
		assert.Equal(t, uint32(i), addr.Location)
	}
	assert.Equal(t, 1, a.Groups(), "attributes open no groups")
}

func TestAttributeLimit(t *testing.T) {
	a := NewAllocator(WithMaxAttributes(2))
	mustAllocate(t, a, common.KindAttribute, "a0")
	mustAllocate(t, a, common.KindAttribute, "a1")
	_, err := a.Allocate(common.KindAttribute, "a2")
	assert.ErrorIs(t, err, ErrAttributeLimit)
}

func TestBindGroupLimit(t *testing.T) {
	a := NewAllocator(WithMaxBindGroups(2))
	mustAllocate(t, a, common.KindUniform, "u")
	mustAllocate(t, a, common.KindTexture, "t")

	_, err := a.Allocate(common.KindStorage, "s")
	require.ErrorIs(t, err, ErrBindGroupLimit)
	assert.Contains(t, err.Error(), `"s"`)

	_, ok := a.Lookup("s")
	assert.False(t, ok, "failed key must stay unassigned")
	assert.Equal(t, 2, a.Groups(), "allocator never wraps")

	// existing bands keep filling
	addr := mustAllocate(t, a, common.KindUniform, "u2")
	assert.Equal(t, uint32(0), addr.Group)
	assert.Equal(t, uint32(1), addr.Binding)
}

func TestKindMismatch(t *testing.T) {
	a := NewAllocator()
	mustAllocate(t, a, common.KindUniform, "x")
	_, err := a.Allocate(common.KindTexture, "x")
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestSnapshotIsInsertionOrdered(t *testing.T) {
	a := NewAllocator()
	keys := []string{"c", "a", "b"}
	for _, k := range keys {
		mustAllocate(t, a, common.KindUniform, k)
	}
	snap := a.Snapshot()
	require.Len(t, snap, 3)
	for i, k := range keys {
		assert.Equal(t, k, snap[i].Key)
	}
}

func TestDeterministicFromCallSequence(t *testing.T) {
	seq := []struct {
		kind common.ResourceKind
		key  string
	}{
		{common.KindTexture, "img"}, {common.KindUniform, "iTime"}, {common.KindStorage, "pos"},
		{common.KindAttribute, "position"}, {common.KindUniform, "iMouse"}, {common.KindTexture, "noise"},
	}
	run := func() []Address {
		a := NewAllocator()
		for _, s := range seq {
			mustAllocate(t, a, s.kind, s.key)
		}
		return a.Snapshot()
	}
	assert.Equal(t, run(), run())
}

func TestReset(t *testing.T) {
	a := NewAllocator()
	mustAllocate(t, a, common.KindUniform, "u")
	mustAllocate(t, a, common.KindAttribute, "p")
	a.Reset()
	assert.Empty(t, a.Snapshot())
	assert.Equal(t, 0, a.Groups())
	addr := mustAllocate(t, a, common.KindTexture, "t")
	assert.Equal(t, uint32(0), addr.Group)
}

func TestWorkgroupCount(t *testing.T) {
	tests := []struct {
		name     string
		dims     []int
		size     uint32
		maxPer   uint32
		expected [3]uint32
	}{
		{"exact", []int{1024}, 64, 65535, [3]uint32{16, 1, 1}},
		{"rounds up", []int{1000}, 64, 65535, [3]uint32{16, 1, 1}},
		{"3d domain", []int{64, 16, 4}, 64, 65535, [3]uint32{64, 1, 1}},
		{"default size", []int{128}, 0, 65535, [3]uint32{2, 1, 1}},
		{"folds into y", []int{100}, 1, 10, [3]uint32{10, 10, 1}},
		{"fold rounds up", []int{101}, 1, 10, [3]uint32{10, 10, 1}},
		{"partial fold", []int{25}, 1, 10, [3]uint32{10, 3, 1}},
		{"unlimited", []int{1 << 20}, 1, 0, [3]uint32{1 << 20, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := common.NewDomain(tt.dims...)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, WorkgroupCount(d, tt.size, tt.maxPer))
		})
	}
	assert.Equal(t, [3]uint32{0, 1, 1}, WorkgroupCount(common.Domain{}, 64, 65535))
}
