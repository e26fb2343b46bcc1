package resource

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-bind/common"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu"
	"github.com/Carmen-Shannon/oxy-bind/engine/gpu/gputest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, opts ...CacheBuilderOption) (*gputest.Device, Cache) {
	t.Helper()
	dev := gputest.NewDevice(gputest.Explicit())
	return dev, NewCache(dev, opts...)
}

func TestGetOrCreateMemoizes(t *testing.T) {
	dev, c := newCache(t)
	shape := Shape{Count: 1, Components: 1}

	slot, change, err := c.GetOrCreate("iTime", common.KindUniform, shape)
	require.NoError(t, err)
	assert.Equal(t, Created, change)
	assert.Len(t, slot.Shadow, 4)

	again, change, err := c.GetOrCreate("iTime", common.KindUniform, shape)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, change)
	assert.Same(t, slot, again)
	assert.Equal(t, 1, dev.Created("buffer"))
}

func TestUniformBufferAlignedTo256(t *testing.T) {
	_, c := newCache(t)
	slot, _, err := c.GetOrCreate("iResolution", common.KindUniform, Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(256), slot.Buffer().Size())

	slot, _, err = c.GetOrCreate("positions", common.KindAttribute, Shape{Count: 3, Components: 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(36), slot.Buffer().Size())
}

func TestReshapeRecreatesHandle(t *testing.T) {
	dev, c := newCache(t)
	slot, _, err := c.GetOrCreate("pos", common.KindAttribute, Shape{Count: 3, Components: 2})
	require.NoError(t, err)
	old := slot.Handle.(*gputest.Buffer)

	slot, change, err := c.GetOrCreate("pos", common.KindAttribute, Shape{Count: 3, Components: 3})
	require.NoError(t, err)
	assert.Equal(t, Reshaped, change, "component width change is a shape change")
	assert.Equal(t, 1, old.Releases())
	assert.Equal(t, 1, slot.Generation)
	assert.Len(t, slot.Shadow, 36)
	assert.Equal(t, 1, dev.Live())
}

func TestTextureDimensionChangeIsReshape(t *testing.T) {
	_, c := newCache(t)
	_, _, err := c.GetOrCreate("img", common.KindTexture, Shape{Width: 4, Height: 4})
	require.NoError(t, err)
	_, change, err := c.GetOrCreate("img", common.KindTexture, Shape{Width: 8, Height: 4})
	require.NoError(t, err)
	assert.Equal(t, Reshaped, change)
}

func TestReshapeFailureKeepsPreviousSlot(t *testing.T) {
	dev, c := newCache(t)
	slot, _, err := c.GetOrCreate("pos", common.KindAttribute, Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	handle := slot.Handle

	dev.FailOn("CreateBuffer", true)
	_, _, err = c.GetOrCreate("pos", common.KindAttribute, Shape{Count: 2, Components: 2})
	require.ErrorIs(t, err, gputest.ErrInjected)

	kept, ok := c.Slot("pos")
	require.True(t, ok)
	assert.Same(t, handle, kept.Handle)
	assert.Equal(t, Shape{Count: 1, Components: 2}, kept.Shape)
}

func TestWritesAreCoalesced(t *testing.T) {
	dev, c := newCache(t)
	_, _, err := c.GetOrCreate("iTime", common.KindUniform, Shape{Count: 1, Components: 1})
	require.NoError(t, err)

	for _, v := range []float32{1, 2, 3} {
		require.NoError(t, c.Write("iTime", common.Float32Bytes([]float32{v})))
	}
	assert.Equal(t, 1, c.Pending())
	require.NoError(t, c.Flush())
	assert.Equal(t, 0, c.Pending())

	writes := dev.CallsWithPrefix("WriteBuffer")
	require.Len(t, writes, 1)
	slot, _ := c.Slot("iTime")
	assert.Equal(t, []float32{3}, common.BytesFloat32(slot.Buffer().(*gputest.Buffer).Data[:4]))
}

func TestFlushOrderIsFirstEnqueue(t *testing.T) {
	dev, c := newCache(t)
	for _, key := range []string{"a", "b"} {
		_, _, err := c.GetOrCreate(key, common.KindUniform, Shape{Count: 1, Components: 1})
		require.NoError(t, err)
	}
	require.NoError(t, c.Write("b", common.Float32Bytes([]float32{1})))
	require.NoError(t, c.Write("a", common.Float32Bytes([]float32{1})))
	require.NoError(t, c.Write("b", common.Float32Bytes([]float32{2})))
	require.NoError(t, c.Flush())
	assert.Equal(t, []string{"WriteBuffer b 4", "WriteBuffer a 4"}, dev.CallsWithPrefix("WriteBuffer"))
}

func TestWriteErrors(t *testing.T) {
	_, c := newCache(t)
	assert.ErrorIs(t, c.Write("missing", []byte{1}), ErrUnknownKey)

	_, _, err := c.GetOrCreate("v", common.KindUniform, Shape{Count: 1, Components: 2})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Write("v", make([]byte, 12)), ErrShapeMismatch)
	assert.NoError(t, c.Write("v", make([]byte, 4)), "prefix writes are allowed")
}

func TestMalformedShape(t *testing.T) {
	_, c := newCache(t)
	_, _, err := c.GetOrCreate("t", common.KindTexture, Shape{Width: 0, Height: 4})
	assert.ErrorIs(t, err, ErrMalformedShape)
	_, _, err = c.GetOrCreate("u", common.KindUniform, Shape{Count: 1, Components: 5})
	assert.ErrorIs(t, err, ErrMalformedShape)
}

func TestRemoveAndRelease(t *testing.T) {
	dev, c := newCache(t)
	for _, key := range []string{"a", "b", "c"} {
		_, _, err := c.GetOrCreate(key, common.KindStorage, Shape{Count: 4, Components: 1})
		require.NoError(t, err)
	}
	assert.True(t, c.Remove("b"))
	assert.False(t, c.Remove("b"))

	keys := []string{}
	for _, s := range c.Slots() {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"a", "c"}, keys)

	c.Release()
	c.Release()
	assert.Equal(t, 0, dev.Live())
	assert.Empty(t, dev.OverReleased())
}

type recordingUploader struct {
	uploads  [][]byte
	released int
}

func (r *recordingUploader) Release() { r.released++ }

func (r *recordingUploader) Upload(_ gpu.Device, data []byte) error {
	r.uploads = append(r.uploads, append([]byte(nil), data...))
	return nil
}

func TestFactoryOverrideAndUploader(t *testing.T) {
	up := &recordingUploader{}
	_, c := newCache(t, WithFactory(common.KindStorage, func(gpu.Device, *Slot) (gpu.Handle, error) {
		return up, nil
	}))
	_, _, err := c.GetOrCreate("particles", common.KindStorage, Shape{Count: 2, Components: 1})
	require.NoError(t, err)
	require.NoError(t, c.Write("particles", common.Float32Bytes([]float32{1, 2})))
	require.NoError(t, c.Flush())

	require.Len(t, up.uploads, 1)
	assert.Equal(t, []float32{1, 2}, common.BytesFloat32(up.uploads[0]))
	c.Release()
	assert.Equal(t, 1, up.released)
}

func TestPack(t *testing.T) {
	data, shape := Pack(common.KindStorage, 3, []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, Shape{Count: 2, Components: 3}, shape)
	assert.Equal(t, []float32{1, 2, 3, 0, 4, 5, 6, 0}, common.BytesFloat32(data))

	data, shape = Pack(common.KindAttribute, 3, []float32{1, 2, 3, 4, 5, 6})
	assert.Equal(t, 2, shape.Count)
	assert.Len(t, data, 24)

	data, shape = Pack(common.KindUniform, 1, []float32{7, 8})
	assert.Equal(t, []float32{7, 0, 0, 0, 8, 0, 0, 0}, common.BytesFloat32(data))
	assert.Equal(t, 32, shape.ByteSize(common.KindUniform))

	data, _ = Pack(common.KindUniform, 2, []float32{0.5, 0.25})
	assert.Len(t, data, 8)
}
