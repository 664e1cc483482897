package world_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapworld/server/internal/wire"
	"github.com/snapworld/server/internal/world"
)

func decodeComponentIdx(b []byte) (world.ComponentIdx, error) {
	return world.DecodeComponentIdx(wire.NewDecoder(bytes.NewReader(b)))
}

func encodeComponentIdx(t *testing.T, ci world.ComponentIdx) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, world.EncodeComponentIdx(wire.NewEncoder(&buf), ci))
	return buf.Bytes()
}

func checkComponentIdxRoundTrip(t *testing.T, b []byte, id uint16, idx uint32) {
	t.Helper()
	ci, err := decodeComponentIdx(b)
	require.NoError(t, err)
	assert.Equal(t, world.ComponentIdx{ID: id, Idx: idx}, ci)
	assert.Equal(t, b, encodeComponentIdx(t, ci))
}

func TestComponentIdx6BitID(t *testing.T) {
	for _, id := range []byte{0, 0x0f, 0x1f, 0x2f, 0x3f} {
		// zero idx rides inside the tag
		checkComponentIdxRoundTrip(t, []byte{0xc0 + id}, uint16(id), 0)
		for _, idx := range []byte{1, 0x40, 0x7f, 0xbe, 0xfd} {
			checkComponentIdxRoundTrip(t, []byte{id, idx}, uint16(id), uint32(idx))
			checkComponentIdxRoundTrip(t, []byte{0x40 + id, 1, idx}, uint16(id), uint32(idx)+0x100)
			checkComponentIdxRoundTrip(t, []byte{0x40 + id, 16, idx}, uint16(id), uint32(idx)+0x1000)
		}
		// no 6-bit tag exists for 24/32-bit indices; the explicit 8-bit
		// id forms are the shortest remaining encodings
		checkComponentIdxRoundTrip(t, []byte{0x82, id, 0x01, 0x00, 0x00}, uint16(id), 0x10000)
		checkComponentIdxRoundTrip(t, []byte{0x83, id, 0x01, 0x00, 0x00, 0x00}, uint16(id), 0x1000000)
	}
}

func TestComponentIdx8BitID(t *testing.T) {
	for _, id := range []byte{0x40, 0x7f, 0xbe, 0xfd} {
		checkComponentIdxRoundTrip(t, []byte{0x88, id}, uint16(id), 0)
		checkComponentIdxRoundTrip(t, []byte{0x80, id, id}, uint16(id), uint32(id))
		checkComponentIdxRoundTrip(t, []byte{0x81, id, id, id}, uint16(id),
			binary.BigEndian.Uint32([]byte{0, 0, id, id}))
		checkComponentIdxRoundTrip(t, []byte{0x82, id, id, id, id}, uint16(id),
			binary.BigEndian.Uint32([]byte{0, id, id, id}))
		checkComponentIdxRoundTrip(t, []byte{0x83, id, id, id, id, id}, uint16(id),
			binary.BigEndian.Uint32([]byte{id, id, id, id}))
	}
}

func TestComponentIdx16BitID(t *testing.T) {
	for _, id := range []uint16{0x100, 0x200, 0x1234, 0xffff} {
		a, b := byte(id>>8), byte(id)
		checkComponentIdxRoundTrip(t, []byte{0x89, a, b}, id, 0)
		checkComponentIdxRoundTrip(t, []byte{0x84, a, b, a}, id, uint32(a))
		checkComponentIdxRoundTrip(t, []byte{0x85, a, b, a, b}, id, uint32(id))
		checkComponentIdxRoundTrip(t, []byte{0x86, a, b, a, b, a}, id,
			binary.BigEndian.Uint32([]byte{0, a, b, a}))
		checkComponentIdxRoundTrip(t, []byte{0x87, a, b, a, b, a, b}, id,
			binary.BigEndian.Uint32([]byte{a, b, a, b}))
	}
}

func TestComponentIdxReservedTags(t *testing.T) {
	for tag := 0x8a; tag < 0xc0; tag++ {
		_, err := decodeComponentIdx([]byte{byte(tag), 0, 0, 0, 0, 0, 0})
		assert.Error(t, err, "tag 0x%02x", tag)
	}
}

func decodeEntityData(b []byte) (world.EntityData, error) {
	return world.DecodeEntityData(wire.NewDecoder(bytes.NewReader(b)))
}

func encodeEntityData(t *testing.T, ent world.EntityData) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, world.EncodeEntityData(wire.NewEncoder(&buf), &ent))
	return buf.Bytes()
}

func checkEntityDataRoundTrip(t *testing.T, b []byte) world.EntityData {
	t.Helper()
	ent, err := decodeEntityData(b)
	require.NoError(t, err)
	assert.Equal(t, b, encodeEntityData(t, ent))
	return ent
}

func TestEntityDataEncoding(t *testing.T) {
	assert.Empty(t, checkEntityDataRoundTrip(t, []byte{0x00}).Components)
	assert.Equal(t,
		[]world.ComponentIdx{{ID: 1, Idx: 1}},
		checkEntityDataRoundTrip(t, []byte{0x01, 0x01, 0x01}).Components)

	// too few component indices
	_, err := decodeEntityData([]byte{0x01})
	assert.Error(t, err)
	_, err = decodeEntityData([]byte{0x02, 0x01, 0x01})
	assert.Error(t, err)
}

func TestEntityDataManyComponents(t *testing.T) {
	var encoded []byte
	var components []world.ComponentIdx

	ids := testBytes()
	encoded = append(encoded, byte(len(ids)))
	for i, id := range ids {
		idx := byte(i % 5)
		switch {
		case id >= 0x40 && idx != 0:
			encoded = append(encoded, 0x80, id, idx)
		case id < 0x40 && idx != 0:
			encoded = append(encoded, id, idx)
		case id >= 0x40:
			encoded = append(encoded, 0x88, id)
		default:
			encoded = append(encoded, 0xc0+id)
		}
		components = append(components, world.ComponentIdx{ID: uint16(id), Idx: uint32(idx)})
	}

	assert.Equal(t, components, checkEntityDataRoundTrip(t, encoded).Components)
}

func TestEntityDataWideCount(t *testing.T) {
	// a count byte of 0xff escapes to a 16-bit count
	var encoded []byte
	encoded = append(encoded, 0xff)
	for i := 0; i < 0xff; i++ {
		encoded = append(encoded, 0xc0)
	}
	_, err := decodeEntityData(encoded)
	assert.Error(t, err)

	withCount := append([]byte{0xff, 0x00, 0xff}, encoded[1:]...)
	checkEntityDataRoundTrip(t, withCount)
}

func TestEntityArrayCodec(t *testing.T) {
	input := []byte("ENTITIES 3\n" +
		"\x01\xc1" + // entity 0: component id 1, slot 0
		"\x00" + // entity 1: no components
		"\x02\xc1\x05\x02") // entity 2: id 1 slot 0, id 5 slot 2
	arr, err := world.DecodeEntityArray(wire.NewDecoder(bytes.NewReader(input)))
	require.NoError(t, err)
	require.Equal(t, 3, arr.Len())
	assert.Equal(t, 3, arr.Alive())
	assert.False(t, arr.Get(0).Deleted)
	assert.Equal(t, []world.ComponentIdx{{ID: 1, Idx: 0}, {ID: 5, Idx: 2}},
		arr.Get(2).Components)
	assert.Nil(t, arr.Get(3))

	var buf bytes.Buffer
	require.NoError(t, arr.Encode(wire.NewEncoder(&buf)))
	assert.Equal(t, input, buf.Bytes())
}

func TestEntityArrayHeaderErrors(t *testing.T) {
	for _, b := range []string{
		"",
		"ENTITIES\n",
		"ENTITIES 1 2\n",
		"SEITITNE 0\n",
		"ENTITIES x\n",
		"ENTITIES 4294967296\n",
	} {
		_, err := world.DecodeEntityArray(wire.NewDecoder(bytes.NewReader([]byte(b))))
		assert.Error(t, err, "input %q", b)
	}
}

func TestPackedIndices(t *testing.T) {
	var arr world.EntityArray
	for i := 0; i < 6; i++ {
		arr.Spawn()
	}
	require.True(t, arr.Delete(1))
	require.True(t, arr.Delete(4))
	require.False(t, arr.Delete(4), "double delete")
	require.False(t, arr.Delete(100), "out of range")

	assert.Equal(t, []int64{0, -1, 1, 2, -1, 3}, arr.PackedIndices())
	assert.Equal(t, 4, arr.Alive())
	assert.Equal(t, 6, arr.Len())
}

func TestEntityArraySkipsTombstones(t *testing.T) {
	var arr world.EntityArray
	for i := 0; i < 3; i++ {
		arr.Spawn()
	}
	arr.Get(0).Components = []world.ComponentIdx{{ID: 2, Idx: 1}}
	arr.Get(1).Components = []world.ComponentIdx{{ID: 9, Idx: 0}}
	arr.Delete(1)

	var buf bytes.Buffer
	require.NoError(t, arr.Encode(wire.NewEncoder(&buf)))
	// no placeholder of any kind for the deleted entity
	assert.Equal(t, []byte("ENTITIES 2\n\x01\x02\x01\x00"), buf.Bytes())
}
