package world_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapworld/server/internal/wire"
	"github.com/snapworld/server/internal/world"
)

func decodeComponentArray(b []byte) (*world.ComponentArray, error) {
	return world.DecodeComponentArray(wire.NewDecoder(bytes.NewReader(b)))
}

func encodeComponentArray(t *testing.T, c *world.ComponentArray) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Encode(wire.NewEncoder(&buf), nil))
	return buf.Bytes()
}

func checkComponentArrayRoundTrip(t *testing.T, b []byte) {
	t.Helper()
	c, err := decodeComponentArray(b)
	require.NoError(t, err)
	assert.Equal(t, b, encodeComponentArray(t, c))
}

func TestComponentArrayHeaderErrors(t *testing.T) {
	for _, b := range []string{
		"",
		"COMPONENT",
		"COMPONENT foo 0",
		"COMPONENT foo 0 0",
		"TNENOPMOC foo 0 0\n",
		"COMPONENT foo 65536 0\n",  // id does not fit 16 bits
		"COMPONENT foo 0 0 a a\n",  // duplicate fields
		"COMPONENT foo 0 0 a b a\n",
		"COMPONENT foo 0 0 a b c d a f\n",
		"COMPONENT \xc1\xa1foo 0 0\n", // non-ASCII header byte
	} {
		_, err := decodeComponentArray([]byte(b))
		assert.Error(t, err, "input %q", b)
	}

	_, err := decodeComponentArray([]byte("COMPONENT foo 65535 0\n"))
	assert.NoError(t, err)
}

func TestMarkerComponent(t *testing.T) {
	c, err := decodeComponentArray([]byte("COMPONENT foo 31415 0\n"))
	require.NoError(t, err)
	assert.True(t, c.IsMarker())
	assert.Equal(t, "foo", c.Name())
	assert.Equal(t, uint16(31415), c.ID())

	// only record 0 is addressable on a marker component
	_, ok := c.Record(0)
	assert.True(t, ok)
	_, ok = c.Record(1)
	assert.False(t, ok)

	// the declared record count is irrelevant for markers
	c, err = decodeComponentArray([]byte("COMPONENT tagged 7 42\n"))
	require.NoError(t, err)
	_, ok = c.Record(0)
	assert.True(t, ok)
	_, ok = c.Record(1)
	assert.False(t, ok)
}

func TestComponentArrayScheme(t *testing.T) {
	c, err := decodeComponentArray([]byte("COMPONENT foo 0 0 a b c d e f\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, c.Scheme())

	// names are arbitrary non-whitespace ASCII
	c, err = decodeComponentArray([]byte("COMPONENT foo! 0 0\n"))
	require.NoError(t, err)
	assert.Equal(t, "foo!", c.Name())
}

func TestComponentArrayTooFewValues(t *testing.T) {
	_, err := decodeComponentArray([]byte(
		"COMPONENT point 0 5 x y\n\x00\x01\x02\x03\x04\x05\x06\x07\x08"))
	assert.Error(t, err)
}

func TestComponentArrayRecords(t *testing.T) {
	c, err := decodeComponentArray([]byte(
		"COMPONENT point 21718 3 x y\n" +
			"\xa9\x12\x34\xa9\x23\x45" +
			"\xa9\x34\x56\xa9\x45\x67" +
			"\xa9\x56\x78\xa9\x67\x89"))
	require.NoError(t, err)

	assert.Equal(t, "point", c.Name())
	assert.Equal(t, uint16(21718), c.ID())
	assert.Equal(t, []string{"x", "y"}, c.Scheme())
	assert.Equal(t, uint32(3), c.Len())

	want := [][2]int64{{0x1234, 0x2345}, {0x3456, 0x4567}, {0x5678, 0x6789}}
	for i, xy := range want {
		rec, ok := c.Record(uint32(i))
		require.True(t, ok)
		x, ok := rec.Field("x")
		require.True(t, ok)
		assert.Equal(t, world.Int(xy[0]), x)
		y, ok := rec.Field("y")
		require.True(t, ok)
		assert.Equal(t, world.Int(xy[1]), y)
	}

	_, ok := c.Record(3)
	assert.False(t, ok)
	_, ok = c.Record(0xffffffff)
	assert.False(t, ok)
}

func TestComponentArrayMutation(t *testing.T) {
	payload := testBytes()

	c, err := decodeComponentArray([]byte("COMPONENT bytes 0 1 %\n\xac"))
	require.NoError(t, err)

	rec, ok := c.Record(0)
	require.True(t, ok)
	v, ok := rec.Field("%")
	require.True(t, ok)
	assert.Equal(t, world.Maybe{}, v)
	require.True(t, rec.SetField("%", world.Maybe{Elem: world.Bytes(payload)}))

	var want []byte
	want = append(want, []byte("COMPONENT bytes 0 1 %\n\xad\xa0")...)
	want = append(want, byte(len(payload)))
	want = append(want, payload...)
	assert.Equal(t, want, encodeComponentArray(t, c))
}

func TestComponentArrayAppend(t *testing.T) {
	c, err := world.NewComponentArray("hp", 3, []string{"cur", "max"})
	require.NoError(t, err)

	idx, err := c.Append([]world.Value{world.Int(10), world.Int(12)})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)
	idx, err = c.Append([]world.Value{world.Int(8), world.Int(12)})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), idx)

	_, err = c.Append([]world.Value{world.Int(1)})
	assert.Error(t, err, "value count must match the scheme")

	marker, err := world.NewComponentArray("dead", 4, nil)
	require.NoError(t, err)
	_, err = marker.Append(nil)
	assert.Error(t, err)

	_, err = world.NewComponentArray("bad", 5, []string{"a", "a"})
	assert.Error(t, err)
}

func TestComponentArrayOddNames(t *testing.T) {
	// a numeric name is still just a token
	checkComponentArrayRoundTrip(t, []byte("COMPONENT 2 1 0 1 2\n"))
	// embedded NUL survives verbatim
	checkComponentArrayRoundTrip(t, []byte("COMPONENT foo\x00bar 11111 1 foo bar\n\x01\x02"))
}

func decodeGlobalComponent(b []byte) (*world.GlobalComponent, error) {
	return world.DecodeGlobalComponent(wire.NewDecoder(bytes.NewReader(b)))
}

func encodeGlobalComponent(t *testing.T, g *world.GlobalComponent) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, g.Encode(wire.NewEncoder(&buf), nil))
	return buf.Bytes()
}

func TestGlobalComponentHeaderErrors(t *testing.T) {
	for _, b := range []string{
		"",
		"GLOBAL",
		"LABOLG\n",
		"GLOBAL a a\n",
		"GLOBAL a b a\n",
		"GLOBAL a b c d a f\n",
		"GLOBAL a\n",       // missing value
		"GLOBAL a b\n\x00", // one value short
	} {
		_, err := decodeGlobalComponent([]byte(b))
		assert.Error(t, err, "input %q", b)
	}
}

func TestGlobalComponent(t *testing.T) {
	g, err := decodeGlobalComponent([]byte("GLOBAL\n"))
	require.NoError(t, err)
	assert.True(t, g.IsEmpty())

	g, err = decodeGlobalComponent([]byte("GLOBAL x y z\n\x12\x34\x56"))
	require.NoError(t, err)
	assert.False(t, g.IsEmpty())
	assert.Equal(t, []string{"x", "y", "z"}, g.Scheme())
	assert.Equal(t, 0, g.FieldIndex("x"))
	assert.Equal(t, 1, g.FieldIndex("y"))
	assert.Equal(t, 2, g.FieldIndex("z"))
	assert.Equal(t, -1, g.FieldIndex("w"))

	rec := g.Record()
	for name, want := range map[string]world.Int{"x": 0x12, "y": 0x34, "z": 0x56} {
		v, ok := rec.Field(name)
		require.True(t, ok)
		assert.Equal(t, want, v)
	}
}

func TestGlobalComponentMutation(t *testing.T) {
	payload := testBytes()

	g, err := decodeGlobalComponent([]byte("GLOBAL bytes\n\xac"))
	require.NoError(t, err)

	rec := g.Record()
	v, ok := rec.Field("bytes")
	require.True(t, ok)
	assert.Equal(t, world.Maybe{}, v)
	require.True(t, rec.SetField("bytes", world.Maybe{Elem: world.Bytes(payload)}))

	var want []byte
	want = append(want, []byte("GLOBAL bytes\n\xad\xa0")...)
	want = append(want, byte(len(payload)))
	want = append(want, payload...)
	assert.Equal(t, want, encodeGlobalComponent(t, g))
}
