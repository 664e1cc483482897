// Package world holds the in-memory model of an entity-component snapshot
// and its wire codec: dynamic tagged values, component arrays, the global
// singleton, the entity table and the whole-world document.
package world

import (
	"fmt"
	"math"

	"github.com/snapworld/server/internal/wire"
)

// Value is the dynamic field type stored in component records. It is a
// closed sum: Bool, Int, Float, Bytes, Array, Maybe or EntityID. Values
// have no identity and are compared structurally.
type Value interface {
	isValue()
}

type Bool bool

type Int int64

type Float float64

type Bytes []byte

// Array is an ordered, possibly heterogeneous sequence of values.
type Array []Value

// Maybe is one level of optional boxing. A nil Elem is the empty case.
type Maybe struct {
	Elem Value
}

// EntityID names an entity slot, or nothing. The zero value is the
// invalid reference. In memory a valid index points into the live entity
// array; on disk it indexes the compacted (non-deleted) ordering.
type EntityID struct {
	Index uint32
	Valid bool
}

func (Bool) isValue()     {}
func (Int) isValue()      {}
func (Float) isValue()    {}
func (Bytes) isValue()    {}
func (Array) isValue()    {}
func (Maybe) isValue()    {}
func (EntityID) isValue() {}

// EntityIdx returns a valid reference to entity slot i.
func EntityIdx(i uint32) EntityID {
	return EntityID{Index: i, Valid: true}
}

// RewriteEntity remaps an entity reference immediately before it is
// serialized. The world encoder supplies the compaction rewrite; a nil
// function leaves references untouched.
type RewriteEntity func(EntityID) EntityID

// Value tag bytes. Tags 0x00-0x7f, 0x80-0x8f, 0x90-0x9f and 0xc0-0xff
// carry a small payload inline; everything else is an explicit form.
const (
	tagBytes8   = 0xa0 // byte string, 8-bit length
	tagBytes32  = 0xa1 // byte string, 32-bit length
	tagArray8   = 0xa2 // array, 8-bit length
	tagArray32  = 0xa3 // array, 32-bit length
	tagFalse    = 0xa4
	tagTrue     = 0xa5
	tagFloat32  = 0xa6
	tagFloat64  = 0xa7
	tagInt8     = 0xa8
	tagInt16    = 0xa9
	tagInt32    = 0xaa
	tagInt64    = 0xab
	tagNothing  = 0xac // Maybe, empty
	tagJust     = 0xad // Maybe, followed by one value
	tagEntity8  = 0xae // entity index, 8-bit
	tagEntity16 = 0xaf // entity index, 16-bit
	tagEntity32 = 0xb0 // entity index, 32-bit
	tagInvalid  = 0xb1 // invalid entity reference

	// 0xb2-0xbf are reserved and always a decode error.

	inlineBytesMax  = 0x0f // lengths encodable as 0x80+n
	inlineArrayMax  = 0x0f // lengths encodable as 0x90+n
	inlineEntityMax = 0x3f // indices encodable as 0xc0+i
)

// DecodeValue reads one tagged value. Non-canonical encodings (a wider
// form than the value needs) decode successfully; only the encoder is
// canonical.
func DecodeValue(d *wire.Decoder) (Value, error) {
	tag, err := d.Next("value tag")
	if err != nil {
		return nil, err
	}
	switch {
	case tag < 0x80:
		return Int(tag), nil
	case tag < 0x90:
		return decodeBytes(d, uint32(tag-0x80))
	case tag < 0xa0:
		return decodeArray(d, uint32(tag-0x90))
	case tag >= 0xc0:
		return EntityIdx(uint32(tag - 0xc0)), nil
	}

	switch tag {
	case tagBytes8:
		n, err := d.ReadU8("byte string length")
		if err != nil {
			return nil, err
		}
		return decodeBytes(d, uint32(n))
	case tagBytes32:
		n, err := d.ReadU32("byte string length")
		if err != nil {
			return nil, err
		}
		return decodeBytes(d, n)
	case tagArray8:
		n, err := d.ReadU8("array length")
		if err != nil {
			return nil, err
		}
		return decodeArray(d, uint32(n))
	case tagArray32:
		n, err := d.ReadU32("array length")
		if err != nil {
			return nil, err
		}
		return decodeArray(d, n)
	case tagFalse:
		return Bool(false), nil
	case tagTrue:
		return Bool(true), nil
	case tagFloat32:
		f, err := d.ReadF32("float value")
		if err != nil {
			return nil, err
		}
		return Float(float64(f)), nil
	case tagFloat64:
		f, err := d.ReadF64("double value")
		if err != nil {
			return nil, err
		}
		return Float(f), nil
	case tagInt8:
		n, err := d.ReadI8("8-bit int value")
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case tagInt16:
		n, err := d.ReadI16("16-bit int value")
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case tagInt32:
		n, err := d.ReadI32("32-bit int value")
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case tagInt64:
		n, err := d.ReadI64("64-bit int value")
		if err != nil {
			return nil, err
		}
		return Int(n), nil
	case tagNothing:
		return Maybe{}, nil
	case tagJust:
		inner, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		return Maybe{Elem: inner}, nil
	case tagEntity8:
		n, err := d.ReadU8("8-bit entity index")
		if err != nil {
			return nil, err
		}
		return EntityIdx(uint32(n)), nil
	case tagEntity16:
		n, err := d.ReadU16("16-bit entity index")
		if err != nil {
			return nil, err
		}
		return EntityIdx(uint32(n)), nil
	case tagEntity32:
		n, err := d.ReadU32("32-bit entity index")
		if err != nil {
			return nil, err
		}
		return EntityIdx(n), nil
	case tagInvalid:
		return EntityID{}, nil
	default:
		return nil, d.Unexpected("value tag", fmt.Sprintf("reserved tag byte 0x%02x", tag))
	}
}

func decodeBytes(d *wire.Decoder, n uint32) (Value, error) {
	buf := make(Bytes, n)
	for i := range buf {
		b, err := d.Next("byte string contents")
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}

func decodeArray(d *wire.Decoder, n uint32) (Value, error) {
	arr := make(Array, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	return arr, nil
}

// EncodeValue writes the canonical (minimal-width) encoding of v. Entity
// references are passed through rw, if non-nil, immediately before being
// written; this is how the world encoder applies the compaction remap to
// every reference however deeply nested.
func EncodeValue(e *wire.Encoder, v Value, rw RewriteEntity) error {
	switch v := v.(type) {
	case Bool:
		if v {
			return e.WriteByte(tagTrue)
		}
		return e.WriteByte(tagFalse)

	case Int:
		return encodeInt(e, int64(v))

	case Float:
		return encodeFloat(e, float64(v))

	case Bytes:
		if len(v) > math.MaxUint32 {
			panic("world: byte string exceeds 32-bit length")
		}
		switch {
		case len(v) <= inlineBytesMax:
			if err := e.WriteByte(0x80 + byte(len(v))); err != nil {
				return err
			}
		case len(v) <= math.MaxUint8:
			if err := e.WriteByte(tagBytes8); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(len(v))); err != nil {
				return err
			}
		default:
			if err := e.WriteByte(tagBytes32); err != nil {
				return err
			}
			if err := e.WriteU32(uint32(len(v))); err != nil {
				return err
			}
		}
		return e.Write(v)

	case Array:
		if len(v) > math.MaxUint32 {
			panic("world: array exceeds 32-bit length")
		}
		switch {
		case len(v) <= inlineArrayMax:
			if err := e.WriteByte(0x90 + byte(len(v))); err != nil {
				return err
			}
		case len(v) <= math.MaxUint8:
			if err := e.WriteByte(tagArray8); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(len(v))); err != nil {
				return err
			}
		default:
			if err := e.WriteByte(tagArray32); err != nil {
				return err
			}
			if err := e.WriteU32(uint32(len(v))); err != nil {
				return err
			}
		}
		for _, elem := range v {
			if err := EncodeValue(e, elem, rw); err != nil {
				return err
			}
		}
		return nil

	case Maybe:
		if v.Elem == nil {
			return e.WriteByte(tagNothing)
		}
		if err := e.WriteByte(tagJust); err != nil {
			return err
		}
		return EncodeValue(e, v.Elem, rw)

	case EntityID:
		if rw != nil {
			v = rw(v)
		}
		if !v.Valid {
			return e.WriteByte(tagInvalid)
		}
		switch {
		case v.Index <= inlineEntityMax:
			return e.WriteByte(0xc0 + byte(v.Index))
		case v.Index <= math.MaxUint8:
			if err := e.WriteByte(tagEntity8); err != nil {
				return err
			}
			return e.WriteU8(uint8(v.Index))
		case v.Index <= math.MaxUint16:
			if err := e.WriteByte(tagEntity16); err != nil {
				return err
			}
			return e.WriteU16(uint16(v.Index))
		default:
			if err := e.WriteByte(tagEntity32); err != nil {
				return err
			}
			return e.WriteU32(v.Index)
		}

	default:
		panic(fmt.Sprintf("world: unknown value type %T", v))
	}
}

func encodeInt(e *wire.Encoder, n int64) error {
	switch {
	case n >= 0 && n < 0x80:
		return e.WriteByte(byte(n))
	case n >= math.MinInt8 && n <= math.MaxInt8:
		if err := e.WriteByte(tagInt8); err != nil {
			return err
		}
		return e.WriteI8(int8(n))
	case n >= math.MinInt16 && n <= math.MaxInt16:
		if err := e.WriteByte(tagInt16); err != nil {
			return err
		}
		return e.WriteI16(int16(n))
	case n >= math.MinInt32 && n <= math.MaxInt32:
		if err := e.WriteByte(tagInt32); err != nil {
			return err
		}
		return e.WriteI32(int32(n))
	default:
		if err := e.WriteByte(tagInt64); err != nil {
			return err
		}
		return e.WriteI64(n)
	}
}

// encodeFloat narrows to 32 bits only when widening back reproduces the
// original double bit-for-bit.
func encodeFloat(e *wire.Encoder, f float64) error {
	if narrow := float32(f); math.Float64bits(float64(narrow)) == math.Float64bits(f) {
		if err := e.WriteByte(tagFloat32); err != nil {
			return err
		}
		return e.WriteF32(narrow)
	}
	if err := e.WriteByte(tagFloat64); err != nil {
		return err
	}
	return e.WriteF64(f)
}
