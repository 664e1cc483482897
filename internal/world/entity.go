package world

import (
	"fmt"
	"math"

	"github.com/snapworld/server/internal/wire"
)

// ComponentIdx names one record inside a component array: the array's
// 16-bit id and the record's slot index within it.
type ComponentIdx struct {
	ID  uint16
	Idx uint32
}

// Component-index tag bytes. The id and index each get an independent
// size class; ids below 0x40 and zero indices ride inside the tag byte
// itself.
//
//	0x00-0x3f  6-bit id inline, 8-bit idx follows
//	0x40-0x7f  6-bit id inline (biased by 0x40), 16-bit idx follows
//	0x80-0x83  explicit 8-bit id, then 8/16/24/32-bit idx
//	0x84-0x87  explicit 16-bit id, then 8/16/24/32-bit idx
//	0x88       explicit 8-bit id, idx = 0
//	0x89       explicit 16-bit id, idx = 0
//	0x8a-0xbf  reserved, decode error
//	0xc0-0xff  6-bit id inline (biased by 0xc0), idx = 0
const (
	ciTagID8Idx8   = 0x80
	ciTagID8Idx16  = 0x81
	ciTagID8Idx24  = 0x82
	ciTagID8Idx32  = 0x83
	ciTagID16Idx8  = 0x84
	ciTagID16Idx16 = 0x85
	ciTagID16Idx24 = 0x86
	ciTagID16Idx32 = 0x87
	ciTagID8Zero   = 0x88
	ciTagID16Zero  = 0x89
)

// DecodeComponentIdx reads one (id, idx) pair.
func DecodeComponentIdx(d *wire.Decoder) (ComponentIdx, error) {
	tag, err := d.Next("component index tag")
	if err != nil {
		return ComponentIdx{}, err
	}

	switch {
	case tag < 0x40:
		idx, err := d.ReadU8("8-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		return ComponentIdx{ID: uint16(tag), Idx: uint32(idx)}, nil
	case tag < 0x80:
		idx, err := d.ReadU16("16-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		return ComponentIdx{ID: uint16(tag - 0x40), Idx: uint32(idx)}, nil
	case tag >= 0xc0:
		return ComponentIdx{ID: uint16(tag - 0xc0)}, nil
	}

	var id uint16
	switch tag {
	case ciTagID8Idx8, ciTagID8Idx16, ciTagID8Idx24, ciTagID8Idx32, ciTagID8Zero:
		id8, err := d.ReadU8("8-bit component ID")
		if err != nil {
			return ComponentIdx{}, err
		}
		id = uint16(id8)
	case ciTagID16Idx8, ciTagID16Idx16, ciTagID16Idx24, ciTagID16Idx32, ciTagID16Zero:
		id16, err := d.ReadU16("16-bit component ID")
		if err != nil {
			return ComponentIdx{}, err
		}
		id = id16
	default:
		return ComponentIdx{}, d.Unexpected(
			"component index tag",
			fmt.Sprintf("reserved tag byte 0x%02x", tag),
		)
	}

	var idx uint32
	switch tag {
	case ciTagID8Zero, ciTagID16Zero:
		idx = 0
	case ciTagID8Idx8, ciTagID16Idx8:
		idx8, err := d.ReadU8("8-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		idx = uint32(idx8)
	case ciTagID8Idx16, ciTagID16Idx16:
		idx16, err := d.ReadU16("16-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		idx = uint32(idx16)
	case ciTagID8Idx24, ciTagID16Idx24:
		idx24, err := d.ReadU24("24-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		idx = idx24
	case ciTagID8Idx32, ciTagID16Idx32:
		idx32, err := d.ReadU32("32-bit component index")
		if err != nil {
			return ComponentIdx{}, err
		}
		idx = idx32
	}

	return ComponentIdx{ID: id, Idx: idx}, nil
}

// EncodeComponentIdx writes the unique shortest encoding of ci. Each
// (id class, idx class) combination maps to exactly one tag.
func EncodeComponentIdx(e *wire.Encoder, ci ComponentIdx) error {
	if ci.ID < 0x40 {
		// Inline id forms exist for the zero, 8-bit and 16-bit index
		// classes only; wider indices fall back to an explicit 8-bit id.
		switch {
		case ci.Idx == 0:
			return e.WriteByte(0xc0 + byte(ci.ID))
		case ci.Idx <= math.MaxUint8:
			if err := e.WriteByte(byte(ci.ID)); err != nil {
				return err
			}
			return e.WriteU8(uint8(ci.Idx))
		case ci.Idx <= math.MaxUint16:
			if err := e.WriteByte(0x40 + byte(ci.ID)); err != nil {
				return err
			}
			return e.WriteU16(uint16(ci.Idx))
		case ci.Idx < 1<<24:
			if err := e.WriteByte(ciTagID8Idx24); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU24(ci.Idx)
		default:
			if err := e.WriteByte(ciTagID8Idx32); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU32(ci.Idx)
		}
	}

	if ci.ID <= math.MaxUint8 {
		switch {
		case ci.Idx == 0:
			if err := e.WriteByte(ciTagID8Zero); err != nil {
				return err
			}
			return e.WriteU8(uint8(ci.ID))
		case ci.Idx <= math.MaxUint8:
			if err := e.WriteByte(ciTagID8Idx8); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU8(uint8(ci.Idx))
		case ci.Idx <= math.MaxUint16:
			if err := e.WriteByte(ciTagID8Idx16); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU16(uint16(ci.Idx))
		case ci.Idx < 1<<24:
			if err := e.WriteByte(ciTagID8Idx24); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU24(ci.Idx)
		default:
			if err := e.WriteByte(ciTagID8Idx32); err != nil {
				return err
			}
			if err := e.WriteU8(uint8(ci.ID)); err != nil {
				return err
			}
			return e.WriteU32(ci.Idx)
		}
	}

	switch {
	case ci.Idx == 0:
		if err := e.WriteByte(ciTagID16Zero); err != nil {
			return err
		}
		return e.WriteU16(ci.ID)
	case ci.Idx <= math.MaxUint8:
		if err := e.WriteByte(ciTagID16Idx8); err != nil {
			return err
		}
		if err := e.WriteU16(ci.ID); err != nil {
			return err
		}
		return e.WriteU8(uint8(ci.Idx))
	case ci.Idx <= math.MaxUint16:
		if err := e.WriteByte(ciTagID16Idx16); err != nil {
			return err
		}
		if err := e.WriteU16(ci.ID); err != nil {
			return err
		}
		return e.WriteU16(uint16(ci.Idx))
	case ci.Idx < 1<<24:
		if err := e.WriteByte(ciTagID16Idx24); err != nil {
			return err
		}
		if err := e.WriteU16(ci.ID); err != nil {
			return err
		}
		return e.WriteU24(ci.Idx)
	default:
		if err := e.WriteByte(ciTagID16Idx32); err != nil {
			return err
		}
		if err := e.WriteU16(ci.ID); err != nil {
			return err
		}
		return e.WriteU32(ci.Idx)
	}
}

// EntityData is one entity's slot: the component records attached to it
// and a tombstone. The tombstone never touches the disk format; it exists
// so deletion can be soft until the next save, keeping in-memory entity
// indices stable.
type EntityData struct {
	Deleted    bool
	Components []ComponentIdx
}

// EntityArray is the entity table, indexed by position. Positions are the
// in-memory entity ids.
type EntityArray struct {
	entities []EntityData
}

// Len returns the number of entity slots, deleted ones included.
func (a *EntityArray) Len() int {
	return len(a.entities)
}

// Alive returns the number of non-deleted entities.
func (a *EntityArray) Alive() int {
	n := 0
	for i := range a.entities {
		if !a.entities[i].Deleted {
			n++
		}
	}
	return n
}

// Get returns the entity at slot i, or nil if i is out of range. The
// returned pointer aliases the array's storage.
func (a *EntityArray) Get(i uint32) *EntityData {
	if uint64(i) >= uint64(len(a.entities)) {
		return nil
	}
	return &a.entities[i]
}

// Spawn appends a fresh entity slot and returns its index.
func (a *EntityArray) Spawn() uint32 {
	a.entities = append(a.entities, EntityData{})
	return uint32(len(a.entities) - 1)
}

// Delete tombstones slot i. Reports whether i named a live entity.
func (a *EntityArray) Delete(i uint32) bool {
	ent := a.Get(i)
	if ent == nil || ent.Deleted {
		return false
	}
	ent.Deleted = true
	return true
}

// PackedIndices computes the compaction mapping used at serialization
// time: for each slot in order, the entity's 0-based rank among all
// non-deleted entities, or -1 if the slot is tombstoned. Relative order
// is preserved.
func (a *EntityArray) PackedIndices() []int64 {
	packed := make([]int64, len(a.entities))
	next := int64(0)
	for i := range a.entities {
		if a.entities[i].Deleted {
			packed[i] = -1
		} else {
			packed[i] = next
			next++
		}
	}
	return packed
}

// DecodeEntityData reads one entity record: a component count (one byte,
// with 0xff escaping to a following 16-bit count) and that many component
// indices. Decoded entities are never tombstoned.
func DecodeEntityData(d *wire.Decoder) (EntityData, error) {
	n, err := d.ReadU8("component index count")
	if err != nil {
		return EntityData{}, err
	}
	count := uint32(n)
	if n == 0xff {
		wideCount, err := d.ReadU16("16-bit component index count")
		if err != nil {
			return EntityData{}, err
		}
		count = uint32(wideCount)
	}

	components := make([]ComponentIdx, 0, count)
	for i := uint32(0); i < count; i++ {
		ci, err := DecodeComponentIdx(d)
		if err != nil {
			return EntityData{}, err
		}
		components = append(components, ci)
	}
	return EntityData{Components: components}, nil
}

// EncodeEntityData writes one entity record using the same two-tier count
// scheme the decoder accepts.
func EncodeEntityData(e *wire.Encoder, ent *EntityData) error {
	n := len(ent.Components)
	if n > math.MaxUint16 {
		panic("world: entity component list exceeds 16-bit count")
	}
	if n < 0xff {
		if err := e.WriteU8(uint8(n)); err != nil {
			return err
		}
	} else {
		if err := e.WriteU8(0xff); err != nil {
			return err
		}
		if err := e.WriteU16(uint16(n)); err != nil {
			return err
		}
	}
	for _, ci := range ent.Components {
		if err := EncodeComponentIdx(e, ci); err != nil {
			return err
		}
	}
	return nil
}

// DecodeEntityArray reads the ENTITIES block.
func DecodeEntityArray(d *wire.Decoder) (*EntityArray, error) {
	header, err := d.ReadHeaderLine("entity array header")
	if err != nil {
		return nil, err
	}
	if len(header) != 2 {
		return nil, d.Unexpected(
			"entity array header with two fields",
			fmt.Sprintf("%d fields", len(header)),
		)
	}
	if header[0] != "ENTITIES" {
		return nil, d.Unexpected(
			"entity array signature (ENTITIES)",
			fmt.Sprintf("invalid signature: %q", header[0]),
		)
	}
	count, err := parseU32(header[1])
	if err != nil {
		return nil, d.Unexpected("32-bit entity count", "invalid entity count")
	}

	arr := &EntityArray{entities: make([]EntityData, 0, count)}
	for i := uint32(0); i < count; i++ {
		ent, err := DecodeEntityData(d)
		if err != nil {
			return nil, err
		}
		arr.entities = append(arr.entities, ent)
	}
	return arr, nil
}

// EncodeEntityArray writes the ENTITIES block. Tombstoned entities are
// skipped entirely: they do not count toward the header and leave no
// placeholder behind.
func (a *EntityArray) Encode(e *wire.Encoder) error {
	if err := e.Printf("ENTITIES %d\n", a.Alive()); err != nil {
		return err
	}
	for i := range a.entities {
		if a.entities[i].Deleted {
			continue
		}
		if err := EncodeEntityData(e, &a.entities[i]); err != nil {
			return err
		}
	}
	return nil
}
