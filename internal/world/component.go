package world

import (
	"fmt"
	"strconv"

	"github.com/snapworld/server/internal/wire"
)

// ComponentArray is a named block of homogeneous records. The scheme
// lists the field names of one record; values is the flat record-major
// sequence, so len(values) is always a multiple of len(scheme). An empty
// scheme marks a marker component: presence-only, no payload, and only
// record 0 is ever addressable.
type ComponentArray struct {
	name   string
	id     uint16
	scheme []string
	values []Value
}

// NewComponentArray builds an empty array. The scheme must not contain
// duplicate field names.
func NewComponentArray(name string, id uint16, scheme []string) (*ComponentArray, error) {
	if dup, ok := findDuplicate(scheme); ok {
		return nil, fmt.Errorf("component %q: duplicate field name %q", name, dup)
	}
	return &ComponentArray{name: name, id: id, scheme: scheme}, nil
}

func (c *ComponentArray) Name() string { return c.name }

func (c *ComponentArray) ID() uint16 { return c.id }

func (c *ComponentArray) Scheme() []string { return c.scheme }

// IsMarker reports whether this is a presence-only component.
func (c *ComponentArray) IsMarker() bool { return len(c.scheme) == 0 }

// Len returns the record count, which is 0 for marker components.
func (c *ComponentArray) Len() uint32 {
	if len(c.scheme) == 0 {
		return 0
	}
	return uint32(len(c.values) / len(c.scheme))
}

// FieldIndex returns the position of name in the scheme, or -1.
func (c *ComponentArray) FieldIndex(name string) int {
	return fieldIndex(c.scheme, name)
}

// Record returns a view of record idx's fields, or ok=false if idx is out
// of bounds. For marker components only idx 0 exists, whatever the
// declared record count was. The view aliases the array's storage, so
// writing through it mutates the component.
func (c *ComponentArray) Record(idx uint32) (Record, bool) {
	n := uint64(len(c.scheme))
	if n == 0 {
		if idx != 0 {
			return Record{}, false
		}
		return Record{}, true
	}
	start := uint64(idx) * n
	end := start + n
	if end > uint64(len(c.values)) {
		return Record{}, false
	}
	return Record{scheme: c.scheme, values: c.values[start:end]}, true
}

// Append adds one record and returns its index. The value count must
// match the scheme exactly; marker components take no records.
func (c *ComponentArray) Append(values []Value) (uint32, error) {
	if len(c.scheme) == 0 {
		return 0, fmt.Errorf("component %q: marker components hold no records", c.name)
	}
	if len(values) != len(c.scheme) {
		return 0, fmt.Errorf("component %q: %d values for %d fields",
			c.name, len(values), len(c.scheme))
	}
	idx := c.Len()
	c.values = append(c.values, values...)
	return idx, nil
}

// GlobalComponent is the world-level singleton: one implicit record whose
// scheme and values line up index for index.
type GlobalComponent struct {
	scheme []string
	values []Value
}

// NewGlobalComponent builds a singleton with one value per field.
func NewGlobalComponent(scheme []string, values []Value) (*GlobalComponent, error) {
	if dup, ok := findDuplicate(scheme); ok {
		return nil, fmt.Errorf("global component: duplicate field name %q", dup)
	}
	if len(scheme) != len(values) {
		return nil, fmt.Errorf("global component: %d values for %d fields",
			len(values), len(scheme))
	}
	return &GlobalComponent{scheme: scheme, values: values}, nil
}

func (g *GlobalComponent) Scheme() []string { return g.scheme }

func (g *GlobalComponent) IsEmpty() bool { return len(g.scheme) == 0 }

func (g *GlobalComponent) FieldIndex(name string) int {
	return fieldIndex(g.scheme, name)
}

// Record returns the singleton's field view. Writes through the view
// mutate the global component.
func (g *GlobalComponent) Record() Record {
	return Record{scheme: g.scheme, values: g.values}
}

// Record is a view of one record's fields, shared with the owning
// component. Field lookup is a linear scan of the scheme; schemes are
// expected to stay small.
type Record struct {
	scheme []string
	values []Value
}

func (r Record) Scheme() []string { return r.scheme }

func (r Record) Values() []Value { return r.values }

// Field returns the value of the named field, or ok=false if the scheme
// has no such field.
func (r Record) Field(name string) (Value, bool) {
	i := fieldIndex(r.scheme, name)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// SetField replaces the named field's value. Reports whether the field
// exists.
func (r Record) SetField(name string, v Value) bool {
	i := fieldIndex(r.scheme, name)
	if i < 0 {
		return false
	}
	r.values[i] = v
	return true
}

func fieldIndex(scheme []string, name string) int {
	for i, n := range scheme {
		if n == name {
			return i
		}
	}
	return -1
}

// findDuplicate scans quadratically for a repeated element. Fine for
// schemes, whose sizes are field counts rather than record counts.
func findDuplicate(names []string) (string, bool) {
	for i, n := range names {
		for _, prev := range names[:i] {
			if prev == n {
				return n, true
			}
		}
	}
	return "", false
}

func parseU16(tok string) (uint16, error) {
	v, err := strconv.ParseUint(tok, 10, 16)
	return uint16(v), err
}

func parseU32(tok string) (uint32, error) {
	v, err := strconv.ParseUint(tok, 10, 32)
	return uint32(v), err
}

// DecodeComponentArray reads one COMPONENT block: the header line
// (signature, name, id, record count, then the scheme) followed by
// recordCount*len(scheme) values in record-major order.
func DecodeComponentArray(d *wire.Decoder) (*ComponentArray, error) {
	header, err := d.ReadHeaderLine("component array header")
	if err != nil {
		return nil, err
	}
	if len(header) < 4 {
		return nil, d.Unexpected("component array header", "too few fields")
	}
	if header[0] != "COMPONENT" {
		return nil, d.Unexpected(
			"component array signature (COMPONENT)",
			fmt.Sprintf("invalid signature: %q", header[0]),
		)
	}
	name := header[1]
	id, err := parseU16(header[2])
	if err != nil {
		return nil, d.Unexpected("16-bit component ID", "invalid ID")
	}
	count, err := parseU32(header[3])
	if err != nil {
		return nil, d.Unexpected("32-bit component count", "invalid component count")
	}
	scheme := header[4:]
	if dup, ok := findDuplicate(scheme); ok {
		return nil, d.Unexpected(
			"distinct field names",
			fmt.Sprintf("duplicate name: %q", dup),
		)
	}

	numValues := uint64(count) * uint64(len(scheme))
	values := make([]Value, 0, numValues)
	for i := uint64(0); i < numValues; i++ {
		v, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return &ComponentArray{name: name, id: id, scheme: scheme, values: values}, nil
}

// Encode writes the COMPONENT block. Every entity reference anywhere in
// the values, however nested, passes through rw on the way out.
func (c *ComponentArray) Encode(e *wire.Encoder, rw RewriteEntity) error {
	if err := e.Printf("COMPONENT %s %d %d", c.name, c.id, c.Len()); err != nil {
		return err
	}
	for _, field := range c.scheme {
		if err := e.WriteString(" " + field); err != nil {
			return err
		}
	}
	if err := e.WriteByte('\n'); err != nil {
		return err
	}
	for _, v := range c.values {
		if err := EncodeValue(e, v, rw); err != nil {
			return err
		}
	}
	return nil
}

// DecodeGlobalComponent reads the GLOBAL block: like a component array
// but unnamed, with an implicit record count of one.
func DecodeGlobalComponent(d *wire.Decoder) (*GlobalComponent, error) {
	header, err := d.ReadHeaderLine("global component header")
	if err != nil {
		return nil, err
	}
	if len(header) < 1 {
		return nil, d.Unexpected("global component header", "too few fields")
	}
	if header[0] != "GLOBAL" {
		return nil, d.Unexpected(
			"global component signature (GLOBAL)",
			fmt.Sprintf("invalid signature: %q", header[0]),
		)
	}
	scheme := header[1:]
	if dup, ok := findDuplicate(scheme); ok {
		return nil, d.Unexpected(
			"distinct field names",
			fmt.Sprintf("duplicate name: %q", dup),
		)
	}

	values := make([]Value, 0, len(scheme))
	for range scheme {
		v, err := DecodeValue(d)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	return &GlobalComponent{scheme: scheme, values: values}, nil
}

// Encode writes the GLOBAL block.
func (g *GlobalComponent) Encode(e *wire.Encoder, rw RewriteEntity) error {
	if err := e.WriteString("GLOBAL"); err != nil {
		return err
	}
	for _, field := range g.scheme {
		if err := e.WriteString(" " + field); err != nil {
			return err
		}
	}
	if err := e.WriteByte('\n'); err != nil {
		return err
	}
	for _, v := range g.values {
		if err := EncodeValue(e, v, rw); err != nil {
			return err
		}
	}
	return nil
}
