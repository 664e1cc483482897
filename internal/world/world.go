package world

import (
	"fmt"
	"io"
	"sort"

	"github.com/kamstrup/intmap"

	"github.com/snapworld/server/internal/wire"
)

// World is a whole decoded snapshot: component arrays in a sparse
// id-keyed map, the global singleton, and the entity table. A World is
// not internally synchronized; callers share it under their own locking
// or not at all.
type World struct {
	components *intmap.Map[uint16, *ComponentArray]
	ids        []uint16 // present component ids, ascending
	global     *GlobalComponent
	entities   *EntityArray
}

// New returns an empty world: no components, an empty global scheme, no
// entities.
func New() *World {
	return &World{
		components: intmap.New[uint16, *ComponentArray](16),
		global:     &GlobalComponent{},
		entities:   &EntityArray{},
	}
}

// Component returns the array with the given id.
func (w *World) Component(id uint16) (*ComponentArray, bool) {
	return w.components.Get(id)
}

// ComponentByName returns the array with the given name.
func (w *World) ComponentByName(name string) (*ComponentArray, bool) {
	for _, id := range w.ids {
		if c, ok := w.components.Get(id); ok && c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// ComponentIDs returns the present component ids in ascending order. The
// returned slice is shared; callers must not modify it.
func (w *World) ComponentIDs() []uint16 {
	return w.ids
}

// AddComponent registers a component array, enforcing id and name
// uniqueness across the world.
func (w *World) AddComponent(c *ComponentArray) error {
	if _, ok := w.components.Get(c.ID()); ok {
		return fmt.Errorf("component %q: duplicate ID %d", c.Name(), c.ID())
	}
	if _, ok := w.ComponentByName(c.Name()); ok {
		return fmt.Errorf("duplicate component name %q", c.Name())
	}
	w.components.Put(c.ID(), c)
	i := sort.Search(len(w.ids), func(i int) bool { return w.ids[i] >= c.ID() })
	w.ids = append(w.ids, 0)
	copy(w.ids[i+1:], w.ids[i:])
	w.ids[i] = c.ID()
	return nil
}

// Global returns the world singleton.
func (w *World) Global() *GlobalComponent {
	return w.global
}

// SetGlobal replaces the world singleton.
func (w *World) SetGlobal(g *GlobalComponent) {
	w.global = g
}

// Entities returns the entity table.
func (w *World) Entities() *EntityArray {
	return w.entities
}

// Read decodes a complete world from r.
func Read(r io.Reader) (*World, error) {
	return Decode(wire.NewDecoder(r))
}

// Decode reads the WORLD document: the header, the declared number of
// component arrays (each followed by a blank-line separator), the global
// component, then the entity table. Component names and ids must be
// unique and every id must stay within the declared maximum.
func Decode(d *wire.Decoder) (*World, error) {
	header, err := d.ReadHeaderLine("world state header")
	if err != nil {
		return nil, err
	}
	if len(header) != 3 {
		return nil, d.Unexpected(
			"world state header with three fields",
			fmt.Sprintf("%d fields", len(header)),
		)
	}
	if header[0] != "WORLD" {
		return nil, d.Unexpected(
			"world state signature (WORLD)",
			fmt.Sprintf("invalid signature: %q", header[0]),
		)
	}
	numArrays, err := parseU16(header[1])
	if err != nil {
		return nil, d.Unexpected("16-bit component array count", "invalid component array count")
	}
	maxID, err := parseU16(header[2])
	if err != nil {
		return nil, d.Unexpected("16-bit maximum component ID", "invalid maximum component ID")
	}

	w := &World{
		components: intmap.New[uint16, *ComponentArray](int(maxID) + 1),
	}
	names := make(map[string]struct{}, numArrays)

	for i := uint16(0); i < numArrays; i++ {
		c, err := DecodeComponentArray(d)
		if err != nil {
			return nil, err
		}
		if _, ok := names[c.Name()]; ok {
			return nil, d.Unexpected(
				"unique component names",
				fmt.Sprintf("duplicate component name %q", c.Name()),
			)
		}
		names[c.Name()] = struct{}{}
		if c.ID() > maxID {
			return nil, d.Unexpected(
				fmt.Sprintf("all component IDs within the maximum specified (%d)", maxID),
				fmt.Sprintf("component %q with ID greater than the maximum (%d)", c.Name(), c.ID()),
			)
		}
		if _, ok := w.components.Get(c.ID()); ok {
			return nil, d.Unexpected(
				"unique component IDs",
				fmt.Sprintf("component %q with duplicate ID: %d", c.Name(), c.ID()),
			)
		}
		w.components.Put(c.ID(), c)
		w.ids = append(w.ids, c.ID())
		if err := d.ExpectNewline(); err != nil {
			return nil, err
		}
	}
	sort.Slice(w.ids, func(a, b int) bool { return w.ids[a] < w.ids[b] })

	global, err := DecodeGlobalComponent(d)
	if err != nil {
		return nil, err
	}
	if err := d.ExpectNewline(); err != nil {
		return nil, err
	}
	w.global = global

	entities, err := DecodeEntityArray(d)
	if err != nil {
		return nil, err
	}
	w.entities = entities

	return w, nil
}

// Write encodes the world to wr.
func (w *World) Write(wr io.Writer) error {
	return w.Encode(wire.NewEncoder(wr))
}

// Encode writes the WORLD document. The entity compaction mapping is
// computed once up front and applied, through the rewrite function, to
// every entity reference inside every component and the global singleton:
// a reference to a surviving entity becomes its packed index, anything
// else becomes the invalid reference. On disk, entity identity is always
// a dense 0-based sequence over the entities actually written.
func (w *World) Encode(e *wire.Encoder) error {
	maxID := uint16(0)
	if len(w.ids) > 0 {
		maxID = w.ids[len(w.ids)-1]
	}
	if err := e.Printf("WORLD %d %d\n", len(w.ids), maxID); err != nil {
		return err
	}

	packed := w.entities.PackedIndices()
	rw := func(id EntityID) EntityID {
		if !id.Valid {
			return id
		}
		if uint64(id.Index) >= uint64(len(packed)) || packed[id.Index] < 0 {
			return EntityID{}
		}
		return EntityIdx(uint32(packed[id.Index]))
	}

	for _, id := range w.ids {
		c, _ := w.components.Get(id)
		if err := c.Encode(e, rw); err != nil {
			return err
		}
		if err := e.WriteByte('\n'); err != nil {
			return err
		}
	}

	if err := w.global.Encode(e, rw); err != nil {
		return err
	}
	if err := e.WriteByte('\n'); err != nil {
		return err
	}

	return w.entities.Encode(e)
}
