package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/snapworld/server/internal/world"
)

// ComponentTemplate declares one component array of a world template.
// A component with no fields is a marker.
type ComponentTemplate struct {
	Name   string   `yaml:"name"`
	ID     uint16   `yaml:"id"`
	Fields []string `yaml:"fields"`
}

// GlobalField declares one field of the global component together with
// its initial value.
type GlobalField struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

// WorldTemplate describes the shape of a fresh world: its component
// arrays, the global component, and how many empty entities to spawn.
type WorldTemplate struct {
	Components []ComponentTemplate `yaml:"components"`
	Global     []GlobalField       `yaml:"global"`
	Entities   int                 `yaml:"entities"`
}

// LoadWorldTemplate loads a world template from a YAML file.
func LoadWorldTemplate(path string) (*WorldTemplate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world template: %w", err)
	}
	var t WorldTemplate
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse world template: %w", err)
	}
	return &t, nil
}

// Build instantiates the template as a world with empty component
// arrays, the declared global values, and the requested number of
// component-less entities.
func (t *WorldTemplate) Build() (*world.World, error) {
	w := world.New()
	for _, ct := range t.Components {
		c, err := world.NewComponentArray(ct.Name, ct.ID, ct.Fields)
		if err != nil {
			return nil, fmt.Errorf("component %q: %w", ct.Name, err)
		}
		if err := w.AddComponent(c); err != nil {
			return nil, err
		}
	}

	scheme := make([]string, 0, len(t.Global))
	values := make([]world.Value, 0, len(t.Global))
	for _, f := range t.Global {
		v, err := toValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("global field %q: %w", f.Name, err)
		}
		scheme = append(scheme, f.Name)
		values = append(values, v)
	}
	g, err := world.NewGlobalComponent(scheme, values)
	if err != nil {
		return nil, err
	}
	w.SetGlobal(g)

	if t.Entities < 0 {
		return nil, fmt.Errorf("entity count %d is negative", t.Entities)
	}
	for i := 0; i < t.Entities; i++ {
		w.Entities().Spawn()
	}
	return w, nil
}

// toValue maps the YAML scalar and sequence shapes onto world values.
// Strings become byte strings and null becomes an empty Maybe.
func toValue(raw any) (world.Value, error) {
	switch v := raw.(type) {
	case nil:
		return world.Maybe{}, nil
	case bool:
		return world.Bool(v), nil
	case int:
		return world.Int(v), nil
	case int64:
		return world.Int(v), nil
	case uint64:
		if v > 1<<63-1 {
			return nil, fmt.Errorf("integer %d overflows", v)
		}
		return world.Int(v), nil
	case float64:
		return world.Float(v), nil
	case string:
		return world.Bytes(v), nil
	case []any:
		arr := make(world.Array, len(v))
		for i, e := range v {
			ev, err := toValue(e)
			if err != nil {
				return nil, err
			}
			arr[i] = ev
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", raw)
	}
}
