// Package scripting hosts Lua code against a decoded world snapshot.
// Scripts see a single global `world` module for querying and mutating
// component data; named systems can be registered from source and run on
// demand.
package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/snapworld/server/internal/world"
)

// Engine wraps a single gopher-lua VM bound to one world.
// Single-goroutine access only.
type Engine struct {
	vm      *lua.LState
	world   *world.World
	log     *zap.Logger
	systems map[string]*lua.LFunction
}

// NewEngine creates a Lua engine bound to w and installs the `world`
// module.
func NewEngine(w *world.World, log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{
		vm:      vm,
		world:   w,
		log:     log,
		systems: make(map[string]*lua.LFunction),
	}
	e.registerWorldModule()
	return e
}

func (e *Engine) Close() {
	e.vm.Close()
}

// LoadDir loads all .lua files in a directory. A missing directory is
// not an error.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// DoString runs a chunk of Lua source immediately.
func (e *Engine) DoString(code string) error {
	return e.vm.DoString(code)
}

// RegisterSystem compiles code into a named system, replacing any system
// previously held under that name. Reports whether a previous system was
// replaced.
func (e *Engine) RegisterSystem(name, code string) (bool, error) {
	fn, err := e.vm.LoadString(code)
	if err != nil {
		return false, fmt.Errorf("compile system %q: %w", name, err)
	}
	_, replaced := e.systems[name]
	e.systems[name] = fn
	return replaced, nil
}

// RunSystem runs a named system. Running an unregistered name is a no-op,
// matching the behavior scripts rely on when features are optional.
func (e *Engine) RunSystem(name string) error {
	fn, ok := e.systems[name]
	if !ok {
		e.log.Debug("system not registered", zap.String("system", name))
		return nil
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}); err != nil {
		return fmt.Errorf("run system %q: %w", name, err)
	}
	return nil
}

// RemoveSystem drops a named system. Reports whether it existed.
func (e *Engine) RemoveSystem(name string) bool {
	_, ok := e.systems[name]
	delete(e.systems, name)
	return ok
}

// Systems returns the registered system names, in no particular order.
func (e *Engine) Systems() []string {
	names := make([]string, 0, len(e.systems))
	for name := range e.systems {
		names = append(names, name)
	}
	return names
}

// registerWorldModule installs the `world` global. Snapshot values map to
// Lua as follows: Bool and numbers directly (integers stay exact up to
// 2^53), byte strings as Lua strings, arrays as sequence tables, Maybe as
// {some=v} or {none=true}, entity references as {entity=idx} with
// {entity=-1} for the invalid reference. The same shapes are accepted
// back when writing.
func (e *Engine) registerWorldModule() {
	mod := e.vm.NewTable()
	e.vm.SetFuncs(mod, map[string]lua.LGFunction{
		"entities":   e.luaEntities,
		"alive":      e.luaAlive,
		"spawn":      e.luaSpawn,
		"despawn":    e.luaDespawn,
		"is_deleted": e.luaIsDeleted,
		"components": e.luaComponents,
		"get":        e.luaGet,
		"set":        e.luaSet,
		"append":     e.luaAppend,
		"global_get": e.luaGlobalGet,
		"global_set": e.luaGlobalSet,
		"entity":     e.luaEntity,
		"attach":     e.luaAttach,
	})
	e.vm.SetGlobal("world", mod)
}

func (e *Engine) luaEntities(L *lua.LState) int {
	L.Push(lua.LNumber(e.world.Entities().Len()))
	return 1
}

func (e *Engine) luaAlive(L *lua.LState) int {
	L.Push(lua.LNumber(e.world.Entities().Alive()))
	return 1
}

func (e *Engine) luaSpawn(L *lua.LState) int {
	L.Push(lua.LNumber(e.world.Entities().Spawn()))
	return 1
}

func (e *Engine) luaDespawn(L *lua.LState) int {
	idx := uint32(L.CheckNumber(1))
	L.Push(lua.LBool(e.world.Entities().Delete(idx)))
	return 1
}

func (e *Engine) luaIsDeleted(L *lua.LState) int {
	idx := uint32(L.CheckNumber(1))
	ent := e.world.Entities().Get(idx)
	if ent == nil {
		L.ArgError(1, "entity index out of range")
		return 0
	}
	L.Push(lua.LBool(ent.Deleted))
	return 1
}

func (e *Engine) luaComponents(L *lua.LState) int {
	list := L.NewTable()
	for _, id := range e.world.ComponentIDs() {
		c, _ := e.world.Component(id)
		entry := L.NewTable()
		entry.RawSetString("id", lua.LNumber(c.ID()))
		entry.RawSetString("name", lua.LString(c.Name()))
		entry.RawSetString("records", lua.LNumber(c.Len()))
		entry.RawSetString("marker", lua.LBool(c.IsMarker()))
		fields := L.NewTable()
		for _, f := range c.Scheme() {
			fields.Append(lua.LString(f))
		}
		entry.RawSetString("fields", fields)
		list.Append(entry)
	}
	L.Push(list)
	return 1
}

func (e *Engine) component(L *lua.LState, arg int) *world.ComponentArray {
	name := L.CheckString(arg)
	c, ok := e.world.ComponentByName(name)
	if !ok {
		L.ArgError(arg, fmt.Sprintf("no component named %q", name))
		return nil
	}
	return c
}

func (e *Engine) luaGet(L *lua.LState) int {
	c := e.component(L, 1)
	idx := uint32(L.CheckNumber(2))
	field := L.CheckString(3)

	rec, ok := c.Record(idx)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	v, ok := rec.Field(field)
	if !ok {
		L.ArgError(3, fmt.Sprintf("component %q has no field %q", c.Name(), field))
		return 0
	}
	L.Push(valueToLua(L, v))
	return 1
}

func (e *Engine) luaSet(L *lua.LState) int {
	c := e.component(L, 1)
	idx := uint32(L.CheckNumber(2))
	field := L.CheckString(3)
	v, err := luaToValue(L.CheckAny(4))
	if err != nil {
		L.ArgError(4, err.Error())
		return 0
	}

	rec, ok := c.Record(idx)
	if !ok {
		L.ArgError(2, fmt.Sprintf("component %q has no record %d", c.Name(), idx))
		return 0
	}
	if !rec.SetField(field, v) {
		L.ArgError(3, fmt.Sprintf("component %q has no field %q", c.Name(), field))
		return 0
	}
	return 0
}

// luaAppend adds a record to a component from a table keyed by field
// name and returns the new record index.
func (e *Engine) luaAppend(L *lua.LState) int {
	c := e.component(L, 1)
	t := L.CheckTable(2)

	values := make([]world.Value, len(c.Scheme()))
	for i, field := range c.Scheme() {
		lv := t.RawGetString(field)
		if lv == lua.LNil {
			L.ArgError(2, fmt.Sprintf("missing field %q", field))
			return 0
		}
		v, err := luaToValue(lv)
		if err != nil {
			L.ArgError(2, err.Error())
			return 0
		}
		values[i] = v
	}

	idx, err := c.Append(values)
	if err != nil {
		L.RaiseError("append to %q: %v", c.Name(), err)
		return 0
	}
	L.Push(lua.LNumber(idx))
	return 1
}

func (e *Engine) luaGlobalGet(L *lua.LState) int {
	field := L.CheckString(1)
	v, ok := e.world.Global().Record().Field(field)
	if !ok {
		L.ArgError(1, fmt.Sprintf("no global field %q", field))
		return 0
	}
	L.Push(valueToLua(L, v))
	return 1
}

func (e *Engine) luaGlobalSet(L *lua.LState) int {
	field := L.CheckString(1)
	v, err := luaToValue(L.CheckAny(2))
	if err != nil {
		L.ArgError(2, err.Error())
		return 0
	}
	if !e.world.Global().Record().SetField(field, v) {
		L.ArgError(1, fmt.Sprintf("no global field %q", field))
		return 0
	}
	return 0
}

// luaEntity returns an entity's component references as a sequence of
// {id=, idx=} tables.
func (e *Engine) luaEntity(L *lua.LState) int {
	idx := uint32(L.CheckNumber(1))
	ent := e.world.Entities().Get(idx)
	if ent == nil {
		L.ArgError(1, "entity index out of range")
		return 0
	}
	list := L.NewTable()
	for _, ci := range ent.Components {
		entry := L.NewTable()
		entry.RawSetString("id", lua.LNumber(ci.ID))
		entry.RawSetString("idx", lua.LNumber(ci.Idx))
		list.Append(entry)
	}
	L.Push(list)
	return 1
}

// luaAttach adds a component reference to an entity's list.
func (e *Engine) luaAttach(L *lua.LState) int {
	entIdx := uint32(L.CheckNumber(1))
	c := e.component(L, 2)
	recIdx := uint32(L.OptNumber(3, 0))

	ent := e.world.Entities().Get(entIdx)
	if ent == nil {
		L.ArgError(1, "entity index out of range")
		return 0
	}
	ent.Components = append(ent.Components, world.ComponentIdx{ID: c.ID(), Idx: recIdx})
	return 0
}

func valueToLua(L *lua.LState, v world.Value) lua.LValue {
	switch v := v.(type) {
	case world.Bool:
		return lua.LBool(v)
	case world.Int:
		return lua.LNumber(v)
	case world.Float:
		return lua.LNumber(v)
	case world.Bytes:
		return lua.LString(v)
	case world.Array:
		t := L.NewTable()
		for _, elem := range v {
			t.Append(valueToLua(L, elem))
		}
		return t
	case world.Maybe:
		t := L.NewTable()
		if v.Elem != nil {
			t.RawSetString("some", valueToLua(L, v.Elem))
		} else {
			t.RawSetString("none", lua.LTrue)
		}
		return t
	case world.EntityID:
		t := L.NewTable()
		if v.Valid {
			t.RawSetString("entity", lua.LNumber(v.Index))
		} else {
			t.RawSetString("entity", lua.LNumber(-1))
		}
		return t
	default:
		return lua.LNil
	}
}

func luaToValue(lv lua.LValue) (world.Value, error) {
	switch lv := lv.(type) {
	case lua.LBool:
		return world.Bool(lv), nil
	case lua.LNumber:
		f := float64(lv)
		if f == math.Trunc(f) && math.Abs(f) < 1<<62 {
			return world.Int(int64(f)), nil
		}
		return world.Float(f), nil
	case lua.LString:
		return world.Bytes(lv), nil
	case *lua.LTable:
		if ev := lv.RawGetString("entity"); ev != lua.LNil {
			n, ok := ev.(lua.LNumber)
			if !ok {
				return nil, fmt.Errorf("entity index must be a number")
			}
			if n < 0 {
				return world.EntityID{}, nil
			}
			return world.EntityIdx(uint32(n)), nil
		}
		if sv := lv.RawGetString("some"); sv != lua.LNil {
			inner, err := luaToValue(sv)
			if err != nil {
				return nil, err
			}
			return world.Maybe{Elem: inner}, nil
		}
		if lv.RawGetString("none") == lua.LTrue {
			return world.Maybe{}, nil
		}
		var arr world.Array
		for i := 1; ; i++ {
			elem := lv.RawGetInt(i)
			if elem == lua.LNil {
				break
			}
			v, err := luaToValue(elem)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if arr == nil {
			arr = world.Array{}
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("cannot store %s in a component field", lv.Type().String())
	}
}
