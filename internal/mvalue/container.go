package mvalue

import "mtots/internal/symbol"

// List is the immutable shared List variant.
type List struct {
	Items []Value
}

func NewList(items []Value) *List { return &List{Items: items} }

// MutableList is the mutable-shared counterpart. version is bumped on
// every structural mutation so a live iterator (GetIter/ForIter) can
// detect "mutated while iterating" and raise instead of silently
// corrupting state, per §5.
type MutableList struct {
	Items   []Value
	version uint64
}

func NewMutableList(items []Value) *MutableList { return &MutableList{Items: items} }

func (l *MutableList) Version() uint64 { return l.version }
func (l *MutableList) touch()          { l.version++ }

func (l *MutableList) Append(v Value) { l.Items = append(l.Items, v); l.touch() }

func (l *MutableList) Pop() (Value, bool) {
	if len(l.Items) == 0 {
		return nil, false
	}
	v := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	l.touch()
	return v, true
}

// Set is the immutable shared Set variant, backed by the custom
// open-addressed HashMap (values are ignored; presence is all that
// matters).
type Set struct {
	m *HashMap
}

func NewSet(hasher EqHasher, items []Value) (*Set, error) {
	m := NewHashMap(hasher)
	for _, it := range items {
		if err := m.Set(it, true); err != nil {
			return nil, err
		}
	}
	return &Set{m: m}, nil
}

func (s *Set) Len() int         { return s.m.Len() }
func (s *Set) Contains(v Value) (bool, error) {
	_, ok, err := s.m.Get(v)
	return ok, err
}
func (s *Set) Items() []Value {
	entries := s.m.Entries()
	out := make([]Value, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

// MutableSet is the mutable-shared counterpart.
type MutableSet struct {
	m       *HashMap
	version uint64
}

func NewMutableSet(hasher EqHasher, items []Value) (*MutableSet, error) {
	m := NewHashMap(hasher)
	s := &MutableSet{m: m}
	for _, it := range items {
		if err := m.Set(it, true); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MutableSet) Version() uint64 { return s.version }
func (s *MutableSet) Add(v Value) error {
	if err := s.m.Set(v, true); err != nil {
		return err
	}
	s.version++
	return nil
}
func (s *MutableSet) Remove(v Value) (bool, error) {
	ok, err := s.m.Delete(v)
	if err != nil {
		return false, err
	}
	if ok {
		s.version++
	}
	return ok, nil
}
func (s *MutableSet) Len() int { return s.m.Len() }
func (s *MutableSet) Contains(v Value) (bool, error) {
	_, ok, err := s.m.Get(v)
	return ok, err
}
func (s *MutableSet) Items() []Value {
	entries := s.m.Entries()
	out := make([]Value, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

// Map is the immutable shared Map variant.
type Map struct {
	m *HashMap
}

func NewMap(hasher EqHasher, keys, values []Value) (*Map, error) {
	hm := NewHashMap(hasher)
	for i, k := range keys {
		if err := hm.Set(k, values[i]); err != nil {
			return nil, err
		}
	}
	return &Map{m: hm}, nil
}

func (m *Map) Len() int                       { return m.m.Len() }
func (m *Map) Get(k Value) (Value, bool, error) { return m.m.Get(k) }
func (m *Map) Entries() []Entry               { return m.m.Entries() }

// MutableMap is the mutable-shared counterpart.
type MutableMap struct {
	m       *HashMap
	version uint64
}

func NewMutableMap(hasher EqHasher, keys, values []Value) (*MutableMap, error) {
	hm := NewHashMap(hasher)
	mm := &MutableMap{m: hm}
	for i, k := range keys {
		if err := hm.Set(k, values[i]); err != nil {
			return nil, err
		}
	}
	return mm, nil
}

func (m *MutableMap) Version() uint64 { return m.version }
func (m *MutableMap) Set(k, v Value) error {
	if err := m.m.Set(k, v); err != nil {
		return err
	}
	m.version++
	return nil
}
func (m *MutableMap) Delete(k Value) (bool, error) {
	ok, err := m.m.Delete(k)
	if err != nil {
		return false, err
	}
	if ok {
		m.version++
	}
	return ok, nil
}
func (m *MutableMap) Get(k Value) (Value, bool, error) { return m.m.Get(k) }
func (m *MutableMap) Len() int                         { return m.m.Len() }
func (m *MutableMap) Entries() []Entry                 { return m.m.Entries() }

// Table is the symbol-keyed record variant: an ordered, fixed-shape
// collection of symbol -> value bindings (no custom hashing needed since
// symbol equality is just an integer compare).
type Table struct {
	fields map[symbol.Symbol]Value
	order  []symbol.Symbol
}

func NewTable(keys []symbol.Symbol, values []Value) *Table {
	t := &Table{fields: make(map[symbol.Symbol]Value, len(keys)), order: append([]symbol.Symbol(nil), keys...)}
	for i, k := range keys {
		t.fields[k] = values[i]
	}
	return t
}

func (t *Table) Get(name symbol.Symbol) (Value, bool) {
	v, ok := t.fields[name]
	return v, ok
}

func (t *Table) Keys() []symbol.Symbol { return t.order }

func (t *Table) Len() int { return len(t.order) }
