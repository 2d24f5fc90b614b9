package mvalue

// HashMap is the bespoke open-addressed table backing Set and Map. A
// standard library map keyed on a Go comparable type is insufficient
// here: user-defined __eq/__hash can raise or re-enter the interpreter,
// so every probe must thread a failable EqHasher through instead of
// relying on Go's built-in ==/hash (§9 "Failable containers"). The table
// preserves insertion order (iteration order == insertion order, modulo
// deletions), uses tombstones on delete so probe chains stay intact, and
// resizes once the load factor would exceed 2/3.
type HashMap struct {
	hasher  EqHasher
	slots   []slot
	order   []int // indices into slots, in insertion order; Delete removes an entry's index
	count   int
	tomb    int
	version uint64 // bumped on every mutation; iterators snapshot it to detect concurrent mutation
}

type slotState byte

const (
	slotEmpty slotState = iota
	slotFull
	slotTomb
)

type slot struct {
	state slotState
	hash  uint64
	key   Value
	value Value
}

// Entry is one live key/value pair, returned by Entries() in insertion
// order.
type Entry struct {
	Key   Value
	Value Value
}

// NewHashMap builds an empty table using hasher for all key operations.
func NewHashMap(hasher EqHasher) *HashMap {
	return &HashMap{hasher: hasher, slots: make([]slot, 8)}
}

func (m *HashMap) Len() int { return m.count }

// Version returns the current change counter; a live iterator snapshots
// this and must raise rather than continue if it ever disagrees with a
// fresh call to Version (the "iterator over a mutated container" guard
// from §5).
func (m *HashMap) Version() uint64 { return m.version }

func (m *HashMap) probe(hash uint64, key Value) (idx int, found bool, err error) {
	mask := uint64(len(m.slots) - 1)
	i := hash & mask
	firstTomb := -1
	for probed := 0; probed < len(m.slots); probed++ {
		s := &m.slots[i]
		switch s.state {
		case slotEmpty:
			if firstTomb >= 0 {
				return firstTomb, false, nil
			}
			return int(i), false, nil
		case slotTomb:
			if firstTomb < 0 {
				firstTomb = int(i)
			}
		case slotFull:
			if s.hash == hash {
				eq, err := m.hasher.Eq(s.key, key)
				if err != nil {
					return 0, false, err
				}
				if eq {
					return int(i), true, nil
				}
			}
		}
		i = (i + 1) & mask
	}
	if firstTomb >= 0 {
		return firstTomb, false, nil
	}
	return -1, false, nil
}

// Get looks up key, threading the registered EqHasher for hash/eq.
func (m *HashMap) Get(key Value) (Value, bool, error) {
	hash, err := m.hasher.Hash(key)
	if err != nil {
		return nil, false, err
	}
	idx, found, err := m.probe(hash, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return m.slots[idx].value, true, nil
}

// getStructural is a non-failable lookup used by equality.go when
// comparing two maps built with a DefaultEqHasher-compatible key space
// (i.e. never raises); it degrades to "not found" on any hash error
// rather than propagating, since equality comparison has no channel to
// surface it through.
func (m *HashMap) getStructural(key Value) (Value, bool) {
	v, ok, err := m.Get(key)
	if err != nil {
		return nil, false
	}
	return v, ok
}

// Set inserts or overwrites key -> value, resizing first if the load
// factor would exceed 2/3.
func (m *HashMap) Set(key, value Value) error {
	if (m.count+m.tomb+1)*3 >= len(m.slots)*2 {
		if err := m.resize(len(m.slots) * 2); err != nil {
			return err
		}
	}
	hash, err := m.hasher.Hash(key)
	if err != nil {
		return err
	}
	idx, found, err := m.probe(hash, key)
	if err != nil {
		return err
	}
	if found {
		m.slots[idx].value = value
		m.version++
		return nil
	}
	if m.slots[idx].state == slotTomb {
		m.tomb--
	}
	m.slots[idx] = slot{state: slotFull, hash: hash, key: key, value: value}
	m.order = append(m.order, idx)
	m.count++
	m.version++
	return nil
}

// Delete removes key if present, leaving a tombstone so other probe
// chains through this slot remain valid.
func (m *HashMap) Delete(key Value) (bool, error) {
	hash, err := m.hasher.Hash(key)
	if err != nil {
		return false, err
	}
	idx, found, err := m.probe(hash, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	m.slots[idx] = slot{state: slotTomb}
	m.count--
	m.tomb++
	m.version++
	for i, oi := range m.order {
		if oi == idx {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *HashMap) resize(newCap int) error {
	old := m.slots
	oldOrder := append([]int(nil), m.order...)
	m.slots = make([]slot, newCap)
	m.order = m.order[:0]
	m.count = 0
	m.tomb = 0
	for _, oi := range oldOrder {
		s := old[oi]
		if s.state != slotFull {
			continue
		}
		idx, _, err := m.probe(s.hash, s.key)
		if err != nil {
			return err
		}
		m.slots[idx] = slot{state: slotFull, hash: s.hash, key: s.key, value: s.value}
		m.order = append(m.order, idx)
		m.count++
	}
	return nil
}

// Entries returns the live entries in insertion order. Deleted slots
// (tombstones) are skipped by walking `order` and checking liveness.
func (m *HashMap) Entries() []Entry {
	out := make([]Entry, 0, m.count)
	for _, idx := range m.order {
		s := m.slots[idx]
		if s.state == slotFull {
			out = append(out, Entry{Key: s.key, Value: s.value})
		}
	}
	return out
}
