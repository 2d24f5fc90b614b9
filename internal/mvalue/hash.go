package mvalue

import (
	"math"

	"golang.org/x/crypto/blake2b"
)

// hashBytes folds a byte string to a uint64 with blake2b rather than
// stdlib hash/fnv: String/Bytes values frequently come from untrusted
// script input used as Map/Set keys, and blake2b gives seedless
// collision resistance the open-addressed table can lean on without
// adding a dependency beyond what the pack already carries
// (golang.org/x/crypto, pulled in transitively elsewhere in the pack).
func hashBytes(b []byte) uint64 {
	sum := blake2b.Sum256(b)
	var h uint64
	for i := 0; i < 8; i++ {
		h = h<<8 | uint64(sum[i])
	}
	return h
}

// hashInt64 is the canonical hash for an exact integer value, shared by
// both the Int variant and any Float that happens to be integral-valued,
// which is what makes hash(Int(1)) == hash(Float(1.0)) hold.
func hashInt64(n int64) uint64 {
	u := uint64(n)
	u ^= u >> 33
	u *= 0xff51afd7ed558ccd
	u ^= u >> 33
	u *= 0xc4ceb9fe1a85ec53
	u ^= u >> 33
	return u
}

// HashPrimitive computes the hash of a Value that is one of the
// primitive, always-hashable variants (Nil, Bool, Int, Float, Symbol,
// String, Bytes, Path) plus the structurally-hashable immutable
// containers (List, Table) whose elements are themselves primitive or
// structurally hashable. It never calls back into user code; ok is false
// for any variant that requires the failable, Globals-threaded path
// (Set/Map keys, UserObject with a custom __hash) — callers fall back to
// EqHasher.Hash for those.
func HashPrimitive(v Value) (uint64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, true
	case bool:
		if x {
			return hashInt64(1), true
		}
		return hashInt64(0), true
	case int64:
		return hashInt64(x), true
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return hashInt64(int64(x)), true
		}
		return hashBytes([]byte{
			byte(math.Float64bits(x)), byte(math.Float64bits(x) >> 8),
			byte(math.Float64bits(x) >> 16), byte(math.Float64bits(x) >> 24),
			byte(math.Float64bits(x) >> 32), byte(math.Float64bits(x) >> 40),
			byte(math.Float64bits(x) >> 48), byte(math.Float64bits(x) >> 56),
		}), true
	case Symbol:
		return hashInt64(int64(x.ID())), true
	case string:
		return hashBytes([]byte(x)), true
	case Bytes:
		return hashBytes(x), true
	case Path:
		return hashBytes([]byte(x)), true
	case *List:
		h := uint64(17)
		for _, item := range x.Items {
			sub, ok := HashPrimitive(item)
			if !ok {
				return 0, false
			}
			h = h*31 + sub
		}
		return h, true
	case *Table:
		h := uint64(19)
		for _, k := range x.order {
			sub, ok := HashPrimitive(x.fields[k])
			if !ok {
				return 0, false
			}
			h = h*31 + hashInt64(int64(k.ID())) + sub
		}
		return h, true
	default:
		return 0, false
	}
}
