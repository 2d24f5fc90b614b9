// Package mvalue implements the runtime value model: the tagged-union
// Value, reference-counted-by-convention heap cells, class objects, and
// the taxonomy of exception kinds. It sits at the bottom of the pipeline
// (see the dependency table in SPEC_FULL.md) and is imported by
// internal/vm, internal/module and internal/globals, but imports none of
// them — higher-level Value variants (Function, Generator, Module,
// NativeFunction) implement
// the Classified interface declared here instead of being referenced by
// concrete type, which is what keeps this package leaf-level.
package mvalue

import "mtots/internal/symbol"

// Value is the universal runtime value type. It is intentionally just
// interface{}: the variants are plain Go values (nil, bool, int64,
// float64, symbol.Symbol, string) for immediates, and pointers to the
// struct types below for everything shared (mutable or not). Equality and
// identity semantics are implemented by StructuralEqual/Is in equality.go, not by
// Go's own == on the interface, since Go's == on differing dynamic types
// for some variants (e.g. two *List pointers with equal contents) does
// not match the language's structural-equality contract.
type Value = interface{}

// Uninitialized is the distinguished "hole" value used to pre-fill
// owned-cell slots before a Store has run, and local slots for
// not-yet-executed `let` bindings in strict-scoping positions. Observing
// it through any user-facing read path (LoadLocal, LoadDeref, LoadCell
// before a bind) is a runtime error: the step loop raises NameError
// rather than ever letting this escape to user code.
type UninitializedType struct{}

// Uninitialized is the single instance of UninitializedType.
var Uninitialized = UninitializedType{}

// Classified is implemented by every Value variant whose class is not one
// of the fixed primitive/container kinds handled directly by ClassOf —
// notably Code, Function, Generator, Module and NativeFunction, which are
// defined in higher packages (internal/bytecode, internal/vm,
// internal/module) precisely so this package never needs to import them.
type Classified interface {
	ClassOf() *Class
}

// Symbol re-exports symbol.Symbol under the value model's vocabulary so
// callers working purely in terms of mvalue don't also need to import
// internal/symbol for the common case of boxing/unboxing a Symbol value.
type Symbol = symbol.Symbol

// Bytes is the immutable Bytes variant: a byte string distinct from
// String, with its own class and its own (byte-order) comparison.
type Bytes []byte

// Path is the immutable Path variant, a filesystem path value distinct
// from String so native path-manipulation builtins can dispatch on it.
type Path string

// MutableString is the mutable-shared counterpart of the immutable string
// variant. Represented as a pointer so two bindings to the same
// MutableString observe each other's mutations, per the mutable-shared
// variant group in the data model.
type MutableString struct {
	Value string
}

// MutableBytes is the mutable-shared counterpart of Bytes.
type MutableBytes struct {
	Value []byte
}

// IsUninitialized reports whether v is the distinguished hole value.
func IsUninitialized(v Value) bool {
	_, ok := v.(UninitializedType)
	return ok
}

// IsNil reports whether v is the Nil variant. Go's untyped nil is used
// directly for Nil rather than a wrapper struct, since every Value
// variant other than Nil is either a non-nil-able immediate or a
// non-nil pointer/slice/map once constructed.
func IsNil(v Value) bool { return v == nil }

// Truthy implements the language's notion of which values count as false
// in a boolean context: nil, false, the integer/float zero, and empty
// strings/bytes/containers. Everything else is truthy.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case Bytes:
		return len(x) != 0
	case *MutableString:
		return x.Value != ""
	case *List:
		return len(x.Items) != 0
	case *MutableList:
		return len(x.Items) != 0
	case *Map:
		return x.m.Len() != 0
	case *MutableMap:
		return x.m.Len() != 0
	case *Set:
		return x.m.Len() != 0
	case *MutableSet:
		return x.m.Len() != 0
	case *Table:
		return len(x.order) != 0
	default:
		return true
	}
}

// TypeName returns a short, stable, user-facing name for v's variant —
// used by error messages (ExpectedTypeError, OperandTypeError) and the
// disassembler's constant annotations.
func TypeName(v Value) string {
	switch x := v.(type) {
	case nil:
		return "Nil"
	case bool:
		return "Bool"
	case int64:
		return "Int"
	case float64:
		return "Float"
	case Symbol:
		return "Symbol"
	case string:
		return "String"
	case Bytes:
		return "Bytes"
	case Path:
		return "Path"
	case *MutableString:
		return "MutableString"
	case *MutableBytes:
		return "MutableBytes"
	case *List:
		return "List"
	case *MutableList:
		return "MutableList"
	case *Set:
		return "Set"
	case *MutableSet:
		return "MutableSet"
	case *Map:
		return "Map"
	case *MutableMap:
		return "MutableMap"
	case *Table:
		return "Table"
	case *UserObject:
		return x.Class.ShortName
	case *MutableUserObject:
		return x.Class.ShortName
	case *Exception:
		return x.Kind.Name
	case *ExceptionKind:
		return "ExceptionKind"
	case *Class:
		return "Class"
	case *Cell:
		return "Cell"
	case UninitializedType:
		return "Uninitialized"
	case Classified:
		return x.ClassOf().ShortName
	default:
		return "Unknown"
	}
}
