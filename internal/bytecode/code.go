package bytecode

import (
	"sort"

	"mtots/internal/symbol"
)

// Unbound is the sentinel value LoadVar/LoadDeref find in a cell or
// local slot after `del name` has run: any subsequent read of that name
// is a NameError, the same as never having been assigned, rather than
// silently observing whatever value happened to remain.
type Unbound struct{}

// Kind distinguishes the three flavors of Code object (§4.3): a Module's
// top level, an ordinary Function, or a Generator (whose invocation
// suspends instead of running the body).
type Kind int

const (
	KindModule Kind = iota
	KindFunction
	KindGenerator
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindFunction:
		return "function"
	case KindGenerator:
		return "generator"
	default:
		return "unknown"
	}
}

// Instruction is one decoded opcode plus its positional arguments, in the
// order ArgTypes(Op) lists them. The builder in internal/scope emits a
// []Instruction directly rather than a packed byte stream — there is no
// need to optimize instruction density for a tree-walking bytecode VM,
// and keeping arguments as named int32s makes the disassembler and the
// line-number-table construction far simpler than bit-packing would.
type Instruction struct {
	Op   OpCode
	Args [2]int32 // unused trailing slots are zero; see ArgTypes(Op) for how many are live
}

// ParameterInfo describes a function signature (§4.3): ordered required
// names, ordered (name, default-constant-index) optionals, an optional
// variadic parameter name, and an optional keyword-dict parameter name.
// A zero value (nil Variadic/Kwargs) means "no variadic"/"no kwargs dict".
type ParameterInfo struct {
	Required []symbol.Symbol
	Optional []OptionalParam
	Variadic *symbol.Symbol
	Kwargs   *symbol.Symbol
}

// OptionalParam pairs a parameter name with the constant-pool index of
// its default value expression's pre-evaluated constant.
type OptionalParam struct {
	Name         symbol.Symbol
	DefaultConst int
}

// Arity reports the minimum and maximum number of positional arguments
// this signature accepts without the variadic catch-all; Max is -1 if
// Variadic is set (unbounded).
func (p *ParameterInfo) Arity() (min, max int) {
	min = len(p.Required)
	if p.Variadic != nil {
		return min, -1
	}
	return min, min + len(p.Optional)
}

// ArgMap is the precomputed argument-binding plan for a call site or
// signature (§4.5): for each formal parameter, where its value comes
// from when a call is made. The binder in internal/vm consults this
// instead of re-deriving the binding algorithm on every call.
type ArgMap struct {
	// PositionalSlots[i] is the local slot the i-th required/optional
	// parameter (in declaration order) is stored in.
	PositionalSlots []int
	// VariadicSlot is the local slot the variadic catch-all List is
	// stored in, or -1 if this signature has none.
	VariadicSlot int
	// KwargsSlot is the local slot the keyword catch-all Map is stored
	// in, or -1 if this signature has none.
	KwargsSlot int
}

// LineEntry is one (code_offset, lineno) pair in a Code's line-number
// table (§4.3's lnotab).
type LineEntry struct {
	Offset int
	Line   int
}

// LineTable is a sorted-by-offset lnotab supporting the find_lineno
// lookup from §4.3: the greatest lineno whose entry offset is <= a given
// instruction offset.
type LineTable []LineEntry

// Find returns the line number in effect at instruction offset off, i.e.
// the Line of the entry with the greatest Offset <= off. Panics if the
// table is empty, which would indicate a code object built without ever
// recording a line.
func (lt LineTable) Find(off int) int {
	i := sort.Search(len(lt), func(i int) bool { return lt[i].Offset > off })
	return lt[i-1].Line
}

// Code is the immutable artifact the scope-analysing code builder
// produces and the step loop executes (§3, §4.3). The order of Locals,
// Freevars, and OwnedCells fixes the slot indices the VM's Frame uses for
// LoadLocal/LoadDeref/StoreDeref.
type Code struct {
	Kind Kind

	Instructions []Instruction
	Constants    []interface{} // resolved at code-build time: literal values, or *Code for nested MakeFunction targets
	ChildCodes   []*Code
	Names        []symbol.Symbol // interned attribute/global/import names referenced by NameIndex args

	Locals     []symbol.Symbol
	Freevars   []symbol.Symbol
	OwnedCells []symbol.Symbol

	Params ParameterInfo
	Args   ArgMap

	ModuleName string
	FullName   string // e.g. "pkg.mod.ClassName.method"
	ShortName  string // e.g. "method"

	StartLine int
	Lines     LineTable
	Doc       string
}

// LocalSlot returns the slot index of name among Locals, or -1.
func (c *Code) LocalSlot(name symbol.Symbol) int {
	for i, n := range c.Locals {
		if n.ID() == name.ID() {
			return i
		}
	}
	return -1
}

// CellSlot returns the slot index of name among the concatenation of
// Freevars followed by OwnedCells (the VM's single cellvars array), or
// -1. Freevars come first so a child code's closure-binding list (built
// from the parent's matching cell slots) and the parent's own owned-cell
// slots never collide.
func (c *Code) CellSlot(name symbol.Symbol) int {
	for i, n := range c.Freevars {
		if n.ID() == name.ID() {
			return i
		}
	}
	for i, n := range c.OwnedCells {
		if n.ID() == name.ID() {
			return len(c.Freevars) + i
		}
	}
	return -1
}

// NumCells is the total size the Frame must allocate for its cellvars
// array.
func (c *Code) NumCells() int { return len(c.Freevars) + len(c.OwnedCells) }

// IsGenerator reports whether invoking this code produces a suspended
// Generator rather than running the body immediately.
func (c *Code) IsGenerator() bool { return c.Kind == KindGenerator }
