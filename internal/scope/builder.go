package scope

import (
	"fmt"

	"mtots/internal/bytecode"
	"mtots/internal/symbol"
)

// Params is what the AST compiler hands Build for a signature: the
// ordered parameter names destined for ParameterInfo (defaults/variadic/
// kwargs are resolved by the caller into bytecode.ParameterInfo directly
// since Build only needs the names to seed pass 1's "parameters are
// considered written" rule).
type Params struct {
	Info bytecode.ParameterInfo
}

// allNames returns every parameter name in declaration order: required,
// then optional, then variadic, then kwargs.
func (p Params) allNames() []symbol.Symbol {
	var out []symbol.Symbol
	out = append(out, p.Info.Required...)
	for _, o := range p.Info.Optional {
		out = append(out, o.Name)
	}
	if p.Info.Variadic != nil {
		out = append(out, *p.Info.Variadic)
	}
	if p.Info.Kwargs != nil {
		out = append(out, *p.Info.Kwargs)
	}
	return out
}

// Input bundles everything Build needs: the pseudo-op stream, the
// parameter descriptor, the already-built child code objects this
// stream's MakeFunction ops reference by index, and naming metadata.
type Input struct {
	Kind       bytecode.Kind
	Params     Params
	Ops        []Op
	ChildCodes []*bytecode.Code

	ModuleName string
	FullName   string
	ShortName  string
	StartLine  int
	Doc        string
}

// ScopeError reports a name/label resolution failure discovered while
// building a Code object — always a bug in the emitting compiler, never
// a user-reachable condition (an ordinary unbound name is deferred to
// frame construction and raises NameError there, per §4.2).
type ScopeError struct {
	msg string
}

func (e *ScopeError) Error() string { return e.msg }

// Build runs the three-pass scope analysis and code generation described
// in §4.2: name discovery, local/free/owned-cell classification (with
// module-promotes-everything-to-owned-cell), then lowering to concrete,
// slot-indexed instructions with label and constant resolution.
func Build(in Input) (*bytecode.Code, error) {
	b := &builder{in: in}
	b.pass1()
	b.pass2()
	code, err := b.pass3()
	if err != nil {
		return nil, err
	}
	return code, nil
}

type builder struct {
	in Input

	allvars      []symbol.Symbol
	allvarsSeen  map[uint32]bool
	assigned     map[uint32]bool
	innerFreevar map[uint32]bool
	nonlocal     map[uint32]bool

	locals     []symbol.Symbol
	freevars   []symbol.Symbol
	ownedCells []symbol.Symbol
	localSlot  map[uint32]int
	cellSlot   map[uint32]int
}

func (b *builder) see(name symbol.Symbol) {
	if b.allvarsSeen[name.ID()] {
		return
	}
	b.allvarsSeen[name.ID()] = true
	b.allvars = append(b.allvars, name)
}

// pass1 performs name discovery: a single walk of the op stream
// classifying each variable-referencing pseudo-op per §4.2 pass 1.
func (b *builder) pass1() {
	b.allvarsSeen = make(map[uint32]bool)
	b.assigned = make(map[uint32]bool)
	b.innerFreevar = make(map[uint32]bool)
	b.nonlocal = make(map[uint32]bool)

	for _, p := range b.in.Params.allNames() {
		b.see(p)
		b.assigned[p.ID()] = true
	}

	for _, op := range b.in.Ops {
		switch op.Kind {
		case KindStoreVar:
			b.see(op.Name)
			b.assigned[op.Name.ID()] = true
		case KindLoadVar:
			b.see(op.Name)
		case KindLoadCell:
			b.see(op.Name)
			b.innerFreevar[op.Name.ID()] = true
		case KindNonlocal:
			b.see(op.Name)
			b.nonlocal[op.Name.ID()] = true
		}
	}
}

// pass2 classifies every name in allvars into locals, freevars, or
// owned-cells, and assigns dense slot indices — locals in their own
// namespace, freevars then owned-cells sharing the cell namespace, per
// §4.2 pass 2.
func (b *builder) pass2() {
	b.localSlot = make(map[uint32]int)
	b.cellSlot = make(map[uint32]int)

	for _, name := range b.allvars {
		id := name.ID()
		switch {
		case b.assigned[id] && !b.nonlocal[id] && b.innerFreevar[id]:
			b.ownedCells = append(b.ownedCells, name)
		case b.assigned[id] && !b.nonlocal[id]:
			b.locals = append(b.locals, name)
		default:
			b.freevars = append(b.freevars, name)
		}
	}

	if b.in.Kind == bytecode.KindModule {
		b.ownedCells = append(b.ownedCells, b.locals...)
		b.locals = nil
	}

	for i, name := range b.locals {
		b.localSlot[name.ID()] = i
	}
	for i, name := range b.freevars {
		b.cellSlot[name.ID()] = i
	}
	for i, name := range b.ownedCells {
		b.cellSlot[name.ID()] = len(b.freevars) + i
	}
}

// pass3 lowers the op stream to concrete instructions: resolving label
// references via a two-sub-pass labelmap/fixup scheme, deduplicating
// constants by a hashable projection, and building the line-number
// table.
func (b *builder) pass3() (*bytecode.Code, error) {
	var (
		instrs    []bytecode.Instruction
		names     []symbol.Symbol
		nameIndex = make(map[uint32]int)
		consts    []interface{}
		constKey  = make(map[interface{}]int)
		lines     bytecode.LineTable
		labelmap  = make(map[Label]int)
		fixups    []fixup
	)

	nameIdx := func(s symbol.Symbol) int {
		if i, ok := nameIndex[s.ID()]; ok {
			return i
		}
		i := len(names)
		names = append(names, s)
		nameIndex[s.ID()] = i
		return i
	}

	constIdx := func(v interface{}) int {
		if key, hashable := constDedupKey(v); hashable {
			if i, ok := constKey[key]; ok {
				return i
			}
			i := len(consts)
			consts = append(consts, v)
			constKey[key] = i
			return i
		}
		consts = append(consts, v)
		return len(consts) - 1
	}

	emit := func(op bytecode.OpCode, args ...int32) int {
		var a [2]int32
		copy(a[:], args)
		instrs = append(instrs, bytecode.Instruction{Op: op, Args: a})
		return len(instrs) - 1
	}

	resolveVar := func(name symbol.Symbol, loadOp, derefLoadOp bytecode.OpCode) (bytecode.OpCode, int32, error) {
		if slot, ok := b.localSlot[name.ID()]; ok {
			return loadOp, int32(slot), nil
		}
		if slot, ok := b.cellSlot[name.ID()]; ok {
			return derefLoadOp, int32(slot), nil
		}
		return 0, 0, &ScopeError{msg: fmt.Sprintf("scope: name %q was not classified by pass 2", name.String())}
	}

	for _, op := range b.in.Ops {
		switch op.Kind {
		case KindLineNumber:
			lines = append(lines, bytecode.LineEntry{Offset: len(instrs), Line: op.Line})

		case KindLabelDef:
			labelmap[op.Label] = len(instrs)

		case KindLoadConst:
			emit(bytecode.OpLoadConst, int32(constIdx(op.Const)))

		case KindLoadVar:
			concreteOp, slot, err := resolveVar(op.Name, bytecode.OpLoadLocal, bytecode.OpLoadDeref)
			if err != nil {
				return nil, err
			}
			emit(concreteOp, slot)

		case KindStoreVar:
			concreteOp, slot, err := resolveVar(op.Name, bytecode.OpStoreLocal, bytecode.OpStoreDeref)
			if err != nil {
				return nil, err
			}
			emit(concreteOp, slot)

		case KindLoadCell:
			slot, ok := b.cellSlot[op.Name.ID()]
			if !ok {
				return nil, &ScopeError{msg: fmt.Sprintf("scope: LoadCell(%q) has no cell slot in enclosing scope", op.Name.String())}
			}
			emit(bytecode.OpLoadCell, int32(slot))

		case KindNonlocal:
			// Declares intent only; pass 1/2 already used it. No instruction.

		case KindJump, KindPopJumpIfTrue, KindPopJumpIfFalse, KindJumpIfTrueOrPop, KindJumpIfFalseOrPop, KindForIter, KindPushHandler:
			concreteOp := jumpOpcode(op.Kind)
			idx := emit(concreteOp, 0)
			fixups = append(fixups, fixup{instrIndex: idx, label: op.Label})

		case KindNameOp:
			emit(op.Op, int32(nameIdx(op.Name)))

		case KindMakeClass:
			isTrait := int32(0)
			if op.IsTrait {
				isTrait = 1
			}
			emit(bytecode.OpMakeClass, int32(nameIdx(op.Name)), isTrait)

		case KindImport:
			emit(bytecode.OpImport, int32(op.Line), int32(nameIdx(op.Name)))

		case KindMakeFunction:
			if op.ChildIndex < 0 || op.ChildIndex >= len(b.in.ChildCodes) {
				return nil, &ScopeError{msg: fmt.Sprintf("scope: MakeFunction child index %d out of range", op.ChildIndex)}
			}
			emit(bytecode.OpMakeFunction, int32(op.ChildIndex))

		case KindCallFunction:
			emit(bytecode.OpCallFunction, int32(op.Line), op.Count)

		case KindLined:
			emit(op.Op, int32(op.Line))

		case KindCounted:
			emit(op.Op, op.Count)

		case KindPlain:
			emit(op.Op)
		}
	}

	for _, fx := range fixups {
		target, ok := labelmap[fx.label]
		if !ok {
			return nil, &ScopeError{msg: fmt.Sprintf("scope: unresolved label %d", fx.label)}
		}
		instrs[fx.instrIndex].Args[0] = int32(target)
	}

	if len(lines) == 0 {
		lines = bytecode.LineTable{{Offset: 0, Line: b.in.StartLine}}
	}

	return &bytecode.Code{
		Kind:         b.in.Kind,
		Instructions: instrs,
		Constants:    consts,
		ChildCodes:   b.in.ChildCodes,
		Names:        names,
		Locals:       b.locals,
		Freevars:     b.freevars,
		OwnedCells:   b.ownedCells,
		Params:       b.in.Params.Info,
		Args:         buildArgMap(b.in.Params.Info, b.localSlot),
		ModuleName:   b.in.ModuleName,
		FullName:     b.in.FullName,
		ShortName:    b.in.ShortName,
		StartLine:    b.in.StartLine,
		Lines:        lines,
		Doc:          b.in.Doc,
	}, nil
}

type fixup struct {
	instrIndex int
	label      Label
}

func jumpOpcode(k Kind) bytecode.OpCode {
	switch k {
	case KindJump:
		return bytecode.OpJump
	case KindPopJumpIfTrue:
		return bytecode.OpPopJumpIfTrue
	case KindPopJumpIfFalse:
		return bytecode.OpPopJumpIfFalse
	case KindJumpIfTrueOrPop:
		return bytecode.OpJumpIfTrueOrPop
	case KindJumpIfFalseOrPop:
		return bytecode.OpJumpIfFalseOrPop
	case KindForIter:
		return bytecode.OpForIter
	case KindPushHandler:
		return bytecode.OpPushHandler
	default:
		panic("scope: not a jump kind")
	}
}

// constDedupKey returns a hashable projection of v suitable as a Go map
// key, and whether v is hashable at all (containers like *List/*Map are
// never emitted as LoadConst targets by a well-formed compiler, but
// Build degrades gracefully rather than panicking if one shows up).
func constDedupKey(v interface{}) (interface{}, bool) {
	switch v.(type) {
	case nil, bool, int64, float64, string, symbol.Symbol:
		return v, true
	case *bytecode.Code:
		return nil, false
	default:
		return nil, false
	}
}

// buildArgMap computes the precomputed argument-binding plan (§4.5) from
// the parameter descriptor and the local-slot assignment pass 2 already
// produced: required and optional parameters occupy their local slots in
// declaration order, and the variadic/kwargs catch-alls (if present)
// occupy theirs.
func buildArgMap(p bytecode.ParameterInfo, localSlot map[uint32]int) bytecode.ArgMap {
	am := bytecode.ArgMap{VariadicSlot: -1, KwargsSlot: -1}
	for _, r := range p.Required {
		am.PositionalSlots = append(am.PositionalSlots, localSlot[r.ID()])
	}
	for _, o := range p.Optional {
		am.PositionalSlots = append(am.PositionalSlots, localSlot[o.Name.ID()])
	}
	if p.Variadic != nil {
		am.VariadicSlot = localSlot[p.Variadic.ID()]
	}
	if p.Kwargs != nil {
		am.KwargsSlot = localSlot[p.Kwargs.ID()]
	}
	return am
}
