// Package scope implements the scope analyser & code builder: the stage
// between the AST compiler (internal/compiler, which emits a stream of
// pseudo-opcodes referencing variables by name) and a finished
// bytecode.Code with concrete, slot-indexed instructions.
package scope

import (
	"mtots/internal/bytecode"
	"mtots/internal/symbol"
)

// Label is an opaque jump target used only within a single pseudo-op
// stream; Build() resolves every Label to a concrete instruction offset
// and discards it.
type Label int

// Kind discriminates the pseudo-op variants. The four name-sensitive
// kinds (StoreVar, LoadVar, LoadCell, Nonlocal) are exactly the ones pass
// 1 inspects; everything else passes through pass 3 largely unchanged,
// modulo label and constant resolution.
type Kind int

const (
	// KindStoreVar writes Name in the current scope.
	KindStoreVar Kind = iota
	// KindLoadVar reads Name in the current scope.
	KindLoadVar
	// KindLoadCell is emitted by a nested scope's compilation, in the
	// *enclosing* scope's op stream, to fetch the Cell for Name so it can
	// be bound into a child function's closure list.
	KindLoadCell
	// KindNonlocal declares Name as bound in an enclosing scope.
	KindNonlocal
	// KindLineNumber records the source line current as of this point in
	// the stream, for lnotab construction; it emits no instruction.
	KindLineNumber
	// KindLabelDef marks Label's position; it emits no instruction.
	KindLabelDef
	// KindLoadConst pushes a constant value (deduplicated by Build).
	KindLoadConst
	// KindJump family: Target names a Label.
	KindJump
	KindPopJumpIfTrue
	KindPopJumpIfFalse
	KindJumpIfTrueOrPop
	KindJumpIfFalseOrPop
	KindForIter
	// KindPushHandler registers a try/catch handler whose entry point is
	// Target; resolved through the same label-fixup mechanism as the jump
	// family, but lowers to OpPushHandler rather than a control transfer.
	KindPushHandler
	// KindNameOp carries a concrete opcode whose sole argument is a
	// Names-table index: Op identifies which opcode, Name which
	// identifier (LoadAttribute, StoreAttribute, LoadStaticAttribute,
	// LoadMethod, MakeExceptionKind).
	KindNameOp
	// KindMakeClass carries the class's short name plus the isTrait flag.
	KindMakeClass
	// KindImport carries the current Line plus the dotted module Name.
	KindImport
	// KindMakeFunction references a child code object that was already
	// built (bottom-up) and appended to the enclosing Build call's
	// childCodes list.
	KindMakeFunction
	// KindCallFunction carries the current Line and the argument Count.
	KindCallFunction
	// KindLined carries a concrete opcode whose sole argument is the
	// current source line (the binary/unary arithmetic family, plus
	// CallFunctionGeneric/ExtendList/ExtendTable).
	KindLined
	// KindCounted carries a concrete opcode whose sole argument is an
	// integer Count (Unpack, MakeList, MakeTable, MakeMap,
	// MakeMutableList, MakeMutableMap).
	KindCounted
	// KindPlain carries a concrete opcode with no arguments (Pop,
	// RotTwo, PullTos2, PullTos3, DupTop, GetIter, Return, Yield,
	// Breakpoint, BinaryIs).
	KindPlain
)

// Op is one entry in the pseudo-opcode stream the AST compiler emits.
// Only the fields relevant to Kind are populated; the rest are zero.
type Op struct {
	Kind Kind

	Name  symbol.Symbol // StoreVar, LoadVar, LoadCell, Nonlocal, NameOp, Import
	Const interface{}   // LoadConst
	Label Label         // LabelDef, and the jump family's Target
	Line  int           // LineNumber, Import, CallFunction, Lined
	Count int32         // CallFunction (argc), Counted
	Op    bytecode.OpCode // NameOp, Lined, Counted, Plain

	ChildIndex int  // MakeFunction: index into the childCodes list passed to Build
	IsTrait    bool // MakeClass
}

func StoreVar(name symbol.Symbol) Op   { return Op{Kind: KindStoreVar, Name: name} }
func LoadVar(name symbol.Symbol) Op    { return Op{Kind: KindLoadVar, Name: name} }
func LoadCellOp(name symbol.Symbol) Op { return Op{Kind: KindLoadCell, Name: name} }
func Nonlocal(name symbol.Symbol) Op   { return Op{Kind: KindNonlocal, Name: name} }
func LineNumber(line int) Op           { return Op{Kind: KindLineNumber, Line: line} }
func LabelDef(l Label) Op              { return Op{Kind: KindLabelDef, Label: l} }
func LoadConst(v interface{}) Op       { return Op{Kind: KindLoadConst, Const: v} }

func Jump(target Label) Op             { return Op{Kind: KindJump, Label: target} }
func PopJumpIfTrue(target Label) Op    { return Op{Kind: KindPopJumpIfTrue, Label: target} }
func PopJumpIfFalse(target Label) Op   { return Op{Kind: KindPopJumpIfFalse, Label: target} }
func JumpIfTrueOrPop(target Label) Op  { return Op{Kind: KindJumpIfTrueOrPop, Label: target} }
func JumpIfFalseOrPop(target Label) Op { return Op{Kind: KindJumpIfFalseOrPop, Label: target} }
func ForIter(target Label) Op          { return Op{Kind: KindForIter, Label: target} }
func PushHandler(target Label) Op      { return Op{Kind: KindPushHandler, Label: target} }

func NameOp(op bytecode.OpCode, name symbol.Symbol) Op {
	return Op{Kind: KindNameOp, Op: op, Name: name}
}

func MakeClass(name symbol.Symbol, isTrait bool) Op {
	return Op{Kind: KindMakeClass, Name: name, IsTrait: isTrait}
}

func Import(line int, dotted symbol.Symbol) Op {
	return Op{Kind: KindImport, Line: line, Name: dotted}
}

func MakeFunction(childIndex int) Op {
	return Op{Kind: KindMakeFunction, ChildIndex: childIndex}
}

func CallFunction(line int, argc int32) Op {
	return Op{Kind: KindCallFunction, Line: line, Count: argc}
}

func Lined(op bytecode.OpCode, line int) Op { return Op{Kind: KindLined, Op: op, Line: line} }
func Counted(op bytecode.OpCode, n int32) Op { return Op{Kind: KindCounted, Op: op, Count: n} }
func Plain(op bytecode.OpCode) Op            { return Op{Kind: KindPlain, Op: op} }
