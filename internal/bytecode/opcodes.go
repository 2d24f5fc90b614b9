// Package bytecode defines the concrete opcode set and the immutable Code
// object that the scope analyser / code builder (internal/scope) emits
// and the step loop (internal/vm) executes. It sits just above
// internal/symbol and internal/mvalue in the dependency order from
// SPEC_FULL.md §2.
package bytecode

// OpCode is a single concrete instruction. Each instruction is stored as
// an Instruction holding its OpCode and up to two int32 arguments, in
// the order ArgTypes(op) lists them, so constant/name indices are not
// limited to a single byte however big a function's constant pool grows.
type OpCode int32

const (
	// Stack
	OpPop OpCode = iota
	OpRotTwo
	OpPullTos2
	OpPullTos3
	OpDupTop
	OpUnpack // arg: n

	// Constants
	OpLoadConst        // arg: constant index
	OpMakeMutableString // pops the seed string (already pushed via LoadConst), pushes a fresh *MutableString

	// Variables
	OpLoadLocal  // arg: local slot
	OpStoreLocal // arg: local slot
	OpLoadDeref  // arg: cell slot (freevar or owned-cell)
	OpStoreDeref // arg: cell slot
	OpLoadCell   // arg: cell slot (push the raw Cell, for MakeFunction binding lists)

	// Containers
	OpMakeList        // arg: n
	OpMakeTable       // arg: n pairs (symbol-key, value already on stack, like OpMakeMap; keys are asserted to Symbol and insertion order is preserved)
	OpMakeMap         // arg: n (key/value pairs already on stack)
	OpMakeMutableList // arg: n
	OpMakeMutableMap  // arg: n

	// Attributes
	OpLoadAttribute       // arg: names index; pops object, pushes value
	OpStoreAttribute      // arg: names index; pops value, then object (object pushed first, value pushed last)
	OpLoadStaticAttribute // arg: names index
	OpLoadMethod          // arg: names index

	// Subscripts
	OpLoadSubscript  // arg: line; pops object, index, pushes value
	OpStoreSubscript // pops value, index, object (value pushed last, popped first)
	OpSlice          // arg: line; pops object, lo, hi (either may be Nil for an open bound), pushes value

	// Calls
	OpCallFunction        // args: line, argc
	OpCallFunctionGeneric // arg: line
	OpExtendList          // arg: line
	OpExtendTable         // arg: line

	// Construction
	OpMakeFunction     // arg: child-code index
	OpMakeClass        // args: names index, isTrait (0/1); pops static-methods, instance-methods, fields, bases
	OpMakeExceptionKind // arg: names index (the new kind's own name); pops parent, fields, template

	// Control
	OpJump             // arg: target offset
	OpPopJumpIfTrue    // arg: target offset
	OpPopJumpIfFalse   // arg: target offset
	OpJumpIfTrueOrPop  // arg: target offset
	OpJumpIfFalseOrPop // arg: target offset
	OpGetIter
	OpForIter // arg: target offset (jump here when exhausted)
	OpReturn
	OpYield
	OpBreakpoint

	// Arithmetic / comparison
	OpBinaryAdd       // arg: line
	OpBinarySub       // arg: line
	OpBinaryMul       // arg: line
	OpBinaryDiv       // arg: line
	OpBinaryTruncDiv  // arg: line
	OpBinaryRem       // arg: line
	OpBinaryPower     // arg: line
	OpBinaryLt        // arg: line
	OpBinaryEq        // arg: line
	OpBinaryIs
	OpUnaryNot // arg: line
	OpUnaryNeg // arg: line
	OpUnaryPos // arg: line

	// Module
	OpImport // args: line, names index

	// Exceptions
	OpRaise            // arg: line; pops the exception value and unwinds
	OpPushHandler      // arg: jump target for the catch/finally entry; registers a handler on the frame's try-stack
	OpPopHandler       // removes the top handler on the normal-completion path
	OpCurrentException // pushes the frame's in-flight exception (valid only at a handler entry point)
	OpReraise          // arg: line; re-raises the frame's in-flight exception
	OpMatchException   // pops (kind, exc); pushes whether exc's kind is kind or a descendant of it

	opCodeCount
)

// ArgType describes what kind of operand a positional opcode argument is,
// so the disassembler can annotate it and the scope analyser can tell
// which arguments are variable-location arguments that it must resolve.
type ArgType int

const (
	ArgNone ArgType = iota
	ArgConstIndex
	ArgNameIndex
	ArgLocalSlot
	ArgCellSlot
	ArgChildCodeIndex
	ArgJumpTarget
	ArgCount
	ArgLine
	ArgRaw // opaque small integer (e.g. isTrait flag)
)

// argTypes is indexed by OpCode and lists each opcode's argument types in
// emission order. Declared as a table (rather than a switch) so
// disassemble and ArgTypes share one source of truth.
var argTypes = [opCodeCount][]ArgType{
	OpPop:      nil,
	OpRotTwo:   nil,
	OpPullTos2: nil,
	OpPullTos3: nil,
	OpDupTop:   nil,
	OpUnpack:   {ArgCount},

	OpLoadConst:         {ArgConstIndex},
	OpMakeMutableString: nil,

	OpLoadLocal:  {ArgLocalSlot},
	OpStoreLocal: {ArgLocalSlot},
	OpLoadDeref:  {ArgCellSlot},
	OpStoreDeref: {ArgCellSlot},
	OpLoadCell:   {ArgCellSlot},

	OpMakeList:        {ArgCount},
	OpMakeTable:       {ArgCount},
	OpMakeMap:         {ArgCount},
	OpMakeMutableList: {ArgCount},
	OpMakeMutableMap:  {ArgCount},

	OpLoadAttribute:       {ArgNameIndex},
	OpStoreAttribute:      {ArgNameIndex},
	OpLoadStaticAttribute: {ArgNameIndex},
	OpLoadMethod:          {ArgNameIndex},

	OpLoadSubscript:  {ArgLine},
	OpStoreSubscript: nil,
	OpSlice:          {ArgLine},

	OpCallFunction:        {ArgLine, ArgCount},
	OpCallFunctionGeneric: {ArgLine},
	OpExtendList:          {ArgLine},
	OpExtendTable:         {ArgLine},

	OpMakeFunction:      {ArgChildCodeIndex},
	OpMakeClass:         {ArgNameIndex, ArgRaw},
	OpMakeExceptionKind: {ArgNameIndex},

	OpJump:             {ArgJumpTarget},
	OpPopJumpIfTrue:    {ArgJumpTarget},
	OpPopJumpIfFalse:   {ArgJumpTarget},
	OpJumpIfTrueOrPop:  {ArgJumpTarget},
	OpJumpIfFalseOrPop: {ArgJumpTarget},
	OpGetIter:          nil,
	OpForIter:          {ArgJumpTarget},
	OpReturn:           nil,
	OpYield:            nil,
	OpBreakpoint:       nil,

	OpBinaryAdd:      {ArgLine},
	OpBinarySub:      {ArgLine},
	OpBinaryMul:      {ArgLine},
	OpBinaryDiv:      {ArgLine},
	OpBinaryTruncDiv: {ArgLine},
	OpBinaryRem:      {ArgLine},
	OpBinaryPower:    {ArgLine},
	OpBinaryLt:       {ArgLine},
	OpBinaryEq:       {ArgLine},
	OpBinaryIs:       nil,
	OpUnaryNot:       {ArgLine},
	OpUnaryNeg:       {ArgLine},
	OpUnaryPos:       {ArgLine},

	OpImport: {ArgLine, ArgNameIndex},

	OpRaise:            {ArgLine},
	OpPushHandler:      {ArgJumpTarget},
	OpPopHandler:       nil,
	OpCurrentException: nil,
	OpReraise:          {ArgLine},
	OpMatchException:   nil,
}

// ArgTypes returns op's positional argument-type vector.
func ArgTypes(op OpCode) []ArgType { return argTypes[op] }

var opNames = [opCodeCount]string{
	OpPop: "Pop", OpRotTwo: "RotTwo", OpPullTos2: "PullTos2", OpPullTos3: "PullTos3",
	OpDupTop: "DupTop", OpUnpack: "Unpack",
	OpLoadConst: "LoadConst", OpMakeMutableString: "MakeMutableString",
	OpLoadLocal: "LoadLocal", OpStoreLocal: "StoreLocal",
	OpLoadDeref: "LoadDeref", OpStoreDeref: "StoreDeref", OpLoadCell: "LoadCell",
	OpMakeList: "MakeList", OpMakeTable: "MakeTable", OpMakeMap: "MakeMap",
	OpMakeMutableList: "MakeMutableList", OpMakeMutableMap: "MakeMutableMap",
	OpLoadAttribute: "LoadAttribute", OpStoreAttribute: "StoreAttribute",
	OpLoadStaticAttribute: "LoadStaticAttribute", OpLoadMethod: "LoadMethod",
	OpLoadSubscript: "LoadSubscript", OpStoreSubscript: "StoreSubscript", OpSlice: "Slice",
	OpCallFunction: "CallFunction", OpCallFunctionGeneric: "CallFunctionGeneric",
	OpExtendList: "ExtendList", OpExtendTable: "ExtendTable",
	OpMakeFunction: "MakeFunction", OpMakeClass: "MakeClass", OpMakeExceptionKind: "MakeExceptionKind",
	OpJump: "Jump", OpPopJumpIfTrue: "PopJumpIfTrue", OpPopJumpIfFalse: "PopJumpIfFalse",
	OpJumpIfTrueOrPop: "JumpIfTrueOrPop", OpJumpIfFalseOrPop: "JumpIfFalseOrPop",
	OpGetIter: "GetIter", OpForIter: "ForIter", OpReturn: "Return", OpYield: "Yield",
	OpBreakpoint: "Breakpoint",
	OpBinaryAdd: "BinaryAdd", OpBinarySub: "BinarySub", OpBinaryMul: "BinaryMul",
	OpBinaryDiv: "BinaryDiv", OpBinaryTruncDiv: "BinaryTruncDiv", OpBinaryRem: "BinaryRem",
	OpBinaryPower: "BinaryPower", OpBinaryLt: "BinaryLt", OpBinaryEq: "BinaryEq", OpBinaryIs: "BinaryIs",
	OpUnaryNot: "UnaryNot", OpUnaryNeg: "UnaryNeg", OpUnaryPos: "UnaryPos",
	OpImport: "Import",
	OpRaise: "Raise", OpPushHandler: "PushHandler", OpPopHandler: "PopHandler",
	OpCurrentException: "CurrentException", OpReraise: "Reraise", OpMatchException: "MatchException",
}

func (op OpCode) String() string {
	if int(op) < 0 || int(op) >= len(opNames) || opNames[op] == "" {
		return "OpUnknown"
	}
	return opNames[op]
}

// stackEffect describes the pop/push counts StackEffect reports for an
// opcode. Opcodes whose effect depends on a runtime argument
// (MakeList(n), CallFunction(argc), Unpack(n)) are handled specially by
// StackEffect instead of through this table.
type stackEffect struct{ pop, push int }

var fixedStackEffect = map[OpCode]stackEffect{
	OpPop:      {1, 0},
	OpRotTwo:   {2, 2},
	OpPullTos2: {3, 3},
	OpPullTos3: {4, 4},
	OpDupTop:   {1, 2},

	OpLoadConst:         {0, 1},
	OpMakeMutableString: {1, 1},

	OpLoadLocal:  {0, 1},
	OpStoreLocal: {1, 0},
	OpLoadDeref:  {0, 1},
	OpStoreDeref: {1, 0},
	OpLoadCell:   {0, 1},

	OpLoadAttribute:       {1, 1},
	OpStoreAttribute:      {2, 0},
	OpLoadStaticAttribute: {1, 1},
	OpLoadMethod:          {1, 1},

	OpLoadSubscript:  {2, 1},
	OpStoreSubscript: {3, 0},
	OpSlice:          {3, 1},

	OpMakeFunction: {1, 1}, // consumes a List of Cells, pushes a Function
	OpMakeExceptionKind: {3, 1}, // parent, fields, template

	OpJump:             {0, 0},
	OpPopJumpIfTrue:    {1, 0},
	OpPopJumpIfFalse:   {1, 0},
	OpJumpIfTrueOrPop:  {1, 1}, // net effect when not popped; verifier treats both successors
	OpJumpIfFalseOrPop: {1, 1},
	OpGetIter:          {1, 1},
	OpForIter:          {1, 2}, // continuing: iter stays + value pushed; exhausted: iter popped (handled specially)
	OpReturn:           {1, 0},
	OpYield:            {1, 1},
	OpBreakpoint:       {0, 0},

	OpBinaryAdd: {2, 1}, OpBinarySub: {2, 1}, OpBinaryMul: {2, 1}, OpBinaryDiv: {2, 1},
	OpBinaryTruncDiv: {2, 1}, OpBinaryRem: {2, 1}, OpBinaryPower: {2, 1},
	OpBinaryLt: {2, 1}, OpBinaryEq: {2, 1}, OpBinaryIs: {2, 1},
	OpUnaryNot: {1, 1}, OpUnaryNeg: {1, 1}, OpUnaryPos: {1, 1},

	OpMakeClass: {4, 1}, // static-methods, instance-methods, fields, bases
	OpImport:    {0, 1},

	OpRaise:            {1, 0},
	OpPushHandler:      {0, 0},
	OpPopHandler:       {0, 0},
	OpCurrentException: {0, 1},
	OpReraise:          {0, 0},
	OpMatchException:   {2, 1},
}

// StackEffect returns the (pop, push) counts for op given a runtime
// argument (used for the variable-arity opcodes); ok is false if op has
// no fixed effect and isn't one of the variable-arity cases handled here.
func StackEffect(op OpCode, arg0 int32) (pop, push int, ok bool) {
	switch op {
	case OpUnpack:
		return 1, int(arg0), true
	case OpMakeList, OpMakeMutableList:
		return int(arg0), 1, true
	case OpMakeMap, OpMakeMutableMap, OpMakeTable:
		return int(arg0) * 2, 1, true
	case OpCallFunction:
		return int(arg0) + 1, 1, true
	case OpCallFunctionGeneric:
		return 3, 1, true // callee, kwargs table, args list
	case OpExtendList, OpExtendTable:
		return 2, 1, true
	}
	e, ok := fixedStackEffect[op]
	return e.pop, e.push, ok
}
