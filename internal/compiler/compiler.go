// Package compiler walks the parsed AST (internal/parser) and emits the
// pseudo-opcode stream internal/scope.Build turns into a concrete
// bytecode.Code. It never resolves a name to a slot itself — that is
// entirely the scope analyser's job (§4.2); the compiler only ever
// emits StoreVar/LoadVar/Nonlocal pseudo-ops by symbol and lets the
// builder classify them.
//
// Every node, once compiled, leaves exactly one value on the operand
// stack. A Block discards the value of every sub-expression but its
// last with a plain Pop; del and nonlocal, which have no natural value
// of their own, push Nil, and import leaves the imported module. break
// and continue jump away and push nothing. This single invariant is what lets every Visit method be written without regard
// to whether its caller needs the result.
package compiler

import (
	"fmt"
	"sort"
	"strings"

	"mtots/internal/bytecode"
	"mtots/internal/parser"
	"mtots/internal/scope"
	"mtots/internal/symbol"
)

// Compile compiles a parsed module body into a top-level *bytecode.Code
// of Kind Module. reg is the symbol registry shared by the whole
// program (and later by internal/globals); moduleName is the dotted
// module path used for tracebacks and Code.ModuleName/FullName.
func Compile(reg *symbol.Registry, block *parser.Block, moduleName string) (*bytecode.Code, error) {
	fc := newFuncCompiler(reg, compileCtx{moduleName: moduleName})
	fc.kind = bytecode.KindModule
	fc.fullName = moduleName
	fc.shortName = "<module>"
	fc.startLine = block.Line
	fc.compileBodyAndReturn(block)
	return fc.finish()
}

// compileCtx carries what every nested funcCompiler needs from its
// enclosing one: the module path (for FullName). Loop labels live on
// each funcCompiler, so a nested function starts with none.
type compileCtx struct {
	moduleName string
}

// loopLabels is the break/continue target pair for one enclosing loop.
// breakCleanup is how many extra Pops a break must emit before jumping
// to breakLabel, to account for loop-persistent stack items (ForIn's
// iterator) that only the loop's own normal-exit edge pops.
type loopLabels struct {
	breakLabel    scope.Label
	continueLabel scope.Label
	breakCleanup  int
}

// funcCompiler emits one Code object's worth of pseudo-ops: a module,
// a function, a generator, or a method/static-method body.
type funcCompiler struct {
	reg *symbol.Registry
	ctx compileCtx

	kind      bytecode.Kind
	fullName  string
	shortName string
	startLine int
	doc       string
	params    bytecode.ParameterInfo

	ops        []scope.Op
	childCodes []*bytecode.Code
	nextLabel  scope.Label
	loops      []loopLabels

	// constShadow mirrors scope.Build's own constant-dedup map so the
	// compiler can compute an OptionalParam's DefaultConst index before
	// handing Params to Build: the two must agree, since Build treats
	// Params.Info as already resolved, not something it re-derives.
	constShadow map[interface{}]int
	nextConst   int

	lastLine int
	errs     []error
}

func newFuncCompiler(reg *symbol.Registry, ctx compileCtx) *funcCompiler {
	return &funcCompiler{
		reg:         reg,
		ctx:         ctx,
		constShadow: make(map[interface{}]int),
	}
}

func (c *funcCompiler) sym(name string) symbol.Symbol { return c.reg.Intern(name) }

func (c *funcCompiler) newLabel() scope.Label {
	c.nextLabel++
	return c.nextLabel - 1
}

func (c *funcCompiler) emit(op scope.Op) { c.ops = append(c.ops, op) }

func (c *funcCompiler) errorf(line int, format string, args ...interface{}) {
	c.errs = append(c.errs, fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...)))
}

// line emits a LineNumber pseudo-op the first time this source line is
// seen in sequence, so the builder's lnotab doesn't grow one entry per
// instruction.
func (c *funcCompiler) line(n int) {
	if n != c.lastLine {
		c.emit(scope.LineNumber(n))
		c.lastLine = n
	}
}

// constIndex returns the index a LoadConst(v) for v will end up with in
// the finished Code's Constants pool, mirroring scope.Build's own
// first-seen-wins dedup so the result is usable as an OptionalParam's
// DefaultConst before Build ever runs.
func (c *funcCompiler) constIndex(v interface{}) int {
	if i, ok := c.constShadow[v]; ok {
		return i
	}
	i := c.nextConst
	c.nextConst++
	c.constShadow[v] = i
	return i
}

func (c *funcCompiler) loadConst(v interface{}) {
	c.constIndex(v)
	c.emit(scope.LoadConst(v))
}

// compileBodyAndReturn compiles block for effect and emits the trailing
// Return every Code object ends with, regardless of Kind.
func (c *funcCompiler) compileBodyAndReturn(block *parser.Block) {
	c.compileBlockValue(block)
	c.emit(scope.Plain(bytecode.OpReturn))
}

// compileBlockValue compiles every sub-expression of a Block, discarding
// all but the last (or pushing Nil if the block is empty).
func (c *funcCompiler) compileBlockValue(b *parser.Block) {
	if len(b.Exprs) == 0 {
		c.loadConst(nil)
		return
	}
	for i, e := range b.Exprs {
		c.compile(e)
		if i != len(b.Exprs)-1 {
			c.emit(scope.Plain(bytecode.OpPop))
		}
	}
}

func (c *funcCompiler) finish() (*bytecode.Code, error) {
	if len(c.errs) > 0 {
		return nil, c.errs[0]
	}
	code, err := scope.Build(scope.Input{
		Kind:       c.kind,
		Params:     scope.Params{Info: c.params},
		Ops:        c.ops,
		ChildCodes: c.childCodes,
		ModuleName: c.ctx.moduleName,
		FullName:   c.fullName,
		ShortName:  c.shortName,
		StartLine:  c.startLine,
		Doc:        c.doc,
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// compile dispatches e to its Visit method and returns nothing: every
// Visit method leaves its one value on the operand stack directly,
// rather than handing a value back up through Go's call stack the way
// an interpreting visitor would.
func (c *funcCompiler) compile(e parser.Expr) { e.Accept(c) }

func (c *funcCompiler) compileList(es []parser.Expr) {
	for _, e := range es {
		c.compile(e)
	}
}

// --- literals ---

func (c *funcCompiler) VisitNil(e *parser.Nil) interface{} {
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitBool(e *parser.Bool) interface{} {
	c.loadConst(e.Value)
	return nil
}

func (c *funcCompiler) VisitInt(e *parser.Int) interface{} {
	c.loadConst(e.Value)
	return nil
}

func (c *funcCompiler) VisitFloat(e *parser.Float) interface{} {
	c.loadConst(e.Value)
	return nil
}

func (c *funcCompiler) VisitSymbolLit(e *parser.SymbolLit) interface{} {
	c.loadConst(c.sym(e.Name))
	return nil
}

func (c *funcCompiler) VisitStringLit(e *parser.StringLit) interface{} {
	c.loadConst(e.Value)
	return nil
}

func (c *funcCompiler) VisitMutableString(e *parser.MutableString) interface{} {
	c.loadConst(e.Value)
	c.emit(scope.Plain(bytecode.OpMakeMutableString))
	return nil
}

// --- names & scoping ---

func (c *funcCompiler) VisitName(e *parser.Name) interface{} {
	c.line(e.Line)
	c.emit(scope.LoadVar(c.sym(e.Name)))
	return nil
}

func (c *funcCompiler) VisitDel(e *parser.Del) interface{} {
	// There is no dedicated "unbind" opcode; del rebinds the name to the
	// bytecode.Unbound sentinel, which LoadVar/LoadDeref treat as
	// NameError on the next read, same as an as-yet-unassigned cell.
	c.loadConst(bytecode.Unbound{})
	c.emit(scope.StoreVar(c.sym(e.Name)))
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitNonlocal(e *parser.Nonlocal) interface{} {
	c.emit(scope.Nonlocal(c.sym(e.Name)))
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitParentheses(e *parser.Parentheses) interface{} {
	c.compile(e.Inner)
	return nil
}

func (c *funcCompiler) VisitBlock(e *parser.Block) interface{} {
	c.compileBlockValue(e)
	return nil
}

// --- containers ---

func (c *funcCompiler) VisitListDisplay(e *parser.ListDisplay) interface{} {
	c.compileList(e.Elements)
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(e.Elements))))
	return nil
}

func (c *funcCompiler) VisitMutableListDisplay(e *parser.MutableListDisplay) interface{} {
	c.compileList(e.Elements)
	c.emit(scope.Counted(bytecode.OpMakeMutableList, int32(len(e.Elements))))
	return nil
}

// mapDisplayAllConstSymbols reports whether every key is a SymbolLit,
// qualifying the display for MakeTable (an ordered record) rather than
// the general-purpose MakeMap.
func mapDisplayAllConstSymbols(keys []parser.Expr) bool {
	for _, k := range keys {
		if _, ok := k.(*parser.SymbolLit); !ok {
			return false
		}
	}
	return true
}

func (c *funcCompiler) compileMapPairs(keys, values []parser.Expr) {
	for i := range keys {
		c.compile(keys[i])
		c.compile(values[i])
	}
}

func (c *funcCompiler) VisitMapDisplay(e *parser.MapDisplay) interface{} {
	c.compileMapPairs(e.Keys, e.Values)
	if mapDisplayAllConstSymbols(e.Keys) {
		c.emit(scope.Counted(bytecode.OpMakeTable, int32(len(e.Keys))))
	} else {
		c.emit(scope.Counted(bytecode.OpMakeMap, int32(len(e.Keys))))
	}
	return nil
}

func (c *funcCompiler) VisitMutableMapDisplay(e *parser.MutableMapDisplay) interface{} {
	c.compileMapPairs(e.Keys, e.Values)
	c.emit(scope.Counted(bytecode.OpMakeMutableMap, int32(len(e.Keys))))
	return nil
}

// --- assignment ---

func (c *funcCompiler) VisitAssign(e *parser.Assign) interface{} {
	c.compile(e.Value)
	c.emit(scope.Plain(bytecode.OpDupTop))
	c.emit(scope.StoreVar(c.sym(e.Name)))
	return nil
}

func (c *funcCompiler) VisitAssignWithDoc(e *parser.AssignWithDoc) interface{} {
	// The doc string is metadata for introspection, not a runtime value;
	// it has nowhere to live on a plain variable binding (unlike a
	// FunctionDisplay/ClassDisplay's Doc field), so module-level
	// `"doc" \n name = value` forms only affect the *next* def/class
	// they precede in practice. Compiles exactly like a plain Assign.
	c.compile(e.Value)
	c.emit(scope.Plain(bytecode.OpDupTop))
	c.emit(scope.StoreVar(c.sym(e.Name)))
	return nil
}

// AssignAttribute/AssignSubscript evaluate to Nil rather than the
// assigned value: unlike a plain Assign (where DupTop-before-store is
// free), preserving the value here would need a rotate under two or
// three stack slots, and `obj.x = v` is never chained as a
// sub-expression the way `a = v` is.
func (c *funcCompiler) VisitAssignAttribute(e *parser.AssignAttribute) interface{} {
	c.compile(e.Object)
	c.compile(e.Value)
	c.emit(scope.NameOp(bytecode.OpStoreAttribute, c.sym(e.Name)))
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitAssignSubscript(e *parser.AssignSubscript) interface{} {
	c.compile(e.Object)
	c.compile(e.Index)
	c.compile(e.Value)
	c.emit(scope.Plain(bytecode.OpStoreSubscript))
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitAugAssign(e *parser.AugAssign) interface{} {
	name := c.sym(e.Name)
	c.emit(scope.LoadVar(name))
	c.compile(e.Value)
	c.emitBinop(e.Operator, e.Line)
	c.emit(scope.Plain(bytecode.OpDupTop))
	c.emit(scope.StoreVar(name))
	return nil
}

// --- operators ---
//
// Only Lt, Eq, and Is have dedicated opcodes (alongside the arithmetic
// family); the remaining comparisons are synthesized from them exactly
// the way the grammar's single equality/relational precedence level
// suggests a shared implementation: `a > b` as `b < a`, `a >= b` as
// `!(a < b)`, `a <= b` as `!(b < a)`, `a != b` as `!(a == b)`.

func (c *funcCompiler) emitBinop(operator string, line int) {
	c.line(line)
	switch operator {
	case "+":
		c.emit(scope.Lined(bytecode.OpBinaryAdd, line))
	case "-":
		c.emit(scope.Lined(bytecode.OpBinarySub, line))
	case "*":
		c.emit(scope.Lined(bytecode.OpBinaryMul, line))
	case "/":
		c.emit(scope.Lined(bytecode.OpBinaryDiv, line))
	case "//":
		c.emit(scope.Lined(bytecode.OpBinaryTruncDiv, line))
	case "%":
		c.emit(scope.Lined(bytecode.OpBinaryRem, line))
	case "**":
		c.emit(scope.Lined(bytecode.OpBinaryPower, line))
	case "<":
		c.emit(scope.Lined(bytecode.OpBinaryLt, line))
	case "==":
		c.emit(scope.Lined(bytecode.OpBinaryEq, line))
	case "is":
		c.emit(scope.Plain(bytecode.OpBinaryIs))
	case ">":
		c.emit(scope.Plain(bytecode.OpRotTwo))
		c.emit(scope.Lined(bytecode.OpBinaryLt, line))
	case ">=":
		c.emit(scope.Lined(bytecode.OpBinaryLt, line))
		c.emit(scope.Lined(bytecode.OpUnaryNot, line))
	case "<=":
		c.emit(scope.Plain(bytecode.OpRotTwo))
		c.emit(scope.Lined(bytecode.OpBinaryLt, line))
		c.emit(scope.Lined(bytecode.OpUnaryNot, line))
	case "!=":
		c.emit(scope.Lined(bytecode.OpBinaryEq, line))
		c.emit(scope.Lined(bytecode.OpUnaryNot, line))
	default:
		c.errorf(line, "unsupported binary operator %q", operator)
	}
}

func (c *funcCompiler) VisitBinop(e *parser.Binop) interface{} {
	switch e.Operator {
	case "and", "&&":
		end := c.newLabel()
		c.compile(e.Left)
		c.emit(scope.JumpIfFalseOrPop(end))
		c.compile(e.Right)
		c.emit(scope.LabelDef(end))
	case "or", "||":
		end := c.newLabel()
		c.compile(e.Left)
		c.emit(scope.JumpIfTrueOrPop(end))
		c.compile(e.Right)
		c.emit(scope.LabelDef(end))
	default:
		c.compile(e.Left)
		c.compile(e.Right)
		c.emitBinop(e.Operator, e.Line)
	}
	return nil
}

func (c *funcCompiler) VisitUnop(e *parser.Unop) interface{} {
	c.compile(e.Operand)
	c.line(e.Line)
	switch e.Operator {
	case "-":
		c.emit(scope.Lined(bytecode.OpUnaryNeg, e.Line))
	case "+":
		c.emit(scope.Lined(bytecode.OpUnaryPos, e.Line))
	case "not", "!":
		c.emit(scope.Lined(bytecode.OpUnaryNot, e.Line))
	default:
		c.errorf(e.Line, "unsupported unary operator %q", e.Operator)
	}
	return nil
}

// --- attribute / subscript / slice ---

func (c *funcCompiler) VisitAttribute(e *parser.Attribute) interface{} {
	c.compile(e.Object)
	c.emit(scope.NameOp(bytecode.OpLoadAttribute, c.sym(e.Name)))
	return nil
}

func (c *funcCompiler) VisitStaticAttribute(e *parser.StaticAttribute) interface{} {
	c.compile(e.Object)
	c.emit(scope.NameOp(bytecode.OpLoadStaticAttribute, c.sym(e.Name)))
	return nil
}

func (c *funcCompiler) VisitSubscript(e *parser.Subscript) interface{} {
	c.compile(e.Object)
	c.compile(e.Index)
	c.emit(scope.Lined(bytecode.OpLoadSubscript, e.Line))
	return nil
}

func (c *funcCompiler) VisitSlice(e *parser.Slice) interface{} {
	c.compile(e.Object)
	if e.Lo != nil {
		c.compile(e.Lo)
	} else {
		c.loadConst(nil)
	}
	if e.Hi != nil {
		c.compile(e.Hi)
	} else {
		c.loadConst(nil)
	}
	c.emit(scope.Lined(bytecode.OpSlice, e.Line))
	return nil
}

// --- calls ---

func (c *funcCompiler) compileArgsList(args []parser.Expr) {
	c.compileList(args)
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(args))))
}

// compileKwargsTable builds the keyword-argument Map a generic call
// site passes alongside its positional-args List; keys are sorted so
// compilation is deterministic regardless of Go's map iteration order.
func (c *funcCompiler) compileKwargsTable(kwargs map[string]parser.Expr) {
	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.loadConst(c.sym(k))
		c.compile(kwargs[k])
	}
	c.emit(scope.Counted(bytecode.OpMakeMap, int32(len(keys))))
}

func (c *funcCompiler) VisitFunctionCall(e *parser.FunctionCall) interface{} {
	if len(e.Kwargs) == 0 {
		c.compile(e.Callee)
		c.compileList(e.Args)
		c.line(e.Line)
		c.emit(scope.CallFunction(e.Line, int32(len(e.Args))))
		return nil
	}
	c.compileArgsList(e.Args)
	c.compileKwargsTable(e.Kwargs)
	c.compile(e.Callee)
	c.emit(scope.Lined(bytecode.OpCallFunctionGeneric, e.Line))
	return nil
}

func (c *funcCompiler) VisitMethodCall(e *parser.MethodCall) interface{} {
	name := c.sym(e.Name)
	if len(e.Kwargs) == 0 {
		c.compile(e.Object)
		c.emit(scope.NameOp(bytecode.OpLoadMethod, name))
		c.compileList(e.Args)
		c.line(e.Line)
		c.emit(scope.CallFunction(e.Line, int32(len(e.Args))))
		return nil
	}
	c.compileArgsList(e.Args)
	c.compileKwargsTable(e.Kwargs)
	c.compile(e.Object)
	c.emit(scope.NameOp(bytecode.OpLoadMethod, name))
	c.emit(scope.Lined(bytecode.OpCallFunctionGeneric, e.Line))
	return nil
}

// VisitNew compiles `new Class(args)` exactly like an ordinary call of
// Class(args): there is no separate MakeInstance opcode, since the
// step loop's CallFunction handler already has to branch on the
// callee's runtime type (Function, Class, native builtin, ...), and a
// Class callee constructing a fresh instance plus dispatching __init
// is just one more case of that same branch.
func (c *funcCompiler) VisitNew(e *parser.New) interface{} {
	c.compile(e.Class)
	c.compileList(e.Args)
	c.line(e.Line)
	c.emit(scope.CallFunction(e.Line, int32(len(e.Args))))
	return nil
}

// --- control flow ---

func (c *funcCompiler) VisitIf(e *parser.If) interface{} {
	elseLabel := c.newLabel()
	endLabel := c.newLabel()
	c.compile(e.Cond)
	c.emit(scope.PopJumpIfFalse(elseLabel))
	c.compile(e.Then)
	c.emit(scope.Jump(endLabel))
	c.emit(scope.LabelDef(elseLabel))
	if e.Else != nil {
		c.compile(e.Else)
	} else {
		c.loadConst(nil)
	}
	c.emit(scope.LabelDef(endLabel))
	return nil
}

func (c *funcCompiler) pushLoop(breakLabel, continueLabel scope.Label, breakCleanup int) {
	c.loops = append(c.loops, loopLabels{breakLabel: breakLabel, continueLabel: continueLabel, breakCleanup: breakCleanup})
}

func (c *funcCompiler) popLoop() { c.loops = c.loops[:len(c.loops)-1] }

func (c *funcCompiler) VisitWhile(e *parser.While) interface{} {
	top := c.newLabel()
	end := c.newLabel()
	c.pushLoop(end, top, 0)
	c.emit(scope.LabelDef(top))
	c.compile(e.Cond)
	c.emit(scope.PopJumpIfFalse(end))
	c.compile(e.Body)
	c.emit(scope.Plain(bytecode.OpPop))
	c.emit(scope.Jump(top))
	c.emit(scope.LabelDef(end))
	c.popLoop()
	c.loadConst(nil)
	return nil
}

// VisitFor compiles the C-style counted loop. Continue runs Update
// before re-testing Cond, same as the C family.
func (c *funcCompiler) VisitFor(e *parser.For) interface{} {
	top := c.newLabel()
	contLabel := c.newLabel()
	end := c.newLabel()
	if e.Init != nil {
		c.compile(e.Init)
		c.emit(scope.Plain(bytecode.OpPop))
	}
	c.pushLoop(end, contLabel, 0)
	c.emit(scope.LabelDef(top))
	if e.Cond != nil {
		c.compile(e.Cond)
		c.emit(scope.PopJumpIfFalse(end))
	}
	c.compile(e.Body)
	c.emit(scope.Plain(bytecode.OpPop))
	c.emit(scope.LabelDef(contLabel))
	if e.Update != nil {
		c.compile(e.Update)
		c.emit(scope.Plain(bytecode.OpPop))
	}
	c.emit(scope.Jump(top))
	c.emit(scope.LabelDef(end))
	c.popLoop()
	c.loadConst(nil)
	return nil
}

// VisitForIn compiles via GetIter/ForIter. The iterator sits on the
// stack for the whole loop; a break reached from inside the body must
// pop it explicitly (breakCleanup: 1) since only ForIter's own
// exhausted-path pop happens on the normal exit edge.
func (c *funcCompiler) VisitForIn(e *parser.ForIn) interface{} {
	top := c.newLabel()
	end := c.newLabel()
	varName := c.sym(e.Var)
	c.compile(e.Iterable)
	c.emit(scope.Plain(bytecode.OpGetIter))
	c.pushLoop(end, top, 1)
	c.emit(scope.LabelDef(top))
	c.emit(scope.ForIter(end))
	c.emit(scope.StoreVar(varName))
	c.compile(e.Body)
	c.emit(scope.Plain(bytecode.OpPop))
	c.emit(scope.Jump(top))
	c.emit(scope.LabelDef(end))
	c.popLoop()
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitBreak(e *parser.Break) interface{} {
	if len(c.loops) == 0 {
		c.errorf(e.Line, "break outside a loop")
		return nil
	}
	l := c.loops[len(c.loops)-1]
	for i := 0; i < l.breakCleanup; i++ {
		c.emit(scope.Plain(bytecode.OpPop))
	}
	c.emit(scope.Jump(l.breakLabel))
	return nil
}

func (c *funcCompiler) VisitContinue(e *parser.Continue) interface{} {
	if len(c.loops) == 0 {
		c.errorf(e.Line, "continue outside a loop")
		return nil
	}
	c.emit(scope.Jump(c.loops[len(c.loops)-1].continueLabel))
	return nil
}

// --- functions ---

// constFold evaluates e if it is a literal the scope builder can place
// directly in a Code's constant pool; ok is false for anything else. An
// OptionalParam's default must be one of these since it's resolved once
// at function-definition time, not re-evaluated per call.
func (c *funcCompiler) constFold(e parser.Expr) (interface{}, bool) {
	switch v := e.(type) {
	case *parser.Nil:
		return nil, true
	case *parser.Bool:
		return v.Value, true
	case *parser.Int:
		return v.Value, true
	case *parser.Float:
		return v.Value, true
	case *parser.StringLit:
		return v.Value, true
	case *parser.SymbolLit:
		return c.sym(v.Name), true
	}
	return nil, false
}

// buildParams resolves fd's signature into a bytecode.ParameterInfo
// against child, emitting a LoadConst+Pop into child's own op stream for
// each optional default so scope.Build's constant-pool dedup assigns it
// the same index child.constIndex predicts here.
func (c *funcCompiler) buildParams(child *funcCompiler, fd *parser.FunctionDisplay) bytecode.ParameterInfo {
	var info bytecode.ParameterInfo
	for _, r := range fd.Required {
		info.Required = append(info.Required, c.sym(r))
	}
	for _, o := range fd.Optional {
		val, ok := c.constFold(o.Default)
		if !ok {
			c.errorf(fd.Line, "default value for parameter %q must be a constant", o.Name)
		}
		child.loadConst(val)
		child.emit(scope.Plain(bytecode.OpPop))
		info.Optional = append(info.Optional, bytecode.OptionalParam{
			Name:         c.sym(o.Name),
			DefaultConst: child.constIndex(val),
		})
	}
	if fd.Variadic != "" {
		s := c.sym(fd.Variadic)
		info.Variadic = &s
	}
	if fd.Kwargs != "" {
		s := c.sym(fd.Kwargs)
		info.Kwargs = &s
	}
	return info
}

func (c *funcCompiler) childFullName(shortName string) string {
	if c.fullName == "" {
		return shortName
	}
	return c.fullName + "." + shortName
}

// compileChildFunction builds fd's body bottom-up into its own Code
// before the enclosing compiler emits anything referencing it: the
// enclosing MakeFunction needs the finished Code's Freevars list to
// know which cells to load and bundle.
func (c *funcCompiler) compileChildFunction(fd *parser.FunctionDisplay) (*bytecode.Code, error) {
	child := newFuncCompiler(c.reg, c.ctx)
	child.kind = bytecode.KindFunction
	if fd.IsGenerator {
		child.kind = bytecode.KindGenerator
	}
	if fd.Name == "" {
		child.shortName = "<lambda>"
	} else {
		child.shortName = fd.Name
	}
	child.fullName = c.childFullName(child.shortName)
	child.startLine = fd.Line
	child.doc = fd.Doc
	child.params = c.buildParams(child, fd)
	child.compile(fd.Body)
	child.emit(scope.Plain(bytecode.OpReturn))
	return child.finish()
}

// VisitFunctionDisplay compiles fd's body into a child Code, then emits
// the parent-scope sequence OpMakeFunction needs: push the Cell for
// each of the child's freevars (in the child's Freevars order), bundle
// them into a List, then MakeFunction the child by index.
func (c *funcCompiler) VisitFunctionDisplay(e *parser.FunctionDisplay) interface{} {
	childCode, err := c.compileChildFunction(e)
	if err != nil {
		c.errs = append(c.errs, err)
		c.loadConst(nil)
		return nil
	}
	idx := len(c.childCodes)
	c.childCodes = append(c.childCodes, childCode)
	for _, fv := range childCode.Freevars {
		c.emit(scope.LoadCellOp(fv))
	}
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(childCode.Freevars))))
	c.emit(scope.MakeFunction(idx))
	return nil
}

// --- classes & exception kinds ---

// compileMethodTable compiles a name:FunctionDisplay table, pushing
// each (symbol name, Function) pair and then an OpMakeTable, matching
// the instance-/static-methods table operand OpMakeClass expects.
func (c *funcCompiler) compileMethodTable(methods []*parser.FunctionDisplay) {
	for _, m := range methods {
		c.loadConst(c.sym(m.Name))
		c.compile(m)
	}
	c.emit(scope.Counted(bytecode.OpMakeTable, int32(len(methods))))
}

// VisitClassDisplay pushes, in order, bases, fields, the
// instance-methods table, and the static-methods table, then
// OpMakeClass — the static-methods table ends on top of the stack and
// is popped first, matching OpMakeClass's documented pop order.
func (c *funcCompiler) VisitClassDisplay(e *parser.ClassDisplay) interface{} {
	outerFullName := c.fullName
	c.fullName = c.childFullName(e.Name)
	defer func() { c.fullName = outerFullName }()

	c.compileList(e.Bases)
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(e.Bases))))

	for _, f := range e.Fields {
		c.loadConst(c.sym(f))
	}
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(e.Fields))))

	c.compileMethodTable(e.Methods)
	c.compileMethodTable(e.StaticMethods)

	c.emit(scope.MakeClass(c.sym(e.Name), e.Kind == parser.ClassKindTrait))
	return nil
}

// VisitExceptionKindDisplay pushes the message template, the field-name
// list, then the parent kind (Nil if none), matching OpMakeExceptionKind's
// documented pop order (parent popped first, i.e. pushed last).
func (c *funcCompiler) VisitExceptionKindDisplay(e *parser.ExceptionKindDisplay) interface{} {
	c.loadConst(e.MessageTemplate)
	for _, f := range e.Fields {
		c.loadConst(c.sym(f))
	}
	c.emit(scope.Counted(bytecode.OpMakeList, int32(len(e.Fields))))
	if e.Base != nil {
		c.compile(e.Base)
	} else {
		c.loadConst(nil)
	}
	c.emit(scope.NameOp(bytecode.OpMakeExceptionKind, c.sym(e.Name)))
	return nil
}

// --- modules, generators, misc statements ---

// firstSegment returns the leading dotted component of a module path,
// the name `import pkg.mod` binds in the absence of an explicit alias.
func firstSegment(dotted string) string {
	if i := strings.IndexByte(dotted, '.'); i >= 0 {
		return dotted[:i]
	}
	return dotted
}

func (c *funcCompiler) VisitImport(e *parser.Import) interface{} {
	c.line(e.Line)
	c.emit(scope.Import(e.Line, c.sym(e.Dotted)))
	bindName := e.Alias
	if bindName == "" {
		bindName = firstSegment(e.Dotted)
	}
	c.emit(scope.Plain(bytecode.OpDupTop))
	c.emit(scope.StoreVar(c.sym(bindName)))
	return nil
}

func (c *funcCompiler) VisitYield(e *parser.Yield) interface{} {
	if e.Value != nil {
		c.compile(e.Value)
	} else {
		c.loadConst(nil)
	}
	c.line(e.Line)
	c.emit(scope.Plain(bytecode.OpYield))
	return nil
}

func (c *funcCompiler) VisitReturn(e *parser.Return) interface{} {
	if e.Value != nil {
		c.compile(e.Value)
	} else {
		c.loadConst(nil)
	}
	c.line(e.Line)
	c.emit(scope.Plain(bytecode.OpReturn))
	return nil
}

func (c *funcCompiler) VisitBreakPoint(e *parser.BreakPoint) interface{} {
	c.emit(scope.Plain(bytecode.OpBreakpoint))
	c.loadConst(nil)
	return nil
}

func (c *funcCompiler) VisitRaise(e *parser.Raise) interface{} {
	c.compile(e.Value)
	c.line(e.Line)
	c.emit(scope.Lined(bytecode.OpRaise, e.Line))
	return nil
}

// VisitTry wires the exception opcodes into a single handler block
// shared by catch and finally: PushHandler marks the entry point the
// VM jumps to, stack reset to the depth it had when PushHandler ran,
// if the protected Body raises. The normal-completion edge and every
// handled edge converge on afterTry with exactly one value on the
// stack, same as every other expression.
func (c *funcCompiler) VisitTry(e *parser.Try) interface{} {
	handler := c.newLabel()
	afterTry := c.newLabel()

	runFinally := func() {
		if e.HasFinally {
			c.compile(e.FinallyBody)
			c.emit(scope.Plain(bytecode.OpPop))
		}
	}

	c.emit(scope.PushHandler(handler))
	c.compile(e.Body)
	c.emit(scope.Plain(bytecode.OpPopHandler))
	runFinally()
	c.emit(scope.Jump(afterTry))

	c.emit(scope.LabelDef(handler))
	if !e.HasCatch {
		runFinally()
		c.emit(scope.Lined(bytecode.OpReraise, e.Line))
	} else if e.CatchKind != nil {
		c.emit(scope.Plain(bytecode.OpCurrentException))
		c.compile(e.CatchKind)
		c.emit(scope.Plain(bytecode.OpMatchException))
		noMatch := c.newLabel()
		c.emit(scope.PopJumpIfFalse(noMatch))
		if e.CatchName != "" {
			c.emit(scope.Plain(bytecode.OpCurrentException))
			c.emit(scope.StoreVar(c.sym(e.CatchName)))
		}
		c.compile(e.CatchBody)
		runFinally()
		c.emit(scope.Jump(afterTry))
		c.emit(scope.LabelDef(noMatch))
		runFinally()
		c.emit(scope.Lined(bytecode.OpReraise, e.Line))
	} else {
		if e.CatchName != "" {
			c.emit(scope.Plain(bytecode.OpCurrentException))
			c.emit(scope.StoreVar(c.sym(e.CatchName)))
		}
		c.compile(e.CatchBody)
		runFinally()
		c.emit(scope.Jump(afterTry))
	}

	c.emit(scope.LabelDef(afterTry))
	return nil
}
