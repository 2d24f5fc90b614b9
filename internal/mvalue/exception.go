package mvalue

import (
	"fmt"
	"strings"

	"mtots/internal/symbol"
)

// ExceptionKind is a numbered exception kind with an ancestry set (the
// transitive closure of parent ids, including its own id) so `matches`
// tests are a single set membership check rather than a chain walk.
type ExceptionKind struct {
	ID       int
	Name     string
	Parent   *ExceptionKind
	Ancestry map[int]bool
	Template string          // message template with {field} placeholders
	Fields   []symbol.Symbol // nil => message-only kind
}

// NewExceptionKind builds a kind descending from parent (nil makes it a
// root kind whose ancestry holds only itself). fields may
// be nil for a message-only kind that accepts a single optional argument.
func NewExceptionKind(id int, name string, parent *ExceptionKind, template string, fields []symbol.Symbol) *ExceptionKind {
	ancestry := map[int]bool{id: true}
	if parent != nil {
		for pid := range parent.Ancestry {
			ancestry[pid] = true
		}
	}
	return &ExceptionKind{ID: id, Name: name, Parent: parent, Ancestry: ancestry, Template: template, Fields: fields}
}

// Matches tests kind.id ∈ self.ancestry, i.e. whether `self` IS-A `kind`
// (self descends from kind, or is kind itself).
func (k *ExceptionKind) Matches(kind *ExceptionKind) bool {
	return k.Ancestry[kind.ID]
}

// Exception is a first-class value carrying an ExceptionKind and the
// argument vector bound to its field descriptor (or a single message
// argument, for message-only kinds).
type Exception struct {
	Kind *ExceptionKind
	Args []Value
}

// NewException constructs an Exception, binding args positionally against
// Kind.Fields when present.
func NewException(kind *ExceptionKind, args []Value) *Exception {
	return &Exception{Kind: kind, Args: args}
}

// Field returns the value bound to one of the kind's named fields.
func (e *Exception) Field(name symbol.Symbol) (Value, bool) {
	for i, f := range e.Kind.Fields {
		if f == name && i < len(e.Args) {
			return e.Args[i], true
		}
	}
	return nil, false
}

// Message renders Kind.Template, substituting {field} placeholders from
// the bound field values (or the single message argument, for
// message-only kinds).
func (e *Exception) Message() string {
	if e.Kind.Fields == nil {
		if len(e.Args) > 0 {
			return fmt.Sprint(e.Args[0])
		}
		return e.Kind.Template
	}
	msg := e.Kind.Template
	for i, f := range e.Kind.Fields {
		var val Value
		if i < len(e.Args) {
			val = e.Args[i]
		}
		msg = strings.ReplaceAll(msg, "{"+f.String()+"}", fmt.Sprint(val))
	}
	return msg
}

// String renders "Kind: formatted message", the form an unhandled
// exception prints at the top of the VM.
func (e *Exception) String() string {
	return fmt.Sprintf("%s: %s", e.Kind.Name, e.Message())
}

// Error implements the standard error interface so a raised Exception can
// travel as an ordinary Go error return all the way up through callValue/
// runFrame/module.Runner, the same way the original implementation's own
// SentraError does (internal/errors/errors.go) — the step loop's raise/
// unwind logic recovers the Exception with a single type assertion
// instead of needing a separate wrapper type.
func (e *Exception) Error() string { return e.String() }

// ExceptionRegistry owns the built-in exception-kind hierarchy and hands
// out fresh ids for user-defined `except` kinds created at runtime via the
// MakeExceptionKind opcode.
type ExceptionRegistry struct {
	nextID int
	byName map[string]*ExceptionKind

	BaseException  *ExceptionKind
	Exception      *ExceptionKind
	RuntimeError   *ExceptionKind
	NameError      *ExceptionKind
	TypeError      *ExceptionKind
	ExpectedType   *ExceptionKind
	ValueKindError *ExceptionKind
	OperandType    *ExceptionKind
	AttributeError *ExceptionKind
	InstanceAttr   *ExceptionKind
	StaticAttr     *ExceptionKind
	KeyError       *ExceptionKind
	PopFromEmpty   *ExceptionKind
	AssertionError *ExceptionKind
	HashError      *ExceptionKind
	UnpackError    *ExceptionKind
	OSError        *ExceptionKind
	EscapeToTrampoline *ExceptionKind
	GeneratorStartedWithNonNilValue *ExceptionKind
	GeneratorResumeAfterDone        *ExceptionKind
	YieldOutsideGenerator           *ExceptionKind
	ConflictingModulePaths          *ExceptionKind
}

// NewExceptionRegistry builds the full built-in taxonomy from §7. symtab
// is used only to intern the field names referenced by {field} templates
// (NameError's {name}, UnpackError's {expected}/{got}, ...).
func NewExceptionRegistry(symtab *symbol.Registry) *ExceptionRegistry {
	r := &ExceptionRegistry{byName: map[string]*ExceptionKind{}}

	reg := func(name string, parent *ExceptionKind, template string, fields ...string) *ExceptionKind {
		var syms []symbol.Symbol
		if len(fields) > 0 {
			syms = make([]symbol.Symbol, len(fields))
			for i, f := range fields {
				syms[i] = symtab.Intern(f)
			}
		}
		k := NewExceptionKind(r.nextID, name, parent, template, syms)
		r.nextID++
		r.byName[name] = k
		return k
	}

	r.BaseException = reg("BaseException", nil, "<base exception>")
	r.Exception = reg("Exception", r.BaseException, "<exception>")
	r.RuntimeError = reg("RuntimeError", r.Exception, "<runtime error>")
	r.NameError = reg("NameError", r.RuntimeError, "name not found: {name}", "name")
	r.TypeError = reg("TypeError", r.RuntimeError, "<type error>")
	r.ExpectedType = reg("ExpectedTypeError", r.TypeError, "expected {expected}, got {got}", "expected", "got")
	r.ValueKindError = reg("ValueKindError", r.TypeError, "expected kind {expected}, got {got}", "expected", "got")
	r.OperandType = reg("OperandTypeError", r.TypeError, "unsupported operand {operation} for {operands}", "operation", "operands")
	r.AttributeError = reg("AttributeError", r.RuntimeError, "<attribute error>")
	r.InstanceAttr = reg("InstanceAttributeError", r.AttributeError, "no attribute {name} on {class}", "name", "class")
	r.StaticAttr = reg("StaticAttributeError", r.AttributeError, "no static attribute {name} on {item}", "name", "item")
	r.KeyError = reg("KeyError", r.RuntimeError, "key error")
	r.PopFromEmpty = reg("PopFromEmptyCollection", r.RuntimeError, "pop from empty collection")
	r.AssertionError = reg("AssertionError", r.RuntimeError, "assertion failed")
	r.HashError = reg("HashError", r.RuntimeError, "unhashable value")
	r.UnpackError = reg("UnpackError", r.RuntimeError, "expected {expected} values, got {got}", "expected", "got")
	r.OSError = reg("OSError", r.RuntimeError, "os error")
	r.EscapeToTrampoline = reg("EscapeToTrampoline", r.BaseException, "<internal escape>")
	r.GeneratorStartedWithNonNilValue = reg("GeneratorStartedWithNonNilValue", r.RuntimeError, "generator must be started with nil")
	r.GeneratorResumeAfterDone = reg("GeneratorResumeAfterDone", r.RuntimeError, "cannot resume a finished generator")
	r.YieldOutsideGenerator = reg("YieldOutsideGenerator", r.RuntimeError, "yield outside a generator")
	r.ConflictingModulePaths = reg("ConflictingModulePaths", r.RuntimeError, "conflicting module paths for {name}", "name")

	return r
}

// Register adds a user-defined exception kind (from the MakeExceptionKind
// opcode) with the given parent (nil means "inherit from Exception").
func (r *ExceptionRegistry) Register(name string, parent *ExceptionKind, template string, fields []symbol.Symbol) *ExceptionKind {
	if parent == nil {
		parent = r.Exception
	}
	k := NewExceptionKind(r.nextID, name, parent, template, fields)
	r.nextID++
	r.byName[name] = k
	return k
}

// Lookup finds a built-in or previously registered kind by name.
func (r *ExceptionRegistry) Lookup(name string) (*ExceptionKind, bool) {
	k, ok := r.byName[name]
	return k, ok
}
