// Package module implements the import/module loader (§4.7): resolving a
// dotted module path to source text, compiling it once, and caching the
// resulting Module so repeated `import`s of the same path observe the
// same top-level bindings. It depends only on bytecode/mvalue/symbol and
// the front end (lexer/parser/compiler) — never on internal/vm — so the
// step loop supplies module execution through the Runner function type
// instead of this package importing the VM back.
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"mtots/internal/bytecode"
	"mtots/internal/compiler"
	"mtots/internal/lexer"
	"mtots/internal/mvalue"
	"mtots/internal/parser"
	"mtots/internal/symbol"
)

// moduleClass is the shared native Class every *Module reports through
// ClassOf, the same way a native List or Map would, per §3's "every
// value variant not covered by a primitive kind implements Classified".
var moduleClass = mvalue.NewClass(mvalue.KindNativeClass, "Module", "Module", "an imported module", nil, nil, nil, nil)

// Module is a loaded, fully executed top-level script. Cells mirrors
// Code.OwnedCells positionally: every module-level local is promoted to
// an owned cell by the scope builder's module-promotes-everything rule
// (internal/scope/builder.go), so Get can hand back a live, mutation-
// visible binding instead of a frozen snapshot.
type Module struct {
	Name  string
	Path  string
	Code  *bytecode.Code
	Cells []*mvalue.Cell
}

func (m *Module) ClassOf() *mvalue.Class { return moduleClass }

// Get looks up a top-level binding by name. ok is false both for a name
// this module never declared and for one that is still Uninitialized
// (declared later in source order than the point of observation) — the
// caller raises NameError either way, per §4.2.
func (m *Module) Get(name symbol.Symbol) (mvalue.Value, bool) {
	for i, n := range m.Code.OwnedCells {
		if n.ID() == name.ID() {
			if i >= len(m.Cells) {
				return nil, false
			}
			v := m.Cells[i].Load()
			if mvalue.IsUninitialized(v) {
				return nil, false
			}
			return v, true
		}
	}
	return nil, false
}

// SourceFinder resolves a dotted module path ("pkg.sub.mod") to a source
// file. DirSourceFinder is the only implementation in this package;
// tests substitute an in-memory finder.
type SourceFinder interface {
	Find(dotted string) (path string, source string, err error)
}

// DirSourceFinder resolves dotted.module.paths under Root, one directory
// segment per dot, with a ".mtots" suffix on the final segment. It
// searches the single Root directory only: there is no list of search
// paths, and a package directory's init file is not tried as a
// candidate.
type DirSourceFinder struct {
	Root string
}

func (f *DirSourceFinder) Find(dotted string) (string, string, error) {
	rel := strings.ReplaceAll(dotted, ".", string(filepath.Separator)) + ".mtots"
	path := filepath.Join(f.Root, rel)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("module: cannot find %q: %w", dotted, err)
	}
	return path, string(data), nil
}

// Runner executes a freshly compiled module Code object to completion
// and returns the frame's finished cellvars array (parallel to
// Code.OwnedCells) — the step loop in internal/vm supplies the concrete
// implementation so this package never needs to import it.
type Runner func(code *bytecode.Code) ([]*mvalue.Cell, error)

// Loader owns the module cache and compiles-then-runs a dotted path
// exactly once, per §4.7's "cache before execute" circular-import rule:
// the partially-initialized Module is inserted into the cache before
// Runner is invoked, so a module that (directly or transitively) imports
// itself observes whatever top-level names had already been bound by the
// time the cycle closed, rather than looping forever or re-compiling.
type Loader struct {
	finder SourceFinder
	symtab *symbol.Registry
	excReg *mvalue.ExceptionRegistry
	run    Runner

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]*Module
}

func NewLoader(finder SourceFinder, symtab *symbol.Registry, excReg *mvalue.ExceptionRegistry, run Runner) *Loader {
	return &Loader{
		finder: finder,
		symtab: symtab,
		excReg: excReg,
		run:    run,
		cache:  make(map[string]*Module),
	}
}

// Load resolves, compiles (on first sight) and runs dotted, returning the
// cached Module on every subsequent call. Concurrent Loads of the same
// path (possible once `spawn` lets two goroutines import concurrently)
// are deduplicated by singleflight so the source is parsed and compiled
// only once even under a race.
func (l *Loader) Load(dotted string) (*Module, error) {
	l.mu.Lock()
	if m, ok := l.cache[dotted]; ok {
		l.mu.Unlock()
		return m, nil
	}
	l.mu.Unlock()
	v, err, _ := l.group.Do(dotted, func() (interface{}, error) {
		return l.loadLocked(dotted)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Module), nil
}

func (l *Loader) loadLocked(dotted string) (*Module, error) {
	l.mu.Lock()
	if m, ok := l.cache[dotted]; ok {
		l.mu.Unlock()
		return m, nil
	}
	l.mu.Unlock()

	path, src, err := l.finder.Find(dotted)
	if err != nil {
		return nil, err
	}

	tokens := lexer.NewScanner(src).ScanTokens()
	p := parser.NewParser(tokens)
	block := p.Parse()
	if len(p.Errors) > 0 {
		return nil, fmt.Errorf("module %s: %w", dotted, p.Errors[0])
	}
	code, err := compiler.Compile(l.symtab, block, dotted)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", dotted, err)
	}

	mod := &Module{Name: dotted, Path: path, Code: code}

	l.mu.Lock()
	if existing, ok := l.cache[dotted]; ok {
		// Lost a race with another loader goroutine that resolved to a
		// different path for the same dotted name — singleflight only
		// dedupes identical keys, so this can only happen if a test
		// or embedder swaps SourceFinders mid-run.
		if existing.Path != path {
			l.mu.Unlock()
			kind := l.excReg.ConflictingModulePaths
			return nil, &mvalue.Exception{Kind: kind, Args: []mvalue.Value{l.symtab.Intern(dotted)}}
		}
		l.mu.Unlock()
		return existing, nil
	}
	l.cache[dotted] = mod
	l.mu.Unlock()

	cells, err := l.run(code)
	if err != nil {
		return mod, err
	}
	mod.Cells = cells
	return mod, nil
}

// Cached returns the module previously loaded under dotted, if any,
// without triggering a load.
func (l *Loader) Cached(dotted string) (*Module, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.cache[dotted]
	return m, ok
}
