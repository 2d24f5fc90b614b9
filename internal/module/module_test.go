package module

import (
	"sync"
	"testing"

	"mtots/internal/bytecode"
	"mtots/internal/mvalue"
	"mtots/internal/symbol"
)

// mapFinder is an in-memory SourceFinder for tests.
type mapFinder map[string]string

func (f mapFinder) Find(dotted string) (string, string, error) {
	src, ok := f[dotted]
	if !ok {
		return "", "", errNotFound{dotted}
	}
	return dotted, src, nil
}

type errNotFound struct{ name string }

func (e errNotFound) Error() string { return "module not found: " + e.name }

func newTestLoader(t *testing.T, finder mapFinder, run Runner) *Loader {
	t.Helper()
	symtab := symbol.NewRegistry()
	excReg := mvalue.NewExceptionRegistry(symtab)
	return NewLoader(finder, symtab, excReg, run)
}

func TestLoadCachesByDottedName(t *testing.T) {
	runs := 0
	finder := mapFinder{"a": "let x = 1"}
	loader := newTestLoader(t, finder, func(code *bytecode.Code) ([]*mvalue.Cell, error) {
		runs++
		return make([]*mvalue.Cell, len(code.OwnedCells)), nil
	})

	m1, err := loader.Load("a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m2, err := loader.Load("a")
	if err != nil {
		t.Fatalf("Load (second time): %v", err)
	}
	if m1 != m2 {
		t.Fatalf("expected the same *Module pointer on repeat Load, got distinct instances")
	}
	if runs != 1 {
		t.Fatalf("expected the Runner to execute exactly once, ran %d times", runs)
	}
}

// TestLoadCircularImportSeesPartialModule models the cache-before-execute
// rule: a Runner that re-enters Load for the module currently being
// loaded must observe the (empty, not-yet-populated) cached Module
// instead of recursing forever.
func TestLoadCircularImportSeesPartialModule(t *testing.T) {
	finder := mapFinder{"a": "import b", "b": "import a"}
	var loader *Loader
	var sawPartial *Module
	loader = newTestLoader(t, finder, func(code *bytecode.Code) ([]*mvalue.Cell, error) {
		if code.ModuleName == "a" {
			m, err := loader.Load("b")
			if err != nil {
				return nil, err
			}
			_ = m
		} else if code.ModuleName == "b" {
			m, err := loader.Load("a")
			if err != nil {
				t.Fatalf("expected re-entrant Load(%q) to return the cached partial module (cache-before-execute), got %v", "a", err)
			}
			sawPartial = m
			if m.Cells != nil {
				t.Fatalf("expected the in-progress module's Cells to be nil until its Runner returns")
			}
		}
		return make([]*mvalue.Cell, len(code.OwnedCells)), nil
	})

	if _, err := loader.Load("a"); err != nil {
		t.Fatalf("Load(a): %v", err)
	}
	if sawPartial == nil {
		t.Fatalf("expected module b's Runner to observe the partially loaded module a")
	}
}

func TestLoadConcurrentDuplicateRequestsRunOnce(t *testing.T) {
	runs := 0
	var mu sync.Mutex
	finder := mapFinder{"a": "let x = 1"}
	loader := newTestLoader(t, finder, func(code *bytecode.Code) ([]*mvalue.Cell, error) {
		mu.Lock()
		runs++
		mu.Unlock()
		return make([]*mvalue.Cell, len(code.OwnedCells)), nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := loader.Load("a"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Load: %v", err)
	}
	if runs != 1 {
		t.Fatalf("expected singleflight to dedupe concurrent loads to a single run, ran %d times", runs)
	}
}

func TestModuleGetSkipsUninitializedCell(t *testing.T) {
	symtab := symbol.NewRegistry()
	xName := symtab.Intern("x")
	code := &bytecode.Code{OwnedCells: []symbol.Symbol{xName}}
	mod := &Module{Name: "a", Code: code, Cells: []*mvalue.Cell{mvalue.NewCell(mvalue.Uninitialized)}}

	if _, ok := mod.Get(xName); ok {
		t.Fatalf("expected Get to report ok=false for an Uninitialized cell")
	}
	mod.Cells[0].Store(int64(5))
	v, ok := mod.Get(xName)
	if !ok || v != int64(5) {
		t.Fatalf("expected Get(x) == (5, true) after Store, got (%v, %v)", v, ok)
	}
}
