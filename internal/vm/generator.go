package vm

import "mtots/internal/mvalue"

var generatorClass = mvalue.NewClass(mvalue.KindNativeClass, "Generator", "Generator", "a suspended generator frame", nil, nil, nil, nil)

// Generator implements §4.6's tri-state resume contract (next value /
// done / raised) as a goroutine running the generator's Frame, strictly
// hand-shaking with its caller over a pair of unbuffered channels so at
// most one of the two goroutines ever runs at a time — the same
// single-threaded-interpreter invariant §5 requires, just with the
// suspension point living on a separate Go stack instead of a
// hand-rolled continuation. Grounded on the teacher's now-deleted
// `spawn` builtin, which used the same goroutine-plus-channel shape for
// its own strict-handoff concurrency primitive.
type Generator struct {
	vm    *VM
	frame *Frame

	resumeCh chan mvalue.Value
	outCh    chan genResult

	started bool
	done    bool
}

type genResult struct {
	value mvalue.Value
	done  bool
	err   error
}

func (g *Generator) ClassOf() *mvalue.Class { return generatorClass }

func newGenerator(vm *VM, frame *Frame) *Generator {
	g := &Generator{vm: vm, frame: frame}
	frame.generator = g
	return g
}

// Resume implements the `next`/`send` entry point into a generator. The
// very first resume must carry Nil (there is no body execution yet to
// hand a value to) — sending anything else raises
// GeneratorStartedWithNonNilValue instead of silently discarding it.
// Resuming a generator whose body already returned raises
// GeneratorResumeAfterDone.
func (g *Generator) Resume(vm *VM, sent mvalue.Value) (mvalue.Value, bool, error) {
	if g.done {
		return nil, true, mvalue.NewException(vm.g.Exceptions.GeneratorResumeAfterDone, nil)
	}
	if !g.started {
		if !mvalue.IsNil(sent) {
			return nil, false, mvalue.NewException(vm.g.Exceptions.GeneratorStartedWithNonNilValue, nil)
		}
		g.started = true
		g.resumeCh = make(chan mvalue.Value)
		g.outCh = make(chan genResult)
		go g.run()
	}
	g.resumeCh <- sent
	res := <-g.outCh
	if res.done {
		g.done = true
	}
	return res.value, res.done, res.err
}

func (g *Generator) run() {
	<-g.resumeCh
	val, err := g.vm.runFrame(g.frame)
	g.outCh <- genResult{value: val, done: true, err: err}
}

// yieldValue is called from inside the generator's own goroutine by the
// OpYield opcode handler: hand v back to whichever goroutine is blocked
// in Resume, then block until the next Resume sends a value in.
func (g *Generator) yieldValue(v mvalue.Value) (mvalue.Value, error) {
	g.outCh <- genResult{value: v, done: false}
	sent := <-g.resumeCh
	return sent, nil
}
