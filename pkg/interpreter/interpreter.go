package interpreter

import (
	"errors"
	"io"
	"time"

	"memsim/pkg/bindings"
	"memsim/pkg/callstack"
	"memsim/pkg/gc"
	"memsim/pkg/memory"
	"memsim/pkg/program"

	"github.com/charmbracelet/log"
)

const DefaultMaxDepth = 64

// Interpreter owns every piece of mutable simulator state: the heap, the
// bindings of the running function, the call stack, the execution position
// and the garbage collector. One instruction executes per Step.
type Interpreter struct {
	prog *program.Program // program being executed

	heap  *memory.Heap     // simulated heap
	vars  *bindings.Table  // bindings of the running function
	stack *callstack.Stack // suspended callers
	gc    *gc.Collector    // explicitly triggered collector

	state ExecutionState // current position and status
	at    ExecutionState // position of the instruction being dispatched
	stats Stats          // recomputed after every step
	log   []Entry        // append-only execution log

	out io.Writer // optional trace writer, one line per log entry

	heapBase      uint64
	heapSize      int
	markDuration  time.Duration
	sweepDuration time.Duration

	maxDepth int // maximum call depth (0 = unlimited)
	maxSteps int // maximum steps (0 = unlimited)
	steps    int // steps executed
}

type Option func(*Interpreter)

// WithHeap sets the base address and size of the simulated heap
func WithHeap(base uint64, size int) Option {
	return func(i *Interpreter) {
		i.heapBase = base
		i.heapSize = size
	}
}

// WithWriter echoes every log entry to w
func WithWriter(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithMaxSteps sets a maximum number of steps before Step returns ErrMaxStepsExceeded
func WithMaxSteps(n int) Option {
	return func(i *Interpreter) { i.maxSteps = n }
}

// WithMaxDepth bounds the call stack; deeper calls halt the run
func WithMaxDepth(n int) Option {
	return func(i *Interpreter) { i.maxDepth = n }
}

// WithGCPacing sets the minimum duration of the mark and sweep phases
func WithGCPacing(mark, sweep time.Duration) Option {
	return func(i *Interpreter) {
		i.markDuration = mark
		i.sweepDuration = sweep
	}
}

// New creates an interpreter positioned at the first line of the entry function
func New(prog *program.Program, opts ...Option) *Interpreter {
	it := &Interpreter{
		prog:          prog,
		heapBase:      memory.DefaultBase,
		heapSize:      memory.DefaultSize,
		markDuration:  gc.DefaultMarkDuration,
		sweepDuration: gc.DefaultSweepDuration,
		maxDepth:      DefaultMaxDepth,
	}

	for _, o := range opts {
		o(it)
	}

	it.heap = memory.New(it.heapBase, it.heapSize)
	it.vars = bindings.New()
	it.stack = callstack.New()
	it.gc = gc.New(it.heap, it.vars,
		gc.WithPhaseDurations(it.markDuration, it.sweepDuration),
		gc.WithReclaimHook(it.onReclaim),
		gc.WithCompletionHook(it.onCollected),
	)

	it.Reset()
	return it
}

// Load replaces the program and resets all state
func (i *Interpreter) Load(prog *program.Program) {
	i.prog = prog
	i.Reset()
}

// Reset returns the heap to a single free block, clears the stack, bindings,
// statistics and log, and moves to the entry function's first line.
func (i *Interpreter) Reset() {
	i.heap.Reset()
	i.vars.Clear()
	i.stack.Clear()
	i.gc.Reset()

	i.state = ExecutionState{}
	i.stats = Stats{}
	i.log = nil
	i.steps = 0

	i.refreshStats()
}

// Program returns the loaded program
func (i *Interpreter) Program() *program.Program {
	return i.prog
}

// Heap returns the simulated heap
func (i *Interpreter) Heap() *memory.Heap {
	return i.heap
}

// Bindings returns the bindings of the running function
func (i *Interpreter) Bindings() *bindings.Table {
	return i.vars
}

// CallStack returns the call stack
func (i *Interpreter) CallStack() *callstack.Stack {
	return i.stack
}

// State returns the execution position and status
func (i *Interpreter) State() ExecutionState {
	return i.state
}

// Done reports whether the program completed or halted
func (i *Interpreter) Done() bool {
	return i.state.Status != Ready
}

// Step executes a single instruction, returning (halted, error). Instruction
// level failures are recorded in the log and statistics, never returned.
func (i *Interpreter) Step() (bool, error) {
	if i.Done() {
		return true, nil
	}

	if i.gc.Active() {
		return false, gc.ErrCollecting
	}

	if i.maxSteps > 0 && i.steps >= i.maxSteps {
		return false, ErrMaxStepsExceeded
	}

	i.state.Phase = Executing
	halted := coreStep(i)
	i.state.Phase = Idle
	i.steps++

	i.refreshStats()
	return halted, nil
}

// Run executes until the program completes or halts
func (i *Interpreter) Run() error {
	for {
		halted, err := i.Step()
		if err != nil {
			return err
		}

		if halted {
			return nil
		}
	}
}

// TriggerGC starts a paced collection cycle
func (i *Interpreter) TriggerGC() error {
	if err := i.gc.Trigger(); err != nil {
		return err
	}

	i.record(program.NoOp, nil, "GC mark phase: %d of %d blocks reachable", len(i.gc.Marked()), len(i.heap.Blocks()))
	return nil
}

// AdvanceGC moves a running collection forward by dt
func (i *Interpreter) AdvanceGC(dt time.Duration) {
	if !i.gc.Active() {
		return
	}
	i.gc.Advance(dt)
	i.refreshStats()
}

// CollectGarbage runs a full collection immediately
func (i *Interpreter) CollectGarbage() gc.Cycle {
	if !i.gc.Active() {
		if err := i.TriggerGC(); err != nil {
			log.Warn("gc trigger failed", "error", err)
		}
	}
	cycle := i.gc.RunToCompletion()
	i.refreshStats()
	return cycle
}

// Collector returns the garbage collector
func (i *Interpreter) Collector() *gc.Collector {
	return i.gc
}

// onReclaim counts a block freed by the collector
func (i *Interpreter) onReclaim(b memory.Block) {
	i.stats.TotalDeallocations++
	owner := b.Owner
	if owner == "" {
		owner = "<orphan>"
	}
	i.record(program.NoOp, nil, "GC reclaimed %d bytes at 0x%x (%s)", b.Size, b.Address, owner)
}

// onCollected reports a finished cycle
func (i *Interpreter) onCollected(c gc.Cycle) {
	i.stats.GCCycles++
	i.record(program.NoOp, nil, "GC complete: %d blocks kept, %d freed (%d bytes)", c.Marked, len(c.Reclaimed), c.ReclaimedBytes)
	i.refreshStats()
}

// currentFunction returns the name of the running function
func (i *Interpreter) currentFunction() string {
	return i.functionName(i.state.Function)
}

// functionName returns the name of the function at idx, or "" if out of range
func (i *Interpreter) functionName(idx int) string {
	if i.prog == nil || idx < 0 || idx >= len(i.prog.Functions) {
		return ""
	}
	return i.prog.Functions[idx].Name
}

// pushFrame saves the caller position and bindings before entering callee
func (i *Interpreter) pushFrame(callee int, assignTo string) {
	i.stack.Push(callstack.Frame{
		Function:       i.prog.Functions[callee].Name,
		ReturnFunction: i.state.Function,
		ReturnLine:     i.state.Line,
		AssignTo:       assignTo,
		Saved:          i.vars.Snapshot(),
	})

	i.state.Function = callee
	i.state.Line = 0
}

// popFrame restores the caller bindings and resumes after the call line
func (i *Interpreter) popFrame() (callstack.Frame, bool) {
	f, ok := i.stack.Pop()
	if !ok {
		return f, false
	}

	i.vars.Restore(f.Saved)
	i.state.Function = f.ReturnFunction
	i.state.Line = f.ReturnLine + 1
	return f, true
}

var (
	ErrInvalidFree      = errors.New("invalid free")
	ErrUnresolvedCall   = errors.New("unresolved call")
	ErrInvalidPosition  = errors.New("invalid execution position")
	ErrStackOverflow    = errors.New("call stack overflow")
	ErrMaxStepsExceeded = errors.New("maximum steps exceeded")
)
