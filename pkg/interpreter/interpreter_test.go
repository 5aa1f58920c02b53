package interpreter_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"memsim/pkg/gc"
	"memsim/pkg/interpreter"
	"memsim/pkg/memory"
	"memsim/pkg/program"

	"github.com/google/go-cmp/cmp"
)

// mainOnly builds a program whose entry function holds the given body
func mainOnly(body ...string) *program.Program {
	lines := append([]string{"function main() {"}, body...)
	lines = append(lines, "  return 0;", "}")
	return program.New(program.Source{Name: "main", Lines: lines})
}

func run(t *testing.T, it *interpreter.Interpreter) {
	t.Helper()
	if err := it.Run(); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
}

// stepUntil steps until the current source line contains marker
func stepUntil(t *testing.T, it *interpreter.Interpreter, marker string) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		if strings.Contains(it.View().Source, marker) {
			return
		}
		if halted, err := it.Step(); err != nil || halted {
			t.Fatalf("program stopped before reaching %q (err %v)", marker, err)
		}
	}
	t.Fatalf("never reached %q", marker)
}

func TestAllocateIntoVariable(t *testing.T) {
	it := interpreter.New(mainOnly("  let buffer = malloc(1024);"))
	run(t, it)

	heap := it.Heap()
	if diff := cmp.Diff([]memory.Block{{Address: 0x1000, Size: 1024, Owner: "buffer"}}, heap.Blocks()); diff != "" {
		t.Errorf("Blocks() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]memory.FreeBlock{{Address: 0x1400, Size: 7168}}, heap.FreeBlocks()); diff != "" {
		t.Errorf("FreeBlocks() mismatch (-want +got):\n%s", diff)
	}

	stats := it.Stats()
	if stats.CurrentMemoryUsage != 1024 {
		t.Errorf("CurrentMemoryUsage = %d, want 1024", stats.CurrentMemoryUsage)
	}
	if stats.TotalAllocations != 1 {
		t.Errorf("TotalAllocations = %d, want 1", stats.TotalAllocations)
	}
	if it.State().Status != interpreter.Complete {
		t.Errorf("Status = %v, want complete", it.State().Status)
	}
}

func TestFreeVariable(t *testing.T) {
	it := interpreter.New(mainOnly("  let buffer = malloc(1024);", "  free(buffer);"))
	run(t, it)

	stats := it.Stats()
	if stats.CurrentMemoryUsage != 0 {
		t.Errorf("CurrentMemoryUsage = %d, want 0", stats.CurrentMemoryUsage)
	}
	if stats.Fragmentation != 0 {
		t.Errorf("Fragmentation = %v, want 0", stats.Fragmentation)
	}
	if stats.TotalDeallocations != 1 {
		t.Errorf("TotalDeallocations = %d, want 1", stats.TotalDeallocations)
	}
	if diff := cmp.Diff([]memory.FreeBlock{{Address: 0x1000, Size: 8192}}, it.Heap().FreeBlocks()); diff != "" {
		t.Errorf("FreeBlocks() mismatch (-want +got):\n%s", diff)
	}
	if it.Bindings().Len() != 0 {
		t.Errorf("bindings after free = %v, want none", it.Bindings().Names())
	}
}

func TestFreeCreatesHole(t *testing.T) {
	it := interpreter.New(mainOnly(
		"  let a = malloc(2048);",
		"  let b = malloc(1024);",
		"  free(a);",
	))
	run(t, it)

	free := it.Heap().FreeBlocks()
	if len(free) != 2 || free[0].Size != 2048 {
		t.Fatalf("FreeBlocks() = %+v, want a 2048 hole followed by the tail", free)
	}
	if it.Stats().Fragmentation <= 0 {
		t.Errorf("Fragmentation = %v, want > 0", it.Stats().Fragmentation)
	}
}

func TestCallChain(t *testing.T) {
	prog := program.New(
		program.Source{Name: "main", Lines: []string{
			"function main() {",
			"  loadImage();",
			"  processImage();",
			"  return 0;",
			"}",
		}},
		program.Source{Name: "loadImage", Lines: []string{
			"function loadImage() {",
			"  let image = malloc(2048);",
			"  return image;",
			"}",
		}},
		program.Source{Name: "processImage", Lines: []string{
			"function processImage() {",
			"  let temp = malloc(2048);",
			"  free(temp);",
			"  return;",
			"}",
		}},
	)

	it := interpreter.New(prog)
	run(t, it)

	stats := it.Stats()
	if stats.CallStackDepth != 0 {
		t.Errorf("CallStackDepth = %d, want 0", stats.CallStackDepth)
	}
	if stats.TotalAllocations != 2 || stats.TotalDeallocations != 1 {
		t.Errorf("allocations/deallocations = %d/%d, want 2/1", stats.TotalAllocations, stats.TotalDeallocations)
	}
	// the image block leaks: nothing frees it and nothing collects it
	if stats.CurrentMemoryUsage != 2048 {
		t.Errorf("CurrentMemoryUsage = %d, want 2048", stats.CurrentMemoryUsage)
	}
	if stats.PeakMemoryUsage != 4096 {
		t.Errorf("PeakMemoryUsage = %d, want 4096", stats.PeakMemoryUsage)
	}
	if it.State().Status != interpreter.Complete {
		t.Errorf("Status = %v, want complete", it.State().Status)
	}
}

func TestFreeUnboundName(t *testing.T) {
	it := interpreter.New(mainOnly("  let keep = malloc(64);", "  free(ghost);"))
	run(t, it)

	stats := it.Stats()
	if stats.MemoryLeaks != 1 {
		t.Errorf("MemoryLeaks = %d, want 1", stats.MemoryLeaks)
	}
	if stats.TotalDeallocations != 0 {
		t.Errorf("TotalDeallocations = %d, want 0", stats.TotalDeallocations)
	}
	if len(it.Heap().Blocks()) != 1 {
		t.Errorf("Blocks() has %d entries, want 1", len(it.Heap().Blocks()))
	}

	errs := it.Errors()
	if len(errs) != 1 || !errors.Is(errs[0].Err, interpreter.ErrInvalidFree) {
		t.Fatalf("Errors() = %+v, want one ErrInvalidFree", errs)
	}
	if errs[0].Line != 3 || errs[0].Function != "main" {
		t.Errorf("error attributed to %s:%d, want main:3", errs[0].Function, errs[0].Line)
	}
}

func TestDoubleFreeThroughAlias(t *testing.T) {
	prog := program.New(
		program.Source{Name: "main", Lines: []string{
			"let a = make();",
			"free(a);",
			"free(a);",
			"return;",
		}},
		program.Source{Name: "make", Lines: []string{
			"let result = malloc(32);",
			"return result;",
		}},
	)

	it := interpreter.New(prog)
	run(t, it)

	if it.Stats().MemoryLeaks != 1 {
		t.Errorf("MemoryLeaks = %d, want 1", it.Stats().MemoryLeaks)
	}
	if it.Stats().TotalDeallocations != 1 {
		t.Errorf("TotalDeallocations = %d, want 1", it.Stats().TotalDeallocations)
	}
}

func TestGarbageCollection(t *testing.T) {
	it := interpreter.New(mainOnly(
		"  let x = malloc(4096);",
		"  malloc(1024);",
	))
	stepUntil(t, it, "return")

	if _, err := it.Bindings().Resolve("x"); err != nil {
		t.Fatalf("x not bound: %v", err)
	}
	if _, ok := it.Heap().Block(0x2000); !ok {
		t.Fatalf("orphan block not at 0x2000: %+v", it.Heap().Blocks())
	}

	before := it.Stats().TotalDeallocations
	cycle := it.CollectGarbage()

	if _, ok := it.Heap().Block(0x1000); !ok {
		t.Errorf("bound block at 0x1000 was collected")
	}
	if _, ok := it.Heap().Block(0x2000); ok {
		t.Errorf("orphan at 0x2000 survived")
	}
	if got := it.Stats().TotalDeallocations - before; got != 1 {
		t.Errorf("TotalDeallocations grew by %d, want 1", got)
	}
	if len(cycle.Reclaimed) != 1 {
		t.Errorf("Reclaimed = %+v, want one block", cycle.Reclaimed)
	}
	if it.Stats().GCCycles != 1 {
		t.Errorf("GCCycles = %d, want 1", it.Stats().GCCycles)
	}
	if err := it.Heap().Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestStepDuringCollection(t *testing.T) {
	it := interpreter.New(mainOnly("  malloc(16);"), interpreter.WithGCPacing(10*time.Millisecond, 10*time.Millisecond))
	stepUntil(t, it, "return")

	if err := it.TriggerGC(); err != nil {
		t.Fatalf("TriggerGC() failed: %v", err)
	}
	if _, err := it.Step(); !errors.Is(err, gc.ErrCollecting) {
		t.Errorf("Step() during GC = %v, want ErrCollecting", err)
	}

	it.AdvanceGC(10 * time.Millisecond)
	it.AdvanceGC(10 * time.Millisecond)
	if it.Collector().Active() {
		t.Fatalf("collector still active after both phases")
	}
	if it.Stats().CurrentMemoryUsage != 0 {
		t.Errorf("CurrentMemoryUsage = %d, want 0", it.Stats().CurrentMemoryUsage)
	}

	run(t, it)
}

func TestNestedCallsRestoreBindings(t *testing.T) {
	prog := program.New(
		program.Source{Name: "main", Lines: []string{
			"let outer = malloc(16);",
			"a();",
			"return;",
		}},
		program.Source{Name: "a", Lines: []string{
			"let inA = malloc(16);",
			"b();",
			"return;",
		}},
		program.Source{Name: "b", Lines: []string{
			"let inB = malloc(16);",
			"c();",
			"return;",
		}},
		program.Source{Name: "c", Lines: []string{
			"let inC = malloc(16);",
			"return;",
		}},
	)

	it := interpreter.New(prog)
	var depths []int
	var names [][]string
	for !it.Done() {
		before := it.CallStack().Depth()
		beforeNames := it.Bindings().Names()
		src := it.View().Source
		if _, err := it.Step(); err != nil {
			t.Fatalf("Step() failed: %v", err)
		}
		if strings.Contains(src, "return") && before > 0 {
			if it.CallStack().Depth() != before-1 {
				t.Errorf("depth after return = %d, want %d", it.CallStack().Depth(), before-1)
			}
		}
		if strings.HasSuffix(src, "();") {
			depths = append(depths, it.CallStack().Depth())
			names = append(names, beforeNames)
		}
	}

	if diff := cmp.Diff([]int{1, 2, 3}, depths); diff != "" {
		t.Errorf("depths after calls (-want +got):\n%s", diff)
	}
	// back in main only the main binding remains
	if diff := cmp.Diff([]string{"outer"}, it.Bindings().Names()); diff != "" {
		t.Errorf("bindings after unwinding (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"inA", "outer"}, names[1]); diff != "" {
		t.Errorf("bindings at call to b (-want +got):\n%s", diff)
	}
}

func TestReturnHandsBackLastBinding(t *testing.T) {
	prog := program.New(
		program.Source{Name: "main", Lines: []string{
			"function main() {",
			"  let img = build();",
			"  return 0;",
			"}",
		}},
		program.Source{Name: "build", Lines: []string{
			"function build() {",
			"  let header = malloc(64);",
			"  let body = malloc(256);",
			"  let temp = malloc(32);",
			"  return body;",
			"}",
		}},
	)

	it := interpreter.New(prog)
	stepUntil(t, it, "return 0")

	addr, err := it.Bindings().Resolve("img")
	if err != nil {
		t.Fatalf("img not bound after return: %v", err)
	}
	block, ok := it.Heap().Block(addr)
	if !ok || block.Owner != "body" {
		t.Errorf("img points at %+v, want the body block", block)
	}
	if diff := cmp.Diff([]string{"img"}, it.Bindings().Names()); diff != "" {
		t.Errorf("callee bindings leaked into caller (-want +got):\n%s", diff)
	}
}

func TestReturnWithoutCandidateBindsNothing(t *testing.T) {
	prog := program.New(
		program.Source{Name: "main", Lines: []string{
			"function main() {",
			"  let keep = malloc(100);",
			"  let r = scratchOnly();",
			"  return 0;",
			"}",
		}},
		program.Source{Name: "scratchOnly", Lines: []string{
			"function scratchOnly() {",
			"  let temp = malloc(50);",
			"  return;",
			"}",
		}},
	)

	it := interpreter.New(prog)
	run(t, it)

	if _, err := it.Bindings().Resolve("r"); err == nil {
		t.Errorf("r is bound, want nothing handed back; bindings %v", it.Bindings().Map())
	}
	if diff := cmp.Diff([]string{"keep"}, it.Bindings().Names()); diff != "" {
		t.Errorf("caller bindings after return (-want +got):\n%s", diff)
	}
}

func TestUnresolvedCall(t *testing.T) {
	it := interpreter.New(mainOnly("  missing();", "  let x = malloc(8);"))
	run(t, it)

	errs := it.Errors()
	if len(errs) != 1 || !errors.Is(errs[0].Err, interpreter.ErrUnresolvedCall) {
		t.Fatalf("Errors() = %+v, want one ErrUnresolvedCall", errs)
	}
	if it.Stats().TotalAllocations != 1 {
		t.Errorf("execution did not continue past the unresolved call")
	}
}

func TestOutOfMemory(t *testing.T) {
	it := interpreter.New(mainOnly("  let big = malloc(4096);"), interpreter.WithHeap(0, 1024))
	run(t, it)

	errs := it.Errors()
	if len(errs) != 1 || !errors.Is(errs[0].Err, memory.ErrOutOfMemory) {
		t.Fatalf("Errors() = %+v, want one ErrOutOfMemory", errs)
	}
	if it.Bindings().Len() != 0 {
		t.Errorf("failed allocation bound %v", it.Bindings().Names())
	}
	if it.State().Status != interpreter.Complete {
		t.Errorf("Status = %v, want complete", it.State().Status)
	}
}

func TestInvalidPositionHalts(t *testing.T) {
	prog := program.New(program.Source{Name: "main", Lines: []string{
		"function main() {",
		"  let x = malloc(8);",
		"}",
	}})

	it := interpreter.New(prog)
	run(t, it)

	if it.State().Status != interpreter.Halted {
		t.Errorf("Status = %v, want halted", it.State().Status)
	}
	errs := it.Errors()
	if len(errs) != 1 || !errors.Is(errs[0].Err, interpreter.ErrInvalidPosition) {
		t.Fatalf("Errors() = %+v, want one ErrInvalidPosition", errs)
	}

	// further steps are inert
	n := len(it.Log())
	if halted, err := it.Step(); !halted || err != nil {
		t.Errorf("Step() after halt = (%v, %v), want (true, nil)", halted, err)
	}
	if len(it.Log()) != n {
		t.Errorf("Step() after halt logged again")
	}

	it.Reset()
	if it.State().Status != interpreter.Ready || it.Stats().TotalAllocations != 0 {
		t.Errorf("Reset() did not restore a fresh state: %+v", it.Stats())
	}
}

func TestEmptyProgram(t *testing.T) {
	it := interpreter.New(program.New())
	if halted, _ := it.Step(); !halted {
		t.Errorf("Step() on empty program did not halt")
	}
	if it.State().Status != interpreter.Halted {
		t.Errorf("Status = %v, want halted", it.State().Status)
	}
}

func TestRecursionOverflow(t *testing.T) {
	prog := program.New(program.Source{Name: "main", Lines: []string{"main();", "return;"}})

	it := interpreter.New(prog, interpreter.WithMaxDepth(5))
	run(t, it)

	if it.CallStack().Depth() != 5 {
		t.Errorf("Depth() = %d, want 5", it.CallStack().Depth())
	}
	errs := it.Errors()
	if len(errs) != 1 || !errors.Is(errs[0].Err, interpreter.ErrStackOverflow) {
		t.Errorf("Errors() = %+v, want one ErrStackOverflow", errs)
	}
}

func TestMaxSteps(t *testing.T) {
	it := interpreter.New(mainOnly("  // one", "  // two"), interpreter.WithMaxSteps(2))
	if err := it.Run(); !errors.Is(err, interpreter.ErrMaxStepsExceeded) {
		t.Errorf("Run() = %v, want ErrMaxStepsExceeded", err)
	}
}

func TestWriterEchoesLog(t *testing.T) {
	var out bytes.Buffer
	it := interpreter.New(mainOnly("  let b = malloc(10);"), interpreter.WithWriter(&out))
	run(t, it)

	if !strings.Contains(out.String(), "allocated 10 bytes for b at 0x1000") {
		t.Errorf("writer output missing allocation:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "program complete") {
		t.Errorf("writer output missing completion:\n%s", out.String())
	}
}

func TestDemoProgram(t *testing.T) {
	it := interpreter.New(program.Demo())
	run(t, it)

	stats := it.Stats()
	if it.State().Status != interpreter.Complete {
		t.Fatalf("Status = %v, want complete; log:\n%v", it.State().Status, it.Log())
	}
	if stats.TotalAllocations != 4 || stats.TotalDeallocations != 2 {
		t.Errorf("allocations/deallocations = %d/%d, want 4/2", stats.TotalAllocations, stats.TotalDeallocations)
	}
	if stats.MemoryLeaks != 1 {
		t.Errorf("MemoryLeaks = %d, want 1", stats.MemoryLeaks)
	}
	if stats.CurrentMemoryUsage != 768 {
		t.Errorf("CurrentMemoryUsage = %d, want 768", stats.CurrentMemoryUsage)
	}

	// cache is still bound in main; the orphan goes
	it.CollectGarbage()
	if got := it.Stats().CurrentMemoryUsage; got != 512 {
		t.Errorf("CurrentMemoryUsage after GC = %d, want 512", got)
	}
}

func TestViewReflectsState(t *testing.T) {
	it := interpreter.New(program.Demo())
	stepUntil(t, it, "malloc(2048)")

	v := it.View()
	if v.Function != "loadImage" {
		t.Errorf("Function = %q, want loadImage", v.Function)
	}
	if len(v.Frames) != 1 || v.Frames[0].ReturnFunction != "main" || v.Frames[0].AssignTo != "image" {
		t.Errorf("Frames = %+v, want one frame returning to main into image", v.Frames)
	}
	if v.Stats.CurrentFunctionName != "loadImage" || v.Stats.CallStackDepth != 1 {
		t.Errorf("Stats = %+v", v.Stats)
	}
	if v.HeapBase != memory.DefaultBase || v.HeapSize != memory.DefaultSize {
		t.Errorf("heap geometry = 0x%x/%d", v.HeapBase, v.HeapSize)
	}
}

func TestCollectGarbageFromIdle(t *testing.T) {
	it := interpreter.New(mainOnly("  malloc(64);"))
	run(t, it)

	cycle := it.CollectGarbage()
	if len(cycle.Reclaimed) != 1 || it.Stats().GCCycles != 1 {
		t.Errorf("CollectGarbage() reclaimed %d blocks in %d cycles, want 1 and 1", len(cycle.Reclaimed), it.Stats().GCCycles)
	}
	if it.Collector().Active() {
		t.Errorf("collector still active after CollectGarbage()")
	}

	var sawMark bool
	for _, e := range it.Log() {
		if strings.HasPrefix(e.Message, "GC mark phase") {
			sawMark = true
		}
	}
	if !sawMark {
		t.Errorf("log missing the mark phase entry: %v", it.Log())
	}
}
