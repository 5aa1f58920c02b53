package interpreter

import (
	"fmt"

	"memsim/pkg/bindings"
	"memsim/pkg/program"
)

// coreStep is the main single-step execution function; it returns true when
// the run stopped (completed or halted).
func coreStep(i *Interpreter) bool {
	i.at = i.state

	in, ok := i.prog.Instruction(i.state.Function, i.state.Line)
	if !ok {
		i.record(program.NoOp, ErrInvalidPosition, "cannot execute %s: no instruction at function %d, line %d",
			describeFunction(i), i.state.Function, i.state.Line+1)
		i.state.Status = Halted
		return true
	}

	i.stats.InstructionsExecuted++

	switch in.Kind {
	case program.Comment, program.Declaration, program.NoOp:
		i.state.Line++

	case program.Call:
		execCall(i, in)

	case program.Allocate:
		execAllocate(i, in)
		i.state.Line++

	case program.Free:
		execFree(i, in)
		i.state.Line++

	case program.Return:
		execReturn(i, in)

	default:
		// kinds are closed; treat anything unknown as a no-op
		i.state.Line++
	}

	return i.state.Status != Ready
}

// execCall enters the callee, or logs and skips the line when it is unknown
func execCall(i *Interpreter, in program.Instruction) {
	callee, ok := i.prog.Find(in.Name)
	if !ok {
		i.record(in.Kind, fmt.Errorf("%w: %s", ErrUnresolvedCall, in.Name), "function %s not found, skipping call", in.Name)
		i.state.Line++
		return
	}

	if i.maxDepth > 0 && i.stack.Depth() >= i.maxDepth {
		i.record(in.Kind, fmt.Errorf("%w: depth %d", ErrStackOverflow, i.stack.Depth()), "cannot call %s: call stack is full", in.Name)
		i.state.Status = Halted
		return
	}

	i.record(in.Kind, nil, "call %s (depth %d)", i.prog.Functions[callee].Name, i.stack.Depth()+1)
	i.pushFrame(callee, in.Var)
}

// execAllocate reserves heap space and binds it to the target variable
func execAllocate(i *Interpreter, in program.Instruction) {
	i.stats.MemoryAccessCount++

	addr, err := i.heap.Allocate(in.Size, in.Var)
	if err != nil {
		i.record(in.Kind, err, "malloc(%d) failed for %s", in.Size, displayVar(in.Var))
		return
	}

	i.stats.TotalAllocations++

	if in.Var == "" {
		i.record(in.Kind, nil, "allocated %d bytes at 0x%x with no variable (orphan)", in.Size, addr)
		return
	}

	if old, err := i.vars.Resolve(in.Var); err == nil {
		i.record(in.Kind, nil, "%s rebound, block at 0x%x is no longer referenced by it", in.Var, old)
	}
	i.vars.Bind(in.Var, addr)
	i.record(in.Kind, nil, "allocated %d bytes for %s at 0x%x", in.Size, in.Var, addr)
}

// execFree releases the block bound to the operand. Freeing an unbound name
// or a block that is already gone counts as a leak-class error.
func execFree(i *Interpreter, in program.Instruction) {
	i.stats.MemoryAccessCount++

	addr, err := i.vars.Resolve(in.Var)
	if err != nil {
		i.stats.MemoryLeaks++
		i.record(in.Kind, fmt.Errorf("%w: %w", ErrInvalidFree, err), "free(%s): variable is not bound", in.Var)
		return
	}

	size, err := i.heap.Free(addr)
	if err != nil {
		i.stats.MemoryLeaks++
		i.vars.Unbind(in.Var)
		i.record(in.Kind, fmt.Errorf("%w: %w", ErrInvalidFree, err), "free(%s): block at 0x%x already freed", in.Var, addr)
		return
	}

	i.stats.TotalDeallocations++
	i.vars.Unbind(in.Var)
	i.record(in.Kind, nil, "freed %d bytes of %s at 0x%x", size, in.Var, addr)
}

// execReturn pops the current frame. When the call line assigned the result,
// the most recently bound non-temporary variable of the callee (bound since
// the call, caller bindings do not count) is handed to
// the caller. This is a heuristic: callees binding several candidates hand
// back the last one, callees binding none hand back nothing.
func execReturn(i *Interpreter, in program.Instruction) {
	var (
		retName string
		retAddr uint64
		hasRet  bool
	)
	if top, ok := i.stack.Peek(); ok && top.AssignTo != "" {
		retName, retAddr, hasRet = i.vars.LastBoundSince(top.Saved, bindings.IsTemporary)
	}

	from := i.currentFunction()
	frame, ok := i.popFrame()
	if !ok {
		if i.state.Function == 0 {
			i.state.Status = Complete
			i.record(in.Kind, nil, "%s returned, program complete", from)
			return
		}

		i.state.Status = Halted
		i.record(in.Kind, fmt.Errorf("%w: return from %s with an empty call stack", ErrInvalidPosition, from), "return outside of any call")
		return
	}

	if frame.AssignTo == "" {
		i.record(in.Kind, nil, "return from %s to %s", from, i.currentFunction())
		return
	}

	if !hasRet {
		i.record(in.Kind, nil, "return from %s to %s, no variable to hand back to %s", from, i.currentFunction(), frame.AssignTo)
		return
	}

	i.vars.Bind(frame.AssignTo, retAddr)
	i.record(in.Kind, nil, "return from %s to %s, %s = %s (0x%x)", from, i.currentFunction(), frame.AssignTo, retName, retAddr)
}

// describeFunction names the current function for error messages
func describeFunction(i *Interpreter) string {
	if name := i.currentFunction(); name != "" {
		return name
	}
	return "<unknown function>"
}

// displayVar renders an empty variable name
func displayVar(name string) string {
	if name == "" {
		return "<orphan>"
	}
	return name
}
