package interpreter

type Phase int

const (
	Idle      Phase = iota // ready to fetch the next instruction
	Executing              // an instruction is being dispatched
)

// String returns the phase name
func (p Phase) String() string {
	if p == Executing {
		return "executing"
	}
	return "idle"
}

type Status int

const (
	Ready    Status = iota // more instructions to run
	Complete               // entry function returned
	Halted                 // stopped on an invalid position
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Complete:
		return "complete"
	case Halted:
		return "halted"
	default:
		return "unknown"
	}
}

// ExecutionState is the interpreter's position in the program.
type ExecutionState struct {
	Function int // index into Program.Functions
	Line     int // index into the function's lines
	Phase    Phase
	Status   Status
}

// Stats is the statistics snapshot exposed to the rendering layer.
type Stats struct {
	TotalAllocations    int
	TotalDeallocations  int
	MemoryLeaks         int // frees of unbound names or dead blocks
	CurrentMemoryUsage  int
	PeakMemoryUsage     int
	MemoryAccessCount   int // malloc and free attempts
	CallStackDepth      int
	CurrentFunctionName string
	Fragmentation       float64

	InstructionsExecuted int
	GCCycles             int
}

// Stats returns the latest statistics
func (i *Interpreter) Stats() Stats {
	return i.stats
}

// refreshStats recomputes the derived statistics
func (i *Interpreter) refreshStats() {
	i.stats.CurrentMemoryUsage = i.heap.Usage()
	if i.stats.CurrentMemoryUsage > i.stats.PeakMemoryUsage {
		i.stats.PeakMemoryUsage = i.stats.CurrentMemoryUsage
	}
	i.stats.Fragmentation = i.heap.Fragmentation()
	i.stats.CallStackDepth = i.stack.Depth()
	i.stats.CurrentFunctionName = i.currentFunction()
}
