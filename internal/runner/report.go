package runner

import (
	"fmt"
	"io"
	"strings"

	"memsim/pkg/color"
	"memsim/pkg/interpreter"
	"memsim/pkg/memory"
	"memsim/pkg/program"

	"github.com/dustin/go-humanize"
)

const heapMapCells = 64

func printProgram(w io.Writer, prog *program.Program) {
	fmt.Fprintln(w, color.Heading("Classified Program"))
	for _, fn := range prog.Functions {
		fmt.Fprintln(w, color.BoldText(fn.Name))
		for i, in := range fn.Code {
			fmt.Fprintf(w, "%s: %-36s %s\n",
				color.CyanText(fmt.Sprintf("%3d", i+1)),
				color.YellowText(in.String()),
				color.GrayText(strings.TrimSpace(in.Text)))
		}
	}
	fmt.Fprintln(w)
}

func printReport(w io.Writer, it *interpreter.Interpreter) {
	fmt.Fprintln(w, color.Heading("Execution Log"))
	for _, e := range it.Log() {
		kind := e.Kind.String()
		if strings.HasPrefix(e.Message, "GC") {
			kind = "GC"
		}
		fmt.Fprintln(w, color.Entry(kind, e.String(), e.Err != nil))
	}

	heap := it.Heap()
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.Heading("Heap"))
	fmt.Fprintf(w, "%s [%s] %s\n", color.Address(heap.Base()), heapMap(heap, heapMapCells), color.Address(heap.Base()+uint64(heap.Size())))
	for _, b := range heap.Blocks() {
		owner := b.Owner
		if owner == "" {
			owner = "<orphan>"
		}
		fmt.Fprintf(w, "  %s  %-10s %s\n", color.Address(b.Address), humanize.IBytes(uint64(b.Size)), owner)
	}

	names := it.Bindings().Names()
	if len(names) > 0 {
		fmt.Fprintln(w, color.BoldText("Bindings"))
		for _, name := range names {
			addr, _ := it.Bindings().Resolve(name)
			fmt.Fprintf(w, "  %-12s -> %s\n", name, color.Address(addr))
		}
	}

	stats := it.Stats()
	fmt.Fprintln(w)
	fmt.Fprintln(w, color.Heading("Statistics"))
	rows := []struct {
		label string
		value string
	}{
		{"Status", color.Status(it.State().Status.String())},
		{"Instructions", humanize.Comma(int64(stats.InstructionsExecuted))},
		{"Allocations", humanize.Comma(int64(stats.TotalAllocations))},
		{"Deallocations", humanize.Comma(int64(stats.TotalDeallocations))},
		{"Leaks", humanize.Comma(int64(stats.MemoryLeaks))},
		{"Memory accesses", humanize.Comma(int64(stats.MemoryAccessCount))},
		{"Memory in use", fmt.Sprintf("%s of %s", humanize.IBytes(uint64(stats.CurrentMemoryUsage)), humanize.IBytes(uint64(heap.Size())))},
		{"Peak memory", humanize.IBytes(uint64(stats.PeakMemoryUsage))},
		{"Fragmentation", fmt.Sprintf("%.1f%%", stats.Fragmentation)},
		{"GC cycles", humanize.Comma(int64(stats.GCCycles))},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%-16s %s\n", r.label+":", r.value)
	}

	if errs := it.Errors(); len(errs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, color.Colorize(color.BrightRed, fmt.Sprintf("%d instruction(s) failed", len(errs))))
	}
}

// heapMap draws the address space as cells; a cell is used when any byte in
// it belongs to a live block.
func heapMap(h *memory.Heap, cells int) string {
	size := h.Size()
	if size <= 0 || cells <= 0 {
		return ""
	}
	if cells > size {
		cells = size
	}

	used := make([]bool, cells)
	for _, b := range h.Blocks() {
		start := int(b.Address-h.Base()) * cells / size
		end := (int(b.End()-h.Base())*cells + size - 1) / size
		for c := start; c < end && c < cells; c++ {
			used[c] = true
		}
	}

	var sb strings.Builder
	for _, u := range used {
		sb.WriteString(color.Cell(u))
	}
	return sb.String()
}
