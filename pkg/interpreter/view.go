package interpreter

import "memsim/pkg/memory"

// FrameView describes one suspended caller.
type FrameView struct {
	Function       string            `cbor:"function"`
	ReturnFunction string            `cbor:"return_function"`
	ReturnLine     int               `cbor:"return_line"`
	AssignTo       string            `cbor:"assign_to,omitempty"`
	Bindings       map[string]uint64 `cbor:"bindings"`
}

// View is a read-only copy of everything a renderer draws in one frame.
type View struct {
	HeapBase uint64 `cbor:"heap_base"`
	HeapSize int    `cbor:"heap_size"`

	Function string `cbor:"function"`
	Line     int    `cbor:"line"` // 1-based
	Source   string `cbor:"source,omitempty"`
	Phase    string `cbor:"phase"`
	Status   string `cbor:"status"`

	Blocks     []memory.Block     `cbor:"blocks"`
	FreeBlocks []memory.FreeBlock `cbor:"free_blocks"`
	Bindings   map[string]uint64  `cbor:"bindings"`
	Frames     []FrameView        `cbor:"frames"`

	GCPhase string   `cbor:"gc_phase"`
	Marked  []uint64 `cbor:"marked,omitempty"`

	Stats Stats   `cbor:"stats"`
	Log   []Entry `cbor:"-"`
}

// View captures the observable state
func (i *Interpreter) View() View {
	v := View{
		HeapBase:   i.heap.Base(),
		HeapSize:   i.heap.Size(),
		Function:   i.currentFunction(),
		Line:       i.state.Line + 1,
		Phase:      i.state.Phase.String(),
		Status:     i.state.Status.String(),
		Blocks:     i.heap.Blocks(),
		FreeBlocks: i.heap.FreeBlocks(),
		Bindings:   i.vars.Map(),
		GCPhase:    i.gc.Phase().String(),
		Marked:     i.gc.Marked(),
		Stats:      i.stats,
		Log:        i.Log(),
	}

	if i.prog != nil && i.state.Function >= 0 && i.state.Function < len(i.prog.Functions) {
		lines := i.prog.Functions[i.state.Function].Lines
		if i.state.Line >= 0 && i.state.Line < len(lines) {
			v.Source = lines[i.state.Line]
		}
	}

	for _, f := range i.stack.Frames() {
		v.Frames = append(v.Frames, FrameView{
			Function:       f.Function,
			ReturnFunction: i.functionName(f.ReturnFunction),
			ReturnLine:     f.ReturnLine + 1,
			AssignTo:       f.AssignTo,
			Bindings:       f.Saved.Map(),
		})
	}

	return v
}
