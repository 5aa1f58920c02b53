package program

import (
	"strings"

	"github.com/charmbracelet/log"
)

// Source is the raw text of one function as supplied by the embedding
// application.
type Source struct {
	Name  string   `yaml:"name"`
	Lines []string `yaml:"lines"`
}

// Function is a named, classified list of instructions.
type Function struct {
	Name  string
	Lines []string
	Code  []Instruction
}

// Program is the static input of the interpreter. The first function is the
// entry point.
type Program struct {
	Functions []Function
}

// New classifies every line of the given sources once.
func New(sources ...Source) *Program {
	p := &Program{Functions: make([]Function, 0, len(sources))}

	for _, src := range sources {
		fn := Function{
			Name:  src.Name,
			Lines: append([]string(nil), src.Lines...),
			Code:  make([]Instruction, len(src.Lines)),
		}

		for i, line := range src.Lines {
			fn.Code[i] = Classify(line)
			if looksLikeAllocation(line) {
				log.Warn("malloc without a literal size is ignored", "function", src.Name, "line", i+1, "text", strings.TrimSpace(line))
			}
		}

		p.Functions = append(p.Functions, fn)
	}

	return p
}

// Entry returns the entry function, or false for an empty program.
func (p *Program) Entry() (Function, bool) {
	if p == nil || len(p.Functions) == 0 {
		return Function{}, false
	}
	return p.Functions[0], true
}

// Find resolves a callee name to a function index, trying an exact match
// first and then the function name without a trailing "()".
func (p *Program) Find(name string) (int, bool) {
	for i, fn := range p.Functions {
		if fn.Name == name {
			return i, true
		}
	}

	bare := strings.TrimSuffix(name, "()")
	for i, fn := range p.Functions {
		if strings.TrimSuffix(fn.Name, "()") == bare {
			return i, true
		}
	}

	return -1, false
}

// Instruction returns the instruction at the given position.
func (p *Program) Instruction(fn, line int) (Instruction, bool) {
	if p == nil || fn < 0 || fn >= len(p.Functions) {
		return Instruction{}, false
	}
	code := p.Functions[fn].Code
	if line < 0 || line >= len(code) {
		return Instruction{}, false
	}
	return code[line], true
}

// Sources returns the raw text of the program.
func (p *Program) Sources() []Source {
	out := make([]Source, len(p.Functions))
	for i, fn := range p.Functions {
		out[i] = Source{Name: fn.Name, Lines: append([]string(nil), fn.Lines...)}
	}
	return out
}
