package program

import "fmt"

type Kind int

const (
	NoOp        Kind = iota // anything unrecognised
	Comment                 // // ... , /* ... , * ...
	Declaration             // function name(...) {
	Call                    // name(...)
	Allocate                // x = malloc(N)
	Free                    // free(x)
	Return                  // return ...
)

var kindNames = map[Kind]string{
	NoOp:        "NOOP",
	Comment:     "COMMENT",
	Declaration: "DECLARATION",
	Call:        "CALL",
	Allocate:    "ALLOCATE",
	Free:        "FREE",
	Return:      "RETURN",
}

// String returns the upper-case name of the kind
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Instruction is one classified source line.
type Instruction struct {
	Kind Kind
	Text string // original line

	Name string // callee for Call
	Var  string // target for Allocate and Call, operand for Free
	Size int    // bytes for Allocate
}

// String returns a compact representation of the instruction
func (i Instruction) String() string {
	switch i.Kind {
	case Call:
		if i.Var != "" {
			return fmt.Sprintf("(%s, %s -> %s)", i.Kind, i.Name, i.Var)
		}
		return fmt.Sprintf("(%s, %s)", i.Kind, i.Name)
	case Allocate:
		return fmt.Sprintf("(%s, %d -> %s)", i.Kind, i.Size, i.Var)
	case Free:
		return fmt.Sprintf("(%s, %s)", i.Kind, i.Var)
	default:
		return fmt.Sprintf("(%s)", i.Kind)
	}
}
