package interpreter

import (
	"fmt"

	"memsim/pkg/program"

	"github.com/charmbracelet/log"
)

// Entry is one line of the execution log.
type Entry struct {
	Seq      int
	Function string
	Line     int // 1-based source line, 0 when not tied to a line
	Kind     program.Kind
	Message  string
	Err      error
}

// String renders the entry as a single log line
func (e Entry) String() string {
	prefix := fmt.Sprintf("[%d]", e.Seq)
	if e.Function != "" && e.Line > 0 {
		prefix = fmt.Sprintf("[%d] %s:%d", e.Seq, e.Function, e.Line)
	}
	return prefix + " " + e.Message
}

// Log returns a copy of the execution log
func (i *Interpreter) Log() []Entry {
	return append([]Entry(nil), i.log...)
}

// Errors returns the log entries that carry an error
func (i *Interpreter) Errors() []Entry {
	var out []Entry
	for _, e := range i.log {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// record appends an entry for the current position
func (i *Interpreter) record(kind program.Kind, err error, format string, args ...any) {
	e := Entry{
		Seq:      len(i.log) + 1,
		Function: i.currentFunction(),
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}

	// during dispatch, attribute the entry to the line being executed even
	// after a call or return has moved the position
	if i.state.Phase == Executing {
		e.Function = i.functionName(i.at.Function)
		e.Line = i.at.Line + 1
	}

	i.log = append(i.log, e)

	if err != nil {
		log.Warn(e.Message, "function", e.Function, "line", e.Line, "error", err)
	} else {
		log.Debug(e.Message, "function", e.Function, "line", e.Line)
	}

	if i.out != nil {
		fmt.Fprintln(i.out, e.String())
	}
}
