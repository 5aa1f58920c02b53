package callstack

import "memsim/pkg/bindings"

// Frame records where to resume the caller and the bindings it had when the
// call was made.
type Frame struct {
	Function       string            // callee name, for display
	ReturnFunction int               // caller function index
	ReturnLine     int               // caller line holding the call
	AssignTo       string            // caller variable awaiting the returned address
	Saved          bindings.Snapshot // caller bindings at call time
}

type Stack struct {
	a []Frame
	l int
}

// New creates an empty call stack
func New() *Stack {
	return &Stack{
		a: make([]Frame, 0, 8),
		l: 0,
	}
}

// Push adds a frame to the top of the stack
func (s *Stack) Push(f Frame) {
	s.l++
	s.a = append(s.a, f)
}

// Pop removes and returns the top frame. An empty stack is reported with
// ok == false; callers treat that as the end of the program.
func (s *Stack) Pop() (Frame, bool) {
	if s.l < 1 {
		return Frame{}, false
	}

	s.l--
	f := s.a[s.l]
	s.a = s.a[:s.l]

	return f, true
}

// Peek returns the top frame without removing it
func (s *Stack) Peek() (Frame, bool) {
	if s.l < 1 {
		return Frame{}, false
	}

	return s.a[s.l-1], true
}

// Depth returns the number of active frames
func (s *Stack) Depth() int {
	return s.l
}

// Frames returns a copy of the frames, bottom first
func (s *Stack) Frames() []Frame {
	return append([]Frame(nil), s.a...)
}

// Clear drops every frame
func (s *Stack) Clear() {
	s.a = s.a[:0]
	s.l = 0
}
