package program

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	commentPrefixes = []string{"//", "/*", "*"}

	declarationRegex = regexp.MustCompile(`\bfunction\b`)
	callRegex        = regexp.MustCompile(`([A-Za-z_$][\w$.]*)\s*\(`)
	assignRegex      = regexp.MustCompile(`([A-Za-z_$][\w$]*)\s*=(?:[^=]|$)`)
	mallocRegex      = regexp.MustCompile(`\bmalloc\s*\(\s*(\d+)\s*\)`)
	freeRegex        = regexp.MustCompile(`\bfree\s*\(\s*([A-Za-z_$][\w$]*)\s*\)`)
	returnRegex      = regexp.MustCompile(`\breturn\b`)
)

// names that look like calls but are handled as memory operations
var builtinCalls = map[string]bool{
	"malloc": true,
	"free":   true,
}

// Classify maps a single source line to an instruction. Rules are tried in
// priority order: comment/declaration, call, malloc, free, return, no-op.
func Classify(line string) Instruction {
	in := Instruction{Kind: NoOp, Text: line}
	trimmed := strings.TrimSpace(line)

	if trimmed == "" {
		return in
	}

	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			in.Kind = Comment
			return in
		}
	}

	if declarationRegex.MatchString(trimmed) && strings.Contains(trimmed, "{") {
		in.Kind = Declaration
		return in
	}

	if name, ok := callee(trimmed); ok {
		in.Kind = Call
		in.Name = name
		in.Var = assignTarget(trimmed)
		return in
	}

	if m := mallocRegex.FindStringSubmatch(trimmed); m != nil {
		size, err := strconv.Atoi(m[1])
		if err == nil {
			in.Kind = Allocate
			in.Size = size
			in.Var = assignTarget(trimmed)
			return in
		}
	}

	if m := freeRegex.FindStringSubmatch(trimmed); m != nil {
		in.Kind = Free
		in.Var = m[1]
		return in
	}

	if returnRegex.MatchString(trimmed) {
		in.Kind = Return
		return in
	}

	return in
}

// callee returns the first call-shaped token that is not a memory builtin.
func callee(line string) (string, bool) {
	for _, m := range callRegex.FindAllStringSubmatch(line, -1) {
		if !builtinCalls[m[1]] {
			return m[1], true
		}
	}
	return "", false
}

// assignTarget returns the variable on the left of the first plain '='.
func assignTarget(line string) string {
	if m := assignRegex.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return ""
}

// looksLikeAllocation reports a malloc call whose size could not be read.
func looksLikeAllocation(line string) bool {
	return strings.Contains(line, "malloc(") && !mallocRegex.MatchString(line)
}
