package bindings

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnbound = errors.New("unbound variable")

type binding struct {
	addr uint64
	seq  uint64 // bind order, used to find the most recent binding
}

// Table maps in-scope variable names to heap addresses. It carries no
// ownership: whether an address is live is decided by the heap alone.
type Table struct {
	vars map[string]binding
	seq  uint64
}

// Snapshot is an immutable copy of a Table.
type Snapshot struct {
	vars map[string]binding
	seq  uint64
}

// New creates an empty table
func New() *Table {
	return &Table{vars: make(map[string]binding)}
}

// Bind points name at addr, replacing any previous binding.
func (t *Table) Bind(name string, addr uint64) {
	t.seq++
	t.vars[name] = binding{addr: addr, seq: t.seq}
}

// Unbind removes name; it reports whether the name was bound.
func (t *Table) Unbind(name string) bool {
	_, ok := t.vars[name]
	delete(t.vars, name)
	return ok
}

// Resolve returns the address bound to name.
func (t *Table) Resolve(name string) (uint64, error) {
	b, ok := t.vars[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnbound, name)
	}
	return b.addr, nil
}

// Len returns the number of bound names.
func (t *Table) Len() int {
	return len(t.vars)
}

// Names returns the bound names in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.vars))
	for name := range t.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Addresses returns every bound address, deduplicated and sorted.
func (t *Table) Addresses() []uint64 {
	seen := make(map[uint64]struct{}, len(t.vars))
	addrs := make([]uint64, 0, len(t.vars))
	for _, b := range t.vars {
		if _, ok := seen[b.addr]; ok {
			continue
		}
		seen[b.addr] = struct{}{}
		addrs = append(addrs, b.addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// Map returns a copy of the table as a plain map.
func (t *Table) Map() map[string]uint64 {
	m := make(map[string]uint64, len(t.vars))
	for name, b := range t.vars {
		m[name] = b.addr
	}
	return m
}

// LastBound returns the most recently bound name for which skip returns
// false. A nil skip accepts every name.
func (t *Table) LastBound(skip func(name string) bool) (string, uint64, bool) {
	return t.LastBoundSince(Snapshot{}, skip)
}

// LastBoundSince is LastBound restricted to names bound after s was taken.
func (t *Table) LastBoundSince(s Snapshot, skip func(name string) bool) (string, uint64, bool) {
	var (
		best  string
		found binding
		ok    bool
	)
	for name, b := range t.vars {
		if b.seq <= s.seq || (skip != nil && skip(name)) {
			continue
		}
		if !ok || b.seq > found.seq {
			best, found, ok = name, b, true
		}
	}
	return best, found.addr, ok
}

// Clear removes every binding.
func (t *Table) Clear() {
	t.vars = make(map[string]binding)
	t.seq = 0
}

// Snapshot captures the current bindings.
func (t *Table) Snapshot() Snapshot {
	vars := make(map[string]binding, len(t.vars))
	for name, b := range t.vars {
		vars[name] = b
	}
	return Snapshot{vars: vars, seq: t.seq}
}

// Restore replaces the table contents with s. The bind sequence keeps
// counting forward so later bindings still sort after restored ones.
func (t *Table) Restore(s Snapshot) {
	t.vars = make(map[string]binding, len(s.vars))
	for name, b := range s.vars {
		t.vars[name] = b
	}
	if s.seq > t.seq {
		t.seq = s.seq
	}
}

// Len returns the number of names in the snapshot.
func (s Snapshot) Len() int {
	return len(s.vars)
}

// Map returns a copy of the snapshot as a plain map.
func (s Snapshot) Map() map[string]uint64 {
	m := make(map[string]uint64, len(s.vars))
	for name, b := range s.vars {
		m[name] = b.addr
	}
	return m
}

// IsTemporary reports whether name looks like a scratch variable that should
// not be treated as a function result.
func IsTemporary(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "temp") ||
		strings.HasPrefix(lower, "tmp") ||
		strings.HasPrefix(name, "_")
}
