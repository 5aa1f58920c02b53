package gc

import (
	"errors"
	"sort"
	"time"

	"memsim/pkg/bindings"
	"memsim/pkg/memory"

	"github.com/charmbracelet/log"
)

const (
	DefaultMarkDuration  = 800 * time.Millisecond
	DefaultSweepDuration = 800 * time.Millisecond
)

var ErrCollecting = errors.New("garbage collection in progress")

type Phase int

const (
	Idle Phase = iota
	Mark
	Sweep
)

// String returns the phase name
func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Mark:
		return "mark"
	case Sweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// Cycle summarises one completed collection.
type Cycle struct {
	Marked         int // blocks that survived
	Reclaimed      []memory.Block
	ReclaimedBytes int
}

// Collector is a mark-and-sweep collector over a simulated heap. Roots are the
// addresses in the current bindings table only; bindings saved in suspended
// call frames are not scanned.
type Collector struct {
	heap  *memory.Heap
	roots *bindings.Table

	phase   Phase
	marked  map[uint64]struct{}
	elapsed time.Duration
	cycle   Cycle

	markDuration  time.Duration
	sweepDuration time.Duration

	onReclaim func(memory.Block)
	onDone    func(Cycle)
}

type Option func(*Collector)

// WithPhaseDurations sets the minimum time spent in each phase
func WithPhaseDurations(mark, sweep time.Duration) Option {
	return func(c *Collector) {
		c.markDuration = mark
		c.sweepDuration = sweep
	}
}

// WithReclaimHook is called for every block freed by a sweep
func WithReclaimHook(fn func(memory.Block)) Option {
	return func(c *Collector) { c.onReclaim = fn }
}

// WithCompletionHook is called once when a cycle returns to idle
func WithCompletionHook(fn func(Cycle)) Option {
	return func(c *Collector) { c.onDone = fn }
}

// New creates an idle collector for the given heap and roots
func New(heap *memory.Heap, roots *bindings.Table, opts ...Option) *Collector {
	c := &Collector{
		heap:          heap,
		roots:         roots,
		marked:        make(map[uint64]struct{}),
		markDuration:  DefaultMarkDuration,
		sweepDuration: DefaultSweepDuration,
	}

	for _, o := range opts {
		o(c)
	}

	return c
}

// Phase returns the current phase
func (c *Collector) Phase() Phase {
	return c.phase
}

// Active reports whether a cycle is in progress
func (c *Collector) Active() bool {
	return c.phase != Idle
}

// Marked returns the marked addresses in ascending order
func (c *Collector) Marked() []uint64 {
	addrs := make([]uint64, 0, len(c.marked))
	for a := range c.marked {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// IsMarked reports whether addr was reached in the current cycle
func (c *Collector) IsMarked(addr uint64) bool {
	_, ok := c.marked[addr]
	return ok
}

// Trigger starts a new cycle by running the mark phase.
func (c *Collector) Trigger() error {
	if c.phase != Idle {
		return ErrCollecting
	}

	c.cycle = Cycle{}
	c.elapsed = 0
	c.phase = Mark
	c.mark()

	log.Debug("gc mark", "roots", c.roots.Len(), "marked", len(c.marked))
	return nil
}

// Advance moves the cycle forward by dt. Each phase lasts at least its
// configured duration; the sweep runs on entering the sweep phase.
func (c *Collector) Advance(dt time.Duration) {
	if c.phase == Idle {
		return
	}

	c.elapsed += dt

	switch c.phase {
	case Mark:
		if c.elapsed >= c.markDuration {
			c.elapsed = 0
			c.phase = Sweep
			c.sweep()
		}

	case Sweep:
		if c.elapsed >= c.sweepDuration {
			c.finish()
		}
	}
}

// RunToCompletion triggers a cycle if idle and drives it to the end without
// pacing.
func (c *Collector) RunToCompletion() Cycle {
	if c.phase == Idle {
		_ = c.Trigger()
	}

	if c.phase == Mark {
		c.phase = Sweep
		c.sweep()
	}

	return c.finish()
}

// Reset abandons any cycle in progress
func (c *Collector) Reset() {
	c.phase = Idle
	c.elapsed = 0
	c.marked = make(map[uint64]struct{})
	c.cycle = Cycle{}
}

// mark records every address reachable from the current bindings that is
// still a live block.
func (c *Collector) mark() {
	c.marked = make(map[uint64]struct{})
	for _, addr := range c.roots.Addresses() {
		if _, ok := c.heap.Block(addr); ok {
			c.marked[addr] = struct{}{}
		}
	}
	c.cycle.Marked = len(c.marked)
}

// sweep frees every unmarked block.
func (c *Collector) sweep() {
	for _, b := range c.heap.Blocks() {
		if c.IsMarked(b.Address) {
			continue
		}

		size, err := c.heap.Free(b.Address)
		if err != nil {
			log.Warn("gc sweep skipped block", "addr", b.Address, "error", err)
			continue
		}

		c.cycle.Reclaimed = append(c.cycle.Reclaimed, b)
		c.cycle.ReclaimedBytes += size
		if c.onReclaim != nil {
			c.onReclaim(b)
		}
	}

	log.Debug("gc sweep", "reclaimed", len(c.cycle.Reclaimed), "bytes", c.cycle.ReclaimedBytes)
}

// finish returns to idle and reports the cycle once.
func (c *Collector) finish() Cycle {
	done := c.cycle
	c.phase = Idle
	c.elapsed = 0
	c.marked = make(map[uint64]struct{})
	c.cycle = Cycle{}

	if c.onDone != nil {
		c.onDone(done)
	}

	return done
}
