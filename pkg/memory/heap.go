package memory

import (
	"errors"
	"fmt"
	"sort"
)

const (
	DefaultBase = 0x1000 // first address of the simulated heap
	DefaultSize = 8192   // bytes
)

var (
	ErrOutOfMemory  = errors.New("out of memory")
	ErrNotAllocated = errors.New("address not allocated")
	ErrInvalidSize  = errors.New("invalid allocation size")
)

// Block is a live allocation on the simulated heap.
type Block struct {
	Address uint64
	Size    int
	Owner   string // variable the allocation was assigned to, empty for orphans
}

// End returns the first address past the block.
func (b Block) End() uint64 {
	return b.Address + uint64(b.Size)
}

// FreeBlock is an unallocated range of the heap.
type FreeBlock struct {
	Address uint64
	Size    int
}

// End returns the first address past the free range.
func (f FreeBlock) End() uint64 {
	return f.Address + uint64(f.Size)
}

// Heap models a contiguous address space split into allocated blocks and
// free ranges. Blocks and free ranges together always tile [base, base+size).
type Heap struct {
	base uint64
	size int

	blocks []Block     // sorted by address
	free   []FreeBlock // sorted by address, recomputed from gaps
}

// New creates a heap with a single free block spanning the whole space.
func New(base uint64, size int) *Heap {
	h := &Heap{base: base, size: size}
	h.Reset()
	return h
}

// Reset drops every allocation.
func (h *Heap) Reset() {
	h.blocks = h.blocks[:0]
	h.free = []FreeBlock{{Address: h.base, Size: h.size}}
}

// Base returns the first heap address.
func (h *Heap) Base() uint64 { return h.base }

// Size returns the total heap size in bytes.
func (h *Heap) Size() int { return h.size }

// Allocate reserves size bytes from the lowest-addressed free block that fits
// and returns the address of the new block.
func (h *Heap) Allocate(size int, owner string) (uint64, error) {
	if size <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	for _, fb := range h.free {
		if fb.Size < size {
			continue
		}

		b := Block{Address: fb.Address, Size: size, Owner: owner}
		idx := sort.Search(len(h.blocks), func(i int) bool { return h.blocks[i].Address >= b.Address })
		h.blocks = append(h.blocks, Block{})
		copy(h.blocks[idx+1:], h.blocks[idx:])
		h.blocks[idx] = b

		h.rebuildFreeList()
		return b.Address, nil
	}

	return 0, fmt.Errorf("%w: requested %d bytes, largest free block is %d", ErrOutOfMemory, size, h.LargestFree())
}

// Free releases the block starting at addr and returns its size.
func (h *Heap) Free(addr uint64) (int, error) {
	idx := h.indexOf(addr)
	if idx < 0 {
		return 0, fmt.Errorf("%w: 0x%x", ErrNotAllocated, addr)
	}

	size := h.blocks[idx].Size
	h.blocks = append(h.blocks[:idx], h.blocks[idx+1:]...)
	h.rebuildFreeList()

	return size, nil
}

// Block returns the live block at addr.
func (h *Heap) Block(addr uint64) (Block, bool) {
	idx := h.indexOf(addr)
	if idx < 0 {
		return Block{}, false
	}
	return h.blocks[idx], true
}

// Blocks returns a copy of the live blocks in address order.
func (h *Heap) Blocks() []Block {
	return append([]Block(nil), h.blocks...)
}

// FreeBlocks returns a copy of the free list in address order.
func (h *Heap) FreeBlocks() []FreeBlock {
	return append([]FreeBlock(nil), h.free...)
}

// Usage returns the number of allocated bytes.
func (h *Heap) Usage() int {
	total := 0
	for _, b := range h.blocks {
		total += b.Size
	}
	return total
}

// FreeBytes returns the number of unallocated bytes.
func (h *Heap) FreeBytes() int {
	total := 0
	for _, f := range h.free {
		total += f.Size
	}
	return total
}

// LargestFree returns the size of the largest free block.
func (h *Heap) LargestFree() int {
	largest := 0
	for _, f := range h.free {
		if f.Size > largest {
			largest = f.Size
		}
	}
	return largest
}

// Fragmentation reports how much of the free space lies outside the largest
// free block, as a percentage. A single free block (or none) yields 0.
func (h *Heap) Fragmentation() float64 {
	total := h.FreeBytes()
	if total == 0 {
		return 0
	}
	return 100 * float64(total-h.LargestFree()) / float64(total)
}

// Validate checks that blocks and free ranges tile the heap exactly.
func (h *Heap) Validate() error {
	type span struct {
		start, end uint64
		free       bool
	}

	spans := make([]span, 0, len(h.blocks)+len(h.free))
	for _, b := range h.blocks {
		if b.Size <= 0 {
			return fmt.Errorf("block at 0x%x has size %d", b.Address, b.Size)
		}
		spans = append(spans, span{b.Address, b.End(), false})
	}
	for _, f := range h.free {
		if f.Size <= 0 {
			return fmt.Errorf("free block at 0x%x has size %d", f.Address, f.Size)
		}
		spans = append(spans, span{f.Address, f.End(), true})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	cursor := h.base
	for i, s := range spans {
		if s.start != cursor {
			if s.start < cursor {
				return fmt.Errorf("overlap at 0x%x", s.start)
			}
			return fmt.Errorf("gap at 0x%x-0x%x", cursor, s.start)
		}
		if i > 0 && s.free && spans[i-1].free {
			return fmt.Errorf("adjacent free blocks at 0x%x", s.start)
		}
		cursor = s.end
	}

	if end := h.base + uint64(h.size); cursor != end {
		return fmt.Errorf("heap covered up to 0x%x, want 0x%x", cursor, end)
	}

	return nil
}

// indexOf returns the index of the block at addr, or -1
func (h *Heap) indexOf(addr uint64) int {
	idx := sort.Search(len(h.blocks), func(i int) bool { return h.blocks[i].Address >= addr })
	if idx < len(h.blocks) && h.blocks[idx].Address == addr {
		return idx
	}
	return -1
}

// rebuildFreeList recomputes the free list from the gaps between blocks, which
// also merges adjacent free ranges.
func (h *Heap) rebuildFreeList() {
	h.free = h.free[:0]

	cursor := h.base
	for _, b := range h.blocks {
		if b.Address > cursor {
			h.free = append(h.free, FreeBlock{Address: cursor, Size: int(b.Address - cursor)})
		}
		cursor = b.End()
	}

	if end := h.base + uint64(h.size); cursor < end {
		h.free = append(h.free, FreeBlock{Address: cursor, Size: int(end - cursor)})
	}
}
