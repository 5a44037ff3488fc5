// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/internal/bitvec"
)

// DescPool is a descriptor heap whose copies are split
// evenly among frame slots.
// Slot i owns copies [i*perFrame, (i+1)*perFrame).
type DescPool struct {
	heap     driver.DescHeap
	nframe   int
	perFrame int
}

// NewDescPool creates a descriptor heap with
// nframe*perFrame copies of ds.
func NewDescPool(gpu driver.GPU, ds []driver.Descriptor, nframe, perFrame int) (*DescPool, error) {
	if nframe < 1 || perFrame < 1 {
		return nil, errors.Errorf("rgraph: invalid descriptor pool size %dx%d", nframe, perFrame)
	}
	h, err := gpu.NewDescHeap(ds)
	if err != nil {
		return nil, errors.Wrap(err, "rgraph: descriptor heap")
	}
	if err = h.New(nframe * perFrame); err != nil {
		h.Destroy()
		return nil, errors.Wrap(err, "rgraph: descriptor heap copies")
	}
	return &DescPool{h, nframe, perFrame}, nil
}

// Heap returns the descriptor heap.
func (p *DescPool) Heap() driver.DescHeap { return p.heap }

// PerFrame returns the number of copies per slot.
func (p *DescPool) PerFrame() int { return p.perFrame }

// Destroy destroys the descriptor heap.
func (p *DescPool) Destroy() {
	if p.heap != nil {
		p.heap.Destroy()
		p.heap = nil
	}
}

// DescAllocator hands out descriptor heap copies owned by
// a single frame slot. Copies are valid until Clear, which
// must only be called once the slot's previous work has
// completed.
type DescAllocator struct {
	slot int
	used map[*DescPool]*bitvec.V[uint32]
}

// NewDescAllocator creates a descriptor allocator for the
// given frame slot.
func NewDescAllocator(slot int) *DescAllocator {
	return &DescAllocator{slot: slot, used: make(map[*DescPool]*bitvec.V[uint32])}
}

// Slot returns the frame slot of a.
func (a *DescAllocator) Slot() int { return a.slot }

// Alloc returns a heap copy of p that is not in use.
// It returns false if every copy that a's slot owns is in
// use; pools do not grow.
func (a *DescAllocator) Alloc(p *DescPool) (cpy int, ok bool) {
	if a.slot >= p.nframe {
		panic("rgraph: frame slot out of descriptor pool range")
	}
	v := a.used[p]
	if v == nil {
		v = new(bitvec.V[uint32])
		v.Grow((p.perFrame + 31) / 32)
		a.used[p] = v
	}
	idx, ok := v.Search()
	if !ok || idx >= p.perFrame {
		Logger().Debug("rgraph: descriptor pool exhausted", "slot", a.slot, "copies", p.perFrame)
		return -1, false
	}
	v.Set(idx)
	return a.slot*p.perFrame + idx, true
}

// Free makes a copy returned by Alloc available again.
func (a *DescAllocator) Free(p *DescPool, cpy int) {
	if v := a.used[p]; v != nil {
		v.Unset(cpy - a.slot*p.perFrame)
	}
}

// InUse returns the number of copies of p in use.
func (a *DescAllocator) InUse(p *DescPool) int {
	v := a.used[p]
	if v == nil {
		return 0
	}
	return v.Len() - v.Rem()
}

// Clear makes every copy available again.
func (a *DescAllocator) Clear() {
	for _, v := range a.used {
		v.Clear()
	}
}
