// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// PassIndex associates a pass with the index of its
// start timestamp. The end timestamp follows it.
type PassIndex struct {
	Name  string
	Start int
}

// Timing describes the timestamps written by Run.
type Timing struct {
	// Number of timestamps.
	Count int
	// Per-pass timestamp pairs, in execution order.
	Passes []PassIndex
	// Indices of the frame start and end timestamps.
	Total [2]int
}

// PassStats holds the statistics of one pass.
// Times are in milliseconds.
type PassStats struct {
	Name       string
	Kind       PassKind
	CPU        float64
	GPU        float64
	Draws      int
	Dispatches int
	Triangles  int
}

// Stats holds the statistics of the last frame recorded
// into a Frame. CPU times are known once Run returns; GPU
// times only after ReadTimestamps succeeds, which sets
// Resolved.
type Stats struct {
	CPU        float64
	GPU        float64
	Draws      int
	Dispatches int
	Triangles  int
	Passes     []PassStats
	Resolved   bool
}

// Frame is the state of one frame slot.
// A frame must not be recorded into again until the
// work committed from its previous recording completes.
type Frame struct {
	Cmd      driver.CmdBuffer
	Queries  driver.QueryPool
	Deletion *DeletionQueue
	Desc     *DescAllocator
	Timing   Timing
	Stats    Stats
}

// NewFrame creates the state of frame slot slot.
// The query pool is created on the first Build.
func NewFrame(gpu driver.GPU, alloc Allocator, slot int) (*Frame, error) {
	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "rgraph: command buffer of frame %d", slot)
	}
	return &Frame{
		Cmd:      cb,
		Deletion: NewDeletionQueue(alloc),
		Desc:     NewDescAllocator(slot),
	}, nil
}

// Free flushes f's deletion queue and destroys what f
// owns. The frame's work must have completed.
func (f *Frame) Free() {
	f.Deletion.Flush()
	if f.Queries != nil {
		f.Queries.Destroy()
		f.Queries = nil
	}
	if f.Cmd != nil {
		f.Cmd.Destroy()
		f.Cmd = nil
	}
	f.Desc.Clear()
}
