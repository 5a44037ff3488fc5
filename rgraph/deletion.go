// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/gviegas/rgraph/driver"
)

// MemoryKind describes where buffer memory should live.
type MemoryKind int

// Memory kinds.
const (
	// Device memory, not host visible.
	MemGPU MemoryKind = iota
	// Host visible memory written by the CPU and read by
	// the GPU.
	MemCPUToGPU
	// Host visible memory written by the GPU and read
	// back by the CPU.
	MemGPUToCPU
)

// Allocator creates and destroys GPU buffers.
type Allocator interface {
	// NewBuffer creates a buffer of at least size bytes.
	NewBuffer(size int64, usg driver.Usage, mem MemoryKind) (driver.Buffer, error)

	// DestroyBuffer destroys a buffer created by NewBuffer.
	DestroyBuffer(buf driver.Buffer)
}

// DeletionKind identifies the type of handle in a
// Deletion.
type DeletionKind int

// Deletion kinds.
const (
	DBuffer DeletionKind = iota
	DImage
	DImageView
	DDescHeap
	DDescTable
	DPipeline
	DQueryPool
)

// Deletion is a deferred destruction.
type Deletion struct {
	Kind   DeletionKind
	Handle driver.Destroyer
}

// DeletionQueue holds destructions deferred until the
// frame slot that owns the queue is known to have
// completed.
type DeletionQueue struct {
	alloc Allocator
	q     []Deletion
}

// NewDeletionQueue creates a new deletion queue.
// Buffers are destroyed through alloc when it is not nil.
func NewDeletionQueue(alloc Allocator) *DeletionQueue {
	return &DeletionQueue{alloc: alloc}
}

// Push appends d to the queue.
// Deleting a nil handle has no effect.
func (q *DeletionQueue) Push(d Deletion) {
	if d.Handle == nil {
		return
	}
	q.q = append(q.q, d)
}

// Len returns the number of pending deletions.
func (q *DeletionQueue) Len() int { return len(q.q) }

// Flush destroys every pending handle, most recently
// pushed first, and empties the queue.
func (q *DeletionQueue) Flush() {
	for i := len(q.q) - 1; i >= 0; i-- {
		d := q.q[i]
		if d.Kind == DBuffer && q.alloc != nil {
			if buf, ok := d.Handle.(driver.Buffer); ok {
				q.alloc.DestroyBuffer(buf)
				continue
			}
		}
		d.Handle.Destroy()
	}
	clear(q.q)
	q.q = q.q[:0]
}
