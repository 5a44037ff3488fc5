// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/rgraph"
)

// blockSize is the granularity of buffer allocations.
// It is also the minimum alignment of constant data.
const blockSize = 256

// Allocator implements rgraph.Allocator on a driver.GPU.
// It keeps track of the buffers it created so that leaks
// can be detected.
type Allocator struct {
	gpu   driver.GPU
	live  map[driver.Buffer]int64
	bytes int64
}

// NewAllocator creates a new allocator.
func NewAllocator(gpu driver.GPU) *Allocator {
	return &Allocator{gpu: gpu, live: make(map[driver.Buffer]int64)}
}

// NewBuffer creates a buffer of at least size bytes.
// Sizes are rounded up to a multiple of 256 bytes.
// Only MemGPU buffers are not host visible.
func (a *Allocator) NewBuffer(size int64, usg driver.Usage, mem rgraph.MemoryKind) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("engine: invalid buffer size %d", size)
	}
	n := (size + blockSize - 1) &^ (blockSize - 1)
	buf, err := a.gpu.NewBuffer(n, mem != rgraph.MemGPU, usg)
	if err != nil {
		return nil, errors.Wrapf(err, "engine: buffer of %d bytes", n)
	}
	a.live[buf] = n
	a.bytes += n
	return buf, nil
}

// DestroyBuffer destroys a buffer created by a.
func (a *Allocator) DestroyBuffer(buf driver.Buffer) {
	n, ok := a.live[buf]
	if !ok {
		rgraph.Logger().Warn("engine: destroying foreign buffer")
	} else {
		delete(a.live, buf)
		a.bytes -= n
	}
	buf.Destroy()
}

// Live returns the number of buffers created by a that
// were not destroyed yet and their total size.
func (a *Allocator) Live() (count int, bytes int64) { return len(a.live), a.bytes }
