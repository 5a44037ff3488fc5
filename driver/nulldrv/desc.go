// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package nulldrv

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct {
	data []byte
}

// NewShaderCode creates a new shader code.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if len(data) == 0 {
		return nil, errors.New("nulldrv: empty shader code")
	}
	return &ShaderCode{data: append([]byte(nil), data...)}, nil
}

// Destroy destroys the shader code.
func (s *ShaderCode) Destroy() { s.data = nil }

// DescHeap implements driver.DescHeap.
// It keeps what was written to each descriptor so that
// it can be inspected.
type DescHeap struct {
	ds []driver.Descriptor
	// cpys[cpy][i] is the storage of ds[i].
	cpys [][]descData
}

type descData struct {
	buf []driver.Buffer
	iv  []driver.ImageView
}

// NewDescHeap creates a new descriptor heap.
func (d *Driver) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	if len(ds) == 0 {
		return nil, errors.New("nulldrv: empty descriptor heap")
	}
	return &DescHeap{ds: append([]driver.Descriptor(nil), ds...)}, nil
}

// New creates storage for n heap copies.
func (h *DescHeap) New(n int) error {
	if n < 0 {
		return errors.Errorf("nulldrv: invalid heap copy count %d", n)
	}
	if n == len(h.cpys) {
		return nil
	}
	h.cpys = make([][]descData, n)
	for i := range h.cpys {
		h.cpys[i] = make([]descData, len(h.ds))
		for j, d := range h.ds {
			switch d.Type {
			case driver.DBuffer, driver.DConstant:
				h.cpys[i][j].buf = make([]driver.Buffer, d.Len)
			case driver.DImage, driver.DTexture:
				h.cpys[i][j].iv = make([]driver.ImageView, d.Len)
			}
		}
	}
	return nil
}

func (h *DescHeap) index(nr int) int {
	for i := range h.ds {
		if h.ds[i].Nr == nr {
			return i
		}
	}
	panic("nulldrv: no descriptor with the given number")
}

// SetBuffer updates buffer descriptors.
func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	i := h.index(nr)
	copy(h.cpys[cpy][i].buf[start:], buf)
}

// SetImage updates image descriptors.
func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	i := h.index(nr)
	copy(h.cpys[cpy][i].iv[start:], iv)
}

// Buffer returns the buffer last set for the given
// descriptor element.
func (h *DescHeap) Buffer(cpy, nr, idx int) driver.Buffer {
	return h.cpys[cpy][h.index(nr)].buf[idx]
}

// ImageView returns the image view last set for the given
// descriptor element.
func (h *DescHeap) ImageView(cpy, nr, idx int) driver.ImageView {
	return h.cpys[cpy][h.index(nr)].iv[idx]
}

// Count returns the number of heap copies.
func (h *DescHeap) Count() int { return len(h.cpys) }

// Destroy destroys the descriptor heap.
func (h *DescHeap) Destroy() { h.cpys = nil }

// DescTable implements driver.DescTable.
type DescTable struct {
	dh []driver.DescHeap
}

// NewDescTable creates a new descriptor table.
func (d *Driver) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	return &DescTable{dh: append([]driver.DescHeap(nil), dh...)}, nil
}

// Heaps returns the heaps of the table.
func (t *DescTable) Heaps() []driver.DescHeap { return t.dh }

// Destroy destroys the descriptor table.
func (t *DescTable) Destroy() { t.dh = nil }

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	state any
}

// NewPipeline creates a new pipeline.
func (d *Driver) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		if len(s.ColorFmt) > d.limit.MaxColorTargets {
			return nil, errors.New("nulldrv: too many color formats")
		}
		x := *s
		return &Pipeline{state: &x}, nil
	case *driver.CompState:
		x := *s
		return &Pipeline{state: &x}, nil
	}
	return nil, errors.Errorf("nulldrv: invalid pipeline state %T", state)
}

// State returns a copy of the state the pipeline was
// created with (*driver.GraphState or *driver.CompState).
func (p *Pipeline) State() any { return p.state }

// Destroy destroys the pipeline.
func (p *Pipeline) Destroy() { p.state = nil }
