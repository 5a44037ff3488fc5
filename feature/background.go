// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package feature implements rendering features that
// register passes in a frame graph.
package feature

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/rgraph"
)

// Pass and buffer names.
const (
	BackgroundPass = "background"
	skyBuffer      = "sky"
)

// Size of a compute work group in either dimension.
const groupSize = 16

// Sky holds the parameters of the background shader.
type Sky [4]float32

const skySize = int64(unsafe.Sizeof(Sky{}))

// DefaultSky is the sky that NewBackground sets.
var DefaultSky = Sky{0.1, 0.2, 0.4, 0.97}

// Background draws a procedural sky into the draw image
// using a compute shader.
type Background struct {
	Sky Sky

	pool  *rgraph.DescPool
	table driver.DescTable
	pl    driver.Pipeline
}

// NewBackground creates a background feature.
// code is the compute shader binary, whose entry point
// must be named "main". nframe is the number of frame
// slots of the renderer.
func NewBackground(gpu driver.GPU, code []byte, nframe int) (b *Background, err error) {
	b = &Background{Sky: DefaultSky}
	defer func() {
		if err != nil {
			b.destroy()
			b = nil
		}
	}()
	if b.pool, err = rgraph.NewDescPool(gpu, []driver.Descriptor{
		{Type: driver.DImage, Stages: driver.SCompute, Nr: 0, Len: 1},
		{Type: driver.DConstant, Stages: driver.SCompute, Nr: 1, Len: 1},
	}, nframe, 1); err != nil {
		return
	}
	if b.table, err = gpu.NewDescTable([]driver.DescHeap{b.pool.Heap()}); err != nil {
		err = errors.Wrap(err, "feature: background descriptor table")
		return
	}
	shd, err := gpu.NewShaderCode(code)
	if err != nil {
		err = errors.Wrap(err, "feature: background shader")
		return
	}
	defer shd.Destroy()
	b.pl, err = gpu.NewPipeline(&driver.CompState{
		Func: driver.ShaderFunc{Code: shd, Name: "main"},
		Desc: b.table,
	})
	err = errors.Wrap(err, "feature: background pipeline")
	return
}

// Register adds the background pass to g.
func (b *Background) Register(g *rgraph.Graph) {
	g.AddComputePass(BackgroundPass, func(p *rgraph.Pass) {
		p.WritesImage(engine.DrawImage)
		p.CreatesBuffer(skyBuffer, skySize, driver.UShaderConst)
	}, b.draw)
}

func groups(n int) int {
	return int(math32.Ceil(float32(n) / groupSize))
}

func (b *Background) draw(e *rgraph.PassExec) {
	buf := e.Buffer(skyBuffer)
	copy(buf.Bytes(), unsafe.Slice((*byte)(unsafe.Pointer(&b.Sky)), skySize))

	cpy, ok := e.Desc.Alloc(b.pool)
	if !ok {
		rgraph.Logger().Warn("feature: background skipped", "reason", "no descriptor heap copy")
		return
	}
	heap := b.pool.Heap()
	heap.SetImage(cpy, 0, 0, []driver.ImageView{e.Resources.Image(engine.DrawImage).View})
	heap.SetBuffer(cpy, 1, 0, []driver.Buffer{buf}, []int64{0}, []int64{skySize})

	e.Cmd.SetPipeline(b.pl)
	e.Cmd.SetDescTableComp(b.table, 0, []int{cpy})
	e.Dispatch(groups(e.Extent.Width), groups(e.Extent.Height), 1)
}

// Free releases b's GPU resources.
// If q is not nil, their destruction is deferred to q.
func (b *Background) Free(q *rgraph.DeletionQueue) {
	if q == nil {
		b.destroy()
		return
	}
	// The queue runs in reverse.
	if b.pool != nil {
		q.Push(rgraph.Deletion{Kind: rgraph.DDescHeap, Handle: b.pool})
	}
	q.Push(rgraph.Deletion{Kind: rgraph.DDescTable, Handle: b.table})
	q.Push(rgraph.Deletion{Kind: rgraph.DPipeline, Handle: b.pl})
	*b = Background{Sky: b.Sky}
}

func (b *Background) destroy() {
	if b.pl != nil {
		b.pl.Destroy()
	}
	if b.table != nil {
		b.table.Destroy()
	}
	if b.pool != nil {
		b.pool.Destroy()
	}
	*b = Background{Sky: b.Sky}
}
