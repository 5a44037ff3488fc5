// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package nulldrv

import (
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// Op identifies a recorded command.
type Op int

// Recorded commands.
const (
	OpBeginPass Op = iota
	OpEndPass
	OpSetPipeline
	OpSetViewport
	OpSetScissor
	OpSetVertexBuf
	OpSetIndexBuf
	OpSetDescTableGraph
	OpSetDescTableComp
	OpDraw
	OpDrawIndexed
	OpDispatch
	OpBarrier
	OpTransition
	OpResetQueries
	OpWriteTimestamp
)

var opNames = [...]string{
	OpBeginPass:         "BeginPass",
	OpEndPass:           "EndPass",
	OpSetPipeline:       "SetPipeline",
	OpSetViewport:       "SetViewport",
	OpSetScissor:        "SetScissor",
	OpSetVertexBuf:      "SetVertexBuf",
	OpSetIndexBuf:       "SetIndexBuf",
	OpSetDescTableGraph: "SetDescTableGraph",
	OpSetDescTableComp:  "SetDescTableComp",
	OpDraw:              "Draw",
	OpDrawIndexed:       "DrawIndexed",
	OpDispatch:          "Dispatch",
	OpBarrier:           "Barrier",
	OpTransition:        "Transition",
	OpResetQueries:      "ResetQueries",
	OpWriteTimestamp:    "WriteTimestamp",
}

// String implements fmt.Stringer.
func (o Op) String() string {
	if o < 0 || int(o) >= len(opNames) {
		return "Op(?)"
	}
	return opNames[o]
}

// Cmd is a recorded command.
// Only the fields relevant to Op are set.
type Cmd struct {
	Op Op

	// OpTransition.
	Transitions []driver.Transition
	// OpBarrier.
	Barriers []driver.Barrier

	// OpBeginPass.
	Color []driver.ColorTarget
	DS    *driver.DSTarget

	// OpSetPipeline.
	Pipeline driver.Pipeline
	// OpSetIndexBuf and OpSetVertexBuf (first buffer).
	Buf driver.Buffer
	// OpSetDescTable*.
	Table    driver.DescTable
	HeapCopy []int

	// OpResetQueries and OpWriteTimestamp.
	Pool  driver.QueryPool
	Sync  driver.Sync
	Index int

	// Integer arguments, in call order.
	// OpBeginPass: width, height, layers.
	// OpDraw: vertCount, instCount, baseVert, baseInst.
	// OpDrawIndexed: idxCount, instCount, baseIdx, vertOff, baseInst.
	// OpDispatch: x, y, z.
	// OpResetQueries: first, n.
	// OpSet*: start (and index format for OpSetIndexBuf).
	Args [5]int
}

// CmdBuffer implements driver.CmdBuffer.
type CmdBuffer struct {
	recording bool
	inPass    bool
	ended     bool
	bad       error
	log       []Cmd
}

// NewCmdBuffer creates a new command buffer.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{log: make([]Cmd, 0, 64)}, nil
}

// Log returns the commands recorded since the last call
// to Begin. The slice must not be modified.
func (cb *CmdBuffer) Log() []Cmd { return cb.log }

// Ops returns the Op of every recorded command, in order.
func (cb *CmdBuffer) Ops() []Op {
	ops := make([]Op, len(cb.log))
	for i := range cb.log {
		ops[i] = cb.log[i].Op
	}
	return ops
}

func (cb *CmdBuffer) record(c Cmd) {
	if !cb.recording {
		panic("nulldrv: command recorded outside of Begin/End")
	}
	cb.log = append(cb.log, c)
}

func (cb *CmdBuffer) outside(op Op) {
	if cb.inPass && cb.bad == nil {
		cb.bad = errors.Errorf("nulldrv: %s inside render pass", op)
	}
}

func (cb *CmdBuffer) inside(op Op) {
	if !cb.inPass && cb.bad == nil {
		cb.bad = errors.Errorf("nulldrv: %s outside render pass", op)
	}
}

// Begin prepares the command buffer for recording.
func (cb *CmdBuffer) Begin() error {
	if cb.recording {
		return errors.New("nulldrv: command buffer already recording")
	}
	cb.recording = true
	cb.inPass = false
	cb.ended = false
	cb.bad = nil
	cb.log = cb.log[:0]
	return nil
}

// IsRecording returns whether cb is recording.
func (cb *CmdBuffer) IsRecording() bool { return cb.recording }

// BeginPass begins a render pass.
func (cb *CmdBuffer) BeginPass(width, height, layers int, color []driver.ColorTarget, ds *driver.DSTarget) {
	cb.outside(OpBeginPass)
	cb.inPass = true
	c := Cmd{Op: OpBeginPass, Args: [5]int{width, height, layers}}
	c.Color = append([]driver.ColorTarget(nil), color...)
	if ds != nil {
		x := *ds
		c.DS = &x
	}
	cb.record(c)
}

// EndPass ends the current render pass.
func (cb *CmdBuffer) EndPass() {
	cb.inside(OpEndPass)
	cb.inPass = false
	cb.record(Cmd{Op: OpEndPass})
}

// SetPipeline sets the pipeline.
func (cb *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.record(Cmd{Op: OpSetPipeline, Pipeline: pl})
}

// SetViewport sets viewports.
func (cb *CmdBuffer) SetViewport(vp ...driver.Viewport) {
	cb.record(Cmd{Op: OpSetViewport, Args: [5]int{len(vp)}})
}

// SetScissor sets scissor rectangles.
func (cb *CmdBuffer) SetScissor(sciss ...driver.Scissor) {
	cb.record(Cmd{Op: OpSetScissor, Args: [5]int{len(sciss)}})
}

// SetVertexBuf sets vertex buffers.
func (cb *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	c := Cmd{Op: OpSetVertexBuf, Args: [5]int{start, len(buf)}}
	if len(buf) > 0 {
		c.Buf = buf[0]
	}
	cb.record(c)
}

// SetIndexBuf sets the index buffer.
func (cb *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	if off&3 != 0 && cb.bad == nil {
		cb.bad = errors.Errorf("nulldrv: misaligned index buffer offset %d", off)
	}
	cb.record(Cmd{Op: OpSetIndexBuf, Buf: buf, Args: [5]int{int(format)}})
}

// SetDescTableGraph sets a graphics descriptor table.
func (cb *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	cb.record(Cmd{
		Op:       OpSetDescTableGraph,
		Table:    table,
		HeapCopy: append([]int(nil), heapCopy...),
		Args:     [5]int{start},
	})
}

// SetDescTableComp sets a compute descriptor table.
func (cb *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	cb.record(Cmd{
		Op:       OpSetDescTableComp,
		Table:    table,
		HeapCopy: append([]int(nil), heapCopy...),
		Args:     [5]int{start},
	})
}

// Draw draws primitives.
func (cb *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.inside(OpDraw)
	cb.record(Cmd{Op: OpDraw, Args: [5]int{vertCount, instCount, baseVert, baseInst}})
}

// DrawIndexed draws indexed primitives.
func (cb *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.inside(OpDrawIndexed)
	cb.record(Cmd{Op: OpDrawIndexed, Args: [5]int{idxCount, instCount, baseIdx, vertOff, baseInst}})
}

// Dispatch dispatches compute thread groups.
func (cb *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	cb.outside(OpDispatch)
	cb.record(Cmd{Op: OpDispatch, Args: [5]int{grpCountX, grpCountY, grpCountZ}})
}

// Barrier inserts global barriers.
func (cb *CmdBuffer) Barrier(b []driver.Barrier) {
	cb.outside(OpBarrier)
	cb.record(Cmd{Op: OpBarrier, Barriers: append([]driver.Barrier(nil), b...)})
}

// Transition inserts layout transitions.
func (cb *CmdBuffer) Transition(t []driver.Transition) {
	cb.outside(OpTransition)
	cb.record(Cmd{Op: OpTransition, Transitions: append([]driver.Transition(nil), t...)})
}

// ResetQueries resets queries.
func (cb *CmdBuffer) ResetQueries(pool driver.QueryPool, first, n int) {
	cb.outside(OpResetQueries)
	if p, ok := pool.(*QueryPool); ok && first+n > len(p.val) && cb.bad == nil {
		cb.bad = errors.Errorf("nulldrv: query range [%d, %d) out of bounds", first, first+n)
	}
	cb.record(Cmd{Op: OpResetQueries, Pool: pool, Args: [5]int{first, n}})
}

// WriteTimestamp writes a timestamp query.
func (cb *CmdBuffer) WriteTimestamp(pool driver.QueryPool, sync driver.Sync, index int) {
	if p, ok := pool.(*QueryPool); ok && index >= len(p.val) && cb.bad == nil {
		cb.bad = errors.Errorf("nulldrv: query %d out of bounds", index)
	}
	cb.record(Cmd{Op: OpWriteTimestamp, Pool: pool, Sync: sync, Index: index})
}

// End ends command recording.
// It fails if a render pass is still open or if any
// recorded command was invalid.
func (cb *CmdBuffer) End() error {
	if !cb.recording {
		return errors.New("nulldrv: command buffer not recording")
	}
	cb.recording = false
	err := cb.bad
	if err == nil && cb.inPass {
		err = errors.New("nulldrv: render pass not ended")
	}
	if err != nil {
		cb.Reset()
		return err
	}
	cb.ended = true
	return nil
}

// Reset discards all recorded commands.
func (cb *CmdBuffer) Reset() error {
	cb.recording = false
	cb.inPass = false
	cb.ended = false
	cb.bad = nil
	cb.log = cb.log[:0]
	return nil
}

// Destroy destroys the command buffer.
func (cb *CmdBuffer) Destroy() { cb.log = nil }

// cost returns how many ticks of the simulated clock the
// command takes to execute.
func (c *Cmd) cost() uint64 {
	switch c.Op {
	case OpDraw:
		return uint64(max(c.Args[0], 0) * max(c.Args[1], 1))
	case OpDrawIndexed:
		return uint64(max(c.Args[0], 0) * max(c.Args[1], 1))
	case OpDispatch:
		return uint64(max(c.Args[0], 0) * max(c.Args[1], 0) * max(c.Args[2], 0))
	case OpTransition:
		return uint64(len(c.Transitions))
	case OpBarrier, OpBeginPass, OpEndPass:
		return 1
	}
	return 0
}

// execute runs the recorded commands starting at tick
// and returns the resulting clock value.
// The clock wraps around on overflow.
func (cb *CmdBuffer) execute(tick uint64) uint64 {
	for i := range cb.log {
		c := &cb.log[i]
		tick += c.cost()
		switch c.Op {
		case OpResetQueries:
			if p, ok := c.Pool.(*QueryPool); ok {
				p.reset(c.Args[0], c.Args[1])
			}
		case OpWriteTimestamp:
			if p, ok := c.Pool.(*QueryPool); ok {
				p.write(c.Index, tick)
			}
		}
	}
	cb.ended = false
	return tick
}
