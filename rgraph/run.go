// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// PassExec is what a pass's exec callback receives.
// It is only valid during the call.
type PassExec struct {
	// Command buffer being recorded.
	Cmd driver.CmdBuffer
	GPU driver.GPU
	// Draw extent.
	Extent driver.Dim3D
	// Tracked resources.
	Resources Resources
	// Transient buffers created for this pass.
	Buffers map[string]driver.Buffer
	// Deletion queue and descriptor allocator of the
	// frame being recorded.
	Deletion *DeletionQueue
	Desc     *DescAllocator

	// Counters reported in Stats.
	Draws      int
	Dispatches int
	Triangles  int

	pass *Pass
}

// Pass returns the pass being executed.
func (e *PassExec) Pass() *Pass { return e.pass }

// Buffer returns the named buffer, looking at transient
// buffers first.
func (e *PassExec) Buffer(name string) driver.Buffer {
	if b, ok := e.Buffers[name]; ok {
		return b
	}
	return e.Resources.Buffer(name)
}

// Dispatch records a dispatch and counts it.
func (e *PassExec) Dispatch(x, y, z int) {
	e.Cmd.Dispatch(x, y, z)
	e.Dispatches++
}

// Draw records a triangle list draw and counts it.
func (e *PassExec) Draw(vertCount, instCount, baseVert, baseInst int) {
	e.Cmd.Draw(vertCount, instCount, baseVert, baseInst)
	e.Draws++
	e.Triangles += vertCount / 3 * max(instCount, 1)
}

// DrawIndexed records an indexed triangle list draw and
// counts it.
func (e *PassExec) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	e.Cmd.DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst)
	e.Draws++
	e.Triangles += idxCount / 3 * max(instCount, 1)
}

// LayoutScope returns the synchronization and access
// scopes of accesses to an image in the given layout.
func LayoutScope(l driver.Layout) (driver.Sync, driver.Access) {
	switch l {
	case driver.LCommon:
		return driver.SComputeShading, driver.AShaderRead | driver.AShaderWrite
	case driver.LColorTarget:
		return driver.SColorOutput, driver.AColorRead | driver.AColorWrite
	case driver.LDSTarget:
		return driver.SDSOutput, driver.ADSRead | driver.ADSWrite
	case driver.LDSRead:
		return driver.SDSOutput | driver.SFragmentShading, driver.ADSRead | driver.AShaderRead
	case driver.LShaderRead:
		return driver.SFragmentShading | driver.SComputeShading, driver.AShaderRead
	case driver.LResolveSrc:
		return driver.SResolve, driver.AResolveRead
	case driver.LResolveDst:
		return driver.SResolve, driver.AResolveWrite
	case driver.LCopySrc:
		return driver.SCopy, driver.ACopyRead
	case driver.LCopyDst:
		return driver.SCopy, driver.ACopyWrite
	case driver.LPresent:
		return driver.SAll, driver.ANone
	}
	return driver.SNone, driver.ANone
}

// NewTransition returns a transition of img from before
// to after, with barrier scopes derived from the layouts.
func NewTransition(img Image, before, after driver.Layout) driver.Transition {
	sb, ab := LayoutScope(before)
	sa, aa := LayoutScope(after)
	return driver.Transition{
		Barrier: driver.Barrier{
			SyncBefore:   sb,
			SyncAfter:    sa,
			AccessBefore: ab,
			AccessAfter:  aa,
		},
		LayoutBefore: before,
		LayoutAfter:  after,
		Img:          img.Img,
		Layers:       max(img.Layers, 1),
		Levels:       max(img.Levels, 1),
	}
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Run records every pass of the last Build into f.Cmd.
// The command buffer is reset and begun; it is left
// recording so that the caller can append commands
// before ending and committing it.
// The returned Timing is also stored in f.Timing.
// GPU failures cause a panic.
func (g *Graph) Run(f *Frame) Timing {
	start := time.Now()
	cb := f.Cmd
	n := timestampCount(len(g.passes))
	if f.Queries == nil || f.Queries.Len() < n {
		fatal(errors.New("rgraph: Run without Build"))
	}
	if err := cb.Reset(); err != nil {
		fatal(errors.Wrap(err, "rgraph: command buffer reset"))
	}
	if err := cb.Begin(); err != nil {
		fatal(errors.Wrap(err, "rgraph: command buffer begin"))
	}
	cb.ResetQueries(f.Queries, 0, n)

	tm := Timing{Count: n, Passes: make([]PassIndex, 0, len(g.passes))}
	st := Stats{Passes: make([]PassStats, 0, len(g.passes))}
	q := 0
	cb.WriteTimestamp(f.Queries, driver.SNone, q)
	tm.Total[0] = q
	q++

	res := g.Resources()
	var trans []driver.Transition
	for i, p := range g.passes {
		pstart := q
		cb.WriteTimestamp(f.Queries, driver.SNone, q)
		q++

		if len(g.trans[i]) > 0 {
			trans = trans[:0]
			for _, t := range g.trans[i] {
				trans = append(trans, NewTransition(res.Image(t.Name), t.Before, t.After))
				if e, ok := g.images[t.Name]; ok {
					e.layout = t.After
				}
			}
			cb.Transition(trans)
		}

		var bufs map[string]driver.Buffer
		if len(p.creates) > 0 {
			bufs = make(map[string]driver.Buffer, len(p.creates))
			for _, r := range p.creates {
				buf, err := g.alloc.NewBuffer(r.Size, r.Usage, MemCPUToGPU)
				if err != nil {
					fatal(errors.Wrapf(err, "rgraph: transient buffer %q of pass %q", r.Name, p.name))
				}
				f.Deletion.Push(Deletion{DBuffer, buf})
				bufs[r.Name] = buf
			}
		}

		pe := &PassExec{
			Cmd:       cb,
			GPU:       g.gpu,
			Extent:    g.extent,
			Resources: res,
			Buffers:   bufs,
			Deletion:  f.Deletion,
			Desc:      f.Desc,
			pass:      &p.Pass,
		}

		if p.kind == Graphics {
			color, ds := targets(&p.Pass, res)
			cb.BeginPass(g.extent.Width, g.extent.Height, max(g.extent.Depth, 1), color, ds)
		}
		cpu := time.Now()
		if p.exec != nil {
			p.exec(pe)
		}
		cpuMs := ms(time.Since(cpu))
		if p.kind == Graphics {
			cb.EndPass()
		}

		cb.WriteTimestamp(f.Queries, driver.SAll, q)
		q++
		tm.Passes = append(tm.Passes, PassIndex{p.name, pstart})
		st.Passes = append(st.Passes, PassStats{
			Name:       p.name,
			Kind:       p.kind,
			CPU:        cpuMs,
			Draws:      pe.Draws,
			Dispatches: pe.Dispatches,
			Triangles:  pe.Triangles,
		})
		st.Draws += pe.Draws
		st.Dispatches += pe.Dispatches
		st.Triangles += pe.Triangles
	}

	cb.WriteTimestamp(f.Queries, driver.SAll, q)
	tm.Total[1] = q

	st.CPU = ms(time.Since(start))
	f.Timing = tm
	f.Stats = st
	return tm
}

// targets returns the render targets of a graphics pass.
// Attachments with a clear value are cleared, the others
// loaded.
func targets(p *Pass, res Resources) ([]driver.ColorTarget, *driver.DSTarget) {
	color := make([]driver.ColorTarget, len(p.color))
	for i, a := range p.color {
		color[i] = driver.ColorTarget{
			Color: res.Image(a.Name).View,
			Load:  driver.LLoad,
			Store: driver.SDontCare,
		}
		if a.Clear != nil {
			color[i].Load = driver.LClear
			color[i].Clear = *a.Clear
		}
		if a.Store {
			color[i].Store = driver.SStore
		}
	}
	if p.depth == nil {
		return color, nil
	}
	ds := &driver.DSTarget{
		DS:     res.Image(p.depth.Name).View,
		LoadD:  driver.LLoad,
		StoreD: driver.SDontCare,
		LoadS:  driver.LDontCare,
		StoreS: driver.SDontCare,
	}
	if p.depth.Clear != nil {
		ds.LoadD = driver.LClear
		ds.ClearD = p.depth.Clear.Depth
		ds.ClearS = p.depth.Clear.Stencil
	}
	if p.depth.Store {
		ds.StoreD = driver.SStore
	}
	return color, ds
}
