// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package rgraph implements a frame graph.
//
// Features register passes against a Graph on every Build.
// Each pass declares the named images and buffers it uses,
// and the graph plans the layout transitions that must
// precede it. Run then records every pass into the command
// buffer of a Frame, surrounded by timestamp queries that
// ReadTimestamps converts into per-pass GPU times once the
// frame's work has completed.
//
// Passes execute in the order they were added. The graph
// does not reorder passes nor check that producers precede
// consumers.
package rgraph

import (
	"weak"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// Feature is the interface that rendering features
// implement to add passes to a graph.
type Feature interface {
	// Register adds the feature's passes to g.
	// It is called on every Build and may add a different
	// set of passes each time.
	Register(g *Graph)
}

// AddFeature adds f to g.
// g does not keep f alive: once f is garbage collected,
// Build skips it.
// Features are registered in the order they were added.
func AddFeature[T any, P interface {
	*T
	Feature
}](g *Graph, f P) {
	wp := weak.Make((*T)(f))
	g.features = append(g.features, func() Feature {
		if p := wp.Value(); p != nil {
			return P(p)
		}
		return nil
	})
}

type passEntry struct {
	Pass
	exec func(*PassExec)
}

// TransitionRecord is a planned layout transition.
type TransitionRecord struct {
	Name   string
	Before driver.Layout
	After  driver.Layout
}

// Graph is a frame graph.
// It is not safe for concurrent use.
type Graph struct {
	images  map[string]*imageEntry
	buffers map[string]driver.Buffer
	snap    *Resources

	features []func() Feature

	passes []*passEntry
	// trans[i] holds the transitions preceding passes[i].
	trans [][]TransitionRecord
	// Working layouts used during planning.
	layouts map[string]driver.Layout

	gpu    driver.GPU
	extent driver.Dim3D
	alloc  Allocator

	// Timestamp readback storage.
	ts []uint64
}

// New creates a new, empty graph.
func New() *Graph {
	return &Graph{
		images:  make(map[string]*imageEntry),
		buffers: make(map[string]driver.Buffer),
		layouts: make(map[string]driver.Layout),
	}
}

// SetRequiredData sets the GPU, the draw extent and the
// allocator used by Build and Run.
// It must be called before the first Build and whenever
// the extent changes.
func (g *Graph) SetRequiredData(gpu driver.GPU, extent driver.Dim3D, alloc Allocator) {
	g.gpu = gpu
	g.extent = extent
	g.alloc = alloc
}

// Extent returns the draw extent.
func (g *Graph) Extent() driver.Dim3D { return g.extent }

// GPU returns the GPU set by SetRequiredData.
func (g *Graph) GPU() driver.GPU { return g.gpu }

func (g *Graph) addPass(kind PassKind, name string, setup func(*Pass), exec func(*PassExec)) {
	e := &passEntry{Pass: Pass{name: name, kind: kind}, exec: exec}
	if setup != nil {
		setup(&e.Pass)
	}
	g.passes = append(g.passes, e)
}

// AddComputePass adds a compute pass.
// setup is called immediately to declare the resources
// the pass uses. exec is called by Run.
func (g *Graph) AddComputePass(name string, setup func(*Pass), exec func(*PassExec)) {
	g.addPass(Compute, name, setup, exec)
}

// AddGraphicsPass adds a graphics pass.
// Run wraps the call to exec in a render pass over the
// declared attachments.
func (g *Graph) AddGraphicsPass(name string, setup func(*Pass), exec func(*PassExec)) {
	g.addPass(Graphics, name, setup, exec)
}

// Passes returns the passes of the last Build, in
// execution order.
func (g *Graph) Passes() []*Pass {
	s := make([]*Pass, len(g.passes))
	for i, e := range g.passes {
		s[i] = &e.Pass
	}
	return s
}

// TransitionTable returns a copy of the transitions
// planned by the last Build. The i-th element holds the
// transitions that precede the i-th pass.
func (g *Graph) TransitionTable() [][]TransitionRecord {
	t := make([][]TransitionRecord, len(g.trans))
	for i := range g.trans {
		t[i] = make([]TransitionRecord, len(g.trans[i]))
		copy(t[i], g.trans[i])
	}
	return t
}

// Build discards the previous passes, asks every live
// feature to register its passes and plans transitions.
// If f is not nil, Build also makes sure that its query
// pool can hold every timestamp Run will write.
func (g *Graph) Build(f *Frame) {
	clear(g.passes)
	g.passes = g.passes[:0]

	live := g.features[:0]
	for _, ref := range g.features {
		ft := ref()
		if ft == nil {
			Logger().Debug("rgraph: skipping expired feature")
			continue
		}
		live = append(live, ref)
		ft.Register(g)
	}
	clear(g.features[len(live):])
	g.features = live

	g.plan()

	if f != nil {
		g.ensureQueries(f)
	}
}

// plan computes g.trans.
func (g *Graph) plan() {
	clear(g.layouts)
	for i := range g.trans {
		g.trans[i] = g.trans[i][:0]
	}
	if n := len(g.passes); cap(g.trans) < n {
		g.trans = append(g.trans[:cap(g.trans)], make([][]TransitionRecord, n-cap(g.trans))...)
	} else {
		g.trans = g.trans[:n]
	}
	for i, p := range g.passes {
		ts := g.trans[i]
		for _, name := range p.writes {
			ts = g.require(ts, name, driver.LCommon)
		}
		for _, r := range p.reads {
			ts = g.require(ts, r.Name, r.Layout)
		}
		for _, c := range p.color {
			ts = g.require(ts, c.Name, driver.LColorTarget)
		}
		if p.depth != nil {
			ts = g.require(ts, p.depth.Name, driver.LDSTarget)
		}
		g.trans[i] = ts
	}
}

// require appends a transition to ts if name is not in
// layout already.
func (g *Graph) require(ts []TransitionRecord, name string, layout driver.Layout) []TransitionRecord {
	cur := g.layouts[name]
	if cur == layout {
		return ts
	}
	g.layouts[name] = layout
	return append(ts, TransitionRecord{name, cur, layout})
}

// timestampCount returns the number of timestamps Run
// writes for n passes.
func timestampCount(n int) int { return 2*n + 2 }

func (g *Graph) ensureQueries(f *Frame) {
	n := timestampCount(len(g.passes))
	if f.Queries != nil && f.Queries.Len() >= n {
		return
	}
	if g.gpu == nil {
		fatal(errors.New("rgraph: Build without SetRequiredData"))
	}
	qp, err := g.gpu.NewQueryPool(n)
	if err != nil {
		fatal(errors.Wrapf(err, "rgraph: query pool of %d", n))
	}
	if f.Queries != nil {
		Logger().Debug("rgraph: query pool replaced", "old", f.Queries.Len(), "new", n)
		f.Deletion.Push(Deletion{DQueryPool, f.Queries})
	}
	f.Queries = qp
	f.Timing = Timing{}
}

// fatal panics with err.
// GPU failures during Build and Run are not recoverable.
func fatal(err error) {
	Logger().Error("rgraph: fatal", "err", err)
	panic(err)
}
