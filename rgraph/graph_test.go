// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/nulldrv"
)

type testAlloc struct {
	gpu       driver.GPU
	created   int
	destroyed int
}

func (a *testAlloc) NewBuffer(size int64, usg driver.Usage, mem MemoryKind) (driver.Buffer, error) {
	buf, err := a.gpu.NewBuffer(size, mem != MemGPU, usg)
	if err == nil {
		a.created++
	}
	return buf, err
}

func (a *testAlloc) DestroyBuffer(buf driver.Buffer) {
	a.destroyed++
	buf.Destroy()
}

type testEnv struct {
	drv   *nulldrv.Driver
	alloc *testAlloc
	g     *Graph
	f     *Frame
	draw  Image
	depth Image
}

func newImage(t *testing.T, d *nulldrv.Driver, pf driver.PixelFmt) Image {
	img, err := d.NewImage(pf, driver.Dim3D{Width: 64, Height: 48}, 1, 1, 1, driver.UGeneric)
	require.NoError(t, err)
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	require.NoError(t, err)
	return Image{Img: img, View: view}
}

func newTestEnv(t *testing.T) *testEnv {
	d := nulldrv.New()
	e := &testEnv{drv: d, alloc: &testAlloc{gpu: d}, g: New()}
	f, err := NewFrame(d, e.alloc, 0)
	require.NoError(t, err)
	e.f = f
	e.draw = newImage(t, d, driver.RGBA16Float)
	e.depth = newImage(t, d, driver.D32Float)
	e.g.AddTrackedImage("draw", driver.LUndefined, e.draw)
	e.g.AddTrackedImage("depth", driver.LUndefined, e.depth)
	e.g.SetRequiredData(d, driver.Dim3D{Width: 64, Height: 48}, e.alloc)
	return e
}

// submit ends the frame's command buffer, commits it and
// waits for completion.
func (e *testEnv) submit(t *testing.T) {
	require.NoError(t, e.f.Cmd.End())
	ch := make(chan *driver.WorkItem, 1)
	require.NoError(t, e.drv.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{e.f.Cmd}}, ch))
	select {
	case wk := <-ch:
		require.NoError(t, wk.Err)
	case <-time.After(time.Second):
		t.Fatal("work item not completed")
	}
}

type funcFeature struct {
	name string
	fn   func(*Graph)
}

func (f *funcFeature) Register(g *Graph) { f.fn(g) }

func TestConcreteScenario(t *testing.T) {
	e := newTestEnv(t)
	background := &funcFeature{"background", func(g *Graph) {
		g.AddComputePass("background",
			func(p *Pass) { p.WritesImage("draw") },
			func(pe *PassExec) { pe.Dispatch(4, 3, 1) })
	}}
	geometry := &funcFeature{"geometry", func(g *Graph) {
		g.AddGraphicsPass("geometry",
			func(p *Pass) {
				p.AddColorAttachment("draw", true, nil)
				p.AddDepthAttachment("depth", true, &driver.ClearValue{Depth: 0})
			},
			func(pe *PassExec) { pe.DrawIndexed(36, 1, 0, 0, 0) })
	}}
	AddFeature(e.g, background)
	AddFeature(e.g, geometry)

	e.g.Build(e.f)
	assert.Equal(t, [][]TransitionRecord{
		{{"draw", driver.LUndefined, driver.LCommon}},
		{
			{"draw", driver.LCommon, driver.LColorTarget},
			{"depth", driver.LUndefined, driver.LDSTarget},
		},
	}, e.g.TransitionTable())

	tm := e.g.Run(e.f)
	assert.True(t, e.f.Cmd.IsRecording())
	require.NoError(t, e.f.Cmd.End())

	cb := e.f.Cmd.(*nulldrv.CmdBuffer)
	assert.Equal(t, []nulldrv.Op{
		nulldrv.OpResetQueries,
		nulldrv.OpWriteTimestamp,
		nulldrv.OpWriteTimestamp,
		nulldrv.OpTransition,
		nulldrv.OpDispatch,
		nulldrv.OpWriteTimestamp,
		nulldrv.OpWriteTimestamp,
		nulldrv.OpTransition,
		nulldrv.OpBeginPass,
		nulldrv.OpDrawIndexed,
		nulldrv.OpEndPass,
		nulldrv.OpWriteTimestamp,
		nulldrv.OpWriteTimestamp,
	}, cb.Ops())

	log := cb.Log()
	var idx []int
	for _, c := range log {
		if c.Op == nulldrv.OpWriteTimestamp {
			idx = append(idx, c.Index)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, idx)

	t1 := log[3].Transitions
	require.Len(t, t1, 1)
	assert.Equal(t, e.draw.Img, t1[0].Img)
	assert.Equal(t, driver.LUndefined, t1[0].LayoutBefore)
	assert.Equal(t, driver.LCommon, t1[0].LayoutAfter)
	assert.Equal(t, driver.SComputeShading, t1[0].SyncAfter)

	t2 := log[7].Transitions
	require.Len(t, t2, 2)
	assert.Equal(t, e.draw.Img, t2[0].Img)
	assert.Equal(t, driver.LColorTarget, t2[0].LayoutAfter)
	assert.Equal(t, e.depth.Img, t2[1].Img)
	assert.Equal(t, driver.LDSTarget, t2[1].LayoutAfter)

	bp := log[8]
	assert.Equal(t, [5]int{64, 48, 1, 0, 0}, bp.Args)
	require.Len(t, bp.Color, 1)
	assert.Equal(t, e.draw.View, bp.Color[0].Color)
	assert.Equal(t, driver.LLoad, bp.Color[0].Load)
	assert.Equal(t, driver.SStore, bp.Color[0].Store)
	require.NotNil(t, bp.DS)
	assert.Equal(t, e.depth.View, bp.DS.DS)
	assert.Equal(t, driver.LClear, bp.DS.LoadD)
	assert.Equal(t, driver.SStore, bp.DS.StoreD)

	assert.Equal(t, Timing{
		Count:  6,
		Passes: []PassIndex{{"background", 1}, {"geometry", 3}},
		Total:  [2]int{0, 5},
	}, tm)
	assert.Equal(t, tm, e.f.Timing)

	l, ok := e.g.Layout("draw")
	assert.True(t, ok)
	assert.Equal(t, driver.LColorTarget, l)
	l, _ = e.g.Layout("depth")
	assert.Equal(t, driver.LDSTarget, l)

	assert.Equal(t, 1, e.f.Stats.Dispatches)
	assert.Equal(t, 1, e.f.Stats.Draws)
	assert.Equal(t, 12, e.f.Stats.Triangles)
	require.Len(t, e.f.Stats.Passes, 2)
	assert.Equal(t, Graphics, e.f.Stats.Passes[1].Kind)
	runtime.KeepAlive(background)
	runtime.KeepAlive(geometry)
}

func TestTransitionMinimality(t *testing.T) {
	g := New()
	g.AddComputePass("produce", func(p *Pass) { p.WritesImage("x") }, nil)
	g.AddComputePass("consume", func(p *Pass) { p.ReadsImage("x", driver.LCommon) }, nil)
	g.plan()
	assert.Equal(t, [][]TransitionRecord{
		{{"x", driver.LUndefined, driver.LCommon}},
		{},
	}, g.TransitionTable())
}

func TestTransitionOrder(t *testing.T) {
	g := New()
	g.AddGraphicsPass("p", func(p *Pass) {
		p.AddDepthAttachment("d", false, nil)
		p.AddColorAttachment("c", true, nil)
		p.ReadsImage("r", driver.LShaderRead)
		p.WritesImage("w")
	}, nil)
	g.plan()
	assert.Equal(t, [][]TransitionRecord{{
		{"w", driver.LUndefined, driver.LCommon},
		{"r", driver.LUndefined, driver.LShaderRead},
		{"c", driver.LUndefined, driver.LColorTarget},
		{"d", driver.LUndefined, driver.LDSTarget},
	}}, g.TransitionTable())
}

func TestLayoutConvergence(t *testing.T) {
	g := New()
	for range 5 {
		g.AddComputePass("write", func(p *Pass) { p.WritesImage("x") }, nil)
	}
	g.plan()
	var n int
	for i, ts := range g.TransitionTable() {
		n += len(ts)
		if i > 0 {
			assert.Empty(t, ts)
		}
	}
	assert.Equal(t, 1, n)
}

func TestReadBeforeWrite(t *testing.T) {
	g := New()
	g.AddComputePass("a", func(p *Pass) { p.ReadsImage("x", driver.LUndefined) }, nil)
	g.AddComputePass("b", func(p *Pass) { p.ReadsImage("x", driver.LShaderRead) }, nil)
	g.AddComputePass("c", func(p *Pass) {
		p.ReadsBuffer("buf")
		p.WritesBuffer("buf")
	}, nil)
	g.plan()
	assert.Equal(t, [][]TransitionRecord{
		{},
		{{"x", driver.LUndefined, driver.LShaderRead}},
		{},
	}, g.TransitionTable())
}

func TestIdempotentRebuild(t *testing.T) {
	e := newTestEnv(t)
	ft := &funcFeature{"f", func(g *Graph) {
		g.AddComputePass("a", func(p *Pass) { p.WritesImage("draw") }, nil)
		g.AddGraphicsPass("b", func(p *Pass) {
			p.ReadsImage("draw", driver.LShaderRead)
			p.AddColorAttachment("out", true, nil)
			p.AddDepthAttachment("depth", false, nil)
		}, nil)
		g.AddComputePass("c", func(p *Pass) { p.WritesImage("out") }, nil)
	}}
	AddFeature(e.g, ft)
	e.g.Build(e.f)
	first := e.g.TransitionTable()
	e.g.Run(e.f)
	e.f.Cmd.Reset()
	e.g.Build(e.f)
	assert.Equal(t, first, e.g.TransitionTable())
	assert.Len(t, first, 3)
	runtime.KeepAlive(ft)
}

func TestOrderingFidelity(t *testing.T) {
	e := newTestEnv(t)
	names := []string{"shadow", "background", "gbuffer", "lighting", "post"}
	a := &funcFeature{"a", func(g *Graph) {
		for _, n := range names[:2] {
			g.AddComputePass(n, nil, nil)
		}
	}}
	b := &funcFeature{"b", func(g *Graph) {
		for _, n := range names[2:] {
			g.AddGraphicsPass(n, nil, nil)
		}
	}}
	AddFeature(e.g, a)
	AddFeature(e.g, b)
	for range 3 {
		e.g.Build(e.f)
		tm := e.g.Run(e.f)
		e.f.Cmd.Reset()
		var have []string
		for _, p := range tm.Passes {
			have = append(have, p.Name)
		}
		assert.Equal(t, names, have)
		var passes []string
		for _, p := range e.g.Passes() {
			passes = append(passes, p.Name())
		}
		assert.Equal(t, names, passes)
	}
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestDynamicTopology(t *testing.T) {
	e := newTestEnv(t)
	enabled := true
	ft := &funcFeature{"f", func(g *Graph) {
		if enabled {
			g.AddComputePass("optional", nil, nil)
		}
		g.AddComputePass("always", nil, nil)
	}}
	AddFeature(e.g, ft)
	e.g.Build(e.f)
	assert.Len(t, e.g.Passes(), 2)
	enabled = false
	e.g.Build(e.f)
	require.Len(t, e.g.Passes(), 1)
	assert.Equal(t, "always", e.g.Passes()[0].Name())
	runtime.KeepAlive(ft)
}

type gcFeature struct {
	name string
	hits *int
}

func (f *gcFeature) Register(g *Graph) {
	*f.hits++
	g.AddComputePass(f.name, nil, nil)
}

//go:noinline
func addTempFeature(g *Graph, hits *int) {
	AddFeature(g, &gcFeature{name: "temp", hits: hits})
}

func TestExpiredFeature(t *testing.T) {
	g := New()
	var liveHits, tempHits int
	live := &gcFeature{name: "live", hits: &liveHits}
	AddFeature(g, live)
	addTempFeature(g, &tempHits)
	require.Len(t, g.features, 2)

	runtime.GC()
	runtime.GC()
	g.Build(nil)

	assert.Equal(t, 1, liveHits)
	assert.Equal(t, 0, tempHits)
	require.Len(t, g.Passes(), 1)
	assert.Equal(t, "live", g.Passes()[0].Name())
	assert.Len(t, g.features, 1)
	runtime.KeepAlive(live)
}

func TestUntrackedResource(t *testing.T) {
	e := newTestEnv(t)
	var got Image
	e.g.AddComputePass("ghost",
		func(p *Pass) { p.WritesImage("ghost") },
		func(pe *PassExec) { got = pe.Resources.Image("ghost") })
	e.g.plan()
	e.g.ensureQueries(e.f)
	assert.NotPanics(t, func() { e.g.Run(e.f) })
	assert.Equal(t, Image{}, got)
	_, ok := e.g.Layout("ghost")
	assert.False(t, ok)
	cb := e.f.Cmd.(*nulldrv.CmdBuffer)
	for _, c := range cb.Log() {
		if c.Op == nulldrv.OpTransition {
			require.Len(t, c.Transitions, 1)
			assert.Nil(t, c.Transitions[0].Img)
		}
	}
}

func TestResources(t *testing.T) {
	e := newTestEnv(t)
	buf, err := e.drv.NewBuffer(16, false, driver.UShaderRead)
	require.NoError(t, err)
	e.g.AddTrackedBuffer("lights", buf)
	res := e.g.Resources()
	assert.Equal(t, []string{"depth", "draw"}, res.Images())
	assert.Equal(t, []string{"lights"}, res.Buffers())
	assert.Equal(t, buf, res.Buffer("lights"))
	assert.Nil(t, res.Buffer("missing"))

	e.g.AddTrackedImage("extra", driver.LShaderRead, e.draw)
	assert.Len(t, res.Images(), 2, "snapshot must not change")
	assert.Len(t, e.g.Resources().Images(), 3)
	l, ok := e.g.Layout("extra")
	assert.True(t, ok)
	assert.Equal(t, driver.LShaderRead, l)
}

func TestPassKindString(t *testing.T) {
	assert.Equal(t, "compute", Compute.String())
	assert.Equal(t, "graphics", Graphics.String())
	assert.Equal(t, "invalid", PassKind(7).String())
}
