// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package feature

import (
	"cmp"
	"slices"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/linear"
	"github.com/gviegas/rgraph/rgraph"
)

// Pass and buffer names.
const (
	PBRPass     = "pbr"
	sceneBuffer = "scene"
)

// Object transforms follow the scene data in the scene
// buffer, starting at this offset.
const xformOffset = 256

const xformSize = int64(unsafe.Sizeof(linear.M4{}))

// Stride of interleaved vertex data.
const vertexStride = 32

// PBRConfig configures a PBR feature.
type PBRConfig struct {
	// Vertex and fragment shader binaries.
	// Entry points must be named "main".
	Vertex   []byte
	Fragment []byte
	// Number of frame slots of the renderer.
	Frames int
	// Maximum number of materials.
	Materials int
	// Scene descriptor copies per frame slot.
	// Values less than 1 mean 1.
	Copies int
	// Formats of the draw and depth images.
	ColorFmt driver.PixelFmt
	DepthFmt driver.PixelFmt
}

// PBR draws the objects of a DrawContext into the draw
// and depth images.
// Opaque objects outside the view volume are culled and
// the rest are sorted by material and mesh. Transparent
// objects are drawn last, in the order given.
type PBR struct {
	Scene    SceneData
	Draw     *DrawContext
	Disabled bool

	gpu       driver.GPU
	scene     *rgraph.DescPool
	materials driver.DescHeap
	nmat      int
	table     driver.DescTable
	pl        [2]driver.Pipeline

	// Scratch space for render.
	visible []int
	rank    map[driver.Buffer]int
}

// NewPBR creates a PBR feature.
func NewPBR(gpu driver.GPU, cfg *PBRConfig) (p *PBR, err error) {
	if cfg.Materials < 1 {
		return nil, errors.Errorf("feature: invalid material count %d", cfg.Materials)
	}
	p = &PBR{gpu: gpu, rank: make(map[driver.Buffer]int)}
	defer func() {
		if err != nil {
			p.destroy()
			p = nil
		}
	}()
	if p.scene, err = rgraph.NewDescPool(gpu, []driver.Descriptor{
		{Type: driver.DConstant, Stages: driver.SVertex | driver.SFragment, Nr: 0, Len: 1},
		{Type: driver.DBuffer, Stages: driver.SVertex, Nr: 1, Len: 1},
	}, cfg.Frames, max(cfg.Copies, 1)); err != nil {
		return
	}
	if p.materials, err = gpu.NewDescHeap([]driver.Descriptor{
		{Type: driver.DConstant, Stages: driver.SFragment, Nr: 0, Len: 1},
		{Type: driver.DTexture, Stages: driver.SFragment, Nr: 1, Len: 1},
	}); err != nil {
		err = errors.Wrap(err, "feature: material heap")
		return
	}
	if err = p.materials.New(cfg.Materials); err != nil {
		err = errors.Wrap(err, "feature: material heap copies")
		return
	}
	if p.table, err = gpu.NewDescTable([]driver.DescHeap{p.scene.Heap(), p.materials}); err != nil {
		err = errors.Wrap(err, "feature: PBR descriptor table")
		return
	}
	err = p.newPipelines(cfg)
	return
}

func (p *PBR) newPipelines(cfg *PBRConfig) error {
	vert, err := p.gpu.NewShaderCode(cfg.Vertex)
	if err != nil {
		return errors.Wrap(err, "feature: PBR vertex shader")
	}
	defer vert.Destroy()
	frag, err := p.gpu.NewShaderCode(cfg.Fragment)
	if err != nil {
		return errors.Wrap(err, "feature: PBR fragment shader")
	}
	defer frag.Destroy()

	state := driver.GraphState{
		VertFunc: driver.ShaderFunc{Code: vert, Name: "main"},
		FragFunc: driver.ShaderFunc{Code: frag, Name: "main"},
		Desc:     p.table,
		Input: []driver.VertexIn{
			{Format: driver.Float32x3, Stride: vertexStride, Nr: 0, Name: "position"},
			{Format: driver.Float32x3, Stride: vertexStride, Nr: 1, Name: "normal"},
			{Format: driver.Float32x2, Stride: vertexStride, Nr: 2, Name: "texCoord"},
		},
		Topology: driver.TTriangle,
		Raster:   driver.RasterState{Clockwise: true, Cull: driver.CNone},
		Samples:  1,
		// Depth is reversed.
		DS:       driver.DSState{DepthTest: true, DepthWrite: true, DepthCmp: driver.CGreaterEqual},
		Blend:    []driver.ColorBlend{{}},
		ColorFmt: []driver.PixelFmt{cfg.ColorFmt},
		DSFmt:    cfg.DepthFmt,
	}
	if p.pl[Opaque], err = p.gpu.NewPipeline(&state); err != nil {
		return errors.Wrap(err, "feature: opaque pipeline")
	}

	// Additive blending without depth writes.
	state.DS.DepthWrite = false
	state.Blend = []driver.ColorBlend{{
		Blend:  true,
		SrcFac: [2]driver.BlendFac{driver.BSrcAlpha, driver.BOne},
		DstFac: [2]driver.BlendFac{driver.BOne, driver.BZero},
	}}
	if p.pl[Transparent], err = p.gpu.NewPipeline(&state); err != nil {
		return errors.Wrap(err, "feature: transparent pipeline")
	}
	return nil
}

// NewMaterial creates a material whose constants are read
// from the first 256 bytes of consts and whose base color
// is sampled from tex.
func (p *PBR) NewMaterial(pass MaterialPass, consts driver.Buffer, tex driver.ImageView) (*Material, error) {
	if p.nmat == p.materials.Count() {
		return nil, errors.Errorf("feature: too many materials (%d)", p.nmat)
	}
	m := &Material{pass: pass, id: p.nmat, cpy: p.nmat}
	p.materials.SetBuffer(m.cpy, 0, 0, []driver.Buffer{consts}, []int64{0}, []int64{256})
	p.materials.SetImage(m.cpy, 1, 0, []driver.ImageView{tex})
	p.nmat++
	return m, nil
}

// Register adds the PBR pass to g, unless p is disabled
// or has nothing to draw.
func (p *PBR) Register(g *rgraph.Graph) {
	if p.Disabled || p.Draw == nil || p.Draw.Len() == 0 {
		return
	}
	size := xformOffset + int64(p.Draw.Len())*xformSize
	g.AddGraphicsPass(PBRPass, func(ps *rgraph.Pass) {
		ps.AddColorAttachment(engine.DrawImage, true, nil)
		ps.AddDepthAttachment(engine.DepthImage, true, &driver.ClearValue{Depth: 0})
		ps.CreatesBuffer(sceneBuffer, size, driver.UShaderConst|driver.UShaderRead)
	}, p.render)
}

// cull sets p.visible to the indices of the opaque objects
// that may be visible, sorted by material and then by
// index buffer.
func (p *PBR) cull() {
	p.visible = p.visible[:0]
	clear(p.rank)
	for i := range p.Draw.Opaque {
		r := &p.Draw.Opaque[i]
		if !IsVisible(r, &p.Scene.ViewProj) {
			continue
		}
		p.visible = append(p.visible, i)
		if _, ok := p.rank[r.IndexBuffer]; !ok {
			p.rank[r.IndexBuffer] = len(p.rank)
		}
	}
	slices.SortStableFunc(p.visible, func(i, j int) int {
		a, b := &p.Draw.Opaque[i], &p.Draw.Opaque[j]
		if c := cmp.Compare(a.Material.id, b.Material.id); c != 0 {
			return c
		}
		return cmp.Compare(p.rank[a.IndexBuffer], p.rank[b.IndexBuffer])
	})
}

func (p *PBR) render(e *rgraph.PassExec) {
	buf := e.Buffer(sceneBuffer)
	data := buf.Bytes()
	copy(data, unsafe.Slice((*byte)(unsafe.Pointer(&p.Scene)), sceneSize))

	cpy, ok := e.Desc.Alloc(p.scene)
	if !ok {
		rgraph.Logger().Warn("feature: PBR skipped", "reason", "no descriptor heap copy")
		return
	}
	p.scene.Heap().SetBuffer(cpy, 0, 0, []driver.Buffer{buf}, []int64{0}, []int64{sceneSize})
	p.scene.Heap().SetBuffer(cpy, 1, 0, []driver.Buffer{buf}, []int64{xformOffset},
		[]int64{buf.Cap() - xformOffset})

	p.cull()

	var (
		lastMat  *Material
		lastPass = MaterialPass(-1)
		lastIdx  driver.Buffer
		lastVert driver.Buffer
		n        int
	)
	draw := func(r *RenderObject) {
		if r.Material != lastMat {
			lastMat = r.Material
			if r.Material.pass != lastPass {
				lastPass = r.Material.pass
				e.Cmd.SetPipeline(p.pl[lastPass])
				e.Cmd.SetViewport(driver.Viewport{
					Width:  float32(e.Extent.Width),
					Height: float32(e.Extent.Height),
					Zfar:   1,
				})
				e.Cmd.SetScissor(driver.Scissor{Width: e.Extent.Width, Height: e.Extent.Height})
			}
			e.Cmd.SetDescTableGraph(p.table, 0, []int{cpy, r.Material.cpy})
		}
		if r.IndexBuffer != lastIdx {
			lastIdx = r.IndexBuffer
			e.Cmd.SetIndexBuf(driver.Index32, r.IndexBuffer, 0)
		}
		if r.VertexBuffer != lastVert {
			lastVert = r.VertexBuffer
			vb := r.VertexBuffer
			e.Cmd.SetVertexBuf(0, []driver.Buffer{vb, vb, vb}, []int64{0, 12, 24})
		}
		// The shader finds the transform through the
		// instance index.
		off := xformOffset + int64(n)*xformSize
		copy(data[off:], unsafe.Slice((*byte)(unsafe.Pointer(&r.Transform)), xformSize))
		e.DrawIndexed(r.IndexCount, 1, r.FirstIndex, 0, n)
		n++
	}
	for _, i := range p.visible {
		draw(&p.Draw.Opaque[i])
	}
	for i := range p.Draw.Transparent {
		draw(&p.Draw.Transparent[i])
	}
}

// Free releases p's GPU resources.
// If q is not nil, their destruction is deferred to q.
// Materials created by p become invalid.
func (p *PBR) Free(q *rgraph.DeletionQueue) {
	if q == nil {
		p.destroy()
		return
	}
	if p.scene != nil {
		q.Push(rgraph.Deletion{Kind: rgraph.DDescHeap, Handle: p.scene})
	}
	q.Push(rgraph.Deletion{Kind: rgraph.DDescHeap, Handle: p.materials})
	q.Push(rgraph.Deletion{Kind: rgraph.DDescTable, Handle: p.table})
	for _, pl := range p.pl {
		q.Push(rgraph.Deletion{Kind: rgraph.DPipeline, Handle: pl})
	}
	p.reset()
}

func (p *PBR) destroy() {
	for _, pl := range p.pl {
		if pl != nil {
			pl.Destroy()
		}
	}
	if p.table != nil {
		p.table.Destroy()
	}
	if p.materials != nil {
		p.materials.Destroy()
	}
	if p.scene != nil {
		p.scene.Destroy()
	}
	p.reset()
}

func (p *PBR) reset() {
	p.scene = nil
	p.materials = nil
	p.table = nil
	p.pl = [2]driver.Pipeline{}
	p.nmat = 0
}
