// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/feature"
	"github.com/gviegas/rgraph/linear"
	"github.com/gviegas/rgraph/rgraph"
)

// vertex is the interleaved vertex layout of PBR.
type vertex struct {
	pos    linear.V3
	normal linear.V3
	uv     [2]float32
}

// materialData is the constant data of a material.
type materialData struct {
	color     linear.V4
	metallic  float32
	roughness float32
	_         [2]float32
}

// Base colors of the opaque materials.
var palette = [...]linear.V4{
	{0.8, 0.1, 0.1, 1},
	{0.1, 0.8, 0.1, 1},
	{0.1, 0.1, 0.8, 1},
	{0.9, 0.9, 0.9, 1},
}

const spacing = 3

type scene struct {
	alloc  *engine.Allocator
	bufs   []driver.Buffer
	tex    rgraph.Image
	draw   feature.DrawContext
	radius float32
	height float32
	aspect float32
}

// cube returns the vertices and indices of a cube with
// extents of 1.
func cube() ([]vertex, []uint32) {
	faces := [6]struct{ n, u, v linear.V3 }{
		{linear.V3{1, 0, 0}, linear.V3{0, 0, -1}, linear.V3{0, 1, 0}},
		{linear.V3{-1, 0, 0}, linear.V3{0, 0, 1}, linear.V3{0, 1, 0}},
		{linear.V3{0, 1, 0}, linear.V3{1, 0, 0}, linear.V3{0, 0, -1}},
		{linear.V3{0, -1, 0}, linear.V3{1, 0, 0}, linear.V3{0, 0, 1}},
		{linear.V3{0, 0, 1}, linear.V3{1, 0, 0}, linear.V3{0, 1, 0}},
		{linear.V3{0, 0, -1}, linear.V3{-1, 0, 0}, linear.V3{0, 1, 0}},
	}
	verts := make([]vertex, 0, 24)
	idx := make([]uint32, 0, 36)
	for _, f := range faces {
		base := uint32(len(verts))
		for _, c := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			var p, s, t linear.V3
			s.Scale(c[0], &f.u)
			t.Scale(c[1], &f.v)
			p.Add(&f.n, &s)
			p.Add(&p, &t)
			verts = append(verts, vertex{p, f.n, [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2}})
		}
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return verts, idx
}

func bytesOf[T any](s []T) []byte {
	var x T
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*int(unsafe.Sizeof(x)))
}

func (s *scene) newBuffer(data []byte, usg driver.Usage) (driver.Buffer, error) {
	buf, err := s.alloc.NewBuffer(int64(len(data)), usg, rgraph.MemCPUToGPU)
	if err != nil {
		return nil, err
	}
	s.bufs = append(s.bufs, buf)
	copy(buf.Bytes(), data)
	return buf, nil
}

// newScene creates a grid of n×n opaque cubes with a
// transparent cube over its center.
func newScene(r *engine.Renderer, pbr *feature.PBR, n int) (s *scene, err error) {
	s = &scene{alloc: r.Allocator()}
	defer func() {
		if err != nil {
			s.free()
			s = nil
		}
	}()

	verts, idx := cube()
	vb, err := s.newBuffer(bytesOf(verts), driver.UVertexData)
	if err != nil {
		return
	}
	ib, err := s.newBuffer(bytesOf(idx), driver.UIndexData)
	if err != nil {
		return
	}

	img, err := r.GPU().NewImage(driver.RGBA8Unorm, driver.Dim3D{Width: 1, Height: 1}, 1, 1, 1, driver.UShaderSample)
	if err != nil {
		err = errors.Wrap(err, "rgdemo: texture")
		return
	}
	s.tex.Img = img
	if s.tex.View, err = img.NewView(driver.IView2D, 0, 1, 0, 1); err != nil {
		err = errors.Wrap(err, "rgdemo: texture view")
		return
	}

	newMaterial := func(pass feature.MaterialPass, color linear.V4) (*feature.Material, error) {
		data := []materialData{{color: color, metallic: 0.1, roughness: 0.6}}
		buf, err := s.newBuffer(bytesOf(data), driver.UShaderConst)
		if err != nil {
			return nil, err
		}
		return pbr.NewMaterial(pass, buf, s.tex.View)
	}
	var mats [len(palette)]*feature.Material
	for i := range mats {
		if mats[i], err = newMaterial(feature.Opaque, palette[i]); err != nil {
			return
		}
	}
	glass, err := newMaterial(feature.Transparent, linear.V4{0.5, 0.7, 1, 0.3})
	if err != nil {
		return
	}

	obj := func(x, y, z float32, mat *feature.Material) feature.RenderObject {
		o := feature.RenderObject{
			IndexCount:   len(idx),
			IndexBuffer:  ib,
			VertexBuffer: vb,
			Material:     mat,
			Bounds:       feature.Bounds{Extents: linear.V3{1, 1, 1}},
		}
		o.Transform.Translate(x, y, z)
		return o
	}
	off := float32(n-1) * spacing / 2
	for i := range n {
		for j := range n {
			x := float32(i)*spacing - off
			z := float32(j)*spacing - off
			s.draw.Opaque = append(s.draw.Opaque, obj(x, 0, z, mats[(i+j)%len(mats)]))
		}
	}
	s.draw.Transparent = append(s.draw.Transparent, obj(0, spacing, 0, glass))

	ext := r.DrawExtent()
	s.aspect = float32(ext.Width) / float32(ext.Height)
	s.radius = max(float32(n)*spacing, 6)
	s.height = s.radius / 2

	pbr.Draw = &s.draw
	pbr.Scene.Ambient = linear.V4{0.1, 0.1, 0.1, 1}
	pbr.Scene.SunDir = linear.V4{-0.5, -1, -0.3, 0}
	pbr.Scene.SunColor = linear.V4{1, 1, 0.9, 4}
	return
}

// animate moves the camera around the grid.
func (s *scene) animate(pbr *feature.PBR, frame int) {
	a := float32(frame) * 0.02
	eye := linear.V3{s.radius * math32.Sin(a), s.height, s.radius * math32.Cos(a)}
	pbr.Scene.SetCamera(&eye, &linear.V3{}, &linear.V3{0, 1, 0}, math32.Pi/3, s.aspect, 0.1, 4*s.radius)
}

func (s *scene) free() {
	for _, buf := range s.bufs {
		s.alloc.DestroyBuffer(buf)
	}
	s.bufs = nil
	if s.tex.View != nil {
		s.tex.View.Destroy()
	}
	if s.tex.Img != nil {
		s.tex.Img.Destroy()
	}
	s.tex = rgraph.Image{}
}
