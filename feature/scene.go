// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package feature

import (
	"unsafe"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/linear"
)

// SceneData is the per-frame data that shaders read.
type SceneData struct {
	View     linear.M4
	Proj     linear.M4
	ViewProj linear.M4
	Ambient  linear.V4
	SunDir   linear.V4
	SunColor linear.V4
}

const sceneSize = int64(unsafe.Sizeof(SceneData{}))

// SetCamera sets the view and projection matrices.
func (s *SceneData) SetCamera(eye, center, up *linear.V3, yfov, aspect, near, far float32) {
	s.View.LookAt(eye, center, up)
	s.Proj.Perspective(yfov, aspect, near, far)
	s.ViewProj.Mul(&s.Proj, &s.View)
}

// MaterialPass identifies the pipeline a material is
// drawn with.
type MaterialPass int

// Material passes.
const (
	Opaque MaterialPass = iota
	Transparent
)

// Material is a material instance created by
// PBR.NewMaterial.
type Material struct {
	pass MaterialPass
	id   int
	cpy  int
}

// Pass returns the material's pass.
func (m *Material) Pass() MaterialPass { return m.pass }

// Bounds is an axis-aligned bounding box in model space.
type Bounds struct {
	Origin  linear.V3
	Extents linear.V3
}

// RenderObject is an indexed mesh drawn with a material.
// Vertices are interleaved position, normal and texture
// coordinates (32 bytes); indices are 32-bit.
type RenderObject struct {
	IndexCount   int
	FirstIndex   int
	IndexBuffer  driver.Buffer
	VertexBuffer driver.Buffer
	Material     *Material
	Bounds       Bounds
	Transform    linear.M4
}

// DrawContext lists the objects to draw in a frame.
type DrawContext struct {
	Opaque      []RenderObject
	Transparent []RenderObject
}

// Len returns the number of objects in c.
func (c *DrawContext) Len() int { return len(c.Opaque) + len(c.Transparent) }

// IsVisible returns whether any part of obj's bounds may
// be inside the view volume of viewProj, which is
// expected to map depth to [0, 1].
// It projects the corners of the bounds and tests the
// resulting box in normalized device coordinates.
func IsVisible(obj *RenderObject, viewProj *linear.M4) bool {
	var m linear.M4
	m.Mul(viewProj, &obj.Transform)

	lo := linear.V3{1.5, 1.5, 1.5}
	hi := linear.V3{-1.5, -1.5, -1.5}
	o, e := &obj.Bounds.Origin, &obj.Bounds.Extents
	for c := range 8 {
		v := linear.V4{o[0] + e[0], o[1] + e[1], o[2] + e[2], 1}
		for i := range 3 {
			if c&(1<<i) != 0 {
				v[i] = o[i] - e[i]
			}
		}
		v.Mul(&m, &v)
		p := linear.V3{v[0] / v[3], v[1] / v[3], v[2] / v[3]}
		lo.Min(&lo, &p)
		hi.Max(&hi, &p)
	}
	return !(hi[2] < 0 || lo[2] > 1 ||
		hi[0] < -1 || lo[0] > 1 ||
		hi[1] < -1 || lo[1] > 1)
}
