// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package nulldrv

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

// Buffer implements driver.Buffer.
type Buffer struct {
	d         *Driver
	visible   bool
	usg       driver.Usage
	data      []byte
	size      int64
	destroyed bool
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, errors.Errorf("nulldrv: invalid buffer size %d", size)
	}
	b := &Buffer{d: d, visible: visible, usg: usg, size: size}
	if visible {
		b.data = make([]byte, size)
	}
	d.nbuf.Add(1)
	return b, nil
}

// Visible returns whether the buffer is host visible.
func (b *Buffer) Visible() bool { return b.visible }

// Bytes returns the buffer's data, or nil if it is not
// host visible.
func (b *Buffer) Bytes() []byte { return b.data }

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int64 { return b.size }

// Usage returns the usage the buffer was created with.
func (b *Buffer) Usage() driver.Usage { return b.usg }

// Destroyed returns whether Destroy was called.
func (b *Buffer) Destroyed() bool { return b.destroyed }

// Destroy destroys the buffer.
// Destroying twice is an error that panics.
func (b *Buffer) Destroy() {
	if b.destroyed {
		panic("nulldrv: buffer destroyed twice")
	}
	b.destroyed = true
	b.data = nil
	b.d.nbuf.Add(-1)
}

// Image implements driver.Image.
type Image struct {
	d         *Driver
	pf        driver.PixelFmt
	size      driver.Dim3D
	layers    int
	levels    int
	samples   int
	usg       driver.Usage
	views     int
	destroyed bool
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	switch {
	case size.Width <= 0 || size.Height <= 0 || size.Depth < 0:
		return nil, errors.Errorf("nulldrv: invalid image size %v", size)
	case size.Width > d.limit.MaxImage2D || size.Height > d.limit.MaxImage2D:
		return nil, errors.Errorf("nulldrv: image size %v exceeds limit", size)
	case layers < 1 || levels < 1 || samples < 1:
		return nil, errors.New("nulldrv: invalid image layers/levels/samples")
	}
	d.nimg.Add(1)
	return &Image{
		d:       d,
		pf:      pf,
		size:    size,
		layers:  layers,
		levels:  levels,
		samples: samples,
		usg:     usg,
	}, nil
}

// Format returns the image's pixel format.
func (m *Image) Format() driver.PixelFmt { return m.pf }

// Size returns the image's size.
func (m *Image) Size() driver.Dim3D { return m.size }

// Layers returns the number of array layers.
func (m *Image) Layers() int { return m.layers }

// Levels returns the number of mip levels.
func (m *Image) Levels() int { return m.levels }

// Destroyed returns whether Destroy was called.
func (m *Image) Destroyed() bool { return m.destroyed }

// NewView creates a new image view.
func (m *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer < 0 || layers < 1 || layer+layers > m.layers ||
		level < 0 || levels < 1 || level+levels > m.levels {
		return nil, errors.New("nulldrv: view range out of bounds")
	}
	m.views++
	return &ImageView{
		m:      m,
		typ:    typ,
		layer:  layer,
		layers: layers,
		level:  level,
		levels: levels,
	}, nil
}

// Destroy destroys the image.
// Views must have been destroyed first.
func (m *Image) Destroy() {
	if m.destroyed {
		panic("nulldrv: image destroyed twice")
	}
	if m.views != 0 {
		panic("nulldrv: image destroyed before its views")
	}
	m.destroyed = true
	m.d.nimg.Add(-1)
}

// ImageView implements driver.ImageView.
type ImageView struct {
	m         *Image
	typ       driver.ViewType
	layer     int
	layers    int
	level     int
	levels    int
	destroyed bool
}

// Image returns the image from which the view was created.
func (v *ImageView) Image() driver.Image { return v.m }

// Destroyed returns whether Destroy was called.
func (v *ImageView) Destroyed() bool { return v.destroyed }

// Destroy destroys the image view.
func (v *ImageView) Destroy() {
	if v.destroyed {
		panic("nulldrv: image view destroyed twice")
	}
	v.destroyed = true
	v.m.views--
}

// QueryPool implements driver.QueryPool.
type QueryPool struct {
	mu    sync.Mutex
	val   []uint64
	avail []bool
}

// NewQueryPool creates a new pool of n timestamp queries.
func (d *Driver) NewQueryPool(n int) (driver.QueryPool, error) {
	if n < 1 || n > d.limit.MaxQueries {
		return nil, errors.Errorf("nulldrv: invalid query count %d", n)
	}
	return &QueryPool{val: make([]uint64, n), avail: make([]bool, n)}, nil
}

// Len returns the number of queries in the pool.
func (p *QueryPool) Len() int { return len(p.val) }

// Results copies available timestamps into dst.
func (p *QueryPool) Results(first int, dst []uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if first < 0 || first+len(dst) > len(p.val) {
		return errors.Errorf("nulldrv: query range [%d, %d) out of bounds", first, first+len(dst))
	}
	for i := range dst {
		if !p.avail[first+i] {
			return driver.ErrNotReady
		}
		dst[i] = p.val[first+i]
	}
	return nil
}

func (p *QueryPool) reset(first, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := first; i < first+n && i < len(p.avail); i++ {
		p.avail[i] = false
	}
}

func (p *QueryPool) write(i int, tick uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= 0 && i < len(p.val) {
		p.val[i] = tick
		p.avail[i] = true
	}
}

// Destroy destroys the query pool.
func (p *QueryPool) Destroy() {
	p.mu.Lock()
	p.val, p.avail = nil, nil
	p.mu.Unlock()
}
