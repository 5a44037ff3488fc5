// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"slices"

	"golang.org/x/exp/maps"

	"github.com/gviegas/rgraph/driver"
)

// Image is a tracked image.
// Passes access it through View. Transitions cover
// Layers array layers and Levels mip levels starting
// at zero; a value of zero means one.
type Image struct {
	Img    driver.Image
	View   driver.ImageView
	Layers int
	Levels int
}

type imageEntry struct {
	Image
	layout driver.Layout
}

// Resources is a read-only view of the tracked
// resources. Looking up a name that is not tracked
// yields the zero value.
type Resources struct {
	images  map[string]Image
	buffers map[string]driver.Buffer
}

// Image returns the named image.
func (r Resources) Image(name string) Image { return r.images[name] }

// Buffer returns the named buffer.
func (r Resources) Buffer(name string) driver.Buffer { return r.buffers[name] }

// Images returns the sorted names of tracked images.
func (r Resources) Images() []string {
	s := maps.Keys(r.images)
	slices.Sort(s)
	return s
}

// Buffers returns the sorted names of tracked buffers.
func (r Resources) Buffers() []string {
	s := maps.Keys(r.buffers)
	slices.Sort(s)
	return s
}

// AddTrackedImage binds name to img.
// layout is the layout img is known to be in. Planning
// does not rely on it: every Build starts all images
// from driver.LUndefined.
// Adding an existing name replaces its binding.
func (g *Graph) AddTrackedImage(name string, layout driver.Layout, img Image) {
	if _, ok := g.images[name]; ok {
		Logger().Debug("rgraph: tracked image replaced", "name", name)
	}
	g.images[name] = &imageEntry{img, layout}
	g.snap = nil
}

// AddTrackedBuffer binds name to buf.
func (g *Graph) AddTrackedBuffer(name string, buf driver.Buffer) {
	g.buffers[name] = buf
	g.snap = nil
}

// Layout returns the layout the named image was left in
// by the last Run (or the one given to AddTrackedImage
// if it has not run since).
// It returns false if name is not tracked.
func (g *Graph) Layout(name string) (driver.Layout, bool) {
	e, ok := g.images[name]
	if !ok {
		return driver.LUndefined, false
	}
	return e.layout, true
}

// Resources returns a view of the tracked resources.
// It is a copy: later changes to the graph do not
// affect it.
func (g *Graph) Resources() Resources {
	if g.snap == nil {
		r := Resources{
			images:  make(map[string]Image, len(g.images)),
			buffers: maps.Clone(g.buffers),
		}
		for k, v := range g.images {
			r.images[k] = v.Image
		}
		g.snap = &r
	}
	return *g.snap
}
