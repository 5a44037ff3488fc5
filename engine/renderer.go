// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"time"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/engine/internal/ctxt"
	"github.com/gviegas/rgraph/rgraph"
)

// Stats are the statistics of a completed frame.
type Stats struct {
	rgraph.Stats
	// Frame number, starting at zero.
	Frame uint64
	// Time spent in Renderer.Frame, in milliseconds.
	FrameCPU float64
}

// frame is a frame slot.
type frame struct {
	*rgraph.Frame
	seq uint64
	cpu float64
	// Whether Frame has committed work from this slot.
	used bool
}

// Renderer is a real-time renderer.
// It renders into a draw image that is left in
// driver.LCopySrc at the end of every frame.
type Renderer struct {
	cfg   Config
	gpu   driver.GPU
	alloc *Allocator
	graph *rgraph.Graph

	frames []frame
	ch     chan *driver.WorkItem
	count  uint64
	last   int
	timer  *time.Timer

	draw   rgraph.Image
	depth  rgraph.Image
	target driver.Dim3D

	stats Stats
	freed bool
}

// New creates a new renderer using the driver that
// cfg.Driver names.
func New(cfg *Config) (*Renderer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	gpu, err := ctxt.Load(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return NewWithGPU(gpu, cfg)
}

// NewWithGPU creates a new renderer on gpu.
func NewWithGPU(gpu driver.GPU, cfg *Config) (r *Renderer, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}
	r = &Renderer{
		cfg:    *cfg,
		gpu:    gpu,
		alloc:  NewAllocator(gpu),
		graph:  rgraph.New(),
		frames: make([]frame, cfg.Frames),
		ch:     make(chan *driver.WorkItem, cfg.Frames),
		target: driver.Dim3D{Width: cfg.Width, Height: cfg.Height},
	}
	defer func() {
		if err != nil {
			r.destroy()
			r = nil
		}
	}()
	if err = r.initImages(); err != nil {
		return
	}
	for i := range r.frames {
		var f *rgraph.Frame
		if f, err = rgraph.NewFrame(gpu, r.alloc, i); err != nil {
			return
		}
		r.frames[i].Frame = f
		if f.Queries, err = gpu.NewQueryPool(cfg.QueryCapacity); err != nil {
			err = errors.Wrap(err, "engine: query pool")
			return
		}
		r.ch <- &driver.WorkItem{Custom: i}
	}
	r.graph.AddTrackedImage(DrawImage, driver.LUndefined, r.draw)
	r.graph.AddTrackedImage(DepthImage, driver.LUndefined, r.depth)
	rgraph.Logger().Info("engine: renderer created",
		"driver", gpu.Driver().Name(),
		"frames", cfg.Frames,
		"width", cfg.Width,
		"height", cfg.Height)
	return
}

func newImage(gpu driver.GPU, pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) (rgraph.Image, error) {
	img, err := gpu.NewImage(pf, size, 1, 1, 1, usg)
	if err != nil {
		return rgraph.Image{}, errors.Wrap(err, "engine: image")
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return rgraph.Image{}, errors.Wrap(err, "engine: image view")
	}
	return rgraph.Image{Img: img, View: view, Layers: 1, Levels: 1}, nil
}

func (r *Renderer) initImages() (err error) {
	size := driver.Dim3D{Width: r.cfg.Width, Height: r.cfg.Height}
	r.draw, err = newImage(r.gpu, DrawFormat, size,
		driver.UShaderRead|driver.UShaderWrite|driver.URenderTarget|driver.UCopySrc|driver.UCopyDst)
	if err != nil {
		return
	}
	r.depth, err = newImage(r.gpu, DepthFormat, size, driver.URenderTarget)
	return
}

// GPU returns the GPU the renderer uses.
func (r *Renderer) GPU() driver.GPU { return r.gpu }

// Graph returns the renderer's frame graph.
// Features are added to it with rgraph.AddFeature.
func (r *Renderer) Graph() *rgraph.Graph { return r.graph }

// Allocator returns the renderer's buffer allocator.
func (r *Renderer) Allocator() *Allocator { return r.alloc }

// Config returns the renderer's configuration.
func (r *Renderer) Config() Config { return r.cfg }

// DrawImage returns the image the renderer draws into.
func (r *Renderer) DrawImage() rgraph.Image { return r.draw }

// SetTarget sets the size of the render target (e.g., a
// window's framebuffer). The draw extent is the smaller
// of the target and the draw image, scaled by
// Config.RenderScale.
func (r *Renderer) SetTarget(width, height int) {
	r.target = driver.Dim3D{Width: width, Height: height}
}

// DrawExtent returns the extent of the next frame.
func (r *Renderer) DrawExtent() driver.Dim3D {
	scale := func(target, image int) int {
		return max(int(float32(min(target, image))*r.cfg.RenderScale), 1)
	}
	return driver.Dim3D{
		Width:  scale(r.target.Width, r.cfg.Width),
		Height: scale(r.target.Height, r.cfg.Height),
		Depth:  1,
	}
}

// wait receives the next completed work item.
// It panics if none completes in time, or if the work
// failed.
func (r *Renderer) wait() *driver.WorkItem {
	d := time.Duration(r.cfg.FenceTimeout) * time.Millisecond
	if r.timer == nil {
		r.timer = time.NewTimer(d)
	} else {
		r.timer.Reset(d)
	}
	select {
	case wk := <-r.ch:
		r.timer.Stop()
		if wk.Err != nil {
			err := errors.Wrapf(wk.Err, "engine: frame slot %d", wk.Custom.(int))
			rgraph.Logger().Error("engine: GPU work failed", "err", err)
			panic(err)
		}
		return wk
	case <-r.timer.C:
		err := errors.Wrapf(ErrTimeout, "after %dms", r.cfg.FenceTimeout)
		rgraph.Logger().Error("engine: frame slot unavailable", "err", err)
		panic(err)
	}
}

// Frame renders a frame.
// It waits for a frame slot, reads back the timings of
// the slot's previous frame, releases what that frame
// deferred, and then builds, records and commits the
// graph.
// GPU failures and timeouts cause a panic.
func (r *Renderer) Frame() {
	if r.freed {
		panic("engine: Frame called after Free")
	}
	start := time.Now()
	wk := r.wait()
	slot := wk.Custom.(int)
	f := &r.frames[slot]

	if f.used {
		r.graph.ReadTimestamps(f.Frame)
		if f.Stats.Resolved {
			r.stats = Stats{f.Stats, f.seq, f.cpu}
		}
	}
	f.Deletion.Flush()
	f.Desc.Clear()

	r.graph.SetRequiredData(r.gpu, r.DrawExtent(), r.alloc)
	r.graph.Build(f.Frame)
	r.graph.Run(f.Frame)

	// Hand the draw image off for copying or presentation.
	if l, _ := r.graph.Layout(DrawImage); l != driver.LCopySrc {
		f.Cmd.Transition([]driver.Transition{rgraph.NewTransition(r.draw, l, driver.LCopySrc)})
		r.graph.AddTrackedImage(DrawImage, driver.LCopySrc, r.draw)
	}
	if err := f.Cmd.End(); err != nil {
		panic(errors.Wrap(err, "engine: ending command buffer"))
	}
	wk.Work = append(wk.Work[:0], f.Cmd)
	wk.Err = nil
	if err := r.gpu.Commit(wk, r.ch); err != nil {
		panic(errors.Wrap(err, "engine: commit"))
	}
	f.used = true
	r.last = slot
	f.seq = r.count
	f.cpu = float64(time.Since(start)) / float64(time.Millisecond)
	r.count++
}

// Deletion returns the deletion queue of the frame slot
// that was committed last. Anything pushed to it is
// destroyed once every frame committed so far completes.
func (r *Renderer) Deletion() *rgraph.DeletionQueue {
	return r.frames[r.last].Deletion
}

// FrameCount returns the number of frames committed.
func (r *Renderer) FrameCount() uint64 { return r.count }

// Stats returns the statistics of the most recent frame
// whose GPU timings were read back.
// It returns false if there is no such frame yet.
func (r *Renderer) Stats() (Stats, bool) { return r.stats, r.stats.Resolved }

// Free waits for all frames to complete and destroys
// everything the renderer created.
// Features must be freed separately.
func (r *Renderer) Free() {
	if r.freed {
		return
	}
	for range r.frames {
		wk := r.wait()
		f := &r.frames[wk.Custom.(int)]
		if f.used {
			r.graph.ReadTimestamps(f.Frame)
			if f.Stats.Resolved && f.seq >= r.stats.Frame {
				r.stats = Stats{f.Stats, f.seq, f.cpu}
			}
		}
	}
	r.destroy()
	r.freed = true
}

func (r *Renderer) destroy() {
	for i := range r.frames {
		if r.frames[i].Frame != nil {
			r.frames[i].Free()
		}
	}
	for _, img := range [2]*rgraph.Image{&r.draw, &r.depth} {
		if img.View != nil {
			img.View.Destroy()
		}
		if img.Img != nil {
			img.Img.Destroy()
		}
		*img = rgraph.Image{}
	}
	if r.timer != nil {
		r.timer.Stop()
	}
}
