// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package nulldrv implements driver interfaces without a
// physical device.
// Command buffers record commands into a log that can be
// inspected, and committing a command buffer executes the
// log against a simulated timestamp counter. It is meant
// for testing and for running the renderer headless.
package nulldrv

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

const driverName = "null"

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	mu   sync.Mutex
	open bool

	// Simulated GPU clock, in ticks.
	tick uint64

	// Completions withheld by Hold.
	held  bool
	queue []pending
	// Error to report on the next committed work item.
	fault error

	nbuf  atomic.Int64
	nimg  atomic.Int64
	ncmt  atomic.Int64
	limit driver.Limits
}

type pending struct {
	wk *driver.WorkItem
	ch chan<- *driver.WorkItem
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		d.limit = driver.Limits{
			MaxImage2D:      16384,
			MaxColorTargets: 8,
			MaxDispatch:     [3]int{65535, 65535, 65535},
			MaxQueries:      4096,
			TimestampPeriod: 1,
		}
		d.open = true
	}
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open = false
	d.held = false
	d.queue = nil
	d.fault = nil
}

// Driver returns d.
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.limit }

// Commit executes the command buffers in wk.Work against
// the simulated clock and then sends wk to ch.
// Sending happens in a separate goroutine unless Hold was
// called, in which case it is deferred until Release.
func (d *Driver) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	if wk == nil || len(wk.Work) == 0 {
		return errors.New("nulldrv: empty work item")
	}
	for _, x := range wk.Work {
		cb, ok := x.(*CmdBuffer)
		if !ok {
			return errors.Errorf("nulldrv: foreign command buffer %T", x)
		}
		if !cb.ended {
			return errors.New("nulldrv: command buffer has not ended")
		}
	}

	d.mu.Lock()
	for _, x := range wk.Work {
		d.tick = x.(*CmdBuffer).execute(d.tick)
	}
	wk.Err, d.fault = d.fault, nil
	d.ncmt.Add(1)
	if d.held {
		d.queue = append(d.queue, pending{wk, ch})
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()
	go func() { ch <- wk }()
	return nil
}

// Hold withholds the completion of subsequent commits
// until Release is called.
func (d *Driver) Hold() {
	d.mu.Lock()
	d.held = true
	d.mu.Unlock()
}

// Release sends every withheld completion, in commit
// order, and stops withholding.
func (d *Driver) Release() {
	d.mu.Lock()
	q := d.queue
	d.queue = nil
	d.held = false
	d.mu.Unlock()
	for _, p := range q {
		p.ch <- p.wk
	}
}

// Fault causes the next committed work item to complete
// with err.
func (d *Driver) Fault(err error) {
	d.mu.Lock()
	d.fault = err
	d.mu.Unlock()
}

// SetTick sets the simulated clock.
func (d *Driver) SetTick(tick uint64) {
	d.mu.Lock()
	d.tick = tick
	d.mu.Unlock()
}

// Tick returns the simulated clock.
func (d *Driver) Tick() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tick
}

// Live returns the number of buffers and images that
// were created and not yet destroyed.
func (d *Driver) Live() (buffers, images int) {
	return int(d.nbuf.Load()), int(d.nimg.Load())
}

// Commits returns the number of successful calls to
// Commit.
func (d *Driver) Commits() int { return int(d.ncmt.Load()) }

// New returns a new, open Driver that is not registered.
// Tests use it to get an isolated GPU.
func New() *Driver {
	d := &Driver{}
	d.Open()
	return d
}
