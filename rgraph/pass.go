// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"github.com/gviegas/rgraph/driver"
)

// PassKind is the kind of a pass.
type PassKind int

// Pass kinds.
const (
	Compute PassKind = iota
	Graphics
)

// String implements fmt.Stringer.
func (k PassKind) String() string {
	switch k {
	case Compute:
		return "compute"
	case Graphics:
		return "graphics"
	}
	return "invalid"
}

// ImageRead is an image read declaration.
type ImageRead struct {
	Name   string
	Layout driver.Layout
}

// Attachment is a render target declaration.
// Clear is nil when the previous contents are loaded.
type Attachment struct {
	Name  string
	Store bool
	Clear *driver.ClearValue
}

// BufferRequest asks for a buffer that lives until the
// frame slot that created it is reused.
type BufferRequest struct {
	Name  string
	Size  int64
	Usage driver.Usage
}

// Pass describes which named resources a pass uses and
// how. It is filled by the setup callback given to
// Graph.AddComputePass or Graph.AddGraphicsPass and is
// discarded by the next Build.
type Pass struct {
	name    string
	kind    PassKind
	writes  []string
	reads   []ImageRead
	color   []Attachment
	depth   *Attachment
	creates []BufferRequest
	bufR    []string
	bufW    []string
}

// Name returns the pass name.
func (p *Pass) Name() string { return p.name }

// Kind returns the pass kind.
func (p *Pass) Kind() PassKind { return p.kind }

// ReadsImage declares that the pass reads the named image
// in the given layout.
func (p *Pass) ReadsImage(name string, layout driver.Layout) {
	p.reads = append(p.reads, ImageRead{name, layout})
}

// WritesImage declares that the pass writes the named
// image. Writes always happen in driver.LCommon.
func (p *Pass) WritesImage(name string) {
	p.writes = append(p.writes, name)
}

func copyClear(clear *driver.ClearValue) *driver.ClearValue {
	if clear == nil {
		return nil
	}
	c := *clear
	return &c
}

// AddColorAttachment adds a color render target.
// The pass must be a graphics pass.
func (p *Pass) AddColorAttachment(name string, store bool, clear *driver.ClearValue) {
	p.color = append(p.color, Attachment{name, store, copyClear(clear)})
}

// AddDepthAttachment sets the depth/stencil render target,
// replacing any previous one.
// The pass must be a graphics pass.
func (p *Pass) AddDepthAttachment(name string, store bool, clear *driver.ClearValue) {
	p.depth = &Attachment{name, store, copyClear(clear)}
}

// CreatesBuffer requests a transient buffer. It is created
// right before the pass executes and is made available
// through PassExec.Buffers.
func (p *Pass) CreatesBuffer(name string, size int64, usg driver.Usage) {
	p.creates = append(p.creates, BufferRequest{name, size, usg})
}

// ReadsBuffer declares a buffer read.
// Buffer declarations do not cause transitions.
func (p *Pass) ReadsBuffer(name string) { p.bufR = append(p.bufR, name) }

// WritesBuffer declares a buffer write.
// Buffer declarations do not cause transitions.
func (p *Pass) WritesBuffer(name string) { p.bufW = append(p.bufW, name) }

// Reads returns the image reads in declaration order.
func (p *Pass) Reads() []ImageRead { return p.reads }

// Writes returns the image writes in declaration order.
func (p *Pass) Writes() []string { return p.writes }

// ColorAttachments returns the color render targets.
func (p *Pass) ColorAttachments() []Attachment { return p.color }

// DepthAttachment returns the depth/stencil render target.
func (p *Pass) DepthAttachment() (Attachment, bool) {
	if p.depth == nil {
		return Attachment{}, false
	}
	return *p.depth, true
}

// Creates returns the transient buffer requests.
func (p *Pass) Creates() []BufferRequest { return p.creates }

// BufferReads returns the buffer reads.
func (p *Pass) BufferReads() []string { return p.bufR }

// BufferWrites returns the buffer writes.
func (p *Pass) BufferWrites() []string { return p.bufW }
