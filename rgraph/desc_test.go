// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package rgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/nulldrv"
)

var testDescs = []driver.Descriptor{
	{Type: driver.DImage, Stages: driver.SCompute, Nr: 0, Len: 1},
	{Type: driver.DConstant, Stages: driver.SCompute, Nr: 1, Len: 1},
}

func TestDescAllocator(t *testing.T) {
	d := nulldrv.New()
	p, err := NewDescPool(d, testDescs, 3, 2)
	require.NoError(t, err)
	defer p.Destroy()
	assert.Equal(t, 6, p.Heap().Count())
	assert.Equal(t, 2, p.PerFrame())

	a := NewDescAllocator(1)
	c0, ok := a.Alloc(p)
	require.True(t, ok)
	c1, ok := a.Alloc(p)
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, []int{c0, c1})
	assert.Equal(t, 2, a.InUse(p))

	_, ok = a.Alloc(p)
	assert.False(t, ok, "pools do not grow")

	a.Free(p, c0)
	c, ok := a.Alloc(p)
	require.True(t, ok)
	assert.Equal(t, c0, c)

	a.Clear()
	assert.Zero(t, a.InUse(p))
	c, ok = a.Alloc(p)
	require.True(t, ok)
	assert.Equal(t, 2, c)
}

func TestDescAllocatorSlotsDisjoint(t *testing.T) {
	d := nulldrv.New()
	p, err := NewDescPool(d, testDescs, 2, 40)
	require.NoError(t, err)
	seen := make(map[int]int)
	for slot := range 2 {
		a := NewDescAllocator(slot)
		for range 40 {
			c, ok := a.Alloc(p)
			require.True(t, ok)
			_, dup := seen[c]
			require.False(t, dup, "copy %d handed out twice", c)
			seen[c] = slot
		}
		_, ok := a.Alloc(p)
		assert.False(t, ok)
	}
	assert.Len(t, seen, 80)
}

func TestDescAllocatorSlotRange(t *testing.T) {
	d := nulldrv.New()
	p, err := NewDescPool(d, testDescs, 2, 1)
	require.NoError(t, err)
	assert.Panics(t, func() { NewDescAllocator(2).Alloc(p) })
}

func TestNewDescPoolInvalid(t *testing.T) {
	d := nulldrv.New()
	_, err := NewDescPool(d, testDescs, 0, 1)
	assert.Error(t, err)
	_, err = NewDescPool(d, nil, 1, 1)
	assert.Error(t, err)
}

func TestDeletionQueue(t *testing.T) {
	d := nulldrv.New()
	alloc := &testAlloc{gpu: d}
	q := NewDeletionQueue(alloc)

	img, err := d.NewImage(driver.RGBA8Unorm, driver.Dim3D{Width: 4, Height: 4}, 1, 1, 1, driver.UGeneric)
	require.NoError(t, err)
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	require.NoError(t, err)
	buf, err := alloc.NewBuffer(32, driver.UShaderConst, MemCPUToGPU)
	require.NoError(t, err)

	// Reverse order destroys the view before its image.
	q.Push(Deletion{DImage, img})
	q.Push(Deletion{DImageView, view})
	q.Push(Deletion{DBuffer, buf})
	q.Push(Deletion{DBuffer, nil})
	assert.Equal(t, 3, q.Len())

	assert.NotPanics(t, q.Flush)
	assert.Zero(t, q.Len())
	assert.Equal(t, 1, alloc.destroyed)
	nb, ni := d.Live()
	assert.Zero(t, nb)
	assert.Zero(t, ni)

	q.Flush()
	assert.Equal(t, 1, alloc.destroyed)
}

func TestFrameFree(t *testing.T) {
	d := nulldrv.New()
	alloc := &testAlloc{gpu: d}
	f, err := NewFrame(d, alloc, 0)
	require.NoError(t, err)
	g := New()
	g.SetRequiredData(d, driver.Dim3D{Width: 8, Height: 8}, alloc)
	g.AddComputePass("p", func(p *Pass) { p.CreatesBuffer("b", 8, driver.UShaderConst) }, nil)
	g.plan()
	g.ensureQueries(f)
	g.Run(f)
	f.Cmd.End()
	f.Free()
	assert.Nil(t, f.Cmd)
	assert.Nil(t, f.Queries)
	assert.Equal(t, 1, alloc.destroyed)
}
