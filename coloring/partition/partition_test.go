package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/coloring/colormap"
	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
)

var cellsThruEdges = dcrs.Config{FromDim: 2, ToDim: 0, ThruDim: 1}

// colorAll runs p on every rank and returns the global color vector and the
// ids each rank received from Distribute.
func colorAll(t *testing.T, def mesh.Definition, p Partitioner, size, nColors int) ([]int, [][][]int) {
	var (
		w        = comm.NewWorld(size)
		global   = make([]int, def.NumEntities(def.Dimension()))
		received = make([][][]int, size)
	)
	parts := make([][]int, size)
	graphs := make([]*dcrs.DCRS, size)
	err := w.Run(func(c *comm.Comm) error {
		d, err := dcrs.BuildDistributed(c, def, cellsThruEdges)
		if err != nil {
			return err
		}
		colors, err := p.Color(c, d, nColors)
		if err != nil {
			return err
		}
		graphs[c.Rank()], parts[c.Rank()] = d, colors
		received[c.Rank()], err = Distribute(c, d, nColors, colors)
		return err
	})
	require.NoError(t, err)
	for r, d := range graphs {
		for i, color := range parts[r] {
			global[d.GlobalID(i)] = color
		}
	}
	return global, received
}

func TestNaive(t *testing.T) {
	m, err := mesh.NewStructured(16, 16)
	require.NoError(t, err)
	{ // One color per rank reproduces the leading block distribution
		global, received := colorAll(t, m, Naive{}, 5, 5)
		cm := colormap.New(5, 5, 256)
		for gid, color := range global {
			assert.Equal(t, cm.IndexColor(gid), color)
		}
		for r, colors := range received {
			require.Len(t, colors, 1)
			assert.Len(t, colors[0], cm.Indices(r))
			assert.Equal(t, cm.IndexOffset(r), colors[0][0])
		}
	}
	{ // Seven colors over three ranks
		_, received := colorAll(t, m, Naive{}, 3, 7)
		assert.Len(t, received[0], 3)
		assert.Len(t, received[1], 2)
		assert.Len(t, received[2], 2)
		total := 0
		for _, colors := range received {
			for _, ids := range colors {
				assert.IsIncreasing(t, ids)
				total += len(ids)
			}
		}
		assert.Equal(t, 256, total)
	}
}

func TestMetis(t *testing.T) {
	m, err := mesh.NewStructured(16, 16)
	require.NoError(t, err)
	full, err := dcrs.Build(m, cellsThruEdges, 0, 1)
	require.NoError(t, err)
	{
		global, received := colorAll(t, m, DefaultMetis(), 4, 4)
		s, err := GraphStats(full, global, 4)
		require.NoError(t, err)
		for k, n := range s.Sizes {
			assert.Greater(t, n, 0, "color %d", k)
			assert.Len(t, received[k][0], n)
		}
		assert.LessOrEqual(t, s.Imbalance, 0.1)
		assert.LessOrEqual(t, s.EdgeCut, 64)
		assert.InDelta(t, 64., s.Mean, 1e-12)
	}
	{ // Decoupled colors and the volume objective
		p := DefaultMetis()
		p.Objective = "vol"
		global, _ := colorAll(t, m, p, 4, 2)
		s, err := GraphStats(full, global, 2)
		require.NoError(t, err)
		assert.Equal(t, 256, s.Sizes[0]+s.Sizes[1])
		assert.Greater(t, s.Sizes[0], 0)
		assert.Greater(t, s.Sizes[1], 0)
	}
	{
		global, _ := colorAll(t, m, DefaultMetis(), 2, 1)
		for _, color := range global {
			assert.Equal(t, 0, color)
		}
	}
	{ // Weights of the wrong length fail on every rank
		p := DefaultMetis()
		p.VertexWeights = []int32{1, 2, 3}
		w := comm.NewWorld(2)
		err := w.Run(func(c *comm.Comm) error {
			d, err := dcrs.BuildDistributed(c, m, cellsThruEdges)
			if err != nil {
				return err
			}
			_, err = p.Color(c, d, 2)
			return err
		})
		assert.ErrorContains(t, err, ErrPartitioner.Error())
	}
	{ // Row 0 lists 2 but row 2 does not list 0
		w := comm.NewWorld(2)
		err := w.Run(func(c *comm.Comm) error {
			d := &dcrs.DCRS{Rank: c.Rank(), Distribution: []int{0, 2, 4}}
			if c.Rank() == 0 {
				d.Offsets, d.Indices = []int{0, 2, 3}, []int{1, 2, 0}
			} else {
				d.Offsets, d.Indices = []int{0, 1, 2}, []int{3, 2}
			}
			_, err := DefaultMetis().Color(c, d, 2)
			return err
		})
		assert.ErrorContains(t, err, ErrPartitioner.Error())
		assert.ErrorContains(t, err, "not symmetric")
	}
}

func TestRelabel(t *testing.T) {
	assert.Equal(t, []int{0, 0, 1, 1}, Relabel([]int{1, 1, 0, 0}, []int{0, 0, 1, 1}, 2))
	// Part 1 is empty and takes the leftover label
	assert.Equal(t, []int{0, 0, 0, 1, 1}, Relabel([]int{2, 2, 2, 0, 0}, []int{0, 0, 0, 1, 1}, 3))
}

func TestGraphStats(t *testing.T) {
	m, err := mesh.NewStructured(4, 4)
	require.NoError(t, err)
	g, err := dcrs.Build(m, cellsThruEdges, 0, 1)
	require.NoError(t, err)
	{ // Left and right halves
		colors := make([]int, 16)
		for c := range colors {
			if c%4 >= 2 {
				colors[c] = 1
			}
		}
		s, err := GraphStats(g, colors, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{8, 8}, s.Sizes)
		assert.Equal(t, 4, s.EdgeCut)
		assert.Equal(t, []int{1, 1}, s.Components)
		assert.Equal(t, 4, s.Interfaces[[2]int{0, 1}])
		assert.InDelta(t, 0., s.StdDev, 1e-12)
		assert.InDelta(t, 0., s.Imbalance, 1e-12)
	}
	{ // Two opposite corners share a color but do not touch
		colors := make([]int, 16)
		colors[0], colors[15] = 1, 1
		s, err := GraphStats(g, colors, 2)
		require.NoError(t, err)
		assert.Equal(t, []int{14, 2}, s.Sizes)
		assert.Equal(t, 4, s.EdgeCut)
		assert.Equal(t, []int{1, 2}, s.Components)
		assert.InDelta(t, 14./8-1, s.Imbalance, 1e-12)
	}
	{
		_, err := GraphStats(g, make([]int, 16), 0)
		assert.ErrorIs(t, err, ErrPartitioner)
	}
	{
		w := comm.NewWorld(2)
		err := w.Run(func(c *comm.Comm) error {
			d, err := dcrs.BuildDistributed(c, m, cellsThruEdges)
			if err != nil {
				return err
			}
			colors, err := Naive{}.Color(c, d, 2)
			if err != nil {
				return err
			}
			s, err := ComputeStats(c, d, colors, 2)
			if err != nil {
				return err
			}
			if s.EdgeCut != 4 {
				t.Errorf("rank %d: edge cut %d", c.Rank(), s.EdgeCut)
			}
			return nil
		})
		assert.NoError(t, err)
	}
	_, err = New("scotch")
	assert.ErrorIs(t, err, ErrPartitioner)
}
