package ownership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
)

var cellsThruEdges = dcrs.Config{FromDim: 2, ToDim: 0, ThruDim: 1}

func seq(lo, hi int) []int {
	s := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		s = append(s, i)
	}
	return s
}

func offsets(set []EntityInfo) []int {
	o := make([]int, len(set))
	for i, e := range set {
		o[i] = e.Offset
	}
	return o
}

// naiveColorings classifies and remaps the cells of def on size ranks.
func naiveColorings(t *testing.T, def mesh.Definition, size int) ([]*IndexColoring, []*IndexColoring) {
	var (
		w          = comm.NewWorld(size)
		classified = make([]*IndexColoring, size)
		remapped   = make([]*IndexColoring, size)
	)
	err := w.Run(func(c *comm.Comm) error {
		d, err := dcrs.BuildDistributed(c, def, cellsThruEdges)
		if err != nil {
			return err
		}
		ic, _, err := Classify(c.Rank(), d, NaiveOwnership{Distribution: d.Distribution})
		if err != nil {
			return err
		}
		before := *ic
		before.Ghost = append([]EntityInfo{}, ic.Ghost...)
		classified[c.Rank()] = &before
		if err = Remap(c, ic); err != nil {
			return err
		}
		remapped[c.Rank()] = ic
		return nil
	})
	require.NoError(t, err)
	return classified, remapped
}

func TestOwners(t *testing.T) {
	{
		n := NaiveOwnership{Distribution: []int{0, 2, 4, 7, 10}}
		for _, tc := range []struct{ gid, rank, offset int }{
			{0, 0, 0}, {3, 1, 1}, {4, 2, 0}, {9, 3, 2}, {10, -1, -1}, {-1, -1, -1},
		} {
			r, off := n.Owner(tc.gid)
			assert.Equal(t, tc.rank, r, "gid %d", tc.gid)
			assert.Equal(t, tc.offset, off, "gid %d", tc.gid)
		}
		// Empty leading rank
		r, off := NaiveOwnership{Distribution: []int{0, 0, 3}}.Owner(0)
		assert.Equal(t, 1, r)
		assert.Equal(t, 0, off)
	}
	{
		po, err := NewPartitionedOwnership([][]int{{7, 1, 3}, {0, 2}})
		require.NoError(t, err)
		assert.Equal(t, 5, po.Len())
		r, off := po.Owner(7)
		assert.Equal(t, []int{0, 2}, []int{r, off})
		r, off = po.Owner(2)
		assert.Equal(t, []int{1, 1}, []int{r, off})
		r, _ = po.Owner(4)
		assert.Equal(t, -1, r)

		_, err = NewPartitionedOwnership([][]int{{1, 2}, {2}})
		assert.ErrorIs(t, err, ErrInconsistent)
		_, err = NewPartitionedOwnership([][]int{{1, 1}})
		assert.ErrorIs(t, err, ErrInconsistent)
	}
	assert.Equal(t, []int{2, 5}, Intersection([]int{5, 1, 2, 2}, []int{9, 2, 5}))
}

func TestClassify(t *testing.T) {
	m, err := mesh.NewStructured(16, 16)
	require.NoError(t, err)
	classified, remapped := naiveColorings(t, m, 5)
	{ // Rows 0..50 on rank 0, the top 16 touch rank 1
		ic := classified[0]
		info := ic.Info()
		assert.Equal(t, 35, info.Exclusive)
		assert.Equal(t, 16, info.Shared)
		assert.Equal(t, 16, info.Ghost)
		assert.Equal(t, []int{1}, info.SharedUsers)
		assert.Equal(t, []int{1}, info.GhostOwners)
		assert.Equal(t, seq(35, 51), ic.IDs(Shared))
		assert.Equal(t, seq(51, 67), ic.IDs(Ghost))
		// Before remapping ghosts carry the owner-local offset
		assert.Equal(t, seq(0, 16), offsets(ic.Ghost))
		info1 := classified[1].Info()
		assert.Equal(t, 19, info1.Exclusive)
		assert.Equal(t, 32, info1.Shared)
		assert.Equal(t, []int{0, 2}, info1.SharedUsers)
		assert.Equal(t, []int{0, 2}, info1.GhostOwners)
	}
	{ // Every cell has exactly one owner
		owned := make(map[int]int)
		for r, ic := range remapped {
			for _, gid := range ic.Primary() {
				_, dup := owned[gid]
				assert.False(t, dup, "cell %d", gid)
				owned[gid] = r
			}
		}
		assert.Len(t, owned, 256)
	}
	{ // Ghosts point at shared entities of their owner
		for r, ic := range remapped {
			for _, g := range ic.Ghost {
				owner := remapped[g.Rank]
				require.Less(t, g.Offset, len(owner.Shared))
				s := owner.Shared[g.Offset]
				assert.Equal(t, g.ID, s.ID)
				assert.Contains(t, s.Shared, r)
				assert.Contains(t, owner.SharedUsers, r)
				assert.Contains(t, ic.GhostOwners, g.Rank)
			}
			for _, u := range ic.SharedUsers {
				assert.Contains(t, remapped[u].GhostOwners, r)
			}
		}
	}
	{
		assert.Equal(t, seq(0, 16), offsets(remapped[0].Ghost))
		assert.Equal(t, append(seq(0, 16), seq(0, 16)...), offsets(remapped[1].Ghost))
	}
	{
		info, kind, idx, ok := remapped[1].Lookup(66)
		require.True(t, ok)
		assert.Equal(t, Shared, kind)
		assert.Equal(t, 15, idx)
		assert.Equal(t, []int{0}, info.Shared)
		assert.False(t, remapped[1].Contains(5))
		assert.Equal(t, "ghost", Ghost.String())
		assert.Equal(t, "Kind(7)", Kind(7).String())
	}
}

func TestClassifyErrors(t *testing.T) {
	m, err := mesh.NewStructured(4, 4)
	require.NoError(t, err)
	{
		d, err := dcrs.Build(m, cellsThruEdges, 0, 2)
		require.NoError(t, err)
		// Ownership disagrees with the distribution of rows
		_, _, err = Classify(0, d, NaiveOwnership{Distribution: []int{0, 4, 16}})
		assert.ErrorIs(t, err, ErrInconsistent)
		_, _, err = Classify(0, d, NaiveOwnership{Distribution: []int{0, 8}})
		assert.ErrorIs(t, err, ErrInconsistent)
	}
	{ // A ghost its owner does not share
		w := comm.NewWorld(2)
		var errs [2]error
		_ = w.Run(func(c *comm.Comm) error {
			ic := &IndexColoring{}
			if c.Rank() == 0 {
				ic.Ghost = []EntityInfo{{ID: 5, Rank: 1}}
			} else {
				ic.Shared = []EntityInfo{{ID: 5, Rank: 1, Shared: []int{3}}}
			}
			errs[c.Rank()] = Remap(c, ic)
			return nil
		})
		assert.ErrorIs(t, errs[0], ErrInconsistent)
		assert.ErrorContains(t, errs[1], "not a user")
	}
}

func TestColorClosure(t *testing.T) {
	m, err := mesh.NewStructured(4, 4)
	require.NoError(t, err)
	var (
		w        = comm.NewWorld(2)
		vertices = make([]*IndexColoring, 2)
	)
	err = w.Run(func(c *comm.Comm) error {
		d, err := dcrs.BuildDistributed(c, m, cellsThruEdges)
		if err != nil {
			return err
		}
		cells, _, err := Classify(c.Rank(), d, NaiveOwnership{Distribution: d.Distribution})
		if err != nil {
			return err
		}
		vc, _, err := ColorClosure(c, m, cells, 2, 0)
		if err != nil {
			return err
		}
		if c.Rank() == 1 && len(vc.Ghost) > 0 && vc.Ghost[0].Offset != 10 {
			t.Errorf("ghost offset before remap %d", vc.Ghost[0].Offset)
		}
		vertices[c.Rank()] = vc
		return Remap(c, vc)
	})
	require.NoError(t, err)
	{ // Vertex row 2 sits between the two cell blocks and goes to rank 0
		v0, v1 := vertices[0], vertices[1]
		assert.Equal(t, seq(0, 10), v0.IDs(Exclusive))
		assert.Equal(t, seq(10, 15), v0.IDs(Shared))
		assert.Empty(t, v0.Ghost)
		assert.Equal(t, []int{1}, v0.SharedUsers)
		assert.Equal(t, seq(15, 25), v1.IDs(Exclusive))
		assert.Empty(t, v1.Shared)
		assert.Equal(t, seq(10, 15), v1.IDs(Ghost))
		assert.Equal(t, seq(0, 5), offsets(v1.Ghost))
		assert.Equal(t, []int{0}, v1.GhostOwners)
		assert.Equal(t, seq(0, 10), offsets(v1.Exclusive))
	}
}
