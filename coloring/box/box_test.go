package box

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBox(t *testing.T) {
	b := New([]int{1, 2}, []int{4, 4})
	assert.Equal(t, 6, b.Size())
	assert.False(t, b.Empty())
	assert.True(t, b.Contains([]int{3, 3}))
	assert.False(t, b.Contains([]int{4, 3}))
	assert.True(t, b.Intersect(New([]int{4, 0}, []int{6, 6})).Empty())
	assert.Equal(t, New([]int{2, 2}, []int{4, 3}), b.Intersect(New([]int{2, 0}, []int{9, 3})))
	assert.Equal(t, New([]int{0, 2}, []int{4, 7}), b.Union(New([]int{0, 5}, []int{1, 7})))
	assert.Equal(t, b, b.Union(New([]int{9, 9}, []int{9, 10})))
	pts := b.Points()
	require.Len(t, pts, 6)
	assert.Equal(t, []int{1, 2}, pts[0])
	assert.Equal(t, []int{2, 2}, pts[1])
	assert.Equal(t, []int{1, 3}, pts[3])
	for k, p := range pts {
		assert.Equal(t, k, b.Linearize(p))
	}
	assert.Equal(t, "[1,4)x[2,4)", b.String())
	assert.True(t, Box{}.Empty())

	assert.Equal(t, []int{1, 2}, RankIndex([]int{3, 3}, 7))
	assert.Equal(t, 7, IndexRank([]int{3, 3}, []int{1, 2}))
}

func TestColor1D(t *testing.T) {
	b := func(lo, hi int) Box { return New([]int{lo}, []int{hi}) }
	{
		bc, err := Color([]int{6}, 1, 2, 0, []int{2}, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, b(2, 5), bc.Partition)
		assert.Equal(t, b(2, 4), bc.Exclusive)
		assert.Equal(t, []SharedBox{{Box: b(4, 5), Colors: []int{1}}}, bc.Shared)
		assert.Equal(t, []GhostBox{{Box: b(5, 6), Color: 1}}, bc.Ghost)
		assert.Equal(t, []Box{b(0, 2)}, bc.DomainHalo)
		assert.Equal(t, b(0, 6), bc.Overlay)
		assert.Equal(t, [][2]bool{{true, false}}, bc.OnBoundary)
		assert.Equal(t, []int{10}, bc.Strides)
	}
	{
		bc, err := Color([]int{6}, 1, 2, 0, []int{2}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, b(5, 8), bc.Partition)
		assert.Equal(t, b(6, 8), bc.Exclusive)
		assert.Equal(t, []SharedBox{{Box: b(5, 6), Colors: []int{0}}}, bc.Shared)
		assert.Equal(t, []GhostBox{{Box: b(4, 5), Color: 0}}, bc.Ghost)
		assert.Equal(t, []Box{b(8, 10)}, bc.DomainHalo)
		assert.Equal(t, b(4, 10), bc.Overlay)

		info := bc.Info()
		assert.Equal(t, 2, info.Exclusive)
		assert.Equal(t, 1, info.Shared)
		assert.Equal(t, 1, info.Ghost)
		assert.Equal(t, []int{0}, info.SharedUsers)
		assert.Equal(t, []int{0}, info.GhostOwners)
	}
	{ // A single color has no neighbours
		bc, err := Color([]int{6}, 1, 2, 0, []int{1}, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, b(2, 8), bc.Exclusive)
		assert.Empty(t, bc.Shared)
		assert.Empty(t, bc.Ghost)
		assert.Len(t, bc.DomainHalo, 2)
	}
}

// tiles checks that the boxes of bc are disjoint and, when exact, cover the
// overlay.
func tiles(t *testing.T, bc *Coloring, exact bool) {
	var all []Box
	all = append(all, bc.Exclusive)
	for _, s := range bc.Shared {
		all = append(all, s.Box)
	}
	for _, g := range bc.Ghost {
		all = append(all, g.Box)
	}
	all = append(all, bc.DomainHalo...)
	covered := make([]int, bc.Overlay.Size())
	for _, b := range all {
		for _, p := range b.Points() {
			require.True(t, bc.Overlay.Contains(p), "rank %d: %v outside overlay %v", bc.Rank, p, bc.Overlay)
			covered[bc.Overlay.Linearize(p)]++
		}
	}
	for k, n := range covered {
		if exact {
			assert.Equal(t, 1, n, "rank %d point %d", bc.Rank, k)
		} else {
			assert.LessOrEqual(t, n, 1, "rank %d point %d", bc.Rank, k)
		}
	}
}

func colorAll(t *testing.T, grid []int, ng, nd, td int, ncolors []int) []*Coloring {
	size := 1
	for _, n := range ncolors {
		size *= n
	}
	bcs := make([]*Coloring, size)
	for r := range bcs {
		var err error
		bcs[r], err = Color(grid, ng, nd, td, ncolors, r, size)
		require.NoError(t, err)
	}
	return bcs
}

func TestColor2D(t *testing.T) {
	bcs := colorAll(t, []int{12, 9}, 1, 1, 0, []int{3, 3})
	for _, bc := range bcs {
		tiles(t, bc, true)
	}
	{ // Primary boxes tile the domain
		total := 0
		for _, bc := range bcs {
			total += bc.Partition.Size()
		}
		assert.Equal(t, 108, total)
	}
	{ // Every ghost point is shared with us by its owner, with matching counts
		for r, bc := range bcs {
			ghostFrom := make(map[int]int)
			for _, g := range bc.Ghost {
				owner := bcs[g.Color]
				for _, p := range g.Box.Points() {
					ghostFrom[g.Color]++
					found := false
					for _, s := range owner.Shared {
						if s.Box.Contains(p) {
							assert.Contains(t, s.Colors, r)
							found = true
						}
					}
					assert.True(t, found, "rank %d ghost %v not shared by %d", r, p, g.Color)
				}
			}
			for q, n := range ghostFrom {
				sharedWithUs := 0
				for _, s := range bcs[q].Shared {
					for _, c := range s.Colors {
						if c == r {
							sharedWithUs += s.Box.Size()
						}
					}
				}
				assert.Equal(t, n, sharedWithUs, "rank %d from %d", r, q)
			}
		}
	}
	{ // Middle rank has all eight neighbours
		mid := bcs[4]
		assert.Len(t, mid.Ghost, 8)
		assert.Empty(t, mid.DomainHalo)
		assert.Equal(t, []int{0, 1, 2, 3, 5, 6, 7, 8}, mid.Info().GhostOwners)
		assert.Equal(t, New([]int{4, 3}, []int{10, 8}), mid.Overlay)
	}
	{ // Through edges the corner ghosts disappear
		bcs := colorAll(t, []int{12, 9}, 1, 1, 1, []int{3, 3})
		mid := bcs[4]
		assert.Len(t, mid.Ghost, 4)
		assert.Equal(t, []int{1, 3, 5, 7}, mid.Info().GhostOwners)
		for _, s := range mid.Shared {
			assert.Subset(t, []int{1, 3, 5, 7}, s.Colors)
		}
		for _, bc := range bcs {
			tiles(t, bc, false)
		}
	}
}

func TestColor3D(t *testing.T) {
	bcs := colorAll(t, []int{6, 6, 6}, 1, 1, 0, []int{2, 2, 2})
	for _, bc := range bcs {
		tiles(t, bc, true)
		assert.Len(t, bc.Ghost, 7)
		assert.Equal(t, 27, bc.Partition.Size())
		assert.Equal(t, 125, bc.Overlay.Size())
	}
	faces := colorAll(t, []int{6, 6, 6}, 1, 1, 2, []int{2, 2, 2})
	for _, bc := range faces {
		assert.Len(t, bc.Ghost, 3)
		tiles(t, bc, false)
	}
}

func TestColorPreconditions(t *testing.T) {
	_, err := Color([]int{8, 8}, 1, 1, 0, []int{2, 2}, 0, 3)
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.ErrorContains(t, err, "must equal the total number of domains")
	_, err = Color([]int{8, 8}, 1, 1, 2, []int{2, 2}, 0, 4)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = Color([]int{8}, 1, 1, 0, []int{2, 2}, 0, 4)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = Color([]int{3}, 1, 1, 0, []int{3}, 1, 3)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = Color([]int{2}, 1, 1, 0, []int{3}, 0, 3)
	assert.ErrorIs(t, err, ErrPrecondition)
	_, err = Color([]int{1, 1, 1, 1}, 0, 0, 0, []int{1, 1, 1, 1}, 0, 1)
	assert.ErrorIs(t, err, ErrPrecondition)
}
