package box

import (
	"errors"
	"fmt"

	"github.com/notargets/gohalo/utils"
)

var ErrPrecondition = errors.New("box coloring precondition violated")

// RankIndex converts a rank to its multi-index over ncolors, axis 0 fastest.
func RankIndex(ncolors []int, rank int) []int {
	idx := make([]int, len(ncolors))
	for d, n := range ncolors {
		idx[d] = rank % n
		rank /= n
	}
	return idx
}

// IndexRank is the inverse of RankIndex.
func IndexRank(ncolors, idx []int) int {
	rank, stride := 0, 1
	for d, n := range ncolors {
		rank += idx[d] * stride
		stride *= n
	}
	return rank
}

// Color decomposes a grid of cells over prod(ncolors) == size ranks and
// returns the boxes of rank. The domain occupies [nDomain, nDomain+grid[d])
// on each axis, surrounded by nDomain halo layers. Neighbours across a
// corner or edge of dimension less than thruDim are not ghosted.
func Color(grid []int, nGhost, nDomain, thruDim int, ncolors []int, rank, size int) (*Coloring, error) {
	D := len(grid)
	switch {
	case D < 1 || D > 3:
		return nil, fmt.Errorf("%w: grid dimension %d not in [1,3]", ErrPrecondition, D)
	case len(ncolors) != D:
		return nil, fmt.Errorf("%w: %d color counts for a %d-D grid", ErrPrecondition, len(ncolors), D)
	case thruDim < 0 || thruDim >= D:
		return nil, fmt.Errorf("%w: through dimension (%d) must be less than total number of dimensions (%d)",
			ErrPrecondition, thruDim, D)
	case nGhost < 0 || nDomain < 0:
		return nil, fmt.Errorf("%w: negative layer count", ErrPrecondition)
	case rank < 0 || rank >= size:
		return nil, fmt.Errorf("%w: rank %d of %d", ErrPrecondition, rank, size)
	}
	count := 1
	for d := range ncolors {
		if ncolors[d] < 1 || grid[d] < ncolors[d] {
			return nil, fmt.Errorf("%w: axis %d: %d cells over %d colors", ErrPrecondition, d, grid[d], ncolors[d])
		}
		count *= ncolors[d]
	}
	if count != size {
		return nil, fmt.Errorf("%w: number of processors (%d) must equal the total number of domains (%d)",
			ErrPrecondition, size, count)
	}

	bc := &Coloring{
		Rank:       rank,
		Colors:     append([]int{}, ncolors...),
		Index:      RankIndex(ncolors, rank),
		Strides:    make([]int, D),
		Partition:  Box{Lower: make([]int, D), Upper: make([]int, D)},
		Exclusive:  Box{Lower: make([]int, D), Upper: make([]int, D)},
		OnBoundary: make([][2]bool, D),
	}
	for d := 0; d < D; d++ {
		var (
			lo, hi = nDomain, nDomain + grid[d]
			w      = grid[d] / ncolors[d]
			p      = &bc.Partition
			e      = &bc.Exclusive
		)
		bc.Strides[d] = grid[d] + 2*nDomain
		p.Lower[d] = lo + w*bc.Index[d]
		p.Upper[d] = p.Lower[d] + w
		if bc.Index[d] == ncolors[d]-1 {
			p.Upper[d] = hi
		}
		bc.OnBoundary[d] = [2]bool{p.Lower[d] == lo, p.Upper[d] == hi}
		e.Lower[d], e.Upper[d] = p.Lower[d], p.Upper[d]
		if !bc.OnBoundary[d][0] {
			e.Lower[d] += nGhost
		}
		if !bc.OnBoundary[d][1] {
			e.Upper[d] -= nGhost
		}
		if e.Lower[d] > e.Upper[d] {
			return nil, fmt.Errorf("%w: axis %d: block of %d cells cannot hold %d ghost layers per side",
				ErrPrecondition, d, p.Extent(d), nGhost)
		}
	}

	bc.Overlay = bc.Partition.Clone()
	forEachDirection(D, func(dir []int, m int) {
		var (
			shared  = Box{Lower: make([]int, D), Upper: make([]int, D)}
			outside = Box{Lower: make([]int, D), Upper: make([]int, D)}
			onBnd   bool
		)
		for d, o := range dir {
			p, e := bc.Partition, bc.Exclusive
			width := nGhost
			if bc.crosses(d, o) {
				onBnd, width = true, nDomain
			}
			switch o {
			case -1:
				shared.Lower[d], shared.Upper[d] = p.Lower[d], e.Lower[d]
				outside.Lower[d], outside.Upper[d] = p.Lower[d]-width, p.Lower[d]
			case 0:
				shared.Lower[d], shared.Upper[d] = e.Lower[d], e.Upper[d]
				outside.Lower[d], outside.Upper[d] = p.Lower[d], p.Upper[d]
			case 1:
				shared.Lower[d], shared.Upper[d] = e.Upper[d], p.Upper[d]
				outside.Lower[d], outside.Upper[d] = p.Upper[d], p.Upper[d]+width
			}
		}
		switch {
		case outside.Empty():
		case onBnd:
			bc.DomainHalo = append(bc.DomainHalo, outside)
			bc.Overlay = bc.Overlay.Union(outside)
		case thruDim <= D-m:
			bc.Ghost = append(bc.Ghost, GhostBox{Box: outside, Color: bc.neighbour(dir)})
			bc.Overlay = bc.Overlay.Union(outside)
		}
		if shared.Empty() {
			return
		}
		var colors []int
		forEachSubDirection(dir, func(sub []int, ms int) {
			if thruDim > D-ms {
				return
			}
			for d, o := range sub {
				if bc.crosses(d, o) {
					return
				}
			}
			colors = utils.SetInsert(colors, bc.neighbour(sub))
		})
		if len(colors) > 0 {
			bc.Shared = append(bc.Shared, SharedBox{Box: shared, Colors: colors})
		}
	})
	return bc, nil
}

// crosses reports whether stepping o along axis d leaves the domain.
func (bc *Coloring) crosses(d, o int) bool {
	return (o < 0 && bc.OnBoundary[d][0]) || (o > 0 && bc.OnBoundary[d][1])
}

func (bc *Coloring) neighbour(dir []int) int {
	idx := make([]int, len(dir))
	for d, o := range dir {
		idx[d] = bc.Index[d] + o
	}
	return IndexRank(bc.Colors, idx)
}

// forEachDirection visits the 3^D-1 nonzero offsets in {-1,0,1}^D, axis 0
// fastest, with m the number of nonzero components.
func forEachDirection(D int, fn func(dir []int, m int)) {
	n := 1
	for d := 0; d < D; d++ {
		n *= 3
	}
	for k := 0; k < n; k++ {
		var (
			dir = make([]int, D)
			m   int
			r   = k
		)
		for d := range dir {
			dir[d] = r%3 - 1
			r /= 3
			if dir[d] != 0 {
				m++
			}
		}
		if m > 0 {
			fn(dir, m)
		}
	}
}

// forEachSubDirection visits the nonzero offsets obtained by zeroing any
// subset of the components of dir.
func forEachSubDirection(dir []int, fn func(sub []int, m int)) {
	var axes []int
	for d, o := range dir {
		if o != 0 {
			axes = append(axes, d)
		}
	}
	for mask := 1; mask < 1<<len(axes); mask++ {
		var (
			sub = make([]int, len(dir))
			m   int
		)
		for i, d := range axes {
			if mask&(1<<i) != 0 {
				sub[d] = dir[d]
				m++
			}
		}
		fn(sub, m)
	}
}

// Info returns the counts and peers of the coloring. GhostOverlays is left
// empty.
func (bc *Coloring) Info() AggregateInfo {
	info := AggregateInfo{
		Exclusive:     bc.Exclusive.Size(),
		GhostOverlays: make(map[int]Box),
	}
	for _, s := range bc.Shared {
		info.Shared += s.Box.Size()
		info.SharedUsers = utils.SetUnion(info.SharedUsers, s.Colors)
	}
	for _, g := range bc.Ghost {
		info.Ghost += g.Box.Size()
		info.GhostOwners = utils.SetInsert(info.GhostOwners, g.Color)
	}
	return info
}
