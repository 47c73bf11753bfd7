// Package box colors structured grids: each rank gets a block of cells and a
// decomposition of its neighbourhood into exclusive, shared, ghost and
// domain-halo boxes.
package box

import (
	"fmt"
	"strings"
)

// Box is a half-open index range [Lower[d], Upper[d]) per axis.
type Box struct {
	Lower []int `json:"lower"`
	Upper []int `json:"upper"`
}

func New(lower, upper []int) Box {
	return Box{Lower: append([]int{}, lower...), Upper: append([]int{}, upper...)}
}

func (b Box) Dim() int { return len(b.Lower) }

func (b Box) Extent(d int) int {
	if n := b.Upper[d] - b.Lower[d]; n > 0 {
		return n
	}
	return 0
}

// Size is the number of points in the box.
func (b Box) Size() int {
	if b.Dim() == 0 {
		return 0
	}
	n := 1
	for d := range b.Lower {
		n *= b.Extent(d)
	}
	return n
}

func (b Box) Empty() bool { return b.Size() == 0 }

func (b Box) Clone() Box { return New(b.Lower, b.Upper) }

func (b Box) Contains(p []int) bool {
	for d := range b.Lower {
		if p[d] < b.Lower[d] || p[d] >= b.Upper[d] {
			return false
		}
	}
	return b.Dim() > 0
}

func (b Box) Intersect(o Box) Box {
	x := b.Clone()
	for d := range x.Lower {
		x.Lower[d] = max(x.Lower[d], o.Lower[d])
		x.Upper[d] = min(x.Upper[d], o.Upper[d])
	}
	return x
}

// Union returns the bounding box of b and o. Empty boxes are ignored.
func (b Box) Union(o Box) Box {
	switch {
	case b.Empty():
		return o.Clone()
	case o.Empty():
		return b.Clone()
	}
	u := b.Clone()
	for d := range u.Lower {
		u.Lower[d] = min(u.Lower[d], o.Lower[d])
		u.Upper[d] = max(u.Upper[d], o.Upper[d])
	}
	return u
}

// Linearize returns the position of p inside the box, axis 0 fastest.
func (b Box) Linearize(p []int) int {
	idx, stride := 0, 1
	for d := range b.Lower {
		idx += (p[d] - b.Lower[d]) * stride
		stride *= b.Extent(d)
	}
	return idx
}

// Points lists every point of the box in Linearize order.
func (b Box) Points() [][]int {
	n := b.Size()
	pts := make([][]int, 0, n)
	for k := 0; k < n; k++ {
		p := make([]int, b.Dim())
		r := k
		for d := range p {
			p[d] = b.Lower[d] + r%b.Extent(d)
			r /= b.Extent(d)
		}
		pts = append(pts, p)
	}
	return pts
}

func (b Box) String() string {
	var sb strings.Builder
	for d := range b.Lower {
		if d > 0 {
			sb.WriteString("x")
		}
		fmt.Fprintf(&sb, "[%d,%d)", b.Lower[d], b.Upper[d])
	}
	return sb.String()
}

type SharedBox struct {
	Box    Box   `json:"box"`
	Colors []int `json:"colors"` // Ranks ghosting the box, sorted
}

type GhostBox struct {
	Box   Box `json:"box"`
	Color int `json:"color"` // Owning rank
}

// Coloring is the box decomposition of one rank.
type Coloring struct {
	Rank       int         `json:"rank"`
	Colors     []int       `json:"colors"` // Colors per axis
	Index      []int       `json:"index"`  // Multi-index of the rank
	Strides    []int       `json:"strides"`
	Partition  Box         `json:"partition"`
	Exclusive  Box         `json:"exclusive"`
	Shared     []SharedBox `json:"shared"`
	Ghost      []GhostBox  `json:"ghost"`
	DomainHalo []Box       `json:"domain_halo"`
	Overlay    Box         `json:"overlay"`
	OnBoundary [][2]bool   `json:"on_boundary"` // Lower and upper face per axis
}

// AggregateInfo summarizes a Coloring. GhostOverlays holds the overlay box of
// every ghost owner and is filled by aggregation.
type AggregateInfo struct {
	Exclusive     int         `json:"exclusive"`
	Shared        int         `json:"shared"`
	Ghost         int         `json:"ghost"`
	SharedUsers   []int       `json:"shared_users"`
	GhostOwners   []int       `json:"ghost_owners"`
	GhostOverlays map[int]Box `json:"ghost_overlays"`
}
