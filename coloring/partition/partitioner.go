// Package partition assigns colors to the rows of a distributed graph and
// moves the colored ids to the processes that own each color.
package partition

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/gohalo/coloring/colormap"
	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
)

var ErrPartitioner = errors.New("partitioner failure")

// Partitioner returns one color in [0,nColors) per local row of d.
type Partitioner interface {
	Color(c *comm.Comm, d *dcrs.DCRS, nColors int) ([]int, error)
}

// New returns the partitioner registered under name.
func New(name string) (Partitioner, error) {
	switch name {
	case "naive":
		return Naive{}, nil
	case "metis", "parmetis":
		return DefaultMetis(), nil
	default:
		return nil, fmt.Errorf("%w: unknown partitioner %q", ErrPartitioner, name)
	}
}

// Naive colors each row by the color map block holding its global id.
type Naive struct{}

func (Naive) Color(c *comm.Comm, d *dcrs.DCRS, nColors int) ([]int, error) {
	if nColors < 1 {
		return nil, fmt.Errorf("%w: %d colors", ErrPartitioner, nColors)
	}
	var (
		cm     = colormap.New(c.Size(), nColors, d.Total())
		colors = make([]int, d.RowCount())
	)
	for i := range colors {
		colors[i] = cm.IndexColor(d.GlobalID(i))
	}
	return colors, nil
}

// Distribute sends the global id of every local row to the process owning its
// color. It returns the sorted ids of each color held by the calling rank,
// the first entry being color ColorOffset(rank).
func Distribute(c *comm.Comm, d *dcrs.DCRS, nColors int, colors []int) ([][]int, error) {
	if len(colors) != d.RowCount() {
		return nil, fmt.Errorf("%w: %d colors for %d rows", ErrPartitioner, len(colors), d.RowCount())
	}
	var (
		cm   = colormap.New(c.Size(), nColors, d.Total())
		send = make([][]int, c.Size())
	)
	for i, color := range colors {
		if color < 0 || color >= nColors {
			return nil, fmt.Errorf("%w: row %d has color %d outside [0,%d)",
				ErrPartitioner, d.GlobalID(i), color, nColors)
		}
		p := cm.Process(color)
		send[p] = append(send[p], color, d.GlobalID(i))
	}
	recv, err := comm.Alltoallv(c, send)
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	var (
		first  = cm.ColorOffset(c.Rank())
		result = make([][]int, cm.Colors(c.Rank()))
	)
	for _, pairs := range recv {
		for p := 0; p < len(pairs); p += 2 {
			result[pairs[p]-first] = append(result[pairs[p]-first], pairs[p+1])
		}
	}
	for _, ids := range result {
		sort.Ints(ids)
	}
	return result, nil
}
