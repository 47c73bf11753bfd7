package partition

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
)

// Stats holds partition quality metrics
type Stats struct {
	Sizes      []int // Entities per color
	Mean       float64
	StdDev     float64
	Imbalance  float64 // max/mean - 1
	EdgeCut    int     // Edges joining different colors, counted once
	Components []int   // Connected components per color
	Interfaces map[[2]int]int
}

// ComputeStats gathers the colored graph and measures it on every rank.
func ComputeStats(c *comm.Comm, d *dcrs.DCRS, colors []int, nColors int) (*Stats, error) {
	if len(colors) != d.RowCount() {
		return nil, fmt.Errorf("%w: %d colors for %d rows", ErrPartitioner, len(colors), d.RowCount())
	}
	g, err := dcrs.Gather(c, d)
	if err != nil {
		return nil, err
	}
	pairs := make([]int, 0, 2*len(colors))
	for i, color := range colors {
		pairs = append(pairs, d.GlobalID(i), color)
	}
	all, err := comm.Allgatherv(c, pairs)
	if err != nil {
		return nil, err
	}
	global := make([]int, g.RowCount())
	for _, buf := range all {
		for p := 0; p < len(buf); p += 2 {
			global[buf[p]] = buf[p+1]
		}
	}
	return GraphStats(g, global, nColors)
}

// GraphStats measures a coloring of a single-rank graph.
func GraphStats(g *dcrs.DCRS, colors []int, nColors int) (*Stats, error) {
	s := &Stats{
		Sizes:      make([]int, nColors),
		Components: make([]int, nColors),
		Interfaces: make(map[[2]int]int),
	}
	graphs := make([]*simple.UndirectedGraph, nColors)
	for k := range graphs {
		graphs[k] = simple.NewUndirectedGraph()
	}
	for i, color := range colors {
		if color < 0 || color >= nColors {
			return nil, fmt.Errorf("%w: vertex %d has color %d", ErrPartitioner, i, color)
		}
		s.Sizes[color]++
		graphs[color].AddNode(simple.Node(i))
	}
	for i := 0; i < g.RowCount(); i++ {
		for _, j := range g.Row(i) {
			if j <= i {
				continue
			}
			ci, cj := colors[i], colors[j]
			if ci == cj {
				ug := graphs[ci]
				ug.SetEdge(ug.NewEdge(simple.Node(i), simple.Node(j)))
				continue
			}
			s.EdgeCut++
			if ci > cj {
				ci, cj = cj, ci
			}
			s.Interfaces[[2]int{ci, cj}]++
		}
	}
	for k, ug := range graphs {
		s.Components[k] = len(topo.ConnectedComponents(ug))
	}
	sizes := make([]float64, nColors)
	maxSize := 0.
	for k, n := range s.Sizes {
		sizes[k] = float64(n)
		maxSize = math.Max(maxSize, sizes[k])
	}
	s.Mean, s.StdDev = stat.MeanStdDev(sizes, nil)
	if s.Mean > 0 {
		s.Imbalance = maxSize/s.Mean - 1
	}
	return s, nil
}

// Log reports the metrics on logger.
func (s *Stats) Log(logger zerolog.Logger) {
	logger.Info().
		Int("cut_edges", s.EdgeCut).
		Float64("mean", s.Mean).
		Float64("stddev", s.StdDev).
		Str("imbalance", fmt.Sprintf("%.2f%%", s.Imbalance*100)).
		Msg("partition analysis")
	for k, n := range s.Sizes {
		logger.Debug().Int("color", k).Int("entities", n).
			Int("components", s.Components[k]).Msg("partition")
	}
	for pair, n := range s.Interfaces {
		logger.Debug().Msgf("color %d <-> %d: %d edges", pair[0], pair[1], n)
	}
}
