package partition

import (
	"fmt"
	"sort"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/gohalo/coloring/colormap"
	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/comm"
)

// Metis colors the graph with a k-way METIS partition of the gathered
// global graph.
type Metis struct {
	ImbalanceFactor float32 // e.g., 1.05 for 5% imbalance
	Objective       string  // "cut" or "vol"
	// VertexWeights are indexed by global id, nil for uniform weights
	VertexWeights []int32
}

func DefaultMetis() *Metis {
	return &Metis{
		ImbalanceFactor: 1.05,
		Objective:       "cut",
	}
}

// Color runs METIS on rank 0 and broadcasts the part vector. When nColors
// differs from the number of ranks the parts are relabelled to overlap the
// color map blocks as much as possible.
func (m *Metis) Color(c *comm.Comm, d *dcrs.DCRS, nColors int) ([]int, error) {
	if nColors < 1 {
		return nil, fmt.Errorf("%w: %d colors", ErrPartitioner, nColors)
	}
	g, err := dcrs.Gather(c, d)
	if err != nil {
		return nil, err
	}
	// Every rank holds the same gathered graph, so all of them fail together
	if !g.IsSymmetric() {
		return nil, fmt.Errorf("%w: gathered graph of %d rows is not symmetric", ErrPartitioner, g.RowCount())
	}
	var (
		part    []int32
		runErr  error
		objval  int32
		nVertex = g.RowCount()
	)
	if c.Rank() == 0 {
		if part, objval, runErr = m.partition(g, nColors); runErr != nil {
			part = nil
		}
	}
	if part, err = comm.Bcast(c, 0, part); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if len(part) != nVertex {
		return nil, fmt.Errorf("%w: root produced no partition", ErrPartitioner)
	}
	global := make([]int, nVertex)
	for i, p := range part {
		if p < 0 || int(p) >= nColors {
			return nil, fmt.Errorf("%w: vertex %d assigned to part %d", ErrPartitioner, i, p)
		}
		global[i] = int(p)
	}
	if nColors != c.Size() {
		cm := colormap.New(c.Size(), nColors, nVertex)
		seed := make([]int, nVertex)
		for i := range seed {
			seed[i] = cm.IndexColor(i)
		}
		global = Relabel(global, seed, nColors)
	}
	if c.Rank() == 0 {
		c.Log.Info().Int32("objval", objval).Int("parts", nColors).
			Str("objective", m.Objective).Msg("METIS partition")
	}
	colors := make([]int, d.RowCount())
	for i := range colors {
		colors[i] = global[d.GlobalID(i)]
	}
	return colors, nil
}

func (m *Metis) partition(g *dcrs.DCRS, nColors int) (part []int32, objval int32, err error) {
	nVertex := g.RowCount()
	if nColors == 1 {
		return make([]int32, nVertex), 0, nil
	}
	if m.VertexWeights != nil && len(m.VertexWeights) != nVertex {
		return nil, 0, fmt.Errorf("%w: %d vertex weights for %d vertices",
			ErrPartitioner, len(m.VertexWeights), nVertex)
	}
	xadj, adjncy := metisGraph(g)

	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, 0, fmt.Errorf("%w: failed to set METIS options: %v", ErrPartitioner, err)
	}
	if m.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{m.ImbalanceFactor}

	// Nil target weights give every part 1/nColors of the total
	part, objval, err = metis.PartGraphKwayWeighted(
		xadj, adjncy, m.VertexWeights, nil,
		int32(nColors), nil, ubvec, opts,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: METIS partitioning failed: %v", ErrPartitioner, err)
	}
	return
}

// metisGraph converts a single-rank graph to METIS format
func metisGraph(g *dcrs.DCRS) (xadj, adjncy []int32) {
	xadj = make([]int32, len(g.Offsets))
	for i, o := range g.Offsets {
		xadj[i] = int32(o)
	}
	adjncy = make([]int32, len(g.Indices))
	for i, j := range g.Indices {
		adjncy[i] = int32(j)
	}
	return
}

// Relabel renames the parts of colors so that each part takes the seed label
// it overlaps most, greedily from the largest overlap down. Parts left
// without a label take the unused labels in increasing order.
func Relabel(colors, seed []int, nColors int) []int {
	type match struct{ part, label, count int }
	overlap := make(map[[2]int]int)
	for i, p := range colors {
		overlap[[2]int{p, seed[i]}]++
	}
	matches := make([]match, 0, len(overlap))
	for k, n := range overlap {
		matches = append(matches, match{k[0], k[1], n})
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if a.part != b.part {
			return a.part < b.part
		}
		return a.label < b.label
	})
	var (
		rename    = make([]int, nColors)
		labelUsed = make([]bool, nColors)
	)
	for i := range rename {
		rename[i] = -1
	}
	for _, mt := range matches {
		if rename[mt.part] < 0 && !labelUsed[mt.label] {
			rename[mt.part] = mt.label
			labelUsed[mt.label] = true
		}
	}
	next := 0
	for p := range rename {
		if rename[p] >= 0 {
			continue
		}
		for labelUsed[next] {
			next++
		}
		rename[p] = next
		labelUsed[next] = true
	}
	out := make([]int, len(colors))
	for i, p := range colors {
		out[i] = rename[p]
	}
	return out
}
