// Package dcrs builds the distributed compressed-row-storage adjacency graph
// of a mesh that partitioners consume. Each rank holds the rows of a range of
// global entities; column indices are global ids.
package dcrs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/utils"
)

var ErrPrecondition = errors.New("precondition violated")

// Policy decides which ranks absorb the remainder of a block distribution.
type Policy uint8

const (
	// TrailingRemainder gives the last total%size ranks one extra entity.
	TrailingRemainder Policy = iota
	// LeadingRemainder gives the first total%size ranks one extra entity,
	// matching the color map.
	LeadingRemainder
)

func (p Policy) String() string {
	switch p {
	case TrailingRemainder:
		return "trailing"
	case LeadingRemainder:
		return "leading"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// ParsePolicy accepts the names printed by Policy.String.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "trailing":
		return TrailingRemainder, nil
	case "leading":
		return LeadingRemainder, nil
	default:
		return 0, fmt.Errorf("%w: unknown distribution policy %q", ErrPrecondition, name)
	}
}

// NaiveDistribution splits total entities over size ranks. Rank r gets
// total/size entities plus one when r >= size - total%size. The result is
// the size+1 prefix sum of the per-rank counts.
func NaiveDistribution(total, size int) []int {
	var (
		quot = total / size
		rem  = total % size
	)
	counts := make([]int, size)
	for r := range counts {
		counts[r] = quot
		if r >= size-rem {
			counts[r]++
		}
	}
	return utils.PrefixSum(counts)
}

func Distribution(policy Policy, total, size int) []int {
	if policy == LeadingRemainder {
		return utils.NewPartitionMap(size, total).Offsets()
	}
	return NaiveDistribution(total, size)
}

type Config struct {
	FromDim int // Dimension of the graph vertices, cells usually
	ToDim   int // Dimension of the connecting sub-entities, vertices usually
	ThruDim int // Entities sharing more than ThruDim sub-entities are adjacent
	Policy  Policy
}

// DCRS is the local slice of a distributed CSR graph.
type DCRS struct {
	Rank         int
	Distribution []int // size+1 prefix sums of rows per rank
	Offsets      []int // RowCount()+1 offsets into Indices
	Indices      []int // Global ids of neighbours
	// IDs holds the global id of each row. Nil means the rows are the
	// contiguous range starting at Distribution[Rank].
	IDs []int
}

func (d *DCRS) RowCount() int { return len(d.Offsets) - 1 }

func (d *DCRS) Row(i int) []int { return d.Indices[d.Offsets[i]:d.Offsets[i+1]] }

func (d *DCRS) GlobalID(i int) int {
	if d.IDs != nil {
		return d.IDs[i]
	}
	return d.Distribution[d.Rank] + i
}

func (d *DCRS) Total() int { return d.Distribution[len(d.Distribution)-1] }

// Validate checks the structural invariants of the local rows.
func (d *DCRS) Validate() error {
	if d.Rank < 0 || d.Rank+1 >= len(d.Distribution) {
		return fmt.Errorf("rank %d outside distribution of %d ranks", d.Rank, len(d.Distribution)-1)
	}
	if len(d.Offsets) == 0 || d.Offsets[0] != 0 {
		return fmt.Errorf("offsets must start at 0")
	}
	if n := d.Distribution[d.Rank+1] - d.Distribution[d.Rank]; n != d.RowCount() {
		return fmt.Errorf("rank %d: distribution holds %d rows, offsets %d", d.Rank, n, d.RowCount())
	}
	if d.IDs != nil && len(d.IDs) != d.RowCount() {
		return fmt.Errorf("%d ids for %d rows", len(d.IDs), d.RowCount())
	}
	for i := 0; i < d.RowCount(); i++ {
		if d.Offsets[i+1] < d.Offsets[i] {
			return fmt.Errorf("offsets decrease at row %d", i)
		}
	}
	if d.Offsets[d.RowCount()] != len(d.Indices) {
		return fmt.Errorf("last offset %d, %d indices", d.Offsets[d.RowCount()], len(d.Indices))
	}
	for _, j := range d.Indices {
		if j < 0 || j >= d.Total() {
			return fmt.Errorf("index %d outside [0,%d)", j, d.Total())
		}
	}
	return nil
}

// Build computes the rows owned by rank out of size. Two FromDim entities are
// adjacent when they share more than ThruDim ToDim entities. Every rank needs
// the whole definition.
func Build(def mesh.Definition, cfg Config, rank, size int) (*DCRS, error) {
	D := def.Dimension()
	switch {
	case size < 1 || rank < 0 || rank >= size:
		return nil, fmt.Errorf("%w: rank %d of %d", ErrPrecondition, rank, size)
	case cfg.FromDim < 0 || cfg.FromDim > D || cfg.ToDim < 0 || cfg.ToDim > D:
		return nil, fmt.Errorf("%w: dimensions %d->%d outside mesh dimension %d",
			ErrPrecondition, cfg.FromDim, cfg.ToDim, D)
	case cfg.FromDim == cfg.ToDim:
		return nil, fmt.Errorf("%w: from and to dimension are both %d", ErrPrecondition, cfg.FromDim)
	case cfg.ThruDim < 0:
		return nil, fmt.Errorf("%w: negative thru dimension %d", ErrPrecondition, cfg.ThruDim)
	}
	var (
		nFrom = def.NumEntities(cfg.FromDim)
		nTo   = def.NumEntities(cfg.ToDim)
		toMap = make([][]int, nTo) // ToDim entity -> incident FromDim entities
	)
	for e := 0; e < nFrom; e++ {
		for _, s := range def.Entities(cfg.FromDim, cfg.ToDim, e) {
			if s < 0 || s >= nTo {
				return nil, fmt.Errorf("%w: entity %d references sub-entity %d outside [0,%d)",
					ErrPrecondition, e, s, nTo)
			}
			toMap[s] = append(toMap[s], e)
		}
	}
	d := &DCRS{
		Rank:         rank,
		Distribution: Distribution(cfg.Policy, nFrom, size),
	}
	var (
		lo, hi = d.Distribution[rank], d.Distribution[rank+1]
		counts = make(map[int]int)
	)
	d.Offsets = make([]int, 1, hi-lo+1)
	for e := lo; e < hi; e++ {
		clear(counts)
		for _, s := range def.Entities(cfg.FromDim, cfg.ToDim, e) {
			for _, other := range toMap[s] {
				if other != e {
					counts[other]++
				}
			}
		}
		start := len(d.Indices)
		for other, n := range counts {
			if n > cfg.ThruDim {
				d.Indices = append(d.Indices, other)
			}
		}
		sort.Ints(d.Indices[start:])
		d.Offsets = append(d.Offsets, len(d.Indices))
	}
	return d, nil
}

// BuildDistributed builds this rank's rows after checking that every rank
// sees the same mesh size.
func BuildDistributed(c *comm.Comm, def mesh.Definition, cfg Config) (*DCRS, error) {
	n := def.NumEntities(cfg.FromDim)
	lo, err := comm.Allreduce(c, n, comm.Min)
	if err != nil {
		return nil, err
	}
	hi, err := comm.Allreduce(c, n, comm.Max)
	if err != nil {
		return nil, err
	}
	if lo != hi {
		return nil, fmt.Errorf("%w: ranks disagree on entity count, %d to %d", ErrPrecondition, lo, hi)
	}
	d, err := Build(def, cfg, c.Rank(), c.Size())
	if err != nil {
		return nil, err
	}
	c.Log.Debug().Int("rows", d.RowCount()).Int("nnz", len(d.Indices)).
		Msg("built distributed graph")
	return d, nil
}

// AdjacencyMatrix returns the local rows as a RowCount() x Total() sparse
// matrix with unit weights.
func (d *DCRS) AdjacencyMatrix() *sparse.CSR {
	var (
		ia   = append([]int{}, d.Offsets...)
		ja   = append([]int{}, d.Indices...)
		data = make([]float64, len(ja))
	)
	for i := range data {
		data[i] = 1
	}
	return sparse.NewCSR(d.RowCount(), d.Total(), ia, ja, data)
}

// IsSymmetric reports whether the graph is symmetric. It only makes sense on a
// graph holding every row, as returned by Gather.
func (d *DCRS) IsSymmetric() bool {
	if d.RowCount() != d.Total() {
		return false
	}
	a := d.AdjacencyMatrix()
	return mat.Equal(a, a.T())
}

// Gather assembles the whole graph on every rank, rows in global id order.
// The result is a single-rank DCRS.
func Gather(c *comm.Comm, d *DCRS) (*DCRS, error) {
	packed := make([]int, 0, 2*d.RowCount()+len(d.Indices))
	for i := 0; i < d.RowCount(); i++ {
		row := d.Row(i)
		packed = append(packed, d.GlobalID(i), len(row))
		packed = append(packed, row...)
	}
	all, err := comm.Allgatherv(c, packed)
	if err != nil {
		return nil, err
	}
	rows := make([][]int, d.Total())
	seen := make([]bool, d.Total())
	for r, buf := range all {
		for p := 0; p < len(buf); {
			gid, n := buf[p], buf[p+1]
			if gid < 0 || gid >= len(rows) || seen[gid] {
				return nil, fmt.Errorf("gather: rank %d sent invalid or duplicate row %d", r, gid)
			}
			seen[gid] = true
			rows[gid] = buf[p+2 : p+2+n]
			p += 2 + n
		}
	}
	return fromRows(0, []int{0, len(rows)}, nil, rows), nil
}

// Redistribute moves local row i to rank owner[i]. The returned graph holds
// the received rows sorted by global id.
func Redistribute(c *comm.Comm, d *DCRS, owner []int) (*DCRS, error) {
	if len(owner) != d.RowCount() {
		return nil, fmt.Errorf("%w: %d owners for %d rows", ErrPrecondition, len(owner), d.RowCount())
	}
	send := make([][]int, c.Size())
	for i, r := range owner {
		if r < 0 || r >= c.Size() {
			return nil, fmt.Errorf("%w: row %d assigned to rank %d", ErrPrecondition, i, r)
		}
		row := d.Row(i)
		send[r] = append(send[r], d.GlobalID(i), len(row))
		send[r] = append(send[r], row...)
	}
	recv, err := comm.Alltoallv(c, send)
	if err != nil {
		return nil, fmt.Errorf("redistribute: %w", err)
	}
	byID := make(map[int][]int)
	for _, buf := range recv {
		for p := 0; p < len(buf); {
			gid, n := buf[p], buf[p+1]
			byID[gid] = buf[p+2 : p+2+n]
			p += 2 + n
		}
	}
	ids := make([]int, 0, len(byID))
	for gid := range byID {
		ids = append(ids, gid)
	}
	sort.Ints(ids)
	counts, err := comm.Allgather(c, len(ids))
	if err != nil {
		return nil, fmt.Errorf("redistribute: %w", err)
	}
	dist := utils.PrefixSum(counts)
	if dist[len(dist)-1] != d.Total() {
		return nil, fmt.Errorf("%w: redistribution holds %d rows, graph has %d",
			ErrPrecondition, dist[len(dist)-1], d.Total())
	}
	rows := make([][]int, len(ids))
	for i, gid := range ids {
		rows[i] = byID[gid]
	}
	return fromRows(c.Rank(), dist, ids, rows), nil
}

func fromRows(rank int, dist, ids []int, rows [][]int) *DCRS {
	d := &DCRS{
		Rank:         rank,
		Distribution: dist,
		Offsets:      make([]int, 1, len(rows)+1),
		IDs:          ids,
	}
	for _, row := range rows {
		d.Indices = append(d.Indices, row...)
		d.Offsets = append(d.Offsets, len(d.Indices))
	}
	return d
}
