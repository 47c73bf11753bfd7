// Package coloring runs the full coloring pipeline of a mesh and keeps the
// results of one rank in a Context.
package coloring

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/gohalo/coloring/ownership"
	"github.com/notargets/gohalo/coloring/partition"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/exchange"
)

// Index spaces produced by the Colorer.
const (
	Cells = iota
	Vertices
)

var ErrRegistry = errors.New("field registry")

// FieldRecord is what the storage layer tells the exchange engine about a
// field.
type FieldRecord struct {
	ID         exchange.FieldID
	Name       string
	IndexSpace int
	ElemSize   int
	Kind       exchange.FieldKind
	MaxEntries int // Sparse and ragged only
}

type space struct {
	coloring   *ownership.IndexColoring
	info       ownership.ColoringInfo
	all        map[int]ownership.ColoringInfo
	maxRequest int // Largest ghost count over all ranks
	plan       *exchange.Plan
}

// Context holds the colorings, coloring summaries and registered fields of
// one rank. It belongs to the rank goroutine that built it.
type Context struct {
	Rank  int
	Size  int
	Stats *partition.Stats // Cell partition metrics, when requested

	spaces map[int]*space
	fields map[exchange.FieldID]FieldRecord
}

func NewContext(rank, size int) *Context {
	return &Context{
		Rank:   rank,
		Size:   size,
		spaces: make(map[int]*space),
		fields: make(map[exchange.FieldID]FieldRecord),
	}
}

// AddColoring stores the coloring of index space id with the summaries of
// every rank.
func (ctx *Context) AddColoring(id int, ic *ownership.IndexColoring, all map[int]ownership.ColoringInfo) {
	ctx.spaces[id] = &space{coloring: ic, info: ic.Info(), all: all}
}

// MaxRequestSize returns the largest number of ghosts any rank requests in
// index space id.
func (ctx *Context) MaxRequestSize(id int) int {
	if s, ok := ctx.spaces[id]; ok {
		return s.maxRequest
	}
	return 0
}

// Row returns the storage row of gid in the fields of index space id, where
// exclusive rows come first, then shared, then ghost.
func (ctx *Context) Row(id, gid int) (kind ownership.Kind, row int, ok bool) {
	s, found := ctx.spaces[id]
	if !found {
		return 0, -1, false
	}
	_, kind, row, ok = s.coloring.Lookup(gid)
	switch {
	case !ok:
		return 0, -1, false
	case kind == ownership.Shared:
		row += s.info.Exclusive
	case kind == ownership.Ghost:
		row += s.info.Primary()
	}
	return kind, row, true
}

func (ctx *Context) IndexColoring(id int) (*ownership.IndexColoring, bool) {
	s, ok := ctx.spaces[id]
	if !ok {
		return nil, false
	}
	return s.coloring, true
}

func (ctx *Context) ColoringInfo(id int) (ownership.ColoringInfo, bool) {
	s, ok := ctx.spaces[id]
	if !ok {
		return ownership.ColoringInfo{}, false
	}
	return s.info, true
}

// AllColoringInfo returns the summary of index space id on every rank, keyed
// by rank.
func (ctx *Context) AllColoringInfo(id int) map[int]ownership.ColoringInfo {
	if s, ok := ctx.spaces[id]; ok {
		return s.all
	}
	return nil
}

// IndexSpaces returns the colored index spaces in increasing order.
func (ctx *Context) IndexSpaces() []int {
	ids := make([]int, 0, len(ctx.spaces))
	for id := range ctx.spaces {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RegisterField records rec. Global fields belong to no index space.
func (ctx *Context) RegisterField(rec FieldRecord) error {
	if _, ok := ctx.fields[rec.ID]; ok {
		return fmt.Errorf("%w: field %d registered twice", ErrRegistry, rec.ID)
	}
	if rec.ElemSize < 1 {
		return fmt.Errorf("%w: field %d has element size %d", ErrRegistry, rec.ID, rec.ElemSize)
	}
	switch rec.Kind {
	case exchange.Global:
	case exchange.Sparse, exchange.Ragged:
		if rec.MaxEntries < 1 {
			return fmt.Errorf("%w: %s field %d needs a positive entry count", ErrRegistry, rec.Kind, rec.ID)
		}
		fallthrough
	default:
		if _, ok := ctx.spaces[rec.IndexSpace]; !ok {
			return fmt.Errorf("%w: field %d on uncolored index space %d", ErrRegistry, rec.ID, rec.IndexSpace)
		}
	}
	ctx.fields[rec.ID] = rec
	return nil
}

func (ctx *Context) Field(id exchange.FieldID) (FieldRecord, bool) {
	rec, ok := ctx.fields[id]
	return rec, ok
}

// NewField allocates the storage of a registered field sized for this rank.
// Global fields hold n elements.
func (ctx *Context) NewField(id exchange.FieldID, n int) (*exchange.Field, error) {
	rec, ok := ctx.fields[id]
	if !ok {
		return nil, fmt.Errorf("%w: field %d not registered", ErrRegistry, id)
	}
	var f *exchange.Field
	switch rec.Kind {
	case exchange.Global:
		f = exchange.NewGlobal(rec.ID, rec.ElemSize, n)
	case exchange.Dense:
		f = exchange.NewDense(rec.ID, rec.IndexSpace, rec.ElemSize, ctx.spaces[rec.IndexSpace].info)
	case exchange.Sparse:
		f = exchange.NewSparse(rec.ID, rec.IndexSpace, rec.ElemSize, rec.MaxEntries, ctx.spaces[rec.IndexSpace].info)
	case exchange.Ragged:
		f = exchange.NewRagged(rec.ID, rec.IndexSpace, rec.ElemSize, rec.MaxEntries, ctx.spaces[rec.IndexSpace].info)
	default:
		return nil, fmt.Errorf("%w: field %d of kind %v", ErrRegistry, id, rec.Kind)
	}
	f.Name = rec.Name
	return f, nil
}

// Plans returns the exchange plan of every colored index space, building
// them on first use. It is collective.
func (ctx *Context) Plans(c *comm.Comm) (map[int]*exchange.Plan, error) {
	plans := make(map[int]*exchange.Plan, len(ctx.spaces))
	for _, id := range ctx.IndexSpaces() {
		s := ctx.spaces[id]
		if s.plan == nil {
			p, err := exchange.NewPlan(c, id, s.coloring)
			if err != nil {
				return nil, err
			}
			s.plan = p
		}
		plans[id] = s.plan
	}
	return plans, nil
}

// Lifecycle wires a halo exchange of the given backend over every index
// space and registers fields with it. It is collective.
func (ctx *Context) Lifecycle(c *comm.Comm, backend exchange.Backend, fields ...*exchange.Field) (*exchange.Lifecycle, error) {
	plans, err := ctx.Plans(c)
	if err != nil {
		return nil, err
	}
	halo, err := exchange.NewHaloExchange(backend, c, plans)
	if err != nil {
		return nil, err
	}
	l := exchange.NewLifecycle(c, halo)
	for _, f := range fields {
		if _, ok := ctx.fields[f.ID]; !ok {
			return nil, fmt.Errorf("%w: field %d not registered", ErrRegistry, f.ID)
		}
		if err := l.Register(f); err != nil {
			return nil, err
		}
	}
	return l, nil
}
