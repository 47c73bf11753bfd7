package coloring

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/notargets/gohalo/coloring/aggregate"
	"github.com/notargets/gohalo/coloring/colormap"
	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/coloring/ownership"
	"github.com/notargets/gohalo/coloring/partition"
	"github.com/notargets/gohalo/comm"
	"github.com/notargets/gohalo/mesh"
	"github.com/notargets/gohalo/utils"
)

// Colorer colors the cells of a mesh and, optionally, the vertices they
// touch.
type Colorer struct {
	Partitioner partition.Partitioner
	Colors      int // Zero means one color per rank
	Policy      dcrs.Policy
	// ThruDim is the dimension of the entities two cells must share to be
	// neighbours, -1 for cell dimension - 1
	ThruDim  int
	Vertices bool
	Stats    bool
}

func NewColorer(p partition.Partitioner) *Colorer {
	return &Colorer{Partitioner: p, ThruDim: -1, Vertices: true}
}

// Color runs the pipeline: graph, partition, redistribution, classification,
// remap and aggregation. It is collective. Invalid inputs are returned as
// errors, everything past them is fatal.
func (cl *Colorer) Color(c *comm.Comm, def mesh.Definition) (*Context, error) {
	var (
		D       = def.Dimension()
		thru    = cl.ThruDim
		nColors = cl.Colors
		logger  = c.Log.With().Str("space", "cells").Logger()
	)
	if thru < 0 {
		thru = D - 1
	}
	if nColors == 0 {
		nColors = c.Size()
	}
	if nColors < c.Size() {
		return nil, fmt.Errorf("%w: %d colors for %d ranks", dcrs.ErrPrecondition, nColors, c.Size())
	}
	if cl.Partitioner == nil {
		return nil, fmt.Errorf("%w: no partitioner", partition.ErrPartitioner)
	}

	d, err := dcrs.BuildDistributed(c, def, dcrs.Config{FromDim: D, ToDim: 0, ThruDim: thru, Policy: cl.Policy})
	if err != nil {
		return nil, err
	}
	colors, err := cl.Partitioner.Color(c, d, nColors)
	fatal(logger, err, "partition")
	ctx := NewContext(c.Rank(), c.Size())
	if cl.Stats {
		ctx.Stats, err = partition.ComputeStats(c, d, colors, nColors)
		fatal(logger, err, "stats")
		if c.Rank() == 0 {
			ctx.Stats.Log(logger)
		}
	}
	perColor, err := partition.Distribute(c, d, nColors, colors)
	fatal(logger, err, "distribute")

	cm := colormap.New(c.Size(), nColors, d.Total())
	owner := make([]int, len(colors))
	for i, color := range colors {
		owner[i] = cm.Process(color)
	}
	rd, err := dcrs.Redistribute(c, d, owner)
	fatal(logger, err, "redistribute")
	var mine []int
	for _, ids := range perColor {
		mine = utils.SetUnion(mine, ids)
	}
	if len(mine) != rd.RowCount() {
		fatal(logger, fmt.Errorf("%w: %d rows received for %d distributed ids",
			ownership.ErrInconsistent, rd.RowCount(), len(mine)), "redistribute")
	}

	own, err := ownership.GatherOwnership(c, rd.IDs)
	fatal(logger, err, "ownership")
	cells, info, err := ownership.Classify(c.Rank(), rd, own)
	fatal(logger, err, "classify")
	fatal(logger, ownership.Remap(c, cells), "remap")
	all, err := aggregate.Gather(c, info)
	fatal(logger, err, "aggregate")
	ctx.AddColoring(Cells, cells, all)
	fatal(logger, ctx.summarize(c, Cells, def.NumEntities(D)), "aggregate")
	logger.Debug().Int("exclusive", info.Exclusive).Int("shared", info.Shared).
		Int("ghost", info.Ghost).Ints("users", info.SharedUsers).Msg("colored")

	if !cl.Vertices {
		return ctx, nil
	}
	logger = c.Log.With().Str("space", "vertices").Logger()
	verts, vinfo, err := ownership.ColorClosure(c, def, cells, D, 0)
	if errors.Is(err, dcrs.ErrPrecondition) {
		return nil, err
	}
	fatal(logger, err, "closure")
	fatal(logger, ownership.Remap(c, verts), "remap")
	vall, err := aggregate.Gather(c, vinfo)
	fatal(logger, err, "aggregate")
	ctx.AddColoring(Vertices, verts, vall)
	fatal(logger, ctx.summarize(c, Vertices, def.NumEntities(0)), "aggregate")
	logger.Debug().Int("exclusive", vinfo.Exclusive).Int("shared", vinfo.Shared).
		Int("ghost", vinfo.Ghost).Msg("colored")
	return ctx, nil
}

// summarize checks that the primary entities of space id over all ranks add
// up to total and records the largest ghost request. It is collective.
func (ctx *Context) summarize(c *comm.Comm, id, total int) error {
	s := ctx.spaces[id]
	sizes, err := aggregate.Sizes(c, s.info.Primary())
	if err != nil {
		return err
	}
	var owned int
	for _, n := range sizes {
		owned += n
	}
	if owned != total {
		return fmt.Errorf("%w: space %d: ranks own %d of %d entities %v",
			ownership.ErrInconsistent, id, owned, total, sizes)
	}
	s.maxRequest, err = aggregate.MaxRequestSize(c, s.info.Ghost)
	return err
}

func fatal(logger zerolog.Logger, err error, op string) {
	if err != nil {
		utils.Fatal(logger, err, op)
	}
}
