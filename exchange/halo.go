package exchange

import (
	"fmt"
	"strings"

	"github.com/notargets/gohalo/comm"
)

type Backend uint8

const (
	MPI    Backend = iota // One-sided windows
	Legion                // Phase barriers and direct region copies
	HPX                   // Two-sided messages packed and unpacked by futures
)

func (b Backend) String() string {
	switch b {
	case MPI:
		return "mpi"
	case Legion:
		return "legion"
	case HPX:
		return "hpx"
	default:
		return fmt.Sprintf("Backend(%d)", uint8(b))
	}
}

func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "", "mpi":
		return MPI, nil
	case "legion":
		return Legion, nil
	case "hpx":
		return HPX, nil
	}
	return 0, fmt.Errorf("unknown exchange backend %q, want mpi, legion or hpx", s)
}

// HaloExchange moves shared rows into the ghost rows of the ranks that use
// them. Register, Exchange and Broadcast are collective over the field's
// communicator and must be called by every rank in the same order.
type HaloExchange interface {
	// Register prepares the transport for f. Fields are registered once,
	// before their first exchange.
	Register(f *Field) error
	// Exchange refreshes the ghost rows of f from their owners.
	Exchange(f *Field) error
	// Broadcast copies a global field from rank 0 to every rank.
	Broadcast(f *Field) error
	Backend() Backend
}

// NewHaloExchange returns the backend implementation over plans, keyed by
// index space.
func NewHaloExchange(backend Backend, c *comm.Comm, plans map[int]*Plan) (HaloExchange, error) {
	base := engine{c: c, plans: plans}
	switch backend {
	case MPI:
		return &MpiExchange{engine: base, windows: make(map[FieldID][]*comm.Window[byte])}, nil
	case Legion:
		return &LegionExchange{engine: base, regions: make(map[FieldID]*legionRegion)}, nil
	case HPX:
		return &HpxExchange{engine: base}, nil
	}
	return nil, fmt.Errorf("unknown exchange backend %v", backend)
}

// layer is one transfer round over a field: window memory holding the
// shared rows stride bytes apart and the ghost rows they land in.
type layer struct {
	stride int
	shared []byte
	ghost  []byte
	// live returns the bytes to move for ghost row k. Nil moves the full
	// stride.
	live func(k int) int
	// liveShared is the sender side counterpart of live for shared row s.
	liveShared func(s int) int
}

func (l layer) ghostLen(k int) int {
	if l.live == nil {
		return l.stride
	}
	return l.live(k)
}

func (l layer) sharedLen(s int) int {
	if l.liveShared == nil {
		return l.stride
	}
	return l.liveShared(s)
}

func (l layer) ghostRow(k int) []byte {
	return l.ghost[k*l.stride : k*l.stride+l.ghostLen(k)]
}

func (l layer) sharedRow(s int) []byte {
	return l.shared[s*l.stride : s*l.stride+l.sharedLen(s)]
}

// layers returns the transfer rounds of f in order. Row contents of sparse
// and ragged fields are sized by the row sizes, so the second round reads
// RowSizes after the first has filled the ghost sizes.
func layers(f *Field) ([]layer, error) {
	var (
		info = f.info
		e, p = info.Exclusive, info.Primary()
	)
	switch f.Kind {
	case Dense:
		return []layer{{
			stride: f.RowStride(),
			shared: f.SharedData(),
			ghost:  f.GhostData(),
		}}, nil
	case Sparse, Ragged:
		sizes := layer{
			stride: 4,
			shared: bytesOf(f.RowSizes[e:p]),
			ghost:  bytesOf(f.RowSizes[p:]),
		}
		rows := layer{
			stride:     f.RowStride(),
			shared:     f.SharedData(),
			ghost:      f.GhostData(),
			live:       func(k int) int { return int(f.RowSizes[p+k]) * f.ElemSize },
			liveShared: func(s int) int { return int(f.RowSizes[e+s]) * f.ElemSize },
		}
		return []layer{sizes, rows}, nil
	case Global:
		return nil, fmt.Errorf("%w: global field %d is broadcast, not exchanged", ErrField, f.ID)
	}
	return nil, fmt.Errorf("%w: field %d of kind %v", ErrField, f.ID, f.Kind)
}

// checkSizes rejects ghost row sizes past MaxEntries, which would make the
// second round read outside the owner's row.
func checkSizes(f *Field) error {
	for k, n := range f.RowSizes[f.info.Primary():] {
		if int(n) > f.MaxEntries {
			return fmt.Errorf("%w: field %d ghost row %d holds %d entries, max %d",
				ErrField, f.ID, k, n, f.MaxEntries)
		}
	}
	return nil
}

// engine holds what every backend shares: the communicator, the plans and
// the field-kind dispatch.
type engine struct {
	c     *comm.Comm
	plans map[int]*Plan
}

func (en *engine) plan(f *Field) (*Plan, error) {
	p, ok := en.plans[f.IndexSpace]
	if !ok {
		return nil, fmt.Errorf("%w: no plan for index space %d of field %d", ErrField, f.IndexSpace, f.ID)
	}
	if p.Info.Total() != f.info.Total() || p.Info.Exclusive != f.info.Exclusive {
		return nil, fmt.Errorf("%w: field %d sized for %d entities, index space %d has %d",
			ErrField, f.ID, f.info.Total(), f.IndexSpace, p.Info.Total())
	}
	if len(f.Data) != f.RowStride()*f.info.Total() {
		return nil, fmt.Errorf("%w: field %d holds %d bytes, want %d",
			ErrField, f.ID, len(f.Data), f.RowStride()*f.info.Total())
	}
	return p, nil
}

// visit runs transfer over each round of f.
func (en *engine) visit(f *Field, transfer func(p *Plan, round int, l layer) error) error {
	p, err := en.plan(f)
	if err != nil {
		return err
	}
	ls, err := layers(f)
	if err != nil {
		return err
	}
	for round, l := range ls {
		if err := transfer(p, round, l); err != nil {
			return fmt.Errorf("field %d round %d: %w", f.ID, round, err)
		}
		if f.IsRowed() && round == 0 {
			if err := checkSizes(f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Broadcast is the same for every backend.
func (en *engine) Broadcast(f *Field) error {
	if f.Kind != Global {
		return fmt.Errorf("%w: broadcast of %s field %d", ErrField, f.Kind, f.ID)
	}
	data, err := comm.Bcast(en.c, 0, f.Data)
	if err != nil {
		return fmt.Errorf("broadcast field %d: %w", f.ID, err)
	}
	if len(data) != len(f.Data) {
		return fmt.Errorf("%w: field %d: broadcast of %d bytes into %d", ErrField, f.ID, len(data), len(f.Data))
	}
	copy(f.Data, data)
	return nil
}
