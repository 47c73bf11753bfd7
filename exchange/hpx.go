package exchange

import (
	"fmt"

	"github.com/notargets/gohalo/comm"
)

const haloTag = 1 << 20

// HpxExchange sends packed shared rows to every user as two-sided messages.
// Packing and unpacking of each peer run as futures.
type HpxExchange struct {
	engine
	registered map[FieldID]bool
}

func (x *HpxExchange) Backend() Backend { return HPX }

func (x *HpxExchange) Register(f *Field) error {
	if x.registered == nil {
		x.registered = make(map[FieldID]bool)
	}
	if x.registered[f.ID] {
		return fmt.Errorf("%w: field %d registered twice", ErrField, f.ID)
	}
	if f.Kind != Global {
		if _, err := x.plan(f); err != nil {
			return err
		}
	}
	x.registered[f.ID] = true
	return nil
}

func (x *HpxExchange) Exchange(f *Field) error {
	if !x.registered[f.ID] {
		return fmt.Errorf("%w: field %d not registered", ErrField, f.ID)
	}
	return x.visit(f, func(p *Plan, round int, l layer) error {
		tag := haloTag + 2*int(f.ID) + round

		packs := make([]*comm.Future[[]byte], len(p.Send))
		for i, peer := range p.Send {
			peer := peer
			packs[i] = comm.Async(func() ([]byte, error) {
				var buf []byte
				for _, s := range peer.Local {
					buf = append(buf, l.sharedRow(s)...)
				}
				return buf, nil
			})
		}
		bufs, err := comm.WhenAll(packs...)
		if err != nil {
			return err
		}

		var (
			reqs = make([]*comm.Request, 0, len(p.Send)+len(p.Recv))
			recv = make([][]byte, len(p.Recv))
		)
		for i, peer := range p.Recv {
			reqs = append(reqs, comm.Irecv(x.c, peer.Rank, tag, &recv[i]))
		}
		for i, peer := range p.Send {
			reqs = append(reqs, comm.Isend(x.c, peer.Rank, tag, bufs[i]))
		}
		if err := comm.Waitall(reqs...); err != nil {
			return err
		}

		unpacks := make([]*comm.Future[int], len(p.Recv))
		for i, peer := range p.Recv {
			peer, buf := peer, recv[i]
			unpacks[i] = comm.Async(func() (int, error) {
				pos := 0
				for _, k := range peer.Local {
					row := l.ghostRow(k)
					if pos+len(row) > len(buf) {
						return pos, fmt.Errorf("%w: rank %d sent %d bytes, ghost row %d needs %d more",
							comm.ErrComm, peer.Rank, len(buf), k, pos+len(row)-len(buf))
					}
					pos += copy(row, buf[pos:pos+len(row)])
				}
				if pos != len(buf) {
					return pos, fmt.Errorf("%w: rank %d sent %d bytes, %d used", comm.ErrComm, peer.Rank, len(buf), pos)
				}
				return pos, nil
			})
		}
		_, err = comm.WhenAll(unpacks...)
		return err
	})
}
