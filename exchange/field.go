// Package exchange keeps the ghost copies of field data coherent with their
// shared owners. Three transports are provided: one-sided windows, phase
// barriers with direct region copies, and two-sided futures.
package exchange

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/notargets/gohalo/coloring/ownership"
)

var ErrField = errors.New("invalid field")

type FieldID int

type FieldKind uint8

const (
	Dense  FieldKind = iota // One element per entity
	Global                  // One value set for the whole index space, replicated
	Sparse                  // Up to MaxEntries elements per entity
	Ragged                  // Like Sparse
)

func (k FieldKind) String() string {
	switch k {
	case Dense:
		return "dense"
	case Global:
		return "global"
	case Sparse:
		return "sparse"
	case Ragged:
		return "ragged"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

// Field is the storage of one field on one rank. Entity rows are laid out
// exclusive | shared | ghost, each RowStride() bytes.
type Field struct {
	ID         FieldID
	Name       string
	IndexSpace int
	Kind       FieldKind
	ElemSize   int
	Data       []byte
	MaxEntries int      // Sparse and ragged only
	RowSizes   []uint32 // Live entries per entity, sparse and ragged only

	info ownership.ColoringInfo
}

func NewDense(id FieldID, space, elemSize int, info ownership.ColoringInfo) *Field {
	return newField(id, space, Dense, elemSize, 1, info)
}

// NewGlobal holds n elements that are the same on every rank.
func NewGlobal(id FieldID, elemSize, n int) *Field {
	return &Field{
		ID:         id,
		IndexSpace: -1,
		Kind:       Global,
		ElemSize:   elemSize,
		MaxEntries: 1,
		Data:       make([]byte, elemSize*n),
	}
}

func NewSparse(id FieldID, space, elemSize, maxEntries int, info ownership.ColoringInfo) *Field {
	return newField(id, space, Sparse, elemSize, maxEntries, info)
}

func NewRagged(id FieldID, space, elemSize, maxEntries int, info ownership.ColoringInfo) *Field {
	return newField(id, space, Ragged, elemSize, maxEntries, info)
}

func newField(id FieldID, space int, kind FieldKind, elemSize, maxEntries int, info ownership.ColoringInfo) *Field {
	f := &Field{
		ID:         id,
		IndexSpace: space,
		Kind:       kind,
		ElemSize:   elemSize,
		MaxEntries: maxEntries,
		info:       info,
	}
	f.Data = make([]byte, f.RowStride()*info.Total())
	if f.IsRowed() {
		f.RowSizes = make([]uint32, info.Total())
	}
	return f
}

// IsRowed reports whether the field stores a variable number of entries per
// entity.
func (f *Field) IsRowed() bool { return f.Kind == Sparse || f.Kind == Ragged }

func (f *Field) RowStride() int { return f.ElemSize * f.MaxEntries }

func (f *Field) Info() ownership.ColoringInfo { return f.info }

// Row returns the storage of local entity i.
func (f *Field) Row(i int) []byte {
	s := f.RowStride()
	return f.Data[i*s : (i+1)*s]
}

func (f *Field) ExclusiveData() []byte {
	return f.Data[:f.RowStride()*f.info.Exclusive]
}

func (f *Field) SharedData() []byte {
	s := f.RowStride()
	return f.Data[s*f.info.Exclusive : s*f.info.Primary()]
}

func (f *Field) GhostData() []byte {
	return f.Data[f.RowStride()*f.info.Primary():]
}

// SetRow stores entries in row i of a sparse or ragged field.
func (f *Field) SetRow(i int, entries []byte) error {
	if !f.IsRowed() {
		return fmt.Errorf("%w: %s field %d has no rows", ErrField, f.Kind, f.ID)
	}
	if len(entries)%f.ElemSize != 0 || len(entries) > f.RowStride() {
		return fmt.Errorf("%w: row of %d bytes for element size %d and %d entries",
			ErrField, len(entries), f.ElemSize, f.MaxEntries)
	}
	copy(f.Row(i), entries)
	f.RowSizes[i] = uint32(len(entries) / f.ElemSize)
	return nil
}

// LiveRow returns the live entries of row i.
func (f *Field) LiveRow(i int) []byte {
	if !f.IsRowed() {
		return f.Row(i)
	}
	return f.Row(i)[:int(f.RowSizes[i])*f.ElemSize]
}

// Values returns a typed view of the field data. The element size of T must
// divide the row stride.
func Values[T any](f *Field) []T {
	return view[T](f.Data)
}

func view[T any](b []byte) []T {
	var zero T
	n := len(b) / int(unsafe.Sizeof(zero))
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

func bytesOf[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(zero)))
}
