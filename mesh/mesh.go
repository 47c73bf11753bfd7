package mesh

import (
	"fmt"
	"sync"
)

// Definition is the topology a coloring is computed from. Entities of
// dimension 0 are vertices and entities of dimension Dimension() are cells.
type Definition interface {
	Dimension() int
	NumEntities(dim int) int
	// Entities returns the global ids of the toDim entities incident on
	// entity id of dimension fromDim.
	Entities(fromDim, toDim, id int) []int
}

// ElementType represents the supported cell shapes
type ElementType int

const (
	Line ElementType = iota
	Triangle
	Quad
	Tet
	Hex
	Prism
	Pyramid
)

func (e ElementType) String() string {
	return [...]string{"Line", "Triangle", "Quad", "Tet", "Hex", "Prism", "Pyramid"}[e]
}

func (e ElementType) GetDimension() int {
	switch e {
	case Line:
		return 1
	case Triangle, Quad:
		return 2
	default:
		return 3
	}
}

func (e ElementType) GetNumNodes() int {
	return [...]int{2, 3, 4, 4, 8, 6, 5}[e]
}

// Mesh is an in-memory cell to vertex incidence with coordinates.
type Mesh struct {
	Dim          int
	Vertices     [][]float64 // Vertex coordinates [nvertices][Dim]
	Cells        [][]int     // Cell to vertex connectivity
	ElementTypes []ElementType
	BoundaryTags map[int]string

	once        sync.Once
	vertexCells [][]int // Inverse of Cells, built on first use
}

func NewMesh(dim int) *Mesh {
	return &Mesh{
		Dim:          dim,
		BoundaryTags: make(map[int]string),
	}
}

func (m *Mesh) Dimension() int { return m.Dim }

func (m *Mesh) NumEntities(dim int) int {
	switch dim {
	case 0:
		return len(m.Vertices)
	case m.Dim:
		return len(m.Cells)
	default:
		return 0
	}
}

// Entities supports cell to vertex and vertex to cell incidence. Other
// dimension pairs have no entities.
func (m *Mesh) Entities(fromDim, toDim, id int) []int {
	switch {
	case fromDim == m.Dim && toDim == 0:
		return m.Cells[id]
	case fromDim == 0 && toDim == m.Dim:
		m.once.Do(m.buildVertexCells)
		return m.vertexCells[id]
	default:
		return nil
	}
}

func (m *Mesh) buildVertexCells() {
	m.vertexCells = make([][]int, len(m.Vertices))
	for c, verts := range m.Cells {
		for _, v := range verts {
			m.vertexCells[v] = append(m.vertexCells[v], c)
		}
	}
}

// Validate checks that every cell references existing vertices.
func (m *Mesh) Validate() error {
	if m.Dim < 1 || m.Dim > 3 {
		return fmt.Errorf("unsupported mesh dimension %d", m.Dim)
	}
	nv := len(m.Vertices)
	for c, verts := range m.Cells {
		if len(verts) == 0 {
			return fmt.Errorf("cell %d has no vertices", c)
		}
		for _, v := range verts {
			if v < 0 || v >= nv {
				return fmt.Errorf("cell %d: vertex %d out of range [0,%d)", c, v, nv)
			}
		}
	}
	return nil
}
