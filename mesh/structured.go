package mesh

import "fmt"

// NewStructured builds a unit-cube grid with dims[d] cells along axis d.
// Cells and vertices are numbered with axis 0 fastest. In 2-D the vertices of
// cell (i,j) are ordered counter-clockwise starting at its lower-left corner.
func NewStructured(dims ...int) (*Mesh, error) {
	if len(dims) < 1 || len(dims) > 3 {
		return nil, fmt.Errorf("structured mesh needs 1 to 3 dimensions, got %d", len(dims))
	}
	for d, n := range dims {
		if n < 1 {
			return nil, fmt.Errorf("axis %d has %d cells", d, n)
		}
	}
	var (
		D      = len(dims)
		m      = NewMesh(D)
		nv     = make([]int, 3)
		nc     = make([]int, 3)
		stride = [3]int{1, 1, 1}
	)
	for d := 0; d < 3; d++ {
		nv[d], nc[d] = 1, 1
		if d < D {
			nv[d], nc[d] = dims[d]+1, dims[d]
		}
	}
	stride[1] = nv[0]
	stride[2] = nv[0] * nv[1]
	for k := 0; k < nv[2]; k++ {
		for j := 0; j < nv[1]; j++ {
			for i := 0; i < nv[0]; i++ {
				idx := [3]int{i, j, k}
				coords := make([]float64, D)
				for d := 0; d < D; d++ {
					coords[d] = float64(idx[d]) / float64(dims[d])
				}
				m.Vertices = append(m.Vertices, coords)
			}
		}
	}
	v := func(i, j, k int) int { return i + j*stride[1] + k*stride[2] }
	for k := 0; k < nc[2]; k++ {
		for j := 0; j < nc[1]; j++ {
			for i := 0; i < nc[0]; i++ {
				switch D {
				case 1:
					m.Cells = append(m.Cells, []int{v(i, 0, 0), v(i+1, 0, 0)})
					m.ElementTypes = append(m.ElementTypes, Line)
				case 2:
					m.Cells = append(m.Cells, []int{
						v(i, j, 0), v(i+1, j, 0), v(i+1, j+1, 0), v(i, j+1, 0)})
					m.ElementTypes = append(m.ElementTypes, Quad)
				case 3:
					m.Cells = append(m.Cells, []int{
						v(i, j, k), v(i+1, j, k), v(i+1, j+1, k), v(i, j+1, k),
						v(i, j, k+1), v(i+1, j, k+1), v(i+1, j+1, k+1), v(i, j+1, k+1)})
					m.ElementTypes = append(m.ElementTypes, Hex)
				}
			}
		}
	}
	return m, nil
}
