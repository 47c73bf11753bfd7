package mesh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructured(t *testing.T) {
	{ // 2-D, the vertex order of the plain definition files
		const M = 8
		m, err := NewStructured(M, M)
		require.NoError(t, err)
		assert.Equal(t, 2, m.Dimension())
		assert.Equal(t, 81, m.NumEntities(0))
		assert.Equal(t, 64, m.NumEntities(2))
		assert.Equal(t, 0, m.NumEntities(1))
		for c := 0; c < m.NumEntities(2); c++ {
			row, col := c/M, c%M
			r0 := col + row*(M+1)
			r1 := r0 + M + 1
			assert.Equal(t, []int{r0, r0 + 1, r1 + 1, r1}, m.Entities(2, 0, c))
		}
		for v := 0; v < m.NumEntities(0); v++ {
			row, col := v/(M+1), v%(M+1)
			assert.InDeltaSlice(t, []float64{float64(col) / M, float64(row) / M}, m.Vertices[v], 1e-12)
		}
		// Interior vertex touches four cells, corners one
		assert.ElementsMatch(t, []int{0, 1, 8, 9}, m.Entities(0, 2, 10))
		assert.Equal(t, []int{0}, m.Entities(0, 2, 0))
		assert.Nil(t, m.Entities(1, 0, 0))
	}
	{ // 1-D and 3-D
		m1, err := NewStructured(5)
		require.NoError(t, err)
		assert.Equal(t, 6, m1.NumEntities(0))
		assert.Equal(t, []int{2, 3}, m1.Entities(1, 0, 2))
		m3, err := NewStructured(2, 3, 4)
		require.NoError(t, err)
		assert.Equal(t, 3*4*5, m3.NumEntities(0))
		assert.Equal(t, 24, m3.NumEntities(3))
		assert.Equal(t, Hex, m3.ElementTypes[0])
		assert.Len(t, m3.Entities(3, 0, 23), 8)
		assert.NoError(t, m3.Validate())
	}
	{
		_, err := NewStructured()
		assert.Error(t, err)
		_, err = NewStructured(4, 0)
		assert.Error(t, err)
	}
}

func TestReadSimple(t *testing.T) {
	{
		m, err := ReadMeshFile("testdata/simple2d-16x16.msh")
		require.NoError(t, err)
		assert.Equal(t, 2, m.Dimension())
		assert.Equal(t, 289, m.NumEntities(0))
		assert.Equal(t, 256, m.NumEntities(2))
		s, err := NewStructured(16, 16)
		require.NoError(t, err)
		for c := 0; c < 256; c++ {
			assert.Equal(t, s.Entities(2, 0, c), m.Entities(2, 0, c))
		}
	}
	{
		_, err := ReadSimple(strings.NewReader("3 1\n0 0\n1 0\n0 1\n0 1 7\n"))
		assert.ErrorContains(t, err, "out of range")
		_, err = ReadSimple(strings.NewReader("3 1\n0 0\n1 0\n"))
		assert.ErrorContains(t, err, "unexpected EOF")
		_, err = ReadSimple(strings.NewReader("2 0\n0 0\n1\n"))
		assert.ErrorContains(t, err, "coordinates")
	}
}

func TestReadSU2(t *testing.T) {
	m, err := ReadMeshFile("testdata/two_tri.su2")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dimension())
	assert.Equal(t, 4, m.NumEntities(0))
	assert.Equal(t, [][]int{{0, 1, 2}, {0, 2, 3}}, m.Cells)
	assert.Equal(t, []ElementType{Triangle, Triangle}, m.ElementTypes)
	assert.Equal(t, "wall", m.BoundaryTags[0])

	_, err = ReadSU2(strings.NewReader("NPOIN= 1\n0 0\n"))
	assert.Error(t, err)
	_, err = ReadSU2(strings.NewReader("NDIME= 2\nNPOIN= 1\n0 0\nNELEM= 1\n5 0 1 2\n"))
	assert.ErrorContains(t, err, "out of range")
}

func TestReadGambit(t *testing.T) {
	m, err := ReadMeshFile("testdata/two_quad.neu")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Dimension())
	assert.Equal(t, 6, m.NumEntities(0))
	assert.Equal(t, [][]int{{0, 1, 4, 3}, {1, 2, 5, 4}}, m.Cells)
	assert.Equal(t, Quad, m.ElementTypes[1])
	assert.InDeltaSlice(t, []float64{2, 1}, m.Vertices[5], 1e-12)

	_, err = ReadMeshFile("testdata/missing.vtk")
	assert.ErrorContains(t, err, "unsupported mesh format")
}
