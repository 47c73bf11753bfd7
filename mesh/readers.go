package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*Mesh, error) {
	var read func(io.Reader) (*Mesh, error)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".msh":
		read = ReadSimple
	case ".su2":
		read = ReadSU2
	case ".neu":
		read = ReadGambitNeutral
	default:
		return nil, fmt.Errorf("unsupported mesh format: %s", ext)
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	m, err := read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

// ReadSimple reads the plain definition format: a header line with the
// vertex and cell counts, one coordinate line per vertex and one line of
// vertex ids per cell. The dimension is the number of coordinates per vertex.
func ReadSimple(r io.Reader) (*Mesh, error) {
	var (
		scanner = bufio.NewScanner(r)
		nv, nc  int
		fields  []string
	)
	next := func() bool {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			fields = strings.Fields(line)
			return true
		}
		return false
	}
	if !next() || len(fields) < 2 {
		return nil, fmt.Errorf("missing vertex and cell count header")
	}
	var err error
	if nv, err = strconv.Atoi(fields[0]); err != nil {
		return nil, fmt.Errorf("invalid vertex count: %w", err)
	}
	if nc, err = strconv.Atoi(fields[1]); err != nil {
		return nil, fmt.Errorf("invalid cell count: %w", err)
	}
	m := NewMesh(0)
	m.Vertices = make([][]float64, nv)
	for i := 0; i < nv; i++ {
		if !next() {
			return nil, fmt.Errorf("unexpected EOF reading vertex %d", i)
		}
		if m.Dim == 0 {
			m.Dim = len(fields)
		}
		if len(fields) != m.Dim {
			return nil, fmt.Errorf("vertex %d has %d coordinates, expected %d", i, len(fields), m.Dim)
		}
		coords := make([]float64, m.Dim)
		for d := range coords {
			if coords[d], err = strconv.ParseFloat(fields[d], 64); err != nil {
				return nil, fmt.Errorf("vertex %d: invalid coordinate: %w", i, err)
			}
		}
		m.Vertices[i] = coords
	}
	m.Cells = make([][]int, nc)
	for i := 0; i < nc; i++ {
		if !next() {
			return nil, fmt.Errorf("unexpected EOF reading cell %d", i)
		}
		verts := make([]int, len(fields))
		for j := range verts {
			if verts[j], err = strconv.Atoi(fields[j]); err != nil {
				return nil, fmt.Errorf("cell %d: invalid vertex id: %w", i, err)
			}
		}
		m.Cells[i] = verts
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if m.Dim == 0 {
		m.Dim = 1
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// su2ElementTypeMap maps SU2/VTK element type identifiers to our ElementType
var su2ElementTypeMap = map[int]ElementType{
	3:  Line,     // VTK_LINE
	5:  Triangle, // VTK_TRIANGLE
	9:  Quad,     // VTK_QUAD
	10: Tet,      // VTK_TETRA
	12: Hex,      // VTK_HEXAHEDRON
	13: Prism,    // VTK_WEDGE
	14: Pyramid,  // VTK_PYRAMID
}

// ReadSU2 reads an SU2 native format mesh. Boundary marker elements are
// skipped, only the marker names are kept.
func ReadSU2(r io.Reader) (*Mesh, error) {
	var (
		scanner           = bufio.NewScanner(r)
		m                 = NewMesh(0)
		hasNDIME, hasPOIN bool
	)
	nextLine := func() (string, bool) {
		for scanner.Scan() {
			line := scanner.Text()
			// Skip comments (text after %)
			if idx := strings.Index(line, "%"); idx >= 0 {
				line = line[:idx]
			}
			if line = strings.TrimSpace(line); line != "" {
				return line, true
			}
		}
		return "", false
	}
	for {
		line, ok := nextLine()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(line, "NDIME="):
			hasNDIME = true
			if _, err := fmt.Sscanf(line, "NDIME=%d", &m.Dim); err != nil {
				return nil, fmt.Errorf("invalid NDIME line: %s", line)
			}
			if m.Dim != 2 && m.Dim != 3 {
				return nil, fmt.Errorf("unsupported dimension: NDIME=%d", m.Dim)
			}

		case strings.HasPrefix(line, "NPOIN="):
			if !hasNDIME {
				return nil, fmt.Errorf("NPOIN= before NDIME=")
			}
			hasPOIN = true
			var npoin int
			fmt.Sscanf(line, "NPOIN=%d", &npoin)
			m.Vertices = make([][]float64, npoin)
			for i := 0; i < npoin; i++ {
				pl, ok := nextLine()
				if !ok {
					return nil, fmt.Errorf("unexpected EOF reading nodes")
				}
				fields := strings.Fields(pl)
				if len(fields) < m.Dim {
					return nil, fmt.Errorf("invalid node line: expected at least %d coordinates", m.Dim)
				}
				coords := make([]float64, m.Dim)
				for j := range coords {
					var err error
					if coords[j], err = strconv.ParseFloat(fields[j], 64); err != nil {
						return nil, fmt.Errorf("invalid coordinate: %w", err)
					}
				}
				// Node ID is implicit (0-based), a trailing explicit ID is ignored
				m.Vertices[i] = coords
			}

		case strings.HasPrefix(line, "NELEM="):
			var nelem int
			fmt.Sscanf(line, "NELEM=%d", &nelem)
			m.Cells = make([][]int, 0, nelem)
			m.ElementTypes = make([]ElementType, 0, nelem)
			for i := 0; i < nelem; i++ {
				el, ok := nextLine()
				if !ok {
					return nil, fmt.Errorf("unexpected EOF reading elements")
				}
				fields := strings.Fields(el)
				su2Type, err := strconv.Atoi(fields[0])
				if err != nil {
					return nil, fmt.Errorf("invalid element type: %w", err)
				}
				etype, ok := su2ElementTypeMap[su2Type]
				if !ok {
					return nil, fmt.Errorf("unknown element type: %d", su2Type)
				}
				numNodes := etype.GetNumNodes()
				if len(fields) < numNodes+1 {
					return nil, fmt.Errorf("element type %v expects %d nodes, got %d fields",
						etype, numNodes, len(fields)-1)
				}
				nodes := make([]int, numNodes)
				for j := range nodes {
					if nodes[j], err = strconv.Atoi(fields[1+j]); err != nil {
						return nil, fmt.Errorf("invalid node index: %w", err)
					}
				}
				m.Cells = append(m.Cells, nodes)
				m.ElementTypes = append(m.ElementTypes, etype)
			}

		case strings.HasPrefix(line, "NMARK="):
			var nmark int
			fmt.Sscanf(line, "NMARK=%d", &nmark)
			for i := 0; i < nmark; i++ {
				tag, ok := nextLine()
				if !ok || !strings.HasPrefix(tag, "MARKER_TAG=") {
					return nil, fmt.Errorf("expected MARKER_TAG= for marker %d", i)
				}
				m.BoundaryTags[i] = strings.TrimSpace(strings.TrimPrefix(tag, "MARKER_TAG="))
				count, ok := nextLine()
				var nMarkerElems int
				if !ok {
					return nil, fmt.Errorf("unexpected EOF reading marker elements")
				}
				if _, err := fmt.Sscanf(count, "MARKER_ELEMS=%d", &nMarkerElems); err != nil {
					return nil, fmt.Errorf("invalid MARKER_ELEMS line: %s", count)
				}
				for j := 0; j < nMarkerElems; j++ {
					if _, ok = nextLine(); !ok {
						return nil, fmt.Errorf("unexpected EOF reading boundary elements")
					}
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if !hasNDIME {
		return nil, fmt.Errorf("missing required NDIME= section")
	}
	if !hasPOIN {
		return nil, fmt.Errorf("missing required NPOIN= section")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadGambitNeutral reads the nodal coordinates and cells of a Gambit
// neutral file. Ids in the file are 1-based.
func ReadGambitNeutral(r io.Reader) (*Mesh, error) {
	var (
		scanner      = bufio.NewScanner(r)
		m            = NewMesh(0)
		numnp, nelem int
		err          error
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, "NUMNP") {
			if !scanner.Scan() {
				return nil, fmt.Errorf("missing control info values")
			}
			fields := strings.Fields(scanner.Text())
			if len(fields) < 5 {
				return nil, fmt.Errorf("short control info line")
			}
			numnp, _ = strconv.Atoi(fields[0])
			nelem, _ = strconv.Atoi(fields[1])
			m.Dim, _ = strconv.Atoi(fields[4])
			break
		}
	}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "NODAL COORDINATES"):
			m.Vertices = make([][]float64, numnp)
			for i := 0; i < numnp; i++ {
				scanner.Scan()
				fields := strings.Fields(scanner.Text())
				if len(fields) < m.Dim+1 {
					return nil, fmt.Errorf("short node line %d", i)
				}
				id, _ := strconv.Atoi(fields[0])
				if id < 1 || id > numnp {
					return nil, fmt.Errorf("node id %d out of range", id)
				}
				coords := make([]float64, m.Dim)
				for d := range coords {
					if coords[d], err = strconv.ParseFloat(fields[1+d], 64); err != nil {
						return nil, fmt.Errorf("node %d: %w", id, err)
					}
				}
				m.Vertices[id-1] = coords
			}

		case strings.HasPrefix(line, "ELEMENTS/CELLS"):
			m.Cells = make([][]int, nelem)
			m.ElementTypes = make([]ElementType, nelem)
			for i := 0; i < nelem; i++ {
				scanner.Scan()
				fields := strings.Fields(scanner.Text())
				if len(fields) < 3 {
					return nil, fmt.Errorf("short element line %d", i)
				}
				id, _ := strconv.Atoi(fields[0])
				elemType, _ := strconv.Atoi(fields[1])
				numNodes, _ := strconv.Atoi(fields[2])
				if id < 1 || id > nelem || len(fields) < 3+numNodes {
					return nil, fmt.Errorf("malformed element %d", id)
				}
				switch elemType {
				case 1: // Edge
					m.ElementTypes[id-1] = Line
				case 2: // Quadrilateral
					m.ElementTypes[id-1] = Quad
				case 3: // Triangle
					m.ElementTypes[id-1] = Triangle
				case 4: // Brick
					m.ElementTypes[id-1] = Hex
				case 5: // Wedge/Prism
					m.ElementTypes[id-1] = Prism
				case 6: // Tet
					m.ElementTypes[id-1] = Tet
				case 7: // Pyramid
					m.ElementTypes[id-1] = Pyramid
				default:
					return nil, fmt.Errorf("unknown Gambit element type %d", elemType)
				}
				verts := make([]int, numNodes)
				for j := range verts {
					v, _ := strconv.Atoi(fields[3+j])
					verts[j] = v - 1
				}
				m.Cells[id-1] = verts
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
