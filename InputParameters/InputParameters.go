package InputParameters

import (
	"fmt"
	"sort"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type ColoringParameters struct {
	Title       string             `yaml:"Title"`
	MeshFile    string             `yaml:"MeshFile"`
	Grid        []int              `yaml:"Grid"` // Structured grid cells per axis, used when MeshFile is empty
	Ranks       int                `yaml:"Ranks"`
	Colors      int                `yaml:"Colors"`
	Partitioner string             `yaml:"Partitioner"` // naive or metis
	Policy      string             `yaml:"Policy"`      // trailing or leading remainder
	ThruDim     *int               `yaml:"ThruDim"`
	Vertices    bool               `yaml:"Vertices"`
	Backend     string             `yaml:"Backend"` // mpi, legion or hpx
	Iterations  int                `yaml:"Iterations"`
	Metis       MetisParameters    `yaml:"Metis"`
	Fields      map[string]FieldIn `yaml:"Fields"`
}

type MetisParameters struct {
	Imbalance float32 `yaml:"Imbalance"`
	Objective string  `yaml:"Objective"`
}

type FieldIn struct {
	Space      string `yaml:"Space"` // cells or vertices
	Kind       string `yaml:"Kind"`  // dense, ragged, sparse or global
	ElemSize   int    `yaml:"ElemSize"`
	MaxEntries int    `yaml:"MaxEntries"`
}

func (ip *ColoringParameters) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

// Defaults fills the unset scalar parameters.
func (ip *ColoringParameters) Defaults() {
	if ip.Ranks == 0 {
		ip.Ranks = 1
	}
	if ip.Partitioner == "" {
		ip.Partitioner = "naive"
	}
	if ip.Backend == "" {
		ip.Backend = "mpi"
	}
	if ip.Iterations == 0 {
		ip.Iterations = 1
	}
	if ip.Metis.Imbalance == 0 {
		ip.Metis.Imbalance = 1.05
	}
	if ip.Metis.Objective == "" {
		ip.Metis.Objective = "cut"
	}
}

func (ip *ColoringParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	if ip.MeshFile != "" {
		fmt.Printf("[%s]\t= Mesh File\n", ip.MeshFile)
	} else {
		fmt.Printf("%v\t\t= Grid\n", ip.Grid)
	}
	fmt.Printf("[%d]\t\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("[%d]\t\t\t\t= Colors\n", ip.Colors)
	fmt.Printf("[%s]\t\t\t= Partitioner\n", ip.Partitioner)
	fmt.Printf("[%s]\t\t\t= Backend\n", ip.Backend)
	keys := make([]string, len(ip.Fields))
	i := 0
	for k := range ip.Fields {
		keys[i] = k
		i++
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Printf("Fields[%s] = %+v\n", key, ip.Fields[key])
	}
}
