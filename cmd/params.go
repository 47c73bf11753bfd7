package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/gohalo/InputParameters"
	"github.com/notargets/gohalo/coloring"
	"github.com/notargets/gohalo/coloring/dcrs"
	"github.com/notargets/gohalo/coloring/partition"
	"github.com/notargets/gohalo/mesh"
)

const exampleFile = `
########################################
Title: "Test Case"
Grid: [16, 16]           # or MeshFile: mesh.su2
Ranks: 4
Partitioner: metis       # Can be "naive"
Backend: mpi             # Can be "legion" or "hpx"
Fields:
  density: {Space: cells, Kind: dense, ElemSize: 8}
########################################
`

func addColoringFlags(c *cobra.Command) {
	c.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- Ranks\n\t- Partitioner\n\t- Fields")
	c.Flags().StringP("meshFile", "F", "", "Mesh file to read in .msh, .su2 or Gambit (.neu) format")
	c.Flags().IntSliceP("grid", "G", nil, "structured grid cells per axis, used without a mesh file")
	c.Flags().IntP("ranks", "n", 1, "number of ranks")
	c.Flags().IntP("colors", "c", 0, "number of colors, 0 for one per rank")
	c.Flags().StringP("partitioner", "p", "", "naive or metis")
	c.Flags().String("policy", "", "row distribution remainder policy: trailing or leading")
	c.Flags().Int("thru", -1, "dimension two cells must share to be neighbours, -1 for faces")
	c.Flags().Bool("vertices", false, "also color the vertices touched by the cells")
	c.Flags().Bool("stats", true, "measure the partition")
}

// loadParameters reads the optional input file, then lets flags override it.
// Unset partitioner and backend fall back to the config file.
func loadParameters(cmd *cobra.Command) (*InputParameters.ColoringParameters, error) {
	var (
		ip    = &InputParameters.ColoringParameters{}
		flags = cmd.Flags()
	)
	if file, _ := flags.GetString("inputConditionsFile"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
	}
	if flags.Changed("meshFile") {
		ip.MeshFile, _ = flags.GetString("meshFile")
	}
	if flags.Changed("grid") {
		ip.Grid, _ = flags.GetIntSlice("grid")
	}
	if flags.Changed("ranks") || ip.Ranks == 0 {
		ip.Ranks, _ = flags.GetInt("ranks")
	}
	if flags.Changed("colors") {
		ip.Colors, _ = flags.GetInt("colors")
	}
	if flags.Changed("partitioner") {
		ip.Partitioner, _ = flags.GetString("partitioner")
	}
	if flags.Changed("policy") {
		ip.Policy, _ = flags.GetString("policy")
	}
	if flags.Changed("thru") || ip.ThruDim == nil {
		thru, _ := flags.GetInt("thru")
		ip.ThruDim = &thru
	}
	if flags.Changed("vertices") {
		ip.Vertices, _ = flags.GetBool("vertices")
	}
	if flags.Lookup("backend") != nil && flags.Changed("backend") {
		ip.Backend, _ = flags.GetString("backend")
	}
	if flags.Lookup("iterations") != nil && flags.Changed("iterations") {
		ip.Iterations, _ = flags.GetInt("iterations")
	}
	if ip.Partitioner == "" {
		ip.Partitioner = viper.GetString("partitioner")
	}
	if ip.Backend == "" {
		ip.Backend = viper.GetString("backend")
	}
	ip.Defaults()
	if ip.MeshFile == "" && len(ip.Grid) == 0 {
		return nil, fmt.Errorf("must supply a mesh file (-F, --meshFile), a grid (-G, --grid) or an input parameters file (-I) like:%s",
			exampleFile)
	}
	return ip, nil
}

func loadMesh(ip *InputParameters.ColoringParameters) (mesh.Definition, error) {
	if ip.MeshFile != "" {
		return mesh.ReadMeshFile(ip.MeshFile)
	}
	return mesh.NewStructured(ip.Grid...)
}

func newColorer(ip *InputParameters.ColoringParameters, stats bool) (*coloring.Colorer, error) {
	p, err := partition.New(ip.Partitioner)
	if err != nil {
		return nil, err
	}
	if m, ok := p.(*partition.Metis); ok {
		m.ImbalanceFactor = ip.Metis.Imbalance
		m.Objective = ip.Metis.Objective
	}
	policy, err := dcrs.ParsePolicy(ip.Policy)
	if err != nil {
		return nil, err
	}
	cl := coloring.NewColorer(p)
	cl.Colors = ip.Colors
	cl.Policy = policy
	cl.ThruDim = *ip.ThruDim
	cl.Vertices = ip.Vertices
	cl.Stats = stats
	return cl, nil
}
